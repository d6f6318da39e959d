package engine

import (
	"fmt"
	"time"
)

// Metrics reports the fixed per-phase timings and counters an
// EvaluateProject call produces. Field
// names are the Go-cased equivalents of the fixed set: total, compile,
// plan, derived, evaluate, evaluatedTableCount, usedIncrementalPlan.
type Metrics struct {
	Total    time.Duration
	Compile  time.Duration
	Plan     time.Duration
	Derived  time.Duration
	Evaluate time.Duration

	EvaluatedTableCount int
	UsedIncrementalPlan bool
}

// String renders a one-line phase breakdown for logging/debugging.
func (m Metrics) String() string {
	return fmt.Sprintf(
		"total=%s compile=%s plan=%s derived=%s evaluate=%s tables=%d incrementalPlan=%t",
		m.Total, m.Compile, m.Plan, m.Derived, m.Evaluate, m.EvaluatedTableCount, m.UsedIncrementalPlan,
	)
}

// Named phases, in the order EvaluateProject runs them.
const (
	PhaseCompile  = "compile"
	PhasePlan     = "plan"
	PhaseDerived  = "derived"
	PhaseEvaluate = "evaluate"
)

// Breakdown returns each phase's duration keyed by its Phase* constant,
// in run order, for callers that want to log or chart durations without
// reaching into the struct fields by name.
func (m Metrics) Breakdown() []struct {
	Phase    string
	Duration time.Duration
} {
	return []struct {
		Phase    string
		Duration time.Duration
	}{
		{PhaseCompile, m.Compile},
		{PhasePlan, m.Plan},
		{PhaseDerived, m.Derived},
		{PhaseEvaluate, m.Evaluate},
	}
}
