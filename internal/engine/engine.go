// Package engine implements the Engine façade: compile/plan caches
// keyed by project reference identity, full vs. incremental evaluation
// orchestration, and per-phase metrics. The plan is built once per
// structural change and driven repeatedly by dirty-set requests.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/docforge/formulacore/internal/domain"
	"github.com/docforge/formulacore/internal/evaluator"
	"github.com/docforge/formulacore/internal/fctx"
	"github.com/docforge/formulacore/internal/lang"
	"github.com/docforge/formulacore/internal/obslog"
	"github.com/docforge/formulacore/internal/planner"
	"github.com/docforge/formulacore/internal/registry"
)

// ErrConcurrentEvaluation is returned when EvaluateProject is called while
// another call on the same Engine is still running. The core's
// concurrency model is single-threaded and synchronous; this guards
// against accidental misuse rather than supporting concurrent drivers.
var ErrConcurrentEvaluation = errors.New("engine: concurrent EvaluateProject call")

// Engine owns the compile/plan caches and precomputed document-variable
// values that let incremental evaluation avoid redoing structural work
//. Zero value is not usable; construct with New.
type Engine struct {
	logger zerolog.Logger
	reg    *registry.Registry
	meter  otelmetric.Meter

	totalHist    otelmetric.Float64Histogram
	compileHist  otelmetric.Float64Histogram
	planHist     otelmetric.Float64Histogram
	derivedHist  otelmetric.Float64Histogram
	evaluateHist otelmetric.Float64Histogram

	evalMu sync.Mutex // serializes EvaluateProject calls

	cacheMu       sync.Mutex
	cachedProject *domain.Project
	cachedCtx     *fctx.ProjectContext
	cachedPlan    *planner.Plan

	compiledFormulas map[string]lang.CompiledFormula

	// docVarValues/docVarErrs hold the last known-good value (or cycle
	// error) for every document-variable node this Engine has evaluated,
	// keyed by "<docID>#<lowercased name>". They persist across calls so
	// an incremental run that doesn't touch a document variable still has
	// its value available to seed the new Evaluator.
	docVarValues map[string]domain.FormulaValue
	docVarErrs   map[string]error
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithLogger overrides the engine's zerolog.Logger (default: nop).
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithRegistry overrides the function registry used to compile and
// evaluate every formula (default: registry.Default()).
func WithRegistry(r *registry.Registry) Option {
	return func(e *Engine) { e.reg = r }
}

// WithMeter supplies an OpenTelemetry meter the engine records its four
// phase durations into, in addition to returning them in Metrics
//. The engine never configures an exporter; that
// is the embedding application's job.
func WithMeter(m otelmetric.Meter) Option {
	return func(e *Engine) { e.meter = m }
}

// New constructs an Engine with empty caches.
func New(opts ...Option) *Engine {
	e := &Engine{
		logger:           obslog.Nop(),
		reg:              registry.Default(),
		compiledFormulas: make(map[string]lang.CompiledFormula),
		docVarValues:     make(map[string]domain.FormulaValue),
		docVarErrs:       make(map[string]error),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.meter != nil {
		e.totalHist, _ = e.meter.Float64Histogram("formulacore.evaluate.total_seconds")
		e.compileHist, _ = e.meter.Float64Histogram("formulacore.evaluate.compile_seconds")
		e.planHist, _ = e.meter.Float64Histogram("formulacore.evaluate.plan_seconds")
		e.derivedHist, _ = e.meter.Float64Histogram("formulacore.evaluate.derived_seconds")
		e.evaluateHist, _ = e.meter.Float64Histogram("formulacore.evaluate.evaluate_seconds")
	}
	return e
}

// recordMeter pushes metrics into the optional OpenTelemetry meter
//. A nil meter (the default) is a no-op.
func (e *Engine) recordMeter(m Metrics) {
	if e.meter == nil {
		return
	}
	ctx := context.Background()
	e.totalHist.Record(ctx, m.Total.Seconds())
	e.compileHist.Record(ctx, m.Compile.Seconds())
	e.planHist.Record(ctx, m.Plan.Seconds())
	e.derivedHist.Record(ctx, m.Derived.Seconds())
	e.evaluateHist.Record(ctx, m.Evaluate.Seconds())
}

// compile compiles expr through this engine's shared, expression-text
// keyed cache (compilation is a pure function of expression text and
// registry contents, so caching by text alone is sound across tables and
// calls). Guarded independently from evalMu so Explain and other
// read-only accessors never contend with an in-flight EvaluateProject.
func (e *Engine) compile(expr string) lang.CompiledFormula {
	e.cacheMu.Lock()
	if cf, ok := e.compiledFormulas[expr]; ok {
		e.cacheMu.Unlock()
		return cf
	}
	e.cacheMu.Unlock()

	cf := lang.Compile(expr, e.reg.TracksFirstArgTable)

	e.cacheMu.Lock()
	e.compiledFormulas[expr] = cf
	e.cacheMu.Unlock()
	return cf
}

func docVarCacheKey(docID domain.DocumentID, name string) string {
	return fmt.Sprintf("%s#%s", docID, normalizeVarName(name))
}

func normalizeVarName(name string) string {
	out := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}

// newEvaluator builds a fresh Evaluator scoped to one EvaluateProject call
// and seeds it with every document-variable value this Engine already
// knows about, so incremental runs that skip a document-variable node
// still resolve `thisDoc.X`/`docs.alias.X` references correctly.
func (e *Engine) newEvaluator(ctx *fctx.ProjectContext, plan *planner.Plan) *evaluator.Evaluator {
	ev := evaluator.New(ctx, e.reg)
	for _, node := range plan.DocVariableNodesByID {
		key := docVarCacheKey(node.DocumentID, node.Name)
		if val, ok := e.docVarValues[key]; ok {
			ev.SetPrecomputedDocumentVariable(node.DocumentID, node.Name, val, e.docVarErrs[key])
		}
	}
	return ev
}
