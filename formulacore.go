// Package formulacore is the public facade over the formula evaluation
// core: callers construct an Engine, build a Project out of
// Tables/Columns/Rows/Documents, and call EvaluateProject to compile,
// plan and evaluate every formula, derived table and document variable
// it contains. Everything under internal/ is an implementation detail;
// this package re-exports the types and entry points an embedder needs
// via type aliases and thin constructor wrappers.
package formulacore

import (
	"io"

	"github.com/rs/zerolog"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/docforge/formulacore/internal/domain"
	"github.com/docforge/formulacore/internal/engine"
	"github.com/docforge/formulacore/internal/fctx"
	"github.com/docforge/formulacore/internal/obslog"
	"github.com/docforge/formulacore/internal/registry"
)

// Engine orchestrates compile/plan caching and full/incremental
// evaluation over a Project.
type Engine = engine.Engine

// Option configures an Engine at construction time.
type Option = engine.Option

// New constructs an Engine with empty compile/plan caches.
func New(opts ...Option) *Engine {
	return engine.New(opts...)
}

// WithLogger overrides the engine's zerolog.Logger (default: a no-op
// logger that discards everything).
func WithLogger(l zerolog.Logger) Option {
	return engine.WithLogger(l)
}

// WithRegistry overrides the function registry used to compile and
// evaluate every formula (default: the built-in registry returned by
// DefaultRegistry).
func WithRegistry(r *Registry) Option {
	return engine.WithRegistry(r)
}

// WithMeter supplies an OpenTelemetry meter the engine records its phase
// durations into, alongside returning them in Metrics.
func WithMeter(m otelmetric.Meter) Option {
	return engine.WithMeter(m)
}

// NewLogger builds a zerolog.Logger writing to w with component set as a
// static field, suitable for WithLogger. An Engine built without
// WithLogger discards everything it logs.
func NewLogger(w io.Writer, component string) zerolog.Logger {
	return obslog.New(w, component)
}

// Request selects one of the five evaluation modes. Build
// one with Full, Incremental, IncrementalDocuments, IncrementalTargeted
// or StructuralIncremental.
type Request = engine.Request

// Full requests a full evaluation: structural refresh plus every table
// and document variable rematerialized/re-evaluated.
func Full() Request { return engine.Full() }

// Incremental requests evaluation restricted to the transitive dependents
// of dirtyTableIDs, reusing the cached plan and context.
func Incremental(dirtyTableIDs []TableID) Request { return engine.Incremental(dirtyTableIDs) }

// IncrementalDocuments requests evaluation restricted to the transitive
// dependents of every document variable declared by dirtyDocIDs.
func IncrementalDocuments(dirtyDocIDs []DocumentID) Request {
	return engine.IncrementalDocuments(dirtyDocIDs)
}

// IncrementalTargeted is Incremental plus a per-table restriction to the
// subtree of the this_row_columns dependency graph reachable from the
// listed column ids.
func IncrementalTargeted(dirtyTableIDs []TableID, targetedColumnIDsByTable map[TableID][]ColumnID) Request {
	return engine.IncrementalTargeted(dirtyTableIDs, targetedColumnIDsByTable)
}

// StructuralIncremental forces a plan/context rebuild but still restricts
// evaluation to the transitive dependents of the supplied dirty sets.
func StructuralIncremental(dirtyTableIDs []TableID, dirtyDocumentIDs []DocumentID) Request {
	return engine.StructuralIncremental(dirtyTableIDs, dirtyDocumentIDs)
}

// Metrics reports the fixed per-phase timings and counters an
// EvaluateProject call produces.
type Metrics = engine.Metrics

// Named evaluation phases, in run order, for use with Metrics.Breakdown.
const (
	PhaseCompile  = engine.PhaseCompile
	PhasePlan     = engine.PhasePlan
	PhaseDerived  = engine.PhaseDerived
	PhaseEvaluate = engine.PhaseEvaluate
)

// ErrConcurrentEvaluation is returned when EvaluateProject is called
// while another call on the same Engine is still running.
var ErrConcurrentEvaluation = engine.ErrConcurrentEvaluation

// FormulaContext is the read-only view over a Project's tables, columns,
// rows, documents and variables that compiled formulas evaluate against;
// Engine builds one internally on every structural refresh.
type FormulaContext = fctx.Context

// Registry is the process-scoped function registry formulas are compiled
// and evaluated against.
type Registry = registry.Registry

// NewRegistry constructs an empty Registry with no functions registered.
func NewRegistry() *Registry { return registry.New() }

// DefaultRegistry returns the process-wide registry pre-populated with
// every built-in function, built once on first use.
func DefaultRegistry() *Registry { return registry.Default() }

// Core project entity and value types.
type (
	Project         = domain.Project
	Table           = domain.Table
	Column          = domain.Column
	Row             = domain.Row
	Document        = domain.Document
	DocumentBlock   = domain.DocumentBlock
	TableVariable   = domain.TableVariable
	TableVariant    = domain.TableVariant
	Projection      = domain.Projection
	KeyMapping      = domain.KeyMapping
	DerivedStep     = domain.DerivedStep
	DerivedConfig   = domain.DerivedConfig
	CellOverride    = domain.CellOverride
	FormulaValue    = domain.FormulaValue
	CellValue       = domain.CellValue
	EvaluationFrame = domain.EvaluationFrame
	DomainError     = domain.DomainError
)

// DocumentBlockKind tags a parsed block of a Document.
type DocumentBlockKind = domain.DocumentBlockKind

const (
	DocumentBlockText     = domain.DocumentBlockText
	DocumentBlockVariable = domain.DocumentBlockVariable
	DocumentBlockInline   = domain.DocumentBlockInline
)

// ParseDocumentBody splits a raw document body into blocks, the same
// parser Document.Blocks is populated from.
func ParseDocumentBody(body string) []DocumentBlock { return domain.ParseDocumentBody(body) }

// Entity identities, google/uuid-backed.
type (
	TableID    = domain.TableID
	ColumnID   = domain.ColumnID
	RowID      = domain.RowID
	DocumentID = domain.DocumentID
)

// NilID is the zero UUID, the "unset" sentinel for optional id fields.
var NilID = domain.NilID

// ColumnKind identifies the storage/semantic kind of a Column.
type ColumnKind = domain.ColumnKind

const (
	ColumnKindNumber       = domain.ColumnKindNumber
	ColumnKindText         = domain.ColumnKindText
	ColumnKindCheckbox     = domain.ColumnKindCheckbox
	ColumnKindSelect       = domain.ColumnKindSelect
	ColumnKindID           = domain.ColumnKindID
	ColumnKindFormula      = domain.ColumnKindFormula
	ColumnKindRelation     = domain.ColumnKindRelation
	ColumnKindTableRef     = domain.ColumnKindTableRef
	ColumnKindSubtable     = domain.ColumnKindSubtable
	ColumnKindSpline       = domain.ColumnKindSpline
	ColumnKindVec2         = domain.ColumnKindVec2
	ColumnKindVec3         = domain.ColumnKindVec3
	ColumnKindVec4         = domain.ColumnKindVec4
	ColumnKindColor        = domain.ColumnKindColor
	ColumnKindTextureAsset = domain.ColumnKindTextureAsset
	ColumnKindMeshAsset    = domain.ColumnKindMeshAsset
	ColumnKindAudioAsset   = domain.ColumnKindAudioAsset
	ColumnKindUIAsset      = domain.ColumnKindUIAsset
)

// NewProject constructs an empty Project with the given id.
func NewProject(id string) *Project { return domain.NewProject(id) }

// NewTable constructs an empty Table with the given id and name.
func NewTable(id TableID, name string) *Table { return domain.NewTable(id, name) }

// NewRow constructs an empty Row with the given id.
func NewRow(id RowID) *Row { return domain.NewRow(id) }
