// Package domain holds the value model and project entities shared by the
// formula compiler, derived-table resolver, dependency planner and
// evaluator: tagged cell/formula values, tables, columns, rows, documents
// and the evaluation frame threaded through compilation and evaluation.
package domain

import "fmt"

// ColumnKind identifies the storage/semantic kind of a Column.
type ColumnKind string

const (
	ColumnKindNumber       ColumnKind = "number"
	ColumnKindText         ColumnKind = "text"
	ColumnKindCheckbox     ColumnKind = "checkbox"
	ColumnKindSelect       ColumnKind = "select"
	ColumnKindID           ColumnKind = "id"
	ColumnKindFormula      ColumnKind = "formula"
	ColumnKindRelation     ColumnKind = "relation"
	ColumnKindTableRef     ColumnKind = "table_ref"
	ColumnKindSubtable     ColumnKind = "subtable"
	ColumnKindSpline       ColumnKind = "spline"
	ColumnKindVec2         ColumnKind = "vec2"
	ColumnKindVec3         ColumnKind = "vec3"
	ColumnKindVec4         ColumnKind = "vec4"
	ColumnKindColor        ColumnKind = "color"
	ColumnKindTextureAsset ColumnKind = "texture_asset"
	ColumnKindMeshAsset    ColumnKind = "mesh_asset"
	ColumnKindAudioAsset   ColumnKind = "audio_asset"
	ColumnKindUIAsset      ColumnKind = "ui_asset"
)

// IsValid reports whether k is one of the known column kinds.
func (k ColumnKind) IsValid() bool {
	switch k {
	case ColumnKindNumber, ColumnKindText, ColumnKindCheckbox, ColumnKindSelect,
		ColumnKindID, ColumnKindFormula, ColumnKindRelation, ColumnKindTableRef,
		ColumnKindSubtable, ColumnKindSpline, ColumnKindVec2, ColumnKindVec3,
		ColumnKindVec4, ColumnKindColor, ColumnKindTextureAsset, ColumnKindMeshAsset,
		ColumnKindAudioAsset, ColumnKindUIAsset:
		return true
	default:
		return false
	}
}

func (k ColumnKind) String() string { return string(k) }

// IsAsset reports whether k is one of the asset-reference column kinds,
// which share the same String/Null acceptance rules as Text.
func (k ColumnKind) IsAsset() bool {
	switch k {
	case ColumnKindTextureAsset, ColumnKindMeshAsset, ColumnKindAudioAsset, ColumnKindUIAsset:
		return true
	default:
		return false
	}
}

// IsVector reports whether k is Vec2/Vec3/Vec4.
func (k ColumnKind) IsVector() bool {
	switch k {
	case ColumnKindVec2, ColumnKindVec3, ColumnKindVec4:
		return true
	default:
		return false
	}
}

// VectorDimension returns the number of components for Vec2/Vec3/Vec4/Color,
// or 0 if k is not a vector-like kind.
func (k ColumnKind) VectorDimension() int {
	switch k {
	case ColumnKindVec2:
		return 2
	case ColumnKindVec3:
		return 3
	case ColumnKindVec4, ColumnKindColor:
		return 4
	default:
		return 0
	}
}

// JoinKind distinguishes Inner from Left joins in a derived-table step.
type JoinKind string

const (
	JoinKindInner JoinKind = "inner"
	JoinKindLeft  JoinKind = "left"
)

// DerivedStepKind distinguishes Append from Join steps.
type DerivedStepKind string

const (
	DerivedStepAppend DerivedStepKind = "append"
	DerivedStepJoin   DerivedStepKind = "join"
)

// RowMatchState is the per-row diagnostic produced by the derived resolver's
// join steps. Zero value is Matched.
type RowMatchState int

const (
	RowMatched RowMatchState = iota
	RowNoMatch
	RowMultiMatch
	RowTypeMismatch
)

// Severity order: TypeMismatch > MultiMatch > NoMatch > Matched.
func (s RowMatchState) severity() int { return int(s) }

// Combine implements the monotonic-severity combination rule: the
// more severe of the two states wins.
func (s RowMatchState) Combine(other RowMatchState) RowMatchState {
	if other.severity() > s.severity() {
		return other
	}
	return s
}

func (s RowMatchState) String() string {
	switch s {
	case RowMatched:
		return "Matched"
	case RowNoMatch:
		return "NoMatch"
	case RowMultiMatch:
		return "MultiMatch"
	case RowTypeMismatch:
		return "TypeMismatch"
	default:
		return "Unknown"
	}
}

// ErrSentinel is the string stored in a cell's StringValue and FormulaError
// when evaluation fails.
const ErrSentinel = "#ERR"

// Common domain error codes.
const (
	ErrCodeInvalidInput     = "INVALID_INPUT"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeCyclicDependency = "CYCLIC_DEPENDENCY"
	ErrCodeInvalidState     = "INVALID_STATE"
	ErrCodeCompileFailed    = "COMPILE_FAILED"
)

// DomainError is a structural error: one that must propagate to the caller
// unchanged, as opposed to a per-cell/per-row error which is data.
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{Code: code, Message: message, Err: err}
}
