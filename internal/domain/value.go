package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FormulaValueKind tags the variant carried by a FormulaValue.
type FormulaValueKind int

const (
	FVNull FormulaValueKind = iota
	FVNumber
	FVString
	FVBool
	FVVec2
	FVVec3
	FVVec4
	FVColor
	FVDateTime
	FVRowReference
	FVTableReference
	FVDocumentReference
	FVRowCollection
)

func (k FormulaValueKind) String() string {
	switch k {
	case FVNull:
		return "Null"
	case FVNumber:
		return "Number"
	case FVString:
		return "String"
	case FVBool:
		return "Bool"
	case FVVec2:
		return "Vec2"
	case FVVec3:
		return "Vec3"
	case FVVec4:
		return "Vec4"
	case FVColor:
		return "Color"
	case FVDateTime:
		return "DateTime"
	case FVRowReference:
		return "RowReference"
	case FVTableReference:
		return "TableReference"
	case FVDocumentReference:
		return "DocumentReference"
	case FVRowCollection:
		return "RowCollection"
	default:
		return "Unknown"
	}
}

// IsVector reports whether k carries X/Y/Z/W components (Vec2/3/4 or Color).
func (k FormulaValueKind) IsVector() bool {
	switch k {
	case FVVec2, FVVec3, FVVec4, FVColor:
		return true
	default:
		return false
	}
}

// Dimension returns the component count for vector/color kinds, else 0.
func (k FormulaValueKind) Dimension() int {
	switch k {
	case FVVec2:
		return 2
	case FVVec3:
		return 3
	case FVVec4, FVColor:
		return 4
	default:
		return 0
	}
}

// RowReference identifies a row within a table.
type RowReference struct {
	TableID TableID
	RowID   RowID
}

// TableReference identifies a table.
type TableReference struct {
	TableID TableID
}

// DocumentReference identifies a document.
type DocumentReference struct {
	DocumentID DocumentID
}

// FormulaValue is the tagged union produced by compiling and evaluating an
// expression. Only the fields matching Kind are meaningful.
type FormulaValue struct {
	Kind FormulaValueKind

	Number float64
	Str    string
	Bool   bool

	X, Y, Z, W float64

	Time time.Time

	Row      RowReference
	Table    TableReference
	Document DocumentReference
	Rows     []RowReference
}

func Null() FormulaValue                   { return FormulaValue{Kind: FVNull} }
func NewNumber(n float64) FormulaValue     { return FormulaValue{Kind: FVNumber, Number: n} }
func NewString(s string) FormulaValue      { return FormulaValue{Kind: FVString, Str: s} }
func NewBool(b bool) FormulaValue          { return FormulaValue{Kind: FVBool, Bool: b} }
func NewDateTime(t time.Time) FormulaValue { return FormulaValue{Kind: FVDateTime, Time: t} }
func NewVec2(x, y float64) FormulaValue    { return FormulaValue{Kind: FVVec2, X: x, Y: y} }
func NewVec3(x, y, z float64) FormulaValue { return FormulaValue{Kind: FVVec3, X: x, Y: y, Z: z} }
func NewVec4(x, y, z, w float64) FormulaValue {
	return FormulaValue{Kind: FVVec4, X: x, Y: y, Z: z, W: w}
}
func NewColor(r, g, b, a float64) FormulaValue {
	return FormulaValue{Kind: FVColor, X: r, Y: g, Z: b, W: a}
}
func NewRowReference(tableID TableID, rowID RowID) FormulaValue {
	return FormulaValue{Kind: FVRowReference, Row: RowReference{TableID: tableID, RowID: rowID}}
}
func NewTableReference(tableID TableID) FormulaValue {
	return FormulaValue{Kind: FVTableReference, Table: TableReference{TableID: tableID}}
}
func NewDocumentReference(docID DocumentID) FormulaValue {
	return FormulaValue{Kind: FVDocumentReference, Document: DocumentReference{DocumentID: docID}}
}
func NewRowCollection(rows []RowReference) FormulaValue {
	return FormulaValue{Kind: FVRowCollection, Rows: rows}
}

// IsNull reports whether v is the Null variant.
func (v FormulaValue) IsNull() bool { return v.Kind == FVNull }

const truthyEpsilon = 1e-6

// Truthy implements the shared truthiness rules used by && / || and If()
//: bools as-is, numbers truthy iff |x| > epsilon, strings truthy iff
// non-blank, everything else (including Null) falsy.
func (v FormulaValue) Truthy() bool {
	switch v.Kind {
	case FVBool:
		return v.Bool
	case FVNumber:
		return abs(v.Number) > truthyEpsilon
	case FVString:
		return strings.TrimSpace(v.Str) != ""
	default:
		return false
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// Stringify renders v using invariant-culture-equivalent formatting, used
// for legacy Formula-kind columns and for equality fallback.
func (v FormulaValue) Stringify() string {
	switch v.Kind {
	case FVNull:
		return ""
	case FVNumber:
		return strconv.FormatFloat(v.Number, 'G', -1, 64)
	case FVString:
		return v.Str
	case FVBool:
		if v.Bool {
			return "True"
		}
		return "False"
	case FVVec2:
		return fmt.Sprintf("(%s, %s)", formatComponent(v.X), formatComponent(v.Y))
	case FVVec3:
		return fmt.Sprintf("(%s, %s, %s)", formatComponent(v.X), formatComponent(v.Y), formatComponent(v.Z))
	case FVVec4:
		return fmt.Sprintf("(%s, %s, %s, %s)", formatComponent(v.X), formatComponent(v.Y), formatComponent(v.Z), formatComponent(v.W))
	case FVColor:
		return fmt.Sprintf("rgba(%s, %s, %s, %s)", formatComponent(v.X), formatComponent(v.Y), formatComponent(v.Z), formatComponent(v.W))
	case FVDateTime:
		return v.Time.Format("2006-01-02")
	case FVRowReference:
		return v.Row.RowID.String()
	case FVTableReference:
		return v.Table.TableID.String()
	case FVDocumentReference:
		return v.Document.DocumentID.String()
	case FVRowCollection:
		return fmt.Sprintf("<%d rows>", len(v.Rows))
	default:
		return ""
	}
}

func formatComponent(f float64) string {
	return strconv.FormatFloat(f, 'G', -1, 64)
}

// CellValue is what a Row stores for one Column.
type CellValue struct {
	Number      float64
	StringValue string
	Bool        bool
	X, Y, Z, W  float64

	// FormulaExpr is the original "=..." expression text, when the cell
	// carries a per-cell formula override.
	FormulaExpr string

	// FormulaError is the "#ERR" sentinel when evaluation/conversion failed;
	// empty otherwise.
	FormulaError string
}

// IsError reports whether the cell carries the error sentinel.
func (c CellValue) IsError() bool { return c.FormulaError == ErrSentinel }

// ErrorCell builds the error sentinel cell, optionally preserving the
// originating expression text for display/debugging.
func ErrorCell(expr string) CellValue {
	return CellValue{StringValue: ErrSentinel, FormulaError: ErrSentinel, FormulaExpr: expr}
}

// RelationResolver validates relation/table references during cell
// conversion; supplied by the caller's FormulaContext implementation.
type RelationResolver interface {
	RowExists(tableID TableID, rowID RowID) bool
	TableExists(tableID TableID) bool
}

// ConvertToCell converts a FormulaValue into a CellValue, driven by the
// target column's Kind, per each kind's accept-set rules. An incompatible
// formula-value kind produces the error sentinel. targetTableID is the
// column's relation/table-ref target (ignored for other kinds).
func ConvertToCell(kind ColumnKind, targetTableID TableID, expr string, v FormulaValue, resolver RelationResolver) CellValue {
	switch kind {
	case ColumnKindNumber:
		if v.Kind == FVNumber {
			return CellValue{Number: v.Number, FormulaExpr: expr}
		}
		return ErrorCell(expr)

	case ColumnKindCheckbox:
		if v.Kind == FVBool {
			return CellValue{Bool: v.Bool, FormulaExpr: expr}
		}
		return ErrorCell(expr)

	case ColumnKindVec2, ColumnKindVec3, ColumnKindVec4, ColumnKindColor:
		return convertVectorCell(kind, expr, v)

	case ColumnKindText, ColumnKindSelect, ColumnKindID, ColumnKindTextureAsset,
		ColumnKindMeshAsset, ColumnKindAudioAsset, ColumnKindUIAsset, ColumnKindSpline:
		switch v.Kind {
		case FVString:
			return CellValue{StringValue: v.Str, FormulaExpr: expr}
		case FVNull:
			return CellValue{StringValue: "", FormulaExpr: expr}
		default:
			return ErrorCell(expr)
		}

	case ColumnKindRelation:
		return convertRelationCell(targetTableID, expr, v, resolver)

	case ColumnKindTableRef:
		return convertTableRefCell(expr, v, resolver)

	case ColumnKindFormula:
		if v.Kind == FVNull {
			return CellValue{StringValue: "", FormulaExpr: expr}
		}
		return CellValue{StringValue: v.Stringify(), FormulaExpr: expr}

	default:
		return ErrorCell(expr)
	}
}

func convertVectorCell(kind ColumnKind, expr string, v FormulaValue) CellValue {
	want := kind.VectorDimension()
	if !v.Kind.IsVector() {
		return ErrorCell(expr)
	}
	got := v.Kind.Dimension()
	// Vectors accept same-or-wider vector/color values by truncation, but a
	// plain Vec kind never accepts Color and vice versa unless dimensions
	// allow truncation (wider vector/color values truncate down).
	if got < want {
		return ErrorCell(expr)
	}
	cell := CellValue{FormulaExpr: expr}
	if want >= 1 {
		cell.X = v.X
	}
	if want >= 2 {
		cell.Y = v.Y
	}
	if want >= 3 {
		cell.Z = v.Z
	}
	if want >= 4 {
		cell.W = v.W
	}
	return cell
}

func convertRelationCell(targetTableID TableID, expr string, v FormulaValue, resolver RelationResolver) CellValue {
	switch v.Kind {
	case FVRowReference:
		if v.Row.TableID != targetTableID {
			return ErrorCell(expr)
		}
		return CellValue{StringValue: v.Row.RowID.String(), FormulaExpr: expr}
	case FVString:
		rowID, err := uuid.Parse(v.Str)
		if err != nil {
			return ErrorCell(expr)
		}
		if resolver != nil && !resolver.RowExists(targetTableID, rowID) {
			return ErrorCell(expr)
		}
		return CellValue{StringValue: v.Str, FormulaExpr: expr}
	default:
		return ErrorCell(expr)
	}
}

func convertTableRefCell(expr string, v FormulaValue, resolver RelationResolver) CellValue {
	switch v.Kind {
	case FVTableReference:
		if resolver != nil && !resolver.TableExists(v.Table.TableID) {
			return ErrorCell(expr)
		}
		return CellValue{StringValue: v.Table.TableID.String(), FormulaExpr: expr}
	case FVString:
		return CellValue{StringValue: v.Str, FormulaExpr: expr}
	default:
		return ErrorCell(expr)
	}
}

// ConvertToFormulaValue is the inverse of ConvertToCell, used by the
// evaluator to read a cell's stored value as a FormulaValue and by the
// round-trip law: converting a valid cell to a formula value and back is
// the identity.
func ConvertToFormulaValue(kind ColumnKind, cell CellValue) FormulaValue {
	switch kind {
	case ColumnKindNumber:
		return NewNumber(cell.Number)
	case ColumnKindCheckbox:
		return NewBool(cell.Bool)
	case ColumnKindVec2:
		return NewVec2(cell.X, cell.Y)
	case ColumnKindVec3:
		return NewVec3(cell.X, cell.Y, cell.Z)
	case ColumnKindVec4:
		return NewVec4(cell.X, cell.Y, cell.Z, cell.W)
	case ColumnKindColor:
		return NewColor(cell.X, cell.Y, cell.Z, cell.W)
	case ColumnKindText, ColumnKindSelect, ColumnKindID, ColumnKindTextureAsset,
		ColumnKindMeshAsset, ColumnKindAudioAsset, ColumnKindUIAsset, ColumnKindSpline,
		ColumnKindFormula, ColumnKindRelation, ColumnKindTableRef:
		if cell.IsError() {
			return Null()
		}
		return NewString(cell.StringValue)
	default:
		return Null()
	}
}
