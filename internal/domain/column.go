package domain

// Column describes one field of a Table.
type Column struct {
	ID   ColumnID
	Name string
	Kind ColumnKind

	// FormulaExpr is the column-level formula expression for Formula-kind
	// (and formula-bearing) columns; empty for plain data columns.
	FormulaExpr string

	// RelationTargetTableID is the target table for Relation columns.
	RelationTargetTableID TableID

	// SubtableTargetTableID is the nested table for Subtable columns (used
	// by graph.in(...) edge lookups).
	SubtableTargetTableID TableID

	// Options lists the allowed values for Select columns.
	Options []string

	IsProjected bool
	IsHidden    bool
}

// AcceptsFormulaKind reports whether a FormulaValueKind can be converted to
// this column's Kind without producing the error sentinel, independent of
// the concrete value (used by callers that only need a compatibility
// check, e.g. projection congruence validation).
func (c *Column) AcceptsFormulaKind(k FormulaValueKind) bool {
	switch c.Kind {
	case ColumnKindNumber:
		return k == FVNumber
	case ColumnKindCheckbox:
		return k == FVBool
	case ColumnKindVec2, ColumnKindVec3, ColumnKindVec4, ColumnKindColor:
		return k.IsVector() && k.Dimension() >= c.Kind.VectorDimension()
	case ColumnKindText, ColumnKindSelect, ColumnKindID, ColumnKindTextureAsset,
		ColumnKindMeshAsset, ColumnKindAudioAsset, ColumnKindUIAsset, ColumnKindSpline:
		return k == FVString || k == FVNull
	case ColumnKindRelation:
		return k == FVRowReference || k == FVString
	case ColumnKindTableRef:
		return k == FVTableReference || k == FVString
	case ColumnKindFormula:
		return true
	default:
		return false
	}
}
