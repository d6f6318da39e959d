package domain

import "strings"

// TableVariable is a named table-level expression.
type TableVariable struct {
	Name string
	Expr string
}

// Projection maps one source column into a derived table's output column.
type Projection struct {
	SourceTableID  TableID
	SourceColumnID ColumnID
	OutputColumnID ColumnID
	RenameAlias    string
}

// KeyMapping pairs a derived-side column with the source-side join key
// column it must match. A DerivedStep carries 1-3 of these.
type KeyMapping struct {
	DerivedColumnID ColumnID
	SourceColumnID  ColumnID
}

// DerivedStep is one Append or Join stage of a derived table's pipeline.
type DerivedStep struct {
	Kind DerivedStepKind

	// ID overrides the origin id used to build OutRowKey for Append steps;
	// if empty, SourceTableID is used.
	ID string

	SourceTableID TableID
	JoinKind      JoinKind
	KeyMappings   []KeyMapping
}

// DerivedConfig configures a derived table's Append/Join/Filter pipeline.
type DerivedConfig struct {
	BaseTableID TableID // NilID if none

	Steps []DerivedStep

	Projections           []Projection
	SuppressedProjections []Projection

	FilterExpression string
}

// CellOverride is one cell-level edit applied by a table variant.
type CellOverride struct {
	RowID    RowID
	ColumnID ColumnID
	Value    CellValue
}

// TableVariant is a named delta over a base table's rows: some
// base rows are hidden, some rows are added, and some cells are overridden.
type TableVariant struct {
	ID                string
	Name              string
	DeletedBaseRowIDs map[RowID]struct{}
	AddedRows         []*Row
	CellOverrides     []CellOverride
}

// Table is the central spreadsheet entity: an ordered set of columns and
// rows, optionally materialized from a DerivedConfig pipeline, optionally
// bound as a parent's subtable.
type Table struct {
	ID      TableID
	Name    string
	Columns []*Column
	Rows    []*Row

	Derived *DerivedConfig

	// ParentTableID/ParentRowColumnID bind this table as a subtable of a
	// parent row's column. NilID when this table is not a subtable.
	ParentTableID     TableID
	ParentRowColumnID ColumnID

	Variables []TableVariable
	Variants  []TableVariant

	// indexes, built by RefreshIndexes; nil until first built.
	columnByID   map[ColumnID]*Column
	columnByName map[string]*Column // lower-cased name -> first match
	rowByID      map[RowID]int      // row id -> 0-based slice index
}

// NewTable constructs an empty table with the given identity.
func NewTable(id TableID, name string) *Table {
	t := &Table{ID: id, Name: name}
	t.RefreshIndexes()
	return t
}

// RefreshIndexes rebuilds the table's per-id/per-name lookup indexes; call
// after mutating Columns or Rows.
func (t *Table) RefreshIndexes() {
	t.columnByID = make(map[ColumnID]*Column, len(t.Columns))
	t.columnByName = make(map[string]*Column, len(t.Columns))
	for _, c := range t.Columns {
		t.columnByID[c.ID] = c
		key := strings.ToLower(c.Name)
		if _, exists := t.columnByName[key]; !exists {
			t.columnByName[key] = c
		}
	}
	t.rowByID = make(map[RowID]int, len(t.Rows))
	for i, r := range t.Rows {
		t.rowByID[r.ID] = i
	}
}

// ColumnByID looks up a column by id.
func (t *Table) ColumnByID(id ColumnID) (*Column, bool) {
	c, ok := t.columnByID[id]
	return c, ok
}

// ColumnByName looks up a column by case-insensitive name; first match wins
// when names collide.
func (t *Table) ColumnByName(name string) (*Column, bool) {
	c, ok := t.columnByName[strings.ToLower(name)]
	return c, ok
}

// RowByID looks up a row by id.
func (t *Table) RowByID(id RowID) (*Row, bool) {
	idx, ok := t.rowByID[id]
	if !ok {
		return nil, false
	}
	return t.Rows[idx], true
}

// RowIndex1 returns the 1-based ordinal position of rowID within the
// table, or 0 if not found.
func (t *Table) RowIndex1(rowID RowID) int {
	idx, ok := t.rowByID[rowID]
	if !ok {
		return 0
	}
	return idx + 1
}

// IsSubtable reports whether this table is bound to a parent row's column.
func (t *Table) IsSubtable() bool {
	return t.ParentTableID != NilID
}

// IsDerived reports whether this table materializes from a DerivedConfig.
func (t *Table) IsDerived() bool {
	return t.Derived != nil
}

// VariableExpr returns the expression for a named table variable.
func (t *Table) VariableExpr(name string) (string, bool) {
	for _, v := range t.Variables {
		if strings.EqualFold(v.Name, name) {
			return v.Expr, true
		}
	}
	return "", false
}

// RowDisplayLabel returns the first non-empty cell among columns of kind
// Id/Text/Select/TableRef/asset/Formula, else the row id string.
func (t *Table) RowDisplayLabel(row *Row) string {
	for _, c := range t.Columns {
		switch c.Kind {
		case ColumnKindID, ColumnKindText, ColumnKindSelect, ColumnKindTableRef,
			ColumnKindTextureAsset, ColumnKindMeshAsset, ColumnKindAudioAsset,
			ColumnKindUIAsset, ColumnKindFormula:
			if cell, ok := row.Get(c.ID); ok && cell.StringValue != "" {
				return cell.StringValue
			}
		}
	}
	return row.ID.String()
}
