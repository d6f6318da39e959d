package derived

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docforge/formulacore/internal/domain"
)

type fakeLookup struct {
	tables map[domain.TableID]*domain.Table
}

func (f fakeLookup) TableByID(id domain.TableID) (*domain.Table, bool) {
	t, ok := f.tables[id]
	return t, ok
}

func newTextColumn(name string) *domain.Column {
	return &domain.Column{ID: uuid.New(), Name: name, Kind: domain.ColumnKindText}
}

func newNumberColumn(name string) *domain.Column {
	return &domain.Column{ID: uuid.New(), Name: name, Kind: domain.ColumnKindNumber}
}

func TestResolve_InnerJoin(t *testing.T) {
	usersDeptCol := newTextColumn("Dept")
	users := domain.NewTable(uuid.New(), "Users")
	users.Columns = []*domain.Column{usersDeptCol}
	u1, u2 := uuid.New(), uuid.New()
	users.Rows = []*domain.Row{
		{ID: u1, Cells: map[domain.ColumnID]domain.CellValue{usersDeptCol.ID: {StringValue: "Eng"}}},
		{ID: u2, Cells: map[domain.ColumnID]domain.CellValue{usersDeptCol.ID: {StringValue: "Sales"}}},
	}
	users.RefreshIndexes()

	deptsDeptCol := newTextColumn("Dept")
	deptsPayCol := newNumberColumn("Pay")
	depts := domain.NewTable(uuid.New(), "Depts")
	depts.Columns = []*domain.Column{deptsDeptCol, deptsPayCol}
	depts.Rows = []*domain.Row{
		{ID: uuid.New(), Cells: map[domain.ColumnID]domain.CellValue{
			deptsDeptCol.ID: {StringValue: "Eng"},
			deptsPayCol.ID:  {Number: 100},
		}},
	}
	depts.RefreshIndexes()

	outDeptCol := newTextColumn("Dept")
	outPayCol := newNumberColumn("Pay")
	derivedTable := domain.NewTable(uuid.New(), "D")
	derivedTable.Columns = []*domain.Column{outDeptCol, outPayCol}
	derivedTable.Derived = &domain.DerivedConfig{
		BaseTableID: users.ID,
		Steps: []domain.DerivedStep{
			{
				Kind:          domain.DerivedStepJoin,
				SourceTableID: depts.ID,
				JoinKind:      domain.JoinKindInner,
				KeyMappings:   []domain.KeyMapping{{DerivedColumnID: outDeptCol.ID, SourceColumnID: deptsDeptCol.ID}},
			},
		},
		Projections: []domain.Projection{
			{SourceTableID: users.ID, SourceColumnID: usersDeptCol.ID, OutputColumnID: outDeptCol.ID},
			{SourceTableID: depts.ID, SourceColumnID: deptsPayCol.ID, OutputColumnID: outPayCol.ID},
		},
	}
	derivedTable.RefreshIndexes()

	lookup := fakeLookup{tables: map[domain.TableID]*domain.Table{users.ID: users, depts.ID: depts}}

	result, err := Resolve(derivedTable, lookup)
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, 1, result.Diagnostics.Matched)
	assert.Equal(t, 0, result.Diagnostics.NoMatch)
	cell, ok := result.Rows[0].Get(outPayCol.ID)
	require.True(t, ok)
	assert.Equal(t, float64(100), cell.Number)
}

func TestResolve_LeftJoinKeepsNoMatch(t *testing.T) {
	usersDeptCol := newTextColumn("Dept")
	users := domain.NewTable(uuid.New(), "Users")
	users.Columns = []*domain.Column{usersDeptCol}
	users.Rows = []*domain.Row{
		{ID: uuid.New(), Cells: map[domain.ColumnID]domain.CellValue{usersDeptCol.ID: {StringValue: "Sales"}}},
	}
	users.RefreshIndexes()

	deptsDeptCol := newTextColumn("Dept")
	depts := domain.NewTable(uuid.New(), "Depts")
	depts.Columns = []*domain.Column{deptsDeptCol}
	depts.RefreshIndexes()

	outDeptCol := newTextColumn("Dept")
	derivedTable := domain.NewTable(uuid.New(), "D")
	derivedTable.Columns = []*domain.Column{outDeptCol}
	derivedTable.Derived = &domain.DerivedConfig{
		BaseTableID: users.ID,
		Steps: []domain.DerivedStep{
			{
				Kind:          domain.DerivedStepJoin,
				SourceTableID: depts.ID,
				JoinKind:      domain.JoinKindLeft,
				KeyMappings:   []domain.KeyMapping{{DerivedColumnID: outDeptCol.ID, SourceColumnID: deptsDeptCol.ID}},
			},
		},
		Projections: []domain.Projection{
			{SourceTableID: users.ID, SourceColumnID: usersDeptCol.ID, OutputColumnID: outDeptCol.ID},
		},
	}
	derivedTable.RefreshIndexes()

	lookup := fakeLookup{tables: map[domain.TableID]*domain.Table{users.ID: users, depts.ID: depts}}

	result, err := Resolve(derivedTable, lookup)
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, 1, result.Diagnostics.NoMatch)
}

func TestResolve_KeyKindMismatchMarksAllTypeMismatch(t *testing.T) {
	leftCol := newTextColumn("Key")
	users := domain.NewTable(uuid.New(), "Users")
	users.Columns = []*domain.Column{leftCol}
	users.Rows = []*domain.Row{
		{ID: uuid.New(), Cells: map[domain.ColumnID]domain.CellValue{leftCol.ID: {StringValue: "1"}}},
		{ID: uuid.New(), Cells: map[domain.ColumnID]domain.CellValue{leftCol.ID: {StringValue: "2"}}},
	}
	users.RefreshIndexes()

	rightCol := newNumberColumn("Key")
	depts := domain.NewTable(uuid.New(), "Depts")
	depts.Columns = []*domain.Column{rightCol}
	depts.Rows = []*domain.Row{
		{ID: uuid.New(), Cells: map[domain.ColumnID]domain.CellValue{rightCol.ID: {Number: 1}}},
	}
	depts.RefreshIndexes()

	outCol := newTextColumn("Key")
	derivedTable := domain.NewTable(uuid.New(), "D")
	derivedTable.Columns = []*domain.Column{outCol}
	derivedTable.Derived = &domain.DerivedConfig{
		BaseTableID: users.ID,
		Steps: []domain.DerivedStep{
			{
				Kind:          domain.DerivedStepJoin,
				SourceTableID: depts.ID,
				JoinKind:      domain.JoinKindInner,
				KeyMappings:   []domain.KeyMapping{{DerivedColumnID: outCol.ID, SourceColumnID: rightCol.ID}},
			},
		},
		Projections: []domain.Projection{
			{SourceTableID: users.ID, SourceColumnID: leftCol.ID, OutputColumnID: outCol.ID},
		},
	}
	derivedTable.RefreshIndexes()

	lookup := fakeLookup{tables: map[domain.TableID]*domain.Table{users.ID: users, depts.ID: depts}}

	result, err := Resolve(derivedTable, lookup)
	require.NoError(t, err)
	require.Len(t, result.Rows, 2)
	assert.Equal(t, 2, result.Diagnostics.TypeMismatch)
}

func TestResolve_FilterExpression(t *testing.T) {
	kindCol := newTextColumn("Kind")
	assets := domain.NewTable(uuid.New(), "Assets")
	assets.Columns = []*domain.Column{kindCol}
	assets.Rows = []*domain.Row{
		{ID: uuid.New(), Cells: map[domain.ColumnID]domain.CellValue{kindCol.ID: {StringValue: "Texture"}}},
		{ID: uuid.New(), Cells: map[domain.ColumnID]domain.CellValue{kindCol.ID: {StringValue: "Mesh"}}},
	}
	assets.RefreshIndexes()

	outKindCol := newTextColumn("Kind")
	derivedTable := domain.NewTable(uuid.New(), "D")
	derivedTable.Columns = []*domain.Column{outKindCol}
	derivedTable.Derived = &domain.DerivedConfig{
		BaseTableID:      assets.ID,
		FilterExpression: `thisRow.Kind == "Texture"`,
		Projections: []domain.Projection{
			{SourceTableID: assets.ID, SourceColumnID: kindCol.ID, OutputColumnID: outKindCol.ID},
		},
	}
	derivedTable.RefreshIndexes()

	lookup := fakeLookup{tables: map[domain.TableID]*domain.Table{assets.ID: assets}}

	result, err := Resolve(derivedTable, lookup)
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	cell, _ := result.Rows[0].Get(outKindCol.ID)
	assert.Equal(t, "Texture", cell.StringValue)
}

func TestResolve_MalformedFilterExpressionFiltersAllRows(t *testing.T) {
	kindCol := newTextColumn("Kind")
	assets := domain.NewTable(uuid.New(), "Assets")
	assets.Columns = []*domain.Column{kindCol}
	assets.Rows = []*domain.Row{
		{ID: uuid.New(), Cells: map[domain.ColumnID]domain.CellValue{kindCol.ID: {StringValue: "Texture"}}},
	}
	assets.RefreshIndexes()

	derivedTable := domain.NewTable(uuid.New(), "D")
	derivedTable.Columns = []*domain.Column{newTextColumn("Kind")}
	derivedTable.Derived = &domain.DerivedConfig{
		BaseTableID:      assets.ID,
		FilterExpression: `&& not valid`,
	}
	derivedTable.RefreshIndexes()

	lookup := fakeLookup{tables: map[domain.TableID]*domain.Table{assets.ID: assets}}

	result, err := Resolve(derivedTable, lookup)
	require.NoError(t, err)
	assert.Empty(t, result.Rows)
	assert.True(t, result.FilterCompileError)
}

func TestResolve_DeterministicRowIDs(t *testing.T) {
	assets := domain.NewTable(uuid.New(), "Assets")
	rowID := uuid.New()
	assets.Rows = []*domain.Row{{ID: rowID, Cells: map[domain.ColumnID]domain.CellValue{}}}
	assets.RefreshIndexes()

	derivedTable := domain.NewTable(uuid.New(), "D")
	derivedTable.Derived = &domain.DerivedConfig{BaseTableID: assets.ID}
	derivedTable.RefreshIndexes()

	lookup := fakeLookup{tables: map[domain.TableID]*domain.Table{assets.ID: assets}}

	r1, err := Resolve(derivedTable, lookup)
	require.NoError(t, err)
	r2, err := Resolve(derivedTable, lookup)
	require.NoError(t, err)
	require.Len(t, r1.Rows, 1)
	require.Len(t, r2.Rows, 1)
	assert.Equal(t, r1.Rows[0].ID, r2.Rows[0].ID)
}
