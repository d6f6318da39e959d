package evaluator

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docforge/formulacore/internal/domain"
	"github.com/docforge/formulacore/internal/fctx"
	"github.com/docforge/formulacore/internal/lang"
	"github.com/docforge/formulacore/internal/registry"
)

func compileOrFail(t *testing.T, expr string) *lang.Node {
	t.Helper()
	c := lang.Compile(expr, registry.Default().TracksFirstArgTable)
	require.True(t, c.Valid, "expected %q to compile", expr)
	return c.Root
}

func newNumberColumn(name string) *domain.Column {
	return &domain.Column{ID: uuid.New(), Name: name, Kind: domain.ColumnKindNumber}
}

func newTextColumn(name string) *domain.Column {
	return &domain.Column{ID: uuid.New(), Name: name, Kind: domain.ColumnKindText}
}

func TestEval_ArithmeticAndTruthiness(t *testing.T) {
	e := New(fctx.NewProjectContext(domain.NewProject("p")), registry.Default())
	v, err := e.EvalRoot(compileOrFail(t, "2 + 3 * 4"), domain.EvaluationFrame{})
	require.NoError(t, err)
	assert.Equal(t, domain.FVNumber, v.Kind)
	assert.InDelta(t, 14, v.Number, epsilon)

	v, err = e.EvalRoot(compileOrFail(t, `"a" + 1`), domain.EvaluationFrame{})
	require.NoError(t, err)
	assert.Equal(t, "a1", v.Str)

	v, err = e.EvalRoot(compileOrFail(t, "1 > 0 && 2 > 1"), domain.EvaluationFrame{})
	require.NoError(t, err)
	assert.True(t, v.Truthy())
}

func TestEval_ThisRowColumnAccess(t *testing.T) {
	col := newNumberColumn("Price")
	table := domain.NewTable(uuid.New(), "Items")
	table.Columns = []*domain.Column{col}
	row := domain.NewRow(uuid.New())
	row.Set(col.ID, domain.CellValue{Number: 9})
	table.Rows = []*domain.Row{row}
	table.RefreshIndexes()

	e := New(fctx.NewProjectContext(domain.NewProject("p")), registry.Default())
	v, err := e.EvalRoot(compileOrFail(t, "thisRow.Price * 2"), domain.RootFrame(table, row))
	require.NoError(t, err)
	assert.InDelta(t, 18, v.Number, epsilon)
}

func TestEval_TableVariableMemoizationAndCycle(t *testing.T) {
	table := domain.NewTable(uuid.New(), "T")
	table.Variables = []domain.TableVariable{
		{Name: "A", Expr: "thisTable.B + 1"},
		{Name: "B", Expr: "thisTable.A + 1"},
	}
	table.RefreshIndexes()

	project := domain.NewProject("p")
	project.Tables = []*domain.Table{table}
	project.RefreshIndexes()

	e := New(fctx.NewProjectContext(project), registry.Default())
	_, err := e.EvalRoot(compileOrFail(t, "thisTable.A"), domain.EvaluationFrame{CurrentTable: table})
	var cycleErr *CycleError
	require.Error(t, err)
	require.ErrorAs(t, err, &cycleErr)
}

func TestEval_TableVariableMemoizationReturnsCachedValue(t *testing.T) {
	calls := 0
	reg := registry.New()
	require.NoError(t, reg.Register("CountCall", false, func(args []domain.FormulaValue) (domain.FormulaValue, error) {
		calls++
		return domain.NewNumber(float64(calls)), nil
	}))

	table := domain.NewTable(uuid.New(), "T")
	table.Variables = []domain.TableVariable{{Name: "V", Expr: "CountCall()"}}
	table.RefreshIndexes()
	project := domain.NewProject("p")
	project.Tables = []*domain.Table{table}
	project.RefreshIndexes()

	e := New(fctx.NewProjectContext(project), reg)
	frame := domain.EvaluationFrame{CurrentTable: table}
	v1, err := e.EvalRoot(compileOrFail(t, "thisTable.V"), frame)
	require.NoError(t, err)
	v2, err := e.EvalRoot(compileOrFail(t, "thisTable.V"), frame)
	require.NoError(t, err)
	assert.Equal(t, v1.Number, v2.Number)
	assert.Equal(t, 1, calls)
}

func TestEval_DocumentVariableReferencesAnotherVariable(t *testing.T) {
	doc := &domain.Document{ID: uuid.New(), Title: "Doc", FileName: "doc.md"}
	doc.Blocks = domain.ParseDocumentBody("@price = 10\n@total = @price * 2")

	project := domain.NewProject("p")
	project.Documents = []*domain.Document{doc}
	project.RefreshIndexes()

	e := New(fctx.NewProjectContext(project), registry.Default())
	v, err := e.EvalRoot(compileOrFail(t, "@total"), domain.DocumentFrame(doc))
	require.NoError(t, err)
	assert.InDelta(t, 20, v.Number, epsilon)
}

func TestEval_PrecomputedDocumentVariableOverridesLazy(t *testing.T) {
	doc := &domain.Document{ID: uuid.New(), Title: "Doc", FileName: "doc.md"}
	doc.Blocks = domain.ParseDocumentBody("@price = 10")
	project := domain.NewProject("p")
	project.Documents = []*domain.Document{doc}
	project.RefreshIndexes()

	e := New(fctx.NewProjectContext(project), registry.Default())
	e.SetPrecomputedDocumentVariable(doc.ID, "price", domain.NewNumber(999), nil)

	v, err := e.EvalRoot(compileOrFail(t, "@price"), domain.DocumentFrame(doc))
	require.NoError(t, err)
	assert.InDelta(t, 999, v.Number, epsilon)
}

func TestEval_LookupCountIfSumIf(t *testing.T) {
	name := newTextColumn("Name")
	amount := newNumberColumn("Amount")
	table := domain.NewTable(uuid.New(), "Orders")
	table.Columns = []*domain.Column{name, amount}

	mk := func(n string, a float64) *domain.Row {
		r := domain.NewRow(uuid.New())
		r.Set(name.ID, domain.CellValue{StringValue: n})
		r.Set(amount.ID, domain.CellValue{Number: a})
		return r
	}
	table.Rows = []*domain.Row{mk("a", 1), mk("b", 2), mk("b", 3)}
	table.RefreshIndexes()

	project := domain.NewProject("p")
	project.Tables = []*domain.Table{table}
	project.RefreshIndexes()

	e := New(fctx.NewProjectContext(project), registry.Default())

	v, err := e.EvalRoot(compileOrFail(t, `CountIf(Orders, @Name == "b")`), domain.EvaluationFrame{})
	require.NoError(t, err)
	assert.InDelta(t, 2, v.Number, epsilon)

	v, err = e.EvalRoot(compileOrFail(t, `SumIf(Orders, @Name == "b", @Amount)`), domain.EvaluationFrame{})
	require.NoError(t, err)
	assert.InDelta(t, 5, v.Number, epsilon)

	v, err = e.EvalRoot(compileOrFail(t, `Lookup(Orders, @Name == "a", @Amount)`), domain.EvaluationFrame{})
	require.NoError(t, err)
	assert.InDelta(t, 1, v.Number, epsilon)
}

func TestEval_CollectionMethods(t *testing.T) {
	amount := newNumberColumn("Amount")
	table := domain.NewTable(uuid.New(), "Orders")
	table.Columns = []*domain.Column{amount}
	mk := func(a float64) *domain.Row {
		r := domain.NewRow(uuid.New())
		r.Set(amount.ID, domain.CellValue{Number: a})
		return r
	}
	table.Rows = []*domain.Row{mk(5), mk(1), mk(3)}
	table.RefreshIndexes()

	project := domain.NewProject("p")
	project.Tables = []*domain.Table{table}
	project.RefreshIndexes()

	e := New(fctx.NewProjectContext(project), registry.Default())

	v, err := e.EvalRoot(compileOrFail(t, `tables.Orders.Filter(@Amount > 2).Count()`), domain.EvaluationFrame{})
	require.NoError(t, err)
	assert.InDelta(t, 2, v.Number, epsilon)

	v, err = e.EvalRoot(compileOrFail(t, `tables.Orders.Sum(@Amount)`), domain.EvaluationFrame{})
	require.NoError(t, err)
	assert.InDelta(t, 9, v.Number, epsilon)

	v, err = e.EvalRoot(compileOrFail(t, `tables.Orders.Average(@Amount)`), domain.EvaluationFrame{})
	require.NoError(t, err)
	assert.InDelta(t, 3, v.Number, epsilon)
}

func TestEval_VariantMaterialization(t *testing.T) {
	name := newTextColumn("Name")
	table := domain.NewTable(uuid.New(), "Items")
	table.Columns = []*domain.Column{name}
	keptRow := domain.NewRow(uuid.New())
	keptRow.Set(name.ID, domain.CellValue{StringValue: "kept"})
	droppedRow := domain.NewRow(uuid.New())
	droppedRow.Set(name.ID, domain.CellValue{StringValue: "dropped"})
	table.Rows = []*domain.Row{keptRow, droppedRow}
	table.Variants = []domain.TableVariant{
		{
			ID:                "v1",
			Name:              "Variant1",
			DeletedBaseRowIDs: map[domain.RowID]struct{}{droppedRow.ID: {}},
			CellOverrides: []domain.CellOverride{
				{RowID: keptRow.ID, ColumnID: name.ID, Value: domain.CellValue{StringValue: "overridden"}},
			},
		},
	}
	table.RefreshIndexes()

	project := domain.NewProject("p")
	project.Tables = []*domain.Table{table}
	project.RefreshIndexes()

	e := New(fctx.NewProjectContext(project), registry.Default())
	v, err := e.EvalRoot(compileOrFail(t, `tables.Items.Variant("v1").Count()`), domain.EvaluationFrame{})
	require.NoError(t, err)
	assert.InDelta(t, 1, v.Number, epsilon)

	variantVal, err := e.EvalRoot(compileOrFail(t, `tables.Items.Variant("v1")`), domain.EvaluationFrame{})
	require.NoError(t, err)
	vt, ok := e.tableByID(variantVal.Table.TableID)
	require.True(t, ok)
	cell, _ := vt.Rows[0].Get(name.ID)
	assert.Equal(t, "overridden", cell.StringValue)
}

func TestEval_VectorArithmetic(t *testing.T) {
	e := New(fctx.NewProjectContext(domain.NewProject("p")), registry.Default())
	v, err := e.EvalRoot(compileOrFail(t, "Vec2(1, 2) + Vec2(3, 4)"), domain.EvaluationFrame{})
	require.NoError(t, err)
	assert.Equal(t, domain.FVVec2, v.Kind)
	assert.InDelta(t, 4, v.X, epsilon)
	assert.InDelta(t, 6, v.Y, epsilon)

	v, err = e.EvalRoot(compileOrFail(t, "Vec2(1, 2) * 3"), domain.EvaluationFrame{})
	require.NoError(t, err)
	assert.InDelta(t, 3, v.X, epsilon)
	assert.InDelta(t, 6, v.Y, epsilon)
}

func TestEval_DivisionByNearZeroIsNull(t *testing.T) {
	e := New(fctx.NewProjectContext(domain.NewProject("p")), registry.Default())
	v, err := e.EvalRoot(compileOrFail(t, "1 / 0"), domain.EvaluationFrame{})
	require.NoError(t, err)
	assert.Equal(t, domain.FVNull, v.Kind)
}

func TestEval_ConditionalExpression(t *testing.T) {
	e := New(fctx.NewProjectContext(domain.NewProject("p")), registry.Default())
	v, err := e.EvalRoot(compileOrFail(t, `1 > 0 ? "yes" : "no"`), domain.EvaluationFrame{})
	require.NoError(t, err)
	assert.Equal(t, "yes", v.Str)
}

func TestEval_StringOrderingFallsBackToCaseInsensitiveCompare(t *testing.T) {
	e := New(fctx.NewProjectContext(domain.NewProject("p")), registry.Default())
	v, err := e.EvalRoot(compileOrFail(t, `"apple" < "banana"`), domain.EvaluationFrame{})
	require.NoError(t, err)
	assert.True(t, v.Truthy())

	v, err = e.EvalRoot(compileOrFail(t, `"APPLE" < "apple"`), domain.EvaluationFrame{})
	require.NoError(t, err)
	assert.False(t, v.Truthy(), "case-insensitive compare treats equal strings as not less-than")
}
