package engine

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docforge/formulacore/internal/domain"
)

func newNumberColumn(name string) *domain.Column {
	return &domain.Column{ID: uuid.New(), Name: name, Kind: domain.ColumnKindNumber}
}

func newFormulaColumn(name, expr string) *domain.Column {
	return &domain.Column{ID: uuid.New(), Name: name, Kind: domain.ColumnKindFormula, FormulaExpr: expr}
}

func TestEvaluateProject_SimpleFormula(t *testing.T) {
	price := newNumberColumn("Price")
	qty := newNumberColumn("Qty")
	total := newNumberColumn("Total")

	items := domain.NewTable(uuid.New(), "Items")
	items.Columns = []*domain.Column{price, qty, total}
	row := domain.NewRow(uuid.New())
	row.Set(price.ID, domain.CellValue{Number: 3})
	row.Set(qty.ID, domain.CellValue{Number: 4})
	row.Set(total.ID, domain.CellValue{FormulaExpr: "thisRow.Price * thisRow.Qty"})
	items.Rows = []*domain.Row{row}
	items.RefreshIndexes()

	project := domain.NewProject("p")
	project.Tables = []*domain.Table{items}
	project.RefreshIndexes()

	e := New()
	metrics, err := e.EvaluateProject(project, Full())
	require.NoError(t, err)
	assert.Equal(t, 1, metrics.EvaluatedTableCount)
	assert.False(t, metrics.UsedIncrementalPlan)

	cell, ok := row.Get(total.ID)
	require.True(t, ok)
	assert.InDelta(t, 12, cell.Number, 1e-9)
}

func TestEvaluateProject_CrossTableReference(t *testing.T) {
	bTable := domain.NewTable(uuid.New(), "B")
	bTable.Variables = []domain.TableVariable{{Name: "Value", Expr: "7"}}
	bTable.RefreshIndexes()

	aCol := newNumberColumn("F")
	aTable := domain.NewTable(uuid.New(), "A")
	aTable.Columns = []*domain.Column{aCol}
	aRow := domain.NewRow(uuid.New())
	aRow.Set(aCol.ID, domain.CellValue{FormulaExpr: "tables.B.Value"})
	aTable.Rows = []*domain.Row{aRow}
	aTable.RefreshIndexes()

	project := domain.NewProject("p")
	project.Tables = []*domain.Table{aTable, bTable}
	project.RefreshIndexes()

	e := New()
	_, err := e.EvaluateProject(project, Full())
	require.NoError(t, err)

	cell, ok := aRow.Get(aCol.ID)
	require.True(t, ok)
	assert.InDelta(t, 7, cell.Number, 1e-9)
}

func TestEvaluateProject_CycleAbortsWholeCall(t *testing.T) {
	aID, bID := uuid.New(), uuid.New()

	a := domain.NewTable(aID, "A")
	a.Columns = []*domain.Column{newFormulaColumn("F", "tables.B.F")}
	a.Rows = []*domain.Row{domain.NewRow(uuid.New())}
	a.RefreshIndexes()

	b := domain.NewTable(bID, "B")
	b.Columns = []*domain.Column{newFormulaColumn("F", "tables.A.F")}
	b.Rows = []*domain.Row{domain.NewRow(uuid.New())}
	b.RefreshIndexes()

	project := domain.NewProject("p")
	project.Tables = []*domain.Table{a, b}
	project.RefreshIndexes()

	e := New()
	_, err := e.EvaluateProject(project, Full())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "table:")
}

func TestEvaluateProject_IncrementalSkipsUnaffectedTables(t *testing.T) {
	aCol := newNumberColumn("F")
	aTable := domain.NewTable(uuid.New(), "A")
	aTable.Columns = []*domain.Column{aCol}
	aRow := domain.NewRow(uuid.New())
	aRow.Set(aCol.ID, domain.CellValue{FormulaExpr: "1 + 1"})
	aTable.Rows = []*domain.Row{aRow}
	aTable.RefreshIndexes()

	bCol := newNumberColumn("F")
	bTable := domain.NewTable(uuid.New(), "B")
	bTable.Columns = []*domain.Column{bCol}
	bRow := domain.NewRow(uuid.New())
	bRow.Set(bCol.ID, domain.CellValue{FormulaExpr: "2 + 2"})
	bTable.Rows = []*domain.Row{bRow}
	bTable.RefreshIndexes()

	project := domain.NewProject("p")
	project.Tables = []*domain.Table{aTable, bTable}
	project.RefreshIndexes()

	e := New()
	_, err := e.EvaluateProject(project, Full())
	require.NoError(t, err)

	// mutate B's formula behind the engine's back and request an
	// incremental pass naming only A as dirty; B must not be touched.
	existing, _ := bRow.Get(bCol.ID)
	existing.FormulaExpr = "99"
	bRow.Set(bCol.ID, existing)

	metrics, err := e.EvaluateProject(project, Incremental([]domain.TableID{aTable.ID}))
	require.NoError(t, err)
	assert.True(t, metrics.UsedIncrementalPlan)
	assert.Equal(t, 1, metrics.EvaluatedTableCount)

	cell, _ := bRow.Get(bCol.ID)
	assert.InDelta(t, 4, cell.Number, 1e-9, "table B should not have been re-evaluated")
}

func TestEvaluateProject_RuntimeVariableCycleAborts(t *testing.T) {
	// thisTable.A/B self-reference within one table produces no structural
	// edge (only cross-table refs do), so this cycle only surfaces at
	// runtime via the evaluator's memoization guard.
	table := domain.NewTable(uuid.New(), "T")
	table.Variables = []domain.TableVariable{
		{Name: "A", Expr: "thisTable.B + 1"},
		{Name: "B", Expr: "thisTable.A + 1"},
	}
	col := newFormulaColumn("F", "thisTable.A")
	table.Columns = []*domain.Column{col}
	table.Rows = []*domain.Row{domain.NewRow(uuid.New())}
	table.RefreshIndexes()

	project := domain.NewProject("p")
	project.Tables = []*domain.Table{table}
	project.RefreshIndexes()

	e := New()
	_, err := e.EvaluateProject(project, Full())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle detected")
}

func TestEvaluateProject_DocumentVariableCycle(t *testing.T) {
	doc := &domain.Document{ID: uuid.New(), Title: "Doc", FileName: "doc.md"}
	doc.Blocks = domain.ParseDocumentBody("@price = @tax * 5\n@tax = @price * 2")

	project := domain.NewProject("p")
	project.Documents = []*domain.Document{doc}
	project.RefreshIndexes()

	e := New()
	_, err := e.EvaluateProject(project, Full())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "docvar:")
}

func TestEvaluateProject_ConcurrentCallRejected(t *testing.T) {
	project := domain.NewProject("p")
	project.RefreshIndexes()

	e := New()
	e.evalMu.Lock()
	defer e.evalMu.Unlock()

	_, err := e.EvaluateProject(project, Full())
	assert.ErrorIs(t, err, ErrConcurrentEvaluation)
}

func TestEngine_Explain(t *testing.T) {
	col := newFormulaColumn("Total", "thisRow.Price * tables.B.Rate")
	table := domain.NewTable(uuid.New(), "Items")
	table.Columns = []*domain.Column{col}
	table.RefreshIndexes()

	b := domain.NewTable(uuid.New(), "B")
	b.RefreshIndexes()

	project := domain.NewProject("p")
	project.Tables = []*domain.Table{table, b}
	project.RefreshIndexes()

	e := New()
	_, err := e.EvaluateProject(project, Full())
	require.NoError(t, err)

	chain, err := e.Explain(table.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"B"}, chain)

	chain, err = e.Explain(b.ID)
	require.NoError(t, err)
	assert.Empty(t, chain)
}

func TestEngine_Explain_UnknownTable(t *testing.T) {
	project := domain.NewProject("p")
	project.RefreshIndexes()

	e := New()
	_, err := e.EvaluateProject(project, Full())
	require.NoError(t, err)

	_, err = e.Explain(uuid.New())
	assert.Error(t, err)
}
