package formulacore_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docforge/formulacore"
)

func TestEngine_EvaluateProject_ViaFacade(t *testing.T) {
	price := &formulacore.Column{ID: uuid.New(), Name: "Price", Kind: formulacore.ColumnKindNumber}
	total := &formulacore.Column{ID: uuid.New(), Name: "Total", Kind: formulacore.ColumnKindNumber}

	items := formulacore.NewTable(uuid.New(), "Items")
	items.Columns = []*formulacore.Column{price, total}

	row := formulacore.NewRow(uuid.New())
	row.Set(price.ID, formulacore.CellValue{Number: 5})
	row.Set(total.ID, formulacore.CellValue{FormulaExpr: "thisRow.Price * 2"})
	items.Rows = []*formulacore.Row{row}
	items.RefreshIndexes()

	project := formulacore.NewProject("p")
	project.Tables = []*formulacore.Table{items}
	project.RefreshIndexes()

	e := formulacore.New()
	metrics, err := e.EvaluateProject(project, formulacore.Full())
	require.NoError(t, err)
	assert.Equal(t, 1, metrics.EvaluatedTableCount)

	cell, ok := row.Get(total.ID)
	require.True(t, ok)
	assert.InDelta(t, 10, cell.Number, 1e-9)
}
