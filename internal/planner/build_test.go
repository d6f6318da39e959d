package planner

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docforge/formulacore/internal/domain"
	"github.com/docforge/formulacore/internal/fctx"
	"github.com/docforge/formulacore/internal/registry"
)

func newFormulaColumn(name, expr string) *domain.Column {
	return &domain.Column{ID: uuid.New(), Name: name, Kind: domain.ColumnKindFormula, FormulaExpr: expr}
}

func TestBuild_SimpleTableReferenceEdge(t *testing.T) {
	b := domain.NewTable(uuid.New(), "B")
	b.RefreshIndexes()

	aFormula := newFormulaColumn("F", "tables.B.Name")
	a := domain.NewTable(uuid.New(), "A")
	a.Columns = []*domain.Column{aFormula}
	a.RefreshIndexes()

	project := domain.NewProject("p")
	project.Tables = []*domain.Table{a, b}
	project.RefreshIndexes()

	ctx := fctx.NewProjectContext(project)
	plan, err := Build(project, ctx, registry.Default())
	require.NoError(t, err)

	bIdx := indexOf(plan.OrderedNodeIDs, TableNodeID(b.ID))
	aIdx := indexOf(plan.OrderedNodeIDs, TableNodeID(a.ID))
	require.GreaterOrEqual(t, bIdx, 0)
	require.GreaterOrEqual(t, aIdx, 0)
	assert.Less(t, bIdx, aIdx)
}

func TestBuild_CycleDetected(t *testing.T) {
	aID, bID := uuid.New(), uuid.New()

	a := domain.NewTable(aID, "A")
	a.Columns = []*domain.Column{newFormulaColumn("F", "tables.B.X")}
	a.RefreshIndexes()

	b := domain.NewTable(bID, "B")
	b.Columns = []*domain.Column{newFormulaColumn("F", "tables.A.X")}
	b.RefreshIndexes()

	project := domain.NewProject("p")
	project.Tables = []*domain.Table{a, b}
	project.RefreshIndexes()

	ctx := fctx.NewProjectContext(project)
	_, err := Build(project, ctx, registry.Default())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "table:")
}

func TestBuild_DocumentVariableEdge(t *testing.T) {
	doc := &domain.Document{ID: uuid.New(), Title: "Doc", FileName: "doc.md"}
	doc.Blocks = domain.ParseDocumentBody("@price = 10\n@tax = @price * 0.2")

	project := domain.NewProject("p")
	project.Documents = []*domain.Document{doc}
	project.RefreshIndexes()

	ctx := fctx.NewProjectContext(project)
	plan, err := Build(project, ctx, registry.Default())
	require.NoError(t, err)

	priceNode := DocVarNodeID(doc.ID, "price")
	taxNode := DocVarNodeID(doc.ID, "tax")
	assert.Less(t, indexOf(plan.OrderedNodeIDs, priceNode), indexOf(plan.OrderedNodeIDs, taxNode))
}

func TestBuild_DerivedTableEdges(t *testing.T) {
	base := domain.NewTable(uuid.New(), "Base")
	base.RefreshIndexes()
	joined := domain.NewTable(uuid.New(), "Joined")
	joined.RefreshIndexes()

	derivedTable := domain.NewTable(uuid.New(), "D")
	derivedTable.Derived = &domain.DerivedConfig{
		BaseTableID: base.ID,
		Steps: []domain.DerivedStep{
			{Kind: domain.DerivedStepJoin, SourceTableID: joined.ID, JoinKind: domain.JoinKindInner},
		},
	}
	derivedTable.RefreshIndexes()

	project := domain.NewProject("p")
	project.Tables = []*domain.Table{base, joined, derivedTable}
	project.RefreshIndexes()

	ctx := fctx.NewProjectContext(project)
	plan, err := Build(project, ctx, registry.Default())
	require.NoError(t, err)

	dNode := TableNodeID(derivedTable.ID)
	assert.Contains(t, plan.DependenciesByNode[dNode], TableNodeID(base.ID))
	assert.Contains(t, plan.DependenciesByNode[dNode], TableNodeID(joined.ID))
}

func indexOf(list []string, target string) int {
	for i, v := range list {
		if v == target {
			return i
		}
	}
	return -1
}
