package planner

import (
	"strings"

	"github.com/docforge/formulacore/internal/domain"
	"github.com/docforge/formulacore/internal/fctx"
	"github.com/docforge/formulacore/internal/lang"
	"github.com/docforge/formulacore/internal/registry"
)

// builder accumulates nodes and edges in deterministic insertion order
// while the project is walked once.
type builder struct {
	order              []string
	seen               map[string]bool
	dependenciesByNode map[string][]string
	dependentsByNode   map[string][]string
	tableNodeIDs       map[string]struct{}
	docVarNodesByID    map[string]DocVarNode
	docVarNodesByDoc   map[domain.DocumentID][]string
}

func newBuilder() *builder {
	return &builder{
		seen:               make(map[string]bool),
		dependenciesByNode: make(map[string][]string),
		dependentsByNode:   make(map[string][]string),
		tableNodeIDs:       make(map[string]struct{}),
		docVarNodesByID:    make(map[string]DocVarNode),
		docVarNodesByDoc:   make(map[domain.DocumentID][]string),
	}
}

func (b *builder) addNode(id string) {
	if b.seen[id] {
		return
	}
	b.seen[id] = true
	b.order = append(b.order, id)
}

// addEdge records a dependency -> dependent edge, deduplicating repeats so
// the same formula referencing a table twice doesn't produce parallel
// edges.
func (b *builder) addEdge(dependency, dependent string) {
	b.addNode(dependency)
	b.addNode(dependent)
	for _, d := range b.dependentsByNode[dependency] {
		if d == dependent {
			return
		}
	}
	b.dependentsByNode[dependency] = append(b.dependentsByNode[dependency], dependent)
	b.dependenciesByNode[dependent] = append(b.dependenciesByNode[dependent], dependency)
}

// Build constructs the dependency DAG over project's tables and document
// variables and topologically sorts it.
func Build(project *domain.Project, ctx fctx.Context, reg *registry.Registry) (*Plan, error) {
	b := newBuilder()

	for _, t := range project.Tables {
		b.addNode(TableNodeID(t.ID))
		b.tableNodeIDs[TableNodeID(t.ID)] = struct{}{}
	}
	for _, d := range project.Documents {
		for _, name := range d.VariableNames() {
			expr, _ := d.VariableExpr(name)
			nodeID := DocVarNodeID(d.ID, name)
			b.addNode(nodeID)
			b.docVarNodesByID[nodeID] = DocVarNode{DocumentID: d.ID, Name: name, Expr: expr}
			b.docVarNodesByDoc[d.ID] = append(b.docVarNodesByDoc[d.ID], nodeID)
		}
	}

	for _, t := range project.Tables {
		walkTableDependencies(b, t, ctx, reg)
	}
	for _, d := range project.Documents {
		walkDocumentDependencies(b, d, ctx, reg)
	}

	ordered, err := sortGraph(b.order, b.dependenciesByNode, b.dependentsByNode)
	if err != nil {
		return nil, domain.NewDomainError(domain.ErrCodeCyclicDependency, err.Error(), err)
	}

	return &Plan{
		OrderedNodeIDs:               ordered,
		DependentsByNode:             b.dependentsByNode,
		DependenciesByNode:           b.dependenciesByNode,
		TableNodeIDs:                 b.tableNodeIDs,
		DocVariableNodesByID:         b.docVarNodesByID,
		DocVariableNodeIDsByDocument: b.docVarNodesByDoc,
	}, nil
}

func walkTableDependencies(b *builder, t *domain.Table, ctx fctx.Context, reg *registry.Registry) {
	tableNode := TableNodeID(t.ID)

	if t.IsDerived() {
		cfg := t.Derived
		if cfg.BaseTableID != domain.NilID {
			b.addEdge(TableNodeID(cfg.BaseTableID), tableNode)
		}
		for _, step := range cfg.Steps {
			b.addEdge(TableNodeID(step.SourceTableID), tableNode)
		}
	}

	for _, v := range t.Variables {
		addExprEdges(b, v.Expr, tableNode, domain.NilID, t, ctx, reg)
	}

	for _, c := range t.Columns {
		if c.Kind == domain.ColumnKindFormula && c.FormulaExpr != "" {
			addExprEdges(b, c.FormulaExpr, tableNode, domain.NilID, t, ctx, reg)
		}
	}
	// Walk cells in column order, not map order: edge insertion order feeds
	// the topo sort's tie-breaking, which must be stable across runs.
	for _, row := range t.Rows {
		for _, c := range t.Columns {
			if cell, ok := row.Get(c.ID); ok && cell.FormulaExpr != "" {
				addExprEdges(b, cell.FormulaExpr, tableNode, domain.NilID, t, ctx, reg)
			}
		}
	}
}

func walkDocumentDependencies(b *builder, d *domain.Document, ctx fctx.Context, reg *registry.Registry) {
	for _, block := range d.Blocks {
		if block.Kind != domain.DocumentBlockVariable {
			continue
		}
		nodeID := DocVarNodeID(d.ID, block.Name)
		addExprEdges(b, block.Expr, nodeID, d.ID, nil, ctx, reg)
	}
}

// addExprEdges compiles expr and wires every dependency it implies onto
// dependentNode: referenced tables, the parent table (when owner is a
// subtable), the Edges subtable behind a graph.in(...) call, and any
// document-variable reference (thisDoc.X / @X / docs.alias.X).
func addExprEdges(b *builder, expr, dependentNode string, frameDocID domain.DocumentID, owner *domain.Table, ctx fctx.Context, reg *registry.Registry) {
	compiled := lang.Compile(expr, reg.TracksFirstArgTable)
	if !compiled.Valid {
		return
	}

	for _, name := range compiled.Deps.ReferencedTableNames {
		if src, ok := ctx.TableByName(name); ok {
			b.addEdge(TableNodeID(src.ID), dependentNode)
		}
	}

	if compiled.Deps.RefsParent && owner != nil && owner.IsSubtable() {
		b.addEdge(TableNodeID(owner.ParentTableID), dependentNode)
	}

	if compiled.Deps.UsesGraphIn && owner != nil {
		if edgeTableID, ok := edgesSubtableTarget(owner); ok {
			b.addEdge(TableNodeID(edgeTableID), dependentNode)
		}
	}

	for _, ref := range collectDocVarRefs(compiled.Root, frameDocID, ctx) {
		b.addEdge(DocVarNodeID(ref.DocumentID, ref.Name), dependentNode)
	}
}

// edgesSubtableTarget finds t's Subtable column named "Edges" and returns
// its target table id, the same rule the evaluator uses for graph.in(...).
func edgesSubtableTarget(t *domain.Table) (domain.TableID, bool) {
	for _, c := range t.Columns {
		if c.Kind == domain.ColumnKindSubtable && strings.EqualFold(c.Name, "Edges") {
			return c.SubtableTargetTableID, true
		}
	}
	return domain.NilID, false
}

type docVarRef struct {
	DocumentID domain.DocumentID
	Name       string
}

// collectDocVarRefs walks root for @name references (only meaningful
// inside frameDocID's own expression), thisDoc.X references (same), and
// docs.alias.X references (resolvable regardless of frame). A
// candidate is only emitted once its name is confirmed against the
// owning document's actually-declared variable set ("whose X matches a
// known document variable") — a typo'd or nonexistent name is dropped
// rather than fabricating a docvar node absent from the plan.
func collectDocVarRefs(root *lang.Node, frameDocID domain.DocumentID, ctx fctx.Context) []docVarRef {
	var frameDoc *domain.Document
	if frameDocID != domain.NilID {
		frameDoc, _ = ctx.DocumentByID(frameDocID)
	}

	var refs []docVarRef
	var walk func(n *lang.Node)
	walk = func(n *lang.Node) {
		if n == nil {
			return
		}
		switch n.Kind {
		case lang.NodeAtIdentifier:
			if frameDoc != nil {
				if _, ok := frameDoc.VariableExpr(n.Name); ok {
					refs = append(refs, docVarRef{DocumentID: frameDocID, Name: n.Name})
				}
			}
		case lang.NodeMember:
			base := n.Children[0]
			switch {
			case frameDoc != nil && base != nil && base.Kind == lang.NodeIdentifier && base.Name == "thisDoc":
				if _, ok := frameDoc.VariableExpr(n.Member); ok {
					refs = append(refs, docVarRef{DocumentID: frameDocID, Name: n.Member})
				}
			case base != nil && base.Kind == lang.NodeMember:
				inner := base
				if len(inner.Children) > 0 && inner.Children[0] != nil &&
					inner.Children[0].Kind == lang.NodeIdentifier && inner.Children[0].Name == "docs" {
					if doc, ok := ctx.DocumentByAlias(inner.Member); ok {
						if _, ok := doc.VariableExpr(n.Member); ok {
							refs = append(refs, docVarRef{DocumentID: doc.ID, Name: n.Member})
						}
					}
				}
			}
		}
		for _, ch := range n.Children {
			walk(ch)
		}
		for _, a := range n.Args {
			walk(a)
		}
	}
	walk(root)
	return refs
}
