package lang

import (
	"strings"

	goast "github.com/expr-lang/expr/ast"
)

// contextIdentifiers are the identifiers that carry their own dependency
// meaning (this_row/parent/document) and are therefore excluded from the
// "left identifier of X.Y is a table reference" rule.
var contextIdentifiers = map[string]bool{
	"thisRow": true, "thisTable": true, "parentRow": true,
	"parentTable": true, "docs": true, "thisDoc": true,
}

var tableArgFunctions = map[string]bool{
	"lookup": true, "countif": true, "sumif": true,
}

// Dependencies is the result of one dependency-extraction walk over a
// compiled formula's AST.
type Dependencies struct {
	ThisRowColumnNames   []string
	ReferencedTableNames []string
	RefsParent           bool
	RefsDocument         bool

	// UsesGraphIn reports a `graph.in(...)` call anywhere in the tree; the
	// planner resolves the actual edge-table dependency since that
	// requires schema knowledge (the enclosing table's Edges subtable)
	// this package doesn't have.
	UsesGraphIn bool
}

// depVisitor implements expr-lang's ast.Visitor to collect the formula
// dependency sets directly off the expr-lang parse tree — the same
// public Visit-over-*Node mechanism expr-lang's own consumers use to
// statically enumerate which identifiers/members an expression touches
// (expr-lang/expr/ast.Walk).
type depVisitor struct {
	firstArgIsTable func(name string) bool
	deps            Dependencies
	seenThisRow     map[string]bool
	seenTable       map[string]bool
}

// ExtractDependencies walks root once via ast.Walk and records the
// dependency sets. firstArgIsTable reports, for a
// registered function name (already lower-cased), whether that
// function's first argument is a table reference for dependency
// purposes (the registry's "tracks first-arg table dependency" flag).
func ExtractDependencies(root goast.Node, firstArgIsTable func(name string) bool) Dependencies {
	v := &depVisitor{
		firstArgIsTable: firstArgIsTable,
		seenThisRow:     make(map[string]bool),
		seenTable:       make(map[string]bool),
	}
	goast.Walk(&root, v)
	return v.deps
}

func (v *depVisitor) addThisRowColumn(name string) {
	if !v.seenThisRow[name] {
		v.seenThisRow[name] = true
		v.deps.ThisRowColumnNames = append(v.deps.ThisRowColumnNames, name)
	}
}

func (v *depVisitor) addReferencedTable(name string) {
	if !v.seenTable[name] {
		v.seenTable[name] = true
		v.deps.ReferencedTableNames = append(v.deps.ReferencedTableNames, name)
	}
}

// Visit implements ast.Visitor. ast.Walk calls it once per node
// (post-order), so an identifier that is a member's base is seen both on
// its own and as that MemberNode's base; the sets below are idempotent
// under that double visit.
func (v *depVisitor) Visit(node *goast.Node) {
	switch n := (*node).(type) {
	case *goast.IdentifierNode:
		switch n.Value {
		case "parentRow", "parentTable":
			v.deps.RefsParent = true
		case "docs", "thisDoc":
			v.deps.RefsDocument = true
		}

	case *goast.MemberNode:
		base, ok := n.Node.(*goast.IdentifierNode)
		if !ok {
			return
		}
		member, ok := staticMemberName(n.Property)
		if !ok {
			return
		}
		switch {
		case base.Value == "graph" && member == "in":
			v.deps.UsesGraphIn = true
		case base.Value == "thisRow":
			v.addThisRowColumn(member)
		case base.Value == "tables":
			v.addReferencedTable(member)
		case base.Value == "parentRow", base.Value == "parentTable":
			v.deps.RefsParent = true
		case base.Value == "docs", base.Value == "thisDoc":
			v.deps.RefsDocument = true
		default:
			if !contextIdentifiers[base.Value] {
				v.addReferencedTable(base.Value)
			}
		}

	case *goast.CallNode:
		v.recordCallTableArg(n)
	}
}

func (v *depVisitor) recordCallTableArg(call *goast.CallNode) {
	callee, ok := call.Callee.(*goast.IdentifierNode)
	if !ok {
		return
	}
	name := strings.ToLower(callee.Value)
	tracksFirstArg := tableArgFunctions[name]
	if !tracksFirstArg && v.firstArgIsTable != nil {
		tracksFirstArg = v.firstArgIsTable(name)
	}
	if !tracksFirstArg || len(call.Arguments) == 0 {
		return
	}
	switch first := call.Arguments[0].(type) {
	case *goast.IdentifierNode:
		v.addReferencedTable(first.Value)
	case *goast.StringNode:
		v.addReferencedTable(first.Value)
	}
}
