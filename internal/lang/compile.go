package lang

import (
	"github.com/expr-lang/expr/parser"
)

// CompiledFormula is the output of compiling one expression. A
// failed compilation (parse, conversion, or type-check error) yields
// Invalid(): Root is a null literal, no dependencies are recorded, and
// callers must treat it as producing none (the planner skips it; the
// evaluator produces Null/#ERR depending on context).
type CompiledFormula struct {
	Source string // original, pre-normalization expression text
	Root   *Node
	Deps   Dependencies
	Valid  bool
}

// Invalid builds the canonical failed-compilation result for source.
func Invalid(source string) CompiledFormula {
	return CompiledFormula{Source: source, Root: NullLiteral(), Valid: false}
}

// Compile normalizes expr, hands it to expr-lang's parser (preprocess.go
// layers the `@`-sigil and trailing-decimal-point rewrites expr-lang's
// grammar has no syntax for), extracts dependencies directly off the
// resulting expr-lang AST, converts it into this package's own Node, and
// type-checks the result. firstArgIsTable is forwarded to
// ExtractDependencies; nil is accepted (no registered functions tracked).
func Compile(expr string, firstArgIsTable func(name string) bool) CompiledFormula {
	normalized := Normalize(expr)
	rewritten := preprocess(normalized)

	tree, err := parser.Parse(rewritten)
	if err != nil {
		return Invalid(expr)
	}

	deps := ExtractDependencies(tree.Node, firstArgIsTable)

	root, err := convert(tree.Node)
	if err != nil {
		return Invalid(expr)
	}
	if err := TypeCheck(root); err != nil {
		return Invalid(expr)
	}
	return CompiledFormula{Source: expr, Root: root, Deps: deps, Valid: true}
}
