// Package lang implements the expression compiler: parsing is delegated
// to github.com/expr-lang/expr's parser/ast packages, and the resulting
// tree is converted into this package's own AST so the structural
// type-check, dependency-extraction walk, and the evaluator's
// domain-specific interpretation (vectors, row/table/document
// references, thisRow/@-scoping) stay purpose-built instead of being
// forced through expr's generic Go-value VM.
package lang

// NodeKind tags an AST node.
type NodeKind string

const (
	NodeNumberLiteral NodeKind = "number"
	NodeStringLiteral NodeKind = "string"
	NodeBoolLiteral   NodeKind = "bool"
	NodeNullLiteral   NodeKind = "null"
	NodeIdentifier    NodeKind = "identifier"
	NodeAtIdentifier  NodeKind = "at_identifier"
	NodeMember        NodeKind = "member"
	NodeCall          NodeKind = "call"
	NodeUnary         NodeKind = "unary"
	NodeBinary        NodeKind = "binary"
	NodeConditional   NodeKind = "conditional"
)

// IsValid reports whether k is a known node kind.
func (k NodeKind) IsValid() bool {
	switch k {
	case NodeNumberLiteral, NodeStringLiteral, NodeBoolLiteral, NodeNullLiteral,
		NodeIdentifier, NodeAtIdentifier, NodeMember, NodeCall, NodeUnary,
		NodeBinary, NodeConditional:
		return true
	default:
		return false
	}
}

func (k NodeKind) String() string { return string(k) }

// fixedOperators is the set of operator texts the type-checker accepts for
// Unary/Binary nodes.
var fixedOperators = map[string]bool{
	"+": true, "-": true, "*": true, "/": true, "%": true, "!": true,
	"==": true, "!=": true, ">": true, ">=": true, "<": true, "<=": true,
	"&&": true, "||": true,
}

// Node is a single AST node, built by converting an expr-lang
// (github.com/expr-lang/expr/ast) parse tree into this package's own
// shape (convert.go). Only the fields relevant to Kind are meaningful;
// Children holds sub-expressions uniformly so the dependency-extraction
// and type-check walks can recurse generically.
type Node struct {
	Kind NodeKind

	// NodeNumberLiteral / NodeStringLiteral / NodeBoolLiteral
	Number float64
	Str    string
	Bool   bool

	// NodeIdentifier / NodeAtIdentifier
	Name string

	// NodeMember: Children[0] is the target, Member is the field/method name.
	Member string

	// NodeCall: Children[0] is the callee (identifier or member), Args are
	// the call arguments.
	Args []*Node

	// NodeUnary: Children[0] is the operand, Op is "-" or "!".
	// NodeBinary: Children[0]/[1] are left/right, Op is the operator text.
	Op       string
	Children []*Node

	// NodeConditional: Children[0]=condition, [1]=then, [2]=else.
}

// NullLiteral is the canonical root of an invalid expression.
func NullLiteral() *Node { return &Node{Kind: NodeNullLiteral} }
