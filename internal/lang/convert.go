package lang

import (
	"fmt"

	goast "github.com/expr-lang/expr/ast"
)

// convert turns an expr-lang parse-tree node into this package's own Node
// (ast.go), the first of two passes over the expr-lang tree — the other
// being ExtractDependencies (deps.go), which walks it directly via
// ast.Walk. convert rejects any construct outside the formula grammar (arrays,
// maps, pipes, closures, computed member access, operators outside the
// fixed set, ...) by returning an error, which Compile turns into an
// invalid formula exactly as a lex/parse failure would have.
func convert(n goast.Node) (*Node, error) {
	switch t := n.(type) {
	case *goast.NilNode:
		return &Node{Kind: NodeNullLiteral}, nil

	case *goast.IdentifierNode:
		if name, ok := stripAtSigil(t.Value); ok {
			return &Node{Kind: NodeAtIdentifier, Name: name}, nil
		}
		return &Node{Kind: NodeIdentifier, Name: t.Value}, nil

	case *goast.IntegerNode:
		return &Node{Kind: NodeNumberLiteral, Number: float64(t.Value)}, nil

	case *goast.FloatNode:
		return &Node{Kind: NodeNumberLiteral, Number: t.Value}, nil

	case *goast.BoolNode:
		return &Node{Kind: NodeBoolLiteral, Bool: t.Value}, nil

	case *goast.StringNode:
		return &Node{Kind: NodeStringLiteral, Str: t.Value}, nil

	case *goast.ChainNode:
		return convert(t.Node)

	case *goast.UnaryNode:
		op, ok := convertUnaryOp(t.Operator)
		if !ok {
			return nil, fmt.Errorf("lang: unsupported unary operator %q", t.Operator)
		}
		operand, err := convert(t.Node)
		if err != nil {
			return nil, err
		}
		return &Node{Kind: NodeUnary, Op: op, Children: []*Node{operand}}, nil

	case *goast.BinaryNode:
		op, ok := convertBinaryOp(t.Operator)
		if !ok {
			return nil, fmt.Errorf("lang: unsupported binary operator %q", t.Operator)
		}
		left, err := convert(t.Left)
		if err != nil {
			return nil, err
		}
		right, err := convert(t.Right)
		if err != nil {
			return nil, err
		}
		return &Node{Kind: NodeBinary, Op: op, Children: []*Node{left, right}}, nil

	case *goast.ConditionalNode:
		cond, err := convert(t.Cond)
		if err != nil {
			return nil, err
		}
		thenExpr, err := convert(t.Exp1)
		if err != nil {
			return nil, err
		}
		elseExpr, err := convert(t.Exp2)
		if err != nil {
			return nil, err
		}
		return &Node{Kind: NodeConditional, Children: []*Node{cond, thenExpr, elseExpr}}, nil

	case *goast.MemberNode:
		name, ok := staticMemberName(t.Property)
		if !ok {
			return nil, fmt.Errorf("lang: computed member access is not supported")
		}
		base, err := convert(t.Node)
		if err != nil {
			return nil, err
		}
		return &Node{Kind: NodeMember, Member: name, Children: []*Node{base}}, nil

	case *goast.CallNode:
		callee, err := convert(t.Callee)
		if err != nil {
			return nil, err
		}
		args := make([]*Node, 0, len(t.Arguments))
		for _, a := range t.Arguments {
			arg, err := convert(a)
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
		}
		return &Node{Kind: NodeCall, Args: args, Children: []*Node{callee}}, nil

	default:
		return nil, fmt.Errorf("lang: unsupported expression construct %T", n)
	}
}

// convertUnaryOp maps an expr-lang unary operator onto the fixed operator set.
// expr-lang accepts both symbolic and word spellings for negation/not;
// both map onto this grammar's single spelling.
func convertUnaryOp(op string) (string, bool) {
	switch op {
	case "!", "not":
		return "!", true
	case "-":
		return "-", true
	default:
		return "", false
	}
}

// convertBinaryOp maps an expr-lang binary operator onto the fixed operator
// set, accepting expr-lang's word-form synonyms for &&/|| alongside the
// symbolic spellings this grammar documents.
func convertBinaryOp(op string) (string, bool) {
	switch op {
	case "+", "-", "*", "/", "%", "==", "!=", ">", ">=", "<", "<=":
		return op, true
	case "&&", "and":
		return "&&", true
	case "||", "or":
		return "||", true
	default:
		return "", false
	}
}

// staticMemberName returns the literal field name of a MemberNode's
// Property when it is statically known (expr-lang parses `.member` as a
// StringNode property, and a string-literal index the same way),
// rejecting computed access (`a[b]`, `a[i+1]`) which this grammar has no
// equivalent for.
func staticMemberName(property goast.Node) (string, bool) {
	s, ok := property.(*goast.StringNode)
	if !ok {
		return "", false
	}
	return s.Value, true
}
