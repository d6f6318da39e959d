package lang

import "fmt"

// TypeCheck validates a parsed AST structurally: every Unary/Binary
// operator text must come from the fixed operator set, and every
// sub-node must recursively be valid. It does not reason about value
// types (Number vs String etc.) — that is the evaluator's job at runtime.
func TypeCheck(n *Node) error {
	if n == nil {
		return fmt.Errorf("lang: nil node")
	}
	if !n.Kind.IsValid() {
		return fmt.Errorf("lang: invalid node kind %q", n.Kind)
	}
	switch n.Kind {
	case NodeUnary, NodeBinary:
		if !fixedOperators[n.Op] {
			return fmt.Errorf("lang: operator %q is not in the fixed operator set", n.Op)
		}
	case NodeMember:
		if n.Member == "" {
			return fmt.Errorf("lang: member access with empty name")
		}
	}
	for _, c := range n.Children {
		if err := TypeCheck(c); err != nil {
			return err
		}
	}
	for _, a := range n.Args {
		if err := TypeCheck(a); err != nil {
			return err
		}
	}
	return nil
}
