package evaluator

import (
	"math"
	"strings"

	"github.com/docforge/formulacore/internal/domain"
	"github.com/docforge/formulacore/internal/lang"
)

// epsilon is the tolerance used for numeric/vector equality and
// near-zero division guards.
const epsilon = 1e-6

func nearlyEqual(a, b float64) bool { return math.Abs(a-b) < epsilon }

func isVectorLike(k domain.FormulaValueKind) bool {
	return k.IsVector()
}

func (e *Evaluator) evalUnary(n *lang.Node, frame domain.EvaluationFrame) (domain.FormulaValue, error) {
	v, err := e.eval(n.Children[0], frame)
	if err != nil {
		return domain.Null(), err
	}
	switch n.Op {
	case "!":
		return domain.NewBool(!v.Truthy()), nil
	case "-":
		switch v.Kind {
		case domain.FVNumber:
			return domain.NewNumber(-v.Number), nil
		case domain.FVVec2:
			return domain.NewVec2(-v.X, -v.Y), nil
		case domain.FVVec3:
			return domain.NewVec3(-v.X, -v.Y, -v.Z), nil
		case domain.FVVec4:
			return domain.NewVec4(-v.X, -v.Y, -v.Z, -v.W), nil
		case domain.FVColor:
			return domain.NewColor(-v.X, -v.Y, -v.Z, -v.W), nil
		}
	}
	return domain.Null(), nil
}

func (e *Evaluator) evalBinary(n *lang.Node, frame domain.EvaluationFrame) (domain.FormulaValue, error) {
	op := n.Op

	if op == "&&" {
		l, err := e.eval(n.Children[0], frame)
		if err != nil {
			return domain.Null(), err
		}
		if !l.Truthy() {
			return domain.NewBool(false), nil
		}
		r, err := e.eval(n.Children[1], frame)
		if err != nil {
			return domain.Null(), err
		}
		return domain.NewBool(r.Truthy()), nil
	}
	if op == "||" {
		l, err := e.eval(n.Children[0], frame)
		if err != nil {
			return domain.Null(), err
		}
		if l.Truthy() {
			return domain.NewBool(true), nil
		}
		r, err := e.eval(n.Children[1], frame)
		if err != nil {
			return domain.Null(), err
		}
		return domain.NewBool(r.Truthy()), nil
	}

	l, err := e.eval(n.Children[0], frame)
	if err != nil {
		return domain.Null(), err
	}
	r, err := e.eval(n.Children[1], frame)
	if err != nil {
		return domain.Null(), err
	}

	switch op {
	case "+":
		return addValues(l, r), nil
	case "-":
		return subValues(l, r), nil
	case "*":
		return mulValues(l, r), nil
	case "/":
		return divValues(l, r), nil
	case "%":
		return modValues(l, r), nil
	case "==":
		return domain.NewBool(valuesEqual(l, r)), nil
	case "!=":
		return domain.NewBool(!valuesEqual(l, r)), nil
	case "<", "<=", ">", ">=":
		return compareValues(op, l, r), nil
	}
	return domain.Null(), nil
}

// addValues implements +: string concatenation whenever either
// side is a string (stringifying the other), else numeric or
// same-kind-vector addition.
func addValues(l, r domain.FormulaValue) domain.FormulaValue {
	if l.Kind == domain.FVString || r.Kind == domain.FVString {
		return domain.NewString(l.Stringify() + r.Stringify())
	}
	if l.Kind == domain.FVNumber && r.Kind == domain.FVNumber {
		return domain.NewNumber(l.Number + r.Number)
	}
	if l.Kind == r.Kind && isVectorLike(l.Kind) {
		return combineVectors(l, r, func(a, b float64) float64 { return a + b })
	}
	return domain.Null()
}

func subValues(l, r domain.FormulaValue) domain.FormulaValue {
	if l.Kind == domain.FVDateTime && r.Kind == domain.FVDateTime {
		return domain.NewNumber(l.Time.Sub(r.Time).Hours() / 24)
	}
	if l.Kind == domain.FVNumber && r.Kind == domain.FVNumber {
		return domain.NewNumber(l.Number - r.Number)
	}
	if l.Kind == r.Kind && isVectorLike(l.Kind) {
		return combineVectors(l, r, func(a, b float64) float64 { return a - b })
	}
	return domain.Null()
}

func mulValues(l, r domain.FormulaValue) domain.FormulaValue {
	if l.Kind == domain.FVNumber && r.Kind == domain.FVNumber {
		return domain.NewNumber(l.Number * r.Number)
	}
	if l.Kind == domain.FVNumber && isVectorLike(r.Kind) {
		return scaleVector(r, l.Number)
	}
	if isVectorLike(l.Kind) && r.Kind == domain.FVNumber {
		return scaleVector(l, r.Number)
	}
	return domain.Null()
}

func divValues(l, r domain.FormulaValue) domain.FormulaValue {
	if r.Kind != domain.FVNumber || math.Abs(r.Number) < epsilon {
		return domain.Null()
	}
	if l.Kind == domain.FVNumber {
		return domain.NewNumber(l.Number / r.Number)
	}
	if isVectorLike(l.Kind) {
		return scaleVector(l, 1/r.Number)
	}
	return domain.Null()
}

func modValues(l, r domain.FormulaValue) domain.FormulaValue {
	if l.Kind != domain.FVNumber || r.Kind != domain.FVNumber || math.Abs(r.Number) < epsilon {
		return domain.Null()
	}
	return domain.NewNumber(math.Mod(l.Number, r.Number))
}

func combineVectors(l, r domain.FormulaValue, op func(a, b float64) float64) domain.FormulaValue {
	switch l.Kind {
	case domain.FVVec2:
		return domain.NewVec2(op(l.X, r.X), op(l.Y, r.Y))
	case domain.FVVec3:
		return domain.NewVec3(op(l.X, r.X), op(l.Y, r.Y), op(l.Z, r.Z))
	case domain.FVVec4:
		return domain.NewVec4(op(l.X, r.X), op(l.Y, r.Y), op(l.Z, r.Z), op(l.W, r.W))
	case domain.FVColor:
		return domain.NewColor(op(l.X, r.X), op(l.Y, r.Y), op(l.Z, r.Z), op(l.W, r.W))
	}
	return domain.Null()
}

func scaleVector(v domain.FormulaValue, s float64) domain.FormulaValue {
	switch v.Kind {
	case domain.FVVec2:
		return domain.NewVec2(v.X*s, v.Y*s)
	case domain.FVVec3:
		return domain.NewVec3(v.X*s, v.Y*s, v.Z*s)
	case domain.FVVec4:
		return domain.NewVec4(v.X*s, v.Y*s, v.Z*s, v.W*s)
	case domain.FVColor:
		return domain.NewColor(v.X*s, v.Y*s, v.Z*s, v.W*s)
	}
	return domain.Null()
}

func valuesEqual(l, r domain.FormulaValue) bool {
	switch {
	case l.Kind == domain.FVNumber && r.Kind == domain.FVNumber:
		return nearlyEqual(l.Number, r.Number)
	case l.Kind == r.Kind && isVectorLike(l.Kind):
		return nearlyEqual(l.X, r.X) && nearlyEqual(l.Y, r.Y) && nearlyEqual(l.Z, r.Z) && nearlyEqual(l.W, r.W)
	case l.Kind == domain.FVDateTime && r.Kind == domain.FVDateTime:
		return l.Time.Equal(r.Time)
	case l.Kind == domain.FVBool && r.Kind == domain.FVBool:
		return l.Bool == r.Bool
	case l.Kind == domain.FVNull || r.Kind == domain.FVNull:
		return l.Kind == r.Kind
	default:
		return strings.EqualFold(l.Stringify(), r.Stringify())
	}
}

// compareValues implements <, <=, >, >=, which work analogously to
// ==/!=: numbers and datetimes compare numerically, every other pairing
// falls back to an invariant, case-insensitive stringified comparison
// (the same fallback valuesEqual applies to ==/!=) rather than Null.
func compareValues(op string, l, r domain.FormulaValue) domain.FormulaValue {
	var result int
	switch {
	case l.Kind == domain.FVNumber && r.Kind == domain.FVNumber:
		result = compareFloat(l.Number, r.Number)
	case l.Kind == domain.FVDateTime && r.Kind == domain.FVDateTime:
		result = compareFloat(float64(l.Time.UnixNano()), float64(r.Time.UnixNano()))
	default:
		result = strings.Compare(strings.ToLower(l.Stringify()), strings.ToLower(r.Stringify()))
	}
	switch op {
	case "<":
		return domain.NewBool(result < 0)
	case "<=":
		return domain.NewBool(result <= 0)
	case ">":
		return domain.NewBool(result > 0)
	case ">=":
		return domain.NewBool(result >= 0)
	}
	return domain.Null()
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
