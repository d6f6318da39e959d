package registry

import (
	"math"
	"strings"
	"time"

	"github.com/docforge/formulacore/internal/domain"
	"github.com/docforge/formulacore/internal/spline"
)

// RegisterBuiltins installs the built-in function set (minus
// If/Lookup/CountIf/SumIf/graph.in and the method-call forms, which the
// evaluator special-cases because they need unevaluated argument ASTs or
// candidate-row scoping the registry's plain-args signature can't express).
func RegisterBuiltins(r *Registry) {
	r.Register("Abs", false, builtinAbs)
	r.Register("Pow", false, builtinPow)
	r.Register("Exp", false, builtinExp)
	r.Register("Upper", false, builtinUpper)
	r.Register("Lower", false, builtinLower)
	r.Register("Contains", false, builtinContains)
	r.Register("Concat", false, builtinConcat)
	r.Register("Date", false, builtinDate)
	r.Register("Today", false, builtinToday)
	r.Register("AddDays", false, builtinAddDays)
	r.Register("DaysBetween", false, builtinDaysBetween)
	r.Register("Vec2", false, builtinVec2)
	r.Register("Vec3", false, builtinVec3)
	r.Register("Vec4", false, builtinVec4)
	r.Register("Color", false, builtinColor)
	r.Register("EvalSpline", false, builtinEvalSpline)
}

func arg(args []domain.FormulaValue, i int) domain.FormulaValue {
	if i < 0 || i >= len(args) {
		return domain.Null()
	}
	return args[i]
}

func builtinAbs(args []domain.FormulaValue) (domain.FormulaValue, error) {
	v := arg(args, 0)
	if v.Kind != domain.FVNumber {
		return domain.Null(), nil
	}
	return domain.NewNumber(math.Abs(v.Number)), nil
}

func builtinPow(args []domain.FormulaValue) (domain.FormulaValue, error) {
	base, exp := arg(args, 0), arg(args, 1)
	if base.Kind != domain.FVNumber || exp.Kind != domain.FVNumber {
		return domain.Null(), nil
	}
	return domain.NewNumber(math.Pow(base.Number, exp.Number)), nil
}

func builtinExp(args []domain.FormulaValue) (domain.FormulaValue, error) {
	v := arg(args, 0)
	if v.Kind != domain.FVNumber {
		return domain.Null(), nil
	}
	return domain.NewNumber(math.Exp(v.Number)), nil
}

func builtinUpper(args []domain.FormulaValue) (domain.FormulaValue, error) {
	v := arg(args, 0)
	if v.Kind != domain.FVString {
		return domain.Null(), nil
	}
	return domain.NewString(strings.ToUpper(v.Str)), nil
}

func builtinLower(args []domain.FormulaValue) (domain.FormulaValue, error) {
	v := arg(args, 0)
	if v.Kind != domain.FVString {
		return domain.Null(), nil
	}
	return domain.NewString(strings.ToLower(v.Str)), nil
}

// builtinContains is a case-insensitive substring test.
func builtinContains(args []domain.FormulaValue) (domain.FormulaValue, error) {
	haystack, needle := arg(args, 0), arg(args, 1)
	if haystack.Kind != domain.FVString || needle.Kind != domain.FVString {
		return domain.NewBool(false), nil
	}
	return domain.NewBool(strings.Contains(strings.ToLower(haystack.Str), strings.ToLower(needle.Str))), nil
}

func builtinConcat(args []domain.FormulaValue) (domain.FormulaValue, error) {
	var b strings.Builder
	for _, a := range args {
		b.WriteString(a.Stringify())
	}
	return domain.NewString(b.String()), nil
}

const dateLayout = "2006-01-02"

func builtinDate(args []domain.FormulaValue) (domain.FormulaValue, error) {
	v := arg(args, 0)
	if v.Kind != domain.FVString {
		return domain.Null(), nil
	}
	t, err := time.Parse(dateLayout, strings.TrimSpace(v.Str))
	if err != nil {
		return domain.Null(), nil
	}
	return domain.NewDateTime(t), nil
}

func builtinToday([]domain.FormulaValue) (domain.FormulaValue, error) {
	now := time.Now().UTC()
	return domain.NewDateTime(time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)), nil
}

func builtinAddDays(args []domain.FormulaValue) (domain.FormulaValue, error) {
	d, n := arg(args, 0), arg(args, 1)
	if d.Kind != domain.FVDateTime || n.Kind != domain.FVNumber {
		return domain.Null(), nil
	}
	return domain.NewDateTime(d.Time.AddDate(0, 0, int(n.Number))), nil
}

func builtinDaysBetween(args []domain.FormulaValue) (domain.FormulaValue, error) {
	a, b := arg(args, 0), arg(args, 1)
	if a.Kind != domain.FVDateTime || b.Kind != domain.FVDateTime {
		return domain.Null(), nil
	}
	return domain.NewNumber(b.Time.Sub(a.Time).Hours() / 24), nil
}

func numArg(args []domain.FormulaValue, i int) (float64, bool) {
	v := arg(args, i)
	if v.Kind != domain.FVNumber {
		return 0, false
	}
	return v.Number, true
}

func builtinVec2(args []domain.FormulaValue) (domain.FormulaValue, error) {
	x, okx := numArg(args, 0)
	y, oky := numArg(args, 1)
	if !okx || !oky {
		return domain.Null(), nil
	}
	return domain.NewVec2(x, y), nil
}

func builtinVec3(args []domain.FormulaValue) (domain.FormulaValue, error) {
	x, okx := numArg(args, 0)
	y, oky := numArg(args, 1)
	z, okz := numArg(args, 2)
	if !okx || !oky || !okz {
		return domain.Null(), nil
	}
	return domain.NewVec3(x, y, z), nil
}

func builtinVec4(args []domain.FormulaValue) (domain.FormulaValue, error) {
	x, okx := numArg(args, 0)
	y, oky := numArg(args, 1)
	z, okz := numArg(args, 2)
	w, okw := numArg(args, 3)
	if !okx || !oky || !okz || !okw {
		return domain.Null(), nil
	}
	return domain.NewVec4(x, y, z, w), nil
}

func builtinColor(args []domain.FormulaValue) (domain.FormulaValue, error) {
	r, okr := numArg(args, 0)
	g, okg := numArg(args, 1)
	b, okb := numArg(args, 2)
	a, oka := numArg(args, 3)
	if !okr || !okg || !okb || !oka {
		return domain.Null(), nil
	}
	return domain.NewColor(r, g, b, a), nil
}

func builtinEvalSpline(args []domain.FormulaValue) (domain.FormulaValue, error) {
	json, t := arg(args, 0), arg(args, 1)
	if json.Kind != domain.FVString || t.Kind != domain.FVNumber {
		return domain.Null(), nil
	}
	v, err := spline.Eval(json.Str, t.Number)
	if err != nil {
		return domain.Null(), nil
	}
	return domain.NewNumber(v), nil
}
