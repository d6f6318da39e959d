// Package evaluator implements the recursive AST interpreter over
// compiled formulas: an evaluation-frame stack, operator and member
// dispatch over tagged values, built-in and method calls, and a
// per-variable {evaluating, hasValue, value} memo table keyed by
// (scope, name) that doubles as the runtime cycle detector.
package evaluator

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/docforge/formulacore/internal/domain"
	"github.com/docforge/formulacore/internal/fctx"
	"github.com/docforge/formulacore/internal/lang"
	"github.com/docforge/formulacore/internal/registry"
)

// variantTableNamespace seeds deterministic variant-table ids, so the
// same (baseTableId, variantId) pair always materializes under the same
// id within and across evaluator instances.
var variantTableNamespace = uuid.MustParse("6a2b9c8d-0e1f-4a3b-9c5d-2e3f4a5b6c7d")

// CycleError is raised when a table or document variable is re-entered
// while still being evaluated.
// Unlike a resolve error it is not swallowed into Null: it propagates out
// of Evaluator.EvalRoot to the engine.
type CycleError struct {
	Name  string
	Owner string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle detected: variable %q re-entered while evaluating %q", e.Name, e.Owner)
}

type varState struct {
	evaluating bool
	hasValue   bool
	value      domain.FormulaValue
	err        error
}

// Evaluator interprets compiled ASTs against a project (via fctx.Context)
// and a function registry. One Evaluator is scoped to a single
// EvaluateProject call: its variable memo tables and variant-table cache
// are only valid for that one evaluation pass.
type Evaluator struct {
	ctx fctx.Context
	reg *registry.Registry

	tableVarMemo map[string]*varState
	docVarMemo   map[string]*varState

	precomputed    map[string]domain.FormulaValue
	precomputedErr map[string]error

	overlayTables map[domain.TableID]*domain.Table
	variantByKey  map[string]*domain.Table

	argsPool [][]domain.FormulaValue
}

// New constructs an Evaluator over ctx and reg.
func New(ctx fctx.Context, reg *registry.Registry) *Evaluator {
	return &Evaluator{
		ctx:            ctx,
		reg:            reg,
		tableVarMemo:   make(map[string]*varState),
		docVarMemo:     make(map[string]*varState),
		precomputed:    make(map[string]domain.FormulaValue),
		precomputedErr: make(map[string]error),
		overlayTables:  make(map[domain.TableID]*domain.Table),
		variantByKey:   make(map[string]*domain.Table),
	}
}

func docVarKey(docID domain.DocumentID, name string) string {
	return docID.String() + "#" + strings.ToLower(name)
}

func tableVarKey(tableID domain.TableID, name string) string {
	return tableID.String() + "#" + strings.ToLower(name)
}

// SetPrecomputedDocumentVariable supplies a document variable's value
// ahead of lazy evaluation; the precomputed map is authoritative over the
// lazy path when present. A non-nil err means the engine marked this entry errored, which
// the evaluator must raise when the variable is referenced.
func (e *Evaluator) SetPrecomputedDocumentVariable(docID domain.DocumentID, name string, value domain.FormulaValue, err error) {
	key := docVarKey(docID, name)
	e.precomputed[key] = value
	e.precomputedErr[key] = err
}

// EvalRoot evaluates a compiled formula's AST against frame. The only
// error ever returned is a *CycleError; every other failure mode
// resolves to Null in place.
func (e *Evaluator) EvalRoot(root *lang.Node, frame domain.EvaluationFrame) (domain.FormulaValue, error) {
	return e.eval(root, frame)
}

func (e *Evaluator) tableByID(id domain.TableID) (*domain.Table, bool) {
	if t, ok := e.overlayTables[id]; ok {
		return t, true
	}
	return e.ctx.TableByID(id)
}

func (e *Evaluator) eval(n *lang.Node, frame domain.EvaluationFrame) (domain.FormulaValue, error) {
	if n == nil {
		return domain.Null(), nil
	}
	switch n.Kind {
	case lang.NodeNullLiteral:
		return domain.Null(), nil
	case lang.NodeNumberLiteral:
		return domain.NewNumber(n.Number), nil
	case lang.NodeStringLiteral:
		return domain.NewString(n.Str), nil
	case lang.NodeBoolLiteral:
		return domain.NewBool(n.Bool), nil
	case lang.NodeIdentifier:
		return e.evalIdentifier(n.Name, frame)
	case lang.NodeAtIdentifier:
		return e.evalAtIdentifier(n.Name, frame)
	case lang.NodeMember:
		return e.evalMember(n, frame)
	case lang.NodeCall:
		return e.evalCall(n, frame)
	case lang.NodeUnary:
		return e.evalUnary(n, frame)
	case lang.NodeBinary:
		return e.evalBinary(n, frame)
	case lang.NodeConditional:
		cond, err := e.eval(n.Children[0], frame)
		if err != nil {
			return domain.Null(), err
		}
		if cond.Truthy() {
			return e.eval(n.Children[1], frame)
		}
		return e.eval(n.Children[2], frame)
	default:
		return domain.Null(), nil
	}
}

func (e *Evaluator) evalIdentifier(name string, frame domain.EvaluationFrame) (domain.FormulaValue, error) {
	switch name {
	case "thisRow":
		if frame.CurrentTable != nil && frame.CurrentRow != nil {
			return domain.NewRowReference(frame.CurrentTable.ID, frame.CurrentRow.ID), nil
		}
	case "thisTable":
		if frame.CurrentTable != nil {
			return domain.NewTableReference(frame.CurrentTable.ID), nil
		}
	case "thisRowIndex":
		return domain.NewNumber(float64(frame.CurrentRowIndex1)), nil
	case "parentRow":
		if frame.ParentTable != nil && frame.ParentRow != nil {
			return domain.NewRowReference(frame.ParentTable.ID, frame.ParentRow.ID), nil
		}
	case "parentTable":
		if frame.ParentTable != nil {
			return domain.NewTableReference(frame.ParentTable.ID), nil
		}
	case "thisDoc":
		if frame.CurrentDocument != nil {
			return domain.NewDocumentReference(frame.CurrentDocument.ID), nil
		}
	default:
		if t, ok := e.ctx.TableByName(name); ok {
			return domain.NewTableReference(t.ID), nil
		}
	}
	return domain.Null(), nil
}

func (e *Evaluator) evalAtIdentifier(name string, frame domain.EvaluationFrame) (domain.FormulaValue, error) {
	if frame.CurrentDocument != nil {
		return e.resolveDocumentVariable(frame.CurrentDocument.ID, name)
	}
	if strings.EqualFold(name, "rowIndex") {
		return domain.NewNumber(float64(frame.CandidateRowIndex1)), nil
	}
	if frame.CandidateTable != nil && frame.CandidateRow != nil {
		if col, ok := frame.CandidateTable.ColumnByName(name); ok {
			cell, _ := frame.CandidateRow.Get(col.ID)
			return domain.ConvertToFormulaValue(col.Kind, cell), nil
		}
	}
	return domain.Null(), nil
}

func (e *Evaluator) evalMember(n *lang.Node, frame domain.EvaluationFrame) (domain.FormulaValue, error) {
	base := n.Children[0]
	member := n.Member

	if base.Kind == lang.NodeIdentifier {
		switch base.Name {
		case "tables":
			if t, ok := e.ctx.TableByName(member); ok {
				return domain.NewTableReference(t.ID), nil
			}
			return domain.Null(), nil
		case "docs":
			if d, ok := e.ctx.DocumentByAlias(member); ok {
				return domain.NewDocumentReference(d.ID), nil
			}
			return domain.Null(), nil
		case "thisRow":
			if frame.CurrentTable != nil && frame.CurrentRow != nil {
				if col, ok := frame.CurrentTable.ColumnByName(member); ok {
					cell, _ := frame.CurrentRow.Get(col.ID)
					return domain.ConvertToFormulaValue(col.Kind, cell), nil
				}
			}
			return domain.Null(), nil
		case "parentRow":
			if frame.ParentTable != nil && frame.ParentRow != nil {
				if col, ok := frame.ParentTable.ColumnByName(member); ok {
					cell, _ := frame.ParentRow.Get(col.ID)
					return domain.ConvertToFormulaValue(col.Kind, cell), nil
				}
			}
			return domain.Null(), nil
		case "parentTable":
			if frame.ParentTable != nil {
				return e.tableVariableMember(frame.ParentTable, member)
			}
			return domain.Null(), nil
		case "thisTable":
			if frame.CurrentTable != nil {
				return e.tableVariableMember(frame.CurrentTable, member)
			}
			return domain.Null(), nil
		case "thisDoc":
			if frame.CurrentDocument != nil {
				return e.resolveDocumentVariable(frame.CurrentDocument.ID, member)
			}
			return domain.Null(), nil
		}
	}

	baseVal, err := e.eval(base, frame)
	if err != nil {
		return domain.Null(), err
	}
	return e.memberOnValue(baseVal, member)
}

func (e *Evaluator) memberOnValue(v domain.FormulaValue, member string) (domain.FormulaValue, error) {
	switch v.Kind {
	case domain.FVTableReference:
		t, ok := e.tableByID(v.Table.TableID)
		if !ok {
			return domain.Null(), nil
		}
		return e.tableVariableMember(t, member)

	case domain.FVRowReference:
		t, ok := e.tableByID(v.Row.TableID)
		if !ok {
			return domain.Null(), nil
		}
		if strings.EqualFold(member, "rowIndex") {
			return domain.NewNumber(float64(t.RowIndex1(v.Row.RowID))), nil
		}
		row, ok := t.RowByID(v.Row.RowID)
		if !ok {
			return domain.Null(), nil
		}
		col, ok := t.ColumnByName(member)
		if !ok {
			return domain.Null(), nil
		}
		cell, _ := row.Get(col.ID)
		return domain.ConvertToFormulaValue(col.Kind, cell), nil

	case domain.FVDocumentReference:
		return e.resolveDocumentVariable(v.Document.DocumentID, member)

	case domain.FVDateTime:
		switch strings.ToLower(member) {
		case "year":
			return domain.NewNumber(float64(v.Time.Year())), nil
		case "month":
			return domain.NewNumber(float64(v.Time.Month())), nil
		case "day":
			return domain.NewNumber(float64(v.Time.Day())), nil
		}
		return domain.Null(), nil

	case domain.FVVec2, domain.FVVec3, domain.FVVec4, domain.FVColor:
		return vectorMember(v, member)

	case domain.FVString:
		if strings.EqualFold(member, "Length") {
			return domain.NewNumber(float64(len(v.Str))), nil
		}
		return domain.Null(), nil

	default:
		return domain.Null(), nil
	}
}

func vectorMember(v domain.FormulaValue, member string) (domain.FormulaValue, error) {
	dim := v.Kind.Dimension()
	switch strings.ToLower(member) {
	case "x", "r":
		return domain.NewNumber(v.X), nil
	case "y", "g":
		return domain.NewNumber(v.Y), nil
	case "z", "b":
		if dim < 3 {
			return domain.Null(), nil
		}
		return domain.NewNumber(v.Z), nil
	case "w", "a":
		if dim < 4 {
			return domain.Null(), nil
		}
		return domain.NewNumber(v.W), nil
	}
	return domain.Null(), nil
}

func (e *Evaluator) tableVariableMember(t *domain.Table, name string) (domain.FormulaValue, error) {
	expr, ok := t.VariableExpr(name)
	if !ok {
		return domain.Null(), nil
	}
	return e.resolveTableVariable(t, name, expr)
}

func (e *Evaluator) resolveTableVariable(t *domain.Table, name, expr string) (domain.FormulaValue, error) {
	key := tableVarKey(t.ID, name)
	st, ok := e.tableVarMemo[key]
	if !ok {
		st = &varState{}
		e.tableVarMemo[key] = st
	}
	if st.evaluating {
		return domain.Null(), &CycleError{Name: name, Owner: t.Name}
	}
	if st.hasValue {
		return st.value, st.err
	}

	st.evaluating = true
	compiled := lang.Compile(expr, e.reg.TracksFirstArgTable)
	var val domain.FormulaValue
	var err error
	if compiled.Valid {
		val, err = e.eval(compiled.Root, domain.EvaluationFrame{CurrentTable: t})
	} else {
		val = domain.Null()
	}
	st.evaluating = false
	st.hasValue = true
	st.value, st.err = val, err
	return val, err
}

func (e *Evaluator) resolveDocumentVariable(docID domain.DocumentID, name string) (domain.FormulaValue, error) {
	key := docVarKey(docID, name)
	if v, ok := e.precomputed[key]; ok {
		if err := e.precomputedErr[key]; err != nil {
			return domain.Null(), err
		}
		return v, nil
	}

	st, ok := e.docVarMemo[key]
	if !ok {
		st = &varState{}
		e.docVarMemo[key] = st
	}
	if st.evaluating {
		return domain.Null(), &CycleError{Name: name, Owner: docID.String()}
	}
	if st.hasValue {
		return st.value, st.err
	}

	doc, ok := e.ctx.DocumentByID(docID)
	if !ok {
		return domain.Null(), nil
	}
	expr, ok := doc.VariableExpr(name)
	if !ok {
		return domain.Null(), nil
	}

	st.evaluating = true
	compiled := lang.Compile(expr, e.reg.TracksFirstArgTable)
	var val domain.FormulaValue
	var err error
	if compiled.Valid {
		val, err = e.eval(compiled.Root, domain.DocumentFrame(doc))
	} else {
		val = domain.Null()
	}
	st.evaluating = false
	st.hasValue = true
	st.value, st.err = val, err
	return val, err
}
