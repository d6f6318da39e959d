package evaluator

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/docforge/formulacore/internal/domain"
	"github.com/docforge/formulacore/internal/lang"
)

func (e *Evaluator) getArgsSlice(n int) []domain.FormulaValue {
	for i := len(e.argsPool) - 1; i >= 0; i-- {
		s := e.argsPool[i]
		if cap(s) >= n {
			e.argsPool = append(e.argsPool[:i], e.argsPool[i+1:]...)
			return s[:n]
		}
	}
	return make([]domain.FormulaValue, n)
}

func (e *Evaluator) putArgsSlice(s []domain.FormulaValue) {
	if len(e.argsPool) < 8 {
		e.argsPool = append(e.argsPool, s[:0])
	}
}

func (e *Evaluator) evalArgs(nodes []*lang.Node, frame domain.EvaluationFrame) ([]domain.FormulaValue, error) {
	args := e.getArgsSlice(len(nodes))
	for i, n := range nodes {
		v, err := e.eval(n, frame)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

func (e *Evaluator) evalCall(n *lang.Node, frame domain.EvaluationFrame) (domain.FormulaValue, error) {
	callee := n.Children[0]

	if callee.Kind == lang.NodeMember {
		return e.evalMethodCall(callee, n.Args, frame)
	}
	if callee.Kind != lang.NodeIdentifier {
		return domain.Null(), nil
	}

	switch strings.ToLower(callee.Name) {
	case "if":
		return e.evalIf(n.Args, frame)
	case "lookup":
		return e.evalLookup(n.Args, frame)
	case "countif":
		return e.evalCountIf(n.Args, frame)
	case "sumif":
		return e.evalSumIf(n.Args, frame)
	}

	entry, ok := e.reg.Lookup(callee.Name)
	if !ok {
		return domain.Null(), nil
	}
	args, err := e.evalArgs(n.Args, frame)
	if err != nil {
		return domain.Null(), err
	}
	v, fnErr := entry.Eval(args)
	e.putArgsSlice(args)
	if fnErr != nil {
		return domain.Null(), nil
	}
	return v, nil
}

func (e *Evaluator) evalIf(args []*lang.Node, frame domain.EvaluationFrame) (domain.FormulaValue, error) {
	if len(args) < 3 {
		return domain.Null(), nil
	}
	cond, err := e.eval(args[0], frame)
	if err != nil {
		return domain.Null(), err
	}
	if cond.Truthy() {
		return e.eval(args[1], frame)
	}
	return e.eval(args[2], frame)
}

func (e *Evaluator) resolveTableArg(n *lang.Node, frame domain.EvaluationFrame) (*domain.Table, bool) {
	switch n.Kind {
	case lang.NodeStringLiteral:
		return e.ctx.TableByName(n.Str)
	case lang.NodeIdentifier:
		return e.ctx.TableByName(n.Name)
	default:
		v, err := e.eval(n, frame)
		if err != nil || v.Kind != domain.FVTableReference {
			return nil, false
		}
		return e.tableByID(v.Table.TableID)
	}
}

func (e *Evaluator) evalLookup(args []*lang.Node, frame domain.EvaluationFrame) (domain.FormulaValue, error) {
	if len(args) < 2 {
		return domain.Null(), nil
	}
	t, ok := e.resolveTableArg(args[0], frame)
	if !ok {
		return domain.Null(), nil
	}
	for _, row := range t.Rows {
		cf := frame.WithCandidate(t, row, t.RowIndex1(row.ID))
		v, err := e.eval(args[1], cf)
		if err != nil {
			return domain.Null(), err
		}
		if !v.Truthy() {
			continue
		}
		if len(args) >= 3 {
			return e.eval(args[2], cf)
		}
		return domain.NewRowReference(t.ID, row.ID), nil
	}
	return domain.Null(), nil
}

func (e *Evaluator) evalCountIf(args []*lang.Node, frame domain.EvaluationFrame) (domain.FormulaValue, error) {
	if len(args) < 2 {
		return domain.Null(), nil
	}
	t, ok := e.resolveTableArg(args[0], frame)
	if !ok {
		return domain.Null(), nil
	}
	count := 0
	for _, row := range t.Rows {
		cf := frame.WithCandidate(t, row, t.RowIndex1(row.ID))
		v, err := e.eval(args[1], cf)
		if err != nil {
			return domain.Null(), err
		}
		if v.Truthy() {
			count++
		}
	}
	return domain.NewNumber(float64(count)), nil
}

func (e *Evaluator) evalSumIf(args []*lang.Node, frame domain.EvaluationFrame) (domain.FormulaValue, error) {
	if len(args) < 3 {
		return domain.Null(), nil
	}
	t, ok := e.resolveTableArg(args[0], frame)
	if !ok {
		return domain.Null(), nil
	}
	total := 0.0
	for _, row := range t.Rows {
		cf := frame.WithCandidate(t, row, t.RowIndex1(row.ID))
		v, err := e.eval(args[1], cf)
		if err != nil {
			return domain.Null(), err
		}
		if !v.Truthy() {
			continue
		}
		sel, err := e.eval(args[2], cf)
		if err != nil {
			return domain.Null(), err
		}
		if sel.Kind == domain.FVNumber {
			total += sel.Number
		}
	}
	return domain.NewNumber(total), nil
}

// evalMethodCall dispatches a.b(...) calls: graph.in(pinId), the
// Filter/Count/First/Sum/Average/Sort collection methods on a table or row
// collection receiver, and Variant(id) on a table receiver.
func (e *Evaluator) evalMethodCall(memberNode *lang.Node, argNodes []*lang.Node, frame domain.EvaluationFrame) (domain.FormulaValue, error) {
	receiverNode := memberNode.Children[0]
	method := strings.ToLower(memberNode.Member)

	if receiverNode.Kind == lang.NodeIdentifier && receiverNode.Name == "graph" && method == "in" {
		return e.evalGraphIn(argNodes, frame)
	}

	receiverVal, err := e.eval(receiverNode, frame)
	if err != nil {
		return domain.Null(), err
	}

	switch receiverVal.Kind {
	case domain.FVTableReference:
		t, ok := e.tableByID(receiverVal.Table.TableID)
		if !ok {
			return domain.Null(), nil
		}
		if method == "variant" {
			if len(argNodes) == 0 {
				return domain.Null(), nil
			}
			idVal, err := e.eval(argNodes[0], frame)
			if err != nil {
				return domain.Null(), err
			}
			vt, ok := e.materializeVariant(t, idVal.Stringify())
			if !ok {
				return domain.Null(), nil
			}
			return domain.NewTableReference(vt.ID), nil
		}
		return e.collectionMethod(method, allRowRefs(t), argNodes, frame)

	case domain.FVRowCollection:
		return e.collectionMethod(method, receiverVal.Rows, argNodes, frame)

	default:
		return domain.Null(), nil
	}
}

func allRowRefs(t *domain.Table) []domain.RowReference {
	refs := make([]domain.RowReference, len(t.Rows))
	for i, r := range t.Rows {
		refs[i] = domain.RowReference{TableID: t.ID, RowID: r.ID}
	}
	return refs
}

func (e *Evaluator) collectionMethod(method string, refs []domain.RowReference, argNodes []*lang.Node, frame domain.EvaluationFrame) (domain.FormulaValue, error) {
	switch method {
	case "count":
		return domain.NewNumber(float64(len(refs))), nil

	case "first":
		if len(refs) == 0 {
			return domain.Null(), nil
		}
		return domain.NewRowReference(refs[0].TableID, refs[0].RowID), nil

	case "filter":
		if len(argNodes) == 0 {
			return domain.NewRowCollection(nil), nil
		}
		var kept []domain.RowReference
		for _, ref := range refs {
			table, ok := e.tableByID(ref.TableID)
			if !ok {
				continue
			}
			row, ok := table.RowByID(ref.RowID)
			if !ok {
				continue
			}
			cf := frame.WithCandidate(table, row, table.RowIndex1(ref.RowID))
			v, err := e.eval(argNodes[0], cf)
			if err != nil {
				return domain.Null(), err
			}
			if v.Truthy() {
				kept = append(kept, ref)
			}
		}
		return domain.NewRowCollection(kept), nil

	case "sum", "average":
		if len(argNodes) == 0 {
			return domain.NewNumber(0), nil
		}
		var total float64
		var n int
		for _, ref := range refs {
			table, ok := e.tableByID(ref.TableID)
			if !ok {
				continue
			}
			row, ok := table.RowByID(ref.RowID)
			if !ok {
				continue
			}
			cf := frame.WithCandidate(table, row, table.RowIndex1(ref.RowID))
			v, err := e.eval(argNodes[0], cf)
			if err != nil {
				return domain.Null(), err
			}
			if v.Kind == domain.FVNumber {
				total += v.Number
				n++
			}
		}
		if method == "sum" {
			return domain.NewNumber(total), nil
		}
		if n == 0 {
			return domain.NewNumber(0), nil
		}
		return domain.NewNumber(total / float64(n)), nil

	case "sort":
		sorted := append([]domain.RowReference{}, refs...)
		if len(argNodes) == 0 {
			return domain.NewRowCollection(sorted), nil
		}
		keys := make([]domain.FormulaValue, len(sorted))
		for i, ref := range sorted {
			table, ok := e.tableByID(ref.TableID)
			if !ok {
				continue
			}
			row, ok := table.RowByID(ref.RowID)
			if !ok {
				continue
			}
			cf := frame.WithCandidate(table, row, table.RowIndex1(ref.RowID))
			v, err := e.eval(argNodes[0], cf)
			if err != nil {
				return domain.Null(), err
			}
			keys[i] = v
		}
		sort.SliceStable(sorted, func(i, j int) bool { return formulaValueLess(keys[i], keys[j]) })
		return domain.NewRowCollection(sorted), nil

	default:
		return domain.Null(), nil
	}
}

func formulaValueLess(a, b domain.FormulaValue) bool {
	if a.Kind == domain.FVNumber && b.Kind == domain.FVNumber {
		return a.Number < b.Number
	}
	return a.Stringify() < b.Stringify()
}

// evalGraphIn implements graph.in(pinId): it looks up the
// nearest Edges subtable off the current row's table, finds the edge
// feeding into (thisRow, pinId), and returns the source row's named pin
// column value.
func (e *Evaluator) evalGraphIn(argNodes []*lang.Node, frame domain.EvaluationFrame) (domain.FormulaValue, error) {
	if len(argNodes) == 0 || frame.CurrentTable == nil || frame.CurrentRow == nil {
		return domain.Null(), nil
	}
	pinVal, err := e.eval(argNodes[0], frame)
	if err != nil {
		return domain.Null(), err
	}
	pinID := pinVal.Stringify()

	edgeTableID, ok := edgesSubtableTarget(frame.CurrentTable)
	if !ok {
		return domain.Null(), nil
	}
	edgeTable, ok := e.tableByID(edgeTableID)
	if !ok {
		return domain.Null(), nil
	}
	fromCol, okFrom := edgeTable.ColumnByName("FromNode")
	toCol, okTo := edgeTable.ColumnByName("ToNode")
	fromPinCol, okFromPin := edgeTable.ColumnByName("FromPinId")
	toPinCol, okToPin := edgeTable.ColumnByName("ToPinId")
	if !okFrom || !okTo || !okFromPin || !okToPin {
		return domain.Null(), nil
	}

	for _, edgeRow := range edgeTable.Rows {
		toCell, _ := edgeRow.Get(toCol.ID)
		if toCell.StringValue != frame.CurrentRow.ID.String() {
			continue
		}
		toPinCell, _ := edgeRow.Get(toPinCol.ID)
		if toPinCell.StringValue != pinID {
			continue
		}
		fromCell, _ := edgeRow.Get(fromCol.ID)
		fromRowID, err := uuid.Parse(fromCell.StringValue)
		if err != nil {
			continue
		}
		srcRow, ok := frame.CurrentTable.RowByID(fromRowID)
		if !ok {
			continue
		}
		fromPinCell, _ := edgeRow.Get(fromPinCol.ID)
		col, ok := frame.CurrentTable.ColumnByName(fromPinCell.StringValue)
		if !ok {
			return domain.Null(), nil
		}
		cell, _ := srcRow.Get(col.ID)
		return domain.ConvertToFormulaValue(col.Kind, cell), nil
	}
	return domain.Null(), nil
}

// edgesSubtableTarget finds t's Subtable column named "Edges" and returns
// its target table id, mirroring the planner's edge-discovery rule so the
// evaluator walks the exact same Edges subtable the dependency graph wired
// in.
func edgesSubtableTarget(t *domain.Table) (domain.TableID, bool) {
	for _, c := range t.Columns {
		if c.Kind == domain.ColumnKindSubtable && strings.EqualFold(c.Name, "Edges") {
			return c.SubtableTargetTableID, true
		}
	}
	return domain.NilID, false
}
