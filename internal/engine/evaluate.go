package engine

import (
	"strings"
	"time"

	"github.com/docforge/formulacore/internal/derived"
	"github.com/docforge/formulacore/internal/domain"
	"github.com/docforge/formulacore/internal/evaluator"
	"github.com/docforge/formulacore/internal/fctx"
	"github.com/docforge/formulacore/internal/lang"
	"github.com/docforge/formulacore/internal/planner"
)

// EvaluateProject runs one compile/plan/derive/evaluate pass over project
// according to req and returns the per-phase metrics.
//
// Structural errors (a cycle in the dependency graph, or a runtime
// variable re-entry cycle surfaced while evaluating a cell) abort the
// call and propagate to the caller unchanged. Every other
// evaluation failure is local: the affected cell becomes "#ERR" and the
// pass continues.
func (e *Engine) EvaluateProject(project *domain.Project, req Request) (Metrics, error) {
	if project == nil {
		return Metrics{}, domain.NewDomainError(domain.ErrCodeInvalidInput, "engine: nil project", nil)
	}
	if !e.evalMu.TryLock() {
		return Metrics{}, ErrConcurrentEvaluation
	}
	defer e.evalMu.Unlock()

	var metrics Metrics
	totalStart := time.Now()

	e.cacheMu.Lock()
	structural := req.structural || e.cachedProject != project
	oldPlan := e.cachedPlan
	e.cacheMu.Unlock()

	var ctx *fctx.ProjectContext
	var plan *planner.Plan

	if structural {
		compileStart := time.Now()
		ctx = fctx.NewProjectContext(project)
		metrics.Compile = time.Since(compileStart)

		planStart := time.Now()
		newPlan, err := planner.Build(project, ctx, e.reg)
		metrics.Plan = time.Since(planStart)
		if err != nil {
			metrics.Total = time.Since(totalStart)
			e.logger.Error().Err(err).Msg("formulacore: dependency plan build failed")
			return metrics, err
		}
		plan = newPlan

		e.cacheMu.Lock()
		e.cachedProject = project
		e.cachedCtx = ctx
		e.cachedPlan = plan
		e.pruneDocVarCacheLocked(plan)
		e.cacheMu.Unlock()
	} else {
		e.cacheMu.Lock()
		ctx = e.cachedCtx
		plan = e.cachedPlan
		e.cacheMu.Unlock()
	}

	affected, dirtySeed := e.computeAffectedSet(req, plan, oldPlan, structural)

	ev := e.newEvaluator(ctx, plan)

	var derivedElapsed, evalElapsed time.Duration
	evaluatedTableCount := 0

	for _, nodeID := range plan.OrderedNodeIDs {
		if _, ok := affected[nodeID]; !ok {
			continue
		}

		if docID, name, ok := planner.ParseDocVarNode(nodeID); ok {
			t0 := time.Now()
			err := e.evaluateDocVar(ev, ctx, docID, name)
			evalElapsed += time.Since(t0)
			if err != nil {
				metrics.Derived, metrics.Evaluate = derivedElapsed, evalElapsed
				metrics.Total = time.Since(totalStart)
				e.logger.Error().Err(err).Str("docvar", nodeID).Msg("formulacore: document variable cycle")
				return metrics, err
			}
			continue
		}

		tableID, ok := planner.ParseTableNode(nodeID)
		if !ok {
			continue
		}
		table, ok := ctx.TableByID(tableID)
		if !ok {
			continue
		}

		if table.IsDerived() {
			_, inSeed := dirtySeed[nodeID]
			if req.fullEval || inSeed || e.hasAffectedDependency(plan, nodeID, affected) {
				t0 := time.Now()
				if err := e.rematerialize(table, ctx); err != nil {
					metrics.Derived, metrics.Evaluate = derivedElapsed+time.Since(t0), evalElapsed
					metrics.Total = time.Since(totalStart)
					return metrics, err
				}
				derivedElapsed += time.Since(t0)
			}
		}

		t0 := time.Now()
		cycleErr := e.evaluateTableCells(ev, ctx, table, req)
		evalElapsed += time.Since(t0)
		if cycleErr != nil {
			metrics.Derived, metrics.Evaluate = derivedElapsed, evalElapsed
			metrics.Total = time.Since(totalStart)
			e.logger.Error().Err(cycleErr).Str("table", table.Name).Msg("formulacore: runtime cycle")
			return metrics, cycleErr
		}
		evaluatedTableCount++
	}

	metrics.Derived = derivedElapsed
	metrics.Evaluate = evalElapsed
	metrics.EvaluatedTableCount = evaluatedTableCount
	metrics.UsedIncrementalPlan = !structural
	metrics.Total = time.Since(totalStart)

	e.logger.Info().
		Str("metrics", metrics.String()).
		Bool("structural", structural).
		Msg("formulacore: evaluation complete")
	e.recordMeter(metrics)

	return metrics, nil
}

// hasAffectedDependency reports whether any direct dependency of nodeID is
// in the affected set, the non-tautological half of the incremental
// rematerialization rule.
func (e *Engine) hasAffectedDependency(plan *planner.Plan, nodeID string, affected map[string]struct{}) bool {
	for _, dep := range plan.DependenciesByNode[nodeID] {
		if _, ok := affected[dep]; ok {
			return true
		}
	}
	return false
}

// rematerialize runs the derived-table pipeline for table and writes its
// output rows back, refreshing indexes and propagating any subtable
// binding inherited from a subtable base.
func (e *Engine) rematerialize(table *domain.Table, ctx *fctx.ProjectContext) error {
	result, err := derived.Resolve(table, ctx)
	if err != nil {
		return err
	}
	table.Rows = result.Rows
	table.RefreshIndexes()
	e.propagateSubtableBinding(table, ctx)
	return nil
}

// propagateSubtableBinding exposes ParentTableID/ParentRowColumnID on a
// derived table whose base is itself a subtable and whose projections
// carry the parent-row column through to an output column, so the rest of
// the system still treats the derived result as a subtable.
func (e *Engine) propagateSubtableBinding(table *domain.Table, ctx *fctx.ProjectContext) {
	cfg := table.Derived
	if cfg == nil || cfg.BaseTableID == domain.NilID {
		return
	}
	base, ok := ctx.TableByID(cfg.BaseTableID)
	if !ok || !base.IsSubtable() {
		return
	}
	for _, p := range cfg.Projections {
		if p.SourceTableID == cfg.BaseTableID && p.SourceColumnID == base.ParentRowColumnID {
			table.ParentTableID = base.ParentTableID
			table.ParentRowColumnID = p.OutputColumnID
			return
		}
	}
}

// evaluateDocVar compiles and evaluates one document variable's
// expression, caching the result (or cycle error) both into ev's
// precomputed map and into this Engine's cross-call cache.
// A *evaluator.CycleError is returned to the caller so EvaluateProject
// aborts rather than degrading the cycle into a cell value.
func (e *Engine) evaluateDocVar(ev *evaluator.Evaluator, ctx *fctx.ProjectContext, docID domain.DocumentID, name string) error {
	doc, ok := ctx.DocumentByID(docID)
	if !ok {
		return nil
	}
	expr, ok := doc.VariableExpr(name)
	if !ok {
		return nil
	}

	compiled := e.compile(expr)
	var val domain.FormulaValue
	var evalErr error
	if compiled.Valid {
		val, evalErr = ev.EvalRoot(compiled.Root, domain.DocumentFrame(doc))
	} else {
		val = domain.Null()
	}

	key := docVarCacheKey(docID, name)
	if cerr, ok := evalErr.(*evaluator.CycleError); ok {
		ev.SetPrecomputedDocumentVariable(docID, name, domain.Null(), cerr)
		e.cacheMu.Lock()
		e.docVarValues[key] = domain.Null()
		e.docVarErrs[key] = cerr
		e.cacheMu.Unlock()
		return cerr
	}

	ev.SetPrecomputedDocumentVariable(docID, name, val, nil)
	e.cacheMu.Lock()
	e.docVarValues[key] = val
	delete(e.docVarErrs, key)
	e.cacheMu.Unlock()
	return nil
}

// evaluateTableCells evaluates every formula-kind column and every
// per-cell formula override in table, writing results back onto the
// table's rows. In IncrementalTargeted mode, formula-column
// evaluation is restricted to the subtree reachable from the table's
// targeted column ids.
func (e *Engine) evaluateTableCells(ev *evaluator.Evaluator, ctx *fctx.ProjectContext, table *domain.Table, req Request) error {
	var allowed map[domain.ColumnID]bool
	if targets, ok := req.TargetedColumnIDsByTable[table.ID]; ok && len(targets) > 0 {
		allowed = e.reachableFormulaColumns(table, targets)
	}

	for _, col := range table.Columns {
		if col.Kind != domain.ColumnKindFormula || col.FormulaExpr == "" {
			continue
		}
		if allowed != nil && !allowed[col.ID] {
			continue
		}
		compiled := e.compile(col.FormulaExpr)
		for _, row := range table.Rows {
			cell, err := e.evalCell(ev, table, row, col, col.FormulaExpr, compiled, ctx)
			if err != nil {
				return err
			}
			row.Set(col.ID, cell)
		}
	}

	// Per-cell overrides are visited in column order so repeated runs see
	// the same evaluation sequence. Formula-kind
	// columns are skipped: the pass above already covers them.
	for _, col := range table.Columns {
		if col.Kind == domain.ColumnKindFormula {
			continue
		}
		for _, row := range table.Rows {
			existing, ok := row.Get(col.ID)
			if !ok || existing.FormulaExpr == "" {
				continue
			}
			compiled := e.compile(existing.FormulaExpr)
			cell, err := e.evalCell(ev, table, row, col, existing.FormulaExpr, compiled, ctx)
			if err != nil {
				return err
			}
			row.Set(col.ID, cell)
		}
	}
	return nil
}

func (e *Engine) evalCell(ev *evaluator.Evaluator, table *domain.Table, row *domain.Row, col *domain.Column, expr string, compiled lang.CompiledFormula, ctx *fctx.ProjectContext) (domain.CellValue, error) {
	if !compiled.Valid {
		return domain.ErrorCell(expr), nil
	}
	val, err := ev.EvalRoot(compiled.Root, domain.RootFrame(table, row))
	if cerr, ok := err.(*evaluator.CycleError); ok {
		return domain.CellValue{}, cerr
	}
	return domain.ConvertToCell(col.Kind, col.RelationTargetTableID, expr, val, ctx), nil
}

// reachableFormulaColumns computes the subtree of table's formula-column
// this_row_columns dependency graph reachable from targets: targets themselves plus every formula column
// that (transitively) references one of them via thisRow.<name>.
func (e *Engine) reachableFormulaColumns(table *domain.Table, targets []domain.ColumnID) map[domain.ColumnID]bool {
	nameToID := make(map[string]domain.ColumnID)
	isFormula := make(map[domain.ColumnID]bool)
	for _, c := range table.Columns {
		if c.Kind == domain.ColumnKindFormula && c.FormulaExpr != "" {
			isFormula[c.ID] = true
			nameToID[strings.ToLower(c.Name)] = c.ID
		}
	}

	dependents := make(map[domain.ColumnID][]domain.ColumnID)
	for _, c := range table.Columns {
		if !isFormula[c.ID] {
			continue
		}
		compiled := e.compile(c.FormulaExpr)
		for _, depName := range compiled.Deps.ThisRowColumnNames {
			if depID, ok := nameToID[strings.ToLower(depName)]; ok {
				dependents[depID] = append(dependents[depID], c.ID)
			}
		}
	}

	reachable := make(map[domain.ColumnID]bool)
	var stack []domain.ColumnID
	for _, t := range targets {
		if isFormula[t] && !reachable[t] {
			reachable[t] = true
			stack = append(stack, t)
		}
	}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, d := range dependents[n] {
			if !reachable[d] {
				reachable[d] = true
				stack = append(stack, d)
			}
		}
	}
	return reachable
}
