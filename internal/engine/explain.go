package engine

import (
	"fmt"

	"github.com/docforge/formulacore/internal/domain"
	"github.com/docforge/formulacore/internal/fctx"
	"github.com/docforge/formulacore/internal/planner"
)

// Explain returns the ordered dependency chain feeding tableID: every
// table and document-variable node the plan places strictly before
// tableID's own node because tableID transitively depends on it,
// rendered in the same topological order the plan would evaluate them
// in. It generalizes ExecutionPlan's wave/depth reporting into a
// read-only diagnostic; no parallel execution is implied.
// It is read-only and reflects whatever plan this Engine last built —
// run a Full evaluation first if the project may have changed since.
func (e *Engine) Explain(tableID domain.TableID) ([]string, error) {
	e.cacheMu.Lock()
	ctx := e.cachedCtx
	plan := e.cachedPlan
	e.cacheMu.Unlock()

	if ctx == nil || plan == nil {
		return nil, domain.NewDomainError(domain.ErrCodeNotFound, "engine: no evaluation has run yet", nil)
	}
	if _, ok := ctx.TableByID(tableID); !ok {
		return nil, domain.NewDomainError(domain.ErrCodeNotFound, fmt.Sprintf("engine: unknown table %s", tableID), nil)
	}

	nodeID := planner.TableNodeID(tableID)
	upstream := transitiveDependencies(plan, nodeID)
	delete(upstream, nodeID)

	out := make([]string, 0, len(upstream))
	for _, id := range plan.OrderedNodeIDs {
		if _, ok := upstream[id]; ok {
			out = append(out, describeNode(ctx, id))
		}
	}
	return out, nil
}

// transitiveDependencies walks plan.DependenciesByNode backwards from
// nodeID (inclusive), the mirror image of Plan.TransitiveDependents.
func transitiveDependencies(plan *planner.Plan, nodeID string) map[string]struct{} {
	seen := map[string]struct{}{nodeID: {}}
	stack := []string{nodeID}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, dep := range plan.DependenciesByNode[n] {
			if _, ok := seen[dep]; !ok {
				seen[dep] = struct{}{}
				stack = append(stack, dep)
			}
		}
	}
	return seen
}

// describeNode renders a plan node id as a human-readable label: the
// table's name for a "table:" node, or "<title>.@<name>" for a
// "docvar:" node.
func describeNode(ctx fctx.Context, nodeID string) string {
	if tableID, ok := planner.ParseTableNode(nodeID); ok {
		if t, ok := ctx.TableByID(tableID); ok {
			return t.Name
		}
		return nodeID
	}
	if docID, name, ok := planner.ParseDocVarNode(nodeID); ok {
		if d, ok := ctx.DocumentByID(docID); ok {
			return fmt.Sprintf("%s.@%s", d.Title, name)
		}
		return nodeID
	}
	return nodeID
}
