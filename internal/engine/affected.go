package engine

import (
	"github.com/docforge/formulacore/internal/planner"
)

// computeAffectedSet resolves a Request plus the active plan (and, for a
// structural request, the superseded plan) into the set of node ids to
// evaluate this call, and the subset of those that were named directly by
// the request (as opposed to pulled in as a transitive dependent) — the
// "dirty seed" set a derived table's rematerialization rule checks.
//
// A request mixing document dirtiness with a structural refresh has its
// old-plan affected set computed first and merged in, so nodes no longer
// reachable from the rebuilt plan are still re-evaluated once before they
// disappear from future runs.
func (e *Engine) computeAffectedSet(req Request, plan, oldPlan *planner.Plan, structural bool) (affected, dirtySeed map[string]struct{}) {
	if req.fullEval {
		affected = make(map[string]struct{}, len(plan.OrderedNodeIDs))
		for _, id := range plan.OrderedNodeIDs {
			affected[id] = struct{}{}
		}
		return affected, affected
	}

	seeds := make([]string, 0, len(req.DirtyTableIDs)+len(req.DirtyDocumentIDs))
	for _, tid := range req.DirtyTableIDs {
		seeds = append(seeds, planner.TableNodeID(tid))
	}
	for _, docID := range req.DirtyDocumentIDs {
		seeds = append(seeds, plan.DocVariableNodeIDsByDocument[docID]...)
	}

	dirtySeed = make(map[string]struct{}, len(seeds))
	for _, s := range seeds {
		dirtySeed[s] = struct{}{}
	}

	affected = plan.TransitiveDependents(seeds)

	if structural && oldPlan != nil && len(req.DirtyDocumentIDs) > 0 {
		oldSeeds := make([]string, 0, len(req.DirtyDocumentIDs))
		for _, docID := range req.DirtyDocumentIDs {
			oldSeeds = append(oldSeeds, oldPlan.DocVariableNodeIDsByDocument[docID]...)
		}
		oldAffected := oldPlan.TransitiveDependents(oldSeeds)

		stillExists := make(map[string]struct{}, len(plan.OrderedNodeIDs))
		for _, id := range plan.OrderedNodeIDs {
			stillExists[id] = struct{}{}
		}
		for id := range oldAffected {
			if _, ok := stillExists[id]; ok {
				affected[id] = struct{}{}
			}
		}
	}

	return affected, dirtySeed
}

// pruneDocVarCacheLocked drops cached document-variable values for nodes no
// longer present in a freshly rebuilt plan, so a removed document variable
// doesn't linger in the Engine's cross-call cache forever. Caller must hold
// cacheMu.
func (e *Engine) pruneDocVarCacheLocked(plan *planner.Plan) {
	live := make(map[string]struct{}, len(plan.DocVariableNodesByID))
	for _, node := range plan.DocVariableNodesByID {
		live[docVarCacheKey(node.DocumentID, node.Name)] = struct{}{}
	}
	for key := range e.docVarValues {
		if _, ok := live[key]; !ok {
			delete(e.docVarValues, key)
			delete(e.docVarErrs, key)
		}
	}
}
