// Package planner builds the dependency DAG over tables and document
// variables and topologically sorts it: forward/reverse adjacency maps
// plus Kahn's algorithm, with a DFS pass that recovers a witness path
// when the graph turns out not to be a DAG.
package planner

import (
	"strings"

	"github.com/google/uuid"

	"github.com/docforge/formulacore/internal/domain"
)

const (
	tableNodePrefix  = "table:"
	docVarNodePrefix = "docvar:"
)

// TableNodeID builds the planner node id for a table.
func TableNodeID(id domain.TableID) string {
	return tableNodePrefix + id.String()
}

// DocVarNodeID builds the planner node id for a document variable; name is
// lower-cased so lookups are case-insensitive like the rest of the system.
func DocVarNodeID(docID domain.DocumentID, name string) string {
	return docVarNodePrefix + docID.String() + ":" + strings.ToLower(name)
}

// ParseTableNode extracts the table id from a "table:{id}" node id.
func ParseTableNode(nodeID string) (domain.TableID, bool) {
	rest, ok := strings.CutPrefix(nodeID, tableNodePrefix)
	if !ok {
		return domain.NilID, false
	}
	id, err := parseUUID(rest)
	if err != nil {
		return domain.NilID, false
	}
	return id, true
}

// ParseDocVarNode extracts the document id and lower-cased variable name
// from a "docvar:{docId}:{name}" node id.
func ParseDocVarNode(nodeID string) (domain.DocumentID, string, bool) {
	rest, ok := strings.CutPrefix(nodeID, docVarNodePrefix)
	if !ok {
		return domain.NilID, "", false
	}
	parts := strings.SplitN(rest, ":", 2)
	if len(parts) != 2 {
		return domain.NilID, "", false
	}
	id, err := parseUUID(parts[0])
	if err != nil {
		return domain.NilID, "", false
	}
	return id, parts[1], true
}

func parseUUID(s string) (domain.TableID, error) {
	return uuid.Parse(s)
}

// DocVarNode records the identity and source expression behind a
// "docvar:..." planner node.
type DocVarNode struct {
	DocumentID domain.DocumentID
	Name       string
	Expr       string
}

// Plan is the built dependency graph: deterministic topo order plus the
// adjacency maps and lookup tables the engine needs to drive evaluation.
type Plan struct {
	OrderedNodeIDs     []string
	DependentsByNode   map[string][]string
	DependenciesByNode map[string][]string
	TableNodeIDs       map[string]struct{}

	DocVariableNodesByID         map[string]DocVarNode
	DocVariableNodeIDsByDocument map[domain.DocumentID][]string
}

// TransitiveDependents returns the set of node ids reachable from seeds by
// following DependentsByNode edges (inclusive of the seeds themselves),
// used by the engine to expand a dirty set for incremental evaluation.
func (p *Plan) TransitiveDependents(seeds []string) map[string]struct{} {
	affected := make(map[string]struct{}, len(seeds))
	var stack []string
	for _, s := range seeds {
		if _, ok := affected[s]; !ok {
			affected[s] = struct{}{}
			stack = append(stack, s)
		}
	}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, dep := range p.DependentsByNode[n] {
			if _, ok := affected[dep]; !ok {
				affected[dep] = struct{}{}
				stack = append(stack, dep)
			}
		}
	}
	return affected
}

func fmtCyclePath(cycle []string) string {
	return strings.Join(cycle, " -> ")
}
