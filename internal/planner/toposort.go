package planner

import (
	"fmt"
)

// kahnSort runs Kahn's algorithm over order/dependenciesByNode/
// dependentsByNode, seeding and draining the queue in `order`'s sequence
// so the result is deterministic for an unchanged graph.
func kahnSort(order []string, dependenciesByNode, dependentsByNode map[string][]string) []string {
	inDegree := make(map[string]int, len(order))
	for _, n := range order {
		inDegree[n] = len(dependenciesByNode[n])
	}

	queue := make([]string, 0, len(order))
	for _, n := range order {
		if inDegree[n] == 0 {
			queue = append(queue, n)
		}
	}

	result := make([]string, 0, len(order))
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		result = append(result, n)

		for _, dep := range dependentsByNode[n] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}
	return result
}

// findCycle runs DFS from each node in `order` (in order) to recover an
// arrow-joinable witness path for an error message.
func findCycle(order []string, dependentsByNode map[string][]string) []string {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(order))
	var path []string

	var dfs func(node string) []string
	dfs = func(node string) []string {
		state[node] = visiting
		path = append(path, node)

		for _, next := range dependentsByNode[node] {
			switch state[next] {
			case visiting:
				for i, p := range path {
					if p == next {
						cycle := append([]string{}, path[i:]...)
						return append(cycle, next)
					}
				}
			case unvisited:
				if cycle := dfs(next); cycle != nil {
					return cycle
				}
			}
		}

		path = path[:len(path)-1]
		state[node] = done
		return nil
	}

	for _, n := range order {
		if state[n] == unvisited {
			if cycle := dfs(n); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

// sortGraph topologically sorts order, returning a cycle error built from
// an arrow-joined witness path when the graph is not a DAG.
func sortGraph(order []string, dependenciesByNode, dependentsByNode map[string][]string) ([]string, error) {
	result := kahnSort(order, dependenciesByNode, dependentsByNode)
	if len(result) == len(order) {
		return result, nil
	}
	cycle := findCycle(order, dependentsByNode)
	return nil, fmt.Errorf("dependency cycle: %s", fmtCyclePath(cycle))
}
