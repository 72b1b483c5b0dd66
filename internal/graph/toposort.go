package graph

import (
	"fmt"
	"sort"
)

// TopoResult holds the result of topological sorting.
type TopoResult struct {
	// Order is the creation order: referenced tables before referencing ones.
	Order []string
	// HasCycle is true if the graph contains a cycle.
	HasCycle bool
	// CycleTables lists tables involved in cycles (if any).
	CycleTables []string
}

// TopoSort performs Kahn's algorithm on the given set of tables within the graph.
// Ties are broken by name so the order is stable between runs.
func TopoSort(g *Graph, tables []string) TopoResult {
	tables = append([]string(nil), tables...)
	sort.Strings(tables)

	tableSet := make(map[string]bool, len(tables))
	for _, t := range tables {
		tableSet[t] = true
	}

	// in-degree = number of parent edges within the subset
	inDegree := make(map[string]int, len(tables))
	localChildren := make(map[string][]string)
	for _, t := range tables {
		for _, p := range g.Parents[t] {
			if tableSet[p] {
				localChildren[p] = append(localChildren[p], t)
				inDegree[t]++
			}
		}
	}

	var queue []string
	for _, t := range tables {
		if inDegree[t] == 0 {
			queue = append(queue, t)
		}
	}

	var order []string
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)

		var ready []string
		for _, child := range localChildren[node] {
			inDegree[child]--
			if inDegree[child] == 0 {
				ready = append(ready, child)
			}
		}
		sort.Strings(ready)
		queue = append(queue, ready...)
	}

	result := TopoResult{Order: order}

	if len(order) < len(tables) {
		result.HasCycle = true
		for _, t := range tables {
			if inDegree[t] > 0 {
				result.CycleTables = append(result.CycleTables, t)
			}
		}
	}

	return result
}

// TopoSortAll performs topological sort across all tables in the graph.
func TopoSortAll(g *Graph) TopoResult {
	return TopoSort(g, g.names())
}

// ValidateCycles checks for cycles and returns a descriptive error if found.
func ValidateCycles(result TopoResult) error {
	if !result.HasCycle {
		return nil
	}
	return fmt.Errorf("circular dependency detected among tables: %v", result.CycleTables)
}
