// SPDX-License-Identifier: MPL-2.0

// Package dag orders packages so that dependencies load before their dependents.
// It is a small Kahn topological sort over string-keyed nodes with cycle reporting.
package dag

import (
	"fmt"
	"strings"
)

type (
	// CycleError reports nodes that could not be ordered because they sit on,
	// or behind, a dependency cycle.
	CycleError struct {
		Cycle []string
	}

	// Graph is a directed graph of load-before relations. An edge from A to B
	// means A loads before B. Nodes keep insertion order so results are stable.
	Graph struct {
		adjacency map[string][]string
		nodes     []string
		nodeSet   map[string]bool
		edgeSet   map[[2]string]bool
	}
)

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(e.Cycle, " -> "))
}

// New creates an empty Graph.
func New() *Graph {
	return &Graph{
		adjacency: make(map[string][]string),
		nodeSet:   make(map[string]bool),
		edgeSet:   make(map[[2]string]bool),
	}
}

// AddNode adds a node. Adding an existing node is a no-op.
func (g *Graph) AddNode(name string) {
	if g.nodeSet[name] {
		return
	}
	g.nodeSet[name] = true
	g.nodes = append(g.nodes, name)
}

// AddEdge records that from loads before to, adding both nodes when needed.
// Self edges and duplicate edges are ignored.
func (g *Graph) AddEdge(from, to string) {
	g.AddNode(from)
	g.AddNode(to)
	key := [2]string{from, to}
	if from == to || g.edgeSet[key] {
		return
	}
	g.edgeSet[key] = true
	g.adjacency[from] = append(g.adjacency[from], to)
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// TopologicalSort returns a load order, or a CycleError if some nodes cannot be
// ordered. Nodes on the same level keep insertion order.
func (g *Graph) TopologicalSort() ([]string, error) {
	order, rest := g.sort()
	if len(rest) > 0 {
		return nil, &CycleError{Cycle: rest}
	}
	return order, nil
}

// Order is like TopologicalSort but never fails: nodes that cannot be ordered are
// appended in insertion order. The CycleError is still returned for reporting.
func (g *Graph) Order() ([]string, *CycleError) {
	order, rest := g.sort()
	if len(rest) > 0 {
		return append(order, rest...), &CycleError{Cycle: rest}
	}
	return order, nil
}

func (g *Graph) sort() (order, rest []string) {
	if len(g.nodes) == 0 {
		return nil, nil
	}

	inDegree := make(map[string]int, len(g.nodes))
	for _, neighbors := range g.adjacency {
		for _, neighbor := range neighbors {
			inDegree[neighbor]++
		}
	}

	queue := make([]string, 0, len(g.nodes))
	for _, node := range g.nodes {
		if inDegree[node] == 0 {
			queue = append(queue, node)
		}
	}

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)

		for _, neighbor := range g.adjacency[node] {
			inDegree[neighbor]--
			if inDegree[neighbor] == 0 {
				queue = append(queue, neighbor)
			}
		}
	}

	for _, node := range g.nodes {
		if inDegree[node] > 0 {
			rest = append(rest, node)
		}
	}
	return order, rest
}
