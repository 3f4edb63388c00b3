package causal

import (
	"go.uber.org/zap"

	"beliefgraph/core/graph"
	"beliefgraph/internal/logging"
)

// IsDSeparated reports whether every node in x is d-separated from every
// node in y given z, using the moralized ancestral graph test:
//  1. take the ancestral closure of x, y and z
//  2. connect each closure edge undirected, and marry co-parents
//  3. delete z
//  4. x and y are separated iff no y is reachable from x
func IsDSeparated(g *graph.Graph, x, y, z []string) bool {
	all := make([]string, 0, len(x)+len(y)+len(z))
	all = append(all, x...)
	all = append(all, y...)
	all = append(all, z...)
	closure := graph.Ancestors(g, all...)

	moral := make(map[string]map[string]bool, len(closure))
	connect := func(a, b string) {
		if a == b {
			return
		}
		if moral[a] == nil {
			moral[a] = make(map[string]bool)
		}
		if moral[b] == nil {
			moral[b] = make(map[string]bool)
		}
		moral[a][b] = true
		moral[b][a] = true
	}

	for _, e := range g.Edges() {
		if closure[e.Source] && closure[e.Target] {
			connect(e.Source, e.Target)
		}
	}
	for v := range closure {
		var parents []string
		for _, p := range g.Parents(v) {
			if closure[p] {
				parents = append(parents, p)
			}
		}
		for i := 0; i < len(parents); i++ {
			for j := i + 1; j < len(parents); j++ {
				connect(parents[i], parents[j])
			}
		}
	}

	blocked := make(map[string]bool, len(z))
	for _, id := range z {
		blocked[id] = true
	}
	targets := make(map[string]bool, len(y))
	for _, id := range y {
		targets[id] = true
	}

	visited := make(map[string]bool)
	var queue []string
	for _, id := range x {
		if !blocked[id] && closure[id] {
			queue = append(queue, id)
		}
	}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		if visited[v] {
			continue
		}
		visited[v] = true
		if targets[v] {
			return false
		}
		for n := range moral[v] {
			if !visited[n] && !blocked[n] {
				queue = append(queue, n)
			}
		}
	}
	return true
}

// SatisfiesBackdoor is a sufficient check that z blocks every backdoor path
// from x to y: with x's outgoing edges removed, x and y must be d-separated
// given z. The removed edges are restored on every exit path.
func SatisfiesBackdoor(g *graph.Graph, x, y, z []string) bool {
	var ids []string
	for _, id := range x {
		for _, e := range g.Outgoing(id) {
			ids = append(ids, e.ID)
		}
	}

	g.StartBatch()
	removed := g.RemoveEdges(ids...)
	defer func() {
		defer g.EndBatch()
		for _, e := range removed {
			if _, err := g.AddEdge(e); err != nil {
				logging.Error("restoring edge after backdoor check failed",
					zap.String("edge", e.ID), zap.Error(err))
			}
		}
	}()

	return IsDSeparated(g, x, y, z)
}
