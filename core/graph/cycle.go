package graph

// WouldCreateCycle reports whether adding sourceID -> targetID would close
// a cycle: true for self-loops and whenever targetID already reaches
// sourceID along outgoing edges. It never mutates the graph.
func WouldCreateCycle(g *Graph, sourceID, targetID string) bool {
	if sourceID == targetID {
		return true
	}

	visited := make(map[string]bool)
	stack := []string{targetID}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if current == sourceID {
			return true
		}
		if visited[current] {
			continue
		}
		visited[current] = true
		for _, id := range g.outgoing[current] {
			if next := g.edges[id].Target; !visited[next] {
				stack = append(stack, next)
			}
		}
	}
	return false
}

// Ancestors returns the given nodes plus everything that reaches them,
// following parent pointers.
func Ancestors(g *Graph, ids ...string) map[string]bool {
	closure := make(map[string]bool, len(ids))
	stack := make([]string, 0, len(ids))
	for _, id := range ids {
		if !closure[id] {
			closure[id] = true
			stack = append(stack, id)
		}
	}
	for len(stack) > 0 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, p := range g.Parents(v) {
			if !closure[p] {
				closure[p] = true
				stack = append(stack, p)
			}
		}
	}
	return closure
}
