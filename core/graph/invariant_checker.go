// Package graph - Invariant assertions
// These assertions verify graph state at boundaries: after loading, after
// propagation and after a causal query has restored the graph.
package graph

import (
	"fmt"
	"math"
)

// InvariantViolation represents a detected invariant violation
type InvariantViolation struct {
	Invariant string
	Location  string
	Details   string
}

func (v *InvariantViolation) Error() string {
	return fmt.Sprintf("INVARIANT VIOLATED [%s] at %s: %s", v.Invariant, v.Location, v.Details)
}

// InvariantChecker verifies graph invariants. In strict mode the first
// violation panics; otherwise violations are collected.
type InvariantChecker struct {
	violations []InvariantViolation
	strictMode bool
}

// NewInvariantChecker creates a checker
func NewInvariantChecker(strictMode bool) *InvariantChecker {
	return &InvariantChecker{
		violations: []InvariantViolation{},
		strictMode: strictMode,
	}
}

// AssertAcyclic asserts the graph has no directed cycle
func (c *InvariantChecker) AssertAcyclic(g *Graph) error {
	indegree := make(map[string]int, len(g.nodes))
	for id := range g.nodes {
		indegree[id] = len(g.incoming[id])
	}
	var queue []string
	for _, id := range g.NodeIDs() {
		if indegree[id] == 0 {
			queue = append(queue, id)
		}
	}
	seen := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		seen++
		for _, eid := range g.outgoing[id] {
			t := g.edges[eid].Target
			indegree[t]--
			if indegree[t] == 0 {
				queue = append(queue, t)
			}
		}
	}
	if seen != len(g.nodes) {
		return c.fail("ACYCLIC", "graph", fmt.Sprintf("%d nodes lie on a cycle", len(g.nodes)-seen))
	}
	return nil
}

// AssertEdge asserts an edge carries a normalized weight and a CPT in range
// whose baseline lies between its conditionals.
func (c *InvariantChecker) AssertEdge(e *Edge) error {
	if e.Weight < 0 || math.IsNaN(e.Weight) {
		return c.fail("WEIGHT_MAGNITUDE", "edge "+e.ID,
			fmt.Sprintf("weight %v must be a non-negative magnitude; the sign belongs in opposes", e.Weight))
	}
	if e.CPT != nil {
		entries := []namedValue{{"cond_true", e.CPT.CondTrue}, {"cond_false", e.CPT.CondFalse}, {"baseline", e.CPT.Baseline}}
		for _, v := range entries {
			if x, ok := v.value.Get(); ok && (!v.value.IsFinite() || x < 0 || x > 100) {
				return c.fail("CPT_RANGE", "edge "+e.ID, fmt.Sprintf("%s %v outside [0, 100]", v.name, x))
			}
		}
		if baseline, ok := e.CPT.Baseline.Get(); ok && e.CPT.Complete() {
			low, high := e.CPT.CondFalse.Or(0), e.CPT.CondTrue.Or(0)
			if e.CPT.Inverse {
				low, high = high, low
			}
			if baseline < low || baseline > high {
				return c.fail("CPT_BASELINE", "edge "+e.ID,
					fmt.Sprintf("baseline %v outside [%v, %v] spanned by the conditionals", baseline, low, high))
			}
		}
	}
	return nil
}

// AssertNode asserts a node's probabilities are finite and in [0, 1], a
// virgin node has no Lite probability, and no intervention is left behind.
func (c *InvariantChecker) AssertNode(n *Node) error {
	probs := []namedValue{{"lite", n.Lite.Prob}, {"heavy", n.Heavy.Prob}, {"robustness", n.Lite.Robustness}}
	for _, p := range probs {
		if x, ok := p.value.Get(); ok && (!p.value.IsFinite() || x < 0 || x > 1) {
			return c.fail("PROB_RANGE", "node "+n.ID, fmt.Sprintf("%s probability %v outside [0, 1]", p.name, x))
		}
	}
	if n.Lite.Virgin && n.Lite.Prob.IsSet() {
		return c.fail("VIRGIN_UNDEFINED", "node "+n.ID, "virgin node has a lite probability")
	}
	if n.Heavy.Intervention != nil {
		return c.fail("NO_LINGERING_INTERVENTION", "node "+n.ID, "intervention still applied")
	}
	return nil
}

type namedValue struct {
	name  string
	value Optional
}

func (c *InvariantChecker) fail(invariant, location, details string) error {
	v := InvariantViolation{
		Invariant: invariant,
		Location:  location,
		Details:   details,
	}
	c.violations = append(c.violations, v)

	if c.strictMode {
		panic(v.Error())
	}
	return &v
}

// GetViolations returns all recorded violations
func (c *InvariantChecker) GetViolations() []InvariantViolation {
	return c.violations
}

// HasViolations returns true if any violations occurred
func (c *InvariantChecker) HasViolations() bool {
	return len(c.violations) > 0
}

// RunFullCheck runs every invariant check over the graph
func (c *InvariantChecker) RunFullCheck(g *Graph) error {
	if err := c.AssertAcyclic(g); err != nil && c.strictMode {
		return err
	}
	for _, e := range g.Edges() {
		if err := c.AssertEdge(e); err != nil && c.strictMode {
			return err
		}
	}
	for _, n := range g.Nodes() {
		if err := c.AssertNode(n); err != nil && c.strictMode {
			return err
		}
	}
	if c.HasViolations() {
		return &c.violations[0]
	}
	return nil
}
