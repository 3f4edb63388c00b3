package graph

import "beliefgraph/core/probability"

// AutoAssignTypes retypes fact/assertion nodes from topology: no incoming
// edges makes a Fact, any incoming edge makes an Assertion. Logic nodes and
// notes are left alone. A Fact becoming an Assertion turns Lite-virgin and
// receives the neutral Heavy prior if it has none. Returns whether any node
// changed.
func AutoAssignTypes(g *Graph) bool {
	changed := false

	g.StartBatch()
	defer g.EndBatch()

	for _, n := range g.Nodes() {
		if n.Type.IsLogic() || n.Type == NodeNote {
			continue
		}
		want := NodeAssertion
		if len(g.incoming[n.ID]) == 0 {
			want = NodeFact
		}
		if n.Type == want {
			continue
		}
		changed = true
		g.SetType(n.ID, want)

		switch want {
		case NodeFact:
			heavy := n.Heavy
			heavy.Prob = Some(probability.FactProbability)
			g.SetHeavy(n.ID, heavy)
		case NodeAssertion:
			g.SetLite(n.ID, LiteState{Virgin: true})
			if !n.Heavy.Prob.IsSet() {
				heavy := n.Heavy
				heavy.Prob = Some(probability.NeutralPrior)
				g.SetHeavy(n.ID, heavy)
			}
		}
	}
	return changed
}
