package lite

import (
	"math"

	"beliefgraph/core/graph"
	"beliefgraph/core/probability"
)

// ResolveNodes relaxes node probabilities until no value moves by more than
// epsilon, or MaxIters is reached.
func (e *Engine) ResolveNodes(g *graph.Graph) StageResult {
	result := StageResult{}
	nodes := g.Nodes()

	for iter := 0; iter < e.opts.MaxIters; iter++ {
		result.Iterations = iter + 1

		prev := make(map[string]graph.LiteState, len(nodes))
		for _, n := range nodes {
			prev[n.ID] = n.Lite
		}

		next := make([]graph.LiteState, len(nodes))
		changed := false
		maxDelta := 0.0
		for i, n := range nodes {
			next[i] = e.resolveNode(g, n, prev)
			if next[i] != n.Lite {
				changed = true
			}
			maxDelta = math.Max(maxDelta, delta(n.Lite.Prob, next[i].Prob))
		}

		g.StartBatch()
		for i, n := range nodes {
			if next[i] != n.Lite {
				g.SetLite(n.ID, next[i])
			}
		}
		g.EndBatch()

		result.FinalDelta = maxDelta
		if !changed || maxDelta < e.opts.Epsilon {
			result.Converged = true
			break
		}
	}
	return result
}

// delta is the absolute change between two optional probabilities. Gaining
// or losing a value counts as a full change.
func delta(a, b graph.Optional) float64 {
	av, aok := a.Get()
	bv, bok := b.Get()
	switch {
	case aok && bok:
		return math.Abs(av - bv)
	case aok != bok:
		return 1
	default:
		return 0
	}
}

func (e *Engine) resolveNode(g *graph.Graph, n *graph.Node, prev map[string]graph.LiteState) graph.LiteState {
	switch n.Type {
	case graph.NodeFact:
		return graph.LiteState{Prob: graph.Some(probability.FactProbability)}
	case graph.NodeAnd, graph.NodeOr:
		return resolveLogic(g, n, prev)
	case graph.NodeAssertion:
		return e.resolveAssertion(g, n, prev)
	default:
		return graph.LiteState{}
	}
}

// parentProb returns the value a parent exposes to its children. Virgin
// parents expose nothing.
func parentProb(g *graph.Graph, id string, prev map[string]graph.LiteState) (float64, bool) {
	p, ok := g.Node(id)
	if !ok {
		return 0, false
	}
	if p.Type == graph.NodeFact {
		return probability.FactProbability, true
	}
	s := prev[id]
	if s.Virgin || !s.Prob.IsFinite() {
		return 0, false
	}
	v, _ := s.Prob.Get()
	return v, true
}

func resolveLogic(g *graph.Graph, n *graph.Node, prev map[string]graph.LiteState) graph.LiteState {
	parents := g.Parents(n.ID)
	if len(parents) == 0 {
		return graph.LiteState{Virgin: true}
	}

	product := 1.0
	for _, id := range parents {
		p, ok := parentProb(g, id, prev)
		if !ok {
			return graph.LiteState{Virgin: true}
		}
		if n.Type == graph.NodeAnd {
			product *= p
		} else {
			product *= 1 - p
		}
	}

	if n.Type == graph.NodeOr {
		product = 1 - product
	}
	return graph.LiteState{Prob: graph.Some(probability.Finite01(product, 0))}
}

type evidence struct {
	weight     float64
	parentProb float64
	sourceType graph.NodeType
}

func (e *Engine) resolveAssertion(g *graph.Graph, n *graph.Node, prev map[string]graph.LiteState) graph.LiteState {
	var valid []evidence
	for _, edge := range g.Incoming(n.ID) {
		if edge.Lite.Virgin || edge.Lite.EffectiveWeight == 0 {
			continue
		}
		p, ok := parentProb(g, edge.Source, prev)
		if !ok {
			continue
		}
		src, _ := g.Node(edge.Source)
		valid = append(valid, evidence{
			weight:     edge.Lite.EffectiveWeight,
			parentProb: p,
			sourceType: src.Type,
		})
	}

	if len(valid) == 0 {
		return graph.LiteState{Virgin: true}
	}

	priorLogOdds := probability.Logit(probability.Clamp(e.opts.Prior, e.opts.ClampEpsilon))

	rawDelta, totalWeight, robustWeight := 0.0, 0.0, 0.0
	for _, ev := range valid {
		parentLogOdds := probability.Logit(probability.Clamp(ev.parentProb, e.opts.ClampEpsilon))
		rawDelta += ev.weight * (parentLogOdds - priorLogOdds)
		totalWeight += math.Abs(ev.weight)
		if ev.sourceType == graph.NodeFact || ev.sourceType == graph.NodeAssertion {
			robustWeight += math.Abs(ev.weight)
		}
	}

	saturated := rawDelta * probability.Saturation(totalWeight, e.opts.SaturationK)
	p := probability.Finite01(probability.Logistic(priorLogOdds+saturated), e.opts.Prior)

	robustness := probability.Saturation(robustWeight, e.opts.SaturationK)
	return graph.LiteState{
		Prob:            graph.Some(p),
		Robustness:      graph.Some(robustness),
		RobustnessLabel: probability.RobustnessLabel(robustness),
	}
}
