// Package heavy implements Bayesian ("Bayes Heavy") belief propagation over
// conditional probability tables.
//
// A single-parent assertion mixes its CPT with the parent's probability. An
// assertion with several parents combines each parent's pass-through
// probability by summing log-odds, which assumes the parents are
// independent (naive Bayes). That is an approximation of full joint-CPT
// inference and is intentionally kept as such.
package heavy

import (
	"math"

	"go.uber.org/zap"

	"beliefgraph/core/graph"
	"beliefgraph/core/probability"
	"beliefgraph/internal/logging"
)

// Options tunes the Heavy engine
type Options struct {
	// MaxIters caps the relaxation
	MaxIters int `json:"max_iters" yaml:"max_iters" validate:"gt=0"`

	// Tolerance is the convergence threshold
	Tolerance float64 `json:"tolerance" yaml:"tolerance" validate:"gt=0,lt=1"`

	// OddsGuard skips a parent whose pass-through 1-p is not above it
	OddsGuard float64 `json:"odds_guard" yaml:"odds_guard" validate:"gt=0,lt=1"`

	// ClampEpsilon keeps pass-through probabilities off zero before the log
	ClampEpsilon float64 `json:"clamp_epsilon" yaml:"clamp_epsilon" validate:"gt=0,lt=0.5"`
}

// DefaultOptions returns the standard Heavy settings
func DefaultOptions() Options {
	return Options{
		MaxIters:     10,
		Tolerance:    0.001,
		OddsGuard:    0.001,
		ClampEpsilon: 1e-9,
	}
}

// Result reports how a Heavy run ended
type Result struct {
	Converged  bool    `json:"converged"`
	Iterations int     `json:"iterations"`
	FinalDelta float64 `json:"final_delta"`
}

// Engine runs Heavy propagation
type Engine struct {
	opts Options
}

// NewEngine creates an engine. Out-of-range options fall back to defaults.
func NewEngine(opts Options) *Engine {
	def := DefaultOptions()
	if opts.MaxIters <= 0 {
		opts.MaxIters = def.MaxIters
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = def.Tolerance
	}
	if opts.OddsGuard <= 0 || opts.OddsGuard >= 1 {
		opts.OddsGuard = def.OddsGuard
	}
	if opts.ClampEpsilon <= 0 || opts.ClampEpsilon >= 0.5 {
		opts.ClampEpsilon = def.ClampEpsilon
	}
	return &Engine{opts: opts}
}

// Options returns the effective options
func (e *Engine) Options() Options {
	return e.opts
}

// Converge initializes missing heavy probabilities and relaxes them to a
// fixed point. Running out of iterations is logged, not returned as an error.
func (e *Engine) Converge(g *graph.Graph) Result {
	nodes := g.Nodes()
	result := Result{}

	g.StartBatch()
	defer g.EndBatch()

	initialize(g, nodes)

	for iter := 0; iter < e.opts.MaxIters; iter++ {
		result.Iterations = iter + 1

		prev := make(map[string]graph.Optional, len(nodes))
		for _, n := range nodes {
			prev[n.ID] = n.Heavy.Prob
		}

		next := make([]graph.Optional, len(nodes))
		maxDelta := 0.0
		for i, n := range nodes {
			next[i] = e.resolveNode(g, n, prev)
			if a, ok := next[i].Get(); ok {
				if b, ok := n.Heavy.Prob.Get(); ok {
					maxDelta = math.Max(maxDelta, math.Abs(a-b))
				}
			}
		}

		for i, n := range nodes {
			if next[i] != n.Heavy.Prob {
				heavy := n.Heavy
				heavy.Prob = next[i]
				g.SetHeavy(n.ID, heavy)
			}
		}

		result.FinalDelta = maxDelta
		if maxDelta < e.opts.Tolerance {
			result.Converged = true
			break
		}
	}

	if !result.Converged {
		logging.Warn("heavy propagation did not converge",
			zap.Int("max_iters", e.opts.MaxIters),
			zap.Float64("final_delta", result.FinalDelta))
	}
	return result
}

// initialize pins facts and intervened nodes and gives every assertion and
// logic node without a value the neutral prior.
func initialize(g *graph.Graph, nodes []*graph.Node) {
	for _, n := range nodes {
		var want graph.Optional
		switch {
		case n.Heavy.Intervention != nil:
			want = graph.Some(probability.Clamp01(n.Heavy.Intervention.Value))
		case n.Type == graph.NodeFact:
			want = graph.Some(probability.FactProbability)
		case (n.Type == graph.NodeAssertion || n.Type.IsLogic()) && !n.Heavy.Prob.IsSet():
			want = graph.Some(probability.NeutralPrior)
		default:
			continue
		}
		if want != n.Heavy.Prob {
			heavy := n.Heavy
			heavy.Prob = want
			g.SetHeavy(n.ID, heavy)
		}
	}
}

func (e *Engine) resolveNode(g *graph.Graph, n *graph.Node, prev map[string]graph.Optional) graph.Optional {
	if n.Heavy.Intervention != nil {
		return graph.Some(probability.Clamp01(n.Heavy.Intervention.Value))
	}
	switch n.Type {
	case graph.NodeFact:
		return graph.Some(probability.FactProbability)
	case graph.NodeAnd, graph.NodeOr:
		return resolveLogic(g, n, prev)
	case graph.NodeAssertion:
		return e.resolveAssertion(g, n, prev)
	default:
		return n.Heavy.Prob
	}
}

func resolveLogic(g *graph.Graph, n *graph.Node, prev map[string]graph.Optional) graph.Optional {
	parents := g.Parents(n.ID)
	if len(parents) == 0 {
		return n.Heavy.Prob
	}

	product := 1.0
	for _, id := range parents {
		p := probability.Clamp01(prev[id].Or(probability.NeutralPrior))
		if n.Type == graph.NodeAnd {
			product *= p
		} else {
			product *= 1 - p
		}
	}
	if n.Type == graph.NodeOr {
		product = 1 - product
	}
	return graph.Some(probability.Finite01(product, probability.NeutralPrior))
}

func (e *Engine) resolveAssertion(g *graph.Graph, n *graph.Node, prev map[string]graph.Optional) graph.Optional {
	type parent struct {
		cpt  *graph.CPT
		prob float64
	}
	var valid []parent
	for _, edge := range g.Incoming(n.ID) {
		if !edge.CPT.Complete() {
			continue
		}
		p := prev[edge.Source]
		if !p.IsFinite() {
			continue
		}
		v, _ := p.Get()
		valid = append(valid, parent{cpt: edge.CPT, prob: probability.Clamp01(v)})
	}

	switch len(valid) {
	case 0:
		return n.Heavy.Prob
	case 1:
		return graph.Some(PassThrough(valid[0].cpt, valid[0].prob))
	}

	sum, used := 0.0, 0
	for _, v := range valid {
		p := PassThrough(v.cpt, v.prob)
		if 1-p <= e.opts.OddsGuard {
			continue
		}
		p = math.Max(p, e.opts.ClampEpsilon)
		sum += math.Log(p / (1 - p))
		used++
	}
	if used == 0 {
		return n.Heavy.Prob
	}
	return graph.Some(probability.Finite01(probability.Logistic(sum), probability.NeutralPrior))
}
