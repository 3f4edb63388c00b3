// Package lite implements weight-based ("Bayes Lite") belief propagation.
//
// Propagation runs in two stages, each iterated to a fixed point: edge
// weights are resolved from their base weight and Likert modifiers, then node
// probabilities are relaxed using saturated log-odds aggregation. Each node
// iteration computes every new value from the previous iteration's values
// before committing any of them, so the result does not depend on the order
// nodes are visited.
package lite

import (
	"math"

	"go.uber.org/zap"

	"beliefgraph/core/graph"
	"beliefgraph/core/probability"
	"beliefgraph/internal/logging"
)

// Options tunes the Lite engine
type Options struct {
	// Epsilon is the convergence threshold for both stages
	Epsilon float64 `json:"epsilon" yaml:"epsilon" validate:"gt=0,lt=1"`

	// MaxIters caps each stage
	MaxIters int `json:"max_iters" yaml:"max_iters" validate:"gt=0"`

	// ClampEpsilon bounds probabilities away from 0 and 1 before logits
	ClampEpsilon float64 `json:"clamp_epsilon" yaml:"clamp_epsilon" validate:"gt=0,lt=0.5"`

	// SaturationK is the sharpness of the evidence saturation curve
	SaturationK float64 `json:"saturation_k" yaml:"saturation_k" validate:"gt=0"`

	// Prior is the baseline probability of an assertion
	Prior float64 `json:"prior" yaml:"prior" validate:"gt=0,lt=1"`
}

// DefaultOptions returns the standard Lite settings
func DefaultOptions() Options {
	return Options{
		Epsilon:      0.01,
		MaxIters:     30,
		ClampEpsilon: probability.DefaultClampEpsilon,
		SaturationK:  probability.DefaultSaturationK,
		Prior:        probability.NeutralPrior,
	}
}

// StageResult reports how one convergence stage ended
type StageResult struct {
	Converged  bool    `json:"converged"`
	Iterations int     `json:"iterations"`
	FinalDelta float64 `json:"final_delta"`
}

// Result reports a full Lite run. The top-level fields describe the node
// stage, which is what callers act on.
type Result struct {
	Converged  bool        `json:"converged"`
	Iterations int         `json:"iterations"`
	FinalDelta float64     `json:"final_delta"`
	EdgeStage  StageResult `json:"edge_stage"`
}

// Engine runs Lite propagation
type Engine struct {
	opts Options
}

// NewEngine creates an engine. Non-positive option values fall back to defaults.
func NewEngine(opts Options) *Engine {
	def := DefaultOptions()
	if opts.Epsilon <= 0 {
		opts.Epsilon = def.Epsilon
	}
	if opts.MaxIters <= 0 {
		opts.MaxIters = def.MaxIters
	}
	if opts.ClampEpsilon <= 0 || opts.ClampEpsilon >= 0.5 {
		opts.ClampEpsilon = def.ClampEpsilon
	}
	if opts.SaturationK <= 0 {
		opts.SaturationK = def.SaturationK
	}
	if opts.Prior <= 0 || opts.Prior >= 1 {
		opts.Prior = def.Prior
	}
	return &Engine{opts: opts}
}

// Options returns the effective options
func (e *Engine) Options() Options {
	return e.opts
}

// Converge resolves edge weights, then node probabilities. Non-convergence
// of either stage is logged and the partial state is kept.
func (e *Engine) Converge(g *graph.Graph) Result {
	edges := e.ResolveEdgeWeights(g)
	if !edges.Converged {
		logging.Warn("lite edge stage did not converge",
			zap.Int("max_iters", e.opts.MaxIters),
			zap.Float64("final_delta", edges.FinalDelta))
	}

	nodes := e.ResolveNodes(g)
	if !nodes.Converged {
		logging.Warn("lite node stage did not converge",
			zap.Int("max_iters", e.opts.MaxIters),
			zap.Float64("final_delta", nodes.FinalDelta))
	}

	return Result{
		Converged:  nodes.Converged,
		Iterations: nodes.Iterations,
		FinalDelta: nodes.FinalDelta,
		EdgeStage:  edges,
	}
}

// ResolveEdgeWeights computes every edge's effective weight from its base
// weight, modifiers and sign.
func (e *Engine) ResolveEdgeWeights(g *graph.Graph) StageResult {
	result := StageResult{}
	edges := g.Edges()

	g.StartBatch()
	defer g.EndBatch()

	for iter := 0; iter < e.opts.MaxIters; iter++ {
		result.Iterations = iter + 1
		maxDelta := 0.0
		changed := false

		next := make([]graph.LiteEdgeState, len(edges))
		for i, edge := range edges {
			next[i] = effectiveWeight(g, edge)
			if next[i] != edge.Lite {
				changed = true
			}
			maxDelta = math.Max(maxDelta, math.Abs(next[i].EffectiveWeight-edge.Lite.EffectiveWeight))
		}
		for i, edge := range edges {
			if next[i] != edge.Lite {
				g.SetEdgeLite(edge.ID, next[i])
			}
		}

		result.FinalDelta = maxDelta
		if !changed || maxDelta < e.opts.Epsilon {
			result.Converged = true
			break
		}
	}
	return result
}

// effectiveWeight resolves a single edge. Weights only apply to assertion
// targets; edges into anything else carry no weight.
func effectiveWeight(g *graph.Graph, edge *graph.Edge) graph.LiteEdgeState {
	target, ok := g.Node(edge.Target)
	if !ok || target.Type != graph.NodeAssertion || edge.Weight == 0 || math.IsNaN(edge.Weight) {
		return graph.LiteEdgeState{Virgin: true}
	}

	likerts := make([]int, len(edge.Modifiers))
	for i, m := range edge.Modifiers {
		likerts[i] = m.Likert
	}
	w := probability.ApplyModifiers(math.Min(math.Abs(edge.Weight), 1), likerts)
	if edge.Opposes {
		w = -w
	}
	return graph.LiteEdgeState{EffectiveWeight: w}
}
