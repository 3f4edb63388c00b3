package heavy

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"beliefgraph/core/graph"
	"beliefgraph/core/probability"
	"beliefgraph/internal/logging"
)

func cpt(condTrue, condFalse float64) *graph.CPT {
	return &graph.CPT{CondTrue: graph.Some(condTrue), CondFalse: graph.Some(condFalse)}
}

// root adds an assertion without incoming CPT edges, which keeps its preset value
func root(t *testing.T, g *graph.Graph, id string, p float64) {
	t.Helper()
	require.NoError(t, g.AddNode(graph.Node{ID: id, Type: graph.NodeAssertion, Heavy: graph.HeavyState{Prob: graph.Some(p)}}))
}

func node(t *testing.T, g *graph.Graph, id string, typ graph.NodeType) {
	t.Helper()
	require.NoError(t, g.AddNode(graph.Node{ID: id, Type: typ}))
}

func link(t *testing.T, g *graph.Graph, from, to string, c *graph.CPT) {
	t.Helper()
	_, err := g.AddEdge(graph.Edge{ID: from + "->" + to, Source: from, Target: to, CPT: c})
	require.NoError(t, err)
}

func heavyProb(t *testing.T, g *graph.Graph, id string) float64 {
	t.Helper()
	n, ok := g.Node(id)
	require.True(t, ok)
	p, set := n.Heavy.Prob.Get()
	require.True(t, set, "node %s has no heavy probability", id)
	return p
}

func TestSingleParentMixing(t *testing.T) {
	g := graph.New()
	root(t, g, "parent", 0.6)
	node(t, g, "child", graph.NodeAssertion)
	link(t, g, "parent", "child", cpt(90, 10))

	result := NewEngine(DefaultOptions()).Converge(g)
	require.True(t, result.Converged)
	assert.InDelta(t, 0.58, heavyProb(t, g, "child"), 0.005)
}

func TestIndependentCPTReturnsBaseline(t *testing.T) {
	for _, p := range []float64{0.01, 0.3, 0.6, 0.99} {
		g := graph.New()
		root(t, g, "parent", p)
		node(t, g, "child", graph.NodeAssertion)
		link(t, g, "parent", "child", cpt(40, 40))

		NewEngine(DefaultOptions()).Converge(g)
		assert.InDelta(t, 0.40, heavyProb(t, g, "child"), 0.01, "parent %v", p)
	}
}

func TestInverseSwapsBranches(t *testing.T) {
	g := graph.New()
	root(t, g, "parent", 0.6)
	node(t, g, "child", graph.NodeAssertion)
	c := cpt(90, 10)
	c.Inverse = true
	link(t, g, "parent", "child", c)

	NewEngine(DefaultOptions()).Converge(g)
	assert.InDelta(t, 0.1*0.6+0.9*0.4, heavyProb(t, g, "child"), 1e-12)

	parentTrue, parentFalse := ConditionalProbs(c)
	assert.Equal(t, 10.0, parentTrue)
	assert.Equal(t, 90.0, parentFalse)
}

func TestLogicNodes(t *testing.T) {
	g := graph.New()
	root(t, g, "a", 0.8)
	root(t, g, "b", 0.6)
	root(t, g, "c", 0.3)
	root(t, g, "d", 0.4)
	node(t, g, "and", graph.NodeAnd)
	node(t, g, "or", graph.NodeOr)
	link(t, g, "a", "and", nil)
	link(t, g, "b", "and", nil)
	link(t, g, "c", "or", nil)
	link(t, g, "d", "or", nil)

	NewEngine(DefaultOptions()).Converge(g)
	assert.InDelta(t, 0.48, heavyProb(t, g, "and"), 1e-12)
	assert.InDelta(t, 0.58, heavyProb(t, g, "or"), 1e-12)
}

func TestLogicNodeDefaultsMissingParentToNeutral(t *testing.T) {
	g := graph.New()
	root(t, g, "a", 0.8)
	node(t, g, "note", graph.NodeNote)
	node(t, g, "and", graph.NodeAnd)
	link(t, g, "a", "and", nil)
	link(t, g, "note", "and", nil)

	NewEngine(DefaultOptions()).Converge(g)
	assert.InDelta(t, 0.4, heavyProb(t, g, "and"), 1e-12)
}

func TestMultipleParentsUseNaiveBayes(t *testing.T) {
	g := graph.New()
	root(t, g, "p1", 0.6)
	root(t, g, "p2", 0.75)
	node(t, g, "child", graph.NodeAssertion)
	link(t, g, "p1", "child", cpt(90, 10))
	link(t, g, "p2", "child", cpt(80, 20))

	NewEngine(DefaultOptions()).Converge(g)

	pass1 := 0.9*0.6 + 0.1*0.4
	pass2 := 0.8*0.75 + 0.2*0.25
	want := probability.Logistic(probability.Logit(pass1) + probability.Logit(pass2))
	assert.InDelta(t, want, heavyProb(t, g, "child"), 1e-9)
}

func TestCertainParentIsSkippedByOddsGuard(t *testing.T) {
	g := graph.New()
	root(t, g, "p1", 0.6)
	root(t, g, "p2", 0.5)
	node(t, g, "child", graph.NodeAssertion)
	link(t, g, "p1", "child", cpt(90, 10))
	link(t, g, "p2", "child", cpt(100, 100))

	NewEngine(DefaultOptions()).Converge(g)
	assert.InDelta(t, 0.58, heavyProb(t, g, "child"), 1e-9)
}

func TestIncompleteCPTLeavesNodeUnchanged(t *testing.T) {
	g := graph.New()
	root(t, g, "parent", 0.9)
	node(t, g, "child", graph.NodeAssertion)
	link(t, g, "parent", "child", &graph.CPT{CondTrue: graph.Some(80)})

	NewEngine(DefaultOptions()).Converge(g)
	assert.Equal(t, probability.NeutralPrior, heavyProb(t, g, "child"))
}

func TestFactsArePinned(t *testing.T) {
	g := graph.New()
	require.NoError(t, g.AddNode(graph.Node{ID: "fact", Type: graph.NodeFact, Heavy: graph.HeavyState{Prob: graph.Some(0.2)}}))
	node(t, g, "child", graph.NodeAssertion)
	link(t, g, "fact", "child", cpt(90, 10))

	NewEngine(DefaultOptions()).Converge(g)
	assert.Equal(t, probability.FactProbability, heavyProb(t, g, "fact"))
	assert.InDelta(t, 0.9*0.99+0.1*0.01, heavyProb(t, g, "child"), 1e-12)
}

func TestInterventionHoldsValue(t *testing.T) {
	g := graph.New()
	require.NoError(t, g.AddNode(graph.Node{
		ID:    "x",
		Type:  graph.NodeAssertion,
		Heavy: graph.HeavyState{Intervention: &graph.Intervention{Value: 1}},
	}))
	node(t, g, "y", graph.NodeAssertion)
	link(t, g, "x", "y", cpt(70, 20))

	NewEngine(DefaultOptions()).Converge(g)
	assert.Equal(t, 1.0, heavyProb(t, g, "x"))
	assert.InDelta(t, 0.7, heavyProb(t, g, "y"), 1e-12)
}

func TestNonConvergenceIsReportedNotFatal(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	defer logging.Replace(zap.New(core))()

	g := graph.New()
	root(t, g, "a", 0.9)
	node(t, g, "b", graph.NodeAssertion)
	node(t, g, "c", graph.NodeAssertion)
	link(t, g, "a", "b", cpt(95, 5))
	link(t, g, "b", "c", cpt(95, 5))

	opts := DefaultOptions()
	opts.MaxIters = 1
	result := NewEngine(opts).Converge(g)

	assert.False(t, result.Converged)
	assert.Equal(t, 1, result.Iterations)
	assert.Equal(t, 1, logs.FilterMessage("heavy propagation did not converge").Len())
}

func TestHeavyNeverTouchesLiteState(t *testing.T) {
	g := graph.New()
	root(t, g, "parent", 0.6)
	node(t, g, "child", graph.NodeAssertion)
	link(t, g, "parent", "child", cpt(90, 10))
	lite := graph.LiteState{Prob: graph.Some(0.77), Robustness: graph.Some(0.4), RobustnessLabel: "Moderate"}
	g.SetLite("child", lite)

	NewEngine(DefaultOptions()).Converge(g)

	n, _ := g.Node("child")
	assert.Equal(t, lite, n.Lite)
}

func TestExtremeInputsStayFinite(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	entries := []float64{0, 1e-12, 0.001, 50, 99.999, 100, 250, -30}
	parents := []float64{0, 1e-15, 0.5, 1 - 1e-15, 1}
	types := []graph.NodeType{graph.NodeAssertion, graph.NodeAssertion, graph.NodeAnd, graph.NodeOr, graph.NodeFact}

	for trial := 0; trial < 20; trial++ {
		g := graph.New()
		n := 10
		for i := 0; i < n; i++ {
			id := fmt.Sprintf("n%02d", i)
			if i < 3 {
				root(t, g, id, parents[rng.Intn(len(parents))])
				continue
			}
			node(t, g, id, types[rng.Intn(len(types))])
		}
		for i := 0; i < 25; i++ {
			from, to := rng.Intn(n), rng.Intn(n)
			if from >= to {
				continue
			}
			_, _ = g.AddEdge(graph.Edge{
				Source: fmt.Sprintf("n%02d", from),
				Target: fmt.Sprintf("n%02d", to),
				CPT:    cpt(entries[rng.Intn(len(entries))], entries[rng.Intn(len(entries))]),
			})
		}

		NewEngine(DefaultOptions()).Converge(g)
		for _, nd := range g.Nodes() {
			p, ok := nd.Heavy.Prob.Get()
			if !ok {
				continue
			}
			assert.False(t, math.IsNaN(p) || math.IsInf(p, 0), "trial %d node %s", trial, nd.ID)
			assert.True(t, p >= 0 && p <= 1, "trial %d node %s: %v", trial, nd.ID, p)
		}
	}
}
