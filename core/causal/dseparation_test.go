package causal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beliefgraph/core/graph"
)

func structure(t *testing.T, edges ...[2]string) *graph.Graph {
	t.Helper()
	g := graph.New()
	for _, e := range edges {
		for _, id := range e {
			if !g.HasNode(id) {
				require.NoError(t, g.AddNode(graph.Node{ID: id, Type: graph.NodeAssertion}))
			}
		}
		_, err := g.AddEdge(graph.Edge{ID: e[0] + e[1], Source: e[0], Target: e[1]})
		require.NoError(t, err)
	}
	return g
}

func TestDSeparationChain(t *testing.T) {
	g := structure(t, [2]string{"A", "B"}, [2]string{"B", "C"})
	assert.True(t, IsDSeparated(g, []string{"A"}, []string{"C"}, []string{"B"}))
	assert.False(t, IsDSeparated(g, []string{"A"}, []string{"C"}, nil))
}

func TestDSeparationFork(t *testing.T) {
	g := structure(t, [2]string{"A", "B"}, [2]string{"A", "C"})
	assert.True(t, IsDSeparated(g, []string{"B"}, []string{"C"}, []string{"A"}))
	assert.False(t, IsDSeparated(g, []string{"B"}, []string{"C"}, nil))
}

func TestDSeparationCollider(t *testing.T) {
	g := structure(t, [2]string{"A", "C"}, [2]string{"B", "C"}, [2]string{"C", "D"})
	assert.True(t, IsDSeparated(g, []string{"A"}, []string{"B"}, nil))
	// conditioning on the collider or its descendant opens the path
	assert.False(t, IsDSeparated(g, []string{"A"}, []string{"B"}, []string{"C"}))
	assert.False(t, IsDSeparated(g, []string{"A"}, []string{"B"}, []string{"D"}))
}

func TestDSeparationDisconnected(t *testing.T) {
	g := structure(t, [2]string{"A", "B"})
	require.NoError(t, g.AddNode(graph.Node{ID: "lone", Type: graph.NodeFact}))
	assert.True(t, IsDSeparated(g, []string{"A"}, []string{"lone"}, nil))
}

func TestDSeparationDoesNotMutate(t *testing.T) {
	g := structure(t, [2]string{"A", "B"}, [2]string{"B", "C"})
	before := capture(g)
	IsDSeparated(g, []string{"A"}, []string{"C"}, []string{"B"})
	assert.Equal(t, before, capture(g))
}

func TestSatisfiesBackdoor(t *testing.T) {
	g := structure(t, [2]string{"Z", "X"}, [2]string{"Z", "Y"}, [2]string{"X", "Y"})
	before := capture(g)

	assert.True(t, SatisfiesBackdoor(g, []string{"X"}, []string{"Y"}, []string{"Z"}))
	assert.False(t, SatisfiesBackdoor(g, []string{"X"}, []string{"Y"}, nil))
	assert.Equal(t, before, capture(g))
	assert.False(t, g.InBatch())
}

func TestSatisfiesBackdoorWithoutConfounder(t *testing.T) {
	g := structure(t, [2]string{"X", "M"}, [2]string{"M", "Y"})
	before := capture(g)

	assert.True(t, SatisfiesBackdoor(g, []string{"X"}, []string{"Y"}, nil))
	assert.Equal(t, before, capture(g))
}
