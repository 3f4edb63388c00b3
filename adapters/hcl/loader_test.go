package hcl

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"beliefgraph/core/graph"
	"beliefgraph/internal/errors"
	"beliefgraph/internal/logging"
)

const weather = `
name = "weather"

edge "rain_wet" {
  source = "rain"
  target = "wet"
  weight = 0.8

  modifier {
    likert = 2
    label  = "two witnesses"
  }

  cpt {
    cond_true  = 90
    cond_false = 10
    baseline   = 30
  }
}

edge "sprinkler_wet" {
  source  = "sprinkler"
  target  = "wet"
  weight  = -0.4
}

node "rain" {
  type  = "fact"
  label = "It rained overnight"
}

node "sprinkler" {
  type = "Fact"
}

node "wet" {
  type  = "assertion"
  prior = 0.3
}

node "memo" {
  type = "note"
}
`

func TestParseDefinition(t *testing.T) {
	def, err := NewLoader().Parse([]byte(weather), "weather.hcl")
	require.NoError(t, err)

	assert.Equal(t, "weather", def.Name)
	nodes, edges := def.Graph.Len()
	assert.Equal(t, 4, nodes)
	assert.Equal(t, 2, edges)

	rain, ok := def.Graph.Node("rain")
	require.True(t, ok)
	assert.Equal(t, graph.NodeFact, rain.Type)
	assert.Equal(t, "It rained overnight", rain.Label)

	wet, _ := def.Graph.Node("wet")
	assert.True(t, wet.Lite.Virgin)
	assert.Equal(t, 0.3, wet.Heavy.Prob.Or(0))

	e, ok := def.Graph.Edge("rain_wet")
	require.True(t, ok)
	assert.Equal(t, 0.8, e.Weight)
	require.Len(t, e.Modifiers, 1)
	assert.Equal(t, graph.Modifier{Likert: 2, Label: "two witnesses"}, e.Modifiers[0])
	require.NotNil(t, e.CPT)
	assert.True(t, e.CPT.Complete())
	assert.Equal(t, 30.0, e.CPT.Baseline.Or(0))

	opp, _ := def.Graph.Edge("sprinkler_wet")
	assert.True(t, opp.Opposes)
	assert.Equal(t, 0.4, opp.Weight)
	assert.Nil(t, opp.CPT)
}

func TestParseIsDeterministic(t *testing.T) {
	a, err := NewLoader().Parse([]byte(weather), "weather.hcl")
	require.NoError(t, err)
	b, err := NewLoader().Parse([]byte(weather), "weather.hcl")
	require.NoError(t, err)
	assert.Equal(t, a.Hash, b.Hash)
	assert.Equal(t, a.Graph.NodeIDs(), b.Graph.NodeIDs())
}

func TestParseRejectsCycle(t *testing.T) {
	src := `
node "a" { type = "assertion" }
node "b" { type = "assertion" }
edge "ab" {
  source = "a"
  target = "b"
}
edge "ba" {
  source = "b"
  target = "a"
}
`
	_, err := NewLoader().Parse([]byte(src), "cycle.hcl")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.TypeParsing))
	assert.Contains(t, err.Error(), "would create a cycle")
	assert.Contains(t, err.Error(), "cycle.hcl:8")
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"syntax", `node "a" {`},
		{"unknown block", `graph "x" {}`},
		{"unknown node type", `node "a" { type = "belief" }`},
		{"missing type", `node "a" {}`},
		{"prior out of range", `node "a" {
  type  = "assertion"
  prior = 1.5
}`},
		{"unknown endpoint", `
node "a" { type = "fact" }
edge "ab" {
  source = "a"
  target = "b"
}`},
		{"likert out of range", `
node "a" { type = "fact" }
node "b" { type = "assertion" }
edge "ab" {
  source = "a"
  target = "b"
  modifier { likert = 9 }
}`},
		{"likert step out of range", `
node "a" { type = "fact" }
node "b" { type = "assertion" }
edge "ab" {
  source = "a"
  target = "b"
  likert = 6
}`},
		{"weight and likert", `
node "a" { type = "fact" }
node "b" { type = "assertion" }
edge "ab" {
  source = "a"
  target = "b"
  weight = 0.5
  likert = 3
}`},
		{"duplicate node", `
node "a" { type = "fact" }
node "a" { type = "fact" }`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLoader().Parse([]byte(tt.src), "bad.hcl")
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.TypeParsing), "got %v", err)
		})
	}
}

func TestParseLikertWeight(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	defer logging.Replace(zap.New(core))()

	src := `
node "a" { type = "fact" }
node "b" { type = "assertion" }
node "c" { type = "assertion" }
edge "ab" {
  source = "a"
  target = "b"
  likert = 4
}
edge "ac" {
  source = "a"
  target = "c"
  likert = -3
}
`
	def, err := NewLoader().Parse([]byte(src), "likert.hcl")
	require.NoError(t, err)

	ab, _ := def.Graph.Edge("ab")
	assert.Equal(t, 0.85, ab.Weight)
	assert.False(t, ab.Opposes)

	ac, _ := def.Graph.Edge("ac")
	assert.Equal(t, 0.60, ac.Weight)
	assert.True(t, ac.Opposes)

	strengths := make(map[string]interface{})
	for _, entry := range logs.FilterMessage("loaded edge").All() {
		fields := entry.ContextMap()
		strengths[fields["edge"].(string)] = fields["strength"]
	}
	assert.Equal(t, map[string]interface{}{"ab": "Strong", "ac": "Medium"}, strengths)
}

func TestAutoType(t *testing.T) {
	src := `
auto_type = true
node "a" { type = "assertion" }
node "b" { type = "fact" }
edge "ab" {
  source = "a"
  target = "b"
  weight = 0.5
}
`
	def, err := NewLoader().Parse([]byte(src), "auto.hcl")
	require.NoError(t, err)
	assert.True(t, def.AutoTyped)

	a, _ := def.Graph.Node("a")
	b, _ := def.Graph.Node("b")
	assert.Equal(t, graph.NodeFact, a.Type)
	assert.Equal(t, graph.NodeAssertion, b.Type)
	assert.Equal(t, "auto", def.Name)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weather.hcl")
	require.NoError(t, os.WriteFile(path, []byte(weather), 0o644))

	def, err := NewLoader().LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, def.Path)

	_, err = NewLoader().LoadFile(filepath.Join(t.TempDir(), "missing.hcl"))
	assert.True(t, errors.IsType(err, errors.TypeInput))
}
