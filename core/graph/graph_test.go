package graph

import (
	"encoding/json"
	"reflect"
	"testing"

	"beliefgraph/internal/errors"
)

func newTestGraph(t *testing.T, ids ...string) *Graph {
	t.Helper()
	g := New()
	for _, id := range ids {
		if err := g.AddNode(Node{ID: id, Type: NodeAssertion}); err != nil {
			t.Fatalf("AddNode(%s): %v", id, err)
		}
	}
	return g
}

func mustEdge(t *testing.T, g *Graph, id, from, to string) {
	t.Helper()
	if _, err := g.AddEdge(Edge{ID: id, Source: from, Target: to, Weight: 0.5}); err != nil {
		t.Fatalf("AddEdge(%s): %v", id, err)
	}
}

func TestAddNodeValidation(t *testing.T) {
	g := New()
	if err := g.AddNode(Node{ID: "", Type: NodeFact}); !errors.IsType(err, errors.TypeInput) {
		t.Errorf("expected input error for empty id, got %v", err)
	}
	if err := g.AddNode(Node{ID: "a", Type: "belief"}); err == nil {
		t.Error("expected error for unknown node type")
	}
	if err := g.AddNode(Node{ID: "a", Type: NodeFact}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := g.AddNode(Node{ID: "a", Type: NodeFact}); err == nil {
		t.Error("expected error for duplicate node")
	}
}

func TestAddEdgeRejectsCycleWithoutMutation(t *testing.T) {
	g := newTestGraph(t, "a", "b", "c")
	mustEdge(t, g, "ab", "a", "b")
	mustEdge(t, g, "bc", "b", "c")

	before := g.Clone()
	_, err := g.AddEdge(Edge{ID: "ca", Source: "c", Target: "a"})
	if !errors.IsType(err, errors.TypeCycle) {
		t.Fatalf("expected cycle error, got %v", err)
	}
	if !reflect.DeepEqual(before.Edges(), g.Edges()) {
		t.Error("rejected edge mutated the graph")
	}
	if len(g.Incoming("a")) != 0 {
		t.Error("rejected edge left adjacency behind")
	}
}

func TestAddEdgeRejectsSelfLoop(t *testing.T) {
	g := newTestGraph(t, "a")
	if _, err := g.AddEdge(Edge{Source: "a", Target: "a"}); !errors.IsType(err, errors.TypeCycle) {
		t.Errorf("expected cycle error for self loop, got %v", err)
	}
}

func TestAddEdgeUnknownEndpoint(t *testing.T) {
	g := newTestGraph(t, "a")
	if _, err := g.AddEdge(Edge{Source: "a", Target: "ghost"}); !errors.IsType(err, errors.TypeNotFound) {
		t.Errorf("expected not found error, got %v", err)
	}
}

func TestAddEdgeGeneratesID(t *testing.T) {
	g := newTestGraph(t, "a", "b")
	e, err := g.AddEdge(Edge{Source: "a", Target: "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.ID == "" {
		t.Error("expected generated edge id")
	}
	if _, ok := g.Edge(e.ID); !ok {
		t.Error("generated edge not stored")
	}
}

func TestWouldCreateCycle(t *testing.T) {
	g := newTestGraph(t, "a", "b", "c", "d")
	mustEdge(t, g, "ab", "a", "b")
	mustEdge(t, g, "bc", "b", "c")

	tests := []struct {
		from, to string
		want     bool
	}{
		{"a", "a", true},
		{"c", "a", true},
		{"b", "a", true},
		{"a", "c", false},
		{"d", "a", false},
		{"c", "d", false},
	}
	for _, tt := range tests {
		if got := WouldCreateCycle(g, tt.from, tt.to); got != tt.want {
			t.Errorf("WouldCreateCycle(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestRemoveAndReAddIsExact(t *testing.T) {
	g := newTestGraph(t, "a", "b", "c")
	mustEdge(t, g, "e2", "a", "c")
	mustEdge(t, g, "e1", "b", "c")
	mustEdge(t, g, "e3", "a", "b")
	if err := g.AddModifier("e1", Modifier{Likert: 3, Label: "strong"}); err != nil {
		t.Fatal(err)
	}
	before := g.Clone()

	removed := g.RemoveEdges("e1", "e2", "missing")
	if len(removed) != 2 {
		t.Fatalf("expected 2 removed edges, got %d", len(removed))
	}
	if len(g.Incoming("c")) != 0 {
		t.Error("incoming adjacency not cleared")
	}
	for _, e := range removed {
		if _, err := g.AddEdge(e); err != nil {
			t.Fatalf("re-adding %s: %v", e.ID, err)
		}
	}

	if !reflect.DeepEqual(before.Edges(), g.Edges()) {
		t.Error("edges differ after remove and re-add")
	}
	if !reflect.DeepEqual(before.incoming, g.incoming) || !reflect.DeepEqual(before.outgoing, g.outgoing) {
		t.Error("adjacency order differs after remove and re-add")
	}
}

func TestRemoveNodeDropsEdges(t *testing.T) {
	g := newTestGraph(t, "a", "b", "c")
	mustEdge(t, g, "ab", "a", "b")
	mustEdge(t, g, "bc", "b", "c")

	removed, err := g.RemoveNode("b")
	if err != nil {
		t.Fatal(err)
	}
	if len(removed) != 2 {
		t.Errorf("expected 2 removed edges, got %d", len(removed))
	}
	if nodes, edges := g.Len(); nodes != 2 || edges != 0 {
		t.Errorf("Len() = %d, %d", nodes, edges)
	}
	if _, err := g.RemoveNode("b"); !errors.IsType(err, errors.TypeNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestNegativeWeightNormalizes(t *testing.T) {
	g := newTestGraph(t, "a", "b")
	e, err := g.AddEdge(Edge{ID: "ab", Source: "a", Target: "b", Weight: -0.4})
	if err != nil {
		t.Fatal(err)
	}
	if e.Weight != 0.4 || !e.Opposes {
		t.Errorf("got weight %v opposes %v", e.Weight, e.Opposes)
	}
	if e.SignedWeight() != -0.4 {
		t.Errorf("SignedWeight() = %v", e.SignedWeight())
	}

	// an already opposing edge is not negated twice
	if err := g.SetWeight("ab", -0.7); err != nil {
		t.Fatal(err)
	}
	e, _ = g.Edge("ab")
	if e.SignedWeight() != -0.7 {
		t.Errorf("SignedWeight() after SetWeight = %v", e.SignedWeight())
	}
}

func TestAddModifierRange(t *testing.T) {
	g := newTestGraph(t, "a", "b")
	mustEdge(t, g, "ab", "a", "b")
	if err := g.AddModifier("ab", Modifier{Likert: 6}); err == nil {
		t.Error("expected range error")
	}
	if err := g.AddModifier("zz", Modifier{Likert: 1}); !errors.IsType(err, errors.TypeNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestCloneIsDeep(t *testing.T) {
	g := newTestGraph(t, "a", "b")
	mustEdge(t, g, "ab", "a", "b")
	if err := g.SetCPT("ab", &CPT{CondTrue: Some(90), CondFalse: Some(10)}); err != nil {
		t.Fatal(err)
	}

	c := g.Clone()
	_ = c.SetCPT("ab", &CPT{CondTrue: Some(1), CondFalse: Some(1)})
	c.SetHeavy("a", HeavyState{Prob: Some(0.2), Intervention: &Intervention{Value: 0.2}})

	e, _ := g.Edge("ab")
	if v, _ := e.CPT.CondTrue.Get(); v != 90 {
		t.Errorf("clone shared CPT, got %v", v)
	}
	n, _ := g.Node("a")
	if n.Heavy.Intervention != nil {
		t.Error("clone shared heavy state")
	}
}

func TestParentsAndChildren(t *testing.T) {
	g := newTestGraph(t, "a", "b", "c")
	mustEdge(t, g, "ac", "a", "c")
	mustEdge(t, g, "bc", "b", "c")
	mustEdge(t, g, "ac2", "a", "c")

	if got := g.Parents("c"); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Parents(c) = %v", got)
	}
	if got := g.Children("a"); !reflect.DeepEqual(got, []string{"c"}) {
		t.Errorf("Children(a) = %v", got)
	}
	closure := Ancestors(g, "c")
	if len(closure) != 3 {
		t.Errorf("Ancestors(c) = %v", closure)
	}
}

func TestAutoAssignTypes(t *testing.T) {
	g := New()
	for _, n := range []Node{
		{ID: "root", Type: NodeAssertion},
		{ID: "child", Type: NodeFact, Heavy: HeavyState{Prob: Some(0.99)}},
		{ID: "gate", Type: NodeAnd},
		{ID: "memo", Type: NodeNote},
	} {
		if err := g.AddNode(n); err != nil {
			t.Fatal(err)
		}
	}
	mustEdge(t, g, "rc", "root", "child")

	if !AutoAssignTypes(g) {
		t.Fatal("expected changes")
	}
	root, _ := g.Node("root")
	if root.Type != NodeFact || root.Heavy.Prob.Or(0) != 0.99 {
		t.Errorf("root = %s %v", root.Type, root.Heavy.Prob)
	}
	child, _ := g.Node("child")
	if child.Type != NodeAssertion || !child.Lite.Virgin {
		t.Errorf("child = %s virgin=%v", child.Type, child.Lite.Virgin)
	}
	if child.Heavy.Prob.Or(0) != 0.99 {
		t.Error("existing heavy prior was overwritten")
	}
	gate, _ := g.Node("gate")
	if gate.Type != NodeAnd {
		t.Error("logic node was retyped")
	}
	if AutoAssignTypes(g) {
		t.Error("second pass should be a no-op")
	}
}

func TestBatchDeliversOnce(t *testing.T) {
	g := newTestGraph(t, "a", "b")
	var deliveries [][]Change
	g.Subscribe(ListenerFunc(func(c []Change) { deliveries = append(deliveries, c) }))

	err := g.Batch(func() error {
		g.StartBatch()
		mustEdge(t, g, "ab", "a", "b")
		g.EndBatch()
		g.SetType("a", NodeFact)
		if len(deliveries) != 0 {
			t.Error("changes delivered inside batch")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(deliveries) != 1 || len(deliveries[0]) != 2 {
		t.Fatalf("deliveries = %v", deliveries)
	}
	if deliveries[0][0] != (Change{Kind: EdgeAdded, ID: "ab"}) {
		t.Errorf("first change = %v", deliveries[0][0])
	}

	g.SetType("b", NodeAssertion)
	if len(deliveries) != 2 {
		t.Error("change outside batch not delivered immediately")
	}
}

func TestOptionalJSON(t *testing.T) {
	type holder struct {
		P Optional `json:"p"`
	}
	data, err := json.Marshal(holder{})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"p":null}` {
		t.Errorf("absent marshalled as %s", data)
	}

	var h holder
	if err := json.Unmarshal([]byte(`{"p":0.25}`), &h); err != nil {
		t.Fatal(err)
	}
	if v, ok := h.P.Get(); !ok || v != 0.25 {
		t.Errorf("got %v %v", v, ok)
	}
	if err := json.Unmarshal([]byte(`{"p":null}`), &h); err != nil {
		t.Fatal(err)
	}
	if h.P.IsSet() {
		t.Error("null should be absent")
	}
	if None().String() != "—" {
		t.Errorf("absent String() = %q", None().String())
	}
}
