package graph

import (
	"sort"

	"github.com/google/uuid"

	"beliefgraph/core/determinism"
	"beliefgraph/internal/errors"
)

// Graph is a mutable attributed DAG.
// The DAG property is enforced when edges are inserted; nothing else
// re-checks it. A Graph is not safe for concurrent use.
type Graph struct {
	// Nodes indexed by ID
	nodes map[string]*Node

	// Edges indexed by ID
	edges map[string]*Edge

	// Forward adjacency (source -> edge IDs), kept sorted
	outgoing map[string][]string

	// Reverse adjacency (target -> edge IDs), kept sorted
	incoming map[string][]string

	listeners  []Listener
	batchDepth int
	pending    []Change
}

// New creates an empty graph
func New() *Graph {
	return &Graph{
		nodes:    make(map[string]*Node),
		edges:    make(map[string]*Edge),
		outgoing: make(map[string][]string),
		incoming: make(map[string][]string),
	}
}

// AddNode adds a node to the graph
func (g *Graph) AddNode(n Node) error {
	if n.ID == "" {
		return errors.Input("node id is required")
	}
	if _, exists := g.nodes[n.ID]; exists {
		return errors.Newf(errors.TypeInput, "duplicate node id: %s", n.ID)
	}
	if _, err := ParseNodeType(string(n.Type)); err != nil {
		return errors.Wrap(errors.TypeInput, "invalid node "+n.ID, err)
	}
	c := n.clone()
	g.nodes[n.ID] = &c
	g.emit(Change{Kind: NodeAdded, ID: n.ID})
	return nil
}

// RemoveNode removes a node and every edge touching it.
// The removed edges are returned.
func (g *Graph) RemoveNode(id string) ([]Edge, error) {
	if _, ok := g.nodes[id]; !ok {
		return nil, errors.NotFound("node", id)
	}
	var ids []string
	ids = append(ids, g.incoming[id]...)
	ids = append(ids, g.outgoing[id]...)

	g.StartBatch()
	defer g.EndBatch()

	removed := g.RemoveEdges(ids...)
	delete(g.nodes, id)
	delete(g.incoming, id)
	delete(g.outgoing, id)
	g.emit(Change{Kind: NodeRemoved, ID: id})
	return removed, nil
}

// Node returns a node by ID. Mutate it through the Set* methods so
// listeners observe the change.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// HasNode reports whether a node exists
func (g *Graph) HasNode(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// Nodes returns all nodes sorted by ID
func (g *Graph) Nodes() []*Node {
	result := make([]*Node, 0, len(g.nodes))
	for _, id := range determinism.SortedKeys(g.nodes) {
		result = append(result, g.nodes[id])
	}
	return result
}

// NodeIDs returns all node IDs sorted
func (g *Graph) NodeIDs() []string {
	return determinism.SortedKeys(g.nodes)
}

// Edge returns an edge by ID
func (g *Graph) Edge(id string) (*Edge, bool) {
	e, ok := g.edges[id]
	return e, ok
}

// Edges returns all edges sorted by ID
func (g *Graph) Edges() []*Edge {
	result := make([]*Edge, 0, len(g.edges))
	for _, id := range determinism.SortedKeys(g.edges) {
		result = append(result, g.edges[id])
	}
	return result
}

// Incoming returns the edges whose target is nodeID
func (g *Graph) Incoming(nodeID string) []*Edge {
	return g.resolve(g.incoming[nodeID])
}

// Outgoing returns the edges whose source is nodeID
func (g *Graph) Outgoing(nodeID string) []*Edge {
	return g.resolve(g.outgoing[nodeID])
}

// Parents returns the distinct source IDs of nodeID's incoming edges
func (g *Graph) Parents(nodeID string) []string {
	return g.endpoints(g.incoming[nodeID], func(e *Edge) string { return e.Source })
}

// Children returns the distinct target IDs of nodeID's outgoing edges
func (g *Graph) Children(nodeID string) []string {
	return g.endpoints(g.outgoing[nodeID], func(e *Edge) string { return e.Target })
}

// AddEdge inserts an edge after validating its endpoints and the DAG
// constraint. An empty ID is replaced with a generated one. A rejected
// edge leaves the graph untouched.
func (g *Graph) AddEdge(e Edge) (*Edge, error) {
	if !g.HasNode(e.Source) {
		return nil, errors.NotFound("node", e.Source)
	}
	if !g.HasNode(e.Target) {
		return nil, errors.NotFound("node", e.Target)
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if _, exists := g.edges[e.ID]; exists {
		return nil, errors.Newf(errors.TypeInput, "duplicate edge id: %s", e.ID)
	}
	if WouldCreateCycle(g, e.Source, e.Target) {
		return nil, errors.Cycle(e.Source, e.Target)
	}

	c := e.clone()
	c.NormalizeWeight()
	g.edges[c.ID] = &c
	g.outgoing[c.Source] = insertSorted(g.outgoing[c.Source], c.ID)
	g.incoming[c.Target] = insertSorted(g.incoming[c.Target], c.ID)
	g.emit(Change{Kind: EdgeAdded, ID: c.ID})
	return &c, nil
}

// RemoveEdges removes edges by ID and returns exact copies of what was
// removed so callers can re-insert them. Unknown IDs are ignored.
func (g *Graph) RemoveEdges(ids ...string) []Edge {
	var removed []Edge
	for _, id := range ids {
		e, ok := g.edges[id]
		if !ok {
			continue
		}
		removed = append(removed, e.clone())
		delete(g.edges, id)
		g.outgoing[e.Source] = removeID(g.outgoing[e.Source], id)
		g.incoming[e.Target] = removeID(g.incoming[e.Target], id)
		g.emit(Change{Kind: EdgeRemoved, ID: id})
	}
	return removed
}

// SetLite replaces a node's Lite record
func (g *Graph) SetLite(id string, s LiteState) {
	if n, ok := g.nodes[id]; ok {
		n.Lite = s
		g.emit(Change{Kind: NodeUpdated, ID: id})
	}
}

// SetHeavy replaces a node's Heavy record
func (g *Graph) SetHeavy(id string, s HeavyState) {
	if n, ok := g.nodes[id]; ok {
		if s.Intervention != nil {
			iv := *s.Intervention
			s.Intervention = &iv
		}
		n.Heavy = s
		g.emit(Change{Kind: NodeUpdated, ID: id})
	}
}

// SetType changes a node's type tag
func (g *Graph) SetType(id string, t NodeType) {
	if n, ok := g.nodes[id]; ok {
		n.Type = t
		g.emit(Change{Kind: NodeUpdated, ID: id})
	}
}

// SetEdgeLite replaces an edge's resolved Lite weight
func (g *Graph) SetEdgeLite(id string, s LiteEdgeState) {
	if e, ok := g.edges[id]; ok {
		e.Lite = s
		g.emit(Change{Kind: EdgeUpdated, ID: id})
	}
}

// SetWeight sets an edge's base weight; a negative value marks it opposing
func (g *Graph) SetWeight(id string, w float64) error {
	e, ok := g.edges[id]
	if !ok {
		return errors.NotFound("edge", id)
	}
	e.Weight = w
	e.NormalizeWeight()
	g.emit(Change{Kind: EdgeUpdated, ID: id})
	return nil
}

// SetOpposes flags or unflags an edge as opposing its target
func (g *Graph) SetOpposes(id string, opposes bool) error {
	e, ok := g.edges[id]
	if !ok {
		return errors.NotFound("edge", id)
	}
	e.Opposes = opposes
	g.emit(Change{Kind: EdgeUpdated, ID: id})
	return nil
}

// SetCPT replaces an edge's conditional probability table; nil clears it
func (g *Graph) SetCPT(id string, cpt *CPT) error {
	e, ok := g.edges[id]
	if !ok {
		return errors.NotFound("edge", id)
	}
	if cpt != nil {
		c := *cpt
		cpt = &c
	}
	e.CPT = cpt
	g.emit(Change{Kind: EdgeUpdated, ID: id})
	return nil
}

// AddModifier appends a Likert modifier to an edge
func (g *Graph) AddModifier(id string, m Modifier) error {
	e, ok := g.edges[id]
	if !ok {
		return errors.NotFound("edge", id)
	}
	if m.Likert < -5 || m.Likert > 5 {
		return errors.Newf(errors.TypeInput, "likert %d out of range [-5, 5]", m.Likert)
	}
	e.Modifiers = append(e.Modifiers, m)
	g.emit(Change{Kind: EdgeUpdated, ID: id})
	return nil
}

// Clone returns a deep copy of the graph without listeners
func (g *Graph) Clone() *Graph {
	c := New()
	for id, n := range g.nodes {
		nc := n.clone()
		c.nodes[id] = &nc
	}
	for id, e := range g.edges {
		ec := e.clone()
		c.edges[id] = &ec
	}
	for id, ids := range g.outgoing {
		c.outgoing[id] = append([]string(nil), ids...)
	}
	for id, ids := range g.incoming {
		c.incoming[id] = append([]string(nil), ids...)
	}
	return c
}

// Len returns the number of nodes and edges
func (g *Graph) Len() (nodes, edges int) {
	return len(g.nodes), len(g.edges)
}

func (g *Graph) resolve(ids []string) []*Edge {
	result := make([]*Edge, 0, len(ids))
	for _, id := range ids {
		if e, ok := g.edges[id]; ok {
			result = append(result, e)
		}
	}
	return result
}

func (g *Graph) endpoints(ids []string, pick func(*Edge) string) []string {
	seen := make(map[string]bool, len(ids))
	var result []string
	for _, e := range g.resolve(ids) {
		id := pick(e)
		if !seen[id] {
			seen[id] = true
			result = append(result, id)
		}
	}
	return result
}

func insertSorted(ids []string, id string) []string {
	i := sort.SearchStrings(ids, id)
	ids = append(ids, "")
	copy(ids[i+1:], ids[i:])
	ids[i] = id
	return ids
}

func removeID(ids []string, id string) []string {
	i := sort.SearchStrings(ids, id)
	if i < len(ids) && ids[i] == id {
		return append(ids[:i], ids[i+1:]...)
	}
	return ids
}
