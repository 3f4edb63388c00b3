package graph

// ChangeKind identifies a graph mutation
type ChangeKind string

const (
	NodeAdded   ChangeKind = "node_added"
	NodeRemoved ChangeKind = "node_removed"
	NodeUpdated ChangeKind = "node_updated"
	EdgeAdded   ChangeKind = "edge_added"
	EdgeRemoved ChangeKind = "edge_removed"
	EdgeUpdated ChangeKind = "edge_updated"
)

// Change is a single mutation notification
type Change struct {
	Kind ChangeKind
	ID   string
}

// Listener observes graph mutations. Inside a batch, changes are delivered
// together when the outermost batch ends.
type Listener interface {
	GraphChanged(changes []Change)
}

// ListenerFunc adapts a function to Listener
type ListenerFunc func(changes []Change)

// GraphChanged implements Listener
func (f ListenerFunc) GraphChanged(changes []Change) {
	f(changes)
}

// Subscribe registers a listener
func (g *Graph) Subscribe(l Listener) {
	g.listeners = append(g.listeners, l)
}

// StartBatch opens a batch. Batches nest.
func (g *Graph) StartBatch() {
	g.batchDepth++
}

// EndBatch closes a batch and flushes queued changes when it is the outermost one
func (g *Graph) EndBatch() {
	if g.batchDepth == 0 {
		return
	}
	g.batchDepth--
	if g.batchDepth > 0 || len(g.pending) == 0 {
		return
	}
	changes := g.pending
	g.pending = nil
	g.notify(changes)
}

// InBatch reports whether a batch is open
func (g *Graph) InBatch() bool {
	return g.batchDepth > 0
}

// Batch runs fn inside a batch; the batch is closed even if fn panics
func (g *Graph) Batch(fn func() error) error {
	g.StartBatch()
	defer g.EndBatch()
	return fn()
}

func (g *Graph) emit(c Change) {
	if len(g.listeners) == 0 {
		return
	}
	if g.batchDepth > 0 {
		g.pending = append(g.pending, c)
		return
	}
	g.notify([]Change{c})
}

func (g *Graph) notify(changes []Change) {
	for _, l := range g.listeners {
		l.GraphChanged(changes)
	}
}
