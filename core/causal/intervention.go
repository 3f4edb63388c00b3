// Package causal provides do-calculus on top of Heavy propagation:
// reversible interventions, average treatment effects, and d-separation
// and backdoor queries.
//
// Every mutation made here is transactional. After any call returns, or
// panics, the graph's nodes and edges are identical to what they were before.
package causal

import (
	"math"
	"strings"

	"go.uber.org/zap"

	"beliefgraph/core/determinism"
	"beliefgraph/core/graph"
	"beliefgraph/core/heavy"
	"beliefgraph/core/probability"
	"beliefgraph/internal/errors"
	"beliefgraph/internal/logging"
)

// Mode is the host's propagation semantics. Interventions only make sense
// in ModeHeavy.
type Mode string

const (
	ModeLite  Mode = "lite"
	ModeHeavy Mode = "heavy"
)

// ParseMode validates a mode name
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(s)); m {
	case ModeLite, ModeHeavy:
		return m, nil
	}
	return "", errors.Newf(errors.TypeInput, "unknown mode %q (want lite or heavy)", s)
}

// DoMap maps node IDs to the probability they are forced to
type DoMap map[string]float64

// Probabilities maps node IDs to heavy probabilities
type Probabilities map[string]float64

// Analyzer runs causal queries using a Heavy engine
type Analyzer struct {
	engine *heavy.Engine
}

// NewAnalyzer creates an analyzer; a nil engine uses default Heavy options
func NewAnalyzer(engine *heavy.Engine) *Analyzer {
	if engine == nil {
		engine = heavy.NewEngine(heavy.DefaultOptions())
	}
	return &Analyzer{engine: engine}
}

// WithIntervention applies do(doMap), runs fn while the intervention is
// active, and restores the graph. Outside heavy mode, or with an empty map,
// fn runs against the unmodified graph. fn's error is returned unchanged;
// a failure while restoring is logged and never replaces it.
func (a *Analyzer) WithIntervention(g *graph.Graph, mode Mode, doMap DoMap, fn func() error) error {
	if fn == nil {
		fn = func() error { return nil }
	}
	if len(doMap) == 0 {
		return fn()
	}
	if mode != ModeHeavy {
		logging.Warn("interventions are only supported in heavy mode; running without intervention",
			zap.String("mode", string(mode)))
		return fn()
	}

	tx := begin(g)
	defer tx.release()

	for _, id := range sortedIDs(doMap) {
		tx.intervene(id, doMap[id])
	}
	a.engine.Converge(g)

	return fn()
}

// ComputeDo returns every node's heavy probability under do(doMap)
func (a *Analyzer) ComputeDo(g *graph.Graph, mode Mode, doMap DoMap) Probabilities {
	probs := make(Probabilities)
	_ = a.WithIntervention(g, mode, doMap, func() error {
		for _, n := range g.Nodes() {
			if p, ok := n.Heavy.Prob.Get(); ok {
				probs[n.ID] = p
			}
		}
		return nil
	})
	return probs
}

// ATE is the average treatment effect P(Y|do(X=1)) - P(Y|do(X=0))
type ATE struct {
	P1     graph.Optional `json:"p1"`
	P0     graph.Optional `json:"p0"`
	Effect graph.Optional `json:"effect"`
}

// EstimateATE computes the effect of forcing x on y. Effect is absent when
// either interventional probability is not a finite number.
func (a *Analyzer) EstimateATE(g *graph.Graph, mode Mode, xID, yID string) ATE {
	r1 := a.ComputeDo(g, mode, DoMap{xID: 1})
	r0 := a.ComputeDo(g, mode, DoMap{xID: 0})

	var result ATE
	if p, ok := r1[yID]; ok {
		result.P1 = graph.Some(p)
	}
	if p, ok := r0[yID]; ok {
		result.P0 = graph.Some(p)
	}
	if result.P1.IsFinite() && result.P0.IsFinite() {
		p1, _ := result.P1.Get()
		p0, _ := result.P0.Get()
		result.Effect = graph.Some(p1 - p0)
	}
	return result
}

// transaction records everything an intervention changes
type transaction struct {
	g       *graph.Graph
	heavy   map[string]graph.HeavyState
	removed []graph.Edge
}

// begin snapshots every node's heavy record and opens a batch so listeners
// never observe the intervened state.
func begin(g *graph.Graph) *transaction {
	tx := &transaction{g: g, heavy: make(map[string]graph.HeavyState)}
	for _, n := range g.Nodes() {
		s := n.Heavy
		if s.Intervention != nil {
			iv := *s.Intervention
			s.Intervention = &iv
		}
		tx.heavy[n.ID] = s
	}
	g.StartBatch()
	return tx
}

// intervene cuts the node's incoming edges and freezes it at value
func (tx *transaction) intervene(id string, value float64) {
	n, ok := tx.g.Node(id)
	if !ok {
		logging.Warn("intervention target not found", zap.String("node", id))
		return
	}
	v := clampDo(value)

	var ids []string
	for _, e := range tx.g.Incoming(id) {
		ids = append(ids, e.ID)
	}
	tx.removed = append(tx.removed, tx.g.RemoveEdges(ids...)...)

	s := n.Heavy
	s.Intervention = &graph.Intervention{Value: v}
	s.Prob = graph.Some(v)
	tx.g.SetHeavy(id, s)
}

// release re-inserts removed edges and restores the heavy snapshot exactly,
// which is the pre-intervention fixed point. Failures are logged and
// swallowed, including a listener panicking when the batch is flushed.
func (tx *transaction) release() {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("restoring graph after intervention panicked", zap.Any("panic", r))
		}
	}()
	defer tx.g.EndBatch()

	for _, e := range tx.removed {
		if _, err := tx.g.AddEdge(e); err != nil {
			logging.Error("restoring edge after intervention failed",
				zap.String("edge", e.ID), zap.Error(err))
		}
	}
	for id, s := range tx.heavy {
		if !tx.g.HasNode(id) {
			logging.Error("restoring node after intervention failed: node no longer exists",
				zap.String("node", id))
			continue
		}
		tx.g.SetHeavy(id, s)
	}
}

func clampDo(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return probability.Clamp01(v)
}

func sortedIDs(m DoMap) []string {
	return determinism.SortedKeys(map[string]float64(m))
}
