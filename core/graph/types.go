// Package graph is the belief graph model: a directed acyclic graph of fact,
// assertion and logic nodes connected by weighted influence edges.
//
// Nodes keep their Lite (weight based) and Heavy (Bayesian) state in two
// disjoint records; the engines in core/lite and core/heavy each own one of
// them and never touch the other.
package graph

import (
	"fmt"
	"math"
)

// NodeType is the polymorphic tag that selects a node's propagation rule
type NodeType string

const (
	NodeFact      NodeType = "fact"
	NodeAssertion NodeType = "assertion"
	NodeAnd       NodeType = "and"
	NodeOr        NodeType = "or"
	NodeNote      NodeType = "note"
)

// ParseNodeType validates a node type name
func ParseNodeType(s string) (NodeType, error) {
	switch t := NodeType(s); t {
	case NodeFact, NodeAssertion, NodeAnd, NodeOr, NodeNote:
		return t, nil
	}
	return "", fmt.Errorf("unknown node type %q", s)
}

// IsLogic reports whether the type is an AND/OR gate
func (t NodeType) IsLogic() bool {
	return t == NodeAnd || t == NodeOr
}

// Node is a belief graph vertex
type Node struct {
	ID    string   `json:"id"`
	Type  NodeType `json:"type"`
	Label string   `json:"label,omitempty"`

	Lite  LiteState  `json:"lite"`
	Heavy HeavyState `json:"heavy"`
}

// LiteState is the weight-based propagation record
type LiteState struct {
	// Prob is absent while the node is virgin
	Prob Optional `json:"prob"`

	// Virgin is set when no valid incoming influence determines Prob
	Virgin bool `json:"virgin"`

	// Robustness is observational and never feeds back into propagation
	Robustness      Optional `json:"robustness"`
	RobustnessLabel string   `json:"robustness_label,omitempty"`
}

// HeavyState is the Bayesian propagation record
type HeavyState struct {
	Prob Optional `json:"prob"`

	// Intervention is present only while a do-operation is active
	Intervention *Intervention `json:"intervention,omitempty"`
}

// Intervention freezes a node at a forced value
type Intervention struct {
	Value float64 `json:"value"`
}

// Edge is a directed influence from Source to Target
type Edge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`

	// Weight is a magnitude; the sign lives in Opposes
	Weight    float64    `json:"weight"`
	Opposes   bool       `json:"opposes,omitempty"`
	Modifiers []Modifier `json:"modifiers,omitempty"`

	CPT *CPT `json:"cpt,omitempty"`

	Lite LiteEdgeState `json:"lite"`
}

// LiteEdgeState is the resolved edge weight produced by the Lite edge stage
type LiteEdgeState struct {
	EffectiveWeight float64 `json:"effective_weight"`
	Virgin          bool    `json:"virgin"`
}

// Modifier is a Likert-style adjustment in [-5, 5] applied to an edge weight
type Modifier struct {
	Likert int    `json:"likert"`
	Label  string `json:"label,omitempty"`
}

// CPT is the Heavy mode conditional probability table, in percent [0, 100].
// CondTrue is P(target | source), CondFalse is P(target | not source).
// Inverse flips which state of the source counts as true.
type CPT struct {
	CondTrue  Optional `json:"cond_true"`
	CondFalse Optional `json:"cond_false"`
	Baseline  Optional `json:"baseline"`
	Inverse   bool     `json:"inverse,omitempty"`
}

// Complete reports whether both conditional entries are numeric
func (c *CPT) Complete() bool {
	return c != nil && c.CondTrue.IsFinite() && c.CondFalse.IsFinite()
}

// NormalizeWeight folds a signed raw weight into magnitude and Opposes.
// A negative weight on an edge already flagged as opposing is not negated twice.
func (e *Edge) NormalizeWeight() {
	if e.Weight < 0 {
		e.Weight = math.Abs(e.Weight)
		e.Opposes = true
	}
}

// SignedWeight returns the base weight carrying the Opposes sign
func (e *Edge) SignedWeight() float64 {
	if e.Opposes {
		return -math.Abs(e.Weight)
	}
	return math.Abs(e.Weight)
}

func (e Edge) clone() Edge {
	c := e
	if e.Modifiers != nil {
		c.Modifiers = append([]Modifier(nil), e.Modifiers...)
	}
	if e.CPT != nil {
		cpt := *e.CPT
		c.CPT = &cpt
	}
	return c
}

func (n Node) clone() Node {
	c := n
	if n.Heavy.Intervention != nil {
		iv := *n.Heavy.Intervention
		c.Heavy.Intervention = &iv
	}
	return c
}
