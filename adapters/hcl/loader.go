// Package hcl loads belief graph definitions written in HCL.
//
// A definition file declares nodes and edges as labelled blocks:
//
//	name = "weather"
//
//	node "rain" {
//	  type  = "fact"
//	  label = "It rained overnight"
//	}
//
//	node "wet" {
//	  type  = "assertion"
//	  prior = 0.3
//	}
//
//	edge "rain_wet" {
//	  source = "rain"
//	  target = "wet"
//	  weight = 0.8
//
//	  modifier {
//	    likert = 2
//	    label  = "two witnesses"
//	  }
//
//	  cpt {
//	    cond_true  = 90
//	    cond_false = 10
//	  }
//	}
//
// An edge gives its strength either as a signed weight or as a Likert step
// in [-5, 5] (likert = -3), never both.
package hcl

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"go.uber.org/zap"

	"beliefgraph/core/determinism"
	"beliefgraph/core/graph"
	"beliefgraph/core/probability"
	"beliefgraph/internal/errors"
	"beliefgraph/internal/logging"
)

// Definition is a parsed graph file
type Definition struct {
	// Name identifies the graph in run history
	Name string

	// Path is the file the definition was read from, if any
	Path string

	// Hash is the content hash of the source bytes
	Hash determinism.ContentHash

	Graph *graph.Graph

	// AutoTyped is set when fact/assertion types were derived from topology
	AutoTyped bool
}

// Loader parses definition files
type Loader struct {
	parser *hclparse.Parser
}

// NewLoader creates a new loader
func NewLoader() *Loader {
	return &Loader{
		parser: hclparse.NewParser(),
	}
}

var fileSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "name"},
		{Name: "auto_type"},
	},
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "node", LabelNames: []string{"id"}},
		{Type: "edge", LabelNames: []string{"id"}},
	},
}

type nodeBlock struct {
	Type  string   `hcl:"type"`
	Label *string  `hcl:"label,optional"`
	Prior *float64 `hcl:"prior,optional"`
}

type edgeBlock struct {
	Source    string          `hcl:"source"`
	Target    string          `hcl:"target"`
	Weight    *float64        `hcl:"weight,optional"`
	Likert    *int            `hcl:"likert,optional"`
	Opposes   *bool           `hcl:"opposes,optional"`
	Modifiers []modifierBlock `hcl:"modifier,block"`
	CPT       *cptBlock       `hcl:"cpt,block"`
}

type modifierBlock struct {
	Likert int     `hcl:"likert"`
	Label  *string `hcl:"label,optional"`
}

type cptBlock struct {
	CondTrue  *float64 `hcl:"cond_true,optional"`
	CondFalse *float64 `hcl:"cond_false,optional"`
	Baseline  *float64 `hcl:"baseline,optional"`
	Inverse   *bool    `hcl:"inverse,optional"`
}

// LoadFile reads and parses a definition file
func (l *Loader) LoadFile(path string) (*Definition, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.TypeInput, "failed to read graph file", err).
			WithContext("path", path)
	}
	def, err := l.Parse(src, path)
	if err != nil {
		return nil, err
	}
	def.Path = path
	return def, nil
}

// Parse builds a graph from HCL source. filename is used in diagnostics and
// as the default graph name.
func (l *Loader) Parse(src []byte, filename string) (*Definition, error) {
	file, diags := l.parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, errors.Parsing(filename+": invalid HCL", diags)
	}

	content, diags := file.Body.Content(fileSchema)
	if diags.HasErrors() {
		return nil, errors.Parsing(filename+": invalid graph definition", diags)
	}

	def := &Definition{
		Name:  defaultName(filename),
		Hash:  determinism.ComputeHash(src),
		Graph: graph.New(),
	}

	autoType := false
	if attr, ok := content.Attributes["name"]; ok {
		if diags := gohcl.DecodeExpression(attr.Expr, nil, &def.Name); diags.HasErrors() {
			return nil, errors.Parsing(attr.Range.String()+": invalid name", diags)
		}
	}
	if attr, ok := content.Attributes["auto_type"]; ok {
		if diags := gohcl.DecodeExpression(attr.Expr, nil, &autoType); diags.HasErrors() {
			return nil, errors.Parsing(attr.Range.String()+": invalid auto_type", diags)
		}
	}

	// Nodes first so edges can reference nodes declared after them
	var edges []*hcl.Block
	for _, block := range content.Blocks {
		switch block.Type {
		case "node":
			if err := l.addNode(def.Graph, block); err != nil {
				return nil, err
			}
		case "edge":
			edges = append(edges, block)
		}
	}
	for _, block := range edges {
		if err := l.addEdge(def.Graph, block); err != nil {
			return nil, err
		}
	}

	if autoType {
		def.AutoTyped = graph.AutoAssignTypes(def.Graph)
	}

	nodes, edgeCount := def.Graph.Len()
	logging.Debug("loaded graph definition",
		zap.String("name", def.Name),
		zap.Int("nodes", nodes),
		zap.Int("edges", edgeCount))

	return def, nil
}

func (l *Loader) addNode(g *graph.Graph, block *hcl.Block) error {
	id := block.Labels[0]
	var nb nodeBlock
	if diags := gohcl.DecodeBody(block.Body, nil, &nb); diags.HasErrors() {
		return errors.Parsing(fmt.Sprintf("%s: node %q", block.DefRange, id), diags)
	}

	nodeType, err := graph.ParseNodeType(strings.ToLower(nb.Type))
	if err != nil {
		return errors.Parsing(fmt.Sprintf("%s: node %q", block.DefRange, id), err)
	}

	n := graph.Node{ID: id, Type: nodeType}
	if nb.Label != nil {
		n.Label = *nb.Label
	}
	if nodeType == graph.NodeAssertion || nodeType.IsLogic() {
		n.Lite.Virgin = true
	}
	if nb.Prior != nil {
		if *nb.Prior < 0 || *nb.Prior > 1 {
			return errors.Parsing(fmt.Sprintf("%s: node %q prior %v outside [0, 1]", block.DefRange, id, *nb.Prior), nil)
		}
		n.Heavy.Prob = graph.Some(*nb.Prior)
	}

	if err := g.AddNode(n); err != nil {
		return errors.Parsing(fmt.Sprintf("%s: node %q", block.DefRange, id), err)
	}
	return nil
}

func (l *Loader) addEdge(g *graph.Graph, block *hcl.Block) error {
	id := block.Labels[0]
	var eb edgeBlock
	if diags := gohcl.DecodeBody(block.Body, nil, &eb); diags.HasErrors() {
		return errors.Parsing(fmt.Sprintf("%s: edge %q", block.DefRange, id), diags)
	}

	e := graph.Edge{ID: id, Source: eb.Source, Target: eb.Target}
	switch {
	case eb.Weight != nil && eb.Likert != nil:
		return errors.Parsing(fmt.Sprintf("%s: edge %q sets both weight and likert", block.DefRange, id), nil)
	case eb.Weight != nil:
		e.Weight = *eb.Weight
	case eb.Likert != nil:
		if *eb.Likert < -5 || *eb.Likert > 5 {
			return errors.Parsing(fmt.Sprintf("%s: edge %q likert %d outside [-5, 5]", block.DefRange, id, *eb.Likert), nil)
		}
		e.Weight = probability.LikertToWeight(*eb.Likert)
	}
	if eb.Opposes != nil {
		e.Opposes = *eb.Opposes
	}
	for _, m := range eb.Modifiers {
		if m.Likert < -5 || m.Likert > 5 {
			return errors.Parsing(fmt.Sprintf("%s: edge %q modifier likert %d outside [-5, 5]", block.DefRange, id, m.Likert), nil)
		}
		mod := graph.Modifier{Likert: m.Likert}
		if m.Label != nil {
			mod.Label = *m.Label
		}
		e.Modifiers = append(e.Modifiers, mod)
	}
	if eb.CPT != nil {
		e.CPT = &graph.CPT{
			CondTrue:  optional(eb.CPT.CondTrue),
			CondFalse: optional(eb.CPT.CondFalse),
			Baseline:  optional(eb.CPT.Baseline),
		}
		if eb.CPT.Inverse != nil {
			e.CPT.Inverse = *eb.CPT.Inverse
		}
	}

	added, err := g.AddEdge(e)
	if err != nil {
		if errors.IsType(err, errors.TypeCycle) {
			return errors.Parsing(fmt.Sprintf("%s: edge %q would create a cycle", block.DefRange, id), err)
		}
		return errors.Parsing(fmt.Sprintf("%s: edge %q", block.DefRange, id), err)
	}

	logging.Debug("loaded edge",
		zap.String("edge", added.ID),
		zap.Float64("weight", added.Weight),
		zap.Bool("opposes", added.Opposes),
		zap.String("strength", probability.LikertDescriptor(probability.WeightToLikert(added.Weight))))
	return nil
}

func optional(v *float64) graph.Optional {
	if v == nil {
		return graph.None()
	}
	return graph.Some(*v)
}

func defaultName(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
