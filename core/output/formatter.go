// Package output provides output formatting for propagation reports.
// This package produces human and machine-readable outputs.
package output

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"beliefgraph/core/graph"
	"beliefgraph/internal/errors"
)

// Format represents output format type
type Format string

const (
	// FormatCLI is a human-readable CLI table
	FormatCLI Format = "cli"

	// FormatJSON is machine-readable JSON
	FormatJSON Format = "json"
)

// Formatter produces output in a specific format
type Formatter interface {
	// Format returns the format type
	Format() Format

	// Render produces output for the given report
	Render(w io.Writer, report *Report) error
}

// Report is everything a command wants to show. Sections that do not apply
// to the command are nil.
type Report struct {
	// Graph is the graph name
	Graph string `json:"graph"`

	// InputHash identifies the definition file
	InputHash string `json:"input_hash,omitempty"`

	// Lite summarizes a Lite run
	Lite *RunSummary `json:"lite,omitempty"`

	// Heavy summarizes a Heavy run
	Heavy *RunSummary `json:"heavy,omitempty"`

	// Nodes holds per-node state, sorted by ID
	Nodes []NodeReport `json:"nodes,omitempty"`

	// Intervention describes a do-operation
	Intervention *InterventionReport `json:"intervention,omitempty"`

	// Effect describes an average treatment effect
	Effect *EffectReport `json:"effect,omitempty"`

	// Query holds a structural yes/no answer
	Query *QueryReport `json:"query,omitempty"`

	// RunIDs maps each saved engine run's mode to its run ID
	RunIDs map[string]string `json:"run_ids,omitempty"`
}

// RunSummary is how one engine run ended
type RunSummary struct {
	Converged  bool    `json:"converged"`
	Iterations int     `json:"iterations"`
	FinalDelta float64 `json:"final_delta"`
}

// NodeReport is one node's state after propagation
type NodeReport struct {
	ID              string         `json:"id"`
	Type            graph.NodeType `json:"type"`
	Label           string         `json:"label,omitempty"`
	Lite            graph.Optional `json:"lite"`
	Virgin          bool           `json:"virgin"`
	Robustness      graph.Optional `json:"robustness"`
	RobustnessLabel string         `json:"robustness_label,omitempty"`
	Heavy           graph.Optional `json:"heavy"`
}

// InterventionReport compares observational and interventional heavy values
type InterventionReport struct {
	Do    map[string]float64 `json:"do"`
	Nodes []ShiftReport      `json:"nodes"`
}

// ShiftReport is one node before and under an intervention
type ShiftReport struct {
	ID     string         `json:"id"`
	Before graph.Optional `json:"before"`
	After  graph.Optional `json:"after"`
}

// EffectReport is P(Y|do(X=1)) - P(Y|do(X=0))
type EffectReport struct {
	Treatment string         `json:"treatment"`
	Outcome   string         `json:"outcome"`
	P1        graph.Optional `json:"p1"`
	P0        graph.Optional `json:"p0"`
	Effect    graph.Optional `json:"effect"`
}

// QueryReport is the answer to a d-separation or backdoor query
type QueryReport struct {
	Kind   string   `json:"kind"`
	X      []string `json:"x"`
	Y      []string `json:"y"`
	Z      []string `json:"z"`
	Result bool     `json:"result"`
}

// NodesFromGraph builds node reports for every node in the graph
func NodesFromGraph(g *graph.Graph) []NodeReport {
	var nodes []NodeReport
	for _, n := range g.Nodes() {
		nodes = append(nodes, NodeReport{
			ID:              n.ID,
			Type:            n.Type,
			Label:           n.Label,
			Lite:            n.Lite.Prob,
			Virgin:          n.Lite.Virgin,
			Robustness:      n.Lite.Robustness,
			RobustnessLabel: n.Lite.RobustnessLabel,
			Heavy:           n.Heavy.Prob,
		})
	}
	return nodes
}

// Percent renders a probability as a whole percentage, or a dash when absent
func Percent(p graph.Optional) string {
	v, ok := p.Get()
	if !ok || !p.IsFinite() {
		return "—"
	}
	return decimal.NewFromFloat(v).Shift(2).Round(0).String() + "%"
}

// SignedPoints renders a probability difference in percentage points
func SignedPoints(d graph.Optional) string {
	v, ok := d.Get()
	if !ok || !d.IsFinite() {
		return "—"
	}
	pts := decimal.NewFromFloat(v).Shift(2).Round(1)
	if pts.IsPositive() {
		return "+" + pts.StringFixed(1) + " pts"
	}
	return pts.StringFixed(1) + " pts"
}

// Registry manages formatter registration
type Registry struct {
	mu         sync.RWMutex
	formatters map[Format]Formatter
}

// NewRegistry creates a registry holding the built-in formatters
func NewRegistry() *Registry {
	r := &Registry{formatters: make(map[Format]Formatter)}
	_ = r.Register(&CLIFormatter{})
	_ = r.Register(&JSONFormatter{Indent: true})
	return r
}

// Register adds a formatter to the registry
func (r *Registry) Register(f Formatter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.formatters[f.Format()]; exists {
		return errors.Newf(errors.TypeInput, "formatter already registered: %s", f.Format())
	}
	r.formatters[f.Format()] = f
	return nil
}

// Get returns a formatter for a format type
func (r *Registry) Get(format Format) (Formatter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.formatters[format]
	if !ok {
		return nil, errors.NotSupported(fmt.Sprintf("output format %q", format))
	}
	return f, nil
}

// Formats returns the registered format names sorted
func (r *Registry) Formats() []Format {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var formats []Format
	for f := range r.formatters {
		formats = append(formats, f)
	}
	sort.Slice(formats, func(i, j int) bool { return formats[i] < formats[j] })
	return formats
}
