// Package cmd - propagate command
package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"beliefgraph/adapters/hcl"
	"beliefgraph/adapters/storage"
	"beliefgraph/core/graph"
	"beliefgraph/core/heavy"
	"beliefgraph/core/lite"
	"beliefgraph/core/output"
	"beliefgraph/internal/config"
	"beliefgraph/internal/errors"
	"beliefgraph/internal/logging"
)

var (
	propagateMode string
	saveRun       bool
)

// propagateCmd runs the engines over a graph file
var propagateCmd = &cobra.Command{
	Use:   "propagate [file]",
	Short: "Propagate probabilities through a graph",
	Long: `Run Lite and/or Heavy propagation to a fixed point and print every node.

Examples:
  beliefgraph propagate weather.hcl
  beliefgraph propagate --mode lite weather.hcl
  beliefgraph propagate --save weather.hcl`,
	Args: cobra.ExactArgs(1),
	RunE: runPropagate,
}

func init() {
	propagateCmd.Flags().StringVarP(&propagateMode, "mode", "m", "", "engines to run (lite, heavy, both); defaults to the configured mode")
	propagateCmd.Flags().BoolVar(&saveRun, "save", false, "record the run in the history store")
}

func runPropagate(cmd *cobra.Command, args []string) error {
	startTime := time.Now()

	def, err := loadDefinition(args[0])
	if err != nil {
		return err
	}

	mode := propagateMode
	if mode == "" {
		mode = config.Get().Mode
	}
	runLite, runHeavy, err := selectEngines(mode)
	if err != nil {
		return err
	}

	report := &output.Report{Graph: def.Name, InputHash: def.Hash.Hex()}
	var runs []*storage.Run

	if runLite {
		res := lite.NewEngine(config.Get().LiteOptions()).Converge(def.Graph)
		report.Lite = &output.RunSummary{Converged: res.Converged, Iterations: res.Iterations, FinalDelta: res.FinalDelta}
		runs = append(runs, newRun(def, "lite", report.Lite, liteProbabilities(def.Graph)))
	}
	if runHeavy {
		res := heavy.NewEngine(config.Get().HeavyOptions()).Converge(def.Graph)
		report.Heavy = &output.RunSummary{Converged: res.Converged, Iterations: res.Iterations, FinalDelta: res.FinalDelta}
		runs = append(runs, newRun(def, "heavy", report.Heavy, heavyProbabilities(def.Graph)))
	}
	report.Nodes = output.NodesFromGraph(def.Graph)

	log := logging.With(zap.String("graph", def.Name))

	checker := graph.NewInvariantChecker(false)
	_ = checker.RunFullCheck(def.Graph)
	for _, v := range checker.GetViolations() {
		log.Warn("graph invariant violated",
			zap.String("invariant", v.Invariant),
			zap.String("location", v.Location),
			zap.String("details", v.Details))
	}

	if saveRun {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		for _, run := range runs {
			if err := store.Save(commandContext(cmd), run); err != nil {
				return err
			}
			if report.RunIDs == nil {
				report.RunIDs = make(map[string]string)
			}
			report.RunIDs[run.Mode] = run.ID
		}
	}

	log.Info("propagation complete",
		zap.String("mode", mode),
		zap.Duration("duration", time.Since(startTime)))

	return render(cmd, report)
}

func selectEngines(mode string) (runLite, runHeavy bool, err error) {
	switch mode {
	case "lite":
		return true, false, nil
	case "heavy":
		return false, true, nil
	case "both":
		return true, true, nil
	}
	return false, false, errors.Newf(errors.TypeInput, "unknown mode %q (want lite, heavy or both)", mode)
}

func newRun(def *hcl.Definition, mode string, s *output.RunSummary, probs map[string]float64) *storage.Run {
	return &storage.Run{
		GraphName:     def.Name,
		Mode:          mode,
		Converged:     s.Converged,
		Iterations:    s.Iterations,
		FinalDelta:    s.FinalDelta,
		Probabilities: probs,
		InputHash:     def.Hash.Hex(),
		Metadata:      map[string]string{"file": def.Path},
	}
}

func liteProbabilities(g *graph.Graph) map[string]float64 {
	probs := make(map[string]float64)
	for _, n := range g.Nodes() {
		if p, ok := n.Lite.Prob.Get(); ok {
			probs[n.ID] = p
		}
	}
	return probs
}

func heavyProbabilities(g *graph.Graph) map[string]float64 {
	probs := make(map[string]float64)
	for _, n := range g.Nodes() {
		if p, ok := n.Heavy.Prob.Get(); ok {
			probs[n.ID] = p
		}
	}
	return probs
}
