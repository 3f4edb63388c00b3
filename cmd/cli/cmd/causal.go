// Package cmd - causal commands
package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"beliefgraph/core/causal"
	"beliefgraph/core/graph"
	"beliefgraph/core/heavy"
	"beliefgraph/core/output"
	"beliefgraph/internal/config"
	"beliefgraph/internal/errors"
	"beliefgraph/internal/logging"
)

var (
	doAssignments []string
	causalMode    string
	treatment     string
	outcome       string
	queryX        []string
	queryY        []string
	queryZ        []string
)

// doCmd shows every node under an intervention
var doCmd = &cobra.Command{
	Use:   "do [file]",
	Short: "Compute heavy probabilities under an intervention",
	Long: `Force nodes to fixed values, cutting their incoming edges, and compare each
node's heavy probability before and under the intervention. The graph file
is not modified.

Examples:
  beliefgraph do weather.hcl --set rain=1
  beliefgraph do weather.hcl --set rain=0 --set sprinkler=1`,
	Args: cobra.ExactArgs(1),
	RunE: runDo,
}

// ateCmd estimates an average treatment effect
var ateCmd = &cobra.Command{
	Use:   "ate [file]",
	Short: "Estimate the average treatment effect of one node on another",
	Args:  cobra.ExactArgs(1),
	RunE:  runATE,
}

// dsepCmd tests d-separation
var dsepCmd = &cobra.Command{
	Use:   "dsep [file]",
	Short: "Test whether X and Y are d-separated given Z",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuery(cmd, args[0], "d-separated", causal.IsDSeparated)
	},
}

// backdoorCmd tests the backdoor criterion
var backdoorCmd = &cobra.Command{
	Use:   "backdoor [file]",
	Short: "Test whether Z blocks every backdoor path from X to Y",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuery(cmd, args[0], "backdoor", causal.SatisfiesBackdoor)
	},
}

// cycleCmd checks whether a new edge would be accepted
var cycleCmd = &cobra.Command{
	Use:   "cycle [file] [source] [target]",
	Short: "Report whether adding source -> target would create a cycle",
	Args:  cobra.ExactArgs(3),
	RunE:  runCycle,
}

func init() {
	doCmd.Flags().StringArrayVarP(&doAssignments, "set", "s", nil, "intervention as node=value, repeatable")
	doCmd.Flags().StringVarP(&causalMode, "mode", "m", string(causal.ModeHeavy), "propagation mode (interventions need heavy)")
	_ = doCmd.MarkFlagRequired("set")

	ateCmd.Flags().StringVarP(&treatment, "treatment", "x", "", "treatment node")
	ateCmd.Flags().StringVarP(&outcome, "outcome", "y", "", "outcome node")
	ateCmd.Flags().StringVarP(&causalMode, "mode", "m", string(causal.ModeHeavy), "propagation mode (interventions need heavy)")
	_ = ateCmd.MarkFlagRequired("treatment")
	_ = ateCmd.MarkFlagRequired("outcome")

	for _, c := range []*cobra.Command{dsepCmd, backdoorCmd} {
		c.Flags().StringSliceVar(&queryX, "x", nil, "first node set")
		c.Flags().StringSliceVar(&queryY, "y", nil, "second node set")
		c.Flags().StringSliceVar(&queryZ, "z", nil, "conditioning set")
		_ = c.MarkFlagRequired("x")
		_ = c.MarkFlagRequired("y")
	}
}

func runDo(cmd *cobra.Command, args []string) error {
	doMap, err := parseAssignments(doAssignments)
	if err != nil {
		return err
	}
	mode, err := causal.ParseMode(causalMode)
	if err != nil {
		return errors.Wrap(errors.TypeInput, "invalid mode", err)
	}

	def, err := loadDefinition(args[0])
	if err != nil {
		return err
	}
	if err := checkNodes(def.Graph, causal.DoMap(doMap)); err != nil {
		return err
	}

	engine := heavy.NewEngine(config.Get().HeavyOptions())
	engine.Converge(def.Graph)
	before := heavyProbabilities(def.Graph)

	after := causal.NewAnalyzer(engine).ComputeDo(def.Graph, mode, doMap)

	iv := &output.InterventionReport{Do: doMap}
	for _, id := range def.Graph.NodeIDs() {
		s := output.ShiftReport{ID: id}
		if p, ok := before[id]; ok {
			s.Before = graph.Some(p)
		}
		if p, ok := after[id]; ok {
			s.After = graph.Some(p)
		}
		iv.Nodes = append(iv.Nodes, s)
	}

	logging.Info("intervention computed",
		zap.String("graph", def.Name),
		zap.Int("interventions", len(doMap)))

	return render(cmd, &output.Report{Graph: def.Name, InputHash: def.Hash.Hex(), Intervention: iv})
}

func runATE(cmd *cobra.Command, args []string) error {
	mode, err := causal.ParseMode(causalMode)
	if err != nil {
		return errors.Wrap(errors.TypeInput, "invalid mode", err)
	}

	def, err := loadDefinition(args[0])
	if err != nil {
		return err
	}
	for _, id := range []string{treatment, outcome} {
		if !def.Graph.HasNode(id) {
			return errors.NotFound("node", id)
		}
	}

	engine := heavy.NewEngine(config.Get().HeavyOptions())
	engine.Converge(def.Graph)
	ate := causal.NewAnalyzer(engine).EstimateATE(def.Graph, mode, treatment, outcome)

	return render(cmd, &output.Report{
		Graph:     def.Name,
		InputHash: def.Hash.Hex(),
		Effect: &output.EffectReport{
			Treatment: treatment,
			Outcome:   outcome,
			P1:        ate.P1,
			P0:        ate.P0,
			Effect:    ate.Effect,
		},
	})
}

func runQuery(cmd *cobra.Command, path, kind string, query func(g *graph.Graph, x, y, z []string) bool) error {
	def, err := loadDefinition(path)
	if err != nil {
		return err
	}
	for _, set := range [][]string{queryX, queryY, queryZ} {
		for _, id := range set {
			if !def.Graph.HasNode(id) {
				return errors.NotFound("node", id)
			}
		}
	}

	result := query(def.Graph, queryX, queryY, queryZ)
	return render(cmd, &output.Report{
		Graph:     def.Name,
		InputHash: def.Hash.Hex(),
		Query:     &output.QueryReport{Kind: kind, X: queryX, Y: queryY, Z: queryZ, Result: result},
	})
}

func runCycle(cmd *cobra.Command, args []string) error {
	def, err := loadDefinition(args[0])
	if err != nil {
		return err
	}
	source, target := args[1], args[2]
	for _, id := range []string{source, target} {
		if !def.Graph.HasNode(id) {
			return errors.NotFound("node", id)
		}
	}

	if graph.WouldCreateCycle(def.Graph, source, target) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s would create a cycle\n", source, target)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s can be added\n", source, target)
	}
	return nil
}

// parseAssignments reads node=value pairs. Values are probabilities in [0, 1].
func parseAssignments(pairs []string) (map[string]float64, error) {
	result := make(map[string]float64, len(pairs))
	for _, pair := range pairs {
		id, raw, ok := strings.Cut(pair, "=")
		id = strings.TrimSpace(id)
		if !ok || id == "" {
			return nil, errors.Newf(errors.TypeInput, "invalid assignment %q (want node=value)", pair)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, errors.Wrapf(errors.TypeInput, err, "invalid value in %q", pair)
		}
		if v < 0 || v > 1 {
			return nil, errors.Newf(errors.TypeInput, "value in %q outside [0, 1]", pair)
		}
		result[id] = v
	}
	return result, nil
}

func checkNodes(g *graph.Graph, doMap causal.DoMap) error {
	for id := range doMap {
		if !g.HasNode(id) {
			return errors.NotFound("node", id)
		}
	}
	return nil
}
