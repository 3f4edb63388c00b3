// Package cmd provides the CLI commands for beliefgraph.
package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"beliefgraph/adapters/hcl"
	"beliefgraph/adapters/storage"
	"beliefgraph/core/output"
	"beliefgraph/internal/config"
	"beliefgraph/internal/logging"
)

// Version is set at build time
var Version = "0.1.0"

var (
	cfgFile      string
	verbose      bool
	outputFormat string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "beliefgraph",
	Short: "Propagate beliefs through an argument graph",
	Long: `beliefgraph propagates probabilities through a directed acyclic graph of
facts, assertions and AND/OR gates, and answers causal questions about it.

Graphs are written in HCL with node and edge blocks.

Examples:
  beliefgraph propagate weather.hcl
  beliefgraph propagate --mode heavy --format json weather.hcl
  beliefgraph do weather.hcl --set rain=1
  beliefgraph ate weather.hcl --treatment rain --outcome wet
  beliefgraph dsep weather.hcl --x rain --y slippery --z wet`,
	SilenceUsage: true,
}

// Execute runs the CLI
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file, JSON or YAML (default is $HOME/.beliefgraph/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", "", "output format (cli, json); defaults to the configured format")

	// Add subcommands
	rootCmd.AddCommand(propagateCmd)
	rootCmd.AddCommand(doCmd)
	rootCmd.AddCommand(ateCmd)
	rootCmd.AddCommand(dsepCmd)
	rootCmd.AddCommand(backdoorCmd)
	rootCmd.AddCommand(cycleCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(compareCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}

func initConfig() {
	path := cfgFile
	if path == "" {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, ".beliefgraph", "config.yaml")
		}
	}
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
		config.Set(cfg)
	}

	// Initialize logging
	cfg := config.Get()
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if err := logging.Initialize(cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logging: %v\n", err)
	}
}

// loadDefinition parses a graph file
func loadDefinition(path string) (*hcl.Definition, error) {
	def, err := hcl.NewLoader().LoadFile(path)
	if err != nil {
		return nil, err
	}
	nodes, edges := def.Graph.Len()
	logging.Debug("graph loaded",
		zap.String("graph", def.Name),
		zap.String("hash", def.Hash.String()),
		zap.Int("nodes", nodes),
		zap.Int("edges", edges))
	return def, nil
}

// render writes a report in the selected format
func render(cmd *cobra.Command, report *output.Report) error {
	f, err := output.NewRegistry().Get(effectiveFormat())
	if err != nil {
		return err
	}
	return f.Render(cmd.OutOrStdout(), report)
}

// effectiveFormat is the --format flag, or the configured default
func effectiveFormat() output.Format {
	if outputFormat != "" {
		return output.Format(outputFormat)
	}
	return output.Format(config.Get().Output.DefaultFormat)
}

// openStore opens the configured run store
func openStore() (storage.Store, error) {
	cfg := config.Get().Storage
	return storage.StoreFactory(storage.Backend(cfg.Backend), map[string]string{"path": cfg.Path})
}

// versionCmd prints version information
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "beliefgraph version %s\n", Version)
	},
}

// configCmd manages configuration
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(config.Get())
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default configuration to a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Default().Save(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", args[0])
		return nil
	},
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
