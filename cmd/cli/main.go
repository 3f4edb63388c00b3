// Package main is the entry point for the beliefgraph CLI.
package main

import (
	"os"

	"beliefgraph/cmd/cli/cmd"
	"beliefgraph/internal/logging"
)

func main() {
	err := cmd.Execute()
	logging.Sync()
	if err != nil {
		os.Exit(1)
	}
}
