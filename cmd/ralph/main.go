package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "ralph",
		Short: "Ralph - autonomous iteration loop runner",
		Long: `Ralph runs an AI coding tool in a loop against a persistent task graph.
Tasks carry priorities and dependencies; each iteration picks the next
eligible task, hands it to the tool, verifies quality gates and records
the outcome until the work is done or the iteration budget runs out.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
