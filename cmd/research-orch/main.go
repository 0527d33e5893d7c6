package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "research-orch",
		Short: "Deep Research Orchestrator - versioned research runs against a hosted agent",
		Long: `Deep Research Orchestrator drives a hosted deep-research agent from the
command line. It starts research runs, polls remote jobs to completion,
rewrites citations into numbered markdown links, and keeps every report
version in a local store so runs can be revised and resumed.`,
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
