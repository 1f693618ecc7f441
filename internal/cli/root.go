// Package cli provides the remedyiq command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Build variables - set by ldflags during build.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

// Execute runs the root command and returns the exit code.
func Execute() int {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// NewRootCommand creates the root cobra command.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "remedyiq",
		Short: "AR System log analysis service",
		Long: `RemedyIQ ingests AR System server logs (API, SQL, filter and escalation
activity), runs the analysis engine over them, and serves the results
over an HTTP API: dimension aggregates, timing gaps, thread utilization,
filter complexity, anomaly detection, and a composite health score.

Logs arrive either as JSONL records produced by the native-format parser
(jar_parsed) or as raw AR server log text handled by the built-in
scanner (computed).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newAnalyzeCommand())
	rootCmd.AddCommand(newVersionCommand())
	return rootCmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("RemedyIQ - AR System Log Analysis\n")
			fmt.Printf("  Version: %s\n", version)
			fmt.Printf("  Commit:  %s\n", commit)
			fmt.Printf("  Built:   %s\n", buildTime)
		},
	}
}
