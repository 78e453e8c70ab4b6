// Package cmd wires the CLI: the serve command runs the scheduler service,
// the rest operate on the store directly for local inspection.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mcptick",
	Short: "Persistent MCP job scheduler",
	Long: `mcptick runs tools on MCP backends on a fixed cadence, records every
run and every tool invocation, and exposes its own management surface as
MCP tools over stdio or HTTP.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(jobsCmd())
	rootCmd.AddCommand(runsCmd())
	rootCmd.AddCommand(auditCmd())
}

// Execute runs the CLI. Called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
