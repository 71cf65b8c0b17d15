package main

import (
	"fmt"

	"github.com/aretw0/promptflow/internal/cli"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate GRAPH_FILE",
	Short: "Check a graph document for consistency",
	Long: `Builds the graph, failing on unknown node types, duplicate Start or Init
nodes and dangling branches. Cycles and a missing entry node are reported
as warnings.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()

		warnings, err := cli.Validate(args[0], app, logger)
		if err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		out := cmd.OutOrStdout()
		for _, w := range warnings {
			fmt.Fprintf(out, "warning: %s\n", w)
		}
		fmt.Fprintln(out, "Graph is valid.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
