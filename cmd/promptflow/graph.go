package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/aretw0/promptflow/internal/cli"
	"github.com/aretw0/promptflow/pkg/adapters/file"
	"github.com/aretw0/promptflow/pkg/graph"
	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Inspect graph documents and manage the graph store",
}

var graphMermaidCmd = &cobra.Command{
	Use:   "mermaid GRAPH_FILE",
	Short: "Print a Mermaid diagram (graph TD) of a graph document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()

		g, err := cli.LoadFile(args[0], app)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), g.Mermaid(nil))
		return nil
	},
}

var graphImportCmd = &cobra.Command{
	Use:   "import GRAPH_FILE",
	Short: "Save a graph document into the configured store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()

		doc, err := file.ReadDocument(args[0])
		if err != nil {
			return err
		}
		g, err := app.Editor.Import(cmd.Context(), doc)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %q as %s\n", g.Name, g.UID)
		return nil
	},
}

var graphExportCmd = &cobra.Command{
	Use:   "export GRAPH_UID FILE",
	Short: "Write a stored graph to a JSON or YAML document",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()

		g, err := app.Editor.Load(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if err := file.WriteDocument(args[1], g.Document()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %s to %s\n", g.UID, args[1])
		return nil
	},
}

var graphListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored graphs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()

		list, err := app.Editor.List(cmd.Context())
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "UID\tLABEL")
		for _, s := range list {
			fmt.Fprintf(tw, "%s\t%s\n", s.UID, s.Label)
		}
		return tw.Flush()
	},
}

var graphDeleteCmd = &cobra.Command{
	Use:   "delete GRAPH_UID",
	Short: "Delete a stored graph",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()

		return app.Editor.Delete(cmd.Context(), args[0])
	},
}

var costCmd = &cobra.Command{
	Use:   "cost GRAPH_FILE",
	Short: "Estimate the LLM cost of one run of a graph document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()

		g, err := cli.LoadFile(args[0], app)
		if err != nil {
			return err
		}
		cost, err := g.Cost(nil)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), graph.FormattedCost(cost))
		return nil
	},
}

func init() {
	graphCmd.AddCommand(graphMermaidCmd, graphImportCmd, graphExportCmd, graphListCmd, graphDeleteCmd)
	rootCmd.AddCommand(graphCmd, costCmd)
}
