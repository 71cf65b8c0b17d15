package main

import (
	"os"

	"github.com/aretw0/promptflow"
	"github.com/aretw0/promptflow/internal/cli"
	"github.com/aretw0/promptflow/internal/presentation/tui"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run GRAPH_FILE",
	Short: "Run a graph document in this process",
	Long: `Runs a JSON or YAML graph document locally. Input nodes prompt on the
terminal. With --watch the graph reruns whenever the file changes.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()

		opts := cli.RunOptions{Path: args[0], Stdin: os.Stdin, Stdout: cmd.OutOrStdout()}
		opts.State, _ = cmd.Flags().GetString("state")
		opts.JSON, _ = cmd.Flags().GetBool("json")
		opts.Watch, _ = cmd.Flags().GetBool("watch")
		opts.Quiet, _ = cmd.Flags().GetBool("quiet")

		if !opts.JSON && !opts.Quiet && tui.Styled(os.Stdout) {
			tui.PrintBanner(cmd.OutOrStdout(), promptflow.Version)
			opts.Renderer = tui.NewRenderer(true)
		}
		return cli.RunFile(cmd.Context(), app, opts)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().String("state", "", "Initial state as JSON")
	runCmd.Flags().Bool("json", false, "Print the final state as JSON")
	runCmd.Flags().BoolP("watch", "w", false, "Rerun when the graph file changes")
	runCmd.Flags().BoolP("quiet", "q", false, "Print only the final result")
}
