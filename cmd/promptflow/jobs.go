package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/aretw0/promptflow/internal/presentation/tui"
	"github.com/spf13/cobra"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Submit and manage graph jobs",
	Long: `Talks to the configured job store and queue directly. Jobs are executed
by a "promptflow worker" or "promptflow serve" process sharing that backend.`,
}

var jobsSubmitCmd = &cobra.Command{
	Use:   "submit GRAPH_UID",
	Short: "Queue a run of a stored graph",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()

		var metadata map[string]any
		if raw, _ := cmd.Flags().GetString("metadata"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
				return fmt.Errorf("error parsing --metadata JSON: %w", err)
			}
		}
		id, err := app.Runner.Submit(cmd.Context(), args[0], metadata)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

var jobsListCmd = &cobra.Command{
	Use:   "list [GRAPH_UID]",
	Short: "List jobs, optionally for one graph",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()

		graphID := ""
		if len(args) == 1 {
			graphID = args[0]
		}
		jobs, err := app.Runner.List(cmd.Context(), graphID)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tGRAPH\tSTATUS\tUPDATED")
		for _, j := range jobs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", j.ID, j.GraphID, j.Status, j.UpdatedAt.Format(time.RFC3339))
		}
		return tw.Flush()
	},
}

var jobsStatusCmd = &cobra.Command{
	Use:   "status JOB_ID",
	Short: "Show a job and its output",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()

		job, err := app.Runner.Status(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		// Output is absent until the job finishes.
		st, _ := app.Runner.Output(cmd.Context(), job.ID)
		r := tui.NewRenderer(tui.Styled(os.Stdout))
		fmt.Fprint(cmd.OutOrStdout(), r.Render(tui.JobMarkdown(job, st)))
		return nil
	},
}

var jobsLogsCmd = &cobra.Command{
	Use:   "logs JOB_ID",
	Short: "Print the log lines recorded by a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()

		entries, err := app.Runner.Logs(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e.NodeLabel != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "%s [%s] %s\n", e.Time.Format(time.RFC3339), e.NodeLabel, e.Message)
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", e.Time.Format(time.RFC3339), e.Message)
		}
		return nil
	},
}

var jobsOutputCmd = &cobra.Command{
	Use:   "output JOB_ID",
	Short: "Print the final state of a job as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()

		st, err := app.Runner.Output(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	},
}

var jobsInputCmd = &cobra.Command{
	Use:   "input JOB_ID VALUE",
	Short: "Answer a job waiting for input",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()

		return app.Runner.SendInput(cmd.Context(), args[0], args[1])
	},
}

var jobsStopCmd = &cobra.Command{
	Use:   "stop JOB_ID",
	Short: "Stop a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()

		return app.Runner.Stop(cmd.Context(), args[0])
	},
}

func init() {
	jobsSubmitCmd.Flags().String("metadata", "", "Job metadata as a JSON object")
	jobsCmd.AddCommand(jobsSubmitCmd, jobsListCmd, jobsStatusCmd, jobsLogsCmd, jobsOutputCmd, jobsInputCmd, jobsStopCmd)
	rootCmd.AddCommand(jobsCmd)
}
