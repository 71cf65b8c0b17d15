package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/aretw0/promptflow/pkg/ports"
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume graph jobs from the task queue",
	Long: `Starts a worker pool that executes submitted jobs. With the redis queue
driver any number of workers may run next to one or more API servers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		app, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		return runWorkers(ctx, app.Queue)
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorkers(ctx context.Context, queue ports.TaskQueue) error {
	logger.Info("Workers started", "driver", cfg.Queue.Driver, "workers", cfg.Queue.Workers)
	err := queue.Run(ctx)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	logger.Info("Workers stopped")
	return err
}
