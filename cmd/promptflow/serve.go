package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	pfhttp "github.com/aretw0/promptflow/pkg/adapters/http"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Starts the promptflow HTTP API. Unless --no-workers is given the same
process also consumes the task queue, so submitted jobs run here and their
events are available on /jobs/{id}/events.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := cfg.HTTP.Addr
		if cmd.Flags().Changed("addr") {
			addr, _ = cmd.Flags().GetString("addr")
		}
		noWorkers, _ := cmd.Flags().GetBool("no-workers")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		streams := pfhttp.NewStreamManager()
		app, err := openApp(ctx, streams.Hooks())
		if err != nil {
			return err
		}
		defer app.Close()

		api := pfhttp.New(app.Runner, app.Editor,
			pfhttp.WithStreams(streams),
			pfhttp.WithMetrics(app.Gatherer),
			pfhttp.WithLogger(logger),
		)
		srv := &http.Server{
			Addr:              addr,
			Handler:           api.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			logger.Info("HTTP server listening", "address", addr, "store", cfg.Store.Driver, "queue", cfg.Queue.Driver)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				_ = srv.Close()
				return fmt.Errorf("graceful shutdown did not complete in %v: %w", shutdownTimeout, err)
			}
			logger.Info("HTTP server stopped")
			return nil
		})
		if !noWorkers {
			g.Go(func() error {
				return runWorkers(ctx, app.Queue)
			})
		}
		return g.Wait()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", ":8080", "Address to listen on")
	serveCmd.Flags().Bool("no-workers", false, "Do not consume the task queue in this process")
}
