package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/aretw0/promptflow/pkg/adapters/mcp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Exposes stored graphs and jobs as MCP tools so agents can run graphs,
answer their input requests and read results.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		transport, _ := cmd.Flags().GetString("transport")
		addr, _ := cmd.Flags().GetString("addr")
		noWorkers, _ := cmd.Flags().GetBool("no-workers")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		app, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		srv := mcp.NewServer(app.Runner, app.Editor, mcp.WithLogger(logger))

		g, ctx := errgroup.WithContext(ctx)
		if !noWorkers {
			g.Go(func() error {
				return runWorkers(ctx, app.Queue)
			})
		}

		switch transport {
		case "stdio":
			// JSON-RPC owns stdout.
			log.SetOutput(os.Stderr)
			g.Go(func() error {
				defer stop()
				return srv.ServeStdio()
			})
		case "sse":
			g.Go(func() error {
				return srv.ServeSSE(ctx, addr)
			})
		default:
			stop()
			_ = g.Wait()
			return fmt.Errorf("unknown transport %q, supported: stdio, sse", transport)
		}

		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		logger.Info("MCP server stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().String("transport", "stdio", "Transport protocol to use: 'stdio' or 'sse'")
	mcpCmd.Flags().String("addr", ":8081", "Address to listen on (only for SSE)")
	mcpCmd.Flags().Bool("no-workers", false, "Do not consume the task queue in this process")
}
