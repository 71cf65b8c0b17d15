package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/promptflow/internal/cli"
	"github.com/aretw0/promptflow/internal/config"
	"github.com/aretw0/promptflow/internal/logging"
	"github.com/aretw0/promptflow/pkg/domain"
	"github.com/spf13/cobra"
)

var (
	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "promptflow",
	Short: "promptflow runs graphs of prompt and tool nodes",
	Long: `promptflow executes node graphs (prompts, LLM calls, scripts, IO) locally
or as durable jobs behind an HTTP API, an MCP server and a worker pool.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			loaded.Log.Level, _ = cmd.Flags().GetString("log-level")
		}
		if cmd.Flags().Changed("log-format") {
			loaded.Log.Format, _ = cmd.Flags().GetString("log-format")
		}
		if cmd.Flags().Changed("store") {
			loaded.Store.Driver, _ = cmd.Flags().GetString("store")
		}
		if cmd.Flags().Changed("store-path") {
			loaded.Store.Path, _ = cmd.Flags().GetString("store-path")
		}
		if err := loaded.Validate(); err != nil {
			return err
		}
		level, err := logging.ParseLevel(loaded.Log.Level)
		if err != nil {
			return err
		}
		cfg = loaded
		logger = logging.NewWithFormat(os.Stderr, level, loaded.Log.Format)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to a promptflow YAML config file")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format: text or json")
	rootCmd.PersistentFlags().String("store", "memory", "Store driver: memory, file, sqlite, postgres or redis")
	rootCmd.PersistentFlags().String("store-path", "", "Graph directory (file) or database file (sqlite)")
}

// openApp wires the components selected by the loaded config.
func openApp(ctx context.Context, hooks ...domain.LifecycleHooks) (*cli.App, error) {
	return cli.NewApp(ctx, cfg, logger, hooks...)
}
