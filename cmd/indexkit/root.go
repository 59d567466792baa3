package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/devblac/indexkit/internal/config"
	"github.com/devblac/indexkit/internal/indexer"
	"github.com/devblac/indexkit/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "indexkit",
	Short: "Multi-chain EVM indexing: event catalog, handler contexts and replay",
}

func init() {
	cobra.EnableCommandSorting = false

	rootCmd.PersistentFlags().StringP("config", "c", "config.yaml", "Path to config file (env INDEXKIT_CONFIG)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error (env INDEXKIT_LOG_LEVEL)")

	rootCmd.AddCommand(
		versionCmd,
		validateCmd,
		catalogCmd,
		contextCmd,
		replayCmd,
		captureCmd,
	)
}

// Execute runs the root command tree.
func Execute(ctx context.Context) error {
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	return nil
}

// setup merges flags with INDEXKIT_* env, builds the logger and loads the config.
func setup(cmd *cobra.Command) (config.Runtime, *config.Config, *zap.Logger, error) {
	rt, err := config.LoadRuntime(cmd.Flags())
	if err != nil {
		return config.Runtime{}, nil, nil, err
	}
	log, err := logging.New(rt.LogLevel, cmd.ErrOrStderr())
	if err != nil {
		return config.Runtime{}, nil, nil, err
	}
	cfg, err := config.Load(rt.ConfigPath)
	if err != nil {
		return config.Runtime{}, nil, nil, fmt.Errorf("load config: %w", err)
	}
	return rt, cfg, log, nil
}

func compile(cmd *cobra.Command) (*indexer.Project, *zap.Logger, error) {
	_, cfg, log, err := setup(cmd)
	if err != nil {
		return nil, nil, err
	}
	project, err := indexer.Compile(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return project, log, nil
}
