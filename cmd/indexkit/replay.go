package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/devblac/indexkit/internal/health"
	"github.com/devblac/indexkit/internal/indexer"
	"github.com/devblac/indexkit/internal/metrics"
	"github.com/devblac/indexkit/internal/storage"
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Dispatch recorded occurrences through routes and handlers",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, cfg, log, err := setup(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()
		if rt.Input == "" {
			return fmt.Errorf("replay: --in is required")
		}
		ctx := cmd.Context()

		var mtr *metrics.Metrics
		if rt.MetricsAddr != "" {
			mtr = metrics.New(prometheus.NewRegistry())
		}

		ix, err := indexer.New(ctx, cfg, indexer.Options{DryRun: rt.DryRun, Logger: log, Metrics: mtr})
		if err != nil {
			return err
		}
		defer ix.Close()

		var servers []*http.Server
		if rt.HealthAddr != "" {
			servers = append(servers, health.Serve(rt.HealthAddr, health.NewMux(ix.Checker(), nil), log))
			log.Info("health check enabled", zap.String("addr", rt.HealthAddr))
		}
		if rt.MetricsAddr != "" {
			servers = append(servers, health.Serve(rt.MetricsAddr, health.NewMux(health.Checker{}, mtr.Handler()), log))
			log.Info("metrics enabled", zap.String("addr", rt.MetricsAddr))
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			for _, srv := range servers {
				_ = health.Shutdown(shutdownCtx, srv)
			}
		}()

		in, closeIn, err := openInput(rt.Input)
		if err != nil {
			return err
		}
		defer closeIn()

		var failures *storage.JSONLWriter
		if path, _ := cmd.Flags().GetString("errors"); path != "" {
			failures = storage.NewJSONLWriter(path)
		}

		if err := ix.Setup(ctx); err != nil {
			return fmt.Errorf("setup: %w", err)
		}
		stats, err := ix.Replay(ctx, in, failures)
		log.Info("replay complete",
			zap.Int("dispatched", stats.Dispatched),
			zap.Int("unhandled", stats.Unhandled),
			zap.Int("failed", stats.Failed),
			zap.Bool("dry_run", rt.DryRun),
		)
		if err != nil {
			return fmt.Errorf("replay: %w", err)
		}
		return json.NewEncoder(cmd.OutOrStdout()).Encode(stats)
	},
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open input: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

func init() {
	replayCmd.Flags().String("in", "", "JSONL file of {name, occurrence} envelopes, - for stdin (env INDEXKIT_IN)")
	replayCmd.Flags().String("errors", "", "Append envelopes that fail to this JSONL file instead of stopping")
	replayCmd.Flags().Bool("dry-run", false, "Evaluate routes without recording or sending")
	replayCmd.Flags().String("health-addr", "", "Health check HTTP address, e.g. :8080")
	replayCmd.Flags().String("metrics-addr", "", "Metrics HTTP address, e.g. :9090")
}
