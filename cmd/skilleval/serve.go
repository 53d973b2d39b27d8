package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/skilleval/engine/internal/server"
)

func newServeCmd() *cobra.Command {
	var (
		maxConcurrent    int
		batchConcurrency int
		metricsAddr      string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve JSON-RPC evaluation requests over stdin/stdout",
		Long: `serve reads newline-delimited JSON-RPC 2.0 requests from stdin and writes
responses to stdout. Logs go to stderr. When a metrics address is configured,
Prometheus metrics are exposed on /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if metricsAddr != "" {
				cfg.MetricsAddr = metricsAddr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			eng, err := buildEngine(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer eng.Close()

			if cfg.MetricsAddr != "" {
				srv := startMetrics(cfg.MetricsAddr, logger)
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
			}

			s := server.NewWithConcurrency(cmd.InOrStdin(), cmd.OutOrStdout(), logger, maxConcurrent)
			deps := eng.deps()
			deps.BatchConcurrency = batchConcurrency
			server.RegisterBuiltinHandlers(s, deps)

			logger.Info("engine serving", "version", version, "capabilities", deps.Capabilities())
			err = s.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().IntVar(&maxConcurrent, "max-concurrent", 1, "requests handled in parallel")
	cmd.Flags().IntVar(&batchConcurrency, "batch-concurrency", 4, "evaluations run in parallel within one evaluate_batch")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "host:port for the Prometheus endpoint (overrides config)")
	return cmd
}

func startMetrics(addr string, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "addr", addr, "err", err)
		}
	}()
	logger.Info("metrics listening", "addr", addr)
	return srv
}
