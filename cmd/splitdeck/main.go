// Package main provides the CLI entry point for the splitdeck experiment
// admission and traffic allocation engine.
//
// # Basic Usage
//
// Run the engine:
//
//	splitdeck serve --config splitdeck.yaml
//
// Validate a configuration file:
//
//	splitdeck validate --config splitdeck.yaml
//
// # Environment Variables
//
//   - SPLITDECK_CONFIG: Path to configuration file (default: splitdeck.yaml)
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/haasonsaas/splitdeck/internal/config"
	"github.com/haasonsaas/splitdeck/internal/engine"
	"github.com/haasonsaas/splitdeck/internal/journal"
	"github.com/haasonsaas/splitdeck/internal/observability"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "splitdeck",
		Short: "splitdeck - experiment admission and traffic allocation engine",
		Long: `splitdeck decides whether an A/B test may run, which slot it occupies,
what share of visitor traffic it receives, and whether it would statistically
contaminate other running tests. It continuously reports the health of the
whole test portfolio.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.AddCommand(
		buildServeCmd(),
		buildValidateCmd(),
		buildVersionCmd(),
	)
	return rootCmd
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "splitdeck %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func configPathFlag(cmd *cobra.Command) *string {
	defaultPath := os.Getenv("SPLITDECK_CONFIG")
	if defaultPath == "" {
		defaultPath = "splitdeck.yaml"
	}
	return cmd.Flags().String("config", defaultPath, "Path to configuration file")
}

func buildValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
	}
	configPath := configPathFlag(cmd)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "configuration valid: %d slots, %s isolation\n",
			cfg.Engine.MaxSimultaneousTests, cfg.Engine.CrossTestIsolationLevel)
		return nil
	}
	return cmd
}

func buildServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the admission engine",
	}
	configPath := configPathFlag(cmd)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		return serve(cmd.Context(), *configPath, cfg)
	}
	return cmd
}

func serve(parent context.Context, configPath string, cfg *config.Config) error {
	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics(nil)
	eng, err := engine.New(*cfg,
		engine.WithLogger(logger),
		engine.WithMetrics(metrics),
	)
	if err != nil {
		return err
	}

	// Event log stream for operators.
	events, cancelEvents := eng.Subscribe()
	defer cancelEvents()
	go func() {
		for evt := range events {
			logger.Debug("event", "type", evt.Type, "id", evt.ID)
		}
	}()

	if cfg.Journal.Enabled {
		jnl, err := journal.Open(cfg.Journal.Path, logger)
		if err != nil {
			return err
		}
		defer jnl.Close()
		journalEvents, cancelJournal := eng.Subscribe()
		defer cancelJournal()
		// Background context: the follow loop drains until the hub closes
		// during engine shutdown, so the terminal event is journaled.
		jnl.Follow(context.Background(), journalEvents)
		defer jnl.Wait()
	}

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			logger.Info("metrics endpoint listening", "addr", cfg.Metrics.Addr)
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	watcher := config.NewWatcher(configPath, cfg.Engine, func(update config.EngineUpdate) {
		if err := eng.UpdateConfiguration(update); err != nil {
			logger.Warn("configuration update rejected", "error", err)
		}
	}, logger)
	if err := watcher.Start(ctx); err != nil {
		logger.Warn("config watching disabled", "error", err)
	}
	defer watcher.Close()

	eng.Start(ctx)
	logger.Info("splitdeck running", "config", configPath)

	<-ctx.Done()
	logger.Info("shutting down")

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return eng.Close()
}
