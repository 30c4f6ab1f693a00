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

	"github.com/spf13/cobra"

	"github.com/lexiqai/rtp-translator/internal/config"
	"github.com/lexiqai/rtp-translator/internal/monitor"
	"github.com/lexiqai/rtp-translator/internal/observability"
	"github.com/lexiqai/rtp-translator/internal/pipeline"
	"github.com/lexiqai/rtp-translator/internal/recording"
	"github.com/lexiqai/rtp-translator/internal/relay"
)

const (
	drainTimeout    = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the relay (default)",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	// Configuration errors are fatal before anything is bound
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("version", version).
		Str("listen_ip", cfg.ListenIP).
		Int("base_port", cfg.BasePort).
		Int("max_concurrent_calls", cfg.MaxConcurrentCalls).
		Str("source_language", cfg.SourceLanguage).
		Str("target_language", cfg.TargetLanguage).
		Int("window_ms", cfg.WindowDurationMs).
		Str("recognizer", cfg.RecognizerBackend).
		Str("translator", cfg.TranslatorBackend).
		Str("synthesizer", cfg.SynthesizerBackend).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("RTP translator starting")

	pipe, err := pipeline.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	defer func() {
		if err := pipe.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close pipeline")
		}
	}()

	recorder, err := recording.New(cfg.RecordingDir, logger)
	if err != nil {
		return err
	}

	stats := monitor.NewStats()
	r := relay.New(relay.OptionsFromConfig(cfg), pipe, stats, recorder, logger)
	if err := r.Listen(); err != nil {
		return err
	}

	mon := monitor.New(stats, r, time.Duration(cfg.StatsInterval)*time.Second, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", observability.HealthCheckHandler(version))
	mux.HandleFunc("/ready", observability.ReadinessHandler(version, pipe.HealthChecks()))
	mux.HandleFunc("/stats", mon.StatsHandler())
	mux.Handle("/stats/stream", mon.Hub())
	mux.HandleFunc("/sessions/languages", r.LanguagesHandler())
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", observability.MetricsHandler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("port", cfg.HTTPPort).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go mon.Run(ctx)

	serveErr := r.Serve(ctx)
	logger.Info().Msg("Shutting down...")

	r.Shutdown(drainTimeout)
	mon.Final()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server forced to shutdown")
	}

	logger.Info().Msg("RTP translator exited gracefully")
	return serveErr
}
