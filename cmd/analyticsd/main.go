package main

// Package main is the entry point for the opspulse analytics daemon.
//
// Responsibilities:
//   - Load and validate configuration from YAML and environment variables
//   - Build the structured logger with optional file rotation
//   - Open the metric store (SQLite or in-memory per configuration)
//   - Start the analytics pipeline (scheduled detection + KPI calculation)
//   - Serve /metrics (Prometheus) and /healthz on the configured port
//   - Implement graceful shutdown on SIGINT/SIGTERM

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/opspulse/opspulse-analytics/internal/analytics"
	"github.com/opspulse/opspulse-analytics/internal/config"
	"github.com/opspulse/opspulse-analytics/internal/logging"
	"github.com/opspulse/opspulse-analytics/internal/store"
)

func main() {
	configPath := flag.String("config", "/etc/opspulse/analytics.yaml", "path to configuration file")
	flag.Parse()

	ctx := context.Background()

	// Load configuration from file, environment, and defaults
	mgr, err := config.NewConfigManager(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create configuration manager: %v\n", err)
		os.Exit(1)
	}
	if err := mgr.Load(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := mgr.Validate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	cfg := mgr.Get(ctx)

	log, err := logging.NewLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Open the store per configuration
	var st store.Store
	switch cfg.Database.Type {
	case "memory":
		st = store.NewMemoryStore()
	default:
		st, err = store.NewSQLiteStore(cfg.Database.SQLitePath)
		if err != nil {
			log.Fatal("failed to open sqlite store",
				zap.String("path", cfg.Database.SQLitePath),
				zap.Error(err))
		}
	}
	defer st.Close()

	// Build and start the analytics pipeline
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	pipeline := analytics.NewPipeline(st, log.Named("pipeline"),
		analytics.WithInterval(time.Duration(cfg.Analytics.IntervalMinutes)*time.Minute),
		analytics.WithMetricNames(cfg.Analytics.MetricTypes),
	)
	pipeline.Start(runCtx)

	// Health and Prometheus metrics endpoints
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := st.Ping(r.Context()); err != nil {
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: mux,
	}
	go func() {
		log.Info("serving metrics and health endpoints", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", zap.Error(err))
		}
	}()

	log.Info("analytics daemon started",
		zap.String("database", cfg.Database.Type),
		zap.Int("interval_minutes", cfg.Analytics.IntervalMinutes),
		zap.Strings("metric_types", cfg.Analytics.MetricTypes))

	// Wait for shutdown signal (Ctrl+C or SIGTERM)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Info("received shutdown signal")

	// Stop accepting requests, then stop the pipeline
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", zap.Error(err))
	}

	cancel()
	pipeline.Stop()

	log.Info("shutdown complete")
}
