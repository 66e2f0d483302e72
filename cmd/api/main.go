// Command api is the standalone Scoracle Lake status API. It serves the
// ledger read-only for deployments where ingestion runs from an external
// scheduler instead of `scoracle-ingest schedule`.
//
// Usage:
//
//	scoracle-api
//	STATUS_ADDR=:9090 scoracle-api
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

	"github.com/joho/godotenv"

	"github.com/albapepper/scoracle-lake/internal/api"
	"github.com/albapepper/scoracle-lake/internal/cache"
	"github.com/albapepper/scoracle-lake/internal/config"
	"github.com/albapepper/scoracle-lake/internal/ledger"
	"github.com/albapepper/scoracle-lake/internal/metrics"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// Load .env if present
	_ = godotenv.Load(".env")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Open ledger
	store, err := ledger.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to open ledger", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	logger.Info("Ledger opened", "backend", cfg.LedgerBackend)

	// Initialize cache
	appCache := cache.New(cfg.CacheEnabled)
	defer appCache.Close()
	logger.Info("Cache initialized", "enabled", cfg.CacheEnabled)

	// Create router
	router := api.NewRouter(api.Deps{
		Store:   store,
		Cache:   appCache,
		Metrics: metrics.New(cfg.MetricsEnabled),
	}, cfg)

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.StatusAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	go func() {
		logger.Info("Starting Scoracle Lake status API", "addr", cfg.StatusAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", "error", err)
			cancel()
		}
	}()

	// Wait for interrupt
	<-ctx.Done()
	logger.Info("Shutting down...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", "error", err)
	}
	logger.Info("Server stopped")
}
