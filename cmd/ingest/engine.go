package main

import (
	"context"
	"fmt"

	"github.com/albapepper/scoracle-lake/internal/config"
	"github.com/albapepper/scoracle-lake/internal/ledger"
	"github.com/albapepper/scoracle-lake/internal/metrics"
	"github.com/albapepper/scoracle-lake/internal/pipeline"
	"github.com/albapepper/scoracle-lake/internal/planner"
	"github.com/albapepper/scoracle-lake/internal/provider"
	"github.com/albapepper/scoracle-lake/internal/provider/bdl"
	"github.com/albapepper/scoracle-lake/internal/storage"
	"github.com/albapepper/scoracle-lake/internal/transform"
)

// engine is the wired ingestion stack shared by run, backfill and schedule.
type engine struct {
	cfg          *config.Config
	ledger       ledger.Store
	store        storage.ObjectStore
	metrics      *metrics.Metrics
	orchestrator *pipeline.Orchestrator
}

func newEngine(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*engine, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("NBA_API_KEY is required")
	}

	led, err := ledger.Open(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	store, err := storage.Open(ctx, cfg)
	if err != nil {
		_ = led.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	client := bdl.NewClient(bdl.ClientConfig{
		BaseURL:           cfg.APIBaseURL,
		APIKey:            cfg.APIKey,
		RequestsPerMinute: cfg.RequestsPerMinute,
		Timeout:           cfg.FetchTimeout,
		Retry: provider.RetryPolicy{
			MaxAttempts: cfg.FetchMaxAttempts,
			BaseDelay:   cfg.FetchBaseDelay,
			MaxDelay:    cfg.FetchMaxDelay,
			Jitter:      cfg.FetchJitter,
		},
		OnAttempt: m.RecordFetchAttempt,
	}, logger.With("component", "bdl"))

	plan := planner.New(led, planner.Config{
		Entities:    cfg.Entities,
		Timezone:    cfg.LeagueTimezone,
		StableAfter: cfg.StableAfter,
	}, logger.With("component", "planner"))

	orch := pipeline.New(pipeline.Deps{
		Planner:     plan,
		Source:      bdl.NewSource(client, 0, logger.With("component", "source")),
		Transformer: transform.New(logger.With("component", "transform")),
		Writer:      storage.NewPartitionedWriter(store, cfg.WriteTimeout, logger.With("component", "writer")),
		Ledger:      led,
		Metrics:     m,
	}, pipeline.Options{
		Workers:           cfg.Workers,
		FailureThreshold:  cfg.FailureThreshold,
		RefreshDimensions: cfg.RefreshDimensions,
	}, logger.With("component", "pipeline"))

	return &engine{cfg: cfg, ledger: led, store: store, metrics: m, orchestrator: orch}, nil
}

func (e *engine) Close() {
	if err := e.store.Close(); err != nil {
		logger.Warn("Failed to close object store", "error", err)
	}
	if err := e.ledger.Close(); err != nil {
		logger.Warn("Failed to close ledger", "error", err)
	}
}
