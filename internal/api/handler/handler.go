// Package handler provides HTTP handlers for the status API.
// Handlers read the ledger directly; responses are cached briefly and
// purged after every run.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/albapepper/scoracle-lake/internal/api/respond"
	"github.com/albapepper/scoracle-lake/internal/cache"
	"github.com/albapepper/scoracle-lake/internal/ledger"
	"github.com/albapepper/scoracle-lake/internal/model"
)

// Store is the part of the ledger the status API reads.
type Store interface {
	List(ctx context.Context, f ledger.Filter) ([]model.LedgerEntry, error)
	LatestRun(ctx context.Context) (*ledger.RunRecord, error)
	Ping(ctx context.Context) error
}

// Daemon reports the scheduler state. It is nil outside the daemon.
type Daemon interface {
	Running() bool
	NextRun() time.Time
}

// Handler holds shared dependencies for all endpoint handlers.
type Handler struct {
	store  Store
	cache  *cache.Cache
	daemon Daemon
}

// New creates a Handler with shared dependencies.
func New(store Store, c *cache.Cache, daemon Daemon) *Handler {
	if c == nil {
		c = cache.New(false)
	}
	return &Handler{store: store, cache: c, daemon: daemon}
}

// Root serves API info at /.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	info := map[string]any{
		"name":   "Scoracle Lake",
		"status": "running",
		"endpoints": []string{
			"/health",
			"/health/ledger",
			"/health/cache",
			"/api/v1/ledger",
			"/api/v1/runs/latest",
			"/metrics",
			"/docs/",
		},
	}
	if h.daemon != nil {
		daemon := map[string]any{"run_in_progress": h.daemon.Running()}
		if next := h.daemon.NextRun(); !next.IsZero() {
			daemon["next_run"] = next.UTC().Format(time.RFC3339)
		}
		info["scheduler"] = daemon
	}
	respond.WriteJSONObject(w, http.StatusOK, info)
}

// HealthCheck returns basic health status.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckLedger verifies the ledger store is reachable.
func (h *Handler) HealthCheckLedger(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		respond.WriteJSONObject(w, http.StatusServiceUnavailable, map[string]any{
			"status":    "unhealthy",
			"ledger":    "unreachable",
			"error":     "Ledger connectivity check failed",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"ledger":    "connected",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckCache returns cache statistics.
func (h *Handler) HealthCheckCache(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"cache":     h.cache.Stats(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
