package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/albapepper/scoracle-lake/internal/api/respond"
	"github.com/albapepper/scoracle-lake/internal/cache"
	"github.com/albapepper/scoracle-lake/internal/ledger"
	"github.com/albapepper/scoracle-lake/internal/model"
)

const (
	defaultLedgerLimit = 1000
	maxLedgerLimit     = 10000
)

type ledgerResponse struct {
	Count   int                 `json:"count"`
	Entries []model.LedgerEntry `json:"entries"`
}

// ListLedger returns ledger entries filtered by from, to, entity and status.
func (h *Handler) ListLedger(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := ledger.Filter{Limit: defaultLedgerLimit}

	if s := q.Get("from"); s != "" {
		d, err := model.ParseDate(s)
		if err != nil {
			respond.WriteError(w, http.StatusBadRequest, "INVALID_DATE", "from must be YYYY-MM-DD")
			return
		}
		f.From = d
	}
	if s := q.Get("to"); s != "" {
		d, err := model.ParseDate(s)
		if err != nil {
			respond.WriteError(w, http.StatusBadRequest, "INVALID_DATE", "to must be YYYY-MM-DD")
			return
		}
		f.To = d
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.From.After(f.To) {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_RANGE", "from must not be after to")
		return
	}
	if s := q.Get("entity"); s != "" {
		e, err := model.ParseEntityType(s)
		if err != nil {
			respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_ENTITY", "Unknown entity type", err.Error())
			return
		}
		f.Entity = e
	}
	if s := q.Get("status"); s != "" {
		st := model.Status(s)
		if !st.Valid() {
			respond.WriteError(w, http.StatusBadRequest, "INVALID_STATUS", "status must be pending, complete or failed")
			return
		}
		f.Status = st
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxLedgerLimit {
			respond.WriteError(w, http.StatusBadRequest, "INVALID_LIMIT",
				fmt.Sprintf("limit must be between 1 and %d", maxLedgerLimit))
			return
		}
		f.Limit = n
	}

	cacheKey := "ledger:" + q.Encode()
	if data, etag, ok := h.cache.Get(cacheKey); ok {
		respond.WriteCached(w, r, data, etag, cache.TTLLedger, true)
		return
	}

	entries, err := h.store.List(r.Context(), f)
	if err != nil {
		respond.WriteErrorDetail(w, http.StatusInternalServerError, "LEDGER_ERROR", "Failed to read ledger", err.Error())
		return
	}
	if entries == nil {
		entries = []model.LedgerEntry{}
	}

	data, err := respond.Marshal(ledgerResponse{Count: len(entries), Entries: entries})
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "ENCODE_ERROR", "Failed to encode response")
		return
	}
	etag := h.cache.Set(cacheKey, data, cache.TTLLedger)
	respond.WriteCached(w, r, data, etag, cache.TTLLedger, false)
}

// LatestRun returns the newest recorded run summary.
func (h *Handler) LatestRun(w http.ResponseWriter, r *http.Request) {
	const cacheKey = "run:latest"
	if data, etag, ok := h.cache.Get(cacheKey); ok {
		respond.WriteCached(w, r, data, etag, cache.TTLLatestRun, true)
		return
	}

	run, err := h.store.LatestRun(r.Context())
	if err != nil {
		respond.WriteErrorDetail(w, http.StatusInternalServerError, "LEDGER_ERROR", "Failed to read runs", err.Error())
		return
	}
	if run == nil {
		respond.WriteError(w, http.StatusNotFound, "NO_RUNS", "No run has been recorded yet")
		return
	}

	data, err := respond.Marshal(run)
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "ENCODE_ERROR", "Failed to encode response")
		return
	}
	etag := h.cache.Set(cacheKey, data, cache.TTLLatestRun)
	respond.WriteCached(w, r, data, etag, cache.TTLLatestRun, false)
}
