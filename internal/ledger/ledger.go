// Package ledger is the durable record of which (entity, date) pairs were
// ingested, when, and by which run. It also keeps the player affiliations
// used by trade detection and a history of run summaries.
//
// Two backends share one schema: SQLite for a local single-node setup and
// Postgres for a shared deployment.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/albapepper/scoracle-lake/internal/model"
)

// Store is the ledger contract used by the planner and the orchestrator.
type Store interface {
	// Get returns the entry of (entity, date), or nil when none exists.
	Get(ctx context.Context, entity model.EntityType, date time.Time) (*model.LedgerEntry, error)

	// Mark upserts the entry of (entity, date). The last write wins.
	// attempt_count grows by one per distinct run id, so replaying a mark
	// of the same run leaves it unchanged.
	Mark(ctx context.Context, m Mark) error

	// List returns entries matching f ordered by date then entity.
	List(ctx context.Context, f Filter) ([]model.LedgerEntry, error)

	// Affiliations returns the stored affiliation of each known player.
	Affiliations(ctx context.Context, playerIDs []int64) (map[int64]model.Affiliation, error)

	// PutAffiliations records affiliations. An affiliation older than the
	// stored one for the same player is ignored.
	PutAffiliations(ctx context.Context, affs []model.Affiliation) error

	// RecordRun stores a run summary; LatestRun returns the newest one.
	RecordRun(ctx context.Context, r RunRecord) error
	LatestRun(ctx context.Context) (*RunRecord, error)

	Ping(ctx context.Context) error
	Close() error
}

// Mark is one status transition written to the ledger.
type Mark struct {
	Entity model.EntityType
	Date   time.Time
	Status model.Status
	RunID  string
	Err    string
	At     time.Time
}

func (m Mark) validate() error {
	if !m.Entity.Valid() {
		return fmt.Errorf("unknown entity type %q", m.Entity)
	}
	if !m.Status.Valid() {
		return fmt.Errorf("unknown status %q", m.Status)
	}
	if m.RunID == "" {
		return errors.New("mark without run id")
	}
	return nil
}

// Filter selects ledger entries. Zero fields match everything.
type Filter struct {
	From, To time.Time
	Entity   model.EntityType
	Status   model.Status
	Limit    int
}

// RunRecord summarizes one finished run.
type RunRecord struct {
	RunID       string    `json:"run_id"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Planned     int       `json:"tasks_planned"`
	Completed   int       `json:"tasks_completed"`
	Failed      int       `json:"tasks_failed"`
	Skipped     int       `json:"tasks_skipped"`
	Corrections int       `json:"corrections"`
	RowsWritten int64     `json:"rows_written"`
	RowsDropped int64     `json:"rows_dropped"`
	Summary     string    `json:"summary"`
}

// Error wraps any failure to read or write the ledger.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return "ledger " + e.Op + ": " + e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMilli(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
