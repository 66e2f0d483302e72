package pipeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/albapepper/scoracle-lake/internal/ledger"
	"github.com/albapepper/scoracle-lake/internal/model"
)

// Stage names where a task can fail.
type Stage string

const (
	StageFetch     Stage = "fetch"
	StageTransform Stage = "transform"
	StageWrite     Stage = "write"
	StageLedger    Stage = "ledger"
)

// TaskFailure is the structured record of one failed task.
type TaskFailure struct {
	Task   string           `json:"task"`
	Entity model.EntityType `json:"entity"`
	Date   string           `json:"date"`
	Reason model.TaskReason `json:"reason"`
	Stage  Stage            `json:"stage"`
	Kind   string           `json:"kind"` // transient, permanent, validation, write, ledger, canceled
	Error  string           `json:"error"`
}

// maxWarnings caps the warnings kept in a report.
const maxWarnings = 200

// RunReport is the outcome of one run. Every failed task appears in
// Failures; nothing is reported only through logs.
type RunReport struct {
	RunID     string          `json:"run_id"`
	Range     model.DateRange `json:"-"`
	From      string          `json:"from"`
	To        string          `json:"to"`
	StartedAt time.Time       `json:"started_at"`
	Duration  time.Duration   `json:"duration_ns"`

	TasksPlanned   int   `json:"tasks_planned"`
	TasksCompleted int   `json:"tasks_completed"`
	TasksFailed    int   `json:"tasks_failed"`
	TasksSkipped   int   `json:"tasks_skipped"` // planned but never started
	Corrections    int   `json:"corrections"`
	RowsWritten    int64 `json:"rows_written"`
	RowsDropped    int64 `json:"rows_dropped"`

	Failures        []TaskFailure `json:"failures,omitempty"`
	Warnings        []string      `json:"warnings,omitempty"`
	WarningsDropped int           `json:"warnings_dropped,omitempty"`

	// Fatal is set when the run could not plan at all.
	Fatal    error `json:"-"`
	Canceled bool  `json:"canceled"`

	mu sync.Mutex
}

func newReport(runID string, r model.DateRange, started time.Time) *RunReport {
	return &RunReport{
		RunID:     runID,
		Range:     r,
		From:      model.FormatDate(r.From),
		To:        model.FormatDate(r.To),
		StartedAt: started,
	}
}

func (r *RunReport) addCompleted(rows, dropped int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.TasksCompleted++
	r.RowsWritten += int64(rows)
	r.RowsDropped += int64(dropped)
}

func (r *RunReport) addFailure(f TaskFailure, dropped int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.TasksFailed++
	r.RowsDropped += int64(dropped)
	r.Failures = append(r.Failures, f)
}

func (r *RunReport) addSkipped() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.TasksSkipped++
}

// AddWarningf records a formatted warning.
func (r *RunReport) AddWarningf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Warnings) >= maxWarnings {
		r.WarningsDropped++
		return
	}
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// FailureRate is failed tasks over planned tasks.
func (r *RunReport) FailureRate() float64 {
	if r.TasksPlanned == 0 {
		return 0
	}
	return float64(r.TasksFailed) / float64(r.TasksPlanned)
}

// Err returns nil when the run succeeded, possibly with warnings. A run
// fails when it could not plan, was interrupted, or its failure rate
// exceeds threshold.
func (r *RunReport) Err(threshold float64) error {
	switch {
	case r.Fatal != nil:
		return fmt.Errorf("run %s: %w", r.RunID, r.Fatal)
	case r.Canceled:
		return fmt.Errorf("run %s interrupted: %d of %d tasks not started", r.RunID, r.TasksSkipped, r.TasksPlanned)
	case r.FailureRate() > threshold:
		return fmt.Errorf("run %s: %d of %d tasks failed (%.0f%% > %.0f%%)",
			r.RunID, r.TasksFailed, r.TasksPlanned, r.FailureRate()*100, threshold*100)
	}
	return nil
}

// Result labels the run for metrics: ok, degraded or failed.
func (r *RunReport) Result(threshold float64) string {
	switch {
	case r.Err(threshold) != nil:
		return "failed"
	case r.TasksFailed > 0:
		return "degraded"
	default:
		return "ok"
	}
}

// Summary returns a human-readable summary of the run.
func (r *RunReport) Summary() string {
	return fmt.Sprintf(
		"range=%s planned=%d completed=%d failed=%d skipped=%d corrections=%d rows=%d dropped=%d dur=%s",
		r.Range, r.TasksPlanned, r.TasksCompleted, r.TasksFailed, r.TasksSkipped,
		r.Corrections, r.RowsWritten, r.RowsDropped, r.Duration.Round(time.Millisecond))
}

// Record converts the report to a ledger run record.
func (r *RunReport) Record() ledger.RunRecord {
	return ledger.RunRecord{
		RunID:       r.RunID,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.StartedAt.Add(r.Duration),
		From:        r.From,
		To:          r.To,
		Planned:     r.TasksPlanned,
		Completed:   r.TasksCompleted,
		Failed:      r.TasksFailed,
		Skipped:     r.TasksSkipped,
		Corrections: r.Corrections,
		RowsWritten: r.RowsWritten,
		RowsDropped: r.RowsDropped,
		Summary:     r.Summary(),
	}
}
