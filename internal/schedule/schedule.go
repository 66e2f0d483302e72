// Package schedule drives daily ingestion runs from a cron expression.
// The daemon is a long-running process, so runs are triggered in-process
// instead of by an external cron.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/albapepper/scoracle-lake/internal/cache"
	"github.com/albapepper/scoracle-lake/internal/model"
	"github.com/albapepper/scoracle-lake/internal/pipeline"
)

// ErrRunInProgress is returned by RunOnce while another run is active.
var ErrRunInProgress = errors.New("a run is already in progress")

// Runner executes one ingestion run over a date range.
type Runner interface {
	Run(ctx context.Context, r model.DateRange) *pipeline.RunReport
	FailureThreshold() float64
}

// Config controls the daemon.
type Config struct {
	Spec       string         // standard 5-field cron expression
	Location   *time.Location // league timezone; dates and the cron spec use it
	RunTimeout time.Duration  // zero means no limit
	RunOnStart bool
}

// Scheduler triggers runs on a cron schedule. Runs never overlap: a tick
// that fires while a run is active is skipped.
type Scheduler struct {
	cfg    Config
	runner Runner
	cache  *cache.Cache
	logger *slog.Logger

	cron    *cron.Cron
	entry   cron.EntryID
	running atomic.Bool
	wg      sync.WaitGroup
	base    context.Context
	now     func() time.Time

	mu   sync.Mutex
	last *pipeline.RunReport
}

// New validates the cron spec and returns a stopped scheduler.
func New(runner Runner, c *cache.Cache, cfg Config, logger *slog.Logger) (*Scheduler, error) {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	s := &Scheduler{
		cfg:    cfg,
		runner: runner,
		cache:  c,
		logger: logger.With("component", "schedule"),
		cron:   cron.New(cron.WithLocation(cfg.Location)),
		base:   context.Background(),
		now:    time.Now,
	}
	id, err := s.cron.AddFunc(cfg.Spec, s.tick)
	if err != nil {
		return nil, fmt.Errorf("schedule %q: %w", cfg.Spec, err)
	}
	s.entry = id
	return s, nil
}

// Start runs the scheduler until ctx is cancelled, then waits for an
// active run to wind down. Runs inherit ctx. Intended to be called with `go`.
func (s *Scheduler) Start(ctx context.Context) {
	s.base = ctx
	s.cron.Start()
	s.logger.Info("Scheduler started",
		"spec", s.cfg.Spec,
		"timezone", s.cfg.Location.String(),
		"next_run", s.NextRun())

	if s.cfg.RunOnStart {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.tick()
		}()
	}

	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}

// Running reports whether a run is in progress.
func (s *Scheduler) Running() bool { return s.running.Load() }

// NextRun returns the next scheduled trigger, or the zero time before Start.
func (s *Scheduler) NextRun() time.Time {
	return s.cron.Entry(s.entry).Next
}

// LastReport returns the report of the most recent run, if any.
func (s *Scheduler) LastReport() *pipeline.RunReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// RunOnce runs yesterday through today in the league timezone. It returns
// ErrRunInProgress instead of starting a second concurrent run.
func (s *Scheduler) RunOnce(ctx context.Context) (*pipeline.RunReport, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer s.running.Store(false)

	if s.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RunTimeout)
		defer cancel()
	}

	r := DailyRange(s.now(), s.cfg.Location)
	report := s.runner.Run(ctx, r)

	// Status responses describe the ledger; drop them once it has moved.
	if s.cache != nil {
		if n := s.cache.Purge(""); n > 0 {
			s.logger.Debug("Purged status cache", "entries", n)
		}
	}

	s.mu.Lock()
	s.last = report
	s.mu.Unlock()
	return report, report.Err(s.runner.FailureThreshold())
}

func (s *Scheduler) tick() {
	report, err := s.RunOnce(s.base)
	switch {
	case errors.Is(err, ErrRunInProgress):
		s.logger.Warn("Skipping scheduled run, previous run still active")
	case err != nil:
		s.logger.Error("Scheduled run failed", "run_id", report.RunID, "error", err, "next_run", s.NextRun())
	default:
		s.logger.Info("Scheduled run finished", "run_id", report.RunID, "summary", report.Summary(), "next_run", s.NextRun())
	}
}

// DailyRange is the range of a daily run: yesterday through today as seen
// in tz.
func DailyRange(now time.Time, tz *time.Location) model.DateRange {
	today := model.Day(now.In(tz))
	return model.DateRange{From: today.AddDate(0, 0, -1), To: today}
}
