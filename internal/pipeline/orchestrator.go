// Package pipeline runs ingestion: it plans tasks, drives each task through
// fetch, transform and write, records outcomes in the ledger, and runs the
// trade corrections found along the way.
//
// Dates run concurrently. Within a date the game task commits before the
// other entities start, since their derived metrics read the game lines.
// A weighted semaphore bounds the number of tasks in flight.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/albapepper/scoracle-lake/internal/ledger"
	"github.com/albapepper/scoracle-lake/internal/metrics"
	"github.com/albapepper/scoracle-lake/internal/model"
	"github.com/albapepper/scoracle-lake/internal/planner"
	"github.com/albapepper/scoracle-lake/internal/provider"
	"github.com/albapepper/scoracle-lake/internal/schema"
	"github.com/albapepper/scoracle-lake/internal/storage"
	"github.com/albapepper/scoracle-lake/internal/transform"
)

// Source fetches every page of a task.
type Source interface {
	FetchTask(ctx context.Context, task model.Task) ([]provider.RawRecord, error)
}

// Ledger is the part of the ledger store the orchestrator writes.
type Ledger interface {
	Mark(ctx context.Context, m ledger.Mark) error
	RecordRun(ctx context.Context, r ledger.RunRecord) error
}

// Deps bundles the components a run drives.
type Deps struct {
	Planner     *planner.Planner
	Source      Source
	Transformer *transform.Transformer
	Writer      *storage.PartitionedWriter
	Ledger      Ledger
	Metrics     *metrics.Metrics // optional
}

// Options tunes a run.
type Options struct {
	Workers          int
	FailureThreshold float64
	LedgerTimeout    time.Duration // bound on each ledger write
	Now              func() time.Time
	NewRunID         func() string

	// RefreshDimensions reloads the teams and players datasets at the
	// start of every run.
	RefreshDimensions bool
}

// Orchestrator executes runs. It holds no state between runs; everything
// durable lives in the ledger and the object store.
type Orchestrator struct {
	deps   Deps
	opts   Options
	logger *slog.Logger
}

// New creates an Orchestrator.
func New(deps Deps, opts Options, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.LedgerTimeout <= 0 {
		opts.LedgerTimeout = 10 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewRunID == nil {
		opts.NewRunID = uuid.NewString
	}
	return &Orchestrator{deps: deps, opts: opts, logger: logger.With("component", "orchestrator")}
}

// FailureThreshold returns the configured tolerated failure rate.
func (o *Orchestrator) FailureThreshold() float64 { return o.opts.FailureThreshold }

// run is the state of one Run call.
type run struct {
	o      *Orchestrator
	id     string
	report *RunReport
	sem    *semaphore.Weighted
	logger *slog.Logger

	mu           sync.Mutex
	observations []model.Observation
	playerDates  map[string]bool // player_stat dates attempted this run
}

// Run brings the range up to date and returns its report. It never panics
// on task failures and never returns early because one task failed.
func (o *Orchestrator) Run(ctx context.Context, r model.DateRange) *RunReport {
	wallStart := time.Now()
	id := o.opts.NewRunID()
	rn := &run{
		o:           o,
		id:          id,
		report:      newReport(id, r, o.opts.Now()),
		sem:         semaphore.NewWeighted(int64(o.opts.Workers)),
		logger:      o.logger.With("run_id", id),
		playerDates: map[string]bool{},
	}
	rn.logger.Info("Run started", "range", r.String(), "workers", o.opts.Workers)

	if o.opts.RefreshDimensions {
		if _, err := o.RefreshDimensions(ctx); err != nil {
			rn.report.AddWarningf("dimensions: %v", err)
		}
	}

	tasks, err := o.deps.Planner.Plan(ctx, r)
	if err != nil {
		rn.report.Fatal = fmt.Errorf("plan: %w", err)
		return rn.finish(ctx, wallStart)
	}
	rn.report.TasksPlanned = len(tasks)

	rn.runDates(ctx, tasks)
	if ctx.Err() == nil {
		rn.correctTrades(ctx)
		rn.snapshotTeams(ctx)
	}

	rn.report.Canceled = ctx.Err() != nil
	return rn.finish(ctx, wallStart)
}

// runDates runs every date group concurrently.
func (rn *run) runDates(ctx context.Context, tasks []model.Task) {
	var g errgroup.Group
	for _, group := range groupByDate(tasks) {
		g.Go(func() error {
			rn.runDate(ctx, group)
			return nil
		})
	}
	_ = g.Wait()
}

// runDate runs the game task of a date, then its other tasks concurrently.
func (rn *run) runDate(ctx context.Context, tasks []model.Task) {
	date := tasks[0].Date
	rest := tasks

	var gc *transform.GameContext
	haveGames := false
	if tasks[0].Entity == model.EntityGame {
		rest = tasks[1:]
		if out := rn.runTask(ctx, tasks[0], nil); out.completed {
			if rows, ok := out.batch.Rows.([]schema.GameRow); ok {
				gc, haveGames = transform.NewGameContext(rows), true
			}
		}
	}
	if len(rest) == 0 {
		return
	}
	if !haveGames && needsGameContext(rest) {
		gc = rn.loadGameContext(ctx, date)
	}

	var g errgroup.Group
	for _, task := range rest {
		g.Go(func() error {
			rn.runTask(ctx, task, gc)
			return nil
		})
	}
	_ = g.Wait()
}

// correctTrades runs trade detection over this run's player lines, then
// the corrections it asks for, then commits the new affiliations.
func (rn *run) correctTrades(ctx context.Context) {
	rn.mu.Lock()
	obs := rn.observations
	rn.mu.Unlock()

	trades, err := rn.o.deps.Planner.DetectTrades(ctx, obs, rn.ranPlayerStat)
	if err != nil {
		rn.report.AddWarningf("trade detection: %v", err)
		rn.logger.Warn("Trade detection failed", "error", err)
		return
	}
	if len(trades.Affiliations) == 0 && len(trades.Corrections) == 0 {
		return
	}

	corrections := trades.Tasks()
	rn.report.mu.Lock()
	rn.report.Corrections = len(corrections)
	rn.report.TasksPlanned += len(corrections)
	rn.report.mu.Unlock()
	rn.o.deps.Metrics.RecordCorrections(len(corrections))

	var (
		g      errgroup.Group
		mu     sync.Mutex
		failed = map[string]bool{}
	)
	for _, task := range corrections {
		g.Go(func() error {
			gc := rn.loadGameContext(ctx, task.Date)
			if out := rn.runTask(ctx, task, gc); !out.completed {
				mu.Lock()
				failed[model.FormatDate(task.Date)] = true
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rn.o.opts.LedgerTimeout)
	defer cancel()
	if err := rn.o.deps.Planner.CommitAffiliations(cctx, trades, failed); err != nil {
		rn.report.AddWarningf("%v", err)
		rn.logger.Warn("Affiliations not committed", "error", err)
	}
}

// outcome is what the date scheduler needs to know about a finished task.
type outcome struct {
	completed bool
	batch     *transform.Batch
}

// runTask drives one task through its state machine. Errors never leave
// this function; they become the task's recorded outcome.
func (rn *run) runTask(ctx context.Context, task model.Task, gc *transform.GameContext) outcome {
	if ctx.Err() != nil {
		rn.report.addSkipped()
		return outcome{}
	}
	if err := rn.sem.Acquire(ctx, 1); err != nil {
		rn.report.addSkipped()
		return outcome{}
	}
	defer rn.sem.Release(1)

	m := rn.o.deps.Metrics
	m.TaskStarted()
	defer m.TaskDone()

	t := &taskRun{
		run:    rn,
		task:   task,
		start:  time.Now(),
		logger: rn.logger.With("task", task.String(), "reason", string(task.Reason)),
	}
	t.machine = newTaskFSM(task, t.logger)
	if task.Entity == model.EntityPlayerStat {
		rn.mu.Lock()
		rn.playerDates[model.FormatDate(task.Date)] = true
		rn.mu.Unlock()
	}

	advance(t.machine, eventFetch, t.logger)
	if err := rn.mark(ctx, task, model.StatusPending, ""); err != nil {
		return t.fail(ctx, StageLedger, "ledger", err)
	}
	records, err := rn.o.deps.Source.FetchTask(ctx, task)
	if err != nil {
		return t.fail(ctx, StageFetch, fetchKind(ctx, err), err)
	}

	advance(t.machine, eventTransform, t.logger)
	batch, err := rn.o.deps.Transformer.TransformTask(task, records, gc)
	if err != nil {
		return t.fail(ctx, StageTransform, provider.KindPermanent.String(), err)
	}
	t.batch = batch
	if batch.AllDropped() {
		return t.fail(ctx, StageTransform, "validation",
			fmt.Errorf("all %d rows failed validation, first: %w", len(batch.Dropped), batch.Dropped[0]))
	}
	for _, w := range batch.Warnings {
		rn.report.AddWarningf("%s: %s", task, w)
	}
	if len(batch.Dropped) > 0 {
		rn.report.AddWarningf("%s: dropped %d of %d rows, first: %v", task, len(batch.Dropped), batch.Input, batch.Dropped[0])
	}

	advance(t.machine, eventWrite, t.logger)
	res, err := rn.o.deps.Writer.Write(ctx, model.PartitionFor(task), batch.Rows)
	if err != nil {
		return t.fail(ctx, StageWrite, "write", err)
	}
	if err := rn.mark(ctx, task, model.StatusComplete, ""); err != nil {
		return t.fail(ctx, StageLedger, "ledger", err)
	}
	advance(t.machine, eventComplete, t.logger)

	dur := time.Since(t.start)
	rn.report.addCompleted(res.Rows, len(batch.Dropped))
	m.RecordTask(string(task.Entity), StateCompleted, dur)
	m.RecordRows(string(task.Entity), res.Rows, len(batch.Dropped))
	if len(batch.Observations) > 0 {
		rn.mu.Lock()
		rn.observations = append(rn.observations, batch.Observations...)
		rn.mu.Unlock()
	}

	t.logger.Info("Task complete",
		"rows", res.Rows,
		"dropped", len(batch.Dropped),
		"pages", len(records),
		"duration", dur.Round(time.Millisecond),
	)
	return outcome{completed: true, batch: batch}
}

// taskRun carries one task through runTask and fail.
type taskRun struct {
	run     *run
	task    model.Task
	machine *fsm.FSM
	batch   *transform.Batch
	start   time.Time
	logger  *slog.Logger
}

// fail records the failure in the ledger and the report.
func (t *taskRun) fail(ctx context.Context, stage Stage, kind string, err error) outcome {
	rn := t.run
	msg := err.Error()
	if merr := rn.mark(ctx, t.task, model.StatusFailed, fmt.Sprintf("%s: %s", stage, msg)); merr != nil {
		msg = fmt.Sprintf("%s; mark failed: %v", msg, merr)
	}
	advance(t.machine, eventFail, t.logger)

	dropped := 0
	if t.batch != nil {
		dropped = len(t.batch.Dropped)
	}
	rn.report.addFailure(TaskFailure{
		Task:   t.task.String(),
		Entity: t.task.Entity,
		Date:   model.FormatDate(t.task.Date),
		Reason: t.task.Reason,
		Stage:  stage,
		Kind:   kind,
		Error:  msg,
	}, dropped)
	rn.o.deps.Metrics.RecordTask(string(t.task.Entity), StateFailed, time.Since(t.start))

	t.logger.Warn("Task failed", "stage", string(stage), "kind", kind, "error", msg)
	return outcome{batch: t.batch}
}

// mark writes a ledger status on a context detached from run cancellation:
// the ledger must reflect what actually happened to a started task.
func (rn *run) mark(ctx context.Context, task model.Task, status model.Status, errMsg string) error {
	mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rn.o.opts.LedgerTimeout)
	defer cancel()
	return rn.o.deps.Ledger.Mark(mctx, ledger.Mark{
		Entity: task.Entity,
		Date:   task.Date,
		Status: status,
		RunID:  rn.id,
		Err:    errMsg,
		At:     rn.o.opts.Now(),
	})
}

func (rn *run) ranPlayerStat(date time.Time) bool {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	return rn.playerDates[model.FormatDate(date)]
}

// loadGameContext reads a date's stored game partition. Without it,
// player and team lines are written with null derived metrics.
func (rn *run) loadGameContext(ctx context.Context, date time.Time) *transform.GameContext {
	if ctx.Err() != nil {
		return nil
	}
	key := model.PartitionFor(model.Task{Date: date, Entity: model.EntityGame})
	rows, err := storage.ReadPartition[schema.GameRow](ctx, rn.o.deps.Writer.Store(), key)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			rn.report.AddWarningf("%s: no game context, derived metrics left null", model.FormatDate(date))
		} else {
			rn.report.AddWarningf("%s: load game context: %v", model.FormatDate(date), err)
		}
		return nil
	}
	return transform.NewGameContext(rows)
}

// finish stamps the duration, stores the run record and logs the summary.
func (rn *run) finish(ctx context.Context, wallStart time.Time) *RunReport {
	rep := rn.report
	rep.Duration = time.Since(wallStart)

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rn.o.opts.LedgerTimeout)
	defer cancel()
	if err := rn.o.deps.Ledger.RecordRun(rctx, rep.Record()); err != nil {
		rep.AddWarningf("record run: %v", err)
		rn.logger.Warn("Run record not stored", "error", err)
	}

	threshold := rn.o.opts.FailureThreshold
	rn.o.deps.Metrics.RecordRun(rep.Result(threshold), rep.Duration)

	level := slog.LevelInfo
	if rep.Err(threshold) != nil {
		level = slog.LevelError
	} else if rep.TasksFailed > 0 {
		level = slog.LevelWarn
	}
	rn.logger.Log(ctx, level, "Run complete", "summary", rep.Summary(), "warnings", len(rep.Warnings))
	for _, f := range rep.Failures {
		rn.logger.Log(ctx, level, "Failed task", "task", f.Task, "stage", string(f.Stage), "kind", f.Kind, "error", f.Error)
	}
	return rep
}

// groupByDate splits a plan into per-date groups, keeping plan order.
func groupByDate(tasks []model.Task) [][]model.Task {
	var groups [][]model.Task
	index := map[string]int{}
	for _, t := range tasks {
		key := model.FormatDate(t.Date)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], t)
	}
	return groups
}

func needsGameContext(tasks []model.Task) bool {
	for _, t := range tasks {
		if t.Entity == model.EntityPlayerStat || t.Entity == model.EntityTeamStat {
			return true
		}
	}
	return false
}

// fetchKind classifies a fetch failure for the report.
func fetchKind(ctx context.Context, err error) string {
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return "canceled"
	}
	return provider.KindOf(err).String()
}

// snapshotTeams writes the player_team_history snapshot for the run's last
// date from every player line this run saw. A failed write is a warning.
func (rn *run) snapshotTeams(ctx context.Context) {
	rn.mu.Lock()
	obs := append([]model.Observation(nil), rn.observations...)
	rn.mu.Unlock()
	if len(obs) == 0 {
		return
	}

	snapshot := rn.report.Range.To
	rows := transform.PlayerTeamHistory(obs, snapshot)
	key := model.SnapshotKey(model.DatasetPlayerTeamHistory, snapshot)
	res, err := rn.o.deps.Writer.Write(ctx, key, rows)
	if err != nil {
		rn.report.AddWarningf("%s: %v", model.DatasetPlayerTeamHistory, err)
		rn.logger.Warn("Team history snapshot not written", "error", err)
		return
	}
	rn.o.deps.Metrics.RecordRows(string(model.DatasetPlayerTeamHistory), res.Rows, 0)
	rn.logger.Info("Team history snapshot written", "key", res.Key, "players", res.Rows)
}

// DimensionResult describes one refreshed dimension.
type DimensionResult struct {
	Entity  model.EntityType `json:"entity"`
	Key     string           `json:"key"`
	Rows    int              `json:"rows"`
	Dropped int              `json:"dropped"`
}

// RefreshDimensions fetches the teams and players lists and replaces their
// datasets. Dimensions load concurrently and the first failure cancels the
// others; a dataset whose load failed keeps its previous object.
func (o *Orchestrator) RefreshDimensions(ctx context.Context) ([]DimensionResult, error) {
	results := make([]DimensionResult, len(model.Dimensions))
	g, gctx := errgroup.WithContext(ctx)
	for i, entity := range model.Dimensions {
		g.Go(func() error {
			res, err := o.refreshDimension(gctx, entity)
			if err != nil {
				return fmt.Errorf("%s: %w", entity, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (o *Orchestrator) refreshDimension(ctx context.Context, entity model.EntityType) (DimensionResult, error) {
	start := time.Now()
	task := model.Task{Entity: entity}

	records, err := o.deps.Source.FetchTask(ctx, task)
	if err != nil {
		return DimensionResult{}, fmt.Errorf("fetch: %w", err)
	}
	batch, err := o.deps.Transformer.TransformTask(task, records, nil)
	if err != nil {
		return DimensionResult{}, fmt.Errorf("transform: %w", err)
	}
	if batch.AllDropped() {
		return DimensionResult{}, fmt.Errorf("all %d rows failed validation, first: %w", len(batch.Dropped), batch.Dropped[0])
	}
	res, err := o.deps.Writer.Write(ctx, model.DimensionKey(entity), batch.Rows)
	if err != nil {
		return DimensionResult{}, err
	}

	o.deps.Metrics.RecordRows(string(entity), res.Rows, len(batch.Dropped))
	o.logger.Info("Dimension refreshed",
		"entity", entity,
		"rows", res.Rows,
		"dropped", len(batch.Dropped),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return DimensionResult{Entity: entity, Key: res.Key, Rows: res.Rows, Dropped: len(batch.Dropped)}, nil
}
