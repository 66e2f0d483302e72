// Package planner decides which (entity, date) tasks a run must execute,
// from the ledger's state and the stable-day rule, and detects player
// trades that invalidate already ingested box scores.
package planner

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/albapepper/scoracle-lake/internal/model"
)

// Ledger is the subset of the ledger store the planner reads and writes.
type Ledger interface {
	Get(ctx context.Context, entity model.EntityType, date time.Time) (*model.LedgerEntry, error)
	Affiliations(ctx context.Context, playerIDs []int64) (map[int64]model.Affiliation, error)
	PutAffiliations(ctx context.Context, affs []model.Affiliation) error
}

// Config holds planner settings.
type Config struct {
	Entities    []model.EntityType // enabled entities, any order
	Timezone    *time.Location     // league timezone for the stable-day rule
	StableAfter time.Duration      // grace period after the day ends
	Now         func() time.Time
}

// DefaultConfig returns all entities, America/New_York and a 6h grace period.
func DefaultConfig() Config {
	tz, err := time.LoadLocation("America/New_York")
	if err != nil {
		tz = time.UTC
	}
	return Config{
		Entities:    model.EntityPriority,
		Timezone:    tz,
		StableAfter: 6 * time.Hour,
		Now:         time.Now,
	}
}

// Planner produces ordered task lists.
type Planner struct {
	ledger   Ledger
	entities []model.EntityType
	tz       *time.Location
	stable   time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// New creates a Planner. Entities are kept in priority order.
func New(ledger Ledger, cfg Config, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timezone == nil {
		cfg.Timezone = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if len(cfg.Entities) == 0 {
		cfg.Entities = model.EntityPriority
	}

	entities := make([]model.EntityType, 0, len(cfg.Entities))
	for _, e := range model.EntityPriority {
		for _, want := range cfg.Entities {
			if e == want {
				entities = append(entities, e)
				break
			}
		}
	}

	return &Planner{
		ledger:   ledger,
		entities: entities,
		tz:       cfg.Timezone,
		stable:   cfg.StableAfter,
		now:      cfg.Now,
		logger:   logger,
	}
}

// Entities returns the enabled entities in priority order.
func (p *Planner) Entities() []model.EntityType { return p.entities }

// IsStable reports whether upstream data for date can no longer change:
// the league day has ended and the grace period has passed.
func (p *Planner) IsStable(date time.Time) bool {
	y, m, d := date.Date()
	nextMidnight := time.Date(y, m, d+1, 0, 0, 0, 0, p.tz)
	return !p.now().Before(nextMidnight.Add(p.stable))
}

// Today returns the current date in the league timezone.
func (p *Planner) Today() time.Time {
	return model.Day(p.now().In(p.tz))
}

// Plan returns the tasks needed to bring the range up to date, ordered by
// date ascending then entity priority. The same ledger state and clock
// always yield the same plan.
func (p *Planner) Plan(ctx context.Context, r model.DateRange) ([]model.Task, error) {
	var tasks []model.Task
	skipped := 0
	for _, date := range r.Days() {
		stable := p.IsStable(date)
		for _, entity := range p.entities {
			entry, err := p.ledger.Get(ctx, entity, date)
			if err != nil {
				return nil, fmt.Errorf("plan %s@%s: %w", entity, model.FormatDate(date), err)
			}

			reason, run := decide(entry, stable)
			if !run {
				skipped++
				continue
			}
			tasks = append(tasks, model.Task{Date: date, Entity: entity, Reason: reason})
		}
	}

	p.logger.Info("Planned tasks", "range", r.String(), "tasks", len(tasks), "up_to_date", skipped)
	return tasks, nil
}

// decide applies the planning rule to one ledger entry.
func decide(entry *model.LedgerEntry, stable bool) (model.TaskReason, bool) {
	switch {
	case entry == nil:
		return model.ReasonScheduled, true
	case entry.Status != model.StatusComplete:
		return model.ReasonRetry, true
	case !stable:
		return model.ReasonLive, true
	default:
		return "", false
	}
}

// --------------------------------------------------------------------------
// Trade detection
// --------------------------------------------------------------------------

// Correction is a player_stat task reopened by trade detection, with the
// players whose team change caused it.
type Correction struct {
	Task    model.Task
	Players []int64
}

// Trades is the outcome of trade detection.
type Trades struct {
	Corrections []Correction

	// Affiliations are the new player affiliations to commit once the
	// corrections have run.
	Affiliations []model.Affiliation
}

// Tasks returns the correction tasks.
func (t Trades) Tasks() []model.Task {
	tasks := make([]model.Task, len(t.Corrections))
	for i, c := range t.Corrections {
		tasks[i] = c.Task
	}
	return tasks
}

// DetectTrades compares observed (player, team, date) sightings against the
// stored affiliations. Each team change seen after the last recorded
// sighting reopens player_stat for that last sighting's date, once per
// date. Dates for which ranThisRun returns true are not reopened.
func (p *Planner) DetectTrades(ctx context.Context, obs []model.Observation, ranThisRun func(date time.Time) bool) (Trades, error) {
	if len(obs) == 0 {
		return Trades{}, nil
	}

	byPlayer := map[int64][]model.Observation{}
	for _, o := range obs {
		byPlayer[o.PlayerID] = append(byPlayer[o.PlayerID], o)
	}
	ids := make([]int64, 0, len(byPlayer))
	for id := range byPlayer {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	stored, err := p.ledger.Affiliations(ctx, ids)
	if err != nil {
		return Trades{}, fmt.Errorf("load affiliations: %w", err)
	}

	corrections := map[string]*Correction{}
	var out Trades
	for _, id := range ids {
		seen := byPlayer[id]
		sort.SliceStable(seen, func(i, j int) bool { return seen[i].Date.Before(seen[j].Date) })

		cur, known := stored[id]
		for _, o := range seen {
			if !known {
				cur, known = affiliationOf(o), true
				continue
			}
			if !o.Date.After(cur.LastSeen) {
				continue
			}
			if o.TeamID != cur.TeamID {
				p.reopen(corrections, cur, ranThisRun)
			}
			cur = affiliationOf(o)
		}
		if prev, ok := stored[id]; !ok || cur.TeamID != prev.TeamID || !cur.LastSeen.Equal(prev.LastSeen) {
			out.Affiliations = append(out.Affiliations, cur)
		}
	}

	for _, c := range corrections {
		out.Corrections = append(out.Corrections, *c)
	}
	sort.Slice(out.Corrections, func(i, j int) bool {
		return out.Corrections[i].Task.Date.Before(out.Corrections[j].Task.Date)
	})

	if len(out.Corrections) > 0 {
		p.logger.Info("Trades detected", "corrections", len(out.Corrections), "affiliations", len(out.Affiliations))
	}
	return out, nil
}

func (p *Planner) reopen(corrections map[string]*Correction, prev model.Affiliation, ranThisRun func(time.Time) bool) {
	if ranThisRun != nil && ranThisRun(prev.LastSeen) {
		return
	}
	key := model.FormatDate(prev.LastSeen)
	c, ok := corrections[key]
	if !ok {
		c = &Correction{Task: model.Task{
			Date:   prev.LastSeen,
			Entity: model.EntityPlayerStat,
			Reason: model.ReasonTradeCorrection,
		}}
		corrections[key] = c
	}
	c.Players = append(c.Players, prev.PlayerID)
}

func affiliationOf(o model.Observation) model.Affiliation {
	return model.Affiliation{
		PlayerID: o.PlayerID,
		TeamID:   o.TeamID,
		LastSeen: o.Date,
		Season:   model.SeasonFor(o.Date),
	}
}

// CommitAffiliations persists affiliations, leaving out players whose
// correction did not complete so the next run detects them again.
func (p *Planner) CommitAffiliations(ctx context.Context, t Trades, failedDates map[string]bool) error {
	blocked := map[int64]bool{}
	for _, c := range t.Corrections {
		if failedDates[model.FormatDate(c.Task.Date)] {
			for _, id := range c.Players {
				blocked[id] = true
			}
		}
	}

	affs := make([]model.Affiliation, 0, len(t.Affiliations))
	for _, a := range t.Affiliations {
		if !blocked[a.PlayerID] {
			affs = append(affs, a)
		}
	}
	if err := p.ledger.PutAffiliations(ctx, affs); err != nil {
		return fmt.Errorf("commit affiliations: %w", err)
	}
	return nil
}
