package planner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/scoracle-lake/internal/config"
	"github.com/albapepper/scoracle-lake/internal/model"
)

// memLedger is an in-memory Ledger.
type memLedger struct {
	entries map[model.Key]model.LedgerEntry
	affs    map[int64]model.Affiliation
	getErr  error
}

func newMemLedger() *memLedger {
	return &memLedger{entries: map[model.Key]model.LedgerEntry{}, affs: map[int64]model.Affiliation{}}
}

func (m *memLedger) set(entity model.EntityType, date string, status model.Status) {
	m.entries[model.Key{Entity: entity, Date: date}] = model.LedgerEntry{Entity: entity, Date: date, Status: status}
}

func (m *memLedger) Get(_ context.Context, entity model.EntityType, date time.Time) (*model.LedgerEntry, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	e, ok := m.entries[model.Key{Entity: entity, Date: model.FormatDate(date)}]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (m *memLedger) Affiliations(_ context.Context, ids []int64) (map[int64]model.Affiliation, error) {
	out := map[int64]model.Affiliation{}
	for _, id := range ids {
		if a, ok := m.affs[id]; ok {
			out[id] = a
		}
	}
	return out, nil
}

func (m *memLedger) PutAffiliations(_ context.Context, affs []model.Affiliation) error {
	for _, a := range affs {
		if cur, ok := m.affs[a.PlayerID]; ok && a.LastSeen.Before(cur.LastSeen) {
			continue
		}
		m.affs[a.PlayerID] = a
	}
	return nil
}

var ny, _ = time.LoadLocation("America/New_York")

func newPlanner(l Ledger, now time.Time, entities ...model.EntityType) *Planner {
	return New(l, Config{
		Entities:    entities,
		Timezone:    ny,
		StableAfter: 6 * time.Hour,
		Now:         func() time.Time { return now },
	}, nil)
}

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := model.ParseDate(s)
	require.NoError(t, err)
	return d
}

func rng(t *testing.T, from, to string) model.DateRange {
	t.Helper()
	r, err := model.NewDateRange(date(t, from), date(t, to))
	require.NoError(t, err)
	return r
}

func TestPlanEmptyLedgerSingleDay(t *testing.T) {
	now := time.Date(2026, 1, 15, 20, 0, 0, 0, ny)
	p := newPlanner(newMemLedger(), now, model.EntityStanding, model.EntityGame, model.EntityTeamStat, model.EntityPlayerStat)

	tasks, err := p.Plan(context.Background(), rng(t, "2026-01-15", "2026-01-15"))
	require.NoError(t, err)
	require.Len(t, tasks, 4)

	want := []model.EntityType{model.EntityGame, model.EntityPlayerStat, model.EntityTeamStat, model.EntityStanding}
	for i, task := range tasks {
		assert.Equal(t, want[i], task.Entity)
		assert.Equal(t, model.ReasonScheduled, task.Reason)
		assert.Equal(t, "2026-01-15", model.FormatDate(task.Date))
	}
}

func TestPlanDefaultEntities(t *testing.T) {
	for _, k := range []string{"INGEST_SHOT_CHARTS", "LEDGER_BACKEND", "STORAGE_BACKEND", "LEAGUE_TIMEZONE"} {
		t.Setenv(k, "")
	}
	cfg, err := config.Load()
	require.NoError(t, err)

	now := time.Date(2026, 1, 15, 20, 0, 0, 0, ny)
	p := newPlanner(newMemLedger(), now, cfg.Entities...)

	tasks, err := p.Plan(context.Background(), rng(t, "2026-01-15", "2026-01-15"))
	require.NoError(t, err)
	require.Len(t, tasks, 4)
	for _, task := range tasks {
		assert.NotEqual(t, model.EntityShotChart, task.Entity)
	}
}

func TestPlanReasons(t *testing.T) {
	l := newMemLedger()
	l.set(model.EntityGame, "2026-01-14", model.StatusComplete)
	l.set(model.EntityPlayerStat, "2026-01-14", model.StatusFailed)
	l.set(model.EntityTeamStat, "2026-01-14", model.StatusPending)
	l.set(model.EntityGame, "2026-01-15", model.StatusComplete)

	// 2026-01-15 ends at midnight ET; six hours later is 06:00 on the 16th.
	now := time.Date(2026, 1, 16, 3, 0, 0, 0, ny)
	p := newPlanner(l, now, model.EntityGame, model.EntityPlayerStat, model.EntityTeamStat)

	tasks, err := p.Plan(context.Background(), rng(t, "2026-01-14", "2026-01-15"))
	require.NoError(t, err)

	got := map[string]model.TaskReason{}
	for _, task := range tasks {
		got[task.String()] = task.Reason
	}
	assert.Equal(t, map[string]model.TaskReason{
		"player_stat@2026-01-14": model.ReasonRetry,
		"team_stat@2026-01-14":   model.ReasonRetry,
		"game@2026-01-15":        model.ReasonLive,
		"player_stat@2026-01-15": model.ReasonScheduled,
		"team_stat@2026-01-15":   model.ReasonScheduled,
	}, got)
	assert.Equal(t, "player_stat@2026-01-14", tasks[0].String())
}

func TestPlanSkipsCompleteStableDays(t *testing.T) {
	l := newMemLedger()
	for _, e := range model.EntityPriority {
		l.set(e, "2026-01-15", model.StatusComplete)
	}

	p := newPlanner(l, time.Date(2026, 1, 16, 6, 0, 0, 0, ny))
	tasks, err := p.Plan(context.Background(), rng(t, "2026-01-15", "2026-01-15"))
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestPlanIsDeterministic(t *testing.T) {
	l := newMemLedger()
	l.set(model.EntityGame, "2026-01-12", model.StatusFailed)
	p := newPlanner(l, time.Date(2026, 1, 20, 12, 0, 0, 0, ny))

	first, err := p.Plan(context.Background(), rng(t, "2026-01-10", "2026-01-14"))
	require.NoError(t, err)
	second, err := p.Plan(context.Background(), rng(t, "2026-01-10", "2026-01-14"))
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, first, 25)
}

func TestPlanPropagatesLedgerErrors(t *testing.T) {
	l := newMemLedger()
	l.getErr = errors.New("disk gone")
	p := newPlanner(l, time.Now())
	_, err := p.Plan(context.Background(), rng(t, "2026-01-10", "2026-01-10"))
	assert.ErrorContains(t, err, "disk gone")
}

func TestIsStable(t *testing.T) {
	d := date(t, "2026-01-15")
	tests := []struct {
		now  time.Time
		want bool
	}{
		{time.Date(2026, 1, 15, 23, 59, 0, 0, ny), false},
		{time.Date(2026, 1, 16, 5, 59, 0, 0, ny), false},
		{time.Date(2026, 1, 16, 6, 0, 0, 0, ny), true},
		{time.Date(2026, 1, 16, 11, 0, 0, 0, time.UTC), true},
		{time.Date(2026, 1, 16, 10, 59, 0, 0, time.UTC), false},
	}
	for _, tt := range tests {
		p := newPlanner(newMemLedger(), tt.now)
		assert.Equal(t, tt.want, p.IsStable(d), tt.now.String())
	}
}

func TestIsStableAcrossDSTChange(t *testing.T) {
	// Clocks jump forward at 02:00 on 2026-03-08, so six elapsed hours
	// after midnight is 07:00 local time.
	d := date(t, "2026-03-07")
	tests := []struct {
		now  time.Time
		want bool
	}{
		{time.Date(2026, 3, 8, 6, 30, 0, 0, ny), false},
		{time.Date(2026, 3, 8, 7, 0, 0, 0, ny), true},
	}
	for _, tt := range tests {
		p := newPlanner(newMemLedger(), tt.now)
		assert.Equal(t, tt.want, p.IsStable(d), tt.now.String())
	}
}

func TestDetectTradesReopensPriorDateOnce(t *testing.T) {
	l := newMemLedger()
	l.affs[23] = model.Affiliation{PlayerID: 23, TeamID: 1, LastSeen: date(t, "2026-01-10"), Season: "2025-26"}
	l.affs[24] = model.Affiliation{PlayerID: 24, TeamID: 1, LastSeen: date(t, "2026-01-10"), Season: "2025-26"}
	l.affs[30] = model.Affiliation{PlayerID: 30, TeamID: 5, LastSeen: date(t, "2026-01-10"), Season: "2025-26"}
	p := newPlanner(l, time.Date(2026, 1, 16, 12, 0, 0, 0, ny))

	obs := []model.Observation{
		{PlayerID: 23, TeamID: 9, Date: date(t, "2026-01-15")},
		{PlayerID: 24, TeamID: 9, Date: date(t, "2026-01-15")},
		{PlayerID: 30, TeamID: 5, Date: date(t, "2026-01-15")},
		{PlayerID: 41, TeamID: 2, Date: date(t, "2026-01-15")},
	}
	ran := func(d time.Time) bool { return model.FormatDate(d) == "2026-01-15" }

	trades, err := p.DetectTrades(context.Background(), obs, ran)
	require.NoError(t, err)
	require.Len(t, trades.Corrections, 1)
	c := trades.Corrections[0]
	assert.Equal(t, model.EntityPlayerStat, c.Task.Entity)
	assert.Equal(t, model.ReasonTradeCorrection, c.Task.Reason)
	assert.Equal(t, "2026-01-10", model.FormatDate(c.Task.Date))
	assert.ElementsMatch(t, []int64{23, 24}, c.Players)
	assert.Len(t, trades.Affiliations, 4)

	require.NoError(t, p.CommitAffiliations(context.Background(), trades, nil))
	assert.Equal(t, int64(9), l.affs[23].TeamID)
	assert.Equal(t, int64(2), l.affs[41].TeamID)

	// Replaying the same sightings after the commit finds nothing new.
	again, err := p.DetectTrades(context.Background(), obs, ran)
	require.NoError(t, err)
	assert.Empty(t, again.Corrections)
	assert.Empty(t, again.Affiliations)
}

func TestDetectTradesSkipsDatesAlreadyRun(t *testing.T) {
	l := newMemLedger()
	l.affs[23] = model.Affiliation{PlayerID: 23, TeamID: 1, LastSeen: date(t, "2026-01-14"), Season: "2025-26"}
	p := newPlanner(l, time.Now())

	trades, err := p.DetectTrades(context.Background(), []model.Observation{
		{PlayerID: 23, TeamID: 1, Date: date(t, "2026-01-14")},
		{PlayerID: 23, TeamID: 9, Date: date(t, "2026-01-15")},
	}, func(time.Time) bool { return true })
	require.NoError(t, err)
	assert.Empty(t, trades.Corrections)
	require.Len(t, trades.Affiliations, 1)
	assert.Equal(t, int64(9), trades.Affiliations[0].TeamID)
}

func TestDetectTradesIgnoresOlderSightings(t *testing.T) {
	l := newMemLedger()
	l.affs[23] = model.Affiliation{PlayerID: 23, TeamID: 9, LastSeen: date(t, "2026-01-20"), Season: "2025-26"}
	p := newPlanner(l, time.Now())

	// A backfill of an earlier date sees the player on the old team.
	trades, err := p.DetectTrades(context.Background(), []model.Observation{
		{PlayerID: 23, TeamID: 1, Date: date(t, "2026-01-05")},
	}, nil)
	require.NoError(t, err)
	assert.Empty(t, trades.Corrections)
	assert.Empty(t, trades.Affiliations)
}

func TestCommitAffiliationsHoldsBackFailedCorrections(t *testing.T) {
	l := newMemLedger()
	l.affs[23] = model.Affiliation{PlayerID: 23, TeamID: 1, LastSeen: date(t, "2026-01-10")}
	p := newPlanner(l, time.Now())

	trades, err := p.DetectTrades(context.Background(), []model.Observation{
		{PlayerID: 23, TeamID: 9, Date: date(t, "2026-01-15")},
		{PlayerID: 50, TeamID: 3, Date: date(t, "2026-01-15")},
	}, nil)
	require.NoError(t, err)
	require.Len(t, trades.Corrections, 1)

	require.NoError(t, p.CommitAffiliations(context.Background(), trades, map[string]bool{"2026-01-10": true}))
	assert.Equal(t, int64(1), l.affs[23].TeamID)
	assert.Equal(t, int64(3), l.affs[50].TeamID)
}
