package ledger

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/scoracle-lake/internal/model"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "nested", "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := model.ParseDate(s)
	require.NoError(t, err)
	return d
}

func TestGetMissingReturnsNil(t *testing.T) {
	s := openTestStore(t)
	e, err := s.Get(context.Background(), model.EntityGame, day(t, "2026-01-15"))
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestMarkUpsertAndAttemptCount(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	d := day(t, "2026-01-15")
	at := time.Date(2026, 1, 16, 7, 0, 0, 0, time.UTC)

	require.NoError(t, s.Mark(ctx, Mark{Entity: model.EntityGame, Date: d, Status: model.StatusPending, RunID: "run-1", At: at}))
	require.NoError(t, s.Mark(ctx, Mark{Entity: model.EntityGame, Date: d, Status: model.StatusFailed, RunID: "run-1", Err: "503", At: at.Add(time.Second)}))

	e, err := s.Get(ctx, model.EntityGame, d)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, model.StatusFailed, e.Status)
	assert.Equal(t, 1, e.AttemptCount)
	assert.Equal(t, "run-1", e.LastRunID)
	assert.Equal(t, "503", e.LastError)
	assert.Equal(t, at.Add(time.Second), e.LastAttemptAt)

	// A second run counts as a new attempt; its marks replace the error.
	require.NoError(t, s.Mark(ctx, Mark{Entity: model.EntityGame, Date: d, Status: model.StatusPending, RunID: "run-2", At: at.Add(time.Hour)}))
	require.NoError(t, s.Mark(ctx, Mark{Entity: model.EntityGame, Date: d, Status: model.StatusComplete, RunID: "run-2", At: at.Add(time.Hour)}))
	e, err = s.Get(ctx, model.EntityGame, d)
	require.NoError(t, err)
	assert.Equal(t, model.StatusComplete, e.Status)
	assert.Equal(t, 2, e.AttemptCount)
	assert.Empty(t, e.LastError)
}

func TestMarkReplayIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	m := Mark{Entity: model.EntityStanding, Date: day(t, "2026-02-01"), Status: model.StatusComplete, RunID: "run-1", At: time.Now()}

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Mark(ctx, m))
	}
	e, err := s.Get(ctx, m.Entity, m.Date)
	require.NoError(t, err)
	assert.Equal(t, 1, e.AttemptCount)
	assert.Equal(t, model.StatusComplete, e.Status)
}

func TestMarkRejectsInvalid(t *testing.T) {
	s := openTestStore(t)
	err := s.Mark(context.Background(), Mark{Entity: "injury", Date: day(t, "2026-01-01"), Status: model.StatusPending, RunID: "r"})
	require.Error(t, err)
	var lerr *Error
	assert.True(t, errors.As(err, &lerr))

	err = s.Mark(context.Background(), Mark{Entity: model.EntityGame, Date: day(t, "2026-01-01"), Status: model.StatusPending})
	assert.Error(t, err)
}

func TestConcurrentMarks(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	d := day(t, "2026-01-15")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entity := model.EntityPriority[i%len(model.EntityPriority)]
			assert.NoError(t, s.Mark(ctx, Mark{Entity: entity, Date: d, Status: model.StatusComplete, RunID: fmt.Sprintf("run-%d", i), At: time.Now()}))
		}(i)
	}
	wg.Wait()

	entries, err := s.List(ctx, Filter{From: d, To: d})
	require.NoError(t, err)
	assert.Len(t, entries, len(model.EntityPriority))
	for _, e := range entries {
		assert.Equal(t, 4, e.AttemptCount)
	}
}

func TestListFilters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	for _, d := range []string{"2026-01-14", "2026-01-15", "2026-01-16"} {
		for _, e := range []model.EntityType{model.EntityGame, model.EntityPlayerStat} {
			status := model.StatusComplete
			if d == "2026-01-15" && e == model.EntityPlayerStat {
				status = model.StatusFailed
			}
			require.NoError(t, s.Mark(ctx, Mark{Entity: e, Date: day(t, d), Status: status, RunID: "r", At: time.Now()}))
		}
	}

	all, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 6)
	assert.Equal(t, "2026-01-14", all[0].Date)
	assert.Equal(t, model.EntityGame, all[0].Entity)

	ranged, err := s.List(ctx, Filter{From: day(t, "2026-01-15"), To: day(t, "2026-01-16"), Entity: model.EntityGame})
	require.NoError(t, err)
	assert.Len(t, ranged, 2)

	failed, err := s.List(ctx, Filter{Status: model.StatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "2026-01-15", failed[0].Date)

	limited, err := s.List(ctx, Filter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestAffiliationsOnlyMoveForward(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutAffiliations(ctx, []model.Affiliation{
		{PlayerID: 23, TeamID: 1, LastSeen: day(t, "2026-01-10"), Season: "2025-26"},
		{PlayerID: 24, TeamID: 2, LastSeen: day(t, "2026-01-10"), Season: "2025-26"},
	}))
	require.NoError(t, s.PutAffiliations(ctx, []model.Affiliation{
		{PlayerID: 23, TeamID: 9, LastSeen: day(t, "2026-01-12"), Season: "2025-26"},
		{PlayerID: 24, TeamID: 7, LastSeen: day(t, "2026-01-05"), Season: "2025-26"},
	}))

	got, err := s.Affiliations(ctx, []int64{23, 24, 99})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(9), got[23].TeamID)
	assert.Equal(t, day(t, "2026-01-12"), got[23].LastSeen)
	assert.Equal(t, int64(2), got[24].TeamID)

	none, err := s.Affiliations(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRunRecords(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	latest, err := s.LatestRun(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)

	start := time.Date(2026, 1, 16, 6, 0, 0, 0, time.UTC)
	require.NoError(t, s.RecordRun(ctx, RunRecord{RunID: "a", StartedAt: start, FinishedAt: start.Add(time.Minute), From: "2026-01-15", To: "2026-01-16", Planned: 10, Completed: 10}))
	require.NoError(t, s.RecordRun(ctx, RunRecord{RunID: "b", StartedAt: start.Add(24 * time.Hour), FinishedAt: start.Add(25 * time.Hour), Planned: 4, Completed: 3, Failed: 1, RowsWritten: 120}))

	latest, err = s.LatestRun(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "b", latest.RunID)
	assert.Equal(t, int64(120), latest.RowsWritten)
	assert.Equal(t, start.Add(24*time.Hour), latest.StartedAt)
}

func TestReopenKeepsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	s, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Mark(ctx, Mark{Entity: model.EntityGame, Date: day(t, "2026-01-15"), Status: model.StatusComplete, RunID: "r", At: time.Now()}))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer s.Close()
	e, err := s.Get(ctx, model.EntityGame, day(t, "2026-01-15"))
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, model.StatusComplete, e.Status)
}
