package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/scoracle-lake/internal/model"
	"github.com/albapepper/scoracle-lake/internal/schema"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ptr[T any](v T) *T { return &v }

func gameKey(t *testing.T) model.PartitionKey {
	t.Helper()
	d, err := model.ParseDate("2026-01-15")
	require.NoError(t, err)
	return model.PartitionFor(model.Task{Date: d, Entity: model.EntityGame})
}

func sampleGames() []schema.GameRow {
	return []schema.GameRow{
		{
			GameID: 101, GameDate: "2026-01-15", Season: "2025-26",
			TeamID: 1, OpponentTeamID: 2, IsHome: true, Status: "Final", Periods: 4, Minutes: 240,
			Pts: 112, FGM: 41, FGA: 88, FG3M: 12, FG3A: 33, FTM: 18, FTA: 22, OREB: 10, DREB: 34, AST: 25, TOV: 13,
			Possessions: ptr(99.68), Pace: ptr(99.5), OffRating: ptr(112.4), DefRating: ptr(105.1), NetRating: ptr(7.3),
		},
		{
			GameID: 102, GameDate: "2026-01-15", Season: "2025-26",
			TeamID: 3, OpponentTeamID: 4, Status: "scheduled",
		},
	}
}

// roundTrip writes rows to a fresh store and reads them back.
func roundTrip[T any](t *testing.T, entity model.EntityType, rows []T) {
	t.Helper()
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	w := NewPartitionedWriter(store, 0, testLogger())
	d, err := model.ParseDate("2026-01-15")
	require.NoError(t, err)
	key := model.PartitionFor(model.Task{Date: d, Entity: entity})

	res, err := w.Write(context.Background(), key, rows)
	require.NoError(t, err)
	assert.Equal(t, len(rows), res.Rows)
	assert.Equal(t, string(entity)+"/season=2025-26/game_date=2026-01-15/data.parquet", res.Key)
	assert.Positive(t, res.Bytes)

	got, err := ReadPartition[T](context.Background(), store, key)
	require.NoError(t, err)
	assert.Equal(t, rows, got)
}

func TestWriteReadRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		run  func(t *testing.T)
	}{
		{
			name: "game",
			run:  func(t *testing.T) { roundTrip(t, model.EntityGame, sampleGames()) },
		},
		{
			name: "player_stat",
			run: func(t *testing.T) {
				roundTrip(t, model.EntityPlayerStat, []schema.PlayerStatRow{
					{
						GameID: 101, GameDate: "2026-01-15", Season: "2025-26",
						PlayerID: 23, PlayerName: "Sample Guard", TeamID: 1, OpponentTeamID: ptr(int64(2)),
						Starter: true, Minutes: 34.5, Pts: 28, Reb: 6, Ast: 9, Stl: 2, Blk: 1, TOV: 3, PF: 2,
						FGM: 10, FGA: 19, FG3M: 4, FG3A: 9, FTM: 4, FTA: 5, PlusMinus: ptr(int32(-4)),
						TSPct: ptr(0.63), EFGPct: ptr(0.632), UsagePct: ptr(0.29), Pace: ptr(99.5), OffRating: ptr(118.2),
					},
					{
						GameID: 101, GameDate: "2026-01-15", Season: "2025-26",
						PlayerID: 24, PlayerName: "Bench Forward", TeamID: 1,
					},
				})
			},
		},
		{
			name: "team_stat",
			run: func(t *testing.T) {
				roundTrip(t, model.EntityTeamStat, []schema.TeamStatRow{
					{
						GameID: 101, GameDate: "2026-01-15", Season: "2025-26",
						TeamID: 1, OpponentTeamID: ptr(int64(2)), IsHome: ptr(false),
						Reb: 44, Ast: 25, Stl: 8, Blk: 5, TOV: 13, PF: 19, PlusMinus: ptr(int32(7)),
						Pace: ptr(99.5), OffRating: ptr(112.4), DefRating: ptr(105.1), NetRating: ptr(7.3),
						EFGPct: ptr(0.534), TSPct: ptr(0.571), AstRatio: ptr(0.61),
					},
					{
						GameID: 102, GameDate: "2026-01-15", Season: "2025-26", TeamID: 3,
					},
				})
			},
		},
		{
			name: "standing",
			run: func(t *testing.T) {
				roundTrip(t, model.EntityStanding, []schema.StandingRow{
					{
						SnapshotDate: "2026-01-15", Season: "2025-26", TeamID: 1,
						Conference: "East", Division: "Atlantic", ConferenceRank: 2,
						Wins: 28, Losses: 12, WinPct: ptr(0.7), GamesBack: ptr(1.5), Streak: "W3", Last10: "7-3",
					},
					{
						SnapshotDate: "2026-01-15", Season: "2025-26", TeamID: 3,
						Conference: "West", Division: "Pacific", ConferenceRank: 15,
					},
				})
			},
		},
		{
			name: "shot_chart",
			run: func(t *testing.T) {
				roundTrip(t, model.EntityShotChart, []schema.ShotZoneRow{
					{
						GameID: 101, GameDate: "2026-01-15", Season: "2025-26", TeamID: 1, PlayerID: 23,
						ZoneBasic: "Above the Break 3", ZoneArea: "Center(C)", ZoneRange: "24+ ft.",
						FGM: 3, FGA: 7, FGPct: 3.0 / 7.0,
					},
					{
						GameID: 101, GameDate: "2026-01-15", Season: "2025-26", TeamID: 1, PlayerID: 23,
						ZoneBasic: "Restricted Area", ZoneArea: "Center(C)", ZoneRange: "Less Than 8 ft.",
						FGM: 0, FGA: 2,
					},
				})
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, tt.run)
	}
}

func TestWriteReadDatasets(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	w := NewPartitionedWriter(store, 0, testLogger())
	ctx := context.Background()

	teams := []schema.TeamRow{{TeamID: 1, Abbreviation: "BOS", City: "Boston", Name: "Celtics", FullName: "Boston Celtics", Conference: "East", Division: "Atlantic"}}
	res, err := w.Write(ctx, model.DimensionKey(model.DatasetTeams), teams)
	require.NoError(t, err)
	assert.Equal(t, "teams/data.parquet", res.Key)
	gotTeams, err := ReadPartition[schema.TeamRow](ctx, store, model.DimensionKey(model.DatasetTeams))
	require.NoError(t, err)
	assert.Equal(t, teams, gotTeams)

	players := []schema.PlayerRow{
		{PlayerID: 23, FirstName: "Sample", LastName: "Guard", FullName: "Sample Guard", Position: "G", TeamID: ptr(int64(1)), IsActive: true},
		{PlayerID: 24, FirstName: "Free", LastName: "Agent", FullName: "Free Agent", IsActive: true},
	}
	_, err = w.Write(ctx, model.DimensionKey(model.DatasetPlayers), players)
	require.NoError(t, err)
	gotPlayers, err := ReadPartition[schema.PlayerRow](ctx, store, model.DimensionKey(model.DatasetPlayers))
	require.NoError(t, err)
	assert.Equal(t, players, gotPlayers)

	d, err := model.ParseDate("2026-01-15")
	require.NoError(t, err)
	key := model.SnapshotKey(model.DatasetPlayerTeamHistory, d)
	history := []schema.PlayerTeamHistoryRow{{SnapshotDate: "2026-01-15", Season: "2025-26", PlayerID: 23, TeamID: 1, LastSeen: "2026-01-14"}}
	res, err = w.Write(ctx, key, history)
	require.NoError(t, err)
	assert.Equal(t, "player_team_history/season=2025-26/snapshot_date=2026-01-15/data.parquet", res.Key)
	gotHistory, err := ReadPartition[schema.PlayerTeamHistoryRow](ctx, store, key)
	require.NoError(t, err)
	assert.Equal(t, history, gotHistory)
}

func TestWriteReplacesPartition(t *testing.T) {
	root := t.TempDir()
	store, err := NewFSStore(root)
	require.NoError(t, err)
	w := NewPartitionedWriter(store, 0, testLogger())
	key := gameKey(t)

	_, err = w.Write(context.Background(), key, sampleGames())
	require.NoError(t, err)
	_, err = w.Write(context.Background(), key, sampleGames()[:1])
	require.NoError(t, err)

	got, err := ReadPartition[schema.GameRow](context.Background(), store, key)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(101), got[0].GameID)

	entries, err := os.ReadDir(filepath.Join(root, filepath.FromSlash("game/season=2025-26/game_date=2026-01-15")))
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temp files left behind")
	assert.Equal(t, "data.parquet", entries[0].Name())
}

func TestWriteEmptyPartition(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	w := NewPartitionedWriter(store, 0, testLogger())
	d, _ := model.ParseDate("2026-01-15")
	key := model.PartitionFor(model.Task{Date: d, Entity: model.EntityShotChart})

	res, err := w.Write(context.Background(), key, []schema.ShotZoneRow{})
	require.NoError(t, err)
	assert.Zero(t, res.Rows)

	got, err := ReadPartition[schema.ShotZoneRow](context.Background(), store, key)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestWriteRejectsUnknownRows(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	w := NewPartitionedWriter(store, 0, testLogger())

	_, err = w.Write(context.Background(), gameKey(t), []string{"nope"})
	var werr *WriteError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, "encode", werr.Op)
}

type failingStore struct {
	ObjectStore
}

func (failingStore) Put(context.Context, string, []byte) error { return errors.New("disk full") }

func TestFailedPutKeepsPreviousPartition(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	key := gameKey(t)
	_, err = NewPartitionedWriter(store, 0, testLogger()).Write(context.Background(), key, sampleGames())
	require.NoError(t, err)

	broken := NewPartitionedWriter(failingStore{store}, 0, testLogger())
	_, err = broken.Write(context.Background(), key, sampleGames()[:1])
	var werr *WriteError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, "put", werr.Op)

	got, err := ReadPartition[schema.GameRow](context.Background(), store, key)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestWriteSkipsPutWhenCanceled(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = NewPartitionedWriter(store, 0, testLogger()).Write(ctx, gameKey(t), sampleGames())
	require.ErrorIs(t, err, context.Canceled)

	ok, err := store.Exists(context.Background(), gameKey(t).ObjectKey())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReadMissingPartition(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	_, err = ReadPartition[schema.GameRow](context.Background(), store, gameKey(t))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFSStoreList(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "game/season=2025-26/game_date=2026-01-16/data.parquet", []byte("b")))
	require.NoError(t, store.Put(ctx, "game/season=2025-26/game_date=2026-01-15/data.parquet", []byte("a")))
	require.NoError(t, store.Put(ctx, "standing/season=2025-26/game_date=2026-01-15/data.parquet", []byte("c")))

	keys, err := store.List(ctx, "game/")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"game/season=2025-26/game_date=2026-01-15/data.parquet",
		"game/season=2025-26/game_date=2026-01-16/data.parquet",
	}, keys)

	assert.Error(t, store.Put(ctx, "../escape", []byte("x")))
}
