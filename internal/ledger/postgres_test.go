package ledger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/albapepper/scoracle-lake/internal/config"
	"github.com/albapepper/scoracle-lake/internal/model"
)

// startPostgres runs a throwaway Postgres and opens a migrated store on it.
// Skips when no container runtime is reachable.
func startPostgres(t *testing.T) *PostgresStore {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres ledger tests need a container runtime")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:18-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_HOST_AUTH_METHOD": "trust",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(context.Background()) })

	host, err := pgC.Host(ctx)
	require.NoError(t, err)
	port, err := pgC.MappedPort(ctx, "5432")
	require.NoError(t, err)

	cfg := &config.Config{
		DatabaseURL:    fmt.Sprintf("postgres://postgres@%s:%s/postgres?sslmode=disable", host, port.Port()),
		DBPoolMinConns: 1,
		DBPoolMaxConns: 4,
		DBPoolMaxLife:  time.Hour,
	}
	s, err := OpenPostgres(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPostgresStore(t *testing.T) {
	s := startPostgres(t)

	t.Run("mark replay is idempotent", func(t *testing.T) {
		ctx := context.Background()
		m := Mark{Entity: model.EntityStanding, Date: day(t, "2026-02-01"), Status: model.StatusComplete, RunID: "run-1", At: time.Now()}

		for i := 0; i < 3; i++ {
			require.NoError(t, s.Mark(ctx, m))
		}
		e, err := s.Get(ctx, m.Entity, m.Date)
		require.NoError(t, err)
		require.NotNil(t, e)
		assert.Equal(t, 1, e.AttemptCount)
		assert.Equal(t, model.StatusComplete, e.Status)
	})

	t.Run("attempt count follows run ids", func(t *testing.T) {
		ctx := context.Background()
		d := day(t, "2026-01-15")
		at := time.Date(2026, 1, 16, 7, 0, 0, 0, time.UTC)

		require.NoError(t, s.Mark(ctx, Mark{Entity: model.EntityGame, Date: d, Status: model.StatusPending, RunID: "run-1", At: at}))
		require.NoError(t, s.Mark(ctx, Mark{Entity: model.EntityGame, Date: d, Status: model.StatusFailed, RunID: "run-1", Err: "503", At: at.Add(time.Second)}))
		require.NoError(t, s.Mark(ctx, Mark{Entity: model.EntityGame, Date: d, Status: model.StatusComplete, RunID: "run-2", At: at.Add(time.Hour)}))

		e, err := s.Get(ctx, model.EntityGame, d)
		require.NoError(t, err)
		require.NotNil(t, e)
		assert.Equal(t, model.StatusComplete, e.Status)
		assert.Equal(t, 2, e.AttemptCount)
		assert.Equal(t, "run-2", e.LastRunID)
		assert.Empty(t, e.LastError)
		assert.Equal(t, at.Add(time.Hour), e.LastAttemptAt)
	})

	t.Run("affiliations only move forward", func(t *testing.T) {
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
	})

	t.Run("latest run", func(t *testing.T) {
		ctx := context.Background()
		start := time.Date(2026, 1, 16, 6, 0, 0, 0, time.UTC)
		require.NoError(t, s.RecordRun(ctx, RunRecord{RunID: "a", StartedAt: start, FinishedAt: start.Add(time.Minute), Planned: 10, Completed: 10}))
		require.NoError(t, s.RecordRun(ctx, RunRecord{RunID: "b", StartedAt: start.Add(24 * time.Hour), FinishedAt: start.Add(25 * time.Hour), Planned: 4, Completed: 3, Failed: 1}))

		latest, err := s.LatestRun(ctx)
		require.NoError(t, err)
		require.NotNil(t, latest)
		assert.Equal(t, "b", latest.RunID)
		assert.Equal(t, 1, latest.Failed)
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, s.Ping(context.Background()))
	})
}
