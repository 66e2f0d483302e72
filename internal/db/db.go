// Package db provides a pgxpool-based connection pool with prepared statement
// registration and health checking, used by the Postgres ledger backend.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/albapepper/scoracle-lake/internal/config"
)

// Pool wraps pgxpool.Pool with application-specific helpers.
type Pool struct {
	*pgxpool.Pool
}

// New creates and validates a new connection pool.
func New(ctx context.Context, cfg *config.Config) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MinConns = int32(cfg.DBPoolMinConns)
	poolCfg.MaxConns = int32(cfg.DBPoolMaxConns)
	poolCfg.MaxConnLifetime = cfg.DBPoolMaxLife
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	// Register prepared statements on every new connection.
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return registerPreparedStatements(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// Verify connectivity
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// HealthCheck runs a trivial query to verify the database is reachable.
func (p *Pool) HealthCheck(ctx context.Context) error {
	var n int
	return p.QueryRow(ctx, "health_check").Scan(&n)
}

// Statements lists the prepared statements by name. The ledger tables are
// created by migrations, which must run before the pool is opened.
var Statements = map[string]string{
	// Health
	"health_check": "SELECT 1",

	// Ledger
	"ledger_get": `SELECT entity_type, date, status, last_attempt_at, attempt_count, last_run_id, last_error
		FROM ingestion_ledger WHERE entity_type = $1 AND date = $2`,
	"ledger_mark": `INSERT INTO ingestion_ledger
			(entity_type, date, status, last_attempt_at, attempt_count, last_run_id, last_error)
		VALUES ($1, $2, $3, $4, 1, $5, $6)
		ON CONFLICT (entity_type, date) DO UPDATE SET
			status = EXCLUDED.status,
			last_attempt_at = EXCLUDED.last_attempt_at,
			attempt_count = CASE WHEN ingestion_ledger.last_run_id = EXCLUDED.last_run_id
				THEN ingestion_ledger.attempt_count
				ELSE ingestion_ledger.attempt_count + 1 END,
			last_run_id = EXCLUDED.last_run_id,
			last_error = EXCLUDED.last_error`,

	// Trade detection
	"affiliation_get": `SELECT player_id, team_id, last_seen, season
		FROM player_affiliations WHERE player_id = ANY($1)`,
	"affiliation_put": `INSERT INTO player_affiliations (player_id, team_id, last_seen, season)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (player_id) DO UPDATE SET
			team_id = EXCLUDED.team_id,
			last_seen = EXCLUDED.last_seen,
			season = EXCLUDED.season
		WHERE EXCLUDED.last_seen >= player_affiliations.last_seen`,

	// Runs
	"run_record": `INSERT INTO ingestion_runs
			(run_id, started_at, finished_at, range_from, range_to, planned, completed, failed, skipped,
			 corrections, rows_written, rows_dropped, summary)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (run_id) DO UPDATE SET
			finished_at = EXCLUDED.finished_at,
			planned = EXCLUDED.planned,
			completed = EXCLUDED.completed,
			failed = EXCLUDED.failed,
			skipped = EXCLUDED.skipped,
			corrections = EXCLUDED.corrections,
			rows_written = EXCLUDED.rows_written,
			rows_dropped = EXCLUDED.rows_dropped,
			summary = EXCLUDED.summary`,
	"run_latest": `SELECT run_id, started_at, finished_at, range_from, range_to, planned, completed, failed, skipped,
			corrections, rows_written, rows_dropped, summary
		FROM ingestion_runs ORDER BY started_at DESC LIMIT 1`,
}

// registerPreparedStatements prepares every entry of Statements.
// Prepared statements eliminate parse overhead on every mark.
func registerPreparedStatements(ctx context.Context, conn *pgx.Conn) error {
	for name, sql := range Statements {
		if _, err := conn.Prepare(ctx, name, sql); err != nil {
			return fmt.Errorf("prepare %q: %w", name, err)
		}
	}
	return nil
}
