package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/albapepper/scoracle-lake/internal/config"
	"github.com/albapepper/scoracle-lake/internal/db"
	"github.com/albapepper/scoracle-lake/internal/model"
)

// PostgresStore is the shared ledger backed by a pgx pool and the
// prepared statements registered in package db.
type PostgresStore struct {
	pool *db.Pool
}

var _ Store = (*PostgresStore)(nil)

// OpenPostgres migrates the ledger schema, then opens the pool.
func OpenPostgres(ctx context.Context, cfg *config.Config) (*PostgresStore, error) {
	connCfg, err := pgx.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	sqlDB := stdlib.OpenDB(*connCfg)
	err = migratePostgres(sqlDB)
	_ = sqlDB.Close()
	if err != nil {
		return nil, err
	}

	pool, err := db.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Get(ctx context.Context, entity model.EntityType, date time.Time) (*model.LedgerEntry, error) {
	e, err := scanEntry(s.pool.QueryRow(ctx, "ledger_get", string(entity), model.FormatDate(date)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("get", err)
	}
	return e, nil
}

func (s *PostgresStore) Mark(ctx context.Context, m Mark) error {
	if err := m.validate(); err != nil {
		return wrap("mark", err)
	}
	_, err := s.pool.Exec(ctx, "ledger_mark",
		string(m.Entity), model.FormatDate(m.Date), string(m.Status), unixMilli(m.At), m.RunID, m.Err)
	return wrap("mark", err)
}

func (s *PostgresStore) List(ctx context.Context, f Filter) ([]model.LedgerEntry, error) {
	query, args := listQuery(f, func(n int) string { return fmt.Sprintf("$%d", n) })
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, wrap("list", err)
	}
	defer rows.Close()

	var out []model.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, wrap("list", err)
		}
		out = append(out, *e)
	}
	return out, wrap("list", rows.Err())
}

func (s *PostgresStore) Affiliations(ctx context.Context, playerIDs []int64) (map[int64]model.Affiliation, error) {
	out := make(map[int64]model.Affiliation, len(playerIDs))
	if len(playerIDs) == 0 {
		return out, nil
	}
	rows, err := s.pool.Query(ctx, "affiliation_get", playerIDs)
	if err != nil {
		return nil, wrap("affiliations", err)
	}
	defer rows.Close()

	for rows.Next() {
		a, err := scanAffiliation(rows)
		if err != nil {
			return nil, wrap("affiliations", err)
		}
		out[a.PlayerID] = a
	}
	return out, wrap("affiliations", rows.Err())
}

func (s *PostgresStore) PutAffiliations(ctx context.Context, affs []model.Affiliation) error {
	if len(affs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, a := range affs {
		batch.Queue("affiliation_put", a.PlayerID, a.TeamID, model.FormatDate(a.LastSeen), a.Season)
	}
	return wrap("put affiliations", s.pool.SendBatch(ctx, batch).Close())
}

func (s *PostgresStore) RecordRun(ctx context.Context, r RunRecord) error {
	_, err := s.pool.Exec(ctx, "run_record",
		r.RunID, unixMilli(r.StartedAt), unixMilli(r.FinishedAt), r.From, r.To,
		r.Planned, r.Completed, r.Failed, r.Skipped, r.Corrections, r.RowsWritten, r.RowsDropped, r.Summary)
	return wrap("record run", err)
}

func (s *PostgresStore) LatestRun(ctx context.Context) (*RunRecord, error) {
	r, err := scanRun(s.pool.QueryRow(ctx, "run_latest"))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return r, wrap("latest run", err)
}

func (s *PostgresStore) Ping(ctx context.Context) error { return wrap("ping", s.pool.HealthCheck(ctx)) }

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Open opens the backend selected by cfg.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Store, error) {
	switch cfg.LedgerBackend {
	case config.LedgerPostgres:
		logger.Info("Opening Postgres ledger")
		return OpenPostgres(ctx, cfg)
	default:
		logger.Info("Opening SQLite ledger", "path", cfg.LedgerSQLitePath)
		return OpenSQLite(ctx, cfg.LedgerSQLitePath)
	}
}
