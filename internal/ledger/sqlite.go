package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/albapepper/scoracle-lake/internal/model"
)

const (
	sqliteGet = `SELECT entity_type, date, status, last_attempt_at, attempt_count, last_run_id, last_error
		FROM ingestion_ledger WHERE entity_type = ? AND date = ?`

	sqliteMark = `INSERT INTO ingestion_ledger
			(entity_type, date, status, last_attempt_at, attempt_count, last_run_id, last_error)
		VALUES (?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT (entity_type, date) DO UPDATE SET
			status = excluded.status,
			last_attempt_at = excluded.last_attempt_at,
			attempt_count = CASE WHEN ingestion_ledger.last_run_id = excluded.last_run_id
				THEN ingestion_ledger.attempt_count
				ELSE ingestion_ledger.attempt_count + 1 END,
			last_run_id = excluded.last_run_id,
			last_error = excluded.last_error`

	sqlitePutAffiliation = `INSERT INTO player_affiliations (player_id, team_id, last_seen, season)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (player_id) DO UPDATE SET
			team_id = excluded.team_id,
			last_seen = excluded.last_seen,
			season = excluded.season
		WHERE excluded.last_seen >= player_affiliations.last_seen`

	sqliteRecordRun = `INSERT OR REPLACE INTO ingestion_runs
			(run_id, started_at, finished_at, range_from, range_to, planned, completed, failed, skipped,
			 corrections, rows_written, rows_dropped, summary)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	sqliteLatestRun = `SELECT run_id, started_at, finished_at, range_from, range_to, planned, completed, failed, skipped,
			corrections, rows_written, rows_dropped, summary
		FROM ingestion_runs ORDER BY started_at DESC LIMIT 1`
)

// SQLiteStore is the single-node ledger backed by a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if needed) and migrates the ledger at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger directory: %w", err)
		}
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open SQLite ledger: %w", err)
	}
	// SQLite allows one writer; serializing on a single connection keeps
	// concurrent marks from failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping SQLite ledger: %w", err)
	}
	if err := migrateSQLite(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, entity model.EntityType, date time.Time) (*model.LedgerEntry, error) {
	row := s.db.QueryRowContext(ctx, sqliteGet, string(entity), model.FormatDate(date))
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("get", err)
	}
	return e, nil
}

func (s *SQLiteStore) Mark(ctx context.Context, m Mark) error {
	if err := m.validate(); err != nil {
		return wrap("mark", err)
	}
	_, err := s.db.ExecContext(ctx, sqliteMark,
		string(m.Entity), model.FormatDate(m.Date), string(m.Status), unixMilli(m.At), m.RunID, m.Err)
	return wrap("mark", err)
}

func (s *SQLiteStore) List(ctx context.Context, f Filter) ([]model.LedgerEntry, error) {
	query, args := listQuery(f, func(int) string { return "?" })
	rows, err := s.db.QueryContext(ctx, query, args...)
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

func (s *SQLiteStore) Affiliations(ctx context.Context, playerIDs []int64) (map[int64]model.Affiliation, error) {
	out := make(map[int64]model.Affiliation, len(playerIDs))
	// Chunked to stay under SQLite's bound parameter limit.
	for start := 0; start < len(playerIDs); start += 500 {
		chunk := playerIDs[start:min(start+500, len(playerIDs))]
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		query := `SELECT player_id, team_id, last_seen, season FROM player_affiliations WHERE player_id IN (` +
			strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",") + `)`

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, wrap("affiliations", err)
		}
		for rows.Next() {
			a, err := scanAffiliation(rows)
			if err != nil {
				rows.Close()
				return nil, wrap("affiliations", err)
			}
			out[a.PlayerID] = a
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, wrap("affiliations", err)
		}
	}
	return out, nil
}

func (s *SQLiteStore) PutAffiliations(ctx context.Context, affs []model.Affiliation) error {
	if len(affs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("put affiliations", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, sqlitePutAffiliation)
	if err != nil {
		return wrap("put affiliations", err)
	}
	defer stmt.Close()

	for _, a := range affs {
		if _, err := stmt.ExecContext(ctx, a.PlayerID, a.TeamID, model.FormatDate(a.LastSeen), a.Season); err != nil {
			return wrap("put affiliations", err)
		}
	}
	return wrap("put affiliations", tx.Commit())
}

func (s *SQLiteStore) RecordRun(ctx context.Context, r RunRecord) error {
	_, err := s.db.ExecContext(ctx, sqliteRecordRun,
		r.RunID, unixMilli(r.StartedAt), unixMilli(r.FinishedAt), r.From, r.To,
		r.Planned, r.Completed, r.Failed, r.Skipped, r.Corrections, r.RowsWritten, r.RowsDropped, r.Summary)
	return wrap("record run", err)
}

func (s *SQLiteStore) LatestRun(ctx context.Context) (*RunRecord, error) {
	r, err := scanRun(s.db.QueryRowContext(ctx, sqliteLatestRun))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, wrap("latest run", err)
}

func (s *SQLiteStore) Ping(ctx context.Context) error { return wrap("ping", s.db.PingContext(ctx)) }

func (s *SQLiteStore) Close() error { return s.db.Close() }

// --------------------------------------------------------------------------
// Shared query building and scanning
// --------------------------------------------------------------------------

// scanner is satisfied by *sql.Row, *sql.Rows and pgx.Row.
type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*model.LedgerEntry, error) {
	var (
		e              model.LedgerEntry
		entity, status string
		lastAttempt    int64
	)
	if err := row.Scan(&entity, &e.Date, &status, &lastAttempt, &e.AttemptCount, &e.LastRunID, &e.LastError); err != nil {
		return nil, err
	}
	e.Entity = model.EntityType(entity)
	e.Status = model.Status(status)
	e.LastAttemptAt = fromMilli(lastAttempt)
	return &e, nil
}

func scanAffiliation(row scanner) (model.Affiliation, error) {
	var (
		a        model.Affiliation
		lastSeen string
	)
	if err := row.Scan(&a.PlayerID, &a.TeamID, &lastSeen, &a.Season); err != nil {
		return a, err
	}
	d, err := model.ParseDate(lastSeen)
	if err != nil {
		return a, err
	}
	a.LastSeen = d
	return a, nil
}

func scanRun(row scanner) (*RunRecord, error) {
	var (
		r                 RunRecord
		started, finished int64
	)
	err := row.Scan(&r.RunID, &started, &finished, &r.From, &r.To, &r.Planned, &r.Completed, &r.Failed,
		&r.Skipped, &r.Corrections, &r.RowsWritten, &r.RowsDropped, &r.Summary)
	if err != nil {
		return nil, err
	}
	r.StartedAt, r.FinishedAt = fromMilli(started), fromMilli(finished)
	return &r, nil
}

// listQuery builds the filtered SELECT; placeholder renders the n-th
// (1-based) bind parameter for the backend's dialect.
func listQuery(f Filter, placeholder func(n int) string) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, placeholder(len(args))))
	}
	if !f.From.IsZero() {
		add("date >= %s", model.FormatDate(f.From))
	}
	if !f.To.IsZero() {
		add("date <= %s", model.FormatDate(f.To))
	}
	if f.Entity != "" {
		add("entity_type = %s", string(f.Entity))
	}
	if f.Status != "" {
		add("status = %s", string(f.Status))
	}

	query := `SELECT entity_type, date, status, last_attempt_at, attempt_count, last_run_id, last_error FROM ingestion_ledger`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date, entity_type"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}
	return query, args
}
