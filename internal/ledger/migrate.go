package ledger

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrateUp applies every pending migration through driver.
func migrateUp(driver database.Driver, dbName string) (*migrate.Migrate, error) {
	migrationFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("access migrations directory: %w", err)
	}

	sourceDriver, err := iofs.New(migrationFS, ".")
	if err != nil {
		return nil, fmt.Errorf("create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, dbName, driver)
	if err != nil {
		return nil, fmt.Errorf("create migrate instance: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return nil, fmt.Errorf("read migration version: %w", err)
	}
	if dirty {
		return nil, fmt.Errorf("ledger schema is dirty at version %d, fix manually or force the version", version)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return nil, fmt.Errorf("migrate to latest version: %w", err)
	}
	return m, nil
}

// migrateSQLite migrates a SQLite handle in place. The migrator is not
// closed since closing it would close db too.
func migrateSQLite(db *sql.DB) error {
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("create SQLite migrate driver: %w", err)
	}
	_, err = migrateUp(driver, "sqlite")
	return err
}

// migratePostgres migrates through a short-lived database/sql handle.
func migratePostgres(db *sql.DB) error {
	driver, err := migratepgx.WithInstance(db, &migratepgx.Config{})
	if err != nil {
		return fmt.Errorf("create PostgreSQL migrate driver: %w", err)
	}
	m, err := migrateUp(driver, "postgres")
	if err != nil {
		return err
	}
	srcErr, dbErr := m.Close()
	return errors.Join(srcErr, dbErr)
}
