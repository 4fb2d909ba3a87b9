package store

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// Embedded, forward-only migration set. Each file is applied at most once;
// golang-migrate records the applied version in schema_migrations and
// refuses to run if an earlier migration is missing or out of order.
//
//go:embed migrations/sqlite/*.sql
var migrationsFS embed.FS

// runMigrations applies every pending migration to dbPath, transactionally
// per file. On failure it names the failing migration file so the engine
// can refuse to start with an actionable message (§4.1).
func runMigrations(dbPath string) error {
	src, err := iofs.New(migrationsFS, "migrations/sqlite")
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}

	dbDriver, err := (&sqlite.Sqlite{}).Open("sqlite://" + dbPath)
	if err != nil {
		return fmt.Errorf("open migration driver: %w", err)
	}
	defer dbDriver.Close()

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", dbDriver)
	if err != nil {
		return fmt.Errorf("init migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		version, dirty, verErr := m.Version()
		if verErr == nil {
			return fmt.Errorf("migration failed at version %d (dirty=%v): %w", version, dirty, err)
		}
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// Version reports the currently applied migration version, for doctor.
func Version(dbPath string) (uint, bool, error) {
	src, err := iofs.New(migrationsFS, "migrations/sqlite")
	if err != nil {
		return 0, false, err
	}
	dbDriver, err := (&sqlite.Sqlite{}).Open("sqlite://" + dbPath)
	if err != nil {
		return 0, false, err
	}
	defer dbDriver.Close()

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", dbDriver)
	if err != nil {
		return 0, false, err
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}
