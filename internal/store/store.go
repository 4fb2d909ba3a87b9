// Package store is the durable state layer: an embedded SQLite database,
// forward-only migrations, and transactional CRUD for every entity in
// internal/model. It is the single writer in the engine (§5) — callers
// never hold a *sql.Tx across an LM call.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver

	"go.uber.org/zap"
)

// Store wraps a *sql.DB opened against one SQLite file with migrations
// applied and foreign keys enabled.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
	path   string
}

// Init opens (or creates) the database at path, applies any missing
// migrations, and enables foreign-key enforcement. On migration failure the
// engine must refuse to run — Init returns the error naming the failing
// migration rather than returning a half-initialized Store.
func Init(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := runMigrations(path); err != nil {
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite allows only one writer; a single pooled connection avoids
	// SQLITE_BUSY races now that the engine is the sole writer (§5).
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	logger.Info("store initialized", zap.String("path", path))
	return &Store{db: db, logger: logger, path: path}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// DB exposes the raw handle for doctor's PRAGMA/table introspection. No
// other package should reach for this directly.
func (s *Store) DB() *sql.DB { return s.db }

// Querier is satisfied by both *sql.DB and *sql.Tx so read helpers can be
// shared between plain calls and calls made inside Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Tx runs fn inside a single transaction, committing on success and rolling
// back on any returned error or panic. Plan import (createplan) and the
// executor's artifact commit run through Tx; writes made with a nil Querier,
// such as the matcher's evidence binding and readiness status changes, each
// run as their own statement outside any transaction.
func (s *Store) Tx(ctx context.Context, fn func(ctx context.Context, q Querier) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.Warn("rollback failed", zap.Error(rbErr))
			}
			return
		}
		err = tx.Commit()
	}()

	err = fn(ctx, tx)
	return err
}

// q lets store helpers run either directly against the Store
// (outside a transaction) or against the Querier passed into a Tx callback.
func (s *Store) q(q Querier) Querier {
	if q != nil {
		return q
	}
	return s.db
}
