// Package sqlite provides the SQLite-backed event store.
package sqlite

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"time"

	"github.com/commercefoundry/ordersaga/internal/domain/event"
	"github.com/commercefoundry/ordersaga/internal/platform/storage/sqlitemigrate"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Store is a SQLite-backed event store implementing eventstore.Store.
type Store struct {
	sqlDB    *sql.DB
	registry *event.Registry
}

// Open opens a SQLite event store at the provided path and applies migrations.
// Every appended event is validated against registry so type and payload
// checks happen in one place.
func Open(path string, registry *event.Registry) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("store path is required")
	}
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// The sqlite driver serializes writers; a single connection keeps the
	// version check and insert inside one serialized transaction.
	sqlDB.SetMaxOpenConns(1)
	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}

	migrations, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("load migrations: %w", err)
	}
	if err := sqlitemigrate.Apply(sqlDB, migrations); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	return &Store{sqlDB: sqlDB, registry: registry}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}
