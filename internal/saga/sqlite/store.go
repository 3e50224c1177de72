// Package sqlite provides the SQLite-backed saga instance store.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/commercefoundry/ordersaga/internal/platform/storage/sqlitemigrate"
	"github.com/commercefoundry/ordersaga/internal/saga"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func toMillis(value time.Time) int64 {
	if value.IsZero() {
		return 0
	}
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	if value == 0 {
		return time.Time{}
	}
	return time.UnixMilli(value).UTC()
}

// Store is a SQLite-backed saga instance store implementing saga.Store.
type Store struct {
	sqlDB *sql.DB
}

// Open opens a SQLite saga store at the provided path and applies migrations.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("store path is required")
	}
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
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

	return &Store{sqlDB: sqlDB}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

const instanceColumns = "correlation_key, saga_id, state, workflow_json, pending_json, causation_id, deadline, updated_at, ended"

// Get implements saga.Store.
func (s *Store) Get(ctx context.Context, correlationKey string) (saga.Instance, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		"SELECT "+instanceColumns+" FROM saga_instances WHERE correlation_key = ?", correlationKey)
	instance, err := scanInstance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return saga.Instance{}, saga.ErrInstanceNotFound
	}
	if err != nil {
		return saga.Instance{}, fmt.Errorf("query saga instance: %w", err)
	}
	return instance, nil
}

// Save implements saga.Store.
func (s *Store) Save(ctx context.Context, instance saga.Instance) error {
	workflowJSON, err := json.Marshal(instance.Workflow)
	if err != nil {
		return fmt.Errorf("encode workflow: %w", err)
	}
	pending := instance.Pending
	if pending == nil {
		pending = []saga.PendingCommand{}
	}
	pendingJSON, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("encode pending commands: %w", err)
	}

	_, err = s.sqlDB.ExecContext(ctx, `
		INSERT INTO saga_instances (`+instanceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (correlation_key) DO UPDATE SET
			saga_id = excluded.saga_id,
			state = excluded.state,
			workflow_json = excluded.workflow_json,
			pending_json = excluded.pending_json,
			causation_id = excluded.causation_id,
			deadline = excluded.deadline,
			updated_at = excluded.updated_at,
			ended = excluded.ended`,
		instance.CorrelationKey, instance.SagaID, string(instance.State),
		string(workflowJSON), string(pendingJSON), instance.CausationID,
		toMillis(instance.Deadline), toMillis(instance.UpdatedAt), boolToInt(instance.Ended))
	if err != nil {
		return fmt.Errorf("upsert saga instance: %w", err)
	}
	return nil
}

// ListExpired implements saga.Store.
func (s *Store) ListExpired(ctx context.Context, now time.Time, limit int) ([]saga.Instance, error) {
	return s.list(ctx, `
		SELECT `+instanceColumns+` FROM saga_instances
		WHERE ended = 0 AND deadline > 0 AND deadline <= ?
		ORDER BY deadline ASC LIMIT ?`, toMillis(now), normalizeLimit(limit))
}

// ListPending implements saga.Store.
func (s *Store) ListPending(ctx context.Context, limit int) ([]saga.Instance, error) {
	return s.list(ctx, `
		SELECT `+instanceColumns+` FROM saga_instances
		WHERE pending_json != '[]'
		ORDER BY updated_at ASC LIMIT ?`, normalizeLimit(limit))
}

func (s *Store) list(ctx context.Context, query string, args ...any) ([]saga.Instance, error) {
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query saga instances: %w", err)
	}
	defer rows.Close()

	var out []saga.Instance
	for rows.Next() {
		instance, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan saga instance: %w", err)
		}
		out = append(out, instance)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate saga instances: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInstance(row rowScanner) (saga.Instance, error) {
	var instance saga.Instance
	var state, workflowJSON, pendingJSON string
	var deadline, updatedAt int64
	var ended int
	if err := row.Scan(&instance.CorrelationKey, &instance.SagaID, &state,
		&workflowJSON, &pendingJSON, &instance.CausationID,
		&deadline, &updatedAt, &ended); err != nil {
		return saga.Instance{}, err
	}
	instance.State = saga.State(state)
	if err := json.Unmarshal([]byte(workflowJSON), &instance.Workflow); err != nil {
		return saga.Instance{}, fmt.Errorf("decode workflow: %w", err)
	}
	if err := json.Unmarshal([]byte(pendingJSON), &instance.Pending); err != nil {
		return saga.Instance{}, fmt.Errorf("decode pending commands: %w", err)
	}
	if len(instance.Pending) == 0 {
		instance.Pending = nil
	}
	instance.Deadline = fromMillis(deadline)
	instance.UpdatedAt = fromMillis(updatedAt)
	instance.Ended = ended != 0
	return instance, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 1000
	}
	return limit
}
