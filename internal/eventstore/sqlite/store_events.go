package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/commercefoundry/ordersaga/internal/domain/event"
	"github.com/commercefoundry/ordersaga/internal/eventstore"
)

// Append atomically appends events to an aggregate stream under the
// expected-version check. The check and the inserts share one transaction, so
// two concurrent commands against the same base version cannot both commit.
func (s *Store) Append(ctx context.Context, aggregateID string, expectedVersion uint64, events []event.Event) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	if len(events) == 0 {
		return expectedVersion, nil
	}

	validated := make([]event.Event, 0, len(events))
	for _, evt := range events {
		evt.AggregateID = aggregateID
		if s.registry != nil {
			vetted, err := s.registry.ValidateForAppend(evt)
			if err != nil {
				return 0, err
			}
			evt = vetted
		}
		validated = append(validated, evt)
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var current uint64
	row := tx.QueryRowContext(ctx, "SELECT version FROM stream_heads WHERE aggregate_id = ?", aggregateID)
	if err := row.Scan(&current); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("load stream head: %w", err)
		}
		current = 0
	}
	if current != expectedVersion {
		return 0, eventstore.ErrConcurrencyConflict
	}

	version := current
	for _, evt := range validated {
		version++
		evt.Seq = version
		if evt.Timestamp.IsZero() {
			evt.Timestamp = time.Now().UTC()
		}
		evt.Timestamp = evt.Timestamp.UTC().Truncate(time.Millisecond)

		if _, err := tx.ExecContext(ctx, `
INSERT INTO events (aggregate_id, seq, event_type, timestamp, correlation_id, causation_id, payload_json)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
			evt.AggregateID,
			int64(evt.Seq),
			string(evt.Type),
			toMillis(evt.Timestamp),
			evt.CorrelationID,
			evt.CausationID,
			string(evt.PayloadJSON),
		); err != nil {
			return 0, fmt.Errorf("insert event seq %d: %w", evt.Seq, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO stream_heads (aggregate_id, version) VALUES (?, ?)
ON CONFLICT (aggregate_id) DO UPDATE SET version = excluded.version`,
		aggregateID, int64(version),
	); err != nil {
		return 0, fmt.Errorf("advance stream head: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit append: %w", err)
	}
	return version, nil
}

// ReadStream returns the full ordered stream for an aggregate.
func (s *Store) ReadStream(ctx context.Context, aggregateID string) ([]event.Event, error) {
	return s.ListEvents(ctx, aggregateID, 0, 0)
}

// ListEvents returns events with seq greater than afterSeq, ordered ascending.
func (s *Store) ListEvents(ctx context.Context, aggregateID string, afterSeq uint64, limit int) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	query := `
SELECT aggregate_id, seq, event_type, timestamp, correlation_id, causation_id, payload_json
FROM events
WHERE aggregate_id = ? AND seq > ?
ORDER BY seq ASC`
	args := []any{aggregateID, int64(afterSeq)}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []event.Event
	for rows.Next() {
		var (
			evt       event.Event
			seq       int64
			eventType string
			stamp     int64
			payload   string
		)
		if err := rows.Scan(&evt.AggregateID, &seq, &eventType, &stamp, &evt.CorrelationID, &evt.CausationID, &payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		evt.Seq = uint64(seq)
		evt.Type = event.Type(eventType)
		evt.Timestamp = fromMillis(stamp)
		evt.PayloadJSON = []byte(payload)
		out = append(out, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

// CurrentVersion returns the stream head sequence, 0 when no events exist.
func (s *Store) CurrentVersion(ctx context.Context, aggregateID string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}

	var version uint64
	row := s.sqlDB.QueryRowContext(ctx, "SELECT version FROM stream_heads WHERE aggregate_id = ?", aggregateID)
	if err := row.Scan(&version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("load stream head: %w", err)
	}
	return version, nil
}
