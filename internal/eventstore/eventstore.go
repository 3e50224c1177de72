// Package eventstore defines the append/read contract for aggregate event
// streams. The stream is the source of truth for state reconstruction: every
// aggregate field is derived by replaying its events in order.
package eventstore

import (
	"context"

	"github.com/commercefoundry/ordersaga/internal/domain/event"
	apperrors "github.com/commercefoundry/ordersaga/internal/platform/errors"
)

// ErrConcurrencyConflict indicates the stream moved past the expected version
// between read and append. Exactly one of two concurrent writers against the
// same base version succeeds; the loser receives this error and retries.
var ErrConcurrencyConflict = apperrors.New(apperrors.CodeConcurrencyConflict, "aggregate stream version conflict")

// ErrNotFound indicates a requested stream or record is missing.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// Store is the event stream boundary that drives replay and command handling.
type Store interface {
	// Append atomically appends events to the aggregate stream when its head
	// equals expectedVersion, assigning gapless sequence numbers. All events
	// commit together or none do. Returns the new stream version.
	Append(ctx context.Context, aggregateID string, expectedVersion uint64, events []event.Event) (uint64, error)
	// ReadStream returns the full ordered stream for an aggregate. A missing
	// stream yields an empty slice, not an error.
	ReadStream(ctx context.Context, aggregateID string) ([]event.Event, error)
	// ListEvents returns events with seq greater than afterSeq, ordered by
	// seq ascending, up to limit.
	ListEvents(ctx context.Context, aggregateID string, afterSeq uint64, limit int) ([]event.Event, error)
	// CurrentVersion returns the stream head sequence, 0 when no events exist.
	CurrentVersion(ctx context.Context, aggregateID string) (uint64, error)
}
