package eventstore

import (
	"context"
	"sync"
	"time"

	"github.com/commercefoundry/ordersaga/internal/domain/event"
)

// Memory is an in-memory event store for tests and single-process runs.
type Memory struct {
	registry *event.Registry

	mu      sync.Mutex
	streams map[string][]event.Event
}

// NewMemory creates an in-memory store validating appends against registry.
func NewMemory(registry *event.Registry) *Memory {
	return &Memory{
		registry: registry,
		streams:  make(map[string][]event.Event),
	}
}

// Append implements Store.
func (m *Memory) Append(ctx context.Context, aggregateID string, expectedVersion uint64, events []event.Event) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return expectedVersion, nil
	}

	validated := make([]event.Event, 0, len(events))
	for _, evt := range events {
		evt.AggregateID = aggregateID
		if m.registry != nil {
			vetted, err := m.registry.ValidateForAppend(evt)
			if err != nil {
				return 0, err
			}
			evt = vetted
		}
		validated = append(validated, evt)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stream := m.streams[aggregateID]
	current := uint64(len(stream))
	if current != expectedVersion {
		return 0, ErrConcurrencyConflict
	}

	version := current
	for _, evt := range validated {
		version++
		evt.Seq = version
		if evt.Timestamp.IsZero() {
			evt.Timestamp = time.Now().UTC()
		}
		evt.Timestamp = evt.Timestamp.UTC().Truncate(time.Millisecond)
		stream = append(stream, evt)
	}
	m.streams[aggregateID] = stream
	return version, nil
}

// ReadStream implements Store.
func (m *Memory) ReadStream(ctx context.Context, aggregateID string) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stream := m.streams[aggregateID]
	out := make([]event.Event, len(stream))
	copy(out, stream)
	return out, nil
}

// ListEvents implements Store.
func (m *Memory) ListEvents(ctx context.Context, aggregateID string, afterSeq uint64, limit int) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []event.Event
	for _, evt := range m.streams[aggregateID] {
		if evt.Seq <= afterSeq {
			continue
		}
		out = append(out, evt)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// CurrentVersion implements Store.
func (m *Memory) CurrentVersion(ctx context.Context, aggregateID string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return uint64(len(m.streams[aggregateID])), nil
}
