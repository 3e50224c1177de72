package saga

import (
	"context"
	"sort"
	"sync"
	"time"

	apperrors "github.com/commercefoundry/ordersaga/internal/platform/errors"
)

// ErrInstanceNotFound indicates no instance exists for a correlation key.
var ErrInstanceNotFound = apperrors.New(apperrors.CodeNotFound, "saga instance not found")

// Store persists saga instances keyed by correlation key.
type Store interface {
	// Get returns the instance for a correlation key, or ErrInstanceNotFound.
	Get(ctx context.Context, correlationKey string) (Instance, error)
	// Save upserts the instance under its correlation key.
	Save(ctx context.Context, instance Instance) error
	// ListExpired returns live instances whose deadline is at or before now,
	// ordered by deadline, up to limit.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]Instance, error)
	// ListPending returns live instances that owe commands, up to limit.
	ListPending(ctx context.Context, limit int) ([]Instance, error)
}

// MemoryStore is an in-memory instance store for tests and single-process runs.
type MemoryStore struct {
	mu        sync.Mutex
	instances map[string]Instance
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{instances: make(map[string]Instance)}
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, correlationKey string) (Instance, error) {
	if err := ctx.Err(); err != nil {
		return Instance{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	instance, ok := s.instances[correlationKey]
	if !ok {
		return Instance{}, ErrInstanceNotFound
	}
	return instance.Clone(), nil
}

// Save implements Store.
func (s *MemoryStore) Save(ctx context.Context, instance Instance) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instances[instance.CorrelationKey] = instance.Clone()
	return nil
}

// ListExpired implements Store.
func (s *MemoryStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]Instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Instance
	for _, instance := range s.instances {
		if instance.Ended || instance.Deadline.IsZero() || instance.Deadline.After(now) {
			continue
		}
		out = append(out, instance.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Deadline.Before(out[j].Deadline) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListPending implements Store.
func (s *MemoryStore) ListPending(ctx context.Context, limit int) ([]Instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Instance
	for _, instance := range s.instances {
		if len(instance.Pending) == 0 {
			continue
		}
		out = append(out, instance.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
