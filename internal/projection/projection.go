// Package projection maintains in-memory read models from committed events.
//
// Projections are publisher subscribers: delivery is at least once, so each
// projection tracks the last applied sequence per aggregate and skips
// anything it has already folded in. Queries never touch the event store.
package projection

import "sync"

// appliedTracker records the highest applied sequence per aggregate so a
// redelivered event is recognized and skipped.
type appliedTracker struct {
	mu      sync.Mutex
	applied map[string]uint64
}

func newAppliedTracker() *appliedTracker {
	return &appliedTracker{applied: make(map[string]uint64)}
}

// advance reports whether seq is new for the aggregate and records it.
func (t *appliedTracker) advance(aggregateID string, seq uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if seq <= t.applied[aggregateID] {
		return false
	}
	t.applied[aggregateID] = seq
	return true
}
