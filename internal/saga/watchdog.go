package saga

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/commercefoundry/ordersaga/internal/domain/event"
	"github.com/commercefoundry/ordersaga/internal/domain/inventory"
	"github.com/commercefoundry/ordersaga/internal/domain/payment"
	"github.com/commercefoundry/ordersaga/internal/domain/shipping"
)

// awaitedFailures maps a waiting state to the failure event synthesized when
// its deadline passes. A step that never reports is treated as failed.
var awaitedFailures = map[State]event.Type{
	StateStarted:           inventory.EventReservationFailed,
	StateInventoryReserved: payment.EventFailed,
	StatePaymentProcessed:  shipping.EventFailed,
}

// Watchdog converts expired saga deadlines into failure events.
type Watchdog struct {
	store   Store
	manager *Manager
	logger  *log.Logger
	now     func() time.Time
}

// WatchdogOption configures a Watchdog.
type WatchdogOption func(*Watchdog)

// WithWatchdogLogger sets the watchdog logger.
func WithWatchdogLogger(logger *log.Logger) WatchdogOption {
	return func(w *Watchdog) { w.logger = logger }
}

// WithWatchdogNowFunc sets the watchdog clock.
func WithWatchdogNowFunc(f func() time.Time) WatchdogOption {
	return func(w *Watchdog) { w.now = f }
}

// NewWatchdog creates a watchdog over the manager's instance store.
func NewWatchdog(store Store, manager *Manager, opts ...WatchdogOption) *Watchdog {
	w := &Watchdog{
		store:   store,
		manager: manager,
		logger:  log.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Sweep finds instances whose deadline passed and feeds each one the
// synthetic failure event for its awaited step, driving the normal
// compensation path. Returns the number of instances timed out.
func (w *Watchdog) Sweep(ctx context.Context, limit int) (int, error) {
	now := w.now().UTC()
	expired, err := w.store.ListExpired(ctx, now, limit)
	if err != nil {
		return 0, fmt.Errorf("list expired saga instances: %w", err)
	}

	swept := 0
	for _, instance := range expired {
		failure, ok := awaitedFailures[instance.State]
		if !ok {
			continue
		}
		w.logger.Printf("saga %s: deadline %s passed in state %s, synthesizing %s",
			instance.CorrelationKey, instance.Deadline.Format(time.RFC3339), instance.State, failure)
		evt := w.manager.failureEvent(instance, failure, "step timed out")
		if err := w.manager.Handle(ctx, evt); err != nil {
			return swept, fmt.Errorf("time out saga %s: %w", instance.CorrelationKey, err)
		}
		swept++
	}
	return swept, nil
}

// Run sweeps deadlines and retries owed commands on every tick until the
// context ends.
func (w *Watchdog) Run(ctx context.Context, interval time.Duration, limit int) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx, limit)
		}
	}
}

// tick runs one watchdog pass: expire stalled deadlines, then resend commands
// still owed. A compensating instance carries no deadline, so a compensation
// send that failed earlier is only retried through the recovery half of the
// pass.
func (w *Watchdog) tick(ctx context.Context, limit int) {
	if _, err := w.Sweep(ctx, limit); err != nil {
		w.logger.Printf("saga watchdog: sweep: %v", err)
	}
	if err := w.manager.RecoverPending(ctx, limit); err != nil {
		w.logger.Printf("saga watchdog: recover pending: %v", err)
	}
}
