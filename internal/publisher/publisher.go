// Package publisher delivers committed events to in-process subscribers.
//
// Delivery is at-least-once and preserves append order within one Publish
// call. Subscribers must tolerate duplicate delivery; a failing subscriber
// is retried a bounded number of times and then skipped for that event, so
// one broken consumer never stalls the rest of the fan-out.
package publisher

import (
	"context"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/commercefoundry/ordersaga/internal/domain/event"
)

const tracerName = "github.com/commercefoundry/ordersaga/internal/publisher"

// Subscriber consumes committed events.
type Subscriber interface {
	// Name identifies the subscriber in logs and traces.
	Name() string
	// Handle processes one event. Errors are logged and retried by the bus;
	// they never propagate to the producer.
	Handle(ctx context.Context, evt event.Event) error
}

// Bus fans committed events out to registered subscribers.
type Bus struct {
	mu          sync.RWMutex
	subscribers []Subscriber

	logger      *log.Logger
	maxAttempts int
	retryDelay  time.Duration
	tracer      trace.Tracer
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the delivery failure logger.
func WithLogger(logger *log.Logger) Option {
	return func(b *Bus) { b.logger = logger }
}

// WithMaxAttempts sets the per-subscriber delivery attempt bound.
func WithMaxAttempts(n int) Option {
	return func(b *Bus) { b.maxAttempts = n }
}

// WithRetryDelay sets the pause between delivery attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(b *Bus) { b.retryDelay = d }
}

// NewBus creates a bus with no subscribers.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		logger:      log.Default(),
		maxAttempts: 3,
		retryDelay:  10 * time.Millisecond,
		tracer:      otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.maxAttempts < 1 {
		b.maxAttempts = 1
	}
	return b
}

// Subscribe registers a subscriber. Events published before registration are
// not replayed to it.
func (b *Bus) Subscribe(sub Subscriber) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, sub)
}

// Publish delivers events to every subscriber in append order. Each
// subscriber sees all events of one call in sequence before errors are
// surfaced, and a subscriber that keeps failing on one event is skipped
// for that event only.
func (b *Bus) Publish(ctx context.Context, events []event.Event) {
	if len(events) == 0 {
		return
	}

	b.mu.RLock()
	subscribers := make([]Subscriber, len(b.subscribers))
	copy(subscribers, b.subscribers)
	b.mu.RUnlock()

	for _, evt := range events {
		ctx, span := b.tracer.Start(ctx, "publisher.deliver", trace.WithAttributes(
			attribute.String("event.type", string(evt.Type)),
			attribute.String("event.aggregate_id", evt.AggregateID),
		))
		for _, sub := range subscribers {
			b.deliver(ctx, sub, evt)
		}
		span.End()
	}
}

func (b *Bus) deliver(ctx context.Context, sub Subscriber, evt event.Event) {
	var err error
	for attempt := 1; attempt <= b.maxAttempts; attempt++ {
		if err = sub.Handle(ctx, evt); err == nil {
			return
		}
		if attempt < b.maxAttempts {
			select {
			case <-ctx.Done():
				b.logger.Printf("publisher: deliver %s to %s canceled: %v", evt.Type, sub.Name(), ctx.Err())
				return
			case <-time.After(b.retryDelay):
			}
		}
	}
	b.logger.Printf("publisher: deliver %s (aggregate %s) to %s failed after %d attempts: %v",
		evt.Type, evt.AggregateID, sub.Name(), b.maxAttempts, err)
}
