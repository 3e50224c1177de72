// Package dispatcher routes validated commands to aggregate deciders and
// appends the resulting events with optimistic concurrency control.
//
// The routing table is explicit: each aggregate service registers a handler
// under its command type prefix, and an unrouted command is an error rather
// than a silent drop. The dispatch cycle is read, replay, decide, append;
// on a version conflict the full cycle reruns against the fresh stream up
// to a bounded number of attempts.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/commercefoundry/ordersaga/internal/domain/command"
	"github.com/commercefoundry/ordersaga/internal/domain/event"
	"github.com/commercefoundry/ordersaga/internal/eventstore"
	apperrors "github.com/commercefoundry/ordersaga/internal/platform/errors"
	"github.com/commercefoundry/ordersaga/internal/platform/id"
)

const tracerName = "github.com/commercefoundry/ordersaga/internal/dispatcher"

// ErrNoRoute indicates no handler is registered for the command's service.
var ErrNoRoute = errors.New("no handler routed for command service")

// Handler decides one command against an aggregate's replayed stream.
type Handler func(stream []event.Event, cmd command.Command, now func() time.Time) command.Decision

// Route adapts a typed replay/decide pair into a stream-level handler.
func Route[S any](replay func([]event.Event) S, decide func(S, command.Command, func() time.Time) command.Decision) Handler {
	return func(stream []event.Event, cmd command.Command, now func() time.Time) command.Decision {
		return decide(replay(stream), cmd, now)
	}
}

// Publisher receives events after they commit.
type Publisher interface {
	Publish(ctx context.Context, events []event.Event)
}

// RejectedError carries the domain rejections of a declined command.
type RejectedError struct {
	CommandType command.Type
	Rejections  []command.Rejection
}

func (e *RejectedError) Error() string {
	if len(e.Rejections) == 0 {
		return fmt.Sprintf("command %s rejected", e.CommandType)
	}
	first := e.Rejections[0]
	return fmt.Sprintf("command %s rejected: %s: %s", e.CommandType, first.Code, first.Message)
}

// Unwrap maps every rejection onto the shared rejected error code.
func (e *RejectedError) Unwrap() error {
	return apperrors.New(apperrors.CodeCommandRejected, e.Error())
}

// Result describes a successful dispatch.
type Result struct {
	AggregateID string
	// Version is the stream head after the append.
	Version uint64
	// Events are the committed events in persisted form.
	Events []event.Event
}

// Dispatcher validates, routes, and executes commands.
type Dispatcher struct {
	store    eventstore.Store
	commands *command.Registry
	routes   map[string]Handler

	publisher   Publisher
	newID       func() string
	now         func() time.Time
	maxAttempts int
	tracer      trace.Tracer
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithPublisher sets the post-commit event publisher.
func WithPublisher(p Publisher) Option {
	return func(d *Dispatcher) { d.publisher = p }
}

// WithIDFunc sets the aggregate id minting function.
func WithIDFunc(f func() string) Option {
	return func(d *Dispatcher) { d.newID = f }
}

// WithNowFunc sets the clock used to stamp decided events.
func WithNowFunc(f func() time.Time) Option {
	return func(d *Dispatcher) { d.now = f }
}

// WithMaxAttempts bounds version conflict retries.
func WithMaxAttempts(n int) Option {
	return func(d *Dispatcher) { d.maxAttempts = n }
}

// New creates a dispatcher with an empty routing table.
func New(store eventstore.Store, commands *command.Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:       store,
		commands:    commands,
		routes:      make(map[string]Handler),
		newID:       id.MustNewID,
		now:         time.Now,
		maxAttempts: 3,
		tracer:      otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.maxAttempts < 1 {
		d.maxAttempts = 1
	}
	return d
}

// Handle routes all commands of one service prefix to handler. The prefix is
// the segment before the first dot in the command type, so "order" routes
// order.create, order.confirm, and order.cancel.
func (d *Dispatcher) Handle(service string, handler Handler) error {
	service = strings.TrimSpace(service)
	if service == "" || handler == nil {
		return errors.New("service and handler are required")
	}
	if _, exists := d.routes[service]; exists {
		return fmt.Errorf("service already routed: %s", service)
	}
	d.routes[service] = handler
	return nil
}

// Dispatch validates cmd, replays its aggregate, decides, and appends the
// resulting events. A rejection returns *RejectedError and appends nothing.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd command.Command) (Result, error) {
	ctx, span := d.tracer.Start(ctx, "dispatcher.dispatch", trace.WithAttributes(
		attribute.String("command.type", string(cmd.Type)),
	))
	defer span.End()

	result, err := d.dispatch(ctx, cmd)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}
	span.SetAttributes(
		attribute.String("command.aggregate_id", result.AggregateID),
		attribute.Int64("command.version", int64(result.Version)),
	)
	return result, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, cmd command.Command) (Result, error) {
	cmd, err := d.commands.ValidateForDispatch(cmd)
	if err != nil {
		return Result{}, err
	}
	def, _ := d.commands.Definition(cmd.Type)

	service, _, ok := strings.Cut(string(cmd.Type), ".")
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrNoRoute, cmd.Type)
	}
	handler, ok := d.routes[service]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrNoRoute, cmd.Type)
	}

	// A freshly minted id cannot have a stream yet, so the first attempt
	// skips the read and appends at version zero.
	minted := false
	if def.Creates && cmd.AggregateID == "" {
		cmd.AggregateID = d.newID()
		minted = true
	}

	var lastErr error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		var stream []event.Event
		if !minted || attempt > 1 {
			stream, err = d.store.ReadStream(ctx, cmd.AggregateID)
			if err != nil {
				return Result{}, fmt.Errorf("read stream %s: %w", cmd.AggregateID, err)
			}
		}
		baseVersion := uint64(0)
		if len(stream) > 0 {
			baseVersion = stream[len(stream)-1].Seq
		}

		decision := handler(stream, cmd, d.now)
		if len(decision.Rejections) > 0 {
			return Result{}, &RejectedError{CommandType: cmd.Type, Rejections: decision.Rejections}
		}
		if len(decision.Events) == 0 {
			return Result{AggregateID: cmd.AggregateID, Version: baseVersion}, nil
		}

		newVersion, err := d.store.Append(ctx, cmd.AggregateID, baseVersion, decision.Events)
		if errors.Is(err, eventstore.ErrConcurrencyConflict) {
			lastErr = err
			continue
		}
		if err != nil {
			return Result{}, fmt.Errorf("append to %s: %w", cmd.AggregateID, err)
		}

		committed, err := d.store.ListEvents(ctx, cmd.AggregateID, baseVersion, len(decision.Events))
		if err != nil {
			// The append succeeded; fall back to the decided events with
			// locally assigned sequence numbers.
			committed = decision.Events
			for i := range committed {
				committed[i].AggregateID = cmd.AggregateID
				committed[i].Seq = baseVersion + uint64(i) + 1
			}
		}
		if d.publisher != nil {
			d.publisher.Publish(ctx, committed)
		}
		return Result{AggregateID: cmd.AggregateID, Version: newVersion, Events: committed}, nil
	}
	return Result{}, fmt.Errorf("dispatch %s exhausted %d attempts: %w", cmd.Type, d.maxAttempts, lastErr)
}
