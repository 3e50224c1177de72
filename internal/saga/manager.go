package saga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/commercefoundry/ordersaga/internal/domain/command"
	"github.com/commercefoundry/ordersaga/internal/domain/event"
	"github.com/commercefoundry/ordersaga/internal/domain/inventory"
	"github.com/commercefoundry/ordersaga/internal/domain/order"
	"github.com/commercefoundry/ordersaga/internal/domain/payment"
	"github.com/commercefoundry/ordersaga/internal/domain/shipping"
	apperrors "github.com/commercefoundry/ordersaga/internal/platform/errors"
	"github.com/commercefoundry/ordersaga/internal/platform/id"
)

const tracerName = "github.com/commercefoundry/ordersaga/internal/saga"

// Sender delivers a command to the dispatcher.
type Sender interface {
	Send(ctx context.Context, cmd command.Command) error
}

// SendFunc adapts a function to the Sender interface.
type SendFunc func(ctx context.Context, cmd command.Command) error

// Send implements Sender.
func (f SendFunc) Send(ctx context.Context, cmd command.Command) error {
	return f(ctx, cmd)
}

// transition is one row of the saga state machine. The table is the complete
// routing: an event without a row for the instance's current state is ignored.
type transition struct {
	next     State
	commands func(w WorkflowData) []PendingCommand
}

// transitions maps current state and observed event to the next step. The
// start row lives in Handle because it creates the instance. Compensation
// rows emit their commands in reverse order of the completed forward steps.
var transitions = map[State]map[event.Type]transition{
	StateStarted: {
		inventory.EventReserved: {
			next:     StateInventoryReserved,
			commands: processPaymentCommands,
		},
		inventory.EventReservationFailed: {
			next:     StateCompensating,
			commands: cancelOrderCommands,
		},
	},
	StateInventoryReserved: {
		payment.EventProcessed: {
			next:     StatePaymentProcessed,
			commands: arrangeShippingCommands,
		},
		payment.EventFailed: {
			next:     StateCompensating,
			commands: releaseThenCancelCommands,
		},
	},
	StatePaymentProcessed: {
		shipping.EventArranged: {
			next:     StateConfirmed,
			commands: confirmOrderCommands,
		},
		shipping.EventFailed: {
			next:     StateCompensating,
			commands: refundReleaseCancelCommands,
		},
	},
}

// forwardFailures maps a forward command to the failure event its step
// produces, used when sending the command itself fails and when the step's
// deadline expires.
var forwardFailures = map[command.Type]event.Type{
	inventory.CommandReserve: inventory.EventReservationFailed,
	payment.CommandProcess:   payment.EventFailed,
	shipping.CommandArrange:  shipping.EventFailed,
}

// Manager advances saga instances in reaction to committed events.
type Manager struct {
	store  Store
	sender Sender

	logger      *log.Logger
	newID       func() string
	now         func() time.Time
	stepTimeout time.Duration
	tracer      trace.Tracer

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the manager logger.
func WithLogger(logger *log.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

// WithNowFunc sets the clock used for deadlines and timestamps.
func WithNowFunc(f func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = f }
}

// WithIDFunc sets the saga id minting function.
func WithIDFunc(f func() string) ManagerOption {
	return func(m *Manager) { m.newID = f }
}

// WithStepTimeout sets how long the saga waits for each step's outcome
// before treating it as failed.
func WithStepTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) { m.stepTimeout = d }
}

// NewManager creates a saga manager.
func NewManager(store Store, sender Sender, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:       store,
		sender:      sender,
		logger:      log.Default(),
		newID:       id.MustNewID,
		now:         time.Now,
		stepTimeout: 2 * time.Minute,
		tracer:      otel.Tracer(tracerName),
		locks:       make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name implements publisher.Subscriber.
func (m *Manager) Name() string { return "saga.order-fulfillment" }

// Handle implements publisher.Subscriber. It routes the event to the
// instance identified by its correlation key, applies at most one transition
// under that key's critical section, and sends the recorded commands.
func (m *Manager) Handle(ctx context.Context, evt event.Event) error {
	for {
		followUp, err := m.process(ctx, evt)
		if err != nil {
			return err
		}
		if followUp == nil {
			return nil
		}
		// A forward command that could not be sent becomes the failure
		// event of its own step and drives the compensation path.
		evt = *followUp
	}
}

func (m *Manager) process(ctx context.Context, evt event.Event) (*event.Event, error) {
	key := correlationKey(evt)
	if key == "" {
		m.logger.Printf("saga: dropping %s without correlation key", evt.Type)
		return nil, nil
	}

	ctx, span := m.tracer.Start(ctx, "saga.handle", trace.WithAttributes(
		attribute.String("event.type", string(evt.Type)),
		attribute.String("saga.correlation_key", key),
	))
	defer span.End()

	applied, err := m.transition(ctx, evt, key)
	if err != nil || !applied {
		return nil, err
	}
	return m.drain(ctx, key)
}

// transition applies at most one state machine row under the key's critical
// section and durably records the next state with its owed commands before
// anything is sent. Returns false when the event causes no transition.
func (m *Manager) transition(ctx context.Context, evt event.Event, key string) (bool, error) {
	unlock := m.lock(key)
	defer unlock()

	instance, err := m.store.Get(ctx, key)
	switch {
	case errors.Is(err, ErrInstanceNotFound):
		if evt.Type != order.EventCreated {
			m.logger.Printf("saga: dropping %s for unknown instance %s", evt.Type, key)
			return false, nil
		}
		instance, err = m.start(evt, key)
		if err != nil {
			return false, err
		}
	case err != nil:
		return false, fmt.Errorf("load saga instance %s: %w", key, err)
	case evt.Type == order.EventCreated:
		// Duplicate start delivery.
		return false, nil
	case instance.Ended:
		m.logger.Printf("saga: dropping %s for ended instance %s", evt.Type, key)
		return false, nil
	default:
		row, ok := transitions[instance.State][evt.Type]
		if !ok {
			m.logger.Printf("saga: ignoring %s in state %s for %s", evt.Type, instance.State, key)
			return false, nil
		}
		instance.Workflow = mergeWorkflow(instance.Workflow, evt)
		instance.State = row.next
		instance.Pending = row.commands(instance.Workflow)
		instance.CausationID = causationID(evt)
	}

	now := m.now().UTC()
	instance.UpdatedAt = now
	instance.Deadline = time.Time{}
	if !instance.State.Terminal() && instance.State != StateCompensating {
		instance.Deadline = now.Add(m.stepTimeout)
	}
	if err := m.store.Save(ctx, instance); err != nil {
		return false, fmt.Errorf("save saga instance %s: %w", key, err)
	}
	return true, nil
}

// drain sends the instance's owed commands in order. The key lock is not
// held across a send: with a synchronous in-process dispatcher the resulting
// events re-enter Handle on the same key before Send returns, so each
// confirmation re-reads the instance instead of trusting a stale copy.
func (m *Manager) drain(ctx context.Context, key string) (*event.Event, error) {
	for {
		unlock := m.lock(key)
		instance, err := m.store.Get(ctx, key)
		unlock()
		if errors.Is(err, ErrInstanceNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("load saga instance %s: %w", key, err)
		}
		if len(instance.Pending) == 0 {
			return nil, m.settle(ctx, key)
		}

		pending := instance.Pending[0]
		err = m.sender.Send(ctx, pending.Command(key, instance.CausationID))
		switch {
		case err == nil:
		case errors.Is(err, apperrors.New(apperrors.CodeCommandRejected, "")):
			// The aggregate declined the command, so its effect already
			// holds or can never hold. Resending cannot change that.
			m.logger.Printf("saga %s: command %s rejected: %v", key, pending.Type, err)
		default:
			if failure, ok := forwardFailures[pending.Type]; ok {
				m.logger.Printf("saga %s: send %s failed, converting to %s: %v",
					key, pending.Type, failure, err)
				if err := m.confirmSent(ctx, key, pending); err != nil {
					return nil, err
				}
				evt := m.failureEvent(instance, failure, fmt.Sprintf("send %s: %v", pending.Type, err))
				return &evt, nil
			}
			// Compensation commands stay pending; recovery resends them.
			m.logger.Printf("saga %s: send %s failed, left pending: %v", key, pending.Type, err)
			return nil, nil
		}
		if err := m.confirmSent(ctx, key, pending); err != nil {
			return nil, err
		}
	}
}

// confirmSent removes one sent command from the instance's pending list. A
// transition that happened during the send may already have replaced the
// list; a missing entry then means the command is accounted for.
func (m *Manager) confirmSent(ctx context.Context, key string, sent PendingCommand) error {
	unlock := m.lock(key)
	defer unlock()

	instance, err := m.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("load saga instance %s: %w", key, err)
	}
	for i, pending := range instance.Pending {
		if pending.Type == sent.Type && pending.AggregateID == sent.AggregateID {
			instance.Pending = append(instance.Pending[:i], instance.Pending[i+1:]...)
			break
		}
	}
	return m.settleLocked(ctx, instance)
}

// settle collapses a fully drained instance into its resting state.
func (m *Manager) settle(ctx context.Context, key string) error {
	unlock := m.lock(key)
	defer unlock()

	instance, err := m.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("load saga instance %s: %w", key, err)
	}
	return m.settleLocked(ctx, instance)
}

func (m *Manager) settleLocked(ctx context.Context, instance Instance) error {
	if len(instance.Pending) == 0 {
		if instance.State == StateCompensating {
			instance.State = StateCancelled
		}
		if instance.State.Terminal() {
			instance.Ended = true
			instance.Deadline = time.Time{}
		}
	}
	instance.UpdatedAt = m.now().UTC()
	if err := m.store.Save(ctx, instance); err != nil {
		return fmt.Errorf("save saga instance %s: %w", instance.CorrelationKey, err)
	}
	return nil
}

// RecoverPending resends commands recorded but not confirmed sent. It runs
// at startup and on every watchdog tick and is safe to repeat; delivery is
// at least once by contract.
func (m *Manager) RecoverPending(ctx context.Context, limit int) error {
	instances, err := m.store.ListPending(ctx, limit)
	if err != nil {
		return fmt.Errorf("list pending saga instances: %w", err)
	}
	for _, instance := range instances {
		followUp, err := m.drain(ctx, instance.CorrelationKey)
		if err != nil {
			return err
		}
		if followUp != nil {
			if err := m.Handle(ctx, *followUp); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Manager) start(evt event.Event, key string) (Instance, error) {
	var payload order.CreatedPayload
	if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
		return Instance{}, fmt.Errorf("decode %s payload: %w", evt.Type, err)
	}
	workflow := WorkflowData{
		OrderID:         evt.AggregateID,
		CustomerID:      payload.CustomerID,
		ProductID:       payload.ProductID,
		Quantity:        payload.Quantity,
		Amount:          payload.Amount,
		ShippingAddress: payload.ShippingAddress,
	}
	return Instance{
		SagaID:         m.newID(),
		CorrelationKey: key,
		State:          StateStarted,
		Workflow:       workflow,
		Pending:        reserveInventoryCommands(workflow),
		CausationID:    causationID(evt),
	}, nil
}

func (m *Manager) failureEvent(instance Instance, t event.Type, reason string) event.Event {
	var payloadJSON []byte
	var aggregateID string
	switch t {
	case inventory.EventReservationFailed:
		aggregateID = instance.Workflow.ProductID
		payloadJSON, _ = json.Marshal(inventory.ReservationFailedPayload{
			OrderID: instance.Workflow.OrderID,
			Reason:  reason,
		})
	case payment.EventFailed:
		aggregateID = instance.Workflow.PaymentID
		payloadJSON, _ = json.Marshal(payment.FailedPayload{
			OrderID: instance.Workflow.OrderID,
			Reason:  reason,
			Status:  payment.StatusFailed,
		})
	case shipping.EventFailed:
		payloadJSON, _ = json.Marshal(shipping.FailedPayload{
			OrderID: instance.Workflow.OrderID,
			Reason:  reason,
			Status:  shipping.StatusFailed,
		})
	}
	return event.Event{
		AggregateID:   aggregateID,
		Type:          t,
		Timestamp:     m.now().UTC(),
		CorrelationID: instance.CorrelationKey,
		PayloadJSON:   payloadJSON,
	}
}

func (m *Manager) lock(key string) func() {
	m.mu.Lock()
	lock, ok := m.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[key] = lock
	}
	m.mu.Unlock()
	lock.Lock()
	return lock.Unlock
}

// correlationKey extracts the order id an event belongs to. Order events may
// omit the explicit correlation id because their aggregate id is the key.
func correlationKey(evt event.Event) string {
	if evt.CorrelationID != "" {
		return evt.CorrelationID
	}
	if evt.Type.Service() == "order" {
		return evt.AggregateID
	}
	return ""
}

func causationID(evt event.Event) string {
	return fmt.Sprintf("%s#%d", evt.AggregateID, evt.Seq)
}

// mergeWorkflow folds the observed event's facts into the workflow data.
func mergeWorkflow(w WorkflowData, evt event.Event) WorkflowData {
	switch evt.Type {
	case payment.EventProcessed:
		w.PaymentID = evt.AggregateID
	case inventory.EventReservationFailed:
		var payload inventory.ReservationFailedPayload
		if json.Unmarshal(evt.PayloadJSON, &payload) == nil && payload.Reason != "" {
			w.FailureReason = payload.Reason
		}
	case payment.EventFailed:
		var payload payment.FailedPayload
		if json.Unmarshal(evt.PayloadJSON, &payload) == nil && payload.Reason != "" {
			w.FailureReason = payload.Reason
		}
	case shipping.EventFailed:
		var payload shipping.FailedPayload
		if json.Unmarshal(evt.PayloadJSON, &payload) == nil && payload.Reason != "" {
			w.FailureReason = payload.Reason
		}
	}
	return w
}

func mustJSON(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return raw
}

func reserveInventoryCommands(w WorkflowData) []PendingCommand {
	return []PendingCommand{{
		AggregateID: w.ProductID,
		Type:        inventory.CommandReserve,
		PayloadJSON: mustJSON(inventory.ReservePayload{
			OrderID:    w.OrderID,
			CustomerID: w.CustomerID,
			Quantity:   w.Quantity,
		}),
	}}
}

func processPaymentCommands(w WorkflowData) []PendingCommand {
	return []PendingCommand{{
		Type: payment.CommandProcess,
		PayloadJSON: mustJSON(payment.ProcessPayload{
			OrderID:         w.OrderID,
			CustomerID:      w.CustomerID,
			Amount:          w.Amount,
			ShippingAddress: w.ShippingAddress,
		}),
	}}
}

func arrangeShippingCommands(w WorkflowData) []PendingCommand {
	return []PendingCommand{{
		Type: shipping.CommandArrange,
		PayloadJSON: mustJSON(shipping.ArrangePayload{
			OrderID:         w.OrderID,
			ProductID:       w.ProductID,
			Quantity:        w.Quantity,
			ShippingAddress: w.ShippingAddress,
		}),
	}}
}

func confirmOrderCommands(w WorkflowData) []PendingCommand {
	return []PendingCommand{{
		AggregateID: w.OrderID,
		Type:        order.CommandConfirm,
		PayloadJSON: json.RawMessage(`{}`),
	}}
}

// cancelCommand carries the observed failure reason into the order record.
// The fallback covers synthetic failure events without a reason of their own.
func cancelCommand(w WorkflowData, fallback string) PendingCommand {
	reason := w.FailureReason
	if reason == "" {
		reason = fallback
	}
	return PendingCommand{
		AggregateID: w.OrderID,
		Type:        order.CommandCancel,
		PayloadJSON: mustJSON(order.CancelPayload{Reason: reason}),
	}
}

func cancelOrderCommands(w WorkflowData) []PendingCommand {
	return []PendingCommand{cancelCommand(w, "Inventory reservation failed")}
}

func releaseThenCancelCommands(w WorkflowData) []PendingCommand {
	return []PendingCommand{
		{
			AggregateID: w.ProductID,
			Type:        inventory.CommandRelease,
			PayloadJSON: mustJSON(inventory.ReleasePayload{
				OrderID:  w.OrderID,
				Quantity: w.Quantity,
			}),
		},
		cancelCommand(w, "Payment failed"),
	}
}

func refundReleaseCancelCommands(w WorkflowData) []PendingCommand {
	return []PendingCommand{
		{
			AggregateID: w.PaymentID,
			Type:        payment.CommandRefund,
			PayloadJSON: mustJSON(payment.RefundPayload{
				OrderID: w.OrderID,
				Amount:  w.Amount,
			}),
		},
		{
			AggregateID: w.ProductID,
			Type:        inventory.CommandRelease,
			PayloadJSON: mustJSON(inventory.ReleasePayload{
				OrderID:  w.OrderID,
				Quantity: w.Quantity,
			}),
		},
		cancelCommand(w, "Shipping failed"),
	}
}
