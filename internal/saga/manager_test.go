package saga

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/commercefoundry/ordersaga/internal/domain/command"
	"github.com/commercefoundry/ordersaga/internal/domain/event"
	"github.com/commercefoundry/ordersaga/internal/domain/inventory"
	"github.com/commercefoundry/ordersaga/internal/domain/order"
	"github.com/commercefoundry/ordersaga/internal/domain/payment"
	"github.com/commercefoundry/ordersaga/internal/domain/shipping"
)

type fakeSender struct {
	mu     sync.Mutex
	sent   []command.Command
	failOn map[command.Type]error
}

func newFakeSender() *fakeSender {
	return &fakeSender{failOn: make(map[command.Type]error)}
}

func (s *fakeSender) Send(_ context.Context, cmd command.Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failOn[cmd.Type]; err != nil {
		return err
	}
	s.sent = append(s.sent, cmd)
	return nil
}

func (s *fakeSender) types(t *testing.T) []command.Type {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]command.Type, len(s.sent))
	for i, cmd := range s.sent {
		out[i] = cmd.Type
	}
	return out
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newTestManager(t *testing.T, sender Sender, opts ...ManagerOption) (*Manager, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	base := []ManagerOption{WithLogger(quietLogger())}
	manager := NewManager(store, sender, append(base, opts...)...)
	return manager, store
}

func orderCreated(t *testing.T, orderID string) event.Event {
	t.Helper()
	payload, err := json.Marshal(order.CreatedPayload{
		CustomerID:      "cust-1",
		ProductID:       "prod-1",
		Quantity:        2,
		Amount:          59.80,
		ShippingAddress: "12 Harbor Way",
		Status:          order.StatusCreated,
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return event.Event{AggregateID: orderID, Seq: 1, Type: order.EventCreated, PayloadJSON: payload}
}

func handle(t *testing.T, manager *Manager, evt event.Event) {
	t.Helper()
	if err := manager.Handle(context.Background(), evt); err != nil {
		t.Fatalf("handle %s: %v", evt.Type, err)
	}
}

func getInstance(t *testing.T, store Store, key string) Instance {
	t.Helper()
	instance, err := store.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("get instance %s: %v", key, err)
	}
	return instance
}

func wantTypes(t *testing.T, got, want []command.Type) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("commands = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("commands = %v, want %v", got, want)
		}
	}
}

func TestHandle_StartCreatesInstanceAndReserves(t *testing.T) {
	sender := newFakeSender()
	manager, store := newTestManager(t, sender)

	handle(t, manager, orderCreated(t, "ord-1"))

	instance := getInstance(t, store, "ord-1")
	if instance.State != StateStarted {
		t.Fatalf("state = %s, want %s", instance.State, StateStarted)
	}
	if instance.SagaID == "" {
		t.Fatal("expected a minted saga id")
	}
	if len(instance.Pending) != 0 {
		t.Fatalf("pending = %v, want drained", instance.Pending)
	}
	if instance.Deadline.IsZero() {
		t.Fatal("expected an armed deadline")
	}
	wantTypes(t, sender.types(t), []command.Type{inventory.CommandReserve})

	reserve := sender.sent[0]
	if reserve.AggregateID != "prod-1" || reserve.CorrelationID != "ord-1" {
		t.Fatalf("reserve = %+v", reserve)
	}
}

func TestHandle_DuplicateStartIsNoop(t *testing.T) {
	sender := newFakeSender()
	manager, _ := newTestManager(t, sender)

	handle(t, manager, orderCreated(t, "ord-1"))
	handle(t, manager, orderCreated(t, "ord-1"))

	wantTypes(t, sender.types(t), []command.Type{inventory.CommandReserve})
}

func TestHandle_UnknownCorrelationDropped(t *testing.T) {
	sender := newFakeSender()
	manager, store := newTestManager(t, sender)

	handle(t, manager, event.Event{
		AggregateID:   "prod-1",
		Type:          inventory.EventReserved,
		CorrelationID: "ord-missing",
		PayloadJSON:   []byte(`{"order_id":"ord-missing","quantity":2}`),
	})

	if _, err := store.Get(context.Background(), "ord-missing"); !errors.Is(err, ErrInstanceNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
	if got := sender.types(t); len(got) != 0 {
		t.Fatalf("commands = %v, want none", got)
	}
}

func TestHandle_HappyPathEndsConfirmed(t *testing.T) {
	sender := newFakeSender()
	manager, store := newTestManager(t, sender)

	handle(t, manager, orderCreated(t, "ord-1"))
	handle(t, manager, event.Event{
		AggregateID: "prod-1", Type: inventory.EventReserved, CorrelationID: "ord-1",
		PayloadJSON: []byte(`{"order_id":"ord-1","customer_id":"cust-1","quantity":2}`),
	})
	handle(t, manager, event.Event{
		AggregateID: "pay-1", Type: payment.EventProcessed, CorrelationID: "ord-1",
		PayloadJSON: []byte(`{"order_id":"ord-1","amount":59.80,"status":"PROCESSED"}`),
	})
	handle(t, manager, event.Event{
		AggregateID: "ship-1", Type: shipping.EventArranged, CorrelationID: "ord-1",
		PayloadJSON: []byte(`{"order_id":"ord-1","status":"ARRANGED"}`),
	})

	instance := getInstance(t, store, "ord-1")
	if instance.State != StateConfirmed || !instance.Ended {
		t.Fatalf("instance = %+v, want confirmed and ended", instance)
	}
	if !instance.Deadline.IsZero() {
		t.Fatalf("deadline = %v, want disarmed", instance.Deadline)
	}
	if instance.Workflow.PaymentID != "pay-1" {
		t.Fatalf("payment id = %q, want pay-1", instance.Workflow.PaymentID)
	}
	wantTypes(t, sender.types(t), []command.Type{
		inventory.CommandReserve,
		payment.CommandProcess,
		shipping.CommandArrange,
		order.CommandConfirm,
	})
}

func TestHandle_ReservationFailureCancels(t *testing.T) {
	sender := newFakeSender()
	manager, store := newTestManager(t, sender)

	handle(t, manager, orderCreated(t, "ord-1"))
	handle(t, manager, event.Event{
		AggregateID: "prod-1", Type: inventory.EventReservationFailed, CorrelationID: "ord-1",
		PayloadJSON: []byte(`{"order_id":"ord-1","reason":"insufficient inventory"}`),
	})

	instance := getInstance(t, store, "ord-1")
	if instance.State != StateCancelled || !instance.Ended {
		t.Fatalf("instance = %+v, want cancelled and ended", instance)
	}
	wantTypes(t, sender.types(t), []command.Type{inventory.CommandReserve, order.CommandCancel})
}

func TestHandle_PaymentFailureCompensatesInReverseOrder(t *testing.T) {
	sender := newFakeSender()
	manager, store := newTestManager(t, sender)

	handle(t, manager, orderCreated(t, "ord-1"))
	handle(t, manager, event.Event{
		AggregateID: "prod-1", Type: inventory.EventReserved, CorrelationID: "ord-1",
		PayloadJSON: []byte(`{"order_id":"ord-1","quantity":2}`),
	})
	failed := event.Event{
		AggregateID: "pay-1", Type: payment.EventFailed, CorrelationID: "ord-1",
		PayloadJSON: []byte(`{"order_id":"ord-1","reason":"amount over limit","status":"FAILED"}`),
	}
	handle(t, manager, failed)

	instance := getInstance(t, store, "ord-1")
	if instance.State != StateCancelled || !instance.Ended {
		t.Fatalf("instance = %+v, want cancelled and ended", instance)
	}
	wantTypes(t, sender.types(t), []command.Type{
		inventory.CommandReserve,
		payment.CommandProcess,
		inventory.CommandRelease,
		order.CommandCancel,
	})

	// Duplicate failure delivery after the instance ended is a no-op.
	handle(t, manager, failed)
	wantTypes(t, sender.types(t), []command.Type{
		inventory.CommandReserve,
		payment.CommandProcess,
		inventory.CommandRelease,
		order.CommandCancel,
	})
}

func TestHandle_CancelCarriesFailureReason(t *testing.T) {
	sender := newFakeSender()
	manager, _ := newTestManager(t, sender)

	handle(t, manager, orderCreated(t, "ord-1"))
	handle(t, manager, reservedEvent("ord-1"))
	handle(t, manager, event.Event{
		AggregateID: "pay-1", Type: payment.EventFailed, CorrelationID: "ord-1",
		PayloadJSON: []byte(`{"order_id":"ord-1","reason":"card declined","status":"FAILED"}`),
	})

	cancel := sender.sent[len(sender.sent)-1]
	if cancel.Type != order.CommandCancel {
		t.Fatalf("last command = %s, want %s", cancel.Type, order.CommandCancel)
	}
	var payload order.CancelPayload
	if err := json.Unmarshal(cancel.PayloadJSON, &payload); err != nil {
		t.Fatalf("decode cancel payload: %v", err)
	}
	if payload.Reason != "card declined" {
		t.Fatalf("reason = %q, want the failure event's reason", payload.Reason)
	}
}

func TestHandle_ShippingFailureCompensatesAllSteps(t *testing.T) {
	sender := newFakeSender()
	manager, store := newTestManager(t, sender)

	handle(t, manager, orderCreated(t, "ord-1"))
	handle(t, manager, event.Event{
		AggregateID: "prod-1", Type: inventory.EventReserved, CorrelationID: "ord-1",
		PayloadJSON: []byte(`{"order_id":"ord-1","quantity":2}`),
	})
	handle(t, manager, event.Event{
		AggregateID: "pay-1", Type: payment.EventProcessed, CorrelationID: "ord-1",
		PayloadJSON: []byte(`{"order_id":"ord-1","amount":59.80,"status":"PROCESSED"}`),
	})
	handle(t, manager, event.Event{
		AggregateID: "ship-1", Type: shipping.EventFailed, CorrelationID: "ord-1",
		PayloadJSON: []byte(`{"order_id":"ord-1","reason":"no carrier","status":"FAILED"}`),
	})

	instance := getInstance(t, store, "ord-1")
	if instance.State != StateCancelled || !instance.Ended {
		t.Fatalf("instance = %+v, want cancelled and ended", instance)
	}
	wantTypes(t, sender.types(t), []command.Type{
		inventory.CommandReserve,
		payment.CommandProcess,
		shipping.CommandArrange,
		payment.CommandRefund,
		inventory.CommandRelease,
		order.CommandCancel,
	})

	// The refund must target the payment aggregate observed earlier.
	refund := sender.sent[3]
	if refund.AggregateID != "pay-1" {
		t.Fatalf("refund aggregate = %q, want pay-1", refund.AggregateID)
	}
}

func TestHandle_OutOfOrderEventIgnored(t *testing.T) {
	sender := newFakeSender()
	manager, store := newTestManager(t, sender)

	handle(t, manager, orderCreated(t, "ord-1"))
	// payment.processed before inventory.reserved matches no row at STARTED.
	handle(t, manager, event.Event{
		AggregateID: "pay-1", Type: payment.EventProcessed, CorrelationID: "ord-1",
		PayloadJSON: []byte(`{"order_id":"ord-1","amount":59.80,"status":"PROCESSED"}`),
	})

	instance := getInstance(t, store, "ord-1")
	if instance.State != StateStarted {
		t.Fatalf("state = %s, want %s", instance.State, StateStarted)
	}
	wantTypes(t, sender.types(t), []command.Type{inventory.CommandReserve})
}

func TestHandle_ForwardSendFailureConvertsToFailurePath(t *testing.T) {
	sender := newFakeSender()
	sender.failOn[payment.CommandProcess] = errors.New("dispatcher unavailable")
	manager, store := newTestManager(t, sender)

	handle(t, manager, orderCreated(t, "ord-1"))
	handle(t, manager, event.Event{
		AggregateID: "prod-1", Type: inventory.EventReserved, CorrelationID: "ord-1",
		PayloadJSON: []byte(`{"order_id":"ord-1","quantity":2}`),
	})

	instance := getInstance(t, store, "ord-1")
	if instance.State != StateCancelled || !instance.Ended {
		t.Fatalf("instance = %+v, want cancelled via failure path", instance)
	}
	wantTypes(t, sender.types(t), []command.Type{
		inventory.CommandReserve,
		inventory.CommandRelease,
		order.CommandCancel,
	})
}

func TestRecoverPending_ResendsRecordedCommands(t *testing.T) {
	sender := newFakeSender()
	manager, store := newTestManager(t, sender)

	// Simulate a crash after the transition was recorded but before the
	// reservation command left the process.
	workflow := WorkflowData{
		OrderID: "ord-1", CustomerID: "cust-1", ProductID: "prod-1",
		Quantity: 2, Amount: 59.80, ShippingAddress: "12 Harbor Way",
	}
	err := store.Save(context.Background(), Instance{
		SagaID:         "saga-1",
		CorrelationKey: "ord-1",
		State:          StateStarted,
		Workflow:       workflow,
		Pending:        reserveInventoryCommands(workflow),
		UpdatedAt:      time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed instance: %v", err)
	}

	if err := manager.RecoverPending(context.Background(), 100); err != nil {
		t.Fatalf("recover: %v", err)
	}

	wantTypes(t, sender.types(t), []command.Type{inventory.CommandReserve})
	instance := getInstance(t, store, "ord-1")
	if len(instance.Pending) != 0 {
		t.Fatalf("pending = %v, want drained", instance.Pending)
	}
}

func TestHandle_ConcurrentKeysProceedIndependently(t *testing.T) {
	sender := newFakeSender()
	manager, store := newTestManager(t, sender)

	orderIDs := []string{"ord-1", "ord-2", "ord-3", "ord-4"}
	var wg sync.WaitGroup
	errs := make([]error, len(orderIDs))
	for i, orderID := range orderIDs {
		wg.Add(1)
		go func(i int, orderID string) {
			defer wg.Done()
			errs[i] = manager.Handle(context.Background(), orderCreated(t, orderID))
		}(i, orderID)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("handle %s: %v", orderIDs[i], err)
		}
	}

	for _, orderID := range orderIDs {
		if got := getInstance(t, store, orderID).State; got != StateStarted {
			t.Fatalf("%s state = %s, want %s", orderID, got, StateStarted)
		}
	}
	if got := len(sender.types(t)); got != 4 {
		t.Fatalf("commands sent = %d, want 4", got)
	}
}
