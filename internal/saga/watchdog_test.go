package saga

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/commercefoundry/ordersaga/internal/domain/command"
	"github.com/commercefoundry/ordersaga/internal/domain/event"
	"github.com/commercefoundry/ordersaga/internal/domain/inventory"
	"github.com/commercefoundry/ordersaga/internal/domain/order"
	"github.com/commercefoundry/ordersaga/internal/domain/payment"
)

func reservedEvent(orderID string) event.Event {
	return event.Event{
		AggregateID: "prod-1", Type: inventory.EventReserved, CorrelationID: orderID,
		PayloadJSON: []byte(`{"order_id":"` + orderID + `","quantity":2}`),
	}
}

func reservationFailedEvent(orderID string) event.Event {
	return event.Event{
		AggregateID: "prod-1", Type: inventory.EventReservationFailed, CorrelationID: orderID,
		PayloadJSON: []byte(`{"order_id":"` + orderID + `","reason":"insufficient inventory"}`),
	}
}

func TestSweep_TimesOutStalledReservation(t *testing.T) {
	sender := newFakeSender()
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	manager, store := newTestManager(t, sender,
		WithNowFunc(func() time.Time { return clock }), WithStepTimeout(time.Minute))
	watchdog := NewWatchdog(store, manager,
		WithWatchdogLogger(quietLogger()),
		WithWatchdogNowFunc(func() time.Time { return clock }))

	handle(t, manager, orderCreated(t, "ord-1"))

	// Before the deadline nothing expires.
	swept, err := watchdog.Sweep(context.Background(), 100)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if swept != 0 {
		t.Fatalf("swept = %d, want 0", swept)
	}

	clock = clock.Add(2 * time.Minute)
	swept, err = watchdog.Sweep(context.Background(), 100)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if swept != 1 {
		t.Fatalf("swept = %d, want 1", swept)
	}

	instance := getInstance(t, store, "ord-1")
	if instance.State != StateCancelled || !instance.Ended {
		t.Fatalf("instance = %+v, want cancelled via timeout", instance)
	}
	wantTypes(t, sender.types(t), []command.Type{inventory.CommandReserve, order.CommandCancel})
}

func TestSweep_TimesOutStalledPayment(t *testing.T) {
	sender := newFakeSender()
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	manager, store := newTestManager(t, sender,
		WithNowFunc(func() time.Time { return clock }), WithStepTimeout(time.Minute))
	watchdog := NewWatchdog(store, manager,
		WithWatchdogLogger(quietLogger()),
		WithWatchdogNowFunc(func() time.Time { return clock }))

	handle(t, manager, orderCreated(t, "ord-1"))
	handle(t, manager, reservedEvent("ord-1"))

	clock = clock.Add(2 * time.Minute)
	if _, err := watchdog.Sweep(context.Background(), 100); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	instance := getInstance(t, store, "ord-1")
	if instance.State != StateCancelled || !instance.Ended {
		t.Fatalf("instance = %+v, want cancelled via timeout", instance)
	}
	wantTypes(t, sender.types(t), []command.Type{
		inventory.CommandReserve,
		payment.CommandProcess,
		inventory.CommandRelease,
		order.CommandCancel,
	})
}

func TestTick_RetriesStrandedCompensation(t *testing.T) {
	sender := newFakeSender()
	sender.failOn[inventory.CommandRelease] = errors.New("dispatcher unavailable")
	sender.failOn[order.CommandCancel] = errors.New("dispatcher unavailable")
	manager, store := newTestManager(t, sender)
	watchdog := NewWatchdog(store, manager, WithWatchdogLogger(quietLogger()))

	handle(t, manager, orderCreated(t, "ord-1"))
	handle(t, manager, reservedEvent("ord-1"))
	handle(t, manager, event.Event{
		AggregateID: "pay-1", Type: payment.EventFailed, CorrelationID: "ord-1",
		PayloadJSON: []byte(`{"order_id":"ord-1","reason":"amount over limit","status":"FAILED"}`),
	})

	instance := getInstance(t, store, "ord-1")
	if instance.State != StateCompensating || len(instance.Pending) != 2 {
		t.Fatalf("instance = %+v, want compensating with owed commands", instance)
	}

	// No deadline is armed while compensating, so a sweep alone finds nothing.
	swept, err := watchdog.Sweep(context.Background(), 100)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if swept != 0 {
		t.Fatalf("swept = %d, want 0", swept)
	}

	delete(sender.failOn, inventory.CommandRelease)
	delete(sender.failOn, order.CommandCancel)
	watchdog.tick(context.Background(), 100)

	instance = getInstance(t, store, "ord-1")
	if instance.State != StateCancelled || !instance.Ended {
		t.Fatalf("instance = %+v, want cancelled once sends recover", instance)
	}
	wantTypes(t, sender.types(t), []command.Type{
		inventory.CommandReserve,
		payment.CommandProcess,
		inventory.CommandRelease,
		order.CommandCancel,
	})
}

func TestSweep_EndedInstancesUntouched(t *testing.T) {
	sender := newFakeSender()
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	manager, store := newTestManager(t, sender,
		WithNowFunc(func() time.Time { return clock }), WithStepTimeout(time.Minute))
	watchdog := NewWatchdog(store, manager,
		WithWatchdogLogger(quietLogger()),
		WithWatchdogNowFunc(func() time.Time { return clock }))

	handle(t, manager, orderCreated(t, "ord-1"))
	handle(t, manager, reservationFailedEvent("ord-1"))

	clock = clock.Add(time.Hour)
	swept, err := watchdog.Sweep(context.Background(), 100)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if swept != 0 {
		t.Fatalf("swept = %d, want 0 for ended instance", swept)
	}

	instance := getInstance(t, store, "ord-1")
	if instance.State != StateCancelled {
		t.Fatalf("state = %s, want %s", instance.State, StateCancelled)
	}
}
