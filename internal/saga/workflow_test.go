package saga

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/commercefoundry/ordersaga/internal/dispatcher"
	"github.com/commercefoundry/ordersaga/internal/domain/command"
	"github.com/commercefoundry/ordersaga/internal/domain/event"
	"github.com/commercefoundry/ordersaga/internal/domain/inventory"
	"github.com/commercefoundry/ordersaga/internal/domain/order"
	"github.com/commercefoundry/ordersaga/internal/domain/payment"
	"github.com/commercefoundry/ordersaga/internal/domain/shipping"
	"github.com/commercefoundry/ordersaga/internal/eventstore"
	"github.com/commercefoundry/ordersaga/internal/publisher"
)

// workflowHarness wires the full in-process loop: dispatcher appends,
// publisher fans out, the saga reacts and dispatches follow-up commands.
type workflowHarness struct {
	dispatcher *dispatcher.Dispatcher
	store      *eventstore.Memory
	sagaStore  *MemoryStore
	manager    *Manager
}

func newWorkflowHarness(t *testing.T) *workflowHarness {
	t.Helper()

	events := event.NewRegistry()
	commands := command.NewRegistry()
	registrations := []struct {
		events   func(*event.Registry) error
		commands func(*command.Registry) error
	}{
		{order.RegisterEvents, order.RegisterCommands},
		{inventory.RegisterEvents, inventory.RegisterCommands},
		{payment.RegisterEvents, payment.RegisterCommands},
		{shipping.RegisterEvents, shipping.RegisterCommands},
	}
	for _, r := range registrations {
		if err := r.events(events); err != nil {
			t.Fatalf("register events: %v", err)
		}
		if err := r.commands(commands); err != nil {
			t.Fatalf("register commands: %v", err)
		}
	}

	store := eventstore.NewMemory(events)
	bus := publisher.NewBus(publisher.WithLogger(quietLogger()))
	d := dispatcher.New(store, commands, dispatcher.WithPublisher(bus))
	routes := map[string]dispatcher.Handler{
		"order":     dispatcher.Route(order.Replay, order.Decide),
		"inventory": dispatcher.Route(inventory.Replay, inventory.Decide),
		"payment":   dispatcher.Route(payment.Replay, payment.Decide),
		"shipping":  dispatcher.Route(shipping.Replay, shipping.Decide),
	}
	for service, handler := range routes {
		if err := d.Handle(service, handler); err != nil {
			t.Fatalf("route %s: %v", service, err)
		}
	}

	sagaStore := NewMemoryStore()
	sender := SendFunc(func(ctx context.Context, cmd command.Command) error {
		_, err := d.Dispatch(ctx, cmd)
		return err
	})
	manager := NewManager(sagaStore, sender, WithLogger(quietLogger()))
	bus.Subscribe(manager)

	return &workflowHarness{dispatcher: d, store: store, sagaStore: sagaStore, manager: manager}
}

func (h *workflowHarness) addProduct(t *testing.T, productID string, quantity int) {
	t.Helper()
	payload, _ := json.Marshal(inventory.AddProductPayload{
		Name: "Deck Chair", Price: 29.90, Quantity: quantity,
	})
	_, err := h.dispatcher.Dispatch(context.Background(), command.Command{
		AggregateID: productID,
		Type:        inventory.CommandAddProduct,
		PayloadJSON: payload,
	})
	if err != nil {
		t.Fatalf("add product: %v", err)
	}
}

func (h *workflowHarness) createOrder(t *testing.T, productID string, quantity int, amount float64) string {
	t.Helper()
	payload, _ := json.Marshal(order.CreatePayload{
		CustomerID:      "cust-1",
		ProductID:       productID,
		Quantity:        quantity,
		Amount:          amount,
		ShippingAddress: "12 Harbor Way",
	})
	result, err := h.dispatcher.Dispatch(context.Background(), command.Command{
		Type:        order.CommandCreate,
		PayloadJSON: payload,
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return result.AggregateID
}

func (h *workflowHarness) orderState(t *testing.T, orderID string) order.State {
	t.Helper()
	stream, err := h.store.ReadStream(context.Background(), orderID)
	if err != nil {
		t.Fatalf("read order stream: %v", err)
	}
	return order.Replay(stream)
}

func (h *workflowHarness) productState(t *testing.T, productID string) inventory.State {
	t.Helper()
	stream, err := h.store.ReadStream(context.Background(), productID)
	if err != nil {
		t.Fatalf("read product stream: %v", err)
	}
	return inventory.Replay(stream)
}

func TestWorkflow_HappyPathConfirmsOrder(t *testing.T) {
	h := newWorkflowHarness(t)
	h.addProduct(t, "prod-1", 10)

	orderID := h.createOrder(t, "prod-1", 2, 59.80)

	got := h.orderState(t, orderID)
	if got.Status != order.StatusConfirmed {
		t.Fatalf("order status = %s, want %s", got.Status, order.StatusConfirmed)
	}

	// Exactly one confirmation event, no cancellation.
	stream, err := h.store.ReadStream(context.Background(), orderID)
	if err != nil {
		t.Fatalf("read order stream: %v", err)
	}
	confirmed, cancelled := 0, 0
	for _, evt := range stream {
		switch evt.Type {
		case order.EventConfirmed:
			confirmed++
		case order.EventCancelled:
			cancelled++
		}
	}
	if confirmed != 1 || cancelled != 0 {
		t.Fatalf("confirmed = %d, cancelled = %d, want 1 and 0", confirmed, cancelled)
	}

	product := h.productState(t, "prod-1")
	if product.Available != 8 {
		t.Fatalf("available = %d, want 8 after reservation", product.Available)
	}

	instance := getInstance(t, h.sagaStore, orderID)
	if instance.State != StateConfirmed || !instance.Ended {
		t.Fatalf("instance = %+v, want confirmed and ended", instance)
	}
}

func TestWorkflow_InsufficientInventoryCancelsOrder(t *testing.T) {
	h := newWorkflowHarness(t)
	h.addProduct(t, "prod-1", 1)

	orderID := h.createOrder(t, "prod-1", 5, 149.50)

	got := h.orderState(t, orderID)
	if got.Status != order.StatusCancelled {
		t.Fatalf("order status = %s, want %s", got.Status, order.StatusCancelled)
	}

	product := h.productState(t, "prod-1")
	if product.Available != 1 {
		t.Fatalf("available = %d, want untouched stock", product.Available)
	}

	instance := getInstance(t, h.sagaStore, orderID)
	if instance.State != StateCancelled || !instance.Ended {
		t.Fatalf("instance = %+v, want cancelled and ended", instance)
	}
}

func TestWorkflow_PaymentOverLimitReleasesStockAndCancels(t *testing.T) {
	h := newWorkflowHarness(t)
	h.addProduct(t, "prod-1", 10)

	// Amount above the charge ceiling makes the payment step emit a
	// failure fact after inventory was already reserved.
	orderID := h.createOrder(t, "prod-1", 2, 20_000)

	got := h.orderState(t, orderID)
	if got.Status != order.StatusCancelled {
		t.Fatalf("order status = %s, want %s", got.Status, order.StatusCancelled)
	}

	product := h.productState(t, "prod-1")
	if product.Available != 10 {
		t.Fatalf("available = %d, want stock restored after release", product.Available)
	}
	if product.Reserved(orderID) != 0 {
		t.Fatalf("reserved = %d, want released holding", product.Reserved(orderID))
	}

	instance := getInstance(t, h.sagaStore, orderID)
	if instance.State != StateCancelled || !instance.Ended {
		t.Fatalf("instance = %+v, want cancelled and ended", instance)
	}
}

func TestWorkflow_UnknownProductCancelsOrder(t *testing.T) {
	h := newWorkflowHarness(t)

	orderID := h.createOrder(t, "prod-ghost", 1, 10)

	got := h.orderState(t, orderID)
	if got.Status != order.StatusCancelled {
		t.Fatalf("order status = %s, want %s", got.Status, order.StatusCancelled)
	}
}
