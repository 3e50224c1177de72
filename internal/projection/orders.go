package projection

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/commercefoundry/ordersaga/internal/domain/event"
	"github.com/commercefoundry/ordersaga/internal/domain/order"
)

// OrderRecord is the order read model row.
type OrderRecord struct {
	OrderID         string
	CustomerID      string
	ProductID       string
	Quantity        int
	Amount          float64
	ShippingAddress string
	Status          order.Status
	Reason          string
	UpdatedAt       time.Time
}

// Orders maintains the order read model from order lifecycle events.
type Orders struct {
	tracker *appliedTracker

	mu      sync.RWMutex
	records map[string]OrderRecord
}

// NewOrders creates an empty order projection.
func NewOrders() *Orders {
	return &Orders{
		tracker: newAppliedTracker(),
		records: make(map[string]OrderRecord),
	}
}

// Name implements publisher.Subscriber.
func (p *Orders) Name() string { return "projection.orders" }

// Handle implements publisher.Subscriber. Payloads decode before the sequence
// is marked applied: a decode error must leave the event unapplied so the
// bus's redelivery is not skipped as a duplicate.
func (p *Orders) Handle(_ context.Context, evt event.Event) error {
	if evt.Type.Service() != "order" {
		return nil
	}

	var created order.CreatedPayload
	var cancelled order.CancelledPayload
	switch evt.Type {
	case order.EventCreated:
		if err := json.Unmarshal(evt.PayloadJSON, &created); err != nil {
			return fmt.Errorf("decode %s payload: %w", evt.Type, err)
		}
	case order.EventCancelled:
		if err := json.Unmarshal(evt.PayloadJSON, &cancelled); err != nil {
			return fmt.Errorf("decode %s payload: %w", evt.Type, err)
		}
	case order.EventConfirmed:
	default:
		return nil
	}

	if !p.tracker.advance(evt.AggregateID, evt.Seq) {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	record := p.records[evt.AggregateID]
	record.OrderID = evt.AggregateID
	record.UpdatedAt = evt.Timestamp

	switch evt.Type {
	case order.EventCreated:
		record.CustomerID = created.CustomerID
		record.ProductID = created.ProductID
		record.Quantity = created.Quantity
		record.Amount = created.Amount
		record.ShippingAddress = created.ShippingAddress
		record.Status = order.StatusCreated
	case order.EventConfirmed:
		record.Status = order.StatusConfirmed
	case order.EventCancelled:
		record.Status = order.StatusCancelled
		record.Reason = cancelled.Reason
	}

	p.records[evt.AggregateID] = record
	return nil
}

// Get returns the record for an order id.
func (p *Orders) Get(orderID string) (OrderRecord, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	record, ok := p.records[orderID]
	return record, ok
}

// List returns all records ordered by order id.
func (p *Orders) List() []OrderRecord {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]OrderRecord, 0, len(p.records))
	for _, record := range p.records {
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })
	return out
}
