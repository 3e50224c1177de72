package projection

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/commercefoundry/ordersaga/internal/domain/event"
	"github.com/commercefoundry/ordersaga/internal/domain/inventory"
)

// ProductRecord is the product catalog read model row.
type ProductRecord struct {
	ProductID string
	Name      string
	Price     float64
	// Quantity is the currently available stock after reservations.
	Quantity int
}

// Products maintains the product catalog read model from inventory events.
type Products struct {
	tracker *appliedTracker

	mu      sync.RWMutex
	records map[string]ProductRecord
}

// NewProducts creates an empty product projection.
func NewProducts() *Products {
	return &Products{
		tracker: newAppliedTracker(),
		records: make(map[string]ProductRecord),
	}
}

// Name implements publisher.Subscriber.
func (p *Products) Name() string { return "projection.products" }

// Handle implements publisher.Subscriber. Payloads decode before the sequence
// is marked applied so a decode error leaves the event redeliverable.
func (p *Products) Handle(_ context.Context, evt event.Event) error {
	if evt.Type.Service() != "inventory" {
		return nil
	}

	var added inventory.ProductAddedPayload
	var reserved inventory.ReservedPayload
	var released inventory.ReleasedPayload
	switch evt.Type {
	case inventory.EventProductAdded:
		if err := json.Unmarshal(evt.PayloadJSON, &added); err != nil {
			return fmt.Errorf("decode %s payload: %w", evt.Type, err)
		}
	case inventory.EventReserved:
		if err := json.Unmarshal(evt.PayloadJSON, &reserved); err != nil {
			return fmt.Errorf("decode %s payload: %w", evt.Type, err)
		}
	case inventory.EventReleased:
		if err := json.Unmarshal(evt.PayloadJSON, &released); err != nil {
			return fmt.Errorf("decode %s payload: %w", evt.Type, err)
		}
	default:
		// Reservation failures change no stock.
		return nil
	}

	if !p.tracker.advance(evt.AggregateID, evt.Seq) {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	record := p.records[evt.AggregateID]
	record.ProductID = evt.AggregateID

	switch evt.Type {
	case inventory.EventProductAdded:
		record.Name = added.Name
		record.Price = added.Price
		record.Quantity = added.Quantity
	case inventory.EventReserved:
		record.Quantity -= reserved.Quantity
	case inventory.EventReleased:
		record.Quantity += released.Quantity
	}

	p.records[evt.AggregateID] = record
	return nil
}

// Get returns the record for a product id.
func (p *Products) Get(productID string) (ProductRecord, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	record, ok := p.records[productID]
	return record, ok
}

// List returns all records ordered by product id.
func (p *Products) List() []ProductRecord {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]ProductRecord, 0, len(p.records))
	for _, record := range p.records {
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}
