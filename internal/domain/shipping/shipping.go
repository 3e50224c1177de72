// Package shipping implements the shipping aggregate: one shipment
// arrangement per order.
package shipping

import (
	"github.com/commercefoundry/ordersaga/internal/domain/command"
	"github.com/commercefoundry/ordersaga/internal/domain/event"
)

// Command types accepted by the shipping aggregate.
const (
	CommandArrange command.Type = "shipping.arrange"
)

// Event types produced by the shipping aggregate. shipping.failed is also
// synthesized by the saga watchdog when an arrangement times out.
const (
	EventArranged event.Type = "shipping.arranged"
	EventFailed   event.Type = "shipping.failed"
)

// Status is the shipment lifecycle status.
type Status string

const (
	// StatusArranged indicates a carrier pickup was scheduled.
	StatusArranged Status = "ARRANGED"
	// StatusFailed indicates no shipment could be arranged.
	StatusFailed Status = "FAILED"
)

// State captures the replayed shipment aggregate state.
type State struct {
	// Created indicates whether an arrangement attempt was recorded.
	Created bool
	// OrderID is the order being shipped.
	OrderID string
	// ProductID identifies the shipped product.
	ProductID string
	// Quantity is the shipped quantity.
	Quantity int
	// Address is the delivery address.
	Address string
	// Status is the current shipment status.
	Status Status
}
