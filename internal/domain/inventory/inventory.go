// Package inventory implements the inventory aggregate. One aggregate per
// product: the catalog entry plus its outstanding per-order reservations.
package inventory

import (
	"github.com/commercefoundry/ordersaga/internal/domain/command"
	"github.com/commercefoundry/ordersaga/internal/domain/event"
)

// Command types accepted by the inventory aggregate.
const (
	CommandAddProduct command.Type = "inventory.add_product"
	CommandReserve    command.Type = "inventory.reserve"
	CommandRelease    command.Type = "inventory.release"
)

// Event types produced by the inventory aggregate. Reservation outcomes are
// distinct facts: a failed reservation is an event the workflow reacts to,
// not an error surfaced to the reserving caller.
const (
	EventProductAdded      event.Type = "inventory.product_added"
	EventReserved          event.Type = "inventory.reserved"
	EventReservationFailed event.Type = "inventory.reservation_failed"
	EventReleased          event.Type = "inventory.released"
)

// State captures the replayed product aggregate state.
type State struct {
	// Created indicates whether the product exists in the catalog.
	Created bool
	// Name is the product display name.
	Name string
	// Price is the unit price.
	Price float64
	// Available is the quantity not held by any reservation.
	Available int
	// Reservations maps order id to reserved quantity.
	Reservations map[string]int
}

// Reserved returns the quantity held for an order, 0 when none.
func (s State) Reserved(orderID string) int {
	return s.Reservations[orderID]
}
