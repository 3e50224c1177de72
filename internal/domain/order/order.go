// Package order implements the order aggregate: the entry point of the
// purchase workflow and the aggregate whose eventual status is the only
// outcome the original caller can observe.
package order

import (
	"github.com/commercefoundry/ordersaga/internal/domain/command"
	"github.com/commercefoundry/ordersaga/internal/domain/event"
)

// Command types accepted by the order aggregate.
const (
	CommandCreate  command.Type = "order.create"
	CommandConfirm command.Type = "order.confirm"
	CommandCancel  command.Type = "order.cancel"
)

// Event types produced by the order aggregate.
const (
	EventCreated   event.Type = "order.created"
	EventConfirmed event.Type = "order.confirmed"
	EventCancelled event.Type = "order.cancelled"
)

// Status is the order lifecycle status.
type Status string

const (
	// StatusCreated is the initial status after order.created.
	StatusCreated Status = "CREATED"
	// StatusConfirmed is terminal: every workflow step completed.
	StatusConfirmed Status = "CONFIRMED"
	// StatusCancelled is terminal: the workflow was compensated.
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether the status accepts no further transitions.
func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusCancelled
}

// State captures the replayed order aggregate state used by the decider.
// Every field is derived exclusively from the event stream.
type State struct {
	// Created indicates whether order.create has been successfully applied.
	Created bool
	// CustomerID identifies the purchasing customer.
	CustomerID string
	// ProductID identifies the purchased product.
	ProductID string
	// Quantity is the purchased quantity.
	Quantity int
	// Amount is the total order amount.
	Amount float64
	// Status is the current lifecycle status.
	Status Status
	// CancelReason records why a cancelled order was cancelled.
	CancelReason string
}
