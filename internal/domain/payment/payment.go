// Package payment implements the payment aggregate. One aggregate per charge
// attempt; a declined charge is a first-class fact, not an error.
package payment

import (
	"github.com/commercefoundry/ordersaga/internal/domain/command"
	"github.com/commercefoundry/ordersaga/internal/domain/event"
)

// Command types accepted by the payment aggregate.
const (
	CommandProcess command.Type = "payment.process"
	CommandRefund  command.Type = "payment.refund"
)

// Event types produced by the payment aggregate.
const (
	EventProcessed event.Type = "payment.processed"
	EventFailed    event.Type = "payment.failed"
	EventRefunded  event.Type = "payment.refunded"
)

// Status is the payment lifecycle status.
type Status string

const (
	// StatusProcessed indicates the charge succeeded.
	StatusProcessed Status = "PROCESSED"
	// StatusFailed indicates the charge was declined.
	StatusFailed Status = "FAILED"
	// StatusRefunded indicates a processed charge was returned.
	StatusRefunded Status = "REFUNDED"
)

// maxChargeAmount is the per-transaction authorization ceiling. Charges above
// it are declined, which exercises the compensation path end to end.
const maxChargeAmount = 10_000.0

// State captures the replayed payment aggregate state.
type State struct {
	// Created indicates whether a charge attempt was recorded.
	Created bool
	// OrderID is the order this charge pays for.
	OrderID string
	// CustomerID identifies the paying customer.
	CustomerID string
	// Amount is the charged amount.
	Amount float64
	// ShippingAddress is carried for downstream shipping arrangement.
	ShippingAddress string
	// Status is the current charge status.
	Status Status
}
