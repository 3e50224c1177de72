// Package saga coordinates the order fulfillment workflow across the order,
// inventory, payment, and shipping aggregates.
//
// One instance exists per order id. Every observed event either advances the
// instance along the happy path or switches it onto the compensation path;
// the instance durably records its next state and the commands it owes before
// any command leaves the process, so a crash between save and send is
// recovered by resending the pending commands.
package saga

import (
	"encoding/json"
	"time"

	"github.com/commercefoundry/ordersaga/internal/domain/command"
)

// State is the saga lifecycle state.
type State string

const (
	// StateStarted means the order exists and a reservation was requested.
	StateStarted State = "STARTED"
	// StateInventoryReserved means stock is held and payment was requested.
	StateInventoryReserved State = "INVENTORY_RESERVED"
	// StatePaymentProcessed means the charge landed and shipping was requested.
	StatePaymentProcessed State = "PAYMENT_PROCESSED"
	// StateConfirmed is the terminal happy path outcome.
	StateConfirmed State = "CONFIRMED"
	// StateCompensating means compensation commands are still owed.
	StateCompensating State = "COMPENSATING"
	// StateCancelled is the terminal compensated outcome.
	StateCancelled State = "CANCELLED"
)

// Terminal reports whether the state accepts no further transitions.
func (s State) Terminal() bool {
	return s == StateConfirmed || s == StateCancelled
}

// WorkflowData accumulates the event facts later commands need.
type WorkflowData struct {
	OrderID         string  `json:"order_id"`
	CustomerID      string  `json:"customer_id"`
	ProductID       string  `json:"product_id"`
	Quantity        int     `json:"quantity"`
	Amount          float64 `json:"amount"`
	ShippingAddress string  `json:"shipping_address"`
	// PaymentID is the payment aggregate id, learned from payment.processed
	// and required to target a refund.
	PaymentID string `json:"payment_id,omitempty"`
	// FailureReason is carried by the failure event that switched the
	// instance onto the compensation path; the cancellation records it.
	FailureReason string `json:"failure_reason,omitempty"`
}

// PendingCommand is a command the instance owes but has not confirmed sending.
type PendingCommand struct {
	AggregateID string          `json:"aggregate_id,omitempty"`
	Type        command.Type    `json:"type"`
	PayloadJSON json.RawMessage `json:"payload"`
}

// Command converts a pending record into a dispatchable command. The saga
// stamps the order id as correlation so resulting events route back here.
func (p PendingCommand) Command(correlationID, causationID string) command.Command {
	return command.Command{
		AggregateID:   p.AggregateID,
		Type:          p.Type,
		CorrelationID: correlationID,
		CausationID:   causationID,
		PayloadJSON:   append([]byte(nil), p.PayloadJSON...),
	}
}

// Instance is the durable per-order saga record.
type Instance struct {
	SagaID         string
	CorrelationKey string
	State          State
	Workflow       WorkflowData
	// Pending holds commands recorded but not yet confirmed sent.
	Pending []PendingCommand
	// CausationID is the id of the event that produced the pending commands.
	CausationID string
	// Deadline is when the awaited next event counts as failed. Zero for
	// terminal states.
	Deadline  time.Time
	UpdatedAt time.Time
	// Ended marks the instance released; late events are discarded.
	Ended bool
}

// Clone returns a deep copy safe to mutate.
func (in Instance) Clone() Instance {
	out := in
	out.Pending = make([]PendingCommand, len(in.Pending))
	for i, p := range in.Pending {
		p.PayloadJSON = append(json.RawMessage(nil), p.PayloadJSON...)
		out.Pending[i] = p
	}
	return out
}
