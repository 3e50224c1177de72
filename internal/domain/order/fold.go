package order

import (
	"encoding/json"

	"github.com/commercefoundry/ordersaga/internal/domain/event"
)

// Fold applies an event to order state. It is pure and total over the order
// event types; unknown types leave state untouched so replay stays tolerant
// of later schema additions.
func Fold(state State, evt event.Event) State {
	switch evt.Type {
	case EventCreated:
		var payload CreatedPayload
		_ = json.Unmarshal(evt.PayloadJSON, &payload)
		state.Created = true
		state.CustomerID = payload.CustomerID
		state.ProductID = payload.ProductID
		state.Quantity = payload.Quantity
		state.Amount = payload.Amount
		state.Status = StatusCreated
	case EventConfirmed:
		state.Status = StatusConfirmed
	case EventCancelled:
		var payload CancelledPayload
		_ = json.Unmarshal(evt.PayloadJSON, &payload)
		state.Status = StatusCancelled
		state.CancelReason = payload.Reason
	}
	return state
}

// Replay folds an ordered stream into state starting from the zero value.
func Replay(events []event.Event) State {
	var state State
	for _, evt := range events {
		state = Fold(state, evt)
	}
	return state
}
