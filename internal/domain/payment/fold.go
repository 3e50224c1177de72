package payment

import (
	"encoding/json"

	"github.com/commercefoundry/ordersaga/internal/domain/event"
)

// Fold applies an event to payment state.
func Fold(state State, evt event.Event) State {
	switch evt.Type {
	case EventProcessed:
		var payload ProcessedPayload
		_ = json.Unmarshal(evt.PayloadJSON, &payload)
		state.Created = true
		state.OrderID = payload.OrderID
		state.CustomerID = payload.CustomerID
		state.Amount = payload.Amount
		state.ShippingAddress = payload.ShippingAddress
		state.Status = StatusProcessed
	case EventFailed:
		var payload FailedPayload
		_ = json.Unmarshal(evt.PayloadJSON, &payload)
		state.Created = true
		state.OrderID = payload.OrderID
		state.Status = StatusFailed
	case EventRefunded:
		state.Status = StatusRefunded
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
