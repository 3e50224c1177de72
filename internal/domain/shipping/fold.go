package shipping

import (
	"encoding/json"

	"github.com/commercefoundry/ordersaga/internal/domain/event"
)

// Fold applies one event to the state and returns the next state.
func Fold(state State, evt event.Event) State {
	switch evt.Type {
	case EventArranged:
		var payload ArrangedPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return state
		}
		state.Created = true
		state.OrderID = payload.OrderID
		state.ProductID = payload.ProductID
		state.Quantity = payload.Quantity
		state.Address = payload.ShippingAddress
		state.Status = StatusArranged
	case EventFailed:
		var payload FailedPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return state
		}
		state.Created = true
		if state.OrderID == "" {
			state.OrderID = payload.OrderID
		}
		state.Status = StatusFailed
	}
	return state
}

// Replay folds an ordered event stream into the aggregate state.
func Replay(events []event.Event) State {
	var state State
	for _, evt := range events {
		state = Fold(state, evt)
	}
	return state
}
