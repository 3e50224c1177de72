package inventory

import (
	"encoding/json"

	"github.com/commercefoundry/ordersaga/internal/domain/event"
)

// Fold applies an event to product state. The reservations map is cloned on
// write so folding never mutates the input state.
func Fold(state State, evt event.Event) State {
	switch evt.Type {
	case EventProductAdded:
		var payload ProductAddedPayload
		_ = json.Unmarshal(evt.PayloadJSON, &payload)
		state.Created = true
		state.Name = payload.Name
		state.Price = payload.Price
		state.Available = payload.Quantity
	case EventReserved:
		var payload ReservedPayload
		_ = json.Unmarshal(evt.PayloadJSON, &payload)
		if _, held := state.Reservations[payload.OrderID]; held {
			// Duplicate delivery: the holding is already accounted for.
			return state
		}
		reservations := cloneReservations(state.Reservations)
		reservations[payload.OrderID] = payload.Quantity
		state.Reservations = reservations
		state.Available -= payload.Quantity
	case EventReleased:
		var payload ReleasedPayload
		_ = json.Unmarshal(evt.PayloadJSON, &payload)
		held, ok := state.Reservations[payload.OrderID]
		if !ok {
			return state
		}
		reservations := cloneReservations(state.Reservations)
		delete(reservations, payload.OrderID)
		state.Reservations = reservations
		state.Available += held
	case EventReservationFailed:
		// A failed reservation holds nothing.
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

func cloneReservations(reservations map[string]int) map[string]int {
	cloned := make(map[string]int, len(reservations)+1)
	for orderID, quantity := range reservations {
		cloned[orderID] = quantity
	}
	return cloned
}
