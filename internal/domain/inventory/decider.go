package inventory

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/commercefoundry/ordersaga/internal/domain/command"
	"github.com/commercefoundry/ordersaga/internal/domain/event"
)

const (
	rejectionCodeProductExists   = "INVENTORY_PRODUCT_EXISTS"
	rejectionCodeProductUnknown  = "INVENTORY_PRODUCT_UNKNOWN"
	rejectionCodeAlreadyReserved = "INVENTORY_ALREADY_RESERVED"
	rejectionCodeNotReserved     = "INVENTORY_NOT_RESERVED"

	reasonUnknownProduct        = "unknown product"
	reasonInsufficientInventory = "insufficient inventory"
)

// Decide returns the decision for an inventory command against current state.
func Decide(state State, cmd command.Command, now func() time.Time) command.Decision {
	if now == nil {
		now = time.Now
	}

	switch cmd.Type {
	case CommandAddProduct:
		if state.Created {
			return command.Reject(command.Rejection{
				Code:    rejectionCodeProductExists,
				Message: "product already exists",
			})
		}
		var payload AddProductPayload
		_ = json.Unmarshal(cmd.PayloadJSON, &payload)
		payloadJSON, _ := json.Marshal(ProductAddedFromAdd(payload))
		return command.Accept(newEvent(cmd, EventProductAdded, cmd.AggregateID, payloadJSON, now))

	case CommandReserve:
		var payload ReservePayload
		_ = json.Unmarshal(cmd.PayloadJSON, &payload)
		orderID := strings.TrimSpace(payload.OrderID)

		// Reservation failures are facts the workflow compensates on, not
		// synchronous errors: the reserving caller is the saga, which only
		// ever learns outcomes through events.
		if !state.Created {
			return acceptFailed(cmd, orderID, reasonUnknownProduct, now)
		}
		if state.Reserved(orderID) > 0 {
			return command.Reject(command.Rejection{
				Code:    rejectionCodeAlreadyReserved,
				Message: "reservation already exists for order " + orderID,
			})
		}
		if payload.Quantity > state.Available {
			return acceptFailed(cmd, orderID, reasonInsufficientInventory, now)
		}
		payloadJSON, _ := json.Marshal(ReservedFromReserve(payload))
		return command.Accept(newEvent(cmd, EventReserved, orderID, payloadJSON, now))

	case CommandRelease:
		if !state.Created {
			return command.Reject(command.Rejection{
				Code:    rejectionCodeProductUnknown,
				Message: "product does not exist",
			})
		}
		var payload ReleasePayload
		_ = json.Unmarshal(cmd.PayloadJSON, &payload)
		orderID := strings.TrimSpace(payload.OrderID)
		held := state.Reserved(orderID)
		if held == 0 {
			return command.Reject(command.Rejection{
				Code:    rejectionCodeNotReserved,
				Message: "no reservation held for order " + orderID,
			})
		}
		// Release the recorded holding in full; the command quantity is
		// advisory and may lag what was actually reserved.
		payloadJSON, _ := json.Marshal(ReleasedPayload{OrderID: orderID, Quantity: held})
		return command.Accept(newEvent(cmd, EventReleased, orderID, payloadJSON, now))
	}

	return command.Reject(command.Rejection{
		Code:    "COMMAND_TYPE_UNKNOWN",
		Message: "inventory aggregate does not accept " + string(cmd.Type),
	})
}

func acceptFailed(cmd command.Command, orderID, reason string, now func() time.Time) command.Decision {
	payloadJSON, _ := json.Marshal(ReservationFailedPayload{OrderID: orderID, Reason: reason})
	return command.Accept(newEvent(cmd, EventReservationFailed, orderID, payloadJSON, now))
}

func newEvent(cmd command.Command, t event.Type, correlationID string, payloadJSON []byte, now func() time.Time) event.Event {
	if cmd.CorrelationID != "" {
		correlationID = cmd.CorrelationID
	}
	return event.Event{
		AggregateID:   cmd.AggregateID,
		Type:          t,
		Timestamp:     now().UTC(),
		CorrelationID: correlationID,
		CausationID:   cmd.CausationID,
		PayloadJSON:   payloadJSON,
	}
}
