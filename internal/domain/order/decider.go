package order

import (
	"encoding/json"
	"time"

	"github.com/commercefoundry/ordersaga/internal/domain/command"
	"github.com/commercefoundry/ordersaga/internal/domain/event"
)

const (
	rejectionCodeOrderAlreadyExists   = "ORDER_ALREADY_EXISTS"
	rejectionCodeOrderNotCreated      = "ORDER_NOT_CREATED"
	rejectionCodeOrderCustomerMissing = "ORDER_CUSTOMER_MISSING"
	rejectionCodeOrderProductMissing  = "ORDER_PRODUCT_MISSING"
	rejectionCodeOrderInvalidQuantity = "ORDER_INVALID_QUANTITY"
	rejectionCodeOrderInvalidAmount   = "ORDER_INVALID_AMOUNT"
	rejectionCodeOrderInvalidStatus   = "ORDER_INVALID_STATUS_TRANSITION"
)

// Decide returns the decision for an order command against current state.
func Decide(state State, cmd command.Command, now func() time.Time) command.Decision {
	if now == nil {
		now = time.Now
	}

	switch cmd.Type {
	case CommandCreate:
		if state.Created {
			return command.Reject(command.Rejection{
				Code:    rejectionCodeOrderAlreadyExists,
				Message: "order already exists",
			})
		}
		var payload CreatePayload
		_ = json.Unmarshal(cmd.PayloadJSON, &payload)
		if rejection, ok := rejectCreate(payload); !ok {
			return command.Reject(rejection)
		}
		payloadJSON, _ := json.Marshal(CreatedFromCreate(payload))
		return command.Accept(newEvent(cmd, EventCreated, payloadJSON, now))

	case CommandConfirm:
		if !state.Created {
			return command.Reject(command.Rejection{
				Code:    rejectionCodeOrderNotCreated,
				Message: "order does not exist",
			})
		}
		if state.Status.Terminal() {
			return command.Reject(command.Rejection{
				Code:    rejectionCodeOrderInvalidStatus,
				Message: "order is already " + string(state.Status),
			})
		}
		payloadJSON, _ := json.Marshal(ConfirmedPayload{Status: StatusConfirmed})
		return command.Accept(newEvent(cmd, EventConfirmed, payloadJSON, now))

	case CommandCancel:
		if !state.Created {
			return command.Reject(command.Rejection{
				Code:    rejectionCodeOrderNotCreated,
				Message: "order does not exist",
			})
		}
		if state.Status.Terminal() {
			return command.Reject(command.Rejection{
				Code:    rejectionCodeOrderInvalidStatus,
				Message: "order is already " + string(state.Status),
			})
		}
		var payload CancelPayload
		_ = json.Unmarshal(cmd.PayloadJSON, &payload)
		payloadJSON, _ := json.Marshal(CancelledFromCancel(payload))
		return command.Accept(newEvent(cmd, EventCancelled, payloadJSON, now))
	}

	return command.Reject(command.Rejection{
		Code:    "COMMAND_TYPE_UNKNOWN",
		Message: "order aggregate does not accept " + string(cmd.Type),
	})
}

func rejectCreate(payload CreatePayload) (command.Rejection, bool) {
	switch {
	case payload.CustomerID == "":
		return command.Rejection{Code: rejectionCodeOrderCustomerMissing, Message: "customer_id is required"}, false
	case payload.ProductID == "":
		return command.Rejection{Code: rejectionCodeOrderProductMissing, Message: "product_id is required"}, false
	case payload.Quantity <= 0:
		return command.Rejection{Code: rejectionCodeOrderInvalidQuantity, Message: "quantity must be positive"}, false
	case payload.Amount <= 0:
		return command.Rejection{Code: rejectionCodeOrderInvalidAmount, Message: "amount must be positive"}, false
	}
	return command.Rejection{}, true
}

func newEvent(cmd command.Command, t event.Type, payloadJSON []byte, now func() time.Time) event.Event {
	correlation := cmd.CorrelationID
	if correlation == "" {
		// The order id is the workflow correlation key.
		correlation = cmd.AggregateID
	}
	return event.Event{
		AggregateID:   cmd.AggregateID,
		Type:          t,
		Timestamp:     now().UTC(),
		CorrelationID: correlation,
		CausationID:   cmd.CausationID,
		PayloadJSON:   payloadJSON,
	}
}
