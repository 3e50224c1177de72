package payment

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/commercefoundry/ordersaga/internal/domain/command"
	"github.com/commercefoundry/ordersaga/internal/domain/event"
)

const (
	rejectionCodePaymentExists       = "PAYMENT_ALREADY_EXISTS"
	rejectionCodePaymentNotProcessed = "PAYMENT_NOT_PROCESSED"

	reasonChargeLimitExceeded = "amount exceeds charge limit"
)

// Decide returns the decision for a payment command against current state.
func Decide(state State, cmd command.Command, now func() time.Time) command.Decision {
	if now == nil {
		now = time.Now
	}

	switch cmd.Type {
	case CommandProcess:
		if state.Created {
			return command.Reject(command.Rejection{
				Code:    rejectionCodePaymentExists,
				Message: "payment already attempted",
			})
		}
		var payload ProcessPayload
		_ = json.Unmarshal(cmd.PayloadJSON, &payload)
		orderID := strings.TrimSpace(payload.OrderID)
		if payload.Amount > maxChargeAmount {
			failedJSON, _ := json.Marshal(FailedPayload{
				OrderID: orderID,
				Reason:  reasonChargeLimitExceeded,
				Status:  StatusFailed,
			})
			return command.Accept(newEvent(cmd, EventFailed, orderID, failedJSON, now))
		}
		payloadJSON, _ := json.Marshal(ProcessedFromProcess(payload))
		return command.Accept(newEvent(cmd, EventProcessed, orderID, payloadJSON, now))

	case CommandRefund:
		if !state.Created || state.Status != StatusProcessed {
			return command.Reject(command.Rejection{
				Code:    rejectionCodePaymentNotProcessed,
				Message: "payment is not in a refundable state",
			})
		}
		payloadJSON, _ := json.Marshal(RefundedPayload{
			OrderID: state.OrderID,
			Amount:  state.Amount,
			Status:  StatusRefunded,
		})
		return command.Accept(newEvent(cmd, EventRefunded, state.OrderID, payloadJSON, now))
	}

	return command.Reject(command.Rejection{
		Code:    "COMMAND_TYPE_UNKNOWN",
		Message: "payment aggregate does not accept " + string(cmd.Type),
	})
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
