package shipping

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/commercefoundry/ordersaga/internal/domain/command"
	"github.com/commercefoundry/ordersaga/internal/domain/event"
)

const (
	rejectionCodeShipmentExists = "SHIPPING_ALREADY_ARRANGED"

	reasonAddressMissing = "shipping address missing"
)

// Decide returns the decision for a shipping command against current state.
func Decide(state State, cmd command.Command, now func() time.Time) command.Decision {
	if now == nil {
		now = time.Now
	}

	switch cmd.Type {
	case CommandArrange:
		if state.Created {
			return command.Reject(command.Rejection{
				Code:    rejectionCodeShipmentExists,
				Message: "shipment already arranged",
			})
		}
		var payload ArrangePayload
		_ = json.Unmarshal(cmd.PayloadJSON, &payload)
		orderID := strings.TrimSpace(payload.OrderID)
		if strings.TrimSpace(payload.ShippingAddress) == "" {
			// No destination means no carrier pickup; the workflow
			// compensates on this fact.
			failedJSON, _ := json.Marshal(FailedPayload{
				OrderID: orderID,
				Reason:  reasonAddressMissing,
				Status:  StatusFailed,
			})
			return command.Accept(newEvent(cmd, EventFailed, orderID, failedJSON, now))
		}
		payloadJSON, _ := json.Marshal(ArrangedFromArrange(payload))
		return command.Accept(newEvent(cmd, EventArranged, orderID, payloadJSON, now))
	}

	return command.Reject(command.Rejection{
		Code:    "COMMAND_TYPE_UNKNOWN",
		Message: "shipping aggregate does not accept " + string(cmd.Type),
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
