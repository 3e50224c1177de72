package payment

import (
	"github.com/commercefoundry/ordersaga/internal/domain/command"
	"github.com/commercefoundry/ordersaga/internal/domain/event"
)

// RegisterCommands adds the payment command definitions to the registry.
func RegisterCommands(registry *command.Registry) error {
	definitions := []command.Definition{
		{Type: CommandProcess, Creates: true, ValidatePayload: ValidateProcessPayload},
		{Type: CommandRefund, ValidatePayload: ValidateRefundPayload},
	}
	for _, def := range definitions {
		if err := registry.Register(def); err != nil {
			return err
		}
	}
	return nil
}

// RegisterEvents adds the payment event definitions to the registry.
func RegisterEvents(registry *event.Registry) error {
	for _, t := range []event.Type{EventProcessed, EventFailed, EventRefunded} {
		if err := registry.Register(event.Definition{Type: t}); err != nil {
			return err
		}
	}
	return nil
}
