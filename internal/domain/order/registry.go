package order

import (
	"github.com/commercefoundry/ordersaga/internal/domain/command"
	"github.com/commercefoundry/ordersaga/internal/domain/event"
)

// RegisterCommands adds the order command definitions to the registry.
func RegisterCommands(registry *command.Registry) error {
	definitions := []command.Definition{
		{Type: CommandCreate, Creates: true, AllowTargeted: true, ValidatePayload: ValidateCreatePayload},
		{Type: CommandConfirm},
		{Type: CommandCancel},
	}
	for _, def := range definitions {
		if err := registry.Register(def); err != nil {
			return err
		}
	}
	return nil
}

// RegisterEvents adds the order event definitions to the registry.
func RegisterEvents(registry *event.Registry) error {
	for _, t := range []event.Type{EventCreated, EventConfirmed, EventCancelled} {
		if err := registry.Register(event.Definition{Type: t}); err != nil {
			return err
		}
	}
	return nil
}
