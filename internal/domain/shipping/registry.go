package shipping

import (
	"github.com/commercefoundry/ordersaga/internal/domain/command"
	"github.com/commercefoundry/ordersaga/internal/domain/event"
)

// RegisterCommands adds the shipping command definitions to the registry.
func RegisterCommands(registry *command.Registry) error {
	definitions := []command.Definition{
		{Type: CommandArrange, Creates: true, ValidatePayload: ValidateArrangePayload},
	}
	for _, def := range definitions {
		if err := registry.Register(def); err != nil {
			return err
		}
	}
	return nil
}

// RegisterEvents adds the shipping event definitions to the registry.
func RegisterEvents(registry *event.Registry) error {
	for _, t := range []event.Type{EventArranged, EventFailed} {
		if err := registry.Register(event.Definition{Type: t}); err != nil {
			return err
		}
	}
	return nil
}
