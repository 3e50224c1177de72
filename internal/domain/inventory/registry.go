package inventory

import (
	"github.com/commercefoundry/ordersaga/internal/domain/command"
	"github.com/commercefoundry/ordersaga/internal/domain/event"
)

// RegisterCommands adds the inventory command definitions to the registry.
func RegisterCommands(registry *command.Registry) error {
	definitions := []command.Definition{
		{Type: CommandAddProduct, Creates: true, AllowTargeted: true, ValidatePayload: ValidateAddProductPayload},
		{Type: CommandReserve, ValidatePayload: ValidateReservePayload},
		{Type: CommandRelease, ValidatePayload: ValidateReleasePayload},
	}
	for _, def := range definitions {
		if err := registry.Register(def); err != nil {
			return err
		}
	}
	return nil
}

// RegisterEvents adds the inventory event definitions to the registry.
func RegisterEvents(registry *event.Registry) error {
	for _, t := range []event.Type{EventProductAdded, EventReserved, EventReservationFailed, EventReleased} {
		if err := registry.Register(event.Definition{Type: t}); err != nil {
			return err
		}
	}
	return nil
}
