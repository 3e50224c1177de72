package ordersaga

import (
	"flag"
	"testing"

	"github.com/commercefoundry/ordersaga/internal/dispatcher"
	"github.com/commercefoundry/ordersaga/internal/domain/command"
	"github.com/commercefoundry/ordersaga/internal/eventstore"
)

func TestParseConfig_EnvAndFlagPrecedence(t *testing.T) {
	t.Setenv("ORDERSAGA_PORT", "9100")
	t.Setenv("ORDERSAGA_EVENT_DB", "env-events.db")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-event-db", "flag-events.db"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Port != 9100 {
		t.Fatalf("port = %d, want env value 9100", cfg.Port)
	}
	if cfg.EventStorePath != "flag-events.db" {
		t.Fatalf("event db = %q, want flag override", cfg.EventStorePath)
	}
	if cfg.SagaStorePath != "ordersaga-sagas.db" {
		t.Fatalf("saga db = %q, want default", cfg.SagaStorePath)
	}
}

func TestRegistries_CoverAllAggregates(t *testing.T) {
	commands, events, err := Registries()
	if err != nil {
		t.Fatalf("registries: %v", err)
	}

	for _, name := range []string{
		"order.create", "order.confirm", "order.cancel",
		"inventory.add_product", "inventory.reserve", "inventory.release",
		"payment.process", "payment.refund",
		"shipping.arrange",
	} {
		if _, ok := commands.Definition(command.Type(name)); !ok {
			t.Fatalf("command %s not registered", name)
		}
	}
	if got := len(events.Types()); got != 12 {
		t.Fatalf("event types = %d, want 12", got)
	}
}

func TestRouteAggregates_RoutesEveryService(t *testing.T) {
	commands, events, err := Registries()
	if err != nil {
		t.Fatalf("registries: %v", err)
	}
	d := dispatcher.New(eventstore.NewMemory(events), commands)
	if err := RouteAggregates(d); err != nil {
		t.Fatalf("route aggregates: %v", err)
	}
	// Routing the same service twice must fail.
	if err := RouteAggregates(d); err == nil {
		t.Fatal("expected duplicate routing to fail")
	}
}
