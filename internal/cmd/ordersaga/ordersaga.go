// Package ordersaga parses service configuration and launches the order
// fulfillment process: event store, dispatcher, publisher fan-out, saga
// manager, watchdog, and a gRPC health endpoint.
package ordersaga

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/commercefoundry/ordersaga/internal/dispatcher"
	"github.com/commercefoundry/ordersaga/internal/domain/command"
	"github.com/commercefoundry/ordersaga/internal/domain/event"
	"github.com/commercefoundry/ordersaga/internal/domain/inventory"
	"github.com/commercefoundry/ordersaga/internal/domain/order"
	"github.com/commercefoundry/ordersaga/internal/domain/payment"
	"github.com/commercefoundry/ordersaga/internal/domain/shipping"
	eventsqlite "github.com/commercefoundry/ordersaga/internal/eventstore/sqlite"
	entrypoint "github.com/commercefoundry/ordersaga/internal/platform/cmd"
	"github.com/commercefoundry/ordersaga/internal/projection"
	"github.com/commercefoundry/ordersaga/internal/publisher"
	"github.com/commercefoundry/ordersaga/internal/saga"
	sagasqlite "github.com/commercefoundry/ordersaga/internal/saga/sqlite"
)

// Config holds ordersaga service configuration.
type Config struct {
	Port           int    `env:"ORDERSAGA_PORT" envDefault:"8090"`
	EventStorePath string `env:"ORDERSAGA_EVENT_DB" envDefault:"ordersaga-events.db"`
	SagaStorePath  string `env:"ORDERSAGA_SAGA_DB" envDefault:"ordersaga-sagas.db"`
	StepTimeout    int    `env:"ORDERSAGA_STEP_TIMEOUT_SECONDS" envDefault:"120"`
	SweepInterval  int    `env:"ORDERSAGA_SWEEP_INTERVAL_SECONDS" envDefault:"15"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The gRPC health server port")
	fs.StringVar(&cfg.EventStorePath, "event-db", cfg.EventStorePath, "Path to the event store database")
	fs.StringVar(&cfg.SagaStorePath, "saga-db", cfg.SagaStorePath, "Path to the saga instance database")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the order saga service.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceOrdersaga, func(ctx context.Context) error {
		return run(ctx, cfg)
	})
}

// Registries builds the command and event registries for all aggregates.
func Registries() (*command.Registry, *event.Registry, error) {
	events := event.NewRegistry()
	commands := command.NewRegistry()
	registrations := []struct {
		events   func(*event.Registry) error
		commands func(*command.Registry) error
	}{
		{order.RegisterEvents, order.RegisterCommands},
		{inventory.RegisterEvents, inventory.RegisterCommands},
		{payment.RegisterEvents, payment.RegisterCommands},
		{shipping.RegisterEvents, shipping.RegisterCommands},
	}
	for _, r := range registrations {
		if err := r.events(events); err != nil {
			return nil, nil, fmt.Errorf("register events: %w", err)
		}
		if err := r.commands(commands); err != nil {
			return nil, nil, fmt.Errorf("register commands: %w", err)
		}
	}
	return commands, events, nil
}

// RouteAggregates installs the explicit service-to-decider routing table.
func RouteAggregates(d *dispatcher.Dispatcher) error {
	routes := []struct {
		service string
		handler dispatcher.Handler
	}{
		{"order", dispatcher.Route(order.Replay, order.Decide)},
		{"inventory", dispatcher.Route(inventory.Replay, inventory.Decide)},
		{"payment", dispatcher.Route(payment.Replay, payment.Decide)},
		{"shipping", dispatcher.Route(shipping.Replay, shipping.Decide)},
	}
	for _, route := range routes {
		if err := d.Handle(route.service, route.handler); err != nil {
			return fmt.Errorf("route %s: %w", route.service, err)
		}
	}
	return nil
}

func run(ctx context.Context, cfg Config) error {
	commands, events, err := Registries()
	if err != nil {
		return err
	}

	eventStore, err := eventsqlite.Open(cfg.EventStorePath, events)
	if err != nil {
		return fmt.Errorf("open event store: %w", err)
	}
	defer func() {
		if err := eventStore.Close(); err != nil {
			log.Printf("close event store: %v", err)
		}
	}()

	sagaStore, err := sagasqlite.Open(cfg.SagaStorePath)
	if err != nil {
		return fmt.Errorf("open saga store: %w", err)
	}
	defer func() {
		if err := sagaStore.Close(); err != nil {
			log.Printf("close saga store: %v", err)
		}
	}()

	bus := publisher.NewBus()
	d := dispatcher.New(eventStore, commands, dispatcher.WithPublisher(bus))
	if err := RouteAggregates(d); err != nil {
		return err
	}

	sender := saga.SendFunc(func(ctx context.Context, cmd command.Command) error {
		_, err := d.Dispatch(ctx, cmd)
		return err
	})
	manager := saga.NewManager(sagaStore, sender,
		saga.WithStepTimeout(time.Duration(cfg.StepTimeout)*time.Second))
	watchdog := saga.NewWatchdog(sagaStore, manager)

	bus.Subscribe(manager)
	bus.Subscribe(projection.NewOrders())
	bus.Subscribe(projection.NewProducts())

	// Commands recorded before a crash are owed; resend them before serving.
	if err := manager.RecoverPending(ctx, 1000); err != nil {
		return fmt.Errorf("recover pending saga commands: %w", err)
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", cfg.Port, err)
	}
	server := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Printf("ordersaga listening at %v", listener.Addr())
		return server.Serve(listener)
	})
	group.Go(func() error {
		return watchdog.Run(ctx, time.Duration(cfg.SweepInterval)*time.Second, 1000)
	})
	group.Go(func() error {
		<-ctx.Done()
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		server.GracefulStop()
		return ctx.Err()
	})

	if err := group.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
