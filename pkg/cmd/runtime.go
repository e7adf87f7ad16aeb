package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/escalate/pkg/config"
	"github.com/dukex/escalate/pkg/eventbus"
	"github.com/dukex/escalate/pkg/otelhelper"
	"github.com/dukex/escalate/pkg/registry"
	"github.com/dukex/escalate/pkg/services"
	"go.opentelemetry.io/otel/trace"
)

// RuntimeConfig carries the flag values shared by the binaries.
type RuntimeConfig struct {
	ServiceName     string
	DatabaseURL     string
	EventBus        string
	DefinitionsPath string
	ReloadSchedule  string
	RedisURL        string
	AIEndpoint      string
	Tracing         bool
	MaxSteps        int
}

// Runtime is a fully wired engine with the resources it owns.
type Runtime struct {
	Engine   *services.Engine
	EventBus eventbus.EventBus
	Reloader *config.Reloader

	logger  *slog.Logger
	closers []func(ctx context.Context) error
}

// NewRuntime opens the ledger and event bus, loads definitions and builds
// the engine. On error every resource opened so far is released.
func NewRuntime(ctx context.Context, cfg RuntimeConfig, logger *slog.Logger) (*Runtime, error) {
	rt := &Runtime{logger: logger}

	if err := rt.build(ctx, cfg); err != nil {
		_ = rt.Close(ctx)

		return nil, err
	}

	return rt, nil
}

func (rt *Runtime) build(ctx context.Context, cfg RuntimeConfig) error {
	var tracer trace.Tracer

	if cfg.Tracing {
		t, shutdown, err := otelhelper.NewTracer(ctx, cfg.ServiceName)
		if err != nil {
			return fmt.Errorf("failed to initialize tracer: %w", err)
		}

		tracer = t
		rt.closers = append(rt.closers, shutdown)
	}

	ledger, err := NewLedger(ctx, rt.logger, cfg.DatabaseURL)
	if err != nil {
		return err
	}

	rt.closers = append(rt.closers, ledger.Close)

	bus, err := NewEventBus(EventBusConfig{
		Provider:      cfg.EventBus,
		ConsumerGroup: cfg.ServiceName,
		OTELEnabled:   cfg.Tracing,
	}, rt.logger)
	if err != nil {
		return err
	}

	rt.EventBus = bus
	rt.closers = append(rt.closers, func(context.Context) error { return bus.Close() })

	table, closeHandlers, err := NewHandlers(ctx, HandlersConfig{
		Publisher:  bus,
		RedisURL:   cfg.RedisURL,
		AIEndpoint: cfg.AIEndpoint,
		Logger:     rt.logger,
	})
	if err != nil {
		return err
	}

	rt.closers = append(rt.closers, func(context.Context) error { return closeHandlers() })

	rt.Engine = services.NewEngine(services.EngineConfig{
		Registry:  registry.New(rt.logger),
		Ledger:    ledger,
		Handlers:  table,
		Publisher: bus,
		Tracer:    tracer,
		MaxSteps:  cfg.MaxSteps,
		Logger:    rt.logger,
	})

	if cfg.DefinitionsPath == "" {
		return nil
	}

	loader := config.NewLoader(cfg.DefinitionsPath, rt.Engine, rt.logger)

	result, err := loader.Load(ctx)
	if err != nil {
		rt.logger.WarnContext(ctx, "Some definitions failed to load", "error", err)
	}

	rt.logger.InfoContext(ctx, "Definitions loaded",
		"files", result.Files,
		"workflows", result.Workflows,
		"rules", result.Rules)

	if cfg.ReloadSchedule == "" {
		return nil
	}

	reloader, err := config.NewReloader(loader, cfg.ReloadSchedule, rt.logger)
	if err != nil {
		return err
	}

	if err := reloader.Start(); err != nil {
		return err
	}

	rt.Reloader = reloader
	rt.closers = append(rt.closers, func(ctx context.Context) error {
		reloader.Stop(ctx)
		return nil
	})

	return nil
}

// Close releases resources in reverse opening order.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error

	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}

	rt.closers = nil

	return errors.Join(errs...)
}
