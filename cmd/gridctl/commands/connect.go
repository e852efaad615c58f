package commands

import (
	"context"
	"fmt"

	"github.com/dyluth/turtlegrid/internal/config"
	"github.com/dyluth/turtlegrid/internal/controller"
	dockerpkg "github.com/dyluth/turtlegrid/internal/docker"
	"github.com/dyluth/turtlegrid/internal/fleet"
	"github.com/dyluth/turtlegrid/internal/printer"
	"github.com/dyluth/turtlegrid/pkg/gridbus"
	"github.com/redis/go-redis/v9"
)

// connectBus opens and checks the bus of the configured instance.
func connectBus(ctx context.Context) (*gridbus.Client, error) {
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, printer.Error(
			"invalid Redis URL",
			fmt.Sprintf("Could not parse %q: %v", cfg.RedisURL, err),
			[]string{"Use the form redis://host:port/db"},
		)
	}

	bus, err := gridbus.NewClient(redisOpts, cfg.Instance)
	if err != nil {
		return nil, fmt.Errorf("failed to create bus client: %w", err)
	}

	if err := bus.Ping(ctx); err != nil {
		bus.Close()
		return nil, printer.ErrorWithContext(
			"Redis connection failed",
			fmt.Sprintf("Could not connect to Redis at %s", cfg.RedisURL),
			map[string]string{"instance": cfg.Instance, "error": err.Error()},
			[]string{
				"Check that Redis is running and reachable",
				fmt.Sprintf("Point gridctl elsewhere:\n  gridctl --redis redis://host:6379 ...  or  export %s=...", config.EnvRedisURL),
			},
		)
	}
	return bus, nil
}

// newController creates a controller from the configuration and attaches
// bus as its modem.
func newController(bus controller.Bus) (*controller.Controller, error) {
	items, err := cfg.Items()
	if err != nil {
		return nil, err
	}
	ctrl := controller.New(controller.Options{
		BatchSize:     cfg.Controller.BatchSize,
		StartupDelay:  cfg.Controller.StartupDelay,
		ShutdownDelay: cfg.Controller.ShutdownDelay,
		SizeTimeout:   cfg.Controller.SizeTimeout,
		SizeInterval:  cfg.Controller.SizeInterval,
		StealSettle:   cfg.Controller.StealSettle,
		Items:         items,
	})
	ctrl.SetModem(bus)
	return ctrl, nil
}

// connect is connectBus followed by newController. The returned close
// function releases the bus.
func connect(ctx context.Context) (*controller.Controller, func(), error) {
	bus, err := connectBus(ctx)
	if err != nil {
		return nil, nil, err
	}
	ctrl, err := newController(bus)
	if err != nil {
		bus.Close()
		return nil, nil, err
	}
	return ctrl, func() { bus.Close() }, nil
}

// attachDockerPower gives ctrl a power switch over the instance's agent
// containers.
func attachDockerPower(ctx context.Context, ctrl *controller.Controller) (func(), error) {
	if cfg.Fleet.Driver != "docker" {
		return nil, printer.Error(
			fmt.Sprintf("fleet driver %q has no standalone power switch", cfg.Fleet.Driver),
			"Simulated agents only exist inside a running simulator.",
			[]string{"Use the startup, shutdown and restart commands of the gridctl sim console"},
		)
	}

	cli, err := dockerpkg.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	ctrl.SetPower(fleet.NewDockerSwitch(cli, cfg.Instance, 10))
	return func() { cli.Close() }, nil
}
