// Command turtle runs one display agent. It drives a turtle of a world
// served by gridctl sim --serve and talks to the controller over Redis.
// Configuration comes from the environment; see config.LoadAgentEnv.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dyluth/turtlegrid/internal/config"
	"github.com/dyluth/turtlegrid/internal/font"
	"github.com/dyluth/turtlegrid/internal/sim"
	"github.com/dyluth/turtlegrid/internal/state"
	"github.com/dyluth/turtlegrid/internal/turtle"
	"github.com/dyluth/turtlegrid/pkg/gridbus"
	"github.com/redis/go-redis/v9"
)

// EnvLogLevel sets the log level (debug, info, warn, error).
const EnvLogLevel = "TURTLEGRID_LOG_LEVEL"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx)
	stop()
	os.Exit(code)
}

// run contains the main logic and returns an exit code. Cancelling ctx
// shuts the agent down gracefully.
func run(ctx context.Context) int {
	setupLogging()
	logger := slog.Default().With("component", "turtle")

	env, err := config.LoadAgentEnv()
	if err != nil {
		logger.Error("configuration error", "error", err)
		return 1
	}
	logger = logger.With("instance", env.Instance, "turtle", env.Turtle)

	items, err := env.Items()
	if err != nil {
		logger.Error("invalid palette", "error", err)
		return 1
	}

	var glyphs *font.Font
	if env.Font != "" {
		if glyphs, err = font.Load(env.Font); err != nil {
			logger.Error("failed to load font", "font", env.Font, "error", err)
			return 1
		}
	}

	redisOpts, err := redis.ParseURL(env.RedisURL)
	if err != nil {
		logger.Error("invalid Redis URL", "error", err)
		return 1
	}
	bus, err := gridbus.NewClient(redisOpts, env.Instance)
	if err != nil {
		logger.Error("failed to create bus client", "error", err)
		return 1
	}
	defer func() {
		if err := bus.Close(); err != nil {
			logger.Error("error closing bus client", "error", err)
		}
	}()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err = bus.Ping(pingCtx)
	cancel()
	if err != nil {
		logger.Error("failed to connect to Redis", "error", err)
		return 1
	}
	logger.Info("connected to Redis")

	body, err := sim.DialTurtle(ctx, env.World, env.Turtle)
	if err != nil {
		logger.Error("failed to reach world", "world", env.World, "error", err)
		return 1
	}

	if err := os.MkdirAll(env.StateDir, 0o755); err != nil {
		logger.Error("failed to create state directory", "error", err)
		return 1
	}
	store, err := state.Open(filepath.Join(env.StateDir, env.Turtle+".db"))
	if err != nil {
		logger.Error("failed to open state", "error", err)
		return 1
	}
	defer store.Close()

	rec, err := store.Load(ctx)
	if err != nil {
		logger.Error("failed to load state", "error", err)
		return 1
	}
	if err := body.SetAgentID(ctx, rec.AgentID); err != nil {
		logger.Error("failed to register agent id", "error", err)
		return 1
	}

	agent := turtle.New(turtle.Options{
		Topology:          env.Topology,
		Markers:           turtle.Markers{Top: env.Markers.Top, Left: env.Markers.Left},
		Items:             items,
		ResolveInterval:   env.ResolveInterval,
		ReconcileInterval: env.ReconcileInterval,
	}, body, bus, store, glyphs)

	healthServer := turtle.NewHealthServer(bus, turtle.Agents(agent), env.HealthAddr)
	if err := healthServer.Start(); err != nil {
		logger.Error("failed to start health server", "error", err)
		return 1
	}
	logger.Info("health server started", "addr", env.HealthAddr)

	agentCtx, agentCancel := context.WithCancel(context.Background())
	defer agentCancel()

	agentDone := make(chan error, 1)
	go func() {
		agentDone <- agent.Run(agentCtx)
	}()

	// Wait for shutdown or agent exit
	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-agentDone:
		shutdownHealth(healthServer, logger)
		if err != nil {
			logger.Error("agent failed", "error", err)
			return 1
		}
		logger.Info("agent exited")
		return 0
	}

	agentCancel()
	shutdownHealth(healthServer, logger)

	timer := time.NewTimer(5 * time.Second)
	defer timer.Stop()

	select {
	case err := <-agentDone:
		if err != nil {
			logger.Error("agent shutdown error", "error", err)
			return 1
		}
	case <-timer.C:
		logger.Error("agent shutdown timeout - forcing exit")
		return 1
	}

	logger.Info("turtle shutdown complete")
	return 0
}

func shutdownHealth(hs *turtle.HealthServer, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := hs.Shutdown(ctx); err != nil {
		logger.Error("health server shutdown error", "error", err)
	}
}

func setupLogging() {
	var level slog.Level
	if v := os.Getenv(EnvLogLevel); v != "" {
		if err := level.UnmarshalText([]byte(v)); err != nil {
			level = slog.LevelInfo
		}
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
