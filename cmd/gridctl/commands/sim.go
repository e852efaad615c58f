package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dyluth/turtlegrid/internal/font"
	"github.com/dyluth/turtlegrid/internal/printer"
	"github.com/dyluth/turtlegrid/internal/sim"
	"github.com/dyluth/turtlegrid/internal/turtle"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var (
	simWidth    int
	simHeight   int
	simSeed     int64
	simNoStock  bool
	simHealth   bool
	simServe    string
	simExternal bool
)

var simCmd = &cobra.Command{
	Use:   "sim",
	Short: "Run a simulated display with an interactive console",
	Long: `Build a simulated world holding a display of turtles, power every agent
on and open a console that drives it.

The agents talk over the configured Redis exactly as real ones do, so
gridctl watch, errors and agents work against a running simulator.
Positions persist under agent.state_dir, keyed by turtle name, so
restarting the simulator with the same seed resumes where it stopped.

With --serve the world is also served over HTTP for agents running
outside the simulator. Add --external to run no agents in-process and
power the docker fleet (gridctl fleet up) instead.

Type 'help' at the prompt for the console commands.

Examples:
  gridctl sim
  gridctl sim --width 24 --height 18 --seed 7
  gridctl sim --serve :9090 --external`,
	Args: cobra.NoArgs,
	RunE: runSim,
}

func init() {
	simCmd.Flags().IntVar(&simWidth, "width", 0, "Display width in agents (default from config)")
	simCmd.Flags().IntVar(&simHeight, "height", 0, "Display height in agents (default from config)")
	simCmd.Flags().Int64Var(&simSeed, "seed", 0, "Seed for initial facings (default from config)")
	simCmd.Flags().BoolVar(&simNoStock, "no-stock", false, "Start with an empty chest")
	simCmd.Flags().BoolVar(&simHealth, "health", true, "Serve the fleet health endpoint on agent.health_addr")
	simCmd.Flags().StringVar(&simServe, "serve", "", "Serve the world over HTTP on this address")
	simCmd.Flags().BoolVar(&simExternal, "external", false, "Power the docker fleet instead of in-process agents")
	rootCmd.AddCommand(simCmd)
}

func runSim(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	display, err := buildSimDisplay()
	if err != nil {
		return err
	}

	bus, err := connectBus(ctx)
	if err != nil {
		return err
	}
	defer bus.Close()

	ctrl, err := newController(bus)
	if err != nil {
		return err
	}
	ctrl.SetNetwork(display)

	if simServe != "" {
		srv := &http.Server{
			Addr:              simServe,
			Handler:           sim.NewWorldServer(display.World).Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		ln, err := net.Listen("tcp", simServe)
		if err != nil {
			return fmt.Errorf("failed to serve world on %s: %w", simServe, err)
		}
		go func() {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("world server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
		printer.Info("Serving world on %s\n", ln.Addr())
	}

	var fleet *sim.Fleet
	if simExternal {
		release, err := attachDockerPower(ctx, ctrl)
		if err != nil {
			return err
		}
		defer release()
	} else {
		if fleet, err = startSimFleet(display); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := fleet.Close(shutdownCtx); err != nil {
				slog.Warn("failed to power off simulated agents", "error", err)
			}
		}()
		ctrl.SetPower(fleet)

		if simHealth {
			health := turtle.NewHealthServer(bus, fleet.Agents, cfg.Agent.HealthAddr)
			if err := health.Start(); err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				health.Shutdown(shutdownCtx)
			}()
		}
	}

	printer.Step("Powering on %dx%d %s display on instance '%s'\n",
		display.Layout.Width, display.Layout.Height, display.Layout.Topology, cfg.Instance)
	if err := ctrl.Startup(ctx, 0, 0); err != nil {
		return err
	}

	con := newConsole(ctrl, display, fleet, cmd.OutOrStdout())
	return con.run(ctx, cmd.InOrStdin())
}

// startSimFleet prepares one in-process agent per turtle of display. The
// agents stay powered off until the controller starts them.
func startSimFleet(display *sim.Display) (*sim.Fleet, error) {
	var glyphs *font.Font
	if cfg.Agent.Font != "" {
		var err error
		if glyphs, err = font.Load(cfg.Agent.Font); err != nil {
			return nil, printer.ErrorWithContext(
				"failed to load font",
				err.Error(),
				map[string]string{"font": cfg.Agent.Font},
				[]string{"Fix agent.font in the config, or remove it to draw text as background only"},
			)
		}
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}

	stateDir := filepath.Join(cfg.Agent.StateDir, "sim-"+cfg.Instance)
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	return sim.NewFleet(display, sim.FleetOptions{
		Agent: turtle.Options{
			Topology:          display.Layout.Topology,
			Markers:           display.Layout.Markers,
			Items:             display.Layout.Items,
			ResolveInterval:   cfg.Agent.ResolveInterval,
			ReconcileInterval: cfg.Agent.ReconcileInterval,
		},
		Redis:    redisOpts,
		Instance: cfg.Instance,
		StateDir: stateDir,
		Font:     glyphs,
	}), nil
}

// buildSimDisplay builds the simulated world from the configuration and
// the sim flags.
func buildSimDisplay() (*sim.Display, error) {
	items, err := cfg.Items()
	if err != nil {
		return nil, err
	}

	layout := sim.Layout{
		Topology: cfg.TopologyKind(),
		Width:    cfg.Sim.Width,
		Height:   cfg.Sim.Height,
		Markers:  turtle.Markers{Top: cfg.Markers.Top, Left: cfg.Markers.Left},
		Items:    items,
		Seed:     cfg.Sim.Seed,
	}
	if simWidth > 0 {
		layout.Width = simWidth
	}
	if simHeight > 0 {
		layout.Height = simHeight
	}
	if simSeed != 0 {
		layout.Seed = simSeed
	}
	if !cfg.Sim.Unstocked && !simNoStock {
		layout.Stock = layout.Width * layout.Height
	}

	display, err := sim.Build(layout)
	if err != nil {
		return nil, printer.Error(
			"invalid simulated display",
			err.Error(),
			[]string{"Check the sim section of the config and the --width/--height flags"},
		)
	}
	return display, nil
}
