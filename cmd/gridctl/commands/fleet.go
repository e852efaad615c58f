package commands

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"text/tabwriter"

	"github.com/dyluth/turtlegrid/internal/config"
	dockerpkg "github.com/dyluth/turtlegrid/internal/docker"
	"github.com/dyluth/turtlegrid/internal/fleet"
	"github.com/dyluth/turtlegrid/internal/printer"
	"github.com/dyluth/turtlegrid/internal/sim"
	"github.com/spf13/cobra"
)

var (
	fleetCount   int
	fleetImage   string
	fleetWorld   string
	fleetNetwork string
)

var fleetCmd = &cobra.Command{
	Use:   "fleet",
	Short: "Manage the agent containers of a display",
	Long: `Create, list and remove one container per agent.

Each container runs the turtle agent against a world server (gridctl sim
--serve --external) and reaches Redis directly. Containers are created
stopped; gridctl startup powers them on in batches.`,
}

var fleetUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Create the agent containers",
	Long: `Create one stopped agent container per turtle of the display.

The count defaults to the configured sim width times height, matching
the turtles a world server built from the same configuration holds.

Examples:
  gridctl fleet up
  gridctl fleet up --count 108 --world http://10.0.0.5:9090`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		count := fleetCount
		if count == 0 {
			count = cfg.Sim.Width * cfg.Sim.Height
		}
		image := firstNonEmpty(fleetImage, cfg.Fleet.Image)
		world := firstNonEmpty(fleetWorld, cfg.Fleet.World)
		network := firstNonEmpty(fleetNetwork, cfg.Fleet.Network)

		cli, err := dockerpkg.NewClient(ctx)
		if err != nil {
			return err
		}
		defer cli.Close()

		healthPort, err := portOf(cfg.Agent.HealthAddr)
		if err != nil {
			return fmt.Errorf("invalid agent.health_addr: %w", err)
		}
		base := cfg.Fleet.HealthPortBase

		ids, err := fleet.Provision(ctx, cli, fleet.ProvisionSpec{
			Instance:     cfg.Instance,
			Image:        image,
			Count:        count,
			Network:      network,
			HealthPort:   healthPort,
			HostPortBase: base,
			Env: func(index int) []string {
				env := config.AgentEnvFor(cfg, world, sim.TurtleName(index))
				env.HealthAddr = cfg.Agent.HealthAddr
				if network == "host" {
					env.HealthAddr = fmt.Sprintf(":%d", base+index)
				}
				return env.Environ()
			},
		})
		if errors.Is(err, fleet.ErrAlreadyProvisioned) {
			return printer.Error(
				fmt.Sprintf("instance '%s' already has agents", cfg.Instance),
				err.Error(),
				[]string{
					fmt.Sprintf("Remove them first:\n  gridctl fleet down --name %s", cfg.Instance),
					"Choose a different instance with --name",
				},
			)
		}
		if err != nil {
			return err
		}

		printer.Success("Created %d agent containers for instance '%s'\n", len(ids), cfg.Instance)
		printer.Println()
		printer.Printf("Image:   %s\n", image)
		printer.Printf("World:   %s\n", world)
		printer.Printf("Network: %s\n", network)
		printer.Printf("Health:  127.0.0.1:%d-%d\n", base, base+count-1)
		printer.Println()
		printer.Printf("Next: serve the world and power the agents on\n")
		printer.Printf("  gridctl sim --name %s --serve :9090 --external\n", cfg.Instance)
		return nil
	},
}

var fleetDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Stop and remove the agent containers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		cli, err := dockerpkg.NewClient(ctx)
		if err != nil {
			return err
		}
		defer cli.Close()

		n, err := fleet.Teardown(ctx, cli, cfg.Instance, 10)
		if err != nil {
			return err
		}
		if n == 0 {
			return printer.Error(
				fmt.Sprintf("instance '%s' has no agents", cfg.Instance),
				fmt.Sprintf("No agent containers found with instance name '%s'.", cfg.Instance),
				[]string{"Run 'gridctl fleet ls --name <instance>' to check another instance"},
			)
		}
		printer.Success("Removed %d agent containers of instance '%s'\n", n, cfg.Instance)
		return nil
	},
}

var fleetLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List the agent containers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		cli, err := dockerpkg.NewClient(ctx)
		if err != nil {
			return err
		}
		defer cli.Close()

		agents, err := fleet.ListAgents(ctx, cli, cfg.Instance)
		if err != nil {
			return err
		}
		if len(agents) == 0 {
			printer.Info("No agent containers for instance '%s'\n", cfg.Instance)
			return nil
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Instance '%s': %s (%d agents)\n\n", cfg.Instance, fleet.DetermineStatus(agents), len(agents))
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "INDEX\tCONTAINER\tSTATE\tSTATUS")
		for _, a := range agents {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", a.Index, a.Name, a.State, a.Status)
		}
		return w.Flush()
	},
}

func init() {
	fleetUpCmd.Flags().IntVar(&fleetCount, "count", 0, "Number of agents (default sim.width * sim.height)")
	fleetUpCmd.Flags().StringVar(&fleetImage, "image", "", "Agent image (default fleet.image)")
	fleetUpCmd.Flags().StringVar(&fleetWorld, "world", "", "World server URL seen from the containers (default fleet.world)")
	fleetUpCmd.Flags().StringVar(&fleetNetwork, "network", "", "Docker network mode (default fleet.network)")

	fleetCmd.AddCommand(fleetUpCmd, fleetDownCmd, fleetLsCmd)
	rootCmd.AddCommand(fleetCmd)
}

// portOf returns the port of a listen address such as ":8080".
func portOf(addr string) (int, error) {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(port)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
