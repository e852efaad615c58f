package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dyluth/turtlegrid/internal/controller"
	"github.com/dyluth/turtlegrid/internal/printer"
	"github.com/dyluth/turtlegrid/internal/watch"
	"github.com/dyluth/turtlegrid/pkg/gridbus"
	"github.com/spf13/cobra"
)

var (
	sizeTimeout       time.Duration
	watchOutputFormat string
	watchAction       string
	watchTarget       string
	watchAgent        string
)

var sizeCmd = &cobra.Command{
	Use:   "size",
	Short: "Ask the display for its size in character cells",
	Long: `Broadcast a size query until the bottom-right agent answers.

Each character cell is 6 pixels wide and 9 pixels high.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withController(func(ctx context.Context, ctrl *controller.Controller) error {
			width, height, err := ctrl.GetSize(ctx, sizeTimeout)
			if err != nil {
				return err
			}
			if width == 0 {
				printer.Warning("No answer from the display\n")
				return nil
			}
			printer.Printf("%dx%d cells\n", width, height)
			return nil
		})
	},
}

var errorsCmd = &cobra.Command{
	Use:   "errors",
	Short: "Print agent error reports until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		return withController(func(ctx context.Context, ctrl *controller.Controller) error {
			printer.Info("Listening for agent errors on %s (Ctrl+C to stop)\n", cfg.Instance)
			return ctrl.ListenForErrors(ctx, func(r gridbus.ErrorReport) {
				fmt.Fprintf(out, "%s [%s] %s: %s\n", time.Now().Format("15:04:05"), r.Label, r.AgentID, r.Message)
			})
		})
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Monitor bus traffic in real time",
	Long: `Stream every message sent on the display's bus.

Output Formats:
  default - Human-readable output with timestamps
  json    - Line-delimited JSON for programmatic processing

Filters:
  --action  glob over the message action (place*, clear, error)
  --target  glob over the channel label (all, reply, "cell 3,*")
  --agent   only error reports from this agent

Examples:
  gridctl watch
  gridctl watch --action 'place*' --target 'cell 0,*'
  gridctl watch --name lobby --output=json > traffic.jsonl`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List agents and their published positions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		bus, err := connectBus(ctx)
		if err != nil {
			return err
		}
		defer bus.Close()

		records, err := bus.ListAgents(ctx)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			printer.Info("No agents registered for instance '%s'\n", cfg.Instance)
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "AGENT\tPOSITION\tUPDATED")
		for _, r := range records {
			updated := "-"
			if r.UpdatedAtMs > 0 {
				updated = time.UnixMilli(r.UpdatedAtMs).Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", r.AgentID, r.Label, updated)
		}
		return w.Flush()
	},
}

func init() {
	sizeCmd.Flags().DurationVar(&sizeTimeout, "timeout", 0, "How long to wait for an answer (default from config)")
	watchCmd.Flags().StringVarP(&watchOutputFormat, "output", "o", "default", "Output format (default or json)")
	watchCmd.Flags().StringVar(&watchAction, "action", "", "Only messages whose action matches this glob")
	watchCmd.Flags().StringVar(&watchTarget, "target", "", "Only channels whose label matches this glob")
	watchCmd.Flags().StringVar(&watchAgent, "agent", "", "Only error reports from this agent")

	rootCmd.AddCommand(sizeCmd, errorsCmd, watchCmd, agentsCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	var outputFormat watch.OutputFormat
	switch watchOutputFormat {
	case "default":
		outputFormat = watch.OutputFormatDefault
	case "json":
		outputFormat = watch.OutputFormatJSON
	default:
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", watchOutputFormat),
			[]string{"Valid formats: default, json"},
		)
	}

	criteria := &watch.Criteria{ActionGlob: watchAction, TargetGlob: watchTarget, AgentID: watchAgent}
	if err := criteria.Validate(); err != nil {
		return printer.Error(
			"invalid filter",
			err.Error(),
			[]string{"Globs use shell syntax: * ? and [a-z]"},
		)
	}

	ctx, stop := signalContext()
	defer stop()

	bus, err := connectBus(ctx)
	if err != nil {
		return err
	}
	defer bus.Close()

	sub, err := bus.OpenAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to bus: %w", err)
	}
	defer sub.Close()

	if outputFormat == watch.OutputFormatDefault {
		fmt.Fprintf(os.Stderr, "Watching instance '%s'... (Ctrl+C to stop)\n\n", cfg.Instance)
	}
	return watch.StreamTraffic(ctx, sub, criteria, outputFormat, cmd.OutOrStdout())
}
