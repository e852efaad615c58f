package commands

import (
	"context"
	"time"

	"github.com/dyluth/turtlegrid/internal/controller"
	"github.com/dyluth/turtlegrid/internal/printer"
	"github.com/spf13/cobra"
)

var (
	powerBatchSize int
	powerDelay     time.Duration
)

var startupCmd = &cobra.Command{
	Use:   "startup",
	Short: "Power the agents on in batches",
	Long: `Start the display's agent containers a batch at a time, pausing between
batches so agents resolving their positions do not all hit the bus at once.

Examples:
  gridctl startup
  gridctl startup --batch-size 20 --delay 2s`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPower(cmd, "Started", func(ctx context.Context, ctrl *controller.Controller, size int, delay time.Duration) error {
			return ctrl.Startup(ctx, size, delay)
		})
	},
}

var shutdownCmd = &cobra.Command{
	Use:   "shutdown",
	Short: "Power the agents off in batches",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPower(cmd, "Stopped", func(ctx context.Context, ctrl *controller.Controller, size int, delay time.Duration) error {
			return ctrl.Shutdown(ctx, size, delay)
		})
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Shut the agents down, then start them again",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPower(cmd, "Restarted", func(ctx context.Context, ctrl *controller.Controller, size int, delay time.Duration) error {
			return ctrl.Restart(ctx, size, delay)
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{startupCmd, shutdownCmd, restartCmd} {
		c.Flags().IntVar(&powerBatchSize, "batch-size", 0, "Agents per batch (default from config)")
		c.Flags().DurationVar(&powerDelay, "delay", 0, "Pause between batches (default from config)")
		rootCmd.AddCommand(c)
	}
}

func runPower(cmd *cobra.Command, done string, op func(context.Context, *controller.Controller, int, time.Duration) error) error {
	return withController(func(ctx context.Context, ctrl *controller.Controller) error {
		release, err := attachDockerPower(ctx, ctrl)
		if err != nil {
			return err
		}
		defer release()

		if err := op(ctx, ctrl, powerBatchSize, powerDelay); err != nil {
			return err
		}
		printer.Success("%s agents of instance '%s'\n", done, cfg.Instance)
		return nil
	})
}
