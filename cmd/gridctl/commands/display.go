package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/dyluth/turtlegrid/internal/controller"
	"github.com/dyluth/turtlegrid/internal/grid"
	"github.com/dyluth/turtlegrid/internal/printer"
	"github.com/dyluth/turtlegrid/pkg/gridbus"
	"github.com/spf13/cobra"
)

var (
	textCol int
	textRow int
	textFg  string
	textBg  string
)

var clearCmd = &cobra.Command{
	Use:   "clear [color]",
	Short: "Set every pixel to one colour (default black)",
	Long: `Set every pixel of the display to one colour.

Colours are names (red, lightBlue), single hex digits as used by blit
strings (0-f), or the power-of-two colour constants (16, 32 ... 32768).
A single character is always a hex digit: 1 is orange, not white.

Examples:
  gridctl clear
  gridctl clear lightBlue
  gridctl clear e`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		color := grid.Black
		if len(args) == 1 {
			var err error
			if color, err = parseColorArg(args[0]); err != nil {
				return err
			}
		}
		return withController(func(ctx context.Context, ctrl *controller.Controller) error {
			if err := ctrl.Clear(ctx, color); err != nil {
				return err
			}
			printer.Success("Cleared to %s\n", color)
			return nil
		})
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Wipe every agent's position and colour and rediscover",
	Long: `Tell every agent to forget its persisted position and colour and boot
again. Positions are rediscovered from scratch; agent ids are kept.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withController(func(ctx context.Context, ctrl *controller.Controller) error {
			if err := ctrl.Reset(ctx); err != nil {
				return err
			}
			printer.Success("Reset sent\n")
			return nil
		})
	},
}

var freezeCmd = &cobra.Command{
	Use:   "freeze",
	Short: "Stop agents from drawing until thaw",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withController(func(ctx context.Context, ctrl *controller.Controller) error {
			if err := ctrl.Freeze(ctx); err != nil {
				return err
			}
			printer.Success("Display frozen\n")
			return nil
		})
	},
}

var thawCmd = &cobra.Command{
	Use:   "thaw",
	Short: "Let frozen agents draw again",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withController(func(ctx context.Context, ctrl *controller.Controller) error {
			if err := ctrl.Thaw(ctx); err != nil {
				return err
			}
			printer.Success("Display thawed\n")
			return nil
		})
	},
}

var pixelCmd = &cobra.Command{
	Use:   "pixel X Y COLOR [X Y COLOR...]",
	Short: "Set individual pixels",
	Long: `Set one or more pixels by grid coordinate (1-indexed, top-left is 1 1).

A single pixel goes to its character cell's channel. Several pixels are
sent as one batch on the broadcast channel.

Examples:
  gridctl pixel 1 1 red
  gridctl pixel 1 1 red 2 1 white 3 1 blue`,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 || len(args)%3 != 0 {
			return fmt.Errorf("expected X Y COLOR triples, got %d arguments", len(args))
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		pixels, err := parsePixels(args)
		if err != nil {
			return err
		}
		return withController(func(ctx context.Context, ctrl *controller.Controller) error {
			if len(pixels) == 1 {
				p := pixels[0]
				err = ctrl.SetPixel(ctx, p.X, p.Y, p.Color)
			} else {
				err = ctrl.SetPixels(ctx, pixels)
			}
			if err != nil {
				return err
			}
			printer.Success("Sent %d pixels\n", len(pixels))
			return nil
		})
	},
}

var textCmd = &cobra.Command{
	Use:   "text TEXT",
	Short: "Write text starting at a character cell",
	Long: `Write text one character cell at a time, starting at --col/--row
(1-indexed). Text that runs past the right edge of the display is dropped;
the display size is queried first.

Examples:
  gridctl text "HELLO"
  gridctl text --row 2 --fg red --bg white "WORLD"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fg, err := parseColorArg(textFg)
		if err != nil {
			return err
		}
		bg, err := parseColorArg(textBg)
		if err != nil {
			return err
		}
		return withController(func(ctx context.Context, ctrl *controller.Controller) error {
			width, height, err := ctrl.GetSize(ctx, 0)
			if err != nil {
				return err
			}
			if width == 0 {
				return printer.Error(
					"display size unknown",
					"No agent answered the size query in time.",
					[]string{"Check that the display is powered and resolved:\n  gridctl agents", "Retry with a longer controller.size_timeout"},
				)
			}
			if textRow < 1 || textRow > height {
				return fmt.Errorf("row %d outside the display (1-%d)", textRow, height)
			}

			sent := 0
			text := args[0]
			for i := 0; i < len(text) && textCol+i <= width; i++ {
				if err := ctrl.SetCharacter(ctx, textCol+i, textRow, fg, bg, text[i]); err != nil {
					return err
				}
				sent++
			}
			printer.Success("Wrote %d of %d characters\n", sent, len(text))
			return nil
		})
	},
}

func init() {
	textCmd.Flags().IntVar(&textCol, "col", 1, "Starting column (1-indexed)")
	textCmd.Flags().IntVar(&textRow, "row", 1, "Row (1-indexed)")
	textCmd.Flags().StringVar(&textFg, "fg", "white", "Text colour")
	textCmd.Flags().StringVar(&textBg, "bg", "black", "Background colour")

	rootCmd.AddCommand(clearCmd, resetCmd, freezeCmd, thawCmd, pixelCmd, textCmd)
}

// withController connects to the configured display and runs fn with a
// context cancelled on interrupt.
func withController(fn func(ctx context.Context, ctrl *controller.Controller) error) error {
	ctx, stop := signalContext()
	defer stop()

	ctrl, closeBus, err := connect(ctx)
	if err != nil {
		return err
	}
	defer closeBus()
	return fn(ctx, ctrl)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func parseColorArg(s string) (grid.Color, error) {
	c, err := grid.ParseColor(s)
	if err == nil && c == grid.None {
		err = fmt.Errorf("%w: %q", grid.ErrInvalidColor, s)
	}
	if err != nil {
		return grid.None, printer.Error(
			"invalid colour",
			err.Error(),
			[]string{"Use a name such as red or lightBlue, or a hex digit 0-f"},
		)
	}
	return c, nil
}

func parsePixels(args []string) ([]gridbus.Pixel, error) {
	pixels := make([]gridbus.Pixel, 0, len(args)/3)
	for i := 0; i+2 < len(args); i += 3 {
		x, err := strconv.Atoi(args[i])
		if err != nil {
			return nil, fmt.Errorf("invalid x %q: %w", args[i], err)
		}
		y, err := strconv.Atoi(args[i+1])
		if err != nil {
			return nil, fmt.Errorf("invalid y %q: %w", args[i+1], err)
		}
		c, err := parseColorArg(args[i+2])
		if err != nil {
			return nil, err
		}
		pixels = append(pixels, gridbus.Pixel{X: x, Y: y, Color: c})
	}
	return pixels, nil
}
