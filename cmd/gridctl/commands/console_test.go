package commands

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/turtlegrid/internal/controller"
	"github.com/dyluth/turtlegrid/internal/grid"
	"github.com/dyluth/turtlegrid/internal/sim"
	"github.com/dyluth/turtlegrid/internal/turtle"
	"github.com/dyluth/turtlegrid/pkg/gridbus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	eventually = 5 * time.Second
	tick       = 10 * time.Millisecond
)

// startConsole powers on a 4x3 chained wall and returns a console over it.
func startConsole(t *testing.T) (*console, *sim.Display, *bytes.Buffer) {
	t.Helper()
	ctx := context.Background()

	mr := miniredis.RunT(t)
	redisOpts := &redis.Options{Addr: mr.Addr()}
	markers := turtle.Markers{Top: "minecraft:red_wool", Left: "minecraft:blue_wool"}

	display, err := sim.Build(sim.Layout{
		Topology: grid.Chained,
		Width:    4,
		Height:   3,
		Markers:  markers,
		Stock:    12,
		Seed:     3,
	})
	require.NoError(t, err)

	fleet := sim.NewFleet(display, sim.FleetOptions{
		Agent: turtle.Options{
			Topology:          grid.Chained,
			Markers:           markers,
			ResolveInterval:   tick,
			ReconcileInterval: tick,
		},
		Redis:    redisOpts,
		Instance: "console-test",
		StateDir: t.TempDir(),
	})
	t.Cleanup(func() { fleet.Close(context.Background()) })

	bus, err := gridbus.NewClient(redisOpts, "console-test")
	require.NoError(t, err)
	t.Cleanup(func() { bus.Close() })

	ctrl := controller.New(controller.Options{
		StartupDelay: time.Millisecond,
		SizeInterval: 50 * time.Millisecond,
	})
	ctrl.SetModem(bus)
	ctrl.SetPower(fleet)
	ctrl.SetNetwork(display)
	require.NoError(t, ctrl.Startup(ctx, 0, 0))

	require.Eventually(t, func() bool {
		agents := fleet.Agents()
		if len(agents) != 12 {
			return false
		}
		for _, a := range agents {
			if a.Phase() != turtle.PhaseReady {
				return false
			}
		}
		return true
	}, eventually, tick)

	out := new(bytes.Buffer)
	return newConsole(ctrl, display, fleet, out), display, out
}

func waitPixels(t *testing.T, d *sim.Display, want func(x, y int) grid.Color) {
	t.Helper()
	require.Eventually(t, func() bool {
		for y := 1; y <= d.Layout.Height; y++ {
			for x := 1; x <= d.Layout.Width; x++ {
				if d.Pixel(grid.Coord{X: x, Y: y}) != want(x, y) {
					return false
				}
			}
		}
		return true
	}, eventually, tick)
}

func TestConsole_DrawsOnTheWall(t *testing.T) {
	ctx := context.Background()
	con, display, out := startConsole(t)

	require.NoError(t, con.exec(ctx, "clear red"))
	waitPixels(t, display, func(x, y int) grid.Color { return grid.Red })

	require.NoError(t, con.exec(ctx, "pixel 1 1 blue 4 3 blue"))
	waitPixels(t, display, func(x, y int) grid.Color {
		if (x == 1 && y == 1) || (x == 4 && y == 3) {
			return grid.Blue
		}
		return grid.Red
	})

	require.NoError(t, con.exec(ctx, "checker lime pink"))
	assert.Contains(t, out.String(), "sent 12 pixels")
	waitPixels(t, display, func(x, y int) grid.Color {
		if (x+y)%2 == 1 {
			return grid.Pink
		}
		return grid.Lime
	})
}

func TestConsole_TextBufferFlushesCells(t *testing.T) {
	ctx := context.Background()
	con, display, out := startConsole(t)

	// Without a font a glyph renders as its background.
	require.NoError(t, con.exec(ctx, "bg cyan"))
	require.NoError(t, con.exec(ctx, "text A"))
	require.NoError(t, con.exec(ctx, "flush"))
	assert.Contains(t, out.String(), "sent 1 cells")
	waitPixels(t, display, func(x, y int) grid.Color { return grid.Cyan })

	out.Reset()
	require.NoError(t, con.exec(ctx, "flush"))
	assert.Contains(t, out.String(), "sent 0 cells")

	require.NoError(t, con.exec(ctx, "flush force"))
	assert.Contains(t, out.String(), "sent 1 cells")
}

func TestConsole_ReportsState(t *testing.T) {
	ctx := context.Background()
	con, _, out := startConsole(t)

	require.NoError(t, con.exec(ctx, "size"))
	assert.Contains(t, out.String(), "1x1 cells")

	require.NoError(t, con.exec(ctx, "agents"))
	assert.Equal(t, 12, strings.Count(out.String(), string(turtle.PhaseReady)))

	require.NoError(t, con.exec(ctx, "chest"))
	assert.Contains(t, out.String(), "chest_0")

	require.NoError(t, con.exec(ctx, "render"))
}

func TestConsole_RejectsBadInput(t *testing.T) {
	ctx := context.Background()
	con, _, _ := startConsole(t)

	for _, line := range []string{
		"bogus",
		"clear mauve",
		"pixel 1 2",
		"checker red",
		"cursor 1",
		"scroll up",
		"auto maybe",
	} {
		assert.Error(t, con.exec(ctx, line), line)
	}
	assert.NoError(t, con.exec(ctx, "   "))
	assert.ErrorIs(t, con.exec(ctx, "quit"), errQuit)
}

func TestConsole_RunStopsOnQuit(t *testing.T) {
	con, _, out := startConsole(t)

	err := con.run(context.Background(), strings.NewReader("help\nnonsense\nquit\nclear red\n"))
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Display:")
	assert.Contains(t, out.String(), `error: unknown command "nonsense"`)
}
