package sim

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/turtlegrid/internal/controller"
	"github.com/dyluth/turtlegrid/internal/grid"
	"github.com/dyluth/turtlegrid/internal/storage"
	"github.com/dyluth/turtlegrid/internal/turtle"
	"github.com/dyluth/turtlegrid/pkg/gridbus"
	"github.com/fatih/color"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	eventually = 5 * time.Second
	tick       = 10 * time.Millisecond
)

var testMarkers = turtle.Markers{Top: "minecraft:red_wool", Left: "minecraft:blue_wool"}

type harness struct {
	display *Display
	fleet   *Fleet
	ctrl    *controller.Controller
}

// startDisplay builds a stocked display, powers every agent on and waits
// until all of them are serving.
func startDisplay(t *testing.T, l Layout) *harness {
	t.Helper()
	ctx := context.Background()

	mr := miniredis.RunT(t)
	redisOpts := &redis.Options{Addr: mr.Addr()}

	l.Markers = testMarkers
	l.Stock = l.Width * l.Height
	l.Seed = 42
	d, err := Build(l)
	require.NoError(t, err)

	fleet := NewFleet(d, FleetOptions{
		Agent: turtle.Options{
			Topology:          d.Layout.Topology,
			Markers:           testMarkers,
			Items:             d.Layout.Items,
			ResolveInterval:   tick,
			ReconcileInterval: tick,
		},
		Redis:    redisOpts,
		Instance: "sim-test",
		StateDir: t.TempDir(),
	})
	t.Cleanup(func() { fleet.Close(context.Background()) })

	bus, err := gridbus.NewClient(redisOpts, "sim-test")
	require.NoError(t, err)
	t.Cleanup(func() { bus.Close() })

	ctrl := controller.New(controller.Options{
		StartupDelay: time.Millisecond,
		SizeInterval: 50 * time.Millisecond,
		StealSettle:  200 * time.Millisecond,
		Items:        d.Layout.Items,
	})
	ctrl.SetModem(bus)
	ctrl.SetPower(fleet)
	ctrl.SetNetwork(d)

	require.NoError(t, ctrl.Startup(ctx, 0, 0))

	h := &harness{display: d, fleet: fleet, ctrl: ctrl}
	h.waitResolved(t)
	return h
}

func (h *harness) waitResolved(t *testing.T) {
	t.Helper()
	turtles := h.display.Turtles()
	require.Eventually(t, func() bool {
		for i := range turtles {
			a, ok := h.fleet.Agent(i)
			if !ok || a.Phase() != turtle.PhaseReady {
				return false
			}
		}
		return true
	}, eventually, tick)

	for i, tt := range turtles {
		a, _ := h.fleet.Agent(i)
		pos, ok := a.Position()
		require.True(t, ok)
		assert.Equal(t, h.display.Expected(tt), pos, "turtle %s", tt.Name())
	}
}

func (h *harness) waitAll(t *testing.T, want grid.Color) {
	t.Helper()
	require.Eventually(t, func() bool {
		for y := 1; y <= h.display.Layout.Height; y++ {
			for x := 1; x <= h.display.Layout.Width; x++ {
				if h.display.Pixel(grid.Coord{X: x, Y: y}) != want {
					return false
				}
			}
		}
		return true
	}, eventually, tick)
}

func TestChainedRowResolvesAsWavefront(t *testing.T) {
	startDisplay(t, Layout{Topology: grid.Chained, Width: 5, Height: 1})
}

func TestChainedWallDrawsAndAnswersSize(t *testing.T) {
	ctx := context.Background()
	h := startDisplay(t, Layout{Topology: grid.Chained, Width: 4, Height: 3})

	// Every agent turned until its modem was behind it.
	for _, tt := range h.display.Turtles() {
		assert.Equal(t, grid.South, tt.Facing())
	}

	require.NoError(t, h.ctrl.Clear(ctx, grid.Red))
	h.waitAll(t, grid.Red)

	require.NoError(t, h.ctrl.SetPixel(ctx, 2, 3, grid.Blue))
	require.Eventually(t, func() bool {
		return h.display.Pixel(grid.Coord{X: 2, Y: 3}) == grid.Blue
	}, eventually, tick)
	assert.Equal(t, grid.Red, h.display.Pixel(grid.Coord{X: 1, Y: 3}))

	w, hgt, err := h.ctrl.GetSize(ctx, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, w)
	assert.Equal(t, 1, hgt)
}

func TestBorderedFloorResolves(t *testing.T) {
	ctx := context.Background()
	h := startDisplay(t, Layout{Topology: grid.Bordered, Width: 4, Height: 3})

	require.NoError(t, h.ctrl.Clear(ctx, grid.Lime))
	h.waitAll(t, grid.Lime)
}

func TestRestartKeepsPositions(t *testing.T) {
	ctx := context.Background()
	h := startDisplay(t, Layout{Topology: grid.Chained, Width: 3, Height: 2})

	require.NoError(t, h.ctrl.Restart(ctx, 0, time.Millisecond))
	h.waitResolved(t)
}

func TestStealReturnsEverythingToTheChest(t *testing.T) {
	ctx := context.Background()
	h := startDisplay(t, Layout{Topology: grid.Chained, Width: 3, Height: 2})

	require.NoError(t, h.ctrl.Clear(ctx, grid.Orange))
	h.waitAll(t, grid.Orange)

	result, err := h.ctrl.StealItems(ctx, controller.StealOptions{})
	require.NoError(t, err)
	assert.Equal(t, 6, result.Agents)
	assert.Equal(t, 6*grid.PaletteSize, result.Drained)

	h.waitAll(t, grid.None)
	for _, tt := range h.display.Turtles() {
		slots, err := tt.Inventory().List(ctx)
		require.NoError(t, err)
		assert.Empty(t, slots, "turtle %s", tt.Name())
	}
	chest := h.display.Chests()[0]
	for _, item := range h.display.Layout.Items {
		assert.Equal(t, 6, chest.Count(item), item)
	}
}

func TestBuildValidation(t *testing.T) {
	_, err := Build(Layout{Width: 0, Height: 3})
	assert.Error(t, err)

	_, err = Build(Layout{Topology: grid.Bordered, Width: 2, Height: 2})
	assert.Error(t, err, "bordered needs markers")

	_, err = Build(Layout{Width: 1, Height: 1, Stock: chestSize * storage.MaxStack})
	assert.Error(t, err, "chest too small")
}

func TestTurtleBody(t *testing.T) {
	ctx := context.Background()
	w := NewWorld()
	tt := w.AddTurtle(Vec3i{}, grid.North, "t")
	w.AddModem(Vec3i{Y: -1})
	w.SetBlock(Vec3i{X: 1}, "minecraft:stone")
	other := w.AddTurtle(Vec3i{X: -1}, grid.East, "u")
	other.SetAgentID("agent-u")

	n, err := tt.Sense(ctx, grid.Bottom)
	require.NoError(t, err)
	assert.Equal(t, turtle.KindModem, n.Kind)

	n, err = tt.Sense(ctx, grid.Right)
	require.NoError(t, err)
	assert.Equal(t, turtle.Neighbor{Kind: turtle.KindBlock, Block: "minecraft:stone"}, n)

	n, err = tt.Sense(ctx, grid.Left)
	require.NoError(t, err)
	assert.Equal(t, turtle.Neighbor{Kind: turtle.KindAgent, AgentID: "agent-u"}, n)

	// After a right turn the stone is in front.
	require.NoError(t, tt.TurnRight(ctx))
	assert.Equal(t, grid.East, tt.Facing())
	dug, err := tt.Dig(ctx, grid.Front)
	require.NoError(t, err)
	assert.True(t, dug)
	assert.Equal(t, 1, tt.inv.Count("minecraft:stone"))

	dug, err = tt.Dig(ctx, grid.Front)
	require.NoError(t, err)
	assert.False(t, dug, "nothing left to dig")

	slot, ok, err := storage.Find(ctx, tt.Inventory(), "minecraft:stone")
	require.NoError(t, err)
	require.True(t, ok)

	placed, err := tt.Place(ctx, grid.Top, slot)
	require.NoError(t, err)
	assert.True(t, placed)
	item, ok := w.Block(Vec3i{Y: 1})
	assert.True(t, ok)
	assert.Equal(t, "minecraft:stone", item)

	placed, err = tt.Place(ctx, grid.Front, slot)
	require.NoError(t, err)
	assert.False(t, placed, "slot is empty now")

	placed, err = tt.Place(ctx, grid.Back, 3)
	require.NoError(t, err)
	assert.False(t, placed, "obstructed by the other turtle")
}

func TestDigIntoFullInventory(t *testing.T) {
	ctx := context.Background()
	w := NewWorld()
	tt := w.AddTurtle(Vec3i{}, grid.North, "t")
	for slot := 1; slot <= grid.PaletteSize; slot++ {
		require.NoError(t, tt.inv.Put(slot, storage.Stack{Item: "minecraft:dirt", Count: storage.MaxStack}))
	}
	w.SetBlock(Vec3i{Z: -1}, "minecraft:stone")

	_, err := tt.Dig(ctx, grid.Front)
	assert.ErrorIs(t, err, ErrInventoryFull)
	_, ok := w.Block(Vec3i{Z: -1})
	assert.True(t, ok, "block stays when it cannot be picked up")
}

func TestRender(t *testing.T) {
	noColor := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = noColor })

	d, err := Build(Layout{Topology: grid.Chained, Width: 3, Height: 2})
	require.NoError(t, err)
	d.SetBlock(d.draw[grid.Coord{X: 1, Y: 1}], d.Layout.Items[grid.Red])
	d.SetBlock(d.draw[grid.Coord{X: 3, Y: 2}], d.Layout.Items[grid.Black])
	d.SetBlock(d.draw[grid.Coord{X: 2, Y: 2}], "minecraft:dirt")

	var out strings.Builder
	require.NoError(t, d.Render(&out))
	assert.Equal(t, "ee....\n....ff\n", out.String())
}
