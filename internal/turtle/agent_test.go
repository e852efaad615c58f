package turtle

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/turtlegrid/internal/font"
	"github.com/dyluth/turtlegrid/internal/grid"
	"github.com/dyluth/turtlegrid/internal/state"
	"github.com/dyluth/turtlegrid/internal/storage"
	"github.com/dyluth/turtlegrid/pkg/gridbus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eventually = 2 * time.Second

func setupBus(t *testing.T) *gridbus.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := gridbus.NewClient(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func newTestStore(t *testing.T) *state.Store {
	t.Helper()
	s, err := state.Open(filepath.Join(t.TempDir(), "agent.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestAgent(t *testing.T, body Body, bus Bus, store Store) *Agent {
	t.Helper()
	opts := Options{
		Topology:          grid.Chained,
		Markers:           testMarkers,
		ResolveInterval:   testInterval,
		ReconcileInterval: testInterval,
	}
	return New(opts, body, bus, store, nil)
}

// anchorBody is a chained anchor with a full palette showing colour shown.
func anchorBody(shown grid.Color) *fakeBody {
	body := newFakeBody()
	body.set(grid.Back, modem)
	items := storage.DefaultItems()
	if shown != grid.None {
		body.set(grid.Front, Neighbor{Kind: KindBlock, Block: items[shown]})
	}
	stockPalette(body.inv, items, shown)
	return body
}

func runAgent(t *testing.T, a *Agent) func() error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	stopped := false
	stop := func() error {
		if stopped {
			return nil
		}
		stopped = true
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(eventually):
			t.Fatal("agent did not stop")
			return nil
		}
	}
	t.Cleanup(func() { stop() })
	return stop
}

func waitReady(t *testing.T, a *Agent) {
	t.Helper()
	require.Eventually(t, func() bool { return a.Phase() == PhaseReady }, eventually, 10*time.Millisecond)
}

func TestClearSwapsBlockExactlyOnce(t *testing.T) {
	ctx := context.Background()
	bus := setupBus(t)
	body := anchorBody(grid.Black)
	a := newTestAgent(t, body, bus, newTestStore(t))

	runAgent(t, a)
	waitReady(t, a)
	assert.Equal(t, grid.Black, a.Current())

	require.NoError(t, bus.Transmit(ctx, gridbus.AllChannel, 0, gridbus.Clear{Color: grid.White}))
	require.Eventually(t, func() bool { return a.Current() == grid.White }, eventually, 10*time.Millisecond)

	dug, placed := body.actions()
	items := storage.DefaultItems()
	assert.Equal(t, []string{items[grid.Black]}, dug)
	assert.Equal(t, []int{grid.White.Slot()}, placed)
}

func TestPlaceSameColorTwiceSwapsOnce(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	_, err := store.Load(ctx)
	require.NoError(t, err)

	body := anchorBody(grid.None)
	a := newTestAgent(t, body, newFakeBus(), store)

	require.NoError(t, a.PlaceColor(ctx, grid.Red))
	require.NoError(t, a.PlaceColor(ctx, grid.Red))

	_, placed := body.actions()
	assert.Equal(t, []int{grid.Red.Slot()}, placed)
	assert.Equal(t, grid.Red, a.Current())

	rec, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, grid.Red, rec.Color)
}

func TestPlaceColorRejectsInvalidColor(t *testing.T) {
	a := newTestAgent(t, anchorBody(grid.None), newFakeBus(), newTestStore(t))
	assert.ErrorIs(t, a.PlaceColor(context.Background(), grid.None), grid.ErrInvalidColor)
}

func TestPersistedPositionSkipsDiscovery(t *testing.T) {
	ctx := context.Background()
	bus := setupBus(t)
	store := newTestStore(t)
	_, err := store.Load(ctx)
	require.NoError(t, err)
	require.NoError(t, store.SavePosition(ctx, grid.Coord{X: 3, Y: 4}))

	body := anchorBody(grid.None)
	// Discovery would block on this unresolved neighbour.
	body.set(grid.Right, agentNeighbor("broken"))
	require.NoError(t, bus.PublishLabel(ctx, "broken", nil))

	a := newTestAgent(t, body, bus, store)
	runAgent(t, a)
	waitReady(t, a)

	pos, ok := a.Position()
	require.True(t, ok)
	assert.Equal(t, grid.Coord{X: 3, Y: 4}, pos)
	assert.Zero(t, body.senseCount(grid.Right))
	assert.Zero(t, body.senseCount(grid.Top))

	peer, known, err := bus.PeerPosition(ctx, a.ID())
	require.NoError(t, err)
	assert.True(t, known)
	assert.Equal(t, pos, peer)
}

func TestAnchorAnswersSizeQuery(t *testing.T) {
	ctx := context.Background()
	bus := setupBus(t)
	a := newTestAgent(t, anchorBody(grid.None), bus, newTestStore(t))
	runAgent(t, a)
	waitReady(t, a)

	sub, err := bus.Open(ctx, gridbus.ReplyChannel)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, bus.Transmit(ctx, gridbus.AllChannel, gridbus.ReplyChannel, gridbus.SizeQuery{}))

	select {
	case d := <-sub.Deliveries():
		assert.Equal(t, gridbus.Size{Width: 1, Height: 1}, d.Message)
	case <-time.After(eventually):
		t.Fatal("no size reply")
	}
}

func TestFreezeHoldsDrawingUntilThaw(t *testing.T) {
	ctx := context.Background()
	bus := setupBus(t)
	a := newTestAgent(t, anchorBody(grid.None), bus, newTestStore(t))
	runAgent(t, a)
	waitReady(t, a)

	require.NoError(t, bus.Transmit(ctx, gridbus.AllChannel, 0, gridbus.Freeze{}))
	require.Eventually(t, func() bool { return a.Phase() == PhaseFrozen }, eventually, 10*time.Millisecond)

	require.NoError(t, bus.Transmit(ctx, gridbus.AllChannel, 0, gridbus.Clear{Color: grid.Red}))
	assert.Never(t, func() bool { return a.Current() == grid.Red }, 150*time.Millisecond, 10*time.Millisecond)

	require.NoError(t, bus.Transmit(ctx, gridbus.AllChannel, 0, gridbus.Thaw{}))
	assert.Eventually(t, func() bool { return a.Current() == grid.Red }, eventually, 10*time.Millisecond)
}

func TestPickupWhileFrozen(t *testing.T) {
	ctx := context.Background()
	bus := setupBus(t)
	body := anchorBody(grid.Black)
	a := newTestAgent(t, body, bus, newTestStore(t))
	runAgent(t, a)
	waitReady(t, a)

	require.NoError(t, bus.Transmit(ctx, gridbus.AllChannel, 0, gridbus.Freeze{}))
	require.NoError(t, bus.Transmit(ctx, gridbus.AllChannel, 0, gridbus.Pickup{}))

	require.Eventually(t, func() bool { return a.Current() == grid.None }, eventually, 10*time.Millisecond)
	dug, placed := body.actions()
	assert.Len(t, dug, 1)
	assert.Empty(t, placed)
	assert.Equal(t, 1, body.inv.Count(storage.DefaultItems()[grid.Black]))
}

func TestResetClearsStateAndRestarts(t *testing.T) {
	ctx := context.Background()
	bus := setupBus(t)
	body := anchorBody(grid.None)
	store := newTestStore(t)
	a := newTestAgent(t, body, bus, store)
	runAgent(t, a)
	waitReady(t, a)
	id := a.ID()

	require.NoError(t, bus.Transmit(ctx, gridbus.AllChannel, 0, gridbus.Reset{}))

	require.Eventually(t, func() bool {
		return body.senseCount(grid.Back) >= 2 && a.Phase() == PhaseReady
	}, eventually, 10*time.Millisecond)
	assert.Equal(t, id, a.ID(), "identity survives a reset")

	pos, ok := a.Position()
	require.True(t, ok)
	assert.Equal(t, grid.Anchor, pos)
}

func TestFatalErrorIsReported(t *testing.T) {
	ctx := context.Background()
	bus := setupBus(t)

	sub, err := bus.Open(ctx, gridbus.ErrorChannel)
	require.NoError(t, err)
	defer sub.Close()

	body := newFakeBody() // no modem anywhere
	a := newTestAgent(t, body, bus, newTestStore(t))

	err = a.Run(ctx)
	require.ErrorIs(t, err, ErrOrientation)
	assert.Equal(t, PhaseFailed, a.Phase())

	select {
	case d := <-sub.Deliveries():
		report, ok := d.Message.(gridbus.ErrorReport)
		require.True(t, ok)
		assert.Equal(t, a.ID(), report.AgentID)
		assert.Equal(t, grid.UnknownLabel, report.Label)
		assert.Contains(t, report.Message, "modem")
	case <-time.After(eventually):
		t.Fatal("no error report")
	}
}

func TestCharacterPicksForegroundFromFont(t *testing.T) {
	glyphs := font.New(140, 180)
	gx, gy := font.GlyphOrigin('A')
	glyphs.Set(gx-1, gy-1, true) // inner (0,0)

	a := New(Options{}, anchorBody(grid.None), newFakeBus(), newTestStore(t), glyphs)
	msg := gridbus.Character{GlyphX: gx, GlyphY: gy, Fg: grid.Red, Bg: grid.Black}

	require.NoError(t, a.handle(context.Background(), &gridbus.Delivery{Message: msg}, grid.Coord{X: 1, Y: 1}))
	wanted, _ := a.box.peek()
	assert.Equal(t, grid.Red, wanted)

	require.NoError(t, a.handle(context.Background(), &gridbus.Delivery{Message: msg}, grid.Coord{X: 2, Y: 1}))
	wanted, _ = a.box.peek()
	assert.Equal(t, grid.Black, wanted)
}

func TestPlaceMessagesOnlyMatchOwnCoordinate(t *testing.T) {
	ctx := context.Background()
	a := newTestAgent(t, anchorBody(grid.None), newFakeBus(), newTestStore(t))
	pos := grid.Coord{X: 2, Y: 3}

	other := gridbus.Place{Pixel: gridbus.Pixel{X: 3, Y: 3, Color: grid.Lime}}
	require.NoError(t, a.handle(ctx, &gridbus.Delivery{Message: other}, pos))
	wanted, _ := a.box.peek()
	assert.Equal(t, grid.None, wanted)

	batch := gridbus.PlaceBatch{Pixels: []gridbus.Pixel{
		{X: 1, Y: 1, Color: grid.Red},
		{X: 2, Y: 3, Color: grid.Cyan},
	}}
	require.NoError(t, a.handle(ctx, &gridbus.Delivery{Message: batch}, pos))
	wanted, _ = a.box.peek()
	assert.Equal(t, grid.Cyan, wanted)

	mine := gridbus.Place{Pixel: gridbus.Pixel{X: 2, Y: 3, Color: grid.Pink}}
	require.NoError(t, a.handle(ctx, &gridbus.Delivery{Message: mine}, pos))
	wanted, _ = a.box.peek()
	assert.Equal(t, grid.Pink, wanted, "last write wins")
}

func TestResetMessageEndsServing(t *testing.T) {
	a := newTestAgent(t, anchorBody(grid.None), newFakeBus(), newTestStore(t))
	err := a.handle(context.Background(), &gridbus.Delivery{Message: gridbus.Reset{}}, grid.Anchor)
	assert.ErrorIs(t, err, ErrReset)
}

func TestIsBottomRight(t *testing.T) {
	tests := []struct {
		name      string
		neighbors map[grid.Side]string
		want      bool
	}{
		{"alone", nil, true},
		{"left and top neighbours only", map[grid.Side]string{grid.Right: "2,2", grid.Top: "3,1"}, true},
		{"agent to the right", map[grid.Side]string{grid.Left: "4,2"}, false},
		{"agent below", map[grid.Side]string{grid.Bottom: "3,3"}, false},
		{"unresolved neighbour", map[grid.Side]string{grid.Left: grid.UnknownLabel}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := newFakeBody()
			bus := newFakeBus()
			for side, label := range tt.neighbors {
				id := "n-" + string(side)
				body.set(side, agentNeighbor(id))
				bus.setLabel(id, label)
			}
			a := newTestAgent(t, body, bus, newTestStore(t))
			a.position = &grid.Coord{X: 3, Y: 2}

			got, err := a.IsBottomRight(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsBottomRightWithoutPosition(t *testing.T) {
	a := newTestAgent(t, newFakeBody(), newFakeBus(), newTestStore(t))
	got, err := a.IsBottomRight(context.Background())
	require.NoError(t, err)
	assert.False(t, got)
}
