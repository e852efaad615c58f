package turtle

import (
	"context"
	"errors"
	"sync"

	"github.com/dyluth/turtlegrid/internal/grid"
	"github.com/dyluth/turtlegrid/internal/storage"
	"github.com/dyluth/turtlegrid/pkg/gridbus"
)

// fakeBody is a single robot whose surroundings are set by the test. The
// horizontal ring is fixed in the world and turns rotate the robot inside it.
type fakeBody struct {
	mu       sync.Mutex
	ring     [4]Neighbor // front, right, back, left before any turn
	offset   int
	top      Neighbor
	bottom   Neighbor
	turns    int
	senses   map[grid.Side]int
	dug      []string
	placed   []int
	inv      *storage.Memory
	storages []storage.Inventory
}

func newFakeBody() *fakeBody {
	return &fakeBody{
		senses: make(map[grid.Side]int),
		inv:    storage.NewMemory("turtle", 16),
	}
}

func (b *fakeBody) cell(side grid.Side) *Neighbor {
	switch side {
	case grid.Top:
		return &b.top
	case grid.Bottom:
		return &b.bottom
	}
	for i, s := range grid.Horizontal {
		if s == side {
			return &b.ring[(i+b.offset)%4]
		}
	}
	return nil
}

// set places a neighbour on a side relative to the robot's current facing.
func (b *fakeBody) set(side grid.Side, n Neighbor) {
	b.mu.Lock()
	defer b.mu.Unlock()
	*b.cell(side) = n
}

func (b *fakeBody) Sense(ctx context.Context, side grid.Side) (Neighbor, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.senses[side]++
	return *b.cell(side), nil
}

func (b *fakeBody) TurnLeft(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.turns++
	b.offset = (b.offset + 3) % 4
	return nil
}

func (b *fakeBody) TurnRight(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.turns++
	b.offset = (b.offset + 1) % 4
	return nil
}

func (b *fakeBody) Dig(ctx context.Context, side grid.Side) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := b.cell(side)
	if c.Kind != KindBlock {
		return false, nil
	}
	held := storage.NewMemory("held", 1)
	if err := held.Put(1, storage.Stack{Item: c.Block, Count: 1}); err != nil {
		return false, err
	}
	if _, err := held.PushItems(ctx, b.inv, 1, 1, 0); err != nil {
		return false, err
	}
	b.dug = append(b.dug, c.Block)
	*c = Neighbor{}
	return true, nil
}

func (b *fakeBody) Place(ctx context.Context, side grid.Side, slot int) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := b.cell(side)
	if c.Kind != KindAir {
		return false, nil
	}
	slots, err := b.inv.List(ctx)
	if err != nil {
		return false, err
	}
	stack, ok := slots[slot]
	if !ok {
		return false, nil
	}
	stack.Count--
	if err := b.inv.Put(slot, stack); err != nil {
		return false, err
	}
	*c = Neighbor{Kind: KindBlock, Block: stack.Item}
	b.placed = append(b.placed, slot)
	return true, nil
}

func (b *fakeBody) Inventory() storage.Inventory { return b.inv }

func (b *fakeBody) Storages(ctx context.Context) ([]storage.Inventory, error) {
	return b.storages, nil
}

func (b *fakeBody) senseCount(side grid.Side) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.senses[side]
}

func (b *fakeBody) actions() (dug []string, placed []int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.dug...), append([]int(nil), b.placed...)
}

// stockPalette gives the robot one block of every colour except skip.
func stockPalette(inv *storage.Memory, items storage.Items, skip grid.Color) {
	for _, c := range grid.Palette() {
		if c == skip {
			continue
		}
		_ = inv.Put(c.Slot(), storage.Stack{Item: items[c], Count: 1})
	}
}

// fakePeers is a label directory keyed by agent id.
type fakePeers struct {
	mu     sync.Mutex
	labels map[string]string
	calls  int
}

func newFakePeers() *fakePeers {
	return &fakePeers{labels: make(map[string]string)}
}

func (p *fakePeers) setLabel(id, label string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.labels[id] = label
}

func (p *fakePeers) PeerPosition(ctx context.Context, agentID string) (grid.Coord, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return grid.ParseLabel(p.labels[agentID])
}

func (p *fakePeers) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// fakeBus records transmissions and serves labels from fakePeers. It cannot
// open subscriptions.
type fakeBus struct {
	*fakePeers
	mu   sync.Mutex
	sent []gridbus.Message
}

func newFakeBus() *fakeBus {
	return &fakeBus{fakePeers: newFakePeers()}
}

func (b *fakeBus) Transmit(ctx context.Context, channel, reply int, msg gridbus.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, msg)
	return nil
}

func (b *fakeBus) Open(ctx context.Context, channels ...int) (*gridbus.Subscription, error) {
	return nil, errors.New("fake bus has no subscriptions")
}

func (b *fakeBus) PublishLabel(ctx context.Context, agentID string, pos *grid.Coord) error {
	b.setLabel(agentID, grid.FormatLabel(pos))
	return nil
}

func agentNeighbor(id string) Neighbor {
	return Neighbor{Kind: KindAgent, AgentID: id}
}

var modem = Neighbor{Kind: KindModem}
