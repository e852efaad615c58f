// Package sim is an in-process stand-in for the physical display: a voxel
// world holding agents, their modems, edge markers and a shared chest. Every
// agent runs the real turtle runtime against a simulated body.
package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dyluth/turtlegrid/internal/grid"
	"github.com/dyluth/turtlegrid/internal/storage"
	"github.com/dyluth/turtlegrid/internal/turtle"
)

// ErrInventoryFull is returned when a dug block has nowhere to go.
var ErrInventoryFull = errors.New("inventory full")

// ChestItem is what a chest looks like when sensed.
const ChestItem = "minecraft:chest"

// Vec3i is a block position. Y is up, north is -Z and east is +X.
type Vec3i struct {
	X, Y, Z int
}

func (v Vec3i) add(o Vec3i) Vec3i {
	return Vec3i{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

func headingVec(h grid.Heading) Vec3i {
	d := h.Delta()
	return Vec3i{X: d.DX, Z: d.DY}
}

type blockKind int

const (
	blockItem blockKind = iota + 1
	blockModem
	blockTurtle
	blockChest
)

type block struct {
	kind   blockKind
	item   string
	turtle *Turtle
}

// World holds every block. One mutex serialises all actions, the way the game
// runs one tick at a time.
type World struct {
	mu      sync.Mutex
	blocks  map[Vec3i]*block
	turtles []*Turtle
	chests  []*storage.Memory
}

// NewWorld returns an empty world.
func NewWorld() *World {
	return &World{blocks: make(map[Vec3i]*block)}
}

// SetBlock puts a plain block. An empty item clears the position.
func (w *World) SetBlock(pos Vec3i, item string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if item == "" {
		delete(w.blocks, pos)
		return
	}
	w.blocks[pos] = &block{kind: blockItem, item: item}
}

// Block returns the item of the plain block at pos.
func (w *World) Block(pos Vec3i) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	b, ok := w.blocks[pos]
	if !ok || b.kind != blockItem {
		return "", false
	}
	return b.item, true
}

// AddModem puts a network modem at pos.
func (w *World) AddModem(pos Vec3i) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.blocks[pos] = &block{kind: blockModem}
}

// AddChest puts a chest at pos and attaches it to the network.
func (w *World) AddChest(pos Vec3i, name string, size int) *storage.Memory {
	w.mu.Lock()
	defer w.mu.Unlock()
	chest := storage.NewMemory(name, size)
	w.blocks[pos] = &block{kind: blockChest, item: ChestItem}
	w.chests = append(w.chests, chest)
	return chest
}

// AddTurtle puts a turtle with an empty 16 slot inventory at pos.
func (w *World) AddTurtle(pos Vec3i, facing grid.Heading, name string) *Turtle {
	w.mu.Lock()
	defer w.mu.Unlock()
	t := &Turtle{
		world:  w,
		name:   name,
		pos:    pos,
		facing: facing,
		inv:    storage.NewMemory(name, grid.PaletteSize),
	}
	w.blocks[pos] = &block{kind: blockTurtle, turtle: t}
	w.turtles = append(w.turtles, t)
	return t
}

// Turtles returns every turtle in the order they were added.
func (w *World) Turtles() []*Turtle {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]*Turtle(nil), w.turtles...)
}

// Turtle returns the turtle called name.
func (w *World) Turtle(name string) (*Turtle, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, t := range w.turtles {
		if t.name == name {
			return t, true
		}
	}
	return nil, false
}

// Chests returns every networked chest.
func (w *World) Chests() []*storage.Memory {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]*storage.Memory(nil), w.chests...)
}

// Agents implements storage.Network.
func (w *World) Agents(ctx context.Context) ([]storage.Inventory, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]storage.Inventory, len(w.turtles))
	for i, t := range w.turtles {
		out[i] = t.inv
	}
	return out, nil
}

// Storages implements storage.Network.
func (w *World) Storages(ctx context.Context) ([]storage.Inventory, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]storage.Inventory, len(w.chests))
	for i, c := range w.chests {
		out[i] = c
	}
	return out, nil
}

// Lookup implements storage.Network.
func (w *World) Lookup(name string) (storage.Inventory, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, t := range w.turtles {
		if t.name == name {
			return t.inv, true
		}
	}
	for _, c := range w.chests {
		if c.Name() == name {
			return c, true
		}
	}
	return nil, false
}

// Turtle is a simulated robot body. It implements turtle.Body.
type Turtle struct {
	world *World
	name  string
	pos   Vec3i
	inv   *storage.Memory

	// Guarded by world.mu.
	facing  grid.Heading
	agentID string
}

var _ turtle.Body = (*Turtle)(nil)

// Name is the turtle's network name.
func (t *Turtle) Name() string { return t.name }

// Pos returns the turtle's block position.
func (t *Turtle) Pos() Vec3i { return t.pos }

// Facing returns the heading the turtle faces.
func (t *Turtle) Facing() grid.Heading {
	t.world.mu.Lock()
	defer t.world.mu.Unlock()
	return t.facing
}

// SetAgentID sets the id neighbours see when they sense this turtle.
func (t *Turtle) SetAgentID(id string) {
	t.world.mu.Lock()
	defer t.world.mu.Unlock()
	t.agentID = id
}

// target returns the position next to the turtle on side. Callers hold
// world.mu.
func (t *Turtle) target(side grid.Side) Vec3i {
	switch side {
	case grid.Top:
		return t.pos.add(Vec3i{Y: 1})
	case grid.Bottom:
		return t.pos.add(Vec3i{Y: -1})
	}
	return t.pos.add(headingVec(t.facing.Toward(side)))
}

func (t *Turtle) Sense(ctx context.Context, side grid.Side) (turtle.Neighbor, error) {
	if err := ctx.Err(); err != nil {
		return turtle.Neighbor{}, err
	}
	t.world.mu.Lock()
	defer t.world.mu.Unlock()

	b, ok := t.world.blocks[t.target(side)]
	if !ok {
		return turtle.Neighbor{Kind: turtle.KindAir}, nil
	}
	switch b.kind {
	case blockModem:
		return turtle.Neighbor{Kind: turtle.KindModem}, nil
	case blockTurtle:
		return turtle.Neighbor{Kind: turtle.KindAgent, AgentID: b.turtle.agentID}, nil
	}
	return turtle.Neighbor{Kind: turtle.KindBlock, Block: b.item}, nil
}

func (t *Turtle) TurnLeft(ctx context.Context) error {
	return t.turn(ctx, grid.Heading.CounterClockwise)
}

func (t *Turtle) TurnRight(ctx context.Context) error {
	return t.turn(ctx, grid.Heading.Clockwise)
}

func (t *Turtle) turn(ctx context.Context, rotate func(grid.Heading) grid.Heading) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.world.mu.Lock()
	defer t.world.mu.Unlock()
	t.facing = rotate(t.facing)
	return nil
}

func (t *Turtle) Dig(ctx context.Context, side grid.Side) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	t.world.mu.Lock()
	defer t.world.mu.Unlock()

	pos := t.target(side)
	b, ok := t.world.blocks[pos]
	if !ok || b.kind != blockItem {
		return false, nil
	}

	held := storage.NewMemory("dug", 1)
	if err := held.Put(1, storage.Stack{Item: b.item, Count: 1}); err != nil {
		return false, err
	}
	moved, err := held.PushItems(ctx, t.inv, 1, 1, 0)
	if err != nil {
		return false, err
	}
	if moved == 0 {
		return false, fmt.Errorf("digging %s: %w", b.item, ErrInventoryFull)
	}
	delete(t.world.blocks, pos)
	return true, nil
}

func (t *Turtle) Place(ctx context.Context, side grid.Side, slot int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	t.world.mu.Lock()
	defer t.world.mu.Unlock()

	pos := t.target(side)
	if _, taken := t.world.blocks[pos]; taken {
		return false, nil
	}
	slots, err := t.inv.List(ctx)
	if err != nil {
		return false, err
	}
	stack, ok := slots[slot]
	if !ok || stack.Count == 0 {
		return false, nil
	}
	stack.Count--
	if err := t.inv.Put(slot, stack); err != nil {
		return false, err
	}
	t.world.blocks[pos] = &block{kind: blockItem, item: stack.Item}
	return true, nil
}

func (t *Turtle) Inventory() storage.Inventory { return t.inv }

func (t *Turtle) Storages(ctx context.Context) ([]storage.Inventory, error) {
	return t.world.Storages(ctx)
}
