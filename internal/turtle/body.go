package turtle

import (
	"context"

	"github.com/dyluth/turtlegrid/internal/grid"
	"github.com/dyluth/turtlegrid/internal/storage"
)

// Kind classifies what an agent senses on one of its sides.
type Kind int

const (
	KindAir Kind = iota
	KindAgent
	KindModem
	KindBlock
)

func (k Kind) String() string {
	switch k {
	case KindAir:
		return "air"
	case KindAgent:
		return "agent"
	case KindModem:
		return "modem"
	case KindBlock:
		return "block"
	}
	return "unknown"
}

// Neighbor is the result of sensing one side. Block is the item id of a
// plain block; AgentID identifies a neighbouring agent.
type Neighbor struct {
	Kind    Kind
	Block   string
	AgentID string
}

// Body is the physical robot an agent drives. Every call blocks until the
// action completes.
type Body interface {
	Sense(ctx context.Context, side grid.Side) (Neighbor, error)
	TurnLeft(ctx context.Context) error
	TurnRight(ctx context.Context) error
	// Dig removes the block on side into the inventory. It reports false
	// when there was nothing to remove.
	Dig(ctx context.Context, side grid.Side) (bool, error)
	// Place places one item from slot on side. It reports false when the
	// slot is empty or the side is obstructed.
	Place(ctx context.Context, side grid.Side, slot int) (bool, error)
	Inventory() storage.Inventory
	// Storages returns the shared inventories reachable through the network.
	Storages(ctx context.Context) ([]storage.Inventory, error)
}

// Markers names the block items lining the top and left edges of a bordered
// grid.
type Markers struct {
	Top  string `yaml:"top"`
	Left string `yaml:"left"`
}

func (m Markers) classify(n Neighbor) (top, left bool) {
	if n.Kind != KindBlock {
		return false, false
	}
	return n.Block == m.Top, n.Block == m.Left
}
