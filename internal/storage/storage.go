// Package storage abstracts the inventories agents carry and the shared
// chests they exchange blocks with.
//
// Slots are 1-indexed. A transfer moves up to a limit of items from one slot
// into another inventory and reports how many actually moved. Moving nothing
// is not an error: storage is shared and another agent may have emptied the
// slot first.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/dyluth/turtlegrid/internal/grid"
)

// MaxStack is the most items a single slot holds.
const MaxStack = 64

// ErrNoStorage is returned when no shared storage is reachable.
var ErrNoStorage = errors.New("no storage found")

// ErrSlotRange is returned for a slot outside the inventory.
var ErrSlotRange = errors.New("slot out of range")

// Stack is the content of one occupied slot.
type Stack struct {
	Item  string `json:"item"`
	Count int    `json:"count"`
}

// Inventory is anything holding item stacks: an agent's own inventory or a
// chest.
type Inventory interface {
	Name() string
	Size() int
	// List returns the occupied slots.
	List(ctx context.Context) (map[int]Stack, error)
	// PushItems moves up to limit items out of fromSlot into to. A toSlot of 0
	// lets the destination pick the slot.
	PushItems(ctx context.Context, to Inventory, fromSlot, limit, toSlot int) (int, error)
}

// Network enumerates the inventories reachable by the controller.
type Network interface {
	Agents(ctx context.Context) ([]Inventory, error)
	Storages(ctx context.Context) ([]Inventory, error)
	Lookup(name string) (Inventory, bool)
}

// Items maps palette colours to item identifiers.
type Items map[grid.Color]string

var itemNames = [grid.PaletteSize]string{
	"white", "orange", "magenta", "light_blue", "yellow", "lime", "pink", "gray",
	"light_gray", "cyan", "purple", "blue", "brown", "green", "red", "black",
}

// DefaultItems returns the concrete block for every palette colour.
func DefaultItems() Items {
	items := make(Items, grid.PaletteSize)
	for _, c := range grid.Palette() {
		items[c] = "minecraft:" + itemNames[c] + "_concrete"
	}
	return items
}

// Color returns the palette colour an item represents.
func (m Items) Color(item string) (grid.Color, bool) {
	for c, name := range m {
		if name == item {
			return c, true
		}
	}
	return grid.None, false
}

// Validate checks that every palette colour has a distinct item.
func (m Items) Validate() error {
	seen := make(map[string]grid.Color, len(m))
	for _, c := range grid.Palette() {
		item, ok := m[c]
		if !ok || item == "" {
			return fmt.Errorf("no item for color %s", c)
		}
		if other, dup := seen[item]; dup {
			return fmt.Errorf("item %q used for both %s and %s", item, other, c)
		}
		seen[item] = c
	}
	return nil
}

// Find returns the first slot holding item.
func Find(ctx context.Context, inv Inventory, item string) (int, bool, error) {
	slots, err := inv.List(ctx)
	if err != nil {
		return 0, false, err
	}
	best := 0
	for slot, stack := range slots {
		if stack.Item == item && stack.Count > 0 && (best == 0 || slot < best) {
			best = slot
		}
	}
	return best, best != 0, nil
}

// PushAny moves everything in fromSlot into the first targets that accept
// it. It returns the number of items moved and ErrNoStorage if there are no
// targets.
func PushAny(ctx context.Context, from Inventory, fromSlot int, targets []Inventory) (int, error) {
	if len(targets) == 0 {
		return 0, ErrNoStorage
	}
	total := 0
	for _, target := range targets {
		moved, err := from.PushItems(ctx, target, fromSlot, MaxStack, 0)
		if err != nil {
			return total, fmt.Errorf("pushing slot %d of %s into %s: %w", fromSlot, from.Name(), target.Name(), err)
		}
		total += moved

		slots, err := from.List(ctx)
		if err != nil {
			return total, err
		}
		if _, left := slots[fromSlot]; !left {
			break
		}
	}
	return total, nil
}
