package storage

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

var memorySeq atomic.Uint64

// Memory is an in-process inventory. Transfers between Memory inventories are
// atomic, which mirrors how the game serialises individual transfers.
type Memory struct {
	name  string
	size  int
	order uint64

	mu    sync.Mutex
	slots map[int]Stack
}

// NewMemory returns an empty inventory with the given number of slots.
func NewMemory(name string, size int) *Memory {
	return &Memory{
		name:  name,
		size:  size,
		order: memorySeq.Add(1),
		slots: make(map[int]Stack),
	}
}

func (m *Memory) Name() string { return m.name }

func (m *Memory) Size() int { return m.size }

func (m *Memory) List(ctx context.Context) (map[int]Stack, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[int]Stack, len(m.slots))
	for slot, stack := range m.slots {
		out[slot] = stack
	}
	return out, nil
}

// Put fills a slot directly. Used to stock chests and in tests.
func (m *Memory) Put(slot int, stack Stack) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if slot < 1 || slot > m.size {
		return fmt.Errorf("%w: %d", ErrSlotRange, slot)
	}
	if stack.Count <= 0 {
		delete(m.slots, slot)
		return nil
	}
	m.slots[slot] = stack
	return nil
}

// Count returns how many of item the inventory holds.
func (m *Memory) Count(item string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, stack := range m.slots {
		if stack.Item == item {
			n += stack.Count
		}
	}
	return n
}

func (m *Memory) PushItems(ctx context.Context, to Inventory, fromSlot, limit, toSlot int) (int, error) {
	dst, ok := to.(*Memory)
	if !ok {
		return 0, fmt.Errorf("cannot transfer from %s into %T", m.name, to)
	}
	if fromSlot < 1 || fromSlot > m.size {
		return 0, fmt.Errorf("%w: %s slot %d", ErrSlotRange, m.name, fromSlot)
	}
	if toSlot < 0 || toSlot > dst.size {
		return 0, fmt.Errorf("%w: %s slot %d", ErrSlotRange, dst.name, toSlot)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	unlock := lockPair(m, dst)
	defer unlock()

	src, ok := m.slots[fromSlot]
	if !ok || limit <= 0 {
		return 0, nil
	}
	if limit > src.Count {
		limit = src.Count
	}

	skip := 0
	if m == dst {
		if toSlot == fromSlot {
			return 0, nil
		}
		skip = fromSlot
	}

	moved := 0
	if toSlot > 0 {
		moved = dst.insertInto(toSlot, src.Item, limit)
	} else {
		moved = dst.insertAnywhere(src.Item, limit, skip)
	}
	// Moving within one inventory reads the source after the insert.
	if m == dst {
		src = m.slots[fromSlot]
	}

	src.Count -= moved
	if src.Count <= 0 {
		delete(m.slots, fromSlot)
	} else {
		m.slots[fromSlot] = src
	}
	return moved, nil
}

func (m *Memory) insertInto(slot int, item string, n int) int {
	current, ok := m.slots[slot]
	if ok && current.Item != item {
		return 0
	}
	room := MaxStack - current.Count
	if n > room {
		n = room
	}
	if n <= 0 {
		return 0
	}
	m.slots[slot] = Stack{Item: item, Count: current.Count + n}
	return n
}

func (m *Memory) insertAnywhere(item string, n, skip int) int {
	moved := 0
	for slot := 1; slot <= m.size && moved < n; slot++ {
		if slot == skip {
			continue
		}
		if current, ok := m.slots[slot]; ok && current.Item == item {
			moved += m.insertInto(slot, item, n-moved)
		}
	}
	for slot := 1; slot <= m.size && moved < n; slot++ {
		if _, ok := m.slots[slot]; !ok {
			moved += m.insertInto(slot, item, n-moved)
		}
	}
	return moved
}

func lockPair(a, b *Memory) func() {
	if a == b {
		a.mu.Lock()
		return a.mu.Unlock
	}
	first, second := a, b
	if b.order < a.order {
		first, second = b, a
	}
	first.mu.Lock()
	second.mu.Lock()
	return func() {
		second.mu.Unlock()
		first.mu.Unlock()
	}
}

// MemoryNetwork is a fixed set of agent inventories and shared storages.
type MemoryNetwork struct {
	agents   []Inventory
	storages []Inventory
	byName   map[string]Inventory
}

// NewMemoryNetwork indexes the given inventories by name.
func NewMemoryNetwork(agents, storages []Inventory) *MemoryNetwork {
	n := &MemoryNetwork{
		agents:   agents,
		storages: storages,
		byName:   make(map[string]Inventory, len(agents)+len(storages)),
	}
	for _, inv := range agents {
		n.byName[inv.Name()] = inv
	}
	for _, inv := range storages {
		n.byName[inv.Name()] = inv
	}
	return n
}

func (n *MemoryNetwork) Agents(ctx context.Context) ([]Inventory, error) {
	return n.agents, nil
}

func (n *MemoryNetwork) Storages(ctx context.Context) ([]Inventory, error) {
	return n.storages, nil
}

func (n *MemoryNetwork) Lookup(name string) (Inventory, bool) {
	inv, ok := n.byName[name]
	return inv, ok
}
