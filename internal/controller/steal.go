package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dyluth/turtlegrid/internal/grid"
	"github.com/dyluth/turtlegrid/internal/storage"
	"github.com/dyluth/turtlegrid/pkg/gridbus"
)

// StealOptions configures StealItems.
type StealOptions struct {
	// Items maps colours to item ids. Nil uses the controller's items.
	Items storage.Items
	// Destinations maps colours to the inventory that collects them. When
	// set, every agent is drained into Buffer first and the buffer is then
	// sorted into the destinations.
	Destinations map[grid.Color]string
	// Buffer names the inventory agents are drained into when sorting.
	Buffer string
	// SkipFreeze skips the freeze when the caller knows nothing is drawing.
	SkipFreeze bool
}

// StealResult counts what StealItems moved.
type StealResult struct {
	Agents  int
	Drained int
	Sorted  int
}

// StealItems pulls every block out of every agent. Agents are frozen, told
// to pick up their placed block, and then drained one at a time with all of
// an agent's slots moved concurrently. Without destinations each stack goes
// to the first storage that accepts it. Agents are thawed afterwards, also
// when draining fails.
func (c *Controller) StealItems(ctx context.Context, opts StealOptions) (StealResult, error) {
	var result StealResult

	c.mu.RLock()
	network := c.network
	c.mu.RUnlock()
	if network == nil {
		return result, fmt.Errorf("%w: no inventory network attached", storage.ErrNoStorage)
	}
	if opts.Items == nil {
		opts.Items = c.opts.Items
	}

	var buffer storage.Inventory
	if len(opts.Destinations) > 0 {
		if opts.Buffer == "" {
			return result, errors.New("sorting into destinations needs a buffer inventory")
		}
		var ok bool
		if buffer, ok = network.Lookup(opts.Buffer); !ok {
			return result, fmt.Errorf("%w: buffer %q not found", storage.ErrNoStorage, opts.Buffer)
		}
		for color, name := range opts.Destinations {
			if _, ok := network.Lookup(name); !ok {
				return result, fmt.Errorf("%w: destination %q for %s not found", storage.ErrNoStorage, name, color)
			}
		}
	}

	if !opts.SkipFreeze {
		if err := c.Freeze(ctx); err != nil {
			return result, err
		}
	}
	defer func() {
		if err := c.Thaw(context.WithoutCancel(ctx)); err != nil {
			c.logger.Warn("thaw after steal failed", "error", err)
		}
	}()

	if err := c.broadcast(ctx, gridbus.Pickup{}); err != nil {
		return result, err
	}
	if err := sleep(ctx, c.opts.StealSettle); err != nil {
		return result, err
	}

	agents, err := network.Agents(ctx)
	if err != nil {
		return result, err
	}

	var targets []storage.Inventory
	if buffer != nil {
		targets = []storage.Inventory{buffer}
	} else {
		if targets, err = network.Storages(ctx); err != nil {
			return result, err
		}
		if len(targets) == 0 {
			return result, storage.ErrNoStorage
		}
	}

	for _, agent := range agents {
		moved, err := drain(ctx, agent, targets)
		result.Drained += moved
		if err != nil {
			return result, fmt.Errorf("draining %s: %w", agent.Name(), err)
		}
		result.Agents++

		if buffer != nil {
			sorted, err := sortInto(ctx, buffer, opts.Items, opts.Destinations, network)
			result.Sorted += sorted
			if err != nil {
				return result, err
			}
		}
		c.logger.Debug("drained agent", "agent", agent.Name(), "moved", moved)
	}

	c.logger.Info("steal complete", "agents", result.Agents, "drained", result.Drained, "sorted", result.Sorted)
	return result, nil
}

// drain empties all palette slots of one agent concurrently.
func drain(ctx context.Context, agent storage.Inventory, targets []storage.Inventory) (int, error) {
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
		errs  []error
	)
	for slot := 1; slot <= grid.PaletteSize; slot++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			moved, err := storage.PushAny(ctx, agent, slot, targets)
			mu.Lock()
			defer mu.Unlock()
			total += moved
			if err != nil {
				errs = append(errs, err)
			}
		}(slot)
	}
	wg.Wait()
	return total, errors.Join(errs...)
}

// sortInto moves every buffered stack whose colour has a destination.
func sortInto(ctx context.Context, buffer storage.Inventory, items storage.Items, dests map[grid.Color]string, network storage.Network) (int, error) {
	slots, err := buffer.List(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for slot, stack := range slots {
		color, ok := items.Color(stack.Item)
		if !ok {
			continue
		}
		name, ok := dests[color]
		if !ok {
			continue
		}
		dest, _ := network.Lookup(name)
		moved, err := buffer.PushItems(ctx, dest, slot, stack.Count, 0)
		total += moved
		if err != nil {
			return total, fmt.Errorf("sorting %s into %s: %w", color, name, err)
		}
	}
	return total, nil
}
