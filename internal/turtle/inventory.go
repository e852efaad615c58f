package turtle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dyluth/turtlegrid/internal/grid"
	"github.com/dyluth/turtlegrid/internal/storage"
)

// Reconcile polls until the agent holds exactly one block of every palette
// colour in that colour's slot. The slot of the colour currently placed is
// expected to be empty. An unreachable storage is reported and retried; it
// never ends the phase.
func (a *Agent) Reconcile(ctx context.Context) error {
	ticker := time.NewTicker(a.opts.ReconcileInterval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		done, err := a.reconcileOnce(ctx)
		switch {
		case err == nil && done:
			if attempt > 1 {
				a.logger.Info("inventory complete", "attempts", attempt)
			}
			return nil
		case errors.Is(err, storage.ErrNoStorage):
			a.logger.Warn("inventory incomplete and no storage reachable")
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.logger.Warn("inventory reconciliation failed", "error", err)
		default:
			a.logger.Debug("inventory incomplete, retrying", "attempt", attempt)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// wantCount returns how many of colour c belong in its slot.
func (a *Agent) wantCount(c grid.Color) int {
	if c == a.Current() {
		return 0
	}
	return 1
}

func (a *Agent) reconcileOnce(ctx context.Context) (bool, error) {
	inv := a.body.Inventory()
	var storages []storage.Inventory
	storagesLoaded := false
	reachable := func() ([]storage.Inventory, error) {
		if storagesLoaded {
			return storages, nil
		}
		var err error
		storages, err = a.body.Storages(ctx)
		if err != nil {
			return nil, err
		}
		storagesLoaded = true
		return storages, nil
	}

	slots, err := inv.List(ctx)
	if err != nil {
		return false, err
	}

	// Put every stack where it belongs or hand it back.
	for slot, stack := range slots {
		c, known := a.opts.Items.Color(stack.Item)
		keep := 0
		if known && c.Slot() == slot {
			keep = a.wantCount(c)
		}
		if stack.Count <= keep {
			continue
		}

		if known && c.Slot() != slot {
			if _, held := slots[c.Slot()]; !held && a.wantCount(c) > 0 {
				if _, err := inv.PushItems(ctx, inv, slot, 1, c.Slot()); err != nil {
					return false, fmt.Errorf("moving %s to slot %d: %w", c, c.Slot(), err)
				}
				slots[c.Slot()] = storage.Stack{Item: stack.Item, Count: 1}
			}
		}

		targets, err := reachable()
		if err != nil {
			return false, err
		}
		if err := returnSurplus(ctx, inv, slot, keep, targets); err != nil {
			return false, err
		}
	}

	// Claim what is missing, one block at a time.
	slots, err = inv.List(ctx)
	if err != nil {
		return false, err
	}
	complete := true
	for _, c := range grid.Palette() {
		need := a.wantCount(c)
		have := slots[c.Slot()]
		if have.Count >= need {
			continue
		}
		if have.Count > 0 && have.Item != a.opts.Items[c] {
			complete = false
			continue
		}

		targets, err := reachable()
		if err != nil {
			return false, err
		}
		if len(targets) == 0 {
			return false, storage.ErrNoStorage
		}
		claimed, err := a.claim(ctx, inv, c, targets)
		if err != nil {
			return false, err
		}
		if !claimed {
			complete = false
		}
	}

	if !complete {
		return false, nil
	}
	slots, err = inv.List(ctx)
	if err != nil {
		return false, err
	}
	return a.inventoryComplete(slots), nil
}

// claim pulls one block of colour c from the first storage that has it.
// Losing a race for the last block to another agent just moves on.
func (a *Agent) claim(ctx context.Context, inv storage.Inventory, c grid.Color, targets []storage.Inventory) (bool, error) {
	item := a.opts.Items[c]
	for _, target := range targets {
		slot, found, err := storage.Find(ctx, target, item)
		if err != nil {
			return false, err
		}
		if !found {
			continue
		}
		moved, err := target.PushItems(ctx, inv, slot, 1, c.Slot())
		if err != nil {
			return false, fmt.Errorf("claiming %s from %s: %w", c, target.Name(), err)
		}
		if moved == 1 {
			a.logger.Debug("claimed block", "color", c, "from", target.Name())
			return true, nil
		}
	}
	return false, nil
}

// returnSurplus pushes everything beyond keep out of slot.
func returnSurplus(ctx context.Context, inv storage.Inventory, slot, keep int, targets []storage.Inventory) error {
	if len(targets) == 0 {
		return storage.ErrNoStorage
	}
	for _, target := range targets {
		slots, err := inv.List(ctx)
		if err != nil {
			return err
		}
		surplus := slots[slot].Count - keep
		if surplus <= 0 {
			return nil
		}
		if _, err := inv.PushItems(ctx, target, slot, surplus, 0); err != nil {
			return fmt.Errorf("returning slot %d to %s: %w", slot, target.Name(), err)
		}
	}
	return nil
}

func (a *Agent) inventoryComplete(slots map[int]storage.Stack) bool {
	for slot, stack := range slots {
		c, known := a.opts.Items.Color(stack.Item)
		if !known || c.Slot() != slot || stack.Count != a.wantCount(c) {
			return false
		}
	}
	for _, c := range grid.Palette() {
		if slots[c.Slot()].Count != a.wantCount(c) {
			return false
		}
	}
	return true
}
