package turtle

import (
	"context"
	"fmt"
	"sync"

	"github.com/dyluth/turtlegrid/internal/grid"
)

// mailbox is the single "wanted" slot between listener and drawer. Newer
// values overwrite older ones; nothing is queued.
type mailbox struct {
	mu     sync.Mutex
	wanted grid.Color
	pickup bool
	notify chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{
		wanted: grid.None,
		notify: make(chan struct{}, 1),
	}
}

func (m *mailbox) want(c grid.Color) {
	m.mu.Lock()
	m.wanted = c
	m.mu.Unlock()
	m.wake()
}

func (m *mailbox) requestPickup() {
	m.mu.Lock()
	m.wanted = grid.None
	m.pickup = true
	m.mu.Unlock()
	m.wake()
}

func (m *mailbox) wake() {
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

func (m *mailbox) peek() (grid.Color, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.wanted, m.pickup
}

// done clears the wanted colour unless it has been superseded.
func (m *mailbox) done(c grid.Color) {
	m.mu.Lock()
	if m.wanted == c {
		m.wanted = grid.None
	}
	m.mu.Unlock()
}

func (m *mailbox) pickupDone() {
	m.mu.Lock()
	m.pickup = false
	m.mu.Unlock()
}

func (m *mailbox) take() {
	m.mu.Lock()
	m.wanted = grid.None
	m.pickup = false
	m.mu.Unlock()
}

// draw realises the wanted colour whenever there is one.
func (a *Agent) draw(ctx context.Context) error {
	for {
		if err := a.drain(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-a.box.notify:
		}
	}
}

// drain acts on the mailbox until it is empty or drawing is frozen.
func (a *Agent) drain(ctx context.Context) error {
	for {
		wanted, pickup := a.box.peek()

		if pickup {
			a.box.pickupDone()
			if err := a.Pickup(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				a.logger.Warn("pickup failed", "error", err)
				a.report(ctx, err)
			}
			continue
		}

		if wanted == grid.None || a.frozen.Load() {
			return nil
		}

		if err := a.PlaceColor(ctx, wanted); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.logger.Warn("draw failed", "color", wanted, "error", err)
			a.report(ctx, err)
			a.box.done(wanted)
		}
	}
}

// PlaceColor swaps the block on the draw side for one of colour c. Placing
// the colour already shown does nothing. If a different colour is wanted
// once the old block is gone, or drawing is frozen meanwhile, the new block
// is not placed and the caller retargets.
func (a *Agent) PlaceColor(ctx context.Context, c grid.Color) error {
	if !c.Valid() {
		return fmt.Errorf("%w: %d", grid.ErrInvalidColor, c)
	}
	if a.Current() == c {
		a.box.done(c)
		return nil
	}

	side := a.opts.Topology.DrawSide()
	if _, err := a.body.Dig(ctx, side); err != nil {
		return fmt.Errorf("removing %s: %w", describe(a.Current()), err)
	}
	if err := a.setCurrent(ctx, grid.None); err != nil {
		return err
	}

	if wanted, pickup := a.box.peek(); pickup || (wanted != grid.None && wanted != c) {
		a.logger.Debug("retargeting", "from", c, "to", describe(wanted))
		return nil
	}
	if a.frozen.Load() {
		return nil
	}

	placed, err := a.body.Place(ctx, side, c.Slot())
	if err != nil {
		return fmt.Errorf("placing %s: %w", c, err)
	}
	if !placed {
		return fmt.Errorf("could not place %s from slot %d", c, c.Slot())
	}
	if err := a.setCurrent(ctx, c); err != nil {
		return err
	}
	a.box.done(c)
	return nil
}

// Pickup retracts the placed block without placing a replacement.
func (a *Agent) Pickup(ctx context.Context) error {
	if _, err := a.body.Dig(ctx, a.opts.Topology.DrawSide()); err != nil {
		return fmt.Errorf("picking up %s: %w", describe(a.Current()), err)
	}
	return a.setCurrent(ctx, grid.None)
}
