package turtle

import (
	"context"
	"errors"

	"github.com/dyluth/turtlegrid/internal/grid"
	"github.com/dyluth/turtlegrid/pkg/gridbus"
)

// listen demultiplexes inbound messages into the mailbox until ctx is done
// or a reset arrives.
func (a *Agent) listen(ctx context.Context, sub *gridbus.Subscription, pos grid.Coord) error {
	a.logger.Debug("listening", "cell_channel", gridbus.CellChannel(pos.Cell().X, pos.Cell().Y))

	subErrs := sub.Errors()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case d, ok := <-sub.Deliveries():
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return errors.New("bus subscription closed")
			}
			if err := a.handle(ctx, d, pos); err != nil {
				return err
			}

		case err, ok := <-subErrs:
			if !ok {
				subErrs = nil
				continue
			}
			a.logger.Warn("bus error", "error", err)
		}
	}
}

func (a *Agent) handle(ctx context.Context, d *gridbus.Delivery, pos grid.Coord) error {
	switch m := d.Message.(type) {
	case gridbus.Character:
		a.want(a.glyphColor(m, pos))

	case gridbus.Place:
		if m.Coord() == pos {
			a.want(m.Color)
		}

	case gridbus.PlaceBatch:
		for _, p := range m.Pixels {
			if p.Coord() == pos {
				a.want(p.Color)
			}
		}

	case gridbus.Clear:
		a.want(m.Color)

	case gridbus.Reset:
		return ErrReset

	case gridbus.Freeze:
		a.frozen.Store(true)
		a.setPhase(PhaseFrozen)

	case gridbus.Thaw:
		a.frozen.Store(false)
		a.setPhase(PhaseReady)
		a.box.wake()

	case gridbus.Pickup:
		a.box.requestPickup()

	case gridbus.SizeQuery:
		a.answerSize(ctx, d.Reply, pos)

	case gridbus.Size, gridbus.ErrorReport:
		// Agent to controller traffic.

	default:
		a.logger.Warn("unhandled message", "action", d.Message.Action())
	}
	return nil
}

func (a *Agent) want(c grid.Color) {
	if !c.Valid() {
		a.logger.Warn("ignoring invalid color", "color", int(c))
		return
	}
	a.box.want(c)
}

// glyphColor picks foreground or background for this agent's pixel of a
// glyph.
func (a *Agent) glyphColor(m gridbus.Character, pos grid.Coord) grid.Color {
	if a.font == nil {
		return m.Bg
	}
	ix, iy := pos.Inner()
	if a.font.Foreground(m.GlyphX, m.GlyphY, ix, iy) {
		return m.Fg
	}
	return m.Bg
}

func (a *Agent) answerSize(ctx context.Context, reply int, pos grid.Coord) {
	corner, err := a.IsBottomRight(ctx)
	if err != nil {
		a.logger.Warn("bottom-right check failed", "error", err)
		return
	}
	if !corner {
		return
	}
	if reply == 0 {
		reply = gridbus.ReplyChannel
	}
	w, h := grid.CellsFor(pos)
	if err := a.bus.Transmit(ctx, reply, 0, gridbus.Size{Width: w, Height: h}); err != nil {
		a.logger.Warn("failed to answer size query", "error", err)
	}
}

// IsBottomRight reports whether this agent answers size queries: it has a
// position and no agent neighbour sits at (x+1, y) or (x, y+1). A neighbour
// that has not resolved yet makes the answer false until it has.
func (a *Agent) IsBottomRight(ctx context.Context) (bool, error) {
	pos, ok := a.Position()
	if !ok {
		return false, nil
	}
	a.mu.Lock()
	cached := a.corner
	a.mu.Unlock()
	if cached != nil {
		return *cached, nil
	}

	right := pos.Add(grid.Delta{DX: 1})
	below := pos.Add(grid.Delta{DY: 1})
	corner := true
	for _, side := range grid.Sides {
		n, err := a.body.Sense(ctx, side)
		if err != nil {
			return false, err
		}
		if n.Kind != KindAgent {
			continue
		}
		p, known, err := a.bus.PeerPosition(ctx, n.AgentID)
		if err != nil {
			return false, err
		}
		if !known {
			return false, nil
		}
		if p == right || p == below {
			corner = false
			break
		}
	}

	a.mu.Lock()
	a.corner = &corner
	a.mu.Unlock()
	return corner, nil
}
