package turtle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dyluth/turtlegrid/internal/grid"
)

var (
	// ErrOrientation means the agent is not mounted the way its topology
	// requires. It is structural and never retried.
	ErrOrientation = errors.New("modem is not where the topology requires it")

	// ErrPositionUnresolvable means neighbour positions were present but
	// could not be used to derive this agent's position.
	ErrPositionUnresolvable = errors.New("position determination failed")
)

// maxTurns bounds the rotation search for the modem on a chained grid.
const maxTurns = 4

// PeerDirectory answers where a neighbouring agent believes it is.
type PeerDirectory interface {
	PeerPosition(ctx context.Context, agentID string) (grid.Coord, bool, error)
}

// Resolver discovers an agent's grid position from its neighbours.
type Resolver struct {
	body     Body
	peers    PeerDirectory
	topology grid.Topology
	markers  Markers
	interval time.Duration
	logger   *slog.Logger
}

// NewResolver creates a resolver polling unresolved neighbours every
// interval.
func NewResolver(body Body, peers PeerDirectory, topology grid.Topology, markers Markers, interval time.Duration) *Resolver {
	if interval <= 0 {
		interval = time.Second
	}
	return &Resolver{
		body:     body,
		peers:    peers,
		topology: topology,
		markers:  markers,
		interval: interval,
		logger:   slog.Default().With("component", "resolver"),
	}
}

// CheckOrientation verifies the modem placement. On a chained grid it also
// turns the agent until the modem is behind it, so the draw side faces the
// viewer.
func (r *Resolver) CheckOrientation(ctx context.Context) error {
	if r.topology == grid.Bordered {
		below, err := r.body.Sense(ctx, grid.Bottom)
		if err != nil {
			return err
		}
		if below.Kind != KindModem {
			return fmt.Errorf("%w: expected modem below, found %s", ErrOrientation, below.Kind)
		}
		return nil
	}

	for turns := 0; ; turns++ {
		back, err := r.body.Sense(ctx, grid.Back)
		if err != nil {
			return err
		}
		if back.Kind == KindModem {
			if turns > 0 {
				r.logger.Debug("turned to put modem behind", "turns", turns)
			}
			return nil
		}
		if turns == maxTurns {
			return fmt.Errorf("%w: no modem on any horizontal side after %d turns", ErrOrientation, maxTurns)
		}
		if err := r.body.TurnRight(ctx); err != nil {
			return fmt.Errorf("turning: %w", err)
		}
	}
}

// Resolve determines the agent's position. It blocks, polling every
// interval, until enough neighbours have resolved or ctx is done.
func (r *Resolver) Resolve(ctx context.Context) (grid.Coord, error) {
	if r.topology == grid.Bordered {
		return r.resolveBordered(ctx)
	}
	return r.resolveChained(ctx)
}

func (r *Resolver) resolveChained(ctx context.Context) (grid.Coord, error) {
	right, err := r.body.Sense(ctx, grid.Right)
	if err != nil {
		return grid.Coord{}, err
	}
	top, err := r.body.Sense(ctx, grid.Top)
	if err != nil {
		return grid.Coord{}, err
	}
	hasRight, hasTop := right.Kind == KindAgent, top.Kind == KindAgent

	switch {
	case hasRight && hasTop:
		var pos grid.Coord
		err := r.poll(ctx, func() (bool, error) {
			if p, ok, err := r.peer(ctx, right.AgentID); err != nil || ok {
				pos = grid.Coord{X: p.X + 1, Y: p.Y}
				return ok, err
			}
			p, ok, err := r.peer(ctx, top.AgentID)
			pos = grid.Coord{X: p.X, Y: p.Y + 1}
			return ok, err
		})
		return pos, err

	case hasRight:
		p, err := r.waitFor(ctx, right.AgentID)
		return grid.Coord{X: p.X + 1, Y: 1}, err

	case hasTop:
		p, err := r.waitFor(ctx, top.AgentID)
		return grid.Coord{X: 1, Y: p.Y + 1}, err
	}

	return grid.Anchor, nil
}

func (r *Resolver) resolveBordered(ctx context.Context) (grid.Coord, error) {
	around := make(map[grid.Side]Neighbor, len(grid.Horizontal))
	var topSide, leftSide grid.Side
	for _, side := range grid.Horizontal {
		n, err := r.body.Sense(ctx, side)
		if err != nil {
			return grid.Coord{}, err
		}
		around[side] = n
		isTop, isLeft := r.markers.classify(n)
		if isTop {
			topSide = side
		}
		if isLeft {
			leftSide = side
		}
	}

	switch {
	case topSide != "" && leftSide != "":
		return grid.Anchor, nil

	case topSide != "":
		west := around[topSide.CounterClockwise()]
		if west.Kind != KindAgent {
			return grid.Coord{}, fmt.Errorf("%w: top edge agent has no west neighbour", ErrPositionUnresolvable)
		}
		p, err := r.waitFor(ctx, west.AgentID)
		return grid.Coord{X: p.X + 1, Y: 1}, err

	case leftSide != "":
		north := around[leftSide.Clockwise()]
		if north.Kind != KindAgent {
			return grid.Coord{}, fmt.Errorf("%w: left edge agent has no north neighbour", ErrPositionUnresolvable)
		}
		p, err := r.waitFor(ctx, north.AgentID)
		return grid.Coord{X: 1, Y: p.Y + 1}, err
	}

	var agents []grid.Side
	for _, side := range grid.Horizontal {
		if around[side].Kind == KindAgent {
			agents = append(agents, side)
		}
	}
	if len(agents) < 2 {
		return grid.Coord{}, fmt.Errorf("%w: %d agent neighbours and no edge markers", ErrPositionUnresolvable, len(agents))
	}

	var pos grid.Coord
	err := r.poll(ctx, func() (bool, error) {
		known := make(map[grid.Side]grid.Coord, len(agents))
		for _, side := range agents {
			p, ok, err := r.peer(ctx, around[side].AgentID)
			if err != nil {
				return false, err
			}
			if ok {
				known[side] = p
			}
		}
		if len(known) < 2 {
			return false, nil
		}
		var err error
		pos, err = infer(known)
		return err == nil, err
	})
	return pos, err
}

// infer derives a position from at least two resolved horizontal
// neighbours whose sides are relative to an unknown heading.
//
// An opposite pair straddles the agent, so the position is the midpoint. For
// an adjacent pair at sides s and cw(s), with d the unknown grid step toward
// s, the two neighbours sit at p+d and p+rot(d). Their difference rot(d)-d is
// distinct for each of the four headings, which recovers d and hence p.
func infer(known map[grid.Side]grid.Coord) (grid.Coord, error) {
	for _, s := range grid.Horizontal {
		p1, ok1 := known[s]
		p2, ok2 := known[s.Opposite()]
		if !ok1 || !ok2 {
			continue
		}
		dx, dy := p1.X-p2.X, p1.Y-p2.Y
		if abs(dx)+abs(dy) != 2 || (dx != 0 && dy != 0) {
			return grid.Coord{}, fmt.Errorf("%w: opposite neighbours %s and %s are not two apart", ErrPositionUnresolvable, p1, p2)
		}
		return grid.Coord{X: (p1.X + p2.X) / 2, Y: (p1.Y + p2.Y) / 2}, nil
	}

	for _, s := range grid.Horizontal {
		p1, ok1 := known[s]
		p2, ok2 := known[s.Clockwise()]
		if !ok1 || !ok2 {
			continue
		}
		diff := p2.Sub(p1)
		for h := grid.North; h <= grid.West; h++ {
			d := h.Delta()
			rd := h.Clockwise().Delta()
			if diff == (grid.Delta{DX: rd.DX - d.DX, DY: rd.DY - d.DY}) {
				return p1.Add(grid.Delta{DX: -d.DX, DY: -d.DY}), nil
			}
		}
		return grid.Coord{}, fmt.Errorf("%w: adjacent neighbours %s and %s are not diagonal", ErrPositionUnresolvable, p1, p2)
	}

	return grid.Coord{}, fmt.Errorf("%w: no usable neighbour pair", ErrPositionUnresolvable)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// peer reads a neighbour's position, mapping malformed labels to
// ErrPositionUnresolvable.
func (r *Resolver) peer(ctx context.Context, agentID string) (grid.Coord, bool, error) {
	p, ok, err := r.peers.PeerPosition(ctx, agentID)
	if errors.Is(err, grid.ErrMalformedLabel) {
		return grid.Coord{}, false, fmt.Errorf("%w: neighbour %s: %v", ErrPositionUnresolvable, agentID, err)
	}
	return p, ok, err
}

func (r *Resolver) waitFor(ctx context.Context, agentID string) (grid.Coord, error) {
	var pos grid.Coord
	err := r.poll(ctx, func() (bool, error) {
		p, ok, err := r.peer(ctx, agentID)
		pos = p
		return ok, err
	})
	return pos, err
}

// poll runs check immediately and then every interval until it reports done,
// fails, or ctx is cancelled.
func (r *Resolver) poll(ctx context.Context, check func() (bool, error)) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		done, err := check()
		if err != nil || done {
			return err
		}
		r.logger.Debug("waiting for neighbour positions")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
