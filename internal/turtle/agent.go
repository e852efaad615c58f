// Package turtle runs one display agent: it checks how it is mounted, stocks
// its palette, discovers its grid position and then draws whatever the
// controller asks of it.
package turtle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dyluth/turtlegrid/internal/font"
	"github.com/dyluth/turtlegrid/internal/grid"
	"github.com/dyluth/turtlegrid/internal/state"
	"github.com/dyluth/turtlegrid/internal/storage"
	"github.com/dyluth/turtlegrid/pkg/gridbus"
)

// ErrReset is returned internally when the controller asks for a reset. The
// agent wipes its state and boots again.
var ErrReset = errors.New("reset requested")

// Phase is a state of the agent lifecycle.
type Phase string

const (
	PhaseBooting     Phase = "booting"
	PhaseOrientation Phase = "orientation-checking"
	PhaseReconciling Phase = "inventory-reconciling"
	PhaseResolving   Phase = "position-resolving"
	PhaseReady       Phase = "ready"
	PhaseFrozen      Phase = "frozen"
	PhaseResetting   Phase = "resetting"
	PhaseFailed      Phase = "failed"
	PhaseStopped     Phase = "stopped"
)

// Bus is the part of the message bus an agent uses.
type Bus interface {
	PeerDirectory
	Transmit(ctx context.Context, channel, reply int, msg gridbus.Message) error
	Open(ctx context.Context, channels ...int) (*gridbus.Subscription, error)
	PublishLabel(ctx context.Context, agentID string, pos *grid.Coord) error
}

// Store persists the agent record across reboots.
type Store interface {
	Load(ctx context.Context) (*state.Record, error)
	SavePosition(ctx context.Context, pos grid.Coord) error
	SaveColor(ctx context.Context, c grid.Color) error
	Clear(ctx context.Context) error
}

// Options configures an agent.
type Options struct {
	Topology grid.Topology
	Markers  Markers
	Items    storage.Items

	// ResolveInterval is how often unresolved neighbours are polled.
	ResolveInterval time.Duration
	// ReconcileInterval is how often an incomplete palette is retried.
	ReconcileInterval time.Duration
}

func (o *Options) applyDefaults() {
	if o.Topology == "" {
		o.Topology = grid.Chained
	}
	if o.Items == nil {
		o.Items = storage.DefaultItems()
	}
	if o.ResolveInterval <= 0 {
		o.ResolveInterval = time.Second
	}
	if o.ReconcileInterval <= 0 {
		o.ReconcileInterval = 5 * time.Second
	}
}

// Agent is the per-agent context shared by the listener and the drawer.
type Agent struct {
	opts     Options
	body     Body
	bus      Bus
	store    Store
	font     *font.Font
	resolver *Resolver
	logger   *slog.Logger

	phase  atomic.Value // Phase
	frozen atomic.Bool
	box    *mailbox

	mu       sync.Mutex
	agentID  string
	position *grid.Coord
	current  grid.Color
	corner   *bool
}

// New creates an agent. Nothing happens until Run is called.
func New(opts Options, body Body, bus Bus, store Store, glyphs *font.Font) *Agent {
	opts.applyDefaults()
	a := &Agent{
		opts:     opts,
		body:     body,
		bus:      bus,
		store:    store,
		font:     glyphs,
		resolver: NewResolver(body, bus, opts.Topology, opts.Markers, opts.ResolveInterval),
		logger:   slog.Default().With("component", "turtle"),
		box:      newMailbox(),
		current:  grid.None,
	}
	a.phase.Store(PhaseBooting)
	return a
}

// Phase returns the current lifecycle phase.
func (a *Agent) Phase() Phase {
	return a.phase.Load().(Phase)
}

// ID returns the agent id once the record has been loaded.
func (a *Agent) ID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.agentID
}

// Position returns the resolved position.
func (a *Agent) Position() (grid.Coord, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.position == nil {
		return grid.Coord{}, false
	}
	return *a.position, true
}

// Current returns the colour the agent believes it has placed.
func (a *Agent) Current() grid.Color {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

func (a *Agent) setPhase(p Phase) {
	if a.Phase() != p {
		a.logger.Info("phase", "phase", p)
	}
	a.phase.Store(p)
}

// Run drives the agent until ctx is cancelled or a fatal error occurs. A
// reset from the controller clears durable state and starts over at boot.
// Fatal errors are reported on the error channel before being returned.
func (a *Agent) Run(ctx context.Context) error {
	for {
		err := a.boot(ctx)
		if errors.Is(err, ErrReset) {
			a.setPhase(PhaseResetting)
			if err := a.reset(ctx); err != nil {
				return a.fail(ctx, err)
			}
			continue
		}
		if ctx.Err() != nil {
			a.setPhase(PhaseStopped)
			return nil
		}
		if err != nil {
			return a.fail(ctx, err)
		}
		a.setPhase(PhaseStopped)
		return nil
	}
}

func (a *Agent) fail(ctx context.Context, err error) error {
	a.setPhase(PhaseFailed)
	a.logger.Error("agent failed", "error", err)
	a.report(ctx, err)
	return err
}

func (a *Agent) boot(ctx context.Context) error {
	a.setPhase(PhaseBooting)
	rec, err := a.store.Load(ctx)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.agentID = rec.AgentID
	a.position = rec.Position
	a.current = rec.Color
	a.corner = nil
	a.mu.Unlock()
	a.logger = slog.Default().With("component", "turtle", "agent", rec.AgentID)
	a.resolver.logger = a.logger.With("component", "resolver")

	if err := a.bus.PublishLabel(ctx, rec.AgentID, rec.Position); err != nil {
		return err
	}

	a.setPhase(PhaseOrientation)
	if err := a.resolver.CheckOrientation(ctx); err != nil {
		return err
	}
	if err := a.syncPlaced(ctx); err != nil {
		return err
	}

	a.setPhase(PhaseReconciling)
	if err := a.Reconcile(ctx); err != nil {
		return err
	}

	a.setPhase(PhaseResolving)
	pos, err := a.ResolvePosition(ctx)
	if err != nil {
		return err
	}
	a.logger = a.logger.With("position", pos.String())

	return a.serve(ctx, pos)
}

// ResolvePosition returns the persisted position, or discovers, persists and
// publishes it. A persisted position involves no neighbour queries.
func (a *Agent) ResolvePosition(ctx context.Context) (grid.Coord, error) {
	if pos, ok := a.Position(); ok {
		return pos, nil
	}

	pos, err := a.resolver.Resolve(ctx)
	if err != nil {
		return grid.Coord{}, err
	}
	if err := a.store.SavePosition(ctx, pos); err != nil {
		return grid.Coord{}, err
	}
	a.mu.Lock()
	a.position = &pos
	a.mu.Unlock()

	if err := a.bus.PublishLabel(ctx, a.ID(), &pos); err != nil {
		return grid.Coord{}, err
	}
	a.logger.Info("position resolved", "position", pos.String())
	return pos, nil
}

// syncPlaced trusts the world over the stored colour: whatever block sits
// on the draw side is what the agent has placed.
func (a *Agent) syncPlaced(ctx context.Context) error {
	n, err := a.body.Sense(ctx, a.opts.Topology.DrawSide())
	if err != nil {
		return err
	}
	placed := grid.None
	if n.Kind == KindBlock {
		if c, ok := a.opts.Items.Color(n.Block); ok {
			placed = c
		}
	}
	if placed == a.Current() {
		return nil
	}
	a.logger.Debug("placed block differs from record", "stored", a.Current(), "sensed", placed)
	return a.setCurrent(ctx, placed)
}

func (a *Agent) setCurrent(ctx context.Context, c grid.Color) error {
	if err := a.store.SaveColor(ctx, c); err != nil {
		return err
	}
	a.mu.Lock()
	a.current = c
	a.mu.Unlock()
	return nil
}

func (a *Agent) reset(ctx context.Context) error {
	a.logger.Info("resetting agent state")
	if err := a.store.Clear(ctx); err != nil {
		return err
	}
	a.frozen.Store(false)
	a.box.take()

	a.mu.Lock()
	id := a.agentID
	a.position = nil
	a.current = grid.None
	a.corner = nil
	a.mu.Unlock()

	return a.bus.PublishLabel(ctx, id, nil)
}

// serve runs the listener and the drawer until one of them returns.
func (a *Agent) serve(ctx context.Context, pos grid.Coord) error {
	cell := pos.Cell()
	sub, err := a.bus.Open(ctx, gridbus.AllChannel, gridbus.CellChannel(cell.X, cell.Y))
	if err != nil {
		return err
	}
	defer sub.Close()

	a.setPhase(PhaseReady)
	if a.frozen.Load() {
		a.setPhase(PhaseFrozen)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make(chan error, 2)
	go func() { errs <- a.listen(ctx, sub, pos) }()
	go func() { errs <- a.draw(ctx) }()

	first := <-errs
	cancel()
	<-errs
	return first
}

// report sends a best-effort error report to the controller.
func (a *Agent) report(ctx context.Context, reportErr error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	label := grid.UnknownLabel
	if pos, ok := a.Position(); ok {
		label = pos.String()
	}
	msg := gridbus.ErrorReport{
		Message: reportErr.Error(),
		AgentID: a.ID(),
		Label:   label,
	}
	if err := a.bus.Transmit(ctx, gridbus.ErrorChannel, 0, msg); err != nil {
		a.logger.Warn("failed to report error", "error", err)
	}
}

func describe(c grid.Color) string {
	if c == grid.None {
		return "nothing"
	}
	return fmt.Sprint(c)
}
