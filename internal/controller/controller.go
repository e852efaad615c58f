// Package controller is the single addressing party of a display: it powers
// agents on and off in batches, broadcasts drawing commands, asks for the
// display size and reclaims blocks from the agents.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dyluth/turtlegrid/internal/font"
	"github.com/dyluth/turtlegrid/internal/framebuffer"
	"github.com/dyluth/turtlegrid/internal/grid"
	"github.com/dyluth/turtlegrid/internal/storage"
	"github.com/dyluth/turtlegrid/pkg/gridbus"
)

// ErrNoModem is returned by operations called before SetModem.
var ErrNoModem = errors.New("no modem attached")

// ErrOutOfRange is returned for a cell outside the cached display size.
var ErrOutOfRange = errors.New("cell out of range")

// Bus is the part of the message bus the controller uses.
type Bus interface {
	Transmit(ctx context.Context, channel, reply int, msg gridbus.Message) error
	Open(ctx context.Context, channels ...int) (*gridbus.Subscription, error)
}

// Options tunes the controller. Zero values take the defaults.
type Options struct {
	BatchSize     int
	StartupDelay  time.Duration
	ShutdownDelay time.Duration
	SizeTimeout   time.Duration
	SizeInterval  time.Duration
	StealSettle   time.Duration
	Items         storage.Items
}

func (o *Options) applyDefaults() {
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.StartupDelay <= 0 {
		o.StartupDelay = 5 * time.Second
	}
	if o.ShutdownDelay <= 0 {
		o.ShutdownDelay = time.Second
	}
	if o.SizeTimeout <= 0 {
		o.SizeTimeout = 5 * time.Second
	}
	if o.SizeInterval <= 0 {
		o.SizeInterval = time.Second
	}
	if o.StealSettle <= 0 {
		o.StealSettle = time.Second
	}
	if o.Items == nil {
		o.Items = storage.DefaultItems()
	}
}

var _ framebuffer.Sink = (*Controller)(nil)

// Controller drives one display.
type Controller struct {
	opts    Options
	logger  *slog.Logger
	mu      sync.RWMutex
	bus     Bus
	power   PowerSwitch
	network storage.Network
	width   int
	height  int
}

// New creates a controller. Attach a bus with SetModem before use.
func New(opts Options) *Controller {
	opts.applyDefaults()
	return &Controller{
		opts:   opts,
		logger: slog.Default().With("component", "controller"),
	}
}

// SetModem attaches the bus all messages go through.
func (c *Controller) SetModem(bus Bus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bus = bus
}

// SetPower attaches the switch used by Startup, Shutdown and Restart.
func (c *Controller) SetPower(p PowerSwitch) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.power = p
}

// SetNetwork attaches the inventories StealItems works on.
func (c *Controller) SetNetwork(n storage.Network) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.network = n
}

func (c *Controller) modem() (Bus, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.bus == nil {
		return nil, ErrNoModem
	}
	return c.bus, nil
}

func (c *Controller) broadcast(ctx context.Context, msg gridbus.Message) error {
	bus, err := c.modem()
	if err != nil {
		return err
	}
	c.logger.Debug("broadcast", "action", msg.Action())
	return bus.Transmit(ctx, gridbus.AllChannel, 0, msg)
}

// Clear sets every agent to one colour.
func (c *Controller) Clear(ctx context.Context, color grid.Color) error {
	if !color.Valid() {
		return fmt.Errorf("%w: %d", grid.ErrInvalidColor, color)
	}
	return c.broadcast(ctx, gridbus.Clear{Color: color})
}

// Reset makes every agent forget its position and rediscover it.
func (c *Controller) Reset(ctx context.Context) error {
	return c.broadcast(ctx, gridbus.Reset{})
}

// Freeze stops agents from drawing until Thaw.
func (c *Controller) Freeze(ctx context.Context) error {
	return c.broadcast(ctx, gridbus.Freeze{})
}

// Thaw lets agents draw again.
func (c *Controller) Thaw(ctx context.Context) error {
	return c.broadcast(ctx, gridbus.Thaw{})
}

// SetCharacter draws ch in the 1-indexed character cell (col, row). When the
// display size is known, cells outside it are rejected.
func (c *Controller) SetCharacter(ctx context.Context, col, row int, fg, bg grid.Color, ch byte) error {
	if !fg.Valid() || !bg.Valid() {
		return fmt.Errorf("%w: fg=%d bg=%d", grid.ErrInvalidColor, fg, bg)
	}
	if col < 1 || row < 1 {
		return fmt.Errorf("%w: %d,%d", ErrOutOfRange, col, row)
	}
	if w, h := c.GetSizeCached(); w > 0 && h > 0 && (col > w || row > h) {
		return fmt.Errorf("%w: %d,%d outside %dx%d", ErrOutOfRange, col, row, w, h)
	}

	bus, err := c.modem()
	if err != nil {
		return err
	}
	gx, gy := font.GlyphOrigin(ch)
	msg := gridbus.Character{GlyphX: gx, GlyphY: gy, Fg: fg, Bg: bg}
	return bus.Transmit(ctx, gridbus.CellChannel(col-1, row-1), 0, msg)
}

// SetPixel sets the agent at (x, y). The message goes to the agent's cell
// channel so only 54 agents have to look at it.
func (c *Controller) SetPixel(ctx context.Context, x, y int, color grid.Color) error {
	if !color.Valid() {
		return fmt.Errorf("%w: %d", grid.ErrInvalidColor, color)
	}
	pos := grid.Coord{X: x, Y: y}
	if !pos.Valid() {
		return fmt.Errorf("%w: pixel %s", ErrOutOfRange, pos)
	}

	bus, err := c.modem()
	if err != nil {
		return err
	}
	cell := pos.Cell()
	msg := gridbus.Place{Pixel: gridbus.Pixel{X: x, Y: y, Color: color}}
	return bus.Transmit(ctx, gridbus.CellChannel(cell.X, cell.Y), 0, msg)
}

// SetPixels broadcasts many pixels in one message.
func (c *Controller) SetPixels(ctx context.Context, pixels []gridbus.Pixel) error {
	if len(pixels) == 0 {
		return nil
	}
	for _, p := range pixels {
		if !p.Color.Valid() {
			return fmt.Errorf("%w: %d at %s", grid.ErrInvalidColor, p.Color, p.Coord())
		}
	}
	return c.broadcast(ctx, gridbus.PlaceBatch{Pixels: pixels})
}

// GetSizeCached returns the size from the last successful query, (0, 0)
// when unknown.
func (c *Controller) GetSizeCached() (int, int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.width, c.height
}

// GetSize asks the display for its size in character cells. The query is
// broadcast every SizeInterval until the bottom-right agent answers or
// timeout passes; a zero timeout uses the configured default. On timeout it
// returns (0, 0) and leaves the cached size alone.
func (c *Controller) GetSize(ctx context.Context, timeout time.Duration) (int, int, error) {
	bus, err := c.modem()
	if err != nil {
		return 0, 0, err
	}
	if timeout <= 0 {
		timeout = c.opts.SizeTimeout
	}

	sub, err := bus.Open(ctx, gridbus.ReplyChannel)
	if err != nil {
		return 0, 0, err
	}
	defer sub.Close()

	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(c.opts.SizeInterval)
	defer ticker.Stop()

	query := func() error {
		return bus.Transmit(queryCtx, gridbus.AllChannel, gridbus.ReplyChannel, gridbus.SizeQuery{})
	}
	if err := query(); err != nil {
		return 0, 0, err
	}

	for {
		select {
		case <-queryCtx.Done():
			if ctx.Err() != nil {
				return 0, 0, ctx.Err()
			}
			c.logger.Warn("size query timed out", "timeout", timeout)
			return 0, 0, nil

		case <-ticker.C:
			if err := query(); err != nil && queryCtx.Err() == nil {
				return 0, 0, err
			}

		case d, ok := <-sub.Deliveries():
			if !ok {
				return 0, 0, errors.New("reply channel closed")
			}
			size, isSize := d.Message.(gridbus.Size)
			if !isSize {
				continue
			}
			c.mu.Lock()
			c.width, c.height = size.Width, size.Height
			c.mu.Unlock()
			c.logger.Info("display size", "width", size.Width, "height", size.Height)
			return size.Width, size.Height, nil
		}
	}
}

// ListenForErrors passes every agent error report to fn until ctx is
// cancelled. A nil fn logs the reports.
func (c *Controller) ListenForErrors(ctx context.Context, fn func(gridbus.ErrorReport)) error {
	bus, err := c.modem()
	if err != nil {
		return err
	}
	sub, err := bus.Open(ctx, gridbus.ErrorChannel)
	if err != nil {
		return err
	}
	defer sub.Close()

	if fn == nil {
		fn = func(r gridbus.ErrorReport) {
			c.logger.Error("agent error", "agent", r.AgentID, "label", r.Label, "message", r.Message)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-sub.Deliveries():
			if !ok {
				return nil
			}
			if report, isReport := d.Message.(gridbus.ErrorReport); isReport {
				fn(report)
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
