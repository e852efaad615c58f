package sim

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/dyluth/turtlegrid/internal/font"
	"github.com/dyluth/turtlegrid/internal/state"
	"github.com/dyluth/turtlegrid/internal/turtle"
	"github.com/dyluth/turtlegrid/pkg/gridbus"
	"github.com/redis/go-redis/v9"
)

// FleetOptions configures the agents a Fleet runs.
type FleetOptions struct {
	Agent    turtle.Options
	Redis    *redis.Options
	Instance string
	// StateDir holds one SQLite state file per turtle.
	StateDir string
	Font     *font.Font
}

type running struct {
	agent  *turtle.Agent
	cancel context.CancelFunc
	done   chan struct{}
}

// Fleet runs one agent per turtle of a display, each with its own bus
// client and state file. It is the simulator's power switch.
type Fleet struct {
	display *Display
	opts    FleetOptions
	logger  *slog.Logger

	mu      sync.Mutex
	running map[int]*running
}

// NewFleet creates a fleet with every agent powered off.
func NewFleet(d *Display, opts FleetOptions) *Fleet {
	return &Fleet{
		display: d,
		opts:    opts,
		logger:  slog.Default().With("component", "sim"),
		running: make(map[int]*running),
	}
}

// Count returns the number of turtles.
func (f *Fleet) Count(ctx context.Context) (int, error) {
	return len(f.display.Turtles()), nil
}

// TurnOn boots the agent of turtle index. Turning on a running agent does
// nothing.
func (f *Fleet) TurnOn(ctx context.Context, index int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.running[index]; ok {
		return nil
	}
	turtles := f.display.Turtles()
	if index < 0 || index >= len(turtles) {
		return fmt.Errorf("turtle %d out of range (%d turtles)", index, len(turtles))
	}
	t := turtles[index]

	store, err := state.Open(filepath.Join(f.opts.StateDir, t.Name()+".db"))
	if err != nil {
		return err
	}
	rec, err := store.Load(ctx)
	if err != nil {
		store.Close()
		return err
	}
	// Neighbours identify this turtle by the id its agent publishes under.
	t.SetAgentID(rec.AgentID)

	client, err := gridbus.NewClient(f.opts.Redis, f.opts.Instance)
	if err != nil {
		store.Close()
		return err
	}

	agent := turtle.New(f.opts.Agent, t, client, store, f.opts.Font)
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r := &running{agent: agent, cancel: cancel, done: make(chan struct{})}
	f.running[index] = r

	go func() {
		defer close(r.done)
		if err := agent.Run(runCtx); err != nil {
			f.logger.Error("agent stopped", "turtle", t.Name(), "error", err)
		}
		client.Close()
		store.Close()
	}()
	return nil
}

// TurnOff stops the agent of turtle index and waits for it to exit.
func (f *Fleet) TurnOff(ctx context.Context, index int) error {
	f.mu.Lock()
	r, ok := f.running[index]
	delete(f.running, index)
	f.mu.Unlock()

	if !ok {
		return nil
	}
	r.cancel()
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Agents returns the agents that are powered on.
func (f *Fleet) Agents() []*turtle.Agent {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]*turtle.Agent, 0, len(f.running))
	for i := range len(f.display.Turtles()) {
		if r, ok := f.running[i]; ok {
			out = append(out, r.agent)
		}
	}
	return out
}

// Agent returns the agent of turtle index if it is powered on.
func (f *Fleet) Agent(index int) (*turtle.Agent, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.running[index]
	if !ok {
		return nil, false
	}
	return r.agent, true
}

// Close powers off every agent.
func (f *Fleet) Close(ctx context.Context) error {
	f.mu.Lock()
	indexes := make([]int, 0, len(f.running))
	for i := range f.running {
		indexes = append(indexes, i)
	}
	f.mu.Unlock()

	for _, i := range indexes {
		if err := f.TurnOff(ctx, i); err != nil {
			return err
		}
	}
	return nil
}
