package controller

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNoPower is returned by batch operations called before SetPower.
var ErrNoPower = errors.New("no power switch attached")

// PowerSwitch turns agents on and off by index.
type PowerSwitch interface {
	Count(ctx context.Context) (int, error)
	TurnOn(ctx context.Context, index int) error
	TurnOff(ctx context.Context, index int) error
}

// Startup powers on every agent in batches of batchSize, waiting batchDelay
// between batches. Zero values use the configured defaults.
func (c *Controller) Startup(ctx context.Context, batchSize int, batchDelay time.Duration) error {
	if batchDelay <= 0 {
		batchDelay = c.opts.StartupDelay
	}
	return c.batch(ctx, "startup", batchSize, batchDelay, PowerSwitch.TurnOn)
}

// Shutdown powers off every agent in batches.
func (c *Controller) Shutdown(ctx context.Context, batchSize int, batchDelay time.Duration) error {
	if batchDelay <= 0 {
		batchDelay = c.opts.ShutdownDelay
	}
	return c.batch(ctx, "shutdown", batchSize, batchDelay, PowerSwitch.TurnOff)
}

// Restart shuts every agent down and starts it again.
func (c *Controller) Restart(ctx context.Context, batchSize int, batchDelay time.Duration) error {
	if err := c.Shutdown(ctx, batchSize, batchDelay); err != nil {
		return err
	}
	return c.Startup(ctx, batchSize, batchDelay)
}

func (c *Controller) batch(ctx context.Context, op string, size int, delay time.Duration, toggle func(PowerSwitch, context.Context, int) error) error {
	c.mu.RLock()
	power := c.power
	c.mu.RUnlock()
	if power == nil {
		return ErrNoPower
	}
	if size <= 0 {
		size = c.opts.BatchSize
	}

	count, err := power.Count(ctx)
	if err != nil {
		return fmt.Errorf("counting agents: %w", err)
	}

	for start := 0; start < count; start += size {
		end := min(start+size, count)
		c.logger.Info(op, "from", start, "to", end-1, "of", count)

		for i := start; i < end; i++ {
			if err := toggle(power, ctx, i); err != nil {
				return fmt.Errorf("%s agent %d: %w", op, i, err)
			}
		}

		if end < count {
			if err := sleep(ctx, delay); err != nil {
				return err
			}
		}
	}
	return nil
}
