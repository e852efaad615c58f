// Package framebuffer keeps a front buffer that drawing code mutates and a
// shadow buffer holding what the agents were last told. Flush sends only the
// cells that differ, so redrawing an unchanged screen costs nothing on the
// bus.
//
// Buffers are not safe for concurrent use.
package framebuffer

import (
	"context"

	"github.com/dyluth/turtlegrid/internal/grid"
	"github.com/dyluth/turtlegrid/pkg/gridbus"
)

// Sink receives flushed updates. *controller.Controller implements it.
type Sink interface {
	SetCharacter(ctx context.Context, col, row int, fg, bg grid.Color, ch byte) error
	SetPixel(ctx context.Context, x, y int, c grid.Color) error
	SetPixels(ctx context.Context, pixels []gridbus.Pixel) error
}
