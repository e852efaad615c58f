package framebuffer

import (
	"context"
	"fmt"

	"github.com/dyluth/turtlegrid/internal/grid"
	"github.com/dyluth/turtlegrid/pkg/gridbus"
)

// PixelBuffer addresses agents individually. Coordinates are grid
// coordinates, 1-indexed.
type PixelBuffer struct {
	sink   Sink
	width  int
	height int
	front  []grid.Color
	shadow []grid.Color
	bg     grid.Color
	auto   bool
	batch  bool
}

// NewPixelBuffer creates a buffer of width by height pixels filled with
// black. Nothing is considered sent yet.
func NewPixelBuffer(sink Sink, width, height int) *PixelBuffer {
	b := &PixelBuffer{sink: sink, bg: grid.Black}
	b.alloc(width, height)
	return b
}

func (b *PixelBuffer) alloc(width, height int) {
	b.width, b.height = max(width, 0), max(height, 0)
	b.front = make([]grid.Color, b.width*b.height)
	b.shadow = make([]grid.Color, b.width*b.height)
	for i := range b.front {
		b.front[i] = b.bg
		b.shadow[i] = grid.None
	}
}

func (b *PixelBuffer) index(x, y int) (int, bool) {
	if x < 1 || y < 1 || x > b.width || y > b.height {
		return 0, false
	}
	return (y-1)*b.width + (x - 1), true
}

// Size returns the buffer dimensions in pixels.
func (b *PixelBuffer) Size() (int, int) {
	return b.width, b.height
}

// At returns the front buffer colour at (x, y).
func (b *PixelBuffer) At(x, y int) (grid.Color, bool) {
	i, ok := b.index(x, y)
	if !ok {
		return grid.None, false
	}
	return b.front[i], true
}

// SetAutoUpdate makes every mutation flush immediately.
func (b *PixelBuffer) SetAutoUpdate(on bool) {
	b.auto = on
}

// SetBatch makes Flush send all changed pixels as one broadcast instead of
// one message per pixel.
func (b *PixelBuffer) SetBatch(on bool) {
	b.batch = on
}

// SetPixel sets one pixel. Pixels outside the buffer are ignored.
func (b *PixelBuffer) SetPixel(x, y int, c grid.Color) error {
	if !c.Valid() {
		return fmt.Errorf("%w: %d", grid.ErrInvalidColor, c)
	}
	if i, ok := b.index(x, y); ok {
		b.front[i] = c
	}
	return b.mutated()
}

// Fill sets every pixel to c and makes it the background for Clear and
// Resize.
func (b *PixelBuffer) Fill(c grid.Color) error {
	if !c.Valid() {
		return fmt.Errorf("%w: %d", grid.ErrInvalidColor, c)
	}
	b.bg = c
	return b.Clear()
}

// Clear resets every pixel to the background colour.
func (b *PixelBuffer) Clear() error {
	for i := range b.front {
		b.front[i] = b.bg
	}
	return b.mutated()
}

// Resize changes the dimensions, keeping the overlapping contents. Every
// pixel is sent again on the next flush.
func (b *PixelBuffer) Resize(width, height int) error {
	old, oldW, oldH := b.front, b.width, b.height
	b.alloc(width, height)
	for y := 1; y <= min(oldH, b.height); y++ {
		for x := 1; x <= min(oldW, b.width); x++ {
			i, _ := b.index(x, y)
			b.front[i] = old[(y-1)*oldW+(x-1)]
		}
	}
	return b.mutated()
}

// Invalidate forgets what was sent so the next flush resends everything.
func (b *PixelBuffer) Invalidate() {
	for i := range b.shadow {
		b.shadow[i] = grid.None
	}
}

// Flush sends every pixel that differs from what was last sent, or every
// pixel when force is set, and returns how many pixels were sent.
func (b *PixelBuffer) Flush(ctx context.Context, force bool) (int, error) {
	var changed []int
	for i, c := range b.front {
		if force || c != b.shadow[i] {
			changed = append(changed, i)
		}
	}
	if len(changed) == 0 {
		return 0, nil
	}

	if b.batch {
		pixels := make([]gridbus.Pixel, len(changed))
		for k, i := range changed {
			pixels[k] = gridbus.Pixel{X: i%b.width + 1, Y: i/b.width + 1, Color: b.front[i]}
		}
		if err := b.sink.SetPixels(ctx, pixels); err != nil {
			return 0, fmt.Errorf("flushing %d pixels: %w", len(pixels), err)
		}
		for _, i := range changed {
			b.shadow[i] = b.front[i]
		}
		return len(changed), nil
	}

	for sent, i := range changed {
		x, y := i%b.width+1, i/b.width+1
		if err := b.sink.SetPixel(ctx, x, y, b.front[i]); err != nil {
			return sent, fmt.Errorf("flushing pixel %d,%d: %w", x, y, err)
		}
		b.shadow[i] = b.front[i]
	}
	return len(changed), nil
}

func (b *PixelBuffer) mutated() error {
	if !b.auto {
		return nil
	}
	_, err := b.Flush(context.Background(), false)
	return err
}
