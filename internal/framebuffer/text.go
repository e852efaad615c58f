package framebuffer

import (
	"context"
	"fmt"

	"github.com/dyluth/turtlegrid/internal/grid"
)

// Cell is one character cell of a text buffer.
type Cell struct {
	Char byte
	Fg   grid.Color
	Bg   grid.Color
}

// unsent never equals a real cell, so a shadow filled with it forces every
// cell out on the next flush.
var unsent = Cell{Fg: grid.None, Bg: grid.None}

// TextBuffer is a terminal-like character buffer. Columns and rows are
// 1-indexed, as is the cursor.
type TextBuffer struct {
	sink   Sink
	width  int
	height int
	front  []Cell
	shadow []Cell

	cursorX, cursorY int
	fg, bg           grid.Color
	auto             bool
}

// NewTextBuffer creates a blank buffer of width by height cells. Nothing is
// considered sent yet.
func NewTextBuffer(sink Sink, width, height int) *TextBuffer {
	b := &TextBuffer{
		sink:    sink,
		cursorX: 1,
		cursorY: 1,
		fg:      grid.White,
		bg:      grid.Black,
	}
	b.alloc(width, height)
	return b
}

func (b *TextBuffer) alloc(width, height int) {
	b.width, b.height = max(width, 0), max(height, 0)
	b.front = make([]Cell, b.width*b.height)
	b.shadow = make([]Cell, b.width*b.height)
	for i := range b.front {
		b.front[i] = b.blank()
		b.shadow[i] = unsent
	}
}

func (b *TextBuffer) blank() Cell {
	return Cell{Char: ' ', Fg: b.fg, Bg: b.bg}
}

func (b *TextBuffer) index(x, y int) (int, bool) {
	if x < 1 || y < 1 || x > b.width || y > b.height {
		return 0, false
	}
	return (y-1)*b.width + (x - 1), true
}

// Size returns the buffer dimensions in cells.
func (b *TextBuffer) Size() (int, int) {
	return b.width, b.height
}

// At returns the front buffer cell at (x, y).
func (b *TextBuffer) At(x, y int) (Cell, bool) {
	i, ok := b.index(x, y)
	if !ok {
		return Cell{}, false
	}
	return b.front[i], true
}

// CursorPos returns the cursor position.
func (b *TextBuffer) CursorPos() (int, int) {
	return b.cursorX, b.cursorY
}

// SetCursorPos moves the cursor. It may be placed outside the buffer, in
// which case writes are clipped.
func (b *TextBuffer) SetCursorPos(x, y int) {
	b.cursorX, b.cursorY = x, y
}

// SetTextColor sets the foreground colour for subsequent writes.
func (b *TextBuffer) SetTextColor(c grid.Color) error {
	if !c.Valid() {
		return fmt.Errorf("%w: %d", grid.ErrInvalidColor, c)
	}
	b.fg = c
	return nil
}

// SetBackgroundColor sets the background colour for subsequent writes and
// clears.
func (b *TextBuffer) SetBackgroundColor(c grid.Color) error {
	if !c.Valid() {
		return fmt.Errorf("%w: %d", grid.ErrInvalidColor, c)
	}
	b.bg = c
	return nil
}

// Colors returns the current text and background colours.
func (b *TextBuffer) Colors() (grid.Color, grid.Color) {
	return b.fg, b.bg
}

// SetAutoUpdate makes every mutation flush immediately. This trades bus
// traffic for latency.
func (b *TextBuffer) SetAutoUpdate(on bool) {
	b.auto = on
}

// Write puts p at the cursor in the current colours and advances the cursor.
// There is no wrapping; bytes past the right edge are dropped. Write
// implements io.Writer.
func (b *TextBuffer) Write(p []byte) (int, error) {
	for _, ch := range p {
		if i, ok := b.index(b.cursorX, b.cursorY); ok {
			b.front[i] = Cell{Char: ch, Fg: b.fg, Bg: b.bg}
		}
		b.cursorX++
	}
	return len(p), b.mutated()
}

// WriteString is Write for strings.
func (b *TextBuffer) WriteString(s string) (int, error) {
	return b.Write([]byte(s))
}

// Blit writes text with per-character colours given as hex digit strings of
// the same length, e.g. Blit("hi", "00", "ff"). Every colour must be a
// palette colour; on error the buffer is unchanged.
func (b *TextBuffer) Blit(text, fg, bg string) error {
	if len(fg) != len(text) || len(bg) != len(text) {
		return fmt.Errorf("blit arguments must be the same length (%d, %d, %d)", len(text), len(fg), len(bg))
	}
	cells := make([]Cell, len(text))
	for k := range text {
		f, err := grid.ParseColor(fg[k : k+1])
		if err != nil {
			return err
		}
		g, err := grid.ParseColor(bg[k : k+1])
		if err != nil {
			return err
		}
		if !f.Valid() || !g.Valid() {
			return fmt.Errorf("%w: blit position %d has fg %q bg %q", grid.ErrInvalidColor, k+1, fg[k:k+1], bg[k:k+1])
		}
		cells[k] = Cell{Char: text[k], Fg: f, Bg: g}
	}
	for _, cell := range cells {
		if i, ok := b.index(b.cursorX, b.cursorY); ok {
			b.front[i] = cell
		}
		b.cursorX++
	}
	return b.mutated()
}

// Clear fills the buffer with spaces in the current colours.
func (b *TextBuffer) Clear() error {
	for i := range b.front {
		b.front[i] = b.blank()
	}
	return b.mutated()
}

// ClearLine fills the cursor's row with spaces in the current colours.
func (b *TextBuffer) ClearLine() error {
	for x := 1; x <= b.width; x++ {
		if i, ok := b.index(x, b.cursorY); ok {
			b.front[i] = b.blank()
		}
	}
	return b.mutated()
}

// Scroll moves the contents up by n rows, or down for negative n.
func (b *TextBuffer) Scroll(n int) error {
	return b.Shift(0, -n)
}

// Shift moves the contents by (dx, dy) cells. Vacated cells are filled with
// spaces in the current colours.
func (b *TextBuffer) Shift(dx, dy int) error {
	next := make([]Cell, len(b.front))
	for y := 1; y <= b.height; y++ {
		for x := 1; x <= b.width; x++ {
			dst, _ := b.index(x, y)
			if src, ok := b.index(x-dx, y-dy); ok {
				next[dst] = b.front[src]
			} else {
				next[dst] = b.blank()
			}
		}
	}
	b.front = next
	return b.mutated()
}

// Resize changes the dimensions, keeping the overlapping contents. Every cell
// is sent again on the next flush.
func (b *TextBuffer) Resize(width, height int) error {
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
func (b *TextBuffer) Invalidate() {
	for i := range b.shadow {
		b.shadow[i] = unsent
	}
}

// Flush sends every cell that differs from what was last sent, or every cell
// when force is set, and returns how many were sent. A failed send stops the
// flush; cells already sent stay recorded as sent.
func (b *TextBuffer) Flush(ctx context.Context, force bool) (int, error) {
	sent := 0
	for y := 1; y <= b.height; y++ {
		for x := 1; x <= b.width; x++ {
			i, _ := b.index(x, y)
			cell := b.front[i]
			if !force && cell == b.shadow[i] {
				continue
			}
			if err := b.sink.SetCharacter(ctx, x, y, cell.Fg, cell.Bg, cell.Char); err != nil {
				return sent, fmt.Errorf("flushing cell %d,%d: %w", x, y, err)
			}
			b.shadow[i] = cell
			sent++
		}
	}
	return sent, nil
}

func (b *TextBuffer) mutated() error {
	if !b.auto {
		return nil
	}
	_, err := b.Flush(context.Background(), false)
	return err
}
