// Package font decodes the monochrome FBMP bitmap fonts the agents use to
// decide whether their pixel of a glyph is foreground or background.
//
// An FBMP file is the magic "FBMP", a little-endian uint16 width, then rows of
// ceil(width/8) bytes, eight pixels per byte with the most significant bit
// first. The height is implied by the remaining length.
//
// Glyphs are laid out on a 16x16 sheet. Each glyph is grid.CellWidth by
// grid.CellHeight pixels with a two pixel gutter, so the glyph for byte c
// starts at the 1-based sheet position returned by GlyphOrigin.
package font

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dyluth/turtlegrid/internal/grid"
)

const magic = "FBMP"

// ErrBadFont is returned for data that is not a well-formed FBMP file.
var ErrBadFont = errors.New("malformed FBMP font")

// Font is a decoded bitmap. Pixel coordinates are zero-indexed.
type Font struct {
	bytes  []byte
	stride int
	width  int
	height int
}

// New returns an empty font sheet of the given size.
func New(width, height int) *Font {
	stride := (width + 7) / 8
	return &Font{
		bytes:  make([]byte, stride*height),
		stride: stride,
		width:  width,
		height: height,
	}
}

// Width returns the sheet width in pixels.
func (f *Font) Width() int { return f.width }

// Height returns the sheet height in pixels.
func (f *Font) Height() int { return f.height }

func (f *Font) maskIndex(x, y int) (byte, int) {
	return 0x80 >> uint(x&7), y*f.stride + x>>3
}

// At reports whether the pixel at (x, y) is foreground. Out of range pixels
// are background.
func (f *Font) At(x, y int) bool {
	if x < 0 || y < 0 || x >= f.width || y >= f.height {
		return false
	}
	mask, index := f.maskIndex(x, y)
	return f.bytes[index]&mask != 0
}

// Set sets or clears the pixel at (x, y).
func (f *Font) Set(x, y int, on bool) {
	if x < 0 || y < 0 || x >= f.width || y >= f.height {
		return
	}
	mask, index := f.maskIndex(x, y)
	if on {
		f.bytes[index] |= mask
	} else {
		f.bytes[index] &^= mask
	}
}

// GlyphOrigin returns the 1-based sheet position of the top-left pixel of
// the glyph for byte c.
func GlyphOrigin(c byte) (int, int) {
	col, row := int(c%16), int(c/16)
	return 2 + grid.CellWidth*col + 2*col, 2 + grid.CellHeight*row + 2*row
}

// GlyphAt is the inverse of GlyphOrigin.
func GlyphAt(gx, gy int) (byte, bool) {
	const pitchX, pitchY = grid.CellWidth + 2, grid.CellHeight + 2
	x, y := gx-2, gy-2
	if x < 0 || y < 0 || x%pitchX != 0 || y%pitchY != 0 || x/pitchX > 15 || y/pitchY > 15 {
		return 0, false
	}
	return byte(y/pitchY*16 + x/pitchX), true
}

// Foreground reports whether the pixel at inner offset (ix, iy) of the glyph
// whose 1-based origin is (gx, gy) is foreground.
func (f *Font) Foreground(gx, gy, ix, iy int) bool {
	return f.At(gx-1+ix, gy-1+iy)
}

// Decode reads an FBMP font.
func Decode(r io.Reader) (*Font, error) {
	br := bufio.NewReader(r)

	header := make([]byte, len(magic)+2)
	if _, err := io.ReadFull(br, header); err != nil {
		return nil, fmt.Errorf("%w: short header: %v", ErrBadFont, err)
	}
	if string(header[:len(magic)]) != magic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrBadFont, header[:len(magic)])
	}
	width := int(binary.LittleEndian.Uint16(header[len(magic):]))
	if width == 0 {
		return nil, fmt.Errorf("%w: zero width", ErrBadFont)
	}

	body, err := io.ReadAll(br)
	if err != nil {
		return nil, fmt.Errorf("reading font body: %w", err)
	}
	stride := (width + 7) / 8
	if len(body)%stride != 0 {
		return nil, fmt.Errorf("%w: %d body bytes is not a multiple of row stride %d", ErrBadFont, len(body), stride)
	}

	return &Font{
		bytes:  body,
		stride: stride,
		width:  width,
		height: len(body) / stride,
	}, nil
}

// Load reads an FBMP font from disk.
func Load(path string) (*Font, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading font %s: %w", path, err)
	}
	return Decode(bytes.NewReader(data))
}

// Encode writes the font in FBMP format.
func (f *Font) Encode(w io.Writer) error {
	header := make([]byte, len(magic)+2)
	copy(header, magic)
	binary.LittleEndian.PutUint16(header[len(magic):], uint16(f.width))
	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(f.bytes)
	return err
}
