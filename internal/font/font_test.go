package font

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGlyphOrigin(t *testing.T) {
	x, y := GlyphOrigin(0)
	assert.Equal(t, 2, x)
	assert.Equal(t, 2, y)

	// 'A' is 65: column 1, row 4.
	x, y = GlyphOrigin('A')
	assert.Equal(t, 2+6*1+2*1, x)
	assert.Equal(t, 2+9*4+2*4, y)

	x, y = GlyphOrigin(255)
	assert.Equal(t, 2+8*15, x)
	assert.Equal(t, 2+11*15, y)
}

func TestGlyphAtInvertsGlyphOrigin(t *testing.T) {
	for c := 0; c < 256; c++ {
		got, ok := GlyphAt(GlyphOrigin(byte(c)))
		require.True(t, ok, "byte %d", c)
		assert.Equal(t, byte(c), got)
	}

	_, ok := GlyphAt(3, 2)
	assert.False(t, ok, "not a glyph origin")
	_, ok = GlyphAt(1, 2)
	assert.False(t, ok)
	_, ok = GlyphAt(2+8*16, 2)
	assert.False(t, ok, "past the sheet")
}

func TestDecodeMSBFirst(t *testing.T) {
	data := []byte("FBMP")
	data = append(data, 10, 0)           // width 10, stride 2
	data = append(data, 0b10000001, 0x40) // row 0: x=0, x=7, x=9
	data = append(data, 0x00, 0x00)       // row 1: empty

	f, err := Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 10, f.Width())
	assert.Equal(t, 2, f.Height())

	assert.True(t, f.At(0, 0))
	assert.False(t, f.At(1, 0))
	assert.True(t, f.At(7, 0))
	assert.False(t, f.At(8, 0))
	assert.True(t, f.At(9, 0))
	assert.False(t, f.At(0, 1))
	assert.False(t, f.At(10, 0), "out of range is background")
}

func TestDecodeRowsHaveNoSeparators(t *testing.T) {
	data := []byte("FBMP\x08\x00")
	data = append(data, '\n', 0xff) // a newline byte is row 0's pixels

	f, err := Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 2, f.Height())
	assert.True(t, f.At(4, 0))
	assert.True(t, f.At(6, 0))
	assert.False(t, f.At(7, 0))
	for x := 0; x < 8; x++ {
		assert.True(t, f.At(x, 1))
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := map[string][]byte{
		"short":      []byte("FB"),
		"bad magic":  []byte("XBMP\x08\x00\x00"),
		"zero width": []byte("FBMP\x00\x00"),
		"ragged":     []byte("FBMP\x10\x00\x01\x02\x03"),
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(bytes.NewReader(data))
			assert.ErrorIs(t, err, ErrBadFont)
		})
	}
}

func TestEncodeDecodeKeepsPixels(t *testing.T) {
	f := New(20, 3)
	f.Set(0, 0, true)
	f.Set(19, 2, true)
	f.Set(9, 1, true)
	f.Set(9, 1, false)

	var buf bytes.Buffer
	require.NoError(t, f.Encode(&buf))

	decoded, err := Decode(&buf)
	require.NoError(t, err)
	assert.True(t, decoded.At(0, 0))
	assert.True(t, decoded.At(19, 2))
	assert.False(t, decoded.At(9, 1))
}

func TestForegroundUsesGlyphOrigin(t *testing.T) {
	f := New(140, 180)
	gx, gy := GlyphOrigin('A')
	// Light the glyph's inner pixel (2, 3).
	f.Set(gx-1+2, gy-1+3, true)

	assert.True(t, f.Foreground(gx, gy, 2, 3))
	assert.False(t, f.Foreground(gx, gy, 3, 3))
}
