package grid

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidColor is returned when a colour name or code is not part of the
// palette.
var ErrInvalidColor = errors.New("invalid color")

// Color is one of the sixteen palette colours. Color i is held in inventory
// slot i+1. None marks "no block placed".
type Color int8

const None Color = -1

const (
	White Color = iota
	Orange
	Magenta
	LightBlue
	Yellow
	Lime
	Pink
	Gray
	LightGray
	Cyan
	Purple
	Blue
	Brown
	Green
	Red
	Black
)

// PaletteSize is the number of colours, and inventory slots, an agent carries.
const PaletteSize = 16

var colorNames = [PaletteSize]string{
	"white", "orange", "magenta", "lightBlue", "yellow", "lime", "pink", "gray",
	"lightGray", "cyan", "purple", "blue", "brown", "green", "red", "black",
}

// Palette returns every colour in slot order.
func Palette() []Color {
	colors := make([]Color, PaletteSize)
	for i := range colors {
		colors[i] = Color(i)
	}
	return colors
}

// Valid reports whether c is a palette colour (None is not).
func (c Color) Valid() bool {
	return c >= 0 && c < PaletteSize
}

// Slot returns the 1-indexed inventory slot holding the colour's item.
func (c Color) Slot() int {
	return int(c) + 1
}

// ColorForSlot is the inverse of Slot.
func ColorForSlot(slot int) (Color, bool) {
	c := Color(slot - 1)
	return c, c.Valid()
}

// Hex returns the single hex digit used for the colour in blit strings.
func (c Color) Hex() string {
	if !c.Valid() {
		return " "
	}
	return strconv.FormatInt(int64(c), 16)
}

func (c Color) String() string {
	if c == None {
		return "none"
	}
	if !c.Valid() {
		return fmt.Sprintf("color(%d)", int(c))
	}
	return colorNames[c]
}

// ParseColor accepts a colour name (case-insensitive, "lightBlue" or
// "light_blue"), a single hex digit, "none", or the power-of-two colour
// constant used by the computer's colours API. A single character is always
// a hex digit, so "1", "2", "4" and "8" are orange, magenta, yellow and
// lightGray rather than the constants for white, orange, magenta and
// lightBlue; those four are only reachable by name or hex digit.
func ParseColor(s string) (Color, error) {
	norm := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", ""))
	if norm == "none" || norm == "" {
		return None, nil
	}
	for i, name := range colorNames {
		if strings.ToLower(name) == norm {
			return Color(i), nil
		}
	}
	if norm == "grey" {
		return Gray, nil
	}
	if norm == "lightgrey" {
		return LightGray, nil
	}
	if len(norm) == 1 {
		if v, err := strconv.ParseInt(norm, 16, 8); err == nil {
			return Color(v), nil
		}
	}
	if v, err := strconv.ParseInt(norm, 10, 32); err == nil && v > 0 && v&(v-1) == 0 {
		for i := 0; i < PaletteSize; i++ {
			if v == 1<<i {
				return Color(i), nil
			}
		}
	}
	return None, fmt.Errorf("%w: %q", ErrInvalidColor, s)
}

// MarshalText encodes the colour by name.
func (c Color) MarshalText() ([]byte, error) {
	if c != None && !c.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidColor, int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText decodes anything ParseColor accepts.
func (c *Color) UnmarshalText(text []byte) error {
	parsed, err := ParseColor(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
