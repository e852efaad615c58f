package grid

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// UnknownLabel is published by agents that have not resolved a position.
const UnknownLabel = "Unknown"

// ErrMalformedLabel is returned when a label is neither UnknownLabel nor a
// pair of positive integers.
var ErrMalformedLabel = errors.New("malformed position label")

// FormatLabel renders the human-readable label for an agent.
func FormatLabel(pos *Coord) string {
	if pos == nil {
		return UnknownLabel
	}
	return pos.String()
}

// ParseLabel decodes an "x,y" label. The boolean is false for UnknownLabel.
func ParseLabel(label string) (Coord, bool, error) {
	label = strings.TrimSpace(label)
	if label == "" || label == UnknownLabel {
		return Coord{}, false, nil
	}
	xs, ys, ok := strings.Cut(label, ",")
	if !ok {
		return Coord{}, false, fmt.Errorf("%w: %q", ErrMalformedLabel, label)
	}
	x, errX := strconv.Atoi(strings.TrimSpace(xs))
	y, errY := strconv.Atoi(strings.TrimSpace(ys))
	if errX != nil || errY != nil {
		return Coord{}, false, fmt.Errorf("%w: %q", ErrMalformedLabel, label)
	}
	c := Coord{X: x, Y: y}
	if !c.Valid() {
		return Coord{}, false, fmt.Errorf("%w: %q", ErrMalformedLabel, label)
	}
	return c, true, nil
}
