package grid

import (
	"fmt"
	"strings"
)

// Topology selects how a grid is physically built and therefore how agents
// discover their positions.
type Topology string

const (
	// Chained grids hang on a wall. Every agent has its network modem
	// behind it and draws in front; positions spread from a single anchor
	// corner through right and top neighbours.
	Chained Topology = "chained"

	// Bordered grids lie on the floor. Agents stand on their modems and draw
	// on top; two kinds of marker block line the top and left edges.
	Bordered Topology = "bordered"
)

// ParseTopology accepts the canonical names and the "vertical" and
// "horizontal" aliases.
func ParseTopology(s string) (Topology, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "chained", "vertical":
		return Chained, nil
	case "bordered", "horizontal":
		return Bordered, nil
	}
	return "", fmt.Errorf("unknown topology %q (must be chained or bordered)", s)
}

// DrawSide is the side an agent places its pixel block on.
func (t Topology) DrawSide() Side {
	if t == Bordered {
		return Top
	}
	return Front
}
