package grid

import "fmt"

// Side is a direction relative to a turtle's current facing.
type Side string

const (
	Front  Side = "front"
	Right  Side = "right"
	Back   Side = "back"
	Left   Side = "left"
	Top    Side = "top"
	Bottom Side = "bottom"
)

// Horizontal lists the horizontal sides in clockwise order when viewed from
// above.
var Horizontal = []Side{Front, Right, Back, Left}

// Sides lists every side a turtle can sense.
var Sides = []Side{Front, Right, Back, Left, Top, Bottom}

// IsHorizontal reports whether the side turns with the turtle.
func (s Side) IsHorizontal() bool {
	return s == Front || s == Right || s == Back || s == Left
}

// Clockwise returns the next horizontal side clockwise. Top and bottom are
// returned unchanged.
func (s Side) Clockwise() Side {
	return s.rotate(1)
}

// CounterClockwise returns the previous horizontal side.
func (s Side) CounterClockwise() Side {
	return s.rotate(3)
}

// Opposite returns the side facing away from s.
func (s Side) Opposite() Side {
	switch s {
	case Top:
		return Bottom
	case Bottom:
		return Top
	}
	return s.rotate(2)
}

func (s Side) rotate(steps int) Side {
	for i, h := range Horizontal {
		if h == s {
			return Horizontal[(i+steps)%len(Horizontal)]
		}
	}
	return s
}

// Heading is an absolute compass direction in the horizontal plane.
// North is toward decreasing y on a floor-mounted grid.
type Heading int

const (
	North Heading = iota
	East
	South
	West
)

func (h Heading) String() string {
	switch h {
	case North:
		return "north"
	case East:
		return "east"
	case South:
		return "south"
	case West:
		return "west"
	}
	return fmt.Sprintf("heading(%d)", int(h))
}

// Clockwise returns the heading a quarter turn clockwise.
func (h Heading) Clockwise() Heading {
	return (h + 1) % 4
}

// CounterClockwise returns the heading a quarter turn counter-clockwise.
func (h Heading) CounterClockwise() Heading {
	return (h + 3) % 4
}

// Delta returns the grid step for one move along the heading.
func (h Heading) Delta() Delta {
	switch h {
	case North:
		return Delta{DY: -1}
	case East:
		return Delta{DX: 1}
	case South:
		return Delta{DY: 1}
	default:
		return Delta{DX: -1}
	}
}

// Toward returns the absolute heading of a horizontal side for a turtle
// facing h.
func (h Heading) Toward(s Side) Heading {
	switch s {
	case Right:
		return h.Clockwise()
	case Back:
		return h.Clockwise().Clockwise()
	case Left:
		return h.CounterClockwise()
	}
	return h
}
