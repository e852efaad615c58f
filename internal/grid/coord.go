package grid

import "fmt"

// Glyph cell dimensions in pixels. One character cell is CellWidth agents
// wide and CellHeight agents tall.
const (
	CellWidth  = 6
	CellHeight = 9
)

// Coord is a 1-indexed agent position on the display grid.
type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Anchor is the top-left agent, the one every discovery wavefront starts from.
var Anchor = Coord{X: 1, Y: 1}

// Valid reports whether both components are positive.
func (c Coord) Valid() bool {
	return c.X >= 1 && c.Y >= 1
}

func (c Coord) String() string {
	return fmt.Sprintf("%d,%d", c.X, c.Y)
}

// Add offsets the coordinate by a delta.
func (c Coord) Add(d Delta) Coord {
	return Coord{X: c.X + d.DX, Y: c.Y + d.DY}
}

// Sub returns the delta that takes o to c.
func (c Coord) Sub(o Coord) Delta {
	return Delta{DX: c.X - o.X, DY: c.Y - o.Y}
}

// Cell returns the zero-indexed character cell containing the coordinate.
func (c Coord) Cell() Cell {
	return Cell{X: (c.X - 1) / CellWidth, Y: (c.Y - 1) / CellHeight}
}

// Inner returns the zero-indexed offset of the coordinate inside its cell.
func (c Coord) Inner() (int, int) {
	return (c.X - 1) % CellWidth, (c.Y - 1) % CellHeight
}

// Cell is a zero-indexed character cell coordinate.
type Cell struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Origin returns the coordinate of the cell's top-left agent.
func (c Cell) Origin() Coord {
	return Coord{X: c.X*CellWidth + 1, Y: c.Y*CellHeight + 1}
}

// CellsFor returns how many cells are needed to cover a grid whose
// bottom-right agent sits at c.
func CellsFor(c Coord) (int, int) {
	if !c.Valid() {
		return 0, 0
	}
	return (c.X-1)/CellWidth + 1, (c.Y-1)/CellHeight + 1
}

// Delta is a step between two grid coordinates.
type Delta struct {
	DX, DY int
}
