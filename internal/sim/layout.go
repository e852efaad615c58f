package sim

import (
	"fmt"
	"math/rand"

	"github.com/dyluth/turtlegrid/internal/grid"
	"github.com/dyluth/turtlegrid/internal/storage"
	"github.com/dyluth/turtlegrid/internal/turtle"
)

// chestSize matches a double chest.
const chestSize = 54

// Layout describes a wall to build.
type Layout struct {
	Topology grid.Topology
	Width    int // in agents
	Height   int // in agents
	Markers  turtle.Markers
	Items    storage.Items
	// Stock is how many of each palette item the shared chest starts with.
	Stock int
	// Seed randomises initial facings. Agents turn themselves as needed.
	Seed int64
}

// Display is a built wall: the world plus where each agent should end up.
type Display struct {
	*World
	Layout Layout

	expected map[*Turtle]grid.Coord
	draw     map[grid.Coord]Vec3i
}

// Build creates the world for l. Chained walls stand in the X/Y plane facing
// south with modems behind. Bordered floors lie in the X/Z plane on top of
// their modems, with top markers along the north edge and left markers along
// the west edge.
func Build(l Layout) (*Display, error) {
	if l.Width < 1 || l.Height < 1 {
		return nil, fmt.Errorf("display must be at least 1x1, got %dx%d", l.Width, l.Height)
	}
	if l.Items == nil {
		l.Items = storage.DefaultItems()
	}
	if l.Topology == "" {
		l.Topology = grid.Chained
	}
	if l.Topology == grid.Bordered && (l.Markers.Top == "" || l.Markers.Left == "") {
		return nil, fmt.Errorf("bordered display needs top and left marker items")
	}

	rng := rand.New(rand.NewSource(l.Seed))
	d := &Display{
		World:    NewWorld(),
		Layout:   l,
		expected: make(map[*Turtle]grid.Coord),
		draw:     make(map[grid.Coord]Vec3i),
	}

	for gy := 1; gy <= l.Height; gy++ {
		for gx := 1; gx <= l.Width; gx++ {
			c := grid.Coord{X: gx, Y: gy}
			var pos, modem Vec3i
			if l.Topology == grid.Bordered {
				pos = Vec3i{X: gx, Z: gy}
				modem = pos.add(Vec3i{Y: -1})
			} else {
				pos = Vec3i{X: gx, Y: -gy}
				modem = pos.add(headingVec(grid.North))
			}
			d.AddModem(modem)
			t := d.AddTurtle(pos, grid.Heading(rng.Intn(4)), TurtleName(len(d.expected)))
			d.expected[t] = c
			d.draw[c] = d.drawPos(pos)
		}
	}

	if l.Topology == grid.Bordered {
		for gx := 1; gx <= l.Width; gx++ {
			d.SetBlock(Vec3i{X: gx, Z: 0}, l.Markers.Top)
		}
		for gy := 1; gy <= l.Height; gy++ {
			d.SetBlock(Vec3i{X: 0, Z: gy}, l.Markers.Left)
		}
	}

	// Far enough away that no agent senses it.
	chest := d.AddChest(Vec3i{X: -16, Y: -16, Z: -16}, "chest_0", chestSize)
	if l.Stock > 0 {
		if err := stock(chest, l.Items, l.Stock); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *Display) drawPos(pos Vec3i) Vec3i {
	if d.Layout.Topology == grid.Bordered {
		return pos.add(Vec3i{Y: 1})
	}
	return pos.add(headingVec(grid.South))
}

func stock(chest *storage.Memory, items storage.Items, count int) error {
	slot := 1
	for _, c := range grid.Palette() {
		for left := count; left > 0; left -= storage.MaxStack {
			if slot > chest.Size() {
				return fmt.Errorf("chest cannot hold %d of each colour", count)
			}
			if err := chest.Put(slot, storage.Stack{Item: items[c], Count: min(left, storage.MaxStack)}); err != nil {
				return err
			}
			slot++
		}
	}
	return nil
}

// Expected returns the position t should resolve to.
func (d *Display) Expected(t *Turtle) grid.Coord {
	return d.expected[t]
}

// Pixel returns the colour shown at c, or None when nothing (or something
// that is not a palette item) is placed there.
func (d *Display) Pixel(c grid.Coord) grid.Color {
	pos, ok := d.draw[c]
	if !ok {
		return grid.None
	}
	item, ok := d.Block(pos)
	if !ok {
		return grid.None
	}
	color, ok := d.Layout.Items.Color(item)
	if !ok {
		return grid.None
	}
	return color
}

// TurtleName is the name Build gives the turtle placed index-th, counting
// rows top to bottom and cells left to right.
func TurtleName(index int) string {
	return fmt.Sprintf("turtle_%d", index)
}
