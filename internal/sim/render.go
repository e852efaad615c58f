package sim

import (
	"fmt"
	"io"
	"strings"

	"github.com/dyluth/turtlegrid/internal/grid"
	"github.com/fatih/color"
)

// Terminal background for each palette colour.
var backgrounds = [grid.PaletteSize]color.Attribute{
	color.BgHiWhite,   // white
	color.BgYellow,    // orange
	color.BgMagenta,   // magenta
	color.BgHiCyan,    // light blue
	color.BgHiYellow,  // yellow
	color.BgHiGreen,   // lime
	color.BgHiMagenta, // pink
	color.BgHiBlack,   // gray
	color.BgWhite,     // light gray
	color.BgCyan,      // cyan
	color.BgHiBlue,    // purple
	color.BgBlue,      // blue
	color.BgRed,       // brown
	color.BgGreen,     // green
	color.BgHiRed,     // red
	color.BgBlack,     // black
}

// Render draws the wall as seen by a viewer, two terminal columns per
// pixel. Each pixel shows its colour's hex digit so the output stays
// readable without colour; an empty position shows dots.
func (d *Display) Render(w io.Writer) error {
	var b strings.Builder
	for y := 1; y <= d.Layout.Height; y++ {
		for x := 1; x <= d.Layout.Width; x++ {
			c := d.Pixel(grid.Coord{X: x, Y: y})
			if c == grid.None {
				b.WriteString("..")
				continue
			}
			b.WriteString(color.New(backgrounds[c], color.FgBlack).Sprint(c.Hex() + c.Hex()))
		}
		b.WriteByte('\n')
	}
	_, err := fmt.Fprint(w, b.String())
	return err
}
