package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/dyluth/turtlegrid/internal/controller"
	"github.com/dyluth/turtlegrid/internal/framebuffer"
	"github.com/dyluth/turtlegrid/internal/grid"
	"github.com/dyluth/turtlegrid/internal/sim"
)

// errQuit ends the console loop.
var errQuit = errors.New("quit")

const consoleHelp = `Display:
  clear [COLOR]               set every pixel
  pixel X Y COLOR [...]       set pixels (several are batched)
  checker [COLOR COLOR]       draw a checkerboard through a pixel buffer
  freeze | thaw               stop or resume drawing
  reset                       forget positions and rediscover
  size                        ask the display for its size
Text buffer:
  text STRING                 write at the cursor
  cursor COL ROW              move the cursor
  fg COLOR | bg COLOR         set text colours
  cls                         clear the text buffer
  scroll N                    scroll up N rows (down if negative)
  flush [force]               send changed cells (all with force)
  auto on|off                 flush after every change
Fleet:
  startup | shutdown | restart
  agents                      list agent phases and positions
  steal                       pull every block back into the chest
  chest                       count the chest's contents
  render                      print the wall
  help | quit`

// console is the sim's interactive prompt. The text buffer is created on
// first use, sized from the display.
type console struct {
	ctrl    *controller.Controller
	display *sim.Display
	fleet   *sim.Fleet
	out     io.Writer

	text *framebuffer.TextBuffer
}

func newConsole(ctrl *controller.Controller, display *sim.Display, fleet *sim.Fleet, out io.Writer) *console {
	return &console{ctrl: ctrl, display: display, fleet: fleet, out: out}
}

// run reads commands from in until quit, end of input or cancellation.
// Command errors are printed and the loop continues.
func (c *console) run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Fprint(c.out, "> ")
		select {
		case <-ctx.Done():
			fmt.Fprintln(c.out)
			return nil
		case line, ok := <-lines:
			if !ok {
				fmt.Fprintln(c.out)
				return nil
			}
			err := c.exec(ctx, line)
			if errors.Is(err, errQuit) {
				return nil
			}
			if err != nil {
				fmt.Fprintf(c.out, "error: %v\n", err)
			}
		}
	}
}

// exec runs one console line.
func (c *console) exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	name, args := fields[0], fields[1:]

	switch name {
	case "help", "?":
		fmt.Fprintln(c.out, consoleHelp)
		return nil
	case "quit", "exit":
		return errQuit

	case "clear":
		color := grid.Black
		if len(args) > 0 {
			var err error
			if color, err = parseConsoleColor(args[0]); err != nil {
				return err
			}
		}
		return c.ctrl.Clear(ctx, color)
	case "pixel":
		if len(args) == 0 || len(args)%3 != 0 {
			return fmt.Errorf("usage: pixel X Y COLOR [X Y COLOR...]")
		}
		pixels, err := parsePixels(args)
		if err != nil {
			return err
		}
		if len(pixels) == 1 {
			return c.ctrl.SetPixel(ctx, pixels[0].X, pixels[0].Y, pixels[0].Color)
		}
		return c.ctrl.SetPixels(ctx, pixels)
	case "checker":
		return c.checker(ctx, args)
	case "freeze":
		return c.ctrl.Freeze(ctx)
	case "thaw":
		return c.ctrl.Thaw(ctx)
	case "reset":
		return c.ctrl.Reset(ctx)
	case "size":
		w, h, err := c.ctrl.GetSize(ctx, 0)
		if err != nil {
			return err
		}
		if w == 0 {
			fmt.Fprintln(c.out, "no answer")
			return nil
		}
		fmt.Fprintf(c.out, "%dx%d cells\n", w, h)
		return nil

	case "text", "cursor", "fg", "bg", "cls", "scroll", "flush", "auto":
		return c.textCommand(ctx, name, args, line)

	case "startup":
		return c.ctrl.Startup(ctx, 0, 0)
	case "shutdown":
		return c.ctrl.Shutdown(ctx, 0, 0)
	case "restart":
		return c.ctrl.Restart(ctx, 0, 0)
	case "agents":
		c.listAgents()
		return nil
	case "steal":
		result, err := c.ctrl.StealItems(ctx, controller.StealOptions{})
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "drained %d items from %d agents\n", result.Drained, result.Agents)
		return nil
	case "chest":
		return c.countChests(ctx)
	case "render":
		return c.display.Render(c.out)
	}
	return fmt.Errorf("unknown command %q (try help)", name)
}

func (c *console) textBuffer(ctx context.Context) (*framebuffer.TextBuffer, error) {
	if c.text != nil {
		return c.text, nil
	}
	w, h, err := c.ctrl.GetSize(ctx, 0)
	if err != nil {
		return nil, err
	}
	if w == 0 {
		return nil, errors.New("display did not report its size; wait for the agents to resolve")
	}
	c.text = framebuffer.NewTextBuffer(c.ctrl, w, h)
	return c.text, nil
}

func (c *console) textCommand(ctx context.Context, name string, args []string, line string) error {
	buf, err := c.textBuffer(ctx)
	if err != nil {
		return err
	}

	switch name {
	case "text":
		// Keep the spacing the user typed.
		s := strings.TrimPrefix(strings.TrimLeft(line, " \t"), "text")
		if len(s) > 0 {
			s = s[1:]
		}
		_, err = buf.WriteString(s)
	case "cursor":
		if len(args) != 2 {
			return errors.New("usage: cursor COL ROW")
		}
		col, colErr := strconv.Atoi(args[0])
		row, rowErr := strconv.Atoi(args[1])
		if err := errors.Join(colErr, rowErr); err != nil {
			return err
		}
		buf.SetCursorPos(col, row)
	case "fg", "bg":
		if len(args) != 1 {
			return fmt.Errorf("usage: %s COLOR", name)
		}
		color, err := parseConsoleColor(args[0])
		if err != nil {
			return err
		}
		if name == "fg" {
			return buf.SetTextColor(color)
		}
		return buf.SetBackgroundColor(color)
	case "cls":
		err = buf.Clear()
	case "scroll":
		if len(args) != 1 {
			return errors.New("usage: scroll N")
		}
		n, convErr := strconv.Atoi(args[0])
		if convErr != nil {
			return convErr
		}
		err = buf.Scroll(n)
	case "flush":
		force := len(args) > 0 && args[0] == "force"
		sent, flushErr := buf.Flush(ctx, force)
		fmt.Fprintf(c.out, "sent %d cells\n", sent)
		return flushErr
	case "auto":
		if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
			return errors.New("usage: auto on|off")
		}
		buf.SetAutoUpdate(args[0] == "on")
	}
	return err
}

// checker draws a two-colour checkerboard over the whole wall as one batch.
func (c *console) checker(ctx context.Context, args []string) error {
	a, b := grid.White, grid.Black
	if len(args) == 2 {
		var err error
		if a, err = parseConsoleColor(args[0]); err != nil {
			return err
		}
		if b, err = parseConsoleColor(args[1]); err != nil {
			return err
		}
	} else if len(args) != 0 {
		return errors.New("usage: checker [COLOR COLOR]")
	}

	w, h := c.display.Layout.Width, c.display.Layout.Height
	buf := framebuffer.NewPixelBuffer(c.ctrl, w, h)
	buf.SetBatch(true)
	for y := 1; y <= h; y++ {
		for x := 1; x <= w; x++ {
			color := a
			if (x+y)%2 == 1 {
				color = b
			}
			if err := buf.SetPixel(x, y, color); err != nil {
				return err
			}
		}
	}
	sent, err := buf.Flush(ctx, false)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "sent %d pixels\n", sent)
	return nil
}

func (c *console) listAgents() {
	if c.fleet == nil {
		fmt.Fprintln(c.out, "agents run outside the simulator; use gridctl agents")
		return
	}
	for i, agent := range c.fleet.Agents() {
		pos := "unknown"
		if p, ok := agent.Position(); ok {
			pos = p.String()
		}
		fmt.Fprintf(c.out, "%3d  %-12s %-22s %-8s %s\n", i, agent.ID(), agent.Phase(), pos, agent.Current())
	}
}

func (c *console) countChests(ctx context.Context) error {
	for _, chest := range c.display.Chests() {
		slots, err := chest.List(ctx)
		if err != nil {
			return err
		}
		counts := make(map[string]int)
		for _, stack := range slots {
			counts[stack.Item] += stack.Count
		}
		names := make([]string, 0, len(counts))
		for name := range counts {
			names = append(names, name)
		}
		sort.Strings(names)

		fmt.Fprintf(c.out, "%s (%d/%d slots)\n", chest.Name(), len(slots), chest.Size())
		for _, name := range names {
			fmt.Fprintf(c.out, "  %-24s %d\n", name, counts[name])
		}
	}
	return nil
}

func parseConsoleColor(s string) (grid.Color, error) {
	c, err := grid.ParseColor(s)
	if err != nil {
		return grid.None, err
	}
	if c == grid.None {
		return grid.None, fmt.Errorf("%w: %q", grid.ErrInvalidColor, s)
	}
	return c, nil
}
