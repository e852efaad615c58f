// Package watch streams decoded bus traffic for operators.
package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dyluth/turtlegrid/internal/font"
	"github.com/dyluth/turtlegrid/internal/grid"
	"github.com/dyluth/turtlegrid/pkg/gridbus"
)

// OutputFormat selects how traffic is written.
type OutputFormat string

const (
	OutputFormatDefault OutputFormat = "default"
	OutputFormatJSON    OutputFormat = "json"
)

// Event is one observed message in JSON output.
type Event struct {
	Time    time.Time       `json:"time"`
	Channel int             `json:"channel"`
	Target  string          `json:"target"`
	Reply   int             `json:"reply,omitempty"`
	Action  gridbus.Action  `json:"action,omitempty"`
	Message gridbus.Message `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// StreamTraffic writes the deliveries of sub that match criteria to w until
// ctx is cancelled or the subscription closes. Undecodable envelopes are
// always written, marked as errors.
func StreamTraffic(ctx context.Context, sub *gridbus.Subscription, criteria *Criteria, format OutputFormat, w io.Writer) error {
	now := time.Now
	errs := sub.Errors()
	for {
		select {
		case <-ctx.Done():
			return nil

		case d, ok := <-sub.Deliveries():
			if !ok {
				return nil
			}
			if !criteria.Matches(d) {
				continue
			}
			event := Event{
				Time:    now(),
				Channel: d.Channel,
				Target:  ChannelLabel(d.Channel),
				Reply:   d.Reply,
				Action:  d.Message.Action(),
				Message: d.Message,
			}
			if err := write(w, format, event); err != nil {
				return err
			}

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err := write(w, format, Event{Time: now(), Error: err.Error()}); err != nil {
				return err
			}
		}
	}
}

func write(w io.Writer, format OutputFormat, e Event) error {
	if format == OutputFormatJSON {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
		_, err = fmt.Fprintf(w, "%s\n", data)
		return err
	}

	ts := e.Time.Format("15:04:05.000")
	if e.Error != "" {
		_, err := fmt.Fprintf(w, "%s ⚠️  %s\n", ts, e.Error)
		return err
	}
	line := fmt.Sprintf("%s [%s] %s", ts, e.Target, Describe(e.Message))
	if e.Reply != 0 {
		line += fmt.Sprintf(" (reply on %d)", e.Reply)
	}
	_, err := fmt.Fprintln(w, line)
	return err
}

// ChannelLabel names a bus channel for humans.
func ChannelLabel(channel int) string {
	switch {
	case channel == gridbus.ReplyChannel:
		return "reply"
	case channel == gridbus.ErrorChannel:
		return "error"
	case channel == gridbus.AllChannel:
		return "all"
	case channel >= gridbus.ControlBase && channel < gridbus.AllChannel:
		n := channel - gridbus.ControlBase
		return fmt.Sprintf("cell %d,%d", n%gridbus.RowWidth, n/gridbus.RowWidth)
	}
	return fmt.Sprintf("channel %d", channel)
}

// Describe summarises a message on one line.
func Describe(msg gridbus.Message) string {
	switch m := msg.(type) {
	case gridbus.Character:
		return fmt.Sprintf("character %s glyph at %d,%d fg=%s bg=%s", glyphName(m), m.GlyphX, m.GlyphY, m.Fg, m.Bg)
	case gridbus.Place:
		return fmt.Sprintf("place %s at %s", m.Color, m.Coord())
	case gridbus.PlaceBatch:
		return fmt.Sprintf("place-batch %d pixels", len(m.Pixels))
	case gridbus.Clear:
		return fmt.Sprintf("clear %s", m.Color)
	case gridbus.Reset, gridbus.Freeze, gridbus.Thaw, gridbus.Pickup, gridbus.SizeQuery:
		return string(m.Action())
	case gridbus.Size:
		return fmt.Sprintf("size %dx%d cells", m.Width, m.Height)
	case gridbus.ErrorReport:
		label := m.Label
		if label == "" {
			label = grid.UnknownLabel
		}
		return fmt.Sprintf("error from %s at %s: %s", m.AgentID, label, strings.TrimSpace(m.Message))
	}
	return fmt.Sprintf("%T", msg)
}

func glyphName(m gridbus.Character) string {
	c, ok := font.GlyphAt(m.GlyphX, m.GlyphY)
	switch {
	case !ok:
		return "?"
	case c < 0x20 || c > 0x7e:
		return fmt.Sprintf("%#02x", c)
	}
	return fmt.Sprintf("%q", c)
}
