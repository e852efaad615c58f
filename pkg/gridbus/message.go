package gridbus

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dyluth/turtlegrid/internal/grid"
)

// Action names the kind of message carried in an envelope.
type Action string

const (
	ActionCharacter  Action = "character"
	ActionPlace      Action = "place"
	ActionPlaceBatch Action = "place-batch"
	ActionClear      Action = "clear"
	ActionReset      Action = "reset"
	ActionFreeze     Action = "freeze"
	ActionThaw       Action = "thaw"
	ActionPickup     Action = "pickup"
	ActionSizeQuery  Action = "size-query"
	ActionSize       Action = "size"
	ActionError      Action = "error"
)

var (
	// ErrForeign is returned by Decode for payloads that are not tagged as
	// turtlegrid envelopes. Receivers drop these silently.
	ErrForeign = errors.New("foreign message")

	// ErrUnknownAction is returned for tagged envelopes with an action this
	// version does not understand.
	ErrUnknownAction = errors.New("unknown action")
)

// Message is implemented by every message type the bus carries. The set is
// closed; receivers switch over the concrete types.
type Message interface {
	Action() Action
	isMessage()
}

// Pixel addresses one agent by grid coordinate.
type Pixel struct {
	X     int        `json:"x"`
	Y     int        `json:"y"`
	Color grid.Color `json:"color"`
}

// Coord returns the pixel's grid coordinate.
func (p Pixel) Coord() grid.Coord {
	return grid.Coord{X: p.X, Y: p.Y}
}

// Character asks every agent of a cell to render its share of a glyph. The
// glyph offset is the 1-based position of the glyph's top-left pixel in the
// font bitmap.
type Character struct {
	GlyphX int        `json:"glyph_x"`
	GlyphY int        `json:"glyph_y"`
	Fg     grid.Color `json:"fg"`
	Bg     grid.Color `json:"bg"`
}

// Place sets the colour of the single agent at (X, Y).
type Place struct {
	Pixel
}

// PlaceBatch carries many pixels; each agent scans for its own coordinate.
type PlaceBatch struct {
	Pixels []Pixel `json:"pixels"`
}

// Clear sets every agent to one colour.
type Clear struct {
	Color grid.Color `json:"color"`
}

// Reset wipes every agent's persisted state and restarts it.
type Reset struct{}

// Freeze inhibits drawing until Thaw.
type Freeze struct{}

// Thaw re-enables drawing.
type Thaw struct{}

// Pickup retracts every placed block without placing a replacement.
type Pickup struct{}

// SizeQuery asks the bottom-right agent for the display size.
type SizeQuery struct{}

// Size is the bottom-right agent's answer, in character cells.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ErrorReport is a best-effort fault report from an agent.
type ErrorReport struct {
	Message string `json:"message"`
	AgentID string `json:"agent_id"`
	Label   string `json:"label"`
}

func (Character) Action() Action   { return ActionCharacter }
func (Place) Action() Action       { return ActionPlace }
func (PlaceBatch) Action() Action  { return ActionPlaceBatch }
func (Clear) Action() Action       { return ActionClear }
func (Reset) Action() Action       { return ActionReset }
func (Freeze) Action() Action      { return ActionFreeze }
func (Thaw) Action() Action        { return ActionThaw }
func (Pickup) Action() Action      { return ActionPickup }
func (SizeQuery) Action() Action   { return ActionSizeQuery }
func (Size) Action() Action        { return ActionSize }
func (ErrorReport) Action() Action { return ActionError }

func (Character) isMessage()   {}
func (Place) isMessage()       {}
func (PlaceBatch) isMessage()  {}
func (Clear) isMessage()       {}
func (Reset) isMessage()       {}
func (Freeze) isMessage()      {}
func (Thaw) isMessage()        {}
func (Pickup) isMessage()      {}
func (SizeQuery) isMessage()   {}
func (Size) isMessage()        {}
func (ErrorReport) isMessage() {}

// Envelope is the wire format of every bus message.
type Envelope struct {
	Tag    bool            `json:"turtlegrid"`
	Action Action          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
	Reply  int             `json:"reply,omitempty"`
}

// Encode wraps a message in a tagged envelope. reply is the channel the
// receiver should answer on, or 0.
func Encode(msg Message, reply int) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s message: %w", msg.Action(), err)
	}
	return json.Marshal(Envelope{
		Tag:    true,
		Action: msg.Action(),
		Data:   data,
		Reply:  reply,
	})
}

// Decode unwraps an envelope. It returns ErrForeign for untagged payloads and
// ErrUnknownAction for actions it cannot map to a message type.
func Decode(payload []byte) (Message, int, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil || !env.Tag {
		return nil, 0, ErrForeign
	}

	var msg Message
	switch env.Action {
	case ActionCharacter:
		msg = &Character{}
	case ActionPlace:
		msg = &Place{}
	case ActionPlaceBatch:
		msg = &PlaceBatch{}
	case ActionClear:
		msg = &Clear{}
	case ActionReset:
		msg = &Reset{}
	case ActionFreeze:
		msg = &Freeze{}
	case ActionThaw:
		msg = &Thaw{}
	case ActionPickup:
		msg = &Pickup{}
	case ActionSizeQuery:
		msg = &SizeQuery{}
	case ActionSize:
		msg = &Size{}
	case ActionError:
		msg = &ErrorReport{}
	default:
		return nil, 0, fmt.Errorf("%w: %q", ErrUnknownAction, env.Action)
	}

	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, msg); err != nil {
			return nil, 0, fmt.Errorf("failed to unmarshal %s data: %w", env.Action, err)
		}
	}

	return deref(msg), env.Reply, nil
}

// deref returns the value form of a decoded message so receivers can switch
// on value types.
func deref(msg Message) Message {
	switch m := msg.(type) {
	case *Character:
		return *m
	case *Place:
		return *m
	case *PlaceBatch:
		return *m
	case *Clear:
		return *m
	case *Reset:
		return *m
	case *Freeze:
		return *m
	case *Thaw:
		return *m
	case *Pickup:
		return *m
	case *SizeQuery:
		return *m
	case *Size:
		return *m
	case *ErrorReport:
		return *m
	}
	return msg
}
