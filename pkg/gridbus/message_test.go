package gridbus

import (
	"encoding/json"
	"testing"

	"github.com/dyluth/turtlegrid/internal/grid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeProducesTaggedEnvelope(t *testing.T) {
	payload, err := Encode(Clear{Color: grid.White}, 0)
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(payload, &raw))
	assert.Equal(t, true, raw["turtlegrid"])
	assert.Equal(t, "clear", raw["action"])
	assert.Equal(t, map[string]interface{}{"color": "white"}, raw["data"])
	assert.NotContains(t, raw, "reply")
}

func TestDecodeMessages(t *testing.T) {
	tests := []struct {
		name  string
		msg   Message
		reply int
	}{
		{"character", Character{GlyphX: 10, GlyphY: 2, Fg: grid.White, Bg: grid.Black}, 0},
		{"place", Place{Pixel: Pixel{X: 3, Y: 4, Color: grid.Red}}, 0},
		{"batch", PlaceBatch{Pixels: []Pixel{{X: 1, Y: 1, Color: grid.Blue}, {X: 2, Y: 1, Color: grid.Lime}}}, 0},
		{"reset", Reset{}, 0},
		{"size query carries reply channel", SizeQuery{}, ReplyChannel},
		{"size", Size{Width: 4, Height: 2}, 0},
		{"error", ErrorReport{Message: "boom", AgentID: "a1", Label: "1,1"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := Encode(tt.msg, tt.reply)
			require.NoError(t, err)

			decoded, reply, err := Decode(payload)
			require.NoError(t, err)
			assert.Equal(t, tt.msg, decoded)
			assert.Equal(t, tt.reply, reply)
		})
	}
}

func TestDecodeRejectsForeignTraffic(t *testing.T) {
	for _, payload := range []string{
		`not json`,
		`{"action":"clear","data":{"color":"white"}}`,
		`{"turtlegrid":false,"action":"clear"}`,
	} {
		_, _, err := Decode([]byte(payload))
		assert.ErrorIs(t, err, ErrForeign, payload)
	}
}

func TestDecodeUnknownAction(t *testing.T) {
	_, _, err := Decode([]byte(`{"turtlegrid":true,"action":"dance"}`))
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestDecodeInvalidColor(t *testing.T) {
	_, _, err := Decode([]byte(`{"turtlegrid":true,"action":"clear","data":{"color":"chartreuse"}}`))
	assert.ErrorIs(t, err, grid.ErrInvalidColor)
}
