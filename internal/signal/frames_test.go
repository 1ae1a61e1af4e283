package signal

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpecificationFrameShape(t *testing.T) {
	var f specificationFrame
	f.Type = "SPECIFICATION"
	f.Message.Display.Width = 1920
	f.Message.Display.Height = 1080
	f.Message.Display.FrameRate = 24
	f.Message.IPAddr = "0.0.0.0"

	out, err := json.Marshal(f)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))

	assert.Equal(t, "SPECIFICATION", decoded["type"])
	msg := decoded["message"].(map[string]any)
	display := msg["display"].(map[string]any)
	assert.Equal(t, float64(1920), display["width"])
	assert.Equal(t, "0.0.0.0", msg["ip_addr"])
}

func TestEnvelopeDecodesKnownFrameTypes(t *testing.T) {
	cases := []string{
		`{"type":"CONNECTION","uuid":"a","sdp":"v=0"}`,
		`{"type":"CONTROL","uuid":"a"}`,
		`{"type":"DISCONNECT","uuid":"a"}`,
	}
	for _, raw := range cases {
		var env envelope
		require.NoError(t, json.Unmarshal([]byte(raw), &env))
		assert.NotEmpty(t, env.Type)
	}
}

func TestUUIDFrameRoundTrip(t *testing.T) {
	f := uuidFrame{Type: "CONTROL_TAKEN", UUID: "peer-1"}
	out, err := json.Marshal(f)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"CONTROL_TAKEN","uuid":"peer-1"}`, string(out))
}
