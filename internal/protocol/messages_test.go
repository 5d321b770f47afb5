package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPointerEnvelope(t *testing.T) {
	raw := `{"type":"pointer","payload":{"phase":"move","x":12.5,"y":40,"width":200,"height":180}}`

	var msg Message
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))
	require.Equal(t, TypePointer, msg.Type)

	var p PointerPayload
	require.NoError(t, msg.ParsePayload(&p))
	require.Equal(t, PointerPayload{Phase: "move", X: 12.5, Y: 40, Width: 200, Height: 180}, p)
}

func TestNewMessageStatus(t *testing.T) {
	msg, err := NewMessage(TypeStatus, StatusPayload{Serial: "connected", SerialDevice: "/dev/ttyUSB0", Video: "stopped", Left: 40, Right: -40})
	require.NoError(t, err)

	data, err := json.Marshal(msg)
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"status","payload":{"serial":"connected","serial_device":"/dev/ttyUSB0","video":"stopped","left":40,"right":-40}}`, string(data))
}

func TestParsePayloadRejectsWrongShape(t *testing.T) {
	msg := Message{Type: TypeDrive, Payload: json.RawMessage(`{"left":"fast"}`)}
	var p DrivePayload
	require.Error(t, msg.ParsePayload(&p))
}
