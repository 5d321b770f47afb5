package protocol

import "encoding/json"

// Message types
const (
	TypePing         = "ping"
	TypePong         = "pong"
	TypeStatus       = "status"
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeICECandidate = "ice_candidate"
	TypePointer      = "pointer"
	TypeStick        = "stick"
	TypeDrive        = "drive"
	TypeStop         = "stop"
	TypeConnect      = "connect"
	TypeVideo        = "video"
	TypePermission   = "permission"
	TypeError        = "error"
)

// Error codes
const (
	ErrSerial         = "SERIAL_ERROR"
	ErrRTSP           = "RTSP_ERROR"
	ErrInvalidMessage = "INVALID_MESSAGE"
)

// Message is the base envelope for all WebSocket messages
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// PingPayload for ping messages
type PingPayload struct {
	Timestamp int64 `json:"timestamp"`
}

// PongPayload for pong messages
type PongPayload struct {
	ClientTimestamp int64 `json:"client_timestamp"`
	ServerTimestamp int64 `json:"server_timestamp"`
}

// StatusPayload reports both collaborators plus the last motor command
type StatusPayload struct {
	Serial        string `json:"serial"`
	SerialDevice  string `json:"serial_device,omitempty"`
	SerialMessage string `json:"serial_message,omitempty"`
	Video         string `json:"video"`
	VideoURL      string `json:"video_url,omitempty"`
	VideoMessage  string `json:"video_message,omitempty"`
	Left          int    `json:"left"`
	Right         int    `json:"right"`
}

// SDPPayload for offer/answer messages
type SDPPayload struct {
	SDP string `json:"sdp"`
}

// ICECandidatePayload for ICE candidate messages
type ICECandidatePayload struct {
	Candidate     string `json:"candidate"`
	SDPMid        string `json:"sdp_mid"`
	SDPMLineIndex uint16 `json:"sdp_mline_index"`
}

// PointerPayload is one raw touch/mouse event on the joystick control.
// X and Y are relative to the control's bounding box of Width x Height.
type PointerPayload struct {
	Phase  string  `json:"phase"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// StickPayload echoes the handle geometry for rendering
type StickPayload struct {
	CenterX   float64 `json:"center_x"`
	CenterY   float64 `json:"center_y"`
	Radius    float64 `json:"radius"`
	HatRadius float64 `json:"hat_radius"`
	HandleX   float64 `json:"handle_x"`
	HandleY   float64 `json:"handle_y"`
	Active    bool    `json:"active"`
}

// DrivePayload sets both motors directly from seek bars
type DrivePayload struct {
	Left  int `json:"left"`
	Right int `json:"right"`
}

// VideoPayload starts the stream at URL, or stops it when URL is empty
type VideoPayload struct {
	URL string `json:"url"`
}

// PermissionPayload asks for (server to client) or answers (client to
// server) access to a serial device
type PermissionPayload struct {
	Device  string `json:"device"`
	Product string `json:"product,omitempty"`
	Granted bool   `json:"granted"`
}

// ErrorPayload for error messages
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewMessage creates a new message with the given type and payload
func NewMessage(msgType string, payload any) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:    msgType,
		Payload: data,
	}, nil
}

// ParsePayload unmarshals the payload into the given struct
func (m *Message) ParsePayload(v any) error {
	return json.Unmarshal(m.Payload, v)
}
