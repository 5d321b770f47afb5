package transport

// Status of the serial link as seen by the rest of the system
type Status string

const (
	StatusDisconnected      Status = "disconnected"
	StatusNotFound          Status = "not_found"
	StatusPermissionPending Status = "permission_pending"
	StatusPermissionDenied  Status = "permission_denied"
	StatusConnected         Status = "connected"
	StatusError             Status = "error"
	StatusLost              Status = "lost"
)

// Event is delivered to status observers. Err is nil for plain transitions.
type Event struct {
	Status Status
	Device string
	Err    error
}

// Message is a human readable description for status lines
func (e Event) Message() string {
	if e.Err != nil {
		return string(e.Status) + ": " + e.Err.Error()
	}
	if e.Device != "" {
		return string(e.Status) + ": " + e.Device
	}
	return string(e.Status)
}

// Observer is called synchronously and must not block
type Observer func(Event)
