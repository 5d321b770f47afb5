package transport

import "errors"

// Failures are reported through status events and these sentinels. None of
// them is fatal to the caller.
var (
	ErrDeviceNotFound    = errors.New("no compatible serial adapter found")
	ErrPermissionPending = errors.New("waiting for device permission")
	ErrPermissionDenied  = errors.New("device permission denied")
	ErrOpenFailure       = errors.New("could not open serial device")
	ErrWriteTimeout      = errors.New("serial write timed out")
	ErrWriteFailure      = errors.New("serial write failed")
	ErrChannelClosed     = errors.New("serial channel is closed")
	ErrDeviceLost        = errors.New("serial device removed")
)

// statusFor maps an acquisition error to the status it surfaces as
func statusFor(err error) Status {
	switch {
	case errors.Is(err, ErrDeviceNotFound):
		return StatusNotFound
	case errors.Is(err, ErrPermissionPending):
		return StatusPermissionPending
	case errors.Is(err, ErrPermissionDenied):
		return StatusPermissionDenied
	case errors.Is(err, ErrDeviceLost):
		return StatusLost
	}
	return StatusError
}
