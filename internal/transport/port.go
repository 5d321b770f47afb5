package transport

import (
	"context"
	"fmt"
	"io"
	"strings"

	"go.bug.st/serial/enumerator"
)

// Port is an open serial channel
type Port interface {
	io.Writer
	io.Closer
}

// Device describes an enumerated serial adapter
type Device struct {
	Name         string `json:"name"`
	USB          bool   `json:"usb"`
	VID          string `json:"vid,omitempty"`
	PID          string `json:"pid,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	Product      string `json:"product,omitempty"`
}

// Mode holds the line parameters. The motor controller expects 8N1.
type Mode struct {
	BaudRate int
	DataBits int
	StopBits int
}

// DefaultMode is 115200 8N1
var DefaultMode = Mode{BaudRate: 115200, DataBits: 8, StopBits: 1}

// Driver enumerates and opens serial devices
type Driver interface {
	Devices() ([]Device, error)
	Open(dev Device, mode Mode) (Port, error)
}

// Authorizer grants access to a device before it is opened. A nil error
// means granted; denial should wrap ErrPermissionDenied. ErrPermissionPending
// leaves the request open without counting as a denial.
type Authorizer interface {
	Authorize(ctx context.Context, dev Device) error
}

// AuthorizerFunc adapts a function to Authorizer
type AuthorizerFunc func(ctx context.Context, dev Device) error

func (f AuthorizerFunc) Authorize(ctx context.Context, dev Device) error {
	return f(ctx, dev)
}

// NewDriver returns the driver registered under name
func NewDriver(name string) (Driver, error) {
	switch strings.ToLower(name) {
	case "", "bugst":
		return bugstDriver{}, nil
	case "tarm":
		return tarmDriver{}, nil
	}
	return nil, fmt.Errorf("unknown serial driver %q", name)
}

// listUSB enumerates ports with their USB descriptors
func listUSB() ([]Device, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}

	devices := make([]Device, 0, len(ports))
	for _, p := range ports {
		devices = append(devices, Device{
			Name:         p.Name,
			USB:          p.IsUSB,
			VID:          p.VID,
			PID:          p.PID,
			SerialNumber: p.SerialNumber,
			Product:      p.Product,
		})
	}
	return devices, nil
}
