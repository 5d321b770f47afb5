package transport

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	tarm "github.com/tarm/serial"
)

// tarmDriver opens ports with github.com/tarm/serial. It has no
// enumeration of its own and borrows the USB listing.
type tarmDriver struct{}

func (tarmDriver) Devices() ([]Device, error) {
	return listUSB()
}

func (tarmDriver) Open(dev Device, mode Mode) (Port, error) {
	cfg := &tarm.Config{
		Name:        dev.Name,
		Baud:        mode.BaudRate,
		Size:        byte(mode.DataBits),
		Parity:      tarm.ParityNone,
		StopBits:    tarm.Stop1,
		ReadTimeout: 5 * time.Millisecond,
	}
	if mode.StopBits == 2 {
		cfg.StopBits = tarm.Stop2
	}

	port, err := tarm.OpenPort(cfg)
	if err != nil {
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("%w: %s: %v", ErrDeviceNotFound, dev.Name, err)
		case errors.Is(err, fs.ErrPermission):
			return nil, fmt.Errorf("%w: %s: %v", ErrPermissionDenied, dev.Name, err)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrOpenFailure, dev.Name, err)
	}
	return port, nil
}
