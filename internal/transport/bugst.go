package transport

import (
	"errors"
	"fmt"

	bugst "go.bug.st/serial"
)

// bugstDriver is the default driver, backed by go.bug.st/serial
type bugstDriver struct{}

func (bugstDriver) Devices() ([]Device, error) {
	return listUSB()
}

func (bugstDriver) Open(dev Device, mode Mode) (Port, error) {
	m := &bugst.Mode{
		BaudRate: mode.BaudRate,
		DataBits: mode.DataBits,
		Parity:   bugst.NoParity,
		StopBits: bugst.OneStopBit,
	}
	if mode.StopBits == 2 {
		m.StopBits = bugst.TwoStopBits
	}

	port, err := bugst.Open(dev.Name, m)
	if err != nil {
		return nil, classifyBugst(dev.Name, err)
	}
	return port, nil
}

func classifyBugst(name string, err error) error {
	var perr *bugst.PortError
	if errors.As(err, &perr) {
		switch perr.Code() {
		case bugst.PortNotFound:
			return fmt.Errorf("%w: %s: %v", ErrDeviceNotFound, name, err)
		case bugst.PermissionDenied:
			return fmt.Errorf("%w: %s: %v", ErrPermissionDenied, name, err)
		}
	}
	return fmt.Errorf("%w: %s: %v", ErrOpenFailure, name, err)
}
