// Package drive converts a joystick vector into left/right motor power
// for a differential (tank) drive, and frames motor commands for the wire.
package drive

import (
	"fmt"
	"strings"
)

const (
	MinPower = -100
	MaxPower = 100
)

// Axis names a raw joystick axis
type Axis string

const (
	AxisX Axis = "x"
	AxisY Axis = "y"
)

// ParseAxis accepts "x" or "y" in any case
func ParseAxis(s string) (Axis, error) {
	switch Axis(strings.ToLower(strings.TrimSpace(s))) {
	case AxisX:
		return AxisX, nil
	case AxisY:
		return AxisY, nil
	}
	return "", fmt.Errorf("unknown axis %q, want x or y", s)
}

// AxisAssignment picks which raw axis is throttle. Steer is always the
// other one, so no axis can be used twice.
type AxisAssignment struct {
	Throttle Axis
}

// Steer returns the axis not used for throttle
func (a AxisAssignment) Steer() Axis {
	if a.Throttle == AxisX {
		return AxisY
	}
	return AxisX
}

// Split maps a raw (x, y) vector to (throttle, steer)
func (a AxisAssignment) Split(x, y int) (throttle, steer int) {
	if a.Throttle == AxisX {
		return x, y
	}
	return y, x
}

// Config of the mixer
type Config struct {
	Axes     AxisAssignment
	DeadZone int
}

// DefaultConfig drives forward when the stick is pushed up
func DefaultConfig() Config {
	return Config{Axes: AxisAssignment{Throttle: AxisY}}
}

func (c Config) Validate() error {
	if c.Axes.Throttle != AxisX && c.Axes.Throttle != AxisY {
		return fmt.Errorf("invalid throttle axis %q", c.Axes.Throttle)
	}
	if c.DeadZone < 0 {
		return fmt.Errorf("dead zone must be >= 0, got %d", c.DeadZone)
	}
	return nil
}

// Mixer applies a Config to joystick vectors. It holds no state between calls.
type Mixer struct {
	cfg Config
}

func NewMixer(cfg Config) (Mixer, error) {
	if err := cfg.Validate(); err != nil {
		return Mixer{}, err
	}
	return Mixer{cfg: cfg}, nil
}

func (m Mixer) Config() Config {
	return m.cfg
}

// Command mixes a raw joystick vector
func (m Mixer) Command(x, y int) Command {
	throttle, steer := m.cfg.Axes.Split(x, y)
	left, right := Mix(throttle, steer, m.cfg.DeadZone)
	return Command{Left: left, Right: right}
}

// Mix is additive tank-drive mixing. Steer below the dead zone is ignored,
// and clamping happens after the addition so full-power turns stay
// possible at partial throttle.
func Mix(throttle, steer, deadZone int) (left, right int) {
	if abs(steer) < deadZone {
		steer = 0
	}
	left = Clamp(throttle + steer)
	right = Clamp(throttle - steer)
	return left, right
}

// Clamp limits v to [MinPower, MaxPower]
func Clamp(v int) int {
	if v < MinPower {
		return MinPower
	}
	if v > MaxPower {
		return MaxPower
	}
	return v
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
