package drive

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Command is one update for both motors, each in [-100,100]
type Command struct {
	Left  int `json:"left"`
	Right int `json:"right"`
}

// Stop is the idle command sent on release
var Stop = Command{}

// NewCommand clamps both sides into range
func NewCommand(left, right int) Command {
	return Command{Left: Clamp(left), Right: Clamp(right)}
}

func (c Command) IsStop() bool {
	return c == Stop
}

func (c Command) String() string {
	return fmt.Sprintf("L%d/R%d", c.Left, c.Right)
}

// Framing selects the line format understood by the motor controller
type Framing string

const (
	// FramingCombined is "S:<left>:<right>\n", applied atomically by the receiver
	FramingCombined Framing = "combined"
	// FramingSplit is "M1:<left>\n" followed by "M2:<right>\n" for older firmware
	FramingSplit Framing = "split"
)

func ParseFraming(s string) (Framing, error) {
	switch f := Framing(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FramingCombined:
		return FramingCombined, nil
	case FramingSplit:
		return FramingSplit, nil
	}
	return "", fmt.Errorf("unknown framing %q", s)
}

var ErrBadFrame = errors.New("drive: malformed command frame")

// Encode renders c as newline-terminated ASCII
func (f Framing) Encode(c Command) []byte {
	c = NewCommand(c.Left, c.Right)

	b := make([]byte, 0, 16)
	if f == FramingSplit {
		b = append(b, "M1:"...)
		b = strconv.AppendInt(b, int64(c.Left), 10)
		b = append(b, "\nM2:"...)
		b = strconv.AppendInt(b, int64(c.Right), 10)
		return append(b, '\n')
	}

	b = append(b, "S:"...)
	b = strconv.AppendInt(b, int64(c.Left), 10)
	b = append(b, ':')
	b = strconv.AppendInt(b, int64(c.Right), 10)
	return append(b, '\n')
}

// Decode parses one combined frame, with or without the trailing newline.
// It is the receiver side of FramingCombined and rejects out of range values.
func Decode(line string) (Command, error) {
	line = strings.TrimRight(line, "\r\n")

	parts := strings.Split(line, ":")
	if len(parts) != 3 || parts[0] != "S" {
		return Command{}, fmt.Errorf("%w: %q", ErrBadFrame, line)
	}

	left, err := parsePower(parts[1])
	if err != nil {
		return Command{}, err
	}
	right, err := parsePower(parts[2])
	if err != nil {
		return Command{}, err
	}
	return Command{Left: left, Right: right}, nil
}

func parsePower(s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	if v < MinPower || v > MaxPower {
		return 0, fmt.Errorf("%w: %d out of range", ErrBadFrame, v)
	}
	return v, nil
}
