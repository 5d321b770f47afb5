// Package controller wires the joystick surface, the drive mixer and the
// serial transport into one remote control.
package controller

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"rover-remote/internal/drive"
	"rover-remote/internal/joystick"
	"rover-remote/internal/transport"
)

// Sender is the command sink, normally a *transport.Transport
type Sender interface {
	Send(cmd drive.Command) error
	Release() error
}

// Controller serializes input from any number of clients onto one surface
type Controller struct {
	mu      sync.Mutex
	surface *joystick.Surface
	mixer   drive.Mixer
	sender  Sender
	log     zerolog.Logger

	last     drive.Command
	onChange func(drive.Command)
}

// New creates a controller. The surface starts with a zero size and is
// resized by the first pointer event that carries dimensions.
func New(mixer drive.Mixer, opts joystick.Options, sender Sender, log zerolog.Logger) *Controller {
	c := &Controller{
		surface: joystick.NewSurface(0, 0, opts),
		mixer:   mixer,
		sender:  sender,
		log:     log,
	}
	c.surface.SetListener(c.onVector)
	return c
}

// Surface exposes the joystick for clock injection and rendering state
func (c *Controller) Surface() *joystick.Surface {
	return c.surface
}

// OnCommand registers a callback for every command handed to the sender
func (c *Controller) OnCommand(f func(drive.Command)) {
	c.mu.Lock()
	c.onChange = f
	c.mu.Unlock()
}

// Pointer feeds one raw pointer event. Width and height describe the
// control's bounding box; a change re-centers the stick.
func (c *Controller) Pointer(p joystick.Pointer, width, height float64) joystick.State {
	c.mu.Lock()
	defer c.mu.Unlock()

	if width > 0 && height > 0 {
		if w, h := c.surface.Size(); w != width || h != height {
			c.surface.Resize(width, height)
		}
	}
	c.surface.Handle(p)
	return c.surface.State()
}

// Direct sets both motors from independent sliders, skipping the mixer
func (c *Controller) Direct(left, right int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.send(drive.NewCommand(left, right))
}

// Stop releases the stick and sends the idle command
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.surface.PointerCancel()
}

// Last returns the most recent command handed to the sender
func (c *Controller) Last() drive.Command {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// onVector runs under c.mu, called back from the surface
func (c *Controller) onVector(e joystick.Event) {
	if e.Released() {
		c.release()
		return
	}
	c.send(c.mixer.Command(e.X, e.Y))
}

func (c *Controller) send(cmd drive.Command) {
	c.last = cmd
	if c.onChange != nil {
		c.onChange(cmd)
	}

	err := c.sender.Send(cmd)
	if err != nil && !errors.Is(err, transport.ErrChannelClosed) {
		c.log.Warn().Err(err).Stringer("cmd", cmd).Msg("[control] send")
	}
}

func (c *Controller) release() {
	c.last = drive.Stop
	if c.onChange != nil {
		c.onChange(drive.Stop)
	}

	err := c.sender.Release()
	if err != nil && !errors.Is(err, transport.ErrChannelClosed) {
		c.log.Warn().Err(err).Msg("[control] release")
	}
}
