// Package joystick turns raw pointer coordinates inside a circular control
// area into a normalized two-axis vector in [-100,100].
package joystick

import (
	"math"
	"time"

	"rover-remote/internal/throttle"
)

const (
	// MaxPercent is the full deflection on either axis
	MaxPercent = 100

	// DefaultInterval is the minimum spacing between move emissions
	DefaultInterval = 50 * time.Millisecond

	// DefaultBaseScale sizes the base circle relative to half the smaller side
	DefaultBaseScale = 0.9

	// DefaultHatScale sizes the rendered handle relative to half the smaller side
	DefaultHatScale = 0.3
)

// Phase of a pointer event
type Phase string

const (
	PhaseDown   Phase = "down"
	PhaseMove   Phase = "move"
	PhaseUp     Phase = "up"
	PhaseCancel Phase = "cancel"
)

// Released reports whether the phase ends the gesture
func (p Phase) Released() bool {
	return p == PhaseUp || p == PhaseCancel
}

// Valid reports whether p is one of the known phases
func (p Phase) Valid() bool {
	switch p {
	case PhaseDown, PhaseMove, PhaseUp, PhaseCancel:
		return true
	}
	return false
}

// Pointer is a raw event relative to the control's bounding box
type Pointer struct {
	X, Y  float64
	Phase Phase
}

// Event is what the surface emits: X right-positive, Y up-positive.
// Release events always carry (0, 0).
type Event struct {
	X, Y  int
	Phase Phase
}

// Released reports whether the event is the synthetic idle command
func (e Event) Released() bool {
	return e.Phase.Released()
}

// Listener receives emitted vectors
type Listener func(Event)

// State is the geometry needed to render the control
type State struct {
	CenterX   float64 `json:"center_x"`
	CenterY   float64 `json:"center_y"`
	Radius    float64 `json:"radius"`
	HatRadius float64 `json:"hat_radius"`
	HandleX   float64 `json:"handle_x"`
	HandleY   float64 `json:"handle_y"`
	Active    bool    `json:"active"`
}

// Options for a Surface
type Options struct {
	Interval  time.Duration
	BaseScale float64
	HatScale  float64
}

// Surface holds the stick state for one control. It is not safe for
// concurrent use; callers feed it from a single input goroutine.
type Surface struct {
	opts     Options
	state    State
	limiter  *throttle.Limiter
	listener Listener
	redraw   func(State)
}

// NewSurface creates a surface sized for a width x height control
func NewSurface(width, height float64, opts Options) *Surface {
	if opts.Interval < 0 {
		opts.Interval = 0
	}
	if opts.BaseScale <= 0 {
		opts.BaseScale = DefaultBaseScale
	}
	if opts.HatScale <= 0 {
		opts.HatScale = DefaultHatScale
	}

	s := &Surface{
		opts:    opts,
		limiter: throttle.New(opts.Interval),
	}
	s.Resize(width, height)
	return s
}

// WithClock replaces the time source used for rate limiting
func (s *Surface) WithClock(now func() time.Time) *Surface {
	s.limiter.WithClock(now)
	return s
}

// SetListener registers the vector consumer
func (s *Surface) SetListener(l Listener) {
	s.listener = l
}

// OnRedraw registers a callback invoked after every state change
func (s *Surface) OnRedraw(f func(State)) {
	s.redraw = f
}

// Resize recomputes the geometry and recenters the handle
func (s *Surface) Resize(width, height float64) {
	half := math.Min(width, height) / 2
	s.state.CenterX = width / 2
	s.state.CenterY = height / 2
	s.state.Radius = half * s.opts.BaseScale
	s.state.HatRadius = half * s.opts.HatScale
	s.reset()
	s.invalidate()
}

// Size returns the bounding box the surface was last sized for
func (s *Surface) Size() (width, height float64) {
	return s.state.CenterX * 2, s.state.CenterY * 2
}

// State returns a copy of the current geometry
func (s *Surface) State() State {
	return s.state
}

// Handle dispatches a pointer event by phase
func (s *Surface) Handle(p Pointer) {
	switch p.Phase {
	case PhaseDown:
		s.PointerDown(p.X, p.Y)
	case PhaseMove:
		s.PointerMove(p.X, p.Y)
	case PhaseUp:
		s.PointerUp()
	case PhaseCancel:
		s.PointerCancel()
	}
}

func (s *Surface) PointerDown(px, py float64) {
	s.track(px, py, PhaseDown)
}

func (s *Surface) PointerMove(px, py float64) {
	s.track(px, py, PhaseMove)
}

func (s *Surface) PointerUp() {
	s.release(PhaseUp)
}

func (s *Surface) PointerCancel() {
	s.release(PhaseCancel)
}

func (s *Surface) track(px, py float64, phase Phase) {
	s.state.HandleX, s.state.HandleY = ClampToDisk(s.state.CenterX, s.state.CenterY, s.state.Radius, px, py)
	s.state.Active = true

	// the handle follows every event, only emission is rate limited
	if s.limiter.Allow() {
		x, y := s.Percent()
		s.emit(Event{X: x, Y: y, Phase: phase})
	}
	s.invalidate()
}

func (s *Surface) release(phase Phase) {
	s.reset()
	s.limiter.Reset()
	s.emit(Event{Phase: phase})
	s.invalidate()
}

// Percent converts the current handle offset to [-100,100] per axis
func (s *Surface) Percent() (x, y int) {
	if s.state.Radius <= 0 {
		return 0, 0
	}
	rawX := s.state.HandleX - s.state.CenterX
	rawY := s.state.HandleY - s.state.CenterY
	x = toPercent(rawX / s.state.Radius)
	y = toPercent(-rawY / s.state.Radius)
	return x, y
}

func (s *Surface) reset() {
	s.state.HandleX = s.state.CenterX
	s.state.HandleY = s.state.CenterY
	s.state.Active = false
}

func (s *Surface) emit(e Event) {
	if s.listener != nil {
		s.listener(e)
	}
}

func (s *Surface) invalidate() {
	if s.redraw != nil {
		s.redraw(s.state)
	}
}

// ClampToDisk returns (px, py) unchanged when it lies inside the disk,
// otherwise the boundary point in the same direction from the center.
func ClampToDisk(cx, cy, radius, px, py float64) (float64, float64) {
	dx := px - cx
	dy := py - cy
	distance := math.Hypot(dx, dy)
	if distance <= radius {
		return px, py
	}
	ratio := radius / distance
	return cx + dx*ratio, cy + dy*ratio
}

func toPercent(f float64) int {
	v := int(math.Round(f * MaxPercent))
	if v > MaxPercent {
		return MaxPercent
	}
	if v < -MaxPercent {
		return -MaxPercent
	}
	return v
}
