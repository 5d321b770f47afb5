// Package transport owns the serial link to the motor controller. It keeps
// at most one port open, writes from a single goroutine and never queues
// more than the latest command.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"rover-remote/internal/drive"
	"rover-remote/internal/throttle"
)

const (
	DefaultWriteTimeout  = 100 * time.Millisecond
	DefaultWatchInterval = time.Second
)

// Config for a Transport
type Config struct {
	// Port pins a device name, e.g. /dev/ttyUSB0. Empty picks the first USB adapter.
	Port string
	// VIDs limits auto-selection to these USB vendor IDs (hex, case-insensitive)
	VIDs []string
	Mode Mode

	Framing      drive.Framing
	WriteTimeout time.Duration
	// MinInterval spaces consecutive writes; stop commands are never delayed
	MinInterval time.Duration
}

// Transport is the sole writer to the serial channel
type Transport struct {
	cfg    Config
	driver Driver
	auth   Authorizer
	log    zerolog.Logger

	connectMu sync.Mutex

	mu        sync.Mutex
	status    Status
	sess      *session
	observers []Observer

	// held blocks automatic retries after a not-found or open failure
	// until the enumerated device set differs from heldOn
	held   bool
	heldOn string
}

// New creates a disconnected transport
func New(cfg Config, driver Driver, log zerolog.Logger) *Transport {
	if cfg.Mode.BaudRate <= 0 {
		cfg.Mode.BaudRate = DefaultMode.BaudRate
	}
	if cfg.Mode.DataBits <= 0 {
		cfg.Mode.DataBits = DefaultMode.DataBits
	}
	if cfg.Mode.StopBits <= 0 {
		cfg.Mode.StopBits = DefaultMode.StopBits
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Framing == "" {
		cfg.Framing = drive.FramingCombined
	}

	return &Transport{
		cfg:    cfg,
		driver: driver,
		log:    log,
		status: StatusDisconnected,
	}
}

// SetAuthorizer installs the permission collaborator consulted before open
func (t *Transport) SetAuthorizer(a Authorizer) {
	t.mu.Lock()
	t.auth = a
	t.mu.Unlock()
}

// Subscribe registers a status observer
func (t *Transport) Subscribe(o Observer) {
	t.mu.Lock()
	t.observers = append(t.observers, o)
	t.mu.Unlock()
}

// Status returns the last reported status
func (t *Transport) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Connected reports whether a port is open
func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sess != nil
}

// Device returns the open device, if any
func (t *Transport) Device() (Device, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sess == nil {
		return Device{}, false
	}
	return t.sess.dev, true
}

// Connect runs one acquisition cycle: find, authorize, open. It is a no-op
// when already connected.
func (t *Transport) Connect(ctx context.Context) error {
	t.connectMu.Lock()
	defer t.connectMu.Unlock()

	if t.Connected() {
		return nil
	}

	devices, listErr := t.driver.Devices()
	dev, err := t.find(devices, listErr)
	if err != nil {
		t.hold(devices)
		t.report(statusFor(err), "", err)
		return err
	}

	t.mu.Lock()
	t.held = false
	auth := t.auth
	t.mu.Unlock()

	if auth != nil {
		t.report(StatusPermissionPending, dev.Name, nil)
		if err = auth.Authorize(ctx, dev); err != nil {
			// unanswered: stay pending, a later cycle asks again
			if errors.Is(err, ErrPermissionPending) {
				return err
			}
			if !errors.Is(err, ErrPermissionDenied) {
				err = fmt.Errorf("%w: %v", ErrPermissionDenied, err)
			}
			t.report(StatusPermissionDenied, dev.Name, err)
			return err
		}
	}

	port, err := t.driver.Open(dev, t.cfg.Mode)
	if err != nil {
		if !errors.Is(err, ErrDeviceNotFound) && !errors.Is(err, ErrPermissionDenied) && !errors.Is(err, ErrOpenFailure) {
			err = fmt.Errorf("%w: %s: %v", ErrOpenFailure, dev.Name, err)
		}
		if !errors.Is(err, ErrPermissionDenied) {
			t.hold(devices)
		}
		t.report(statusFor(err), dev.Name, err)
		return err
	}

	s := newSession(dev, port, t.cfg.MinInterval)

	t.mu.Lock()
	t.sess = s
	t.mu.Unlock()

	go t.run(s)

	t.log.Info().Str("port", dev.Name).Int("baud", t.cfg.Mode.BaudRate).Msg("[serial] connected")
	t.report(StatusConnected, dev.Name, nil)
	return nil
}

// Send offers a command to the writer. Any unsent command is replaced.
// With no open channel it returns ErrChannelClosed and does nothing else.
func (t *Transport) Send(cmd drive.Command) error {
	s := t.session()
	if s == nil {
		return ErrChannelClosed
	}
	s.offer(cmd, false)
	return nil
}

// Release queues the stop command. It skips the write spacing, discards
// any unsent move and is written after whatever is already in flight.
func (t *Transport) Release() error {
	s := t.session()
	if s == nil {
		return ErrChannelClosed
	}
	s.offer(drive.Stop, true)
	return nil
}

// Close tears the session down and waits for the writer to exit. A queued
// release is written first, waiting at most for the write in flight plus
// the release itself; after that the port is closed under any write.
func (t *Transport) Close() error {
	s := t.session()
	if s == nil {
		return nil
	}
	s.flush(2 * t.cfg.WriteTimeout)
	err := t.drop(s, StatusDisconnected, nil)
	<-s.done
	return err
}

// Watch polls device presence until ctx is done. A vanished device ends the
// session as lost; with autoconnect, a missing session is re-acquired. A
// denial needs an explicit Connect, and a not-found or open failure is only
// retried once the set of enumerated devices changes.
func (t *Transport) Watch(ctx context.Context, interval time.Duration, autoconnect bool) {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if s := t.session(); s != nil {
			if s.dev.USB && !t.present(s.dev) {
				_ = t.drop(s, StatusLost, fmt.Errorf("%w: %s", ErrDeviceLost, s.dev.Name))
			}
			continue
		}

		if autoconnect && t.retryable() {
			if err := t.Connect(ctx); err != nil {
				t.log.Debug().Err(err).Msg("[serial] reconnect")
			}
		}
	}
}

func (t *Transport) session() *session {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sess
}

func (t *Transport) find(devices []Device, err error) (Device, error) {
	if t.cfg.Port != "" {
		for _, d := range devices {
			if d.Name == t.cfg.Port {
				return d, nil
			}
		}
		// virtual and on-board ports are often not enumerated
		return Device{Name: t.cfg.Port}, nil
	}
	if err != nil {
		return Device{}, fmt.Errorf("%w: %v", ErrDeviceNotFound, err)
	}

	for _, d := range devices {
		if !d.USB {
			continue
		}
		if len(t.cfg.VIDs) > 0 && !containsFold(t.cfg.VIDs, d.VID) {
			continue
		}
		return d, nil
	}
	return Device{}, ErrDeviceNotFound
}

func (t *Transport) hold(devices []Device) {
	t.mu.Lock()
	t.held = true
	t.heldOn = fingerprint(devices)
	t.mu.Unlock()
}

// retryable reports whether Watch may start an acquisition on its own
func (t *Transport) retryable() bool {
	t.mu.Lock()
	status, held, heldOn := t.status, t.held, t.heldOn
	t.mu.Unlock()

	if status == StatusPermissionDenied {
		return false
	}
	if !held {
		return true
	}
	devices, err := t.driver.Devices()
	if err != nil {
		return false
	}
	return fingerprint(devices) != heldOn
}

func fingerprint(devices []Device) string {
	names := make([]string, 0, len(devices))
	for _, d := range devices {
		names = append(names, d.Name)
	}
	sort.Strings(names)
	return strings.Join(names, "\n")
}

func (t *Transport) present(dev Device) bool {
	devices, err := t.driver.Devices()
	if err != nil {
		// enumeration hiccups are not proof of removal
		return true
	}
	for _, d := range devices {
		if d.Name == dev.Name {
			return true
		}
	}
	return false
}

// drop detaches s if it is still current, closes its port and reports status
func (t *Transport) drop(s *session, status Status, cause error) error {
	t.mu.Lock()
	if t.sess != s {
		t.mu.Unlock()
		return nil
	}
	t.sess = nil
	t.mu.Unlock()

	s.stopOnce.Do(func() { close(s.stop) })
	err := s.port.Close()

	if cause != nil {
		t.log.Warn().Err(cause).Str("port", s.dev.Name).Msg("[serial] session ended")
	} else {
		t.log.Info().Str("port", s.dev.Name).Msg("[serial] closed")
	}
	t.report(status, s.dev.Name, cause)
	return err
}

func (t *Transport) report(status Status, device string, err error) {
	t.mu.Lock()
	changed := t.status != status
	t.status = status
	observers := append([]Observer(nil), t.observers...)
	t.mu.Unlock()

	// repeated failures stay visible, repeated idle states do not
	if !changed && err == nil {
		return
	}
	if !changed && status != StatusError {
		return
	}

	ev := Event{Status: status, Device: device, Err: err}
	for _, o := range observers {
		o(ev)
	}
}

// run is the single writer for s
func (t *Transport) run(s *session) {
	defer close(s.done)

	// a write timed out and no write has succeeded since
	degraded := false
	recovered := func() {
		if degraded {
			degraded = false
			t.report(StatusConnected, s.dev.Name, nil)
		}
	}

	for {
		select {
		case <-s.stop:
			return
		case <-s.wake:
		case err := <-s.stuck:
			// nil channel unless a timed out write is still running
			s.stuck = nil
			if err != nil {
				_ = t.drop(s, StatusLost, fmt.Errorf("%w: %v", ErrWriteFailure, err))
				return
			}
			recovered()
			continue
		}

		for {
			cmd, release, ok := s.peek()
			if !ok {
				break
			}

			if err := s.unstick(t.cfg.WriteTimeout); err != nil {
				if !errors.Is(err, ErrChannelClosed) {
					_ = t.drop(s, StatusLost, err)
				}
				return
			}

			if !release {
				if d := s.limiter.Remaining(); d > 0 {
					if !s.sleep(d) {
						return
					}
					continue // a newer command or a release may have arrived
				}
			}
			s.take(release)

			err := s.write(t.cfg.Framing.Encode(cmd), t.cfg.WriteTimeout)
			s.limiter.Mark()
			if release {
				s.released()
			}

			switch {
			case err == nil:
				recovered()
			case errors.Is(err, ErrChannelClosed):
				return
			case errors.Is(err, ErrWriteTimeout):
				degraded = true
				t.log.Debug().Stringer("cmd", cmd).Msg("[serial] write timeout")
				t.report(StatusError, s.dev.Name, err)
			default:
				_ = t.drop(s, StatusLost, fmt.Errorf("%w: %v", ErrWriteFailure, err))
				return
			}
		}
	}
}

// session is one open port plus its depth-1 command slot
type session struct {
	dev  Device
	port Port

	mu      sync.Mutex
	cmd     *drive.Command
	release bool
	// releasing stays set until a queued release has been written
	releasing bool
	flushed   chan struct{}

	limiter  *throttle.Limiter
	wake     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	// unfinished write that timed out, owned by the writer goroutine
	stuck chan error
}

func newSession(dev Device, port Port, minInterval time.Duration) *session {
	return &session{
		dev:     dev,
		port:    port,
		limiter: throttle.New(minInterval),
		wake:    make(chan struct{}, 1),
		flushed: make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (s *session) offer(cmd drive.Command, release bool) {
	s.mu.Lock()
	if release {
		s.release = true
		s.releasing = true
		s.cmd = nil
	} else {
		s.cmd = &cmd
	}
	s.mu.Unlock()

	// if the writer is busy it will see the slot on its next pass
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// peek returns the next job without removing it; a pending release goes first
func (s *session) peek() (drive.Command, bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.release {
		return drive.Stop, true, true
	}
	if s.cmd != nil {
		return *s.cmd, false, true
	}
	return drive.Command{}, false, false
}

func (s *session) take(release bool) {
	s.mu.Lock()
	if release {
		s.release = false
	} else {
		s.cmd = nil
	}
	s.mu.Unlock()
}

// released marks the end of a release write, whatever its outcome
func (s *session) released() {
	s.mu.Lock()
	s.releasing = s.release
	s.mu.Unlock()

	select {
	case s.flushed <- struct{}{}:
	default:
	}
}

func (s *session) pendingRelease() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releasing
}

// flush waits until no release is queued or in flight, the writer exits or
// timeout passes
func (s *session) flush(timeout time.Duration) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for s.pendingRelease() {
		select {
		case <-s.flushed:
		case <-s.done:
			return
		case <-timer.C:
			return
		}
	}
}

// unstick waits for a write that timed out earlier. Writes never overlap,
// so a write still stuck after timeout, or one that failed late, ends the
// session.
func (s *session) unstick(timeout time.Duration) error {
	if s.stuck == nil {
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-s.stuck:
		s.stuck = nil
		if err != nil {
			return fmt.Errorf("%w: %v", ErrWriteFailure, err)
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: write stalled", ErrWriteFailure)
	case <-s.stop:
		return ErrChannelClosed
	}
}

// sleep waits for d, returning early on a new offer. It reports false on stop.
func (s *session) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-s.stop:
		return false
	case <-s.wake:
	case <-timer.C:
	}
	return true
}

// write performs one bounded write. On timeout the write keeps running and
// is tracked in s.stuck; callers unstick before the next write.
func (s *session) write(b []byte, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() {
		_, err := s.port.Write(b)
		done <- err
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		s.stuck = done
		return ErrWriteTimeout
	case <-s.stop:
		return ErrChannelClosed
	}
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
