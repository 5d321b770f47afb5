package throttle

import (
	"sync"
	"time"
)

// Limiter admits at most one event per interval. Events inside the
// cooldown are rejected, not delayed.
type Limiter struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
	now      func() time.Time
}

// New creates a limiter. A zero or negative interval admits every event.
func New(interval time.Duration) *Limiter {
	return &Limiter{interval: interval, now: time.Now}
}

// WithClock replaces the time source, mainly for tests
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.mu.Lock()
	l.now = now
	l.mu.Unlock()
	return l
}

// Interval returns the configured minimum spacing
func (l *Limiter) Interval() time.Duration {
	return l.interval
}

// Allow reports whether an event may pass now and, if so, records it
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if !l.last.IsZero() && now.Sub(l.last) < l.interval {
		return false
	}
	l.last = now
	return true
}

// Remaining returns how long until the next event would be admitted
func (l *Limiter) Remaining() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.last.IsZero() {
		return 0
	}
	if d := l.interval - l.now().Sub(l.last); d > 0 {
		return d
	}
	return 0
}

// Mark records an event that bypassed Allow, e.g. a stop command
func (l *Limiter) Mark() {
	l.mu.Lock()
	l.last = l.now()
	l.mu.Unlock()
}

// Reset forgets the last event so the next one passes immediately
func (l *Limiter) Reset() {
	l.mu.Lock()
	l.last = time.Time{}
	l.mu.Unlock()
}
