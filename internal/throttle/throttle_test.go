package throttle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestLimiterBurst(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1000, 0)}
	l := New(50 * time.Millisecond).WithClock(clk.now)

	require.True(t, l.Allow(), "first event always passes")

	allowed := 0
	for i := 0; i < 10; i++ {
		clk.advance(4 * time.Millisecond)
		if l.Allow() {
			allowed++
		}
	}
	require.Zero(t, allowed)

	clk.advance(10 * time.Millisecond) // 50ms since the first event
	require.True(t, l.Allow())
	require.False(t, l.Allow())
}

func TestLimiterRemainingAndReset(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1000, 0)}
	l := New(50 * time.Millisecond).WithClock(clk.now)

	require.Zero(t, l.Remaining())
	require.True(t, l.Allow())

	clk.advance(20 * time.Millisecond)
	require.Equal(t, 30*time.Millisecond, l.Remaining())

	l.Reset()
	require.Zero(t, l.Remaining())
	require.True(t, l.Allow())

	clk.advance(time.Millisecond)
	l.Mark()
	require.Equal(t, 50*time.Millisecond, l.Remaining())
}

func TestLimiterZeroInterval(t *testing.T) {
	l := New(0)
	for i := 0; i < 5; i++ {
		require.True(t, l.Allow())
	}
}
