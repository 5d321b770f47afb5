package drive

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMix(t *testing.T) {
	tests := []struct {
		name                      string
		throttle, steer, deadZone int
		left, right               int
	}{
		{"straight", 100, 0, 10, 100, 100},
		{"spin right", 0, 100, 10, 100, -100},
		{"clamp after add", 100, 100, 10, 100, 0},
		{"dead zone absorbs steer", 50, 5, 10, 50, 50},
		{"dead zone edge passes", 50, 10, 10, 60, 40},
		{"negative steer in dead zone", 50, -9, 10, 50, 50},
		{"reverse left turn", -100, -100, 0, -100, 0},
		{"idle", 0, 0, 15, 0, 0},
		{"partial throttle full turn", 40, 80, 0, 100, -40},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			left, right := Mix(tt.throttle, tt.steer, tt.deadZone)
			require.Equal(t, tt.left, left)
			require.Equal(t, tt.right, right)
		})
	}
}

func TestMixOutputRange(t *testing.T) {
	for throttle := -100; throttle <= 100; throttle += 5 {
		for steer := -100; steer <= 100; steer += 5 {
			left, right := Mix(throttle, steer, 0)
			require.True(t, left >= MinPower && left <= MaxPower)
			require.True(t, right >= MinPower && right <= MaxPower)
		}
	}
}

func TestMixIdempotentStop(t *testing.T) {
	m, err := NewMixer(DefaultConfig())
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.Equal(t, Stop, m.Command(0, 0))
	}
}

func TestMixerAxes(t *testing.T) {
	yThrottle, err := NewMixer(Config{Axes: AxisAssignment{Throttle: AxisY}})
	require.NoError(t, err)
	// stick pushed up drives forward
	require.Equal(t, Command{Left: 100, Right: 100}, yThrottle.Command(0, 100))
	// stick pushed right turns right
	require.Equal(t, Command{Left: 100, Right: -100}, yThrottle.Command(100, 0))

	xThrottle, err := NewMixer(Config{Axes: AxisAssignment{Throttle: AxisX}, DeadZone: 15})
	require.NoError(t, err)
	require.Equal(t, Command{Left: 100, Right: 100}, xThrottle.Command(100, 0))
	require.Equal(t, Command{Left: 60, Right: 60}, xThrottle.Command(60, 14))
	require.Equal(t, AxisY, xThrottle.Config().Axes.Steer())
}

func TestMixerConfigValidate(t *testing.T) {
	_, err := NewMixer(Config{Axes: AxisAssignment{Throttle: "z"}})
	require.Error(t, err)

	_, err = NewMixer(Config{Axes: AxisAssignment{Throttle: AxisX}, DeadZone: -1})
	require.Error(t, err)
}

func TestParseAxis(t *testing.T) {
	a, err := ParseAxis(" Y ")
	require.NoError(t, err)
	require.Equal(t, AxisY, a)

	_, err = ParseAxis("throttle")
	require.Error(t, err)
}
