package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"rover-remote/internal/drive"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.Listen)
	require.Equal(t, 115200, cfg.Serial.Baud)
	require.Equal(t, 100*time.Millisecond, cfg.Serial.WriteTimeout)
	require.Equal(t, 50*time.Millisecond, cfg.Joystick.Interval)

	mix, err := cfg.Mixer()
	require.NoError(t, err)
	require.Equal(t, drive.AxisY, mix.Axes.Throttle)

	tc := cfg.Transport()
	require.Equal(t, drive.FramingCombined, tc.Framing)
	require.Equal(t, 8, tc.Mode.DataBits)
	require.Equal(t, 1, tc.Mode.StopBits)
}

func TestLoadFileAndInline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rover.yaml")
	err := os.WriteFile(path, []byte(`
listen: ":9000"
serial:
  port: /dev/ttyACM0
  write_timeout: 250ms
  framing: split
  vids: ["10c4", "1a86"]
joystick:
  throttle_axis: x
  dead_zone: 15
log:
  level: debug
  modules:
    serial: trace
`), 0644)
	require.NoError(t, err)

	cfg, err := Load(path, `{video: {url: "rtsp://cam/live"}, serial: {baud: 57600}}`)
	require.NoError(t, err)

	require.Equal(t, ":9000", cfg.Listen)
	require.Equal(t, "rtsp://cam/live", cfg.Video.URL)
	require.Equal(t, 57600, cfg.Serial.Baud)
	require.Equal(t, 250*time.Millisecond, cfg.Serial.WriteTimeout)
	require.Equal(t, []string{"10c4", "1a86"}, cfg.Serial.VIDs)
	require.Equal(t, "trace", cfg.Log.Modules["serial"])

	mix, err := cfg.Mixer()
	require.NoError(t, err)
	require.Equal(t, drive.Config{Axes: drive.AxisAssignment{Throttle: drive.AxisX}, DeadZone: 15}, mix)

	tc := cfg.Transport()
	require.Equal(t, "/dev/ttyACM0", tc.Port)
	require.Equal(t, drive.FramingSplit, tc.Framing)
	require.Equal(t, 57600, tc.Mode.BaudRate)
}

func TestMissingFileIsSkipped(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, Default().Listen, cfg.Listen)
}

func TestValidate(t *testing.T) {
	for _, src := range []string{
		`{joystick: {throttle_axis: z}}`,
		`{joystick: {dead_zone: -3}}`,
		`{serial: {framing: binary}}`,
		`{serial: {driver: ftdi}}`,
		`{serial: {baud: 0}}`,
		`{serial: {write_timeout: 0s}}`,
	} {
		_, err := Load(src)
		require.Error(t, err, src)
	}
}

func TestSources(t *testing.T) {
	var s Sources
	require.NoError(t, s.Set("a.yaml"))
	require.NoError(t, s.Set("{listen: ':1'}"))
	require.Equal(t, "a.yaml {listen: ':1'}", s.String())
}
