package controller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"rover-remote/internal/drive"
	"rover-remote/internal/joystick"
	"rover-remote/internal/transport"
)

type call struct {
	cmd     drive.Command
	release bool
}

type fakeSender struct {
	mu    sync.Mutex
	calls []call
	err   error
}

func (s *fakeSender) Send(cmd drive.Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call{cmd: cmd})
	return s.err
}

func (s *fakeSender) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call{cmd: drive.Stop, release: true})
	return s.err
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestController(t *testing.T, cfg drive.Config, sender Sender) (*Controller, *clock) {
	t.Helper()
	mixer, err := drive.NewMixer(cfg)
	require.NoError(t, err)

	clk := &clock{t: time.Unix(1700000000, 0)}
	c := New(mixer, joystick.Options{Interval: joystick.DefaultInterval}, sender, zerolog.Nop())
	c.Surface().WithClock(clk.now)
	return c, clk
}

func TestDragToEdgeDrivesStraight(t *testing.T) {
	sender := &fakeSender{}
	c, clk := newTestController(t, drive.Config{Axes: drive.AxisAssignment{Throttle: drive.AxisX}, DeadZone: 15}, sender)

	// 200x200 control: center (100,100), radius 90
	st := c.Pointer(joystick.Pointer{X: 100, Y: 100, Phase: joystick.PhaseDown}, 200, 200)
	require.Equal(t, 90.0, st.Radius)
	require.Equal(t, []call{{cmd: drive.Stop}}, sender.calls)

	sender.calls = nil
	c.Surface().Handle(joystick.Pointer{}) // unknown phase is ignored
	require.Empty(t, sender.calls)

	clk.t = clk.t.Add(joystick.DefaultInterval)
	c.Pointer(joystick.Pointer{X: 100 + st.Radius, Y: 100, Phase: joystick.PhaseDown}, 200, 200)
	require.Equal(t, []call{{cmd: drive.Command{Left: 100, Right: 100}}}, sender.calls)
	require.Equal(t, drive.Command{Left: 100, Right: 100}, c.Last())
}

func TestReleaseBypassesRateLimit(t *testing.T) {
	sender := &fakeSender{}
	c, clk := newTestController(t, drive.DefaultConfig(), sender)

	c.Pointer(joystick.Pointer{X: 100, Y: 10, Phase: joystick.PhaseDown}, 200, 200)
	clk.t = clk.t.Add(time.Millisecond)
	c.Pointer(joystick.Pointer{X: 190, Y: 100, Phase: joystick.PhaseMove}, 200, 200) // dropped
	c.Pointer(joystick.Pointer{Phase: joystick.PhaseUp}, 200, 200)

	require.Equal(t, []call{
		{cmd: drive.Command{Left: 100, Right: 100}},
		{cmd: drive.Stop, release: true},
	}, sender.calls)
	require.True(t, c.Last().IsStop())
}

func TestStopAndDirect(t *testing.T) {
	sender := &fakeSender{err: transport.ErrChannelClosed}
	c, _ := newTestController(t, drive.DefaultConfig(), sender)

	var seen []drive.Command
	c.OnCommand(func(cmd drive.Command) { seen = append(seen, cmd) })

	c.Direct(150, -30)
	c.Stop()

	require.Equal(t, []call{
		{cmd: drive.Command{Left: 100, Right: -30}},
		{cmd: drive.Stop, release: true},
	}, sender.calls)
	require.Equal(t, []drive.Command{{Left: 100, Right: -30}, drive.Stop}, seen)
}

func TestResizeFollowsClientGeometry(t *testing.T) {
	c, _ := newTestController(t, drive.DefaultConfig(), &fakeSender{})

	st := c.Pointer(joystick.Pointer{X: 50, Y: 50, Phase: joystick.PhaseMove}, 100, 100)
	require.Equal(t, 50.0, st.CenterX)

	st = c.Pointer(joystick.Pointer{X: 50, Y: 50, Phase: joystick.PhaseMove}, 300, 100)
	require.Equal(t, 150.0, st.CenterX)
	require.Equal(t, 45.0, st.Radius)
}

// end to end through a real transport and an in-memory port

type memPort struct {
	lines chan string
}

func (p *memPort) Write(b []byte) (int, error) {
	p.lines <- string(b)
	return len(b), nil
}

func (p *memPort) Close() error { return nil }

type memDriver struct{ port *memPort }

func (d memDriver) Devices() ([]transport.Device, error) {
	return []transport.Device{{Name: "/dev/ttyUSB0", USB: true}}, nil
}

func (d memDriver) Open(transport.Device, transport.Mode) (transport.Port, error) {
	return d.port, nil
}

func TestEndToEnd(t *testing.T) {
	port := &memPort{lines: make(chan string, 16)}
	tr := transport.New(transport.Config{}, memDriver{port: port}, zerolog.Nop())
	require.NoError(t, tr.Connect(context.Background()))
	t.Cleanup(func() { _ = tr.Close() })

	c, _ := newTestController(t, drive.DefaultConfig(), tr)

	next := func() string {
		select {
		case l := <-port.lines:
			return l
		case <-time.After(time.Second):
			t.Fatal("no write")
			return ""
		}
	}

	// stick pushed fully up: forward
	c.Pointer(joystick.Pointer{X: 100, Y: 10, Phase: joystick.PhaseDown}, 200, 200)
	require.Equal(t, "S:100:100\n", next())

	c.Pointer(joystick.Pointer{Phase: joystick.PhaseCancel}, 200, 200)
	require.Equal(t, "S:0:0\n", next())
}
