package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"rover-remote/internal/drive"
	"rover-remote/internal/joystick"
	"rover-remote/internal/logging"
	"rover-remote/internal/transport"
)

// Config is the full application configuration
type Config struct {
	Listen   string         `yaml:"listen"`
	Log      logging.Config `yaml:"log"`
	Video    Video          `yaml:"video"`
	Serial   Serial         `yaml:"serial"`
	Joystick Joystick       `yaml:"joystick"`
}

type Video struct {
	// URL of the camera stream; can also be set from the UI at runtime
	URL        string   `yaml:"url"`
	ICEServers []string `yaml:"ice_servers"`
}

type Serial struct {
	Driver       string        `yaml:"driver"`
	Port         string        `yaml:"port"`
	VIDs         []string      `yaml:"vids"`
	Baud         int           `yaml:"baud"`
	Framing      string        `yaml:"framing"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	MinInterval  time.Duration `yaml:"min_interval"`
	// Confirm asks a connected browser to grant access before opening
	Confirm        bool          `yaml:"confirm"`
	ConfirmTimeout time.Duration `yaml:"confirm_timeout"`
	AutoConnect    bool          `yaml:"autoconnect"`
	WatchInterval  time.Duration `yaml:"watch_interval"`
}

type Joystick struct {
	Interval     time.Duration `yaml:"interval"`
	ThrottleAxis string        `yaml:"throttle_axis"`
	DeadZone     int           `yaml:"dead_zone"`
	BaseScale    float64       `yaml:"base_scale"`
}

// Default returns the configuration used when nothing is set
func Default() Config {
	return Config{
		Listen: ":8080",
		Log:    logging.DefaultConfig(),
		Video: Video{
			ICEServers: []string{"stun:stun.l.google.com:19302"},
		},
		Serial: Serial{
			Driver:        "bugst",
			Baud:          transport.DefaultMode.BaudRate,
			Framing:       string(drive.FramingCombined),
			WriteTimeout:  transport.DefaultWriteTimeout,
			AutoConnect:   true,
			WatchInterval: transport.DefaultWatchInterval,
		},
		Joystick: Joystick{
			Interval:     joystick.DefaultInterval,
			ThrottleAxis: string(drive.AxisY),
			BaseScale:    joystick.DefaultBaseScale,
		},
	}
}

// Load applies every source on top of the defaults. A source is a file path
// or raw YAML starting with '{'. Missing files are skipped.
func Load(sources ...string) (Config, error) {
	cfg := Default()
	for _, src := range sources {
		data, err := read(src)
		if err != nil {
			return cfg, err
		}
		if data == nil {
			continue
		}
		data = []byte(os.ExpandEnv(string(data)))
		if err = yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config %s: %w", src, err)
		}
	}
	return cfg, cfg.Validate()
}

func read(src string) ([]byte, error) {
	if strings.HasPrefix(strings.TrimSpace(src), "{") {
		return []byte(src), nil
	}
	data, err := os.ReadFile(src)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", src, err)
	}
	return data, nil
}

func (c Config) Validate() error {
	if _, err := c.Mixer(); err != nil {
		return err
	}
	if _, err := drive.ParseFraming(c.Serial.Framing); err != nil {
		return err
	}
	if _, err := transport.NewDriver(c.Serial.Driver); err != nil {
		return err
	}
	if c.Serial.Baud <= 0 {
		return fmt.Errorf("serial baud must be positive, got %d", c.Serial.Baud)
	}
	if c.Serial.WriteTimeout <= 0 {
		return fmt.Errorf("serial write_timeout must be positive, got %s", c.Serial.WriteTimeout)
	}
	if c.Joystick.Interval < 0 {
		return fmt.Errorf("joystick interval must be >= 0, got %s", c.Joystick.Interval)
	}
	return nil
}

// Mixer builds the drive mixer settings
func (c Config) Mixer() (drive.Config, error) {
	axis, err := drive.ParseAxis(c.Joystick.ThrottleAxis)
	if err != nil {
		return drive.Config{}, err
	}
	cfg := drive.Config{Axes: drive.AxisAssignment{Throttle: axis}, DeadZone: c.Joystick.DeadZone}
	return cfg, cfg.Validate()
}

// Transport builds the serial transport settings
func (c Config) Transport() transport.Config {
	framing, _ := drive.ParseFraming(c.Serial.Framing)
	mode := transport.DefaultMode
	mode.BaudRate = c.Serial.Baud
	return transport.Config{
		Port:         c.Serial.Port,
		VIDs:         c.Serial.VIDs,
		Mode:         mode,
		Framing:      framing,
		WriteTimeout: c.Serial.WriteTimeout,
		MinInterval:  c.Serial.MinInterval,
	}
}

// Surface builds the joystick surface options
func (c Config) Surface() joystick.Options {
	return joystick.Options{
		Interval:  c.Joystick.Interval,
		BaseScale: c.Joystick.BaseScale,
	}
}

// Sources collects repeatable -config flags
type Sources []string

func (s *Sources) String() string {
	return strings.Join(*s, " ")
}

func (s *Sources) Set(value string) error {
	*s = append(*s, value)
	return nil
}
