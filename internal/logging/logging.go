package logging

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// Config for the root logger:
// - output: stderr, stdout, empty (discard)
// - format: empty (autodetect color), color, text, json
// - level:  trace, debug, info, warn, error, disabled
// - time:   empty (no timestamp) or a zerolog time format such as UNIXMS
// Modules maps a module name to its own level.
type Config struct {
	Output  string            `yaml:"output"`
	Format  string            `yaml:"format"`
	Level   string            `yaml:"level"`
	Time    string            `yaml:"time"`
	Modules map[string]string `yaml:"modules"`
}

func DefaultConfig() Config {
	return Config{
		Output: "stderr",
		Level:  "info",
		Time:   zerolog.TimeFormatUnixMs,
	}
}

// New builds the root logger
func New(cfg Config) zerolog.Logger {
	var writer io.Writer

	switch cfg.Output {
	case "stderr":
		writer = os.Stderr
	case "stdout":
		writer = os.Stdout
	default:
		return zerolog.Nop()
	}

	if cfg.Format != "json" {
		console := &zerolog.ConsoleWriter{Out: writer}

		switch cfg.Format {
		case "text":
			console.NoColor = true
		case "color":
			console.NoColor = false
		default:
			console.NoColor = !isatty.IsTerminal(writer.(*os.File).Fd())
		}

		if cfg.Time != "" {
			console.TimeFormat = "15:04:05.000"
		} else {
			console.PartsOrder = []string{
				zerolog.LevelFieldName,
				zerolog.CallerFieldName,
				zerolog.MessageFieldName,
			}
		}

		writer = console
	}

	lvl, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		lvl = zerolog.InfoLevel
	}
	logger := zerolog.New(writer).Level(lvl)

	if cfg.Time != "" {
		zerolog.TimeFieldFormat = cfg.Time
		logger = logger.With().Timestamp().Logger()
	}
	return logger
}

// Module returns a child logger, honouring a per-module level override
func Module(root zerolog.Logger, cfg Config, name string) zerolog.Logger {
	logger := root.With().Str("module", name).Logger()
	if s, ok := cfg.Modules[name]; ok {
		lvl, err := zerolog.ParseLevel(s)
		if err == nil {
			return logger.Level(lvl)
		}
		root.Warn().Err(err).Str("module", name).Msg("[log] bad level")
	}
	return logger
}
