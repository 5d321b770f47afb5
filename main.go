package main

import (
	"embed"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"rover-remote/internal/config"
	"rover-remote/internal/controller"
	"rover-remote/internal/drive"
	"rover-remote/internal/logging"
	"rover-remote/internal/server"
	"rover-remote/internal/transport"
)

//go:embed web/*
var staticFiles embed.FS

func main() {
	var sources config.Sources
	flag.Var(&sources, "config", "Config file path or inline YAML, repeatable")
	listenAddr := flag.String("listen", "", "HTTP listen address (overrides config)")
	rtspURL := flag.String("rtsp", "", "RTSP URL for the rover camera (overrides config)")
	serialPort := flag.String("port", "", "Serial device, empty picks the first USB adapter (overrides config)")
	flag.Parse()

	if len(sources) == 0 {
		sources = config.Sources{"rover.yaml"}
	}

	cfg, err := config.Load(sources...)
	if err != nil {
		// logging is not configured yet
		bootLog := logging.New(logging.DefaultConfig())
		bootLog.Fatal().Err(err).Msg("[config] load")
	}
	if *listenAddr != "" {
		cfg.Listen = *listenAddr
	}
	if *rtspURL != "" {
		cfg.Video.URL = *rtspURL
	}
	if *serialPort != "" {
		cfg.Serial.Port = *serialPort
	}

	log := logging.New(cfg.Log)
	module := func(name string) zerolog.Logger {
		return logging.Module(log, cfg.Log, name)
	}

	driver, err := transport.NewDriver(cfg.Serial.Driver)
	if err != nil {
		log.Fatal().Err(err).Msg("[serial] driver")
	}
	serial := transport.New(cfg.Transport(), driver, module("serial"))

	mixerCfg, err := cfg.Mixer()
	if err != nil {
		log.Fatal().Err(err).Msg("[config] mixer")
	}
	mixer, err := drive.NewMixer(mixerCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("[config] mixer")
	}
	ctrl := controller.New(mixer, cfg.Surface(), serial, module("control"))

	srv, err := server.New(server.Config{
		Listen:         cfg.Listen,
		VideoURL:       cfg.Video.URL,
		ICEServers:     cfg.Video.ICEServers,
		Confirm:        cfg.Serial.Confirm,
		ConfirmTimeout: cfg.Serial.ConfirmTimeout,
		AutoConnect:    cfg.Serial.AutoConnect,
		WatchInterval:  cfg.Serial.WatchInterval,
	}, staticFiles, server.Deps{
		Controller: ctrl,
		Serial:     serial,
		Log:        module("server"),
		VideoLog:   module("rtsp"),
		WebRTCLog:  module("webrtc"),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("[server] create")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Info().Msg("[app] shutting down")
		srv.Stop()
	}()

	log.Info().
		Str("listen", cfg.Listen).
		Str("rtsp", cfg.Video.URL).
		Str("port", cfg.Serial.Port).
		Str("driver", cfg.Serial.Driver).
		Str("framing", cfg.Serial.Framing).
		Str("throttle_axis", cfg.Joystick.ThrottleAxis).
		Msg("[app] rover remote")

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("[server] serve")
	}
}
