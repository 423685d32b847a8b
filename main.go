// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ffutop/bpnmea/buspirate"
	"github.com/ffutop/bpnmea/internal/bridge"
	"github.com/ffutop/bpnmea/internal/config"
	"github.com/ffutop/bpnmea/internal/plot"
	"github.com/ffutop/bpnmea/internal/session"
	"github.com/ffutop/bpnmea/internal/sink"
	"github.com/ffutop/bpnmea/transport"
	"github.com/ffutop/bpnmea/transport/capture"
	"github.com/ffutop/bpnmea/transport/serial"
	"github.com/ffutop/bpnmea/transport/tcp"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := newFlagSet("bpnmea")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 2
	}

	// Load Configuration
	configFile, _ := fs.GetString("config")
	cfg, err := config.LoadConfig(configFile, fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 1
	}

	closeLog := setupLogger(cfg.Log)
	defer closeLog()

	slog.Info("Starting bpnmea...", "device", cfg.Device.Type)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := newSession(cfg)
	if err != nil {
		slog.Error("Failed to set up session", "err", err)
		return 1
	}

	if err := s.Run(ctx); err != nil {
		slog.Error("Session stopped with error", "err", err)
		return 1
	}
	slog.Info("Goodbye.")
	return 0
}

// newSession builds the port, the sinks and the visualizers described by cfg.
func newSession(cfg *config.Config) (*session.Session, error) {
	setup, err := buspirate.Setup(cfg.Bridge.UARTSettings())
	if err != nil {
		return nil, err
	}
	bridgeCfg := bridge.Config{
		SyncBytes:       cfg.Bridge.SyncBytes,
		ResponseTimeout: cfg.Bridge.ResponseTimeout,
		Setup:           setup,
	}

	port, err := newPort(cfg.Device)
	if err != nil {
		return nil, err
	}

	vis, err := newVisualizer(cfg)
	if err != nil {
		return nil, err
	}

	fixlog, err := sink.OpenFileLog(cfg.FixLog.Path)
	if err != nil {
		vis.Close()
		return nil, err
	}

	return session.New(cfg.Device.Type, port, bridgeCfg, sink.NewConsole(os.Stdout), fixlog, vis), nil
}

func newPort(cfg config.DeviceConfig) (transport.Port, error) {
	switch cfg.Type {
	case "serial":
		return serial.New(cfg.Serial), nil
	case "tcp":
		return tcp.NewClient(cfg.Tcp), nil
	case "capture":
		return capture.New(cfg.Capture), nil
	default:
		return nil, fmt.Errorf("unknown device type %q", cfg.Type)
	}
}

// newVisualizer assembles the enabled visualizers. A broker that cannot be
// reached disables MQTT publishing but does not stop the session.
func newVisualizer(cfg *config.Config) (plot.Fanout, error) {
	var fan plot.Fanout

	var m *plot.Map
	if cfg.Map.Output != "" || cfg.Live.Address != "" {
		var err error
		m, err = plot.NewMap(cfg.Map)
		if err != nil {
			return nil, err
		}
		fan = append(fan, m)
	}

	if cfg.Live.Address != "" {
		live := plot.NewLive(cfg.Live.Address, m)
		if err := live.Start(); err != nil {
			return nil, fmt.Errorf("failed to start live feed: %w", err)
		}
		fan = append(fan, live)
	}

	if cfg.MQTT.Broker != "" {
		pub, err := plot.NewPublisher(cfg.MQTT)
		if err != nil {
			slog.Warn("MQTT publishing disabled", "err", err)
		} else {
			fan = append(fan, pub)
		}
	}
	return fan, nil
}

// setupLogger installs the default slog logger and returns a function that
// releases the log file.
func setupLogger(cfg config.LogConfig) func() {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	}

	var out io.Writer = os.Stderr
	closeFn := func() {}
	if cfg.File != "" && cfg.File != "-" {
		rotating := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,    // megabytes
			MaxBackups: cfg.MaxBackups, // number of backups
			MaxAge:     cfg.MaxAge,     // days
			Compress:   cfg.Compress,
		}
		out = rotating
		closeFn = func() { rotating.Close() }
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(out, opts)))
	return closeFn
}
