// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/ffutop/bpnmea/internal/bridge"
	"github.com/ffutop/bpnmea/internal/nmea"
	"github.com/ffutop/bpnmea/transport"
)

// FixLog is the durable record of a session.
type FixLog interface {
	nmea.Logger
	io.Closer
}

// Session owns one port, the adapter bridge on it and the sinks fed from
// it. It runs once.
type Session struct {
	Name string

	port   transport.Port
	bridge *bridge.Bridge
	proc   *nmea.Processor
	echo   nmea.Echoer
	fixlog FixLog
	vis    nmea.Visualizer

	opened       bool
	shutdownOnce sync.Once
}

// New wires a session. vis may be nil; if it is an io.Closer it is closed
// at shutdown.
func New(name string, port transport.Port, cfg bridge.Config, echo nmea.Echoer, fixlog FixLog, vis nmea.Visualizer) *Session {
	return &Session{
		Name:   name,
		port:   port,
		bridge: bridge.New(port, cfg),
		proc:   nmea.NewProcessor(echo, fixlog, vis),
		echo:   echo,
		fixlog: fixlog,
		vis:    vis,
	}
}

// Run opens the port, brings the adapter into bridge mode and processes the
// receiver output until ctx is cancelled, the capture ends or a fatal error
// occurs. Cancellation and the end of a capture return nil. The adapter is
// reset and every resource is closed before Run returns.
func (s *Session) Run(ctx context.Context) error {
	err := s.run(ctx)
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		err = nil
	}
	if transport.IsError(err) {
		s.record("Device error: " + err.Error())
	}
	s.shutdown()
	return err
}

func (s *Session) run(ctx context.Context) error {
	if o, ok := s.port.(transport.Opener); ok {
		if err := o.Open(ctx); err != nil {
			return err
		}
	}
	s.opened = true

	if err := s.bridge.Open(ctx); err != nil {
		return fmt.Errorf("adapter setup failed: %w", err)
	}
	s.echo.Echo("setup done")
	slog.Info("setup done", "session", s.Name)

	err := s.proc.Run(ctx, nmea.NewBuffer(s.bridge.Stream()))
	if errors.Is(err, io.EOF) {
		slog.Info("capture finished", "session", s.Name)
		return nil
	}
	return err
}

// Stats returns the processor counters.
func (s *Session) Stats() nmea.Stats {
	return s.proc.Stats()
}

// record reports a session level event to the operator and the fix log.
func (s *Session) record(msg string) {
	s.echo.Echo(msg)
	if err := s.fixlog.Append(msg); err != nil {
		slog.Error("Failed to write fix log", "session", s.Name, "err", err)
	}
}

// shutdown resets the adapter if the port was opened, then closes the sinks
// and the port. It runs once.
func (s *Session) shutdown() {
	s.shutdownOnce.Do(func() {
		if s.opened {
			if err := s.bridge.Close(); err != nil {
				slog.Warn("Failed to reset adapter", "session", s.Name, "err", err)
			}
		}
		if err := s.fixlog.Close(); err != nil {
			slog.Warn("Failed to close fix log", "session", s.Name, "err", err)
		}
		if c, ok := s.vis.(io.Closer); ok {
			if err := c.Close(); err != nil {
				slog.Warn("Failed to close visualizer", "session", s.Name, "err", err)
			}
		}
		if err := s.port.Close(); err != nil {
			slog.Warn("Failed to close port", "session", s.Name, "err", err)
		}

		st := s.proc.Stats()
		slog.Info("session closed", "session", s.Name,
			"lines", st.Lines, "fixes", st.Fixes, "echoed", st.Echoed,
			"recorded", st.Recorded, "ignored", st.Ignored, "parseErrors", st.ParseErrors)
	})
}
