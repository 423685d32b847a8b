// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package bridge drives a Bus Pirate compatible adapter from its power-on
// state into transparent UART bridge mode and back out again.
package bridge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ffutop/bpnmea/buspirate"
	"github.com/ffutop/bpnmea/transport"
)

var (
	// ErrOutOfOrder is returned when a step is attempted from the wrong mode.
	ErrOutOfOrder = errors.New("bridge: step out of order")
	// ErrClosed is returned by every step after Close.
	ErrClosed = errors.New("bridge: closed")
)

// drainLimit bounds the stale input discarded before the bitbang sync.
const drainLimit = 4096

// Config holds the wire parameters of the handshake.
type Config struct {
	SyncBytes       int                 // reset bytes written to reach bitbang mode
	ResponseTimeout time.Duration       // wait for each acknowledgement window
	Setup           []buspirate.Command // UART settings applied in order
}

// DefaultConfig returns the stock handshake: 20 sync bytes, 250ms windows,
// 9600 baud with 3.3V outputs and the power supply on.
func DefaultConfig() Config {
	return Config{
		SyncBytes:       buspirate.SyncBytes,
		ResponseTimeout: buspirate.ResponseTimeout,
		Setup:           buspirate.DefaultSetup(),
	}
}

// Bridge owns the protocol mode of one adapter on one port.
type Bridge struct {
	port transport.Port
	cfg  Config

	mu   sync.Mutex
	mode buspirate.Mode

	closeOnce sync.Once
	closeErr  error
}

// New returns a Bridge in raw mode. The port must already be open.
func New(port transport.Port, cfg Config) *Bridge {
	if cfg.SyncBytes <= 0 {
		cfg.SyncBytes = buspirate.SyncBytes
	}
	if cfg.ResponseTimeout <= 0 {
		cfg.ResponseTimeout = buspirate.ResponseTimeout
	}
	if cfg.Setup == nil {
		cfg.Setup = buspirate.DefaultSetup()
	}
	return &Bridge{port: port, cfg: cfg, mode: buspirate.ModeRaw}
}

// Mode returns the current protocol mode.
func (b *Bridge) Mode() buspirate.Mode {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mode
}

// Open runs the whole handshake: bitbang, UART, settings, bridge.
func (b *Bridge) Open(ctx context.Context) error {
	if err := b.EnterBitBang(ctx); err != nil {
		return err
	}
	if err := b.EnterUART(ctx); err != nil {
		return err
	}
	if err := b.ConfigureAll(ctx); err != nil {
		return err
	}
	return b.EnterBridge(ctx)
}

// EnterBitBang discards stale input, writes the sync bytes and expects the
// bitbang marker in the response window.
func (b *Bridge) EnterBitBang(ctx context.Context) error {
	if err := b.expect(buspirate.ModeRaw); err != nil {
		return err
	}
	if err := b.drain(ctx); err != nil {
		return b.fail(err)
	}

	for i := 0; i < b.cfg.SyncBytes; i++ {
		if err := b.write(buspirate.CmdReset); err != nil {
			return b.fail(err)
		}
	}

	resp, err := b.readWindow(ctx, buspirate.BitBangWindowSize)
	if err != nil {
		return b.fail(err)
	}
	if !bytes.Contains(resp, buspirate.MarkerBitBang) {
		return b.fail(&buspirate.ProtocolError{Kind: buspirate.EnterBitBangFailed, Response: resp})
	}

	b.setMode(buspirate.ModeBitBang)
	slog.Debug("entered bitbang mode", "response", string(resp))
	return nil
}

// EnterUART switches bitbang mode into binary UART mode.
func (b *Bridge) EnterUART(ctx context.Context) error {
	if err := b.expect(buspirate.ModeBitBang); err != nil {
		return err
	}
	if err := b.write(buspirate.CmdEnterUART); err != nil {
		return b.fail(err)
	}

	resp, err := b.readWindow(ctx, buspirate.UARTWindowSize)
	if err != nil {
		return b.fail(err)
	}
	if !bytes.Contains(resp, buspirate.MarkerUART) {
		return b.fail(&buspirate.ProtocolError{Kind: buspirate.EnterUARTFailed, Response: resp})
	}

	b.setMode(buspirate.ModeUART)
	slog.Debug("entered uart mode", "response", string(resp))
	return nil
}

// Configure applies a single UART setting. The mode stays UART.
func (b *Bridge) Configure(ctx context.Context, cmd buspirate.Command) error {
	if err := b.expect(buspirate.ModeUART); err != nil {
		return err
	}
	if err := b.write(cmd.Byte); err != nil {
		return b.fail(err)
	}

	resp, err := b.readWindow(ctx, buspirate.AckSize)
	if err != nil {
		return b.fail(err)
	}
	if len(resp) != buspirate.AckSize || resp[0] != cmd.Ack {
		return b.fail(&buspirate.ProtocolError{Kind: buspirate.ConfigurationRejected, Command: cmd, Response: resp})
	}

	slog.Debug("uart setting applied", "command", cmd.String())
	return nil
}

// ConfigureAll applies the configured settings in order and moves to the
// configured mode once all of them are acknowledged.
func (b *Bridge) ConfigureAll(ctx context.Context) error {
	for _, cmd := range b.cfg.Setup {
		if err := b.Configure(ctx, cmd); err != nil {
			return err
		}
	}
	if err := b.expect(buspirate.ModeUART); err != nil {
		return err
	}
	b.setMode(buspirate.ModeConfigured)
	return nil
}

// EnterBridge starts the transparent bridge. The single response byte is
// read and not checked.
func (b *Bridge) EnterBridge(ctx context.Context) error {
	if err := b.expect(buspirate.ModeConfigured); err != nil {
		return err
	}
	if err := b.write(buspirate.CmdStartBridge); err != nil {
		return b.fail(err)
	}
	if _, err := b.readWindow(ctx, buspirate.AckSize); err != nil {
		return b.fail(err)
	}

	b.setMode(buspirate.ModeBridging)
	slog.Info("uart bridge started")
	return nil
}

// Stream returns the bridged byte stream. Reads fail once the bridge is not
// in bridging mode.
func (b *Bridge) Stream() io.Reader {
	return &stream{b: b}
}

// Cleanup writes the exit sequence: back to bitbang, then device reset. It
// is safe in any mode and writes the same bytes on every call.
func (b *Bridge) Cleanup() error {
	var errs []error
	if _, err := b.port.Write([]byte{buspirate.CmdReset}); err != nil {
		errs = append(errs, transport.Wrap("write", err))
	}
	if _, err := b.port.Write([]byte{buspirate.CmdResetDevice}); err != nil {
		errs = append(errs, transport.Wrap("write", err))
	}
	return errors.Join(errs...)
}

// Close runs Cleanup once and moves the bridge to closed mode. Later calls
// return the result of the first one.
func (b *Bridge) Close() error {
	b.closeOnce.Do(func() {
		b.setMode(buspirate.ModeClosed)
		b.closeErr = b.Cleanup()
		if b.closeErr != nil {
			slog.Warn("adapter cleanup failed", "err", b.closeErr)
		} else {
			slog.Debug("adapter reset")
		}
	})
	return b.closeErr
}

func (b *Bridge) expect(want buspirate.Mode) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.mode == buspirate.ModeClosed {
		return ErrClosed
	}
	if b.mode != want {
		return fmt.Errorf("%w: mode is %s, want %s", ErrOutOfOrder, b.mode, want)
	}
	return nil
}

func (b *Bridge) setMode(m buspirate.Mode) {
	b.mu.Lock()
	b.mode = m
	b.mu.Unlock()
}

// fail closes the bridge and returns err.
func (b *Bridge) fail(err error) error {
	b.Close()
	return err
}

func (b *Bridge) write(c byte) error {
	_, err := b.port.Write([]byte{c})
	return transport.Wrap("write", err)
}

// readWindow reads one response window. The end of a replay source in the
// middle of the handshake is a link failure.
func (b *Bridge) readWindow(ctx context.Context, size int) ([]byte, error) {
	resp, err := buspirate.ReadWindow(ctx, b.port, size, time.Now().Add(b.cfg.ResponseTimeout))
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	if err != nil && ctx.Err() == nil {
		err = transport.Wrap("read", err)
	}
	return resp, err
}

// drain discards input buffered before the handshake, stopping at the first
// empty read.
func (b *Bridge) drain(ctx context.Context) error {
	buf := make([]byte, 256)
	total := 0
	for total < drainLimit {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := b.port.Read(buf)
		total += n
		if errors.Is(err, io.EOF) {
			return transport.Wrap("read", io.ErrUnexpectedEOF)
		}
		if err != nil {
			return transport.Wrap("read", err)
		}
		if n == 0 {
			break
		}
	}
	if total > 0 {
		slog.Debug("discarded stale input", "bytes", total)
	}
	return nil
}

type stream struct {
	b *Bridge
}

func (s *stream) Read(p []byte) (int, error) {
	switch m := s.b.Mode(); m {
	case buspirate.ModeBridging:
	case buspirate.ModeClosed:
		return 0, ErrClosed
	default:
		return 0, fmt.Errorf("%w: mode is %s, want %s", ErrOutOfOrder, m, buspirate.ModeBridging)
	}
	n, err := s.b.port.Read(p)
	return n, transport.Wrap("read", err)
}
