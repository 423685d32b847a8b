// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package serial implements transport.Port on a local serial device.
package serial

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/grid-x/serial"

	"github.com/ffutop/bpnmea/internal/config"
	"github.com/ffutop/bpnmea/transport"
)

const (
	// Default read timeout. Reads that see no data within it return (0, nil).
	serialTimeout = 100 * time.Millisecond
)

var errNotOpen = errors.New("serial port not open")

// Port is a serial device opened with grid-x/serial.
type Port struct {
	// Serial port configuration.
	serial.Config

	mu sync.Mutex
	// port is platform-dependent data structure for serial port.
	port io.ReadWriteCloser
}

// New maps the serial section of the configuration onto a Port. The device
// is not opened until Open is called.
func New(cfg config.SerialConfig) *Port {
	p := &Port{}
	p.Config.Address = cfg.Device
	p.Config.BaudRate = cfg.BaudRate
	p.Config.DataBits = cfg.DataBits
	p.Config.StopBits = cfg.StopBits
	p.Config.Parity = cfg.Parity
	p.Config.Timeout = cfg.Timeout
	if p.Config.Timeout <= 0 {
		p.Config.Timeout = serialTimeout
	}
	return p
}

// Open opens the serial device if it is not open yet.
func (p *Port) Open(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if p.port != nil {
		return nil
	}
	port, err := serial.Open(&p.Config)
	if err != nil {
		return &transport.Error{Op: "open", Err: fmt.Errorf("could not open %s: %w", p.Config.Address, err)}
	}
	p.port = port
	slog.Info("serial port opened", "device", p.Config.Address, "baudRate", p.Config.BaudRate, "timeout", p.Config.Timeout)
	return nil
}

// Read reads from the device. A read timeout is reported as (0, nil).
func (p *Port) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.port == nil {
		return 0, &transport.Error{Op: "read", Err: errNotOpen}
	}
	n, err := p.port.Read(b)
	if errors.Is(err, serial.ErrTimeout) {
		return n, nil
	}
	return n, transport.Wrap("read", err)
}

// Write writes b to the device.
func (p *Port) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.port == nil {
		return 0, &transport.Error{Op: "write", Err: errNotOpen}
	}
	slog.Debug("write to serial port", "data", hex.EncodeToString(b))
	n, err := p.port.Write(b)
	return n, transport.Wrap("write", err)
}

// Close closes the device. Closing a closed port is a no-op.
func (p *Port) Close() (err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.port != nil {
		err = p.port.Close()
		p.port = nil
	}
	return transport.Wrap("close", err)
}
