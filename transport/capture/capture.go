// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package capture implements transport.Port on a recorded receiver output.
// The file is memory mapped and served behind an emulated adapter: the
// handshake is answered like a Bus Pirate would, and once the bridge is
// started the recording is replayed in fixed size chunks.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/edsrzf/mmap-go"

	"github.com/ffutop/bpnmea/buspirate"
	"github.com/ffutop/bpnmea/internal/config"
	"github.com/ffutop/bpnmea/transport"
)

const defaultChunkSize = 64

var (
	errNotOpen  = errors.New("capture not open")
	bitbangText = []byte("BBIO1")
	uartText    = []byte("ART1")
)

// Port replays a capture file.
type Port struct {
	Path      string
	ChunkSize int

	mu      sync.Mutex
	file    *os.File
	data    mmap.MMap // nil for an empty file
	offset  int
	mode    buspirate.Mode
	zeros   int
	pending []byte
}

// New returns a Port for cfg. The file is mapped by Open.
func New(cfg config.CaptureConfig) *Port {
	p := &Port{Path: cfg.Path, ChunkSize: cfg.ChunkSize}
	if p.ChunkSize <= 0 {
		p.ChunkSize = defaultChunkSize
	}
	return p
}

// Open maps the capture file read-only and resets the emulated adapter.
func (p *Port) Open(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if p.file != nil {
		return nil
	}

	f, err := os.Open(p.Path)
	if err != nil {
		return &transport.Error{Op: "open", Err: fmt.Errorf("failed to open capture: %w", err)}
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return &transport.Error{Op: "open", Err: err}
	}

	// Mapping a zero length file fails; an empty capture simply ends at once.
	if fi.Size() > 0 {
		data, err := mmap.Map(f, mmap.RDONLY, 0)
		if err != nil {
			f.Close()
			return &transport.Error{Op: "open", Err: fmt.Errorf("mmap failed: %w", err)}
		}
		p.data = data
	}
	p.file = f
	p.offset = 0
	p.mode = buspirate.ModeRaw
	p.zeros = 0
	p.pending = nil

	slog.Info("capture opened", "path", p.Path, "bytes", fi.Size(), "chunkSize", p.ChunkSize)
	return nil
}

// Read returns pending adapter replies first. In bridge mode it serves the
// next chunk of the recording and io.EOF once it is exhausted. Otherwise it
// reports an empty read, like a serial port timing out.
func (p *Port) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.file == nil {
		return 0, &transport.Error{Op: "read", Err: errNotOpen}
	}
	if len(p.pending) > 0 {
		n := copy(b, p.pending)
		p.pending = p.pending[n:]
		return n, nil
	}
	if p.mode != buspirate.ModeBridging {
		return 0, nil
	}
	if p.offset >= len(p.data) {
		return 0, io.EOF
	}

	end := p.offset + p.ChunkSize
	if end > len(p.data) {
		end = len(p.data)
	}
	n := copy(b, p.data[p.offset:end])
	p.offset += n
	return n, nil
}

// Write feeds b to the emulated adapter.
func (p *Port) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.file == nil {
		return 0, &transport.Error{Op: "write", Err: errNotOpen}
	}
	for _, c := range b {
		p.pending = append(p.pending, p.respond(c)...)
	}
	return len(b), nil
}

// respond advances the emulated adapter by one received byte.
func (p *Port) respond(c byte) []byte {
	switch p.mode {
	case buspirate.ModeRaw:
		if c != buspirate.CmdReset {
			p.zeros = 0
			return nil
		}
		p.zeros++
		if p.zeros < buspirate.SyncBytes {
			return nil
		}
		p.mode = buspirate.ModeBitBang
		return bitbangText

	case buspirate.ModeBitBang:
		switch c {
		case buspirate.CmdReset:
			return bitbangText
		case buspirate.CmdEnterUART:
			p.mode = buspirate.ModeUART
			return uartText
		case buspirate.CmdResetDevice:
			p.mode = buspirate.ModeRaw
			p.zeros = 0
		}
		return nil

	case buspirate.ModeUART:
		switch {
		case c == buspirate.CmdReset:
			p.mode = buspirate.ModeBitBang
			return bitbangText
		case c == buspirate.CmdStartBridge:
			p.mode = buspirate.ModeBridging
			slog.Debug("capture replay started")
			return []byte{buspirate.AckOK}
		case c&0xF0 == 0x60, c&0xE0 == 0x80, c&0xF0 == 0x40:
			return []byte{buspirate.AckOK}
		}
		return []byte{0x00}
	}

	// Bridging: bytes go to the receiver, which does not answer.
	return nil
}

// Close unmaps and closes the file. Closing twice is a no-op.
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.file == nil {
		return nil
	}
	var errs []error
	if p.data != nil {
		errs = append(errs, p.data.Unmap())
		p.data = nil
	}
	errs = append(errs, p.file.Close())
	p.file = nil
	return transport.Wrap("close", errors.Join(errs...))
}
