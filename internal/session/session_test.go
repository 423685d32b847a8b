// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ffutop/bpnmea/buspirate"
	"github.com/ffutop/bpnmea/internal/bridge"
	"github.com/ffutop/bpnmea/internal/config"
	"github.com/ffutop/bpnmea/internal/nmea"
	"github.com/ffutop/bpnmea/internal/sink"
	"github.com/ffutop/bpnmea/transport"
	"github.com/ffutop/bpnmea/transport/capture"
)

func nmeaLine(payload string) string {
	ck := byte(0)
	for i := 0; i < len(payload); i++ {
		ck ^= payload[i]
	}
	return fmt.Sprintf("$%s*%02X", payload, ck)
}

func ggaLine(quality, sats string) string {
	return nmeaLine("GPGGA,123519,4807.038,N,01131.000,E," + quality + "," + sats + ",0.9,545.4,M,46.9,M,,")
}

type points struct {
	got    [][2]float64
	closed bool
}

func (p *points) Update(lat, lon float64) error {
	p.got = append(p.got, [2]float64{lat, lon})
	return nil
}

func (p *points) Close() error {
	p.closed = true
	return nil
}

func testBridgeConfig() bridge.Config {
	cfg := bridge.DefaultConfig()
	cfg.ResponseTimeout = 20 * time.Millisecond
	return cfg
}

type fixture struct {
	console bytes.Buffer
	logPath string
	fixlog  *sink.FileLog
	vis     *points
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{vis: &points{}}
	f.logPath = filepath.Join(t.TempDir(), "logs", "fix.log")
	l, err := sink.OpenFileLog(f.logPath)
	if err != nil {
		t.Fatal(err)
	}
	f.fixlog = l
	return f
}

func (f *fixture) session(port transport.Port) *Session {
	return New("test", port, testBridgeConfig(), sink.NewConsole(&f.console), f.fixlog, f.vis)
}

func (f *fixture) logLines(t *testing.T) []string {
	t.Helper()
	data, err := os.ReadFile(f.logPath)
	if err != nil {
		t.Fatal(err)
	}
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func capturePort(t *testing.T, content string) *capture.Port {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.nmea")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return capture.New(config.CaptureConfig{Path: path, ChunkSize: 7})
}

func TestSession_Capture(t *testing.T) {
	content := strings.Join([]string{
		ggaLine("1", "08"),
		ggaLine("0", "04"),
		"$GPGGA,garbage",
		nmeaLine("GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W"),
		ggaLine("2", "00"),
	}, "\r\n") + "\r\n"

	f := newFixture(t)
	port := capturePort(t, content)
	s := f.session(port)

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run() = %v", err)
	}

	lines := f.logLines(t)
	if len(lines) != 3 {
		t.Fatalf("fix log has %d lines: %q", len(lines), lines)
	}
	if !strings.HasPrefix(lines[0], "GGA(") || !strings.HasPrefix(lines[1], "Parse error: ") || !strings.HasPrefix(lines[2], "GGA(") {
		t.Errorf("fix log %q", lines)
	}
	if len(f.vis.got) != 2 {
		t.Errorf("visualized %d points, want 2", len(f.vis.got))
	}
	if !f.vis.closed {
		t.Error("visualizer not closed")
	}

	out := f.console.String()
	if !strings.HasPrefix(out, "setup done\n") {
		t.Errorf("console output %q", out)
	}
	if n := strings.Count(out, "GGA("); n != 2 {
		t.Errorf("echoed %d fixes, want 2", n)
	}

	want := nmea.Stats{Lines: 5, Fixes: 3, Echoed: 2, Recorded: 2, Ignored: 1, ParseErrors: 1}
	if st := s.Stats(); st != want {
		t.Errorf("stats %+v, want %+v", st, want)
	}

	if _, err := port.Read(make([]byte, 1)); !transport.IsError(err) {
		t.Errorf("port still open after Run: %v", err)
	}
	if err := f.fixlog.Append("late"); err == nil {
		t.Error("fix log still open after Run")
	}
}

// unplugged turns the end of the capture into a link failure.
type unplugged struct {
	*capture.Port
}

var errUnplugged = errors.New("device unplugged")

func (u unplugged) Read(b []byte) (int, error) {
	n, err := u.Port.Read(b)
	if errors.Is(err, io.EOF) {
		return n, &transport.Error{Op: "read", Err: errUnplugged}
	}
	return n, err
}

func TestSession_DeviceError(t *testing.T) {
	f := newFixture(t)
	s := f.session(unplugged{capturePort(t, ggaLine("1", "08")+"\r\n")})

	err := s.Run(context.Background())
	if !errors.Is(err, errUnplugged) {
		t.Fatalf("Run() = %v, want %v", err, errUnplugged)
	}

	lines := f.logLines(t)
	last := lines[len(lines)-1]
	if !strings.HasPrefix(last, "Device error: ") {
		t.Errorf("last fix log line %q", last)
	}
	if !strings.Contains(f.console.String(), "Device error: ") {
		t.Error("device error not echoed")
	}
}

// silentPort never answers and records what it was sent.
type silentPort struct {
	written bytes.Buffer
	closed  int
}

func (p *silentPort) Read(b []byte) (int, error) { return 0, nil }

func (p *silentPort) Write(b []byte) (int, error) { return p.written.Write(b) }

func (p *silentPort) Close() error {
	p.closed++
	return nil
}

func TestSession_SetupFailure(t *testing.T) {
	f := newFixture(t)
	port := &silentPort{}
	s := f.session(port)

	err := s.Run(context.Background())
	if !errors.Is(err, buspirate.ErrEnterBitBang) {
		t.Fatalf("Run() = %v, want ErrEnterBitBang", err)
	}
	if strings.Contains(f.console.String(), "setup done") {
		t.Error("setup reported done")
	}

	want := append(make([]byte, buspirate.SyncBytes), 0x00, 0x0F)
	if !bytes.Equal(port.written.Bytes(), want) {
		t.Errorf("written % X\nwant    % X", port.written.Bytes(), want)
	}
	if port.closed != 1 {
		t.Errorf("port closed %d times", port.closed)
	}
}

func TestSession_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := newFixture(t)
	port := &silentPort{}
	if err := f.session(port).Run(ctx); err != nil {
		t.Fatalf("Run() = %v, want nil on cancellation", err)
	}
	if port.closed != 1 {
		t.Errorf("port closed %d times", port.closed)
	}
}
