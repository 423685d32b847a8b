// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package tcp implements transport.Port on a raw TCP connection to a serial
// server (e.g. ser2net) the adapter is attached to.
package tcp

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/ffutop/bpnmea/internal/config"
	"github.com/ffutop/bpnmea/transport"
)

const (
	tcpTimeout  = 100 * time.Millisecond
	dialTimeout = 10 * time.Second
	writeWait   = 5 * time.Second
)

var errNotOpen = errors.New("tcp connection not open")

// Client is a Port backed by one TCP connection.
type Client struct {
	Address string
	Timeout time.Duration // read timeout

	mu   sync.Mutex
	conn net.Conn
}

// NewClient allocates a Client for cfg. It does not connect.
func NewClient(cfg config.TcpConfig) *Client {
	c := &Client{
		Address: cfg.Address,
		Timeout: cfg.Timeout,
	}
	if c.Timeout <= 0 {
		c.Timeout = tcpTimeout
	}
	return c
}

// Open dials the server if not connected yet.
func (c *Client) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}
	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", c.Address)
	if err != nil {
		return &transport.Error{Op: "open", Err: fmt.Errorf("failed to connect to %s: %w", c.Address, err)}
	}
	c.conn = conn
	slog.Info("tcp link connected", "address", c.Address, "timeout", c.Timeout)
	return nil
}

// Read waits at most Timeout for data. A timeout is reported as (0, nil); a
// closed connection is a transport error.
func (c *Client) Read(b []byte) (int, error) {
	conn, err := c.current("read")
	if err != nil {
		return 0, err
	}
	if err := conn.SetReadDeadline(time.Now().Add(c.Timeout)); err != nil {
		return 0, transport.Wrap("read", err)
	}

	n, err := conn.Read(b)
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return n, nil
	}
	if err != nil {
		// The peer hanging up is a link failure, not the end of a replay.
		return n, &transport.Error{Op: "read", Err: err}
	}
	return n, nil
}

// Write sends b.
func (c *Client) Write(b []byte) (int, error) {
	conn, err := c.current("write")
	if err != nil {
		return 0, err
	}
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return 0, transport.Wrap("write", err)
	}
	slog.Debug("write to tcp link", "data", hex.EncodeToString(b))
	n, err := conn.Write(b)
	return n, transport.Wrap("write", err)
}

// Close closes the connection. Closing twice is a no-op.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return transport.Wrap("close", err)
}

func (c *Client) current(op string) (net.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil, &transport.Error{Op: op, Err: errNotOpen}
	}
	return c.conn, nil
}
