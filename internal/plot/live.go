// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package plot

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// historySize bounds the fixes replayed to a newly connected client.
	historySize = 1000
	writeWait   = time.Second
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// Point is one fix as sent to live clients.
type Point struct {
	Lat  float64   `json:"lat"`
	Lon  float64   `json:"lon"`
	Time time.Time `json:"time"`
}

// Live serves fixes to websocket clients on /ws, the recent history as JSON
// on /points and, when a Map is attached, the rendered map on /map.png.
type Live struct {
	Addr string

	m *Map

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
	history []Point

	server   *http.Server
	listener net.Listener
}

// NewLive returns a feed listening on addr once started. m may be nil.
func NewLive(addr string, m *Map) *Live {
	return &Live{Addr: addr, m: m, clients: map[*websocket.Conn]bool{}}
}

// Handler returns the HTTP routes of the feed.
func (l *Live) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", l.handleWS)
	mux.HandleFunc("/points", l.handlePoints)
	if l.m != nil {
		mux.HandleFunc("/map.png", l.handleMap)
	}
	return mux
}

// Start listens on Addr and serves in the background.
func (l *Live) Start() error {
	ln, err := net.Listen("tcp", l.Addr)
	if err != nil {
		return err
	}
	l.listener = ln
	l.server = &http.Server{Handler: l.Handler(), ReadHeaderTimeout: 5 * time.Second}
	slog.Info("live feed listening", "addr", ln.Addr().String())

	go func() {
		if err := l.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("live feed stopped", "err", err)
		}
	}()
	return nil
}

// ListenAddr returns the bound address after Start.
func (l *Live) ListenAddr() string {
	if l.listener == nil {
		return l.Addr
	}
	return l.listener.Addr().String()
}

// Update records the fix and broadcasts it to every client.
func (l *Live) Update(lat, lon float64) error {
	p := Point{Lat: lat, Lon: lon, Time: time.Now().UTC()}
	msg, err := json.Marshal(p)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.history = append(l.history, p)
	if len(l.history) > historySize {
		l.history = l.history[len(l.history)-historySize:]
	}
	for c := range l.clients {
		if err := write(c, msg); err != nil {
			slog.Debug("dropping live client", "remote", c.RemoteAddr().String(), "err", err)
			delete(l.clients, c)
			c.Close()
		}
	}
	return nil
}

// Close stops the server and disconnects the clients.
func (l *Live) Close() error {
	l.mu.Lock()
	for c := range l.clients {
		c.Close()
		delete(l.clients, c)
	}
	l.mu.Unlock()

	if l.server != nil {
		return l.server.Close()
	}
	return nil
}

func write(c *websocket.Conn, msg []byte) error {
	c.SetWriteDeadline(time.Now().Add(writeWait))
	return c.WriteMessage(websocket.TextMessage, msg)
}

// handleWS upgrades the request, replays the history and registers the
// client for broadcasts.
func (l *Live) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	l.mu.Lock()
	for _, p := range l.history {
		msg, _ := json.Marshal(p)
		if err := write(conn, msg); err != nil {
			l.mu.Unlock()
			conn.Close()
			return
		}
	}
	l.clients[conn] = true
	l.mu.Unlock()

	go func() {
		defer func() {
			l.mu.Lock()
			delete(l.clients, conn)
			l.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					slog.Debug("live client read failed", "err", err)
				}
				return
			}
		}
	}()
}

func (l *Live) handlePoints(w http.ResponseWriter, r *http.Request) {
	l.mu.Lock()
	points := append([]Point(nil), l.history...)
	l.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(points)
}

func (l *Live) handleMap(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "image/png")
	if err := l.m.WritePNG(w); err != nil {
		slog.Warn("failed to serve map", "err", err)
	}
}
