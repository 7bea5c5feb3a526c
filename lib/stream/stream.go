// Copyright (c) 2020–2026 The labdrivers developers. All rights reserved.
// Project site: https://github.com/gotmc/labdrivers
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

// Package stream broadcasts readings to WebSocket clients.
package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/gotmc/labdrivers"
)

// Message is the envelope sent to clients.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// lab network tool; any origin may watch
	CheckOrigin: func(r *http.Request) bool { return true },
}

type client struct {
	conn       *websocket.Conn
	instrument string // empty means all
	mu         sync.Mutex
}

func (c *client) send(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

// Hub is an http.Handler that upgrades requests to WebSocket connections
// and a poll sink that broadcasts every batch of readings to them.
// A client may pass ?instrument=name to receive only that instrument.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	log     *logrus.Logger
}

// NewHub returns an empty hub.
func NewHub(log *logrus.Logger) *Hub {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Hub{clients: make(map[*client]struct{}), log: log}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.log.WithField("remote", c.conn.RemoteAddr()).Debug("stream client connected")
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	_ = c.conn.Close()
	h.log.WithField("remote", c.conn.RemoteAddr()).Debug("stream client gone")
}

// ServeHTTP upgrades the request and keeps the connection until the client
// goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnf("stream upgrade: %v", err)
		return
	}
	c := &client{conn: conn, instrument: r.URL.Query().Get("instrument")}
	h.add(c)
	hello, _ := h.encode(Message{Type: "hello"})
	if err := c.send(hello); err != nil {
		h.remove(c)
		return
	}
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.remove(c)
			return
		}
	}
}

// encode marshals m. A message that cannot be encoded is logged and not
// sent.
func (h *Hub) encode(m Message) ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		h.log.WithField("type", m.Type).Errorf("stream encode: %v", err)
		return nil, errors.Wrapf(err, "encode %s message", m.Type)
	}
	return b, nil
}

// Broadcast sends m to every client.
func (h *Hub) Broadcast(m Message) error {
	b, err := h.encode(m)
	if err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if err := c.send(b); err != nil {
			h.log.Debugf("stream send: %v", err)
		}
	}
	return nil
}

// Write implements poll.Sink. Each client receives the readings of its
// instrument in one "readings" message.
func (h *Hub) Write(_ context.Context, rs []labdrivers.Reading) error {
	all, err := h.encode(Message{Type: "readings", Data: rs})
	if err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		b := all
		if c.instrument != "" {
			var mine []labdrivers.Reading
			for _, r := range rs {
				if r.Instrument == c.instrument {
					mine = append(mine, r)
				}
			}
			if len(mine) == 0 {
				continue
			}
			if b, err = h.encode(Message{Type: "readings", Data: mine}); err != nil {
				return err
			}
		}
		if err := c.send(b); err != nil {
			h.log.Debugf("stream send: %v", err)
		}
	}
	return nil
}
