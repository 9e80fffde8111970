// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS policy is enforced by the surrounding middleware.
		return true
	},
}

// WSMessage is the envelope for everything sent over the socket.
type WSMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// WSClient is one connected socket.
type WSClient struct {
	conn *websocket.Conn
	send chan []byte
}

// WSHub fans job updates and progress events out to connected clients.
type WSHub struct {
	mu        sync.RWMutex
	clients   map[*WSClient]struct{}
	broadcast chan []byte
}

// NewWSHub creates a hub. Call Run in a goroutine before use.
func NewWSHub() *WSHub {
	return &WSHub{
		clients:   make(map[*WSClient]struct{}),
		broadcast: make(chan []byte, 256),
	}
}

// Run delivers broadcasts until the process exits. A client that cannot keep
// up is dropped rather than allowed to stall the others.
func (h *WSHub) Run() {
	for message := range h.broadcast {
		h.mu.Lock()
		for client := range h.clients {
			select {
			case client.send <- message:
			default:
				close(client.send)
				delete(h.clients, client)
			}
		}
		h.mu.Unlock()
	}
}

func (h *WSHub) add(c *WSClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	log.Printf("[WS] client connected (%d total)", n)
}

func (h *WSHub) remove(c *WSClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	log.Printf("[WS] client disconnected (%d total)", n)
}

// Broadcast sends a typed message to all connected clients.
func (h *WSHub) Broadcast(msgType string, data any) {
	b, err := json.Marshal(WSMessage{Type: msgType, Data: data})
	if err != nil {
		log.Printf("[WS] marshal failed: %v", err)
		return
	}
	select {
	case h.broadcast <- b:
	default:
		log.Printf("[WS] broadcast channel full, dropping message")
	}
}

// BroadcastJob sends a job update to all clients.
func (h *WSHub) BroadcastJob(job *Job) {
	h.Broadcast("job_update", job)
}

// BroadcastEvent sends a progress event to all clients.
func (h *WSHub) BroadcastEvent(event any) {
	h.Broadcast("event", event)
}

// ClientCount returns the number of connected clients.
func (h *WSHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// handleWebSocket upgrades the connection and streams job state.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WS] upgrade failed: %v", err)
		return
	}

	client := &WSClient{
		conn: conn,
		send: make(chan []byte, 256),
	}
	s.wsHub.add(client)

	go client.writePump()
	go client.readPump(s.wsHub)

	// Snapshot of the job table so a fresh client starts in sync.
	if init, err := json.Marshal(WSMessage{
		Type: "init",
		Data: map[string]any{"jobs": s.jobs.ListJobs()},
	}); err == nil {
		select {
		case client.send <- init:
		default:
		}
	}
}

// writePump drains the send channel onto the socket and keeps the
// connection alive with pings.
func (c *WSClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump consumes (and discards) client frames so pongs and close frames
// are processed.
func (c *WSClient) readPump(hub *WSHub) {
	defer func() {
		hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512 * 1024)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[WS] read error: %v", err)
			}
			return
		}
	}
}
