// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/gamepad_polling/internal/gamepad"
	"github.com/relabs-tech/gamepad_polling/internal/metrics"
	"github.com/relabs-tech/gamepad_polling/internal/scheduler"
)

const clientBuffer = 64

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WSMessage is a control request sent by a WebSocket client.
type WSMessage struct {
	Action  string      `json:"action"` // start, stop, reset, set_log_size, ids, status
	ID      *gamepad.ID `json:"id,omitempty"`
	FPS     int         `json:"fps,omitempty"`
	Record  *bool       `json:"record,omitempty"`
	LogSize int         `json:"log_size,omitempty"`
}

// WSResponse is everything the server sends on the socket.
type WSResponse struct {
	Type    string           `json:"type"` // frame, status, ids, error
	Frame   *scheduler.Frame `json:"frame,omitempty"`
	Status  *Status          `json:"status,omitempty"`
	IDs     []gamepad.ID     `json:"ids,omitempty"`
	Message string           `json:"message,omitempty"`
}

// StartDefaults fill the fields a start request leaves out.
type StartDefaults struct {
	ID     gamepad.ID
	FPS    int
	Record bool
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub streams frames to every connected WebSocket client and executes
// their control actions.
type Hub struct {
	ctl      *Control
	defaults StartDefaults

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

func NewHub(ctl *Control, defaults StartDefaults) *Hub {
	return &Hub{
		ctl:      ctl,
		defaults: defaults,
		clients:  make(map[*wsClient]struct{}),
	}
}

// OnSnapshot queues the frame for every client. Clients that fall behind
// miss frames instead of slowing the publisher.
func (h *Hub) OnSnapshot(f scheduler.Frame) {
	payload, err := json.Marshal(WSResponse{Type: "frame", Frame: &f})
	if err != nil {
		log.Printf("hub: json marshal error: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			metrics.PublishSkipped.WithLabelValues("ws_slow").Inc()
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.conn.Close()
	}
}

func (h *Hub) register(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// HandleWS upgrades the request and serves the client until it leaves.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("hub: websocket upgrade error: %v", err)
		return
	}

	c := &wsClient{conn: conn, send: make(chan []byte, clientBuffer)}
	h.register(c)
	log.Printf("hub: client %s connected", conn.RemoteAddr())

	go c.writeLoop()

	// Main message loop
	for {
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("hub: websocket read error: %v", err)
			}
			break
		}
		h.handle(c, msg)
	}

	h.unregister(c)
	conn.Close()
	log.Printf("hub: client %s disconnected", conn.RemoteAddr())
}

func (c *wsClient) writeLoop() {
	for payload := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			c.conn.Close()
			return
		}
	}
}

func (h *Hub) handle(c *wsClient, msg WSMessage) {
	switch msg.Action {
	case "start":
		id, fps, record := h.defaults.ID, h.defaults.FPS, h.defaults.Record
		if msg.ID != nil {
			id = *msg.ID
		}
		if msg.FPS != 0 {
			fps = msg.FPS
		}
		if msg.Record != nil {
			record = *msg.Record
		}
		st, err := h.ctl.Start(id, fps, record)
		if err != nil {
			h.sendError(c, err.Error())
			return
		}
		h.reply(c, WSResponse{Type: "status", Status: &st})

	case "stop":
		st := h.ctl.Stop()
		h.reply(c, WSResponse{Type: "status", Status: &st})

	case "reset":
		h.ctl.Reset()
		st := h.ctl.Status()
		h.reply(c, WSResponse{Type: "status", Status: &st})

	case "set_log_size":
		if err := h.ctl.SetLogSize(msg.LogSize); err != nil {
			h.sendError(c, err.Error())
			return
		}
		st := h.ctl.Status()
		h.reply(c, WSResponse{Type: "status", Status: &st})

	case "ids":
		ids, err := h.ctl.PresentIDs()
		if err != nil {
			h.sendError(c, err.Error())
			return
		}
		h.reply(c, WSResponse{Type: "ids", IDs: ids})

	case "status":
		st := h.ctl.Status()
		h.reply(c, WSResponse{Type: "status", Status: &st})

	default:
		h.sendError(c, fmt.Sprintf("unknown action: %s", msg.Action))
	}
}

func (h *Hub) reply(c *wsClient, resp WSResponse) {
	payload, err := json.Marshal(resp)
	if err != nil {
		log.Printf("hub: json marshal error: %v", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- payload:
	default:
		log.Printf("hub: client %s too slow, dropping %s reply", c.conn.RemoteAddr(), resp.Type)
	}
}

func (h *Hub) sendError(c *wsClient, message string) {
	h.reply(c, WSResponse{Type: "error", Message: message})
}
