package www

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"roverd/engine"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// wsSendBuffer is the per-connection outbound queue depth. A subscriber
// that falls this far behind is dropped rather than slowing the others.
const wsSendBuffer = 16

// wsMessage is the envelope exchanged over the live-tracking socket.
type wsMessage struct {
	Type      string      `json:"type"`
	RobotID   string      `json:"robot_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp,omitempty"`
}

func envelope(msgType, robotID string, data interface{}) wsMessage {
	return wsMessage{Type: msgType, RobotID: robotID, Data: data, Timestamp: time.Now().UTC()}
}

// wsClient wraps a websocket connection. All frames go through the send
// queue, drained by a single writer goroutine, so a slow connection only
// ever blocks itself.
type wsClient struct {
	conn *websocket.Conn
	send chan wsMessage
}

// writePump drains the send queue onto the wire. It exits when the queue
// is closed by unregister or when a write fails.
func (c *wsClient) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// WSHub tracks live-tracking subscribers per robot and pushes state updates
// on a fixed cadence.
type WSHub struct {
	engine   *engine.Engine
	interval time.Duration
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]map[*wsClient]struct{} // robotID -> connections

	stopChan chan struct{}
}

// NewWSHub creates a websocket hub pushing updates at the given interval.
func NewWSHub(eng *engine.Engine, interval time.Duration) *WSHub {
	if interval <= 0 {
		interval = time.Second
	}
	return &WSHub{
		engine:   eng,
		interval: interval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients:  make(map[string]map[*wsClient]struct{}),
		stopChan: make(chan struct{}),
	}
}

// Start begins the periodic broadcast loop.
func (h *WSHub) Start() {
	go h.broadcastLoop()
}

// Stop shuts down the broadcast loop.
func (h *WSHub) Stop() {
	select {
	case <-h.stopChan:
	default:
		close(h.stopChan)
	}
}

func (h *WSHub) register(robotID string, c *wsClient) {
	h.mu.Lock()
	set, ok := h.clients[robotID]
	if !ok {
		set = make(map[*wsClient]struct{})
		h.clients[robotID] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()
}

// unregister removes the client and closes its send queue. The queue is
// closed under the write lock while membership is still authoritative, so
// trySend can never race a send against the close.
func (h *WSHub) unregister(robotID string, c *wsClient) {
	h.mu.Lock()
	if set, ok := h.clients[robotID]; ok {
		if _, present := set[c]; present {
			delete(set, c)
			close(c.send)
		}
		if len(set) == 0 {
			delete(h.clients, robotID)
		}
	}
	h.mu.Unlock()
	c.conn.Close()
}

// trySend queues a frame without blocking. Returns false when the client
// has been unregistered or its queue is full.
func (h *WSHub) trySend(robotID string, c *wsClient, msg wsMessage) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[robotID][c]; !ok {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// SubscriberCount returns the number of connections tracking a robot.
func (h *WSHub) SubscriberCount(robotID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[robotID])
}

// HandleWS upgrades the connection and serves the live-tracking protocol.
func (h *WSHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	robotID := chi.URLParam(r, "robotID")
	if robotID == "" {
		http.Error(w, "missing robot id", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade: %v", err)
		return
	}

	client := &wsClient{conn: conn, send: make(chan wsMessage, wsSendBuffer)}
	h.register(robotID, client)
	defer h.unregister(robotID, client)
	go client.writePump()

	// Push the current state immediately so the client does not wait a
	// full broadcast interval for its first frame.
	h.trySend(robotID, client, envelope("robot_update", robotID, h.engine.Controller().GetState()))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.trySend(robotID, client, envelope("error", robotID, "invalid message"))
			continue
		}
		switch msg.Type {
		case "ping":
			h.trySend(robotID, client, envelope("pong", robotID, nil))
		case "request_state":
			h.trySend(robotID, client, envelope("state_update", robotID, h.engine.Controller().GetState()))
		default:
			h.trySend(robotID, client, envelope("error", robotID, "unknown message type"))
		}
	}
}

func (h *WSHub) broadcastLoop() {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopChan:
			return
		case <-ticker.C:
		}

		h.mu.RLock()
		idle := len(h.clients) == 0
		h.mu.RUnlock()
		if idle {
			continue
		}

		snap := h.engine.Controller().GetState()
		msg := envelope("robot_update", snap.RobotID, snap)

		// Non-blocking fan-out: a subscriber with a full queue is
		// collected and dropped instead of stalling the tick.
		var stalled []*wsClient
		h.mu.RLock()
		for c := range h.clients[snap.RobotID] {
			select {
			case c.send <- msg:
			default:
				stalled = append(stalled, c)
			}
		}
		h.mu.RUnlock()

		for _, c := range stalled {
			h.unregister(snap.RobotID, c)
		}
	}
}
