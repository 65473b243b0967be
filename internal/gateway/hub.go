// Package gateway streams simulation updates to WebSocket clients.
package gateway

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"marketsim/internal/model"
)

const (
	// ChannelTick carries one envelope per engine update.
	ChannelTick = "sim:tick"

	clientSendBuffer = 512
	replayCapacity   = 256
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// Hub manages WebSocket clients and fans out update envelopes.
// The latest envelope is kept so that new clients start from the current
// state; a replay buffer lets reconnecting clients catch up by seq.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	latest  []byte
	seq     int64
	replay  *ReplayBuffer

	// Latency tracks how long each fan-out takes.
	Latency *LatencyTracker

	// Status, when set, is sent to every client by StartStatusBroadcast.
	Status func() interface{}
	// OnClients is called with the client count after every connect and
	// disconnect.
	OnClients func(n int)
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		replay:  NewReplayBuffer(replayCapacity),
		Latency: NewLatencyTracker(4096),
	}
}

// Run broadcasts every update read from updates. Blocks until ctx is
// cancelled or updates is closed.
func (h *Hub) Run(ctx context.Context, updates <-chan model.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			h.Broadcast(ChannelTick, u.JSON())
		}
	}
}

// ServeHTTP upgrades the request to a WebSocket and registers the client.
// A "since" query parameter replays buffered envelopes with a larger seq
// instead of sending only the latest one.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[gateway] ws upgrade error: %v", err)
		return
	}
	since := int64(-1)
	if s := r.URL.Query().Get("since"); s != "" {
		if v, err := strconv.ParseInt(s, 10, 64); err == nil && v >= 0 {
			since = v
		}
	}
	h.register(conn, since)
}

func (h *Hub) register(conn *websocket.Conn, since int64) {
	client := &Client{
		conn: conn,
		send: make(chan []byte, clientSendBuffer),
		hub:  h,
	}
	conn.EnableWriteCompression(true)

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	// Queue initial state before releasing the lock so no broadcast can
	// overtake it.
	if since >= 0 {
		h.queueReplayLocked(client, since)
	} else if h.latest != nil {
		client.send <- h.latest
	}
	h.mu.Unlock()

	log.Printf("[gateway] ws client connected (%d total)", count)
	if h.OnClients != nil {
		h.OnClients(count)
	}

	go client.writePump()
	go client.readPump()
}

func (h *Hub) queueReplayLocked(c *Client, since int64) int {
	entries := h.replay.Since(since)
	n := 0
	for _, e := range entries {
		select {
		case c.send <- e.Data:
			n++
		default:
			return n
		}
	}
	return n
}

// RemoveClient unregisters c and closes its send channel.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	count := len(h.clients)
	h.mu.Unlock()

	if h.OnClients != nil {
		h.OnClients(count)
	}
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Seq returns the seq of the latest broadcast envelope.
func (h *Hub) Seq() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seq
}

// Latest returns the latest envelope, or nil before the first broadcast.
func (h *Hub) Latest() []byte {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.latest
}

// StartStatusBroadcast sends a status message to all WS clients every
// interval. Blocks until ctx is cancelled.
func (h *Hub) StartStatusBroadcast(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.broadcastStatus()
		}
	}
}

func (h *Hub) broadcastStatus() {
	msg := map[string]interface{}{
		"type":    "status",
		"clients": h.ClientCount(),
		"latency": h.Latency.Snapshot(),
		"seq":     h.Seq(),
	}
	if h.Status != nil {
		msg["status"] = h.Status()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[gateway] marshal status: %v", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- data:
		default:
		}
	}
}
