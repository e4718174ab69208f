package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ppiankov/claimstream/internal/pipeline"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 32
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub fans pipeline events out to websocket listeners of a recording
type Hub struct {
	logger *zap.Logger

	mu      sync.Mutex
	clients map[string]map[*client]struct{}
	closed  bool
}

type client struct {
	conn *websocket.Conn
	send chan pipeline.Event
}

// NewHub creates an empty hub
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{logger: logger, clients: make(map[string]map[*client]struct{})}
}

// Publish delivers ev to every listener of its recording. Slow listeners
// miss events rather than block the pipeline.
func (h *Hub) Publish(ev pipeline.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients[ev.RecordingID] {
		select {
		case c.send <- ev:
		default:
			h.logger.Warn("live listener too slow, event dropped",
				zap.String("recording", ev.RecordingID),
				zap.String("remote", c.conn.RemoteAddr().String()))
		}
	}
}

// Listeners returns the number of connected listeners of a recording
func (h *Hub) Listeners(recordingID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[recordingID])
}

// Serve upgrades the request and streams events for recordingID until the
// client disconnects
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, recordingID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{conn: conn, send: make(chan pipeline.Event, sendBuffer)}
	if !h.register(recordingID, c) {
		_ = conn.Close()
		return
	}
	h.logger.Debug("live listener connected", zap.String("recording", recordingID))

	go h.writePump(c)
	h.readPump(c)
	h.unregister(recordingID, c)
}

func (h *Hub) register(recordingID string, c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	if h.clients[recordingID] == nil {
		h.clients[recordingID] = make(map[*client]struct{})
	}
	h.clients[recordingID][c] = struct{}{}
	return true
}

func (h *Hub) unregister(recordingID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[recordingID][c]; !ok {
		return
	}
	delete(h.clients[recordingID], c)
	if len(h.clients[recordingID]) == 0 {
		delete(h.clients, recordingID)
	}
	close(c.send)
}

// readPump discards client messages and returns when the connection closes
func (h *Hub) readPump(c *client) {
	defer func() { _ = c.conn.Close() }()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close disconnects every listener
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, set := range h.clients {
		for c := range set {
			close(c.send)
		}
		delete(h.clients, id)
	}
}
