package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"

	"github.com/ayusman/fastcheck/internal/screening"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = pongWait * 9 / 10
	// sendBuffer is how many overlays may queue for a slow client before
	// frames are dropped for it.
	sendBuffer = 8
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

type overlayClient struct {
	conn *websocket.Conn
	send chan []byte
}

// OverlayHub broadcasts the per-frame screening overlay to WebSocket
// clients. Publish never blocks the frame loop: a client that falls behind
// loses frames.
type OverlayHub struct {
	log zerolog.Logger

	mu      sync.RWMutex
	clients map[*overlayClient]struct{}
	last    []byte
	closed  bool
}

// NewOverlayHub creates an empty hub.
func NewOverlayHub(log zerolog.Logger) *OverlayHub {
	return &OverlayHub{
		log:     log,
		clients: make(map[*overlayClient]struct{}),
	}
}

// Publish sends ov to every connected client.
func (h *OverlayHub) Publish(ov screening.Overlay) {
	msg, err := json.Marshal(ov)
	if err != nil {
		h.log.Warn().Err(err).Msg("failed to encode overlay")
		return
	}

	h.mu.Lock()
	h.last = msg
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
		}
	}
	h.mu.Unlock()
}

// Clients returns the number of connected clients.
func (h *OverlayHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and rejects new ones.
func (h *OverlayHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *OverlayHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade error")
		return
	}

	c := &overlayClient{conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	if h.last != nil {
		c.send <- h.last
	}
	h.mu.Unlock()

	h.log.Debug().Str("remote", r.RemoteAddr).Msg("overlay client connected")

	go h.writePump(c)
	h.readPump(c)
}

func (h *OverlayHub) remove(c *overlayClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// readPump discards client messages and detects disconnects.
func (h *OverlayHub) readPump(c *overlayClient) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *OverlayHub) writePump(c *overlayClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
