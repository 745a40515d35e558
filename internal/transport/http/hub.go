package transporthttp

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"tapeflow/internal/logger"
)

// wsEvent is the wire format pushed to dashboard clients.
type wsEvent struct {
	Kind    string `json:"kind"`
	Time    string `json:"time"`
	Payload any    `json:"payload"`
}

// Hub fans pipeline events out to websocket clients. Each client gets a
// bounded send queue; clients that cannot keep up are disconnected.
type Hub struct {
	mu       sync.Mutex
	clients  map[*client]struct{}
	closed   bool
	upgrader websocket.Upgrader
}

type client struct {
	conn *websocket.Conn
	send chan wsEvent
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Dashboard is same-host tooling; cross-origin is fine.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handle upgrades the request and serves the client until it drops.
func (h *Hub) Handle(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warnf("ws: upgrade failed: %v", err)
		return
	}
	cl := &client{conn: conn, send: make(chan wsEvent, 256)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[cl] = struct{}{}
	h.mu.Unlock()
	logger.Debugf("ws: client connected (%d total)", h.clientCount())

	go h.writeLoop(cl)
	h.readLoop(cl)
}

// Broadcast queues an event for every client; full queues drop the
// client rather than stalling the publisher.
func (h *Hub) Broadcast(kind string, payload any) {
	ev := wsEvent{Kind: kind, Time: time.Now().Format(time.RFC3339Nano), Payload: payload}
	h.mu.Lock()
	defer h.mu.Unlock()
	for cl := range h.clients {
		select {
		case cl.send <- ev:
		default:
			delete(h.clients, cl)
			close(cl.send)
			logger.Warnf("ws: dropping slow client")
		}
	}
}

func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for cl := range h.clients {
		delete(h.clients, cl)
		close(cl.send)
	}
}

func (h *Hub) clientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) writeLoop(cl *client) {
	defer cl.conn.Close()
	for ev := range cl.send {
		_ = cl.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := cl.conn.WriteJSON(ev); err != nil {
			return
		}
	}
	_ = cl.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// readLoop discards inbound frames and detects disconnects.
func (h *Hub) readLoop(cl *client) {
	defer func() {
		h.mu.Lock()
		if _, ok := h.clients[cl]; ok {
			delete(h.clients, cl)
			close(cl.send)
		}
		h.mu.Unlock()
		_ = cl.conn.Close()
	}()
	cl.conn.SetReadLimit(512)
	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			return
		}
	}
}
