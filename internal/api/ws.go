package api

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"escalation-service/internal/logging"
	"escalation-service/internal/models"
)

// Hub fans delivery-attempt outcomes out to connected operator consoles.
// It implements escalation.AttemptPublisher.
type Hub struct {
	mu     sync.Mutex
	conns  map[*websocket.Conn]bool
	logger *logging.Logger
}

func NewHub(logger *logging.Logger) *Hub {
	return &Hub{conns: make(map[*websocket.Conn]bool), logger: logger}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Operator consoles are served from other origins in development.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Serve upgrades the request and holds the connection open until the client
// goes away.
func (h *Hub) Serve(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade failed: %v", err)
		return
	}
	h.add(conn)
	defer h.remove(conn)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) add(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.conns) >= 50 {
		h.logger.Warnf("Max operator connections reached, rejecting")
		conn.Close()
		return
	}
	h.conns[conn] = true
	h.logger.Infof("Operator console connected (total: %d)", len(h.conns))
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, conn)
	conn.Close()
}

// PublishAttempt broadcasts one attempt outcome to every console.
func (h *Hub) PublishAttempt(attempt models.DeliveryAttempt) {
	payload, err := json.Marshal(attempt)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.logger.Errorf("WebSocket write failed, dropping connection: %v", err)
			conn.Close()
			delete(h.conns, conn)
		}
	}
}
