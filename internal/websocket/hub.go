package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/cfl-optimizer/internal/optimizer"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS is enforced by the router middleware
	},
}

const MessageTypeProgress = "optimization_progress"

// ProgressMessage reports captain search progress for one session.
type ProgressMessage struct {
	Type      string  `json:"type"`
	SessionID string  `json:"session_id"`
	Completed int     `json:"completed"`
	Total     int     `json:"total"`
	Percent   float64 `json:"percent"`
}

// Client is one websocket connection subscribed to a session.
type Client struct {
	SessionID string
	Conn      *websocket.Conn
	Send      chan []byte
	Hub       *Hub
}

// Hub tracks websocket clients by session id and pushes messages to them.
type Hub struct {
	clients        map[*Client]bool
	sessionClients map[string][]*Client
	register       chan *Client
	unregister     chan *Client
	done           chan struct{}
	logger         *logrus.Logger
	mutex          sync.RWMutex
}

func NewHub(logger *logrus.Logger) *Hub {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Hub{
		clients:        make(map[*Client]bool),
		sessionClients: make(map[string][]*Client),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		done:           make(chan struct{}),
		logger:         logger,
	}
}

// Run handles client registration until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.closeAll()
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			h.sessionClients[client.SessionID] = append(h.sessionClients[client.SessionID], client)
			total := len(h.clients)
			h.mutex.Unlock()

			h.logger.WithFields(logrus.Fields{
				"session_id":    client.SessionID,
				"total_clients": total,
			}).Info("WebSocket client connected")

		case client := <-h.unregister:
			h.mutex.Lock()
			h.remove(client)
			total := len(h.clients)
			h.mutex.Unlock()

			h.logger.WithFields(logrus.Fields{
				"session_id":    client.SessionID,
				"total_clients": total,
			}).Info("WebSocket client disconnected")
		}
	}
}

// remove must be called with the write lock held.
func (h *Hub) remove(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.Send)

	sessionClients := h.sessionClients[client.SessionID]
	for i, c := range sessionClients {
		if c == client {
			h.sessionClients[client.SessionID] = append(sessionClients[:i], sessionClients[i+1:]...)
			break
		}
	}
	if len(h.sessionClients[client.SessionID]) == 0 {
		delete(h.sessionClients, client.SessionID)
	}
}

func (h *Hub) closeAll() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for client := range h.clients {
		h.remove(client)
	}
}

// HandleWebSocket upgrades the request and subscribes it to :session_id.
func (h *Hub) HandleWebSocket(c *gin.Context) {
	sessionID := c.Param("session_id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id is required"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to upgrade WebSocket connection")
		return
	}

	client := &Client{
		SessionID: sessionID,
		Conn:      conn,
		Send:      make(chan []byte, 256),
		Hub:       h,
	}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// SendToSession queues message for every client of sessionID. Clients with a
// full buffer miss the message.
func (h *Hub) SendToSession(sessionID string, message interface{}) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	clients := h.sessionClients[sessionID]
	if len(clients) == 0 {
		return
	}

	data, err := json.Marshal(message)
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal WebSocket message")
		return
	}

	for _, client := range clients {
		select {
		case client.Send <- data:
		default:
			h.logger.WithField("session_id", sessionID).Warn("WebSocket client buffer full, dropping message")
		}
	}
}

// ProgressReporter returns a progress callback that pushes to sessionID.
func (h *Hub) ProgressReporter(sessionID string) optimizer.ProgressFunc {
	return func(done, total int) {
		percent := 0.0
		if total > 0 {
			percent = float64(done) / float64(total) * 100
		}
		h.SendToSession(sessionID, ProgressMessage{
			Type:      MessageTypeProgress,
			SessionID: sessionID,
			Completed: done,
			Total:     total,
			Percent:   percent,
		})
	}
}

// GetConnectionCount returns the total number of active connections.
func (h *Hub) GetConnectionCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.done:
		}
		c.Conn.Close()
	}()

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.WithError(err).Error("WebSocket error")
			}
			return
		}
	}
}

func (c *Client) writePump() {
	defer c.Conn.Close()

	for message := range c.Send {
		if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
			c.Hub.logger.WithError(err).Error("Failed to write WebSocket message")
			return
		}
	}
	_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
}
