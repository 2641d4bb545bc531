package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const serviceName = "cfl-optimizer"

// Pinger is satisfied by *database.DB.
type Pinger interface {
	HealthCheck() error
}

type ConnectionCounter interface {
	GetConnectionCount() int
}

type HealthStatus struct {
	Status      string            `json:"status"`
	Service     string            `json:"service"`
	Timestamp   time.Time         `json:"timestamp"`
	Backend     string            `json:"backend"`
	Connections int               `json:"websocket_connections"`
	Checks      map[string]string `json:"checks"`
}

type HealthHandler struct {
	db      Pinger
	redis   *redis.Client
	ws      ConnectionCounter
	backend string
}

// NewHealthHandler builds the handler. db, redisClient and ws may be nil.
func NewHealthHandler(db Pinger, redisClient *redis.Client, ws ConnectionCounter, backend string) *HealthHandler {
	return &HealthHandler{db: db, redis: redisClient, ws: ws, backend: backend}
}

// GetHealth reports "healthy" unless a configured dependency fails, in which
// case the service is "degraded" but still able to optimize.
func (h *HealthHandler) GetHealth(c *gin.Context) {
	response := HealthStatus{
		Status:    "healthy",
		Service:   serviceName,
		Timestamp: time.Now(),
		Backend:   h.backend,
		Checks:    make(map[string]string),
	}

	if h.db != nil {
		if err := h.db.HealthCheck(); err != nil {
			response.Status = "degraded"
			response.Checks["database"] = "failed: " + err.Error()
		} else {
			response.Checks["database"] = "ok"
		}
	} else {
		response.Checks["database"] = "not_configured"
	}

	if h.redis != nil {
		if err := h.redis.Ping(c.Request.Context()).Err(); err != nil {
			response.Status = "degraded"
			response.Checks["cache"] = "failed: " + err.Error()
		} else {
			response.Checks["cache"] = "redis"
		}
	} else {
		response.Checks["cache"] = "memory"
	}

	if h.ws != nil {
		response.Connections = h.ws.GetConnectionCount()
	}

	c.JSON(http.StatusOK, response)
}
