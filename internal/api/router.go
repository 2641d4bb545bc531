package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/cfl-optimizer/internal/api/handlers"
	"github.com/stitts-dev/cfl-optimizer/internal/websocket"
	"github.com/stitts-dev/cfl-optimizer/pkg/utils"
)

type Handlers struct {
	Optimizer *handlers.OptimizerHandler
	Pool      *handlers.PoolHandler
	Health    *handlers.HealthHandler
	Hub       *websocket.Hub
}

// NewRouter builds the gin engine with middleware and all routes.
func NewRouter(h Handlers, corsOrigins []string, logger *logrus.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if logger != nil {
		router.Use(gin.LoggerWithWriter(logger.Writer()))
	}
	router.Use(corsMiddleware(corsOrigins))

	router.NoRoute(func(c *gin.Context) {
		utils.SendNotFound(c, "Endpoint not found")
	})

	SetupRoutes(router, h)
	return router
}

// SetupRoutes registers every endpoint on router.
func SetupRoutes(router *gin.Engine, h Handlers) {
	router.GET("/health", h.Health.GetHealth)

	apiV1 := router.Group("/api/v1")
	{
		apiV1.POST("/optimize", h.Optimizer.OptimizeLineup)
		apiV1.POST("/optimize/multiple", h.Optimizer.OptimizeMultiple)
		apiV1.POST("/load-data", h.Pool.LoadData)
		apiV1.GET("/player-stats", h.Pool.PlayerStats)
	}

	if h.Hub != nil {
		router.GET("/ws/progress/:session_id", h.Hub.HandleWebSocket)
	}
}

// corsMiddleware allows the configured origins; "*" allows any.
func corsMiddleware(origins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (allowed["*"] || allowed[origin]) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")
			c.Writer.Header().Add("Vary", "Origin")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
