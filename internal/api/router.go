package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"escalation-service/internal/config"
	"escalation-service/internal/logging"
)

func NewRouter(h *Handler, hub *Hub, logger *logging.Logger, cfg config.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLoggingMiddleware(logger))

	api := r.Group(cfg.API.BasePath)
	{
		// Escalation lifecycle
		api.POST("/alerts/:id/escalate", h.InitiateEscalation)
		api.POST("/alerts/:id/acknowledge", h.AcknowledgeAlert)
		api.GET("/alerts/:id/attempts", h.GetEscalationMatrix)
		api.POST("/alerts/:id/broadcast", h.Broadcast)

		// Operational visibility
		api.GET("/queue/stats", h.GetQueueStats)
		api.GET("/breakers", h.GetBreakers)
		api.POST("/breakers/:name/reset", h.ResetBreaker)
	}

	// Live attempt feed for operator consoles
	r.GET("/ws/attempts", hub.Serve)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}
