package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"messenger-service/internal/telemetry"
)

// HubStats reports live connection counts from the websocket hub.
type HubStats interface {
	Stats() (rooms int, clients int)
}

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router *gin.Engine, emitter *telemetry.AuditEmitter, hub HubStats, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), "INFO", "audit test", requestIDFromContext(c), userIDFromContext(c))
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/debug/ws-stats", func(c *gin.Context) {
		rooms, clients := hub.Stats()
		c.JSON(http.StatusOK, gin.H{"rooms": rooms, "clients": clients})
	})
}
