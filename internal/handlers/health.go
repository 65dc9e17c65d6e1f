// Package handlers implements the small set of operational HTTP endpoints
// (health, stats) alongside the WebSocket transcription route.
package handlers

import (
	"net/http"

	"speechd/internal/bootstrap"

	"github.com/gin-gonic/gin"
)

// HealthHandler reports liveness for load balancers and orchestrators.
func HealthHandler(deps *bootstrap.AppDependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"vad":    deps.Config.VAD.Provider,
		})
	}
}
