package handlers

import (
	"net/http"

	"speechd/internal/bootstrap"

	"github.com/gin-gonic/gin"
)

// StatsHandler exposes pool utilization for operational dashboards.
func StatsHandler(deps *bootstrap.AppDependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := gin.H{
			"vad_pool":   deps.VADPool.GetStats(),
			"rate_limit": deps.RateLimiter.GetStats(),
			"speaker_on": deps.Speaker != nil,
		}
		if deps.Speaker != nil {
			stats["speaker"] = deps.Speaker.GetStats()
		}
		c.JSON(http.StatusOK, stats)
	}
}
