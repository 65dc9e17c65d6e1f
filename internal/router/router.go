package router

import (
	"path/filepath"

	"speechd/internal/bootstrap"
	"speechd/internal/handlers"
	"speechd/internal/middleware"
	"speechd/internal/offline"
	"speechd/internal/speaker"
	"speechd/internal/ws"

	"github.com/gin-gonic/gin"
)

// NewRouter creates and configures the router with all routes. Dependencies
// are explicitly injected through AppDependencies.
func NewRouter(deps *bootstrap.AppDependencies) *gin.Engine {
	ginRouter := gin.New()

	ginRouter.Use(middleware.RequestID())
	ginRouter.Use(middleware.Logger())
	ginRouter.Use(gin.Recovery())

	wsHandler := ws.NewHandler(deps.Config, deps.VAD, deps.ASR, deps.SV)

	ginRouter.GET("/ws/transcribe", func(c *gin.Context) {
		wsHandler.HandleWebSocket(c.Writer, c.Request)
	})
	ginRouter.GET("/health", handlers.HealthHandler(deps))
	ginRouter.GET("/stats", handlers.StatsHandler(deps))

	if deps.Speaker != nil {
		speaker.NewHandler(deps.Speaker, deps.Config).RegisterRoutes(ginRouter)
	}

	uploadDir := filepath.Join(filepath.Dir(deps.Config.Store.DSN), "recordings")
	offline.NewHandler(deps.Offline, deps.Store, uploadDir).RegisterRoutes(ginRouter)

	return ginRouter
}
