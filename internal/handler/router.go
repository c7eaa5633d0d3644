package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/starfire-ai/kbase/internal/middleware"
	"github.com/starfire-ai/kbase/internal/service"
)

type RouterDeps struct {
	Auth           *AuthHandler
	AuthService    *service.AuthService
	Ingest         *IngestHandler
	Visualizations *VisualizationHandler
	Status         *StatusHandler
	WS             *WSHandler
	GenerateWindow time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.GET("/healthcheck", deps.Status.Health)

	// The websocket upgrade authenticates with a ticket, not the api key.
	api.GET("/ws/query", deps.WS.HandleQuery)

	keyGroup := api.Group("")
	keyGroup.Use(middleware.APIKeyAuth(deps.AuthService))
	keyGroup.POST("/auth/ws-ticket", deps.Auth.Ticket)
	keyGroup.GET("/status", deps.Status.Status)

	keyGroup.POST("/ingest", deps.Ingest.Upload)
	keyGroup.GET("/ingest", deps.Ingest.List)
	keyGroup.GET("/ingest/file", deps.Ingest.GetFile)

	generateGroup := keyGroup.Group("")
	generateGroup.Use(middleware.RateLimit(deps.GenerateWindow))
	generateGroup.POST("/visualize/generate", deps.Visualizations.Generate)

	keyGroup.GET("/visualize", deps.Visualizations.List)
	keyGroup.GET("/visualize/:id", deps.Visualizations.Get)
	keyGroup.DELETE("/visualize/:id", deps.Visualizations.Delete)
	keyGroup.POST("/visualize/:id/report", deps.Visualizations.ExportReport)
	keyGroup.GET("/reports/*key", deps.Visualizations.DownloadReport)
}
