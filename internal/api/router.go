// Package api is the HTTP layer: job submission and polling routes, WebSocket
// progress streams, health and metrics.
package api

import (
	"github.com/Sternrassler/vidmeta/pkg/logging"
	"github.com/Sternrassler/vidmeta/pkg/metrics"
	"github.com/gin-gonic/gin"
)

// RouterConfig configures NewRouter.
type RouterConfig struct {
	// CORSOrigins is a comma separated origin list ("*" = any)
	CORSOrigins string

	// DefaultBackend is used when a submission names no backend
	DefaultBackend string

	// Ready backs GET /ready (nil = always ready)
	Ready ReadyCheck

	// Quota adds the API quota state to GET /health when set
	Quota QuotaSource
}

// NewRouter builds the gin engine with every route.
func NewRouter(service JobService, hub *Hub, cfg RouterConfig) *gin.Engine {
	logger := logging.NewLogger("http")

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(logger))
	r.Use(CORS(cfg.CORSOrigins))

	jobHandler := NewJobHandler(service, hub, cfg.DefaultBackend, logger)
	healthHandler := NewHealthHandler(service, hub, cfg.Ready, cfg.Quota)
	setupRoutes(r, jobHandler, healthHandler)
	return r
}

func setupRoutes(r *gin.Engine, jobHandler *JobHandler, healthHandler *HealthHandler) {
	r.GET("/health", healthHandler.HealthCheck)
	r.GET("/ready", healthHandler.Ready)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	jobsGroup := r.Group("/jobs")
	{
		jobsGroup.POST("", jobHandler.Submit)
		jobsGroup.GET("", jobHandler.List)
		jobsGroup.GET("/:id", jobHandler.Status)
		jobsGroup.GET("/:id/results", jobHandler.Results)
		jobsGroup.GET("/:id/ws", jobHandler.Subscribe)
	}
	r.GET("/ws", jobHandler.SubscribeAll)

	// Route names of the first release.
	r.POST("/scrape", jobHandler.Submit)
	r.GET("/status/:id", jobHandler.Status)
	r.GET("/results/:id", jobHandler.Results)
}
