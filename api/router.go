package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/farelens/farelens/api/handler"
	"github.com/farelens/farelens/api/middleware"
	"github.com/farelens/farelens/config"
	"github.com/farelens/farelens/selector"
	"github.com/farelens/farelens/store"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health endpoint is intentionally outside auth so monitoring probes always
// work. st may be nil when persistence is disabled; /offers then responds 503.
func NewRouter(sc handler.Searcher, hm *selector.HealthMonitor, st *store.Store, cfg *config.Config, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")

	// Health endpoint stays unauthenticated for probes.
	v1.GET("/health", handler.Health(sc, startTime))

	// Everything else sits behind auth and rate limiting.
	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	// Flight search
	protected.POST("/search", handler.Search(sc))

	// Stored offers
	protected.GET("/offers", handler.Offers(st))

	// Selector health
	protected.GET("/report", handler.Report(hm))
	protected.POST("/alerts/clear", handler.ClearAlerts(hm))

	return r
}
