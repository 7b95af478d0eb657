package app

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"

	"tms/internal/config"
	"tms/internal/handler"
	"tms/internal/logger"
	"tms/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	DispatchHandler *handler.DispatchHandler
	DriverHandler   *handler.DriverHandler
	// IdempotencyStore is nil when redis is disabled.
	IdempotencyStore middleware.ResponseStore
	// Metrics serves /metrics when non-nil.
	Metrics     http.Handler
	NewRelicApp *newrelic.Application
	Logger      logger.Logger
	Config      *config.Config
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(cors.New(corsConfig(deps.Config.Server)))

	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if deps.Metrics != nil && deps.Config.Metrics.Enabled {
		router.GET(deps.Config.Metrics.Path, gin.WrapH(deps.Metrics))
	}

	// API v1 routes.
	v1 := router.Group("/v1")
	if secret := deps.Config.Auth.JWTSecret; secret != "" {
		v1.Use(middleware.Auth(secret, deps.Config.Auth.Issuer))
	}
	v1.Use(middleware.NewRelicAttributes())
	if deps.IdempotencyStore != nil {
		v1.Use(middleware.Idempotency(deps.IdempotencyStore, deps.Logger))
	}
	{
		// Dispatch routes.
		dispatches := v1.Group("/dispatches")
		{
			dispatches.POST("", deps.DispatchHandler.Create)
			dispatches.GET("", deps.DispatchHandler.List)
			dispatches.GET("/:id", deps.DispatchHandler.Get)
			dispatches.POST("/:id/assign", deps.DispatchHandler.Assign)
			dispatches.POST("/:id/unassign", deps.DispatchHandler.Unassign)
			dispatches.POST("/:id/advance", deps.DispatchHandler.Advance)
			dispatches.POST("/:id/cancel", deps.DispatchHandler.Cancel)
			dispatches.DELETE("/:id", deps.DispatchHandler.Delete)
		}

		// Booking routes.
		v1.GET("/bookings/:id/dispatch", deps.DispatchHandler.GetByBooking)

		// Driver routes.
		drivers := v1.Group("/drivers")
		{
			drivers.GET("/available", deps.DriverHandler.ListAvailable)
			drivers.GET("/:id/dispatches", deps.DriverHandler.ListDispatches)
		}
	}

	return router
}

func corsConfig(cfg config.ServerConfig) cors.Config {
	c := cors.DefaultConfig()
	c.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}
	c.AllowHeaders = append(c.AllowHeaders, "Authorization", "Idempotency-Key")
	if origins := cfg.AllowedOrigins(); len(origins) > 0 {
		c.AllowOrigins = origins
	} else {
		c.AllowAllOrigins = true
	}
	return c
}
