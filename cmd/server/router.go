package main

import (
	"net/http"

	"github.com/GoPolymarket/neogate/internal/config"
	"github.com/GoPolymarket/neogate/internal/handler"
	"github.com/GoPolymarket/neogate/internal/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type auditService interface {
	middleware.AuditSink
	handler.AuditLister
}

type routerDeps struct {
	trading     handler.TradingAPI
	audit       auditService
	idempotency middleware.IdempotencyStore
	rateLimiter *middleware.RateLimiter
}

func newRouter(cfg *config.Config, deps routerDeps) *gin.Engine {
	r := gin.New()

	// Global Middleware
	r.Use(gin.Recovery())
	r.Use(middleware.MetricsMiddleware())
	r.Use(middleware.AuditMiddleware(deps.audit))
	r.Use(middleware.ErrorHandler())

	// Health Check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "neogate"})
	})

	// Metrics Endpoint
	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	orderHandler := handler.NewOrderHandler(deps.trading, cfg.Order.DefaultProduct)
	sessionHandler := handler.NewSessionHandler(deps.trading)
	auditHandler := handler.NewAuditHandler(deps.audit)

	// API V1 Routes
	v1 := r.Group("/v1")
	v1.Use(middleware.AuthMiddleware(cfg.Server.APIKey))
	v1.Use(middleware.RateLimitMiddleware(deps.rateLimiter))
	v1.Use(middleware.ReadOnlyMiddleware(cfg.Server.ReadOnly))
	{
		v1.POST("/orders", middleware.IdempotencyMiddleware(deps.idempotency), orderHandler.PlaceOrder)
		v1.GET("/session", sessionHandler.Status)
	}

	admin := v1.Group("")
	admin.Use(middleware.AdminMiddleware(cfg.Server.AdminKey))
	{
		admin.POST("/session", sessionHandler.Login)
		admin.DELETE("/session", sessionHandler.Logout)
		admin.GET("/audit", auditHandler.List)
	}

	return r
}
