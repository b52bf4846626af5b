package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mkorolev/qrlink/internal/middleware"
	"github.com/mkorolev/qrlink/internal/repository"
	"github.com/mkorolev/qrlink/internal/service"
	"github.com/mkorolev/qrlink/internal/webhook"
	"go.uber.org/zap"
)

func NewRouter(
	resolver *service.Resolver,
	processor service.ScanProcessor,
	webhookRepo repository.WebhookRepository,
	rateLimiter *middleware.RateLimiter,
	apiKeyMiddleware gin.HandlerFunc,
	logger *zap.Logger,
) *gin.Engine {
	router := gin.Default()

	// Request logging
	router.Use(func(c *gin.Context) {
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("ip", c.ClientIP()),
		)
		c.Next()
	})

	router.Use(rateLimiter.Middleware())

	resolveHandler := NewResolveHandler(resolver, processor, webhookRepo, logger)
	webhookHandler := NewWebhookHandler(webhookRepo, webhook.NewURLValidator(), logger)

	// Public resolution surface
	router.GET("/r/:code", resolveHandler.Resolve)

	// Refusal and landing routes the resolver redirects to. Rendering is a
	// dashboard concern; these stubs keep the service self-contained.
	registerStubPages(router)

	// API v1 - owner-facing reads
	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", HealthCheck)

		if apiKeyMiddleware != nil {
			v1.Use(apiKeyMiddleware)
		}

		v1.GET("/links/:code/scans/stats", resolveHandler.GetScanStats)
		v1.GET("/links/:code/deliveries", resolveHandler.GetDeliveries)
		v1.POST("/owners/:owner_id/webhooks", webhookHandler.Create)
	}

	return router
}

func registerStubPages(router *gin.Engine) {
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"service": "qrlink"})
	})
	router.GET("/expired", func(c *gin.Context) {
		c.String(http.StatusGone, "This link has expired.")
	})
	router.GET("/not-active", func(c *gin.Context) {
		c.String(http.StatusOK, "This link is not active right now (%s).", c.Query("reason"))
	})
	router.GET("/limit-reached", func(c *gin.Context) {
		c.String(http.StatusOK, "This link has reached its monthly scan limit.")
	})
	router.GET("/unlock/:code", func(c *gin.Context) {
		c.String(http.StatusOK, "This link is password protected.")
	})
	router.GET("/v/:code", func(c *gin.Context) {
		c.String(http.StatusOK, "Content preview for %s.", c.Param("code"))
	})
}
