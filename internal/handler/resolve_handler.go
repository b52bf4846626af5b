package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mkorolev/qrlink/internal/models"
	"github.com/mkorolev/qrlink/internal/repository"
	"github.com/mkorolev/qrlink/internal/service"
	"go.uber.org/zap"
)

type ResolveHandler struct {
	resolver    *service.Resolver
	processor   service.ScanProcessor
	webhookRepo repository.WebhookRepository
	logger      *zap.Logger
}

func NewResolveHandler(
	resolver *service.Resolver,
	processor service.ScanProcessor,
	webhookRepo repository.WebhookRepository,
	logger *zap.Logger,
) *ResolveHandler {
	return &ResolveHandler{
		resolver:    resolver,
		processor:   processor,
		webhookRepo: webhookRepo,
		logger:      logger,
	}
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Resolve handles GET /r/:code. Whatever the gates decide, the visitor gets
// a redirect; recording happens off this path and cannot change the outcome.
func (h *ResolveHandler) Resolve(c *gin.Context) {
	code := c.Param("code")
	if code == "" {
		c.Redirect(http.StatusFound, "/")
		return
	}

	req := &models.ScanRequest{
		ShortCode: code,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		Referrer:  c.Request.Referer(),
	}

	resolution := h.resolver.Resolve(c.Request.Context(), code, req)

	h.logger.Debug("resolved visit",
		zap.String("code", code),
		zap.String("outcome", string(resolution.Outcome)),
	)

	c.Redirect(http.StatusFound, resolution.TargetURL)
}

// GetScanStats handles GET /api/v1/links/:code/scans/stats.
func (h *ResolveHandler) GetScanStats(c *gin.Context) {
	code := c.Param("code")

	stats, err := h.processor.GetStats(c.Request.Context(), code)
	if err != nil {
		h.logger.Warn("failed to get scan stats", zap.String("code", code), zap.Error(err))
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "Link not found",
		})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// GetDeliveries handles GET /api/v1/links/:code/deliveries. Terminal
// failures stay visible here; they are never retried.
func (h *ResolveHandler) GetDeliveries(c *gin.Context) {
	code := c.Param("code")

	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}

	deliveries, err := h.webhookRepo.GetDeliveriesByLink(c.Request.Context(), code, limit)
	if err != nil {
		h.logger.Warn("failed to get deliveries", zap.String("code", code), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to load delivery history",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"deliveries": deliveries})
}

// HealthCheck reports service liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "qrlink",
	})
}
