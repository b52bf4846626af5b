package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mkorolev/qrlink/internal/models"
	"github.com/mkorolev/qrlink/internal/repository"
	"github.com/mkorolev/qrlink/internal/webhook"
	"go.uber.org/zap"
)

type WebhookHandler struct {
	repo      repository.WebhookRepository
	validator *webhook.URLValidator
	logger    *zap.Logger
}

func NewWebhookHandler(repo repository.WebhookRepository, validator *webhook.URLValidator, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		repo:      repo,
		validator: validator,
		logger:    logger,
	}
}

type CreateWebhookInput struct {
	LinkID *int64   `json:"link_id,omitempty"`
	URL    string   `json:"url" binding:"required"`
	Secret string   `json:"secret" binding:"required"`
	Events []string `json:"events,omitempty"`
}

// Create handles POST /api/v1/owners/:owner_id/webhooks. The callback URL is
// checked before anything is stored; the delivery engine assumes every stored
// URL already passed this gate.
func (h *WebhookHandler) Create(c *gin.Context) {
	ownerID, ok := parseOwnerID(c)
	if !ok {
		return
	}

	var input CreateWebhookInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}

	if err := h.validator.Validate(input.URL); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_url",
			Message: err.Error(),
		})
		return
	}

	events := input.Events
	if len(events) == 0 {
		events = []string{models.EventScan}
	}

	cfg := &models.WebhookConfig{
		LinkID:    input.LinkID,
		OwnerID:   ownerID,
		URL:       input.URL,
		Secret:    input.Secret,
		Active:    true,
		Events:    events,
		CreatedAt: time.Now(),
	}

	if err := h.repo.CreateConfig(c.Request.Context(), cfg); err != nil {
		h.logger.Error("failed to create webhook config", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to register webhook",
		})
		return
	}

	c.JSON(http.StatusCreated, cfg)
}

func parseOwnerID(c *gin.Context) (int64, bool) {
	ownerID, err := strconv.ParseInt(c.Param("owner_id"), 10, 64)
	if err != nil || ownerID <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_owner",
			Message: "Owner ID must be a positive integer",
		})
		return 0, false
	}
	return ownerID, true
}
