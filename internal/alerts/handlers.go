package alerts

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fraudguard-io/fraudguard/internal/idgen"
	"github.com/fraudguard-io/fraudguard/internal/security"
)

// Handler provides HTTP endpoints for webhook subscription management.
type Handler struct {
	store SubscriptionStore
}

// NewHandler creates a webhook subscription handler.
func NewHandler(store SubscriptionStore) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes sets up webhook routes on the API group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/webhooks", h.CreateWebhook)
	r.GET("/webhooks", h.ListWebhooks)
	r.DELETE("/webhooks/:webhookId", h.DeleteWebhook)
}

// CreateWebhookRequest registers a webhook sink.
type CreateWebhookRequest struct {
	URL        string   `json:"url" binding:"required"`
	AlertTypes []string `json:"alert_types"`
}

// CreateWebhook handles POST /api/v1/webhooks.
func (h *Handler) CreateWebhook(c *gin.Context) {
	var req CreateWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if err := security.ValidateEndpointURL(req.URL); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_url",
			"message": err.Error(),
		})
		return
	}

	for _, t := range req.AlertTypes {
		if t != TypeFraudDetected && t != TypeHighRisk {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_alert_type",
				"message": "alert_types must contain only FRAUD_DETECTED or HIGH_RISK",
			})
			return
		}
	}

	secret := idgen.Hex(32)
	sub := &Subscription{
		ID:         idgen.WithPrefix("wh_"),
		URL:        req.URL,
		Secret:     secret,
		AlertTypes: req.AlertTypes,
		Active:     true,
		CreatedAt:  time.Now().UTC(),
	}

	if err := h.store.Create(c.Request.Context(), sub); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "create_failed",
			"message": "Failed to create webhook",
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"webhook": sub,
		"secret":  secret, // Only shown once
		"usage": gin.H{
			"signature": "Verify with HMAC-SHA256(payload, secret)",
			"header":    "X-FraudGuard-Signature",
		},
	})
}

// ListWebhooks handles GET /api/v1/webhooks.
func (h *Handler) ListWebhooks(c *gin.Context) {
	subs, err := h.store.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "list_failed",
			"message": "Failed to list webhooks",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"webhooks": subs})
}

// DeleteWebhook handles DELETE /api/v1/webhooks/:webhookId.
func (h *Handler) DeleteWebhook(c *gin.Context) {
	err := h.store.Delete(c.Request.Context(), c.Param("webhookId"))
	if errors.Is(err, ErrSubscriptionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Webhook not found",
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "delete_failed",
			"message": "Failed to delete webhook",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "deleted",
		"message": "Webhook deleted",
	})
}
