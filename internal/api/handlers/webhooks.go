package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/msgcore/msgcore-sub001/internal/auth"
	"github.com/msgcore/msgcore-sub001/internal/db/models"
	"github.com/msgcore/msgcore-sub001/internal/middleware"
	"github.com/msgcore/msgcore-sub001/internal/services"
)

// WebhookService is the slice of services.WebhookService the handlers use
type WebhookService interface {
	List(ctx context.Context, ac *auth.AuthContext, projectID string) ([]*models.Webhook, error)
	Get(ctx context.Context, ac *auth.AuthContext, projectID, webhookID string) (*models.Webhook, error)
	Create(ctx context.Context, ac *auth.AuthContext, projectID string, in services.CreateWebhookInput) (*services.CreatedWebhook, error)
	Update(ctx context.Context, ac *auth.AuthContext, projectID, webhookID string, in services.UpdateWebhookInput) (*models.Webhook, error)
	Delete(ctx context.Context, ac *auth.AuthContext, projectID, webhookID string) error
}

// WebhookHandlers handles webhook subscription endpoints
type WebhookHandlers struct {
	webhooks WebhookService
}

// NewWebhookHandlers creates a new WebhookHandlers instance
func NewWebhookHandlers(webhooks WebhookService) *WebhookHandlers {
	return &WebhookHandlers{webhooks: webhooks}
}

// ListWebhooksHandler lists the project's subscriptions
// GET /api/v1/projects/:projectId/webhooks
func (h *WebhookHandlers) ListWebhooksHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		webhooks, err := h.webhooks.List(c.Request.Context(), middleware.GetAuthContext(c), c.Param("projectId"))
		if err != nil {
			respondError(c, err, "Failed to list webhooks")
			return
		}
		c.JSON(http.StatusOK, gin.H{"webhooks": webhooks})
	}
}

// GetWebhookHandler returns one subscription
// GET /api/v1/projects/:projectId/webhooks/:webhookId
func (h *WebhookHandlers) GetWebhookHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		webhook, err := h.webhooks.Get(c.Request.Context(), middleware.GetAuthContext(c), c.Param("projectId"), c.Param("webhookId"))
		if err != nil {
			respondError(c, err, "Failed to get webhook")
			return
		}
		c.JSON(http.StatusOK, webhook)
	}
}

// CreateWebhookHandler creates a subscription. The signing secret is only returned here.
// POST /api/v1/projects/:projectId/webhooks
func (h *WebhookHandlers) CreateWebhookHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req services.CreateWebhookInput
		if !bindJSON(c, &req) {
			return
		}
		created, err := h.webhooks.Create(c.Request.Context(), middleware.GetAuthContext(c), c.Param("projectId"), req)
		if err != nil {
			respondError(c, err, "Failed to create webhook")
			return
		}
		c.JSON(http.StatusCreated, created)
	}
}

// UpdateWebhookHandler updates a subscription
// PATCH /api/v1/projects/:projectId/webhooks/:webhookId
func (h *WebhookHandlers) UpdateWebhookHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req services.UpdateWebhookInput
		if !bindJSON(c, &req) {
			return
		}
		webhook, err := h.webhooks.Update(c.Request.Context(), middleware.GetAuthContext(c), c.Param("projectId"), c.Param("webhookId"), req)
		if err != nil {
			respondError(c, err, "Failed to update webhook")
			return
		}
		c.JSON(http.StatusOK, webhook)
	}
}

// DeleteWebhookHandler removes a subscription
// DELETE /api/v1/projects/:projectId/webhooks/:webhookId
func (h *WebhookHandlers) DeleteWebhookHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.webhooks.Delete(c.Request.Context(), middleware.GetAuthContext(c), c.Param("projectId"), c.Param("webhookId")); err != nil {
			respondError(c, err, "Failed to delete webhook")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Webhook deleted successfully"})
	}
}
