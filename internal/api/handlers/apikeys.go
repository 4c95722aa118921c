package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/msgcore/msgcore-sub001/internal/auth"
	"github.com/msgcore/msgcore-sub001/internal/db/models"
	"github.com/msgcore/msgcore-sub001/internal/middleware"
	"github.com/msgcore/msgcore-sub001/internal/services"
)

// APIKeyService is the slice of services.APIKeyService the handlers use
type APIKeyService interface {
	List(ctx context.Context, ac *auth.AuthContext, projectID string) ([]*models.APIKey, error)
	Create(ctx context.Context, ac *auth.AuthContext, projectID string, in services.CreateAPIKeyInput) (*services.IssuedAPIKey, error)
	Revoke(ctx context.Context, ac *auth.AuthContext, projectID, keyID string) error
	Roll(ctx context.Context, ac *auth.AuthContext, projectID, keyID string) (*services.RolledAPIKey, error)
}

// APIKeyHandlers handles API key management endpoints
type APIKeyHandlers struct {
	keys APIKeyService
}

// NewAPIKeyHandlers creates a new APIKeyHandlers instance
func NewAPIKeyHandlers(keys APIKeyService) *APIKeyHandlers {
	return &APIKeyHandlers{keys: keys}
}

// APIKeyResponse is the listing shape of a key. The hash never leaves the server.
type APIKeyResponse struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	KeyPrefix  string     `json:"key_prefix"`
	KeySuffix  string     `json:"key_suffix"`
	Scopes     []string   `json:"scopes"`
	CreatedBy  *string    `json:"created_by"`
	ExpiresAt  *time.Time `json:"expires_at"`
	RevokedAt  *time.Time `json:"revoked_at"`
	LastUsedAt *time.Time `json:"last_used_at"`
	CreatedAt  time.Time  `json:"created_at"`
}

func newAPIKeyResponse(k *models.APIKey) APIKeyResponse {
	return APIKeyResponse{
		ID:         k.ID,
		Name:       k.Name,
		KeyPrefix:  k.KeyPrefix,
		KeySuffix:  k.KeySuffix,
		Scopes:     k.Scopes,
		CreatedBy:  k.CreatedBy,
		ExpiresAt:  k.ExpiresAt,
		RevokedAt:  k.RevokedAt,
		LastUsedAt: k.LastUsedAt,
		CreatedAt:  k.CreatedAt,
	}
}

// ListAPIKeysHandler lists every key of the project, revoked ones included
// GET /api/v1/projects/:projectId/keys
func (h *APIKeyHandlers) ListAPIKeysHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		keys, err := h.keys.List(c.Request.Context(), middleware.GetAuthContext(c), c.Param("projectId"))
		if err != nil {
			respondError(c, err, "Failed to list API keys")
			return
		}

		resp := make([]APIKeyResponse, 0, len(keys))
		for _, k := range keys {
			resp = append(resp, newAPIKeyResponse(k))
		}
		c.JSON(http.StatusOK, gin.H{"keys": resp})
	}
}

// CreateAPIKeyHandler issues a new key. The plaintext key is only returned here.
// POST /api/v1/projects/:projectId/keys
func (h *APIKeyHandlers) CreateAPIKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req services.CreateAPIKeyInput
		if !bindJSON(c, &req) {
			return
		}
		issued, err := h.keys.Create(c.Request.Context(), middleware.GetAuthContext(c), c.Param("projectId"), req)
		if err != nil {
			respondError(c, err, "Failed to create API key")
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"key":     issued.Key,
			"api_key": newAPIKeyResponse(issued.APIKey),
		})
	}
}

// RevokeAPIKeyHandler revokes a key immediately
// DELETE /api/v1/projects/:projectId/keys/:keyId
func (h *APIKeyHandlers) RevokeAPIKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.keys.Revoke(c.Request.Context(), middleware.GetAuthContext(c), c.Param("projectId"), c.Param("keyId")); err != nil {
			respondError(c, err, "Failed to revoke API key")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "API key revoked successfully"})
	}
}

// RollAPIKeyHandler replaces a key. The old key keeps working for the grace period.
// POST /api/v1/projects/:projectId/keys/:keyId/roll
func (h *APIKeyHandlers) RollAPIKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		rolled, err := h.keys.Roll(c.Request.Context(), middleware.GetAuthContext(c), c.Param("projectId"), c.Param("keyId"))
		if err != nil {
			respondError(c, err, "Failed to roll API key")
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"key":                rolled.Key,
			"api_key":            newAPIKeyResponse(rolled.APIKey),
			"old_key_id":         rolled.OldKeyID,
			"old_key_revokes_at": rolled.OldKeyRevokesAt,
		})
	}
}
