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

// IdentityService is the slice of services.IdentityService the handlers use
type IdentityService interface {
	List(ctx context.Context, ac *auth.AuthContext, projectID string, page services.Page) ([]models.Identity, error)
	Get(ctx context.Context, ac *auth.AuthContext, projectID, identityID string) (*models.Identity, error)
	Create(ctx context.Context, ac *auth.AuthContext, projectID string, in services.CreateIdentityInput) (*models.Identity, error)
	Update(ctx context.Context, ac *auth.AuthContext, projectID, identityID string, in services.UpdateIdentityInput) (*models.Identity, error)
	Delete(ctx context.Context, ac *auth.AuthContext, projectID, identityID string) error
	AddAlias(ctx context.Context, ac *auth.AuthContext, projectID, identityID string, in services.AliasInput) (*models.IdentityAlias, error)
	RemoveAlias(ctx context.Context, ac *auth.AuthContext, projectID, identityID, aliasID string) error
	Lookup(ctx context.Context, ac *auth.AuthContext, projectID, platformID, providerUserID string) (*models.Identity, error)
}

// IdentityHandlers handles identity and alias endpoints
type IdentityHandlers struct {
	identities IdentityService
}

// NewIdentityHandlers creates a new IdentityHandlers instance
func NewIdentityHandlers(identities IdentityService) *IdentityHandlers {
	return &IdentityHandlers{identities: identities}
}

// ListIdentitiesHandler lists identities page by page
// GET /api/v1/projects/:projectId/identities?limit=&offset=
func (h *IdentityHandlers) ListIdentitiesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, ok := parsePage(c)
		if !ok {
			return
		}
		identities, err := h.identities.List(c.Request.Context(), middleware.GetAuthContext(c), c.Param("projectId"), page)
		if err != nil {
			respondError(c, err, "Failed to list identities")
			return
		}
		c.JSON(http.StatusOK, gin.H{"identities": identities})
	}
}

// GetIdentityHandler returns one identity with its aliases
// GET /api/v1/projects/:projectId/identities/:identityId
func (h *IdentityHandlers) GetIdentityHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ident, err := h.identities.Get(c.Request.Context(), middleware.GetAuthContext(c), c.Param("projectId"), c.Param("identityId"))
		if err != nil {
			respondError(c, err, "Failed to get identity")
			return
		}
		c.JSON(http.StatusOK, ident)
	}
}

// CreateIdentityHandler creates an identity, optionally with initial aliases
// POST /api/v1/projects/:projectId/identities
func (h *IdentityHandlers) CreateIdentityHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req services.CreateIdentityInput
		if !bindJSON(c, &req) {
			return
		}
		ident, err := h.identities.Create(c.Request.Context(), middleware.GetAuthContext(c), c.Param("projectId"), req)
		if err != nil {
			respondError(c, err, "Failed to create identity")
			return
		}
		c.JSON(http.StatusCreated, ident)
	}
}

// UpdateIdentityHandler updates an identity's profile fields
// PATCH /api/v1/projects/:projectId/identities/:identityId
func (h *IdentityHandlers) UpdateIdentityHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req services.UpdateIdentityInput
		if !bindJSON(c, &req) {
			return
		}
		ident, err := h.identities.Update(c.Request.Context(), middleware.GetAuthContext(c), c.Param("projectId"), c.Param("identityId"), req)
		if err != nil {
			respondError(c, err, "Failed to update identity")
			return
		}
		c.JSON(http.StatusOK, ident)
	}
}

// DeleteIdentityHandler deletes an identity and its aliases
// DELETE /api/v1/projects/:projectId/identities/:identityId
func (h *IdentityHandlers) DeleteIdentityHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.identities.Delete(c.Request.Context(), middleware.GetAuthContext(c), c.Param("projectId"), c.Param("identityId")); err != nil {
			respondError(c, err, "Failed to delete identity")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Identity deleted successfully"})
	}
}

// AddAliasHandler links a platform user to an identity
// POST /api/v1/projects/:projectId/identities/:identityId/aliases
func (h *IdentityHandlers) AddAliasHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req services.AliasInput
		if !bindJSON(c, &req) {
			return
		}
		alias, err := h.identities.AddAlias(c.Request.Context(), middleware.GetAuthContext(c), c.Param("projectId"), c.Param("identityId"), req)
		if err != nil {
			respondError(c, err, "Failed to add alias")
			return
		}
		c.JSON(http.StatusCreated, alias)
	}
}

// RemoveAliasHandler unlinks a platform user
// DELETE /api/v1/projects/:projectId/identities/:identityId/aliases/:aliasId
func (h *IdentityHandlers) RemoveAliasHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		err := h.identities.RemoveAlias(c.Request.Context(), middleware.GetAuthContext(c), c.Param("projectId"), c.Param("identityId"), c.Param("aliasId"))
		if err != nil {
			respondError(c, err, "Failed to remove alias")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Alias removed successfully"})
	}
}

// LookupIdentityHandler finds the identity linked to a platform user
// GET /api/v1/projects/:projectId/identities/lookup?platform_id=&provider_user_id=
func (h *IdentityHandlers) LookupIdentityHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		platformID := c.Query("platform_id")
		providerUserID := c.Query("provider_user_id")
		if platformID == "" || providerUserID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "platform_id and provider_user_id are required"})
			return
		}
		ident, err := h.identities.Lookup(c.Request.Context(), middleware.GetAuthContext(c), c.Param("projectId"), platformID, providerUserID)
		if err != nil {
			respondError(c, err, "Failed to look up identity")
			return
		}
		c.JSON(http.StatusOK, ident)
	}
}
