package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/msgcore/msgcore-sub001/internal/auth"
	"github.com/msgcore/msgcore-sub001/internal/middleware"
	"github.com/msgcore/msgcore-sub001/internal/services"
)

// PlatformService is the slice of services.PlatformService the handlers use
type PlatformService interface {
	List(ctx context.Context, ac *auth.AuthContext, projectID string) ([]*services.PlatformView, error)
	Get(ctx context.Context, ac *auth.AuthContext, projectID, platformID string) (*services.PlatformView, error)
	Create(ctx context.Context, ac *auth.AuthContext, projectID string, in services.CreatePlatformInput) (*services.PlatformView, error)
	Update(ctx context.Context, ac *auth.AuthContext, projectID, platformID string, in services.UpdatePlatformInput) (*services.PlatformView, error)
	Delete(ctx context.Context, ac *auth.AuthContext, projectID, platformID string) error
}

// PlatformHandlers handles platform integration endpoints
type PlatformHandlers struct {
	platforms PlatformService
}

// NewPlatformHandlers creates a new PlatformHandlers instance
func NewPlatformHandlers(platforms PlatformService) *PlatformHandlers {
	return &PlatformHandlers{platforms: platforms}
}

// ListPlatformsHandler lists the project's integrations
// GET /api/v1/projects/:projectId/platforms
func (h *PlatformHandlers) ListPlatformsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		platforms, err := h.platforms.List(c.Request.Context(), middleware.GetAuthContext(c), c.Param("projectId"))
		if err != nil {
			respondError(c, err, "Failed to list platforms")
			return
		}
		c.JSON(http.StatusOK, gin.H{"platforms": platforms})
	}
}

// GetPlatformHandler returns one integration
// GET /api/v1/projects/:projectId/platforms/:platformId
func (h *PlatformHandlers) GetPlatformHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		platform, err := h.platforms.Get(c.Request.Context(), middleware.GetAuthContext(c), c.Param("projectId"), c.Param("platformId"))
		if err != nil {
			respondError(c, err, "Failed to get platform")
			return
		}
		c.JSON(http.StatusOK, platform)
	}
}

// CreatePlatformHandler configures a new integration. Credentials are sealed before storage.
// POST /api/v1/projects/:projectId/platforms
func (h *PlatformHandlers) CreatePlatformHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req services.CreatePlatformInput
		if !bindJSON(c, &req) {
			return
		}
		platform, err := h.platforms.Create(c.Request.Context(), middleware.GetAuthContext(c), c.Param("projectId"), req)
		if err != nil {
			respondError(c, err, "Failed to create platform")
			return
		}
		c.JSON(http.StatusCreated, platform)
	}
}

// UpdatePlatformHandler updates an integration
// PATCH /api/v1/projects/:projectId/platforms/:platformId
func (h *PlatformHandlers) UpdatePlatformHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req services.UpdatePlatformInput
		if !bindJSON(c, &req) {
			return
		}
		platform, err := h.platforms.Update(c.Request.Context(), middleware.GetAuthContext(c), c.Param("projectId"), c.Param("platformId"), req)
		if err != nil {
			respondError(c, err, "Failed to update platform")
			return
		}
		c.JSON(http.StatusOK, platform)
	}
}

// DeletePlatformHandler removes an integration
// DELETE /api/v1/projects/:projectId/platforms/:platformId
func (h *PlatformHandlers) DeletePlatformHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.platforms.Delete(c.Request.Context(), middleware.GetAuthContext(c), c.Param("projectId"), c.Param("platformId")); err != nil {
			respondError(c, err, "Failed to delete platform")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Platform deleted successfully"})
	}
}
