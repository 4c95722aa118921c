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

// ProjectService is the slice of services.ProjectService the handlers use
type ProjectService interface {
	List(ctx context.Context, ac *auth.AuthContext) ([]*models.ProjectWithRole, error)
	Create(ctx context.Context, ac *auth.AuthContext, in services.CreateProjectInput) (*models.Project, error)
	Get(ctx context.Context, ac *auth.AuthContext, projectID string) (*models.Project, error)
	Update(ctx context.Context, ac *auth.AuthContext, projectID string, in services.UpdateProjectInput) (*models.Project, error)
	Delete(ctx context.Context, ac *auth.AuthContext, projectID string) error
	ListMembers(ctx context.Context, ac *auth.AuthContext, projectID string) ([]*models.ProjectMemberWithUser, error)
	AddMember(ctx context.Context, ac *auth.AuthContext, projectID string, in services.AddMemberInput) (*models.ProjectMember, error)
	UpdateMemberRole(ctx context.Context, ac *auth.AuthContext, projectID, userID, role string) error
	RemoveMember(ctx context.Context, ac *auth.AuthContext, projectID, userID string) error
}

// ProjectHandlers handles project and membership endpoints
type ProjectHandlers struct {
	projects ProjectService
}

// NewProjectHandlers creates a new ProjectHandlers instance
func NewProjectHandlers(projects ProjectService) *ProjectHandlers {
	return &ProjectHandlers{projects: projects}
}

// UpdateMemberRequest changes a member's role
type UpdateMemberRequest struct {
	Role string `json:"role" binding:"required"`
}

// ListProjectsHandler lists the projects visible to the caller.
// A user sees every project they belong to; an API key sees its own project.
// GET /api/v1/projects
func (h *ProjectHandlers) ListProjectsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		projects, err := h.projects.List(c.Request.Context(), middleware.GetAuthContext(c))
		if err != nil {
			respondError(c, err, "Failed to list projects")
			return
		}
		c.JSON(http.StatusOK, gin.H{"projects": projects})
	}
}

// CreateProjectHandler creates a project owned by the calling user
// POST /api/v1/projects
func (h *ProjectHandlers) CreateProjectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req services.CreateProjectInput
		if !bindJSON(c, &req) {
			return
		}
		project, err := h.projects.Create(c.Request.Context(), middleware.GetAuthContext(c), req)
		if err != nil {
			respondError(c, err, "Failed to create project")
			return
		}
		c.JSON(http.StatusCreated, project)
	}
}

// GetProjectHandler returns one project
// GET /api/v1/projects/:projectId
func (h *ProjectHandlers) GetProjectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		project, err := h.projects.Get(c.Request.Context(), middleware.GetAuthContext(c), c.Param("projectId"))
		if err != nil {
			respondError(c, err, "Failed to get project")
			return
		}
		c.JSON(http.StatusOK, project)
	}
}

// UpdateProjectHandler updates a project's name or description
// PATCH /api/v1/projects/:projectId
func (h *ProjectHandlers) UpdateProjectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req services.UpdateProjectInput
		if !bindJSON(c, &req) {
			return
		}
		project, err := h.projects.Update(c.Request.Context(), middleware.GetAuthContext(c), c.Param("projectId"), req)
		if err != nil {
			respondError(c, err, "Failed to update project")
			return
		}
		c.JSON(http.StatusOK, project)
	}
}

// DeleteProjectHandler deletes a project and everything it owns
// DELETE /api/v1/projects/:projectId
func (h *ProjectHandlers) DeleteProjectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.projects.Delete(c.Request.Context(), middleware.GetAuthContext(c), c.Param("projectId")); err != nil {
			respondError(c, err, "Failed to delete project")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Project deleted successfully"})
	}
}

// ListMembersHandler lists project members with their user details
// GET /api/v1/projects/:projectId/members
func (h *ProjectHandlers) ListMembersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		members, err := h.projects.ListMembers(c.Request.Context(), middleware.GetAuthContext(c), c.Param("projectId"))
		if err != nil {
			respondError(c, err, "Failed to list members")
			return
		}
		c.JSON(http.StatusOK, gin.H{"members": members})
	}
}

// AddMemberHandler adds a registered user to the project
// POST /api/v1/projects/:projectId/members
func (h *ProjectHandlers) AddMemberHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req services.AddMemberInput
		if !bindJSON(c, &req) {
			return
		}
		member, err := h.projects.AddMember(c.Request.Context(), middleware.GetAuthContext(c), c.Param("projectId"), req)
		if err != nil {
			respondError(c, err, "Failed to add member")
			return
		}
		c.JSON(http.StatusCreated, member)
	}
}

// UpdateMemberHandler changes a member's role
// PATCH /api/v1/projects/:projectId/members/:userId
func (h *ProjectHandlers) UpdateMemberHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdateMemberRequest
		if !bindJSON(c, &req) {
			return
		}
		err := h.projects.UpdateMemberRole(c.Request.Context(), middleware.GetAuthContext(c), c.Param("projectId"), c.Param("userId"), req.Role)
		if err != nil {
			respondError(c, err, "Failed to update member")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Member updated successfully"})
	}
}

// RemoveMemberHandler removes a member from the project
// DELETE /api/v1/projects/:projectId/members/:userId
func (h *ProjectHandlers) RemoveMemberHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		err := h.projects.RemoveMember(c.Request.Context(), middleware.GetAuthContext(c), c.Param("projectId"), c.Param("userId"))
		if err != nil {
			respondError(c, err, "Failed to remove member")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Member removed successfully"})
	}
}
