// project.go implements the request-level project access guard.
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/msgcore/msgcore-sub001/internal/auth"
	"github.com/msgcore/msgcore-sub001/internal/db/models"
)

// ProjectParam is the route parameter that names the target project
const ProjectParam = "projectId"

// rowIDParams are the nested route parameters holding row UUIDs, with the
// message a value that cannot name a row answers with
var rowIDParams = []struct {
	name     string
	notFound string
}{
	{"platformId", "Platform not found"},
	{"identityId", "Identity not found"},
	{"aliasId", "Alias not found"},
	{"keyId", "API key not found"},
	{"webhookId", "Webhook not found"},
	{"messageId", "Message not found"},
	{"userId", "Member not found"},
	{"logId", "Audit log not found"},
}

// ProjectLookup is the store access the guard needs
type ProjectLookup interface {
	GetByID(ctx context.Context, id string) (*models.Project, error)
	GetMember(ctx context.Context, projectID, userID string) (*models.ProjectMember, error)
}

// RequireProjectAccess guards routes under /projects/:projectId.
//
// Checks run in order: the project must exist (404), an API key must belong to it and a user
// must own it or hold at least op.MinRole (403), then auth.ValidateProjectAccess runs. Ids
// that are not UUIDs cannot exist and answer 404 without touching the store; nested ids are
// only checked once access is granted. The loaded project is stored under ProjectKey.
// Routes without the parameter pass through.
func RequireProjectAccess(projects ProjectLookup, op auth.Operation) gin.HandlerFunc {
	return func(c *gin.Context) {
		projectID := c.Param(ProjectParam)
		if projectID == "" {
			c.Next()
			return
		}

		ac := GetAuthContext(c)
		if ac == nil {
			abortAuthError(c, "none", auth.ValidateProjectAccess(nil, projectID, op.Name))
			return
		}

		if _, err := uuid.Parse(projectID); err != nil {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
				"error": "Project not found",
			})
			return
		}

		project, err := projects.GetByID(c.Request.Context(), projectID)
		if err != nil {
			slog.Error("failed to load project", "project_id", projectID, "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to load project",
			})
			return
		}
		if project == nil {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
				"error": "Project not found",
			})
			return
		}

		if ac.AuthType == auth.AuthTypeJWT {
			if err := checkMembership(c.Request.Context(), projects, project, ac.UserID(), op); err != nil {
				abortAuthError(c, string(auth.AuthTypeJWT), err)
				return
			}
		}

		if err := auth.ValidateProjectAccess(ac, project.ID, op.Name); err != nil {
			abortAuthError(c, string(ac.AuthType), err)
			return
		}

		for _, p := range rowIDParams {
			if v := c.Param(p.name); v != "" {
				if _, err := uuid.Parse(v); err != nil {
					c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
						"error": p.notFound,
					})
					return
				}
			}
		}

		if ac.AuthType == auth.AuthTypeAPIKey && ac.Project != nil {
			ac.Project.Slug = project.Slug
		}
		c.Set(ProjectKey, project)
		c.Next()
	}
}

// checkMembership applies the role hierarchy. The project owner always passes.
func checkMembership(ctx context.Context, projects ProjectLookup, project *models.Project, userID string, op auth.Operation) error {
	if userID == "" {
		return auth.Forbidden(fmt.Sprintf("User context required for %s", op.Name))
	}
	if project.OwnerID == userID {
		return nil
	}

	member, err := projects.GetMember(ctx, project.ID, userID)
	if err != nil {
		return fmt.Errorf("failed to check project membership: %w", err)
	}
	if member == nil {
		return auth.Forbidden("You do not have access to this project")
	}

	if !auth.RoleSatisfies(auth.Role(member.Role), op.MinRole) {
		return auth.Forbidden(fmt.Sprintf("Insufficient role for %s: requires %s, have %s", op.Name, op.MinRole, member.Role))
	}
	return nil
}
