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

// AuditService is the slice of services.AuditService the handlers use
type AuditService interface {
	List(ctx context.Context, ac *auth.AuthContext, projectID string, in services.ListAuditLogsInput) (*services.AuditLogList, error)
	Get(ctx context.Context, ac *auth.AuthContext, projectID, logID string) (*models.AuditLog, error)
}

// AuditHandlers serves a project's audit trail
type AuditHandlers struct {
	audit AuditService
}

// NewAuditHandlers creates a new AuditHandlers instance
func NewAuditHandlers(audit AuditService) *AuditHandlers {
	return &AuditHandlers{audit: audit}
}

// ListAuditLogsHandler lists audit entries.
// Query: user_id, action, resource_type, since, until, limit, offset
// GET /api/v1/projects/:projectId/audit-logs
func (h *AuditHandlers) ListAuditLogsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, ok := parsePage(c)
		if !ok {
			return
		}
		since, ok := queryTime(c, "since")
		if !ok {
			return
		}
		until, ok := queryTime(c, "until")
		if !ok {
			return
		}

		list, err := h.audit.List(c.Request.Context(), middleware.GetAuthContext(c), c.Param("projectId"), services.ListAuditLogsInput{
			UserID:       queryString(c, "user_id"),
			Action:       queryString(c, "action"),
			ResourceType: queryString(c, "resource_type"),
			Since:        since,
			Until:        until,
			Page:         page,
		})
		if err != nil {
			respondError(c, err, "Failed to list audit logs")
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

// GetAuditLogHandler returns one audit entry
// GET /api/v1/projects/:projectId/audit-logs/:logId
func (h *AuditHandlers) GetAuditLogHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		log, err := h.audit.Get(c.Request.Context(), middleware.GetAuthContext(c), c.Param("projectId"), c.Param("logId"))
		if err != nil {
			respondError(c, err, "Failed to get audit log")
			return
		}
		c.JSON(http.StatusOK, log)
	}
}
