package services

import (
	"context"
	"time"

	"github.com/msgcore/msgcore-sub001/internal/auth"
	"github.com/msgcore/msgcore-sub001/internal/db/models"
	"github.com/msgcore/msgcore-sub001/internal/db/repositories"
)

// AuditService exposes a project's audit trail to its admins
type AuditService struct {
	logs AuditLogStore
}

// NewAuditService creates an AuditService
func NewAuditService(logs AuditLogStore) *AuditService {
	return &AuditService{logs: logs}
}

// ListAuditLogsInput filters and pages an audit listing
type ListAuditLogsInput struct {
	UserID       *string
	Action       *string
	ResourceType *string
	Since        *time.Time
	Until        *time.Time
	Page         Page
}

// AuditLogList is a page of audit entries
type AuditLogList struct {
	Logs    []*models.AuditLog `json:"logs"`
	Total   int                `json:"total"`
	Limit   int                `json:"limit"`
	Offset  int                `json:"offset"`
	HasMore bool               `json:"has_more"`
}

// List returns a page of the project's audit entries, newest first
func (s *AuditService) List(ctx context.Context, ac *auth.AuthContext, projectID string, in ListAuditLogsInput) (*AuditLogList, error) {
	if err := auth.ValidateProjectAccess(ac, projectID, "audit.list"); err != nil {
		return nil, err
	}
	if in.Since != nil && in.Until != nil && in.Until.Before(*in.Since) {
		return nil, invalidf("until must not be before since")
	}

	page := in.Page.Normalize()
	logs, total, err := s.logs.ListAuditLogs(ctx, projectID, repositories.AuditFilters{
		UserID:       in.UserID,
		Action:       in.Action,
		ResourceType: in.ResourceType,
		StartDate:    in.Since,
		EndDate:      in.Until,
	}, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}

	return &AuditLogList{
		Logs:    logs,
		Total:   total,
		Limit:   page.Limit,
		Offset:  page.Offset,
		HasMore: page.Offset+len(logs) < total,
	}, nil
}

// Get returns one audit entry of the project
func (s *AuditService) Get(ctx context.Context, ac *auth.AuthContext, projectID, logID string) (*models.AuditLog, error) {
	if err := auth.ValidateProjectAccess(ac, projectID, "audit.get"); err != nil {
		return nil, err
	}
	log, err := s.logs.GetAuditLog(ctx, projectID, logID)
	if err != nil {
		return nil, err
	}
	if log == nil {
		return nil, ErrAuditLogNotFound
	}
	return log, nil
}
