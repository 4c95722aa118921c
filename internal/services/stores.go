package services

import (
	"context"
	"time"

	"github.com/msgcore/msgcore-sub001/internal/db/models"
	"github.com/msgcore/msgcore-sub001/internal/db/repositories"
)

// The interfaces below are the slices of the repositories each service needs.
// The concrete types in internal/db/repositories satisfy them.

// ProjectStore persists projects and memberships
type ProjectStore interface {
	CreateProjectWithOwner(ctx context.Context, project *models.Project) error
	GetByID(ctx context.Context, id string) (*models.Project, error)
	GetBySlug(ctx context.Context, slug string) (*models.Project, error)
	ListForUser(ctx context.Context, userID string) ([]*models.ProjectWithRole, error)
	Update(ctx context.Context, project *models.Project) error
	Delete(ctx context.Context, id string) error
	GetMember(ctx context.Context, projectID, userID string) (*models.ProjectMember, error)
	ListMembers(ctx context.Context, projectID string) ([]*models.ProjectMemberWithUser, error)
	AddMember(ctx context.Context, member *models.ProjectMember) error
	UpdateMemberRole(ctx context.Context, projectID, userID, role string) (bool, error)
	RemoveMember(ctx context.Context, projectID, userID string) (bool, error)
}

// UserAccountStore persists local user accounts
type UserAccountStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

// APIKeyManager persists API keys
type APIKeyManager interface {
	CreateAPIKey(ctx context.Context, apiKey *models.APIKey) error
	GetAPIKeyByID(ctx context.Context, keyID string) (*models.APIKey, error)
	ListByProject(ctx context.Context, projectID string) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, projectID, keyID string, at time.Time) (bool, error)
	RollAPIKey(ctx context.Context, oldKeyID string, newKey *models.APIKey, revokeOldAt time.Time) error
}

// PlatformStore persists platform integrations
type PlatformStore interface {
	Create(ctx context.Context, p *models.ProjectPlatform) error
	GetByID(ctx context.Context, projectID, id string) (*models.ProjectPlatform, error)
	ListByProject(ctx context.Context, projectID string) ([]models.ProjectPlatform, error)
	Update(ctx context.Context, p *models.ProjectPlatform) error
	Delete(ctx context.Context, projectID, id string) (bool, error)
}

// IdentityStore persists identities and aliases
type IdentityStore interface {
	Create(ctx context.Context, ident *models.Identity) error
	GetByID(ctx context.Context, projectID, id string) (*models.Identity, error)
	List(ctx context.Context, projectID string, limit, offset int) ([]models.Identity, error)
	Update(ctx context.Context, ident *models.Identity) error
	Delete(ctx context.Context, projectID, id string) (bool, error)
	AddAlias(ctx context.Context, a *models.IdentityAlias) error
	RemoveAlias(ctx context.Context, projectID, identityID, aliasID string) (bool, error)
	LookupByPlatformUser(ctx context.Context, projectID, platformID, providerUserID string) (*models.Identity, error)
}

// MessageStore persists inbound messages and outbound jobs
type MessageStore interface {
	ListReceived(ctx context.Context, f repositories.ReceivedFilter) ([]models.ReceivedMessage, int, error)
	GetReceived(ctx context.Context, projectID, id string) (*models.ReceivedMessage, error)
	Stats(ctx context.Context, projectID string) (*models.MessageStats, error)
	DeleteReceivedOlderThan(ctx context.Context, projectID string, cutoff time.Time) (int64, error)
	CreateSent(ctx context.Context, rows ...*models.SentMessage) error
	SetSentStatus(ctx context.Context, ids []string, status string, errMsg *string) error
	ListSent(ctx context.Context, projectID string, status *string, limit, offset int) ([]models.SentMessage, error)
	GetSentByJobID(ctx context.Context, projectID, jobID string) ([]models.SentMessage, error)
}

// WebhookStore persists webhook subscriptions
type WebhookStore interface {
	Create(ctx context.Context, w *models.Webhook) error
	GetByID(ctx context.Context, projectID, id string) (*models.Webhook, error)
	ListByProject(ctx context.Context, projectID string) ([]*models.Webhook, error)
	Update(ctx context.Context, w *models.Webhook) error
	Delete(ctx context.Context, projectID, id string) (bool, error)
}

// AuditLogStore reads the audit trail of a project
type AuditLogStore interface {
	ListAuditLogs(ctx context.Context, projectID string, filters repositories.AuditFilters, limit, offset int) ([]*models.AuditLog, int, error)
	GetAuditLog(ctx context.Context, projectID, logID string) (*models.AuditLog, error)
}
