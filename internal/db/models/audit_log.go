// Package models - audit_log.go defines the AuditLog model for recording security-relevant
// events, capturing actor, action, affected resource, client IP, and arbitrary metadata.
package models

import "time"

// AuditLog represents an audit log entry for tracking mutations
type AuditLog struct {
	ID           string                 `json:"id"`
	UserID       *string                `json:"user_id,omitempty"` // Nullable for API key and system actions
	ProjectID    *string                `json:"project_id,omitempty"`
	Action       string                 `json:"action"`        // "POST messages", "DELETE keys"
	ResourceType *string                `json:"resource_type"` // "messages", "keys", "members"
	ResourceID   *string                `json:"resource_id"`   // UUID of affected resource
	Metadata     map[string]interface{} `json:"metadata"`      // JSONB: additional context
	IPAddress    *string                `json:"ip_address"`
	CreatedAt    time.Time              `json:"created_at"`
}
