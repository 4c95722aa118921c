// Package models defines the database model types for the gateway.
// Each type corresponds to a database table and uses struct tags for both JSON serialization and sqlx row scanning.
// Models are pure data types; business logic belongs in the service layer, query logic belongs in the repositories layer.
package models

import "time"

// APIKey represents a project-scoped API key
type APIKey struct {
	ID         string     `json:"id" db:"id"`
	ProjectID  string     `json:"project_id" db:"project_id"`
	CreatedBy  *string    `json:"created_by,omitempty" db:"created_by"` // User who issued the key
	Name       string     `json:"name" db:"name"`                       // Friendly name (e.g., "CI bot")
	KeyHash    string     `json:"-" db:"key_hash"`                      // SHA-256 hex of the full key
	KeyPrefix  string     `json:"key_prefix" db:"key_prefix"`           // First chars for display (e.g., "msc_abc123")
	KeySuffix  string     `json:"key_suffix" db:"key_suffix"`           // Last chars for display
	Scopes     []string   `json:"scopes" db:"-"`                        // JSONB array: ["messages:read", "messages:write"]
	ExpiresAt  *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty" db:"revoked_at"` // May be in the future after a roll
	LastUsedAt *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

// IsValidAt reports whether the key can authenticate at t.
// A key is valid while neither revoked_at nor expires_at has been reached.
func (k *APIKey) IsValidAt(t time.Time) bool {
	if k.RevokedAt != nil && !k.RevokedAt.After(t) {
		return false
	}
	if k.ExpiresAt != nil && !k.ExpiresAt.After(t) {
		return false
	}
	return true
}
