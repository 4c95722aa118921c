// Package models - identity.go defines cross-platform identities and their platform aliases.
package models

import (
	"encoding/json"
	"time"
)

// Alias link methods
const (
	LinkMethodManual    = "manual"
	LinkMethodAutomatic = "automatic"
)

// Identity aggregates one person's accounts across platforms within a project
type Identity struct {
	ID          string          `json:"id" db:"id"`
	ProjectID   string          `json:"project_id" db:"project_id"`
	DisplayName *string         `json:"display_name,omitempty" db:"display_name"`
	Email       *string         `json:"email,omitempty" db:"email"`
	Metadata    json.RawMessage `json:"metadata,omitempty" db:"metadata"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
	Aliases     []IdentityAlias `json:"aliases" db:"-"`
}

// IdentityAlias maps (platform_id, provider_user_id) to an identity
type IdentityAlias struct {
	ID                  string    `json:"id" db:"id"`
	IdentityID          string    `json:"identity_id" db:"identity_id"`
	ProjectID           string    `json:"project_id" db:"project_id"`
	PlatformID          string    `json:"platform_id" db:"platform_id"`
	Platform            string    `json:"platform" db:"platform"`
	ProviderUserID      string    `json:"provider_user_id" db:"provider_user_id"`
	ProviderUserDisplay *string   `json:"provider_user_display,omitempty" db:"provider_user_display"`
	LinkMethod          string    `json:"link_method" db:"link_method"`
	LinkedAt            time.Time `json:"linked_at" db:"linked_at"`
}

// ResolvedAlias is an alias joined with its identity, as returned by batched lookups
type ResolvedAlias struct {
	PlatformID          string  `db:"platform_id"`
	ProviderUserID      string  `db:"provider_user_id"`
	ProjectID           string  `db:"project_id"`
	IdentityID          string  `db:"identity_id"`
	IdentityDisplayName *string `db:"identity_display_name"`
	IdentityEmail       *string `db:"identity_email"`
}
