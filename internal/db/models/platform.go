// Package models - platform.go defines per-project chat platform integrations.
package models

import "time"

// Supported chat platforms
const (
	PlatformDiscord  = "discord"
	PlatformTelegram = "telegram"
	PlatformWhatsApp = "whatsapp"
)

// ProjectPlatform is one configured bot/account for a chat platform
type ProjectPlatform struct {
	ID                   string    `json:"id" db:"id"`
	ProjectID            string    `json:"project_id" db:"project_id"`
	Platform             string    `json:"platform" db:"platform"`
	Name                 string    `json:"name" db:"name"`
	IsActive             bool      `json:"is_active" db:"is_active"`
	TestMode             bool      `json:"test_mode" db:"test_mode"`
	CredentialsEncrypted string    `json:"-" db:"credentials_encrypted"`
	WebhookToken         string    `json:"webhook_token" db:"webhook_token"`
	CreatedAt            time.Time `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time `json:"updated_at" db:"updated_at"`
}

// HasCredentials reports whether encrypted credentials are stored
func (p *ProjectPlatform) HasCredentials() bool {
	return p.CredentialsEncrypted != ""
}
