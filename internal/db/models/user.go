// Package models - user.go defines the User model for dashboard accounts with email,
// display name, optional local password hash and optional external issuer subject.
package models

import "time"

// User represents a user in the system
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash *string   `json:"-"`                      // bcrypt; nil for externally provisioned users
	ExternalSub  *string   `json:"external_sub,omitempty"` // Subject from the external token issuer
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HasPassword reports whether the user can log in with a local password
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}
