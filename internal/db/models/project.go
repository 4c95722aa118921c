// Package models - project.go defines tenants (projects) and their membership rows.
package models

import "time"

// Project is the tenant boundary; every other resource belongs to exactly one project
type Project struct {
	ID          string    `json:"id"`
	Slug        string    `json:"slug"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	OwnerID     string    `json:"owner_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ProjectMember represents a user's role in a project
type ProjectMember struct {
	ProjectID string    `json:"project_id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"` // owner, admin, member, viewer
	CreatedAt time.Time `json:"created_at"`
}

// ProjectMemberWithUser includes user details for display
type ProjectMemberWithUser struct {
	ProjectMember
	UserName  string `json:"user_name"`
	UserEmail string `json:"user_email"`
}

// ProjectWithRole is a project as seen by one user
type ProjectWithRole struct {
	Project
	Role string `json:"role"`
}
