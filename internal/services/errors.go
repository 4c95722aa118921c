package services

import (
	"errors"
	"fmt"
)

// Not-found errors. The API layer maps all of them to 404.
var (
	ErrProjectNotFound  = errors.New("Project not found")
	ErrMemberNotFound   = errors.New("Member not found")
	ErrUserNotFound     = errors.New("User not found")
	ErrAPIKeyNotFound   = errors.New("API key not found")
	ErrPlatformNotFound = errors.New("Platform not found")
	ErrIdentityNotFound = errors.New("Identity not found")
	ErrAliasNotFound    = errors.New("Alias not found")
	ErrMessageNotFound  = errors.New("Message not found")
	ErrJobNotFound      = errors.New("Job not found")
	ErrWebhookNotFound  = errors.New("Webhook not found")
	ErrAuditLogNotFound = errors.New("Audit log not found")
)

// Conflict and state errors
var (
	ErrSlugTaken          = errors.New("Project slug is already taken")
	ErrEmailTaken         = errors.New("Email is already registered")
	ErrAlreadyMember      = errors.New("User is already a member of this project")
	ErrOwnerProtected     = errors.New("The project owner cannot be removed or demoted")
	ErrAliasTaken         = errors.New("Platform user is already linked to an identity")
	ErrInvalidCredentials = errors.New("Invalid email or password")
	ErrPlatformInactive   = errors.New("Platform is not active")
)

// ErrInvalidInput is the class of every ValidationError
var ErrInvalidInput = errors.New("invalid input")

// ValidationError carries a caller-facing message for a 400 response
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

func invalidf(format string, args ...interface{}) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}
