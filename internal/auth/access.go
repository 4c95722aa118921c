// Package auth - access.go implements the project access check that runs both in the
// request guard and again at the top of every service method.
package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated marks a missing, malformed, expired or revoked credential (401)
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrForbidden marks a valid credential without permission for the target (403)
	ErrForbidden = errors.New("forbidden")

	// ErrAuthContextMissing marks a code path that reached a protected operation without
	// an AuthContext. It is a defect signal, surfaced as 403 and alerted on separately.
	ErrAuthContextMissing = errors.New("authentication context missing")

	// ErrInsufficientScope marks an external token that lacks the configured scope (403)
	ErrInsufficientScope = errors.New("insufficient scope")
)

// AccessError pairs a caller-facing message with one of the error classes above
type AccessError struct {
	Kind    error
	Message string
}

func (e *AccessError) Error() string {
	return e.Message
}

func (e *AccessError) Unwrap() error {
	return e.Kind
}

// Unauthenticated returns a 401-class error with the given message
func Unauthenticated(msg string) error {
	return &AccessError{Kind: ErrUnauthenticated, Message: msg}
}

// Forbidden returns a 403-class error with the given message
func Forbidden(msg string) error {
	return &AccessError{Kind: ErrForbidden, Message: msg}
}

// ValidateProjectAccess confirms the principal in ac may perform operation on projectID.
// For JWT principals it only checks that a user is present; the membership and role lookup
// happens in the request guard.
func ValidateProjectAccess(ac *AuthContext, projectID, operation string) error {
	if ac == nil {
		return &AccessError{
			Kind:    ErrAuthContextMissing,
			Message: fmt.Sprintf("SECURITY ERROR: Authentication context missing for %s. This indicates a guard bypass.", operation),
		}
	}

	switch ac.AuthType {
	case AuthTypeAPIKey:
		if ac.Project == nil || ac.Project.ID != projectID {
			return Forbidden(fmt.Sprintf("API key does not have access to perform %s", operation))
		}
		return nil
	case AuthTypeJWT:
		if ac.User == nil || ac.User.UserID == "" {
			return Forbidden(fmt.Sprintf("User context required for %s", operation))
		}
		return nil
	default:
		return Forbidden(fmt.Sprintf("Invalid authentication type for %s", operation))
	}
}
