// Package auth - scopes.go defines permission scope constants for every project resource
// and provides HasScope, HasAnyScope, and HasAllScopes helper functions for scope checking.
//
// Scopes only restrict API keys. A JWT principal that has passed the project membership
// check is not subject to scope enforcement.
package auth

import (
	"errors"
	"fmt"
)

// Scope represents a permission/scope type
type Scope string

const (
	// Identity scopes
	ScopeIdentitiesRead  Scope = "identities:read"
	ScopeIdentitiesWrite Scope = "identities:write"

	// Project scopes
	ScopeProjectsRead  Scope = "projects:read"
	ScopeProjectsWrite Scope = "projects:write"

	// Platform configuration scopes
	ScopePlatformsRead  Scope = "platforms:read"
	ScopePlatformsWrite Scope = "platforms:write"

	// Message scopes. messages:write also covers send, delete, react and unreact.
	ScopeMessagesRead  Scope = "messages:read"
	ScopeMessagesWrite Scope = "messages:write"

	// Webhook subscription scopes
	ScopeWebhooksRead  Scope = "webhooks:read"
	ScopeWebhooksWrite Scope = "webhooks:write"

	// API key scopes. keys:write covers create, revoke and roll.
	ScopeKeysRead  Scope = "keys:read"
	ScopeKeysWrite Scope = "keys:write"

	// Project membership scopes
	ScopeMembersRead  Scope = "members:read"
	ScopeMembersWrite Scope = "members:write"
)

// AllScopes returns all valid scopes
func AllScopes() []Scope {
	return []Scope{
		ScopeIdentitiesRead,
		ScopeIdentitiesWrite,
		ScopeProjectsRead,
		ScopeProjectsWrite,
		ScopePlatformsRead,
		ScopePlatformsWrite,
		ScopeMessagesRead,
		ScopeMessagesWrite,
		ScopeWebhooksRead,
		ScopeWebhooksWrite,
		ScopeKeysRead,
		ScopeKeysWrite,
		ScopeMembersRead,
		ScopeMembersWrite,
	}
}

// ValidScopes returns a map of valid scope strings
func ValidScopes() map[string]bool {
	validScopes := make(map[string]bool)
	for _, scope := range AllScopes() {
		validScopes[string(scope)] = true
	}
	return validScopes
}

// ValidateScopes checks if all provided scopes are valid
func ValidateScopes(scopes []string) error {
	validScopes := ValidScopes()

	for _, scope := range scopes {
		if !validScopes[scope] {
			return fmt.Errorf("invalid scope: %s", scope)
		}
	}

	return nil
}

// HasScope reports whether required is literally present in granted.
// There is no wildcard and write does not imply read.
func HasScope(granted []string, required Scope) bool {
	for _, scope := range granted {
		if scope == string(required) {
			return true
		}
	}
	return false
}

// HasAnyScope checks if at least one of the required scopes was granted
func HasAnyScope(granted []string, requiredScopes []Scope) bool {
	for _, required := range requiredScopes {
		if HasScope(granted, required) {
			return true
		}
	}
	return false
}

// HasAllScopes reports whether every required scope was granted.
// An empty required list always passes.
func HasAllScopes(granted []string, requiredScopes []Scope) bool {
	for _, required := range requiredScopes {
		if !HasScope(granted, required) {
			return false
		}
	}
	return true
}

// MissingScopes returns the required scopes absent from granted, in required order.
func MissingScopes(granted []string, requiredScopes []Scope) []string {
	missing := make([]string, 0)
	for _, required := range requiredScopes {
		if !HasScope(granted, required) {
			missing = append(missing, string(required))
		}
	}
	return missing
}

// GetDefaultScopes returns default scopes for a new API key
func GetDefaultScopes() []string {
	return []string{
		string(ScopeMessagesRead),
		string(ScopeMessagesWrite),
	}
}

// ValidateScopeString validates a single scope string
func ValidateScopeString(scope string) error {
	validScopes := ValidScopes()
	if !validScopes[scope] {
		return errors.New("invalid scope")
	}
	return nil
}
