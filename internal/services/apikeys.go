package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/msgcore/msgcore-sub001/internal/auth"
	"github.com/msgcore/msgcore-sub001/internal/db/models"
)

// DefaultRollGracePeriod is how long a rolled key keeps working
const DefaultRollGracePeriod = 24 * time.Hour

// APIKeyService manages project API keys
type APIKeyService struct {
	keys   APIKeyManager
	prefix string
	grace  time.Duration
	now    func() time.Time
}

// NewAPIKeyService creates an APIKeyService. A zero grace falls back to DefaultRollGracePeriod.
func NewAPIKeyService(keys APIKeyManager, prefix string, grace time.Duration) *APIKeyService {
	if grace <= 0 {
		grace = DefaultRollGracePeriod
	}
	return &APIKeyService{
		keys:   keys,
		prefix: prefix,
		grace:  grace,
		now:    time.Now,
	}
}

// CreateAPIKeyInput describes a new key
type CreateAPIKeyInput struct {
	Name      string     `json:"name"`
	Scopes    []string   `json:"scopes"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// IssuedAPIKey is a stored key plus its plaintext, which is returned exactly once
type IssuedAPIKey struct {
	*models.APIKey
	Key string `json:"key"`
}

// RolledAPIKey is the result of a roll
type RolledAPIKey struct {
	IssuedAPIKey
	OldKeyID        string    `json:"old_key_id"`
	OldKeyRevokesAt time.Time `json:"old_key_revokes_at"`
}

// List returns every key of the project, revoked ones included
func (s *APIKeyService) List(ctx context.Context, ac *auth.AuthContext, projectID string) ([]*models.APIKey, error) {
	if err := auth.ValidateProjectAccess(ac, projectID, "keys.list"); err != nil {
		return nil, err
	}
	keys, err := s.keys.ListByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	return keys, nil
}

// Create issues a new key. An API key caller cannot grant scopes it does not hold itself.
func (s *APIKeyService) Create(ctx context.Context, ac *auth.AuthContext, projectID string, in CreateAPIKeyInput) (*IssuedAPIKey, error) {
	if err := auth.ValidateProjectAccess(ac, projectID, "keys.create"); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalidf("name is required")
	}

	scopes := in.Scopes
	if len(scopes) == 0 {
		scopes = auth.GetDefaultScopes()
	}
	if err := auth.ValidateScopes(scopes); err != nil {
		return nil, invalidf("%s", err.Error())
	}
	if ac.AuthType == auth.AuthTypeAPIKey {
		for _, scope := range scopes {
			if !auth.HasScope(ac.Scopes(), auth.Scope(scope)) {
				return nil, auth.Forbidden(fmt.Sprintf("API key cannot grant scope %s", scope))
			}
		}
	}

	if in.ExpiresAt != nil && !in.ExpiresAt.After(s.now()) {
		return nil, invalidf("expires_at must be in the future")
	}

	generated, err := auth.GenerateAPIKey(s.prefix)
	if err != nil {
		return nil, err
	}

	key := &models.APIKey{
		ProjectID: projectID,
		Name:      name,
		KeyHash:   generated.Hash,
		KeyPrefix: generated.Prefix,
		KeySuffix: generated.Suffix,
		Scopes:    scopes,
		ExpiresAt: in.ExpiresAt,
	}
	if uid := ac.UserID(); uid != "" {
		key.CreatedBy = &uid
	}

	if err := s.keys.CreateAPIKey(ctx, key); err != nil {
		return nil, err
	}

	return &IssuedAPIKey{APIKey: key, Key: generated.Key}, nil
}

// Revoke soft-revokes a key immediately
func (s *APIKeyService) Revoke(ctx context.Context, ac *auth.AuthContext, projectID, keyID string) error {
	if err := auth.ValidateProjectAccess(ac, projectID, "keys.revoke"); err != nil {
		return err
	}
	ok, err := s.keys.RevokeAPIKey(ctx, projectID, keyID, s.now())
	if err != nil {
		return err
	}
	if !ok {
		return ErrAPIKeyNotFound
	}
	return nil
}

// Roll issues a replacement key with the same name, scopes and expiry, and schedules the old key
// to stop working after the grace period. Both writes happen in one transaction.
func (s *APIKeyService) Roll(ctx context.Context, ac *auth.AuthContext, projectID, keyID string) (*RolledAPIKey, error) {
	if err := auth.ValidateProjectAccess(ac, projectID, "keys.roll"); err != nil {
		return nil, err
	}

	old, err := s.keys.GetAPIKeyByID(ctx, keyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load api key: %w", err)
	}
	if old == nil || old.ProjectID != projectID {
		return nil, ErrAPIKeyNotFound
	}

	now := s.now()
	if !old.IsValidAt(now) {
		return nil, invalidf("API key is revoked or expired and cannot be rolled")
	}
	// A key already scheduled for revocation keeps its deadline
	if old.RevokedAt != nil {
		return nil, invalidf("API key has already been rolled or revoked")
	}
	if ac.AuthType == auth.AuthTypeAPIKey && !auth.HasAllScopes(ac.Scopes(), scopeList(old.Scopes)) {
		return nil, auth.Forbidden("API key cannot roll a key with scopes it does not hold")
	}

	generated, err := auth.GenerateAPIKey(s.prefix)
	if err != nil {
		return nil, err
	}

	scopes := make([]string, len(old.Scopes))
	copy(scopes, old.Scopes)

	newKey := &models.APIKey{
		ProjectID: projectID,
		Name:      old.Name,
		KeyHash:   generated.Hash,
		KeyPrefix: generated.Prefix,
		KeySuffix: generated.Suffix,
		Scopes:    scopes,
		ExpiresAt: old.ExpiresAt,
	}
	if uid := ac.UserID(); uid != "" {
		newKey.CreatedBy = &uid
	} else {
		newKey.CreatedBy = old.CreatedBy
	}

	revokeAt := now.Add(s.grace)
	if err := s.keys.RollAPIKey(ctx, old.ID, newKey, revokeAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, invalidf("API key has already been rolled or revoked")
		}
		return nil, err
	}

	return &RolledAPIKey{
		IssuedAPIKey:    IssuedAPIKey{APIKey: newKey, Key: generated.Key},
		OldKeyID:        old.ID,
		OldKeyRevokesAt: revokeAt,
	}, nil
}

func scopeList(scopes []string) []auth.Scope {
	out := make([]auth.Scope, len(scopes))
	for i, s := range scopes {
		out[i] = auth.Scope(s)
	}
	return out
}
