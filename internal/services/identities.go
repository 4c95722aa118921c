package services

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/msgcore/msgcore-sub001/internal/auth"
	"github.com/msgcore/msgcore-sub001/internal/db/models"
)

// IdentityService manages cross-platform identities and their aliases
type IdentityService struct {
	identities IdentityStore
	platforms  PlatformStore
}

// NewIdentityService creates an IdentityService
func NewIdentityService(identities IdentityStore, platforms PlatformStore) *IdentityService {
	return &IdentityService{identities: identities, platforms: platforms}
}

// AliasInput links one platform user
type AliasInput struct {
	PlatformID          string  `json:"platform_id"`
	ProviderUserID      string  `json:"provider_user_id"`
	ProviderUserDisplay *string `json:"provider_user_display"`
	LinkMethod          string  `json:"link_method"`
}

// CreateIdentityInput describes a new identity, optionally with initial aliases
type CreateIdentityInput struct {
	DisplayName *string         `json:"display_name"`
	Email       *string         `json:"email"`
	Metadata    json.RawMessage `json:"metadata"`
	Aliases     []AliasInput    `json:"aliases"`
}

// UpdateIdentityInput changes identity fields; nil leaves a field unchanged
type UpdateIdentityInput struct {
	DisplayName *string         `json:"display_name"`
	Email       *string         `json:"email"`
	Metadata    json.RawMessage `json:"metadata"`
}

// List returns a page of identities with their aliases
func (s *IdentityService) List(ctx context.Context, ac *auth.AuthContext, projectID string, page Page) ([]models.Identity, error) {
	if err := auth.ValidateProjectAccess(ac, projectID, "identities.list"); err != nil {
		return nil, err
	}
	page = page.Normalize()
	return s.identities.List(ctx, projectID, page.Limit, page.Offset)
}

// Get returns one identity
func (s *IdentityService) Get(ctx context.Context, ac *auth.AuthContext, projectID, identityID string) (*models.Identity, error) {
	if err := auth.ValidateProjectAccess(ac, projectID, "identities.get"); err != nil {
		return nil, err
	}
	return s.load(ctx, projectID, identityID)
}

// Create stores an identity and links the given aliases
func (s *IdentityService) Create(ctx context.Context, ac *auth.AuthContext, projectID string, in CreateIdentityInput) (*models.Identity, error) {
	if err := auth.ValidateProjectAccess(ac, projectID, "identities.create"); err != nil {
		return nil, err
	}
	if len(in.Metadata) > 0 && !json.Valid(in.Metadata) {
		return nil, invalidf("metadata must be valid JSON")
	}

	// Validate every alias before the identity is written.
	aliases := make([]*models.IdentityAlias, 0, len(in.Aliases))
	for _, a := range in.Aliases {
		alias, err := s.prepareAlias(ctx, projectID, a)
		if err != nil {
			return nil, err
		}
		aliases = append(aliases, alias)
	}

	ident := &models.Identity{
		ProjectID:   projectID,
		DisplayName: trimmed(in.DisplayName),
		Email:       trimmed(in.Email),
		Metadata:    in.Metadata,
	}
	if err := s.identities.Create(ctx, ident); err != nil {
		return nil, err
	}

	ident.Aliases = make([]models.IdentityAlias, 0, len(aliases))
	for _, alias := range aliases {
		alias.IdentityID = ident.ID
		if err := s.identities.AddAlias(ctx, alias); err != nil {
			return nil, err
		}
		ident.Aliases = append(ident.Aliases, *alias)
	}
	return ident, nil
}

// Update changes display name, email or metadata
func (s *IdentityService) Update(ctx context.Context, ac *auth.AuthContext, projectID, identityID string, in UpdateIdentityInput) (*models.Identity, error) {
	if err := auth.ValidateProjectAccess(ac, projectID, "identities.update"); err != nil {
		return nil, err
	}
	ident, err := s.load(ctx, projectID, identityID)
	if err != nil {
		return nil, err
	}

	if in.DisplayName != nil {
		ident.DisplayName = trimmed(in.DisplayName)
	}
	if in.Email != nil {
		ident.Email = trimmed(in.Email)
	}
	if in.Metadata != nil {
		if !json.Valid(in.Metadata) {
			return nil, invalidf("metadata must be valid JSON")
		}
		ident.Metadata = in.Metadata
	}

	if err := s.identities.Update(ctx, ident); err != nil {
		return nil, err
	}
	return ident, nil
}

// Delete removes an identity and its aliases
func (s *IdentityService) Delete(ctx context.Context, ac *auth.AuthContext, projectID, identityID string) error {
	if err := auth.ValidateProjectAccess(ac, projectID, "identities.delete"); err != nil {
		return err
	}
	ok, err := s.identities.Delete(ctx, projectID, identityID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrIdentityNotFound
	}
	return nil
}

// AddAlias links a platform user to an existing identity
func (s *IdentityService) AddAlias(ctx context.Context, ac *auth.AuthContext, projectID, identityID string, in AliasInput) (*models.IdentityAlias, error) {
	if err := auth.ValidateProjectAccess(ac, projectID, "identities.aliases.add"); err != nil {
		return nil, err
	}
	if _, err := s.load(ctx, projectID, identityID); err != nil {
		return nil, err
	}

	alias, err := s.prepareAlias(ctx, projectID, in)
	if err != nil {
		return nil, err
	}
	alias.IdentityID = identityID
	if err := s.identities.AddAlias(ctx, alias); err != nil {
		return nil, err
	}
	return alias, nil
}

// RemoveAlias unlinks an alias
func (s *IdentityService) RemoveAlias(ctx context.Context, ac *auth.AuthContext, projectID, identityID, aliasID string) error {
	if err := auth.ValidateProjectAccess(ac, projectID, "identities.aliases.remove"); err != nil {
		return err
	}
	ok, err := s.identities.RemoveAlias(ctx, projectID, identityID, aliasID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAliasNotFound
	}
	return nil
}

// Lookup finds the identity linked to one platform user in the project.
// A miss is ErrIdentityNotFound.
func (s *IdentityService) Lookup(ctx context.Context, ac *auth.AuthContext, projectID, platformID, providerUserID string) (*models.Identity, error) {
	if err := auth.ValidateProjectAccess(ac, projectID, "identities.lookup"); err != nil {
		return nil, err
	}
	if platformID == "" || providerUserID == "" {
		return nil, invalidf("platformId and providerUserId are required")
	}
	ident, err := s.identities.LookupByPlatformUser(ctx, projectID, platformID, providerUserID)
	if err != nil {
		return nil, err
	}
	if ident == nil {
		return nil, ErrIdentityNotFound
	}
	return ident, nil
}

// prepareAlias checks that the platform belongs to the project and the platform user is unlinked
func (s *IdentityService) prepareAlias(ctx context.Context, projectID string, in AliasInput) (*models.IdentityAlias, error) {
	providerUserID := strings.TrimSpace(in.ProviderUserID)
	if in.PlatformID == "" || providerUserID == "" {
		return nil, invalidf("alias requires platform_id and provider_user_id")
	}

	linkMethod := in.LinkMethod
	if linkMethod == "" {
		linkMethod = models.LinkMethodManual
	}
	if linkMethod != models.LinkMethodManual && linkMethod != models.LinkMethodAutomatic {
		return nil, invalidf("invalid link_method: %s", in.LinkMethod)
	}

	platform, err := s.platforms.GetByID(ctx, projectID, in.PlatformID)
	if err != nil {
		return nil, err
	}
	if platform == nil {
		return nil, invalidf("platform %s does not belong to this project", in.PlatformID)
	}

	existing, err := s.identities.LookupByPlatformUser(ctx, projectID, platform.ID, providerUserID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrAliasTaken
	}

	return &models.IdentityAlias{
		ProjectID:           projectID,
		PlatformID:          platform.ID,
		Platform:            platform.Platform,
		ProviderUserID:      providerUserID,
		ProviderUserDisplay: in.ProviderUserDisplay,
		LinkMethod:          linkMethod,
	}, nil
}

func (s *IdentityService) load(ctx context.Context, projectID, identityID string) (*models.Identity, error) {
	ident, err := s.identities.GetByID(ctx, projectID, identityID)
	if err != nil {
		return nil, err
	}
	if ident == nil {
		return nil, ErrIdentityNotFound
	}
	return ident, nil
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
