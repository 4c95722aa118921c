package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/msgcore/msgcore-sub001/internal/auth"
	"github.com/msgcore/msgcore-sub001/internal/db/models"
	"github.com/msgcore/msgcore-sub001/internal/validation"
)

// CredentialSealer encrypts platform credentials before they are stored
type CredentialSealer interface {
	SealCredentials(creds map[string]string) (string, error)
}

// PlatformService manages per-project platform integrations
type PlatformService struct {
	platforms PlatformStore
	sealer    CredentialSealer
}

// NewPlatformService creates a PlatformService
func NewPlatformService(platforms PlatformStore, sealer CredentialSealer) *PlatformService {
	return &PlatformService{platforms: platforms, sealer: sealer}
}

// PlatformView is the API shape of a platform. Credentials are never returned.
type PlatformView struct {
	models.ProjectPlatform
	HasCredentials bool `json:"has_credentials"`
}

func newPlatformView(p *models.ProjectPlatform) *PlatformView {
	return &PlatformView{ProjectPlatform: *p, HasCredentials: p.HasCredentials()}
}

// CreatePlatformInput configures a new integration
type CreatePlatformInput struct {
	Platform    string            `json:"platform"`
	Name        string            `json:"name"`
	Credentials map[string]string `json:"credentials"`
	IsActive    *bool             `json:"is_active"`
	TestMode    bool              `json:"test_mode"`
}

// UpdatePlatformInput changes an integration; nil fields are left unchanged.
// Non-nil Credentials replace the stored set.
type UpdatePlatformInput struct {
	Name        *string           `json:"name"`
	Credentials map[string]string `json:"credentials"`
	IsActive    *bool             `json:"is_active"`
	TestMode    *bool             `json:"test_mode"`
}

// List returns every platform of the project
func (s *PlatformService) List(ctx context.Context, ac *auth.AuthContext, projectID string) ([]*PlatformView, error) {
	if err := auth.ValidateProjectAccess(ac, projectID, "platforms.list"); err != nil {
		return nil, err
	}
	platforms, err := s.platforms.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	views := make([]*PlatformView, 0, len(platforms))
	for i := range platforms {
		views = append(views, newPlatformView(&platforms[i]))
	}
	return views, nil
}

// Get returns one platform
func (s *PlatformService) Get(ctx context.Context, ac *auth.AuthContext, projectID, platformID string) (*PlatformView, error) {
	if err := auth.ValidateProjectAccess(ac, projectID, "platforms.get"); err != nil {
		return nil, err
	}
	p, err := s.load(ctx, projectID, platformID)
	if err != nil {
		return nil, err
	}
	return newPlatformView(p), nil
}

// Create stores a new integration with sealed credentials and a fresh webhook token
func (s *PlatformService) Create(ctx context.Context, ac *auth.AuthContext, projectID string, in CreatePlatformInput) (*PlatformView, error) {
	if err := auth.ValidateProjectAccess(ac, projectID, "platforms.create"); err != nil {
		return nil, err
	}

	platform := strings.ToLower(strings.TrimSpace(in.Platform))
	if err := validation.ValidatePlatform(platform); err != nil {
		return nil, invalidf("%s", err.Error())
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = validation.GetPlatformDisplayName(platform)
	}
	if err := validation.ValidateCredentials(platform, in.Credentials); err != nil {
		return nil, invalidf("%s", err.Error())
	}

	sealed, err := s.sealer.SealCredentials(in.Credentials)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt platform credentials: %w", err)
	}
	token, err := newWebhookToken()
	if err != nil {
		return nil, err
	}

	p := &models.ProjectPlatform{
		ProjectID:            projectID,
		Platform:             platform,
		Name:                 name,
		IsActive:             in.IsActive == nil || *in.IsActive,
		TestMode:             in.TestMode,
		CredentialsEncrypted: sealed,
		WebhookToken:         token,
	}
	if err := s.platforms.Create(ctx, p); err != nil {
		return nil, err
	}
	return newPlatformView(p), nil
}

// Update changes name, flags or credentials
func (s *PlatformService) Update(ctx context.Context, ac *auth.AuthContext, projectID, platformID string, in UpdatePlatformInput) (*PlatformView, error) {
	if err := auth.ValidateProjectAccess(ac, projectID, "platforms.update"); err != nil {
		return nil, err
	}

	p, err := s.load(ctx, projectID, platformID)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, invalidf("name cannot be empty")
		}
		p.Name = name
	}
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
	if in.TestMode != nil {
		p.TestMode = *in.TestMode
	}
	if in.Credentials != nil {
		if err := validation.ValidateCredentials(p.Platform, in.Credentials); err != nil {
			return nil, invalidf("%s", err.Error())
		}
		sealed, err := s.sealer.SealCredentials(in.Credentials)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt platform credentials: %w", err)
		}
		p.CredentialsEncrypted = sealed
	}

	if err := s.platforms.Update(ctx, p); err != nil {
		return nil, err
	}
	return newPlatformView(p), nil
}

// Delete removes an integration
func (s *PlatformService) Delete(ctx context.Context, ac *auth.AuthContext, projectID, platformID string) error {
	if err := auth.ValidateProjectAccess(ac, projectID, "platforms.delete"); err != nil {
		return err
	}
	ok, err := s.platforms.Delete(ctx, projectID, platformID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrPlatformNotFound
	}
	return nil
}

func (s *PlatformService) load(ctx context.Context, projectID, platformID string) (*models.ProjectPlatform, error) {
	p, err := s.platforms.GetByID(ctx, projectID, platformID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrPlatformNotFound
	}
	return p, nil
}

func newWebhookToken() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate webhook token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
