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

// WebhookService manages webhook subscriptions. Delivery happens elsewhere.
type WebhookService struct {
	webhooks      WebhookStore
	allowInsecure bool
}

// NewWebhookService creates a WebhookService. allowInsecure accepts plain http targets.
func NewWebhookService(webhooks WebhookStore, allowInsecure bool) *WebhookService {
	return &WebhookService{webhooks: webhooks, allowInsecure: allowInsecure}
}

// CreateWebhookInput describes a new subscription
type CreateWebhookInput struct {
	Name   string   `json:"name"`
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Secret string   `json:"secret"`
}

// UpdateWebhookInput changes a subscription; nil leaves a field unchanged
type UpdateWebhookInput struct {
	Name     *string  `json:"name"`
	URL      *string  `json:"url"`
	Events   []string `json:"events"`
	IsActive *bool    `json:"is_active"`
}

// CreatedWebhook carries the signing secret, returned only on creation
type CreatedWebhook struct {
	*models.Webhook
	Secret string `json:"secret"`
}

// List returns every subscription of the project
func (s *WebhookService) List(ctx context.Context, ac *auth.AuthContext, projectID string) ([]*models.Webhook, error) {
	if err := auth.ValidateProjectAccess(ac, projectID, "webhooks.list"); err != nil {
		return nil, err
	}
	return s.webhooks.ListByProject(ctx, projectID)
}

// Get returns one subscription
func (s *WebhookService) Get(ctx context.Context, ac *auth.AuthContext, projectID, webhookID string) (*models.Webhook, error) {
	if err := auth.ValidateProjectAccess(ac, projectID, "webhooks.get"); err != nil {
		return nil, err
	}
	return s.load(ctx, projectID, webhookID)
}

// Create stores a subscription. A secret is generated when none is given.
func (s *WebhookService) Create(ctx context.Context, ac *auth.AuthContext, projectID string, in CreateWebhookInput) (*CreatedWebhook, error) {
	if err := auth.ValidateProjectAccess(ac, projectID, "webhooks.create"); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalidf("name is required")
	}
	if err := validation.ValidateWebhookURL(in.URL, s.allowInsecure); err != nil {
		return nil, invalidf("%s", err.Error())
	}
	if err := validation.ValidateWebhookEvents(in.Events); err != nil {
		return nil, invalidf("%s", err.Error())
	}

	secret := in.Secret
	if secret == "" {
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			return nil, fmt.Errorf("failed to generate webhook secret: %w", err)
		}
		secret = "whsec_" + hex.EncodeToString(b)
	} else if len(secret) < 16 {
		return nil, invalidf("secret must be at least 16 characters")
	}

	w := &models.Webhook{
		ProjectID: projectID,
		Name:      name,
		URL:       in.URL,
		Events:    in.Events,
		Secret:    secret,
		IsActive:  true,
	}
	if err := s.webhooks.Create(ctx, w); err != nil {
		return nil, err
	}
	return &CreatedWebhook{Webhook: w, Secret: secret}, nil
}

// Update changes name, url, events or the active flag
func (s *WebhookService) Update(ctx context.Context, ac *auth.AuthContext, projectID, webhookID string, in UpdateWebhookInput) (*models.Webhook, error) {
	if err := auth.ValidateProjectAccess(ac, projectID, "webhooks.update"); err != nil {
		return nil, err
	}
	w, err := s.load(ctx, projectID, webhookID)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, invalidf("name cannot be empty")
		}
		w.Name = name
	}
	if in.URL != nil {
		if err := validation.ValidateWebhookURL(*in.URL, s.allowInsecure); err != nil {
			return nil, invalidf("%s", err.Error())
		}
		w.URL = *in.URL
	}
	if in.Events != nil {
		if err := validation.ValidateWebhookEvents(in.Events); err != nil {
			return nil, invalidf("%s", err.Error())
		}
		w.Events = in.Events
	}
	if in.IsActive != nil {
		w.IsActive = *in.IsActive
	}

	if err := s.webhooks.Update(ctx, w); err != nil {
		return nil, fmt.Errorf("failed to update webhook: %w", err)
	}
	return w, nil
}

// Delete removes a subscription
func (s *WebhookService) Delete(ctx context.Context, ac *auth.AuthContext, projectID, webhookID string) error {
	if err := auth.ValidateProjectAccess(ac, projectID, "webhooks.delete"); err != nil {
		return err
	}
	ok, err := s.webhooks.Delete(ctx, projectID, webhookID)
	if err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}
	if !ok {
		return ErrWebhookNotFound
	}
	return nil
}

func (s *WebhookService) load(ctx context.Context, projectID, webhookID string) (*models.Webhook, error) {
	w, err := s.webhooks.GetByID(ctx, projectID, webhookID)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, ErrWebhookNotFound
	}
	return w, nil
}
