// Package oidc validates bearer tokens minted by an external OpenID Connect issuer.
// Discovery happens lazily on first use so the gateway can start while the issuer is down.
package oidc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/msgcore/msgcore-sub001/internal/auth"
	"github.com/msgcore/msgcore-sub001/internal/config"
)

// Verifier implements auth.ExternalVerifier on top of go-oidc
type Verifier struct {
	issuerURL     string
	clientID      string
	requiredScope string

	mu       sync.Mutex
	verifier *oidc.IDTokenVerifier
	discover func(ctx context.Context) (*oidc.IDTokenVerifier, error)
}

var _ auth.ExternalVerifier = (*Verifier)(nil)

// NewVerifier validates the configuration and returns a verifier. No network call is made.
func NewVerifier(cfg *config.ExternalConfig) (*Verifier, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("external issuer is not enabled")
	}
	if cfg.IssuerURL == "" {
		return nil, fmt.Errorf("external issuer URL is required")
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("external issuer client ID is required")
	}

	v := &Verifier{
		issuerURL:     cfg.IssuerURL,
		clientID:      cfg.ClientID,
		requiredScope: cfg.RequiredScope,
	}
	v.discover = func(ctx context.Context) (*oidc.IDTokenVerifier, error) {
		provider, err := oidc.NewProvider(ctx, v.issuerURL)
		if err != nil {
			return nil, err
		}
		return provider.Verifier(&oidc.Config{ClientID: v.clientID}), nil
	}
	return v, nil
}

// newStaticVerifier builds a Verifier around a prepared token verifier
func newStaticVerifier(idv *oidc.IDTokenVerifier, requiredScope string) *Verifier {
	return &Verifier{verifier: idv, requiredScope: requiredScope}
}

func (v *Verifier) tokenVerifier(ctx context.Context) (*oidc.IDTokenVerifier, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.verifier != nil {
		return v.verifier, nil
	}
	idv, err := v.discover(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", auth.ErrIssuerUnavailable, err)
	}
	v.verifier = idv
	return idv, nil
}

// tokenClaims are the claims read from a verified token.
// Issuers disagree on the scope claim: "scope" is a space separated string, "scp" a list.
type tokenClaims struct {
	Subject string   `json:"sub"`
	Email   string   `json:"email"`
	Name    string   `json:"name"`
	Scope   string   `json:"scope"`
	Scp     []string `json:"scp"`
}

func (c *tokenClaims) scopes() []string {
	out := strings.Fields(c.Scope)
	return append(out, c.Scp...)
}

// Verify checks signature, issuer, audience and expiry, then the required scope
func (v *Verifier) Verify(ctx context.Context, rawToken string) (*auth.ExternalIdentity, error) {
	idv, err := v.tokenVerifier(ctx)
	if err != nil {
		return nil, err
	}

	token, err := idv.Verify(ctx, rawToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify token: %w", err)
	}

	var claims tokenClaims
	if err := token.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse token claims: %w", err)
	}
	if claims.Subject == "" {
		return nil, errors.New("token missing 'sub' claim")
	}

	scopes := claims.scopes()
	if v.requiredScope != "" && !containsScope(scopes, v.requiredScope) {
		return nil, fmt.Errorf("%w: %q", auth.ErrInsufficientScope, v.requiredScope)
	}

	name := claims.Name
	if name == "" {
		name = claims.Email
	}
	return &auth.ExternalIdentity{
		Subject: claims.Subject,
		Email:   claims.Email,
		Name:    name,
		Scopes:  scopes,
	}, nil
}

func containsScope(scopes []string, want string) bool {
	for _, s := range scopes {
		if s == want {
			return true
		}
	}
	return false
}
