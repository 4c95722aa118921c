// Package auth - resolver.go turns request credentials into an AuthContext.
//
// Precedence is strict: an x-api-key header is always tried first and its failure is final,
// even when a Bearer token is also present. Bearer tokens are tried against the local
// signing secret and then against the external issuer.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/msgcore/msgcore-sub001/internal/db/models"
	"github.com/msgcore/msgcore-sub001/internal/safego"
)

// Messages returned to callers on authentication failure
const (
	MsgInvalidAPIKey     = "Invalid API key"
	MsgInvalidToken      = "Invalid or expired token"
	MsgJWTNotConfigured  = "JWT authentication is not configured. Use API key authentication instead."
	MsgAuthRequired      = "Authentication required. Provide either an API key or Bearer token."
	MsgInsufficientScope = "Token does not carry the required scope"
)

// ErrIssuerUnavailable is returned by an ExternalVerifier that cannot reach or
// initialize its issuer. It aborts resolution instead of falling back to 401.
var ErrIssuerUnavailable = errors.New("token issuer unavailable")

// ErrIdentityConflict is returned by a UserStore when an external subject would be
// provisioned with an email that already belongs to another user
var ErrIdentityConflict = errors.New("external identity conflicts with an existing user")

// APIKeyStore is the credential lookup the resolver needs
type APIKeyStore interface {
	GetAPIKeyByHash(ctx context.Context, keyHash string) (*models.APIKey, error)
	UpdateLastUsed(ctx context.Context, id string) error
}

// UserStore resolves token subjects to users
type UserStore interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetOrCreateUserByExternalSub(ctx context.Context, sub, email, name string) (*models.User, error)
}

// ExternalIdentity is what an external issuer vouches for
type ExternalIdentity struct {
	Subject string
	Email   string
	Name    string
	Scopes  []string
}

// ExternalVerifier validates tokens minted by an external issuer.
// It returns ErrInsufficientScope when the token is valid but lacks the required scope.
type ExternalVerifier interface {
	Verify(ctx context.Context, rawToken string) (*ExternalIdentity, error)
}

// Credentials are the raw request headers the resolver looks at
type Credentials struct {
	APIKey        string
	Authorization string
}

// Resolver implements the authentication decision procedure
type Resolver struct {
	apiKeys       APIKeyStore
	users         UserStore
	external      ExternalVerifier
	localEnabled  bool
	validateLocal func(string) (*Claims, error)
	now           func() time.Time
}

// ResolverOption customizes a Resolver
type ResolverOption func(*Resolver)

// WithExternalVerifier enables validation against an external issuer
func WithExternalVerifier(v ExternalVerifier) ResolverOption {
	return func(r *Resolver) {
		r.external = v
	}
}

// WithLocalJWT overrides whether locally signed tokens are accepted
func WithLocalJWT(enabled bool) ResolverOption {
	return func(r *Resolver) {
		r.localEnabled = enabled
	}
}

// WithClock overrides the time source used for key validity checks
func WithClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) {
		r.now = now
	}
}

// NewResolver creates a resolver. Local JWT validation is enabled when a signing secret is configured.
func NewResolver(apiKeys APIKeyStore, users UserStore, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		apiKeys:       apiKeys,
		users:         users,
		localEnabled:  LocalJWTConfigured(),
		validateLocal: ValidateJWT,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve authenticates a request for op.
// Public operations return (nil, nil) without touching any store. Authentication failures
// are *AccessError values; any other error is an infrastructure failure.
func (r *Resolver) Resolve(ctx context.Context, creds Credentials, op Operation) (*AuthContext, error) {
	if op.Public {
		return nil, nil
	}

	if creds.APIKey != "" {
		return r.resolveAPIKey(ctx, creds.APIKey)
	}

	if creds.Authorization != "" {
		token, err := ExtractBearerToken(creds.Authorization)
		if err != nil {
			return nil, Unauthenticated(MsgInvalidToken)
		}
		return r.resolveBearer(ctx, token)
	}

	return nil, Unauthenticated(MsgAuthRequired)
}

func (r *Resolver) resolveAPIKey(ctx context.Context, rawKey string) (*AuthContext, error) {
	key, err := r.apiKeys.GetAPIKeyByHash(ctx, HashAPIKey(rawKey))
	if err != nil {
		return nil, fmt.Errorf("failed to look up API key: %w", err)
	}
	if key == nil || !key.IsValidAt(r.now()) {
		return nil, Unauthenticated(MsgInvalidAPIKey)
	}

	// Best effort; a failed update does not affect the request.
	keyID := key.ID
	safego.Go("apikey.touch", func() {
		updateCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.apiKeys.UpdateLastUsed(updateCtx, keyID); err != nil {
			slog.Debug("failed to update API key last_used_at", "api_key_id", keyID, "error", err)
		}
	})

	return NewAPIKeyContext(key.ID, key.ProjectID, key.Scopes), nil
}

func (r *Resolver) resolveBearer(ctx context.Context, token string) (*AuthContext, error) {
	if !r.localEnabled && r.external == nil {
		return nil, Unauthenticated(MsgJWTNotConfigured)
	}

	if r.localEnabled {
		claims, err := r.validateLocal(token)
		if err == nil {
			user, err := r.users.GetUserByID(ctx, claims.UserID)
			if err != nil {
				return nil, fmt.Errorf("failed to load user: %w", err)
			}
			if user == nil {
				return nil, Unauthenticated(MsgInvalidToken)
			}
			return NewJWTContext(user.ID, user.Email), nil
		}
		if errors.Is(err, ErrJWTNotConfigured) {
			return nil, err
		}
		// Not a local token; the external issuer gets a chance below.
	}

	if r.external == nil {
		return nil, Unauthenticated(MsgInvalidToken)
	}

	ident, err := r.external.Verify(ctx, token)
	if err != nil {
		switch {
		case errors.Is(err, ErrInsufficientScope):
			return nil, &AccessError{Kind: ErrForbidden, Message: MsgInsufficientScope}
		case errors.Is(err, ErrIssuerUnavailable):
			return nil, err
		default:
			return nil, Unauthenticated(MsgInvalidToken)
		}
	}

	user, err := r.users.GetOrCreateUserByExternalSub(ctx, ident.Subject, ident.Email, ident.Name)
	if errors.Is(err, ErrIdentityConflict) {
		slog.Warn("external identity rejected", "sub", ident.Subject, "error", err)
		return nil, Unauthenticated(MsgInvalidToken)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to provision user: %w", err)
	}
	return NewJWTContext(user.ID, user.Email), nil
}
