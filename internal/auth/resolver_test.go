package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/msgcore/msgcore-sub001/internal/db/models"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeKeyStore struct {
	mu      sync.Mutex
	byHash  map[string]*models.APIKey
	err     error
	lookups int
	touched chan string
}

func newFakeKeyStore(keys ...*models.APIKey) *fakeKeyStore {
	s := &fakeKeyStore{byHash: map[string]*models.APIKey{}, touched: make(chan string, 8)}
	for _, k := range keys {
		s.byHash[k.KeyHash] = k
	}
	return s
}

func (s *fakeKeyStore) GetAPIKeyByHash(_ context.Context, keyHash string) (*models.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups++
	if s.err != nil {
		return nil, s.err
	}
	return s.byHash[keyHash], nil
}

func (s *fakeKeyStore) UpdateLastUsed(_ context.Context, id string) error {
	s.touched <- id
	return nil
}

type fakeUserStore struct {
	byID        map[string]*models.User
	err         error
	provisioned []string
}

func (s *fakeUserStore) GetUserByID(_ context.Context, id string) (*models.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.byID[id], nil
}

func (s *fakeUserStore) GetOrCreateUserByExternalSub(_ context.Context, sub, email, name string) (*models.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.provisioned = append(s.provisioned, sub)
	return &models.User{ID: "ext-user-" + sub, Email: email, Name: name}, nil
}

type fakeExternal struct {
	ident *ExternalIdentity
	err   error
	calls int
}

func (f *fakeExternal) Verify(_ context.Context, _ string) (*ExternalIdentity, error) {
	f.calls++
	return f.ident, f.err
}

const (
	rawTestKey = "msc_test_key_value"
	testUserID = "user-1"
)

var resolverNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testKey(mut func(*models.APIKey)) *models.APIKey {
	k := &models.APIKey{
		ID:        "key-1",
		ProjectID: "proj-1",
		KeyHash:   HashAPIKey(rawTestKey),
		Scopes:    []string{"messages:read"},
	}
	if mut != nil {
		mut(k)
	}
	return k
}

func newTestResolver(keys *fakeKeyStore, users *fakeUserStore, opts ...ResolverOption) *Resolver {
	if users == nil {
		users = &fakeUserStore{byID: map[string]*models.User{
			testUserID: {ID: testUserID, Email: "alice@example.com"},
		}}
	}
	base := []ResolverOption{WithLocalJWT(true), WithClock(func() time.Time { return resolverNow })}
	return NewResolver(keys, users, append(base, opts...)...)
}

var protectedOp = Operation{Name: "messages.list", Scopes: []Scope{ScopeMessagesRead}}

func requireAccessKind(t *testing.T, err error, kind error, msg string) {
	t.Helper()
	var ae *AccessError
	if !errors.As(err, &ae) {
		t.Fatalf("error = %v, want *AccessError", err)
	}
	if !errors.Is(err, kind) {
		t.Errorf("error kind = %v, want %v", ae.Kind, kind)
	}
	if msg != "" && ae.Message != msg {
		t.Errorf("message = %q, want %q", ae.Message, msg)
	}
}

// ---------------------------------------------------------------------------
// Public operations and missing credentials
// ---------------------------------------------------------------------------

func TestResolve_PublicSkipsStores(t *testing.T) {
	keys := newFakeKeyStore()
	r := newTestResolver(keys, nil)

	ac, err := r.Resolve(context.Background(), Credentials{APIKey: "anything"}, Operation{Name: "auth.login", Public: true})
	if err != nil || ac != nil {
		t.Fatalf("Resolve() = %v, %v; want nil, nil", ac, err)
	}
	if keys.lookups != 0 {
		t.Errorf("lookups = %d, want 0", keys.lookups)
	}
}

func TestResolve_NoCredentials(t *testing.T) {
	r := newTestResolver(newFakeKeyStore(), nil)
	_, err := r.Resolve(context.Background(), Credentials{}, protectedOp)
	requireAccessKind(t, err, ErrUnauthenticated, MsgAuthRequired)
}

// ---------------------------------------------------------------------------
// API keys
// ---------------------------------------------------------------------------

func TestResolve_APIKeyValid(t *testing.T) {
	keys := newFakeKeyStore(testKey(nil))
	r := newTestResolver(keys, nil)

	ac, err := r.Resolve(context.Background(), Credentials{APIKey: rawTestKey}, protectedOp)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if ac.AuthType != AuthTypeAPIKey || ac.Project.ID != "proj-1" || ac.APIKey.ID != "key-1" {
		t.Errorf("context = %+v", ac)
	}
	if !HasAllScopes(ac.Scopes(), []Scope{ScopeMessagesRead}) {
		t.Errorf("scopes = %v", ac.Scopes())
	}

	select {
	case id := <-keys.touched:
		if id != "key-1" {
			t.Errorf("UpdateLastUsed(%q), want key-1", id)
		}
	case <-time.After(2 * time.Second):
		t.Error("UpdateLastUsed was not called")
	}
}

func TestResolve_APIKeyValidity(t *testing.T) {
	past := resolverNow.Add(-time.Minute)
	future := resolverNow.Add(23 * time.Hour)

	tests := []struct {
		name  string
		mut   func(*models.APIKey)
		valid bool
	}{
		{"no expiry, not revoked", nil, true},
		{"revoked in the past", func(k *models.APIKey) { k.RevokedAt = &past }, false},
		{"revoked exactly now", func(k *models.APIKey) { k.RevokedAt = &resolverNow }, false},
		{"rolled, grace period pending", func(k *models.APIKey) { k.RevokedAt = &future }, true},
		{"expired", func(k *models.APIKey) { k.ExpiresAt = &past }, false},
		{"expires later", func(k *models.APIKey) { k.ExpiresAt = &future }, true},
		{"expired during grace period", func(k *models.APIKey) {
			k.ExpiresAt = &past
			k.RevokedAt = &future
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestResolver(newFakeKeyStore(testKey(tt.mut)), nil)
			ac, err := r.Resolve(context.Background(), Credentials{APIKey: rawTestKey}, protectedOp)
			if tt.valid {
				if err != nil || ac == nil {
					t.Fatalf("Resolve() = %v, %v; want context", ac, err)
				}
				return
			}
			requireAccessKind(t, err, ErrUnauthenticated, MsgInvalidAPIKey)
		})
	}
}

func TestResolve_UnknownAPIKey(t *testing.T) {
	r := newTestResolver(newFakeKeyStore(testKey(nil)), nil)
	_, err := r.Resolve(context.Background(), Credentials{APIKey: "msc_not_a_key"}, protectedOp)
	requireAccessKind(t, err, ErrUnauthenticated, MsgInvalidAPIKey)
}

func TestResolve_InvalidAPIKeyNeverFallsThroughToJWT(t *testing.T) {
	token, err := GenerateJWT(testUserID, "alice@example.com", time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}
	ext := &fakeExternal{ident: &ExternalIdentity{Subject: "s"}}
	r := newTestResolver(newFakeKeyStore(), nil, WithExternalVerifier(ext))

	_, err = r.Resolve(context.Background(), Credentials{APIKey: "msc_bogus", Authorization: "Bearer " + token}, protectedOp)
	requireAccessKind(t, err, ErrUnauthenticated, MsgInvalidAPIKey)
	if ext.calls != 0 {
		t.Errorf("external verifier called %d times, want 0", ext.calls)
	}
}

func TestResolve_APIKeyStoreError(t *testing.T) {
	keys := newFakeKeyStore()
	keys.err = errors.New("connection reset")
	r := newTestResolver(keys, nil)

	_, err := r.Resolve(context.Background(), Credentials{APIKey: rawTestKey}, protectedOp)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var ae *AccessError
	if errors.As(err, &ae) {
		t.Errorf("store error surfaced as AccessError %v, want infrastructure error", ae)
	}
}

// ---------------------------------------------------------------------------
// Bearer tokens
// ---------------------------------------------------------------------------

func TestResolve_BearerNotConfigured(t *testing.T) {
	r := newTestResolver(newFakeKeyStore(), nil, WithLocalJWT(false))
	_, err := r.Resolve(context.Background(), Credentials{Authorization: "Bearer abc"}, protectedOp)
	requireAccessKind(t, err, ErrUnauthenticated, MsgJWTNotConfigured)
}

func TestResolve_MalformedAuthorizationHeader(t *testing.T) {
	r := newTestResolver(newFakeKeyStore(), nil)
	_, err := r.Resolve(context.Background(), Credentials{Authorization: "Basic dXNlcjpwYXNz"}, protectedOp)
	requireAccessKind(t, err, ErrUnauthenticated, MsgInvalidToken)
}

func TestResolve_LocalJWTValid(t *testing.T) {
	token, err := GenerateJWT(testUserID, "alice@example.com", time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}
	r := newTestResolver(newFakeKeyStore(), nil)

	ac, err := r.Resolve(context.Background(), Credentials{Authorization: "Bearer " + token}, protectedOp)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if ac.AuthType != AuthTypeJWT || ac.UserID() != testUserID || ac.Project != nil {
		t.Errorf("context = %+v", ac)
	}
	if ac.Scopes() != nil {
		t.Errorf("JWT context scopes = %v, want nil", ac.Scopes())
	}
}

func TestResolve_LocalJWTUnknownUser(t *testing.T) {
	token, err := GenerateJWT("ghost", "ghost@example.com", time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}
	r := newTestResolver(newFakeKeyStore(), nil)

	_, err = r.Resolve(context.Background(), Credentials{Authorization: "Bearer " + token}, protectedOp)
	requireAccessKind(t, err, ErrUnauthenticated, MsgInvalidToken)
}

func TestResolve_InvalidTokenWithoutExternal(t *testing.T) {
	r := newTestResolver(newFakeKeyStore(), nil)
	_, err := r.Resolve(context.Background(), Credentials{Authorization: "Bearer not.a.jwt"}, protectedOp)
	requireAccessKind(t, err, ErrUnauthenticated, MsgInvalidToken)
}

func TestResolve_FallsThroughToExternal(t *testing.T) {
	ext := &fakeExternal{ident: &ExternalIdentity{Subject: "sub-9", Email: "ext@example.com", Name: "Ext"}}
	users := &fakeUserStore{byID: map[string]*models.User{}}
	r := newTestResolver(newFakeKeyStore(), users, WithExternalVerifier(ext))

	ac, err := r.Resolve(context.Background(), Credentials{Authorization: "Bearer external-token"}, protectedOp)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if ac.UserID() != "ext-user-sub-9" {
		t.Errorf("UserID = %q, want ext-user-sub-9", ac.UserID())
	}
	if len(users.provisioned) != 1 || users.provisioned[0] != "sub-9" {
		t.Errorf("provisioned = %v", users.provisioned)
	}
}

func TestResolve_ExternalOnly(t *testing.T) {
	ext := &fakeExternal{ident: &ExternalIdentity{Subject: "sub-1"}}
	r := newTestResolver(newFakeKeyStore(), nil, WithLocalJWT(false), WithExternalVerifier(ext))

	if _, err := r.Resolve(context.Background(), Credentials{Authorization: "Bearer t"}, protectedOp); err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if ext.calls != 1 {
		t.Errorf("external calls = %d, want 1", ext.calls)
	}
}

func TestResolve_ExternalInvalidToken(t *testing.T) {
	ext := &fakeExternal{err: errors.New("signature mismatch")}
	r := newTestResolver(newFakeKeyStore(), nil, WithExternalVerifier(ext))

	_, err := r.Resolve(context.Background(), Credentials{Authorization: "Bearer t"}, protectedOp)
	requireAccessKind(t, err, ErrUnauthenticated, MsgInvalidToken)
}

func TestResolve_ExternalInsufficientScopeIsForbidden(t *testing.T) {
	ext := &fakeExternal{err: ErrInsufficientScope}
	r := newTestResolver(newFakeKeyStore(), nil, WithExternalVerifier(ext))

	_, err := r.Resolve(context.Background(), Credentials{Authorization: "Bearer t"}, protectedOp)
	requireAccessKind(t, err, ErrForbidden, MsgInsufficientScope)
	if errors.Is(err, ErrUnauthenticated) {
		t.Error("scope failure was reported as unauthenticated")
	}
}

func TestResolve_ExternalIssuerUnavailable(t *testing.T) {
	ext := &fakeExternal{err: ErrIssuerUnavailable}
	r := newTestResolver(newFakeKeyStore(), nil, WithExternalVerifier(ext))

	_, err := r.Resolve(context.Background(), Credentials{Authorization: "Bearer t"}, protectedOp)
	if !errors.Is(err, ErrIssuerUnavailable) {
		t.Errorf("error = %v, want ErrIssuerUnavailable", err)
	}
}

func TestResolve_ExternalIdentityConflictIsUnauthenticated(t *testing.T) {
	ext := &fakeExternal{ident: &ExternalIdentity{Subject: "sub-2", Email: "alice@example.com"}}
	users := &fakeUserStore{err: fmt.Errorf("email alice@example.com: %w", ErrIdentityConflict)}
	r := newTestResolver(newFakeKeyStore(), users, WithExternalVerifier(ext))

	_, err := r.Resolve(context.Background(), Credentials{Authorization: "Bearer t"}, protectedOp)
	requireAccessKind(t, err, ErrUnauthenticated, MsgInvalidToken)
}
