package auth

// AuthType identifies how a request was authenticated
type AuthType string

const (
	AuthTypeAPIKey AuthType = "api_key"
	AuthTypeJWT    AuthType = "jwt"
)

// ProjectRef identifies the project an API key belongs to
type ProjectRef struct {
	ID   string `json:"id"`
	Slug string `json:"slug,omitempty"`
}

// UserRef identifies the user behind a JWT
type UserRef struct {
	UserID string `json:"userId"`
	Email  string `json:"email,omitempty"`
}

// APIKeyRef carries the key that authenticated the request
type APIKeyRef struct {
	ID     string   `json:"id"`
	Scopes []string `json:"scopes"`
}

// AuthContext is the normalized result of authentication. It is built per request and never persisted.
// An api_key context always carries Project and APIKey; a jwt context always carries User.
type AuthContext struct {
	AuthType AuthType    `json:"authType"`
	Project  *ProjectRef `json:"project,omitempty"`
	User     *UserRef    `json:"user,omitempty"`
	APIKey   *APIKeyRef  `json:"-"`
}

// NewAPIKeyContext builds the context for a validated API key
func NewAPIKeyContext(keyID, projectID string, scopes []string) *AuthContext {
	if scopes == nil {
		scopes = []string{}
	}
	return &AuthContext{
		AuthType: AuthTypeAPIKey,
		Project:  &ProjectRef{ID: projectID},
		APIKey:   &APIKeyRef{ID: keyID, Scopes: scopes},
	}
}

// NewJWTContext builds the context for a validated user token
func NewJWTContext(userID, email string) *AuthContext {
	return &AuthContext{
		AuthType: AuthTypeJWT,
		User:     &UserRef{UserID: userID, Email: email},
	}
}

// Scopes returns the granted scopes of an API key context, or nil for JWT principals.
func (a *AuthContext) Scopes() []string {
	if a == nil || a.APIKey == nil {
		return nil
	}
	return a.APIKey.Scopes
}

// UserID returns the JWT user id, or "" for API key principals.
func (a *AuthContext) UserID() string {
	if a == nil || a.User == nil {
		return ""
	}
	return a.User.UserID
}
