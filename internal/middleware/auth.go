// Package middleware provides Gin HTTP middleware for authentication, project access,
// scope enforcement, rate limiting, security headers, and audit logging.
//
// Middleware ordering matters and is enforced in router.go:
//
//	Security → RateLimit → Authenticate → RequireProjectAccess → RequireScopes → Audit → Handler
//
// Security headers run first so they appear on all responses including errors.
// Rate limiting runs before auth to block brute-force attacks before any DB work.
// Authenticate stores the AuthContext; every later guard reads it from the gin context.
// Audit logging runs last so only requests that passed every guard are recorded.
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/msgcore/msgcore-sub001/internal/auth"
	"github.com/msgcore/msgcore-sub001/internal/db/models"
	"github.com/msgcore/msgcore-sub001/internal/telemetry"
)

const (
	// AuthContextKey holds the *auth.AuthContext of the request
	AuthContextKey = "auth_context"

	// OperationKey holds the name of the operation the route performs
	OperationKey = "operation"

	// ProjectKey holds the *models.Project loaded by RequireProjectAccess
	ProjectKey = "project"

	// APIKeyHeader carries project API keys
	APIKeyHeader = "x-api-key"
)

// CredentialResolver turns request credentials into an AuthContext
type CredentialResolver interface {
	Resolve(ctx context.Context, creds auth.Credentials, op auth.Operation) (*auth.AuthContext, error)
}

// Authenticate resolves the caller of op and stores the result under AuthContextKey.
// Public operations pass through with no context.
func Authenticate(resolver CredentialResolver, op auth.Operation) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(OperationKey, op.Name)

		creds := auth.Credentials{
			APIKey:        c.GetHeader(APIKeyHeader),
			Authorization: c.GetHeader("Authorization"),
		}

		ac, err := resolver.Resolve(c.Request.Context(), creds, op)
		if err != nil {
			abortAuthError(c, credentialMethod(creds), err)
			return
		}

		if ac != nil {
			if op.JWTOnly && ac.AuthType == auth.AuthTypeAPIKey {
				telemetry.AuthFailuresTotal.WithLabelValues(string(auth.AuthTypeAPIKey), "forbidden").Inc()
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
					"error": "This operation requires user authentication",
				})
				return
			}
			c.Set(AuthContextKey, ac)
		}

		c.Next()
	}
}

// GetAuthContext returns the AuthContext stored by Authenticate, or nil
func GetAuthContext(c *gin.Context) *auth.AuthContext {
	v, exists := c.Get(AuthContextKey)
	if !exists {
		return nil
	}
	ac, _ := v.(*auth.AuthContext)
	return ac
}

// GetProject returns the project loaded by RequireProjectAccess, or nil
func GetProject(c *gin.Context) *models.Project {
	v, exists := c.Get(ProjectKey)
	if !exists {
		return nil
	}
	p, _ := v.(*models.Project)
	return p
}

// credentialMethod labels the credential the resolver looked at first
func credentialMethod(creds auth.Credentials) string {
	switch {
	case creds.APIKey != "":
		return string(auth.AuthTypeAPIKey)
	case creds.Authorization != "":
		return string(auth.AuthTypeJWT)
	default:
		return "none"
	}
}

// abortAuthError writes the response for a failed resolution or access check
func abortAuthError(c *gin.Context, method string, err error) {
	var accessErr *auth.AccessError
	if !errors.As(err, &accessErr) {
		slog.Error("authentication failed", "error", err, "request_id", c.GetString(RequestIDKey))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to authenticate request",
		})
		return
	}

	switch {
	case errors.Is(err, auth.ErrAuthContextMissing):
		slog.Error(accessErr.Message, "operation", c.GetString(OperationKey), "path", c.FullPath())
		telemetry.AuthContextMissingTotal.WithLabelValues(c.GetString(OperationKey)).Inc()
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": accessErr.Message})
	case errors.Is(err, auth.ErrUnauthenticated):
		telemetry.AuthFailuresTotal.WithLabelValues(method, "unauthenticated").Inc()
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": accessErr.Message})
	default:
		telemetry.AuthFailuresTotal.WithLabelValues(method, "forbidden").Inc()
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": accessErr.Message})
	}
}
