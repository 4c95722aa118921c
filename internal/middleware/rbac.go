// Package middleware (rbac.go) implements scope-based authorization middleware.
//
// Scopes (e.g., "messages:write", "keys:read") bind API keys only. A user token that passed
// the project guard is governed by its membership role instead. Scopes are read from the
// key row on every request, so a revoked or narrowed key takes effect immediately.

package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/msgcore/msgcore-sub001/internal/auth"
	"github.com/msgcore/msgcore-sub001/internal/telemetry"
)

// RequireScopes checks that an API key caller holds every scope op requires
func RequireScopes(op auth.Operation) gin.HandlerFunc {
	return func(c *gin.Context) {
		ac := GetAuthContext(c)
		if ac == nil || ac.AuthType != auth.AuthTypeAPIKey || len(op.Scopes) == 0 {
			c.Next()
			return
		}

		if missing := auth.MissingScopes(ac.Scopes(), op.Scopes); len(missing) > 0 {
			telemetry.AuthFailuresTotal.WithLabelValues(string(auth.AuthTypeAPIKey), "scope").Inc()
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "Missing required scope",
				"details": "Required scope: " + strings.Join(missing, ", "),
			})
			return
		}

		c.Next()
	}
}
