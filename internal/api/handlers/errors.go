// Package handlers implements the project-scoped HTTP handlers of the gateway.
// Every handler reads the AuthContext stored by the auth middleware and hands it to the
// service layer, which re-validates project access before touching the store.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/msgcore/msgcore-sub001/internal/auth"
	"github.com/msgcore/msgcore-sub001/internal/middleware"
	"github.com/msgcore/msgcore-sub001/internal/services"
	"github.com/msgcore/msgcore-sub001/internal/telemetry"
)

var notFoundErrors = []error{
	services.ErrProjectNotFound,
	services.ErrMemberNotFound,
	services.ErrUserNotFound,
	services.ErrAPIKeyNotFound,
	services.ErrPlatformNotFound,
	services.ErrIdentityNotFound,
	services.ErrAliasNotFound,
	services.ErrMessageNotFound,
	services.ErrJobNotFound,
	services.ErrWebhookNotFound,
	services.ErrAuditLogNotFound,
}

var conflictErrors = []error{
	services.ErrSlugTaken,
	services.ErrEmailTaken,
	services.ErrAlreadyMember,
	services.ErrAliasTaken,
}

// respondError maps a service error onto an HTTP response. fallback is the message sent
// with a 500 so store details never leak to the caller.
func respondError(c *gin.Context, err error, fallback string) {
	var validation *services.ValidationError
	if errors.As(err, &validation) {
		c.JSON(http.StatusBadRequest, gin.H{"error": validation.Message})
		return
	}

	var access *auth.AccessError
	if errors.As(err, &access) {
		switch {
		case errors.Is(access, auth.ErrAuthContextMissing):
			op := c.GetString(middleware.OperationKey)
			slog.Error("authentication context missing at service layer",
				"operation", op,
				"path", c.FullPath(),
				"request_id", c.GetString(middleware.RequestIDKey))
			telemetry.AuthContextMissingTotal.WithLabelValues(op).Inc()
			c.JSON(http.StatusForbidden, gin.H{"error": access.Message})
		case errors.Is(access, auth.ErrUnauthenticated):
			c.JSON(http.StatusUnauthorized, gin.H{"error": access.Message})
		default:
			c.JSON(http.StatusForbidden, gin.H{"error": access.Message})
		}
		return
	}

	for _, target := range notFoundErrors {
		if errors.Is(err, target) {
			c.JSON(http.StatusNotFound, gin.H{"error": target.Error()})
			return
		}
	}
	for _, target := range conflictErrors {
		if errors.Is(err, target) {
			c.JSON(http.StatusConflict, gin.H{"error": target.Error()})
			return
		}
	}

	switch {
	case errors.Is(err, services.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": services.ErrInvalidCredentials.Error()})
	case errors.Is(err, services.ErrOwnerProtected), errors.Is(err, services.ErrPlatformInactive):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, auth.ErrJWTNotConfigured):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Local authentication is not configured"})
	default:
		slog.Error(fallback,
			"path", c.FullPath(),
			"request_id", c.GetString(middleware.RequestIDKey),
			"error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}

// bindJSON decodes the request body, answering 400 on failure
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return false
	}
	return true
}

// parsePage reads limit and offset query parameters
func parsePage(c *gin.Context) (services.Page, bool) {
	var page services.Page
	var ok bool
	if page.Limit, ok = queryInt(c, "limit"); !ok {
		return page, false
	}
	if page.Offset, ok = queryInt(c, "offset"); !ok {
		return page, false
	}
	return page, true
}

func queryInt(c *gin.Context, name string) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name + " parameter"})
		return 0, false
	}
	return n, true
}

func queryBool(c *gin.Context, name string) bool {
	v, _ := strconv.ParseBool(c.Query(name))
	return v
}

func queryString(c *gin.Context, name string) *string {
	v := strings.TrimSpace(c.Query(name))
	if v == "" {
		return nil
	}
	return &v
}

func queryTime(c *gin.Context, name string) (*time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name + " parameter, expected RFC3339"})
		return nil, false
	}
	return &t, true
}
