package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/msgcore/msgcore-sub001/internal/auth"
	"github.com/msgcore/msgcore-sub001/internal/middleware"
	"github.com/msgcore/msgcore-sub001/internal/services"
)

// AccountService is the slice of services.AccountService the handlers use
type AccountService interface {
	Signup(ctx context.Context, in services.SignupInput) (*services.Session, error)
	Login(ctx context.Context, in services.LoginInput) (*services.Session, error)
	Whoami(ctx context.Context, ac *auth.AuthContext) (*services.Whoami, error)
}

// AccountHandlers handles local signup, login and whoami
type AccountHandlers struct {
	accounts AccountService
}

// NewAccountHandlers creates a new AccountHandlers instance
func NewAccountHandlers(accounts AccountService) *AccountHandlers {
	return &AccountHandlers{accounts: accounts}
}

// SignupHandler registers a local account and returns a session
// POST /api/v1/auth/signup
func (h *AccountHandlers) SignupHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req services.SignupInput
		if !bindJSON(c, &req) {
			return
		}
		session, err := h.accounts.Signup(c.Request.Context(), req)
		if err != nil {
			respondError(c, err, "Failed to create account")
			return
		}
		c.JSON(http.StatusCreated, session)
	}
}

// LoginHandler exchanges an email and password for a session.
// Unknown emails and wrong passwords produce the same response.
// POST /api/v1/auth/login
func (h *AccountHandlers) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req services.LoginInput
		if !bindJSON(c, &req) {
			return
		}
		session, err := h.accounts.Login(c.Request.Context(), req)
		if err != nil {
			respondError(c, err, "Failed to log in")
			return
		}
		c.JSON(http.StatusOK, session)
	}
}

// WhoamiHandler describes the authenticated principal
// GET /api/v1/auth/whoami
func (h *AccountHandlers) WhoamiHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		who, err := h.accounts.Whoami(c.Request.Context(), middleware.GetAuthContext(c))
		if err != nil {
			respondError(c, err, "Failed to load principal")
			return
		}
		c.JSON(http.StatusOK, who)
	}
}
