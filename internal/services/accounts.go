package services

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/msgcore/msgcore-sub001/internal/auth"
	"github.com/msgcore/msgcore-sub001/internal/db/models"
)

// MinPasswordLength is enforced on signup
const MinPasswordLength = 8

// AccountService handles local signup, login and the whoami lookup
type AccountService struct {
	users       UserAccountStore
	tokenExpiry time.Duration
	issueToken  func(userID, email string, expiresIn time.Duration) (string, error)
	bcryptCost  int
}

// NewAccountService creates an AccountService issuing tokens valid for tokenExpiry
func NewAccountService(users UserAccountStore, tokenExpiry time.Duration) *AccountService {
	if tokenExpiry <= 0 {
		tokenExpiry = 24 * time.Hour
	}
	return &AccountService{
		users:       users,
		tokenExpiry: tokenExpiry,
		issueToken:  auth.GenerateJWT,
		bcryptCost:  bcrypt.DefaultCost,
	}
}

// SignupInput registers a local account
type SignupInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// LoginInput authenticates a local account
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Session is returned by signup and login
type Session struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresIn   int64        `json:"expires_in"`
	User        *models.User `json:"user"`
}

// Whoami describes the authenticated principal
type Whoami struct {
	AuthType auth.AuthType    `json:"auth_type"`
	User     *models.User     `json:"user,omitempty"`
	Project  *auth.ProjectRef `json:"project,omitempty"`
	Scopes   []string         `json:"scopes,omitempty"`
}

// Signup creates a local user and returns a session for it
func (s *AccountService) Signup(ctx context.Context, in SignupInput) (*Session, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if len(in.Password) < MinPasswordLength {
		return nil, invalidf("password must be at least %d characters", MinPasswordLength)
	}

	existing, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	hashStr := string(hash)

	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = email
	}

	user := &models.User{
		Email:        email,
		Name:         name,
		PasswordHash: &hashStr,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	return s.session(user)
}

// Login checks a password and returns a session. Unknown emails, accounts without a
// local password and wrong passwords all yield ErrInvalidCredentials.
func (s *AccountService) Login(ctx context.Context, in LoginInput) (*Session, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || in.Password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil || user.PasswordHash == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(in.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.session(user)
}

// Whoami returns the principal behind ac
func (s *AccountService) Whoami(ctx context.Context, ac *auth.AuthContext) (*Whoami, error) {
	if ac == nil {
		return nil, auth.ValidateProjectAccess(nil, "", "auth.whoami")
	}

	out := &Whoami{AuthType: ac.AuthType}
	switch ac.AuthType {
	case auth.AuthTypeAPIKey:
		out.Project = ac.Project
		out.Scopes = ac.Scopes()
	case auth.AuthTypeJWT:
		user, err := s.users.GetUserByID(ctx, ac.UserID())
		if err != nil {
			return nil, fmt.Errorf("failed to get user: %w", err)
		}
		if user == nil {
			return nil, ErrUserNotFound
		}
		out.User = user
	}
	return out, nil
}

func (s *AccountService) session(user *models.User) (*Session, error) {
	token, err := s.issueToken(user.ID, user.Email, s.tokenExpiry)
	if err != nil {
		return nil, err
	}
	return &Session{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.tokenExpiry.Seconds()),
		User:        user,
	}, nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", invalidf("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", invalidf("invalid email address")
	}
	return email, nil
}
