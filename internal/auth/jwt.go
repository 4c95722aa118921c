// Package auth - jwt.go handles local JWT creation, signing, and verification
// using a shared secret, including lazy secret initialization and claims parsing.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTSecretEnv is the environment variable holding the local signing secret
const JWTSecretEnv = "MSGCORE_JWT_SECRET"

// ErrJWTNotConfigured is returned when no local signing secret is available
var ErrJWTNotConfigured = errors.New("local JWT secret is not configured")

var (
	// jwtSecret holds the validated JWT secret
	jwtSecret     string
	jwtSecretOnce sync.Once
	jwtSecretErr  error
)

// Claims represents the JWT claims structure
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// isDevMode checks if we're in development mode (duplicated here to avoid import cycle)
func isDevMode() bool {
	devMode := os.Getenv("DEV_MODE")
	ginMode := os.Getenv("GIN_MODE")

	return devMode == "true" || devMode == "1" || ginMode == "debug"
}

// generateRandomSecret creates a cryptographically secure random secret
func generateRandomSecret() string {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("dev-fallback-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}

// ValidateJWTSecret loads the local signing secret once.
// In dev mode a missing secret is replaced by a random one. Outside dev mode a missing
// secret yields ErrJWTNotConfigured and local JWTs are disabled; API keys and the
// external issuer keep working.
func ValidateJWTSecret() error {
	jwtSecretOnce.Do(func() {
		secret := os.Getenv(JWTSecretEnv)

		if secret == "" {
			if isDevMode() {
				jwtSecret = generateRandomSecret()
				slog.Warn("MSGCORE_JWT_SECRET not set, using an auto-generated secret for development; sessions will not survive a restart")
			} else {
				jwtSecretErr = ErrJWTNotConfigured
			}
			return
		}

		if len(secret) < 32 {
			slog.Warn("MSGCORE_JWT_SECRET is shorter than the recommended 32 characters")
		}

		jwtSecret = secret
	})

	return jwtSecretErr
}

// LocalJWTConfigured reports whether local tokens can be issued and verified
func LocalJWTConfigured() bool {
	return ValidateJWTSecret() == nil && jwtSecret != ""
}

// GenerateJWT creates a JWT token for an authenticated user
func GenerateJWT(userID, email string, expiresIn time.Duration) (string, error) {
	if err := ValidateJWTSecret(); err != nil {
		return "", err
	}

	if expiresIn == 0 {
		expiresIn = 1 * time.Hour
	}

	claims := &Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "msgcore",
			Subject:   userID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString([]byte(jwtSecret))
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// ValidateJWT parses and validates a locally issued JWT token
func ValidateJWT(tokenString string) (*Claims, error) {
	if err := ValidateJWTSecret(); err != nil {
		return nil, err
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(jwtSecret), nil
	})

	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("invalid claims type")
	}

	if claims.UserID == "" {
		return nil, errors.New("token has no user_id claim")
	}

	return claims, nil
}
