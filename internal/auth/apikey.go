// Package auth provides authentication primitives for the gateway: API key generation and
// hashing, JWT creation/verification, scope and role checks, and the authentication resolver
// that turns request headers into an AuthContext.
//
// API keys are stored as a SHA-256 digest. The digest is deterministic, so a presented key is
// found with a single indexed lookup on key_hash rather than by comparing against every row.
// See internal/middleware/auth.go for the request-time wiring.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	// APIKeyLength is the length of the random part of the API key in bytes
	APIKeyLength = 32

	// DisplayPrefixLength is the number of leading characters kept for display
	DisplayPrefixLength = 10

	// DisplaySuffixLength is the number of trailing characters kept for display
	DisplaySuffixLength = 4
)

// GeneratedAPIKey is the result of GenerateAPIKey. Key is shown to the caller once and never stored.
type GeneratedAPIKey struct {
	Key    string
	Hash   string
	Prefix string
	Suffix string
}

// GenerateAPIKey creates a new random API key with the given prefix
func GenerateAPIKey(prefix string) (*GeneratedAPIKey, error) {
	randomBytes := make([]byte, APIKeyLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}

	randomPart := base64.RawURLEncoding.EncodeToString(randomBytes)
	fullKey := fmt.Sprintf("%s_%s", strings.TrimSuffix(prefix, "_"), randomPart)

	return &GeneratedAPIKey{
		Key:    fullKey,
		Hash:   HashAPIKey(fullKey),
		Prefix: fullKey[:DisplayPrefixLength],
		Suffix: fullKey[len(fullKey)-DisplaySuffixLength:],
	}, nil
}

// HashAPIKey returns the hex SHA-256 digest used as the api_keys.key_hash lookup value
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// ExtractBearerToken extracts the token from an Authorization header
// Expected format: "Bearer eyJhbGciOi..."
func ExtractBearerToken(header string) (string, error) {
	if header == "" {
		return "", errors.New("authorization header is empty")
	}

	if !strings.HasPrefix(header, "Bearer ") {
		return "", errors.New("authorization header must start with 'Bearer '")
	}

	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return "", errors.New("token is empty after Bearer prefix")
	}

	return token, nil
}
