// Package repositories implements the data access layer (repository pattern) for the gateway.
// Each repository type encapsulates all database queries for a domain entity.
// Handlers and services never issue SQL directly; all database access goes through this layer, which keeps query logic testable in isolation.
package repositories

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/msgcore/msgcore-sub001/internal/auth"
	"github.com/msgcore/msgcore-sub001/internal/db/models"
)

// UserRepository handles user database operations
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, name, password_hash, external_sub, created_at, updated_at`

func scanUser(row interface{ Scan(...interface{}) error }) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.PasswordHash,
		&user.ExternalSub,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// CreateUser creates a new user
func (r *UserRepository) CreateUser(ctx context.Context, user *models.User) error {
	user.ID = uuid.New().String()
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt

	query := `
		INSERT INTO users (id, email, name, password_hash, external_sub, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.Name,
		user.PasswordHash,
		user.ExternalSub,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

func (r *UserRepository) getOne(ctx context.Context, where string, arg interface{}) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + where + ` = $1`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserByID retrieves a user by ID
func (r *UserRepository) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	return r.getOne(ctx, "id", userID)
}

// GetUserByEmail retrieves a user by email
func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, "email", email)
}

// GetUserByExternalSub retrieves a user by the external issuer's subject identifier
func (r *UserRepository) GetUserByExternalSub(ctx context.Context, sub string) (*models.User, error) {
	return r.getOne(ctx, "external_sub", sub)
}

// UpdateUser updates a user's profile fields
func (r *UserRepository) UpdateUser(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now()

	query := `
		UPDATE users
		SET email = $2, name = $3, updated_at = $4
		WHERE id = $1
	`

	_, err := r.db.ExecContext(ctx, query, user.ID, user.Email, user.Name, user.UpdatedAt)
	return err
}

// GetOrCreateUserByExternalSub finds the user provisioned for an external subject, creating it on first sight.
// Email and name are refreshed when the issuer reports new values. An issuer that reports no email gets a
// placeholder address derived from the subject. An email owned by another user returns auth.ErrIdentityConflict
// on creation and is left unchanged on refresh.
func (r *UserRepository) GetOrCreateUserByExternalSub(ctx context.Context, sub, email, name string) (*models.User, error) {
	user, err := r.GetUserByExternalSub(ctx, sub)
	if err != nil {
		return nil, err
	}

	if name == "" {
		name = email
	}

	if user != nil {
		return r.refreshExternalUser(ctx, user, email, name)
	}

	if email == "" {
		email = placeholderEmail(sub)
	}
	if name == "" {
		name = sub
	}

	owner, err := r.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if owner != nil {
		return nil, fmt.Errorf("email %s: %w", email, auth.ErrIdentityConflict)
	}

	newUser := &models.User{
		Email:       email,
		Name:        name,
		ExternalSub: &sub,
	}
	if err := r.CreateUser(ctx, newUser); err != nil {
		if !isUniqueViolation(err) {
			return nil, err
		}
		// Another request provisioned the same subject first
		existing, lookupErr := r.GetUserByExternalSub(ctx, sub)
		if lookupErr == nil && existing != nil {
			return existing, nil
		}
		return nil, fmt.Errorf("email %s: %w", email, auth.ErrIdentityConflict)
	}

	return newUser, nil
}

func (r *UserRepository) refreshExternalUser(ctx context.Context, user *models.User, email, name string) (*models.User, error) {
	changed := false
	if name != "" && user.Name != name {
		user.Name = name
		changed = true
	}
	if email != "" && user.Email != email {
		owner, err := r.GetUserByEmail(ctx, email)
		if err != nil {
			return nil, err
		}
		if owner == nil {
			user.Email = email
			changed = true
		}
	}
	if !changed {
		return user, nil
	}
	if err := r.UpdateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func placeholderEmail(sub string) string {
	sum := sha256.Sum256([]byte(sub))
	return "external-" + hex.EncodeToString(sum[:8]) + "@users.invalid"
}
