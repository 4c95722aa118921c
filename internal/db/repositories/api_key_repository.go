// api_key_repository.go implements APIKeyRepository, providing database queries for API key
// lookup by hash, creation, listing, soft revocation, rolling, and last-used timestamp updates.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/msgcore/msgcore-sub001/internal/db/models"
)

// APIKeyRepository handles API key database operations
type APIKeyRepository struct {
	db *sql.DB
}

// NewAPIKeyRepository creates a new APIKeyRepository
func NewAPIKeyRepository(db *sql.DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

const apiKeyColumns = `id, project_id, created_by, name, key_hash, key_prefix, key_suffix, scopes, expires_at, revoked_at, last_used_at, created_at`

func scanAPIKey(row interface{ Scan(...interface{}) error }) (*models.APIKey, error) {
	apiKey := &models.APIKey{}
	var scopesJSON []byte

	err := row.Scan(
		&apiKey.ID,
		&apiKey.ProjectID,
		&apiKey.CreatedBy,
		&apiKey.Name,
		&apiKey.KeyHash,
		&apiKey.KeyPrefix,
		&apiKey.KeySuffix,
		&scopesJSON,
		&apiKey.ExpiresAt,
		&apiKey.RevokedAt,
		&apiKey.LastUsedAt,
		&apiKey.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	// Unmarshal scopes from JSONB
	apiKey.Scopes = []string{}
	if len(scopesJSON) > 0 {
		if err := json.Unmarshal(scopesJSON, &apiKey.Scopes); err != nil {
			return nil, fmt.Errorf("failed to decode api key scopes: %w", err)
		}
	}

	return apiKey, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func insertAPIKey(ctx context.Context, ex execer, apiKey *models.APIKey) error {
	apiKey.ID = uuid.New().String()
	apiKey.CreatedAt = time.Now()

	if apiKey.Scopes == nil {
		apiKey.Scopes = []string{}
	}
	scopesJSON, err := json.Marshal(apiKey.Scopes)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO api_keys (id, project_id, created_by, name, key_hash, key_prefix, key_suffix, scopes, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = ex.ExecContext(ctx, query,
		apiKey.ID,
		apiKey.ProjectID,
		apiKey.CreatedBy,
		apiKey.Name,
		apiKey.KeyHash,
		apiKey.KeyPrefix,
		apiKey.KeySuffix,
		scopesJSON,
		apiKey.ExpiresAt,
		apiKey.CreatedAt,
	)
	return err
}

// CreateAPIKey creates a new API key
func (r *APIKeyRepository) CreateAPIKey(ctx context.Context, apiKey *models.APIKey) error {
	if err := insertAPIKey(ctx, r.db, apiKey); err != nil {
		return fmt.Errorf("failed to create api key: %w", err)
	}
	return nil
}

// GetAPIKeyByHash retrieves an API key by its hash (for authentication).
// This is a point lookup on the unique key_hash index.
func (r *APIKeyRepository) GetAPIKeyByHash(ctx context.Context, keyHash string) (*models.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE key_hash = $1`

	apiKey, err := scanAPIKey(r.db.QueryRowContext(ctx, query, keyHash))
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return apiKey, nil
}

// GetAPIKeyByID retrieves an API key by ID
func (r *APIKeyRepository) GetAPIKeyByID(ctx context.Context, keyID string) (*models.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE id = $1`

	apiKey, err := scanAPIKey(r.db.QueryRowContext(ctx, query, keyID))
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return apiKey, nil
}

// ListByProject retrieves all API keys of a project, newest first.
// Revoked keys are included so the dashboard can show their state.
func (r *APIKeyRepository) ListByProject(ctx context.Context, projectID string) ([]*models.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE project_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	apiKeys := make([]*models.APIKey, 0)
	for rows.Next() {
		apiKey, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		apiKeys = append(apiKeys, apiKey)
	}

	return apiKeys, rows.Err()
}

// UpdateLastUsed updates the last_used_at timestamp
func (r *APIKeyRepository) UpdateLastUsed(ctx context.Context, keyID string) error {
	query := `UPDATE api_keys SET last_used_at = $1 WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, time.Now(), keyID)
	return err
}

// RevokeAPIKey soft-revokes a key at the given time. Rows are never deleted.
// Returns false when no unrevoked key with that id exists in the project.
func (r *APIKeyRepository) RevokeAPIKey(ctx context.Context, projectID, keyID string, at time.Time) (bool, error) {
	query := `
		UPDATE api_keys SET revoked_at = $1
		WHERE id = $2 AND project_id = $3 AND (revoked_at IS NULL OR revoked_at > $1)
	`
	res, err := r.db.ExecContext(ctx, query, at, keyID, projectID)
	if err != nil {
		return false, fmt.Errorf("failed to revoke api key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RollAPIKey inserts newKey and schedules oldKeyID to be revoked at revokeOldAt in a single transaction.
// Neither write is visible unless both succeed.
func (r *APIKeyRepository) RollAPIKey(ctx context.Context, oldKeyID string, newKey *models.APIKey, revokeOldAt time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // nolint:errcheck

	if err := insertAPIKey(ctx, tx, newKey); err != nil {
		return fmt.Errorf("failed to create rolled api key: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE api_keys SET revoked_at = $1 WHERE id = $2 AND project_id = $3 AND revoked_at IS NULL`,
		revokeOldAt, oldKeyID, newKey.ProjectID,
	)
	if err != nil {
		return fmt.Errorf("failed to schedule revocation of old api key: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return fmt.Errorf("failed to schedule revocation of old api key: %w", sql.ErrNoRows)
	}

	return tx.Commit()
}
