// platform_repository.go implements PlatformRepository for per-project chat platform integrations.
package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/msgcore/msgcore-sub001/internal/db/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// PlatformRepository handles database operations for project platforms
type PlatformRepository struct {
	db *sqlx.DB
}

// NewPlatformRepository creates a new platform repository
func NewPlatformRepository(db *sqlx.DB) *PlatformRepository {
	return &PlatformRepository{db: db}
}

const platformColumns = `id, project_id, platform, name, is_active, test_mode, credentials_encrypted, webhook_token, created_at, updated_at`

// Create inserts a platform configuration
func (r *PlatformRepository) Create(ctx context.Context, p *models.ProjectPlatform) error {
	p.ID = uuid.New().String()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt

	query := `
		INSERT INTO project_platforms (
			id, project_id, platform, name, is_active, test_mode, credentials_encrypted, webhook_token, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(ctx, query,
		p.ID,
		p.ProjectID,
		p.Platform,
		p.Name,
		p.IsActive,
		p.TestMode,
		p.CredentialsEncrypted,
		p.WebhookToken,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create platform: %w", err)
	}

	return nil
}

// GetByID retrieves a platform scoped to a project
func (r *PlatformRepository) GetByID(ctx context.Context, projectID, id string) (*models.ProjectPlatform, error) {
	var p models.ProjectPlatform
	query := `SELECT ` + platformColumns + ` FROM project_platforms WHERE id = $1 AND project_id = $2`

	err := r.db.GetContext(ctx, &p, query, id, projectID)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get platform: %w", err)
	}

	return &p, nil
}

// ListByProject returns all platforms of a project
func (r *PlatformRepository) ListByProject(ctx context.Context, projectID string) ([]models.ProjectPlatform, error) {
	platforms := make([]models.ProjectPlatform, 0)
	query := `SELECT ` + platformColumns + ` FROM project_platforms WHERE project_id = $1 ORDER BY created_at`

	if err := r.db.SelectContext(ctx, &platforms, query, projectID); err != nil {
		return nil, fmt.Errorf("failed to list platforms: %w", err)
	}

	return platforms, nil
}

// Update persists mutable platform fields
func (r *PlatformRepository) Update(ctx context.Context, p *models.ProjectPlatform) error {
	p.UpdatedAt = time.Now()

	query := `
		UPDATE project_platforms
		SET name = $3, is_active = $4, test_mode = $5, credentials_encrypted = $6, updated_at = $7
		WHERE id = $1 AND project_id = $2
	`
	_, err := r.db.ExecContext(ctx, query,
		p.ID,
		p.ProjectID,
		p.Name,
		p.IsActive,
		p.TestMode,
		p.CredentialsEncrypted,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update platform: %w", err)
	}
	return nil
}

// Delete removes a platform. Returns false when it did not exist in the project.
func (r *PlatformRepository) Delete(ctx context.Context, projectID, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM project_platforms WHERE id = $1 AND project_id = $2`, id, projectID)
	if err != nil {
		return false, fmt.Errorf("failed to delete platform: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
