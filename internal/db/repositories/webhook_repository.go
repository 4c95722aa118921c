// webhook_repository.go implements WebhookRepository for project event subscriptions.
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

// WebhookRepository handles webhook subscription database operations
type WebhookRepository struct {
	db *sql.DB
}

// NewWebhookRepository creates a new WebhookRepository
func NewWebhookRepository(db *sql.DB) *WebhookRepository {
	return &WebhookRepository{db: db}
}

const webhookColumns = `id, project_id, name, url, events, secret, is_active, created_at, updated_at`

func scanWebhook(row interface{ Scan(...interface{}) error }) (*models.Webhook, error) {
	w := &models.Webhook{}
	var eventsJSON []byte
	err := row.Scan(
		&w.ID,
		&w.ProjectID,
		&w.Name,
		&w.URL,
		&eventsJSON,
		&w.Secret,
		&w.IsActive,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	w.Events = []string{}
	if len(eventsJSON) > 0 {
		if err := json.Unmarshal(eventsJSON, &w.Events); err != nil {
			return nil, fmt.Errorf("failed to decode webhook events: %w", err)
		}
	}
	return w, nil
}

// Create inserts a webhook subscription
func (r *WebhookRepository) Create(ctx context.Context, w *models.Webhook) error {
	w.ID = uuid.New().String()
	w.CreatedAt = time.Now()
	w.UpdatedAt = w.CreatedAt

	eventsJSON, err := json.Marshal(w.Events)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO project_webhooks (id, project_id, name, url, events, secret, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = r.db.ExecContext(ctx, query,
		w.ID, w.ProjectID, w.Name, w.URL, eventsJSON, w.Secret, w.IsActive, w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create webhook: %w", err)
	}
	return nil
}

// GetByID retrieves a webhook scoped to a project
func (r *WebhookRepository) GetByID(ctx context.Context, projectID, id string) (*models.Webhook, error) {
	query := `SELECT ` + webhookColumns + ` FROM project_webhooks WHERE id = $1 AND project_id = $2`

	w, err := scanWebhook(r.db.QueryRowContext(ctx, query, id, projectID))
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

// ListByProject returns all webhooks of a project
func (r *WebhookRepository) ListByProject(ctx context.Context, projectID string) ([]*models.Webhook, error) {
	query := `SELECT ` + webhookColumns + ` FROM project_webhooks WHERE project_id = $1 ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	webhooks := make([]*models.Webhook, 0)
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		webhooks = append(webhooks, w)
	}
	return webhooks, rows.Err()
}

// Update persists name, url, events and is_active
func (r *WebhookRepository) Update(ctx context.Context, w *models.Webhook) error {
	w.UpdatedAt = time.Now()

	eventsJSON, err := json.Marshal(w.Events)
	if err != nil {
		return err
	}

	query := `
		UPDATE project_webhooks
		SET name = $3, url = $4, events = $5, is_active = $6, updated_at = $7
		WHERE id = $1 AND project_id = $2
	`
	_, err = r.db.ExecContext(ctx, query, w.ID, w.ProjectID, w.Name, w.URL, eventsJSON, w.IsActive, w.UpdatedAt)
	return err
}

// Delete removes a webhook. Returns false when it did not exist in the project.
func (r *WebhookRepository) Delete(ctx context.Context, projectID, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM project_webhooks WHERE id = $1 AND project_id = $2`, id, projectID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
