// message_repository.go implements MessageRepository: inbound message queries, stats,
// retention purges, and the outbound sent_messages job rows.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/msgcore/msgcore-sub001/internal/db/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// MessageRepository handles received and sent message database operations
type MessageRepository struct {
	db *sqlx.DB
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db *sqlx.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// ReceivedFilter narrows a received message listing
type ReceivedFilter struct {
	ProjectID  string
	PlatformID *string
	Platform   *string
	ChatID     *string
	UserID     *string
	Since      *time.Time
	Until      *time.Time
	Ascending  bool
	Limit      int
	Offset     int
}

const receivedColumns = `id, project_id, platform_id, platform, provider_message_id, provider_chat_id,
	provider_user_id, user_display, message_text, message_type, raw_data, received_at`

// ListReceived returns a page of received messages and the total matching count
func (r *MessageRepository) ListReceived(ctx context.Context, f ReceivedFilter) ([]models.ReceivedMessage, int, error) {
	where := []string{"project_id = $1"}
	args := []interface{}{f.ProjectID}

	add := func(clause string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if f.PlatformID != nil {
		add("platform_id = $%d", *f.PlatformID)
	}
	if f.Platform != nil {
		add("platform = $%d", *f.Platform)
	}
	if f.ChatID != nil {
		add("provider_chat_id = $%d", *f.ChatID)
	}
	if f.UserID != nil {
		add("provider_user_id = $%d", *f.UserID)
	}
	if f.Since != nil {
		add("received_at >= $%d", *f.Since)
	}
	if f.Until != nil {
		add("received_at <= $%d", *f.Until)
	}

	whereSQL := strings.Join(where, " AND ")

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM received_messages WHERE `+whereSQL, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count messages: %w", err)
	}

	order := "DESC"
	if f.Ascending {
		order = "ASC"
	}
	query := fmt.Sprintf(`SELECT %s FROM received_messages WHERE %s ORDER BY received_at %s LIMIT $%d OFFSET $%d`,
		receivedColumns, whereSQL, order, len(args)+1, len(args)+2)
	args = append(args, f.Limit, f.Offset)

	messages := make([]models.ReceivedMessage, 0)
	if err := r.db.SelectContext(ctx, &messages, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list messages: %w", err)
	}

	return messages, total, nil
}

// GetReceived retrieves one received message scoped to a project
func (r *MessageRepository) GetReceived(ctx context.Context, projectID, id string) (*models.ReceivedMessage, error) {
	var m models.ReceivedMessage
	query := `SELECT ` + receivedColumns + ` FROM received_messages WHERE id = $1 AND project_id = $2`

	err := r.db.GetContext(ctx, &m, query, id, projectID)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return &m, nil
}

// Stats aggregates inbound and outbound counts for a project
func (r *MessageRepository) Stats(ctx context.Context, projectID string) (*models.MessageStats, error) {
	var stats models.MessageStats
	err := r.db.GetContext(ctx, &stats, `
		SELECT COUNT(*) AS total_messages,
		       COUNT(DISTINCT provider_user_id) AS unique_users,
		       COUNT(DISTINCT provider_chat_id) AS unique_chats
		FROM received_messages
		WHERE project_id = $1
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to compute message stats: %w", err)
	}

	stats.ByPlatform = make([]models.PlatformCount, 0)
	err = r.db.SelectContext(ctx, &stats.ByPlatform, `
		SELECT platform, COUNT(*) AS count
		FROM received_messages
		WHERE project_id = $1
		GROUP BY platform
		ORDER BY platform
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to compute platform stats: %w", err)
	}

	var sent struct {
		Total  int64 `db:"total"`
		Failed int64 `db:"failed"`
	}
	err = r.db.GetContext(ctx, &sent, `
		SELECT COUNT(*) AS total,
		       COUNT(*) FILTER (WHERE status = 'failed') AS failed
		FROM sent_messages
		WHERE project_id = $1
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to compute sent stats: %w", err)
	}
	stats.SentTotal = sent.Total
	stats.SentFailed = sent.Failed

	return &stats, nil
}

// DeleteReceivedOlderThan purges received messages before cutoff.
// An empty projectID purges across all projects (used by the retention job).
func (r *MessageRepository) DeleteReceivedOlderThan(ctx context.Context, projectID string, cutoff time.Time) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if projectID == "" {
		res, err = r.db.ExecContext(ctx, `DELETE FROM received_messages WHERE received_at < $1`, cutoff)
	} else {
		res, err = r.db.ExecContext(ctx, `DELETE FROM received_messages WHERE project_id = $1 AND received_at < $2`, projectID, cutoff)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to purge messages: %w", err)
	}
	return res.RowsAffected()
}

// CreateSent inserts the rows of an outbound job in pending state. The rows are
// written in one transaction, so a job is either fully recorded or not at all.
func (r *MessageRepository) CreateSent(ctx context.Context, rows ...*models.SentMessage) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // nolint:errcheck

	now := time.Now()
	for _, m := range rows {
		m.ID = uuid.New().String()
		m.CreatedAt = now
		if m.Status == "" {
			m.Status = models.SentStatusPending
		}
		if len(m.Payload) == 0 {
			m.Payload = []byte(`{}`)
		}
		if err := insertSent(ctx, tx, m); err != nil {
			return fmt.Errorf("failed to create sent message: %w", err)
		}
	}

	return tx.Commit()
}

func insertSent(ctx context.Context, tx *sqlx.Tx, m *models.SentMessage) error {
	query := `
		INSERT INTO sent_messages (
			id, project_id, platform_id, platform, job_id, action, target_chat_id, target_user_id,
			target_type, message_text, payload, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := tx.ExecContext(ctx, query,
		m.ID,
		m.ProjectID,
		m.PlatformID,
		m.Platform,
		m.JobID,
		m.Action,
		m.TargetChatID,
		m.TargetUserID,
		m.TargetType,
		m.MessageText,
		[]byte(m.Payload),
		m.Status,
		m.CreatedAt,
	)
	return err
}

// SetSentStatus moves the given sent rows to status, recording errMsg when non-nil
func (r *MessageRepository) SetSentStatus(ctx context.Context, ids []string, status string, errMsg *string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE sent_messages SET status = $2, error_message = $3 WHERE id = ANY($1)`,
		pq.Array(ids), status, errMsg,
	)
	if err != nil {
		return fmt.Errorf("failed to update sent message status: %w", err)
	}
	return nil
}

const sentColumns = `id, project_id, platform_id, platform, job_id, action, target_chat_id, target_user_id,
	target_type, message_text, payload, status, error_message, created_at, sent_at`

// ListSent returns a page of outbound jobs, optionally filtered by status
func (r *MessageRepository) ListSent(ctx context.Context, projectID string, status *string, limit, offset int) ([]models.SentMessage, error) {
	messages := make([]models.SentMessage, 0)

	var err error
	if status != nil {
		err = r.db.SelectContext(ctx, &messages,
			`SELECT `+sentColumns+` FROM sent_messages WHERE project_id = $1 AND status = $2 ORDER BY created_at DESC LIMIT $3 OFFSET $4`,
			projectID, *status, limit, offset)
	} else {
		err = r.db.SelectContext(ctx, &messages,
			`SELECT `+sentColumns+` FROM sent_messages WHERE project_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
			projectID, limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list sent messages: %w", err)
	}
	return messages, nil
}

// GetSentByJobID returns the rows of one job within a project
func (r *MessageRepository) GetSentByJobID(ctx context.Context, projectID, jobID string) ([]models.SentMessage, error) {
	messages := make([]models.SentMessage, 0)
	err := r.db.SelectContext(ctx, &messages,
		`SELECT `+sentColumns+` FROM sent_messages WHERE project_id = $1 AND job_id = $2 ORDER BY created_at`,
		projectID, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return messages, nil
}
