// audit_repository.go implements AuditRepository: writes from the audit recorder, the
// project-scoped audit listing and the retention purge.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/msgcore/msgcore-sub001/internal/db/models"
)

// AuditRepository handles audit log database operations
type AuditRepository struct {
	db *sql.DB
}

// NewAuditRepository creates a new AuditRepository
func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// AuditFilters narrows a project's audit listing; nil fields are ignored
type AuditFilters struct {
	UserID       *string
	Action       *string
	ResourceType *string
	StartDate    *time.Time
	EndDate      *time.Time
}

// where renders the filters as a WHERE clause scoped to projectID
func (f AuditFilters) where(projectID string) (string, []interface{}) {
	conds := []string{"project_id = $1"}
	args := []interface{}{projectID}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.UserID != nil {
		add("user_id = $%d", *f.UserID)
	}
	if f.Action != nil {
		add("action = $%d", *f.Action)
	}
	if f.ResourceType != nil {
		add("resource_type = $%d", *f.ResourceType)
	}
	if f.StartDate != nil {
		add("created_at >= $%d", *f.StartDate)
	}
	if f.EndDate != nil {
		add("created_at <= $%d", *f.EndDate)
	}
	return strings.Join(conds, " AND "), args
}

// CreateAuditLog creates a new audit log entry
func (r *AuditRepository) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	log.ID = uuid.New().String()
	log.CreatedAt = time.Now()

	// Marshal metadata to JSONB
	var metadataJSON []byte
	var err error
	if log.Metadata != nil {
		metadataJSON, err = json.Marshal(log.Metadata)
		if err != nil {
			return err
		}
	}

	query := `
		INSERT INTO audit_logs (id, user_id, project_id, action, resource_type, resource_id, metadata, ip_address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = r.db.ExecContext(ctx, query,
		log.ID,
		log.UserID,
		log.ProjectID,
		log.Action,
		log.ResourceType,
		log.ResourceID,
		metadataJSON,
		log.IPAddress,
		log.CreatedAt,
	)

	return err
}

const auditColumns = `id, user_id, project_id, action, resource_type, resource_id, metadata, ip_address, created_at`

func scanAuditLog(row interface{ Scan(...interface{}) error }) (*models.AuditLog, error) {
	log := &models.AuditLog{}
	var metadataJSON []byte
	err := row.Scan(
		&log.ID,
		&log.UserID,
		&log.ProjectID,
		&log.Action,
		&log.ResourceType,
		&log.ResourceID,
		&metadataJSON,
		&log.IPAddress,
		&log.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if metadataJSON != nil {
		if err := json.Unmarshal(metadataJSON, &log.Metadata); err != nil {
			return nil, err
		}
	}
	return log, nil
}

// ListAuditLogs returns a page of a project's audit entries, newest first, and the filtered total
func (r *AuditRepository) ListAuditLogs(ctx context.Context, projectID string, filters AuditFilters, limit, offset int) ([]*models.AuditLog, int, error) {
	where, args := filters.where(projectID)

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_logs WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count audit logs: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM audit_logs WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		auditColumns, where, len(args)+1, len(args)+2)
	rows, err := r.db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list audit logs: %w", err)
	}
	defer rows.Close()

	logs := make([]*models.AuditLog, 0)
	for rows.Next() {
		log, err := scanAuditLog(rows)
		if err != nil {
			return nil, 0, err
		}
		logs = append(logs, log)
	}
	return logs, total, rows.Err()
}

// GetAuditLog retrieves one of a project's audit entries
func (r *AuditRepository) GetAuditLog(ctx context.Context, projectID, logID string) (*models.AuditLog, error) {
	log, err := scanAuditLog(r.db.QueryRowContext(ctx,
		`SELECT `+auditColumns+` FROM audit_logs WHERE id = $1 AND project_id = $2`, logID, projectID))
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return log, nil
}

// DeleteOlderThan purges audit entries created before cutoff and returns the number removed
func (r *AuditRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM audit_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge audit logs: %w", err)
	}
	return res.RowsAffected()
}
