// project_repository.go implements ProjectRepository: projects and their membership rows.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/msgcore/msgcore-sub001/internal/db/models"
)

// ProjectRepository handles project and membership database operations
type ProjectRepository struct {
	db *sql.DB
}

// NewProjectRepository creates a new ProjectRepository
func NewProjectRepository(db *sql.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

const projectColumns = `id, slug, name, description, owner_id, created_at, updated_at`

func scanProject(row interface{ Scan(...interface{}) error }) (*models.Project, error) {
	p := &models.Project{}
	err := row.Scan(
		&p.ID,
		&p.Slug,
		&p.Name,
		&p.Description,
		&p.OwnerID,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// CreateProjectWithOwner inserts the project and the owner's membership row in one transaction
func (r *ProjectRepository) CreateProjectWithOwner(ctx context.Context, project *models.Project) error {
	project.ID = uuid.New().String()
	project.CreatedAt = time.Now()
	project.UpdatedAt = project.CreatedAt

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO projects (id, slug, name, description, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, project.ID, project.Slug, project.Name, project.Description, project.OwnerID, project.CreatedAt, project.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO project_members (project_id, user_id, role, created_at)
		VALUES ($1, $2, 'owner', $3)
	`, project.ID, project.OwnerID, project.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to add project owner: %w", err)
	}

	return tx.Commit()
}

// GetByID retrieves a project by ID
func (r *ProjectRepository) GetByID(ctx context.Context, id string) (*models.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE id = $1`

	p, err := scanProject(r.db.QueryRowContext(ctx, query, id))
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// GetBySlug retrieves a project by slug
func (r *ProjectRepository) GetBySlug(ctx context.Context, slug string) (*models.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE slug = $1`

	p, err := scanProject(r.db.QueryRowContext(ctx, query, slug))
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListForUser returns every project the user belongs to, with the user's role
func (r *ProjectRepository) ListForUser(ctx context.Context, userID string) ([]*models.ProjectWithRole, error) {
	query := `
		SELECT p.id, p.slug, p.name, p.description, p.owner_id, p.created_at, p.updated_at, pm.role
		FROM projects p
		JOIN project_members pm ON pm.project_id = p.id
		WHERE pm.user_id = $1
		ORDER BY p.name
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	projects := make([]*models.ProjectWithRole, 0)
	for rows.Next() {
		p := &models.ProjectWithRole{}
		err := rows.Scan(
			&p.ID,
			&p.Slug,
			&p.Name,
			&p.Description,
			&p.OwnerID,
			&p.CreatedAt,
			&p.UpdatedAt,
			&p.Role,
		)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}

	return projects, rows.Err()
}

// Update updates a project's name and description
func (r *ProjectRepository) Update(ctx context.Context, project *models.Project) error {
	project.UpdatedAt = time.Now()

	query := `UPDATE projects SET name = $2, description = $3, updated_at = $4 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, project.ID, project.Name, project.Description, project.UpdatedAt)
	return err
}

// Delete removes a project; dependent rows cascade
func (r *ProjectRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
	return err
}

// GetMember returns the membership row of userID in projectID, or nil
func (r *ProjectRepository) GetMember(ctx context.Context, projectID, userID string) (*models.ProjectMember, error) {
	query := `
		SELECT project_id, user_id, role, created_at
		FROM project_members
		WHERE project_id = $1 AND user_id = $2
	`

	m := &models.ProjectMember{}
	err := r.db.QueryRowContext(ctx, query, projectID, userID).Scan(
		&m.ProjectID,
		&m.UserID,
		&m.Role,
		&m.CreatedAt,
	)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ListMembers returns the members of a project with user details
func (r *ProjectRepository) ListMembers(ctx context.Context, projectID string) ([]*models.ProjectMemberWithUser, error) {
	query := `
		SELECT pm.project_id, pm.user_id, pm.role, pm.created_at, u.name, u.email
		FROM project_members pm
		JOIN users u ON u.id = pm.user_id
		WHERE pm.project_id = $1
		ORDER BY pm.created_at
	`

	rows, err := r.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := make([]*models.ProjectMemberWithUser, 0)
	for rows.Next() {
		m := &models.ProjectMemberWithUser{}
		err := rows.Scan(
			&m.ProjectID,
			&m.UserID,
			&m.Role,
			&m.CreatedAt,
			&m.UserName,
			&m.UserEmail,
		)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}

	return members, rows.Err()
}

// AddMember inserts a membership row
func (r *ProjectRepository) AddMember(ctx context.Context, member *models.ProjectMember) error {
	member.CreatedAt = time.Now()

	query := `
		INSERT INTO project_members (project_id, user_id, role, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.db.ExecContext(ctx, query, member.ProjectID, member.UserID, member.Role, member.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to add project member: %w", err)
	}
	return nil
}

// UpdateMemberRole changes a member's role. Returns false when no such member exists.
func (r *ProjectRepository) UpdateMemberRole(ctx context.Context, projectID, userID, role string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE project_members SET role = $3 WHERE project_id = $1 AND user_id = $2`,
		projectID, userID, role,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update project member: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RemoveMember deletes a membership row. Returns false when no such member exists.
func (r *ProjectRepository) RemoveMember(ctx context.Context, projectID, userID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM project_members WHERE project_id = $1 AND user_id = $2`,
		projectID, userID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to remove project member: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
