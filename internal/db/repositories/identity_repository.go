// identity_repository.go implements IdentityRepository: cross-platform identities, their
// aliases, and the batched alias resolution used when rendering reactions.
package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/msgcore/msgcore-sub001/internal/db/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// IdentityRepository handles identity and alias database operations
type IdentityRepository struct {
	db *sqlx.DB
}

// NewIdentityRepository creates a new identity repository
func NewIdentityRepository(db *sqlx.DB) *IdentityRepository {
	return &IdentityRepository{db: db}
}

const identityColumns = `id, project_id, display_name, email, metadata, created_at, updated_at`

const aliasColumns = `id, identity_id, project_id, platform_id, platform, provider_user_id, provider_user_display, link_method, linked_at`

// Create inserts an identity
func (r *IdentityRepository) Create(ctx context.Context, ident *models.Identity) error {
	ident.ID = uuid.New().String()
	ident.CreatedAt = time.Now()
	ident.UpdatedAt = ident.CreatedAt
	if len(ident.Metadata) == 0 {
		ident.Metadata = []byte(`{}`)
	}

	query := `
		INSERT INTO identities (id, project_id, display_name, email, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		ident.ID, ident.ProjectID, ident.DisplayName, ident.Email, []byte(ident.Metadata), ident.CreatedAt, ident.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create identity: %w", err)
	}
	return nil
}

// GetByID retrieves an identity with its aliases, scoped to a project
func (r *IdentityRepository) GetByID(ctx context.Context, projectID, id string) (*models.Identity, error) {
	var ident models.Identity
	err := r.db.GetContext(ctx, &ident,
		`SELECT `+identityColumns+` FROM identities WHERE id = $1 AND project_id = $2`, id, projectID)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}

	ident.Aliases = make([]models.IdentityAlias, 0)
	err = r.db.SelectContext(ctx, &ident.Aliases,
		`SELECT `+aliasColumns+` FROM identity_aliases WHERE identity_id = $1 ORDER BY linked_at`, ident.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list identity aliases: %w", err)
	}

	return &ident, nil
}

// List returns a page of identities of a project with their aliases attached.
// Aliases for the whole page are loaded with a single query.
func (r *IdentityRepository) List(ctx context.Context, projectID string, limit, offset int) ([]models.Identity, error) {
	identities := make([]models.Identity, 0)
	err := r.db.SelectContext(ctx, &identities,
		`SELECT `+identityColumns+` FROM identities WHERE project_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		projectID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list identities: %w", err)
	}
	if len(identities) == 0 {
		return identities, nil
	}

	ids := make([]string, len(identities))
	for i := range identities {
		ids[i] = identities[i].ID
		identities[i].Aliases = make([]models.IdentityAlias, 0)
	}

	var aliases []models.IdentityAlias
	err = r.db.SelectContext(ctx, &aliases,
		`SELECT `+aliasColumns+` FROM identity_aliases WHERE identity_id = ANY($1) ORDER BY linked_at`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to list identity aliases: %w", err)
	}

	byIdentity := make(map[string]int, len(identities))
	for i := range identities {
		byIdentity[identities[i].ID] = i
	}
	for _, a := range aliases {
		if i, ok := byIdentity[a.IdentityID]; ok {
			identities[i].Aliases = append(identities[i].Aliases, a)
		}
	}

	return identities, nil
}

// Update persists display name, email and metadata
func (r *IdentityRepository) Update(ctx context.Context, ident *models.Identity) error {
	ident.UpdatedAt = time.Now()
	if len(ident.Metadata) == 0 {
		ident.Metadata = []byte(`{}`)
	}

	_, err := r.db.ExecContext(ctx, `
		UPDATE identities SET display_name = $3, email = $4, metadata = $5, updated_at = $6
		WHERE id = $1 AND project_id = $2
	`, ident.ID, ident.ProjectID, ident.DisplayName, ident.Email, []byte(ident.Metadata), ident.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update identity: %w", err)
	}
	return nil
}

// Delete removes an identity and, by cascade, its aliases
func (r *IdentityRepository) Delete(ctx context.Context, projectID, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM identities WHERE id = $1 AND project_id = $2`, id, projectID)
	if err != nil {
		return false, fmt.Errorf("failed to delete identity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// AddAlias links a platform user to an identity.
// The (platform_id, provider_user_id) pair is unique; a duplicate surfaces as a driver error.
func (r *IdentityRepository) AddAlias(ctx context.Context, a *models.IdentityAlias) error {
	a.ID = uuid.New().String()
	a.LinkedAt = time.Now()
	if a.LinkMethod == "" {
		a.LinkMethod = models.LinkMethodManual
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO identity_aliases (
			id, identity_id, project_id, platform_id, platform, provider_user_id, provider_user_display, link_method, linked_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, a.ID, a.IdentityID, a.ProjectID, a.PlatformID, a.Platform, a.ProviderUserID, a.ProviderUserDisplay, a.LinkMethod, a.LinkedAt)
	if err != nil {
		return fmt.Errorf("failed to add identity alias: %w", err)
	}
	return nil
}

// RemoveAlias unlinks an alias from an identity within a project
func (r *IdentityRepository) RemoveAlias(ctx context.Context, projectID, identityID, aliasID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM identity_aliases WHERE id = $1 AND identity_id = $2 AND project_id = $3`,
		aliasID, identityID, projectID)
	if err != nil {
		return false, fmt.Errorf("failed to remove identity alias: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// FindByPlatformUsers resolves many (platform_id, provider_user_id) pairs in one query.
// The stored project_id is returned with every row so callers can re-check tenancy.
func (r *IdentityRepository) FindByPlatformUsers(ctx context.Context, projectID string, keys []PlatformUserKey) ([]models.ResolvedAlias, error) {
	resolved := make([]models.ResolvedAlias, 0)
	if len(keys) == 0 {
		return resolved, nil
	}

	platformIDs, userIDs := splitPlatformUserKeys(keys)

	query := `
		SELECT ia.platform_id, ia.provider_user_id, ia.project_id, i.id AS identity_id,
		       i.display_name AS identity_display_name, i.email AS identity_email
		FROM identity_aliases ia
		JOIN identities i ON i.id = ia.identity_id
		JOIN unnest($2::uuid[], $3::text[]) AS k(platform_id, provider_user_id)
		  ON ia.platform_id = k.platform_id AND ia.provider_user_id = k.provider_user_id
		WHERE ia.project_id = $1
	`

	if err := r.db.SelectContext(ctx, &resolved, query, projectID, pq.Array(platformIDs), pq.Array(userIDs)); err != nil {
		return nil, fmt.Errorf("failed to resolve identity aliases: %w", err)
	}

	return resolved, nil
}

// LookupByPlatformUser returns the identity linked to one platform user in a project, or nil
func (r *IdentityRepository) LookupByPlatformUser(ctx context.Context, projectID, platformID, providerUserID string) (*models.Identity, error) {
	var identityID string
	err := r.db.GetContext(ctx, &identityID, `
		SELECT identity_id FROM identity_aliases
		WHERE platform_id = $1 AND provider_user_id = $2 AND project_id = $3
	`, platformID, providerUserID, projectID)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up identity alias: %w", err)
	}

	return r.GetByID(ctx, projectID, identityID)
}
