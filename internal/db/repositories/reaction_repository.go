// reaction_repository.go implements ReactionRepository over the append-only received_reactions log.
package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/msgcore/msgcore-sub001/internal/db/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// ReactionRepository reads the reaction event log
type ReactionRepository struct {
	db *sqlx.DB
}

// NewReactionRepository creates a new reaction repository
func NewReactionRepository(db *sqlx.DB) *ReactionRepository {
	return &ReactionRepository{db: db}
}

// ListForMessages returns every reaction event for the given messages in one query,
// newest first. Ties on received_at are broken by id so repeated reads return the same order.
func (r *ReactionRepository) ListForMessages(ctx context.Context, projectID string, keys []MessageKey) ([]models.ReactionEvent, error) {
	events := make([]models.ReactionEvent, 0)
	if len(keys) == 0 {
		return events, nil
	}

	platformIDs, messageIDs := splitMessageKeys(keys)

	query := `
		SELECT rr.id, rr.project_id, rr.platform_id, rr.platform, rr.provider_message_id, rr.provider_chat_id,
		       rr.provider_user_id, rr.user_display, rr.emoji, rr.reaction_type, rr.raw_data, rr.received_at
		FROM received_reactions rr
		JOIN unnest($2::uuid[], $3::text[]) AS k(platform_id, provider_message_id)
		  ON rr.platform_id = k.platform_id AND rr.provider_message_id = k.provider_message_id
		WHERE rr.project_id = $1
		ORDER BY rr.received_at DESC, rr.id DESC
	`

	if err := r.db.SelectContext(ctx, &events, query, projectID, pq.Array(platformIDs), pq.Array(messageIDs)); err != nil {
		return nil, fmt.Errorf("failed to list reactions: %w", err)
	}

	return events, nil
}

// DeleteOlderThan purges reaction events received before cutoff
func (r *ReactionRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM received_reactions WHERE received_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge reactions: %w", err)
	}
	return res.RowsAffected()
}
