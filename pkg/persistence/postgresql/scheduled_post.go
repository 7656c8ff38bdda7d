package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/beaconops/flock/pkg/models"
	"github.com/beaconops/flock/pkg/persistence"
)

// ScheduledPostRepository handles scheduled-post database operations.
type ScheduledPostRepository struct {
	db *sql.DB
}

const scheduledPostColumns = `id, account_id, content, media_ids, scheduled_at,
	status, error_message, executed_at, created_at, updated_at`

func scanScheduledPost(row interface{ Scan(...any) error }) (*models.ScheduledPost, error) {
	var (
		post         models.ScheduledPost
		mediaIDs     []byte
		errorMessage sql.NullString
		executedAt   sql.NullTime
	)

	err := row.Scan(
		&post.ID,
		&post.AccountID,
		&post.Content,
		&mediaIDs,
		&post.ScheduledAt,
		&post.Status,
		&errorMessage,
		&executedAt,
		&post.CreatedAt,
		&post.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(mediaIDs) > 0 {
		if err := json.Unmarshal(mediaIDs, &post.MediaIDs); err != nil {
			return nil, err
		}
	}

	post.ErrorMessage = errorMessage.String

	if executedAt.Valid {
		post.ExecutedAt = &executedAt.Time
	}

	return &post, nil
}

func (r *ScheduledPostRepository) GetByID(ctx context.Context, id string) (*models.ScheduledPost, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+scheduledPostColumns+` FROM scheduled_posts WHERE id = $1`, id)

	post, err := scanScheduledPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewStoreError("GetByID", "scheduled_post", id, persistence.ErrPostNotFound)
	}

	if err != nil {
		return nil, persistence.NewStoreError("GetByID", "scheduled_post", id, err)
	}

	return post, nil
}

func (r *ScheduledPostRepository) Save(ctx context.Context, post *models.ScheduledPost) error {
	mediaIDs, err := json.Marshal(post.MediaIDs)
	if err != nil {
		return persistence.NewStoreError("Save", "scheduled_post", post.ID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO scheduled_posts (`+scheduledPostColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			account_id = EXCLUDED.account_id,
			content = EXCLUDED.content,
			media_ids = EXCLUDED.media_ids,
			scheduled_at = EXCLUDED.scheduled_at,
			status = EXCLUDED.status,
			error_message = EXCLUDED.error_message,
			executed_at = EXCLUDED.executed_at,
			updated_at = EXCLUDED.updated_at`,
		post.ID,
		post.AccountID,
		post.Content,
		mediaIDs,
		post.ScheduledAt,
		post.Status,
		nullString(post.ErrorMessage),
		nullTime(post.ExecutedAt),
		post.CreatedAt,
		post.UpdatedAt,
	)
	if err != nil {
		return persistence.NewStoreError("Save", "scheduled_post", post.ID, err)
	}

	return nil
}

func (r *ScheduledPostRepository) List(ctx context.Context) ([]*models.ScheduledPost, error) {
	return r.query(ctx, "List",
		`SELECT `+scheduledPostColumns+` FROM scheduled_posts ORDER BY scheduled_at`)
}

func (r *ScheduledPostRepository) PendingDue(ctx context.Context, now time.Time) ([]*models.ScheduledPost, error) {
	return r.query(ctx, "PendingDue",
		`SELECT `+scheduledPostColumns+` FROM scheduled_posts
		 WHERE status = $1 AND scheduled_at <= $2
		 ORDER BY scheduled_at`,
		models.ScheduledPostStatusPending, now)
}

func (r *ScheduledPostRepository) query(ctx context.Context, op, query string, args ...any) ([]*models.ScheduledPost, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistence.NewStoreError(op, "scheduled_post", "", err)
	}
	defer rows.Close()

	posts := make([]*models.ScheduledPost, 0)

	for rows.Next() {
		post, err := scanScheduledPost(rows)
		if err != nil {
			return nil, persistence.NewStoreError(op, "scheduled_post", "", err)
		}

		posts = append(posts, post)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewStoreError(op, "scheduled_post", "", err)
	}

	return posts, nil
}

// MarkProcessing claims a pending post. The conditional UPDATE is the
// exactly-once gate: only one caller observes a rows-affected count of one.
func (r *ScheduledPostRepository) MarkProcessing(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE scheduled_posts
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3`,
		models.ScheduledPostStatusProcessing, id, models.ScheduledPostStatusPending)
	if err != nil {
		return false, persistence.NewStoreError("MarkProcessing", "scheduled_post", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, persistence.NewStoreError("MarkProcessing", "scheduled_post", id, err)
	}

	return affected == 1, nil
}

func (r *ScheduledPostRepository) MarkCompleted(ctx context.Context, id string, executedAt time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE scheduled_posts
		SET status = $1, executed_at = $2, updated_at = $2
		WHERE id = $3`,
		models.ScheduledPostStatusCompleted, executedAt, id)

	return settleExec(result, err, "MarkCompleted", "scheduled_post", id, persistence.ErrPostNotFound)
}

func (r *ScheduledPostRepository) MarkFailed(ctx context.Context, id string, executedAt time.Time, reason string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE scheduled_posts
		SET status = $1, error_message = $2, executed_at = $3, updated_at = $3
		WHERE id = $4`,
		models.ScheduledPostStatusFailed, reason, executedAt, id)

	return settleExec(result, err, "MarkFailed", "scheduled_post", id, persistence.ErrPostNotFound)
}

// Cancel cancels a pending post. A post in any other status answers with an
// invalid transition.
func (r *ScheduledPostRepository) Cancel(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE scheduled_posts
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3`,
		models.ScheduledPostStatusCancelled, id, models.ScheduledPostStatusPending)
	if err != nil {
		return persistence.NewStoreError("Cancel", "scheduled_post", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewStoreError("Cancel", "scheduled_post", id, err)
	}

	if affected == 1 {
		return nil
	}

	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}

	return persistence.NewStoreError("Cancel", "scheduled_post", id, persistence.ErrInvalidTransition)
}
