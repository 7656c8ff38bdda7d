package file

import (
	"context"
	"sort"
	"time"

	"github.com/beaconops/flock/pkg/models"
	"github.com/beaconops/flock/pkg/persistence"
)

// ScheduledPostRepository handles scheduled-post file operations.
type ScheduledPostRepository struct {
	col *collection
}

func (r *ScheduledPostRepository) GetByID(_ context.Context, id string) (*models.ScheduledPost, error) {
	post, err := readDoc[models.ScheduledPost](r.col, id)
	if err != nil {
		return nil, persistence.NewStoreError("GetByID", "scheduled_post", id, err)
	}

	if post == nil {
		return nil, persistence.NewStoreError("GetByID", "scheduled_post", id, persistence.ErrPostNotFound)
	}

	return post, nil
}

func (r *ScheduledPostRepository) Save(_ context.Context, post *models.ScheduledPost) error {
	if err := writeDoc(r.col, post.ID, post); err != nil {
		return persistence.NewStoreError("Save", "scheduled_post", post.ID, err)
	}

	return nil
}

func (r *ScheduledPostRepository) List(_ context.Context) ([]*models.ScheduledPost, error) {
	posts, err := readAll[models.ScheduledPost](r.col)
	if err != nil {
		return nil, persistence.NewStoreError("List", "scheduled_post", "", err)
	}

	sort.Slice(posts, func(i, j int) bool {
		return posts[i].ScheduledAt.Before(posts[j].ScheduledAt)
	})

	return posts, nil
}

func (r *ScheduledPostRepository) PendingDue(ctx context.Context, now time.Time) ([]*models.ScheduledPost, error) {
	posts, err := r.List(ctx)
	if err != nil {
		return nil, err
	}

	due := make([]*models.ScheduledPost, 0)

	for _, post := range posts {
		if post.IsDue(now) {
			due = append(due, post)
		}
	}

	return due, nil
}

// MarkProcessing claims a pending post. The claim happens under the
// collection mutex so two concurrent dispatcher ticks cannot both win.
func (r *ScheduledPostRepository) MarkProcessing(_ context.Context, id string) (bool, error) {
	r.col.mu.Lock()
	defer r.col.mu.Unlock()

	post, err := readDocLocked[models.ScheduledPost](r.col, id)
	if err != nil {
		return false, persistence.NewStoreError("MarkProcessing", "scheduled_post", id, err)
	}

	if post == nil {
		return false, persistence.NewStoreError("MarkProcessing", "scheduled_post", id, persistence.ErrPostNotFound)
	}

	if post.Status != models.ScheduledPostStatusPending {
		return false, nil
	}

	post.Status = models.ScheduledPostStatusProcessing
	post.UpdatedAt = time.Now()

	if err := writeDocLocked(r.col, id, post); err != nil {
		return false, persistence.NewStoreError("MarkProcessing", "scheduled_post", id, err)
	}

	return true, nil
}

func (r *ScheduledPostRepository) MarkCompleted(ctx context.Context, id string, executedAt time.Time) error {
	return r.transition(ctx, "MarkCompleted", id, func(post *models.ScheduledPost) error {
		post.MarkCompleted(executedAt)

		return nil
	})
}

func (r *ScheduledPostRepository) MarkFailed(ctx context.Context, id string, executedAt time.Time, reason string) error {
	return r.transition(ctx, "MarkFailed", id, func(post *models.ScheduledPost) error {
		post.MarkFailed(executedAt, reason)

		return nil
	})
}

func (r *ScheduledPostRepository) Cancel(ctx context.Context, id string) error {
	return r.transition(ctx, "Cancel", id, func(post *models.ScheduledPost) error {
		if post.Status != models.ScheduledPostStatusPending {
			return persistence.ErrInvalidTransition
		}

		post.Status = models.ScheduledPostStatusCancelled
		post.UpdatedAt = time.Now()

		return nil
	})
}

func (r *ScheduledPostRepository) transition(_ context.Context, op, id string, apply func(*models.ScheduledPost) error) error {
	r.col.mu.Lock()
	defer r.col.mu.Unlock()

	post, err := readDocLocked[models.ScheduledPost](r.col, id)
	if err != nil {
		return persistence.NewStoreError(op, "scheduled_post", id, err)
	}

	if post == nil {
		return persistence.NewStoreError(op, "scheduled_post", id, persistence.ErrPostNotFound)
	}

	if err := apply(post); err != nil {
		return persistence.NewStoreError(op, "scheduled_post", id, err)
	}

	if err := writeDocLocked(r.col, id, post); err != nil {
		return persistence.NewStoreError(op, "scheduled_post", id, err)
	}

	return nil
}
