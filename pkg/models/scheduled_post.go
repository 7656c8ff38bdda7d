package models

import "time"

// ScheduledPostStatus represents the lifecycle state of a scheduled post.
type ScheduledPostStatus string

const (
	ScheduledPostStatusPending    ScheduledPostStatus = "pending"
	ScheduledPostStatusProcessing ScheduledPostStatus = "processing"
	ScheduledPostStatusCompleted  ScheduledPostStatus = "completed"
	ScheduledPostStatusFailed     ScheduledPostStatus = "failed"
	ScheduledPostStatusCancelled  ScheduledPostStatus = "cancelled"
)

// ScheduledPost is a one-shot publish scheduled for a single account.
// Created by user intent; mutated only by the dispatcher/executor transition
// path. Terminal states are completed, failed and cancelled.
//
// Invariant: ExecutedAt is set iff status is completed or failed.
type ScheduledPost struct {
	ID           string              `json:"id"           validate:"required"`
	AccountID    string              `json:"account_id"   validate:"required"`
	Content      string              `json:"content"      validate:"required"`
	MediaIDs     []string            `json:"media_ids,omitempty"`
	ScheduledAt  time.Time           `json:"scheduled_at" validate:"required"`
	Status       ScheduledPostStatus `json:"status"`
	ErrorMessage string              `json:"error_message,omitempty"`
	ExecutedAt   *time.Time          `json:"executed_at,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// IsDue reports whether the post should be picked up by the dispatcher.
func (p *ScheduledPost) IsDue(now time.Time) bool {
	return p.Status == ScheduledPostStatusPending && !p.ScheduledAt.After(now)
}

// IsTerminal reports whether the post has reached a final status.
func (p *ScheduledPost) IsTerminal() bool {
	switch p.Status {
	case ScheduledPostStatusCompleted, ScheduledPostStatusFailed, ScheduledPostStatusCancelled:
		return true
	}

	return false
}

// MarkCompleted transitions the post to completed and stamps ExecutedAt.
func (p *ScheduledPost) MarkCompleted(now time.Time) {
	p.Status = ScheduledPostStatusCompleted
	p.ExecutedAt = &now
	p.UpdatedAt = now
}

// MarkFailed transitions the post to failed, stamps ExecutedAt and records
// the failure reason for the presentation layer.
func (p *ScheduledPost) MarkFailed(now time.Time, reason string) {
	p.Status = ScheduledPostStatusFailed
	p.ErrorMessage = reason
	p.ExecutedAt = &now
	p.UpdatedAt = now
}
