package web

import (
	"time"

	"github.com/beaconops/flock/pkg/models"
)

// CreateScheduledPostRequest is the payload for scheduling a post.
type CreateScheduledPostRequest struct {
	AccountID   string    `json:"account_id"   validate:"required"`
	Content     string    `json:"content"      validate:"required,max=5000"`
	MediaIDs    []string  `json:"media_ids,omitempty"`
	ScheduledAt time.Time `json:"scheduled_at" validate:"required"`
}

// CreateAutomationTaskRequest is the payload for configuring a task.
type CreateAutomationTaskRequest struct {
	Name            string            `json:"name"             validate:"required,min=3"`
	ActionType      models.ActionType `json:"action_type"      validate:"required"`
	IsEnabled       bool              `json:"is_enabled"`
	AccountIDs      []string          `json:"account_ids"      validate:"required,min=1"`
	TargetType      models.TargetType `json:"target_type"      validate:"required"`
	TargetValue     string            `json:"target_value,omitempty"`
	IntervalMinutes int               `json:"interval_minutes" validate:"required,min=1"`
	DailyLimit      int               `json:"daily_limit"      validate:"required,min=1"`
}

// TaskStats is one task's quota snapshot returned by the stats endpoint.
type TaskStats struct {
	TaskID     string     `json:"task_id"`
	Name       string     `json:"name"`
	IsEnabled  bool       `json:"is_enabled"`
	TodayCount int        `json:"today_count"`
	DailyLimit int        `json:"daily_limit"`
	LastRunAt  *time.Time `json:"last_run_at,omitempty"`
	NextRunAt  *time.Time `json:"next_run_at,omitempty"`
}
