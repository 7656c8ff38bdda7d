package models

import (
	"errors"
	"time"

	"github.com/robfig/cron/v3"
)

// WorkflowTriggerType describes how a workflow run is started.
type WorkflowTriggerType string

const (
	TriggerManual   WorkflowTriggerType = "manual"
	TriggerSchedule WorkflowTriggerType = "schedule"
	TriggerEvent    WorkflowTriggerType = "event"
)

var (
	// ErrInvalidWorkflow is returned when workflow validation fails.
	ErrInvalidWorkflow = errors.New("invalid workflow configuration")

	// ErrMissingCronExpression is returned when a schedule trigger has no cron config.
	ErrMissingCronExpression = errors.New("schedule trigger requires a cron expression")
)

// Workflow is a directed step graph executed by the interpreter. Scheduled
// workflows carry a precomputed NextRunAt so the dispatcher can query for
// due workflows without evaluating every cron expression per tick.
type Workflow struct {
	ID            string              `json:"id"           validate:"required"`
	Name          string              `json:"name"         validate:"required,min=3"`
	IsEnabled     bool                `json:"is_enabled"`
	TriggerType   WorkflowTriggerType `json:"trigger_type" validate:"required"`
	TriggerConfig map[string]any      `json:"trigger_config,omitempty"`
	LastRunAt     *time.Time          `json:"last_run_at,omitempty"`
	NextRunAt     *time.Time          `json:"next_run_at,omitempty"`
	RunCount      int                 `json:"run_count"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// CronExpression returns the cron expression configured on a schedule
// trigger, or an empty string for other trigger types.
func (w *Workflow) CronExpression() string {
	if w.TriggerConfig == nil {
		return ""
	}

	expr, _ := w.TriggerConfig["cron"].(string)

	return expr
}

// Validate checks trigger configuration consistency.
func (w *Workflow) Validate() error {
	switch w.TriggerType {
	case TriggerManual, TriggerEvent:
		return nil
	case TriggerSchedule:
		expr := w.CronExpression()
		if expr == "" {
			return ErrMissingCronExpression
		}

		if _, err := cron.ParseStandard(expr); err != nil {
			return err
		}

		return nil
	default:
		return ErrInvalidWorkflow
	}
}

// IsDue reports whether a scheduled workflow should be started now.
func (w *Workflow) IsDue(now time.Time) bool {
	return w.IsEnabled &&
		w.TriggerType == TriggerSchedule &&
		w.NextRunAt != nil &&
		!w.NextRunAt.After(now)
}

// UpdateNextRunAt recomputes NextRunAt from the cron expression, using the
// standard 5-field format (minute hour day month weekday).
func (w *Workflow) UpdateNextRunAt(now time.Time) error {
	expr := w.CronExpression()
	if expr == "" {
		return ErrMissingCronExpression
	}

	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return err
	}

	next := schedule.Next(now)
	w.NextRunAt = &next
	w.UpdatedAt = now

	return nil
}

// RecordRun stamps the run bookkeeping after a run has been started.
func (w *Workflow) RecordRun(now time.Time) {
	w.LastRunAt = &now
	w.RunCount++
	w.UpdatedAt = now
}
