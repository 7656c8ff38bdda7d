package models

import (
	"errors"
	"time"
)

// TargetType describes how an automation task selects what to act on.
type TargetType string

const (
	TargetKeyword  TargetType = "keyword"
	TargetHashtag  TargetType = "hashtag"
	TargetTimeline TargetType = "timeline"
	TargetUserList TargetType = "user_list"
)

var (
	// ErrInvalidTask is returned when task validation fails.
	ErrInvalidTask = errors.New("invalid automation task configuration")

	// ErrMissingTargetValue is returned when a non-timeline target has no value.
	ErrMissingTargetValue = errors.New("target value is required unless target type is timeline")
)

// AutomationTask is a recurring engagement task executed as a batch across
// all configured accounts. It owns its own scheduling math: the interval
// gate, the daily quota and the local-day rollover. The counters are durable
// so quota enforcement survives process restarts.
type AutomationTask struct {
	ID              string     `json:"id"               validate:"required"`
	Name            string     `json:"name"             validate:"required,min=3"`
	ActionType      ActionType `json:"action_type"      validate:"required"`
	IsEnabled       bool       `json:"is_enabled"`
	AccountIDs      []string   `json:"account_ids"      validate:"required,min=1"`
	TargetType      TargetType `json:"target_type"      validate:"required"`
	TargetValue     string     `json:"target_value,omitempty"`
	IntervalMinutes int        `json:"interval_minutes" validate:"required,min=1"`
	DailyLimit      int        `json:"daily_limit"      validate:"required,min=1"`
	TodayCount      int        `json:"today_count"`
	LastRunAt       *time.Time `json:"last_run_at,omitempty"`
	NextRunAt       *time.Time `json:"next_run_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Validate performs validation beyond struct tags.
func (t *AutomationTask) Validate() error {
	if !t.ActionType.ValidTaskAction() {
		return ErrInvalidTask
	}

	switch t.TargetType {
	case TargetKeyword, TargetHashtag, TargetUserList:
		if t.TargetValue == "" {
			return ErrMissingTargetValue
		}
	case TargetTimeline:
	default:
		return ErrInvalidTask
	}

	return nil
}

// Rollover resets TodayCount when the local calendar day has advanced past
// the day of the last run. Counters are keyed to the local day so the daily
// quota lines up with what an operator sees on the calendar.
func (t *AutomationTask) Rollover(now time.Time) bool {
	if t.LastRunAt == nil {
		return false
	}

	ly, lm, ld := t.LastRunAt.Local().Date()
	ny, nm, nd := now.Local().Date()

	if ly == ny && lm == nm && ld == nd {
		return false
	}

	t.TodayCount = 0
	t.UpdatedAt = now

	return true
}

// Eligible reports whether the task may run a batch at now. The caller is
// expected to apply Rollover first so the quota check sees today's count.
func (t *AutomationTask) Eligible(now time.Time) bool {
	if !t.IsEnabled {
		return false
	}

	if t.TodayCount >= t.DailyLimit {
		return false
	}

	if t.LastRunAt == nil {
		return true
	}

	return now.Sub(*t.LastRunAt) >= t.Interval()
}

// Interval returns the configured minimum pause between batches.
func (t *AutomationTask) Interval() time.Duration {
	return time.Duration(t.IntervalMinutes) * time.Minute
}

// FinishBatch stamps LastRunAt and recomputes NextRunAt: lastRunAt plus the
// interval while quota remains, otherwise the following local midnight.
func (t *AutomationTask) FinishBatch(now time.Time) {
	t.LastRunAt = &now

	var next time.Time
	if t.TodayCount < t.DailyLimit {
		next = now.Add(t.Interval())
	} else {
		next = NextLocalMidnight(now)
	}

	t.NextRunAt = &next
	t.UpdatedAt = now
}

// NextLocalMidnight returns the start of the local calendar day after now.
func NextLocalMidnight(now time.Time) time.Time {
	local := now.Local()
	y, m, d := local.Date()

	return time.Date(y, m, d+1, 0, 0, 0, 0, local.Location())
}
