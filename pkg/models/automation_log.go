package models

import "time"

// AutomationLogStatus is the outcome of a single logged automation attempt.
type AutomationLogStatus string

const (
	AutomationLogStatusPending AutomationLogStatus = "pending"
	AutomationLogStatusSuccess AutomationLogStatus = "success"
	AutomationLogStatusFailed  AutomationLogStatus = "failed"
)

// AutomationLog is an immutable append-only record of one executed attempt
// within an automation batch. One row per account per batch.
type AutomationLog struct {
	ID           string              `json:"id"`
	TaskID       string              `json:"task_id"`
	AccountID    string              `json:"account_id"`
	ActionType   ActionType          `json:"action_type"`
	TargetURL    string              `json:"target_url,omitempty"`
	Status       AutomationLogStatus `json:"status"`
	ErrorMessage string              `json:"error_message,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
}
