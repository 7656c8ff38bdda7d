package models

import "time"

// ActionLogStatus is the classified result recorded in the executor's
// own audit trail.
type ActionLogStatus string

const (
	ActionLogStatusSuccess     ActionLogStatus = "success"
	ActionLogStatusAlreadyDone ActionLogStatus = "already_done"
	ActionLogStatusFailed      ActionLogStatus = "failed"
)

// ActionLog is the executor's audit trail: one row per invocation,
// independent of which runner asked for the action.
type ActionLog struct {
	ID           string          `json:"id"`
	AccountID    string          `json:"account_id"`
	ActionType   ActionType      `json:"action_type"`
	TargetURL    string          `json:"target_url,omitempty"`
	Status       ActionLogStatus `json:"status"`
	ErrorMessage string          `json:"error_message,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}
