package models

import "time"

// WorkflowLogStatus tracks a single step visit through its lifecycle.
type WorkflowLogStatus string

const (
	WorkflowLogStatusRunning   WorkflowLogStatus = "running"
	WorkflowLogStatusCompleted WorkflowLogStatus = "completed"
	WorkflowLogStatusFailed    WorkflowLogStatus = "failed"
	WorkflowLogStatusSkipped   WorkflowLogStatus = "skipped"
)

// WorkflowLog is one row per step execution per run. RunID groups all rows
// belonging to one interpreter execution. A row is written with status
// running on node entry and updated to a terminal status on exit.
type WorkflowLog struct {
	ID           string            `json:"id"`
	WorkflowID   string            `json:"workflow_id"`
	RunID        string            `json:"run_id"`
	StepID       *string           `json:"step_id,omitempty"`
	Status       WorkflowLogStatus `json:"status"`
	StartedAt    time.Time         `json:"started_at"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
	ResultData   map[string]any    `json:"result_data,omitempty"`
}

// WorkflowResultData is the aggregate accumulated across all action nodes
// visited during one run.
type WorkflowResultData struct {
	AccountsProcessed int `json:"accounts_processed"`
	ActionsExecuted   int `json:"actions_executed"`
	SuccessCount      int `json:"success_count"`
	FailureCount      int `json:"failure_count"`
}

// Merge adds other's counters into r. Used when parallel branches report
// their per-branch aggregates back to the run.
func (r *WorkflowResultData) Merge(other WorkflowResultData) {
	r.AccountsProcessed += other.AccountsProcessed
	r.ActionsExecuted += other.ActionsExecuted
	r.SuccessCount += other.SuccessCount
	r.FailureCount += other.FailureCount
}
