package models

import "time"

// Resumption is a durable continuation for a suspended workflow run. A
// delay node persists one of these instead of holding a timer: the run's
// state is fully serialized so it survives process restarts, and the
// dispatcher resumes the run once ResumeAt has passed.
type Resumption struct {
	ID         string    `json:"id"`
	WorkflowID string    `json:"workflow_id"`
	RunID      string    `json:"run_id"`
	StepID     string    `json:"step_id"` // step to continue from
	ResumeAt   time.Time `json:"resume_at"`
	State      RunState  `json:"state"`
	CreatedAt  time.Time `json:"created_at"`
}

// RunState is the serializable execution state of one workflow run.
type RunState struct {
	RunID      string             `json:"run_id"`
	WorkflowID string             `json:"workflow_id"`
	Visits     map[string]int     `json:"visits,omitempty"`
	Variables  map[string]any     `json:"variables,omitempty"`
	Result     WorkflowResultData `json:"result"`
}
