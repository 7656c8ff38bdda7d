package models

import (
	"encoding/json"
	"errors"
)

// StepType is the closed set of workflow node kinds.
type StepType string

const (
	StepAction    StepType = "action"
	StepCondition StepType = "condition"
	StepLoop      StepType = "loop"
	StepDelay     StepType = "delay"
	StepParallel  StepType = "parallel"
)

// WorkflowStep is a node in a workflow's directed step graph. OnSuccess and
// OnFailure are outgoing edges by step ID; absence of both marks a terminal
// node. The graph need not be acyclic: loop nodes intentionally revisit
// earlier nodes, and the interpreter bounds total visits per run.
type WorkflowStep struct {
	ID              string         `json:"id"          validate:"required"`
	WorkflowID      string         `json:"workflow_id" validate:"required"`
	Name            string         `json:"name"        validate:"required"`
	StepType        StepType       `json:"step_type"   validate:"required"`
	ActionConfig    map[string]any `json:"action_config,omitempty"`
	ConditionConfig map[string]any `json:"condition_config,omitempty"`
	OnSuccess       *string        `json:"on_success,omitempty"`
	OnFailure       *string        `json:"on_failure,omitempty"`
	Enabled         bool           `json:"enabled"`
}

// IsTerminal reports whether the step has no outgoing edges.
func (s *WorkflowStep) IsTerminal() bool {
	return s.OnSuccess == nil && s.OnFailure == nil
}

// StepActionConfig is the decoded payload of an action node.
type StepActionConfig struct {
	ActionType     ActionType `json:"action_type"`
	AccountIDs     []string   `json:"account_ids,omitempty"`
	AccountGroupID string     `json:"account_group_id,omitempty"`
	TargetType     TargetType `json:"target_type,omitempty"`
	TargetValue    string     `json:"target_value,omitempty"`
	Content        string     `json:"content,omitempty"`
	MediaIDs       []string   `json:"media_ids,omitempty"`
}

// StepConditionConfig is the decoded payload of a condition node. Exactly
// one predicate kind is evaluated, selected by Kind.
type StepConditionConfig struct {
	Kind string `json:"kind"`

	// account_status
	AccountID     string `json:"account_id,omitempty"`
	AccountStatus string `json:"account_status,omitempty"`

	// time_window: hours in 0-23 local time, days as time.Weekday values
	FromHour int   `json:"from_hour,omitempty"`
	ToHour   int   `json:"to_hour,omitempty"`
	Weekdays []int `json:"weekdays,omitempty"`

	// action_count
	MinActions int `json:"min_actions,omitempty"`
	MaxActions int `json:"max_actions,omitempty"`

	// random
	Chance float64 `json:"chance,omitempty"`
}

// StepLoopConfig is the decoded payload of a loop node. The loop body is
// entered through BodyStepID; OnSuccess is followed once all iterations
// complete, OnFailure when an iteration fails. LoopAccountIDs, when set,
// takes precedence over LoopCount: one iteration per account.
type StepLoopConfig struct {
	BodyStepID     string   `json:"body_step_id"`
	LoopCount      int      `json:"loop_count,omitempty"`
	LoopAccountIDs []string `json:"loop_account_ids,omitempty"`
}

// StepDelayConfig is the decoded payload of a delay node.
type StepDelayConfig struct {
	DelayMinutes int `json:"delay_minutes,omitempty"`
	DelaySeconds int `json:"delay_seconds,omitempty"`
}

// StepParallelConfig is the decoded payload of a parallel node. The node
// completes when all branches complete; its outcome is the logical AND of
// branch outcomes unless ToleratePartial is set.
type StepParallelConfig struct {
	BranchStepIDs   []string `json:"branch_step_ids"`
	ToleratePartial bool     `json:"tolerate_partial,omitempty"`
}

var ErrStepConfigMissing = errors.New("step configuration missing")

// DecodeStepConfig unmarshals a raw step payload into the typed config for
// the step kind. The raw maps survive round-trips through any persistence
// backend, so decoding goes through JSON rather than type assertions.
func DecodeStepConfig[T any](raw map[string]any, out *T) error {
	if raw == nil {
		return ErrStepConfigMissing
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, out)
}
