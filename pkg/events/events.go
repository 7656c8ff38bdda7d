// Package events defines event types and structures for orchestration
// lifecycle notifications.
package events

import (
	"time"

	"github.com/beaconops/flock/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topic is the single stream all orchestration events are published to.
const Topic = "flock.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Scheduled post lifecycle.
	PostPublishedEvent EventType = "post.published"
	PostFailedEvent    EventType = "post.failed"

	// Automation task batches.
	TaskBatchStartedEvent     EventType = "task.batch.started"
	TaskBatchFinishedEvent    EventType = "task.batch.finished"
	TaskAccountProcessedEvent EventType = "task.account.processed"

	// Workflow runs.
	WorkflowRunStartedEvent   EventType = "workflow.run.started"
	WorkflowRunCompletedEvent EventType = "workflow.run.completed"
	WorkflowRunFailedEvent    EventType = "workflow.run.failed"
	WorkflowRunSuspendedEvent EventType = "workflow.run.suspended"
	WorkflowRunResumedEvent   EventType = "workflow.run.resumed"

	// Executor audit.
	ActionExecutedEvent EventType = "action.executed"
)

type Event interface {
	GetType() EventType
}

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
	}
}

type PostPublished struct {
	BaseEvent

	PostID    string `json:"post_id"`
	AccountID string `json:"account_id"`
}

func (e PostPublished) GetType() EventType { return PostPublishedEvent }

type PostFailed struct {
	BaseEvent

	PostID    string `json:"post_id"`
	AccountID string `json:"account_id"`
	Error     string `json:"error"`
}

func (e PostFailed) GetType() EventType { return PostFailedEvent }

type TaskBatchStarted struct {
	BaseEvent

	TaskID       string `json:"task_id"`
	AccountCount int    `json:"account_count"`
}

func (e TaskBatchStarted) GetType() EventType { return TaskBatchStartedEvent }

type TaskBatchFinished struct {
	BaseEvent

	TaskID       string        `json:"task_id"`
	SuccessCount int           `json:"success_count"`
	FailureCount int           `json:"failure_count"`
	SkippedCount int           `json:"skipped_count"`
	Duration     time.Duration `json:"duration"`
}

func (e TaskBatchFinished) GetType() EventType { return TaskBatchFinishedEvent }

// TaskAccountProcessed is the per-account progress event consumed by the
// presentation layer: {completed, total, lastResult}.
type TaskAccountProcessed struct {
	BaseEvent

	TaskID     string `json:"task_id"`
	AccountID  string `json:"account_id"`
	Completed  int    `json:"completed"`
	Total      int    `json:"total"`
	LastResult string `json:"last_result"`
}

func (e TaskAccountProcessed) GetType() EventType { return TaskAccountProcessedEvent }

type WorkflowRunStarted struct {
	BaseEvent

	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id"`
}

func (e WorkflowRunStarted) GetType() EventType { return WorkflowRunStartedEvent }

type WorkflowRunCompleted struct {
	BaseEvent

	WorkflowID string                    `json:"workflow_id"`
	RunID      string                    `json:"run_id"`
	Result     models.WorkflowResultData `json:"result"`
	Duration   time.Duration             `json:"duration"`
}

func (e WorkflowRunCompleted) GetType() EventType { return WorkflowRunCompletedEvent }

type WorkflowRunFailed struct {
	BaseEvent

	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id"`
	Error      string `json:"error"`
}

func (e WorkflowRunFailed) GetType() EventType { return WorkflowRunFailedEvent }

type WorkflowRunSuspended struct {
	BaseEvent

	WorkflowID string    `json:"workflow_id"`
	RunID      string    `json:"run_id"`
	ResumeAt   time.Time `json:"resume_at"`
}

func (e WorkflowRunSuspended) GetType() EventType { return WorkflowRunSuspendedEvent }

type WorkflowRunResumed struct {
	BaseEvent

	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id"`
}

func (e WorkflowRunResumed) GetType() EventType { return WorkflowRunResumedEvent }

type ActionExecuted struct {
	BaseEvent

	AccountID   string            `json:"account_id"`
	ActionType  models.ActionType `json:"action_type"`
	TargetURL   string            `json:"target_url,omitempty"`
	OutcomeKind string            `json:"outcome_kind"`
	Success     bool              `json:"success"`
	Error       string            `json:"error,omitempty"`
}

func (e ActionExecuted) GetType() EventType { return ActionExecutedEvent }
