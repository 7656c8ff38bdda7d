// Package persistence provides the data storage abstraction consumed by the
// orchestration engine. All durable state (posts, tasks, workflows, logs,
// counters, suspended runs) lives behind this interface so the dispatcher
// and runners stay restart-safe.
package persistence

import (
	"context"
	"time"

	"github.com/beaconops/flock/pkg/models"
)

type Persistence interface {
	ScheduledPosts() ScheduledPostRepository
	AutomationTasks() AutomationTaskRepository
	Workflows() WorkflowRepository
	Logs() LogRepository
	Accounts() AccountRepository
	Resumptions() ResumptionRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

type ScheduledPostRepository interface {
	GetByID(ctx context.Context, id string) (*models.ScheduledPost, error)
	Save(ctx context.Context, post *models.ScheduledPost) error
	List(ctx context.Context) ([]*models.ScheduledPost, error)

	// PendingDue returns posts with status pending and scheduledAt <= now.
	PendingDue(ctx context.Context, now time.Time) ([]*models.ScheduledPost, error)

	// MarkProcessing transitions a post from pending to processing. It
	// returns false when the post is no longer pending, which makes the
	// claim idempotent across overlapping dispatchers.
	MarkProcessing(ctx context.Context, id string) (bool, error)

	MarkCompleted(ctx context.Context, id string, executedAt time.Time) error
	MarkFailed(ctx context.Context, id string, executedAt time.Time, reason string) error
	Cancel(ctx context.Context, id string) error
}

type AutomationTaskRepository interface {
	GetByID(ctx context.Context, id string) (*models.AutomationTask, error)
	Save(ctx context.Context, task *models.AutomationTask) error
	List(ctx context.Context) ([]*models.AutomationTask, error)
	Enabled(ctx context.Context) ([]*models.AutomationTask, error)

	// UpdateCounters persists the durable quota state in one write. Callers
	// hold the task's batch lease, which serializes batches per task across
	// processes, so the read-modify-write is not racing another writer.
	UpdateCounters(ctx context.Context, id string, todayCount int, lastRunAt, nextRunAt *time.Time) error
}

type WorkflowRepository interface {
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	Save(ctx context.Context, workflow *models.Workflow) error
	List(ctx context.Context) ([]*models.Workflow, error)

	// DueScheduled returns enabled schedule-triggered workflows whose
	// NextRunAt has passed.
	DueScheduled(ctx context.Context, now time.Time) ([]*models.Workflow, error)

	Steps(ctx context.Context, workflowID string) ([]*models.WorkflowStep, error)
	SaveStep(ctx context.Context, step *models.WorkflowStep) error
}

type LogRepository interface {
	AppendAutomationLog(ctx context.Context, entry *models.AutomationLog) error
	AppendActionLog(ctx context.Context, entry *models.ActionLog) error

	AppendWorkflowLog(ctx context.Context, entry *models.WorkflowLog) error
	UpdateWorkflowLog(ctx context.Context, entry *models.WorkflowLog) error
	WorkflowLogsByRun(ctx context.Context, runID string) ([]*models.WorkflowLog, error)
	AutomationLogsByTask(ctx context.Context, taskID string) ([]*models.AutomationLog, error)

	// ActionCountForAccount returns how many actions the executor has
	// recorded for the account. Used by action_count workflow conditions.
	ActionCountForAccount(ctx context.Context, accountID string) (int, error)
}

type AccountRepository interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
	Save(ctx context.Context, account *models.Account) error
	ByGroup(ctx context.Context, groupID string) ([]*models.Account, error)
}

type ResumptionRepository interface {
	Save(ctx context.Context, resumption *models.Resumption) error
	Due(ctx context.Context, now time.Time) ([]*models.Resumption, error)
	Delete(ctx context.Context, id string) error
}
