// Package runner executes automation task batches. A batch walks the task's
// configured accounts in order, asks the governor for each account's lease,
// runs one action per account through the executor, and keeps the task's
// durable quota counters honest.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/beaconops/flock/pkg/events"
	"github.com/beaconops/flock/pkg/eventbus"
	"github.com/beaconops/flock/pkg/executor"
	"github.com/beaconops/flock/pkg/governor"
	"github.com/beaconops/flock/pkg/models"
	"github.com/beaconops/flock/pkg/persistence"
	"github.com/beaconops/flock/pkg/session"
	"github.com/google/uuid"
)

var (
	// ErrTaskNotEligible is returned by TriggerBatch when the task is
	// disabled or its daily quota is exhausted.
	ErrTaskNotEligible = errors.New("task is not eligible to run")

	// ErrTaskBusy is returned when another batch already holds the task's
	// lease. Callers treat it as "skip this cycle", like a busy account.
	ErrTaskBusy = errors.New("task batch already running")
)

// taskLeaseID namespaces task leases away from account leases in the shared
// lease store.
func taskLeaseID(taskID string) string {
	return "task:" + taskID
}

// AccountResult is one account's entry in a batch summary. Every configured
// account gets exactly one entry, in configuration order, regardless of how
// its attempt ended.
type AccountResult struct {
	AccountID string
	Status    models.AutomationLogStatus
	Outcome   executor.OutcomeKind
	Skipped   bool
	Error     string
}

// RunSummary aggregates one batch.
type RunSummary struct {
	TaskID       string
	Results      []AccountResult
	SuccessCount int
	FailureCount int
	SkippedCount int
	StartedAt    time.Time
	FinishedAt   time.Time
}

type Runner struct {
	store    persistence.Persistence
	executor *executor.Executor
	governor *governor.Governor
	targets  *session.Targets
	bus      eventbus.EventBus
	logger   *slog.Logger

	now   func() time.Time
	sleep func(context.Context, time.Duration)
}

func NewRunner(
	store persistence.Persistence,
	exec *executor.Executor,
	gov *governor.Governor,
	targets *session.Targets,
	bus eventbus.EventBus,
	logger *slog.Logger,
) *Runner {
	return &Runner{
		store:    store,
		executor: exec,
		governor: gov,
		targets:  targets,
		bus:      bus,
		logger:   logger.With("module", "runner"),
		now:      time.Now,
		sleep:    pacedSleep,
	}
}

func pacedSleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// RunDue evaluates every enabled task and runs a batch for each one that is
// due. One task's failure never blocks the remaining tasks.
func (r *Runner) RunDue(ctx context.Context) {
	tasks, err := r.store.AutomationTasks().Enabled(ctx)
	if err != nil {
		r.logger.Error("Failed to list enabled tasks", "error", err)

		return
	}

	now := r.now()

	for _, task := range tasks {
		if task.Rollover(now) {
			if err := r.persistCounters(ctx, task); err != nil {
				r.logger.Error("Failed to persist quota rollover",
					"task_id", task.ID, "error", err)

				continue
			}
		}

		if !task.Eligible(now) {
			continue
		}

		if _, err := r.runBatch(ctx, task); err != nil {
			if errors.Is(err, ErrTaskBusy) {
				r.logger.Info("Batch already running, skipping", "task_id", task.ID)

				continue
			}

			r.logger.Error("Batch failed", "task_id", task.ID, "error", err)
		}
	}
}

// TriggerBatch runs a batch for one task immediately, bypassing the interval
// gate but never the enabled flag or the daily quota.
func (r *Runner) TriggerBatch(ctx context.Context, taskID string) (*RunSummary, error) {
	task, err := r.store.AutomationTasks().GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}

	now := r.now()

	if task.Rollover(now) {
		if err := r.persistCounters(ctx, task); err != nil {
			return nil, err
		}
	}

	if !task.IsEnabled || task.TodayCount >= task.DailyLimit {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotEligible, taskID)
	}

	return r.runBatch(ctx, task)
}

// runBatch drives one batch across the task's accounts in configured order.
// Per-account failures are isolated: each attempt is logged and counted, and
// the walk always continues to the next account. Quota consumption stops the
// moment TodayCount reaches the daily limit, so a batch can never push the
// counter past it.
//
// The task lease is held for the whole batch. It serializes batches for the
// task across the API and every dispatcher process sharing the lease store,
// which is what keeps the quota read-modify-write from racing another batch
// and losing an increment.
func (r *Runner) runBatch(ctx context.Context, task *models.AutomationTask) (*RunSummary, error) {
	lease, err := r.governor.TryAcquire(ctx, taskLeaseID(task.ID))
	if err != nil {
		if errors.Is(err, governor.ErrAccountBusy) {
			return nil, fmt.Errorf("%w: %s", ErrTaskBusy, task.ID)
		}

		return nil, err
	}

	defer func() {
		if err := r.governor.Release(ctx, lease); err != nil {
			r.logger.Error("Failed to release batch lease",
				"task_id", task.ID, "error", err)
		}
	}()

	// Re-read under the lease: another batch may have spent quota between
	// the caller's eligibility check and the lease grant.
	task, err = r.store.AutomationTasks().GetByID(ctx, task.ID)
	if err != nil {
		return nil, err
	}

	startedAt := r.now()
	task.Rollover(startedAt)

	if !task.IsEnabled || task.TodayCount >= task.DailyLimit {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotEligible, task.ID)
	}

	logger := r.logger.With("task_id", task.ID, "action_type", task.ActionType)
	logger.Info("Starting batch", "accounts", len(task.AccountIDs))

	r.publish(ctx, task.ID, events.TaskBatchStarted{
		BaseEvent:    events.NewBaseEvent(events.TaskBatchStartedEvent),
		TaskID:       task.ID,
		AccountCount: len(task.AccountIDs),
	})

	summary := &RunSummary{
		TaskID:    task.ID,
		Results:   make([]AccountResult, 0, len(task.AccountIDs)),
		StartedAt: startedAt,
	}

	targetURL, err := r.targets.Resolve(task.TargetType, task.TargetValue)
	if err != nil {
		return nil, err
	}

	for i, accountID := range task.AccountIDs {
		if i > 0 {
			r.sleep(ctx, r.governor.Jitter())
		}

		var result AccountResult

		if task.TodayCount >= task.DailyLimit {
			// Quota ran out mid-batch. Remaining accounts are skipped,
			// not queued.
			result = AccountResult{AccountID: accountID, Skipped: true}
		} else {
			result = r.runAccount(ctx, task, accountID, targetURL)
		}

		summary.Results = append(summary.Results, result)

		switch {
		case result.Skipped:
			summary.SkippedCount++
		case result.Status == models.AutomationLogStatusSuccess:
			summary.SuccessCount++
		default:
			summary.FailureCount++
		}

		// Idempotent no-ops succeed without consuming quota: the account
		// was already in the desired state, so no new action happened.
		if !result.Skipped && result.Outcome != executor.OutcomeAlreadyDone {
			task.TodayCount++
		}

		r.publish(ctx, task.ID, events.TaskAccountProcessed{
			BaseEvent:  events.NewBaseEvent(events.TaskAccountProcessedEvent),
			TaskID:     task.ID,
			AccountID:  accountID,
			Completed:  i + 1,
			Total:      len(task.AccountIDs),
			LastResult: string(result.Status),
		})
	}

	task.FinishBatch(r.now())

	if err := r.persistCounters(ctx, task); err != nil {
		return nil, err
	}

	summary.FinishedAt = r.now()

	r.publish(ctx, task.ID, events.TaskBatchFinished{
		BaseEvent:    events.NewBaseEvent(events.TaskBatchFinishedEvent),
		TaskID:       task.ID,
		SuccessCount: summary.SuccessCount,
		FailureCount: summary.FailureCount,
		SkippedCount: summary.SkippedCount,
		Duration:     summary.FinishedAt.Sub(summary.StartedAt),
	})

	logger.Info("Batch finished",
		"success", summary.SuccessCount,
		"failed", summary.FailureCount,
		"skipped", summary.SkippedCount,
	)

	return summary, nil
}

// runAccount executes one account's attempt under its lease and appends the
// batch's audit row. A busy account is skipped for this cycle.
func (r *Runner) runAccount(ctx context.Context, task *models.AutomationTask, accountID, targetURL string) AccountResult {
	lease, err := r.governor.TryAcquire(ctx, accountID)
	if err != nil {
		if errors.Is(err, governor.ErrAccountBusy) {
			r.logger.Info("Account busy, skipping",
				"task_id", task.ID, "account_id", accountID)

			return AccountResult{AccountID: accountID, Skipped: true}
		}

		return AccountResult{
			AccountID: accountID,
			Status:    models.AutomationLogStatusFailed,
			Outcome:   executor.OutcomeUnknown,
			Error:     err.Error(),
		}
	}

	defer func() {
		if err := r.governor.Release(ctx, lease); err != nil {
			r.logger.Error("Failed to release lease",
				"account_id", accountID, "error", err)
		}
	}()

	outcome := r.executor.Execute(ctx, executor.Request{
		AccountID: accountID,
		Action:    task.ActionType,
		TargetURL: targetURL,
	})

	status := models.AutomationLogStatusFailed
	if outcome.Success {
		status = models.AutomationLogStatusSuccess
	}

	entry := &models.AutomationLog{
		ID:           uuid.New().String(),
		TaskID:       task.ID,
		AccountID:    accountID,
		ActionType:   task.ActionType,
		TargetURL:    targetURL,
		Status:       status,
		ErrorMessage: outcome.ErrorMessage(),
		CreatedAt:    r.now(),
	}

	if err := r.store.Logs().AppendAutomationLog(ctx, entry); err != nil {
		r.logger.Error("Failed to append automation log",
			"task_id", task.ID, "account_id", accountID, "error", err)
	}

	return AccountResult{
		AccountID: accountID,
		Status:    status,
		Outcome:   outcome.Kind,
		Error:     outcome.ErrorMessage(),
	}
}

func (r *Runner) persistCounters(ctx context.Context, task *models.AutomationTask) error {
	return r.store.AutomationTasks().UpdateCounters(
		ctx, task.ID, task.TodayCount, task.LastRunAt, task.NextRunAt,
	)
}

func (r *Runner) publish(ctx context.Context, key string, event events.Event) {
	if r.bus == nil {
		return
	}

	if err := r.bus.Publish(ctx, key, event); err != nil {
		r.logger.Error("Failed to publish event",
			"event_type", event.GetType(), "error", err)
	}
}
