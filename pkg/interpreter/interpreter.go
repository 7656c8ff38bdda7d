// Package interpreter walks workflow step graphs. Each run gets a RunID, one
// log row per step visit, and a durable continuation whenever a delay node
// suspends the run. The walker is visit-bounded, so a cyclic graph terminates
// instead of spinning forever.
package interpreter

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
	// ErrWorkflowDisabled is returned when Execute targets a disabled workflow.
	ErrWorkflowDisabled = errors.New("workflow is disabled")

	// ErrNoEntrySteps is returned when the graph has no enabled entry node.
	ErrNoEntrySteps = errors.New("workflow has no entry step")

	// ErrVisitCeiling is returned when one run visits a single step more
	// times than the configured ceiling allows.
	ErrVisitCeiling = errors.New("step visit ceiling exceeded")
)

const runLogIDVariable = "run_log_id"

// Config tunes the walker's safety bounds.
type Config struct {
	// MaxVisitsPerStep caps how often one run may enter the same step.
	MaxVisitsPerStep int
}

func DefaultConfig() Config {
	return Config{MaxVisitsPerStep: 50}
}

type Interpreter struct {
	store    persistence.Persistence
	executor *executor.Executor
	governor *governor.Governor
	targets  *session.Targets
	bus      eventbus.EventBus
	config   Config
	logger   *slog.Logger

	now       func() time.Time
	sleep     func(context.Context, time.Duration)
	randFloat func() float64
}

func NewInterpreter(
	store persistence.Persistence,
	exec *executor.Executor,
	gov *governor.Governor,
	targets *session.Targets,
	bus eventbus.EventBus,
	config Config,
	logger *slog.Logger,
) *Interpreter {
	if config.MaxVisitsPerStep <= 0 {
		config = DefaultConfig()
	}

	return &Interpreter{
		store:    store,
		executor: exec,
		governor: gov,
		targets:  targets,
		bus:      bus,
		config:   config,
		logger:   logger.With("module", "interpreter"),
		now:      time.Now,
		sleep: func(ctx context.Context, d time.Duration) {
			select {
			case <-ctx.Done():
			case <-time.After(d):
			}
		},
		randFloat: defaultRandFloat,
	}
}

// suspension is the walker's signal that a delay node wants the run parked.
type suspension struct {
	resumeAt   time.Time
	nextStepID string
}

// Execute starts a new run of the workflow and drives it until it completes,
// fails, or suspends on a delay node. The returned RunID identifies the
// run's log rows and any continuation.
func (i *Interpreter) Execute(ctx context.Context, workflowID string) (string, error) {
	workflow, err := i.store.Workflows().GetByID(ctx, workflowID)
	if err != nil {
		return "", err
	}

	if !workflow.IsEnabled {
		return "", fmt.Errorf("%w: %s", ErrWorkflowDisabled, workflowID)
	}

	arena, entryID, err := i.loadGraph(ctx, workflowID)
	if err != nil {
		return "", err
	}

	runID := uuid.New().String()
	startedAt := i.now()

	state := &models.RunState{
		RunID:      runID,
		WorkflowID: workflowID,
		Visits:     make(map[string]int),
		Variables:  make(map[string]any),
	}

	runLog := &models.WorkflowLog{
		ID:         uuid.New().String(),
		WorkflowID: workflowID,
		RunID:      runID,
		Status:     models.WorkflowLogStatusRunning,
		StartedAt:  startedAt,
	}
	if err := i.store.Logs().AppendWorkflowLog(ctx, runLog); err != nil {
		return "", err
	}

	state.Variables[runLogIDVariable] = runLog.ID

	i.publish(ctx, workflowID, events.WorkflowRunStarted{
		BaseEvent:  events.NewBaseEvent(events.WorkflowRunStartedEvent),
		WorkflowID: workflowID,
		RunID:      runID,
	})

	i.logger.Info("Workflow run started",
		"workflow_id", workflowID, "run_id", runID)

	i.drive(ctx, workflow, arena, state, entryID, startedAt)

	return runID, nil
}

// Resume continues a suspended run from its durable continuation.
func (i *Interpreter) Resume(ctx context.Context, resumption *models.Resumption) error {
	workflow, err := i.store.Workflows().GetByID(ctx, resumption.WorkflowID)
	if err != nil {
		return err
	}

	arena, _, err := i.loadGraph(ctx, resumption.WorkflowID)
	if err != nil {
		return err
	}

	state := resumption.State
	if state.Visits == nil {
		state.Visits = make(map[string]int)
	}

	if state.Variables == nil {
		state.Variables = make(map[string]any)
	}

	i.publish(ctx, workflow.ID, events.WorkflowRunResumed{
		BaseEvent:  events.NewBaseEvent(events.WorkflowRunResumedEvent),
		WorkflowID: workflow.ID,
		RunID:      resumption.RunID,
	})

	i.logger.Info("Workflow run resumed",
		"workflow_id", workflow.ID, "run_id", resumption.RunID)

	i.drive(ctx, workflow, arena, &state, resumption.StepID, i.now())

	return nil
}

// drive walks from startID and settles the run: completed, failed, or parked
// behind a new continuation.
func (i *Interpreter) drive(
	ctx context.Context,
	workflow *models.Workflow,
	arena map[string]*models.WorkflowStep,
	state *models.RunState,
	startID string,
	startedAt time.Time,
) {
	ok, susp, err := i.walk(ctx, arena, state, startID, "", false)

	switch {
	case err != nil:
		i.finalize(ctx, workflow, state, models.WorkflowLogStatusFailed, err.Error(), startedAt)
	case susp != nil:
		i.park(ctx, workflow, state, susp)
	case ok:
		i.finalize(ctx, workflow, state, models.WorkflowLogStatusCompleted, "", startedAt)
	default:
		i.finalize(ctx, workflow, state, models.WorkflowLogStatusFailed, "step failed with no failure edge", startedAt)
	}
}

// park persists the continuation for the dispatcher to pick up.
func (i *Interpreter) park(ctx context.Context, workflow *models.Workflow, state *models.RunState, susp *suspension) {
	resumption := &models.Resumption{
		ID:         uuid.New().String(),
		WorkflowID: workflow.ID,
		RunID:      state.RunID,
		StepID:     susp.nextStepID,
		ResumeAt:   susp.resumeAt,
		State:      *state,
		CreatedAt:  i.now(),
	}

	if err := i.store.Resumptions().Save(ctx, resumption); err != nil {
		i.logger.Error("Failed to persist continuation",
			"workflow_id", workflow.ID, "run_id", state.RunID, "error", err)

		i.finalize(ctx, workflow, state, models.WorkflowLogStatusFailed, err.Error(), i.now())

		return
	}

	i.publish(ctx, workflow.ID, events.WorkflowRunSuspended{
		BaseEvent:  events.NewBaseEvent(events.WorkflowRunSuspendedEvent),
		WorkflowID: workflow.ID,
		RunID:      state.RunID,
		ResumeAt:   susp.resumeAt,
	})

	i.logger.Info("Workflow run suspended",
		"workflow_id", workflow.ID,
		"run_id", state.RunID,
		"resume_at", susp.resumeAt)
}

func (i *Interpreter) finalize(
	ctx context.Context,
	workflow *models.Workflow,
	state *models.RunState,
	status models.WorkflowLogStatus,
	errorMessage string,
	startedAt time.Time,
) {
	completedAt := i.now()

	runLogID, _ := state.Variables[runLogIDVariable].(string)
	if runLogID != "" {
		entry := &models.WorkflowLog{
			ID:           runLogID,
			WorkflowID:   workflow.ID,
			RunID:        state.RunID,
			Status:       status,
			StartedAt:    startedAt,
			CompletedAt:  &completedAt,
			ErrorMessage: errorMessage,
			ResultData: map[string]any{
				"accounts_processed": state.Result.AccountsProcessed,
				"actions_executed":   state.Result.ActionsExecuted,
				"success_count":      state.Result.SuccessCount,
				"failure_count":      state.Result.FailureCount,
			},
		}

		if err := i.store.Logs().UpdateWorkflowLog(ctx, entry); err != nil {
			i.logger.Error("Failed to update run log",
				"run_id", state.RunID, "error", err)
		}
	}

	if status == models.WorkflowLogStatusCompleted {
		i.publish(ctx, workflow.ID, events.WorkflowRunCompleted{
			BaseEvent:  events.NewBaseEvent(events.WorkflowRunCompletedEvent),
			WorkflowID: workflow.ID,
			RunID:      state.RunID,
			Result:     state.Result,
			Duration:   completedAt.Sub(startedAt),
		})
	} else {
		i.publish(ctx, workflow.ID, events.WorkflowRunFailed{
			BaseEvent:  events.NewBaseEvent(events.WorkflowRunFailedEvent),
			WorkflowID: workflow.ID,
			RunID:      state.RunID,
			Error:      errorMessage,
		})
	}

	i.logger.Info("Workflow run settled",
		"workflow_id", workflow.ID,
		"run_id", state.RunID,
		"status", status)
}

// loadGraph builds the step arena and picks the entry node: the first
// enabled step, in stored order, that no other step points at.
func (i *Interpreter) loadGraph(ctx context.Context, workflowID string) (map[string]*models.WorkflowStep, string, error) {
	steps, err := i.store.Workflows().Steps(ctx, workflowID)
	if err != nil {
		return nil, "", err
	}

	arena := make(map[string]*models.WorkflowStep, len(steps))
	referenced := make(map[string]bool)

	for _, step := range steps {
		if err := models.ValidateStepConfig(step); err != nil {
			return nil, "", err
		}

		arena[step.ID] = step

		if step.OnSuccess != nil {
			referenced[*step.OnSuccess] = true
		}

		if step.OnFailure != nil {
			referenced[*step.OnFailure] = true
		}

		switch step.StepType {
		case models.StepLoop:
			var config models.StepLoopConfig
			if err := models.DecodeStepConfig(step.ActionConfig, &config); err == nil {
				referenced[config.BodyStepID] = true
			}
		case models.StepParallel:
			var config models.StepParallelConfig
			if err := models.DecodeStepConfig(step.ActionConfig, &config); err == nil {
				for _, branchID := range config.BranchStepIDs {
					referenced[branchID] = true
				}
			}
		}
	}

	for _, step := range steps {
		if step.Enabled && !referenced[step.ID] {
			return arena, step.ID, nil
		}
	}

	return nil, "", fmt.Errorf("%w: %s", ErrNoEntrySteps, workflowID)
}

func (i *Interpreter) publish(ctx context.Context, key string, event events.Event) {
	if i.bus == nil {
		return
	}

	if err := i.bus.Publish(ctx, key, event); err != nil {
		i.logger.Error("Failed to publish event",
			"event_type", event.GetType(), "error", err)
	}
}
