package dispatcher

import (
	"context"
	"testing"
	"time"

	"github.com/beaconops/flock/pkg/executor"
	"github.com/beaconops/flock/pkg/governor"
	"github.com/beaconops/flock/pkg/interpreter"
	"github.com/beaconops/flock/pkg/log"
	"github.com/beaconops/flock/pkg/mocks"
	"github.com/beaconops/flock/pkg/models"
	"github.com/beaconops/flock/pkg/persistence/file"
	"github.com/beaconops/flock/pkg/runner"
	"github.com/beaconops/flock/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type dispatcherFixture struct {
	dispatcher *Dispatcher
	store      *file.Persistence
	sessions   *mocks.MockSessionManager
	governor   *governor.Governor
	now        time.Time
}

func setupDispatcher(t *testing.T) *dispatcherFixture {
	t.Helper()

	ctx := context.Background()
	store := file.NewPersistence(t.TempDir())

	require.NoError(t, store.Accounts().Save(ctx, &models.Account{
		ID:       "acc-1",
		Username: "tester",
		Status:   models.AccountStatusActive,
	}))

	sessions := &mocks.MockSessionManager{Surface: &mocks.MockSurface{}}
	targets := session.NewTargets("https://x.test")

	gov := governor.NewGovernor(governor.NewMemoryLeaseStore(), governor.Config{
		LeaseTTL: time.Minute,
	})

	exec := executor.NewExecutor(store, sessions, targets, nil, executor.Config{
		ReadyPollInterval: time.Millisecond,
		ReadyMaxAttempts:  2,
		ScriptTimeout:     time.Second,
	}, log.WithModule("test"))

	batches := runner.NewRunner(store, exec, gov, targets, nil, log.WithModule("test"))

	interp := interpreter.NewInterpreter(store, exec, gov, targets, nil,
		interpreter.DefaultConfig(), log.WithModule("test"))

	d := NewDispatcher(store, exec, batches, interp, gov, nil, time.Minute, log.WithModule("test"))

	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.Local)
	d.now = func() time.Time { return now }

	return &dispatcherFixture{
		dispatcher: d,
		store:      store,
		sessions:   sessions,
		governor:   gov,
		now:        now,
	}
}

func (f *dispatcherFixture) savePendingPost(t *testing.T, id string, scheduledAt time.Time) {
	t.Helper()

	require.NoError(t, f.store.ScheduledPosts().Save(context.Background(), &models.ScheduledPost{
		ID:          id,
		AccountID:   "acc-1",
		Content:     "good morning",
		ScheduledAt: scheduledAt,
		Status:      models.ScheduledPostStatusPending,
	}))
}

func (f *dispatcherFixture) stubPostScripts() {
	f.sessions.On("HasAuthSignal", mock.Anything, "acc-1").Return(true, nil)
	f.sessions.On("WithSurface", mock.Anything, "acc-1", mock.Anything).Return(nil)

	surface := f.sessions.Surface
	surface.On("Navigate", mock.Anything, mock.Anything).Return(nil)
	surface.On("Run", mock.Anything, "probe:composer", mock.Anything).
		Return(session.ScriptResult{OK: true}, nil)
	surface.On("Run", mock.Anything, mock.MatchedBy(func(script string) bool {
		return len(script) > len("perform:post") && script[:len("perform:post")] == "perform:post"
	}), mock.Anything).Return(session.ScriptResult{OK: true}, nil)
	surface.On("Run", mock.Anything, "verify:post", mock.Anything).
		Return(session.ScriptResult{OK: true}, nil)
}

// A due pending post is claimed, published and settled exactly once. The
// second pass finds nothing to do.
func TestTickDispatchesDuePostOnce(t *testing.T) {
	f := setupDispatcher(t)
	ctx := context.Background()

	f.savePendingPost(t, "post-1", f.now.Add(-time.Minute))
	f.stubPostScripts()

	f.dispatcher.Tick(ctx)

	post, err := f.store.ScheduledPosts().GetByID(ctx, "post-1")
	require.NoError(t, err)
	assert.Equal(t, models.ScheduledPostStatusCompleted, post.Status)
	require.NotNil(t, post.ExecutedAt)

	f.dispatcher.Tick(ctx)

	count, err := f.store.Logs().ActionCountForAccount(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "settled post is never re-dispatched")
}

func TestTickLeavesFuturePostAlone(t *testing.T) {
	f := setupDispatcher(t)
	ctx := context.Background()

	f.savePendingPost(t, "post-1", f.now.Add(time.Hour))

	f.dispatcher.Tick(ctx)

	post, err := f.store.ScheduledPosts().GetByID(ctx, "post-1")
	require.NoError(t, err)
	assert.Equal(t, models.ScheduledPostStatusPending, post.Status)
}

func TestTickSettlesFailedPost(t *testing.T) {
	f := setupDispatcher(t)
	ctx := context.Background()

	f.savePendingPost(t, "post-1", f.now.Add(-time.Minute))
	f.sessions.On("HasAuthSignal", mock.Anything, "acc-1").Return(false, nil)

	f.dispatcher.Tick(ctx)

	post, err := f.store.ScheduledPosts().GetByID(ctx, "post-1")
	require.NoError(t, err)
	assert.Equal(t, models.ScheduledPostStatusFailed, post.Status)
	assert.NotEmpty(t, post.ErrorMessage)
	require.NotNil(t, post.ExecutedAt)
}

// A post for an account held by other work goes back to pending for the
// next pass instead of failing.
func TestTickDefersPostForBusyAccount(t *testing.T) {
	f := setupDispatcher(t)
	ctx := context.Background()

	f.savePendingPost(t, "post-1", f.now.Add(-time.Minute))

	lease, err := f.governor.TryAcquire(ctx, "acc-1")
	require.NoError(t, err)

	f.dispatcher.Tick(ctx)

	post, err := f.store.ScheduledPosts().GetByID(ctx, "post-1")
	require.NoError(t, err)
	assert.Equal(t, models.ScheduledPostStatusPending, post.Status)

	require.NoError(t, f.governor.Release(ctx, lease))
	f.stubPostScripts()

	f.dispatcher.Tick(ctx)

	post, err = f.store.ScheduledPosts().GetByID(ctx, "post-1")
	require.NoError(t, err)
	assert.Equal(t, models.ScheduledPostStatusCompleted, post.Status)
}

// An overlapping tick is a no-op; the work stays due for the next pass.
func TestTickSkipsWhileTicking(t *testing.T) {
	f := setupDispatcher(t)
	ctx := context.Background()

	f.savePendingPost(t, "post-1", f.now.Add(-time.Minute))

	f.dispatcher.ticking.Store(true)
	f.dispatcher.Tick(ctx)

	post, err := f.store.ScheduledPosts().GetByID(ctx, "post-1")
	require.NoError(t, err)
	assert.Equal(t, models.ScheduledPostStatusPending, post.Status)

	f.dispatcher.ticking.Store(false)
	f.stubPostScripts()
	f.dispatcher.Tick(ctx)

	post, err = f.store.ScheduledPosts().GetByID(ctx, "post-1")
	require.NoError(t, err)
	assert.Equal(t, models.ScheduledPostStatusCompleted, post.Status)
}

// A due scheduled workflow is started and its schedule rolled past now so
// the occurrence fires once.
func TestTickDispatchesDueWorkflow(t *testing.T) {
	f := setupDispatcher(t)
	ctx := context.Background()

	nextRun := f.now.Add(-time.Minute)

	workflow := &models.Workflow{
		ID:            "wf-1",
		Name:          "hourly engagement",
		IsEnabled:     true,
		TriggerType:   models.TriggerSchedule,
		TriggerConfig: map[string]any{"cron": "0 * * * *"},
		NextRunAt:     &nextRun,
	}
	require.NoError(t, f.store.Workflows().Save(ctx, workflow))

	require.NoError(t, f.store.Workflows().SaveStep(ctx, &models.WorkflowStep{
		ID:         "step-like",
		WorkflowID: "wf-1",
		Name:       "like timeline post",
		StepType:   models.StepAction,
		Enabled:    true,
		ActionConfig: map[string]any{
			"action_type": "like",
			"account_ids": []any{"acc-1"},
			"target_type": "timeline",
		},
	}))

	f.sessions.On("HasAuthSignal", mock.Anything, "acc-1").Return(true, nil)
	f.sessions.On("WithSurface", mock.Anything, "acc-1", mock.Anything).Return(nil)

	surface := f.sessions.Surface
	surface.On("Navigate", mock.Anything, mock.Anything).Return(nil)
	surface.On("Run", mock.Anything, mock.Anything, mock.Anything).
		Return(session.ScriptResult{OK: true}, nil)

	f.dispatcher.Tick(ctx)

	stored, err := f.store.Workflows().GetByID(ctx, "wf-1")
	require.NoError(t, err)
	require.NotNil(t, stored.NextRunAt)
	assert.True(t, stored.NextRunAt.After(f.now), "schedule rolled forward")
	assert.Equal(t, 1, stored.RunCount)
	require.NotNil(t, stored.LastRunAt)

	count, err := f.store.Logs().ActionCountForAccount(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	f.dispatcher.Tick(ctx)

	count, err = f.store.Logs().ActionCountForAccount(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "same occurrence never fires twice")
}

// A due continuation is claimed by deletion, then resumed to completion.
func TestTickResumesDueRun(t *testing.T) {
	f := setupDispatcher(t)
	ctx := context.Background()

	require.NoError(t, f.store.Workflows().Save(ctx, &models.Workflow{
		ID:          "wf-1",
		Name:        "delayed engagement",
		IsEnabled:   true,
		TriggerType: models.TriggerManual,
	}))

	require.NoError(t, f.store.Workflows().SaveStep(ctx, &models.WorkflowStep{
		ID:         "step-like",
		WorkflowID: "wf-1",
		Name:       "like timeline post",
		StepType:   models.StepAction,
		Enabled:    true,
		ActionConfig: map[string]any{
			"action_type": "like",
			"account_ids": []any{"acc-1"},
			"target_type": "timeline",
		},
	}))

	runID := "run-1"

	require.NoError(t, f.store.Resumptions().Save(ctx, &models.Resumption{
		ID:         "res-1",
		WorkflowID: "wf-1",
		RunID:      runID,
		StepID:     "step-like",
		ResumeAt:   f.now.Add(-time.Minute),
		State: models.RunState{
			RunID:      runID,
			WorkflowID: "wf-1",
		},
		CreatedAt: f.now.Add(-time.Hour),
	}))

	f.sessions.On("HasAuthSignal", mock.Anything, "acc-1").Return(true, nil)
	f.sessions.On("WithSurface", mock.Anything, "acc-1", mock.Anything).Return(nil)

	surface := f.sessions.Surface
	surface.On("Navigate", mock.Anything, mock.Anything).Return(nil)
	surface.On("Run", mock.Anything, mock.Anything, mock.Anything).
		Return(session.ScriptResult{OK: true}, nil)

	f.dispatcher.Tick(ctx)

	remaining, err := f.store.Resumptions().Due(ctx, f.now.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, remaining, "claimed continuation is gone")

	count, err := f.store.Logs().ActionCountForAccount(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "resumed run executed its remaining step")
}

func TestStartTwice(t *testing.T) {
	f := setupDispatcher(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, f.dispatcher.Start(ctx))
	defer f.dispatcher.Stop()

	assert.ErrorIs(t, f.dispatcher.Start(ctx), ErrAlreadyStarted)
}
