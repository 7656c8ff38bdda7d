package runner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/beaconops/flock/pkg/executor"
	"github.com/beaconops/flock/pkg/governor"
	"github.com/beaconops/flock/pkg/log"
	"github.com/beaconops/flock/pkg/mocks"
	"github.com/beaconops/flock/pkg/models"
	"github.com/beaconops/flock/pkg/persistence/file"
	"github.com/beaconops/flock/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type runnerFixture struct {
	runner   *Runner
	store    *file.Persistence
	sessions *mocks.MockSessionManager
	governor *governor.Governor
	now      time.Time
}

func setupRunner(t *testing.T, accountIDs []string) *runnerFixture {
	t.Helper()

	ctx := context.Background()
	store := file.NewPersistence(t.TempDir())

	for _, id := range accountIDs {
		require.NoError(t, store.Accounts().Save(ctx, &models.Account{
			ID:       id,
			Username: "user-" + id,
			Status:   models.AccountStatusActive,
		}))
	}

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

	r := NewRunner(store, exec, gov, targets, nil, log.WithModule("test"))
	r.sleep = func(context.Context, time.Duration) {}

	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.Local)
	r.now = func() time.Time { return now }

	return &runnerFixture{runner: r, store: store, sessions: sessions, governor: gov, now: now}
}

func (f *runnerFixture) saveTask(t *testing.T, task *models.AutomationTask) {
	t.Helper()
	require.NoError(t, f.store.AutomationTasks().Save(context.Background(), task))
}

func likeTask(accountIDs []string, dailyLimit int) *models.AutomationTask {
	return &models.AutomationTask{
		ID:              "task-1",
		Name:            "like golang posts",
		ActionType:      models.ActionLike,
		IsEnabled:       true,
		AccountIDs:      accountIDs,
		TargetType:      models.TargetKeyword,
		TargetValue:     "golang",
		IntervalMinutes: 60,
		DailyLimit:      dailyLimit,
	}
}

func (f *runnerFixture) stubLikeScripts() {
	f.sessions.On("WithSurface", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	surface := f.sessions.Surface
	surface.On("Navigate", mock.Anything, mock.Anything).Return(nil)
	surface.On("Run", mock.Anything, "probe:like", mock.Anything).
		Return(session.ScriptResult{OK: true}, nil)
	surface.On("Run", mock.Anything, "perform:like", mock.Anything).
		Return(session.ScriptResult{OK: true}, nil)
	surface.On("Run", mock.Anything, "verify:like", mock.Anything).
		Return(session.ScriptResult{OK: true}, nil)
}

// One account failing mid-batch must not stop the remaining accounts: every
// account gets exactly one entry, in configured order.
func TestTriggerBatchPartialFailureIsolation(t *testing.T) {
	accounts := []string{"acc-1", "acc-2", "acc-3", "acc-4", "acc-5"}
	f := setupRunner(t, accounts)
	f.saveTask(t, likeTask(accounts, 50))

	for _, id := range accounts {
		loggedIn := id != "acc-3"
		f.sessions.On("HasAuthSignal", mock.Anything, id).Return(loggedIn, nil)
	}

	f.stubLikeScripts()

	summary, err := f.runner.TriggerBatch(context.Background(), "task-1")
	require.NoError(t, err)

	require.Len(t, summary.Results, 5)

	for i, id := range accounts {
		assert.Equal(t, id, summary.Results[i].AccountID, "results keep account order")
	}

	assert.Equal(t, models.AutomationLogStatusFailed, summary.Results[2].Status)
	assert.Equal(t, 4, summary.SuccessCount)
	assert.Equal(t, 1, summary.FailureCount)

	logs, err := f.store.Logs().AutomationLogsByTask(context.Background(), "task-1")
	require.NoError(t, err)
	assert.Len(t, logs, 5, "one audit row per account")
}

// The counter may never pass the daily limit, even when the batch has more
// accounts than quota remains.
func TestTriggerBatchQuotaCap(t *testing.T) {
	accounts := []string{"acc-1", "acc-2", "acc-3", "acc-4"}
	f := setupRunner(t, accounts)

	task := likeTask(accounts, 2)
	f.saveTask(t, task)

	for _, id := range accounts {
		f.sessions.On("HasAuthSignal", mock.Anything, id).Return(true, nil)
	}

	f.stubLikeScripts()

	summary, err := f.runner.TriggerBatch(context.Background(), "task-1")
	require.NoError(t, err)

	assert.Equal(t, 2, summary.SuccessCount)
	assert.Equal(t, 2, summary.SkippedCount)
	assert.True(t, summary.Results[2].Skipped)
	assert.True(t, summary.Results[3].Skipped)

	stored, err := f.store.AutomationTasks().GetByID(context.Background(), "task-1")
	require.NoError(t, err)
	assert.Equal(t, 2, stored.TodayCount)

	require.NotNil(t, stored.NextRunAt)
	assert.Equal(t, models.NextLocalMidnight(f.now), *stored.NextRunAt,
		"exhausted quota defers the task to the next local day")
}

// Idempotent no-ops succeed without consuming quota.
func TestTriggerBatchAlreadyDoneExemptFromQuota(t *testing.T) {
	accounts := []string{"acc-1", "acc-2"}
	f := setupRunner(t, accounts)
	f.saveTask(t, likeTask(accounts, 10))

	for _, id := range accounts {
		f.sessions.On("HasAuthSignal", mock.Anything, id).Return(true, nil)
	}

	f.sessions.On("WithSurface", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	surface := f.sessions.Surface
	surface.On("Navigate", mock.Anything, mock.Anything).Return(nil)
	surface.On("Run", mock.Anything, "probe:like", mock.Anything).
		Return(session.ScriptResult{OK: true}, nil)
	surface.On("Run", mock.Anything, "perform:like", mock.Anything).
		Return(session.ScriptResult{OK: false, State: session.StateAlreadyDone}, nil)

	summary, err := f.runner.TriggerBatch(context.Background(), "task-1")
	require.NoError(t, err)

	assert.Equal(t, 2, summary.SuccessCount)

	stored, err := f.store.AutomationTasks().GetByID(context.Background(), "task-1")
	require.NoError(t, err)
	assert.Equal(t, 0, stored.TodayCount)
}

// A busy account is skipped for this batch, not queued.
func TestTriggerBatchBusyAccountSkipped(t *testing.T) {
	accounts := []string{"acc-1", "acc-2"}
	f := setupRunner(t, accounts)
	f.saveTask(t, likeTask(accounts, 10))

	lease, err := f.governor.TryAcquire(context.Background(), "acc-2")
	require.NoError(t, err)

	defer func() { _ = f.governor.Release(context.Background(), lease) }()

	f.sessions.On("HasAuthSignal", mock.Anything, "acc-1").Return(true, nil)
	f.stubLikeScripts()

	summary, err := f.runner.TriggerBatch(context.Background(), "task-1")
	require.NoError(t, err)

	assert.Equal(t, 1, summary.SuccessCount)
	assert.Equal(t, 1, summary.SkippedCount)
	assert.True(t, summary.Results[1].Skipped)
}

func TestTriggerBatchNotEligible(t *testing.T) {
	accounts := []string{"acc-1"}
	f := setupRunner(t, accounts)

	task := likeTask(accounts, 10)
	task.IsEnabled = false
	f.saveTask(t, task)

	_, err := f.runner.TriggerBatch(context.Background(), "task-1")
	assert.ErrorIs(t, err, ErrTaskNotEligible)

	task.IsEnabled = true
	task.TodayCount = 10
	lastRun := f.now.Add(-time.Minute)
	task.LastRunAt = &lastRun
	f.saveTask(t, task)

	_, err = f.runner.TriggerBatch(context.Background(), "task-1")
	assert.ErrorIs(t, err, ErrTaskNotEligible)
}

// While one batch holds the task lease no second batch may start, so an
// overlapping trigger cannot spend quota behind the first batch's back.
func TestTriggerBatchHeldTaskLeaseRejected(t *testing.T) {
	accounts := []string{"acc-1"}
	f := setupRunner(t, accounts)
	f.saveTask(t, likeTask(accounts, 10))

	lease, err := f.governor.TryAcquire(context.Background(), taskLeaseID("task-1"))
	require.NoError(t, err)

	_, err = f.runner.TriggerBatch(context.Background(), "task-1")
	assert.ErrorIs(t, err, ErrTaskBusy)

	logs, err := f.store.Logs().AutomationLogsByTask(context.Background(), "task-1")
	require.NoError(t, err)
	assert.Empty(t, logs, "no attempts while another batch holds the task")

	require.NoError(t, f.governor.Release(context.Background(), lease))

	f.sessions.On("HasAuthSignal", mock.Anything, "acc-1").Return(true, nil)
	f.stubLikeScripts()

	summary, err := f.runner.TriggerBatch(context.Background(), "task-1")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.SuccessCount)
}

// Two batches racing for the same task spend quota exactly once. The loser
// either finds the task busy or, arriving after the winner finished, sees
// the spent counter; in neither case does a counter write get lost.
func TestConcurrentTriggerBatchCannotOverspendQuota(t *testing.T) {
	accounts := []string{"acc-1", "acc-2"}
	f := setupRunner(t, accounts)
	f.saveTask(t, likeTask(accounts, 1))

	for _, id := range accounts {
		f.sessions.On("HasAuthSignal", mock.Anything, id).Return(true, nil)
	}

	f.stubLikeScripts()

	var wg sync.WaitGroup

	errs := make([]error, 2)

	for i := range errs {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			_, errs[i] = f.runner.TriggerBatch(context.Background(), "task-1")
		}(i)
	}

	wg.Wait()

	rejected := 0

	for _, err := range errs {
		if err != nil {
			rejected++
			assert.True(t, errors.Is(err, ErrTaskBusy) || errors.Is(err, ErrTaskNotEligible))
		}
	}

	assert.Equal(t, 1, rejected, "exactly one batch wins the task lease")

	logs, err := f.store.Logs().AutomationLogsByTask(context.Background(), "task-1")
	require.NoError(t, err)
	assert.Len(t, logs, 1, "one live attempt against a limit of one")

	stored, err := f.store.AutomationTasks().GetByID(context.Background(), "task-1")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.TodayCount)
}

// RunDue honors the interval gate that TriggerBatch bypasses.
func TestRunDueIntervalGate(t *testing.T) {
	accounts := []string{"acc-1"}
	f := setupRunner(t, accounts)

	task := likeTask(accounts, 10)
	lastRun := f.now.Add(-30 * time.Minute)
	task.LastRunAt = &lastRun
	f.saveTask(t, task)

	f.runner.RunDue(context.Background())

	logs, err := f.store.Logs().AutomationLogsByTask(context.Background(), "task-1")
	require.NoError(t, err)
	assert.Empty(t, logs, "interval has not elapsed")

	lastRun = f.now.Add(-61 * time.Minute)
	task.LastRunAt = &lastRun
	f.saveTask(t, task)

	f.sessions.On("HasAuthSignal", mock.Anything, "acc-1").Return(true, nil)
	f.stubLikeScripts()

	f.runner.RunDue(context.Background())

	logs, err = f.store.Logs().AutomationLogsByTask(context.Background(), "task-1")
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}
