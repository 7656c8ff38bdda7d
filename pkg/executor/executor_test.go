package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/beaconops/flock/pkg/log"
	"github.com/beaconops/flock/pkg/mocks"
	"github.com/beaconops/flock/pkg/models"
	"github.com/beaconops/flock/pkg/persistence/file"
	"github.com/beaconops/flock/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		ReadyPollInterval: time.Millisecond,
		ReadyMaxAttempts:  3,
		ScriptTimeout:     time.Second,
	}
}

func setupExecutor(t *testing.T) (*Executor, *mocks.MockSessionManager, *file.Persistence) {
	t.Helper()

	store := file.NewPersistence(t.TempDir())

	account := &models.Account{
		ID:       "acc-1",
		Username: "tester",
		Status:   models.AccountStatusActive,
	}
	require.NoError(t, store.Accounts().Save(context.Background(), account))

	sessions := &mocks.MockSessionManager{Surface: &mocks.MockSurface{}}
	targets := session.NewTargets("https://x.test")

	exec := NewExecutor(store, sessions, targets, nil, testConfig(), log.WithModule("test"))

	return exec, sessions, store
}

func TestClassify(t *testing.T) {
	exec, _, _ := setupExecutor(t)
	_ = exec

	assert.Equal(t, OutcomeCompleted, Classify(nil))
	assert.Equal(t, OutcomeNotLoggedIn, Classify(ErrNotLoggedIn))
	assert.Equal(t, OutcomeElementTimeout, Classify(ErrElementTimeout))
	assert.Equal(t, OutcomeActionRejected, Classify(ErrActionRejected))
	assert.Equal(t, OutcomeSessionError, Classify(ErrSession))
	assert.Equal(t, OutcomeSessionError, Classify(session.ErrNoSession))
	assert.Equal(t, OutcomeSessionError, Classify(session.ErrSurfaceClosed))
	assert.Equal(t, OutcomeUnknown, Classify(errors.New("boom")))
}

func TestExecuteNotLoggedIn(t *testing.T) {
	exec, sessions, store := setupExecutor(t)

	sessions.On("HasAuthSignal", mock.Anything, "acc-1").Return(false, nil)

	outcome := exec.Execute(context.Background(), Request{
		AccountID: "acc-1",
		Action:    models.ActionLike,
		TargetURL: "https://x.test/p/1",
	})

	assert.False(t, outcome.Success)
	assert.Equal(t, OutcomeNotLoggedIn, outcome.Kind)

	count, err := store.Logs().ActionCountForAccount(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "failures are audited too")
}

func TestExecuteAccountNotFound(t *testing.T) {
	exec, _, _ := setupExecutor(t)

	outcome := exec.Execute(context.Background(), Request{
		AccountID: "missing",
		Action:    models.ActionLike,
		TargetURL: "https://x.test/p/1",
	})

	assert.False(t, outcome.Success)
	assert.Equal(t, OutcomeAccountNotFound, outcome.Kind)
}

func TestExecuteCompleted(t *testing.T) {
	exec, sessions, store := setupExecutor(t)
	surface := sessions.Surface

	sessions.On("HasAuthSignal", mock.Anything, "acc-1").Return(true, nil)
	sessions.On("WithSurface", mock.Anything, "acc-1", mock.Anything).Return(nil)

	surface.On("Navigate", mock.Anything, "https://x.test/p/1").Return(nil)
	surface.On("Run", mock.Anything, "probe:like", mock.Anything).
		Return(session.ScriptResult{OK: true}, nil)
	surface.On("Run", mock.Anything, "perform:like", mock.Anything).
		Return(session.ScriptResult{OK: true}, nil)
	surface.On("Run", mock.Anything, "verify:like", mock.Anything).
		Return(session.ScriptResult{OK: true, State: "liked"}, nil)

	outcome := exec.Execute(context.Background(), Request{
		AccountID: "acc-1",
		Action:    models.ActionLike,
		TargetURL: "https://x.test/p/1",
	})

	assert.True(t, outcome.Success)
	assert.Equal(t, OutcomeCompleted, outcome.Kind)

	count, err := store.Logs().ActionCountForAccount(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

// An action finding its target already in the desired state succeeds without
// running the verify script.
func TestExecuteAlreadyDone(t *testing.T) {
	exec, sessions, _ := setupExecutor(t)
	surface := sessions.Surface

	sessions.On("HasAuthSignal", mock.Anything, "acc-1").Return(true, nil)
	sessions.On("WithSurface", mock.Anything, "acc-1", mock.Anything).Return(nil)

	surface.On("Navigate", mock.Anything, mock.Anything).Return(nil)
	surface.On("Run", mock.Anything, "probe:follow", mock.Anything).
		Return(session.ScriptResult{OK: true}, nil)
	surface.On("Run", mock.Anything, "perform:follow", mock.Anything).
		Return(session.ScriptResult{OK: false, State: session.StateAlreadyDone}, nil)

	outcome := exec.Execute(context.Background(), Request{
		AccountID: "acc-1",
		Action:    models.ActionFollow,
		TargetURL: "https://x.test/someone",
	})

	assert.True(t, outcome.Success)
	assert.Equal(t, OutcomeAlreadyDone, outcome.Kind)
	surface.AssertNotCalled(t, "Run", mock.Anything, "verify:follow", mock.Anything)
}

func TestExecuteElementTimeout(t *testing.T) {
	exec, sessions, _ := setupExecutor(t)
	surface := sessions.Surface

	sessions.On("HasAuthSignal", mock.Anything, "acc-1").Return(true, nil)
	sessions.On("WithSurface", mock.Anything, "acc-1", mock.Anything).Return(nil)

	surface.On("Navigate", mock.Anything, mock.Anything).Return(nil)
	surface.On("Run", mock.Anything, "probe:like", mock.Anything).
		Return(session.ScriptResult{OK: false}, nil)

	outcome := exec.Execute(context.Background(), Request{
		AccountID: "acc-1",
		Action:    models.ActionLike,
		TargetURL: "https://x.test/p/1",
	})

	assert.False(t, outcome.Success)
	assert.Equal(t, OutcomeElementTimeout, outcome.Kind)
	surface.AssertNumberOfCalls(t, "Run", 3)
}

func TestExecuteActionRejected(t *testing.T) {
	exec, sessions, _ := setupExecutor(t)
	surface := sessions.Surface

	sessions.On("HasAuthSignal", mock.Anything, "acc-1").Return(true, nil)
	sessions.On("WithSurface", mock.Anything, "acc-1", mock.Anything).Return(nil)

	surface.On("Navigate", mock.Anything, mock.Anything).Return(nil)
	surface.On("Run", mock.Anything, "probe:like", mock.Anything).
		Return(session.ScriptResult{OK: true}, nil)
	surface.On("Run", mock.Anything, "perform:like", mock.Anything).
		Return(session.ScriptResult{OK: false, State: session.StateDisabled}, nil)

	outcome := exec.Execute(context.Background(), Request{
		AccountID: "acc-1",
		Action:    models.ActionLike,
		TargetURL: "https://x.test/p/1",
	})

	assert.False(t, outcome.Success)
	assert.Equal(t, OutcomeActionRejected, outcome.Kind)
}

func TestExecuteNavigateFailureIsSessionError(t *testing.T) {
	exec, sessions, _ := setupExecutor(t)
	surface := sessions.Surface

	sessions.On("HasAuthSignal", mock.Anything, "acc-1").Return(true, nil)
	sessions.On("WithSurface", mock.Anything, "acc-1", mock.Anything).Return(nil)

	surface.On("Navigate", mock.Anything, mock.Anything).Return(errors.New("net down"))

	outcome := exec.Execute(context.Background(), Request{
		AccountID: "acc-1",
		Action:    models.ActionLike,
		TargetURL: "https://x.test/p/1",
	})

	assert.False(t, outcome.Success)
	assert.Equal(t, OutcomeSessionError, outcome.Kind)
}

func TestResolveTargetDerivedURLs(t *testing.T) {
	exec, sessions, _ := setupExecutor(t)
	surface := sessions.Surface

	sessions.On("HasAuthSignal", mock.Anything, "acc-1").Return(true, nil)
	sessions.On("WithSurface", mock.Anything, "acc-1", mock.Anything).Return(nil)

	surface.On("Navigate", mock.Anything, "https://x.test/compose").Return(nil)
	surface.On("Run", mock.Anything, "probe:composer", mock.Anything).
		Return(session.ScriptResult{OK: true}, nil)
	surface.On("Run", mock.Anything, mock.MatchedBy(func(script string) bool {
		return len(script) > len("perform:post") && script[:len("perform:post")] == "perform:post"
	}), mock.Anything).Return(session.ScriptResult{OK: true}, nil)
	surface.On("Run", mock.Anything, "verify:post", mock.Anything).
		Return(session.ScriptResult{OK: true}, nil)

	outcome := exec.Execute(context.Background(), Request{
		AccountID: "acc-1",
		Action:    models.ActionPost,
		Content:   "hello world",
	})

	assert.True(t, outcome.Success)
	assert.Equal(t, "https://x.test/compose", outcome.TargetURL)
}

// An action type outside the closed set is rejected by dispatch and never
// reaches the page.
func TestExecuteUnknownActionType(t *testing.T) {
	exec, sessions, _ := setupExecutor(t)

	sessions.On("HasAuthSignal", mock.Anything, "acc-1").Return(true, nil)

	outcome := exec.Execute(context.Background(), Request{
		AccountID: "acc-1",
		Action:    models.ActionType("retweet"),
		TargetURL: "https://x.test/p/1",
	})

	assert.False(t, outcome.Success)
	assert.Equal(t, OutcomeUnknown, outcome.Kind)
	assert.ErrorIs(t, outcome.Err, ErrUnknownAction)
	sessions.AssertNotCalled(t, "WithSurface", mock.Anything, mock.Anything, mock.Anything)
}

func TestEngagementActionRequiresTargetURL(t *testing.T) {
	exec, _, _ := setupExecutor(t)

	outcome := exec.Execute(context.Background(), Request{
		AccountID: "acc-1",
		Action:    models.ActionLike,
	})

	assert.False(t, outcome.Success)
	assert.Equal(t, OutcomeActionRejected, outcome.Kind)
}
