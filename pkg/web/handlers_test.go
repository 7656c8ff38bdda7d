package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
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
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupAPI(t *testing.T) (*fiber.App, *file.Persistence) {
	t.Helper()

	store := file.NewPersistence(t.TempDir())

	require.NoError(t, store.Accounts().Save(context.Background(), &models.Account{
		ID:       "acc-1",
		Username: "tester",
		Status:   models.AccountStatusActive,
	}))

	sessions := &mocks.MockSessionManager{Surface: &mocks.MockSurface{}}
	targets := session.NewTargets("https://x.test")

	gov := governor.NewGovernor(governor.NewMemoryLeaseStore(), governor.Config{
		LeaseTTL: time.Minute,
	})

	exec := executor.NewExecutor(store, sessions, targets, nil, executor.DefaultConfig(), log.WithModule("test"))
	batches := runner.NewRunner(store, exec, gov, targets, nil, log.WithModule("test"))
	interp := interpreter.NewInterpreter(store, exec, gov, targets, nil,
		interpreter.DefaultConfig(), log.WithModule("test"))

	handlers := NewAPIHandlers(store, batches, interp,
		validator.New(validator.WithRequiredStructEnabled()))

	app := fiber.New()

	posts := app.Group("/scheduled-posts")
	posts.Get("/", handlers.ListScheduledPosts)
	posts.Post("/", handlers.CreateScheduledPost)
	posts.Get("/:id", handlers.GetScheduledPost)
	posts.Delete("/:id", handlers.CancelScheduledPost)

	tasks := app.Group("/automation-tasks")
	tasks.Get("/", handlers.ListAutomationTasks)
	tasks.Post("/", handlers.CreateAutomationTask)
	tasks.Get("/stats", handlers.AutomationTaskStats)
	tasks.Post("/:id/trigger", handlers.TriggerAutomationTask)

	workflows := app.Group("/workflows")
	workflows.Get("/", handlers.ListWorkflows)
	workflows.Get("/:id", handlers.GetWorkflow)
	workflows.Post("/:id/execute", handlers.ExecuteWorkflow)

	app.Get("/runs/:runId/logs", handlers.WorkflowRunLogs)
	app.Get("/health", handlers.HealthCheck)

	return app, store
}

func jsonRequest(method, target string, body any) *http.Request {
	var buf bytes.Buffer

	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}

	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")

	return req
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, out))
}

func TestScheduledPostLifecycle(t *testing.T) {
	app, _ := setupAPI(t)

	resp, err := app.Test(jsonRequest(http.MethodPost, "/scheduled-posts/", CreateScheduledPostRequest{
		AccountID:   "acc-1",
		Content:     "good morning",
		ScheduledAt: time.Now().Add(time.Hour),
	}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var created models.ScheduledPost
	decodeBody(t, resp, &created)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, models.ScheduledPostStatusPending, created.Status)

	resp, err = app.Test(jsonRequest(http.MethodGet, "/scheduled-posts/"+created.ID, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(jsonRequest(http.MethodDelete, "/scheduled-posts/"+created.ID, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	// Cancelling a cancelled post is an invalid transition.
	resp, err = app.Test(jsonRequest(http.MethodDelete, "/scheduled-posts/"+created.ID, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestCreateScheduledPostValidation(t *testing.T) {
	app, _ := setupAPI(t)

	resp, err := app.Test(jsonRequest(http.MethodPost, "/scheduled-posts/", CreateScheduledPostRequest{
		AccountID: "acc-1",
	}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateScheduledPostUnknownAccount(t *testing.T) {
	app, _ := setupAPI(t)

	resp, err := app.Test(jsonRequest(http.MethodPost, "/scheduled-posts/", CreateScheduledPostRequest{
		AccountID:   "nobody",
		Content:     "hello",
		ScheduledAt: time.Now().Add(time.Hour),
	}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetScheduledPostNotFound(t *testing.T) {
	app, _ := setupAPI(t)

	resp, err := app.Test(jsonRequest(http.MethodGet, "/scheduled-posts/missing", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateAutomationTask(t *testing.T) {
	app, store := setupAPI(t)

	resp, err := app.Test(jsonRequest(http.MethodPost, "/automation-tasks/", CreateAutomationTaskRequest{
		Name:            "like golang posts",
		ActionType:      models.ActionLike,
		IsEnabled:       true,
		AccountIDs:      []string{"acc-1"},
		TargetType:      models.TargetKeyword,
		TargetValue:     "golang",
		IntervalMinutes: 60,
		DailyLimit:      50,
	}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var created models.AutomationTask
	decodeBody(t, resp, &created)

	stored, err := store.AutomationTasks().GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "like golang posts", stored.Name)
}

func TestCreateAutomationTaskRejectsBadPayload(t *testing.T) {
	app, _ := setupAPI(t)

	resp, err := app.Test(jsonRequest(http.MethodPost, "/automation-tasks/", CreateAutomationTaskRequest{
		Name: "no",
	}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// Triggering a disabled task answers 409, matching the eligibility rules of
// the scheduled path.
func TestTriggerDisabledTaskConflicts(t *testing.T) {
	app, store := setupAPI(t)

	require.NoError(t, store.AutomationTasks().Save(context.Background(), &models.AutomationTask{
		ID:              "task-1",
		Name:            "disabled task",
		ActionType:      models.ActionLike,
		AccountIDs:      []string{"acc-1"},
		TargetType:      models.TargetKeyword,
		TargetValue:     "golang",
		IntervalMinutes: 60,
		DailyLimit:      10,
	}))

	resp, err := app.Test(jsonRequest(http.MethodPost, "/automation-tasks/task-1/trigger", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestTriggerUnknownTaskNotFound(t *testing.T) {
	app, _ := setupAPI(t)

	resp, err := app.Test(jsonRequest(http.MethodPost, "/automation-tasks/missing/trigger", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAutomationTaskStats(t *testing.T) {
	app, store := setupAPI(t)

	require.NoError(t, store.AutomationTasks().Save(context.Background(), &models.AutomationTask{
		ID:         "task-1",
		Name:       "like golang posts",
		IsEnabled:  true,
		TodayCount: 7,
		DailyLimit: 50,
	}))

	resp, err := app.Test(jsonRequest(http.MethodGet, "/automation-tasks/stats", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Stats []TaskStats `json:"stats"`
	}
	decodeBody(t, resp, &body)
	require.Len(t, body.Stats, 1)
	assert.Equal(t, 7, body.Stats[0].TodayCount)
	assert.Equal(t, 50, body.Stats[0].DailyLimit)
}

func TestExecuteDisabledWorkflowConflicts(t *testing.T) {
	app, store := setupAPI(t)

	require.NoError(t, store.Workflows().Save(context.Background(), &models.Workflow{
		ID:          "wf-1",
		Name:        "disabled flow",
		TriggerType: models.TriggerManual,
	}))

	resp, err := app.Test(jsonRequest(http.MethodPost, "/workflows/wf-1/execute", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestGetWorkflowWithSteps(t *testing.T) {
	app, store := setupAPI(t)
	ctx := context.Background()

	require.NoError(t, store.Workflows().Save(ctx, &models.Workflow{
		ID:          "wf-1",
		Name:        "flow",
		IsEnabled:   true,
		TriggerType: models.TriggerManual,
	}))
	require.NoError(t, store.Workflows().SaveStep(ctx, &models.WorkflowStep{
		ID:         "step-1",
		WorkflowID: "wf-1",
		Name:       "first",
		StepType:   models.StepAction,
		Enabled:    true,
	}))

	resp, err := app.Test(jsonRequest(http.MethodGet, "/workflows/wf-1", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Workflow models.Workflow       `json:"workflow"`
		Steps    []models.WorkflowStep `json:"steps"`
	}
	decodeBody(t, resp, &body)
	assert.Equal(t, "wf-1", body.Workflow.ID)
	require.Len(t, body.Steps, 1)
	assert.Equal(t, "step-1", body.Steps[0].ID)
}

func TestHealthCheck(t *testing.T) {
	app, _ := setupAPI(t)

	resp, err := app.Test(jsonRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
