package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/beaconops/flock/pkg/models"
	"github.com/beaconops/flock/pkg/persistence"
	"github.com/beaconops/flock/pkg/persistence/postgresql"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	// Drop tables in reverse dependency order (children first, parents last)
	for _, table := range []string{
		"resumptions", "workflow_logs", "action_logs", "automation_logs",
		"workflow_steps", "workflows", "automation_tasks", "scheduled_posts",
		"accounts", "schema_migrations",
	} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("flock_test"),
			postgres.WithUsername("flock"),
			postgres.WithPassword("flock"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	store, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = store.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return store, ctx, databaseURL
}

func TestNewPersistence_Migrations(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		err := db.Close()
		require.NoError(t, err)
	}()

	var exists bool

	err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM
information_schema.tables WHERE table_name = 'scheduled_posts')`).Scan(&exists)
	require.NoError(t, err)
	assert.True(t, exists, "scheduled_posts table should exist")

	err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM
information_schema.tables WHERE table_name = 'schema_migrations')`).Scan(&exists)
	require.NoError(t, err)
	assert.True(t, exists, "schema_migrations table should exist")

	var version int

	err = db.QueryRowContext(ctx, "SELECT version FROM schema_migrations WHERE version = 1").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}

func TestNewPersistence_HealthCheck(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	err := p.HealthCheck(ctx)
	assert.NoError(t, err)
}

func seedAccount(ctx context.Context, t *testing.T, p *postgresql.Persistence) string {
	t.Helper()

	id := uuid.New().String()

	require.NoError(t, p.Accounts().Save(ctx, &models.Account{
		ID:       id,
		Username: "tester-" + id[:8],
		Status:   models.AccountStatusActive,
	}))

	return id
}

func TestScheduledPost_ClaimOnce(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	accountID := seedAccount(ctx, t, p)
	postID := uuid.New().String()

	require.NoError(t, p.ScheduledPosts().Save(ctx, &models.ScheduledPost{
		ID:          postID,
		AccountID:   accountID,
		Content:     "hello",
		ScheduledAt: time.Now().Add(-time.Minute),
		Status:      models.ScheduledPostStatusPending,
	}))

	due, err := p.ScheduledPosts().PendingDue(ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, due, 1)

	claimed, err := p.ScheduledPosts().MarkProcessing(ctx, postID)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = p.ScheduledPosts().MarkProcessing(ctx, postID)
	require.NoError(t, err)
	assert.False(t, claimed, "second claim loses the race")

	executedAt := time.Now()
	require.NoError(t, p.ScheduledPosts().MarkCompleted(ctx, postID, executedAt))

	stored, err := p.ScheduledPosts().GetByID(ctx, postID)
	require.NoError(t, err)
	assert.Equal(t, models.ScheduledPostStatusCompleted, stored.Status)
	require.NotNil(t, stored.ExecutedAt)
}

func TestScheduledPost_CancelPendingOnly(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	accountID := seedAccount(ctx, t, p)
	postID := uuid.New().String()

	require.NoError(t, p.ScheduledPosts().Save(ctx, &models.ScheduledPost{
		ID:          postID,
		AccountID:   accountID,
		Content:     "hello",
		ScheduledAt: time.Now().Add(time.Hour),
		Status:      models.ScheduledPostStatusPending,
	}))

	require.NoError(t, p.ScheduledPosts().Cancel(ctx, postID))

	err := p.ScheduledPosts().Cancel(ctx, postID)
	assert.True(t, persistence.IsInvalidTransition(err))

	err = p.ScheduledPosts().Cancel(ctx, uuid.New().String())
	assert.True(t, persistence.IsPostNotFound(err))
}

func TestAutomationTask_Counters(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	accountID := seedAccount(ctx, t, p)
	taskID := uuid.New().String()

	require.NoError(t, p.AutomationTasks().Save(ctx, &models.AutomationTask{
		ID:              taskID,
		Name:            "like golang posts",
		ActionType:      models.ActionLike,
		IsEnabled:       true,
		AccountIDs:      []string{accountID},
		TargetType:      models.TargetKeyword,
		TargetValue:     "golang",
		IntervalMinutes: 60,
		DailyLimit:      50,
	}))

	lastRun := time.Now().Truncate(time.Second)
	nextRun := lastRun.Add(time.Hour)

	require.NoError(t, p.AutomationTasks().UpdateCounters(ctx, taskID, 7, &lastRun, &nextRun))

	stored, err := p.AutomationTasks().GetByID(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, 7, stored.TodayCount)
	assert.Equal(t, []string{accountID}, stored.AccountIDs)
	require.NotNil(t, stored.LastRunAt)
	assert.True(t, stored.LastRunAt.Equal(lastRun))

	enabled, err := p.AutomationTasks().Enabled(ctx)
	require.NoError(t, err)
	assert.Len(t, enabled, 1)
}

func TestWorkflow_StepsKeepOrder(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	workflowID := uuid.New().String()

	require.NoError(t, p.Workflows().Save(ctx, &models.Workflow{
		ID:          workflowID,
		Name:        "engagement flow",
		IsEnabled:   true,
		TriggerType: models.TriggerManual,
	}))

	for _, id := range []string{"step-a", "step-b", "step-c"} {
		require.NoError(t, p.Workflows().SaveStep(ctx, &models.WorkflowStep{
			ID:         id,
			WorkflowID: workflowID,
			Name:       id,
			StepType:   models.StepAction,
			Enabled:    true,
		}))
	}

	// Re-saving keeps the original position.
	require.NoError(t, p.Workflows().SaveStep(ctx, &models.WorkflowStep{
		ID:         "step-a",
		WorkflowID: workflowID,
		Name:       "step-a renamed",
		StepType:   models.StepAction,
		Enabled:    true,
	}))

	steps, err := p.Workflows().Steps(ctx, workflowID)
	require.NoError(t, err)
	require.Len(t, steps, 3)
	assert.Equal(t, "step-a", steps[0].ID)
	assert.Equal(t, "step-a renamed", steps[0].Name)
	assert.Equal(t, "step-b", steps[1].ID)
	assert.Equal(t, "step-c", steps[2].ID)
}

func TestResumption_DueAndDelete(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	workflowID := uuid.New().String()

	require.NoError(t, p.Workflows().Save(ctx, &models.Workflow{
		ID:          workflowID,
		Name:        "delayed flow",
		IsEnabled:   true,
		TriggerType: models.TriggerManual,
	}))

	resumptionID := uuid.New().String()
	runID := uuid.New().String()

	require.NoError(t, p.Resumptions().Save(ctx, &models.Resumption{
		ID:         resumptionID,
		WorkflowID: workflowID,
		RunID:      runID,
		StepID:     "step-next",
		ResumeAt:   time.Now().Add(-time.Minute),
		State: models.RunState{
			RunID:      runID,
			WorkflowID: workflowID,
			Variables:  map[string]any{"run_log_id": "log-1"},
		},
		CreatedAt: time.Now(),
	}))

	due, err := p.Resumptions().Due(ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, runID, due[0].RunID)
	assert.Equal(t, "step-next", due[0].StepID)
	assert.Equal(t, "log-1", due[0].State.Variables["run_log_id"])

	require.NoError(t, p.Resumptions().Delete(ctx, resumptionID))

	due, err = p.Resumptions().Due(ctx, time.Now())
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestLogs_RoundTrip(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	accountID := seedAccount(ctx, t, p)
	runID := uuid.New().String()

	workflowID := uuid.New().String()
	require.NoError(t, p.Workflows().Save(ctx, &models.Workflow{
		ID:          workflowID,
		Name:        "logged flow",
		IsEnabled:   true,
		TriggerType: models.TriggerManual,
	}))

	entry := &models.WorkflowLog{
		ID:         uuid.New().String(),
		WorkflowID: workflowID,
		RunID:      runID,
		Status:     models.WorkflowLogStatusRunning,
		StartedAt:  time.Now(),
	}
	require.NoError(t, p.Logs().AppendWorkflowLog(ctx, entry))

	completedAt := time.Now()
	entry.Status = models.WorkflowLogStatusCompleted
	entry.CompletedAt = &completedAt
	entry.ResultData = map[string]any{"success_count": 3}
	require.NoError(t, p.Logs().UpdateWorkflowLog(ctx, entry))

	logs, err := p.Logs().WorkflowLogsByRun(ctx, runID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.WorkflowLogStatusCompleted, logs[0].Status)
	assert.EqualValues(t, 3, logs[0].ResultData["success_count"])

	require.NoError(t, p.Logs().AppendActionLog(ctx, &models.ActionLog{
		ID:         uuid.New().String(),
		AccountID:  accountID,
		ActionType: models.ActionLike,
		Status:     models.ActionLogStatusSuccess,
		CreatedAt:  time.Now(),
	}))

	count, err := p.Logs().ActionCountForAccount(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
