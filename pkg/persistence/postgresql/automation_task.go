package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/beaconops/flock/pkg/models"
	"github.com/beaconops/flock/pkg/persistence"
)

// AutomationTaskRepository handles automation-task database operations.
type AutomationTaskRepository struct {
	db *sql.DB
}

const automationTaskColumns = `id, name, action_type, is_enabled, account_ids,
	target_type, target_value, interval_minutes, daily_limit, today_count,
	last_run_at, next_run_at, created_at, updated_at`

func scanAutomationTask(row interface{ Scan(...any) error }) (*models.AutomationTask, error) {
	var (
		task        models.AutomationTask
		accountIDs  []byte
		targetValue sql.NullString
		lastRunAt   sql.NullTime
		nextRunAt   sql.NullTime
	)

	err := row.Scan(
		&task.ID,
		&task.Name,
		&task.ActionType,
		&task.IsEnabled,
		&accountIDs,
		&task.TargetType,
		&targetValue,
		&task.IntervalMinutes,
		&task.DailyLimit,
		&task.TodayCount,
		&lastRunAt,
		&nextRunAt,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(accountIDs, &task.AccountIDs); err != nil {
		return nil, err
	}

	task.TargetValue = targetValue.String

	if lastRunAt.Valid {
		task.LastRunAt = &lastRunAt.Time
	}

	if nextRunAt.Valid {
		task.NextRunAt = &nextRunAt.Time
	}

	return &task, nil
}

func (r *AutomationTaskRepository) GetByID(ctx context.Context, id string) (*models.AutomationTask, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+automationTaskColumns+` FROM automation_tasks WHERE id = $1`, id)

	task, err := scanAutomationTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewStoreError("GetByID", "automation_task", id, persistence.ErrTaskNotFound)
	}

	if err != nil {
		return nil, persistence.NewStoreError("GetByID", "automation_task", id, err)
	}

	return task, nil
}

func (r *AutomationTaskRepository) Save(ctx context.Context, task *models.AutomationTask) error {
	accountIDs, err := json.Marshal(task.AccountIDs)
	if err != nil {
		return persistence.NewStoreError("Save", "automation_task", task.ID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO automation_tasks (`+automationTaskColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			action_type = EXCLUDED.action_type,
			is_enabled = EXCLUDED.is_enabled,
			account_ids = EXCLUDED.account_ids,
			target_type = EXCLUDED.target_type,
			target_value = EXCLUDED.target_value,
			interval_minutes = EXCLUDED.interval_minutes,
			daily_limit = EXCLUDED.daily_limit,
			today_count = EXCLUDED.today_count,
			last_run_at = EXCLUDED.last_run_at,
			next_run_at = EXCLUDED.next_run_at,
			updated_at = EXCLUDED.updated_at`,
		task.ID,
		task.Name,
		task.ActionType,
		task.IsEnabled,
		accountIDs,
		task.TargetType,
		nullString(task.TargetValue),
		task.IntervalMinutes,
		task.DailyLimit,
		task.TodayCount,
		nullTime(task.LastRunAt),
		nullTime(task.NextRunAt),
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		return persistence.NewStoreError("Save", "automation_task", task.ID, err)
	}

	return nil
}

func (r *AutomationTaskRepository) List(ctx context.Context) ([]*models.AutomationTask, error) {
	return r.query(ctx, "List",
		`SELECT `+automationTaskColumns+` FROM automation_tasks ORDER BY created_at`)
}

func (r *AutomationTaskRepository) Enabled(ctx context.Context) ([]*models.AutomationTask, error) {
	return r.query(ctx, "Enabled",
		`SELECT `+automationTaskColumns+` FROM automation_tasks
		 WHERE is_enabled = true
		 ORDER BY created_at`)
}

func (r *AutomationTaskRepository) query(ctx context.Context, op, query string, args ...any) ([]*models.AutomationTask, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistence.NewStoreError(op, "automation_task", "", err)
	}
	defer rows.Close()

	tasks := make([]*models.AutomationTask, 0)

	for rows.Next() {
		task, err := scanAutomationTask(rows)
		if err != nil {
			return nil, persistence.NewStoreError(op, "automation_task", "", err)
		}

		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewStoreError(op, "automation_task", "", err)
	}

	return tasks, nil
}

func (r *AutomationTaskRepository) UpdateCounters(ctx context.Context, id string, todayCount int, lastRunAt, nextRunAt *time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE automation_tasks
		SET today_count = $1, last_run_at = $2, next_run_at = $3, updated_at = NOW()
		WHERE id = $4`,
		todayCount, nullTime(lastRunAt), nullTime(nextRunAt), id)

	return settleExec(result, err, "UpdateCounters", "automation_task", id, persistence.ErrTaskNotFound)
}
