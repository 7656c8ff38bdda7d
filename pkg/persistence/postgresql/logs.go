package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/beaconops/flock/pkg/models"
	"github.com/beaconops/flock/pkg/persistence"
)

// LogRepository handles the append-only audit tables.
type LogRepository struct {
	db *sql.DB
}

func (r *LogRepository) AppendAutomationLog(ctx context.Context, entry *models.AutomationLog) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO automation_logs (id, task_id, account_id, action_type,
			target_url, status, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID,
		entry.TaskID,
		entry.AccountID,
		entry.ActionType,
		nullString(entry.TargetURL),
		entry.Status,
		nullString(entry.ErrorMessage),
		entry.CreatedAt,
	)
	if err != nil {
		return persistence.NewStoreError("AppendAutomationLog", "automation_log", entry.ID, err)
	}

	return nil
}

func (r *LogRepository) AppendActionLog(ctx context.Context, entry *models.ActionLog) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO action_logs (id, account_id, action_type, target_url,
			status, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID,
		entry.AccountID,
		entry.ActionType,
		nullString(entry.TargetURL),
		entry.Status,
		nullString(entry.ErrorMessage),
		entry.CreatedAt,
	)
	if err != nil {
		return persistence.NewStoreError("AppendActionLog", "action_log", entry.ID, err)
	}

	return nil
}

func (r *LogRepository) AppendWorkflowLog(ctx context.Context, entry *models.WorkflowLog) error {
	resultData, err := json.Marshal(entry.ResultData)
	if err != nil {
		return persistence.NewStoreError("AppendWorkflowLog", "workflow_log", entry.ID, err)
	}

	var stepID sql.NullString
	if entry.StepID != nil {
		stepID = sql.NullString{String: *entry.StepID, Valid: true}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO workflow_logs (id, workflow_id, run_id, step_id, status,
			started_at, completed_at, error_message, result_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.ID,
		entry.WorkflowID,
		entry.RunID,
		stepID,
		entry.Status,
		entry.StartedAt,
		nullTime(entry.CompletedAt),
		nullString(entry.ErrorMessage),
		resultData,
	)
	if err != nil {
		return persistence.NewStoreError("AppendWorkflowLog", "workflow_log", entry.ID, err)
	}

	return nil
}

func (r *LogRepository) UpdateWorkflowLog(ctx context.Context, entry *models.WorkflowLog) error {
	resultData, err := json.Marshal(entry.ResultData)
	if err != nil {
		return persistence.NewStoreError("UpdateWorkflowLog", "workflow_log", entry.ID, err)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE workflow_logs
		SET status = $1, completed_at = $2, error_message = $3, result_data = $4
		WHERE id = $5`,
		entry.Status,
		nullTime(entry.CompletedAt),
		nullString(entry.ErrorMessage),
		resultData,
		entry.ID,
	)

	return settleExec(result, err, "UpdateWorkflowLog", "workflow_log", entry.ID, persistence.ErrLogNotFound)
}

func (r *LogRepository) WorkflowLogsByRun(ctx context.Context, runID string) ([]*models.WorkflowLog, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, workflow_id, run_id, step_id, status, started_at,
			completed_at, error_message, result_data
		FROM workflow_logs
		WHERE run_id = $1
		ORDER BY started_at`, runID)
	if err != nil {
		return nil, persistence.NewStoreError("WorkflowLogsByRun", "workflow_log", runID, err)
	}
	defer rows.Close()

	logs := make([]*models.WorkflowLog, 0)

	for rows.Next() {
		var (
			entry        models.WorkflowLog
			stepID       sql.NullString
			completedAt  sql.NullTime
			errorMessage sql.NullString
			resultData   []byte
		)

		err := rows.Scan(
			&entry.ID,
			&entry.WorkflowID,
			&entry.RunID,
			&stepID,
			&entry.Status,
			&entry.StartedAt,
			&completedAt,
			&errorMessage,
			&resultData,
		)
		if err != nil {
			return nil, persistence.NewStoreError("WorkflowLogsByRun", "workflow_log", runID, err)
		}

		if stepID.Valid {
			entry.StepID = &stepID.String
		}

		if completedAt.Valid {
			entry.CompletedAt = &completedAt.Time
		}

		entry.ErrorMessage = errorMessage.String

		if len(resultData) > 0 {
			if err := json.Unmarshal(resultData, &entry.ResultData); err != nil {
				return nil, persistence.NewStoreError("WorkflowLogsByRun", "workflow_log", runID, err)
			}
		}

		logs = append(logs, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewStoreError("WorkflowLogsByRun", "workflow_log", runID, err)
	}

	return logs, nil
}

func (r *LogRepository) AutomationLogsByTask(ctx context.Context, taskID string) ([]*models.AutomationLog, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, task_id, account_id, action_type, target_url, status,
			error_message, created_at
		FROM automation_logs
		WHERE task_id = $1
		ORDER BY created_at`, taskID)
	if err != nil {
		return nil, persistence.NewStoreError("AutomationLogsByTask", "automation_log", taskID, err)
	}
	defer rows.Close()

	logs := make([]*models.AutomationLog, 0)

	for rows.Next() {
		var (
			entry        models.AutomationLog
			targetURL    sql.NullString
			errorMessage sql.NullString
		)

		err := rows.Scan(
			&entry.ID,
			&entry.TaskID,
			&entry.AccountID,
			&entry.ActionType,
			&targetURL,
			&entry.Status,
			&errorMessage,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, persistence.NewStoreError("AutomationLogsByTask", "automation_log", taskID, err)
		}

		entry.TargetURL = targetURL.String
		entry.ErrorMessage = errorMessage.String

		logs = append(logs, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewStoreError("AutomationLogsByTask", "automation_log", taskID, err)
	}

	return logs, nil
}

func (r *LogRepository) ActionCountForAccount(ctx context.Context, accountID string) (int, error) {
	var count int

	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM action_logs WHERE account_id = $1`, accountID).Scan(&count)
	if err != nil {
		return 0, persistence.NewStoreError("ActionCountForAccount", "action_log", accountID, err)
	}

	return count, nil
}
