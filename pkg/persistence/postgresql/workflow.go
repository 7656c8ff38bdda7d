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

// WorkflowRepository handles workflow and step database operations.
type WorkflowRepository struct {
	db *sql.DB
}

const workflowColumns = `id, name, is_enabled, trigger_type, trigger_config,
	last_run_at, next_run_at, run_count, created_at, updated_at`

func scanWorkflow(row interface{ Scan(...any) error }) (*models.Workflow, error) {
	var (
		workflow      models.Workflow
		triggerConfig []byte
		lastRunAt     sql.NullTime
		nextRunAt     sql.NullTime
	)

	err := row.Scan(
		&workflow.ID,
		&workflow.Name,
		&workflow.IsEnabled,
		&workflow.TriggerType,
		&triggerConfig,
		&lastRunAt,
		&nextRunAt,
		&workflow.RunCount,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(triggerConfig) > 0 {
		if err := json.Unmarshal(triggerConfig, &workflow.TriggerConfig); err != nil {
			return nil, err
		}
	}

	if lastRunAt.Valid {
		workflow.LastRunAt = &lastRunAt.Time
	}

	if nextRunAt.Valid {
		workflow.NextRunAt = &nextRunAt.Time
	}

	return &workflow, nil
}

func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+workflowColumns+` FROM workflows WHERE id = $1`, id)

	workflow, err := scanWorkflow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewStoreError("GetByID", "workflow", id, persistence.ErrWorkflowNotFound)
	}

	if err != nil {
		return nil, persistence.NewStoreError("GetByID", "workflow", id, err)
	}

	return workflow, nil
}

func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	triggerConfig, err := json.Marshal(workflow.TriggerConfig)
	if err != nil {
		return persistence.NewStoreError("Save", "workflow", workflow.ID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO workflows (`+workflowColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			is_enabled = EXCLUDED.is_enabled,
			trigger_type = EXCLUDED.trigger_type,
			trigger_config = EXCLUDED.trigger_config,
			last_run_at = EXCLUDED.last_run_at,
			next_run_at = EXCLUDED.next_run_at,
			run_count = EXCLUDED.run_count,
			updated_at = EXCLUDED.updated_at`,
		workflow.ID,
		workflow.Name,
		workflow.IsEnabled,
		workflow.TriggerType,
		triggerConfig,
		nullTime(workflow.LastRunAt),
		nullTime(workflow.NextRunAt),
		workflow.RunCount,
		workflow.CreatedAt,
		workflow.UpdatedAt,
	)
	if err != nil {
		return persistence.NewStoreError("Save", "workflow", workflow.ID, err)
	}

	return nil
}

func (r *WorkflowRepository) List(ctx context.Context) ([]*models.Workflow, error) {
	return r.query(ctx, "List",
		`SELECT `+workflowColumns+` FROM workflows ORDER BY created_at`)
}

func (r *WorkflowRepository) DueScheduled(ctx context.Context, now time.Time) ([]*models.Workflow, error) {
	return r.query(ctx, "DueScheduled",
		`SELECT `+workflowColumns+` FROM workflows
		 WHERE is_enabled = true AND trigger_type = $1 AND next_run_at <= $2
		 ORDER BY next_run_at`,
		models.TriggerSchedule, now)
}

func (r *WorkflowRepository) query(ctx context.Context, op, query string, args ...any) ([]*models.Workflow, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistence.NewStoreError(op, "workflow", "", err)
	}
	defer rows.Close()

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, persistence.NewStoreError(op, "workflow", "", err)
		}

		workflows = append(workflows, workflow)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewStoreError(op, "workflow", "", err)
	}

	return workflows, nil
}

// Steps returns the workflow's steps in insertion order.
func (r *WorkflowRepository) Steps(ctx context.Context, workflowID string) ([]*models.WorkflowStep, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, workflow_id, name, step_type, action_config,
			condition_config, on_success, on_failure, enabled
		FROM workflow_steps
		WHERE workflow_id = $1
		ORDER BY position, id`, workflowID)
	if err != nil {
		return nil, persistence.NewStoreError("Steps", "workflow_step", workflowID, err)
	}
	defer rows.Close()

	steps := make([]*models.WorkflowStep, 0)

	for rows.Next() {
		var (
			step            models.WorkflowStep
			actionConfig    []byte
			conditionConfig []byte
			onSuccess       sql.NullString
			onFailure       sql.NullString
		)

		err := rows.Scan(
			&step.ID,
			&step.WorkflowID,
			&step.Name,
			&step.StepType,
			&actionConfig,
			&conditionConfig,
			&onSuccess,
			&onFailure,
			&step.Enabled,
		)
		if err != nil {
			return nil, persistence.NewStoreError("Steps", "workflow_step", workflowID, err)
		}

		if len(actionConfig) > 0 {
			if err := json.Unmarshal(actionConfig, &step.ActionConfig); err != nil {
				return nil, persistence.NewStoreError("Steps", "workflow_step", workflowID, err)
			}
		}

		if len(conditionConfig) > 0 {
			if err := json.Unmarshal(conditionConfig, &step.ConditionConfig); err != nil {
				return nil, persistence.NewStoreError("Steps", "workflow_step", workflowID, err)
			}
		}

		if onSuccess.Valid {
			step.OnSuccess = &onSuccess.String
		}

		if onFailure.Valid {
			step.OnFailure = &onFailure.String
		}

		steps = append(steps, &step)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewStoreError("Steps", "workflow_step", workflowID, err)
	}

	return steps, nil
}

func (r *WorkflowRepository) SaveStep(ctx context.Context, step *models.WorkflowStep) error {
	actionConfig, err := json.Marshal(step.ActionConfig)
	if err != nil {
		return persistence.NewStoreError("SaveStep", "workflow_step", step.ID, err)
	}

	conditionConfig, err := json.Marshal(step.ConditionConfig)
	if err != nil {
		return persistence.NewStoreError("SaveStep", "workflow_step", step.ID, err)
	}

	var onSuccess, onFailure sql.NullString

	if step.OnSuccess != nil {
		onSuccess = sql.NullString{String: *step.OnSuccess, Valid: true}
	}

	if step.OnFailure != nil {
		onFailure = sql.NullString{String: *step.OnFailure, Valid: true}
	}

	// New steps take the next position so insertion order is preserved.
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO workflow_steps (id, workflow_id, name, step_type,
			action_config, condition_config, on_success, on_failure, enabled, position)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9,
			(SELECT COALESCE(MAX(position) + 1, 0) FROM workflow_steps WHERE workflow_id = $2))
		ON CONFLICT (workflow_id, id) DO UPDATE SET
			name = EXCLUDED.name,
			step_type = EXCLUDED.step_type,
			action_config = EXCLUDED.action_config,
			condition_config = EXCLUDED.condition_config,
			on_success = EXCLUDED.on_success,
			on_failure = EXCLUDED.on_failure,
			enabled = EXCLUDED.enabled`,
		step.ID,
		step.WorkflowID,
		step.Name,
		step.StepType,
		actionConfig,
		conditionConfig,
		onSuccess,
		onFailure,
		step.Enabled,
	)
	if err != nil {
		return persistence.NewStoreError("SaveStep", "workflow_step", step.ID, err)
	}

	return nil
}
