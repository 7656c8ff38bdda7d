package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/beaconops/flock/pkg/models"
	"github.com/beaconops/flock/pkg/persistence"
)

// ResumptionRepository handles suspended-run continuations.
type ResumptionRepository struct {
	db *sql.DB
}

func (r *ResumptionRepository) Save(ctx context.Context, resumption *models.Resumption) error {
	state, err := json.Marshal(resumption.State)
	if err != nil {
		return persistence.NewStoreError("Save", "resumption", resumption.ID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO resumptions (id, workflow_id, run_id, step_id, resume_at, state, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			step_id = EXCLUDED.step_id,
			resume_at = EXCLUDED.resume_at,
			state = EXCLUDED.state`,
		resumption.ID,
		resumption.WorkflowID,
		resumption.RunID,
		resumption.StepID,
		resumption.ResumeAt,
		state,
		resumption.CreatedAt,
	)
	if err != nil {
		return persistence.NewStoreError("Save", "resumption", resumption.ID, err)
	}

	return nil
}

func (r *ResumptionRepository) Due(ctx context.Context, now time.Time) ([]*models.Resumption, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, workflow_id, run_id, step_id, resume_at, state, created_at
		FROM resumptions
		WHERE resume_at <= $1
		ORDER BY resume_at`, now)
	if err != nil {
		return nil, persistence.NewStoreError("Due", "resumption", "", err)
	}
	defer rows.Close()

	resumptions := make([]*models.Resumption, 0)

	for rows.Next() {
		var (
			resumption models.Resumption
			state      []byte
		)

		err := rows.Scan(
			&resumption.ID,
			&resumption.WorkflowID,
			&resumption.RunID,
			&resumption.StepID,
			&resumption.ResumeAt,
			&state,
			&resumption.CreatedAt,
		)
		if err != nil {
			return nil, persistence.NewStoreError("Due", "resumption", "", err)
		}

		if err := json.Unmarshal(state, &resumption.State); err != nil {
			return nil, persistence.NewStoreError("Due", "resumption", resumption.ID, err)
		}

		resumptions = append(resumptions, &resumption)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewStoreError("Due", "resumption", "", err)
	}

	return resumptions, nil
}

func (r *ResumptionRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM resumptions WHERE id = $1`, id)

	return settleExec(result, err, "Delete", "resumption", id, persistence.ErrResumptionNotFound)
}
