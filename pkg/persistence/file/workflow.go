package file

import (
	"context"
	"sort"
	"time"

	"github.com/beaconops/flock/pkg/models"
	"github.com/beaconops/flock/pkg/persistence"
)

// WorkflowRepository handles workflow and workflow-step file operations.
// Steps are stored per workflow as one document holding the ordered list.
type WorkflowRepository struct {
	col     *collection
	stepCol *collection
}

func newWorkflowRepository(root string) *WorkflowRepository {
	return &WorkflowRepository{
		col:     newCollection(root, "workflows"),
		stepCol: newCollection(root, "workflow_steps"),
	}
}

func (r *WorkflowRepository) GetByID(_ context.Context, id string) (*models.Workflow, error) {
	workflow, err := readDoc[models.Workflow](r.col, id)
	if err != nil {
		return nil, persistence.NewStoreError("GetByID", "workflow", id, err)
	}

	if workflow == nil {
		return nil, persistence.NewStoreError("GetByID", "workflow", id, persistence.ErrWorkflowNotFound)
	}

	return workflow, nil
}

func (r *WorkflowRepository) Save(_ context.Context, workflow *models.Workflow) error {
	if err := writeDoc(r.col, workflow.ID, workflow); err != nil {
		return persistence.NewStoreError("Save", "workflow", workflow.ID, err)
	}

	return nil
}

func (r *WorkflowRepository) List(_ context.Context) ([]*models.Workflow, error) {
	workflows, err := readAll[models.Workflow](r.col)
	if err != nil {
		return nil, persistence.NewStoreError("List", "workflow", "", err)
	}

	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].CreatedAt.Before(workflows[j].CreatedAt)
	})

	return workflows, nil
}

func (r *WorkflowRepository) DueScheduled(ctx context.Context, now time.Time) ([]*models.Workflow, error) {
	workflows, err := r.List(ctx)
	if err != nil {
		return nil, err
	}

	due := make([]*models.Workflow, 0)

	for _, workflow := range workflows {
		if workflow.IsDue(now) {
			due = append(due, workflow)
		}
	}

	return due, nil
}

func (r *WorkflowRepository) Steps(_ context.Context, workflowID string) ([]*models.WorkflowStep, error) {
	steps, err := readDoc[[]*models.WorkflowStep](r.stepCol, workflowID)
	if err != nil {
		return nil, persistence.NewStoreError("Steps", "workflow", workflowID, err)
	}

	if steps == nil {
		return []*models.WorkflowStep{}, nil
	}

	return *steps, nil
}

func (r *WorkflowRepository) SaveStep(ctx context.Context, step *models.WorkflowStep) error {
	r.stepCol.mu.Lock()
	defer r.stepCol.mu.Unlock()

	stepsDoc, err := readDocLocked[[]*models.WorkflowStep](r.stepCol, step.WorkflowID)
	if err != nil {
		return persistence.NewStoreError("SaveStep", "workflow_step", step.ID, err)
	}

	steps := []*models.WorkflowStep{}
	if stepsDoc != nil {
		steps = *stepsDoc
	}

	replaced := false

	for i, existing := range steps {
		if existing.ID == step.ID {
			steps[i] = step
			replaced = true

			break
		}
	}

	if !replaced {
		steps = append(steps, step)
	}

	if err := writeDocLocked(r.stepCol, step.WorkflowID, &steps); err != nil {
		return persistence.NewStoreError("SaveStep", "workflow_step", step.ID, err)
	}

	return nil
}
