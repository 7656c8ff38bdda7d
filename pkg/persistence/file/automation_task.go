package file

import (
	"context"
	"sort"
	"time"

	"github.com/beaconops/flock/pkg/models"
	"github.com/beaconops/flock/pkg/persistence"
)

// AutomationTaskRepository handles automation-task file operations.
type AutomationTaskRepository struct {
	col *collection
}

func (r *AutomationTaskRepository) GetByID(_ context.Context, id string) (*models.AutomationTask, error) {
	task, err := readDoc[models.AutomationTask](r.col, id)
	if err != nil {
		return nil, persistence.NewStoreError("GetByID", "automation_task", id, err)
	}

	if task == nil {
		return nil, persistence.NewStoreError("GetByID", "automation_task", id, persistence.ErrTaskNotFound)
	}

	return task, nil
}

func (r *AutomationTaskRepository) Save(_ context.Context, task *models.AutomationTask) error {
	if err := writeDoc(r.col, task.ID, task); err != nil {
		return persistence.NewStoreError("Save", "automation_task", task.ID, err)
	}

	return nil
}

func (r *AutomationTaskRepository) List(_ context.Context) ([]*models.AutomationTask, error) {
	tasks, err := readAll[models.AutomationTask](r.col)
	if err != nil {
		return nil, persistence.NewStoreError("List", "automation_task", "", err)
	}

	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})

	return tasks, nil
}

func (r *AutomationTaskRepository) Enabled(ctx context.Context) ([]*models.AutomationTask, error) {
	tasks, err := r.List(ctx)
	if err != nil {
		return nil, err
	}

	enabled := make([]*models.AutomationTask, 0)

	for _, task := range tasks {
		if task.IsEnabled {
			enabled = append(enabled, task)
		}
	}

	return enabled, nil
}

func (r *AutomationTaskRepository) UpdateCounters(_ context.Context, id string, todayCount int, lastRunAt, nextRunAt *time.Time) error {
	r.col.mu.Lock()
	defer r.col.mu.Unlock()

	task, err := readDocLocked[models.AutomationTask](r.col, id)
	if err != nil {
		return persistence.NewStoreError("UpdateCounters", "automation_task", id, err)
	}

	if task == nil {
		return persistence.NewStoreError("UpdateCounters", "automation_task", id, persistence.ErrTaskNotFound)
	}

	task.TodayCount = todayCount
	task.LastRunAt = lastRunAt
	task.NextRunAt = nextRunAt
	task.UpdatedAt = time.Now()

	if err := writeDocLocked(r.col, id, task); err != nil {
		return persistence.NewStoreError("UpdateCounters", "automation_task", id, err)
	}

	return nil
}
