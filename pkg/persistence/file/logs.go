package file

import (
	"context"
	"sort"

	"github.com/beaconops/flock/pkg/models"
	"github.com/beaconops/flock/pkg/persistence"
)

// LogRepository handles the append-only log collections.
type LogRepository struct {
	automationCol *collection
	actionCol     *collection
	workflowCol   *collection
}

func newLogRepository(root string) *LogRepository {
	return &LogRepository{
		automationCol: newCollection(root, "automation_logs"),
		actionCol:     newCollection(root, "action_logs"),
		workflowCol:   newCollection(root, "workflow_logs"),
	}
}

func (r *LogRepository) AppendAutomationLog(_ context.Context, entry *models.AutomationLog) error {
	if err := writeDoc(r.automationCol, entry.ID, entry); err != nil {
		return persistence.NewStoreError("AppendAutomationLog", "automation_log", entry.ID, err)
	}

	return nil
}

func (r *LogRepository) AppendActionLog(_ context.Context, entry *models.ActionLog) error {
	if err := writeDoc(r.actionCol, entry.ID, entry); err != nil {
		return persistence.NewStoreError("AppendActionLog", "action_log", entry.ID, err)
	}

	return nil
}

func (r *LogRepository) AppendWorkflowLog(_ context.Context, entry *models.WorkflowLog) error {
	if err := writeDoc(r.workflowCol, entry.ID, entry); err != nil {
		return persistence.NewStoreError("AppendWorkflowLog", "workflow_log", entry.ID, err)
	}

	return nil
}

// UpdateWorkflowLog rewrites an existing row, used to move a step visit
// from running to its terminal status.
func (r *LogRepository) UpdateWorkflowLog(_ context.Context, entry *models.WorkflowLog) error {
	r.workflowCol.mu.Lock()
	defer r.workflowCol.mu.Unlock()

	existing, err := readDocLocked[models.WorkflowLog](r.workflowCol, entry.ID)
	if err != nil {
		return persistence.NewStoreError("UpdateWorkflowLog", "workflow_log", entry.ID, err)
	}

	if existing == nil {
		return persistence.NewStoreError("UpdateWorkflowLog", "workflow_log", entry.ID, persistence.ErrLogNotFound)
	}

	if err := writeDocLocked(r.workflowCol, entry.ID, entry); err != nil {
		return persistence.NewStoreError("UpdateWorkflowLog", "workflow_log", entry.ID, err)
	}

	return nil
}

func (r *LogRepository) WorkflowLogsByRun(_ context.Context, runID string) ([]*models.WorkflowLog, error) {
	logs, err := readAll[models.WorkflowLog](r.workflowCol)
	if err != nil {
		return nil, persistence.NewStoreError("WorkflowLogsByRun", "workflow_log", runID, err)
	}

	matched := make([]*models.WorkflowLog, 0)

	for _, entry := range logs {
		if entry.RunID == runID {
			matched = append(matched, entry)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].StartedAt.Before(matched[j].StartedAt)
	})

	return matched, nil
}

func (r *LogRepository) AutomationLogsByTask(_ context.Context, taskID string) ([]*models.AutomationLog, error) {
	logs, err := readAll[models.AutomationLog](r.automationCol)
	if err != nil {
		return nil, persistence.NewStoreError("AutomationLogsByTask", "automation_log", taskID, err)
	}

	matched := make([]*models.AutomationLog, 0)

	for _, entry := range logs {
		if entry.TaskID == taskID {
			matched = append(matched, entry)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	return matched, nil
}

func (r *LogRepository) ActionCountForAccount(_ context.Context, accountID string) (int, error) {
	logs, err := readAll[models.ActionLog](r.actionCol)
	if err != nil {
		return 0, persistence.NewStoreError("ActionCountForAccount", "action_log", accountID, err)
	}

	count := 0

	for _, entry := range logs {
		if entry.AccountID == accountID {
			count++
		}
	}

	return count, nil
}
