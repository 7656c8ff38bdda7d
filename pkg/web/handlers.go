// Package web provides the REST surface for managing posts, tasks and
// workflows and for triggering runs by hand.
package web

import (
	"time"

	"github.com/beaconops/flock/pkg/interpreter"
	"github.com/beaconops/flock/pkg/models"
	"github.com/beaconops/flock/pkg/persistence"
	"github.com/beaconops/flock/pkg/runner"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

type APIHandlers struct {
	store       persistence.Persistence
	runner      *runner.Runner
	interpreter *interpreter.Interpreter
	validator   *validator.Validate
}

func NewAPIHandlers(
	store persistence.Persistence,
	run *runner.Runner,
	interp *interpreter.Interpreter,
	validate *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		store:       store,
		runner:      run,
		interpreter: interp,
		validator:   validate,
	}
}

func (h *APIHandlers) ListScheduledPosts(c fiber.Ctx) error {
	posts, err := h.store.ScheduledPosts().List(c.Context())
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(fiber.Map{"scheduled_posts": posts})
}

func (h *APIHandlers) CreateScheduledPost(c fiber.Ctx) error {
	var req CreateScheduledPostRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if _, err := h.store.Accounts().GetByID(c.Context(), req.AccountID); err != nil {
		return handleStoreError(c, err)
	}

	now := time.Now()

	post := &models.ScheduledPost{
		ID:          uuid.New().String(),
		AccountID:   req.AccountID,
		Content:     req.Content,
		MediaIDs:    req.MediaIDs,
		ScheduledAt: req.ScheduledAt,
		Status:      models.ScheduledPostStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := h.store.ScheduledPosts().Save(c.Context(), post); err != nil {
		return handleStoreError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(post)
}

func (h *APIHandlers) GetScheduledPost(c fiber.Ctx) error {
	post, err := h.store.ScheduledPosts().GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(post)
}

// CancelScheduledPost cancels a pending post. Posts already picked up by the
// dispatcher cannot be cancelled and answer 409.
func (h *APIHandlers) CancelScheduledPost(c fiber.Ctx) error {
	if err := h.store.ScheduledPosts().Cancel(c.Context(), c.Params("id")); err != nil {
		return handleStoreError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) ListAutomationTasks(c fiber.Ctx) error {
	tasks, err := h.store.AutomationTasks().List(c.Context())
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(fiber.Map{"automation_tasks": tasks})
}

func (h *APIHandlers) CreateAutomationTask(c fiber.Ctx) error {
	var req CreateAutomationTaskRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	now := time.Now()

	task := &models.AutomationTask{
		ID:              uuid.New().String(),
		Name:            req.Name,
		ActionType:      req.ActionType,
		IsEnabled:       req.IsEnabled,
		AccountIDs:      req.AccountIDs,
		TargetType:      req.TargetType,
		TargetValue:     req.TargetValue,
		IntervalMinutes: req.IntervalMinutes,
		DailyLimit:      req.DailyLimit,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := task.Validate(); err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.store.AutomationTasks().Save(c.Context(), task); err != nil {
		return handleStoreError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(task)
}

// TriggerAutomationTask runs one batch immediately, bypassing the interval
// gate. The daily quota still applies.
func (h *APIHandlers) TriggerAutomationTask(c fiber.Ctx) error {
	summary, err := h.runner.TriggerBatch(c.Context(), c.Params("id"))
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(summary)
}

func (h *APIHandlers) AutomationTaskStats(c fiber.Ctx) error {
	tasks, err := h.store.AutomationTasks().List(c.Context())
	if err != nil {
		return handleStoreError(c, err)
	}

	stats := make([]TaskStats, 0, len(tasks))
	for _, task := range tasks {
		stats = append(stats, TaskStats{
			TaskID:     task.ID,
			Name:       task.Name,
			IsEnabled:  task.IsEnabled,
			TodayCount: task.TodayCount,
			DailyLimit: task.DailyLimit,
			LastRunAt:  task.LastRunAt,
			NextRunAt:  task.NextRunAt,
		})
	}

	return c.JSON(fiber.Map{"stats": stats})
}

func (h *APIHandlers) ListWorkflows(c fiber.Ctx) error {
	workflows, err := h.store.Workflows().List(c.Context())
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(fiber.Map{"workflows": workflows})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	workflow, err := h.store.Workflows().GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleStoreError(c, err)
	}

	steps, err := h.store.Workflows().Steps(c.Context(), workflow.ID)
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(fiber.Map{"workflow": workflow, "steps": steps})
}

// ExecuteWorkflow starts a manual run and answers with the run identifier.
func (h *APIHandlers) ExecuteWorkflow(c fiber.Ctx) error {
	runID, err := h.interpreter.Execute(c.Context(), c.Params("id"))
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"run_id": runID})
}

func (h *APIHandlers) WorkflowRunLogs(c fiber.Ctx) error {
	logs, err := h.store.Logs().WorkflowLogsByRun(c.Context(), c.Params("runId"))
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(fiber.Map{"logs": logs})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	if err := h.store.HealthCheck(c.Context()); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"status": "unhealthy",
			"error":  err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}
