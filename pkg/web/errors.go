package web

import (
	"errors"

	"github.com/beaconops/flock/pkg/interpreter"
	"github.com/beaconops/flock/pkg/persistence"
	"github.com/beaconops/flock/pkg/runner"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func conflict(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(409).
		WithInstance(c.Path()).
		WithType("conflict").
		WithDetail(detail)

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleStoreError maps engine and persistence errors onto problem responses.
func handleStoreError(c fiber.Ctx, err error) error {
	switch {
	case persistence.IsPostNotFound(err):
		return notFound(c, "scheduled post not found")

	case persistence.IsTaskNotFound(err):
		return notFound(c, "automation task not found")

	case persistence.IsWorkflowNotFound(err):
		return notFound(c, "workflow not found")

	case persistence.IsAccountNotFound(err):
		return notFound(c, "account not found")

	case persistence.IsInvalidTransition(err):
		return conflict(c, err.Error())

	case errors.Is(err, runner.ErrTaskNotEligible):
		return conflict(c, err.Error())

	case errors.Is(err, runner.ErrTaskBusy):
		return conflict(c, err.Error())

	case errors.Is(err, interpreter.ErrWorkflowDisabled):
		return conflict(c, err.Error())

	default:
		return internalError(c, err)
	}
}
