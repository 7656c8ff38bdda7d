// Package main provides the flock API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/beaconops/flock/pkg/interpreter"
	"github.com/beaconops/flock/pkg/persistence"
	"github.com/beaconops/flock/pkg/runner"
	"github.com/beaconops/flock/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	runner      *runner.Runner
	interpreter *interpreter.Interpreter
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	store persistence.Persistence,
	batches *runner.Runner,
	interp *interpreter.Interpreter,
) *API {
	return &API{
		logger:      logger,
		persistence: store,
		runner:      batches,
		interpreter: interp,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.persistence, a.runner, a.interpreter, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Flock API")
	})

	posts := app.Group("/scheduled-posts")
	posts.Get("/", handlers.ListScheduledPosts)
	posts.Post("/", handlers.CreateScheduledPost)
	posts.Get("/:id", handlers.GetScheduledPost)
	posts.Delete("/:id", handlers.CancelScheduledPost)

	tasks := app.Group("/automation-tasks")
	tasks.Get("/", handlers.ListAutomationTasks)
	tasks.Post("/", handlers.CreateAutomationTask)
	tasks.Get("/stats", handlers.AutomationTaskStats)
	tasks.Post("/:id/trigger", handlers.TriggerAutomationTask)

	workflows := app.Group("/workflows")
	workflows.Get("/", handlers.ListWorkflows)
	workflows.Get("/:id", handlers.GetWorkflow)
	workflows.Post("/:id/execute", handlers.ExecuteWorkflow)

	app.Get("/runs/:runId/logs", handlers.WorkflowRunLogs)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}
