package main

import (
	"context"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/beaconops/flock/pkg/cmd"
	"github.com/beaconops/flock/pkg/executor"
	"github.com/beaconops/flock/pkg/governor"
	"github.com/beaconops/flock/pkg/interpreter"
	"github.com/beaconops/flock/pkg/log"
	"github.com/beaconops/flock/pkg/runner"
	"github.com/beaconops/flock/pkg/session"
	cli "github.com/urfave/cli/v3"
)

func run(ctx context.Context, command *cli.Command) error {
	logger := log.WithModule("flock-api")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eventBus := cmd.NewEventBus(command.String("event-bus"), logger)
	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	store := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	defer func() {
		if err := store.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	gov := governor.NewGovernor(
		cmd.NewLeaseStore(command.String("redis-url")),
		governor.DefaultConfig(),
	)

	targets := session.NewTargets(command.String("platform-base-url"))
	sessions := session.NewBridgeManager(command.String("session-bridge-url"))

	exec := executor.NewExecutor(store, sessions, targets, eventBus, executor.DefaultConfig(), logger)
	batches := runner.NewRunner(store, exec, gov, targets, eventBus, logger)
	interp := interpreter.NewInterpreter(store, exec, gov, targets, eventBus, interpreter.DefaultConfig(), logger)

	api := NewAPI(logger, store, batches, interp)
	app := api.App()

	go func() {
		<-ctx.Done()

		if err := app.Shutdown(); err != nil {
			logger.Error("Failed to shut down server", "error", err)
		}
	}()

	port := int(command.Int("port"))
	logger.InfoContext(ctx, "Starting API server", "port", port)

	return app.Listen(":" + strconv.Itoa(port))
}
