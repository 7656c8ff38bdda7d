package main

import (
	"context"
	"os"

	"github.com/beaconops/flock/pkg/log"
	cli "github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:                  "flock-dispatcher",
		EnableShellCompletion: true,
		Usage:                 "Start the orchestration dispatcher",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for shared account leases (in-memory if empty)",
				Value:   "",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:     "session-bridge-url",
				Usage:    "Base URL of the session sidecar",
				Required: true,
				Sources:  cli.EnvVars("SESSION_BRIDGE_URL"),
			},
			&cli.StringFlag{
				Name:    "platform-base-url",
				Usage:   "Base URL of the target platform",
				Value:   "https://x.com",
				Sources: cli.EnvVars("PLATFORM_BASE_URL"),
			},
			&cli.DurationFlag{
				Name:    "poll-interval",
				Usage:   "Dispatcher polling interval",
				Value:   0,
				Sources: cli.EnvVars("POLL_INTERVAL"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Enable OTLP trace export",
				Value:   false,
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			return run(ctx, command)
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
