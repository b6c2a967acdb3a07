package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/greenlighthq/greenlight/pkg/cmd"
	"github.com/greenlighthq/greenlight/pkg/log"
	"github.com/greenlighthq/greenlight/pkg/otelhelper"
)

const defaultPort = 9091

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "greenlight-api",
		Usage:                 "Create, route and decide approval requests",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS"),
			},
			&cli.StringFlag{
				Name:    "notifications-url",
				Usage:   "Notification inbox store URL (redis://..., empty for in-memory)",
				Sources: cli.EnvVars("NOTIFICATIONS_URL"),
			},
			&cli.StringFlag{
				Name:    "archive-path",
				Usage:   "Root directory for archived snapshot documents",
				Value:   "./data/archives",
				Sources: cli.EnvVars("ARCHIVE_PATH"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Enable OpenTelemetry tracing export",
				Sources: cli.EnvVars("TRACING_ENABLED"),
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

			logger.InfoContext(ctx, "Initializing Greenlight API")

			if command.Bool("tracing") {
				if _, err := otelhelper.NewTracer(ctx, "greenlight-api"); err != nil {
					logger.WarnContext(ctx, "Failed to initialize tracer", "error", err)
				}
			}

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))

			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			inbox := cmd.NewNotificationStore(command.String("notifications-url"))
			defer func() {
				if err := inbox.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close notification store", "error", err)
				}
			}()

			archiver := cmd.NewArchiver(command.String("archive-path"))

			api := NewAPI(
				logger,
				persistence,
				eventBus,
				inbox,
				archiver,
			)

			err := api.Start(command.Int("port"))
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)
			}

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
