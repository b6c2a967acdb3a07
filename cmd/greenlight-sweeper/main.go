// Package main provides the greenlight maintenance daemon: the scheduled
// consistency repair pass and the escalation sweep over overdue steps.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	cli "github.com/urfave/cli/v3"

	"github.com/greenlighthq/greenlight/pkg/cmd"
	"github.com/greenlighthq/greenlight/pkg/log"
	"github.com/greenlighthq/greenlight/pkg/otelhelper"
	"github.com/greenlighthq/greenlight/pkg/services"
	"github.com/greenlighthq/greenlight/pkg/workflow"
)

func main() {
	logger := log.WithModule("sweeper")

	command := &cli.Command{
		Name:                  "greenlight-sweeper",
		Usage:                 "Run scheduled consistency repair and escalation sweeps",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
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
			&cli.StringFlag{
				Name:    "repair-schedule",
				Usage:   "Cron expression for the consistency repair pass",
				Value:   "*/10 * * * *",
				Sources: cli.EnvVars("REPAIR_SCHEDULE"),
			},
			&cli.StringFlag{
				Name:    "escalation-schedule",
				Usage:   "Cron expression for the escalation sweep",
				Value:   "*/5 * * * *",
				Sources: cli.EnvVars("ESCALATION_SCHEDULE"),
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

			logger.InfoContext(ctx, "Initializing Greenlight sweeper")

			if command.Bool("tracing") {
				if _, err := otelhelper.NewTracer(ctx, "greenlight-sweeper"); err != nil {
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

			dispatcher := services.NewDispatcher(inbox, eventBus, logger)
			sequencer := services.NewSequencer(persistence, dispatcher, logger)
			archival := services.NewArchival(persistence, archiver, dispatcher, logger)
			repair := services.NewRepair(persistence, sequencer, archival, logger)

			executor := workflow.NewExecutor(persistence, sequencer, archival, dispatcher, logger)
			sweeper := workflow.NewSweeper(persistence, sequencer, archival, dispatcher, logger)
			sweeper.SetResumer(executor)

			scheduler := cron.New()

			_, err := scheduler.AddFunc(command.String("repair-schedule"), func() {
				report, err := repair.Run(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Repair pass failed", "error", err)
					return
				}

				logger.InfoContext(ctx, "Repair pass finished",
					"requests_checked", report.RequestsChecked, "fixed_count", report.FixedCount)
			})
			if err != nil {
				return err
			}

			_, err = scheduler.AddFunc(command.String("escalation-schedule"), func() {
				handled, err := sweeper.Sweep(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Escalation sweep failed", "error", err)
					return
				}

				if handled > 0 {
					logger.InfoContext(ctx, "Escalation sweep finished", "handled", handled)
				}
			})
			if err != nil {
				return err
			}

			scheduler.Start()
			defer scheduler.Stop()

			logger.InfoContext(ctx, "Sweeper running",
				"repair_schedule", command.String("repair-schedule"),
				"escalation_schedule", command.String("escalation-schedule"))

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
			<-stop

			logger.InfoContext(ctx, "Shutting down sweeper")

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
