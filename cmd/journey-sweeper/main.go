// Package main provides the delay sweeper daemon. It periodically resumes
// enrollments parked at delay nodes whose resume time has elapsed.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	cli "github.com/urfave/cli/v3"

	appcmd "github.com/autocrm/journey/pkg/cmd"
	"github.com/autocrm/journey/pkg/journey"
	"github.com/autocrm/journey/pkg/log"
)

func main() {
	logger := log.WithModule("sweeper")

	command := &cli.Command{
		Name:                  "journey-sweeper",
		Usage:                 "Resume enrollments parked at delay nodes",
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
				Value:   "kafka",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "schedule",
				Usage:   "Cron schedule for the delay sweep",
				Value:   "@every 30s",
				Sources: cli.EnvVars("SWEEP_SCHEDULE"),
			},
			&cli.StringFlag{
				Name:    "messaging-url",
				Usage:   "Base URL of the CRM messaging service",
				Sources: cli.EnvVars("MESSAGING_URL"),
			},
			&cli.StringFlag{
				Name:    "chat-url",
				Usage:   "Base URL of the CRM chat service",
				Sources: cli.EnvVars("CHAT_URL"),
			},
			&cli.StringFlag{
				Name:    "tasks-url",
				Usage:   "Base URL of the CRM task service",
				Sources: cli.EnvVars("TASKS_URL"),
			},
			&cli.StringFlag{
				Name:    "content-url",
				Usage:   "Base URL of the content generation service",
				Sources: cli.EnvVars("CONTENT_URL"),
			},
			&cli.StringFlag{
				Name:    "subjects-url",
				Usage:   "Base URL of the CRM subject service",
				Sources: cli.EnvVars("SUBJECTS_URL"),
			},
			&cli.StringFlag{
				Name:    "crm-api-key",
				Usage:   "API key for the CRM services",
				Sources: cli.EnvVars("CRM_API_KEY"),
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

			logger.InfoContext(ctx, "Initializing journey sweeper",
				"schedule", command.String("schedule"))

			persistence := appcmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := appcmd.NewEventBus(command.String("event-bus"), "journey-sweeper", logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			capabilities := appcmd.NewCapabilities(appcmd.CapabilityConfig{
				MessagingURL: command.String("messaging-url"),
				ChatURL:      command.String("chat-url"),
				TasksURL:     command.String("tasks-url"),
				ContentURL:   command.String("content-url"),
				SubjectsURL:  command.String("subjects-url"),
				APIKey:       command.String("crm-api-key"),
			}, logger)

			executor := journey.NewExecutor(persistence, eventBus, capabilities, logger)
			sweeper := journey.NewSweeper(persistence, executor, logger)

			scheduler := cron.New()

			_, err := scheduler.AddFunc(command.String("schedule"), func() {
				resumed, err := sweeper.SweepDelays(ctx, time.Now().UTC())
				if err != nil {
					logger.ErrorContext(ctx, "Delay sweep failed", "error", err)

					return
				}

				if resumed > 0 {
					logger.InfoContext(ctx, "Delay sweep finished", "resumed", resumed)
				}
			})
			if err != nil {
				return err
			}

			scheduler.Start()

			logger.InfoContext(ctx, "Sweeper started successfully")

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

			<-sigChan
			logger.InfoContext(ctx, "Shutting down sweeper")

			<-scheduler.Stop().Done()

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
