package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	appcmd "github.com/autocrm/journey/pkg/cmd"
	"github.com/autocrm/journey/pkg/log"
)

const defaultPort = 9091

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "journey-api",
		Usage:                 "Create and manage customer journeys",
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
				Value:   "kafka",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
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

			logger.InfoContext(ctx, "Initializing journey API")

			persistence := appcmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := appcmd.NewEventBus(command.String("event-bus"), "journey-api", logger)
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

			api := NewAPI(logger, persistence, eventBus, capabilities)

			if err := api.Start(command.Int("port")); err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)

				return err
			}

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
