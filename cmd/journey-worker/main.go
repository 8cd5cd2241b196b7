package main

import (
	"context"
	"os"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	appcmd "github.com/autocrm/journey/pkg/cmd"
	"github.com/autocrm/journey/pkg/journey"
	"github.com/autocrm/journey/pkg/log"
	"github.com/autocrm/journey/pkg/receivers/queue"
)

func main() {
	logger := log.WithModule("worker")

	command := &cli.Command{
		Name:                  "journey-worker",
		Usage:                 "Consume CRM events and advance journey enrollments",
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
				Name:    "queue-addr",
				Usage:   "Redis address for the CRM event queue (empty disables the queue receiver)",
				Sources: cli.EnvVars("QUEUE_ADDR"),
			},
			&cli.StringFlag{
				Name:    "queue-name",
				Usage:   "Redis queue the CRM pushes subject events to",
				Value:   "autocrm:events",
				Sources: cli.EnvVars("QUEUE_NAME"),
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

			workerID := "worker-" + uuid.New().String()[:8]

			logger.InfoContext(ctx, "Initializing journey worker", "worker_id", workerID)

			persistence := appcmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := appcmd.NewEventBus(command.String("event-bus"), "journey-worker", logger)
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

			repository := journey.NewRepository(persistence, eventBus)
			executor := journey.NewExecutor(persistence, eventBus, capabilities, logger)
			matcher := journey.NewTriggerMatcher(repository, executor, logger)

			var receiver *queue.Receiver

			if addr := command.String("queue-addr"); addr != "" {
				var err error

				receiver, err = queue.NewReceiver(map[string]any{
					"queue": command.String("queue-name"),
					"connection": map[string]any{
						"addr": addr,
					},
				}, logger)
				if err != nil {
					return err
				}
			}

			worker := NewWorker(workerID, matcher, eventBus, receiver, logger)

			return worker.Start(ctx)
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
