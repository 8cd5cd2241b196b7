package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/autocrm/journey/pkg/eventbus"
	"github.com/autocrm/journey/pkg/events"
	"github.com/autocrm/journey/pkg/journey"
	"github.com/autocrm/journey/pkg/receivers/queue"
)

// Worker consumes CRM subject events and fans them out to matching
// journeys. Events arrive on the event bus and, when configured, on a
// Redis queue fed directly by the CRM.
type Worker struct {
	id       string
	matcher  *journey.TriggerMatcher
	eventBus eventbus.EventBus
	receiver *queue.Receiver
	logger   *slog.Logger
}

func NewWorker(
	id string,
	matcher *journey.TriggerMatcher,
	eventBus eventbus.EventBus,
	receiver *queue.Receiver,
	logger *slog.Logger,
) *Worker {
	return &Worker{
		id:       id,
		matcher:  matcher,
		eventBus: eventBus,
		receiver: receiver,
		logger:   logger.With("module", "worker", "worker_id", id),
	}
}

func (w *Worker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w.logger.Info("Starting worker subscriptions")

	if err := w.eventBus.Handle(events.SubjectEventReceivedEvent, w.handleSubjectEvent); err != nil {
		return err
	}

	if err := w.eventBus.Subscribe(ctx); err != nil {
		return err
	}

	if w.receiver != nil {
		callback := func(ctx context.Context, event events.SubjectEventReceived) error {
			_, err := w.matcher.OnEvent(ctx, event)

			return err
		}

		if err := w.receiver.Start(ctx, callback); err != nil {
			return err
		}
	}

	w.logger.Info("Worker started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	w.logger.Info("Shutting down worker")
	cancel()

	if w.receiver != nil {
		if err := w.receiver.Stop(context.Background()); err != nil {
			w.logger.Error("Failed to stop queue receiver", "error", err)
		}
	}

	return nil
}

func (w *Worker) handleSubjectEvent(ctx context.Context, event any) error {
	subjectEvent, ok := event.(*events.SubjectEventReceived)
	if !ok {
		w.logger.Error("Invalid event type for SubjectEventReceived")

		return nil
	}

	w.logger.Info("Processing subject event",
		"event_id", subjectEvent.ID,
		"event_kind", subjectEvent.Kind,
		"subject_id", subjectEvent.SubjectID)

	_, err := w.matcher.OnEvent(ctx, *subjectEvent)

	return err
}
