package journey

import (
	"context"
	"log/slog"
	"strings"

	"github.com/autocrm/journey/pkg/events"
	"github.com/autocrm/journey/pkg/models"
)

// TriggerMatcher fans incoming CRM events out to the active journeys whose
// trigger node names the event kind.
type TriggerMatcher struct {
	repository *Repository
	executor   *Executor
	logger     *slog.Logger
}

func NewTriggerMatcher(repository *Repository, executor *Executor, logger *slog.Logger) *TriggerMatcher {
	return &TriggerMatcher{
		repository: repository,
		executor:   executor,
		logger:     logger.With("module", "trigger_matcher"),
	}
}

// OnEvent enrolls the event's subject into every active journey whose
// trigger matches the event kind. A journey whose current version has no
// usable trigger node is skipped with a warning rather than blocking the
// rest of the fan-out.
func (tm *TriggerMatcher) OnEvent(ctx context.Context, event events.SubjectEventReceived) ([]*models.Enrollment, error) {
	journeys, err := tm.repository.FetchActive(ctx)
	if err != nil {
		return nil, err
	}

	tm.logger.Debug("Matching subject event against active journeys",
		"event_kind", event.Kind,
		"subject_id", event.SubjectID,
		"journeys_count", len(journeys))

	kind := normalizeEventKind(event.Kind)

	var enrollments []*models.Enrollment

	for _, journey := range journeys {
		version, err := tm.repository.CurrentVersion(ctx, journey)
		if err != nil {
			tm.logger.Warn("Skipping journey without a resolvable version",
				"journey_id", journey.ID,
				"error", err)

			continue
		}

		trigger, err := version.Graph.TriggerNode()
		if err != nil {
			tm.logger.Warn("Skipping journey without a usable trigger node",
				"journey_id", journey.ID,
				"version_id", version.ID,
				"error", err)

			continue
		}

		if normalizeEventKind(trigger.Data.Trigger.Event) != kind {
			continue
		}

		tm.logger.Info("Trigger matched",
			"journey_id", journey.ID,
			"journey_name", journey.Name,
			"event_kind", event.Kind,
			"subject_id", event.SubjectID)

		enrollment, err := tm.executor.Enroll(ctx, journey, version, event.SubjectID, event.Payload)
		if err != nil {
			tm.logger.Error("Failed to enroll subject",
				"journey_id", journey.ID,
				"subject_id", event.SubjectID,
				"error", err)

			continue
		}

		enrollments = append(enrollments, enrollment)
	}

	tm.logger.Info("Completed trigger matching",
		"event_kind", event.Kind,
		"subject_id", event.SubjectID,
		"enrollments_created", len(enrollments))

	return enrollments, nil
}

// normalizeEventKind makes trigger matching tolerant of editor formatting:
// "New Customer" and "new_customer" name the same event.
func normalizeEventKind(kind string) string {
	kind = strings.ToLower(strings.TrimSpace(kind))

	return strings.ReplaceAll(kind, " ", "_")
}
