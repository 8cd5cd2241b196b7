// Package journey implements the automation engine core: journey
// definitions and versioning, trigger matching, enrollment execution, and
// the delay sweep.
package journey

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/autocrm/journey/pkg/eventbus"
	"github.com/autocrm/journey/pkg/events"
	"github.com/autocrm/journey/pkg/models"
	"github.com/autocrm/journey/pkg/persistence"
)

var (
	ErrJourneyHasNoVersion = errors.New("journey has no saved version")
	ErrJourneyNotActive    = errors.New("journey is not active")
	ErrInvalidGraph        = errors.New("invalid graph")
)

// Repository is the definition service. It owns journey CRUD, immutable
// version snapshots, and the publish/pause lifecycle.
type Repository struct {
	persistence persistence.Persistence
	eventBus    eventbus.EventPublisher
	validator   *validator.Validate
}

func NewRepository(persistence persistence.Persistence, eventBus eventbus.EventPublisher) *Repository {
	return &Repository{
		persistence: persistence,
		eventBus:    eventBus,
		validator:   validator.New(),
	}
}

func (r *Repository) HealthCheck(ctx context.Context) (string, bool) {
	if r.persistence == nil {
		return "Persistence layer not initialized", false
	}

	if err := r.persistence.HealthCheck(ctx); err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

func (r *Repository) FetchAll(ctx context.Context) ([]*models.Journey, error) {
	journeys, err := r.persistence.JourneyRepository().Journeys(ctx)
	if err != nil {
		return make([]*models.Journey, 0), err
	}

	return journeys, nil
}

func (r *Repository) FetchByID(ctx context.Context, id string) (*models.Journey, error) {
	return r.persistence.JourneyRepository().JourneyByID(ctx, id)
}

// FetchActive returns the journeys eligible for trigger matching.
func (r *Repository) FetchActive(ctx context.Context) ([]*models.Journey, error) {
	return r.persistence.JourneyRepository().JourneysByStatus(ctx, models.JourneyStatusActive)
}

// Create registers a new journey definition. New journeys start as drafts
// with no version; they cannot enroll subjects until a graph is saved and
// the journey is published.
func (r *Repository) Create(ctx context.Context, journey *models.Journey) (*models.Journey, error) {
	if journey.ID == "" {
		journey.ID = uuid.New().String()
	}

	if journey.Status == "" {
		journey.Status = models.JourneyStatusDraft
	}

	now := time.Now().UTC()
	journey.CreatedAt = now
	journey.UpdatedAt = now

	if err := r.validator.Struct(journey); err != nil {
		return nil, fmt.Errorf("invalid journey: %w", err)
	}

	if err := r.persistence.JourneyRepository().SaveJourney(ctx, journey); err != nil {
		return nil, err
	}

	return journey, nil
}

// Update renames a journey. Status and version pointers only move through
// SaveVersion, Publish, and Pause.
func (r *Repository) Update(ctx context.Context, id string, name string) (*models.Journey, error) {
	journey, err := r.persistence.JourneyRepository().JourneyByID(ctx, id)
	if err != nil {
		return nil, err
	}

	journey.Name = name
	journey.UpdatedAt = time.Now().UTC()

	if err := r.validator.Struct(journey); err != nil {
		return nil, fmt.Errorf("invalid journey: %w", err)
	}

	if err := r.persistence.JourneyRepository().SaveJourney(ctx, journey); err != nil {
		return nil, err
	}

	return journey, nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	if _, err := r.persistence.JourneyRepository().JourneyByID(ctx, id); err != nil {
		return err
	}

	return r.persistence.JourneyRepository().DeleteJourney(ctx, id)
}

// SaveVersion snapshots a graph as the journey's next immutable version and
// points the journey at it. Structural validation and node config schemas
// both gate the save; a graph that fails either is rejected and the current
// version stays in place. Enrollments already running on older versions are
// not migrated.
func (r *Repository) SaveVersion(ctx context.Context, journeyID string, graph *models.Graph) (*models.JourneyVersion, error) {
	journey, err := r.persistence.JourneyRepository().JourneyByID(ctx, journeyID)
	if err != nil {
		return nil, err
	}

	if err := graph.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidGraph, err)
	}

	if err := validateNodeConfigs(graph); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidGraph, err)
	}

	versions, err := r.persistence.JourneyRepository().VersionsByJourney(ctx, journeyID)
	if err != nil {
		return nil, err
	}

	number := 1
	for _, v := range versions {
		if v.Number >= number {
			number = v.Number + 1
		}
	}

	version := &models.JourneyVersion{
		ID:        uuid.New().String(),
		JourneyID: journeyID,
		Number:    number,
		Graph:     graph,
		CreatedAt: time.Now().UTC(),
	}

	if err := r.persistence.JourneyRepository().SaveVersion(ctx, version); err != nil {
		return nil, err
	}

	journey.CurrentVersionID = version.ID
	journey.UpdatedAt = version.CreatedAt

	if err := r.persistence.JourneyRepository().SaveJourney(ctx, journey); err != nil {
		return nil, err
	}

	return version, nil
}

// CurrentVersion resolves the version used for new enrollments.
func (r *Repository) CurrentVersion(ctx context.Context, journey *models.Journey) (*models.JourneyVersion, error) {
	if journey.CurrentVersionID == "" {
		return nil, fmt.Errorf("journey %s: %w", journey.ID, ErrJourneyHasNoVersion)
	}

	return r.persistence.JourneyRepository().VersionByID(ctx, journey.CurrentVersionID)
}

// Publish activates a journey so its trigger starts enrolling subjects. A
// journey without a saved version cannot be published.
func (r *Repository) Publish(ctx context.Context, journeyID string) (*models.Journey, error) {
	journey, err := r.persistence.JourneyRepository().JourneyByID(ctx, journeyID)
	if err != nil {
		return nil, err
	}

	if journey.CurrentVersionID == "" {
		return nil, fmt.Errorf("journey %s: %w", journeyID, ErrJourneyHasNoVersion)
	}

	journey.Status = models.JourneyStatusActive
	journey.UpdatedAt = time.Now().UTC()

	if err := r.persistence.JourneyRepository().SaveJourney(ctx, journey); err != nil {
		return nil, err
	}

	r.publish(ctx, journey.ID, events.JourneyPublished{
		BaseEvent: events.NewBaseEvent(events.JourneyPublishedEvent),
		JourneyID: journey.ID,
		VersionID: journey.CurrentVersionID,
	})

	return journey, nil
}

// Pause stops an active journey from enrolling new subjects. Enrollments
// already in flight keep running on their bound versions.
func (r *Repository) Pause(ctx context.Context, journeyID string) (*models.Journey, error) {
	journey, err := r.persistence.JourneyRepository().JourneyByID(ctx, journeyID)
	if err != nil {
		return nil, err
	}

	if !journey.IsActive() {
		return nil, fmt.Errorf("journey %s: %w", journeyID, ErrJourneyNotActive)
	}

	journey.Status = models.JourneyStatusPaused
	journey.UpdatedAt = time.Now().UTC()

	if err := r.persistence.JourneyRepository().SaveJourney(ctx, journey); err != nil {
		return nil, err
	}

	r.publish(ctx, journey.ID, events.JourneyPaused{
		BaseEvent: events.NewBaseEvent(events.JourneyPausedEvent),
		JourneyID: journey.ID,
	})

	return journey, nil
}

func (r *Repository) publish(ctx context.Context, key string, event eventbus.Event) {
	if r.eventBus == nil {
		return
	}

	_ = r.eventBus.Publish(ctx, key, event)
}
