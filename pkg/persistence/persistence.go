// Package persistence provides the storage abstraction for journey
// definitions, enrollments, and the execution log.
package persistence

import (
	"context"
	"time"

	"github.com/autocrm/journey/pkg/models"
)

// JourneyRepository owns JourneyDefinition and JourneyVersion records.
// Versions are immutable once saved.
type JourneyRepository interface {
	Journeys(ctx context.Context) ([]*models.Journey, error)
	JourneyByID(ctx context.Context, id string) (*models.Journey, error)
	JourneysByStatus(ctx context.Context, status models.JourneyStatus) ([]*models.Journey, error)
	SaveJourney(ctx context.Context, journey *models.Journey) error
	DeleteJourney(ctx context.Context, id string) error

	VersionByID(ctx context.Context, id string) (*models.JourneyVersion, error)
	VersionsByJourney(ctx context.Context, journeyID string) ([]*models.JourneyVersion, error)
	SaveVersion(ctx context.Context, version *models.JourneyVersion) error
}

// EnrollmentRepository owns Enrollment records. DueEnrollments backs the
// periodic delay sweep: active enrollments whose resume time has elapsed.
type EnrollmentRepository interface {
	EnrollmentByID(ctx context.Context, id string) (*models.Enrollment, error)
	EnrollmentsByJourney(ctx context.Context, journeyID string) ([]*models.Enrollment, error)
	SaveEnrollment(ctx context.Context, enrollment *models.Enrollment) error
	DueEnrollments(ctx context.Context, now time.Time) ([]*models.Enrollment, error)
}

// ExecutionLogRepository owns the append-only audit trail. Entries are never
// updated or deleted.
type ExecutionLogRepository interface {
	Append(ctx context.Context, entry *models.ExecutionLogEntry) error
	EntriesByEnrollment(ctx context.Context, enrollmentID string) ([]*models.ExecutionLogEntry, error)
}

type Persistence interface {
	JourneyRepository() JourneyRepository
	EnrollmentRepository() EnrollmentRepository
	ExecutionLogRepository() ExecutionLogRepository
	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}
