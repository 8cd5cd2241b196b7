package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/autocrm/journey/pkg/models"
	"github.com/autocrm/journey/pkg/persistence"
)

// EnrollmentRepository handles enrollment database operations.
type EnrollmentRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewEnrollmentRepository creates a new enrollment repository.
func NewEnrollmentRepository(db *sql.DB, logger *slog.Logger) *EnrollmentRepository {
	return &EnrollmentRepository{db: db, logger: logger}
}

const enrollmentColumns = `
	id
  , journey_id
  , version_id
  , subject_id
  , current_node_id
  , status
  , context
  , resume_at
  , created_at
  , updated_at
`

// EnrollmentByID returns an enrollment by its ID.
func (r *EnrollmentRepository) EnrollmentByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE id = $1`

	enrollment, err := scanEnrollment(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewEnrollmentError("GetByID", id, persistence.ErrEnrollmentNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to query enrollment %s: %w", id, err)
	}

	return enrollment, nil
}

// EnrollmentsByJourney returns all enrollments of a journey, oldest first.
func (r *EnrollmentRepository) EnrollmentsByJourney(ctx context.Context, journeyID string) ([]*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE journey_id = $1 ORDER BY created_at ASC`

	return r.queryEnrollments(ctx, query, journeyID)
}

// SaveEnrollment inserts or updates an enrollment row.
func (r *EnrollmentRepository) SaveEnrollment(ctx context.Context, enrollment *models.Enrollment) error {
	now := time.Now().UTC()
	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = now
	}

	enrollment.UpdatedAt = now

	contextBag, err := json.Marshal(enrollment.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal context for enrollment %s: %w", enrollment.ID, err)
	}

	query := `
		INSERT INTO enrollments (
			id, journey_id, version_id, subject_id, current_node_id,
			status, context, resume_at, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			current_node_id = EXCLUDED.current_node_id
		  , status = EXCLUDED.status
		  , context = EXCLUDED.context
		  , resume_at = EXCLUDED.resume_at
		  , updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		enrollment.ID,
		enrollment.JourneyID,
		enrollment.VersionID,
		enrollment.SubjectID,
		nullString(enrollment.CurrentNodeID),
		string(enrollment.Status),
		contextBag,
		enrollment.ResumeAt,
		enrollment.CreatedAt,
		enrollment.UpdatedAt,
	)
	if err != nil {
		return persistence.NewEnrollmentError("Save", enrollment.ID, err)
	}

	return nil
}

// DueEnrollments returns active enrollments parked at a delay node whose
// resume time has elapsed at now.
func (r *EnrollmentRepository) DueEnrollments(ctx context.Context, now time.Time) ([]*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + `
		FROM enrollments
		WHERE status = 'active' AND resume_at IS NOT NULL AND resume_at <= $1
		ORDER BY resume_at ASC`

	return r.queryEnrollments(ctx, query, now)
}

func (r *EnrollmentRepository) queryEnrollments(ctx context.Context, query string, args ...any) ([]*models.Enrollment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query enrollments: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	enrollments := make([]*models.Enrollment, 0)

	for rows.Next() {
		enrollment, err := scanEnrollment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan enrollment: %w", err)
		}

		enrollments = append(enrollments, enrollment)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating enrollments: %w", err)
	}

	return enrollments, nil
}

func scanEnrollment(row rowScanner) (*models.Enrollment, error) {
	var (
		enrollment    models.Enrollment
		currentNodeID sql.NullString
		contextBag    []byte
		resumeAt      sql.NullTime
	)

	err := row.Scan(
		&enrollment.ID,
		&enrollment.JourneyID,
		&enrollment.VersionID,
		&enrollment.SubjectID,
		&currentNodeID,
		&enrollment.Status,
		&contextBag,
		&resumeAt,
		&enrollment.CreatedAt,
		&enrollment.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	enrollment.CurrentNodeID = currentNodeID.String

	if resumeAt.Valid {
		t := resumeAt.Time
		enrollment.ResumeAt = &t
	}

	if len(contextBag) > 0 {
		err = json.Unmarshal(contextBag, &enrollment.Context)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal context: %w", err)
		}
	}

	return &enrollment, nil
}
