package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/autocrm/journey/pkg/models"
	"github.com/autocrm/journey/pkg/persistence"
)

// EnrollmentRepository handles enrollment file operations.
type EnrollmentRepository struct {
	root string
}

// NewEnrollmentRepository creates a new enrollment repository.
func NewEnrollmentRepository(root string) *EnrollmentRepository {
	return &EnrollmentRepository{root: root}
}

// EnrollmentByID retrieves an enrollment by its ID.
func (er *EnrollmentRepository) EnrollmentByID(_ context.Context, id string) (*models.Enrollment, error) {
	filePath := filepath.Clean(path.Join(er.root, "enrollments", id+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewEnrollmentError("GetByID", id, persistence.ErrEnrollmentNotFound)
		}

		return nil, fmt.Errorf("failed to read enrollment %s: %w", id, err)
	}

	var enrollment models.Enrollment

	err = json.Unmarshal(body, &enrollment)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal enrollment %s: %w", id, err)
	}

	return &enrollment, nil
}

// EnrollmentsByJourney returns all enrollments of a journey, oldest first.
func (er *EnrollmentRepository) EnrollmentsByJourney(ctx context.Context, journeyID string) ([]*models.Enrollment, error) {
	all, err := er.all(ctx)
	if err != nil {
		return nil, err
	}

	enrollments := make([]*models.Enrollment, 0)

	for _, e := range all {
		if e.JourneyID == journeyID {
			enrollments = append(enrollments, e)
		}
	}

	return enrollments, nil
}

// SaveEnrollment writes an enrollment document to disk.
func (er *EnrollmentRepository) SaveEnrollment(_ context.Context, enrollment *models.Enrollment) error {
	dir := path.Join(er.root, "enrollments")

	err := os.MkdirAll(dir, 0750)
	if err != nil {
		return fmt.Errorf("failed to create enrollments directory: %w", err)
	}

	now := time.Now().UTC()
	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = now
	}

	enrollment.UpdatedAt = now

	data, err := json.MarshalIndent(enrollment, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal enrollment %s: %w", enrollment.ID, err)
	}

	return os.WriteFile(path.Join(dir, enrollment.ID+".json"), data, 0600)
}

// DueEnrollments returns active enrollments parked at a delay node whose
// resume time has elapsed at now.
func (er *EnrollmentRepository) DueEnrollments(ctx context.Context, now time.Time) ([]*models.Enrollment, error) {
	all, err := er.all(ctx)
	if err != nil {
		return nil, err
	}

	due := make([]*models.Enrollment, 0)

	for _, e := range all {
		if e.IsDue(now) {
			due = append(due, e)
		}
	}

	sort.Slice(due, func(i, j int) bool {
		return due[i].ResumeAt.Before(*due[j].ResumeAt)
	})

	return due, nil
}

func (er *EnrollmentRepository) all(ctx context.Context) ([]*models.Enrollment, error) {
	ids, err := listJSONIDs(path.Join(er.root, "enrollments"))
	if err != nil {
		return nil, fmt.Errorf("failed to list enrollment files: %w", err)
	}

	enrollments := make([]*models.Enrollment, 0, len(ids))

	for _, id := range ids {
		enrollment, err := er.EnrollmentByID(ctx, id)
		if err != nil {
			return nil, err
		}

		enrollments = append(enrollments, enrollment)
	}

	sort.Slice(enrollments, func(i, j int) bool {
		return enrollments[i].CreatedAt.Before(enrollments[j].CreatedAt)
	})

	return enrollments, nil
}
