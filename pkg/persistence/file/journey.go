package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/autocrm/journey/pkg/models"
	"github.com/autocrm/journey/pkg/persistence"
)

// JourneyRepository handles journey and version file operations.
type JourneyRepository struct {
	root string
}

// NewJourneyRepository creates a new journey repository.
func NewJourneyRepository(root string) *JourneyRepository {
	return &JourneyRepository{root: root}
}

// Journeys returns all journeys stored on disk, newest first.
func (jr *JourneyRepository) Journeys(ctx context.Context) ([]*models.Journey, error) {
	ids, err := listJSONIDs(path.Join(jr.root, "journeys"))
	if err != nil {
		return nil, fmt.Errorf("failed to list journey files: %w", err)
	}

	journeys := make([]*models.Journey, 0, len(ids))

	for _, id := range ids {
		journey, err := jr.JourneyByID(ctx, id)
		if err != nil {
			return nil, err
		}

		journeys = append(journeys, journey)
	}

	sort.Slice(journeys, func(i, j int) bool {
		return journeys[i].CreatedAt.After(journeys[j].CreatedAt)
	})

	return journeys, nil
}

// JourneyByID retrieves a journey by its ID.
func (jr *JourneyRepository) JourneyByID(_ context.Context, id string) (*models.Journey, error) {
	filePath := filepath.Clean(path.Join(jr.root, "journeys", id+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewJourneyError("GetByID", id, persistence.ErrJourneyNotFound)
		}

		return nil, fmt.Errorf("failed to read journey %s: %w", id, err)
	}

	var journey models.Journey

	err = json.Unmarshal(body, &journey)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal journey %s: %w", id, err)
	}

	return &journey, nil
}

// JourneysByStatus returns journeys filtered by lifecycle status.
func (jr *JourneyRepository) JourneysByStatus(ctx context.Context, status models.JourneyStatus) ([]*models.Journey, error) {
	all, err := jr.Journeys(ctx)
	if err != nil {
		return nil, err
	}

	filtered := make([]*models.Journey, 0, len(all))

	for _, journey := range all {
		if journey.Status == status {
			filtered = append(filtered, journey)
		}
	}

	return filtered, nil
}

// SaveJourney writes a journey document to disk.
func (jr *JourneyRepository) SaveJourney(_ context.Context, journey *models.Journey) error {
	dir := path.Join(jr.root, "journeys")

	err := os.MkdirAll(dir, 0750)
	if err != nil {
		return fmt.Errorf("failed to create journeys directory: %w", err)
	}

	now := time.Now().UTC()
	if journey.CreatedAt.IsZero() {
		journey.CreatedAt = now
	}

	journey.UpdatedAt = now

	data, err := json.MarshalIndent(journey, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal journey %s: %w", journey.ID, err)
	}

	return os.WriteFile(path.Join(dir, journey.ID+".json"), data, 0600)
}

// DeleteJourney removes a journey document. Versions are kept: enrollments
// bound to them may still be advancing.
func (jr *JourneyRepository) DeleteJourney(_ context.Context, id string) error {
	err := os.Remove(path.Join(jr.root, "journeys", id+".json"))
	if err != nil && os.IsNotExist(err) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to delete journey %s: %w", id, err)
	}

	return nil
}

// VersionByID retrieves an immutable journey version by its ID.
func (jr *JourneyRepository) VersionByID(_ context.Context, id string) (*models.JourneyVersion, error) {
	filePath := filepath.Clean(path.Join(jr.root, "versions", id+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.ErrVersionNotFound
		}

		return nil, fmt.Errorf("failed to read version %s: %w", id, err)
	}

	var version models.JourneyVersion

	err = json.Unmarshal(body, &version)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal version %s: %w", id, err)
	}

	return &version, nil
}

// VersionsByJourney returns all versions of a journey ordered by number.
func (jr *JourneyRepository) VersionsByJourney(ctx context.Context, journeyID string) ([]*models.JourneyVersion, error) {
	ids, err := listJSONIDs(path.Join(jr.root, "versions"))
	if err != nil {
		return nil, fmt.Errorf("failed to list version files: %w", err)
	}

	versions := make([]*models.JourneyVersion, 0)

	for _, id := range ids {
		version, err := jr.VersionByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if version.JourneyID == journeyID {
			versions = append(versions, version)
		}
	}

	sort.Slice(versions, func(i, j int) bool {
		return versions[i].Number < versions[j].Number
	})

	return versions, nil
}

// SaveVersion writes a new version document. Existing versions are never
// overwritten.
func (jr *JourneyRepository) SaveVersion(_ context.Context, version *models.JourneyVersion) error {
	dir := path.Join(jr.root, "versions")

	err := os.MkdirAll(dir, 0750)
	if err != nil {
		return fmt.Errorf("failed to create versions directory: %w", err)
	}

	filePath := path.Join(dir, version.ID+".json")

	if _, err := os.Stat(filePath); err == nil {
		return fmt.Errorf("version %s: %w", version.ID, persistence.ErrVersionImmutable)
	}

	if version.CreatedAt.IsZero() {
		version.CreatedAt = time.Now().UTC()
	}

	data, err := json.MarshalIndent(version, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal version %s: %w", version.ID, err)
	}

	return os.WriteFile(filePath, data, 0600)
}

// listJSONIDs returns the base names of all .json files in dir. A missing
// directory is an empty result, not an error.
func listJSONIDs(dir string) ([]string, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}

	files, err := fs.Glob(os.DirFS(dir), "*.json")
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(files))
	for _, f := range files {
		ids = append(ids, f[:len(f)-len(".json")])
	}

	return ids, nil
}
