package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/autocrm/journey/pkg/models"
	"github.com/autocrm/journey/pkg/persistence"
)

const uniqueViolation = "23505"

// JourneyRepository handles journey and version database operations.
type JourneyRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewJourneyRepository creates a new journey repository.
func NewJourneyRepository(db *sql.DB, logger *slog.Logger) *JourneyRepository {
	return &JourneyRepository{db: db, logger: logger}
}

const journeyColumns = `
	id
  , name
  , status
  , current_version_id
  , created_at
  , updated_at
`

// Journeys returns all journeys, newest first.
func (r *JourneyRepository) Journeys(ctx context.Context) ([]*models.Journey, error) {
	query := `SELECT ` + journeyColumns + ` FROM journeys ORDER BY created_at DESC`

	return r.queryJourneys(ctx, query)
}

// JourneysByStatus returns journeys filtered by lifecycle status.
func (r *JourneyRepository) JourneysByStatus(ctx context.Context, status models.JourneyStatus) ([]*models.Journey, error) {
	query := `SELECT ` + journeyColumns + ` FROM journeys WHERE status = $1 ORDER BY created_at DESC`

	return r.queryJourneys(ctx, query, string(status))
}

func (r *JourneyRepository) queryJourneys(ctx context.Context, query string, args ...any) ([]*models.Journey, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query journeys: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	journeys := make([]*models.Journey, 0)

	for rows.Next() {
		journey, err := scanJourney(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan journey: %w", err)
		}

		journeys = append(journeys, journey)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating journeys: %w", err)
	}

	return journeys, nil
}

// JourneyByID returns a journey by its ID.
func (r *JourneyRepository) JourneyByID(ctx context.Context, id string) (*models.Journey, error) {
	query := `SELECT ` + journeyColumns + ` FROM journeys WHERE id = $1`

	journey, err := scanJourney(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewJourneyError("GetByID", id, persistence.ErrJourneyNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to query journey %s: %w", id, err)
	}

	return journey, nil
}

// SaveJourney inserts or updates a journey row.
func (r *JourneyRepository) SaveJourney(ctx context.Context, journey *models.Journey) error {
	now := time.Now().UTC()
	if journey.CreatedAt.IsZero() {
		journey.CreatedAt = now
	}

	journey.UpdatedAt = now

	query := `
		INSERT INTO journeys (id, name, status, current_version_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name
		  , status = EXCLUDED.status
		  , current_version_id = EXCLUDED.current_version_id
		  , updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		journey.ID,
		journey.Name,
		string(journey.Status),
		nullString(journey.CurrentVersionID),
		journey.CreatedAt,
		journey.UpdatedAt,
	)
	if err != nil {
		return persistence.NewJourneyError("Save", journey.ID, err)
	}

	return nil
}

// DeleteJourney removes a journey row. Versions cascade.
func (r *JourneyRepository) DeleteJourney(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM journeys WHERE id = $1`, id)
	if err != nil {
		return persistence.NewJourneyError("Delete", id, err)
	}

	return nil
}

// VersionByID returns an immutable journey version by its ID.
func (r *JourneyRepository) VersionByID(ctx context.Context, id string) (*models.JourneyVersion, error) {
	query := `
		SELECT id, journey_id, number, graph, created_at
		FROM journey_versions
		WHERE id = $1
	`

	version, err := scanVersion(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrVersionNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to query version %s: %w", id, err)
	}

	return version, nil
}

// VersionsByJourney returns all versions of a journey ordered by number.
func (r *JourneyRepository) VersionsByJourney(ctx context.Context, journeyID string) ([]*models.JourneyVersion, error) {
	query := `
		SELECT id, journey_id, number, graph, created_at
		FROM journey_versions
		WHERE journey_id = $1
		ORDER BY number ASC
	`

	rows, err := r.db.QueryContext(ctx, query, journeyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query versions for journey %s: %w", journeyID, err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	versions := make([]*models.JourneyVersion, 0)

	for rows.Next() {
		version, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}

		versions = append(versions, version)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating versions: %w", err)
	}

	return versions, nil
}

// SaveVersion inserts a new version row. Versions are never updated; an
// insert conflict surfaces as an immutability error.
func (r *JourneyRepository) SaveVersion(ctx context.Context, version *models.JourneyVersion) error {
	if version.CreatedAt.IsZero() {
		version.CreatedAt = time.Now().UTC()
	}

	graph, err := json.Marshal(version.Graph)
	if err != nil {
		return fmt.Errorf("failed to marshal graph for version %s: %w", version.ID, err)
	}

	query := `
		INSERT INTO journey_versions (id, journey_id, number, graph, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err = r.db.ExecContext(ctx, query,
		version.ID,
		version.JourneyID,
		version.Number,
		graph,
		version.CreatedAt,
	)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		if pqErr.Constraint == "journey_versions_pkey" {
			return persistence.NewJourneyError("SaveVersion", version.JourneyID, persistence.ErrVersionImmutable)
		}

		return persistence.NewJourneyError("SaveVersion", version.JourneyID, persistence.ErrVersionNumberConflict)
	}

	if err != nil {
		return persistence.NewJourneyError("SaveVersion", version.JourneyID, err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJourney(row rowScanner) (*models.Journey, error) {
	var (
		journey          models.Journey
		currentVersionID sql.NullString
	)

	err := row.Scan(
		&journey.ID,
		&journey.Name,
		&journey.Status,
		&currentVersionID,
		&journey.CreatedAt,
		&journey.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	journey.CurrentVersionID = currentVersionID.String

	return &journey, nil
}

func scanVersion(row rowScanner) (*models.JourneyVersion, error) {
	var (
		version models.JourneyVersion
		graph   []byte
	)

	err := row.Scan(
		&version.ID,
		&version.JourneyID,
		&version.Number,
		&graph,
		&version.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(graph, &version.Graph)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal graph: %w", err)
	}

	return &version, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
