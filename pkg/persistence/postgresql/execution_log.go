package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/autocrm/journey/pkg/models"
)

// ExecutionLogRepository appends and reads audit trail rows. The table has
// no update or delete paths.
type ExecutionLogRepository struct {
	db *sql.DB
}

// NewExecutionLogRepository creates a new execution log repository.
func NewExecutionLogRepository(db *sql.DB) *ExecutionLogRepository {
	return &ExecutionLogRepository{db: db}
}

// Append inserts a log entry.
func (r *ExecutionLogRepository) Append(ctx context.Context, entry *models.ExecutionLogEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	query := `
		INSERT INTO execution_log (id, enrollment_id, node_id, action, message, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.EnrollmentID,
		nullString(entry.NodeID),
		string(entry.Action),
		entry.Message,
		entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append log entry for enrollment %s: %w", entry.EnrollmentID, err)
	}

	return nil
}

// EntriesByEnrollment returns all log entries for an enrollment in append
// order.
func (r *ExecutionLogRepository) EntriesByEnrollment(ctx context.Context, enrollmentID string) ([]*models.ExecutionLogEntry, error) {
	query := `
		SELECT id, enrollment_id, node_id, action, message, timestamp
		FROM execution_log
		WHERE enrollment_id = $1
		ORDER BY seq ASC
	`

	rows, err := r.db.QueryContext(ctx, query, enrollmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query log entries for enrollment %s: %w", enrollmentID, err)
	}

	defer func() {
		_ = rows.Close()
	}()

	entries := make([]*models.ExecutionLogEntry, 0)

	for rows.Next() {
		var (
			entry  models.ExecutionLogEntry
			nodeID sql.NullString
		)

		err = rows.Scan(
			&entry.ID,
			&entry.EnrollmentID,
			&nodeID,
			&entry.Action,
			&entry.Message,
			&entry.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}

		entry.NodeID = nodeID.String
		entries = append(entries, &entry)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating log entries: %w", err)
	}

	return entries, nil
}
