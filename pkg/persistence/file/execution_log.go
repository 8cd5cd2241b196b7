package file

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/autocrm/journey/pkg/models"
)

// ExecutionLogRepository stores the audit trail as one JSON-lines file per
// enrollment. Entries are only ever appended.
type ExecutionLogRepository struct {
	root string
}

// NewExecutionLogRepository creates a new execution log repository.
func NewExecutionLogRepository(root string) *ExecutionLogRepository {
	return &ExecutionLogRepository{root: root}
}

// Append writes a log entry to the end of the enrollment's log file.
func (lr *ExecutionLogRepository) Append(_ context.Context, entry *models.ExecutionLogEntry) error {
	dir := path.Join(lr.root, "execution_logs")

	err := os.MkdirAll(dir, 0750)
	if err != nil {
		return fmt.Errorf("failed to create execution logs directory: %w", err)
	}

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal log entry for enrollment %s: %w", entry.EnrollmentID, err)
	}

	filePath := path.Join(dir, entry.EnrollmentID+".jsonl")

	f, err := os.OpenFile(filepath.Clean(filePath), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open log file for enrollment %s: %w", entry.EnrollmentID, err)
	}

	defer func() {
		_ = f.Close()
	}()

	_, err = f.Write(append(data, '\n'))
	if err != nil {
		return fmt.Errorf("failed to append log entry for enrollment %s: %w", entry.EnrollmentID, err)
	}

	return nil
}

// EntriesByEnrollment returns all log entries for an enrollment in append
// order. A missing file means no entries yet.
func (lr *ExecutionLogRepository) EntriesByEnrollment(_ context.Context, enrollmentID string) ([]*models.ExecutionLogEntry, error) {
	filePath := filepath.Clean(path.Join(lr.root, "execution_logs", enrollmentID+".jsonl"))

	f, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to open log file for enrollment %s: %w", enrollmentID, err)
	}

	defer func() {
		_ = f.Close()
	}()

	entries := make([]*models.ExecutionLogEntry, 0)
	scanner := bufio.NewScanner(f)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var entry models.ExecutionLogEntry

		err = json.Unmarshal(line, &entry)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal log entry for enrollment %s: %w", enrollmentID, err)
		}

		entries = append(entries, &entry)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read log file for enrollment %s: %w", enrollmentID, err)
	}

	return entries, nil
}
