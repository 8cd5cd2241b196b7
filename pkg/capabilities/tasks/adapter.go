// Package tasks provides the HTTP adapter for creating CRM follow-up tasks.
package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const defaultTimeoutSeconds = 30

// ErrTaskRejected is returned when the task service refuses a task.
var ErrTaskRejected = errors.New("task service rejected task")

// Adapter creates follow-up tasks in the CRM task service. It implements
// protocol.TaskCreator.
type Adapter struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

func NewAdapter(baseURL, apiKey string, logger *slog.Logger) *Adapter {
	return &Adapter{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: defaultTimeoutSeconds * time.Second},
		logger:  logger.With("module", "tasks_adapter"),
	}
}

type createRequest struct {
	SubjectID string    `json:"subject_id"`
	Title     string    `json:"title"`
	DueAt     time.Time `json:"due_at"`
	Script    string    `json:"script,omitempty"`
}

type createResponse struct {
	ID string `json:"id"`
}

func (a *Adapter) Create(ctx context.Context, subjectID, title string, dueAt time.Time, script string) (string, error) {
	payload, err := json.Marshal(createRequest{
		SubjectID: subjectID,
		Title:     title,
		DueAt:     dueAt,
		Script:    script,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode task: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/tasks", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("task request failed: %w", err)
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			a.logger.Error("failed to close response body", "error", err)
		}
	}()

	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

		return "", fmt.Errorf("%w: status %d: %s", ErrTaskRejected, resp.StatusCode, body)
	}

	var decoded createResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("failed to decode task response: %w", err)
	}

	a.logger.Debug("Task created", "subject_id", subjectID, "task_id", decoded.ID)

	return decoded.ID, nil
}
