// Package subjects provides the HTTP adapter for live subject field
// lookups used by condition evaluation.
package subjects

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

const defaultTimeoutSeconds = 10

// ErrSubjectNotFound is returned when the subject service has no record of
// the subject.
var ErrSubjectNotFound = errors.New("subject not found")

// Adapter reads subject profile fields from the CRM subject service. It
// implements protocol.SubjectLookup.
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
		logger:  logger.With("module", "subjects_adapter"),
	}
}

type fieldResponse struct {
	Value any `json:"value"`
}

func (a *Adapter) Field(ctx context.Context, subjectID, field string) (any, error) {
	endpoint := fmt.Sprintf("%s/subjects/%s/fields/%s",
		a.baseURL, url.PathEscape(subjectID), url.PathEscape(field))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("subject lookup failed: %w", err)
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			a.logger.Error("failed to close response body", "error", err)
		}
	}()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrSubjectNotFound, subjectID)
	}

	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

		return nil, fmt.Errorf("subject lookup failed: status %d: %s", resp.StatusCode, body)
	}

	var decoded fieldResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode subject field: %w", err)
	}

	return decoded.Value, nil
}
