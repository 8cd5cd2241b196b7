// Package content provides the HTTP adapter for generated content, such as
// call scripts attached to follow-up tasks.
package content

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

const defaultTimeoutSeconds = 60

// ErrGenerationFailed is returned when the content service cannot produce
// content. Callers treat generation as best effort.
var ErrGenerationFailed = errors.New("content generation failed")

// Adapter requests generated content from the content service. It
// implements protocol.ContentGenerator.
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
		logger:  logger.With("module", "content_adapter"),
	}
}

type generateRequest struct {
	Kind    string         `json:"kind"`
	Context map[string]any `json:"context,omitempty"`
}

type generateResponse struct {
	Content string `json:"content"`
}

func (a *Adapter) Generate(ctx context.Context, kind string, context map[string]any) (string, error) {
	payload, err := json.Marshal(generateRequest{Kind: kind, Context: context})
	if err != nil {
		return "", fmt.Errorf("failed to encode generation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/generate", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			a.logger.Error("failed to close response body", "error", err)
		}
	}()

	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

		return "", fmt.Errorf("%w: status %d: %s", ErrGenerationFailed, resp.StatusCode, body)
	}

	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("failed to decode generated content: %w", err)
	}

	return decoded.Content, nil
}
