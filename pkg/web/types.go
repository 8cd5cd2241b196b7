// Package web provides HTTP request and response types for the journey API.
package web

import "github.com/autocrm/journey/pkg/models"

// CreateJourneyRequest is the request body for creating a journey.
type CreateJourneyRequest struct {
	Name string `json:"name" validate:"required,min=3"`
}

// UpdateJourneyRequest is the request body for renaming a journey.
type UpdateJourneyRequest struct {
	Name string `json:"name" validate:"required,min=3"`
}

// SaveVersionRequest carries an authored graph to snapshot as the journey's
// next version.
type SaveVersionRequest struct {
	Graph *models.Graph `json:"graph" validate:"required"`
}

// IngestEventRequest is the HTTP ingress shape for CRM subject events. It
// mirrors the document pushed on the Redis queue.
type IngestEventRequest struct {
	Kind      string         `json:"kind"       validate:"required"`
	SubjectID string         `json:"subject_id" validate:"required"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// TestRunRequest enrolls a subject directly into a journey's current
// version, bypassing trigger matching. Used by the editor's test mode.
type TestRunRequest struct {
	SubjectID string         `json:"subject_id" validate:"required"`
	Facts     map[string]any `json:"facts,omitempty"`
}

// IngestEventResponse reports the enrollments created by one event.
type IngestEventResponse struct {
	Enrollments []*models.Enrollment `json:"enrollments"`
}
