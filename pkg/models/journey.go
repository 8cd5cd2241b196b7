// Package models defines the core domain models for customer-journey automation.
package models

import "time"

// JourneyStatus represents the lifecycle state of a journey definition.
type JourneyStatus string

const (
	JourneyStatusDraft  JourneyStatus = "draft"  // Editable, never enrolls subjects
	JourneyStatusActive JourneyStatus = "active" // Published, eligible for trigger matching
	JourneyStatusPaused JourneyStatus = "paused" // Published but not enrolling
)

// Journey is the definition container. The graph itself lives on
// JourneyVersion rows; CurrentVersionID points at the version used for new
// enrollments. Running enrollments stay bound to the version that was
// current when they were created.
type Journey struct {
	ID               string        `json:"id"`
	Name             string        `json:"name"                         validate:"required,min=3"`
	Status           JourneyStatus `json:"status"                       validate:"required"`
	CurrentVersionID string        `json:"current_version_id,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

func (j *Journey) IsActive() bool {
	return j.Status == JourneyStatusActive
}

// JourneyVersion is an immutable snapshot of a journey graph. A new version
// is created on every save; Number is strictly increasing per journey.
type JourneyVersion struct {
	ID        string    `json:"id"`
	JourneyID string    `json:"journey_id" validate:"required"`
	Number    int       `json:"number"     validate:"required,gt=0"`
	Graph     *Graph    `json:"graph"      validate:"required"`
	CreatedAt time.Time `json:"created_at"`
}
