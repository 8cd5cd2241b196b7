package models

import "time"

// EnrollmentStatus is the lifecycle state of one subject's progress through
// one journey version.
type EnrollmentStatus string

const (
	EnrollmentStatusActive    EnrollmentStatus = "active"
	EnrollmentStatusCompleted EnrollmentStatus = "completed"
	EnrollmentStatusFailed    EnrollmentStatus = "failed"
)

// Enrollment tracks one subject's live position in a journey graph. It is
// bound to the journey version that was current at enrollment time and is
// never migrated to a newer one. Context is an open key/value bag seeded at
// enrollment and extended by actions that contribute new facts; keys are an
// author-defined namespace shared between condition fields and interpolation
// templates.
type Enrollment struct {
	ID            string           `json:"id"`
	JourneyID     string           `json:"journey_id" validate:"required"`
	VersionID     string           `json:"version_id" validate:"required"`
	SubjectID     string           `json:"subject_id" validate:"required"`
	CurrentNodeID string           `json:"current_node_id,omitempty"`
	Status        EnrollmentStatus `json:"status"`
	Context       map[string]any   `json:"context,omitempty"`
	ResumeAt      *time.Time       `json:"resume_at,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// IsTerminal reports whether the enrollment has left the active state.
func (e *Enrollment) IsTerminal() bool {
	return e.Status != EnrollmentStatusActive
}

// IsDue reports whether an enrollment parked at a delay node is ready to be
// resumed at the given time.
func (e *Enrollment) IsDue(now time.Time) bool {
	return e.Status == EnrollmentStatusActive && e.ResumeAt != nil && !e.ResumeAt.After(now)
}

// SetFact records a value in the context bag. Facts are never pruned.
func (e *Enrollment) SetFact(key string, value any) {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}

	e.Context[key] = value
}

func (e *Enrollment) Fact(key string) (any, bool) {
	v, ok := e.Context[key]

	return v, ok
}
