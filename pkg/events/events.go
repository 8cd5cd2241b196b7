// Package events defines event types exchanged between the CRM
// collaborators and the journey engine.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Kafka topic shared by all journey events.
const Topic = "autocrm.journey.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// CRM ingress events.
	SubjectEventReceivedEvent EventType = "subject.event.received"

	// Enrollment lifecycle events.
	EnrollmentStartedEvent   EventType = "enrollment.started"
	EnrollmentCompletedEvent EventType = "enrollment.completed"
	EnrollmentFailedEvent    EventType = "enrollment.failed"
	NodeExecutedEvent        EventType = "enrollment.node.executed"

	// Journey definition lifecycle events.
	JourneyPublishedEvent EventType = "journey.published"
	JourneyPausedEvent    EventType = "journey.paused"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
	}
}

// SubjectEventReceived is an external CRM event: a subject was created, a
// transaction was recorded, and so on. Kind is the trigger matcher key.
type SubjectEventReceived struct {
	BaseEvent

	Kind      string         `json:"kind"`
	SubjectID string         `json:"subject_id"`
	Payload   map[string]any `json:"payload,omitempty"`
}

func (e SubjectEventReceived) GetType() EventType {
	return SubjectEventReceivedEvent
}

// EnrollmentStarted signals a subject entered a journey.
type EnrollmentStarted struct {
	BaseEvent

	EnrollmentID string `json:"enrollment_id"`
	JourneyID    string `json:"journey_id"`
	VersionID    string `json:"version_id"`
	SubjectID    string `json:"subject_id"`
}

func (e EnrollmentStarted) GetType() EventType {
	return EnrollmentStartedEvent
}

// EnrollmentCompleted signals an enrollment reached the end of its graph.
type EnrollmentCompleted struct {
	BaseEvent

	EnrollmentID string `json:"enrollment_id"`
	JourneyID    string `json:"journey_id"`
	SubjectID    string `json:"subject_id"`
}

func (e EnrollmentCompleted) GetType() EventType {
	return EnrollmentCompletedEvent
}

// EnrollmentFailed signals a structural error terminated an enrollment.
type EnrollmentFailed struct {
	BaseEvent

	EnrollmentID string `json:"enrollment_id"`
	JourneyID    string `json:"journey_id"`
	SubjectID    string `json:"subject_id"`
	Error        string `json:"error"`
}

func (e EnrollmentFailed) GetType() EventType {
	return EnrollmentFailedEvent
}

// NodeExecuted signals one node effect ran for an enrollment.
type NodeExecuted struct {
	BaseEvent

	EnrollmentID string `json:"enrollment_id"`
	NodeID       string `json:"node_id"`
	NodeType     string `json:"node_type"`
	Detail       string `json:"detail,omitempty"`
}

func (e NodeExecuted) GetType() EventType {
	return NodeExecutedEvent
}

// JourneyPublished signals a journey went active.
type JourneyPublished struct {
	BaseEvent

	JourneyID string `json:"journey_id"`
	VersionID string `json:"version_id"`
}

func (e JourneyPublished) GetType() EventType {
	return JourneyPublishedEvent
}

// JourneyPaused signals an active journey stopped enrolling.
type JourneyPaused struct {
	BaseEvent

	JourneyID string `json:"journey_id"`
}

func (e JourneyPaused) GetType() EventType {
	return JourneyPausedEvent
}
