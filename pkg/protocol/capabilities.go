// Package protocol defines the capability interfaces the journey engine
// depends on. Implementations live outside the core; the executor only sees
// these contracts.
package protocol

import (
	"context"
	"time"
)

// MessageExtras carries optional delivery attachments.
type MessageExtras struct {
	StickerID string `json:"sticker_id,omitempty"`
	Channel   string `json:"channel,omitempty"`
}

// Delivery reports the outcome of a send attempt.
type Delivery struct {
	ProviderID string `json:"provider_id,omitempty"`
}

// MessageSender delivers outbound messages on one channel (LINE-style chat,
// SMS, email). A failed send returns an error; the executor records it as a
// warning and continues traversal.
type MessageSender interface {
	Send(ctx context.Context, recipient, text string, extras MessageExtras) (Delivery, error)
}

// TaskCreator persists follow-up tasks with the task-management collaborator.
// It returns the created task's id.
type TaskCreator interface {
	Create(ctx context.Context, subjectID, title string, dueAt time.Time, script string) (string, error)
}

// ContentGenerator produces generated copy (e.g. call scripts) from an
// enrollment context. Best effort: callers may ignore its errors.
type ContentGenerator interface {
	Generate(ctx context.Context, kind string, context map[string]any) (string, error)
}

// SubjectLookup resolves a named field from live subject data. Condition
// nodes fall back to it when the field is absent from the enrollment context.
type SubjectLookup interface {
	Field(ctx context.Context, subjectID, field string) (any, error)
}
