package models

import "time"

// LogAction classifies an execution log entry.
type LogAction string

const (
	LogActionEnter   LogAction = "enter"   // Enrollment arrived at a node
	LogActionProcess LogAction = "process" // Node effect executed
	LogActionExit    LogAction = "exit"    // Enrollment left the graph
	LogActionWarning LogAction = "warning" // Recoverable failure, traversal continued
	LogActionError   LogAction = "error"   // Structural failure, enrollment failed
)

// ExecutionLogEntry is one append-only audit record of a step transition.
// NodeID is empty for terminal-exit entries. Entries are never updated or
// deleted; together they reconstruct the path an enrollment took through
// the graph. The executor writes them but never reads them back.
type ExecutionLogEntry struct {
	ID           string    `json:"id"`
	EnrollmentID string    `json:"enrollment_id" validate:"required"`
	NodeID       string    `json:"node_id,omitempty"`
	Action       LogAction `json:"action"        validate:"required"`
	Message      string    `json:"message"`
	Timestamp    time.Time `json:"timestamp"`
}
