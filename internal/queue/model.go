// Package queue is the durable outbound queue of mutations made while offline
package queue

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrOperationNotFound is returned when an operation id does not exist
var ErrOperationNotFound = errors.New("pending operation not found")

// OperationType is the kind of mutation an operation replays
type OperationType string

// Operation types
const (
	OperationCreate OperationType = "CREATE"
	OperationUpdate OperationType = "UPDATE"
	OperationDelete OperationType = "DELETE"
)

// Valid reports whether t is a known operation type
func (t OperationType) Valid() bool {
	switch t {
	case OperationCreate, OperationUpdate, OperationDelete:
		return true
	default:
		return false
	}
}

// Status is the lifecycle state of a queued operation
type Status string

// Operation statuses
const (
	StatusPending Status = "pending"
	StatusSyncing Status = "syncing"
	StatusSynced  Status = "synced"
	StatusError   Status = "error"
)

// PendingOperation is one mutation awaiting replay against the API.
// Replay order is Timestamp ascending, then ID.
type PendingOperation struct {
	ID            int64           `json:"id"`
	OperationType OperationType   `json:"operation_type"`
	Endpoint      string          `json:"endpoint"`
	Data          json.RawMessage `json:"data,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
	Status        Status          `json:"status"`
	ErrorMessage  string          `json:"error_message,omitempty"` // only set when Status is error
	RetryCount    int             `json:"retry_count"`
}
