// Package sync replays queued offline mutations against the Fyntra API and
// refreshes local caches when the device comes back online
package sync

import (
	"errors"
	"time"

	"github.com/dexpositosanchez/fyntra/internal/remote"
)

// Trigger says what started a drain
type Trigger string

const (
	// TriggerManual is a drain requested by the user
	TriggerManual Trigger = "manual"
	// TriggerConnectivity is a drain started by a transition into online
	TriggerConnectivity Trigger = "connectivity"
)

// Outcome is the aggregate result kind of a drain
type Outcome string

const (
	// OutcomeNoConnectivity means the drain did not run because the device was offline
	OutcomeNoConnectivity Outcome = "no_connectivity"
	// OutcomeCompleted means every eligible operation was attempted once
	OutcomeCompleted Outcome = "completed"
)

// ErrUnknownOperation marks a queued operation that can never be replayed
var ErrUnknownOperation = errors.New("unknown operation")

// Result summarizes one drain
type Result struct {
	Outcome  Outcome
	Synced   int // includes Dropped
	Errors   int
	Dropped  int
	// Deferred counts operations left pending behind a create that failed this drain
	Deferred int
	Duration time.Duration
}

// NoConnectivity reports whether the drain was skipped for being offline
func (r *Result) NoConnectivity() bool {
	return r.Outcome == OutcomeNoConnectivity
}

// SyncLog records one drain that touched the queue
type SyncLog struct {
	ID           string           `json:"id"`
	Source       Trigger          `json:"source"`
	Outcome      Outcome          `json:"outcome"`
	SyncedCount  int              `json:"synced_count"`
	ErrorCount   int              `json:"error_count"`
	DroppedCount int              `json:"dropped_count"`
	ErrorType    remote.ErrorType `json:"error_type,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
	StartedAt    time.Time        `json:"started_at"`
	Duration     time.Duration    `json:"duration"`
}

// NewSyncLog builds the log entry for a finished drain. firstErr is the first
// replay failure, if any.
func NewSyncLog(trigger Trigger, started time.Time, res *Result, firstErr error) *SyncLog {
	log := &SyncLog{
		Source:       trigger,
		Outcome:      res.Outcome,
		SyncedCount:  res.Synced,
		ErrorCount:   res.Errors,
		DroppedCount: res.Dropped,
		StartedAt:    started.UTC(),
		Duration:     res.Duration,
	}

	if firstErr != nil {
		log.ErrorType = remote.ClassifyError(firstErr)
		log.ErrorMessage = firstErr.Error()
	}

	return log
}

// Success reports whether every attempted operation went through
func (l *SyncLog) Success() bool {
	return l.Outcome == OutcomeCompleted && l.ErrorCount == 0
}
