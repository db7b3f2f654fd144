package models

import (
	"fmt"
	"time"

	"github.com/desertthunder/gphotos-backup/internal/shared"
)

// RunStatus is the lifecycle state of a sync run as stored in the ledger.
type RunStatus string

const (
	RunRunning     RunStatus = "running"
	RunCompleted   RunStatus = "completed"
	RunInterrupted RunStatus = "interrupted"
	RunFailed      RunStatus = "failed"
)

// Terminal reports whether the run has finished.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunInterrupted || s == RunFailed
}

// SyncRun is the history entry for one invocation of the sync.
type SyncRun struct {
	ID         string
	Status     RunStatus
	Range      DateRange
	Albums     int
	Pages      int
	Downloaded int
	Skipped    int
	Failed     int
	Bytes      int64
	Error      string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// Validate checks the run before it is written.
func (r SyncRun) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: run missing id", shared.ErrInvalidInput)
	}
	switch r.Status {
	case RunRunning, RunCompleted, RunInterrupted, RunFailed:
	default:
		return fmt.Errorf("%w: unknown run status %q", shared.ErrInvalidInput, r.Status)
	}
	if r.Status.Terminal() && r.FinishedAt == nil {
		return fmt.Errorf("%w: finished run %s has no finish time", shared.ErrInvalidInput, r.ID)
	}
	return r.Range.Validate()
}

// Duration is the wall time of a finished run, or zero while it is running.
func (r SyncRun) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
