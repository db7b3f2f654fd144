// package tasks implements the sync, organize and verify passes over the ledger and the backup directory.
//
// Operations emit progress updates via channels for non-blocking status reporting to CLI/UI layers.
package tasks

import (
	"errors"
	"fmt"

	"github.com/desertthunder/gphotos-backup/internal/models"
	"github.com/desertthunder/gphotos-backup/internal/shared"
)

// State is a step of the sync state machine.
type State int

const (
	StateIdle State = iota
	StateFetchingAlbumIndex
	StateScanningMediaPages
	StateProcessingPage
	StatePageComplete
	StateScanComplete
	StateCompleted
	StateInterrupted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetchingAlbumIndex:
		return "fetching_album_index"
	case StateScanningMediaPages:
		return "scanning_media_pages"
	case StateProcessingPage:
		return "processing_page"
	case StatePageComplete:
		return "page_complete"
	case StateScanComplete:
		return "scan_complete"
	case StateCompleted:
		return "completed"
	case StateInterrupted:
		return "interrupted"
	case StateFailed:
		return "failed"
	default:
		return ""
	}
}

// Label is the human readable form of the state.
func (s State) Label() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateFetchingAlbumIndex:
		return "Fetching album index"
	case StateScanningMediaPages:
		return "Scanning media pages"
	case StateProcessingPage:
		return "Processing page"
	case StatePageComplete:
		return "Page complete"
	case StateScanComplete:
		return "Scan complete"
	case StateCompleted:
		return "Completed"
	case StateInterrupted:
		return "Interrupted"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Terminal reports whether the run has ended.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateInterrupted || s == StateFailed
}

// RunStatus maps a terminal state onto the status stored in the ledger.
func (s State) RunStatus() models.RunStatus {
	switch s {
	case StateCompleted:
		return models.RunCompleted
	case StateInterrupted:
		return models.RunInterrupted
	case StateFailed:
		return models.RunFailed
	default:
		return models.RunRunning
	}
}

// ledgerError marks err as a ledger failure, which aborts a sync.
func ledgerError(err error) error {
	if err == nil || errors.Is(err, shared.ErrLedgerUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", shared.ErrLedgerUnavailable, err)
}
