package tasks

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase, zero when unknown
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	ChangeState Phase = iota
	IndexAlbums
	ScanPages
	ProcessItems
	OrganizeFiles
	VerifyFiles
)

func (p Phase) String() string {
	switch p {
	case ChangeState:
		return "change_state"
	case IndexAlbums:
		return "index_albums"
	case ScanPages:
		return "scan_pages"
	case ProcessItems:
		return "process_items"
	case OrganizeFiles:
		return "organize_files"
	case VerifyFiles:
		return "verify_files"
	default:
		return ""
	}
}

// sendProgress sends a progress update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

func stateUpdate(s State) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ChangeState,
		Message: s.Label(),
		Data:    s,
	}
}

func indexingAlbumUpdate(step, total int, title string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   IndexAlbums,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Indexing album %q...", step, total, title),
	}
}

func albumIndexUpdate(albums, items int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   IndexAlbums,
		Step:    albums,
		Total:   albums,
		Message: fmt.Sprintf("Indexed %d albums covering %d items", albums, items),
	}
}

func fetchingPageUpdate(page int, resumed bool) ProgressUpdate {
	msg := fmt.Sprintf("Fetching page %d...", page)
	if resumed && page == 1 {
		msg = "Fetching page 1 (resumed from saved cursor)..."
	}
	return ProgressUpdate{
		Phase:   ScanPages,
		Step:    page,
		Message: msg,
	}
}

func pageCompleteUpdate(page, items int, c SyncCounters) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ScanPages,
		Step:    page,
		Message: fmt.Sprintf("Page %d complete (%d items)", page, items),
		Data:    c,
	}
}

func downloadedItemUpdate(step, total int, filename string, size int, c SyncCounters) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ProcessItems,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s (%s)", step, total, filename, humanize.Bytes(uint64(size))),
		Data:    c,
	}
}

func skippedItemUpdate(step, total int, filename string, c SyncCounters) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ProcessItems,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] = %s (already downloaded)", step, total, filename),
		Data:    c,
	}
}

func failedItemUpdate(step, total int, filename string, err error, c SyncCounters) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ProcessItems,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, filename, err),
		Data:    c,
	}
}

func organizeRecordUpdate(step, total int, filename, bucket string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   OrganizeFiles,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s → %s", step, total, filename, bucket),
	}
}

func verifyRecordUpdate(step, total int, check FileCheck) ProgressUpdate {
	mark := "✓"
	if check.Status != FilePresent {
		mark = "✗"
	}
	return ProgressUpdate{
		Phase:   VerifyFiles,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s %s", step, total, mark, check.Record.Filename),
		Data:    check,
	}
}
