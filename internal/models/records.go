package models

import (
	"fmt"
	"time"

	"github.com/desertthunder/gphotos-backup/internal/shared"
)

// UnknownDateBucket holds records without a capture time.
const UnknownDateBucket = "Unknown_Date"

// DownloadRecord is the ledger entry written once an item's bytes are on disk.
//
// Filename is the local name, which differs from the remote filename when a collision was resolved.
type DownloadRecord struct {
	ItemID       string
	Filename     string
	DownloadedAt time.Time
	Metadata
}

// NewDownloadRecord snapshots item metadata at download time.
func NewDownloadRecord(item MediaItem, filename string, at time.Time) DownloadRecord {
	return DownloadRecord{
		ItemID:       item.ID,
		Filename:     filename,
		DownloadedAt: at.UTC(),
		Metadata:     item.Metadata,
	}
}

// Validate checks that the record can be persisted.
func (r DownloadRecord) Validate() error {
	if r.ItemID == "" {
		return fmt.Errorf("%w: record missing item id", shared.ErrInvalidInput)
	}
	if err := ValidateFilename(r.Filename); err != nil {
		return fmt.Errorf("%w: record %s: %v", shared.ErrInvalidInput, r.ItemID, err)
	}
	return nil
}

// DateBucket returns the YYYY-MM directory for the record, or [UnknownDateBucket].
func (r DownloadRecord) DateBucket() string {
	if r.CaptureTime == nil {
		return UnknownDateBucket
	}
	t := r.CaptureTime.UTC()
	return fmt.Sprintf("%04d-%02d", t.Year(), int(t.Month()))
}

// AlbumMembership links an album to a recorded item.
type AlbumMembership struct {
	AlbumID string
	ItemID  string
}

// RecordAlbums is a download record with the titles of every album containing it.
type RecordAlbums struct {
	Record      DownloadRecord
	AlbumTitles []string
}
