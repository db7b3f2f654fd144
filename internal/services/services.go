// package services defines the [Catalog] interface for the remote media library
//
// Google Photos Library API
package services

import (
	"context"
	"iter"

	"github.com/desertthunder/gphotos-backup/internal/models"
)

// Catalog is the read-only view of a remote media library used by the sync.
type Catalog interface {
	// ListAlbums yields every album, fetching pages as the sequence is consumed.
	// Ranging over the sequence again starts from the first page.
	ListAlbums(ctx context.Context) iter.Seq2[models.Album, error]

	// ListItemsInRange returns one page of items captured within the inclusive range.
	// An empty cursor requests the first page.
	ListItemsInRange(ctx context.Context, rng models.DateRange, cursor string) (*ItemPage, error)

	// ListAlbumItems yields every item of an album, fetching pages as the sequence is consumed.
	ListAlbumItems(ctx context.Context, albumID string) iter.Seq2[models.MediaItem, error]

	// FetchContent downloads the original bytes of an item.
	FetchContent(ctx context.Context, item models.MediaItem) ([]byte, error)
}

// ItemPage is one page of a date range scan.
type ItemPage struct {
	Items []models.MediaItem
	// NextCursor is empty on the last page.
	NextCursor string
	// Dropped counts entries that failed validation and were left out of Items.
	Dropped int
}

// Last reports whether no further page follows.
func (p *ItemPage) Last() bool {
	return p.NextCursor == ""
}
