package repositories

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/desertthunder/gphotos-backup/internal/models"
	"github.com/desertthunder/gphotos-backup/internal/shared"
)

const (
	lastPageTokenKey = "last_page_token"
	lastPageRangeKey = "last_page_range"
)

// SyncStateRepository stores the resumable page cursor of the media scan.
type SyncStateRepository struct {
	db *sql.DB
}

// NewSyncStateRepository creates a new SyncStateRepository with the given database connection
func NewSyncStateRepository(db *sql.DB) *SyncStateRepository {
	return &SyncStateRepository{db: db}
}

// Cursor returns the saved page token. The boolean is false when no scan is in progress.
func (r *SyncStateRepository) Cursor() (string, bool, error) {
	var token string
	err := r.db.QueryRow("SELECT value FROM sync_state WHERE key = ?", lastPageTokenKey).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read cursor: %w", err)
	}
	return token, true, nil
}

// CursorRange returns the date range the saved page token was issued for.
// The boolean is false when no range is stored, as for tokens saved by older versions.
func (r *SyncStateRepository) CursorRange() (string, bool, error) {
	var rng string
	err := r.db.QueryRow("SELECT value FROM sync_state WHERE key = ?", lastPageRangeKey).Scan(&rng)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read cursor range: %w", err)
	}
	return rng, true, nil
}

// SetCursor overwrites the saved page token together with the date range of the listing it came from.
func (r *SyncStateRepository) SetCursor(token string, rng models.DateRange) error {
	if token == "" {
		return fmt.Errorf("%w: empty page token", shared.ErrInvalidInput)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to save cursor: %w", err)
	}
	defer tx.Rollback()

	const upsert = "INSERT INTO sync_state (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value"
	for _, kv := range [][2]string{{lastPageTokenKey, token}, {lastPageRangeKey, rng.String()}} {
		if _, err := tx.Exec(upsert, kv[0], kv[1]); err != nil {
			return fmt.Errorf("failed to save cursor: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to save cursor: %w", err)
	}
	return nil
}

// ClearCursor removes the saved page token so the next scan starts from the first page.
func (r *SyncStateRepository) ClearCursor() error {
	if _, err := r.db.Exec("DELETE FROM sync_state WHERE key IN (?, ?)", lastPageTokenKey, lastPageRangeKey); err != nil {
		return fmt.Errorf("failed to clear cursor: %w", err)
	}
	return nil
}
