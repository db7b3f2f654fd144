package repositories

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/desertthunder/gphotos-backup/internal/models"
	"github.com/desertthunder/gphotos-backup/internal/shared"
)

// AlbumRepository persists albums and their membership edges.
type AlbumRepository struct {
	db *sql.DB
}

// NewAlbumRepository creates a new AlbumRepository with the given database connection
func NewAlbumRepository(db *sql.DB) *AlbumRepository {
	return &AlbumRepository{db: db}
}

// Upsert inserts the album or refreshes its title, count and cover.
func (r *AlbumRepository) Upsert(album models.Album) error {
	if err := album.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO albums (album_id, title, item_count, cover_item_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(album_id) DO UPDATE SET
			title = excluded.title,
			item_count = excluded.item_count,
			cover_item_id = excluded.cover_item_id
	`

	_, err := r.db.Exec(query, album.ID, album.Title, nullInt(album.ItemCount), nullString(album.CoverItemID))
	if err != nil {
		return fmt.Errorf("failed to upsert album: %w", err)
	}
	return nil
}

// Get retrieves an album by id.
func (r *AlbumRepository) Get(albumID string) (*models.Album, error) {
	row := r.db.QueryRow("SELECT album_id, title, item_count, cover_item_id FROM albums WHERE album_id = ?", albumID)

	album, err := scanAlbum(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrAlbumNotFound, albumID)
	}
	return album, err
}

// List returns every album ordered by title.
func (r *AlbumRepository) List() ([]models.Album, error) {
	rows, err := r.db.Query("SELECT album_id, title, item_count, cover_item_id FROM albums ORDER BY title, album_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query albums: %w", err)
	}
	defer rows.Close()

	var albums []models.Album
	for rows.Next() {
		album, err := scanAlbum(rows)
		if err != nil {
			return nil, err
		}
		albums = append(albums, *album)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return albums, nil
}

// AddMember records that itemID belongs to albumID. Existing pairs are left untouched.
//
// Returns true when a new edge was written.
func (r *AlbumRepository) AddMember(albumID, itemID string) (bool, error) {
	result, err := r.db.Exec(
		"INSERT INTO album_items (album_id, item_id) VALUES (?, ?) ON CONFLICT(album_id, item_id) DO NOTHING",
		albumID, itemID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to add album member: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rows > 0, nil
}

// Members returns the recorded item ids of an album.
func (r *AlbumRepository) Members(albumID string) ([]string, error) {
	rows, err := r.db.Query("SELECT item_id FROM album_items WHERE album_id = ? ORDER BY item_id", albumID)
	if err != nil {
		return nil, fmt.Errorf("failed to query album members: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan album member: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return ids, nil
}

// MemberCounts returns the number of recorded items per album id.
func (r *AlbumRepository) MemberCounts() (map[string]int, error) {
	rows, err := r.db.Query("SELECT album_id, COUNT(*) FROM album_items GROUP BY album_id")
	if err != nil {
		return nil, fmt.Errorf("failed to count album members: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			id string
			n  int
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("failed to scan member count: %w", err)
		}
		counts[id] = n
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return counts, nil
}

func scanAlbum(row rowScanner) (*models.Album, error) {
	var (
		album     models.Album
		itemCount sql.NullInt64
		cover     sql.NullString
	)

	if err := row.Scan(&album.ID, &album.Title, &itemCount, &cover); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan album: %w", err)
	}

	album.ItemCount = intPtr(itemCount)
	album.CoverItemID = cover.String
	return &album, nil
}
