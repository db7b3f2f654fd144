package repositories

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/desertthunder/gphotos-backup/internal/models"
	"github.com/desertthunder/gphotos-backup/internal/shared"
)

const recordColumns = `
	r.item_id, r.filename, r.download_date, r.capture_time, r.width, r.height,
	r.mime_type, r.camera_make, r.camera_model, r.focal_length, r.aperture,
	r.iso, r.exposure_time, r.lat, r.long`

// DownloadRecordRepository persists [models.DownloadRecord] rows, one per remote item.
type DownloadRecordRepository struct {
	db *sql.DB
}

// NewDownloadRecordRepository creates a new DownloadRecordRepository with the given database connection
func NewDownloadRecordRepository(db *sql.DB) *DownloadRecordRepository {
	return &DownloadRecordRepository{db: db}
}

// Upsert inserts the record or replaces the existing row for the same item id.
func (r *DownloadRecordRepository) Upsert(rec models.DownloadRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO download_records (
			item_id, filename, download_date, capture_time, width, height,
			mime_type, camera_make, camera_model, focal_length, aperture,
			iso, exposure_time, lat, long
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(item_id) DO UPDATE SET
			filename = excluded.filename,
			download_date = excluded.download_date,
			capture_time = excluded.capture_time,
			width = excluded.width,
			height = excluded.height,
			mime_type = excluded.mime_type,
			camera_make = excluded.camera_make,
			camera_model = excluded.camera_model,
			focal_length = excluded.focal_length,
			aperture = excluded.aperture,
			iso = excluded.iso,
			exposure_time = excluded.exposure_time,
			lat = excluded.lat,
			long = excluded.long
	`

	_, err := r.db.Exec(query,
		rec.ItemID,
		rec.Filename,
		formatTime(rec.DownloadedAt),
		nullTime(rec.CaptureTime),
		nullInt(rec.Width),
		nullInt(rec.Height),
		nullString(rec.MimeType),
		nullString(rec.CameraMake),
		nullString(rec.CameraModel),
		nullFloat(rec.FocalLength),
		nullFloat(rec.Aperture),
		nullInt(rec.ISO),
		nullString(rec.ExposureTime),
		nullFloat(rec.Latitude),
		nullFloat(rec.Longitude),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert download record: %w", err)
	}
	return nil
}

// Exists reports whether the item has already been downloaded.
func (r *DownloadRecordRepository) Exists(itemID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow("SELECT EXISTS(SELECT 1 FROM download_records WHERE item_id = ?)", itemID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check download record: %w", err)
	}
	return exists, nil
}

// Get retrieves the record for an item id.
func (r *DownloadRecordRepository) Get(itemID string) (*models.DownloadRecord, error) {
	query := "SELECT" + recordColumns + " FROM download_records r WHERE r.item_id = ?"

	rec, err := scanRecord(r.db.QueryRow(query, itemID), nil)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrRecordNotFound, itemID)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// FilenameOwner returns the item id that already uses filename locally.
func (r *DownloadRecordRepository) FilenameOwner(filename string) (string, bool, error) {
	var itemID string
	err := r.db.QueryRow("SELECT item_id FROM download_records WHERE filename = ? LIMIT 1", filename).Scan(&itemID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to look up filename: %w", err)
	}
	return itemID, true, nil
}

// Count returns the number of recorded items.
func (r *DownloadRecordRepository) Count() (int, error) {
	var n int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM download_records").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count download records: %w", err)
	}
	return n, nil
}

// List returns every record ordered by download time.
func (r *DownloadRecordRepository) List() ([]models.DownloadRecord, error) {
	query := "SELECT" + recordColumns + " FROM download_records r ORDER BY r.download_date, r.item_id"

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query download records: %w", err)
	}
	defer rows.Close()

	var records []models.DownloadRecord
	for rows.Next() {
		rec, err := scanRecord(rows, nil)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return records, nil
}

// ListWithAlbums returns every record joined with the titles of its albums.
//
// Records without memberships are included with no titles.
func (r *DownloadRecordRepository) ListWithAlbums() ([]models.RecordAlbums, error) {
	query := "SELECT" + recordColumns + `, a.title
		FROM download_records r
		LEFT JOIN album_items ai ON ai.item_id = r.item_id
		LEFT JOIN albums a ON a.album_id = ai.album_id
		ORDER BY r.item_id, a.title`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query records with albums: %w", err)
	}
	defer rows.Close()

	var result []models.RecordAlbums
	for rows.Next() {
		var title sql.NullString
		rec, err := scanRecord(rows, &title)
		if err != nil {
			return nil, err
		}

		if n := len(result); n == 0 || result[n-1].Record.ItemID != rec.ItemID {
			result = append(result, models.RecordAlbums{Record: *rec})
		}
		if title.Valid {
			last := &result[len(result)-1]
			last.AlbumTitles = append(last.AlbumTitles, title.String)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return result, nil
}

// scanRecord scans recordColumns, plus extra when it is non-nil.
func scanRecord(row rowScanner, extra any) (*models.DownloadRecord, error) {
	var (
		rec          models.DownloadRecord
		downloadDate string
		captureTime  sql.NullString
		width        sql.NullInt64
		height       sql.NullInt64
		mimeType     sql.NullString
		cameraMake   sql.NullString
		cameraModel  sql.NullString
		focalLength  sql.NullFloat64
		aperture     sql.NullFloat64
		iso          sql.NullInt64
		exposureTime sql.NullString
		lat          sql.NullFloat64
		long         sql.NullFloat64
	)

	dest := []any{
		&rec.ItemID, &rec.Filename, &downloadDate, &captureTime, &width, &height,
		&mimeType, &cameraMake, &cameraModel, &focalLength, &aperture,
		&iso, &exposureTime, &lat, &long,
	}
	if extra != nil {
		dest = append(dest, extra)
	}

	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan download record: %w", err)
	}

	var err error
	if rec.DownloadedAt, err = parseTime(downloadDate); err != nil {
		return nil, err
	}
	if rec.CaptureTime, err = timePtr(captureTime); err != nil {
		return nil, err
	}

	rec.Width = intPtr(width)
	rec.Height = intPtr(height)
	rec.MimeType = mimeType.String
	rec.CameraMake = cameraMake.String
	rec.CameraModel = cameraModel.String
	rec.FocalLength = floatPtr(focalLength)
	rec.Aperture = floatPtr(aperture)
	rec.ISO = intPtr(iso)
	rec.ExposureTime = exposureTime.String
	rec.Latitude = floatPtr(lat)
	rec.Longitude = floatPtr(long)

	return &rec, nil
}
