// package formatter provides functions to export ledger data to various formats (CSV, JSON, plain text)
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/gphotos-backup/internal/models"
	"github.com/desertthunder/gphotos-backup/internal/shared"
)

// Format is an export format.
type Format string

const (
	CSV  Format = "csv"
	JSON Format = "json"
	Text Format = "txt"
)

// ParseFormat validates a --format flag value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case CSV, JSON, Text:
		return f, nil
	case "text":
		return Text, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q (expected csv, json or txt)", shared.ErrInvalidFlag, s)
	}
}

var recordHeaders = []string{
	"item_id", "filename", "bucket", "capture_time", "mime_type", "width", "height",
	"camera_make", "camera_model", "focal_length", "aperture", "iso", "exposure_time",
	"latitude", "longitude", "downloaded_at", "albums",
}

// recordJSON is the JSON shape of an exported record. Absent metadata is omitted.
type recordJSON struct {
	ItemID       string     `json:"item_id"`
	Filename     string     `json:"filename"`
	Bucket       string     `json:"bucket"`
	CaptureTime  *time.Time `json:"capture_time,omitempty"`
	MimeType     string     `json:"mime_type,omitempty"`
	Width        *int       `json:"width,omitempty"`
	Height       *int       `json:"height,omitempty"`
	CameraMake   string     `json:"camera_make,omitempty"`
	CameraModel  string     `json:"camera_model,omitempty"`
	FocalLength  *float64   `json:"focal_length,omitempty"`
	Aperture     *float64   `json:"aperture,omitempty"`
	ISO          *int       `json:"iso,omitempty"`
	ExposureTime string     `json:"exposure_time,omitempty"`
	Latitude     *float64   `json:"latitude,omitempty"`
	Longitude    *float64   `json:"longitude,omitempty"`
	DownloadedAt time.Time  `json:"downloaded_at"`
	Albums       []string   `json:"albums"`
}

type albumJSON struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	ItemCount   *int   `json:"item_count,omitempty"`
	Stored      int    `json:"stored"`
	CoverItemID string `json:"cover_item_id,omitempty"`
}

// Records renders records in format.
func Records(format Format, records []models.RecordAlbums) ([]byte, error) {
	switch format {
	case CSV:
		return RecordsToCSV(records)
	case JSON:
		return RecordsToJSON(records)
	case Text:
		return RecordsToText(records)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidFlag, format)
	}
}

// Albums renders albums in format. counts maps album ids to recorded member counts.
func Albums(format Format, albums []models.Album, counts map[string]int) ([]byte, error) {
	switch format {
	case CSV:
		return AlbumsToCSV(albums, counts)
	case JSON:
		return AlbumsToJSON(albums, counts)
	case Text:
		return AlbumsToText(albums, counts)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidFlag, format)
	}
}

// RecordsToCSV converts records to CSV with one row per record. Album titles are joined with "; ".
func RecordsToCSV(records []models.RecordAlbums) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(recordHeaders); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, ra := range records {
		r := ra.Record
		row := []string{
			r.ItemID,
			r.Filename,
			r.DateBucket(),
			formatTime(r.CaptureTime),
			r.MimeType,
			formatInt(r.Width),
			formatInt(r.Height),
			r.CameraMake,
			r.CameraModel,
			formatFloat(r.FocalLength),
			formatFloat(r.Aperture),
			formatInt(r.ISO),
			r.ExposureTime,
			formatFloat(r.Latitude),
			formatFloat(r.Longitude),
			r.DownloadedAt.UTC().Format(time.RFC3339),
			strings.Join(ra.AlbumTitles, "; "),
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// RecordsToJSON converts records to an indented JSON array.
func RecordsToJSON(records []models.RecordAlbums) ([]byte, error) {
	out := make([]recordJSON, 0, len(records))
	for _, ra := range records {
		r := ra.Record
		albums := ra.AlbumTitles
		if albums == nil {
			albums = []string{}
		}
		out = append(out, recordJSON{
			ItemID:       r.ItemID,
			Filename:     r.Filename,
			Bucket:       r.DateBucket(),
			CaptureTime:  r.CaptureTime,
			MimeType:     r.MimeType,
			Width:        r.Width,
			Height:       r.Height,
			CameraMake:   r.CameraMake,
			CameraModel:  r.CameraModel,
			FocalLength:  r.FocalLength,
			Aperture:     r.Aperture,
			ISO:          r.ISO,
			ExposureTime: r.ExposureTime,
			Latitude:     r.Latitude,
			Longitude:    r.Longitude,
			DownloadedAt: r.DownloadedAt.UTC(),
			Albums:       albums,
		})
	}
	return marshal(out)
}

// RecordsToText converts records to a plain text listing, one line per record.
func RecordsToText(records []models.RecordAlbums) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("Records: %d\n\n", len(records)))
	for i, ra := range records {
		r := ra.Record
		buf.WriteString(fmt.Sprintf("%d. %s/%s", i+1, r.DateBucket(), r.Filename))
		if r.CameraModel != "" {
			buf.WriteString(fmt.Sprintf(" [%s]", strings.TrimSpace(r.CameraMake+" "+r.CameraModel)))
		}
		if len(ra.AlbumTitles) > 0 {
			buf.WriteString(fmt.Sprintf(" (%s)", strings.Join(ra.AlbumTitles, ", ")))
		}
		buf.WriteString("\n")
	}

	return buf.Bytes(), nil
}

// AlbumsToCSV converts albums to CSV with columns: id, title, item_count, stored, cover_item_id
func AlbumsToCSV(albums []models.Album, counts map[string]int) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write([]string{"id", "title", "item_count", "stored", "cover_item_id"}); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, a := range albums {
		row := []string{a.ID, a.Title, formatInt(a.ItemCount), strconv.Itoa(counts[a.ID]), a.CoverItemID}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// AlbumsToJSON converts albums to an indented JSON array.
func AlbumsToJSON(albums []models.Album, counts map[string]int) ([]byte, error) {
	out := make([]albumJSON, 0, len(albums))
	for _, a := range albums {
		out = append(out, albumJSON{
			ID:          a.ID,
			Title:       a.Title,
			ItemCount:   a.ItemCount,
			Stored:      counts[a.ID],
			CoverItemID: a.CoverItemID,
		})
	}
	return marshal(out)
}

// AlbumsToText converts albums to a plain text listing
func AlbumsToText(albums []models.Album, counts map[string]int) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("Albums: %d\n\n", len(albums)))
	for i, a := range albums {
		total := "?"
		if a.ItemCount != nil {
			total = strconv.Itoa(*a.ItemCount)
		}
		buf.WriteString(fmt.Sprintf("%d. %s (%d/%s backed up)\n", i+1, a.Title, counts[a.ID], total))
	}

	return buf.Bytes(), nil
}

func marshal(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return append(data, '\n'), nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatInt(p *int) string {
	if p == nil {
		return ""
	}
	return strconv.Itoa(*p)
}

func formatFloat(p *float64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatFloat(*p, 'f', -1, 64)
}
