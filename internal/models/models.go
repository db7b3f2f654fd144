// package models defines the media catalog and ledger types shared across the backup tool
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/gphotos-backup/internal/shared"
)

// Date is a calendar day without time of day or zone.
type Date struct {
	Year  int
	Month int
	Day   int
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(shared.DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD", shared.ErrInvalidInput, s)
	}
	return DateOf(t), nil
}

// DateOf returns the calendar day of t in its own location.
func DateOf(t time.Time) Date {
	return Date{Year: t.Year(), Month: int(t.Month()), Day: t.Day()}
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// Before reports whether d falls on an earlier day than other.
func (d Date) Before(other Date) bool {
	if d.Year != other.Year {
		return d.Year < other.Year
	}
	if d.Month != other.Month {
		return d.Month < other.Month
	}
	return d.Day < other.Day
}

// DateRange is an inclusive range of calendar days.
type DateRange struct {
	Start Date
	End   Date
}

// Validate checks that the range is not inverted.
func (r DateRange) Validate() error {
	if r.End.Before(r.Start) {
		return fmt.Errorf("%w: end date %s is before start date %s", shared.ErrInvalidInput, r.End, r.Start)
	}
	return nil
}

func (r DateRange) String() string {
	return r.Start.String() + ".." + r.End.String()
}

// Metadata is the optional descriptive data captured with a media item.
//
// Nil pointers and empty strings mean the remote catalog did not provide the value.
type Metadata struct {
	CaptureTime  *time.Time
	Width        *int
	Height       *int
	MimeType     string
	CameraMake   string
	CameraModel  string
	FocalLength  *float64
	Aperture     *float64
	ISO          *int
	ExposureTime string
	Latitude     *float64
	Longitude    *float64
}

// IsVideo reports whether the MIME type names a video.
func (m Metadata) IsVideo() bool {
	return strings.HasPrefix(m.MimeType, "video/")
}

// MediaItem is one photo or video listed by the remote catalog.
//
// BaseURL is a time-limited content reference and is never persisted.
type MediaItem struct {
	ID       string
	Filename string
	BaseURL  string
	Metadata
}

// Validate checks the fields the sync depends on.
func (m MediaItem) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("%w: missing id", shared.ErrInvalidItem)
	}
	if err := ValidateFilename(m.Filename); err != nil {
		return fmt.Errorf("%w: item %s: %v", shared.ErrInvalidItem, m.ID, err)
	}
	return nil
}

// DownloadURL returns the URL that serves the original bytes of the item.
func (m MediaItem) DownloadURL() string {
	if m.IsVideo() {
		return m.BaseURL + "=dv"
	}
	return m.BaseURL + "=d"
}

// ValidateFilename rejects names that would escape the directory they are written to.
func ValidateFilename(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("missing filename")
	case name == "." || name == "..":
		return fmt.Errorf("invalid filename %q", name)
	case strings.ContainsAny(name, "/\\\x00"):
		return fmt.Errorf("filename %q contains a path separator", name)
	}
	return nil
}

// Album is a remote album. ItemCount is nil when the catalog did not report it.
type Album struct {
	ID          string
	Title       string
	ItemCount   *int
	CoverItemID string
}

// Validate checks that the album can be persisted.
func (a Album) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("%w: album missing id", shared.ErrInvalidInput)
	}
	return nil
}
