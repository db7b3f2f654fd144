// Google Photos Library API wire types
//
// Response types based on https://developers.google.com/photos/library/reference/rest
package services

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/gphotos-backup/internal/models"
	"github.com/desertthunder/gphotos-backup/internal/shared"
)

// PhotosAlbum is an album as returned by albums.list.
type PhotosAlbum struct {
	ID                    string `json:"id"`
	Title                 string `json:"title"`
	ProductURL            string `json:"productUrl,omitempty"`
	MediaItemsCount       string `json:"mediaItemsCount,omitempty"`
	CoverPhotoBaseURL     string `json:"coverPhotoBaseUrl,omitempty"`
	CoverPhotoMediaItemID string `json:"coverPhotoMediaItemId,omitempty"`
}

type albumList struct {
	Albums        []PhotosAlbum `json:"albums"`
	NextPageToken string        `json:"nextPageToken"`
}

// PhotosMediaItem is a photo or video as returned by mediaItems.search.
type PhotosMediaItem struct {
	ID            string        `json:"id"`
	ProductURL    string        `json:"productUrl,omitempty"`
	BaseURL       string        `json:"baseUrl"`
	MimeType      string        `json:"mimeType"`
	Filename      string        `json:"filename"`
	MediaMetadata mediaMetadata `json:"mediaMetadata"`
	GeoData       *geoData      `json:"geoData,omitempty"`
}

type mediaMetadata struct {
	CreationTime string         `json:"creationTime"`
	Width        string         `json:"width"`
	Height       string         `json:"height"`
	Photo        *photoMetadata `json:"photo,omitempty"`
	Video        *videoMetadata `json:"video,omitempty"`
}

type photoMetadata struct {
	CameraMake      string   `json:"cameraMake"`
	CameraModel     string   `json:"cameraModel"`
	FocalLength     *float64 `json:"focalLength"`
	ApertureFNumber *float64 `json:"apertureFNumber"`
	ISOEquivalent   *int     `json:"isoEquivalent"`
	ExposureTime    string   `json:"exposureTime"`
}

type videoMetadata struct {
	CameraMake  string   `json:"cameraMake"`
	CameraModel string   `json:"cameraModel"`
	FPS         *float64 `json:"fps"`
	Status      string   `json:"status"`
}

type geoData struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

type mediaItemList struct {
	MediaItems    []PhotosMediaItem `json:"mediaItems"`
	NextPageToken string            `json:"nextPageToken"`
}

type searchDate struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}

type dateRange struct {
	StartDate searchDate `json:"startDate"`
	EndDate   searchDate `json:"endDate"`
}

type dateFilter struct {
	Ranges []dateRange `json:"ranges"`
}

type searchFilters struct {
	DateFilter *dateFilter `json:"dateFilter,omitempty"`
}

// searchRequest is the body of mediaItems.search. AlbumID and Filters cannot be combined.
type searchRequest struct {
	AlbumID   string         `json:"albumId,omitempty"`
	PageSize  int            `json:"pageSize"`
	PageToken string         `json:"pageToken,omitempty"`
	Filters   *searchFilters `json:"filters,omitempty"`
}

func newRangeSearch(rng models.DateRange, pageSize int, cursor string) searchRequest {
	return searchRequest{
		PageSize:  pageSize,
		PageToken: cursor,
		Filters: &searchFilters{
			DateFilter: &dateFilter{Ranges: []dateRange{{
				StartDate: searchDate(rng.Start),
				EndDate:   searchDate(rng.End),
			}}},
		},
	}
}

type errorEnvelope struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// toAlbum validates a wire album and converts it to the model type.
func (a PhotosAlbum) toAlbum() (models.Album, error) {
	album := models.Album{ID: a.ID, Title: a.Title, CoverItemID: a.CoverPhotoMediaItemID}
	if a.MediaItemsCount != "" {
		n, err := strconv.Atoi(a.MediaItemsCount)
		if err != nil {
			return models.Album{}, fmt.Errorf("%w: album %s item count %q", shared.ErrMalformedResponse, a.ID, a.MediaItemsCount)
		}
		album.ItemCount = &n
	}
	if err := album.Validate(); err != nil {
		return models.Album{}, err
	}
	return album, nil
}

// toMediaItem validates a wire item and converts it to the model type.
//
// Numeric strings are parsed and the creation time is normalised to UTC.
func (p PhotosMediaItem) toMediaItem() (models.MediaItem, error) {
	item := models.MediaItem{
		ID:       p.ID,
		Filename: p.Filename,
		BaseURL:  p.BaseURL,
		Metadata: models.Metadata{MimeType: p.MimeType},
	}
	if err := item.Validate(); err != nil {
		return models.MediaItem{}, err
	}
	if p.BaseURL == "" {
		return models.MediaItem{}, fmt.Errorf("%w: item %s has no content url", shared.ErrInvalidItem, p.ID)
	}

	meta := p.MediaMetadata
	if meta.CreationTime != "" {
		t, err := time.Parse(time.RFC3339Nano, meta.CreationTime)
		if err != nil {
			return models.MediaItem{}, fmt.Errorf("%w: item %s creation time %q", shared.ErrInvalidItem, p.ID, meta.CreationTime)
		}
		t = t.UTC()
		item.CaptureTime = &t
	}

	var err error
	if item.Width, err = parseDimension(meta.Width); err != nil {
		return models.MediaItem{}, fmt.Errorf("%w: item %s width: %v", shared.ErrInvalidItem, p.ID, err)
	}
	if item.Height, err = parseDimension(meta.Height); err != nil {
		return models.MediaItem{}, fmt.Errorf("%w: item %s height: %v", shared.ErrInvalidItem, p.ID, err)
	}

	switch {
	case meta.Photo != nil:
		item.CameraMake = strings.TrimSpace(meta.Photo.CameraMake)
		item.CameraModel = strings.TrimSpace(meta.Photo.CameraModel)
		item.FocalLength = meta.Photo.FocalLength
		item.Aperture = meta.Photo.ApertureFNumber
		item.ISO = meta.Photo.ISOEquivalent
		item.ExposureTime = meta.Photo.ExposureTime
	case meta.Video != nil:
		item.CameraMake = strings.TrimSpace(meta.Video.CameraMake)
		item.CameraModel = strings.TrimSpace(meta.Video.CameraModel)
	}

	if p.GeoData != nil {
		item.Latitude = p.GeoData.Latitude
		item.Longitude = p.GeoData.Longitude
	}
	return item, nil
}

func parseDimension(s string) (*int, error) {
	if s == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return nil, fmt.Errorf("invalid dimension %q", s)
	}
	return &n, nil
}
