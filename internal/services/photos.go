// Google Photos implementation of [Catalog]
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/time/rate"

	"github.com/desertthunder/gphotos-backup/internal/models"
	"github.com/desertthunder/gphotos-backup/internal/shared"
)

const (
	photosBaseURL        = "https://photoslibrary.googleapis.com/v1"
	defaultPageSize      = 100
	defaultAlbumPageSize = 50
	maxPageSize          = 100
	maxAlbumPageSize     = 50
)

// PhotosOpts configures a [PhotosService]. Zero values select the API defaults.
type PhotosOpts struct {
	BaseURL           string
	PageSize          int
	AlbumPageSize     int
	RequestsPerSecond float64
	Retry             RetryPolicy
	Logger            *log.Logger
}

// PhotosService talks to the Photos Library API with an already authorized client.
//
// Every request waits on a rate limiter and runs under the retry policy.
// In-flight requests are detached from cancellation so a request that has started always completes;
// cancellation is honoured while waiting on the limiter and during backoff sleeps.
type PhotosService struct {
	baseURL       string
	httpClient    *http.Client
	limiter       *rate.Limiter
	retry         RetryPolicy
	logger        *log.Logger
	pageSize      int
	albumPageSize int
}

// NewPhotosService creates a catalog client. client must attach credentials to each request.
func NewPhotosService(client *http.Client, opts PhotosOpts) *PhotosService {
	if client == nil {
		client = http.DefaultClient
	}
	if opts.BaseURL == "" {
		opts.BaseURL = photosBaseURL
	}
	if opts.PageSize <= 0 || opts.PageSize > maxPageSize {
		opts.PageSize = defaultPageSize
	}
	if opts.AlbumPageSize <= 0 || opts.AlbumPageSize > maxAlbumPageSize {
		opts.AlbumPageSize = defaultAlbumPageSize
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = DefaultRetryPolicy()
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	return &PhotosService{
		baseURL:       strings.TrimRight(opts.BaseURL, "/"),
		httpClient:    client,
		limiter:       rate.NewLimiter(limit, 1),
		retry:         opts.Retry,
		logger:        opts.Logger,
		pageSize:      opts.PageSize,
		albumPageSize: opts.AlbumPageSize,
	}
}

func (s *PhotosService) Name() string {
	return "Google Photos"
}

// ListAlbums yields the library's albums, fifty per request.
func (s *PhotosService) ListAlbums(ctx context.Context) iter.Seq2[models.Album, error] {
	return func(yield func(models.Album, error) bool) {
		token := ""
		for {
			query := url.Values{"pageSize": {strconv.Itoa(s.albumPageSize)}}
			if token != "" {
				query.Set("pageToken", token)
			}

			var page albumList
			if err := s.doJSON(ctx, "albums.list", http.MethodGet, "/albums?"+query.Encode(), nil, &page); err != nil {
				yield(models.Album{}, fmt.Errorf("failed to list albums: %w", err))
				return
			}

			for _, a := range page.Albums {
				album, err := a.toAlbum()
				if err != nil {
					s.logger.Warn("dropping invalid album", "album", a.ID, "error", err)
					continue
				}
				if !yield(album, nil) {
					return
				}
			}

			if page.NextPageToken == "" {
				return
			}
			if page.NextPageToken == token {
				yield(models.Album{}, fmt.Errorf("%w: album listing repeated page token", shared.ErrMalformedResponse))
				return
			}
			token = page.NextPageToken
		}
	}
}

// ListItemsInRange returns one page of items captured between rng.Start and rng.End inclusive.
func (s *PhotosService) ListItemsInRange(ctx context.Context, rng models.DateRange, cursor string) (*ItemPage, error) {
	if err := rng.Validate(); err != nil {
		return nil, err
	}

	var result mediaItemList
	body := newRangeSearch(rng, s.pageSize, cursor)
	if err := s.doJSON(ctx, "mediaItems.search", http.MethodPost, "/mediaItems:search", body, &result); err != nil {
		return nil, fmt.Errorf("failed to list media items: %w", err)
	}
	if result.NextPageToken != "" && result.NextPageToken == cursor {
		return nil, fmt.Errorf("%w: media listing repeated page token", shared.ErrMalformedResponse)
	}

	page := &ItemPage{NextCursor: result.NextPageToken}
	for _, raw := range result.MediaItems {
		item, err := raw.toMediaItem()
		if err != nil {
			s.logger.Warn("dropping invalid media item", "item", raw.ID, "error", err)
			page.Dropped++
			continue
		}
		page.Items = append(page.Items, item)
	}
	return page, nil
}

// ListAlbumItems yields the items of one album.
func (s *PhotosService) ListAlbumItems(ctx context.Context, albumID string) iter.Seq2[models.MediaItem, error] {
	return func(yield func(models.MediaItem, error) bool) {
		if albumID == "" {
			yield(models.MediaItem{}, fmt.Errorf("%w: album id", shared.ErrMissingArgument))
			return
		}

		body := searchRequest{AlbumID: albumID, PageSize: s.pageSize}
		lastID := ""
		for {
			var result mediaItemList
			if err := s.doJSON(ctx, "mediaItems.search", http.MethodPost, "/mediaItems:search", body, &result); err != nil {
				yield(models.MediaItem{}, fmt.Errorf("failed to list album %s: %w", albumID, err))
				return
			}

			raw := result.MediaItems
			// The first item of a page can repeat the last item of the previous one.
			if len(raw) > 0 && raw[0].ID == lastID {
				raw = raw[1:]
			}
			if len(raw) > 0 {
				lastID = raw[len(raw)-1].ID
			}

			for _, r := range raw {
				item, err := r.toMediaItem()
				if err != nil {
					s.logger.Warn("dropping invalid media item", "album", albumID, "item", r.ID, "error", err)
					continue
				}
				if !yield(item, nil) {
					return
				}
			}

			if result.NextPageToken == "" {
				return
			}
			if result.NextPageToken == body.PageToken {
				yield(models.MediaItem{}, fmt.Errorf("%w: album listing repeated page token", shared.ErrMalformedResponse))
				return
			}
			body.PageToken = result.NextPageToken
		}
	}
}

// FetchContent downloads the original bytes of item.
//
// An HTML body for a non-text item is an error page served with a 200 and is reported as malformed.
func (s *PhotosService) FetchContent(ctx context.Context, item models.MediaItem) ([]byte, error) {
	if item.BaseURL == "" {
		return nil, fmt.Errorf("%w: item %s has no content url", shared.ErrInvalidItem, item.ID)
	}

	var data []byte
	err := s.retry.Do(ctx, "content.fetch", func(ctx context.Context) error {
		resp, err := s.send(ctx, http.MethodGet, item.DownloadURL(), nil, "")
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if data, err = io.ReadAll(resp.Body); err != nil {
			return fmt.Errorf("failed to read content: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", item.Filename, err)
	}

	detected := mimetype.Detect(data)
	if detected.Is("text/html") && !strings.HasPrefix(item.MimeType, "text/") {
		return nil, fmt.Errorf("%w: expected %s for %s, got %s", shared.ErrMalformedResponse, item.MimeType, item.Filename, detected.String())
	}
	return data, nil
}

// doJSON sends body as JSON and decodes a successful response into result.
func (s *PhotosService) doJSON(ctx context.Context, op, method, path string, body, result any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	return s.retry.Do(ctx, op, func(ctx context.Context) error {
		resp, err := s.send(ctx, method, s.baseURL+path, payload, "application/json")
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if result == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("%w: %v", shared.ErrMalformedResponse, err)
		}
		return nil
	})
}

// send performs one rate limited request and returns the response when its status is 2xx.
func (s *PhotosService) send(ctx context.Context, method, target string, payload []byte, contentType string) (*http.Response, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(context.WithoutCancel(ctx), method, target, body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", shared.ErrAPIRequest, err)
	}
	if payload != nil && contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}
	return resp, nil
}
