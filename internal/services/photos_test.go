package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/gphotos-backup/internal/models"
	"github.com/desertthunder/gphotos-backup/internal/shared"
	tu "github.com/desertthunder/gphotos-backup/internal/testing"
)

func fastRetry() RetryPolicy {
	p := DefaultRetryPolicy()
	p.BaseDelay = time.Millisecond
	p.MaxDelay = 2 * time.Millisecond
	return p
}

func newTestService(t *testing.T, handler http.HandlerFunc) *PhotosService {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewPhotosService(server.Client(), PhotosOpts{BaseURL: server.URL, Retry: fastRetry()})
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("failed to encode response: %v", err)
	}
}

func mediaItem(id, filename, created string) map[string]any {
	return map[string]any{
		"id":       id,
		"filename": filename,
		"baseUrl":  "https://lh3.example/" + id,
		"mimeType": "image/jpeg",
		"mediaMetadata": map[string]any{
			"creationTime": created,
			"width":        "4032",
			"height":       "3024",
			"photo": map[string]any{
				"cameraMake":      "Canon",
				"cameraModel":     "EOS 5D",
				"focalLength":     35.0,
				"apertureFNumber": 1.8,
				"isoEquivalent":   200,
				"exposureTime":    "0.008s",
			},
		},
	}
}

func TestNewPhotosService(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		svc := NewPhotosService(nil, PhotosOpts{})

		if svc.baseURL != photosBaseURL {
			t.Errorf("expected baseURL %s, got %s", photosBaseURL, svc.baseURL)
		}
		if svc.pageSize != 100 || svc.albumPageSize != 50 {
			t.Errorf("expected page sizes 100/50, got %d/%d", svc.pageSize, svc.albumPageSize)
		}
		if svc.retry.MaxAttempts != 3 {
			t.Errorf("expected 3 attempts, got %d", svc.retry.MaxAttempts)
		}
		if svc.Name() != "Google Photos" {
			t.Errorf("unexpected name %s", svc.Name())
		}
	})

	t.Run("Clamps Page Sizes", func(t *testing.T) {
		svc := NewPhotosService(nil, PhotosOpts{PageSize: 500, AlbumPageSize: 75, BaseURL: "http://x/v1/"})
		if svc.pageSize != 100 || svc.albumPageSize != 50 {
			t.Errorf("expected clamped page sizes, got %d/%d", svc.pageSize, svc.albumPageSize)
		}
		if svc.baseURL != "http://x/v1" {
			t.Errorf("expected trailing slash trimmed, got %s", svc.baseURL)
		}
	})
}

func TestListAlbums(t *testing.T) {
	t.Run("Pages Until Exhausted", func(t *testing.T) {
		var calls atomic.Int32
		svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			if r.URL.Path != "/albums" {
				t.Errorf("expected path /albums, got %s", r.URL.Path)
			}
			if r.Method != http.MethodGet {
				t.Errorf("expected GET, got %s", r.Method)
			}
			if r.URL.Query().Get("pageSize") != "50" {
				t.Errorf("expected pageSize 50, got %s", r.URL.Query().Get("pageSize"))
			}

			switch r.URL.Query().Get("pageToken") {
			case "":
				writeJSON(t, w, map[string]any{
					"albums": []map[string]any{
						{"id": "a1", "title": "Beach", "mediaItemsCount": "12", "coverPhotoMediaItemId": "i1"},
						{"id": "", "title": "broken"},
					},
					"nextPageToken": "p2",
				})
			case "p2":
				writeJSON(t, w, map[string]any{
					"albums": []map[string]any{{"id": "a2", "title": "Alps"}},
				})
			default:
				t.Errorf("unexpected page token %q", r.URL.Query().Get("pageToken"))
			}
		})

		var albums []models.Album
		for album, err := range svc.ListAlbums(context.Background()) {
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			albums = append(albums, album)
		}

		if len(albums) != 2 {
			t.Fatalf("expected 2 albums, got %d", len(albums))
		}
		if albums[0].ItemCount == nil || *albums[0].ItemCount != 12 || albums[0].CoverItemID != "i1" {
			t.Errorf("unexpected first album %+v", albums[0])
		}
		if albums[1].ItemCount != nil {
			t.Errorf("expected nil item count for missing field, got %v", *albums[1].ItemCount)
		}
		if calls.Load() != 2 {
			t.Errorf("expected 2 requests, got %d", calls.Load())
		}
	})

	t.Run("Restartable", func(t *testing.T) {
		var calls atomic.Int32
		svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			writeJSON(t, w, map[string]any{"albums": []map[string]any{{"id": "a1", "title": "One"}}})
		})

		seq := svc.ListAlbums(context.Background())
		for range 2 {
			n := 0
			for _, err := range seq {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				n++
			}
			if n != 1 {
				t.Errorf("expected 1 album per pass, got %d", n)
			}
		}
		if calls.Load() != 2 {
			t.Errorf("each pass should fetch from the first page, got %d requests", calls.Load())
		}
	})

	t.Run("Early Break Stops Paging", func(t *testing.T) {
		var calls atomic.Int32
		svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			writeJSON(t, w, map[string]any{
				"albums":        []map[string]any{{"id": "a1", "title": "One"}, {"id": "a2", "title": "Two"}},
				"nextPageToken": "more",
			})
		})

		for range svc.ListAlbums(context.Background()) {
			break
		}
		if calls.Load() != 1 {
			t.Errorf("expected a single request, got %d", calls.Load())
		}
	})

	t.Run("Permanent Error Yields Once", func(t *testing.T) {
		svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			writeJSON(t, w, map[string]any{"error": map[string]any{"code": 403, "message": "denied", "status": "PERMISSION_DENIED"}})
		})

		var errs int
		for _, err := range svc.ListAlbums(context.Background()) {
			if err == nil {
				t.Fatal("expected only an error")
			}
			errs++
			var apiErr *APIError
			if !errors.As(err, &apiErr) || apiErr.StatusCode != 403 || apiErr.Status != "PERMISSION_DENIED" {
				t.Errorf("expected decoded 403, got %v", err)
			}
		}
		if errs != 1 {
			t.Errorf("expected one error, got %d", errs)
		}
	})
}

func TestListItemsInRange(t *testing.T) {
	rng := models.DateRange{Start: models.Date{Year: 2010, Month: 1, Day: 1}, End: models.Date{Year: 2016, Month: 1, Day: 2}}

	t.Run("Sends Date Filter And Cursor", func(t *testing.T) {
		svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost || r.URL.Path != "/mediaItems:search" {
				t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			}
			if r.Header.Get("Content-Type") != "application/json" {
				t.Errorf("expected JSON content type, got %s", r.Header.Get("Content-Type"))
			}

			var body searchRequest
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode body: %v", err)
			}
			if body.PageSize != 100 || body.PageToken != "cursor-1" || body.AlbumID != "" {
				t.Errorf("unexpected body %+v", body)
			}
			got := body.Filters.DateFilter.Ranges[0]
			if got.StartDate != (searchDate{2010, 1, 1}) || got.EndDate != (searchDate{2016, 1, 2}) {
				t.Errorf("unexpected range %+v", got)
			}

			writeJSON(t, w, map[string]any{
				"mediaItems": []map[string]any{
					mediaItem("i1", "IMG_1.JPG", "2012-08-14T09:30:00+02:00"),
					{"id": "i2", "filename": "../escape.jpg", "baseUrl": "https://x"},
				},
				"nextPageToken": "cursor-2",
			})
		})

		page, err := svc.ListItemsInRange(context.Background(), rng, "cursor-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if page.NextCursor != "cursor-2" || page.Last() {
			t.Errorf("expected next cursor, got %q", page.NextCursor)
		}
		if len(page.Items) != 1 || page.Dropped != 1 {
			t.Fatalf("expected 1 item and 1 dropped, got %d/%d", len(page.Items), page.Dropped)
		}

		item := page.Items[0]
		want := time.Date(2012, 8, 14, 7, 30, 0, 0, time.UTC)
		if item.CaptureTime == nil || !item.CaptureTime.Equal(want) || item.CaptureTime.Location() != time.UTC {
			t.Errorf("expected capture time normalised to %v, got %v", want, item.CaptureTime)
		}
		if *item.Width != 4032 || *item.ISO != 200 || *item.Aperture != 1.8 || item.CameraMake != "Canon" {
			t.Errorf("unexpected metadata %+v", item.Metadata)
		}
	})

	t.Run("Last Page", func(t *testing.T) {
		svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(t, w, map[string]any{})
		})

		page, err := svc.ListItemsInRange(context.Background(), rng, "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !page.Last() || len(page.Items) != 0 {
			t.Errorf("expected empty last page, got %+v", page)
		}
	})

	t.Run("Inverted Range", func(t *testing.T) {
		svc := NewPhotosService(nil, PhotosOpts{})
		_, err := svc.ListItemsInRange(context.Background(), models.DateRange{Start: rng.End, End: rng.Start}, "")
		if !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("Retries Server Errors", func(t *testing.T) {
		var calls atomic.Int32
		svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			writeJSON(t, w, map[string]any{"mediaItems": []map[string]any{mediaItem("i1", "a.jpg", "")}})
		})

		page, err := svc.ListItemsInRange(context.Background(), rng, "")
		if err != nil {
			t.Fatalf("expected success on third attempt, got %v", err)
		}
		if calls.Load() != 3 || len(page.Items) != 1 {
			t.Errorf("expected 3 calls and 1 item, got %d and %d", calls.Load(), len(page.Items))
		}
		if page.Items[0].CaptureTime != nil {
			t.Error("missing creation time should leave capture time nil")
		}
	})

	t.Run("Gives Up After Three Attempts", func(t *testing.T) {
		var calls atomic.Int32
		svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadGateway)
		})

		_, err := svc.ListItemsInRange(context.Background(), rng, "")
		if !errors.Is(err, shared.ErrTransient) {
			t.Errorf("expected transient error, got %v", err)
		}
		if calls.Load() != 3 {
			t.Errorf("expected 3 attempts, got %d", calls.Load())
		}
	})

	t.Run("Does Not Retry Client Errors", func(t *testing.T) {
		var calls atomic.Int32
		svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadRequest)
			writeJSON(t, w, map[string]any{"error": map[string]any{"code": 400, "message": "bad token", "status": "INVALID_ARGUMENT"}})
		})

		_, err := svc.ListItemsInRange(context.Background(), rng, "stale")
		if !errors.Is(err, shared.ErrPermanent) {
			t.Errorf("expected permanent error, got %v", err)
		}
		if calls.Load() != 1 {
			t.Errorf("expected a single attempt, got %d", calls.Load())
		}
	})

	t.Run("Malformed Body", func(t *testing.T) {
		var calls atomic.Int32
		svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.Write([]byte("{not json"))
		})

		_, err := svc.ListItemsInRange(context.Background(), rng, "")
		if !errors.Is(err, shared.ErrMalformedResponse) {
			t.Errorf("expected ErrMalformedResponse, got %v", err)
		}
		if calls.Load() != 1 {
			t.Errorf("malformed responses should not be retried, got %d calls", calls.Load())
		}
	})

	t.Run("Repeated Cursor", func(t *testing.T) {
		svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(t, w, map[string]any{"nextPageToken": "same"})
		})

		if _, err := svc.ListItemsInRange(context.Background(), rng, "same"); !errors.Is(err, shared.ErrMalformedResponse) {
			t.Errorf("expected ErrMalformedResponse, got %v", err)
		}
	})

	t.Run("Network Failure Is Retried", func(t *testing.T) {
		rt := tu.NewMockRoundTripper(nil, errors.New("connection reset"))
		svc := NewPhotosService(&http.Client{Transport: rt}, PhotosOpts{BaseURL: "http://example.com", Retry: fastRetry()})

		_, err := svc.ListItemsInRange(context.Background(), rng, "")
		if err == nil || !strings.Contains(err.Error(), "request failed") {
			t.Errorf("expected request failure, got %v", err)
		}
		if rt.Calls != 3 {
			t.Errorf("expected 3 attempts, got %d", rt.Calls)
		}
	})

	t.Run("Canceled Context", func(t *testing.T) {
		var calls atomic.Int32
		svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
		})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if _, err := svc.ListItemsInRange(ctx, rng, ""); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if calls.Load() != 0 {
			t.Errorf("no request should be sent, got %d", calls.Load())
		}
	})
}

func TestListAlbumItems(t *testing.T) {
	t.Run("Skips Repeated Boundary Item", func(t *testing.T) {
		svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
			var body searchRequest
			json.NewDecoder(r.Body).Decode(&body)
			if body.AlbumID != "a1" || body.Filters != nil {
				t.Errorf("album search must not carry filters: %+v", body)
			}

			switch body.PageToken {
			case "":
				writeJSON(t, w, map[string]any{
					"mediaItems":    []map[string]any{mediaItem("i1", "1.jpg", ""), mediaItem("i2", "2.jpg", "")},
					"nextPageToken": "p2",
				})
			case "p2":
				writeJSON(t, w, map[string]any{
					"mediaItems": []map[string]any{mediaItem("i2", "2.jpg", ""), mediaItem("i3", "3.jpg", "")},
				})
			}
		})

		var ids []string
		for item, err := range svc.ListAlbumItems(context.Background(), "a1") {
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			ids = append(ids, item.ID)
		}

		if strings.Join(ids, ",") != "i1,i2,i3" {
			t.Errorf("expected i1,i2,i3, got %v", ids)
		}
	})

	t.Run("Missing Album ID", func(t *testing.T) {
		svc := NewPhotosService(nil, PhotosOpts{})
		for _, err := range svc.ListAlbumItems(context.Background(), "") {
			if !errors.Is(err, shared.ErrMissingArgument) {
				t.Errorf("expected ErrMissingArgument, got %v", err)
			}
		}
	})
}

func TestFetchContent(t *testing.T) {
	t.Run("Image Uses Download Suffix", func(t *testing.T) {
		var path string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path = r.URL.Path
			w.Write(tu.JPEG)
		}))
		defer server.Close()

		svc := NewPhotosService(server.Client(), PhotosOpts{Retry: fastRetry()})
		item := tu.Photo("i1", "a.jpg", time.Time{})
		item.BaseURL = server.URL + "/base"

		data, err := svc.FetchContent(context.Background(), item)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if path != "/base=d" {
			t.Errorf("expected /base=d, got %s", path)
		}
		if len(data) != len(tu.JPEG) {
			t.Errorf("expected %d bytes, got %d", len(tu.JPEG), len(data))
		}
	})

	t.Run("Video Uses Video Suffix", func(t *testing.T) {
		var path string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path = r.URL.Path
			w.Write([]byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'm', 'p', '4', '2'})
		}))
		defer server.Close()

		svc := NewPhotosService(server.Client(), PhotosOpts{Retry: fastRetry()})
		item := tu.Photo("v1", "clip.mp4", time.Time{})
		item.BaseURL = server.URL + "/base"
		item.MimeType = "video/mp4"

		if _, err := svc.FetchContent(context.Background(), item); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if path != "/base=dv" {
			t.Errorf("expected /base=dv, got %s", path)
		}
	})

	t.Run("HTML Error Page", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<!DOCTYPE html><html><body>quota exceeded</body></html>"))
		}))
		defer server.Close()

		svc := NewPhotosService(server.Client(), PhotosOpts{Retry: fastRetry()})
		item := tu.Photo("i1", "a.jpg", time.Time{})
		item.BaseURL = server.URL + "/base"

		if _, err := svc.FetchContent(context.Background(), item); !errors.Is(err, shared.ErrMalformedResponse) {
			t.Errorf("expected ErrMalformedResponse, got %v", err)
		}
	})

	t.Run("Expired URL", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.Header().Set("Content-Type", "image/png")
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		svc := NewPhotosService(server.Client(), PhotosOpts{Retry: fastRetry()})
		item := tu.Photo("i1", "a.jpg", time.Time{})
		item.BaseURL = server.URL + "/base"

		_, err := svc.FetchContent(context.Background(), item)
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.Message != "image not found or broken" {
			t.Errorf("expected placeholder image error, got %v", err)
		}
		if calls.Load() != 1 {
			t.Errorf("404 should not be retried, got %d calls", calls.Load())
		}
	})

	t.Run("Failed Body Read", func(t *testing.T) {
		client := &http.Client{
			Transport: tu.NewMockRoundTripper(&http.Response{
				StatusCode: http.StatusOK,
				Body:       &tu.FCloser{},
				Header:     http.Header{},
			}, nil),
		}

		svc := NewPhotosService(client, PhotosOpts{Retry: fastRetry()})
		_, err := svc.FetchContent(context.Background(), tu.Photo("i1", "a.jpg", time.Time{}))
		if err == nil || !strings.Contains(err.Error(), "failed to read content") {
			t.Errorf("expected read failure, got %v", err)
		}
	})

	t.Run("Missing Base URL", func(t *testing.T) {
		svc := NewPhotosService(nil, PhotosOpts{})
		if _, err := svc.FetchContent(context.Background(), models.MediaItem{ID: "x", Filename: "x.jpg"}); !errors.Is(err, shared.ErrInvalidItem) {
			t.Errorf("expected ErrInvalidItem, got %v", err)
		}
	})

	t.Run("In Flight Request Survives Cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cancel()
			time.Sleep(10 * time.Millisecond)
			io.WriteString(w, string(tu.JPEG))
		}))
		defer server.Close()

		svc := NewPhotosService(server.Client(), PhotosOpts{Retry: fastRetry()})
		item := tu.Photo("i1", "a.jpg", time.Time{})
		item.BaseURL = server.URL + "/base"

		if _, err := svc.FetchContent(ctx, item); err != nil {
			t.Errorf("request that started before cancellation should complete, got %v", err)
		}
	})
}
