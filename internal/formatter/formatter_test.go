package formatter

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/gphotos-backup/internal/models"
	"github.com/desertthunder/gphotos-backup/internal/shared"
	tu "github.com/desertthunder/gphotos-backup/internal/testing"
)

func sampleRecords() []models.RecordAlbums {
	dated := tu.Record("item1", "IMG_0001.JPG", time.Date(2012, time.August, 14, 9, 30, 0, 0, time.UTC))
	dated.CameraMake = "Apple"
	dated.CameraModel = "iPhone 4S"
	iso := 50
	dated.ISO = &iso

	undated := tu.Record("item2", "scan, old.png", time.Time{})

	return []models.RecordAlbums{
		{Record: dated, AlbumTitles: []string{"Alps", "Best of"}},
		{Record: undated},
	}
}

func sampleAlbums() ([]models.Album, map[string]int) {
	count := 12
	return []models.Album{
			{ID: "A1", Title: "Alps", ItemCount: &count, CoverItemID: "item1"},
			{ID: "A2", Title: "Beach, 2012"},
		},
		map[string]int{"A1": 3}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"csv", CSV, false},
		{"JSON", JSON, false},
		{"txt", Text, false},
		{"text", Text, false},
		{"markdown", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				if !errors.Is(err, shared.ErrInvalidFlag) {
					t.Errorf("expected ErrInvalidFlag, got %v", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
			}
		})
	}
}

func TestRecordExporters(t *testing.T) {
	t.Run("CSV", func(t *testing.T) {
		data, err := RecordsToCSV(sampleRecords())
		if err != nil {
			t.Fatalf("RecordsToCSV failed: %v", err)
		}

		rows, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
		if err != nil {
			t.Fatalf("output is not valid CSV: %v", err)
		}
		if len(rows) != 3 {
			t.Fatalf("expected header and 2 rows, got %d", len(rows))
		}
		if strings.Join(rows[0][:3], ",") != "item_id,filename,bucket" {
			t.Errorf("unexpected headers %v", rows[0])
		}

		first := rows[1]
		if first[2] != "2012-08" || first[3] != "2012-08-14T09:30:00Z" || first[11] != "50" {
			t.Errorf("unexpected first row %v", first)
		}
		if first[len(first)-1] != "Alps; Best of" {
			t.Errorf("unexpected albums column %q", first[len(first)-1])
		}

		second := rows[2]
		if second[1] != "scan, old.png" || second[2] != models.UnknownDateBucket || second[3] != "" {
			t.Errorf("unexpected second row %v", second)
		}
	})

	t.Run("JSON", func(t *testing.T) {
		data, err := RecordsToJSON(sampleRecords())
		if err != nil {
			t.Fatalf("RecordsToJSON failed: %v", err)
		}

		var out []map[string]any
		if err := json.Unmarshal(data, &out); err != nil {
			t.Fatalf("output is not valid JSON: %v", err)
		}
		if len(out) != 2 {
			t.Fatalf("expected 2 records, got %d", len(out))
		}
		if out[0]["camera_model"] != "iPhone 4S" || out[0]["bucket"] != "2012-08" {
			t.Errorf("unexpected first record %v", out[0])
		}
		if _, ok := out[1]["capture_time"]; ok {
			t.Error("absent capture time should be omitted")
		}
		if albums, ok := out[1]["albums"].([]any); !ok || len(albums) != 0 {
			t.Errorf("albums should be an empty array, got %v", out[1]["albums"])
		}
	})

	t.Run("Text", func(t *testing.T) {
		data, err := RecordsToText(sampleRecords())
		if err != nil {
			t.Fatalf("RecordsToText failed: %v", err)
		}

		output := string(data)
		for _, want := range []string{"Records: 2", "1. 2012-08/IMG_0001.JPG [Apple iPhone 4S] (Alps, Best of)", "2. Unknown_Date/scan, old.png"} {
			if !strings.Contains(output, want) {
				t.Errorf("text output missing %q:\n%s", want, output)
			}
		}
	})

	t.Run("Dispatch", func(t *testing.T) {
		if _, err := Records("xml", nil); !errors.Is(err, shared.ErrInvalidFlag) {
			t.Errorf("expected ErrInvalidFlag, got %v", err)
		}
		data, err := Records(JSON, nil)
		if err != nil || strings.TrimSpace(string(data)) != "[]" {
			t.Errorf("empty export should be an empty array, got %q (%v)", data, err)
		}
	})
}

func TestAlbumExporters(t *testing.T) {
	albums, counts := sampleAlbums()

	t.Run("CSV", func(t *testing.T) {
		data, err := AlbumsToCSV(albums, counts)
		if err != nil {
			t.Fatalf("AlbumsToCSV failed: %v", err)
		}

		rows, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
		if err != nil {
			t.Fatalf("output is not valid CSV: %v", err)
		}
		if strings.Join(rows[1], ",") != "A1,Alps,12,3,item1" {
			t.Errorf("unexpected row %v", rows[1])
		}
		if rows[2][1] != "Beach, 2012" || rows[2][2] != "" || rows[2][3] != "0" {
			t.Errorf("unexpected row %v", rows[2])
		}
	})

	t.Run("JSON", func(t *testing.T) {
		data, err := Albums(JSON, albums, counts)
		if err != nil {
			t.Fatalf("Albums failed: %v", err)
		}

		var out []albumJSON
		if err := json.Unmarshal(data, &out); err != nil {
			t.Fatalf("output is not valid JSON: %v", err)
		}
		if out[0].Stored != 3 || *out[0].ItemCount != 12 || out[1].ItemCount != nil {
			t.Errorf("unexpected albums %+v", out)
		}
	})

	t.Run("Text", func(t *testing.T) {
		data, err := AlbumsToText(albums, counts)
		if err != nil {
			t.Fatalf("AlbumsToText failed: %v", err)
		}
		output := string(data)
		if !strings.Contains(output, "1. Alps (3/12 backed up)") || !strings.Contains(output, "2. Beach, 2012 (0/? backed up)") {
			t.Errorf("unexpected text output:\n%s", output)
		}
	})
}
