package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/gphotos-backup/internal/models"
	"github.com/desertthunder/gphotos-backup/internal/services"
	"github.com/desertthunder/gphotos-backup/internal/shared"
	tu "github.com/desertthunder/gphotos-backup/internal/testing"
)

var aug2012 = time.Date(2012, time.August, 14, 9, 30, 0, 0, time.UTC)

// stubCatalog serves a single page and one album containing the first item.
type stubCatalog struct {
	items []models.MediaItem
}

func (s *stubCatalog) ListAlbums(ctx context.Context) iter.Seq2[models.Album, error] {
	return func(yield func(models.Album, error) bool) {
		yield(models.Album{ID: "album-1", Title: "Trip"}, nil)
	}
}

func (s *stubCatalog) ListAlbumItems(ctx context.Context, albumID string) iter.Seq2[models.MediaItem, error] {
	return func(yield func(models.MediaItem, error) bool) {
		if len(s.items) > 0 {
			yield(s.items[0], nil)
		}
	}
}

func (s *stubCatalog) ListItemsInRange(ctx context.Context, rng models.DateRange, cursor string) (*services.ItemPage, error) {
	return &services.ItemPage{Items: s.items}, nil
}

func (s *stubCatalog) FetchContent(ctx context.Context, item models.MediaItem) ([]byte, error) {
	return append(append([]byte{}, tu.JPEG...), item.ID...), nil
}

type testEnv struct {
	runner *Runner
	config *shared.Config
	output *bytes.Buffer
	dir    string
}

func newTestEnv(t *testing.T, catalog services.Catalog) *testEnv {
	t.Helper()
	root := t.TempDir()

	config := shared.DefaultConfig()
	config.Database.Path = filepath.Join(root, "ledger.db")
	config.Backup.Directory = filepath.Join(root, "backup")
	config.Credentials.Google.TokenPath = filepath.Join(root, "token.json")

	output := &bytes.Buffer{}
	runner := NewRunner(RunnerOpts{
		Config: config,
		Logger: log.New(io.Discard),
		Output: output,
		NewCatalog: func(ctx context.Context, config *shared.Config, logger *log.Logger) (services.Catalog, error) {
			if catalog == nil {
				return nil, shared.ErrNotAuthenticated
			}
			return catalog, nil
		},
	})

	return &testEnv{runner: runner, config: config, output: output, dir: config.Backup.Directory}
}

func (env *testEnv) run(ctx context.Context, args ...string) error {
	env.output.Reset()
	return newApp(env.runner).Run(ctx, append([]string{"gpb"}, args...))
}

func twoPhotos() *stubCatalog {
	return &stubCatalog{items: []models.MediaItem{
		tu.Photo("item-a", "a.jpg", aug2012),
		tu.Photo("item-b", "b.jpg", time.Time{}),
	}}
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}

			runner := NewRunner(RunnerOpts{
				Config:     config,
				ConfigPath: "/test/path/config.toml",
				Logger:     logger,
				Output:     output,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.configPath != "/test/path/config.toml" {
				t.Errorf("expected configPath to be set, got %s", runner.configPath)
			}
		})

		t.Run("with nil options uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
			if runner.openLedger == nil || runner.newCatalog == nil {
				t.Error("expected default ledger opener and catalog factory")
			}
			if runner.config != nil {
				t.Error("config should be loaded lazily")
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("writes compact JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, false); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			expected := `{"key":"value"}` + "\n"
			if result := output.String(); result != expected {
				t.Errorf("expected %q, got %q", expected, result)
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

			err := runner.writeJSON(make(chan int), false)
			if err == nil || !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})

		t.Run("handles newline write failure", func(t *testing.T) {
			limitedWriter := tu.NewLimitedWriter(1, 0, &bytes.Buffer{})
			runner := NewRunner(RunnerOpts{Output: &limitedWriter})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write newline") {
				t.Errorf("expected newline write error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		t.Run("writes plain text successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writePlain("hello %s", "world"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if result := output.String(); result != "hello world" {
				t.Errorf("expected 'hello world', got %q", result)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writePlain("test")
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		commands := NewRunner(RunnerOpts{}).register()

		var names []string
		for i, cmd := range commands {
			if cmd == nil {
				t.Fatalf("command at index %d is nil", i)
			}
			names = append(names, cmd.Name)
		}

		want := "setup auth sync organize verify albums status ledger export"
		if got := strings.Join(names, " "); got != want {
			t.Errorf("commands = %q, want %q", got, want)
		}
	})

	t.Run("dateRange", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{Config: shared.DefaultConfig()})

		t.Run("uses configured range", func(t *testing.T) {
			rng, err := runner.dateRange("", "")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rng.String() != "2010-01-01..2016-01-02" {
				t.Errorf("unexpected range %s", rng)
			}
		})

		t.Run("flags override config", func(t *testing.T) {
			rng, err := runner.dateRange("2012-08-01", "2012-08-31")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rng.String() != "2012-08-01..2012-08-31" {
				t.Errorf("unexpected range %s", rng)
			}
		})

		t.Run("rejects inverted and malformed ranges", func(t *testing.T) {
			for _, tc := range [][2]string{{"2013-01-01", "2012-01-01"}, {"2012/01/01", ""}, {"", "soon"}} {
				if _, err := runner.dateRange(tc[0], tc[1]); !errors.Is(err, shared.ErrInvalidFlag) {
					t.Errorf("dateRange(%q, %q) = %v, want ErrInvalidFlag", tc[0], tc[1], err)
				}
			}
		})
	})
}

func TestLoadConfig(t *testing.T) {
	t.Run("missing file uses defaults", func(t *testing.T) {
		config, err := loadConfig(filepath.Join(t.TempDir(), "missing.toml"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if config.API.MaxAttempts != 3 {
			t.Errorf("expected default config, got %+v", config.API)
		}
	})

	t.Run("invalid file is an error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		if err := os.WriteFile(path, []byte("[backup\ndirectory = "), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := loadConfig(path); !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("Before reads the --config flag", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		if err := shared.CreateConfigFile(path); err != nil {
			t.Fatal(err)
		}

		runner := NewRunner(RunnerOpts{Logger: log.New(io.Discard), Output: &bytes.Buffer{}})
		app := newApp(runner)
		app.Commands = nil
		ran := false
		app.Action = func(context.Context, *cli.Command) error {
			ran = true
			return nil
		}
		var out bytes.Buffer
		app.Writer = &out

		if err := app.Run(context.Background(), []string{"gpb", "--config", path, "--verbose"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !ran || strings.Contains(out.String(), "version") {
			t.Errorf("--verbose should run the command, not print the version: %q", out.String())
		}
		if runner.configPath != path || runner.config == nil {
			t.Errorf("config not loaded from %s", path)
		}
		if runner.logger.GetLevel() != log.DebugLevel {
			t.Errorf("--verbose should enable debug logging, got %v", runner.logger.GetLevel())
		}
	})
}

func TestExitCode(t *testing.T) {
	logger := log.New(io.Discard)

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, 0},
		{"interrupted", errors.Join(errors.New("sync stopped"), shared.ErrInterrupted), exitInterrupted},
		{"failure", shared.ErrPageFailed, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err, logger); got != tt.want {
				t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestCommands(t *testing.T) {
	ctx := context.Background()

	t.Run("setup database", func(t *testing.T) {
		env := newTestEnv(t, nil)
		if err := env.run(ctx, "setup", "database"); err != nil {
			t.Fatalf("setup failed: %v", err)
		}
		if !strings.Contains(env.output.String(), "Ledger ready") {
			t.Errorf("unexpected output %q", env.output.String())
		}
		tu.AssertFileExists(t, env.config.Database.Path)
	})

	t.Run("sync downloads, organizes and records the run", func(t *testing.T) {
		env := newTestEnv(t, twoPhotos())

		if err := env.run(ctx, "sync"); err != nil {
			t.Fatalf("sync failed: %v", err)
		}

		out := env.output.String()
		for _, want := range []string{"Sync Completed", "Downloaded:      2", "Moved:          2"} {
			if !strings.Contains(out, want) {
				t.Errorf("output missing %q:\n%s", want, out)
			}
		}

		tu.AssertFileExists(t, filepath.Join(env.dir, "2012-08", "a.jpg"))
		tu.AssertFileExists(t, filepath.Join(env.dir, models.UnknownDateBucket, "b.jpg"))
		target, err := os.Readlink(filepath.Join(env.dir, "Albums", "Trip", "a.jpg"))
		if err != nil || target != filepath.Join("..", "..", "2012-08", "a.jpg") {
			t.Errorf("unexpected album link %q (%v)", target, err)
		}

		if err := env.run(ctx, "status", "--json"); err != nil {
			t.Fatalf("status failed: %v", err)
		}
		var status statusView
		if err := json.Unmarshal(env.output.Bytes(), &status); err != nil {
			t.Fatalf("status output is not JSON: %v\n%s", err, env.output.String())
		}
		if status.Records != 2 || status.Albums != 1 || status.Memberships != 1 || status.Cursor != "" {
			t.Errorf("unexpected status %+v", status)
		}
		if len(status.Runs) != 1 || status.Runs[0].Status != string(models.RunCompleted) || status.Runs[0].Downloaded != 2 {
			t.Errorf("unexpected runs %+v", status.Runs)
		}
	})

	t.Run("second sync skips recorded items", func(t *testing.T) {
		env := newTestEnv(t, twoPhotos())

		if err := env.run(ctx, "sync", "--no-organize"); err != nil {
			t.Fatalf("first sync failed: %v", err)
		}
		tu.AssertFileExists(t, filepath.Join(env.dir, "a.jpg"))

		if err := env.run(ctx, "sync", "--no-organize"); err != nil {
			t.Fatalf("second sync failed: %v", err)
		}
		if out := env.output.String(); !strings.Contains(out, "Skipped:         2") || strings.Contains(out, "Organize") {
			t.Errorf("unexpected output:\n%s", out)
		}
	})

	t.Run("sync flag overrides backup directory", func(t *testing.T) {
		env := newTestEnv(t, twoPhotos())
		dir := filepath.Join(t.TempDir(), "elsewhere")

		if err := env.run(ctx, "sync", "--dir", dir, "--no-organize"); err != nil {
			t.Fatalf("sync failed: %v", err)
		}
		tu.AssertFileExists(t, filepath.Join(dir, "a.jpg"))
	})

	t.Run("cancelled sync is interrupted", func(t *testing.T) {
		env := newTestEnv(t, twoPhotos())
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		err := env.run(cancelled, "sync", "--no-organize")
		if !errors.Is(err, shared.ErrInterrupted) {
			t.Fatalf("expected ErrInterrupted, got %v", err)
		}
		if exitCode(err, log.New(io.Discard)) != exitInterrupted {
			t.Error("interrupted sync should exit 130")
		}
	})

	t.Run("sync without credentials fails", func(t *testing.T) {
		env := newTestEnv(t, nil)
		if err := env.run(ctx, "sync"); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
	})

	t.Run("sync refuses to run while locked", func(t *testing.T) {
		env := newTestEnv(t, twoPhotos())
		lock, err := shared.AcquireLock(env.config.LockPath())
		if err != nil {
			t.Fatal(err)
		}
		defer lock.Release()

		if err := env.run(ctx, "sync"); !errors.Is(err, shared.ErrLocked) {
			t.Errorf("expected ErrLocked, got %v", err)
		}
	})

	t.Run("organize and verify an existing backup", func(t *testing.T) {
		env := newTestEnv(t, twoPhotos())
		if err := env.run(ctx, "sync", "--no-organize"); err != nil {
			t.Fatalf("sync failed: %v", err)
		}

		if err := env.run(ctx, "organize"); err != nil {
			t.Fatalf("organize failed: %v", err)
		}
		tu.AssertFileExists(t, filepath.Join(env.dir, "2012-08", "a.jpg"))

		if err := env.run(ctx, "verify"); err != nil {
			t.Fatalf("verify failed: %v\n%s", err, env.output.String())
		}
		if !strings.Contains(env.output.String(), "All files present") {
			t.Errorf("unexpected output:\n%s", env.output.String())
		}

		if err := os.Remove(filepath.Join(env.dir, "2012-08", "a.jpg")); err != nil {
			t.Fatal(err)
		}
		if err := env.run(ctx, "verify"); err == nil {
			t.Error("verify should fail when a file is missing")
		}
		if !strings.Contains(env.output.String(), "missing") {
			t.Errorf("missing file not reported:\n%s", env.output.String())
		}
	})

	t.Run("export records and albums", func(t *testing.T) {
		env := newTestEnv(t, twoPhotos())
		if err := env.run(ctx, "sync"); err != nil {
			t.Fatalf("sync failed: %v", err)
		}

		path := filepath.Join(t.TempDir(), "records.csv")
		if err := env.run(ctx, "export", "records", "--format", "csv", "--output", path); err != nil {
			t.Fatalf("export failed: %v", err)
		}
		data := tu.MustReadFile(t, path)
		if !strings.Contains(data, "item-a,a.jpg,2012-08") || !strings.Contains(data, "Trip") {
			t.Errorf("unexpected export:\n%s", data)
		}

		if err := env.run(ctx, "export", "albums", "--format", "txt"); err != nil {
			t.Fatalf("export failed: %v", err)
		}
		if !strings.Contains(env.output.String(), "1. Trip (1/? backed up)") {
			t.Errorf("unexpected export:\n%s", env.output.String())
		}

		if err := env.run(ctx, "export", "records", "--format", "yaml"); !errors.Is(err, shared.ErrInvalidFlag) {
			t.Errorf("expected ErrInvalidFlag, got %v", err)
		}
	})

	t.Run("albums list", func(t *testing.T) {
		env := newTestEnv(t, twoPhotos())
		if err := env.run(ctx, "sync", "--no-organize"); err != nil {
			t.Fatalf("sync failed: %v", err)
		}

		if err := env.run(ctx, "albums", "list", "--json"); err != nil {
			t.Fatalf("albums list failed: %v", err)
		}
		var albums []map[string]any
		if err := json.Unmarshal(env.output.Bytes(), &albums); err != nil {
			t.Fatalf("output is not JSON: %v", err)
		}
		if len(albums) != 1 || albums[0]["title"] != "Trip" || albums[0]["stored"] != float64(1) {
			t.Errorf("unexpected albums %v", albums)
		}
	})

	t.Run("ledger reset-cursor", func(t *testing.T) {
		env := newTestEnv(t, nil)
		if err := env.run(ctx, "ledger", "reset-cursor"); err != nil {
			t.Fatalf("reset-cursor failed: %v", err)
		}
		if !strings.Contains(env.output.String(), "No cursor saved") {
			t.Errorf("unexpected output %q", env.output.String())
		}

		ledger, err := openLedger(env.config)
		if err != nil {
			t.Fatal(err)
		}
		if err := ledger.State.SetCursor("page-2", models.DateRange{Start: models.Date{Year: 2020, Month: 1, Day: 1}, End: models.Date{Year: 2020, Month: 12, Day: 31}}); err != nil {
			t.Fatal(err)
		}
		ledger.Close()

		if err := env.run(ctx, "ledger", "reset-cursor"); err != nil {
			t.Fatalf("reset-cursor failed: %v", err)
		}
		if !strings.Contains(env.output.String(), "Cursor cleared") {
			t.Errorf("unexpected output %q", env.output.String())
		}
	})

	t.Run("auth status without token", func(t *testing.T) {
		env := newTestEnv(t, nil)
		if err := env.run(ctx, "auth", "status"); err != nil {
			t.Fatalf("auth status failed: %v", err)
		}
		if !strings.Contains(env.output.String(), "Not authenticated") {
			t.Errorf("unexpected output %q", env.output.String())
		}
	})
}
