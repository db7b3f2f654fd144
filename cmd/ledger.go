package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/gphotos-backup/internal/formatter"
	"github.com/desertthunder/gphotos-backup/internal/models"
	"github.com/desertthunder/gphotos-backup/internal/repositories"
	"github.com/desertthunder/gphotos-backup/internal/shared"
	"github.com/desertthunder/gphotos-backup/internal/tasks"
)

// statusView is the JSON shape of `gpb status --json`.
type statusView struct {
	Database    string    `json:"database"`
	Records     int       `json:"records"`
	Albums      int       `json:"albums"`
	Memberships int       `json:"memberships"`
	Cursor      string    `json:"cursor,omitempty"`
	Runs        []runView `json:"runs"`
}

type runView struct {
	ID         string  `json:"id"`
	Status     string  `json:"status"`
	Range      string  `json:"range"`
	StartedAt  string  `json:"started_at"`
	Duration   string  `json:"duration,omitempty"`
	Pages      int     `json:"pages"`
	Downloaded int     `json:"downloaded"`
	Skipped    int     `json:"skipped"`
	Failed     int     `json:"failed"`
	Bytes      int64   `json:"bytes"`
	Error      *string `json:"error,omitempty"`
}

func newRunView(run models.SyncRun) runView {
	v := runView{
		ID:         run.ID,
		Status:     string(run.Status),
		Range:      run.Range.String(),
		StartedAt:  run.StartedAt.UTC().Format(time.RFC3339),
		Pages:      run.Pages,
		Downloaded: run.Downloaded,
		Skipped:    run.Skipped,
		Failed:     run.Failed,
		Bytes:      run.Bytes,
	}
	if run.FinishedAt != nil {
		v.Duration = run.Duration().Round(time.Second).String()
	}
	if run.Error != "" {
		v.Error = &run.Error
	}
	return v
}

// Status prints ledger counts, the resume cursor and recent runs.
func (r *Runner) Status(ctx context.Context, cmd *cli.Command) error {
	return r.withLedger(func(ledger *repositories.Ledger) error {
		stats, err := ledger.Stats()
		if err != nil {
			return err
		}
		runs, err := ledger.Runs.List(cmd.Int("runs"))
		if err != nil {
			return err
		}

		if cmd.Bool("json") {
			view := statusView{
				Database:    r.config.Database.Path,
				Records:     stats.Records,
				Albums:      stats.Albums,
				Memberships: stats.Memberships,
				Cursor:      stats.Cursor,
				Runs:        make([]runView, 0, len(runs)),
			}
			for _, run := range runs {
				view.Runs = append(view.Runs, newRunView(run))
			}
			return r.writeJSON(view, true)
		}

		r.writePlainHeader("Ledger")
		r.writePlain("Database:    %s\n", r.config.Database.Path)
		r.writePlain("Records:     %s\n", humanize.Comma(int64(stats.Records)))
		r.writePlain("Albums:      %s (%s memberships)\n", humanize.Comma(int64(stats.Albums)), humanize.Comma(int64(stats.Memberships)))
		if stats.HasCursor {
			r.writePlain("Cursor:      saved, next sync resumes mid-range\n")
		} else {
			r.writePlain("Cursor:      none, next sync starts from the first page\n")
		}

		if len(runs) == 0 {
			r.writePlainln("No sync runs recorded.")
			return nil
		}

		r.writePlainln("Recent runs:")
		for _, run := range runs {
			r.writePlain("  %-11s %s  %s  ↓%d ↷%d ✗%d  %s\n",
				run.Status, humanize.Time(run.StartedAt), run.Range, run.Downloaded, run.Skipped, run.Failed,
				humanize.Bytes(uint64(run.Bytes)))
			if run.Error != "" {
				r.writePlain("              %s\n", run.Error)
			}
		}
		return nil
	})
}

// LedgerResetCursor clears the saved page cursor.
func (r *Runner) LedgerResetCursor(ctx context.Context, cmd *cli.Command) error {
	return r.withLock(func() error {
		return r.withLedger(func(ledger *repositories.Ledger) error {
			if _, ok, err := ledger.State.Cursor(); err != nil {
				return err
			} else if !ok {
				return r.writePlain("No cursor saved\n")
			}

			if err := ledger.State.ClearCursor(); err != nil {
				return err
			}
			r.logger.Info("cleared sync cursor")
			return r.writePlain("✓ Cursor cleared, the next sync starts from the first page\n")
		})
	})
}

func albumsWithCounts(ledger *repositories.Ledger) ([]models.Album, map[string]int, error) {
	albums, err := ledger.Albums.List()
	if err != nil {
		return nil, nil, err
	}
	counts, err := ledger.Albums.MemberCounts()
	if err != nil {
		return nil, nil, err
	}
	return albums, counts, nil
}

// AlbumsList prints the albums recorded by the last album index.
func (r *Runner) AlbumsList(ctx context.Context, cmd *cli.Command) error {
	return r.withLedger(func(ledger *repositories.Ledger) error {
		albums, counts, err := albumsWithCounts(ledger)
		if err != nil {
			return err
		}

		format := formatter.Text
		if cmd.Bool("json") {
			format = formatter.JSON
		}
		data, err := formatter.Albums(format, albums, counts)
		if err != nil {
			return err
		}
		return r.writePlain("%s", data)
	})
}

// ExportRecords writes every download record with its album titles.
func (r *Runner) ExportRecords(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	return r.withLedger(func(ledger *repositories.Ledger) error {
		records, err := ledger.Records.ListWithAlbums()
		if err != nil {
			return err
		}
		data, err := formatter.Records(format, records)
		if err != nil {
			return err
		}
		return r.export(cmd.String("output"), data, len(records), "records")
	})
}

// ExportAlbums writes every album with its backed up item count.
func (r *Runner) ExportAlbums(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	return r.withLedger(func(ledger *repositories.Ledger) error {
		albums, counts, err := albumsWithCounts(ledger)
		if err != nil {
			return err
		}
		data, err := formatter.Albums(format, albums, counts)
		if err != nil {
			return err
		}
		return r.export(cmd.String("output"), data, len(albums), "albums")
	})
}

func (r *Runner) export(path string, data []byte, n int, what string) error {
	if path == "" {
		if _, err := r.output.Write(data); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		return nil
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	r.logger.Info("export written", "path", path, what, n)
	return r.writePlain("✓ Exported %d %s to %s (%s)\n", n, what, path, humanize.Bytes(uint64(len(data))))
}

// Verify checks every record against the backup directory and reports problems.
func (r *Runner) Verify(ctx context.Context, cmd *cli.Command) error {
	fs, err := backupFS(r.backupDir(cmd))
	if err != nil {
		return err
	}

	return r.withLedger(func(ledger *repositories.Ledger) error {
		result, err := tasks.NewVerifier(fs, ledger, r.logger).Verify(ctx, nil, tasks.VerifyOpts{
			Workers:       cmd.Int("workers"),
			RatePerSecond: cmd.Float("rate"),
		})
		if err != nil {
			return err
		}

		r.writePlainHeader("Verify")
		r.writePlain("Checked: %d\n", result.Checked)
		r.writePlain("Present: %d\n", result.Present)
		for _, check := range result.Problems {
			line := fmt.Sprintf("  %-8s %s/%s", check.Status, check.Record.DateBucket(), check.Record.Filename)
			if check.Err != nil {
				line += " (" + check.Err.Error() + ")"
			}
			r.writePlain("%s\n", strings.TrimRight(line, " "))
		}

		if result.Interrupted {
			return fmt.Errorf("%w: verify stopped early", shared.ErrInterrupted)
		}
		if n := len(result.Problems); n > 0 {
			return fmt.Errorf("%d of %d files failed verification", n, result.Checked)
		}
		return r.writePlain("✓ All files present\n")
	})
}
