package main

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/go-git/go-billy/v5"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/gphotos-backup/internal/models"
	"github.com/desertthunder/gphotos-backup/internal/repositories"
	"github.com/desertthunder/gphotos-backup/internal/shared"
	"github.com/desertthunder/gphotos-backup/internal/tasks"
)

// Sync downloads every item in the date range that the ledger has not seen, then organizes the backup.
//
// An interrupted sync returns [shared.ErrInterrupted]; the next invocation resumes from the saved cursor.
func (r *Runner) Sync(ctx context.Context, cmd *cli.Command) error {
	rng, err := r.dateRange(cmd.String("start"), cmd.String("end"))
	if err != nil {
		return err
	}

	dir := r.backupDir(cmd)
	fs, err := backupFS(dir)
	if err != nil {
		return err
	}

	return r.withLock(func() error {
		return r.withLedger(func(ledger *repositories.Ledger) error {
			if n, err := ledger.Runs.MarkAbandoned(); err != nil {
				return err
			} else if n > 0 {
				r.logger.Warn("marked runs left unfinished by a previous process as failed", "runs", n)
			}

			logger := r.logger
			useTUI := cmd.Bool("tui")
			if useTUI {
				fileLogger, closer, err := r.tuiLogger(dir)
				if err != nil {
					return err
				}
				defer closer.Close()
				logger = fileLogger
			}

			catalog, err := r.newCatalog(ctx, r.config, logger)
			if err != nil {
				return err
			}

			engine := tasks.NewSyncEngine(catalog, ledger, tasks.NewMediaStore(fs), logger)
			opts := tasks.SyncOpts{Range: rng}

			r.logger.Info("starting sync", "range", rng, "dir", dir)

			var result *tasks.SyncResult
			var runErr error
			if useTUI {
				result, runErr = r.runSyncTUI(ctx, engine, opts)
			} else {
				result, runErr = engine.Run(ctx, nil, opts)
			}
			if result == nil {
				return runErr
			}

			r.printSyncSummary(result, dir)

			if result.State != tasks.StateFailed && r.config.Backup.Organize && !cmd.Bool("no-organize") {
				// The organizer is local and quick, so it also runs after an interrupted sync.
				if err := r.organize(context.WithoutCancel(ctx), fs, ledger); err != nil {
					r.logger.Error("organize failed", "error", err)
				}
			}

			switch result.State {
			case tasks.StateFailed:
				return runErr
			case tasks.StateInterrupted:
				return fmt.Errorf("%w: sync stopped after %d pages", shared.ErrInterrupted, result.Pages)
			}
			return nil
		})
	})
}

// dateRange combines the flag overrides with the configured range.
func (r *Runner) dateRange(start, end string) (models.DateRange, error) {
	if start == "" {
		start = r.config.Backup.StartDate
	}
	if end == "" {
		end = r.config.Backup.EndDate
	}

	var rng models.DateRange
	var err error
	if rng.Start, err = models.ParseDate(start); err != nil {
		return rng, fmt.Errorf("%w: --start: %v", shared.ErrInvalidFlag, err)
	}
	if rng.End, err = models.ParseDate(end); err != nil {
		return rng, fmt.Errorf("%w: --end: %v", shared.ErrInvalidFlag, err)
	}
	if err := rng.Validate(); err != nil {
		return rng, fmt.Errorf("%w: %v", shared.ErrInvalidFlag, err)
	}
	return rng, nil
}

func (r *Runner) backupDir(cmd *cli.Command) string {
	if dir := cmd.String("dir"); dir != "" {
		return dir
	}
	return r.config.Backup.Directory
}

func (r *Runner) printSyncSummary(result *tasks.SyncResult, dir string) {
	r.writePlainln("")
	r.writePlainHeader(fmt.Sprintf("Sync %s", result.State.Label()))
	if result.Resumed {
		r.writePlain("Resumed from saved cursor\n")
	}
	r.writePlain("Albums indexed:  %d\n", result.Albums)
	r.writePlain("Pages completed: %d\n", result.Pages)
	r.writePlain("Downloaded:      %d (%s)\n", result.Downloaded, humanize.Bytes(uint64(result.Bytes)))
	r.writePlain("Skipped:         %d\n", result.Skipped)
	r.writePlain("Failed:          %d\n", result.Failed)
	r.writePlain("Backup dir:      %s\n", dir)
	r.writePlain("Run id:          %s\n", result.RunID)

	switch result.State {
	case tasks.StateInterrupted:
		r.writePlainln("Interrupted. Run 'gpb sync' again to resume from the last completed page.")
	case tasks.StateFailed:
		r.writePlainln("Failed. The resume cursor was cleared; the next sync rescans the range and skips recorded items.")
	}
}

// organize runs one organizer pass and prints what it did.
func (r *Runner) organize(ctx context.Context, fs billy.Filesystem, ledger *repositories.Ledger) error {
	result, err := tasks.NewOrganizer(fs, ledger, r.logger).Organize(ctx, nil)
	if err != nil {
		return err
	}

	r.writePlainln("")
	r.writePlainHeader("Organize")
	r.writePlain("Records:        %d\n", result.Records)
	r.writePlain("Moved:          %d\n", result.Moved)
	r.writePlain("Already placed: %d\n", result.InPlace)
	r.writePlain("Missing:        %d\n", result.Missing)
	r.writePlain("Album links:    %d new, %d present\n", result.Linked, result.LinksPresent)
	if result.Errors > 0 {
		r.writePlain("Errors:         %d (see log)\n", result.Errors)
	}
	if result.Interrupted {
		return fmt.Errorf("%w: organize stopped early", shared.ErrInterrupted)
	}
	return nil
}

// Organize arranges an existing backup without contacting the remote catalog.
func (r *Runner) Organize(ctx context.Context, cmd *cli.Command) error {
	fs, err := backupFS(r.backupDir(cmd))
	if err != nil {
		return err
	}

	return r.withLock(func() error {
		return r.withLedger(func(ledger *repositories.Ledger) error {
			return r.organize(ctx, fs, ledger)
		})
	})
}
