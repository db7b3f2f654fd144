package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/gphotos-backup/internal/repositories"
	"github.com/desertthunder/gphotos-backup/internal/shared"
	"github.com/desertthunder/gphotos-backup/internal/tasks"
	"github.com/desertthunder/gphotos-backup/internal/ui"
)

// tuiLogger returns a logger that writes only to a file, so log lines do not tear the TUI.
//
// The configured log file is used when set, otherwise gpb-sync.log in the backup directory.
func (r *Runner) tuiLogger(dir string) (*log.Logger, io.Closer, error) {
	path := r.config.Logging.File
	if path == "" {
		path = filepath.Join(dir, "gpb-sync.log")
	}

	logger, closer, err := shared.NewFileLogger(path, false)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create file logger: %w", err)
	}
	logger.SetLevel(r.logger.GetLevel())
	return logger, closer, nil
}

// runSyncTUI runs the sync under the progress view and waits for the run to be recorded,
// even when the view is closed first.
func (r *Runner) runSyncTUI(ctx context.Context, engine *tasks.SyncEngine, opts tasks.SyncOpts) (*tasks.SyncResult, error) {
	return ui.RunSync(ctx, func(ctx context.Context, progress chan<- tasks.ProgressUpdate) (*tasks.SyncResult, error) {
		return engine.Run(ctx, progress, opts)
	})
}

// AlbumsBrowse opens the album browser.
func (r *Runner) AlbumsBrowse(ctx context.Context, cmd *cli.Command) error {
	return r.withLedger(func(ledger *repositories.Ledger) error {
		albums, counts, err := albumsWithCounts(ledger)
		if err != nil {
			return err
		}

		if _, err := tea.NewProgram(ui.NewAlbumsModel(albums, counts), tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil {
			return fmt.Errorf("error running TUI: %w", err)
		}
		return nil
	})
}
