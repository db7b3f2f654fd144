package tasks

import (
	"context"
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"

	"github.com/desertthunder/gphotos-backup/internal/models"
	"github.com/desertthunder/gphotos-backup/internal/repositories"
	"github.com/desertthunder/gphotos-backup/internal/services"
	"github.com/desertthunder/gphotos-backup/internal/shared"
)

// collisionPrefixLen is how much of an item id is appended to a colliding filename.
const collisionPrefixLen = 12

// SyncOpts configures a sync run.
type SyncOpts struct {
	Range models.DateRange
}

// SyncCounters tracks work done by a run.
type SyncCounters struct {
	Albums     int
	Pages      int
	Downloaded int
	Skipped    int
	Failed     int
	Bytes      int64
}

// SyncResult is the outcome of [SyncEngine.Run].
type SyncResult struct {
	RunID   string
	State   State
	Resumed bool
	SyncCounters
}

// SyncEngine copies media items from a [services.Catalog] into a [MediaStore], recording each completed
// download in the ledger so runs can be repeated and resumed.
type SyncEngine struct {
	catalog services.Catalog
	ledger  *repositories.Ledger
	store   *MediaStore
	logger  *log.Logger
	now     func() time.Time
}

// NewSyncEngine creates a new sync engine
func NewSyncEngine(catalog services.Catalog, ledger *repositories.Ledger, store *MediaStore, logger *log.Logger) *SyncEngine {
	return &SyncEngine{
		catalog: catalog,
		ledger:  ledger,
		store:   store,
		logger:  logger,
		now:     time.Now,
	}
}

// Run performs one sync pass over opts.Range.
//
// Cancelling ctx ends the run Interrupted once the current item is durable. The returned error is non-nil
// only for Failed runs; the result is always returned once the run has been recorded.
func (e *SyncEngine) Run(ctx context.Context, progress chan<- ProgressUpdate, opts SyncOpts) (*SyncResult, error) {
	if err := opts.Range.Validate(); err != nil {
		return nil, err
	}
	if err := e.ledger.Ping(); err != nil {
		return nil, err
	}

	run := &models.SyncRun{
		ID:        shared.GenerateID(),
		Status:    models.RunRunning,
		Range:     opts.Range,
		StartedAt: e.now().UTC(),
	}
	if err := e.ledger.Runs.Start(run); err != nil {
		return nil, ledgerError(err)
	}

	result := &SyncResult{RunID: run.ID, State: StateIdle}
	logger := shared.WithLogger(e.logger, "run", run.ID)
	logger.Info("sync started", "range", opts.Range.String())

	err := e.run(ctx, progress, opts, result, logger)
	switch result.State {
	case StateCompleted:
		logger.Info("sync completed", "state", result.State,
			"downloaded", result.Downloaded, "skipped", result.Skipped, "failed", result.Failed,
			"bytes", humanize.Bytes(uint64(result.Bytes)))
	case StateInterrupted:
		logger.Warn("sync interrupted", "state", result.State, "downloaded", result.Downloaded, "pages", result.Pages)
	default:
		logger.Error("sync failed", "state", result.State, "error", err)
	}

	e.finish(run, result, err, logger)
	return result, err
}

func (e *SyncEngine) run(ctx context.Context, progress chan<- ProgressUpdate, opts SyncOpts, result *SyncResult, logger *log.Logger) error {
	e.setState(result, progress, StateFetchingAlbumIndex)
	index, err := e.buildAlbumIndex(ctx, progress, result, logger)
	if err != nil {
		if ctx.Err() != nil && !errors.Is(err, shared.ErrLedgerUnavailable) {
			e.setState(result, progress, StateInterrupted)
			return nil
		}
		e.setState(result, progress, StateFailed)
		return err
	}

	cursor, resumed, err := e.resumeCursor(opts.Range, logger)
	if err != nil {
		e.setState(result, progress, StateFailed)
		return ledgerError(err)
	}
	if resumed {
		result.Resumed = true
		logger.Info("resuming from saved cursor")
	}

	e.setState(result, progress, StateScanningMediaPages)
	for {
		if ctx.Err() != nil {
			e.setState(result, progress, StateInterrupted)
			return nil
		}

		sendProgress(progress, fetchingPageUpdate(result.Pages+1, resumed))
		page, err := e.catalog.ListItemsInRange(ctx, opts.Range, cursor)
		if err != nil {
			if ctx.Err() != nil {
				e.setState(result, progress, StateInterrupted)
				return nil
			}
			logger.Error("page listing failed, clearing cursor", "page", result.Pages+1, "error", err)
			if clearErr := e.ledger.State.ClearCursor(); clearErr != nil {
				e.setState(result, progress, StateFailed)
				return ledgerError(clearErr)
			}
			e.setState(result, progress, StateFailed)
			return fmt.Errorf("%w: %w", shared.ErrPageFailed, err)
		}
		if page.Dropped > 0 {
			logger.Warn("page contained invalid items", "dropped", page.Dropped)
		}

		e.setState(result, progress, StateProcessingPage)
		complete, err := e.processPage(ctx, progress, page, index, result, logger)
		if err != nil {
			e.setState(result, progress, StateFailed)
			return err
		}
		if !complete {
			e.setState(result, progress, StateInterrupted)
			return nil
		}

		result.Pages++
		e.setState(result, progress, StatePageComplete)
		sendProgress(progress, pageCompleteUpdate(result.Pages, len(page.Items), result.SyncCounters))

		if page.Last() {
			if err := e.ledger.State.ClearCursor(); err != nil {
				e.setState(result, progress, StateFailed)
				return ledgerError(err)
			}
			e.setState(result, progress, StateScanComplete)
			e.setState(result, progress, StateCompleted)
			return nil
		}

		if err := e.ledger.State.SetCursor(page.NextCursor, opts.Range); err != nil {
			e.setState(result, progress, StateFailed)
			return ledgerError(err)
		}
		cursor = page.NextCursor
		e.setState(result, progress, StateScanningMediaPages)
	}
}

// resumeCursor returns the saved page token when it was issued for rng.
//
// A token from a listing over another range would be sent with the wrong filter, so it is cleared instead.
func (e *SyncEngine) resumeCursor(rng models.DateRange, logger *log.Logger) (string, bool, error) {
	cursor, ok, err := e.ledger.State.Cursor()
	if err != nil || !ok {
		return "", false, err
	}

	saved, _, err := e.ledger.State.CursorRange()
	if err != nil {
		return "", false, err
	}
	if saved == rng.String() {
		return cursor, true, nil
	}

	logger.Warn("discarding cursor saved for another date range", "saved", saved, "range", rng.String())
	if err := e.ledger.State.ClearCursor(); err != nil {
		return "", false, err
	}
	return "", false, nil
}

// buildAlbumIndex upserts every remote album and maps item ids to the albums containing them.
func (e *SyncEngine) buildAlbumIndex(ctx context.Context, progress chan<- ProgressUpdate, result *SyncResult, logger *log.Logger) (map[string][]string, error) {
	var albums []models.Album
	for album, err := range e.catalog.ListAlbums(ctx) {
		if err != nil {
			return nil, fmt.Errorf("failed to list albums: %w", err)
		}
		albums = append(albums, album)
	}

	index := make(map[string][]string)
	for i, album := range albums {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err := e.ledger.Albums.Upsert(album); err != nil {
			return nil, ledgerError(err)
		}

		sendProgress(progress, indexingAlbumUpdate(i+1, len(albums), album.Title))
		for item, err := range e.catalog.ListAlbumItems(ctx, album.ID) {
			if err != nil {
				return nil, fmt.Errorf("failed to list items of album %q: %w", album.Title, err)
			}
			if !slices.Contains(index[item.ID], album.ID) {
				index[item.ID] = append(index[item.ID], album.ID)
			}
		}
	}

	result.Albums = len(albums)
	logger.Info("album index built", "albums", len(albums), "items", len(index))
	sendProgress(progress, albumIndexUpdate(len(albums), len(index)))
	return index, nil
}

// processPage handles every item of page in order. It reports false when cancellation stopped it early.
func (e *SyncEngine) processPage(ctx context.Context, progress chan<- ProgressUpdate, page *services.ItemPage, index map[string][]string, result *SyncResult, logger *log.Logger) (bool, error) {
	total := len(page.Items)
	for i, item := range page.Items {
		if ctx.Err() != nil {
			return false, nil
		}

		step := i + 1
		err := e.processItem(ctx, progress, item, index[item.ID], step, total, result, logger)
		switch {
		case err == nil:
		case errors.Is(err, shared.ErrLedgerUnavailable):
			return false, err
		case ctx.Err() != nil && errors.Is(err, ctx.Err()):
			return false, nil
		default:
			result.Failed++
			logger.Error("failed to download item", "id", item.ID, "filename", item.Filename, "error", err)
			sendProgress(progress, failedItemUpdate(step, total, item.Filename, err, result.SyncCounters))
		}
	}
	return true, nil
}

// processItem downloads item unless the ledger already holds it, then records its album memberships.
// Errors wrapping [shared.ErrLedgerUnavailable] are fatal to the run; any other error only fails the item.
func (e *SyncEngine) processItem(ctx context.Context, progress chan<- ProgressUpdate, item models.MediaItem, albumIDs []string, step, total int, result *SyncResult, logger *log.Logger) error {
	recorded, err := e.ledger.Records.Exists(item.ID)
	if err != nil {
		return ledgerError(err)
	}

	if recorded {
		result.Skipped++
		logger.Info("skipping already downloaded item", "id", item.ID, "filename", item.Filename)
		sendProgress(progress, skippedItemUpdate(step, total, item.Filename, result.SyncCounters))
	} else {
		filename, err := e.localFilename(item)
		if err != nil {
			return err
		}

		data, err := e.catalog.FetchContent(ctx, item)
		if err != nil {
			return err
		}
		if err := e.store.Save(filename, data); err != nil {
			return err
		}
		if err := e.ledger.Records.Upsert(models.NewDownloadRecord(item, filename, e.now())); err != nil {
			return ledgerError(err)
		}

		result.Downloaded++
		result.Bytes += int64(len(data))
		logger.Info("downloaded item", "id", item.ID, "filename", filename, "size", humanize.Bytes(uint64(len(data))))
		sendProgress(progress, downloadedItemUpdate(step, total, filename, len(data), result.SyncCounters))
	}

	for _, albumID := range albumIDs {
		if _, err := e.ledger.Albums.AddMember(albumID, item.ID); err != nil {
			return ledgerError(err)
		}
	}
	return nil
}

// localFilename picks the name item is stored under. A name already owned by another item gets a
// prefix of the item id appended before the extension.
func (e *SyncEngine) localFilename(item models.MediaItem) (string, error) {
	owner, taken, err := e.ledger.Records.FilenameOwner(item.Filename)
	if err != nil {
		return "", ledgerError(err)
	}
	if !taken || owner == item.ID {
		return item.Filename, nil
	}

	ext := path.Ext(item.Filename)
	base := strings.TrimSuffix(item.Filename, ext)
	id := item.ID
	if len(id) > collisionPrefixLen {
		id = id[:collisionPrefixLen]
	}

	candidate := fmt.Sprintf("%s {%s}%s", base, id, ext)
	owner, taken, err = e.ledger.Records.FilenameOwner(candidate)
	if err != nil {
		return "", ledgerError(err)
	}
	if taken && owner != item.ID {
		candidate = fmt.Sprintf("%s {%s}%s", base, item.ID, ext)
	}
	return candidate, nil
}

func (e *SyncEngine) setState(result *SyncResult, progress chan<- ProgressUpdate, s State) {
	result.State = s
	sendProgress(progress, stateUpdate(s))
}

// finish records the terminal state of run. Failures are logged since the ledger may be the reason the run failed.
func (e *SyncEngine) finish(run *models.SyncRun, result *SyncResult, runErr error, logger *log.Logger) {
	finished := e.now().UTC()
	run.Status = result.State.RunStatus()
	if !run.Status.Terminal() {
		run.Status = models.RunFailed
	}
	run.FinishedAt = &finished
	run.Albums = result.Albums
	run.Pages = result.Pages
	run.Downloaded = result.Downloaded
	run.Skipped = result.Skipped
	run.Failed = result.Failed
	run.Bytes = result.Bytes
	if runErr != nil {
		run.Error = runErr.Error()
	}

	if err := e.ledger.Runs.Finish(run); err != nil {
		logger.Warn("failed to record sync run", "error", err)
	}
}
