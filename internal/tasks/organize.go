package tasks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/go-git/go-billy/v5"

	"github.com/desertthunder/gphotos-backup/internal/models"
	"github.com/desertthunder/gphotos-backup/internal/repositories"
)

// AlbumsDir is the directory under the backup root holding one directory of links per album.
const AlbumsDir = "Albums"

const untitledAlbum = "Untitled"

// OrganizeResult counts what an organize pass did.
type OrganizeResult struct {
	Records      int
	Moved        int  // files moved from the flat location into their bucket
	InPlace      int  // files already in their bucket
	Missing      int  // records with no file in either location
	Linked       int  // album links created
	LinksPresent int  // album links that already existed
	Errors       int  // records that failed with a filesystem error
	Interrupted  bool // the pass stopped early because ctx was cancelled
}

// Organizer arranges downloaded files into YYYY-MM buckets and mirrors album membership as
// links under [AlbumsDir]. It only reads the ledger and never touches the network.
type Organizer struct {
	fs     billy.Filesystem
	ledger *repositories.Ledger
	logger *log.Logger
}

// NewOrganizer creates an organizer for the backup root fs.
func NewOrganizer(fs billy.Filesystem, ledger *repositories.Ledger, logger *log.Logger) *Organizer {
	return &Organizer{fs: fs, ledger: ledger, logger: logger}
}

// Organize runs one pass over every ledger record. Running it again on the same state changes nothing.
//
// Per-record failures are logged and counted; only a ledger read failure aborts the pass.
func (o *Organizer) Organize(ctx context.Context, progress chan<- ProgressUpdate) (*OrganizeResult, error) {
	records, err := o.ledger.Records.ListWithAlbums()
	if err != nil {
		return nil, ledgerError(err)
	}

	result := &OrganizeResult{Records: len(records)}
	for i, ra := range records {
		if ctx.Err() != nil {
			result.Interrupted = true
			o.logger.Warn("organize interrupted", "processed", i, "records", len(records))
			return result, nil
		}

		sendProgress(progress, organizeRecordUpdate(i+1, len(records), ra.Record.Filename, ra.Record.DateBucket()))
		if err := o.organizeRecord(ra, result); err != nil {
			result.Errors++
			o.logger.Error("failed to organize record", "id", ra.Record.ItemID, "filename", ra.Record.Filename, "error", err)
		}
	}

	o.logger.Info("organize completed",
		"records", result.Records, "moved", result.Moved, "in_place", result.InPlace,
		"missing", result.Missing, "linked", result.Linked, "errors", result.Errors)
	return result, nil
}

func (o *Organizer) organizeRecord(ra models.RecordAlbums, result *OrganizeResult) error {
	rec := ra.Record
	if err := models.ValidateFilename(rec.Filename); err != nil {
		return err
	}

	bucket := rec.DateBucket()
	if err := o.fs.MkdirAll(bucket, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", bucket, err)
	}

	flat := rec.Filename
	dated := o.fs.Join(bucket, rec.Filename)

	inFlat, err := exists(o.fs, flat)
	if err != nil {
		return err
	}
	inBucket, err := exists(o.fs, dated)
	if err != nil {
		return err
	}

	switch {
	case inFlat && !inBucket:
		if err := o.fs.Rename(flat, dated); err != nil {
			return fmt.Errorf("failed to move %s to %s: %w", flat, dated, err)
		}
		result.Moved++
		o.logger.Debug("moved file", "filename", rec.Filename, "bucket", bucket)
	case inBucket:
		if inFlat {
			o.logger.Warn("file present in both flat and dated locations, leaving flat copy", "filename", rec.Filename, "bucket", bucket)
		}
		result.InPlace++
	default:
		result.Missing++
		o.logger.Warn("file missing from both flat and dated locations, skipping", "id", rec.ItemID, "filename", rec.Filename)
		return nil
	}

	for _, title := range ra.AlbumTitles {
		created, err := o.link(title, bucket, rec.Filename)
		if err != nil {
			return err
		}
		if created {
			result.Linked++
		} else {
			result.LinksPresent++
		}
	}
	return nil
}

// link creates Albums/<title>/<filename> pointing back into the dated tree.
// It reports false when an entry already exists at that path.
func (o *Organizer) link(title, bucket, filename string) (bool, error) {
	dir := o.fs.Join(AlbumsDir, SanitizeTitle(title))
	if err := o.fs.MkdirAll(dir, 0755); err != nil {
		return false, fmt.Errorf("failed to create album directory %s: %w", dir, err)
	}

	name := o.fs.Join(dir, filename)
	if _, err := o.fs.Lstat(name); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("failed to stat %s: %w", name, err)
	}

	target := path.Join("..", "..", bucket, filename)
	if err := o.fs.Symlink(target, name); err != nil {
		return false, fmt.Errorf("failed to link %s: %w", name, err)
	}
	return true, nil
}

// SanitizeTitle turns an album title into a single directory name.
func SanitizeTitle(title string) string {
	t := strings.TrimSpace(title)
	t = strings.ReplaceAll(t, "/", "／")
	t = strings.ReplaceAll(t, "\\", "＼")
	t = strings.ReplaceAll(t, "\x00", "")
	if t == "" || t == "." || t == ".." {
		return untitledAlbum
	}
	return t
}
