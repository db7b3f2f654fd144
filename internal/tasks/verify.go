package tasks

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gabriel-vasile/mimetype"
	"github.com/go-git/go-billy/v5"
	"golang.org/x/time/rate"

	"github.com/desertthunder/gphotos-backup/internal/models"
	"github.com/desertthunder/gphotos-backup/internal/repositories"
)

// FileStatus is the verdict for one ledger record.
type FileStatus int

const (
	FilePresent FileStatus = iota
	FileMissing
	FileEmpty
	FileSuspect // content sniffs as an HTML page instead of media
	FileError
)

func (s FileStatus) String() string {
	switch s {
	case FilePresent:
		return "present"
	case FileMissing:
		return "missing"
	case FileEmpty:
		return "empty"
	case FileSuspect:
		return "suspect"
	case FileError:
		return "error"
	default:
		return ""
	}
}

// FileCheck is the result of checking one record against disk.
type FileCheck struct {
	Record models.DownloadRecord
	Status FileStatus
	Path   string // where the file was found, empty when missing
	Err    error
}

// VerifyOpts configures [Verifier.Verify].
type VerifyOpts struct {
	Workers       int     // Concurrent workers (default: 4, max: 16)
	RatePerSecond float64 // File checks per second, zero for unlimited
}

// VerifyResult summarises a verify pass. Problems holds every check that was not [FilePresent].
type VerifyResult struct {
	Checked     int
	Present     int
	Problems    []FileCheck
	Interrupted bool
}

// Verifier checks that every ledger record still has its file in the flat or dated location.
type Verifier struct {
	fs     billy.Filesystem
	ledger *repositories.Ledger
	logger *log.Logger
}

// NewVerifier creates a verifier for the backup root fs.
func NewVerifier(fs billy.Filesystem, ledger *repositories.Ledger, logger *log.Logger) *Verifier {
	return &Verifier{fs: fs, ledger: ledger, logger: logger}
}

// Verify checks all records concurrently. It never modifies the filesystem or the ledger.
func (v *Verifier) Verify(ctx context.Context, progress chan<- ProgressUpdate, opts VerifyOpts) (*VerifyResult, error) {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Workers > 16 {
		opts.Workers = 16
	}
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	limiter := rate.NewLimiter(limit, 1)

	records, err := v.ledger.Records.List()
	if err != nil {
		return nil, ledgerError(err)
	}

	jobs := make(chan models.DownloadRecord, len(records))
	results := make(chan FileCheck, len(records))

	var wg sync.WaitGroup
	for range opts.Workers {
		wg.Add(1)
		go v.worker(ctx, &wg, limiter, jobs, results)
	}

	go func() {
		defer close(jobs)
		for _, rec := range records {
			select {
			case <-ctx.Done():
				return
			case jobs <- rec:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	result := &VerifyResult{}
	for check := range results {
		result.Checked++
		if check.Status == FilePresent {
			result.Present++
		} else {
			result.Problems = append(result.Problems, check)
			v.logger.Warn("record failed verification", "id", check.Record.ItemID, "filename", check.Record.Filename, "status", check.Status, "error", check.Err)
		}
		sendProgress(progress, verifyRecordUpdate(result.Checked, len(records), check))
	}

	if ctx.Err() != nil && result.Checked < len(records) {
		result.Interrupted = true
	}
	v.logger.Info("verify completed", "checked", result.Checked, "present", result.Present, "problems", len(result.Problems))
	return result, nil
}

func (v *Verifier) worker(ctx context.Context, wg *sync.WaitGroup, limiter *rate.Limiter, jobs <-chan models.DownloadRecord, results chan<- FileCheck) {
	defer wg.Done()

	for rec := range jobs {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		results <- v.check(rec)
	}
}

func (v *Verifier) check(rec models.DownloadRecord) FileCheck {
	check := FileCheck{Record: rec, Status: FileMissing}
	if err := models.ValidateFilename(rec.Filename); err != nil {
		check.Status = FileError
		check.Err = err
		return check
	}

	for _, name := range []string{rec.Filename, v.fs.Join(rec.DateBucket(), rec.Filename)} {
		found, err := exists(v.fs, name)
		if err != nil {
			check.Status = FileError
			check.Err = err
			return check
		}
		if found {
			check.Path = name
			break
		}
	}
	if check.Path == "" {
		return check
	}

	info, err := v.fs.Stat(check.Path)
	if err != nil {
		check.Status = FileError
		check.Err = err
		return check
	}
	if info.Size() == 0 {
		check.Status = FileEmpty
		return check
	}

	f, err := v.fs.Open(check.Path)
	if err != nil {
		check.Status = FileError
		check.Err = err
		return check
	}
	defer f.Close()

	mime, err := mimetype.DetectReader(f)
	if err != nil {
		check.Status = FileError
		check.Err = fmt.Errorf("failed to read %s: %w", check.Path, err)
		return check
	}
	if mime.Is("text/html") && !strings.HasPrefix(rec.MimeType, "text/") {
		check.Status = FileSuspect
		return check
	}

	check.Status = FilePresent
	return check
}
