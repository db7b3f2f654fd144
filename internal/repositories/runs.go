package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/gphotos-backup/internal/models"
	"github.com/desertthunder/gphotos-backup/internal/shared"
)

const runColumns = `
	id, status, start_date, end_date, albums, pages, downloaded,
	skipped, failed, bytes, error_message, started_at, finished_at`

// SyncRunRepository tracks sync invocations and their terminal state.
type SyncRunRepository struct {
	db *sql.DB
}

// NewSyncRunRepository creates a new SyncRunRepository with the given database connection
func NewSyncRunRepository(db *sql.DB) *SyncRunRepository {
	return &SyncRunRepository{db: db}
}

// Start inserts run in the running state, assigning an id and start time when unset.
func (r *SyncRunRepository) Start(run *models.SyncRun) error {
	if run.ID == "" {
		run.ID = shared.GenerateID()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	run.Status = models.RunRunning
	run.FinishedAt = nil

	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO sync_runs (id, status, start_date, end_date, started_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query, run.ID, run.Status, run.Range.Start.String(), run.Range.End.String(), formatTime(run.StartedAt))
	if err != nil {
		return fmt.Errorf("failed to insert sync run: %w", err)
	}
	return nil
}

// Finish stores the terminal status and counters of run.
func (r *SyncRunRepository) Finish(run *models.SyncRun) error {
	if run.FinishedAt == nil {
		now := time.Now().UTC()
		run.FinishedAt = &now
	}
	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if !run.Status.Terminal() {
		return fmt.Errorf("%w: run %s is not in a terminal state", shared.ErrInvalidInput, run.ID)
	}

	query := `
		UPDATE sync_runs
		SET status = ?, albums = ?, pages = ?, downloaded = ?, skipped = ?,
			failed = ?, bytes = ?, error_message = ?, finished_at = ?
		WHERE id = ?
	`

	result, err := r.db.Exec(query,
		run.Status,
		run.Albums,
		run.Pages,
		run.Downloaded,
		run.Skipped,
		run.Failed,
		run.Bytes,
		nullString(run.Error),
		formatTime(*run.FinishedAt),
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update sync run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrRunNotFound, run.ID)
	}
	return nil
}

// Get retrieves a run by id.
func (r *SyncRunRepository) Get(id string) (*models.SyncRun, error) {
	run, err := scanRun(r.db.QueryRow("SELECT"+runColumns+" FROM sync_runs WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrRunNotFound, id)
	}
	return run, err
}

// Latest returns the most recently started run.
func (r *SyncRunRepository) Latest() (*models.SyncRun, error) {
	run, err := scanRun(r.db.QueryRow("SELECT" + runColumns + " FROM sync_runs ORDER BY started_at DESC LIMIT 1"))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrRunNotFound
	}
	return run, err
}

// List returns up to limit runs, newest first. A limit below one returns every run.
func (r *SyncRunRepository) List(limit int) ([]models.SyncRun, error) {
	query := "SELECT" + runColumns + " FROM sync_runs ORDER BY started_at DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync runs: %w", err)
	}
	defer rows.Close()

	var runs []models.SyncRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return runs, nil
}

// MarkAbandoned fails runs left in the running state by a process that died without finishing them.
func (r *SyncRunRepository) MarkAbandoned() (int, error) {
	result, err := r.db.Exec(
		"UPDATE sync_runs SET status = ?, error_message = ?, finished_at = ? WHERE status = ?",
		models.RunFailed, "abandoned", formatTime(time.Now()), models.RunRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark abandoned runs: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return int(rows), nil
}

func scanRun(row rowScanner) (*models.SyncRun, error) {
	var (
		run        models.SyncRun
		status     string
		startDate  string
		endDate    string
		errMessage sql.NullString
		startedAt  string
		finishedAt sql.NullString
	)

	err := row.Scan(
		&run.ID, &status, &startDate, &endDate, &run.Albums, &run.Pages, &run.Downloaded,
		&run.Skipped, &run.Failed, &run.Bytes, &errMessage, &startedAt, &finishedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan sync run: %w", err)
	}

	run.Status = models.RunStatus(status)
	run.Error = errMessage.String

	if run.Range.Start, err = models.ParseDate(startDate); err != nil {
		return nil, err
	}
	if run.Range.End, err = models.ParseDate(endDate); err != nil {
		return nil, err
	}
	if run.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	if run.FinishedAt, err = timePtr(finishedAt); err != nil {
		return nil, err
	}

	return &run, nil
}
