// package repositories provides the SQLite ledger used by sync and organize.
package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/gphotos-backup/internal/shared"
)

// Ledger groups the repositories that share one database connection.
type Ledger struct {
	db      *sql.DB
	Records *DownloadRecordRepository
	Albums  *AlbumRepository
	State   *SyncStateRepository
	Runs    *SyncRunRepository
}

// Stats summarises ledger contents for status output.
type Stats struct {
	Records     int
	Albums      int
	Memberships int
	Runs        int
	Cursor      string
	HasCursor   bool
}

// Open opens the ledger at path and brings its schema up to date.
func Open(path string, maxOpenConns, maxIdleConns int) (*Ledger, error) {
	db, err := shared.NewDatabase(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrLedgerUnavailable, err)
	}
	shared.ConfigureDatabase(db, maxOpenConns, maxIdleConns)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to run migrations: %v", shared.ErrLedgerUnavailable, err)
	}

	return New(db), nil
}

// New wraps an already migrated database.
func New(db *sql.DB) *Ledger {
	return &Ledger{
		db:      db,
		Records: NewDownloadRecordRepository(db),
		Albums:  NewAlbumRepository(db),
		State:   NewSyncStateRepository(db),
		Runs:    NewSyncRunRepository(db),
	}
}

// DB returns the underlying connection.
func (l *Ledger) DB() *sql.DB {
	return l.db
}

// Ping verifies the database is reachable.
func (l *Ledger) Ping() error {
	if err := l.db.Ping(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrLedgerUnavailable, err)
	}
	return nil
}

// Close closes the database connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Stats counts rows in each ledger table and reads the cursor.
func (l *Ledger) Stats() (*Stats, error) {
	var stats Stats
	counts := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM download_records", &stats.Records},
		{"SELECT COUNT(*) FROM albums", &stats.Albums},
		{"SELECT COUNT(*) FROM album_items", &stats.Memberships},
		{"SELECT COUNT(*) FROM sync_runs", &stats.Runs},
	}
	for _, c := range counts {
		if err := l.db.QueryRow(c.query).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("failed to count rows: %w", err)
		}
	}

	cursor, ok, err := l.State.Cursor()
	if err != nil {
		return nil, err
	}
	stats.Cursor, stats.HasCursor = cursor, ok
	return &stats, nil
}

// rowScanner is satisfied by both [sql.Row] and [sql.Rows].
type rowScanner interface {
	Scan(dest ...any) error
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullFloat(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func timePtr(n sql.NullString) (*time.Time, error) {
	if !n.Valid || n.String == "" {
		return nil, nil
	}
	t, err := parseTime(n.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
