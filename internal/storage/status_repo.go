package storage

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -destination=mocks/mock_status_store.go -package=mocks rag-qdrant/internal/storage StatusStore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a record is not found.
	ErrNotFound = errors.New("record not found")
)

// StatusStore defines the interface for ingestion status storage.
// Every mutation is a single statement, so concurrent writers never clobber each other's rows.
type StatusStore interface {
	// Upsert writes the whole record for rec.Filename and stamps UpdatedAt.
	Upsert(ctx context.Context, rec *StatusRecord) error
	// UpdateProgress sets progress on a row that is still processing.
	UpdateProgress(ctx context.Context, filename string, progress int) error
	// Get returns the record for filename or ErrNotFound.
	Get(ctx context.Context, filename string) (*StatusRecord, error)
	// List returns every record ordered by filename.
	List(ctx context.Context) ([]*StatusRecord, error)
	// MarkInterrupted fails every processing row with reason and returns how many changed.
	MarkInterrupted(ctx context.Context, reason string) (int, error)
}

// StatusRepo provides methods for ingestion status operations.
// It implements the StatusStore interface.
type StatusRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewStatusRepo creates a new StatusRepo.
func NewStatusRepo(db *sql.DB) *StatusRepo {
	return &StatusRepo{db: db, now: time.Now}
}

// Upsert inserts or replaces the status row for rec.Filename.
func (r *StatusRepo) Upsert(ctx context.Context, rec *StatusRecord) error {
	if rec.Filename == "" {
		return fmt.Errorf("filename is required")
	}
	rec.UpdatedAt = r.now().UTC()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO ingestion_status (filename, status, progress, file_id, chunks, error, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (filename) DO UPDATE SET
		 status = excluded.status, progress = excluded.progress, file_id = excluded.file_id,
		 chunks = excluded.chunks, error = excluded.error, updated_at = excluded.updated_at`,
		rec.Filename, rec.Status, rec.Progress, rec.FileID, rec.Chunks, rec.Error, formatTime(rec.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert status: %w", err)
	}
	return nil
}

// UpdateProgress sets the progress of a processing row. Rows in any other state are left alone.
func (r *StatusRepo) UpdateProgress(ctx context.Context, filename string, progress int) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}

	_, err := r.db.ExecContext(ctx,
		`UPDATE ingestion_status SET progress = ?, updated_at = ?
		 WHERE filename = ? AND status = ?`,
		progress, formatTime(r.now()), filename, StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}
	return nil
}

// Get gets the status record for filename.
// Returns nil and ErrNotFound if not found.
func (r *StatusRepo) Get(ctx context.Context, filename string) (*StatusRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT filename, status, progress, file_id, chunks, error, updated_at
		 FROM ingestion_status WHERE filename = ?`,
		filename,
	)

	rec, err := scanStatus(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query status: %w", err)
	}
	return rec, nil
}

// List returns all status records ordered by filename.
func (r *StatusRepo) List(ctx context.Context) ([]*StatusRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT filename, status, progress, file_id, chunks, error, updated_at
		 FROM ingestion_status ORDER BY filename`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list statuses: %w", err)
	}
	defer rows.Close()

	records := make([]*StatusRecord, 0)
	for rows.Next() {
		rec, err := scanStatus(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan status: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate statuses: %w", err)
	}
	return records, nil
}

// MarkInterrupted fails every row left in processing, e.g. by a crash mid-ingestion.
func (r *StatusRepo) MarkInterrupted(ctx context.Context, reason string) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE ingestion_status SET status = ?, progress = 0, error = ?, updated_at = ?
		 WHERE status = ?`,
		StatusFailed, reason, formatTime(r.now()), StatusProcessing,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark interrupted ingestions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count interrupted ingestions: %w", err)
	}
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStatus(s rowScanner) (*StatusRecord, error) {
	var rec StatusRecord
	var updatedAt string
	if err := s.Scan(&rec.Filename, &rec.Status, &rec.Progress, &rec.FileID, &rec.Chunks, &rec.Error, &updatedAt); err != nil {
		return nil, err
	}
	t, err := parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse updated_at timestamp: %w", err)
	}
	rec.UpdatedAt = t
	return &rec, nil
}
