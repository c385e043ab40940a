package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}

func TestStatusRepo_UpsertAndGet(t *testing.T) {
	repo := NewStatusRepo(newTestDB(t))
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	repo.now = func() time.Time { return fixed }
	ctx := context.Background()

	tests := []struct {
		name string
		rec  *StatusRecord
	}{
		{
			name: "processing",
			rec:  &StatusRecord{Filename: "report.pdf", Status: StatusProcessing},
		},
		{
			name: "completed overwrites",
			rec:  &StatusRecord{Filename: "report.pdf", Status: StatusCompleted, Progress: 100, FileID: "f-1", Chunks: 7},
		},
		{
			name: "failed clears file id",
			rec:  &StatusRecord{Filename: "report.pdf", Status: StatusFailed, Error: "boom"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := repo.Upsert(ctx, tt.rec); err != nil {
				t.Fatalf("Upsert() error = %v", err)
			}

			got, err := repo.Get(ctx, tt.rec.Filename)
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if got.Status != tt.rec.Status || got.Progress != tt.rec.Progress ||
				got.FileID != tt.rec.FileID || got.Chunks != tt.rec.Chunks || got.Error != tt.rec.Error {
				t.Errorf("Get() = %+v, want %+v", got, tt.rec)
			}
			if !got.UpdatedAt.Equal(fixed) {
				t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, fixed)
			}
		})
	}

	records, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != 1 {
		t.Errorf("List() returned %d records, want 1 row per filename", len(records))
	}
}

func TestStatusRepo_UpsertValidation(t *testing.T) {
	repo := NewStatusRepo(newTestDB(t))
	ctx := context.Background()

	if err := repo.Upsert(ctx, &StatusRecord{Status: StatusProcessing}); err == nil {
		t.Error("Upsert() without filename should return error")
	}
	if err := repo.Upsert(ctx, &StatusRecord{Filename: "a.txt", Status: "queued"}); err == nil {
		t.Error("Upsert() with unknown status should violate the CHECK constraint")
	}
}

func TestStatusRepo_GetNotFound(t *testing.T) {
	repo := NewStatusRepo(newTestDB(t))

	got, err := repo.Get(context.Background(), "missing.pdf")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
	if got != nil {
		t.Errorf("Get() = %v, want nil", got)
	}
}

func TestStatusRepo_UpdateProgress(t *testing.T) {
	repo := NewStatusRepo(newTestDB(t))
	ctx := context.Background()

	if err := repo.Upsert(ctx, &StatusRecord{Filename: "a.txt", Status: StatusProcessing}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := repo.Upsert(ctx, &StatusRecord{Filename: "b.txt", Status: StatusCompleted, Progress: 100}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	tests := []struct {
		name     string
		filename string
		progress int
		want     int
	}{
		{"processing row updates", "a.txt", 40, 40},
		{"clamped above 100", "a.txt", 140, 100},
		{"clamped below 0", "a.txt", -5, 0},
		{"completed row untouched", "b.txt", 10, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := repo.UpdateProgress(ctx, tt.filename, tt.progress); err != nil {
				t.Fatalf("UpdateProgress() error = %v", err)
			}
			got, err := repo.Get(ctx, tt.filename)
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if got.Progress != tt.want {
				t.Errorf("Progress = %v, want %v", got.Progress, tt.want)
			}
		})
	}

	// Unknown filenames are a no-op.
	if err := repo.UpdateProgress(ctx, "missing.txt", 50); err != nil {
		t.Errorf("UpdateProgress() on missing row error = %v", err)
	}
}

func TestStatusRepo_List(t *testing.T) {
	repo := NewStatusRepo(newTestDB(t))
	ctx := context.Background()

	records, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if records == nil || len(records) != 0 {
		t.Errorf("List() on empty table = %v, want empty slice", records)
	}

	for _, name := range []string{"c.txt", "a.txt", "b.txt"} {
		if err := repo.Upsert(ctx, &StatusRecord{Filename: name, Status: StatusProcessing}); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
	}

	records, err = repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	want := []string{"a.txt", "b.txt", "c.txt"}
	if len(records) != len(want) {
		t.Fatalf("List() returned %d records, want %d", len(records), len(want))
	}
	for i, rec := range records {
		if rec.Filename != want[i] {
			t.Errorf("List()[%d] = %v, want %v", i, rec.Filename, want[i])
		}
	}
}

func TestStatusRepo_MarkInterrupted(t *testing.T) {
	repo := NewStatusRepo(newTestDB(t))
	ctx := context.Background()

	seed := []*StatusRecord{
		{Filename: "a.txt", Status: StatusProcessing, Progress: 50},
		{Filename: "b.txt", Status: StatusProcessing},
		{Filename: "c.txt", Status: StatusCompleted, Progress: 100, FileID: "f", Chunks: 2},
	}
	for _, rec := range seed {
		if err := repo.Upsert(ctx, rec); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
	}

	n, err := repo.MarkInterrupted(ctx, "interrupted by restart")
	if err != nil {
		t.Fatalf("MarkInterrupted() error = %v", err)
	}
	if n != 2 {
		t.Errorf("MarkInterrupted() = %d, want 2", n)
	}

	a, _ := repo.Get(ctx, "a.txt")
	if a.Status != StatusFailed || a.Progress != 0 || a.Error != "interrupted by restart" {
		t.Errorf("a.txt = %+v, want failed with reason", a)
	}
	c, _ := repo.Get(ctx, "c.txt")
	if c.Status != StatusCompleted || c.FileID != "f" {
		t.Errorf("c.txt = %+v, want untouched completed row", c)
	}
}

func TestStatusRepo_ConcurrentWriters(t *testing.T) {
	repo := NewStatusRepo(newTestDB(t))
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := &StatusRecord{Filename: fmt.Sprintf("file-%d.txt", i), Status: StatusProcessing}
			if err := repo.Upsert(ctx, rec); err != nil {
				errs <- err
				return
			}
			if err := repo.UpdateProgress(ctx, rec.Filename, 50); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent write error = %v", err)
	}

	records, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != 20 {
		t.Errorf("List() returned %d records, want 20", len(records))
	}
	for _, rec := range records {
		if rec.Progress != 50 {
			t.Errorf("%s progress = %d, want 50", rec.Filename, rec.Progress)
		}
	}
}
