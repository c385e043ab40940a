package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"rag-qdrant/internal/contextutil"
	"rag-qdrant/internal/extract"
	"rag-qdrant/internal/indexer"
	"rag-qdrant/internal/service"
	"rag-qdrant/internal/storage"
)

// InterruptedReason is recorded on jobs that were processing when the process stopped.
const InterruptedReason = "interrupted by restart"

// Ingester stores extracted documents in the vector store.
type Ingester interface {
	Ingest(ctx context.Context, doc indexer.Document, progress indexer.ProgressFunc) (*indexer.Result, error)
	DeleteFile(ctx context.Context, fileID string) error
}

// ExtractFunc returns the text content of the file at path.
type ExtractFunc func(ctx context.Context, path string) (string, error)

// Options configures a Manager.
type Options struct {
	UploadDir string
	Workers   int
	QueueSize int
	Extract   ExtractFunc // defaults to extract.Extract
}

type job struct {
	filename string
	path     string
	seq      uint64
}

// Manager accepts uploads and ingests them on a fixed pool of workers.
// Status is persisted in the StatusStore so it survives restarts.
type Manager struct {
	statuses  storage.StatusStore
	pipeline  Ingester
	extract   ExtractFunc
	uploadDir string

	baseCtx context.Context
	jobs    chan job
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	// genMu orders uploads against job completion. Only the newest queued
	// job for a filename may write its final status.
	genMu  sync.Mutex
	seq    uint64
	latest map[string]uint64
}

// NewManager creates a Manager and starts its workers. Jobs run with a context
// derived from ctx, so its logger is inherited but its cancellation is not.
func NewManager(ctx context.Context, statuses storage.StatusStore, pipeline Ingester, opts Options) *Manager {
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.Extract == nil {
		opts.Extract = extract.Extract
	}

	m := &Manager{
		statuses:  statuses,
		pipeline:  pipeline,
		extract:   opts.Extract,
		uploadDir: opts.UploadDir,
		baseCtx:   context.WithoutCancel(ctx),
		jobs:      make(chan job, opts.QueueSize),
		latest:    make(map[string]uint64),
	}

	for i := 0; i < opts.Workers; i++ {
		m.wg.Add(1)
		go m.worker(i)
	}
	return m
}

// Upload saves the file, records it as processing and queues it for ingestion.
// It returns as soon as the job is queued.
func (m *Manager) Upload(ctx context.Context, filename string, r io.Reader) (*storage.StatusRecord, error) {
	logger := contextutil.LoggerFromContext(ctx)

	name := baseName(filename)
	if name == "" {
		return nil, &service.ValidationError{Field: "file", Message: "filename is required"}
	}
	if !extract.Supported(name) {
		return nil, &service.ValidationError{
			Field:   "file",
			Message: fmt.Sprintf("unsupported file type %q, supported: %s", filepath.Ext(name), strings.Join(extract.Extensions(), ", ")),
		}
	}

	path, err := m.save(name, r)
	if err != nil {
		return nil, err
	}

	m.genMu.Lock()
	defer m.genMu.Unlock()

	var previousFileID string
	prev, err := m.statuses.Get(ctx, name)
	switch {
	case err == nil:
		previousFileID = prev.FileID
	case !errors.Is(err, storage.ErrNotFound):
		return nil, service.WrapError(err, "failed to read status")
	}

	rec := &storage.StatusRecord{
		Filename: name,
		Status:   storage.StatusProcessing,
		Progress: 0,
		FileID:   previousFileID,
	}
	if err := m.statuses.Upsert(ctx, rec); err != nil {
		return nil, service.WrapError(err, "failed to record status")
	}

	j := job{filename: name, path: path, seq: m.seq + 1}
	if err := m.enqueue(j); err != nil {
		rec.Status = storage.StatusFailed
		rec.Error = err.Error()
		if uerr := m.statuses.Upsert(ctx, rec); uerr != nil {
			logger.ErrorContext(ctx, "failed to record rejected upload", "file", name, "error", uerr)
		}
		return nil, err
	}
	m.seq = j.seq
	m.latest[name] = j.seq

	logger.InfoContext(ctx, "queued file for ingestion", "file", name, "path", path)
	return rec, nil
}

// Status returns the ingestion record for filename.
func (m *Manager) Status(ctx context.Context, filename string) (*storage.StatusRecord, error) {
	rec, err := m.statuses.Get(ctx, baseName(filename))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: no ingestion record for %q", service.ErrNotFound, filename)
	}
	if err != nil {
		return nil, service.WrapError(err, "failed to read status")
	}
	return rec, nil
}

// List returns every ingestion record.
func (m *Manager) List(ctx context.Context) ([]*storage.StatusRecord, error) {
	records, err := m.statuses.List(ctx)
	if err != nil {
		return nil, service.WrapError(err, "failed to list statuses")
	}
	return records, nil
}

// RecoverInterrupted fails records left in processing by a previous run.
func (m *Manager) RecoverInterrupted(ctx context.Context) (int, error) {
	n, err := m.statuses.MarkInterrupted(ctx, InterruptedReason)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		contextutil.LoggerFromContext(ctx).WarnContext(ctx, "marked interrupted ingestions as failed", "count", n)
	}
	return n, nil
}

// Close stops accepting uploads and waits for queued and running jobs to finish.
func (m *Manager) Close() {
	m.mu.Lock()
	if !m.closed {
		m.closed = true
		close(m.jobs)
	}
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *Manager) enqueue(j job) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return fmt.Errorf("%w: ingestion is shutting down", service.ErrQueueFull)
	}
	select {
	case m.jobs <- j:
		return nil
	default:
		return fmt.Errorf("%w: %d jobs waiting", service.ErrQueueFull, cap(m.jobs))
	}
}

// save writes r to the upload directory through a temporary file so workers
// never read a partially written upload.
func (m *Manager) save(name string, r io.Reader) (string, error) {
	if err := os.MkdirAll(m.uploadDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}

	tmp, err := os.CreateTemp(m.uploadDir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	n, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("failed to save upload: %w", err)
	}
	if n == 0 {
		return "", &service.ValidationError{Field: "file", Message: "file is empty"}
	}

	path := filepath.Join(m.uploadDir, name)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to save upload: %w", err)
	}
	return path, nil
}

func (m *Manager) worker(id int) {
	defer m.wg.Done()
	for j := range m.jobs {
		m.run(id, j)
	}
}

func (m *Manager) run(worker int, j job) {
	ctx := contextutil.WithAttrs(m.baseCtx, "job", "ingest", "worker", worker, "file", j.filename)
	logger := contextutil.LoggerFromContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			logger.ErrorContext(ctx, "ingestion panicked", "panic", r)
			m.fail(ctx, j, fmt.Errorf("ingestion panicked: %v", r))
		}
	}()

	logger.InfoContext(ctx, "starting ingestion")

	text, err := m.extract(ctx, j.path)
	if err != nil {
		m.fail(ctx, j, err)
		return
	}

	progress := func(done, total int) {
		if total <= 0 || !m.isLatest(j) {
			return
		}
		// 100 is reserved for the completed record.
		pct := min(done*100/total, 99)
		if err := m.statuses.UpdateProgress(ctx, j.filename, pct); err != nil {
			logger.WarnContext(ctx, "failed to update progress", "error", err)
		}
	}

	result, err := m.pipeline.Ingest(ctx, indexer.Document{
		Text:     text,
		Filename: j.filename,
		Source:   j.path,
	}, progress)
	if err != nil {
		m.fail(ctx, j, err)
		return
	}

	replaced, current, err := m.finish(ctx, j, &storage.StatusRecord{
		Filename: j.filename,
		Status:   storage.StatusCompleted,
		Progress: 100,
		FileID:   result.FileID,
		Chunks:   result.Chunks,
	})
	if !current {
		logger.InfoContext(ctx, "discarding superseded ingestion", "file_id", result.FileID)
		if err := m.pipeline.DeleteFile(ctx, result.FileID); err != nil {
			logger.WarnContext(ctx, "failed to delete superseded version", "file_id", result.FileID, "error", err)
		}
		return
	}
	if err != nil {
		logger.ErrorContext(ctx, "failed to record completed ingestion", "file_id", result.FileID, "error", err)
		return
	}

	if replaced != "" && replaced != result.FileID {
		if err := m.pipeline.DeleteFile(ctx, replaced); err != nil {
			logger.WarnContext(ctx, "failed to delete previous version", "file_id", replaced, "error", err)
		}
	}

	logger.InfoContext(ctx, "ingestion completed", "file_id", result.FileID, "chunks", result.Chunks)
}

func (m *Manager) fail(ctx context.Context, j job, cause error) {
	logger := contextutil.LoggerFromContext(ctx)
	logger.ErrorContext(ctx, "ingestion failed", "error", cause)

	_, current, err := m.finish(ctx, j, &storage.StatusRecord{
		Filename: j.filename,
		Status:   storage.StatusFailed,
		Progress: 0,
		Error:    cause.Error(),
	})
	if !current {
		logger.InfoContext(ctx, "superseded ingestion failed, status left to the newer upload")
		return
	}
	if err != nil {
		logger.ErrorContext(ctx, "failed to record failed ingestion", "error", err)
	}
}

func (m *Manager) isLatest(j job) bool {
	m.genMu.Lock()
	defer m.genMu.Unlock()
	return m.latest[j.filename] == j.seq
}

// finish writes rec if j is still the newest job for its filename and
// returns the file_id the row held before. A failed record keeps that file_id
// since its points are still stored. Superseded jobs report current=false and
// write nothing.
func (m *Manager) finish(ctx context.Context, j job, rec *storage.StatusRecord) (replaced string, current bool, err error) {
	m.genMu.Lock()
	defer m.genMu.Unlock()

	if m.latest[j.filename] != j.seq {
		return "", false, nil
	}
	delete(m.latest, j.filename)

	prev, err := m.statuses.Get(ctx, j.filename)
	switch {
	case err == nil:
		replaced = prev.FileID
	case !errors.Is(err, storage.ErrNotFound):
		contextutil.LoggerFromContext(ctx).WarnContext(ctx, "failed to read status before update", "error", err)
	}
	if rec.Status == storage.StatusFailed {
		rec.FileID = replaced
	}
	return replaced, true, m.statuses.Upsert(ctx, rec)
}

// baseName strips any directory components, including Windows ones, from a client filename.
func baseName(filename string) string {
	name := filepath.Base(strings.ReplaceAll(filename, `\`, "/"))
	switch name {
	case ".", "/", "..":
		return ""
	}
	return strings.TrimSpace(name)
}
