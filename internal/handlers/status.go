package handlers

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"rag-qdrant/internal/storage"
)

// StatusReader reads ingestion records.
type StatusReader interface {
	Status(ctx context.Context, filename string) (*storage.StatusRecord, error)
	List(ctx context.Context) ([]*storage.StatusRecord, error)
}

// StatusHandler serves ingestion status and progress.
type StatusHandler struct {
	statuses StatusReader
}

// NewStatusHandler creates a new StatusHandler.
func NewStatusHandler(statuses StatusReader) *StatusHandler {
	return &StatusHandler{statuses: statuses}
}

// StatusResponse is the ingestion record of one file.
//
// swagger:model StatusResponse
type StatusResponse struct {
	Filename  string `json:"filename"`
	Status    string `json:"status"`
	Progress  int    `json:"progress"`
	FileID    string `json:"file_id,omitempty"`
	Chunks    int    `json:"chunks,omitempty"`
	Error     string `json:"error,omitempty"`
	UpdatedAt string `json:"updated_at"`
}

// ProcessResponse is the simplified progress view polled by the frontend.
//
// swagger:model ProcessResponse
type ProcessResponse struct {
	// "processing", "done" or "failed"
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Error    string `json:"error,omitempty"`
}

func toStatusResponse(rec *storage.StatusRecord) StatusResponse {
	return StatusResponse{
		Filename:  rec.Filename,
		Status:    rec.Status,
		Progress:  rec.Progress,
		FileID:    rec.FileID,
		Chunks:    rec.Chunks,
		Error:     rec.Error,
		UpdatedAt: rec.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// Get handles GET /status/{filename}.
func (h *StatusHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rec, err := h.statuses.Status(ctx, filenameParam(r))
	if err != nil {
		handleServiceError(w, ctx, err, "Failed to read status")
		return
	}
	writeJSON(w, ctx, http.StatusOK, toStatusResponse(rec))
}

// List handles GET /status.
func (h *StatusHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	records, err := h.statuses.List(ctx)
	if err != nil {
		handleServiceError(w, ctx, err, "Failed to list statuses")
		return
	}

	resp := make([]StatusResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, toStatusResponse(rec))
	}
	writeJSON(w, ctx, http.StatusOK, resp)
}

// Process handles GET /process/{filename}.
func (h *StatusHandler) Process(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rec, err := h.statuses.Status(ctx, filenameParam(r))
	if err != nil {
		handleServiceError(w, ctx, err, "Failed to read status")
		return
	}

	var resp ProcessResponse
	switch rec.Status {
	case storage.StatusCompleted:
		resp = ProcessResponse{Status: "done", Progress: 100}
	case storage.StatusFailed:
		resp = ProcessResponse{Status: storage.StatusFailed, Progress: rec.Progress, Error: rec.Error}
	default:
		resp = ProcessResponse{Status: storage.StatusProcessing, Progress: rec.Progress}
	}
	writeJSON(w, ctx, http.StatusOK, resp)
}

// filenameParam returns the {filename} route parameter. chi matches on
// URL.RawPath when it is set, so only then is the parameter still escaped.
func filenameParam(r *http.Request) string {
	raw := chi.URLParam(r, "filename")
	if r.URL.RawPath == "" {
		return raw
	}
	if name, err := url.PathUnescape(raw); err == nil {
		return name
	}
	return raw
}
