package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"rag-qdrant/internal/contextutil"
	"rag-qdrant/internal/storage"
)

// multipartMemory is how much of a multipart body is buffered in memory before spilling to disk.
const multipartMemory = 8 << 20

// Uploader accepts files for background ingestion.
type Uploader interface {
	Upload(ctx context.Context, filename string, r io.Reader) (*storage.StatusRecord, error)
}

// IngestHandler handles HTTP file uploads.
type IngestHandler struct {
	uploader Uploader
	maxBytes int64
}

// NewIngestHandler creates a new IngestHandler. Bodies larger than maxBytes are rejected.
func NewIngestHandler(uploader Uploader, maxBytes int64) *IngestHandler {
	return &IngestHandler{uploader: uploader, maxBytes: maxBytes}
}

// IngestResponse represents the response to an accepted upload.
//
// swagger:model IngestResponse
type IngestResponse struct {
	// Human-readable confirmation
	Message string `json:"message"`

	// Where to poll for ingestion progress
	StatusURL string `json:"status_url"`
}

// ServeHTTP handles file uploads.
//
// swagger:route POST /ingest ingestFile
//
// # Upload a document for ingestion
//
// Saves the multipart field `file` and starts ingesting it in the background.
//
// ---
// consumes:
// - multipart/form-data
// produces:
// - application/json
// responses:
//
//	'200':
//	  description: File saved and queued
//	  schema:
//	    "$ref": "#/definitions/IngestResponse"
//	'400':
//	  description: Missing, empty or unsupported file
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
//	'413':
//	  description: File too large
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
//	'503':
//	  description: Ingestion queue is full
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if h.maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			logger.WarnContext(ctx, "upload too large", "limit", tooLarge.Limit)
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("File exceeds the %d MB upload limit", tooLarge.Limit>>20))
			return
		}
		logger.WarnContext(ctx, "invalid multipart body", "error", err)
		writeError(w, http.StatusBadRequest, "Expected a multipart form with a file field")
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		logger.WarnContext(ctx, "missing file field", "error", err)
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer func() {
		_ = file.Close()
	}()

	rec, err := h.uploader.Upload(ctx, header.Filename, file)
	if err != nil {
		handleServiceError(w, ctx, err, "Failed to save upload")
		return
	}

	writeJSON(w, ctx, http.StatusOK, IngestResponse{
		Message:   fmt.Sprintf("%s uploaded successfully. Ingestion started.", rec.Filename),
		StatusURL: "/status/" + url.PathEscape(rec.Filename),
	})
}
