package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"rag-qdrant/internal/contextutil"
	"rag-qdrant/internal/rag"
)

// AskHandler handles HTTP requests for RAG queries.
type AskHandler struct {
	ragEngine rag.Engine
}

// NewAskHandler creates a new AskHandler.
func NewAskHandler(ragEngine rag.Engine) *AskHandler {
	return &AskHandler{ragEngine: ragEngine}
}

// AskRequest represents the HTTP request payload for RAG queries.
//
// swagger:model AskRequest
type AskRequest struct {
	// The question to answer
	Query string `json:"query"`

	// Optional uploaded filename to restrict the answer to
	Filename string `json:"filename,omitempty"`
}

// AskResponse represents the HTTP response payload for RAG queries.
//
// swagger:model AskResponse
type AskResponse struct {
	// The generated answer
	Answer string `json:"answer"`

	// Chunks given to the model as context, best match first
	Sources []SourceResponse `json:"sources"`
}

// SourceResponse identifies a retrieved chunk.
//
// swagger:model SourceResponse
type SourceResponse struct {
	Filename   string  `json:"filename"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float32 `json:"score"`
}

// decodeAskRequest reads and validates the JSON body shared by /ask and /ask_stream.
func decodeAskRequest(w http.ResponseWriter, r *http.Request) (rag.AskRequest, bool) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return rag.AskRequest{}, false
	}
	if strings.TrimSpace(req.Query) == "" {
		logger.WarnContext(ctx, "empty query in request")
		writeError(w, http.StatusBadRequest, "Query is missing")
		return rag.AskRequest{}, false
	}
	return rag.AskRequest{Query: req.Query, Filename: req.Filename}, true
}

// ServeHTTP handles HTTP requests for RAG queries.
//
// swagger:route POST /ask askQuestion
//
// # Ask a question
//
// Answers the question from the ingested documents, optionally restricted to one file.
//
// ---
// consumes:
// - application/json
// produces:
// - application/json
// responses:
//
//	'200':
//	  description: Answer with sources
//	  schema:
//	    "$ref": "#/definitions/AskResponse"
//	'400':
//	  description: Invalid body, missing query, or file not ready
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
//	'404':
//	  description: Unknown filename
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
//	'502':
//	  description: Embedding, vector store or LLM failure
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
func (h *AskHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := decodeAskRequest(w, r)
	if !ok {
		return
	}

	ragResp, err := h.ragEngine.Ask(ctx, req)
	if err != nil {
		handleServiceError(w, ctx, err, "Failed to process RAG query")
		return
	}

	sources := make([]SourceResponse, len(ragResp.Sources))
	for i, s := range ragResp.Sources {
		sources[i] = SourceResponse{
			Filename:   s.Filename,
			ChunkIndex: s.ChunkIndex,
			Score:      s.Score,
		}
	}

	writeJSON(w, ctx, http.StatusOK, AskResponse{
		Answer:  ragResp.Answer,
		Sources: sources,
	})
}

// AskStreamHandler streams answers as plain text.
type AskStreamHandler struct {
	ragEngine rag.Engine
}

// NewAskStreamHandler creates a new AskStreamHandler.
func NewAskStreamHandler(ragEngine rag.Engine) *AskStreamHandler {
	return &AskStreamHandler{ragEngine: ragEngine}
}

// ServeHTTP streams the answer as chunked text/plain, flushing every delta.
// Errors before the first byte are JSON responses; later errors end the body
// with an "error: ..." line since the status code is already sent.
func (h *AskStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	req, ok := decodeAskRequest(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		logger.ErrorContext(ctx, "streaming not supported by response writer")
		writeError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	started := false
	err := h.ragEngine.AskStream(ctx, req, func(chunk string) error {
		if !started {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Header().Set("Cache-Control", "no-cache")
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if _, err := fmt.Fprint(w, chunk); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err == nil {
		return
	}

	if !started {
		handleServiceError(w, ctx, err, "Failed to process RAG query")
		return
	}

	logger.ErrorContext(ctx, "error streaming answer", "error", err)
	if ctx.Err() != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "\nerror: %s\n", err.Error())
	flusher.Flush()
}
