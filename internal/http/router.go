package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"rag-qdrant/internal/handlers"
	"rag-qdrant/internal/rag"
	"rag-qdrant/internal/vectorstore"
)

// Deps holds dependencies for the HTTP router.
type Deps struct {
	Uploader       handlers.Uploader
	Statuses       handlers.StatusReader
	RAGEngine      rag.Engine
	VectorStore    vectorstore.VectorStore
	DB             handlers.Pinger // optional
	Collection     string
	MaxUploadBytes int64
}

// NewRouter creates a new HTTP router with the provided dependencies.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(LoggerMiddleware)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(CORS)

	statusHandler := handlers.NewStatusHandler(deps.Statuses)

	r.Method(http.MethodGet, "/", handlers.NewRootHandler())
	r.Method(http.MethodGet, "/health", handlers.NewHealthHandler(deps.VectorStore, deps.DB, deps.Collection))

	r.Method(http.MethodPost, "/ingest", handlers.NewIngestHandler(deps.Uploader, deps.MaxUploadBytes))
	r.Get("/status", statusHandler.List)
	r.Get("/status/{filename}", statusHandler.Get)
	r.Get("/process/{filename}", statusHandler.Process)

	r.Method(http.MethodPost, "/ask", handlers.NewAskHandler(deps.RAGEngine))
	r.Method(http.MethodPost, "/ask_stream", handlers.NewAskStreamHandler(deps.RAGEngine))

	return r
}
