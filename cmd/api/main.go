package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rag-qdrant/internal/config"
	"rag-qdrant/internal/http"
	"rag-qdrant/internal/indexer"
	"rag-qdrant/internal/ingest"
	"rag-qdrant/internal/llm"
	"rag-qdrant/internal/memory"
	"rag-qdrant/internal/rag"
	"rag-qdrant/internal/storage"
	"rag-qdrant/internal/vectorstore"
)

//go:generate swagger generate spec -o swagger.json

// General API information
//
// This API ingests PDF, DOCX, TXT, CSV, Markdown and XLSX documents into a vector
// store and answers questions about them with retrieval-augmented generation.
//
// swagger:meta
//
// ---
// swagger: '2.0'
// info:
//   title: RAG-Qdrant Backend
//   description: |
//     Upload documents, track their ingestion and ask questions grounded in their content.
//   version: 1.2.0
// schemes:
//   - http
// consumes:
//   - application/json
//   - multipart/form-data
// produces:
//   - application/json
//   - text/plain

const shutdownTimeout = 15 * time.Second

func main() {
	// Load configuration first (needed for log level)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	slog.Debug("Logging configured", "level", cfg.LogLevel.String(), "format", cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := storage.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() {
		_ = db.Close()
	}()

	if err := storage.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	slog.Info("Database initialized", "path", cfg.DBPath)

	statusRepo := storage.NewStatusRepo(db)

	vectorStore, err := newVectorStore(cfg)
	if err != nil {
		log.Fatalf("Failed to create vector store: %v", err)
	}
	defer func() {
		_ = vectorStore.Close()
	}()

	// The collection is sized from the embedding model (fail-fast)
	embedder := llm.NewEmbeddingsClient(cfg.EmbeddingBaseURL, cfg.EmbeddingAPIKey, cfg.EmbeddingModel, cfg.EmbeddingDim)
	vectorSize, err := embedder.Dimension(ctx)
	if err != nil {
		log.Fatalf("Failed to validate embedding client: %v", err)
	}
	if err := vectorStore.EnsureCollection(ctx, cfg.Collection, vectorSize); err != nil {
		log.Fatalf("Failed to ensure collection: %v", err)
	}
	slog.Info("Vector store ready", "backend", cfg.VectorStore, "collection", cfg.Collection, "vector_size", vectorSize)

	chatModel, err := newChatModel(cfg)
	if err != nil {
		log.Fatalf("Failed to create LLM client: %v", err)
	}

	var mem memory.Store = memory.NewBuffer()
	if cfg.MemoryBackend == config.MemoryBackendSQLite {
		mem = storage.NewConversationRepo(db)
	}

	chunker, err := indexer.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		log.Fatalf("Failed to create chunker: %v", err)
	}
	pipeline := indexer.NewPipeline(embedder, vectorStore, cfg.Collection, chunker, cfg.EmbeddingBatchSize)

	manager := ingest.NewManager(ctx, statusRepo, pipeline, ingest.Options{
		UploadDir: cfg.UploadDir,
		Workers:   cfg.Workers,
		QueueSize: cfg.QueueSize,
	})
	if n, err := manager.RecoverInterrupted(ctx); err != nil {
		slog.Error("Failed to recover interrupted ingestions", "error", err)
	} else if n > 0 {
		slog.Warn("Marked interrupted ingestions as failed", "count", n)
	}

	ragEngine := rag.NewEngine(embedder, vectorStore, cfg.Collection, statusRepo, mem, chatModel, rag.Options{
		TopK:         cfg.TopK,
		HistoryTurns: cfg.HistoryTurns,
	})
	slog.Info("RAG engine initialized", "top_k", cfg.TopK, "memory", cfg.MemoryBackend, "llm_provider", cfg.LLMProvider)

	router := http.NewRouter(&http.Deps{
		Uploader:       manager,
		Statuses:       manager,
		RAGEngine:      ragEngine,
		VectorStore:    vectorStore,
		DB:             db,
		Collection:     cfg.Collection,
		MaxUploadBytes: cfg.MaxUploadBytes(),
	})

	server := &nethttp.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("Starting API server", "addr", server.Addr)
		slog.Debug("LLM configuration", "base_url", cfg.LLMBaseURL, "model", cfg.LLMModel)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			slog.Error("API server failed", "error", err)
		}
	case <-ctx.Done():
		slog.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown failed", "error", err)
	}
	manager.Close()
	slog.Info("Shutdown complete")
}

func newVectorStore(cfg *config.Config) (vectorstore.VectorStore, error) {
	switch cfg.VectorStore {
	case config.VectorStoreChromem:
		return vectorstore.NewChromemStore(cfg.ChromemPath)
	case config.VectorStorePGVector:
		return vectorstore.NewPGVectorStore(cfg.PGDSN, cfg.PGDebug), nil
	default:
		return vectorstore.NewQdrantStore(cfg.QdrantURL, cfg.QdrantAPIKey)
	}
}

func newChatModel(cfg *config.Config) (llm.ChatModel, error) {
	if cfg.LLMProvider == config.LLMProviderLangchain {
		return llm.NewLangchainClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel)
	}
	return llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel), nil
}
