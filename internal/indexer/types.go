package indexer

import "context"

// Chunk is a piece of document text ready to be embedded.
type Chunk struct {
	Index int    // Position within the document (starts at 0)
	Text  string // Chunk text content
}

// Document is extracted text to ingest.
type Document struct {
	Text     string
	Filename string // Base filename the text came from
	Source   string // Path of the uploaded file on disk
}

// Result describes a completed ingestion.
type Result struct {
	FileID string
	Chunks int
	Sizes  ChunkSizeStats
}

// ProgressFunc receives the number of chunks stored so far and the total.
type ProgressFunc func(done, total int)

// Embedder turns texts into vectors, one per text, in input order.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}
