package vectorstore

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -destination=mocks/mock_vector_store.go -package=mocks rag-qdrant/internal/vectorstore VectorStore

import (
	"context"
	"errors"
)

// ErrDimensionMismatch is returned when a collection exists with a different vector size.
var ErrDimensionMismatch = errors.New("collection vector size mismatch")

// Point represents a vector point with metadata.
type Point struct {
	ID   string
	Vec  []float32
	Meta map[string]any
}

// SearchResult represents a search result from vector search.
// Score is a similarity: higher is closer.
type SearchResult struct {
	PointID string
	Score   float32
	Meta    map[string]any
}

// VectorStore defines the interface for vector storage operations.
// Filters are exact matches on payload keys.
type VectorStore interface {
	// EnsureCollection creates the collection with cosine distance, or validates
	// the vector size of an existing one.
	EnsureCollection(ctx context.Context, collection string, vectorSize int) error

	// CollectionExists reports whether the collection exists.
	CollectionExists(ctx context.Context, collection string) (bool, error)

	// Upsert inserts or updates points in the collection.
	Upsert(ctx context.Context, collection string, points []Point) error

	// Search performs a similarity search with optional filters.
	Search(ctx context.Context, collection string, query []float32, k int, filters map[string]any) ([]SearchResult, error)

	// Delete removes points by their IDs.
	Delete(ctx context.Context, collection string, ids []string) error

	// DeleteByFilter removes every point whose payload matches filters.
	DeleteByFilter(ctx context.Context, collection string, filters map[string]any) error

	// Close releases the underlying client.
	Close() error
}
