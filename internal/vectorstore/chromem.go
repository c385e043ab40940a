package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"

	"rag-qdrant/internal/contextutil"
)

var errPrecomputedOnly = errors.New("chromem store only accepts precomputed embeddings")

// ChromemStore implements VectorStore on an embedded chromem-go database.
// Payload values are stored as strings; chunk_index is restored to an int on read.
type ChromemStore struct {
	db *chromem.DB

	mu   sync.RWMutex
	dims map[string]int
}

// NewChromemStore opens a chromem database. An empty path keeps everything in memory,
// otherwise collections are persisted under path.
func NewChromemStore(path string) (*ChromemStore, error) {
	db := chromem.NewDB()
	if path != "" {
		var err error
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("failed to open chromem database: %w", err)
		}
	}
	return &ChromemStore{
		db:   db,
		dims: make(map[string]int),
	}, nil
}

// noEmbedding is installed on every collection; embeddings are always computed upstream.
func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errPrecomputedOnly
}

// Close is a no-op; persistent collections are written on every change.
func (s *ChromemStore) Close() error {
	return nil
}

// CollectionExists checks if a collection exists.
func (s *ChromemStore) CollectionExists(_ context.Context, collection string) (bool, error) {
	_, ok := s.db.ListCollections()[collection]
	return ok, nil
}

// EnsureCollection creates the collection if needed and records the vector size
// that Upsert and Search validate against.
func (s *ChromemStore) EnsureCollection(ctx context.Context, collection string, vectorSize int) error {
	logger := contextutil.LoggerFromContext(ctx)

	if vectorSize <= 0 {
		return fmt.Errorf("vector size must be greater than 0")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.dims[collection]; ok && existing != vectorSize {
		return fmt.Errorf("%w: %s expects %d, embeddings have %d", ErrDimensionMismatch, collection, existing, vectorSize)
	}

	c, err := s.db.GetOrCreateCollection(collection, nil, noEmbedding)
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	if _, known := s.dims[collection]; !known && c.Count() > 0 {
		if err := checkStoredSize(ctx, c, vectorSize); err != nil {
			return err
		}
	}
	s.dims[collection] = vectorSize

	logger.InfoContext(ctx, "collection ready", "collection", collection, "vector_size", vectorSize)
	return nil
}

// checkStoredSize validates vectorSize against a collection loaded from disk.
// chromem records no vector size, so one stored document is queried; chromem
// rejects a query whose length differs from the stored vectors.
func checkStoredSize(ctx context.Context, c *chromem.Collection, vectorSize int) error {
	query := make([]float32, vectorSize)
	for i := range query {
		query[i] = 1
	}
	res, err := c.QueryEmbedding(ctx, query, 1, nil, nil)
	if err != nil {
		return fmt.Errorf("%w: %s holds vectors of a size other than %d: %v", ErrDimensionMismatch, c.Name, vectorSize, err)
	}
	if len(res) > 0 && len(res[0].Embedding) != vectorSize {
		return fmt.Errorf("%w: %s expects %d, embeddings have %d", ErrDimensionMismatch, c.Name, len(res[0].Embedding), vectorSize)
	}
	return nil
}

func (s *ChromemStore) collection(name string) (*chromem.Collection, int, error) {
	s.mu.RLock()
	dim, ok := s.dims[name]
	s.mu.RUnlock()
	if !ok {
		return nil, 0, fmt.Errorf("collection %s not initialized", name)
	}
	c := s.db.GetCollection(name, noEmbedding)
	if c == nil {
		return nil, 0, fmt.Errorf("collection %s not found", name)
	}
	return c, dim, nil
}

// Upsert inserts or replaces documents. chromem overwrites documents with an existing ID.
func (s *ChromemStore) Upsert(ctx context.Context, collection string, points []Point) error {
	logger := contextutil.LoggerFromContext(ctx)

	if len(points) == 0 {
		return nil
	}

	c, dim, err := s.collection(collection)
	if err != nil {
		return err
	}

	docs := make([]chromem.Document, 0, len(points))
	for _, p := range points {
		if len(p.Vec) != dim {
			return fmt.Errorf("%w: point %s has %d dimensions, expected %d", ErrDimensionMismatch, p.ID, len(p.Vec), dim)
		}
		meta := make(map[string]string, len(p.Meta))
		for k, v := range p.Meta {
			meta[k] = stringify(v)
		}
		content := meta["text"]
		if content == "" {
			content = p.ID
		}
		docs = append(docs, chromem.Document{
			ID:        p.ID,
			Metadata:  meta,
			Embedding: p.Vec,
			Content:   content,
		})
	}

	if err := c.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		logger.ErrorContext(ctx, "failed to upsert points", "collection", collection, "count", len(points), "error", err)
		return fmt.Errorf("failed to upsert points: %w", err)
	}

	logger.DebugContext(ctx, "upserted points", "collection", collection, "count", len(points))
	return nil
}

// Search performs a similarity search with optional exact-match filters.
func (s *ChromemStore) Search(ctx context.Context, collection string, query []float32, k int, filters map[string]any) ([]SearchResult, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if k <= 0 {
		return nil, fmt.Errorf("k must be greater than 0")
	}

	c, dim, err := s.collection(collection)
	if err != nil {
		return nil, err
	}
	if len(query) != dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d", ErrDimensionMismatch, len(query), dim)
	}

	// chromem rejects nResults larger than the collection.
	count := c.Count()
	if count == 0 {
		return []SearchResult{}, nil
	}
	if k > count {
		k = count
	}

	found, err := c.QueryEmbedding(ctx, query, k, chromemWhere(filters), nil)
	if err != nil {
		logger.ErrorContext(ctx, "failed to search points", "collection", collection, "k", k, "error", err)
		return nil, fmt.Errorf("failed to search points: %w", err)
	}

	results := make([]SearchResult, 0, len(found))
	for _, r := range found {
		results = append(results, SearchResult{
			PointID: r.ID,
			Score:   r.Similarity,
			Meta:    chromemMeta(r.Metadata),
		})
	}

	logger.DebugContext(ctx, "search completed", "collection", collection, "k", k, "results", len(results))
	return results, nil
}

// Delete removes points by their IDs.
func (s *ChromemStore) Delete(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	c, _, err := s.collection(collection)
	if err != nil {
		return err
	}
	if err := c.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("failed to delete points: %w", err)
	}
	contextutil.LoggerFromContext(ctx).InfoContext(ctx, "deleted points", "collection", collection, "count", len(ids))
	return nil
}

// DeleteByFilter removes every point matching filters. Empty filters are rejected.
func (s *ChromemStore) DeleteByFilter(ctx context.Context, collection string, filters map[string]any) error {
	where := chromemWhere(filters)
	if len(where) == 0 {
		return fmt.Errorf("delete by filter requires at least one condition")
	}
	c, _, err := s.collection(collection)
	if err != nil {
		return err
	}
	if err := c.Delete(ctx, where, nil); err != nil {
		return fmt.Errorf("failed to delete points by filter: %w", err)
	}
	contextutil.LoggerFromContext(ctx).InfoContext(ctx, "deleted points by filter", "collection", collection, "filters", filters)
	return nil
}

func chromemWhere(filters map[string]any) map[string]string {
	if len(filters) == 0 {
		return nil
	}
	where := make(map[string]string, len(filters))
	for k, v := range filters {
		where[k] = stringify(v)
	}
	return where
}

func chromemMeta(meta map[string]string) map[string]any {
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	if raw, ok := meta["chunk_index"]; ok {
		if idx, err := strconv.Atoi(raw); err == nil {
			out["chunk_index"] = idx
		}
	}
	return out
}
