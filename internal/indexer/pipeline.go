package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"rag-qdrant/internal/contextutil"
	"rag-qdrant/internal/service"
	"rag-qdrant/internal/vectorstore"
)

// Pipeline chunks, embeds, and stores documents in the vector store.
type Pipeline struct {
	embedder    Embedder
	vectorStore vectorstore.VectorStore
	collection  string
	chunker     *Chunker
	batchSize   int
	now         func() time.Time
}

// NewPipeline creates a new ingestion pipeline. Embedding and upserts happen in
// batches of batchSize chunks.
func NewPipeline(
	embedder Embedder,
	vectorStore vectorstore.VectorStore,
	collection string,
	chunker *Chunker,
	batchSize int,
) *Pipeline {
	if batchSize <= 0 {
		batchSize = 20
	}
	return &Pipeline{
		embedder:    embedder,
		vectorStore: vectorStore,
		collection:  collection,
		chunker:     chunker,
		batchSize:   batchSize,
		now:         time.Now,
	}
}

// Ingest stores doc under a new file_id. progress, if non-nil, is called after
// each stored batch. On failure, points already written for the file_id are removed.
func (p *Pipeline) Ingest(ctx context.Context, doc Document, progress ProgressFunc) (*Result, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if strings.TrimSpace(doc.Text) == "" {
		return nil, &service.ValidationError{Field: "text", Message: "no text could be extracted"}
	}

	chunks, err := p.chunker.Split(doc.Text)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, &service.ValidationError{Field: "text", Message: "document produced no chunks"}
	}

	fileID := uuid.New().String()
	ingestedAt := p.now().UTC().Format(time.RFC3339)
	logger.InfoContext(ctx, "ingesting document", "file_id", fileID, "chunks", len(chunks))

	var pointIDs []string
	stored := 0
	for start := 0; start < len(chunks); start += p.batchSize {
		end := min(start+p.batchSize, len(chunks))
		ids, err := p.storeBatch(ctx, chunks[start:end], doc, fileID, ingestedAt)
		if err != nil {
			if len(pointIDs) > 0 {
				p.cleanup(ctx, fileID, pointIDs)
			}
			return nil, err
		}

		pointIDs = append(pointIDs, ids...)
		stored += end - start
		if progress != nil {
			progress(stored, len(chunks))
		}
		logger.DebugContext(ctx, "stored batch", "file_id", fileID, "done", stored, "total", len(chunks))
	}

	stats := chunkSizeStats(chunks)
	logger.InfoContext(ctx, "ingested document",
		"file_id", fileID, "chunks", stored, "min_runes", stats.Min, "max_runes", stats.Max, "p95_runes", stats.P95)

	return &Result{FileID: fileID, Chunks: stored, Sizes: stats}, nil
}

func (p *Pipeline) storeBatch(ctx context.Context, batch []Chunk, doc Document, fileID, ingestedAt string) ([]string, error) {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Text
	}

	vectors, err := p.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return nil, service.ExternalError(err, "failed to embed chunks")
	}
	if len(vectors) != len(batch) {
		return nil, fmt.Errorf("embedding count mismatch: expected %d, got %d", len(batch), len(vectors))
	}

	points := make([]vectorstore.Point, len(batch))
	ids := make([]string, len(batch))
	for i, c := range batch {
		ids[i] = uuid.New().String()
		hash := sha256.Sum256([]byte(c.Text))
		points[i] = vectorstore.Point{
			ID:  ids[i],
			Vec: vectors[i],
			Meta: map[string]any{
				"text":         c.Text,
				"filename":     doc.Filename,
				"source":       doc.Source,
				"chunk_index":  c.Index,
				"content_hash": hex.EncodeToString(hash[:]),
				"file_id":      fileID,
				"ingested_at":  ingestedAt,
			},
		}
	}

	if err := p.vectorStore.Upsert(ctx, p.collection, points); err != nil {
		return nil, service.ExternalError(err, "failed to upsert vectors")
	}
	return ids, nil
}

// DeleteFile removes every point stored under fileID.
func (p *Pipeline) DeleteFile(ctx context.Context, fileID string) error {
	if err := p.vectorStore.DeleteByFilter(ctx, p.collection, map[string]any{"file_id": fileID}); err != nil {
		return service.ExternalError(err, "failed to delete file points")
	}
	return nil
}

// cleanup removes the points of a partially stored file.
func (p *Pipeline) cleanup(ctx context.Context, fileID string, pointIDs []string) {
	ctx = context.WithoutCancel(ctx)
	if err := p.vectorStore.Delete(ctx, p.collection, pointIDs); err != nil {
		contextutil.LoggerFromContext(ctx).WarnContext(ctx, "failed to remove partial file", "file_id", fileID, "error", err)
	}
}
