package vectorstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"rag-qdrant/internal/contextutil"
)

// PGVectorStore implements VectorStore on PostgreSQL with the pgvector extension.
// Each collection is a table of (id, embedding, metadata jsonb).
type PGVectorStore struct {
	db *bun.DB
}

// pgChunk is one row of a collection table. The table name is supplied per query.
type pgChunk struct {
	bun.BaseModel `bun:"alias:c"`

	ID        string         `bun:"id,pk"`
	Embedding pgVector       `bun:"embedding,type:vector"`
	Metadata  map[string]any `bun:"metadata,type:jsonb"`
	Score     float32        `bun:"score,scanonly"`
}

// NewPGVectorStore opens a bun connection to dsn. With debug set, every query is logged.
func NewPGVectorStore(dsn string, debug bool) *PGVectorStore {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return &PGVectorStore{db: db}
}

// Close closes the connection pool.
func (s *PGVectorStore) Close() error {
	return s.db.Close()
}

// CollectionExists checks if the collection table exists.
func (s *PGVectorStore) CollectionExists(ctx context.Context, collection string) (bool, error) {
	var exists bool
	err := s.db.NewRaw(
		"SELECT EXISTS (SELECT 1 FROM pg_class WHERE relname = ? AND relkind = 'r')", collection,
	).Scan(ctx, &exists)
	if err != nil {
		return false, fmt.Errorf("failed to check collection existence: %w", err)
	}
	return exists, nil
}

// EnsureCollection creates the vector extension, the collection table and its indexes,
// or validates the embedding column size of an existing table.
func (s *PGVectorStore) EnsureCollection(ctx context.Context, collection string, vectorSize int) error {
	logger := contextutil.LoggerFromContext(ctx)

	if _, err := s.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to enable pgvector: %w", err)
	}

	exists, err := s.CollectionExists(ctx, collection)
	if err != nil {
		return err
	}

	if !exists {
		logger.InfoContext(ctx, "creating collection", "collection", collection, "vector_size", vectorSize)
		stmts := []struct {
			query string
			args  []any
		}{
			{
				"CREATE TABLE IF NOT EXISTS ? (id TEXT PRIMARY KEY, embedding vector(?) NOT NULL, metadata JSONB NOT NULL DEFAULT '{}')",
				[]any{bun.Ident(collection), vectorSize},
			},
			{
				"CREATE INDEX IF NOT EXISTS ? ON ? USING hnsw (embedding vector_cosine_ops)",
				[]any{bun.Ident(collection + "_embedding_idx"), bun.Ident(collection)},
			},
			{
				"CREATE INDEX IF NOT EXISTS ? ON ? ((metadata->>'file_id'))",
				[]any{bun.Ident(collection + "_file_id_idx"), bun.Ident(collection)},
			},
		}
		for _, stmt := range stmts {
			if _, err := s.db.ExecContext(ctx, stmt.query, stmt.args...); err != nil {
				return fmt.Errorf("failed to create collection: %w", err)
			}
		}
		return nil
	}

	var actualSize int
	err = s.db.NewRaw(
		`SELECT a.atttypmod FROM pg_attribute a
		JOIN pg_class c ON c.oid = a.attrelid
		WHERE c.relname = ? AND c.relkind = 'r' AND a.attname = 'embedding'`, collection,
	).Scan(ctx, &actualSize)
	if err != nil {
		return fmt.Errorf("failed to read collection vector size: %w", err)
	}
	if actualSize != vectorSize {
		return fmt.Errorf("%w: %s expects %d, embeddings have %d", ErrDimensionMismatch, collection, actualSize, vectorSize)
	}

	logger.InfoContext(ctx, "collection validated", "collection", collection, "vector_size", vectorSize)
	return nil
}

// Upsert inserts points, replacing embedding and metadata on id conflict.
func (s *PGVectorStore) Upsert(ctx context.Context, collection string, points []Point) error {
	logger := contextutil.LoggerFromContext(ctx)

	if len(points) == 0 {
		return nil
	}

	rows := make([]pgChunk, 0, len(points))
	for _, p := range points {
		meta := p.Meta
		if meta == nil {
			meta = map[string]any{}
		}
		rows = append(rows, pgChunk{ID: p.ID, Embedding: pgVector(p.Vec), Metadata: meta})
	}

	_, err := s.db.NewInsert().
		Model(&rows).
		ModelTableExpr("? AS c", bun.Ident(collection)).
		On("CONFLICT (id) DO UPDATE").
		Set("embedding = EXCLUDED.embedding").
		Set("metadata = EXCLUDED.metadata").
		Exec(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "failed to upsert points", "collection", collection, "count", len(points), "error", err)
		return fmt.Errorf("failed to upsert points: %w", err)
	}

	logger.DebugContext(ctx, "upserted points", "collection", collection, "count", len(points))
	return nil
}

// Search orders by cosine distance and reports 1 - distance as the score.
func (s *PGVectorStore) Search(ctx context.Context, collection string, query []float32, k int, filters map[string]any) ([]SearchResult, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if k <= 0 {
		return nil, fmt.Errorf("k must be greater than 0")
	}

	var rows []pgChunk
	if err := s.searchQuery(&rows, collection, query, k, filters).Scan(ctx); err != nil {
		logger.ErrorContext(ctx, "failed to search points", "collection", collection, "k", k, "error", err)
		return nil, fmt.Errorf("failed to search points: %w", err)
	}

	results := make([]SearchResult, 0, len(rows))
	for _, row := range rows {
		results = append(results, SearchResult{
			PointID: row.ID,
			Score:   row.Score,
			Meta:    pgMeta(row.Metadata),
		})
	}

	logger.DebugContext(ctx, "search completed", "collection", collection, "k", k, "results", len(results))
	return results, nil
}

func (s *PGVectorStore) searchQuery(rows *[]pgChunk, collection string, query []float32, k int, filters map[string]any) *bun.SelectQuery {
	vec := pgVector(query)
	q := s.db.NewSelect().
		Model(rows).
		ModelTableExpr("? AS c", bun.Ident(collection)).
		Column("id", "metadata").
		ColumnExpr("1 - (c.embedding <=> ?) AS score", vec)
	q = applyPGFilters(q, filters)
	return q.OrderExpr("c.embedding <=> ?", vec).Limit(k)
}

// Delete removes points by their IDs.
func (s *PGVectorStore) Delete(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.NewDelete().
		Model((*pgChunk)(nil)).
		ModelTableExpr("? AS c", bun.Ident(collection)).
		Where("c.id IN (?)", bun.In(ids)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete points: %w", err)
	}
	contextutil.LoggerFromContext(ctx).InfoContext(ctx, "deleted points", "collection", collection, "count", len(ids))
	return nil
}

// DeleteByFilter removes every point matching filters. Empty filters are rejected.
func (s *PGVectorStore) DeleteByFilter(ctx context.Context, collection string, filters map[string]any) error {
	if len(filters) == 0 {
		return fmt.Errorf("delete by filter requires at least one condition")
	}
	q := s.db.NewDelete().
		Model((*pgChunk)(nil)).
		ModelTableExpr("? AS c", bun.Ident(collection))
	for _, key := range sortedKeys(filters) {
		q = q.Where("c.metadata->>? = ?", key, stringify(filters[key]))
	}
	if _, err := q.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete points by filter: %w", err)
	}
	contextutil.LoggerFromContext(ctx).InfoContext(ctx, "deleted points by filter", "collection", collection, "filters", filters)
	return nil
}

func applyPGFilters(q *bun.SelectQuery, filters map[string]any) *bun.SelectQuery {
	for _, key := range sortedKeys(filters) {
		q = q.Where("c.metadata->>? = ?", key, stringify(filters[key]))
	}
	return q
}

// pgMeta restores chunk_index to an int; jsonb numbers decode as float64.
func pgMeta(meta map[string]any) map[string]any {
	if meta == nil {
		return map[string]any{}
	}
	if f, ok := meta["chunk_index"].(float64); ok {
		meta["chunk_index"] = int(f)
	}
	return meta
}

// pgVector is the pgvector text representation: [1,2,3].
type pgVector []float32

// Value implements driver.Valuer.
func (v pgVector) Value() (driver.Value, error) {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String(), nil
}

// Scan implements sql.Scanner.
func (v *pgVector) Scan(src any) error {
	var s string
	switch val := src.(type) {
	case nil:
		*v = nil
		return nil
	case string:
		s = val
	case []byte:
		s = string(val)
	default:
		return fmt.Errorf("cannot scan %T into vector", src)
	}

	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return fmt.Errorf("invalid vector literal %q", s)
	}
	s = s[1 : len(s)-1]
	if s == "" {
		*v = pgVector{}
		return nil
	}

	parts := strings.Split(s, ",")
	out := make(pgVector, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return fmt.Errorf("invalid vector element %q: %w", p, err)
		}
		out[i] = float32(f)
	}
	*v = out
	return nil
}
