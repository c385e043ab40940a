package rag

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"rag-qdrant/internal/contextutil"
	"rag-qdrant/internal/llm"
	"rag-qdrant/internal/memory"
	"rag-qdrant/internal/service"
	"rag-qdrant/internal/storage"
	"rag-qdrant/internal/vectorstore"
)

// NoContextAnswer is returned when retrieval finds nothing. The model is not called.
const NoContextAnswer = "I couldn't find any relevant information in the uploaded documents to answer this question."

const (
	defaultTopK            = 4
	defaultStreamMaxTokens = 500
	answerTemperature      = 0.3
)

const promptTemplate = `Previous conversation:
%s

User asked: %s

Relevant context:
%s

Answer clearly and conversationally:`

// Engine answers questions from the ingested documents.
type Engine interface {
	// Ask retrieves context for req.Query and returns the model's answer.
	Ask(ctx context.Context, req AskRequest) (AskResponse, error)
	// AskStream is Ask with the answer delivered to callback as the model produces it.
	AskStream(ctx context.Context, req AskRequest, callback func(chunk string) error) error
}

// QueryEmbedder embeds a single query text.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Options tunes retrieval and generation.
type Options struct {
	TopK            int // chunks retrieved per question, default 4
	HistoryTurns    int // turns of history in the prompt, 0 for all
	StreamMaxTokens int // output cap for streamed answers, default 500
}

// ragEngine implements the Engine interface.
type ragEngine struct {
	embedder    QueryEmbedder
	vectorStore vectorstore.VectorStore
	collection  string
	statuses    storage.StatusStore
	memory      memory.Store
	chat        llm.ChatModel
	opts        Options
	now         func() time.Time
}

// NewEngine creates a new RAG engine.
func NewEngine(
	embedder QueryEmbedder,
	vectorStore vectorstore.VectorStore,
	collection string,
	statuses storage.StatusStore,
	mem memory.Store,
	chat llm.ChatModel,
	opts Options,
) Engine {
	if opts.TopK <= 0 {
		opts.TopK = defaultTopK
	}
	if opts.HistoryTurns < 0 {
		opts.HistoryTurns = 0
	}
	if opts.StreamMaxTokens <= 0 {
		opts.StreamMaxTokens = defaultStreamMaxTokens
	}
	return &ragEngine{
		embedder:    embedder,
		vectorStore: vectorStore,
		collection:  collection,
		statuses:    statuses,
		memory:      mem,
		chat:        chat,
		opts:        opts,
		now:         time.Now,
	}
}

// retrieval is the prepared input for one answer.
type retrieval struct {
	query  string
	scope  string
	hits   []vectorstore.SearchResult
	prompt string
}

// Ask answers a question using RAG.
func (e *ragEngine) Ask(ctx context.Context, req AskRequest) (AskResponse, error) {
	logger := contextutil.LoggerFromContext(ctx)

	r, err := e.prepare(ctx, req)
	if err != nil {
		return AskResponse{}, err
	}
	if len(r.hits) == 0 {
		logger.InfoContext(ctx, "no relevant chunks found")
		return AskResponse{Answer: NoContextAnswer, Sources: []Source{}}, nil
	}

	answer, err := e.chat.ChatWithMessages(ctx, r.messages(), llm.ChatParams{Temperature: answerTemperature})
	if err != nil {
		logger.ErrorContext(ctx, "failed to get LLM response", "error", err)
		return AskResponse{}, service.ExternalError(err, "failed to generate answer")
	}

	e.remember(ctx, r, answer)
	logger.InfoContext(ctx, "question answered", "sources", len(r.hits), "answer_length", len(answer))

	return AskResponse{Answer: answer, Sources: sources(r.hits)}, nil
}

// AskStream answers a question, passing each delta from the model to callback.
// The turn is remembered only when the stream completes.
func (e *ragEngine) AskStream(ctx context.Context, req AskRequest, callback func(chunk string) error) error {
	logger := contextutil.LoggerFromContext(ctx)

	r, err := e.prepare(ctx, req)
	if err != nil {
		return err
	}
	if len(r.hits) == 0 {
		logger.InfoContext(ctx, "no relevant chunks found")
		return callback(NoContextAnswer)
	}

	var answer strings.Builder
	var callbackErr error
	err = e.chat.StreamChatWithMessages(ctx, r.messages(), llm.ChatParams{
		MaxTokens:   e.opts.StreamMaxTokens,
		Temperature: answerTemperature,
	}, func(chunk string) error {
		answer.WriteString(chunk)
		if err := callback(chunk); err != nil {
			callbackErr = err
			return err
		}
		return nil
	})
	if callbackErr != nil {
		logger.WarnContext(ctx, "stream aborted by client", "error", callbackErr, "streamed", answer.Len())
		return callbackErr
	}
	if err != nil {
		logger.ErrorContext(ctx, "failed to stream LLM response", "error", err, "streamed", answer.Len())
		return service.ExternalError(err, "failed to generate answer")
	}

	e.remember(ctx, r, answer.String())
	logger.InfoContext(ctx, "question answered", "sources", len(r.hits), "answer_length", answer.Len(), "stream", true)
	return nil
}

// prepare validates req, resolves its scope, retrieves context and builds the prompt.
func (e *ragEngine) prepare(ctx context.Context, req AskRequest) (*retrieval, error) {
	logger := contextutil.LoggerFromContext(ctx)

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, &service.ValidationError{Field: "query", Message: "query is required"}
	}

	scope, filters, err := e.resolveScope(ctx, strings.TrimSpace(req.Filename))
	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "RAG query started", "query_length", len(query), "scope", scope, "k", e.opts.TopK)

	vec, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		logger.ErrorContext(ctx, "failed to embed query", "error", err)
		return nil, service.ExternalError(err, "failed to embed query")
	}

	hits, err := e.vectorStore.Search(ctx, e.collection, vec, e.opts.TopK, filters)
	if err != nil {
		logger.ErrorContext(ctx, "failed to search vector store", "error", err)
		return nil, service.ExternalError(err, "failed to search vector store")
	}
	if len(hits) > e.opts.TopK {
		hits = hits[:e.opts.TopK]
	}
	logger.DebugContext(ctx, "vector search completed", "results", len(hits), "top_scores", topScores(hits, 3))

	r := &retrieval{query: query, scope: scope, hits: hits}
	if len(hits) == 0 {
		return r, nil
	}

	history, err := e.memory.Recent(ctx, scope, e.opts.HistoryTurns)
	if err != nil {
		logger.WarnContext(ctx, "failed to load conversation history", "error", err)
		history = nil
	}
	r.prompt = buildPrompt(memory.Format(history), query, hits)
	logger.DebugContext(ctx, "prompt built", "history_turns", len(history), "prompt_length", len(r.prompt))
	return r, nil
}

// resolveScope maps an optional filename to its memory scope and search filters.
func (e *ragEngine) resolveScope(ctx context.Context, filename string) (string, map[string]any, error) {
	if filename == "" {
		return memory.GlobalScope, nil, nil
	}

	rec, err := e.statuses.Get(ctx, filename)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil, fmt.Errorf("%w: no ingested file named %q", service.ErrNotFound, filename)
	}
	if err != nil {
		return "", nil, service.WrapError(err, "failed to resolve filename")
	}
	if rec.Status != storage.StatusCompleted || rec.FileID == "" {
		return "", nil, &service.ValidationError{
			Field:   "filename",
			Message: fmt.Sprintf("file %q is %s and cannot be queried yet", filename, rec.Status),
		}
	}
	return rec.FileID, map[string]any{"file_id": rec.FileID}, nil
}

func (e *ragEngine) remember(ctx context.Context, r *retrieval, answer string) {
	turn := memory.Turn{Query: r.query, Answer: answer, CreatedAt: e.now().UTC()}
	if err := e.memory.Append(ctx, r.scope, turn); err != nil {
		contextutil.LoggerFromContext(ctx).WarnContext(ctx, "failed to save conversation turn", "error", err)
	}
}

func (r *retrieval) messages() []llm.Message {
	return []llm.Message{{Role: llm.RoleUser, Content: r.prompt}}
}

// buildPrompt fills the answer template. Context is the chunk texts joined by newlines.
func buildPrompt(history, query string, hits []vectorstore.SearchResult) string {
	texts := make([]string, 0, len(hits))
	for _, h := range hits {
		if text, _ := h.Meta["text"].(string); text != "" {
			texts = append(texts, text)
		}
	}
	return fmt.Sprintf(promptTemplate, history, query, strings.Join(texts, "\n"))
}

func sources(hits []vectorstore.SearchResult) []Source {
	out := make([]Source, 0, len(hits))
	for _, h := range hits {
		filename, _ := h.Meta["filename"].(string)
		out = append(out, Source{
			Filename:   filename,
			ChunkIndex: metaInt(h.Meta["chunk_index"]),
			Score:      h.Score,
		})
	}
	return out
}

// metaInt reads an integer payload value whatever numeric type the store decoded it as.
func metaInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case float32:
		return int(n)
	case string:
		i, _ := strconv.Atoi(n)
		return i
	default:
		return 0
	}
}

func topScores(hits []vectorstore.SearchResult, n int) []float32 {
	scores := make([]float32, 0, n)
	for i := 0; i < len(hits) && i < n; i++ {
		scores = append(scores, hits[i].Score)
	}
	return scores
}
