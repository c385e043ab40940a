// Package memory keeps the question/answer history used to give the model conversational context.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"
)

// GlobalScope is the conversation shared by every question not restricted to one file.
const GlobalScope = ""

// Turn is one answered question.
type Turn struct {
	Query     string
	Answer    string
	CreatedAt time.Time
}

// Store is an append-only log of turns keyed by scope.
type Store interface {
	// Append adds turn to the end of the scope's log.
	Append(ctx context.Context, scope string, turn Turn) error
	// Recent returns the last n turns of the scope, oldest first. n <= 0 returns all.
	Recent(ctx context.Context, scope string, n int) ([]Turn, error)
}

// Buffer is an in-process Store. It grows for the lifetime of the process.
type Buffer struct {
	mu    sync.RWMutex
	turns map[string][]Turn
}

var _ Store = (*Buffer)(nil)

// NewBuffer creates an empty Buffer.
func NewBuffer() *Buffer {
	return &Buffer{turns: make(map[string][]Turn)}
}

// Append adds turn to scope.
func (b *Buffer) Append(_ context.Context, scope string, turn Turn) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.turns[scope] = append(b.turns[scope], turn)
	return nil
}

// Recent returns a copy of the last n turns of scope.
func (b *Buffer) Recent(_ context.Context, scope string, n int) ([]Turn, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	turns := b.turns[scope]
	if n > 0 && len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out, nil
}

// Format renders turns as alternating "Human:" and "AI:" lines.
func Format(turns []Turn) string {
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Human: ")
		b.WriteString(t.Query)
		b.WriteString("\nAI: ")
		b.WriteString(t.Answer)
	}
	return b.String()
}
