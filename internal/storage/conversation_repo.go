package storage

import (
	"context"
	"database/sql"
	"fmt"

	"rag-qdrant/internal/memory"
)

// ConversationRepo persists conversation turns in SQLite.
// It implements memory.Store.
type ConversationRepo struct {
	db *sql.DB
}

var _ memory.Store = (*ConversationRepo)(nil)

// NewConversationRepo creates a new ConversationRepo.
func NewConversationRepo(db *sql.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// Append stores one turn under scope.
func (r *ConversationRepo) Append(ctx context.Context, scope string, turn memory.Turn) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO conversation_turns (scope, query, answer, created_at) VALUES (?, ?, ?, ?)`,
		scope, turn.Query, turn.Answer, formatTime(turn.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to append conversation turn: %w", err)
	}
	return nil
}

// Recent returns the last n turns for scope, oldest first. n <= 0 returns all of them.
func (r *ConversationRepo) Recent(ctx context.Context, scope string, n int) ([]memory.Turn, error) {
	limit := n
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT query, answer, created_at FROM (
			SELECT id, query, answer, created_at FROM conversation_turns
			WHERE scope = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`,
		scope, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversation turns: %w", err)
	}
	defer rows.Close()

	turns := make([]memory.Turn, 0)
	for rows.Next() {
		var turn memory.Turn
		var createdAt string
		if err := rows.Scan(&turn.Query, &turn.Answer, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation turn: %w", err)
		}
		turn.CreatedAt, err = parseTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse created_at timestamp: %w", err)
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversation turns: %w", err)
	}
	return turns, nil
}
