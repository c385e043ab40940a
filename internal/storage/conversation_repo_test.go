package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"rag-qdrant/internal/memory"
)

func TestConversationRepo_AppendRecent(t *testing.T) {
	repo := NewConversationRepo(newTestDB(t))
	ctx := context.Background()
	created := time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)

	for i := 1; i <= 3; i++ {
		turn := memory.Turn{Query: fmt.Sprintf("q%d", i), Answer: fmt.Sprintf("a%d", i), CreatedAt: created}
		if err := repo.Append(ctx, memory.GlobalScope, turn); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
	if err := repo.Append(ctx, "file-1", memory.Turn{Query: "scoped", Answer: "x", CreatedAt: created}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	tests := []struct {
		name  string
		scope string
		n     int
		want  []string
	}{
		{"all turns", memory.GlobalScope, 0, []string{"q1", "q2", "q3"}},
		{"last two oldest first", memory.GlobalScope, 2, []string{"q2", "q3"}},
		{"n larger than log", memory.GlobalScope, 50, []string{"q1", "q2", "q3"}},
		{"scoped log", "file-1", 0, []string{"scoped"}},
		{"empty scope", "file-2", 0, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			turns, err := repo.Recent(ctx, tt.scope, tt.n)
			if err != nil {
				t.Fatalf("Recent() error = %v", err)
			}
			if len(turns) != len(tt.want) {
				t.Fatalf("Recent() returned %d turns, want %d", len(turns), len(tt.want))
			}
			for i, turn := range turns {
				if turn.Query != tt.want[i] {
					t.Errorf("Recent()[%d].Query = %v, want %v", i, turn.Query, tt.want[i])
				}
				if !turn.CreatedAt.Equal(created) {
					t.Errorf("Recent()[%d].CreatedAt = %v, want %v", i, turn.CreatedAt, created)
				}
			}
		})
	}
}

func TestConversationRepo_SurvivesReopen(t *testing.T) {
	path := t.TempDir() + "/conv.db"
	ctx := context.Background()

	db, err := New(path)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := NewConversationRepo(db).Append(ctx, memory.GlobalScope, memory.Turn{Query: "q", Answer: "a", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	_ = db.Close()

	db, err = New(path)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() {
		_ = db.Close()
	}()

	turns, err := NewConversationRepo(db).Recent(ctx, memory.GlobalScope, 0)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(turns) != 1 || turns[0].Answer != "a" {
		t.Errorf("Recent() after reopen = %+v, want one turn", turns)
	}
}
