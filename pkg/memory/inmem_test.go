package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/MrWong99/sereno/pkg/memory"
)

func TestInMemoryStore_SaveAndConversation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memory.NewInMemoryStore()
	now := time.Now()

	err := s.SaveConversation(ctx, "s1", []memory.TranscriptEntry{
		{Role: memory.RoleUser, Text: "Hello there", Timestamp: now},
		{Role: memory.RoleModel, Text: "Hi, how are you?", Timestamp: now.Add(time.Second)},
	})
	if err != nil {
		t.Fatalf("SaveConversation: %v", err)
	}

	got, err := s.Conversation(ctx, "s1")
	if err != nil {
		t.Fatalf("Conversation: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
	if got[0].Role != memory.RoleUser || got[0].Text != "Hello there" || got[0].SessionID != "s1" {
		t.Errorf("entry 0 = %+v", got[0])
	}
	if got[1].Role != memory.RoleModel {
		t.Errorf("entry 1 role = %q, want model", got[1].Role)
	}
}

func TestInMemoryStore_EmptySaveIsNoOp(t *testing.T) {
	t.Parallel()
	s := memory.NewInMemoryStore()
	if err := s.SaveConversation(context.Background(), "s1", nil); err != nil {
		t.Fatalf("SaveConversation: %v", err)
	}
	if ids := s.Sessions(); len(ids) != 0 {
		t.Errorf("sessions = %v, want none", ids)
	}
	got, err := s.Conversation(context.Background(), "s1")
	if err != nil || got == nil || len(got) != 0 {
		t.Errorf("Conversation = %v, %v; want empty non-nil slice", got, err)
	}
}

func TestInMemoryStore_Search(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memory.NewInMemoryStore()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	_ = s.SaveConversation(ctx, "a", []memory.TranscriptEntry{
		{Role: memory.RoleUser, Text: "I feel calm today", Timestamp: base},
		{Role: memory.RoleModel, Text: "Calm is good", Timestamp: base.Add(time.Minute)},
	})
	_ = s.SaveConversation(ctx, "b", []memory.TranscriptEntry{
		{Role: memory.RoleUser, Text: "Not calm at all", Timestamp: base.Add(2 * time.Minute)},
	})

	tests := []struct {
		name string
		opts memory.SearchOpts
		want int
	}{
		{name: "all sessions", want: 3},
		{name: "one session", opts: memory.SearchOpts{SessionID: "a"}, want: 2},
		{name: "role filter", opts: memory.SearchOpts{Role: memory.RoleUser}, want: 2},
		{name: "after", opts: memory.SearchOpts{After: base}, want: 2},
		{name: "before", opts: memory.SearchOpts{Before: base.Add(time.Minute)}, want: 1},
		{name: "limit", opts: memory.SearchOpts{Limit: 1}, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Search(ctx, "CALM", tt.opts)
			if err != nil {
				t.Fatalf("Search: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d results, want %d: %+v", len(got), tt.want, got)
			}
		})
	}
}

func TestInMemoryStore_CancelledContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := memory.NewInMemoryStore()
	if err := s.SaveConversation(ctx, "s", []memory.TranscriptEntry{{Text: "x"}}); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestRole_Valid(t *testing.T) {
	t.Parallel()
	if !memory.RoleUser.Valid() || !memory.RoleModel.Valid() {
		t.Error("known roles reported invalid")
	}
	if memory.Role("npc").Valid() {
		t.Error("unknown role reported valid")
	}
}
