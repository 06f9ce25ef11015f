package app

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/MrWong99/sereno/pkg/memory"
	memorymock "github.com/MrWong99/sereno/pkg/memory/mock"
)

type fakeDB struct {
	*memorymock.ConversationStore

	mu     sync.Mutex
	pings  int
	closed int
}

func (f *fakeDB) Ping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pings++
	return nil
}

func (f *fakeDB) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
}

func TestLazyStore_ConnectsOnFirstUse(t *testing.T) {
	t.Parallel()

	db := &fakeDB{ConversationStore: &memorymock.ConversationStore{}}
	var opens int
	s := newLazyStoreWith(func(context.Context) (conversationDB, error) {
		opens++
		return db, nil
	})
	if opens != 0 {
		t.Fatalf("opened before first use")
	}

	ctx := context.Background()
	entries := []memory.TranscriptEntry{{SessionID: "s1", Role: memory.RoleUser, Text: "hi"}}
	if err := s.SaveConversation(ctx, "s1", entries); err != nil {
		t.Fatalf("SaveConversation: %v", err)
	}
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if opens != 1 {
		t.Errorf("opens = %d, want 1", opens)
	}
	if got := db.Saved("s1"); len(got) != 1 || got[0].Text != "hi" {
		t.Errorf("Saved = %+v", got)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if db.closed != 1 {
		t.Errorf("closed = %d, want 1", db.closed)
	}
}

func TestLazyStore_RetriesAfterFailure(t *testing.T) {
	t.Parallel()

	db := &fakeDB{ConversationStore: &memorymock.ConversationStore{}}
	errDown := errors.New("connection refused")
	var opens int
	s := newLazyStoreWith(func(context.Context) (conversationDB, error) {
		opens++
		if opens == 1 {
			return nil, errDown
		}
		return db, nil
	})

	ctx := context.Background()
	if _, err := s.Conversation(ctx, "s1"); !errors.Is(err, errDown) {
		t.Fatalf("Conversation() err = %v, want %v", err, errDown)
	}
	if _, err := s.Search(ctx, "hi", memory.SearchOpts{}); err != nil {
		t.Fatalf("Search after recovery: %v", err)
	}
	if opens != 2 {
		t.Errorf("opens = %d, want 2", opens)
	}
}

func TestLazyStore_CloseWithoutConnect(t *testing.T) {
	t.Parallel()

	s := newLazyStoreWith(func(context.Context) (conversationDB, error) {
		t.Error("Close must not connect")
		return nil, errors.New("unexpected")
	})
	if err := s.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
