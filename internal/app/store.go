package app

import (
	"context"
	"log/slog"

	"github.com/MrWong99/sereno/internal/lazyload"
	"github.com/MrWong99/sereno/pkg/memory"
	"github.com/MrWong99/sereno/pkg/memory/postgres"
)

// conversationDB is a database-backed conversation store.
type conversationDB interface {
	memory.ConversationStore
	Ping(ctx context.Context) error
	Close()
}

// lazyStore connects to the database on first use. Every caller shares a
// single connection attempt; a failed attempt is retried on the next call,
// so the client starts even when the database is down.
type lazyStore struct {
	loader *lazyload.Loader[conversationDB]
}

var _ memory.ConversationStore = (*lazyStore)(nil)

func newLazyStore(dsn string) *lazyStore {
	return newLazyStoreWith(func(ctx context.Context) (conversationDB, error) {
		return postgres.NewStore(ctx, dsn)
	})
}

func newLazyStoreWith(open func(context.Context) (conversationDB, error)) *lazyStore {
	return &lazyStore{loader: lazyload.New(func(ctx context.Context) (conversationDB, error) {
		db, err := open(ctx)
		if err != nil {
			slog.Warn("conversation store unavailable", "err", err)
			return nil, err
		}
		slog.Info("conversation store connected")
		return db, nil
	})}
}

func (s *lazyStore) SaveConversation(ctx context.Context, sessionID string, entries []memory.TranscriptEntry) error {
	db, err := s.loader.Ensure(ctx)
	if err != nil {
		return err
	}
	return db.SaveConversation(ctx, sessionID, entries)
}

func (s *lazyStore) Conversation(ctx context.Context, sessionID string) ([]memory.TranscriptEntry, error) {
	db, err := s.loader.Ensure(ctx)
	if err != nil {
		return nil, err
	}
	return db.Conversation(ctx, sessionID)
}

func (s *lazyStore) Search(ctx context.Context, query string, opts memory.SearchOpts) ([]memory.TranscriptEntry, error) {
	db, err := s.loader.Ensure(ctx)
	if err != nil {
		return nil, err
	}
	return db.Search(ctx, query, opts)
}

// Ping connects if necessary and checks the connection.
func (s *lazyStore) Ping(ctx context.Context) error {
	db, err := s.loader.Ensure(ctx)
	if err != nil {
		return err
	}
	return db.Ping(ctx)
}

// Close closes the connection pool if it was ever opened.
func (s *lazyStore) Close() error {
	if db, ok := s.loader.Loaded(); ok {
		db.Close()
	}
	return nil
}
