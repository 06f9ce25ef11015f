package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
)

var _ ConversationStore = (*InMemoryStore)(nil)

// InMemoryStore keeps conversations in process memory. It is used when no
// database is configured; its contents are lost on exit.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]TranscriptEntry
	order    []string
}

// NewInMemoryStore returns an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string][]TranscriptEntry)}
}

// SaveConversation implements [ConversationStore].
func (s *InMemoryStore) SaveConversation(ctx context.Context, sessionID string, entries []TranscriptEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		s.order = append(s.order, sessionID)
	}
	for _, e := range entries {
		e.SessionID = sessionID
		s.sessions[sessionID] = append(s.sessions[sessionID], e)
	}
	return nil
}

// Conversation implements [ConversationStore].
func (s *InMemoryStore) Conversation(ctx context.Context, sessionID string) ([]TranscriptEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TranscriptEntry, len(s.sessions[sessionID]))
	copy(out, s.sessions[sessionID])
	return out, nil
}

// Search implements [ConversationStore] with a case-insensitive substring
// match.
func (s *InMemoryStore) Search(ctx context.Context, query string, opts SearchOpts) ([]TranscriptEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q := strings.ToLower(query)

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []TranscriptEntry{}
	for _, id := range s.order {
		if opts.SessionID != "" && id != opts.SessionID {
			continue
		}
		for _, e := range s.sessions[id] {
			if !matches(e, q, opts) {
				continue
			}
			out = append(out, e)
		}
	}
	slices.SortStableFunc(out, func(a, b TranscriptEntry) int { return a.Timestamp.Compare(b.Timestamp) })
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// Sessions returns the ids of all stored sessions in insertion order.
func (s *InMemoryStore) Sessions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.order)
}

func matches(e TranscriptEntry, q string, opts SearchOpts) bool {
	if opts.Role != "" && e.Role != opts.Role {
		return false
	}
	if !opts.After.IsZero() && !e.Timestamp.After(opts.After) {
		return false
	}
	if !opts.Before.IsZero() && !e.Timestamp.Before(opts.Before) {
		return false
	}
	return strings.Contains(strings.ToLower(e.Text), q)
}
