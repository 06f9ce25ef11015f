// Package mock provides a test double for [memory.ConversationStore].
//
// The mock records every method call for assertion in tests and exposes
// exported fields that control what it returns. It is safe for concurrent use
// via an internal [sync.Mutex].
//
// Typical usage:
//
//	store := &mock.ConversationStore{}
//
//	// inject store into the system under test …
//
//	if got := store.CallCount("SaveConversation"); got != 1 {
//	    t.Errorf("expected 1 SaveConversation call, got %d", got)
//	}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/sereno/pkg/memory"
)

// Call records the name and arguments of a single method invocation.
type Call struct {
	// Method is the name of the interface method that was called.
	Method string

	// Args holds the non-context arguments passed to the method, in order.
	Args []any
}

// ConversationStore is a configurable test double for
// [memory.ConversationStore]. All exported *Err fields default to nil
// (success); all exported *Result fields default to nil (empty slice
// returned).
type ConversationStore struct {
	mu sync.Mutex

	// calls records every method invocation in order.
	calls []Call

	// saved holds the entries of successful SaveConversation calls per session.
	saved map[string][]memory.TranscriptEntry

	// SaveErr is returned by [ConversationStore.SaveConversation] when non-nil.
	SaveErr error

	// ConversationResult is returned by [ConversationStore.Conversation].
	// When nil, the entries saved for the session are returned.
	ConversationResult []memory.TranscriptEntry

	// ConversationErr is returned by [ConversationStore.Conversation] when non-nil.
	ConversationErr error

	// SearchResult is returned by [ConversationStore.Search].
	// When nil, Search returns an empty non-nil slice.
	SearchResult []memory.TranscriptEntry

	// SearchErr is returned by [ConversationStore.Search] when non-nil.
	SearchErr error
}

// Ensure ConversationStore satisfies the interface at compile time.
var _ memory.ConversationStore = (*ConversationStore)(nil)

// Calls returns a copy of all recorded method invocations.
func (m *ConversationStore) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times the named method was invoked.
func (m *ConversationStore) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Saved returns a copy of the entries saved under sessionID.
func (m *ConversationStore) Saved(sessionID string) []memory.TranscriptEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]memory.TranscriptEntry, len(m.saved[sessionID]))
	copy(out, m.saved[sessionID])
	return out
}

// Reset clears all recorded calls and saved entries without altering response
// configuration.
func (m *ConversationStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.saved = nil
}

// SaveConversation implements [memory.ConversationStore].
func (m *ConversationStore) SaveConversation(_ context.Context, sessionID string, entries []memory.TranscriptEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]memory.TranscriptEntry, len(entries))
	copy(cp, entries)
	m.calls = append(m.calls, Call{Method: "SaveConversation", Args: []any{sessionID, cp}})
	if m.SaveErr != nil {
		return m.SaveErr
	}
	if m.saved == nil {
		m.saved = make(map[string][]memory.TranscriptEntry)
	}
	m.saved[sessionID] = append(m.saved[sessionID], cp...)
	return nil
}

// Conversation implements [memory.ConversationStore].
func (m *ConversationStore) Conversation(_ context.Context, sessionID string) ([]memory.TranscriptEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "Conversation", Args: []any{sessionID}})
	src := m.ConversationResult
	if src == nil {
		src = m.saved[sessionID]
	}
	out := make([]memory.TranscriptEntry, len(src))
	copy(out, src)
	return out, m.ConversationErr
}

// Search implements [memory.ConversationStore].
func (m *ConversationStore) Search(_ context.Context, query string, opts memory.SearchOpts) ([]memory.TranscriptEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "Search", Args: []any{query, opts}})
	if m.SearchResult == nil {
		return []memory.TranscriptEntry{}, m.SearchErr
	}
	out := make([]memory.TranscriptEntry, len(m.SearchResult))
	copy(out, m.SearchResult)
	return out, m.SearchErr
}
