// Package memory defines the conversation log written at the end of every
// live voice session.
//
// A session accumulates finalized [TranscriptEntry] values and hands them to a
// [ConversationStore] exactly once, during teardown, and only when at least
// one entry exists. Backends live in sub-packages (postgres) or in this
// package ([InMemoryStore]); test doubles live in memory/mock.
//
// Every implementation must be safe for concurrent use.
package memory

import (
	"context"
	"time"
)

// SearchOpts configures a full-text search over stored entries.
// All non-zero fields are applied as AND conditions.
type SearchOpts struct {
	// SessionID restricts the search to a single session.
	// An empty string searches across all sessions.
	SessionID string

	// Role restricts results to one speaker role.
	Role Role

	// After filters entries recorded after this instant (exclusive).
	// A zero Time disables the lower bound.
	After time.Time

	// Before filters entries recorded before this instant (exclusive).
	// A zero Time disables the upper bound.
	Before time.Time

	// Limit caps the number of results returned.
	// A value of 0 means the implementation may apply its own default.
	Limit int
}

// ConversationStore persists the conversation log of finished sessions.
type ConversationStore interface {
	// SaveConversation appends entries under sessionID. Implementations write
	// all entries or none. Saving an empty slice is a no-op.
	SaveConversation(ctx context.Context, sessionID string, entries []TranscriptEntry) error

	// Conversation returns all entries of sessionID in chronological order.
	// An unknown session yields an empty, non-nil slice.
	Conversation(ctx context.Context, sessionID string) ([]TranscriptEntry, error)

	// Search returns entries whose text matches query, filtered by opts and
	// ordered chronologically.
	Search(ctx context.Context, query string, opts SearchOpts) ([]TranscriptEntry, error)
}
