// Package postgres provides a PostgreSQL-backed [memory.ConversationStore].
//
// Entries live in a single conversation_entries table with a GIN full-text
// index over the text column. [Migrate] creates it on demand.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//
//	_ = store.SaveConversation(ctx, sessionID, entries)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlConversationEntries = `
CREATE TABLE IF NOT EXISTS conversation_entries (
    id          BIGSERIAL    PRIMARY KEY,
    session_id  TEXT         NOT NULL,
    role        TEXT         NOT NULL CHECK (role IN ('user', 'model')),
    text        TEXT         NOT NULL,
    timestamp   TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_conversation_entries_session_timestamp
    ON conversation_entries (session_id, timestamp);

CREATE INDEX IF NOT EXISTS idx_conversation_entries_fts
    ON conversation_entries USING GIN (to_tsvector('english', text));
`

// Migrate creates or ensures the conversation_entries table exists.
// It is idempotent and safe to call on every application start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlConversationEntries); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}
