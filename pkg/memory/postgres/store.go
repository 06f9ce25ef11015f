package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/sereno/pkg/memory"
)

var _ memory.ConversationStore = (*Store)(nil)

// Store is the PostgreSQL-backed conversation log. It holds a single
// [pgxpool.Pool]; all operations are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a connection pool to the database at dsn, verifies it
// with a ping, and runs [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Ping checks database connectivity. Used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all connections held by the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// SaveConversation implements [memory.ConversationStore]. All entries are
// inserted in one transaction.
func (s *Store) SaveConversation(ctx context.Context, sessionID string, entries []memory.TranscriptEntry) error {
	if len(entries) == 0 {
		return nil
	}

	const q = `
		INSERT INTO conversation_entries (session_id, role, text, timestamp)
		VALUES ($1, $2, $3, $4)`

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("conversation store: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after Commit

	for _, e := range entries {
		ts := e.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		if _, err := tx.Exec(ctx, q, sessionID, string(e.Role), e.Text, ts); err != nil {
			return fmt.Errorf("conversation store: insert entry: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("conversation store: commit: %w", err)
	}
	return nil
}

// Conversation implements [memory.ConversationStore].
func (s *Store) Conversation(ctx context.Context, sessionID string) ([]memory.TranscriptEntry, error) {
	const q = `
		SELECT session_id, role, text, timestamp
		FROM   conversation_entries
		WHERE  session_id = $1
		ORDER  BY timestamp, id`

	rows, err := s.pool.Query(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("conversation store: get conversation: %w", err)
	}
	return collectEntries(rows)
}

// Search implements [memory.ConversationStore]. It performs a PostgreSQL
// full-text search over the text column and applies optional filters from
// opts.
//
// The query is passed to plainto_tsquery so no special operator syntax is required.
func (s *Store) Search(ctx context.Context, query string, opts memory.SearchOpts) ([]memory.TranscriptEntry, error) {
	args := []any{query} // $1 = FTS query string
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	conditions := []string{
		"to_tsvector('english', text) @@ plainto_tsquery('english', $1)",
	}
	if opts.SessionID != "" {
		conditions = append(conditions, "session_id = "+next(opts.SessionID))
	}
	if opts.Role != "" {
		conditions = append(conditions, "role = "+next(string(opts.Role)))
	}
	if !opts.After.IsZero() {
		conditions = append(conditions, "timestamp > "+next(opts.After))
	}
	if !opts.Before.IsZero() {
		conditions = append(conditions, "timestamp < "+next(opts.Before))
	}

	q := "SELECT session_id, role, text, timestamp\n" +
		"FROM   conversation_entries\n" +
		"WHERE  " + strings.Join(conditions, "\n  AND  ") + "\n" +
		"ORDER  BY timestamp, id"

	if opts.Limit > 0 {
		q += "\nLIMIT " + next(opts.Limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("conversation store: search: %w", err)
	}
	return collectEntries(rows)
}

// collectEntries scans pgx rows into a slice of TranscriptEntry values.
func collectEntries(rows pgx.Rows) ([]memory.TranscriptEntry, error) {
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.TranscriptEntry, error) {
		var (
			e    memory.TranscriptEntry
			role string
		)
		if err := row.Scan(&e.SessionID, &role, &e.Text, &e.Timestamp); err != nil {
			return memory.TranscriptEntry{}, err
		}
		e.Role = memory.Role(role)
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("conversation store: scan rows: %w", err)
	}
	if entries == nil {
		entries = []memory.TranscriptEntry{}
	}
	return entries, nil
}
