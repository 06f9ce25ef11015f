package memory

import "time"

// Role identifies who produced a transcript entry.
type Role string

const (
	// RoleUser marks speech recognised from the microphone.
	RoleUser Role = "user"

	// RoleModel marks speech produced by the remote model.
	RoleModel Role = "model"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleModel
}

// TranscriptEntry is one finalized turn of a conversation. Entries are built
// from transcription fragments and only exist once the turn completed with
// non-empty text.
type TranscriptEntry struct {
	// SessionID identifies the live session the entry belongs to.
	SessionID string

	// Role is the speaker of the turn.
	Role Role

	// Text is the concatenation of all transcription fragments of the turn.
	Text string

	// Timestamp is when the turn was finalized.
	Timestamp time.Time
}
