// Package memory implements per-user memory for zaphbot: a persona name,
// arbitrary key/value facts, a rolling conversation summary, and the
// append-only transcript the summary is built from.
package memory

import (
	"context"
	"time"
)

// User is the persisted memory record for one end-user identity.
type User struct {
	// UserID is the stable external identity (phone-derived JID).
	UserID string

	// Name is the persona name the bot answers to for this user.
	// Empty means the configured default applies.
	Name string

	// Facts holds durable user-asserted facts and internal bookkeeping
	// flags (e.g. group setup prompts already sent).
	Facts map[string]any

	// Summary is a rolling synopsis of recent conversation, refreshed
	// asynchronously after replies.
	Summary string

	// LastInteraction is updated on every touch.
	LastInteraction time.Time
}

// HasFact reports whether a fact key is present and truthy.
func (u *User) HasFact(key string) bool {
	if u == nil || u.Facts == nil {
		return false
	}
	v, ok := u.Facts[key]
	if !ok {
		return false
	}
	if b, isBool := v.(bool); isBool {
		return b
	}
	return true
}

// Store persists user memory records. At most one record exists per UserID;
// records are created lazily on first access and never deleted by normal flow.
type Store interface {
	// GetOrCreate fetches the record for userID, creating an empty one if
	// missing. Always refreshes LastInteraction. The upsert must be atomic
	// so concurrent first contacts don't produce duplicates.
	GetOrCreate(ctx context.Context, userID string) (*User, error)

	// Get fetches the record for userID without creating or touching it.
	// Returns (nil, nil) when no record exists. Used by read-only paths
	// like group addressing checks.
	Get(ctx context.Context, userID string) (*User, error)

	// SetName persists the persona name for userID.
	SetName(ctx context.Context, userID, name string) error

	// SetFact stores a single fact key/value for userID.
	SetFact(ctx context.Context, userID, key string, value any) error

	// SetSummary replaces the rolling summary for userID.
	SetSummary(ctx context.Context, userID, summary string) error
}

// TranscriptEntry is one inbound/outbound exchange. Immutable once written.
type TranscriptEntry struct {
	ChatID    string
	UserID    string
	Text      string
	Response  string
	Timestamp time.Time
}

// TranscriptStore is the append-only exchange log, the source material for
// summary refreshes.
type TranscriptStore interface {
	// Append records one exchange.
	Append(ctx context.Context, entry TranscriptEntry) error

	// Recent returns up to limit entries for userID, newest first.
	// Callers reverse to chronological order for prompt construction.
	Recent(ctx context.Context, userID string, limit int) ([]TranscriptEntry, error)

	// HasDirectChat reports whether userID has any transcript entry in
	// their own direct chat (chatID == userID). Used by group setup.
	HasDirectChat(ctx context.Context, userID string) (bool, error)
}
