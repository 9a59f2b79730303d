// Package memory – sqlite_store.go implements Store and TranscriptStore
// backed by the central zaphbot.db SQLite database. Facts are stored as a
// JSON object in a single column; timestamps as RFC3339 text.
package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver.
)

// SQLiteStore persists user memory in the shared zaphbot.db.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a memory store over the shared database.
// The user_memory and transcript tables must already exist (store.Open).
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// GetOrCreate fetches or lazily creates the memory record for userID.
// The upsert is a single statement so concurrent first contacts cannot
// create duplicates; LastInteraction is refreshed either way.
func (s *SQLiteStore) GetOrCreate(ctx context.Context, userID string) (*User, error) {
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_memory (user_id, facts, last_interaction)
		VALUES (?, '{}', ?)
		ON CONFLICT(user_id) DO UPDATE SET last_interaction = excluded.last_interaction`,
		userID, now.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("upsert memory %q: %w", userID, err)
	}

	return s.get(ctx, userID)
}

// Get fetches a record without creating or touching it. Returns
// (nil, nil) when no record exists.
func (s *SQLiteStore) Get(ctx context.Context, userID string) (*User, error) {
	u, err := s.get(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return u, nil
}

// get reads a memory record. The row must exist.
func (s *SQLiteStore) get(ctx context.Context, userID string) (*User, error) {
	var (
		u         User
		factsJSON string
		lastStr   string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, name, facts, summary, last_interaction
		FROM user_memory WHERE user_id = ?`, userID).
		Scan(&u.UserID, &u.Name, &factsJSON, &u.Summary, &lastStr)
	if err != nil {
		return nil, fmt.Errorf("read memory %q: %w", userID, err)
	}

	if err := json.Unmarshal([]byte(factsJSON), &u.Facts); err != nil {
		// A corrupt facts blob shouldn't make the user unreachable.
		u.Facts = make(map[string]any)
	}
	u.LastInteraction, _ = time.Parse(time.RFC3339, lastStr)
	return &u, nil
}

// SetName persists the persona name for userID.
func (s *SQLiteStore) SetName(ctx context.Context, userID, name string) error {
	if _, err := s.GetOrCreate(ctx, userID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		"UPDATE user_memory SET name = ? WHERE user_id = ?", name, userID)
	if err != nil {
		return fmt.Errorf("set name for %q: %w", userID, err)
	}
	return nil
}

// SetFact stores a single fact key/value. The read-modify-write runs inside
// a transaction so concurrent fact writes don't clobber each other.
func (s *SQLiteStore) SetFact(ctx context.Context, userID, key string, value any) error {
	if _, err := s.GetOrCreate(ctx, userID); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin fact tx: %w", err)
	}
	defer tx.Rollback()

	var factsJSON string
	if err := tx.QueryRowContext(ctx,
		"SELECT facts FROM user_memory WHERE user_id = ?", userID).Scan(&factsJSON); err != nil {
		return fmt.Errorf("read facts for %q: %w", userID, err)
	}

	facts := make(map[string]any)
	if err := json.Unmarshal([]byte(factsJSON), &facts); err != nil {
		facts = make(map[string]any)
	}
	facts[key] = value

	updated, err := json.Marshal(facts)
	if err != nil {
		return fmt.Errorf("marshal facts: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE user_memory SET facts = ? WHERE user_id = ?", string(updated), userID); err != nil {
		return fmt.Errorf("write facts for %q: %w", userID, err)
	}

	return tx.Commit()
}

// SetSummary replaces the rolling summary for userID.
func (s *SQLiteStore) SetSummary(ctx context.Context, userID, summary string) error {
	if _, err := s.GetOrCreate(ctx, userID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		"UPDATE user_memory SET summary = ? WHERE user_id = ?", summary, userID)
	if err != nil {
		return fmt.Errorf("set summary for %q: %w", userID, err)
	}
	return nil
}

// ---------- TranscriptStore ----------

// Append records one exchange in the transcript.
func (s *SQLiteStore) Append(ctx context.Context, entry TranscriptEntry) error {
	ts := entry.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transcript (chat_id, user_id, text, response, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		entry.ChatID, entry.UserID, entry.Text, entry.Response,
		ts.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("append transcript: %w", err)
	}
	return nil
}

// Recent returns up to limit entries for userID, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, userID string, limit int) ([]TranscriptEntry, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT chat_id, user_id, text, response, created_at
		FROM transcript WHERE user_id = ?
		ORDER BY created_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("read transcript for %q: %w", userID, err)
	}
	defer rows.Close()

	var entries []TranscriptEntry
	for rows.Next() {
		var (
			e  TranscriptEntry
			ts string
		)
		if err := rows.Scan(&e.ChatID, &e.UserID, &e.Text, &e.Response, &ts); err != nil {
			return nil, fmt.Errorf("scan transcript row: %w", err)
		}
		e.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// HasDirectChat reports whether userID has exchanged messages in their own DM.
func (s *SQLiteStore) HasDirectChat(ctx context.Context, userID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM transcript WHERE user_id = ? AND chat_id = ?",
		userID, userID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check direct chat for %q: %w", userID, err)
	}
	return n > 0, nil
}
