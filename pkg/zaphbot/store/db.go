// Package store provides the central SQLite database for zaphbot.
// A single zaphbot.db file holds user memory, the conversation transcript,
// and the scheduled delivery queue. The WhatsApp session database
// (whatsmeow_ tables) lives in its own file.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3" // SQLite driver.
)

// schema is the DDL executed on every startup (idempotent via IF NOT EXISTS).
const schema = `
-- Per-user memory (one row per WhatsApp identity).
CREATE TABLE IF NOT EXISTS user_memory (
    user_id          TEXT PRIMARY KEY,
    name             TEXT DEFAULT '',
    facts            TEXT NOT NULL DEFAULT '{}',
    summary          TEXT DEFAULT '',
    last_interaction TEXT NOT NULL
);

-- Conversation transcript (append-only, one row per exchange).
CREATE TABLE IF NOT EXISTS transcript (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    chat_id    TEXT NOT NULL,
    user_id    TEXT NOT NULL,
    text       TEXT NOT NULL,
    response   TEXT NOT NULL,
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transcript_user ON transcript(user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_transcript_chat ON transcript(chat_id, user_id);

-- Deferred delivery queue. Rows are never deleted by the scheduler; the
-- sent flag flips false -> true exactly once (audit trail).
CREATE TABLE IF NOT EXISTS scheduled_jobs (
    id         TEXT PRIMARY KEY,
    chat_id    TEXT NOT NULL,
    user_id    TEXT DEFAULT '',
    payload    TEXT NOT NULL,
    generate   INTEGER NOT NULL DEFAULT 0,
    fire_time  TEXT NOT NULL,
    sent       INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_due ON scheduled_jobs(sent, fire_time);
`

// Open opens (or creates) the central zaphbot.db at the given path.
// It enables WAL mode for concurrent read performance and creates all tables.
func Open(path string) (*sql.DB, error) {
	if path == "" {
		path = "./data/zaphbot.db"
	}

	// Ensure parent directory exists.
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create database directory %q: %w", dir, err)
	}

	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database %q: %w", path, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return db, nil
}
