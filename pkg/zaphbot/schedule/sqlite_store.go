// Package schedule – sqlite_store.go implements Store backed by the central
// zaphbot.db "scheduled_jobs" table.
package schedule

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver.
)

// SQLiteStore persists jobs in the shared zaphbot.db.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a job store over the shared database.
// The scheduled_jobs table must already exist (store.Open).
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Add enqueues a job, assigning a uuid if the job has none.
func (s *SQLiteStore) Add(ctx context.Context, job *Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scheduled_jobs
			(id, chat_id, user_id, payload, generate, fire_time, sent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?)`,
		job.ID,
		job.ChatID,
		job.UserID,
		job.Payload,
		boolToInt(job.Generate),
		job.FireTime.UTC().Format(time.RFC3339),
		job.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("add job %q: %w", job.ID, err)
	}
	return nil
}

// Due returns all unsent jobs whose fire time has passed.
func (s *SQLiteStore) Due(ctx context.Context, now time.Time) ([]*Job, error) {
	return s.query(ctx, `
		SELECT id, chat_id, user_id, payload, generate, fire_time, sent, created_at
		FROM scheduled_jobs
		WHERE sent = 0 AND fire_time <= ?`,
		now.UTC().Format(time.RFC3339))
}

// Pending returns all unsent jobs, soonest first.
func (s *SQLiteStore) Pending(ctx context.Context) ([]*Job, error) {
	return s.query(ctx, `
		SELECT id, chat_id, user_id, payload, generate, fire_time, sent, created_at
		FROM scheduled_jobs
		WHERE sent = 0
		ORDER BY fire_time ASC`)
}

// MarkSent durably flips the sent flag. The flag is monotonic: a job
// already marked sent stays sent.
func (s *SQLiteStore) MarkSent(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE scheduled_jobs SET sent = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("mark job %q sent: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("mark job %q sent: not found", id)
	}
	return nil
}

// Remove deletes a job by ID.
func (s *SQLiteStore) Remove(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM scheduled_jobs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("remove job %q: %w", id, err)
	}
	return nil
}

// query runs a SELECT over the standard column set and scans jobs.
func (s *SQLiteStore) query(ctx context.Context, q string, args ...any) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		var (
			j         Job
			generate  int
			sent      int
			fireTime  string
			createdAt string
		)
		if err := rows.Scan(&j.ID, &j.ChatID, &j.UserID, &j.Payload,
			&generate, &fireTime, &sent, &createdAt); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		j.Generate = generate != 0
		j.Sent = sent != 0
		j.FireTime, _ = time.Parse(time.RFC3339, fireTime)
		j.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		jobs = append(jobs, &j)
	}
	return jobs, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
