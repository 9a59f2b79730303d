// Package schedule implements deferred message delivery for zaphbot: a
// persisted queue of scheduled jobs and the polling loop that drains it.
package schedule

import (
	"context"
	"time"
)

// Job is one deferred delivery.
type Job struct {
	// ID is the unique job identifier (uuid).
	ID string

	// ChatID is the delivery target.
	ChatID string

	// UserID identifies whose memory to load when Generate is set.
	// Optional for literal payloads.
	UserID string

	// Payload is either the literal message text, or — when Generate is
	// set — the prompt resolved through the reply generator at fire time.
	Payload string

	// Generate marks the payload as a generation request. Generation uses
	// the user's memory as it is at fire time, not at enqueue time, so
	// persona and fact changes made in between are reflected.
	Generate bool

	// FireTime is when the job becomes due.
	FireTime time.Time

	// Sent flips false -> true exactly once, after successful delivery.
	// A sent job is never re-delivered or mutated again.
	Sent bool

	// CreatedAt is the enqueue timestamp.
	CreatedAt time.Time
}

// Store persists scheduled jobs. Jobs are retained after sending as an
// audit trail; only operator tooling removes them.
type Store interface {
	// Add enqueues a job. Assigns an ID if the job has none.
	Add(ctx context.Context, job *Job) error

	// Due returns all unsent jobs with fire_time <= now, in no
	// particular order.
	Due(ctx context.Context, now time.Time) ([]*Job, error)

	// MarkSent durably flips the sent flag for id.
	MarkSent(ctx context.Context, id string) error

	// Pending returns all unsent jobs, soonest first.
	Pending(ctx context.Context) ([]*Job, error)

	// Remove deletes a job by ID (operator use only).
	Remove(ctx context.Context, id string) error
}
