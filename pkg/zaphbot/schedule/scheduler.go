// Package schedule – scheduler.go runs the delivery loop. A cron entry
// fires at a fixed interval, each tick drains every due, unsent job through
// the outbound send function and marks it sent on success. Delivery is
// at-least-once: a crash between send and flag-write re-delivers on the
// next tick, and failed sends stay due and retry forever (no backoff, no
// cutoff — acceptable for a low-volume personal assistant).
package schedule

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/zaphchat/zaphbot/pkg/zaphbot/memory"
)

// DefaultPollInterval is how often the queue is scanned when the
// configuration doesn't say otherwise.
const DefaultPollInterval = 10 * time.Second

// SendFunc delivers one text message to a chat.
type SendFunc func(ctx context.Context, chatID, text string) error

// ReplyGenerator resolves generation-request payloads at fire time.
type ReplyGenerator interface {
	Generate(ctx context.Context, prompt string, mem *memory.User) (string, error)
}

// MemoryReader loads the current memory snapshot for generation payloads.
type MemoryReader interface {
	GetOrCreate(ctx context.Context, userID string) (*memory.User, error)
}

// Scheduler owns the delivery timer and its dependencies. It holds no
// global state: the host process constructs, starts and stops it.
type Scheduler struct {
	store     Store
	send      SendFunc
	generator ReplyGenerator
	mem       MemoryReader
	interval  time.Duration
	logger    *slog.Logger

	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc

	// ticking guards against overlapping drains. Overlap would be benign
	// (the sent flag is checked durably at read time) but there is no
	// point stacking slow ticks.
	ticking atomic.Bool
}

// New creates a delivery scheduler. generator and mem may be nil if no
// generation-request jobs are ever enqueued.
func New(store Store, send SendFunc, generator ReplyGenerator, mem MemoryReader, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Scheduler{
		store:     store,
		send:      send,
		generator: generator,
		mem:       mem,
		interval:  interval,
		logger:    logger.With("component", "scheduler"),
	}
}

// Start begins polling. The first drain runs immediately so deliveries
// missed during downtime go out without waiting a full interval.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.cron = cron.New()
	if _, err := s.cron.AddFunc("@every "+s.interval.String(), s.tick); err != nil {
		return err
	}
	s.cron.Start()

	go s.tick()

	s.logger.Info("delivery scheduler started", "interval", s.interval.String())
	return nil
}

// Stop shuts the scheduler down, waiting briefly for an in-flight tick.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.cron != nil {
		stopCtx := s.cron.Stop()
		select {
		case <-stopCtx.Done():
		case <-time.After(10 * time.Second):
			s.logger.Warn("scheduler stop timed out")
		}
	}
	s.logger.Info("delivery scheduler stopped")
}

// tick is the cron callback: one guarded, panic-isolated drain.
func (s *Scheduler) tick() {
	if !s.ticking.CompareAndSwap(false, true) {
		s.logger.Debug("skipping tick, previous drain still running")
		return
	}
	defer func() {
		s.ticking.Store(false)
		if r := recover(); r != nil {
			s.logger.Error("delivery tick panicked", "panic", r)
		}
	}()

	if s.ctx.Err() != nil {
		return
	}
	s.DrainOnce(s.ctx, time.Now())
}

// DrainOnce delivers every job due at now. A store read error aborts the
// whole pass (retried next tick); per-job failures are logged and the job
// stays due. Each successful delivery is marked sent before the next job
// is attempted.
func (s *Scheduler) DrainOnce(ctx context.Context, now time.Time) {
	jobs, err := s.store.Due(ctx, now)
	if err != nil {
		s.logger.Error("reading due jobs failed, aborting tick", "error", err)
		return
	}
	if len(jobs) == 0 {
		return
	}

	s.logger.Info("delivering queued messages", "count", len(jobs))

	for _, job := range jobs {
		text, err := s.resolvePayload(ctx, job)
		if err != nil {
			s.logger.Error("resolving job payload failed, will retry",
				"id", job.ID, "error", err)
			continue
		}

		if err := s.send(ctx, job.ChatID, text); err != nil {
			s.logger.Error("delivery failed, will retry",
				"id", job.ID, "chat", job.ChatID, "error", err)
			continue
		}

		// Flag immediately: a crash before this point re-delivers next
		// tick (at-least-once); after it, the job is permanently done.
		if err := s.store.MarkSent(ctx, job.ID); err != nil {
			s.logger.Error("delivered but failed to mark sent, duplicate possible",
				"id", job.ID, "error", err)
			continue
		}

		s.logger.Info("scheduled message delivered", "id", job.ID, "chat", job.ChatID)
	}
}

// resolvePayload returns the text to deliver. Generation requests are
// resolved against the user's memory as it is now, not as it was when the
// job was enqueued.
func (s *Scheduler) resolvePayload(ctx context.Context, job *Job) (string, error) {
	if !job.Generate {
		return job.Payload, nil
	}

	var mem *memory.User
	if s.mem != nil && job.UserID != "" {
		m, err := s.mem.GetOrCreate(ctx, job.UserID)
		if err != nil {
			return "", err
		}
		mem = m
	}
	return s.generator.Generate(ctx, job.Payload, mem)
}
