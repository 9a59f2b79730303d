package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/zaphchat/zaphbot/pkg/zaphbot/memory"
	"github.com/zaphchat/zaphbot/pkg/zaphbot/providers"
)

// summaryWindow is how many recent exchanges feed one summary.
const summaryWindow = 200

// summaryRefresher rebuilds rolling conversation summaries in the
// background. Refreshes are single-flight per user: a refresh requested
// while one is already running for the same user is dropped, since the
// running one will already see the latest transcript.
type summaryRefresher struct {
	mem         memory.Store
	transcripts memory.TranscriptStore
	summarizer  providers.Summarizer
	logger      *slog.Logger

	mu       sync.Mutex
	inflight map[string]bool
}

func newSummaryRefresher(mem memory.Store, transcripts memory.TranscriptStore, summarizer providers.Summarizer, logger *slog.Logger) *summaryRefresher {
	if logger == nil {
		logger = slog.Default()
	}
	return &summaryRefresher{
		mem:         mem,
		transcripts: transcripts,
		summarizer:  summarizer,
		logger:      logger.With("component", "summary"),
		inflight:    make(map[string]bool),
	}
}

// Refresh schedules an asynchronous summary rebuild for userID. Never
// blocks the caller; failures are logged only.
func (r *summaryRefresher) Refresh(userID string) {
	r.mu.Lock()
	if r.inflight[userID] {
		r.mu.Unlock()
		return
	}
	r.inflight[userID] = true
	r.mu.Unlock()

	go func() {
		defer func() {
			r.mu.Lock()
			delete(r.inflight, userID)
			r.mu.Unlock()
		}()
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		if err := r.refresh(ctx, userID); err != nil {
			r.logger.Warn("summary refresh failed", "user", userID, "error", err)
		}
	}()
}

func (r *summaryRefresher) refresh(ctx context.Context, userID string) error {
	entries, err := r.transcripts.Recent(ctx, userID, summaryWindow)
	if err != nil {
		return fmt.Errorf("reading transcript: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}

	// Recent returns newest first; the prompt wants chronological order.
	var b strings.Builder
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		fmt.Fprintf(&b, "User: %s\n", e.Text)
		if e.Response != "" {
			fmt.Fprintf(&b, "Bot: %s\n", e.Response)
		}
	}

	summary, err := r.summarizer.Summarize(ctx, b.String())
	if err != nil {
		return fmt.Errorf("summarizing: %w", err)
	}

	if err := r.mem.SetSummary(ctx, userID, summary); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}
	return nil
}
