package bot

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zaphchat/zaphbot/pkg/zaphbot/memory"
)

type stubSummarizer struct {
	mu      sync.Mutex
	calls   int
	inputs  []string
	block   chan struct{} // when set, Summarize waits on it
	summary string
}

func (s *stubSummarizer) Summarize(ctx context.Context, conversation string) (string, error) {
	s.mu.Lock()
	s.calls++
	s.inputs = append(s.inputs, conversation)
	block := s.block
	s.mu.Unlock()
	if block != nil {
		<-block
	}
	if s.summary != "" {
		return s.summary, nil
	}
	return "a summary", nil
}

func TestSummaryRefresh(t *testing.T) {
	t.Run("builds a chronological prompt and stores the result", func(t *testing.T) {
		mem := newFakeMemory()
		trans := newFakeTranscripts()
		ctx := context.Background()

		trans.Append(ctx, memory.TranscriptEntry{ChatID: "u1", UserID: "u1", Text: "first", Response: "one"})
		trans.Append(ctx, memory.TranscriptEntry{ChatID: "u1", UserID: "u1", Text: "second", Response: "two"})

		sum := &stubSummarizer{summary: "talked about numbers"}
		r := newSummaryRefresher(mem, trans, sum, nil)

		if err := r.refresh(ctx, "u1"); err != nil {
			t.Fatalf("refresh: %v", err)
		}

		if len(sum.inputs) != 1 {
			t.Fatalf("summarizer calls = %d", len(sum.inputs))
		}
		prompt := sum.inputs[0]
		if strings.Index(prompt, "first") > strings.Index(prompt, "second") {
			t.Errorf("prompt not chronological:\n%s", prompt)
		}
		if !strings.Contains(prompt, "User: first\n") || !strings.Contains(prompt, "Bot: one\n") {
			t.Errorf("prompt missing exchange lines:\n%s", prompt)
		}

		u, _ := mem.Get(ctx, "u1")
		if u == nil || u.Summary != "talked about numbers" {
			t.Errorf("stored summary = %+v", u)
		}
	})

	t.Run("empty transcript skips the summarizer", func(t *testing.T) {
		sum := &stubSummarizer{}
		r := newSummaryRefresher(newFakeMemory(), newFakeTranscripts(), sum, nil)
		if err := r.refresh(context.Background(), "nobody"); err != nil {
			t.Fatalf("refresh: %v", err)
		}
		if sum.calls != 0 {
			t.Errorf("summarizer called %d times for empty transcript", sum.calls)
		}
	})

	t.Run("concurrent refreshes for one user are single-flight", func(t *testing.T) {
		mem := newFakeMemory()
		trans := newFakeTranscripts()
		ctx := context.Background()
		trans.Append(ctx, memory.TranscriptEntry{ChatID: "u1", UserID: "u1", Text: "hi", Response: "hey"})

		block := make(chan struct{})
		sum := &stubSummarizer{block: block}
		r := newSummaryRefresher(mem, trans, sum, nil)

		r.Refresh("u1")
		// Wait for the first refresh to reach the summarizer.
		deadline := time.After(2 * time.Second)
		for {
			sum.mu.Lock()
			started := sum.calls == 1
			sum.mu.Unlock()
			if started {
				break
			}
			select {
			case <-deadline:
				t.Fatal("first refresh never reached the summarizer")
			default:
				time.Sleep(time.Millisecond)
			}
		}

		// These must be dropped while the first is in flight.
		r.Refresh("u1")
		r.Refresh("u1")
		close(block)

		// Let the goroutine finish and check no extra runs happened.
		time.Sleep(50 * time.Millisecond)
		sum.mu.Lock()
		calls := sum.calls
		sum.mu.Unlock()
		if calls != 1 {
			t.Errorf("summarizer calls = %d, want 1", calls)
		}
	})
}
