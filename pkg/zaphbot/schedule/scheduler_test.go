package schedule

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/zaphchat/zaphbot/pkg/zaphbot/memory"
)

// fakeJobStore is an in-memory Store for delivery-loop tests.
type fakeJobStore struct {
	mu     sync.Mutex
	jobs   map[string]*Job
	dueErr error
}

func newFakeJobStore(jobs ...*Job) *fakeJobStore {
	s := &fakeJobStore{jobs: make(map[string]*Job)}
	for _, j := range jobs {
		s.jobs[j.ID] = j
	}
	return s
}

func (s *fakeJobStore) Add(ctx context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

func (s *fakeJobStore) Due(ctx context.Context, now time.Time) ([]*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dueErr != nil {
		return nil, s.dueErr
	}
	var due []*Job
	for _, j := range s.jobs {
		if !j.Sent && !j.FireTime.After(now) {
			due = append(due, j)
		}
	}
	return due, nil
}

func (s *fakeJobStore) MarkSent(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return errors.New("not found")
	}
	j.Sent = true
	return nil
}

func (s *fakeJobStore) Pending(ctx context.Context) ([]*Job, error) { return nil, nil }
func (s *fakeJobStore) Remove(ctx context.Context, id string) error { return nil }

// sendRecorder captures outbound deliveries, optionally failing some.
type sendRecorder struct {
	mu    sync.Mutex
	sent  []string
	fails map[string]error // keyed by chatID
}

func (r *sendRecorder) send(ctx context.Context, chatID, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fails[chatID]; err != nil {
		return err
	}
	r.sent = append(r.sent, chatID+": "+text)
	return nil
}

type fakeGenerator struct {
	reply  string
	err    error
	gotMem *memory.User
}

func (g *fakeGenerator) Generate(ctx context.Context, prompt string, mem *memory.User) (string, error) {
	g.gotMem = mem
	if g.err != nil {
		return "", g.err
	}
	return g.reply, nil
}

type fakeMemReader struct{ user *memory.User }

func (m *fakeMemReader) GetOrCreate(ctx context.Context, userID string) (*memory.User, error) {
	return m.user, nil
}

var testNow = time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

func TestDrainDeliversDueJobs(t *testing.T) {
	store := newFakeJobStore(
		&Job{ID: "a", ChatID: "chat1", Payload: "overdue", FireTime: testNow.Add(-time.Minute)},
		&Job{ID: "b", ChatID: "chat2", Payload: "future", FireTime: testNow.Add(time.Hour)},
	)
	rec := &sendRecorder{}
	s := New(store, rec.send, nil, nil, time.Second, nil)

	s.DrainOnce(context.Background(), testNow)

	if len(rec.sent) != 1 || rec.sent[0] != "chat1: overdue" {
		t.Fatalf("sent = %v", rec.sent)
	}
	if !store.jobs["a"].Sent {
		t.Error("delivered job not marked sent")
	}
	if store.jobs["b"].Sent {
		t.Error("future job marked sent")
	}
}

func TestDrainNoRedelivery(t *testing.T) {
	store := newFakeJobStore(
		&Job{ID: "a", ChatID: "chat1", Payload: "once", FireTime: testNow.Add(-time.Minute)},
	)
	rec := &sendRecorder{}
	s := New(store, rec.send, nil, nil, time.Second, nil)

	s.DrainOnce(context.Background(), testNow)
	s.DrainOnce(context.Background(), testNow.Add(time.Minute))

	if len(rec.sent) != 1 {
		t.Errorf("job delivered %d times, want 1", len(rec.sent))
	}
}

func TestDrainFailedSendStaysDue(t *testing.T) {
	store := newFakeJobStore(
		&Job{ID: "a", ChatID: "down", Payload: "retry me", FireTime: testNow.Add(-time.Minute)},
	)
	rec := &sendRecorder{fails: map[string]error{"down": errors.New("not connected")}}
	s := New(store, rec.send, nil, nil, time.Second, nil)

	s.DrainOnce(context.Background(), testNow)

	if store.jobs["a"].Sent {
		t.Fatal("failed delivery marked sent")
	}

	// Channel comes back: the next drain retries and succeeds.
	rec.mu.Lock()
	rec.fails = nil
	rec.mu.Unlock()
	s.DrainOnce(context.Background(), testNow.Add(time.Minute))

	if len(rec.sent) != 1 {
		t.Errorf("sent = %v, want one delivery after retry", rec.sent)
	}
	if !store.jobs["a"].Sent {
		t.Error("retried job not marked sent")
	}
}

func TestDrainStoreErrorAbortsPass(t *testing.T) {
	store := newFakeJobStore(
		&Job{ID: "a", ChatID: "chat1", Payload: "x", FireTime: testNow.Add(-time.Minute)},
	)
	store.dueErr = errors.New("db locked")
	rec := &sendRecorder{}
	s := New(store, rec.send, nil, nil, time.Second, nil)

	s.DrainOnce(context.Background(), testNow)

	if len(rec.sent) != 0 {
		t.Errorf("sent = %v, want none on store error", rec.sent)
	}
}

func TestDrainGenerateResolvesCurrentMemory(t *testing.T) {
	store := newFakeJobStore(
		&Job{
			ID: "a", ChatID: "chat1", UserID: "u1",
			Payload:  "wish them happy birthday",
			Generate: true,
			FireTime: testNow.Add(-time.Minute),
		},
	)
	rec := &sendRecorder{}
	gen := &fakeGenerator{reply: "Happy birthday!"}
	mem := &fakeMemReader{user: &memory.User{UserID: "u1", Name: "Skippy"}}
	s := New(store, rec.send, gen, mem, time.Second, nil)

	s.DrainOnce(context.Background(), testNow)

	if len(rec.sent) != 1 || rec.sent[0] != "chat1: Happy birthday!" {
		t.Fatalf("sent = %v", rec.sent)
	}
	// Generation sees the memory as it is at fire time.
	if gen.gotMem == nil || gen.gotMem.Name != "Skippy" {
		t.Errorf("generator memory = %+v", gen.gotMem)
	}
}

func TestDrainGenerateFailureStaysDue(t *testing.T) {
	store := newFakeJobStore(
		&Job{ID: "a", ChatID: "chat1", UserID: "u1", Payload: "p", Generate: true,
			FireTime: testNow.Add(-time.Minute)},
	)
	rec := &sendRecorder{}
	gen := &fakeGenerator{err: errors.New("api down")}
	s := New(store, rec.send, gen, &fakeMemReader{}, time.Second, nil)

	s.DrainOnce(context.Background(), testNow)

	if len(rec.sent) != 0 {
		t.Errorf("sent = %v, want none", rec.sent)
	}
	if store.jobs["a"].Sent {
		t.Error("unresolved job marked sent")
	}
}
