package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"walletwise/internal/amqp"
	"walletwise/internal/core"
	sheetsmem "walletwise/internal/sheets/memory"
	"walletwise/internal/storage"
)

type fakeStore struct {
	mu      sync.Mutex
	items   map[int64]core.Activity
	errored map[int64]int
}

func newFakeStore(items ...core.Activity) *fakeStore {
	s := &fakeStore{items: map[int64]core.Activity{}, errored: map[int64]int{}}
	for _, a := range items {
		s.items[a.ID] = a
	}
	return s
}

func (s *fakeStore) Get(_ context.Context, id int64) (core.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.items[id]
	if !ok {
		return core.Activity{}, storage.ErrActivityNotFound
	}
	return a, nil
}

func (s *fakeStore) PendingSync(_ context.Context, limit int) ([]core.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Activity
	for id := int64(1); id <= int64(len(s.items)) && len(out) < limit; id++ {
		if a, ok := s.items[id]; ok && a.SyncStatus != core.SyncDone {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *fakeStore) MarkSynced(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.items[id]
	a.SyncStatus = core.SyncDone
	s.items[id] = a
	return nil
}

func (s *fakeStore) MarkSyncError(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.items[id]
	a.SyncStatus = core.SyncError
	s.items[id] = a
	s.errored[id]++
	return nil
}

type failingMirror struct{ *sheetsmem.Store }

func (failingMirror) Append(context.Context, core.Activity) (string, error) {
	return "", errors.New("quota exceeded")
}

type countingObserver struct {
	ok, failed int
}

func (o *countingObserver) ActivitySynced(err error) {
	if err != nil {
		o.failed++
		return
	}
	o.ok++
}

func act(id int64) core.Activity {
	return core.Activity{
		ID:         id,
		Ref:        uuid.New(),
		UserName:   "Ana",
		Action:     core.ActionMarkPaid,
		BillID:     100 + id,
		DueDate:    core.NewDate(2025, 3, 10),
		CreatedAt:  time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		SyncStatus: core.SyncPending,
	}
}

func TestHandleSyncMessage(t *testing.T) {
	a := act(1)
	store := newFakeStore(a)
	mirror := sheetsmem.New()
	obs := &countingObserver{}
	w := NewSyncWorker(store, mirror, obs, 10, nil)

	if err := w.HandleSyncMessage(context.Background(), amqp.NewActivitySyncMessage(a)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(mirror.Rows()) != 1 {
		t.Fatalf("rows = %d, want 1", len(mirror.Rows()))
	}
	if store.items[1].SyncStatus != core.SyncDone {
		t.Fatalf("status = %s", store.items[1].SyncStatus)
	}

	// redelivery of an already synced activity does nothing
	if err := w.HandleSyncMessage(context.Background(), amqp.NewActivitySyncMessage(a)); err != nil {
		t.Fatalf("second handle: %v", err)
	}
	if len(mirror.Rows()) != 1 || obs.ok != 1 {
		t.Fatalf("duplicate sync: rows=%d ok=%d", len(mirror.Rows()), obs.ok)
	}
}

func TestHandleSyncMessage_MissingActivityIsAcked(t *testing.T) {
	w := NewSyncWorker(newFakeStore(), sheetsmem.New(), nil, 10, nil)
	if err := w.HandleSyncMessage(context.Background(), &amqp.ActivitySyncMessage{ActivityID: 9}); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestSyncSkipsRowAlreadyInMirror(t *testing.T) {
	a := act(1)
	mirror := sheetsmem.New()
	if _, err := mirror.Append(context.Background(), a); err != nil {
		t.Fatal(err)
	}
	store := newFakeStore(a)
	w := NewSyncWorker(store, mirror, nil, 10, nil)

	n, err := w.ProcessPending(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("ProcessPending = %d, %v", n, err)
	}
	if len(mirror.Rows()) != 1 {
		t.Fatalf("rows = %d, want 1", len(mirror.Rows()))
	}
	if store.items[1].SyncStatus != core.SyncDone {
		t.Fatal("activity should be marked synced")
	}
}

func TestProcessPending_MarksFailures(t *testing.T) {
	store := newFakeStore(act(1), act(2))
	obs := &countingObserver{}
	w := NewSyncWorker(store, failingMirror{sheetsmem.New()}, obs, 10, nil)

	n, err := w.ProcessPending(context.Background())
	if err != nil {
		t.Fatalf("ProcessPending: %v", err)
	}
	if n != 0 {
		t.Fatalf("synced = %d, want 0", n)
	}
	if store.errored[1] != 1 || store.errored[2] != 1 {
		t.Fatalf("errored = %v", store.errored)
	}
	if obs.failed != 2 {
		t.Fatalf("failed = %d", obs.failed)
	}
}

func TestProcessPending_RespectsBatchSize(t *testing.T) {
	store := newFakeStore(act(1), act(2), act(3))
	mirror := sheetsmem.New()
	w := NewSyncWorker(store, mirror, nil, 2, nil)

	n, _ := w.ProcessPending(context.Background())
	if n != 2 {
		t.Fatalf("first pass = %d, want 2", n)
	}
	n, _ = w.ProcessPending(context.Background())
	if n != 1 {
		t.Fatalf("second pass = %d, want 1", n)
	}
	if len(mirror.Rows()) != 3 {
		t.Fatalf("rows = %d", len(mirror.Rows()))
	}
}

func TestRunSweepStopsWithContext(t *testing.T) {
	store := newFakeStore(act(1))
	mirror := sheetsmem.New()
	w := NewSyncWorker(store, mirror, nil, 10, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.RunSweep(ctx, time.Hour) }()

	deadline := time.After(2 * time.Second)
	for len(mirror.Rows()) == 0 {
		select {
		case <-deadline:
			t.Fatal("sweep did not run")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("RunSweep = %v", err)
	}
}
