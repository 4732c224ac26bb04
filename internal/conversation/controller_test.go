package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"mathtutor-backend/internal/models"
)

// fakeStore is an in-memory HistoryStore.
type fakeStore struct {
	mu      sync.Mutex
	entries map[uuid.UUID][]models.HistoryEntry
	deleted int
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: make(map[uuid.UUID][]models.HistoryEntry)}
}

func (f *fakeStore) Load(ctx context.Context, id uuid.UUID) ([]models.HistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entries[id], nil
}

func (f *fakeStore) Save(ctx context.Context, id uuid.UUID, entries []models.HistoryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[id] = entries
	return nil
}

func (f *fakeStore) Delete(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, id)
	f.deleted++
	return nil
}

// recordingDispatcher captures jobs so the test drives completion itself.
type recordingDispatcher struct {
	mu   sync.Mutex
	jobs []SolveJob
}

func (d *recordingDispatcher) Dispatch(job SolveJob) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.jobs = append(d.jobs, job)
}

func (d *recordingDispatcher) last(t *testing.T) SolveJob {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.jobs) == 0 {
		t.Fatal("Expected a dispatched job")
	}
	return d.jobs[len(d.jobs)-1]
}

func newTestController() (*Controller, *fakeStore, *recordingDispatcher) {
	store := newFakeStore()
	dispatcher := &recordingDispatcher{}
	ctrl := NewController(uuid.New(), nil, store, dispatcher)
	return ctrl, store, dispatcher
}

func TestSubmitAppendsUserMessageBeforeDispatch(t *testing.T) {
	ctrl, _, dispatcher := newTestController()

	msg, err := ctrl.Submit("x+1=2", "")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	messages, level, isSolving := ctrl.Snapshot()
	if len(messages) != 1 || messages[0].ID != msg.ID {
		t.Fatalf("Expected the user message in the log, got %d messages", len(messages))
	}
	if !isSolving {
		t.Error("Expected is_solving while the request is outstanding")
	}

	job := dispatcher.last(t)
	if job.Text != "x+1=2" || job.Level != level {
		t.Errorf("Job should carry the input and the level read at dispatch time: %+v", job)
	}
}

func TestSubmitWhileSolvingIsDropped(t *testing.T) {
	ctrl, _, dispatcher := newTestController()

	if _, err := ctrl.Submit("first", ""); err != nil {
		t.Fatalf("First submit failed: %v", err)
	}

	_, err := ctrl.Submit("second", "")
	if !errors.Is(err, ErrSolveInFlight) {
		t.Fatalf("Expected ErrSolveInFlight, got %v", err)
	}

	messages, _, _ := ctrl.Snapshot()
	if len(messages) != 1 {
		t.Errorf("Dropped submission must not append a message; got %d", len(messages))
	}
	dispatcher.mu.Lock()
	defer dispatcher.mu.Unlock()
	if len(dispatcher.jobs) != 1 {
		t.Errorf("Dropped submission must not dispatch; got %d jobs", len(dispatcher.jobs))
	}
}

func TestSubmitBlankIsNoop(t *testing.T) {
	ctrl, _, _ := newTestController()

	_, err := ctrl.Submit("   ", "")
	if !errors.Is(err, ErrEmptySubmission) {
		t.Fatalf("Expected ErrEmptySubmission, got %v", err)
	}

	messages, _, isSolving := ctrl.Snapshot()
	if len(messages) != 0 || isSolving {
		t.Errorf("Blank submission must be a no-op; got %d messages, solving=%v", len(messages), isSolving)
	}
}

func TestCompleteSuccessAppendsSolutionAndPersists(t *testing.T) {
	ctrl, store, dispatcher := newTestController()
	ctrl.Submit("x+1=2", "")
	job := dispatcher.last(t)

	sol := testSolution("$x=1$")
	_, applied := ctrl.Complete(context.Background(), job.Generation, job.Text, sol, nil)
	if !applied {
		t.Fatal("Expected the result to apply")
	}

	messages, _, isSolving := ctrl.Snapshot()
	if len(messages) != 2 {
		t.Fatalf("Expected message log to grow by exactly 2, got %d", len(messages))
	}
	if messages[1].Solution == nil {
		t.Error("Assistant message should carry the solution")
	}
	if isSolving {
		t.Error("is_solving should reset after completion")
	}

	persisted, _ := store.Load(context.Background(), ctrl.SessionID())
	if len(persisted) != 1 {
		t.Errorf("Expected persisted history of 1 entry, got %d", len(persisted))
	}
}

func TestCompleteFailureAppendsFallback(t *testing.T) {
	ctrl, store, dispatcher := newTestController()
	ctrl.Submit("x+1=2", "")
	job := dispatcher.last(t)

	_, applied := ctrl.Complete(context.Background(), job.Generation, job.Text, nil, errors.New("backend unreachable"))
	if !applied {
		t.Fatal("Expected the failure to apply")
	}

	messages, _, _ := ctrl.Snapshot()
	if len(messages) != 2 {
		t.Fatalf("Expected message log to grow by exactly 2, got %d", len(messages))
	}
	if messages[1].Solution != nil {
		t.Error("Failed assistant message must have no structured metadata")
	}
	if messages[1].Content != fallbackText {
		t.Errorf("Expected fallback text, got %q", messages[1].Content)
	}

	persisted, _ := store.Load(context.Background(), ctrl.SessionID())
	if len(persisted) != 0 {
		t.Error("Failure must not persist history")
	}
}

func TestStaleResultDiscardedAfterClear(t *testing.T) {
	ctrl, _, dispatcher := newTestController()
	ctrl.Submit("x+1=2", "")
	job := dispatcher.last(t)

	// The user clears the conversation while the request is outstanding.
	ctrl.ClearConversation()

	_, applied := ctrl.Complete(context.Background(), job.Generation, job.Text, testSolution("late"), nil)
	if applied {
		t.Fatal("Stale result must be discarded silently")
	}

	messages, _, isSolving := ctrl.Snapshot()
	if len(messages) != 0 {
		t.Errorf("Stale result must not append to the fresh conversation; got %d messages", len(messages))
	}
	if isSolving {
		t.Error("Clear must reset is_solving")
	}
	if len(ctrl.History()) != 0 {
		t.Error("Stale result must not record history")
	}
}

func TestClearHistoryErasesDurableStore(t *testing.T) {
	ctrl, store, dispatcher := newTestController()
	ctrl.Submit("x+1=2", "")
	job := dispatcher.last(t)
	ctrl.Complete(context.Background(), job.Generation, job.Text, testSolution("a"), nil)

	if err := ctrl.ClearHistory(context.Background()); err != nil {
		t.Fatalf("ClearHistory failed: %v", err)
	}

	messages, _, _ := ctrl.Snapshot()
	if len(messages) != 0 || len(ctrl.History()) != 0 {
		t.Error("ClearHistory must empty both the message log and the history log")
	}
	if entries, _ := store.Load(context.Background(), ctrl.SessionID()); len(entries) != 0 {
		t.Error("ClearHistory must erase the durable store entry")
	}
	if store.deleted == 0 {
		t.Error("Expected the store key to be deleted")
	}
}

// gatedStore blocks inside Save so a clear can be raced against an
// in-flight persist.
type gatedStore struct {
	*fakeStore
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) Save(ctx context.Context, id uuid.UUID, entries []models.HistoryEntry) error {
	g.entered <- struct{}{}
	<-g.release
	return g.fakeStore.Save(ctx, id, entries)
}

func TestClearHistoryDuringPersistLeavesStoreEmpty(t *testing.T) {
	store := &gatedStore{
		fakeStore: newFakeStore(),
		entered:   make(chan struct{}),
		release:   make(chan struct{}),
	}
	dispatcher := &recordingDispatcher{}
	ctrl := NewController(uuid.New(), nil, store, dispatcher)

	ctrl.Submit("x+1=2", "")
	job := dispatcher.last(t)

	completeDone := make(chan struct{})
	go func() {
		ctrl.Complete(context.Background(), job.Generation, job.Text, testSolution("$x=1$"), nil)
		close(completeDone)
	}()
	<-store.entered

	// Clear while the persist is still in flight. The delete must land after
	// the save, never be overwritten by it.
	clearDone := make(chan error, 1)
	go func() { clearDone <- ctrl.ClearHistory(context.Background()) }()

	close(store.release)
	<-completeDone
	if err := <-clearDone; err != nil {
		t.Fatalf("ClearHistory failed: %v", err)
	}

	if entries, _ := store.fakeStore.Load(context.Background(), ctrl.SessionID()); len(entries) != 0 {
		t.Errorf("Durable store holds %d entries after ClearHistory; expected none", len(entries))
	}
	if len(ctrl.History()) != 0 {
		t.Error("In-memory history must be empty after ClearHistory")
	}
}

func TestManagerRevivesSessionFromStore(t *testing.T) {
	store := newFakeStore()
	dispatcher := &recordingDispatcher{}
	sessionID := uuid.New()
	store.Save(context.Background(), sessionID, []models.HistoryEntry{
		{ID: uuid.New(), Title: "old problem", LastMessage: "42"},
	})

	m := NewManager(store, dispatcher)
	defer m.Stop()

	ctrl, err := m.Get(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	history := ctrl.History()
	if len(history) != 1 || history[0].Title != "old problem" {
		t.Errorf("Expected revived history, got %+v", history)
	}

	// Same session ID returns the same resident controller.
	again, _ := m.Get(context.Background(), sessionID)
	if again != ctrl {
		t.Error("Expected the resident controller to be reused")
	}
}
