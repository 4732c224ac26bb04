package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"mathtutor-backend/internal/conversation"
	"mathtutor-backend/internal/models"
	"mathtutor-backend/internal/services"
)

type memStore struct {
	mu      sync.Mutex
	entries map[uuid.UUID][]models.HistoryEntry
}

func newMemStore() *memStore {
	return &memStore{entries: make(map[uuid.UUID][]models.HistoryEntry)}
}

func (s *memStore) Load(ctx context.Context, id uuid.UUID) ([]models.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[id], nil
}

func (s *memStore) Save(ctx context.Context, id uuid.UUID, entries []models.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[id] = entries
	return nil
}

func (s *memStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
	return nil
}

// captureDispatcher records jobs so the test can feed them to the pool
// directly, keeping processing synchronous.
type captureDispatcher struct {
	jobs []conversation.SolveJob
}

func (d *captureDispatcher) Dispatch(job conversation.SolveJob) {
	d.jobs = append(d.jobs, job)
}

type fakeSolver struct {
	mu       sync.Mutex
	solution *models.StructuredSolution
	err      error
	calls    int
}

func (f *fakeSolver) Solve(ctx context.Context, text string, level models.ExplanationLevel, imageB64 string) (*models.StructuredSolution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.solution, nil
}

type fakePublisher struct {
	mu       sync.Mutex
	channels []string
	payloads []string
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels = append(f.channels, channel)
	f.payloads = append(f.payloads, message.(string))
	return redis.NewIntResult(1, nil)
}

func (f *fakePublisher) states(t *testing.T) []string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	var states []string
	for _, payload := range f.payloads {
		var env struct {
			Type    string             `json:"type"`
			Payload models.SolveStatus `json:"payload"`
		}
		if err := json.Unmarshal([]byte(payload), &env); err != nil {
			t.Fatalf("Published payload is not valid JSON: %v", err)
		}
		if env.Type != "solve_status" {
			t.Fatalf("Expected solve_status envelope, got %q", env.Type)
		}
		states = append(states, env.Payload.State)
	}
	return states
}

func solvedSolution() *models.StructuredSolution {
	return &models.StructuredSolution{
		Description: "Solve x+1=2",
		Concepts:    []string{"linear equations"},
		Steps: []models.SolutionStep{
			{Title: "Isolate x", Explanation: "Subtract 1", Math: "$x=1$"},
		},
		FinalAnswer: "$x=1$",
	}
}

func submitJob(t *testing.T, store *memStore) (*conversation.Controller, conversation.SolveJob) {
	t.Helper()
	dispatcher := &captureDispatcher{}
	ctrl := conversation.NewController(uuid.New(), nil, store, dispatcher)
	if _, err := ctrl.Submit("x+1=2", ""); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if len(dispatcher.jobs) != 1 {
		t.Fatalf("Expected 1 dispatched job, got %d", len(dispatcher.jobs))
	}
	return ctrl, dispatcher.jobs[0]
}

func TestProcessSuccessCompletesAndPublishes(t *testing.T) {
	store := newMemStore()
	ctrl, job := submitJob(t, store)

	solver := &fakeSolver{solution: solvedSolution()}
	pub := &fakePublisher{}
	pool := NewPool(solver, pub, 1)

	pool.process(0, job)

	messages, _, isSolving := ctrl.Snapshot()
	if len(messages) != 2 {
		t.Fatalf("Expected exactly one completion appending one assistant message, got %d messages", len(messages))
	}
	if messages[1].Solution == nil {
		t.Error("Assistant message should carry the solution")
	}
	if isSolving {
		t.Error("is_solving should reset after completion")
	}
	if solver.calls != 1 {
		t.Errorf("Expected exactly one solve call, got %d", solver.calls)
	}

	states := pub.states(t)
	if len(states) != 2 || states[0] != "solving" || states[1] != "solved" {
		t.Errorf("Expected status sequence [solving solved], got %v", states)
	}
	want := "session_updates:" + ctrl.SessionID().String()
	for _, ch := range pub.channels {
		if ch != want {
			t.Errorf("Expected channel %q, got %q", want, ch)
		}
	}

	if entries, _ := store.Load(context.Background(), ctrl.SessionID()); len(entries) != 1 {
		t.Errorf("Expected persisted history of 1 entry, got %d", len(entries))
	}
}

func TestProcessFailurePublishesFailed(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"transport error", &services.TransportError{Err: errors.New("connection refused")}},
		{"decode error", &services.DecodeError{Err: errors.New("not json")}},
		{"untyped error", errors.New("boom")},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := newMemStore()
			ctrl, job := submitJob(t, store)

			pub := &fakePublisher{}
			pool := NewPool(&fakeSolver{err: tc.err}, pub, 1)

			pool.process(0, job)

			messages, _, isSolving := ctrl.Snapshot()
			if len(messages) != 2 {
				t.Fatalf("Expected exactly one completion, got %d messages", len(messages))
			}
			if messages[1].Solution != nil {
				t.Error("Failed solve must not carry a solution")
			}
			if isSolving {
				t.Error("is_solving should reset after a failed completion")
			}

			states := pub.states(t)
			if len(states) != 2 || states[0] != "solving" || states[1] != "failed" {
				t.Errorf("Expected status sequence [solving failed], got %v", states)
			}
		})
	}
}

func TestProcessStaleResultPublishesNoOutcome(t *testing.T) {
	store := newMemStore()
	ctrl, job := submitJob(t, store)

	// The conversation is cleared before the worker picks the job up.
	ctrl.ClearConversation()

	pub := &fakePublisher{}
	pool := NewPool(&fakeSolver{solution: solvedSolution()}, pub, 1)

	pool.process(0, job)

	messages, _, _ := ctrl.Snapshot()
	if len(messages) != 0 {
		t.Errorf("Stale result must not append to the fresh conversation; got %d messages", len(messages))
	}

	states := pub.states(t)
	if len(states) != 1 || states[0] != "solving" {
		t.Errorf("Stale result must publish no outcome status; got %v", states)
	}
}

func TestStopFailsBufferedJobs(t *testing.T) {
	store := newMemStore()
	pub := &fakePublisher{}

	// No workers are started, so the job stays buffered until Stop.
	pool := NewPool(&fakeSolver{solution: solvedSolution()}, pub, 0)

	ctrl := conversation.NewController(uuid.New(), nil, store, pool)
	if _, err := ctrl.Submit("x+1=2", ""); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	pool.Stop()

	messages, _, isSolving := ctrl.Snapshot()
	if len(messages) != 2 {
		t.Fatalf("Buffered job must still complete on shutdown; got %d messages", len(messages))
	}
	if messages[1].Solution != nil {
		t.Error("Shutdown completion must be a failure without a solution")
	}
	if isSolving {
		t.Error("is_solving must reset when the buffered job fails on shutdown")
	}
}
