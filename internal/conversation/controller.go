package conversation

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"mathtutor-backend/internal/canvas"
	"mathtutor-backend/internal/models"
)

// ErrSolveInFlight reports a submission made while another solve is
// outstanding. The submission is dropped: no queueing, no cancellation of
// the prior request.
var ErrSolveInFlight = errors.New("a solve request is already in flight")

// ErrEmptySubmission reports a submission with blank text and no image.
var ErrEmptySubmission = errors.New("submission needs text or an image")

// HistoryStore persists the capped history log, one key per session,
// overwritten wholesale on every mutation.
type HistoryStore interface {
	Load(ctx context.Context, sessionID uuid.UUID) ([]models.HistoryEntry, error)
	Save(ctx context.Context, sessionID uuid.UUID, entries []models.HistoryEntry) error
	Delete(ctx context.Context, sessionID uuid.UUID) error
}

// Dispatcher executes solve jobs asynchronously. Exactly one Complete call
// must follow every dispatched job.
type Dispatcher interface {
	Dispatch(job SolveJob)
}

// SolveJob carries everything the dispatcher needs to run one solve and
// apply its result.
type SolveJob struct {
	Controller *Controller
	SessionID  uuid.UUID
	Generation uint64
	Text       string
	Image      string
	Level      models.ExplanationLevel
}

// Controller owns one session's conversation state for the lifetime of the
// session. All access is serialized behind its mutex.
type Controller struct {
	mu         sync.Mutex
	sessionID  uuid.UUID
	state      State
	store      HistoryStore
	dispatcher Dispatcher
	sketch     *canvas.Canvas
	lastActive time.Time
}

func NewController(sessionID uuid.UUID, history []models.HistoryEntry, store HistoryStore, dispatcher Dispatcher) *Controller {
	return &Controller{
		sessionID:  sessionID,
		state:      newState(history),
		store:      store,
		dispatcher: dispatcher,
		sketch:     canvas.New(),
		lastActive: time.Now(),
	}
}

func (c *Controller) SessionID() uuid.UUID { return c.sessionID }

// Sketch is the session's staged drawing surface. Submit clears it.
func (c *Controller) Sketch() *canvas.Canvas {
	c.touch()
	return c.sketch
}

func (c *Controller) LastActive() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActive
}

func (c *Controller) touch() {
	c.mu.Lock()
	c.lastActive = time.Now()
	c.mu.Unlock()
}

// Snapshot returns a copy of the message log alongside the current level and
// in-flight flag.
func (c *Controller) Snapshot() ([]models.Message, models.ExplanationLevel, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := make([]models.Message, len(c.state.Messages))
	copy(msgs, c.state.Messages)
	return msgs, c.state.Level, c.state.IsSolving
}

// History returns a copy of the history log, newest first.
func (c *Controller) History() []models.HistoryEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries := make([]models.HistoryEntry, len(c.state.History))
	copy(entries, c.state.History)
	return entries
}

// SetLevel changes the explanation level. The level is read at dispatch
// time, not frozen per conversation.
func (c *Controller) SetLevel(level models.ExplanationLevel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastActive = time.Now()
	c.state.Level = level
}

// Submit appends the user message synchronously and dispatches the solve.
// A submission while one is in flight returns ErrSolveInFlight and leaves
// the log untouched; blank input returns ErrEmptySubmission.
func (c *Controller) Submit(text, image string) (models.Message, error) {
	c.mu.Lock()
	c.lastActive = time.Now()

	if c.state.IsSolving {
		c.mu.Unlock()
		return models.Message{}, ErrSolveInFlight
	}
	if !canSubmit(c.state, text, image) {
		c.mu.Unlock()
		return models.Message{}, ErrEmptySubmission
	}

	var msg models.Message
	c.state, msg = beginSolve(c.state, text, image, time.Now())
	job := SolveJob{
		Controller: c,
		SessionID:  c.sessionID,
		Generation: c.state.Generation,
		Text:       text,
		Image:      image,
		Level:      c.state.Level,
	}
	c.mu.Unlock()

	// Staged sketch is consumed by the submission.
	c.sketch.Clear()

	c.dispatcher.Dispatch(job)
	return msg, nil
}

// Complete applies the result of one solve. A result whose generation no
// longer matches (the conversation was cleared while the request was
// outstanding) is discarded silently. The durable save happens under the
// session lock so a concurrent clear cannot slip between the transition and
// the write and be overwritten by it.
func (c *Controller) Complete(ctx context.Context, generation uint64, input string, sol *models.StructuredSolution, solveErr error) (models.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if generation != c.state.Generation {
		return models.Message{}, false
	}

	var msg models.Message
	if solveErr != nil {
		c.state, msg = applyFailure(c.state, time.Now())
		return msg, true
	}

	c.state, msg = applySolution(c.state, input, sol, time.Now())
	entries := make([]models.HistoryEntry, len(c.state.History))
	copy(entries, c.state.History)
	if err := c.store.Save(ctx, c.sessionID, entries); err != nil {
		log.Printf("Failed to persist history for session %s: %v", c.sessionID, err)
	}
	return msg, true
}

// ClearConversation empties the message log. History and its durable copy
// are untouched.
func (c *Controller) ClearConversation() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastActive = time.Now()
	c.state = clearConversation(c.state)
}

// ClearHistory empties the message log and the history log, and erases the
// durable store entry. The delete happens under the lock so it serializes
// against Complete's save.
func (c *Controller) ClearHistory(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastActive = time.Now()
	c.state = clearHistory(c.state)
	return c.store.Delete(ctx, c.sessionID)
}
