// Package conversation owns the per-session message log, explanation level,
// in-flight solve gate, and history log. State transitions are pure functions
// over an explicit State value; the Controller serializes them and talks to
// the dispatcher and the durable history store.
package conversation

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"mathtutor-backend/internal/models"
)

// fallbackText is the assistant reply for any failed solve, regardless of
// cause. Transport and decode failures are logged separately but not
// distinguished here.
const fallbackText = "I ran into a problem with that calculation. Please try again."

const titleMaxRunes = 30

// State is everything one conversation owns. Generation increments whenever
// the conversation is cleared; a solve result is applied only if the
// generation captured at dispatch time still matches, so a response that
// lands after a clear is discarded instead of appending to a fresh log.
type State struct {
	Messages   []models.Message
	Level      models.ExplanationLevel
	IsSolving  bool
	History    []models.HistoryEntry
	Generation uint64
}

func newState(history []models.HistoryEntry) State {
	return State{
		Level:   models.LevelStandard,
		History: history,
	}
}

// canSubmit reports whether a submission would be accepted: it needs text or
// an image, and at most one solve may be in flight.
func canSubmit(s State, text, image string) bool {
	if s.IsSolving {
		return false
	}
	return strings.TrimSpace(text) != "" || image != ""
}

// beginSolve appends the user message and raises the in-flight gate. The
// user message is in the log before the solve request starts.
func beginSolve(s State, text, image string, now time.Time) (State, models.Message) {
	msg := models.Message{
		ID:        uuid.New(),
		Role:      models.RoleUser,
		Content:   text,
		Timestamp: now,
		Image:     image,
	}
	s.Messages = append(s.Messages, msg)
	s.IsSolving = true
	return s, msg
}

// applySolution appends the assistant message carrying the solution and
// prepends a history entry, evicting the oldest past MaxHistoryEntries.
func applySolution(s State, input string, sol *models.StructuredSolution, now time.Time) (State, models.Message) {
	msg := models.Message{
		ID:        uuid.New(),
		Role:      models.RoleAssistant,
		Timestamp: now,
		Solution:  sol,
	}
	s.Messages = append(s.Messages, msg)
	s.IsSolving = false

	title := input
	if strings.TrimSpace(title) == "" {
		title = sol.Description
	}
	entry := models.HistoryEntry{
		ID:          uuid.New(),
		Title:       historyTitle(title),
		Timestamp:   now,
		LastMessage: sol.FinalAnswer,
	}
	s.History = append([]models.HistoryEntry{entry}, s.History...)
	if len(s.History) > models.MaxHistoryEntries {
		s.History = s.History[:models.MaxHistoryEntries]
	}
	return s, msg
}

// applyFailure appends the generic fallback message. No metadata, no retry.
func applyFailure(s State, now time.Time) (State, models.Message) {
	msg := models.Message{
		ID:        uuid.New(),
		Role:      models.RoleAssistant,
		Content:   fallbackText,
		Timestamp: now,
	}
	s.Messages = append(s.Messages, msg)
	s.IsSolving = false
	return s, msg
}

// clearConversation empties the message log only. History survives.
func clearConversation(s State) State {
	s.Messages = nil
	s.IsSolving = false
	s.Generation++
	return s
}

// clearHistory empties the message log AND the history log. Clearing history
// always clears the visible conversation; the reverse does not hold.
func clearHistory(s State) State {
	s = clearConversation(s)
	s.History = nil
	return s
}

// historyTitle truncates the problem input to at most titleMaxRunes runes,
// appending an ellipsis marker when anything was cut.
func historyTitle(input string) string {
	runes := []rune(input)
	if len(runes) <= titleMaxRunes {
		return input
	}
	return string(runes[:titleMaxRunes]) + "..."
}
