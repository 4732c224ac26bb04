package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"mathtutor-backend/internal/conversation"
	"mathtutor-backend/internal/middleware"
	"mathtutor-backend/internal/models"
)

type ConversationHandler struct {
	manager *conversation.Manager
}

func NewConversationHandler(manager *conversation.Manager) *ConversationHandler {
	return &ConversationHandler{manager: manager}
}

func (h *ConversationHandler) controller(w http.ResponseWriter, r *http.Request) (*conversation.Controller, bool) {
	sessionID := middleware.GetSessionID(r.Context())
	ctrl, err := h.manager.Get(r.Context(), sessionID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load session", r))
		return nil, false
	}
	return ctrl, true
}

// Get returns the full conversation state for rendering.
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}

	messages, level, isSolving := ctrl.Snapshot()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"messages":   messages,
		"level":      level,
		"is_solving": isSolving,
	})
}

// Submit accepts a problem as text, an image, or both, and dispatches the
// solve. The user message is appended before the request starts; the
// assistant reply arrives asynchronously.
func (h *ConversationHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	if strings.TrimSpace(req.Text) == "" && req.Image == "" {
		writeJSON(w, http.StatusBadRequest, errorResp("INPUT_REJECTED", "Provide a problem as text or an image", r))
		return
	}

	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}

	msg, err := ctrl.Submit(req.Text, req.Image)
	if errors.Is(err, conversation.ErrSolveInFlight) {
		writeJSON(w, http.StatusConflict, errorResp("SOLVE_IN_FLIGHT", "A solve request is already in progress", r))
		return
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("INPUT_REJECTED", "Provide a problem as text or an image", r))
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"message":    msg,
		"is_solving": true,
	})
}

// SetLevel changes the explanation level for subsequent solves.
func (h *ConversationHandler) SetLevel(w http.ResponseWriter, r *http.Request) {
	var req models.LevelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	level := models.ExplanationLevel(req.Level)
	if !level.Valid() {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Unknown explanation level", r))
		return
	}

	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}

	ctrl.SetLevel(level)
	writeJSON(w, http.StatusOK, map[string]interface{}{"level": level})
}

// Clear empties the conversation. History is untouched.
func (h *ConversationHandler) Clear(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}

	ctrl.ClearConversation()
	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": []models.Message{}})
}

// History returns the persisted solve history, newest first.
func (h *ConversationHandler) History(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"history": ctrl.History()})
}

// ClearHistory erases the history log, its durable copy, and the visible
// conversation.
func (h *ConversationHandler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}

	if err := ctrl.ClearHistory(r.Context()); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to clear history", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"history":  []models.HistoryEntry{},
		"messages": []models.Message{},
	})
}
