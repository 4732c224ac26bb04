package handlers

import (
	"net/http"

	"mathtutor-backend/internal/conversation"
	"mathtutor-backend/internal/middleware"
)

type SessionHandler struct {
	manager *conversation.Manager
	auth    *middleware.SessionAuth
}

func NewSessionHandler(manager *conversation.Manager, auth *middleware.SessionAuth) *SessionHandler {
	return &SessionHandler{manager: manager, auth: auth}
}

// Create starts an anonymous session and returns its token. Reusing a token
// later revives the session with its persisted history.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctrl, err := h.manager.Create(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to create session", r))
		return
	}

	token, err := h.auth.GenerateToken(ctrl.SessionID())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to issue session token", r))
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"session_id": ctrl.SessionID(),
		"token":      token,
		"history":    ctrl.History(),
	})
}
