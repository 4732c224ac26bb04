package handlers

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"mathtutor-backend/internal/canvas"
	"mathtutor-backend/internal/conversation"
	"mathtutor-backend/internal/models"
)

// CanvasHandler drives the session's staged drawing surface. The captured
// sketch is submitted as the image payload of a solve request.
type CanvasHandler struct {
	manager *conversation.Manager
}

func NewCanvasHandler(manager *conversation.Manager) *CanvasHandler {
	return &CanvasHandler{manager: manager}
}

func (h *CanvasHandler) controller(w http.ResponseWriter, r *http.Request) (*conversation.Controller, bool) {
	return (&ConversationHandler{manager: h.manager}).controller(w, r)
}

// Stroke applies one pointer event. Coordinates arrive in viewport space
// together with the element's bounding rectangle.
func (h *CanvasHandler) Stroke(w http.ResponseWriter, r *http.Request) {
	var req models.StrokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}

	sketch := ctrl.Sketch()
	p := canvas.Translate(req.X, req.Y, req.Bounds)

	switch req.Phase {
	case "begin":
		sketch.BeginStroke(p)
	case "extend":
		sketch.ExtendStroke(p)
	case "end":
		sketch.EndStroke()
	default:
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Unknown stroke phase", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *CanvasHandler) Clear(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}

	ctrl.Sketch().Clear()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Capture returns the current buffer as base64 PNG, ready to submit.
func (h *CanvasHandler) Capture(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}

	data, err := ctrl.Sketch().Capture()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to capture sketch", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"image": base64.StdEncoding.EncodeToString(data),
	})
}
