package handlers

import (
	"encoding/json"
	"net/http"

	"mathtutor-backend/internal/markup"
	"mathtutor-backend/internal/models"
)

type RenderHandler struct{}

func NewRenderHandler() *RenderHandler {
	return &RenderHandler{}
}

// Render splits a text blob into literal and math segments for display.
func (h *RenderHandler) Render(w http.ResponseWriter, r *http.Request) {
	var req models.RenderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	segments := markup.Render(req.Text)
	if segments == nil {
		segments = []markup.Segment{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"segments": segments})
}
