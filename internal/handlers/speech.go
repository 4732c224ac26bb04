package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"mathtutor-backend/internal/models"
	"mathtutor-backend/internal/services"
)

const maxAudioBytes = 10 << 20

// Capability providers are queried per invocation; an unsupported provider
// is reported to the user, never silently skipped.

type synthesizer interface {
	Supported() bool
	Synthesize(ctx context.Context, text string) ([]byte, string, error)
}

type recognizer interface {
	Supported() bool
	Recognize(ctx context.Context, audio []byte, mimeType string) (string, error)
}

type SpeechHandler struct {
	synth synthesizer
	recog recognizer
}

func NewSpeechHandler(synth synthesizer, recog recognizer) *SpeechHandler {
	return &SpeechHandler{synth: synth, recog: recog}
}

// Synthesize speaks answer text. Markup punctuation is stripped by the
// provider before synthesis.
func (h *SpeechHandler) Synthesize(w http.ResponseWriter, r *http.Request) {
	var req models.SynthesizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	if !h.synth.Supported() {
		writeJSON(w, http.StatusNotImplemented, errorResp("UNSUPPORTED", "Speech synthesis is not available", r))
		return
	}

	audio, mimeType, err := h.synth.Synthesize(r.Context(), req.Text)
	if errors.Is(err, services.ErrUnsupported) {
		writeJSON(w, http.StatusNotImplemented, errorResp("UNSUPPORTED", "Speech synthesis is not available", r))
		return
	}
	if err != nil {
		writeJSON(w, http.StatusBadGateway, errorResp("SPEECH_ERROR", "Failed to synthesize speech", r))
		return
	}

	w.Header().Set("Content-Type", mimeType)
	w.WriteHeader(http.StatusOK)
	w.Write(audio)
}

// Recognize transcribes a spoken problem. The body is raw audio; the
// Content-Type header names its format.
func (h *SpeechHandler) Recognize(w http.ResponseWriter, r *http.Request) {
	if !h.recog.Supported() {
		writeJSON(w, http.StatusNotImplemented, errorResp("UNSUPPORTED", "Speech recognition is not available", r))
		return
	}

	audio, err := io.ReadAll(io.LimitReader(r.Body, maxAudioBytes))
	if err != nil || len(audio) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Audio payload is required", r))
		return
	}

	mimeType := r.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "audio/webm"
	}

	text, err := h.recog.Recognize(r.Context(), audio, mimeType)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, errorResp("SPEECH_ERROR", "Failed to recognize speech", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}
