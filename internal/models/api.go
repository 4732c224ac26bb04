package models

import "github.com/google/uuid"

// SubmitRequest is the payload for a solve submission. At least one of Text
// or Image must be present; Image is a base64-encoded PNG.
type SubmitRequest struct {
	Text  string `json:"text"`
	Image string `json:"image,omitempty"`
}

type LevelRequest struct {
	Level string `json:"level"`
}

type RenderRequest struct {
	Text string `json:"text"`
}

type SynthesizeRequest struct {
	Text string `json:"text"`
}

// StrokeRequest carries one pointer event for the drawing surface. Point is
// in viewport coordinates; Bounds is the canvas element's on-screen bounding
// rectangle, used to translate into buffer space. Mouse and single-touch
// events produce identical payloads.
type StrokeRequest struct {
	Phase  string  `json:"phase"` // "begin" | "extend" | "end"
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Bounds Bounds  `json:"bounds"`
}

type Bounds struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// WebSocket message envelope.
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// SolveStatus is pushed over the WebSocket while a solve request is in
// flight and when it resolves.
type SolveStatus struct {
	SessionID uuid.UUID `json:"session_id"`
	State     string    `json:"state"` // "solving" | "solved" | "failed"
	MessageID uuid.UUID `json:"message_id,omitempty"`
}

// API Error response
type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}
