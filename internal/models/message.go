package models

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn in a conversation. A user message may carry an inline
// image (base64 PNG). An assistant message carries either plain fallback text
// or a structured solution, never both.
type Message struct {
	ID        uuid.UUID           `json:"id"`
	Role      Role                `json:"role"`
	Content   string              `json:"content"`
	Timestamp time.Time           `json:"timestamp"`
	Image     string              `json:"image,omitempty"`
	Solution  *StructuredSolution `json:"solution,omitempty"`
}
