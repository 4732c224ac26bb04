package models

import (
	"time"

	"github.com/google/uuid"
)

// HistoryEntry is the persisted summary of one past successful solve. The
// durable log holds at most MaxHistoryEntries entries, newest first, oldest
// evicted first.
type HistoryEntry struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Timestamp   time.Time `json:"timestamp"`
	LastMessage string    `json:"last_message"`
}

const MaxHistoryEntries = 20
