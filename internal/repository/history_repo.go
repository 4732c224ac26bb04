package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"mathtutor-backend/internal/models"
)

// HistoryRepo mirrors each session's history log into Redis: one key per
// session holding the JSON-serialized array, newest first, overwritten
// wholesale on every mutation. An absent key means an empty history.
type HistoryRepo struct {
	redis *redis.Client
}

func NewHistoryRepo(redisClient *redis.Client) *HistoryRepo {
	return &HistoryRepo{redis: redisClient}
}

func historyKey(sessionID uuid.UUID) string {
	return fmt.Sprintf("history:%s", sessionID.String())
}

func (r *HistoryRepo) Load(ctx context.Context, sessionID uuid.UUID) ([]models.HistoryEntry, error) {
	data, err := r.redis.Get(ctx, historyKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	var entries []models.HistoryEntry
	if err := json.Unmarshal([]byte(data), &entries); err != nil {
		return nil, fmt.Errorf("failed to decode history: %w", err)
	}
	return entries, nil
}

func (r *HistoryRepo) Save(ctx context.Context, sessionID uuid.UUID, entries []models.HistoryEntry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}
	if err := r.redis.Set(ctx, historyKey(sessionID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save history: %w", err)
	}
	return nil
}

func (r *HistoryRepo) Delete(ctx context.Context, sessionID uuid.UUID) error {
	if err := r.redis.Del(ctx, historyKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete history: %w", err)
	}
	return nil
}
