package conversation

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

const sessionIdleTTL = 2 * time.Hour

// Manager keeps one Controller per live session. A controller is created on
// first sight of a session ID; its history is loaded from the durable store
// exactly once, at creation.
type Manager struct {
	mu         sync.RWMutex
	sessions   map[uuid.UUID]*Controller
	store      HistoryStore
	dispatcher Dispatcher
	stopChan   chan struct{}
}

func NewManager(store HistoryStore, dispatcher Dispatcher) *Manager {
	m := &Manager{
		sessions:   make(map[uuid.UUID]*Controller),
		store:      store,
		dispatcher: dispatcher,
		stopChan:   make(chan struct{}),
	}
	go m.evictIdle()
	return m
}

// Create starts a fresh session.
func (m *Manager) Create(ctx context.Context) (*Controller, error) {
	return m.Get(ctx, uuid.New())
}

// Get returns the controller for a session, reviving it from persisted
// history when the session is not resident (token reuse after a restart or
// idle eviction).
func (m *Manager) Get(ctx context.Context, sessionID uuid.UUID) (*Controller, error) {
	m.mu.RLock()
	ctrl, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if ok {
		return ctrl, nil
	}

	history, err := m.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if ctrl, ok := m.sessions[sessionID]; ok {
		return ctrl, nil
	}
	ctrl = NewController(sessionID, history, m.store, m.dispatcher)
	m.sessions[sessionID] = ctrl
	return ctrl, nil
}

func (m *Manager) Stop() {
	close(m.stopChan)
}

func (m *Manager) evictIdle() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopChan:
			return
		case <-ticker.C:
			m.mu.Lock()
			for id, ctrl := range m.sessions {
				if time.Since(ctrl.LastActive()) > sessionIdleTTL {
					delete(m.sessions, id)
					log.Printf("Evicted idle session %s", id)
				}
			}
			m.mu.Unlock()
		}
	}
}
