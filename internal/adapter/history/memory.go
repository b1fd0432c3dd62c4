// Package history persists conversation turns and user feedback.
package history

import (
	"context"
	"sync"

	"taxrag/internal/domain"
	"taxrag/internal/port"
)

// MemoryStore keeps sessions for the life of the process.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]domain.Turn
	feedback []domain.Feedback
}

var (
	_ port.HistoryStore  = (*MemoryStore)(nil)
	_ port.FeedbackStore = (*MemoryStore)(nil)
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]domain.Turn)}
}

// Load returns a copy of the session's turns, oldest first. An unknown
// session has no turns.
func (m *MemoryStore) Load(ctx context.Context, sessionID string) ([]domain.Turn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.Turn(nil), m.sessions[sessionID]...), nil
}

func (m *MemoryStore) Append(ctx context.Context, sessionID string, turn domain.Turn) error {
	if sessionID == "" {
		return domain.Errorf(domain.KindInvalidInput, "history.append", "empty session id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sessionID] = append(m.sessions[sessionID], turn)
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}

func (m *MemoryStore) SaveFeedback(ctx context.Context, fb domain.Feedback) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feedback = append(m.feedback, fb)
	return nil
}

func (m *MemoryStore) ListFeedback(ctx context.Context) ([]domain.Feedback, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.Feedback(nil), m.feedback...), nil
}

func (m *MemoryStore) Close() error {
	return nil
}
