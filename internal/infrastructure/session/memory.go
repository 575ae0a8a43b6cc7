package session

import (
	"context"
	"sync"

	"KnowledgeSync/internal/domain"
	"KnowledgeSync/internal/ports"
)

// MemoryStore keeps sessions for the lifetime of the process.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]domain.UploadSession
}

var _ ports.SessionStore = (*MemoryStore)(nil)

// NewMemoryStore builds an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: map[string]domain.UploadSession{}}
}

// Load returns the stored session or an empty one for key.
func (m *MemoryStore) Load(_ context.Context, key string) (domain.UploadSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[key]
	if !ok {
		return domain.UploadSession{Key: key}, nil
	}
	return clone(s), nil
}

// Save replaces the session stored under session.Key.
func (m *MemoryStore) Save(_ context.Context, s domain.UploadSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[s.Key] = clone(s)
	return nil
}

func clone(s domain.UploadSession) domain.UploadSession {
	if s.FailedArticles != nil {
		failed := make([]domain.FailedArticle, len(s.FailedArticles))
		copy(failed, s.FailedArticles)
		s.FailedArticles = failed
	}
	return s
}
