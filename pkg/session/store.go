package session

import (
	"context"
	"sync"
)

// Store keeps sessions by id.
type Store interface {
	// Get returns the session, or nil, nil if it does not exist or expired.
	Get(ctx context.Context, id string) (*Session, error)

	// Set adds a session.
	Set(ctx context.Context, sess *Session) error

	// Delete closes and removes a session. Unknown ids are not an error.
	Delete(ctx context.Context, id string) error

	// Cleanup closes and removes expired sessions.
	Cleanup(ctx context.Context) error
}

// MemoryStore keeps sessions in process memory. It is safe for concurrent
// use.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	sess, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if sess.IsExpired() {
		_ = m.Delete(ctx, id)
		return nil, nil
	}
	return sess, nil
}

func (m *MemoryStore) Set(_ context.Context, sess *Session) error {
	m.mu.Lock()
	m.sessions[sess.ID] = sess
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		sess.Close()
	}
	return nil
}

func (m *MemoryStore) Cleanup(ctx context.Context) error {
	m.mu.RLock()
	var expired []string
	for id, sess := range m.sessions {
		if sess.IsExpired() {
			expired = append(expired, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range expired {
		if err := m.Delete(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of live sessions.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close closes and removes every session.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, sess := range all {
		sess.Close()
	}
	return nil
}

var _ Store = (*MemoryStore)(nil)
