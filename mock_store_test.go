package storesession

import (
	"context"
	"errors"
	"maps"
	"sync"
	"time"
)

// MockStore keeps sessions in a map so controller tests need no DB or Memcached.
type MockStore struct {
	mu        sync.Mutex
	sessions  map[string]*Session
	getErr    error
	saveErr   error
	deleteErr error
	deletes   []string
	saves     int
}

func newMockStore() *MockStore {
	return &MockStore{sessions: make(map[string]*Session)}
}

var errMock = errors.New("mock store failure")

func (m *MockStore) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	s, ok := m.sessions[id]
	if !ok || (!s.ExpiresAt.IsZero() && s.ExpiresAt.Before(time.Now())) {
		return nil, nil
	}
	return &Session{ID: s.ID, Values: maps.Clone(s.Values), CreatedAt: s.CreatedAt, ExpiresAt: s.ExpiresAt}, nil
}

func (m *MockStore) Save(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.sessions[s.ID] = &Session{ID: s.ID, Values: s.snapshot(), CreatedAt: s.CreatedAt, ExpiresAt: s.ExpiresAt}
	return nil
}

func (m *MockStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes = append(m.deletes, id)
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.sessions, id)
	return nil
}

func (m *MockStore) Cleanup(ctx context.Context) error { return nil }
func (m *MockStore) Close() error                      { return nil }

func (m *MockStore) has(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[id]
	return ok
}

func (m *MockStore) deleteCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.deletes)
}
