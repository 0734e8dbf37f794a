package storesession

import (
	"context"
	"maps"
	"sync"
	"time"
)

// Session holds the server-side state of one visitor.
type Session struct {
	ID        string
	Values    map[string]any
	CreatedAt time.Time
	ExpiresAt time.Time

	mu      sync.Mutex
	encoded []byte // gob form of Values cached by the engine for a single Save call
}

// Get returns the value stored under key.
func (s *Session) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.Values[key]
	return v, ok
}

// Set stores value under key.
func (s *Session) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Values == nil {
		s.Values = make(map[string]any)
	}
	s.Values[key] = value
}

// Delete removes key from the session values.
func (s *Session) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.Values, key)
}

// Clear wipes all values.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.Values)
}

// snapshot returns a copy of the values that is safe to encode without the lock.
func (s *Session) snapshot() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.Values)
}

// Store is the storage handler behind a session. Implementations must be safe
// for concurrent use because one Store serves every request.
type Store interface {
	// Get retrieves a session by its ID. A missing or expired session yields (nil, nil).
	Get(ctx context.Context, id string) (*Session, error)
	// Save writes a session to the store.
	Save(ctx context.Context, s *Session) error
	// Delete removes a session from the store. Deleting an unknown ID is not an error.
	Delete(ctx context.Context, id string) error
	// Cleanup removes expired sessions from the store.
	Cleanup(ctx context.Context) error
	// Close closes the store.
	Close() error
}

// PathScoper is implemented by stores whose records live under a directory.
// WithSavePath returns a store rooted at dir that shares the receiver's resources.
type PathScoper interface {
	WithSavePath(dir string) Store
}
