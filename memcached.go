package storesession

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

// MemcachedStore keeps sessions in Memcached (backend "memcached").
type MemcachedStore struct {
	client          *memcache.Client
	ttl             time.Duration
	maxSessionBytes int
}

// MemcachedConfig holds configuration for the Memcached store.
type MemcachedConfig struct {
	Servers         []string
	TTL             time.Duration
	MaxSessionBytes int
	Timeout         time.Duration // 0 means no timeout
}

// NewMemcachedStore creates a new MemcachedStore with a one second operation timeout.
func NewMemcachedStore(ttl time.Duration, servers ...string) *MemcachedStore {
	return NewMemcachedStoreWithConfig(MemcachedConfig{
		Servers: servers,
		TTL:     ttl,
		Timeout: 1 * time.Second,
	})
}

// NewMemcachedStoreWithConfig creates a new MemcachedStore with custom configuration.
func NewMemcachedStoreWithConfig(cfg MemcachedConfig) *MemcachedStore {
	client := memcache.New(cfg.Servers...)
	client.Timeout = cfg.Timeout

	return &MemcachedStore{
		client:          client,
		ttl:             cfg.TTL,
		maxSessionBytes: cfg.MaxSessionBytes,
	}
}

// Ping checks that at least one server answers.
func (s *MemcachedStore) Ping() error {
	if err := s.client.Ping(); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}

// Get retrieves a session from Memcached.
func (s *MemcachedStore) Get(ctx context.Context, id string) (*Session, error) {
	item, err := s.client.Get(id)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get from memcached: %w", err)
	}

	session, err := decodeEnvelope(id, item.Value, s.maxSessionBytes)
	if err != nil {
		return nil, err
	}
	// Memcached expiry is lazy and coarse, so check the envelope as well.
	if !session.ExpiresAt.IsZero() && !session.ExpiresAt.After(time.Now()) {
		return nil, nil
	}
	return session, nil
}

// Save stores a session in Memcached.
func (s *MemcachedStore) Save(ctx context.Context, session *Session) error {
	if !session.ExpiresAt.IsZero() && time.Until(session.ExpiresAt) <= 0 {
		return nil
	}

	buf, err := encodeEnvelope(session, s.maxSessionBytes)
	if err != nil {
		return err
	}
	defer PutBuffer(buf)

	err = s.client.Set(&memcache.Item{
		Key:        session.ID,
		Value:      buf.Bytes(),
		Expiration: calculateMemcachedExpiration(time.Now(), session.ExpiresAt, s.ttl),
	})
	if err != nil {
		return fmt.Errorf("failed to save to memcached: %w", err)
	}
	return nil
}

// Delete removes a session from Memcached.
func (s *MemcachedStore) Delete(ctx context.Context, id string) error {
	err := s.client.Delete(id)
	if err != nil && !errors.Is(err, memcache.ErrCacheMiss) {
		return fmt.Errorf("failed to delete from memcached: %w", err)
	}
	return nil
}

// Cleanup is a no-op, Memcached expires items itself.
func (s *MemcachedStore) Cleanup(ctx context.Context) error {
	return nil
}

func (s *MemcachedStore) Close() error {
	return s.client.Close()
}

// calculateMemcachedExpiration returns the Expiration field for an item.
// Memcached reads values above 30 days as absolute Unix timestamps and
// smaller values as a delta from now.
func calculateMemcachedExpiration(now time.Time, expiresAt time.Time, ttl time.Duration) int32 {
	const maxDelta = 30 * 24 * 60 * 60

	var duration time.Duration
	if !expiresAt.IsZero() {
		duration = expiresAt.Sub(now)
	} else {
		duration = ttl
	}

	if duration > maxDelta*time.Second {
		if !expiresAt.IsZero() {
			return int32(expiresAt.Unix())
		}
		return int32(now.Add(ttl).Unix())
	}

	// 0 means "never expire", a negative value expires the item at once.
	if duration <= 0 {
		if expiresAt.IsZero() {
			return 0
		}
		return -1
	}
	return int32((duration + time.Second - 1) / time.Second)
}
