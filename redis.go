package storesession

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps sessions in Redis (backend "redis"). Records carry a
// native TTL, so Cleanup has nothing to do.
type RedisStore struct {
	db              redis.UniversalClient
	prefix          string
	ttl             time.Duration
	maxSessionBytes int
}

// RedisConfig holds configuration for the Redis store.
type RedisConfig struct {
	URL             string
	KeyPrefix       string
	TTL             time.Duration
	MaxSessionBytes int
	RetryAttempts   int
	RetryInterval   time.Duration
	ConnectTimeout  time.Duration
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client redis.UniversalClient, cfg RedisConfig) *RedisStore {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "sess:"
	}
	return &RedisStore{
		db:              client,
		prefix:          prefix,
		ttl:             cfg.TTL,
		maxSessionBytes: cfg.MaxSessionBytes,
	}
}

// ConnectRedisStore parses cfg.URL, pings the server with retries and returns
// a store that owns the resulting client.
func ConnectRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	attempts := max(cfg.RetryAttempts, 1)

	var lastErr error
	for i := 0; i < attempts; i++ {
		client := redis.NewClient(opts)
		if lastErr = client.Ping(ctx).Err(); lastErr == nil {
			return NewRedisStore(client, cfg), nil
		}
		_ = client.Close()

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrStoreUnavailable, ctx.Err())
		case <-time.After(cfg.RetryInterval):
		}
	}
	return nil, errors.Join(ErrStoreUnavailable, lastErr)
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	data, err := s.db.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}
	return decodeEnvelope(id, data, s.maxSessionBytes)
}

func (s *RedisStore) Save(ctx context.Context, session *Session) error {
	exp := s.ttl
	if !session.ExpiresAt.IsZero() {
		exp = time.Until(session.ExpiresAt)
		if exp <= 0 {
			return nil
		}
	}

	buf, err := encodeEnvelope(session, s.maxSessionBytes)
	if err != nil {
		return err
	}
	defer PutBuffer(buf)

	if err := s.db.Set(ctx, s.key(session.ID), buf.Bytes(), exp).Err(); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.db.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete from redis: %w", err)
	}
	return nil
}

// Cleanup is a no-op, keys expire through their TTL.
func (s *RedisStore) Cleanup(ctx context.Context) error {
	return nil
}

func (s *RedisStore) Close() error {
	return s.db.Close()
}
