package storesession

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// DefaultBackend is the name of the file backend.
const DefaultBackend = "files"

// StoreFactory builds a Store from configuration.
type StoreFactory func(ctx context.Context, cfg Config) (Store, error)

// Registry maps backend names to store factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]StoreFactory
}

// NewRegistry returns a registry holding only the file backend.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]StoreFactory)}
	r.Register(DefaultBackend, newFileBackend)
	return r
}

// DefaultRegistry returns a registry with every bundled backend:
// files, sqlite, postgres, memcached and redis.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("sqlite", newSQLiteBackend)
	r.Register("postgres", newPostgresBackend)
	r.Register("memcached", newMemcachedBackend)
	r.Register("redis", newRedisBackend)
	return r
}

// Register adds or replaces the factory for name. Names that do not survive
// SanitizeBackendName unchanged are ignored.
func (r *Registry) Register(name string, factory StoreFactory) {
	clean, ok := SanitizeBackendName(name)
	if !ok || clean != name || factory == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[clean] = factory
}

// Names returns the registered backend names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the factory registered under the sanitised form of name.
func (r *Registry) Lookup(name string) (StoreFactory, string, error) {
	clean, ok := SanitizeBackendName(name)
	if !ok {
		return nil, "", fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
	r.mu.RLock()
	factory, found := r.factories[clean]
	r.mu.RUnlock()
	if !found {
		return nil, clean, fmt.Errorf("%w: %q", ErrUnknownBackend, clean)
	}
	return factory, clean, nil
}

// Resolve builds the store named by cfg.Backend. It never fails: an empty
// name selects the file backend, and an unknown name or a failing factory
// falls back to it with a warning. The returned name is the backend in use.
func (r *Registry) Resolve(ctx context.Context, cfg Config, logger *slog.Logger) (Store, string) {
	requested := strings.TrimSpace(cfg.Backend)
	if requested != "" && requested != DefaultBackend {
		factory, clean, err := r.Lookup(requested)
		if err == nil {
			store, ferr := factory(ctx, cfg)
			if ferr == nil {
				return store, clean
			}
			err = ferr
		}
		logger.WarnContext(ctx, "session backend unavailable, falling back to file storage",
			component(),
			slog.String("requested_backend", requested),
			backend(DefaultBackend),
			errAttr(err),
		)
	}

	r.mu.RLock()
	factory := r.factories[DefaultBackend]
	r.mu.RUnlock()
	if factory == nil {
		factory = newFileBackend
	}

	store, err := factory(ctx, cfg)
	if err != nil {
		logger.ErrorContext(ctx, "file session storage unavailable, keeping sessions in memory",
			component(),
			slog.String("save_path", cfg.SavePath),
			errAttr(err),
		)
		return newMemoryFileStore(cfg), DefaultBackend
	}
	return store, DefaultBackend
}

// SanitizeBackendName reduces name to its base name and accepts it only if
// it is made of letters, digits, '-' and '_'.
func SanitizeBackendName(name string) (string, bool) {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	if name == "" {
		return "", false
	}
	base := path.Base(name)
	if base == "." || base == ".." || base == "/" {
		return "", false
	}
	for i := 0; i < len(base); i++ {
		c := base[i]
		if !alnum[c] && c != '-' && c != '_' {
			return "", false
		}
	}
	return strings.ToLower(base), true
}

func newFileBackend(_ context.Context, cfg Config) (Store, error) {
	return NewFileStore(FileConfig{
		Dir:             cfg.SavePath,
		TTL:             cfg.GCLifetime(),
		MaxSessionBytes: cfg.MaxSessionBytes,
	})
}

func newMemoryFileStore(cfg Config) Store {
	store, err := NewFileStoreWithFs(afero.NewMemMapFs(), FileConfig{
		Dir:             cfg.SavePath,
		TTL:             cfg.GCLifetime(),
		MaxSessionBytes: cfg.MaxSessionBytes,
	})
	if err != nil {
		// MemMapFs cannot fail to create a directory.
		panic(err)
	}
	return store
}

func newSQLiteBackend(_ context.Context, cfg Config) (Store, error) {
	return NewSQLiteStoreWithConfig(SQLiteConfig{
		DSN:             cfg.SQLiteDSN,
		MaxOpenConns:    16,
		MaxIdleConns:    16,
		MaxSessionBytes: cfg.MaxSessionBytes,
	})
}

func newPostgresBackend(_ context.Context, cfg Config) (Store, error) {
	if cfg.PostgresDSN == "" {
		return nil, errors.Join(ErrStoreUnavailable, errors.New("SESSION_POSTGRES_DSN is not set"))
	}
	return NewPostgreSQLStoreWithConfig(PostgreSQLConfig{
		DSN:             cfg.PostgresDSN,
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		MaxSessionBytes: cfg.MaxSessionBytes,
	})
}

func newMemcachedBackend(_ context.Context, cfg Config) (Store, error) {
	store := NewMemcachedStoreWithConfig(MemcachedConfig{
		Servers:         cfg.MemcachedServers,
		TTL:             cfg.GCLifetime(),
		MaxSessionBytes: cfg.MaxSessionBytes,
		Timeout:         cfg.MemcachedTimeout,
	})
	if err := store.Ping(); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

func newRedisBackend(ctx context.Context, cfg Config) (Store, error) {
	return ConnectRedisStore(ctx, RedisConfig{
		URL:             cfg.RedisURL,
		KeyPrefix:       cfg.RedisKeyPrefix,
		TTL:             cfg.GCLifetime(),
		MaxSessionBytes: cfg.MaxSessionBytes,
		RetryAttempts:   3,
		RetryInterval:   time.Second,
		ConnectTimeout:  cfg.ConnectTimeout,
	})
}
