package storesession

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Manager owns the storage backend shared by all requests and hands out one
// Controller per request.
type Manager struct {
	cfg       Config
	store     Store
	backend   string
	logger    *slog.Logger
	registry  *Registry
	stopChan  chan struct{}
	closeOnce sync.Once
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithRegistry sets the registry used to resolve Config.Backend.
// The default is DefaultRegistry().
func WithRegistry(r *Registry) Option {
	return func(m *Manager) {
		if r != nil {
			m.registry = r
		}
	}
}

// WithStore bypasses backend resolution and uses store directly.
func WithStore(store Store, name string) Option {
	return func(m *Manager) {
		m.store = store
		m.backend = name
	}
}

// NewManager resolves the storage backend named by cfg.Backend and starts
// the garbage-collection worker. It never fails: an unusable backend falls
// back to file storage and the fallback is logged.
func NewManager(ctx context.Context, cfg Config, opts ...Option) *Manager {
	if cfg.SessionName == "" {
		cfg.SessionName = DefaultSessionName
	}
	if cfg.RedirectPage == "" {
		cfg.RedirectPage = "/"
	}

	m := &Manager{
		cfg:      cfg,
		logger:   slog.Default(),
		stopChan: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(component())

	if m.store == nil {
		if m.registry == nil {
			m.registry = DefaultRegistry()
		}
		m.store, m.backend = m.registry.Resolve(ctx, cfg, m.logger)
	}

	m.logger.InfoContext(ctx, "session storage ready",
		backend(m.backend),
		slog.Duration("gc_lifetime", cfg.GCLifetime()),
	)

	if cfg.CleanupInterval > 0 {
		go m.cleanupWorker()
	}
	return m
}

func (m *Manager) cleanupWorker() {
	ticker := time.NewTicker(m.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := m.store.Cleanup(ctx); err != nil {
				m.logger.WarnContext(ctx, "session cleanup failed", backend(m.backend), errAttr(err))
			}
			cancel()
		case <-m.stopChan:
			return
		}
	}
}

// Close stops the cleanup worker and closes the store.
func (m *Manager) Close() error {
	var err error
	m.closeOnce.Do(func() {
		close(m.stopChan)
		err = m.store.Close()
	})
	return err
}

// Backend returns the name of the storage backend in use, which differs
// from Config.Backend when resolution fell back to file storage.
func (m *Manager) Backend() string {
	return m.backend
}

// Store returns the shared storage backend.
func (m *Manager) Store() Store {
	return m.store
}

// Controller returns a new, not yet started Controller for r. An empty name
// selects the configured session name.
func (m *Manager) Controller(w http.ResponseWriter, r *http.Request, name string) *Controller {
	req := NewRequest(r)
	if m.cfg.TrustForwardedProto && strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		req.Transport = Secure
	}
	return m.ControllerFor(w, req, name)
}

// ControllerFor is like Controller but works from an already captured Request.
func (m *Manager) ControllerFor(w http.ResponseWriter, req Request, name string) *Controller {
	if name == "" {
		name = m.cfg.SessionName
	}
	return newController(m.cfg, m.store, m.logger, w, req, name)
}

// Scope runs fn with a Controller for r and closes the session when fn
// returns, whether it returns normally, with an error or by panicking.
// Scope does not start the session.
func (m *Manager) Scope(ctx context.Context, w http.ResponseWriter, r *http.Request, name string, fn func(*Controller) error) error {
	c := m.Controller(w, r, name)
	defer m.release(ctx, c)
	return fn(c)
}

func (m *Manager) release(ctx context.Context, c *Controller) {
	if err := c.Close(ctx); err != nil {
		m.logger.ErrorContext(ctx, "failed to write session", backend(m.backend), errAttr(err))
	}
}

// Middleware starts the session for every request and stores the Controller
// in the request context. Requests carrying a malformed session ID end with
// the redirect written by Start. When the store cannot activate the session
// the handler still runs, with a Controller that is not started. The session
// is written after the handler returns.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		c := m.Controller(w, r, "")
		defer m.release(ctx, c)

		if !c.Start(ctx) && c.Rejected() {
			return
		}

		next.ServeHTTP(w, r.WithContext(WithController(ctx, c)))
	})
}
