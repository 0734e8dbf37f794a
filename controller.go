package storesession

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Controller drives the session of a single request. It is created by a
// Manager, is not safe for concurrent use and must be closed when the
// request ends; Manager.Scope and Manager.Middleware take care of that.
type Controller struct {
	cfg    Config
	logger *slog.Logger
	req    Request
	w      http.ResponseWriter
	engine *engine

	name     string
	id       string
	started  bool
	rejected bool
	savePath string
	cookies  *CookieParams
}

func newController(cfg Config, store Store, logger *slog.Logger, w http.ResponseWriter, req Request, name string) *Controller {
	c := &Controller{
		cfg:    cfg,
		logger: logger,
		req:    req,
		w:      w,
		engine: &engine{
			store:           store,
			w:               w,
			gcLifetime:      cfg.GCLifetime(),
			maxSessionBytes: cfg.MaxSessionBytes,
		},
		savePath: normalizeSavePath(cfg.SavePath),
	}
	if fs, ok := store.(*FileStore); ok {
		c.savePath = fs.Dir()
	}

	c.SetName(name)
	c.SetCookieParameters()
	return c
}

// Start validates every session ID the request supplies and activates the
// session. A request carrying any malformed ID, in the query string, the
// form body or the cookie, is rejected: the cookie is expired, a redirect
// to the plain-transport landing page is written and Start returns false
// with Rejected reporting true. Start also returns false when the store
// cannot activate the session.
func (c *Controller) Start(ctx context.Context) bool {
	if c.started {
		return true
	}
	if c.rejected {
		return false
	}

	if !c.req.sane(c.name) {
		c.reject()
		return false
	}

	c.engine.clientID, _ = c.req.Cookie(c.name)
	if err := c.engine.start(ctx, c.req.candidate(c.name)); err != nil {
		c.logger.ErrorContext(ctx, "failed to start session",
			sessionName(c.name),
			errAttr(err),
		)
		return false
	}

	c.started = true
	c.id = c.engine.id()
	return true
}

func (c *Controller) reject() {
	c.rejected = true

	if _, ok := c.req.Cookie(c.name); ok {
		c.engine.expireCookie()
	}

	target := c.landingURL()
	c.logger.Info("rejected malformed session id",
		sessionName(c.name),
		slog.String("redirect", target),
	)
	c.w.Header().Set("Location", target)
	c.w.WriteHeader(http.StatusFound)
}

// landingURL is the default page on the plain transport. Without
// HTTPServer the request host is used only when it falls under a configured
// cookie domain; otherwise the redirect is relative to the current host.
func (c *Controller) landingURL() string {
	u := &url.URL{}
	if c.cfg.HTTPServer != "" {
		if parsed, err := url.Parse(c.cfg.HTTPServer); err == nil && parsed.Host != "" {
			u.Scheme = "http"
			u.Host = parsed.Host
			u.Path = strings.TrimSuffix(parsed.Path, "/")
		}
	}
	if u.Host == "" && c.trustedHost(c.req.Host) {
		u.Scheme = "http"
		u.Host = c.req.Host
	}
	page := c.cfg.RedirectPage
	if !strings.HasPrefix(page, "/") {
		page = "/" + page
	}
	u.Path += page
	return u.String()
}

// trustedHost reports whether host is one of the configured cookie domains
// or a subdomain of one.
func (c *Controller) trustedHost(host string) bool {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(host)
	if host == "" {
		return false
	}
	for _, domain := range []string{c.cfg.HTTPCookieDomain, c.cfg.HTTPSCookieDomain} {
		domain = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(domain)), ".")
		if domain != "" && (host == domain || strings.HasSuffix(host, "."+domain)) {
			return true
		}
	}
	return false
}

// IsStarted reports whether the session is active.
func (c *Controller) IsStarted() bool {
	return c.started
}

// Rejected reports whether Start turned the request away for carrying a malformed ID.
func (c *Controller) Rejected() bool {
	return c.rejected
}

// Close writes the session to the store and ends it. Calling Close on a
// session that is not started does nothing.
func (c *Controller) Close(ctx context.Context) error {
	if !c.started {
		return nil
	}
	c.started = false
	c.id = ""
	return c.engine.writeClose(ctx)
}

// Destroy ends the session, expires the client cookie and removes the
// stored record. It does nothing unless the session is started.
func (c *Controller) Destroy(ctx context.Context) {
	if !c.started {
		return
	}

	if _, ok := c.req.Cookie(c.name); ok {
		c.engine.expireCookie()
	}

	c.Delete(ctx, "")

	if err := c.engine.destroy(ctx); err != nil {
		c.logger.DebugContext(ctx, "session destroy cleanup failed", errAttr(err))
	}
	c.started = false
	c.id = ""
}

// Delete removes the stored record for id, or for the current session when id
// is empty. Failures are logged and otherwise ignored.
func (c *Controller) Delete(ctx context.Context, id string) {
	if id == "" {
		id = c.id
	}
	if id == "" {
		return
	}
	if err := c.engine.store.Delete(ctx, id); err != nil {
		c.logger.DebugContext(ctx, "session delete failed", errAttr(err))
	}
}

// Recreate moves the session to a new ID, keeping its data, and retires
// the old ID. Call it after a privilege change such as a login. It returns
// false when the session is not started or the rotation failed.
func (c *Controller) Recreate(ctx context.Context) bool {
	if !c.started {
		return false
	}
	if err := c.engine.regenerate(ctx); err != nil {
		c.logger.ErrorContext(ctx, "failed to regenerate session id", errAttr(err))
		if c.engine.id() == "" {
			c.started = false
			c.id = ""
		}
		return false
	}
	c.id = c.engine.id()
	return true
}

// ID returns the session ID, or "" when the session is not started.
func (c *Controller) ID() string {
	return c.id
}

// Name returns the session cookie and parameter name.
func (c *Controller) Name() string {
	return c.name
}

// SetName changes the session name. An empty or unusable name selects
// DefaultSessionName. It has no effect once the session is started.
func (c *Controller) SetName(name string) {
	if c.started {
		return
	}
	c.name = c.engine.setName(name)
}

// SavePath returns the directory of the file backend.
func (c *Controller) SavePath() string {
	return c.savePath
}

// SetSavePath changes where the file backend keeps this request's session.
// Other backends only record the value.
func (c *Controller) SetSavePath(path string) {
	c.savePath = normalizeSavePath(path)
	if scoper, ok := c.engine.store.(PathScoper); ok {
		c.engine.store = scoper.WithSavePath(c.savePath)
	}
}

// CookieOption overrides one session cookie attribute.
type CookieOption func(*cookieSettings)

type cookieSettings struct {
	lifetime time.Duration
	params   CookieParams
}

// WithLifetime sets how long the cookie lives.
func WithLifetime(d time.Duration) CookieOption {
	return func(s *cookieSettings) { s.lifetime = d }
}

// WithPath sets the cookie path. An empty path keeps the transport default.
func WithPath(path string) CookieOption {
	return func(s *cookieSettings) {
		if path != "" {
			s.params.Path = path
		}
	}
}

// WithDomain sets the cookie domain. An empty domain keeps the transport default.
func WithDomain(domain string) CookieOption {
	return func(s *cookieSettings) {
		if domain != "" {
			s.params.Domain = domain
		}
	}
}

// WithSecure sets the Secure attribute.
func WithSecure(secure bool) CookieOption {
	return func(s *cookieSettings) { s.params.Secure = secure }
}

// WithHTTPOnly sets the HttpOnly attribute.
func WithHTTPOnly(httpOnly bool) CookieOption {
	return func(s *cookieSettings) { s.params.HTTPOnly = httpOnly }
}

// WithSameSite sets the SameSite attribute.
func WithSameSite(mode http.SameSite) CookieOption {
	return func(s *cookieSettings) { s.params.SameSite = mode }
}

// SetCookieParameters applies the session cookie attributes and returns the
// values in effect. Attributes not given default to the configuration for
// the request's transport.
func (c *Controller) SetCookieParameters(opts ...CookieOption) CookieParams {
	s := cookieSettings{
		lifetime: c.cfg.cookieLifetime(),
		params: CookieParams{
			Path:     c.cfg.HTTPCookiePath,
			Domain:   c.cfg.HTTPCookieDomain,
			Secure:   c.cfg.ForceSecure,
			HTTPOnly: c.cfg.CookieHTTPOnly,
			SameSite: c.cfg.sameSite(),
		},
	}
	if c.req.Transport == Secure {
		s.params.Path = c.cfg.HTTPSCookiePath
		s.params.Domain = c.cfg.HTTPSCookieDomain
		s.params.Secure = true
	}
	for _, opt := range opts {
		opt(&s)
	}

	applied := c.engine.setCookieParams(s.params, s.lifetime)
	c.cookies = &applied
	return applied
}

// CookieParameters returns the cookie attributes in effect.
func (c *Controller) CookieParameters() CookieParams {
	if c.cookies == nil {
		p := c.engine.cookieParams()
		c.cookies = &p
	}
	return *c.cookies
}

// CookieParameter returns one cookie attribute by name: "lifetime", "path",
// "domain", "secure", "httponly" or "samesite".
func (c *Controller) CookieParameter(key string) (any, bool) {
	p := c.CookieParameters()
	switch strings.ToLower(key) {
	case "lifetime":
		return p.Lifetime, true
	case "path":
		return p.Path, true
	case "domain":
		return p.Domain, true
	case "secure":
		return p.Secure, true
	case "httponly":
		return p.HTTPOnly, true
	case "samesite":
		return p.SameSite, true
	}
	return nil, false
}

// Value returns a value from the active session.
func (c *Controller) Value(key string) (any, bool) {
	if !c.started || c.engine.session == nil {
		return nil, false
	}
	return c.engine.session.Get(key)
}

// SetValue stores a value in the active session. It does nothing when the
// session is not started.
func (c *Controller) SetValue(key string, value any) {
	if !c.started || c.engine.session == nil {
		return
	}
	c.engine.session.Set(key, value)
}

// Unset removes a value from the active session.
func (c *Controller) Unset(key string) {
	if !c.started || c.engine.session == nil {
		return
	}
	c.engine.session.Delete(key)
}
