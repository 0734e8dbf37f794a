package storesession

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// CookieParams are the session cookie attributes in effect for a request.
type CookieParams struct {
	Lifetime int // seconds, 0 for a browser-session cookie
	Path     string
	Domain   string
	Secure   bool
	HTTPOnly bool
	SameSite http.SameSite
}

// engine is the per-request session primitive: it owns identifier
// generation, cookie emission and the calls into the Store. The Controller
// decides when to use it.
type engine struct {
	store           Store
	w               http.ResponseWriter
	name            string
	params          CookieParams
	gcLifetime      time.Duration
	maxSessionBytes int
	clientID        string // cookie value the client sent, if any
	session         *Session
}

// setName applies name and returns the name actually in use.
func (e *engine) setName(name string) string {
	if isCookieName(name) {
		e.name = name
	} else {
		e.name = DefaultSessionName
	}
	return e.name
}

// setCookieParams normalises p, applies it and returns the applied values.
func (e *engine) setCookieParams(p CookieParams, lifetime time.Duration) CookieParams {
	if lifetime < 0 {
		lifetime = 0
	}
	p.Lifetime = int(lifetime / time.Second)

	if p.Path == "" {
		p.Path = "/"
	} else if !strings.HasPrefix(p.Path, "/") {
		p.Path = "/" + p.Path
	}

	p.Domain = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(p.Domain)), ".")

	// Browsers reject SameSite=None cookies without the Secure attribute.
	if p.SameSite == http.SameSiteNoneMode {
		p.Secure = true
	}

	e.params = p
	return e.params
}

func (e *engine) cookieParams() CookieParams {
	return e.params
}

// start resumes the session stored under candidate, or begins a new one when
// candidate is empty, unknown or expired. Unknown IDs are never adopted.
func (e *engine) start(ctx context.Context, candidate string) error {
	var s *Session
	if candidate != "" {
		found, err := e.store.Get(ctx, candidate)
		if err != nil {
			return err
		}
		s = found
	}

	if s == nil {
		id, err := generateID()
		if err != nil {
			return err
		}
		now := time.Now()
		s = &Session{
			ID:        id,
			Values:    make(map[string]any),
			CreatedAt: now,
			ExpiresAt: now.Add(e.gcLifetime),
		}
	}
	e.session = s

	// A positive lifetime is refreshed on every request.
	if s.ID != e.clientID || e.params.Lifetime > 0 {
		e.sendCookie(s.ID)
	}
	return nil
}

func (e *engine) id() string {
	if e.session == nil {
		return ""
	}
	return e.session.ID
}

// writeClose persists the session and releases it.
func (e *engine) writeClose(ctx context.Context) error {
	s := e.session
	if s == nil {
		return nil
	}
	e.session = nil
	return e.save(ctx, s)
}

func (e *engine) save(ctx context.Context, s *Session) error {
	s.ExpiresAt = time.Now().Add(e.gcLifetime)

	if e.maxSessionBytes > 0 {
		values := s.snapshot()
		if len(values) > 0 {
			buf, err := encodeValues(values)
			if err != nil {
				return err
			}
			defer PutBuffer(buf)
			if buf.Len() > e.maxSessionBytes {
				return ErrSessionTooLarge
			}
			// SQL stores reuse the encoded values; the buffer is recycled once Save returns.
			s.encoded = buf.Bytes()
			defer func() { s.encoded = nil }()
		}
	}

	return e.store.Save(ctx, s)
}

// regenerate moves the session to a fresh ID and retires the old record.
// If the old record cannot be removed the new one is removed too, the cookie
// is expired and the session is dropped.
func (e *engine) regenerate(ctx context.Context) error {
	s := e.session
	if s == nil {
		return nil
	}

	oldID := s.ID
	newID, err := generateID()
	if err != nil {
		return err
	}
	s.ID = newID

	if err := e.save(ctx, s); err != nil {
		s.ID = oldID
		return err
	}

	if err := e.store.Delete(ctx, oldID); err != nil {
		_ = e.store.Delete(ctx, newID)
		e.expireCookie()
		s.Clear()
		e.session = nil
		return err
	}

	e.sendCookie(newID)
	return nil
}

// destroy removes the session record and wipes its values.
func (e *engine) destroy(ctx context.Context) error {
	s := e.session
	if s == nil {
		return nil
	}
	e.session = nil
	defer s.Clear()
	return e.store.Delete(ctx, s.ID)
}

func (e *engine) sendCookie(id string) {
	c := &http.Cookie{
		Name:     e.name,
		Value:    id,
		Path:     e.params.Path,
		Domain:   e.params.Domain,
		Secure:   e.params.Secure,
		HttpOnly: e.params.HTTPOnly,
		SameSite: e.params.SameSite,
	}
	if e.params.Lifetime > 0 {
		c.MaxAge = e.params.Lifetime
		c.Expires = time.Now().Add(time.Duration(e.params.Lifetime) * time.Second)
	}
	http.SetCookie(e.w, c)
}

// expireCookie tells the client to drop the session cookie.
func (e *engine) expireCookie() {
	http.SetCookie(e.w, &http.Cookie{
		Name:     e.name,
		Value:    "",
		Path:     e.params.Path,
		Domain:   e.params.Domain,
		Expires:  time.Now().Add(-42000 * time.Second),
		MaxAge:   -1,
		Secure:   e.params.Secure,
		HttpOnly: e.params.HTTPOnly,
		SameSite: e.params.SameSite,
	})
}

// isCookieName reports whether name is a usable cookie name: a non-empty
// RFC 6265 token that is not purely numeric.
func isCookieName(name string) bool {
	if name == "" {
		return false
	}
	digits := true
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c <= ' ' || c >= 0x7f || strings.IndexByte("()<>@,;:\\\"/[]?={}", c) >= 0 {
			return false
		}
		if c < '0' || c > '9' {
			digits = false
		}
	}
	return !digits
}
