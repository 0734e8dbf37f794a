/*
Package storesession manages the visitor session of a server-rendered storefront.

A Manager is built once at startup. It resolves the configured storage backend,
owns the background cleanup worker and hands out one Controller per request.
The Controller validates the session ID the visitor supplies, starts or resumes
the session, derives the cookie attributes from the transport and writes the
session back when the request ends.

Key Features:

  - Pluggable Storage: files (default), SQLite (CGO-free), PostgreSQL, Memcached and Redis,
    selected by name through a Registry. An unusable backend falls back to files.
  - Automatic Cleanup: a background worker removes expired sessions.

Security:

  - Every session ID in the query string, form body and cookie must be ASCII letters and digits.
    Anything else expires the cookie and redirects to the landing page. Request values are read
    raw, so pairs net/http would discard still count.
  - Unknown or expired IDs are never adopted.
  - Recreate rotates the ID after a login to prevent session fixation.
  - Cookies default to HttpOnly and SameSite=Lax, and are Secure on TLS.

Performance:

  - Session data is serialised with gob using pooled buffers.
  - A configurable maximum session size prevents abuse.

Usage:

	cfg, err := storesession.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	mgr := storesession.NewManager(context.Background(), cfg)
	defer mgr.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		c, _ := storesession.FromContext(r.Context())
		if c.Recreate(r.Context()) {
			c.SetValue("customer_id", 42)
		}
	})
	log.Fatal(http.ListenAndServe(":8080", mgr.Middleware(mux)))

Handlers that do not use the middleware take a Controller through Manager.Scope,
which closes the session on every exit path:

	err := mgr.Scope(ctx, w, r, "", func(c *storesession.Controller) error {
		if !c.Start(ctx) {
			return nil // rejected or storage unavailable
		}
		c.SetValue("cart", items)
		return nil
	})

Configuration:

LoadConfig reads the environment (after loading .env files): STORE_SESSIONS selects
the backend, SERVICE_SESSION_EXPIRATION_TIME sets the lifetime in minutes and
HTTP_SERVER with SESSION_REDIRECT_PAGE forms the landing page for rejected requests.

Thread Safety:

The Manager and Store implementations are safe for concurrent use by multiple goroutines.
A Controller belongs to a single request and must not be shared.
*/
package storesession
