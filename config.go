package storesession

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// DefaultSessionName is the cookie and parameter name used when none is configured.
const DefaultSessionName = "osCsid"

// defaultGCLifetime applies when no expiration policy is configured.
const defaultGCLifetime = 1440 * time.Second

// Config holds session configuration. Every field can be populated from the
// environment with LoadConfig.
type Config struct {
	// SessionName is the cookie and request parameter name.
	SessionName string `env:"SESSION_NAME" envDefault:"osCsid"`

	// Backend names the storage backend. Empty or "files" selects file storage.
	Backend string `env:"STORE_SESSIONS"`

	// SavePath is the directory of the file backend.
	SavePath string `env:"SESSION_SAVE_PATH" envDefault:"work/sessions"`

	// ExpirationMinutes sets the cookie lifetime and the garbage-collection
	// lifetime. 0 keeps browser-session cookies and the default GC lifetime.
	ExpirationMinutes int `env:"SERVICE_SESSION_EXPIRATION_TIME" envDefault:"0"`

	// HTTPServer is the plain-transport base URL used for the rejection redirect,
	// e.g. "http://shop.example.com". Empty means the request host when it
	// matches a cookie domain, or a relative redirect otherwise.
	HTTPServer   string `env:"HTTP_SERVER"`
	RedirectPage string `env:"SESSION_REDIRECT_PAGE" envDefault:"/"`

	HTTPCookiePath    string `env:"HTTP_COOKIE_PATH" envDefault:"/"`
	HTTPCookieDomain  string `env:"HTTP_COOKIE_DOMAIN"`
	HTTPSCookiePath   string `env:"HTTPS_COOKIE_PATH" envDefault:"/"`
	HTTPSCookieDomain string `env:"HTTPS_COOKIE_DOMAIN"`

	CookieHTTPOnly bool   `env:"SESSION_COOKIE_HTTPONLY" envDefault:"true"`
	ForceSecure    bool   `env:"SESSION_COOKIE_FORCE_SECURE" envDefault:"false"`
	CookieSameSite string `env:"SESSION_COOKIE_SAMESITE" envDefault:"lax"`

	// TrustForwardedProto treats "X-Forwarded-Proto: https" as encrypted transport.
	TrustForwardedProto bool `env:"SESSION_TRUST_FORWARDED_PROTO" envDefault:"false"`

	CleanupInterval time.Duration `env:"SESSION_CLEANUP_INTERVAL" envDefault:"10m"`
	MaxSessionBytes int           `env:"SESSION_MAX_BYTES" envDefault:"0"`

	SQLiteDSN        string        `env:"SESSION_SQLITE_DSN" envDefault:"sessions.db"`
	PostgresDSN      string        `env:"SESSION_POSTGRES_DSN"`
	MemcachedServers []string      `env:"SESSION_MEMCACHED_SERVERS" envSeparator:"," envDefault:"localhost:11211"`
	MemcachedTimeout time.Duration `env:"SESSION_MEMCACHED_TIMEOUT" envDefault:"1s"`
	RedisURL         string        `env:"SESSION_REDIS_URL" envDefault:"redis://localhost:6379/0"`
	RedisKeyPrefix   string        `env:"SESSION_REDIS_PREFIX" envDefault:"sess:"`
	ConnectTimeout   time.Duration `env:"SESSION_CONNECT_TIMEOUT" envDefault:"10s"`
}

// DefaultConfig returns the configuration LoadConfig yields on an empty environment.
func DefaultConfig() Config {
	return Config{
		SessionName:      DefaultSessionName,
		SavePath:         "work/sessions",
		RedirectPage:     "/",
		HTTPCookiePath:   "/",
		HTTPSCookiePath:  "/",
		CookieHTTPOnly:   true,
		CookieSameSite:   "lax",
		CleanupInterval:  10 * time.Minute,
		SQLiteDSN:        "sessions.db",
		MemcachedServers: []string{"localhost:11211"},
		MemcachedTimeout: time.Second,
		RedisURL:         "redis://localhost:6379/0",
		RedisKeyPrefix:   "sess:",
		ConnectTimeout:   10 * time.Second,
	}
}

// LoadConfig loads the given .env files (or ".env" when none are given,
// ignoring a missing file) and parses the environment into a Config.
func LoadConfig(files ...string) (Config, error) {
	if len(files) == 0 {
		_ = godotenv.Load()
	} else if err := godotenv.Load(files...); err != nil {
		return Config{}, errors.Join(ErrParsingConfig, err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.Join(ErrParsingConfig, err)
	}
	return cfg, nil
}

// GCLifetime is how long an untouched session survives in the store.
func (c Config) GCLifetime() time.Duration {
	if c.ExpirationMinutes > 0 {
		return time.Duration(c.ExpirationMinutes) * time.Minute
	}
	return defaultGCLifetime
}

// cookieLifetime is the default cookie lifetime, 0 for a browser-session cookie.
func (c Config) cookieLifetime() time.Duration {
	if c.ExpirationMinutes > 0 {
		return time.Duration(c.ExpirationMinutes) * time.Minute
	}
	return 0
}

func (c Config) sameSite() http.SameSite {
	switch strings.ToLower(strings.TrimSpace(c.CookieSameSite)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	case "default", "":
		return http.SameSiteDefaultMode
	default:
		return http.SameSiteLaxMode
	}
}
