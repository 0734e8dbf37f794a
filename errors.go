package storesession

import "errors"

var (
	// ErrSessionTooLarge is returned when the session data exceeds the configured MaxSessionBytes.
	ErrSessionTooLarge = errors.New("session data too large")

	// ErrInvalidSessionID is returned when a session ID is not a non-empty ASCII alphanumeric string.
	ErrInvalidSessionID = errors.New("invalid session id")

	// ErrParsingConfig is returned when environment variables cannot be parsed into Config.
	ErrParsingConfig = errors.New("failed to parse session configuration")

	// ErrUnknownBackend is returned by Registry.Lookup for names without a factory.
	ErrUnknownBackend = errors.New("unknown session storage backend")

	// ErrStoreUnavailable is returned when a backend cannot be reached during construction.
	ErrStoreUnavailable = errors.New("session storage backend unavailable")
)
