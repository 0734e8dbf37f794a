package storesession

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"time"
)

// envelope is the on-wire form used by key/value backends that have no
// columns for the timestamps (files, memcached, redis).
type envelope struct {
	Values    map[string]any
	CreatedAt time.Time
	ExpiresAt time.Time
}

func init() {
	gob.Register(envelope{})
	gob.Register(map[string]any{})
}

// encodeValues gob-encodes values into a pooled buffer. The caller owns the
// buffer and must hand it back with PutBuffer.
func encodeValues(v any) (*bytes.Buffer, error) {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	if err := gob.NewEncoder(buf).Encode(v); err != nil {
		PutBuffer(buf)
		return nil, fmt.Errorf("failed to encode session data: %w", err)
	}
	return buf, nil
}

func decodeInto(data []byte, v any) error {
	reader := readerPool.Get().(*bytes.Reader)
	reader.Reset(data)
	defer readerPool.Put(reader)

	if err := gob.NewDecoder(reader).Decode(v); err != nil {
		return fmt.Errorf("failed to decode session data: %w", err)
	}
	return nil
}

func decodeEnvelope(id string, data []byte, maxSessionBytes int) (*Session, error) {
	if maxSessionBytes > 0 && len(data) > maxSessionBytes {
		return nil, ErrSessionTooLarge
	}

	var env envelope
	if err := decodeInto(data, &env); err != nil {
		return nil, err
	}
	if env.Values == nil {
		env.Values = make(map[string]any)
	}

	return &Session{
		ID:        id,
		Values:    env.Values,
		CreatedAt: env.CreatedAt,
		ExpiresAt: env.ExpiresAt,
	}, nil
}

// encodeEnvelope returns a pooled buffer holding the gob envelope of s.
func encodeEnvelope(s *Session, maxSessionBytes int) (*bytes.Buffer, error) {
	buf, err := encodeValues(envelope{
		Values:    s.snapshot(),
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
	})
	if err != nil {
		return nil, err
	}
	if maxSessionBytes > 0 && buf.Len() > maxSessionBytes {
		PutBuffer(buf)
		return nil, ErrSessionTooLarge
	}
	return buf, nil
}
