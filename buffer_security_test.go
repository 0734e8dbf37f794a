package storesession

import (
	"bytes"
	"testing"
)

// TestPutBufferVerifier verifies that PutBuffer zeroes out the used portion
// of the buffer before returning it to the pool.
func TestPutBufferVerifier(t *testing.T) {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()

	secret := []byte("cart=42;customer=7")
	buf.Write(secret)

	view := buf.Bytes()
	if !bytes.Equal(view, secret) {
		t.Fatalf("Sanity check failed: view does not contain secret")
	}

	PutBuffer(buf)

	// view shares the backing array, so the wipe must show through it.
	for i, b := range view {
		if b != 0 {
			t.Errorf("Byte at index %d was not zeroed! Got: %d", i, b)
		}
	}

	if buf.Len() != 0 {
		t.Errorf("Buffer was not reset")
	}
}

func TestEncodeEnvelope_TooLargeReleasesBuffer(t *testing.T) {
	s := &Session{ID: "abc", Values: map[string]any{"data": string(make([]byte, 512))}}

	if _, err := encodeEnvelope(s, 64); err != ErrSessionTooLarge {
		t.Fatalf("expected ErrSessionTooLarge, got %v", err)
	}

	buf, err := encodeEnvelope(s, 0)
	if err != nil {
		t.Fatalf("unexpected error without limit: %v", err)
	}
	defer PutBuffer(buf)

	got, err := decodeEnvelope("abc", buf.Bytes(), 0)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got.Values["data"] != s.Values["data"] {
		t.Error("round trip lost the session value")
	}
}
