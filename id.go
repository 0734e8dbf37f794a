package storesession

import (
	"crypto/rand"
	"encoding/hex"
	"io"
)

func generateID() (string, error) {
	ptr := idBufferPool.Get().(*[]byte)
	b := *ptr
	defer func() {
		clear(b)
		idBufferPool.Put(ptr)
	}()

	entropy := b[:16]
	if _, err := io.ReadFull(rand.Reader, entropy); err != nil {
		return "", err
	}

	hexDst := b[16:]
	hex.Encode(hexDst, entropy)
	return string(hexDst), nil
}

// alnum is a lookup table for ASCII letters and digits.
var alnum = [256]bool{}

func init() {
	for i := 0; i < len(alnum); i++ {
		c := byte(i)
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			alnum[i] = true
		}
	}
}

// isValidID reports whether id is non-empty and made only of ASCII letters and digits.
// Works on bytes, so any multi-byte rune fails the check.
func isValidID(id string) bool {
	if id == "" {
		return false
	}
	for i := 0; i < len(id); i++ {
		if !alnum[id[i]] {
			return false
		}
	}
	return true
}
