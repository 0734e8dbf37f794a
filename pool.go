package storesession

import (
	"bytes"
	"sync"
)

var readerPool = sync.Pool{
	New: func() any {
		return bytes.NewReader(nil)
	},
}

var bufferPool = sync.Pool{
	New: func() any {
		return new(bytes.Buffer)
	},
}

var idBufferPool = sync.Pool{
	New: func() any {
		// 16 bytes of raw entropy followed by 32 bytes of hex.
		b := make([]byte, 48)
		return &b
	},
}

// PutBuffer wipes the buffer's content and returns it to the pool, so encoded
// session data does not linger in pooled memory.
func PutBuffer(buf *bytes.Buffer) {
	b := buf.Bytes()
	clear(b)
	buf.Reset()
	bufferPool.Put(buf)
}
