package event

import (
	"bytes"
	"sync"
)

// bufferPool recycles encode buffers on the submit hotpath.
//
// Usage:
//
//	buf := AcquireBuffer()
//	// ... encode into buf ...
//	ReleaseBuffer(buf) // after the bytes were copied out
var bufferPool = sync.Pool{
	New: func() interface{} {
		return new(bytes.Buffer)
	},
}

// maxPooledBuffer keeps one oversized payload from pinning memory.
const maxPooledBuffer = 64 << 10

// AcquireBuffer gets an empty buffer from the pool.
func AcquireBuffer() *bytes.Buffer {
	return bufferPool.Get().(*bytes.Buffer)
}

// ReleaseBuffer resets buf and returns it to the pool.
func ReleaseBuffer(buf *bytes.Buffer) {
	if buf == nil || buf.Cap() > maxPooledBuffer {
		return
	}
	buf.Reset()
	bufferPool.Put(buf)
}

// Warmup pre-allocates buffers to reduce GC pressure at startup.
func Warmup() {
	const batchSize = 64

	bufs := make([]*bytes.Buffer, 0, batchSize)
	for i := 0; i < batchSize; i++ {
		bufs = append(bufs, AcquireBuffer())
	}
	for _, b := range bufs {
		ReleaseBuffer(b)
	}
}
