// File: pool/bytepool.go
// Author: momentics <momentics@gmail.com>

package pool

import "sync"

// DefaultBufferSize is the copy buffer size used when none is configured.
const DefaultBufferSize = 32 << 10

// BytePool hands out fixed-size byte slices for relay copies.
type BytePool struct {
	pool sync.Pool
	size int
}

// NewBytePool creates a pool of size-byte buffers. size <= 0 selects DefaultBufferSize.
func NewBytePool(size int) *BytePool {
	if size <= 0 {
		size = DefaultBufferSize
	}
	bp := &BytePool{size: size}
	bp.pool.New = func() any {
		b := make([]byte, size)
		return &b
	}
	return bp
}

// Size returns the length of buffers handed out by the pool.
func (b *BytePool) Size() int { return b.size }

// GetBuffer returns a buffer from the pool.
func (b *BytePool) GetBuffer() *[]byte {
	return b.pool.Get().(*[]byte)
}

// PutBuffer returns a buffer to the pool. Foreign-sized buffers are dropped.
func (b *BytePool) PutBuffer(buf *[]byte) {
	if buf == nil || cap(*buf) < b.size {
		return
	}
	*buf = (*buf)[:b.size]
	b.pool.Put(buf)
}
