// File: pool/bufferpool.go
// Author: momentics <momentics@gmail.com>
//
// BufferPool implementation backing the per-frame payload read buffer on
// the receive path, built on the generic SyncPool wrapper around sync.Pool.

package pool

import (
	"sync/atomic"

	"github.com/momentics/wscore/api"
)

// byteBuffer is the concrete api.Buffer returned by BufferPool.
type byteBuffer struct {
	buf  []byte
	pool *BufferPool
}

func (b *byteBuffer) Bytes() []byte { return b.buf }

func (b *byteBuffer) Grow(n int) []byte {
	if cap(b.buf) < n {
		b.buf = make([]byte, n)
	} else {
		b.buf = b.buf[:n]
	}
	return b.buf
}

func (b *byteBuffer) Release() {
	if b.pool == nil {
		return
	}
	p := b.pool
	b.pool = nil
	atomic.AddInt64(&p.inUse, -1)
	atomic.AddInt64(&p.totalReuse, 1)
	b.buf = b.buf[:0]
	p.sync.Put(b)
}

// BufferPool reuses byteBuffers across Connection.ReceiveMessage calls so
// the receive path does not allocate a fresh slice per frame.
type BufferPool struct {
	sync *SyncPool[*byteBuffer]

	totalAlloc int64
	totalReuse int64
	inUse      int64
}

// NewBufferPool constructs a BufferPool.
func NewBufferPool() *BufferPool {
	p := &BufferPool{}
	p.sync = NewSyncPool(func() *byteBuffer {
		atomic.AddInt64(&p.totalAlloc, 1)
		return &byteBuffer{}
	})
	return p
}

// Get returns a Buffer with at least size bytes of capacity.
func (p *BufferPool) Get(size int) api.Buffer {
	b := p.sync.Get()
	b.pool = p
	b.Grow(size)
	atomic.AddInt64(&p.inUse, 1)
	return b
}

// Stats returns a snapshot of allocation/reuse counters.
func (p *BufferPool) Stats() api.BufferPoolStats {
	return api.BufferPoolStats{
		TotalAlloc: atomic.LoadInt64(&p.totalAlloc),
		TotalReuse: atomic.LoadInt64(&p.totalReuse),
		InUse:      atomic.LoadInt64(&p.inUse),
	}
}
