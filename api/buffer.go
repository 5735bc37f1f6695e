// Package api
// Author: momentics <momentics@gmail.com>
//
// Pooled byte-buffer abstraction backing the per-frame payload read
// buffer on the receive path (the reassembly buffer and the send path's
// frame buffers are plain slices, not pooled). The core's
// single-threaded cooperative model (§5) has no use for the teacher's
// NUMA-node-aware allocation; this is a plain reusable-byte-slice pool.

package api

// Buffer is a reusable, growable byte region returned by a BufferPool.
type Buffer interface {
	// Bytes returns the current view of the buffer's data.
	Bytes() []byte

	// Grow ensures the buffer's capacity is at least n bytes and resets
	// its length to n, returning the resulting view. Existing contents
	// are not preserved across a Grow to a larger size.
	Grow(n int) []byte

	// Release returns the buffer to its originating pool. After
	// Release, the buffer and any slice previously returned by Bytes or
	// Grow must not be used.
	Release()
}

// BufferPool abstracts reuse of byte buffers so the receive path does
// not allocate a new slice per frame.
type BufferPool interface {
	// Get returns a Buffer with at least size bytes of capacity.
	Get(size int) Buffer

	// Stats exposes allocation/reuse counters for observability.
	Stats() BufferPoolStats
}

// BufferPoolStats aggregates buffer allocation/reuse counters.
type BufferPoolStats struct {
	TotalAlloc int64
	TotalReuse int64
	InUse      int64
}
