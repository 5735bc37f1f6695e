// File: protocol/queue.go
// Package protocol implements the RFC 6455 frame codec and connection
// state machine.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Outbound write ordering. §5 requires that concurrent serialize_* calls
// stay safe (they are pure) while the resulting writes land on the wire
// strictly in the order Send was invoked. writeQueue is the FIFO a
// caller's Send enqueues onto; Connection.drainWrites (connection.go)
// drains it under a CAS trylock so whichever goroutine wins becomes the
// writer for every frame queued so far, without a dedicated pump
// goroutine.
package protocol

import (
	"sync"

	"github.com/eapache/queue"
)

// pendingWrite is one caller-owned serialized frame buffer awaiting
// transmission, plus the channel its submitter blocks on for the result.
type pendingWrite struct {
	data []byte
	done chan error
}

// writeQueue serializes concurrent Send calls into one FIFO so the
// Connection never needs more than one in-flight stream write at a
// time regardless of how many goroutines call Send.
type writeQueue struct {
	mu sync.Mutex
	q  *queue.Queue
}

func newWriteQueue() *writeQueue {
	return &writeQueue{q: queue.New()}
}

// push enqueues data and returns a channel that receives the write's
// outcome once drainWrites has flushed it.
func (wq *writeQueue) push(data []byte) <-chan error {
	pw := &pendingWrite{data: data, done: make(chan error, 1)}
	wq.mu.Lock()
	wq.q.Add(pw)
	wq.mu.Unlock()
	return pw.done
}

// pop removes and returns the next pendingWrite, or nil if the queue is
// empty.
func (wq *writeQueue) pop() *pendingWrite {
	wq.mu.Lock()
	defer wq.mu.Unlock()
	if wq.q.Length() == 0 {
		return nil
	}
	return wq.q.Remove().(*pendingWrite)
}

// len reports the number of writes currently queued.
func (wq *writeQueue) len() int {
	wq.mu.Lock()
	defer wq.mu.Unlock()
	return wq.q.Length()
}
