// Package queue provides the FIFO that carries boundary records from one
// ingest worker to one analysis worker.
//
// Despite its role as the bounded queue between workers, Queue has no
// capacity limit and Push never blocks: a slow consumer applies no
// back-pressure to its ingest worker. Depth is exported as the
// ebpv_queue_depth metric.
package queue

import (
	"sync"

	"github.com/stfn345/ats-ebp-validator/internal/media"
)

// Queue is an unbounded FIFO of media entries with blocking Pop and Peek.
// It has exactly one producer and one consumer. The producer finishes by
// pushing media.EndOfStream, after which the queue yields that sentinel
// forever once drained.
type Queue struct {
	mu    sync.Mutex
	cond  *sync.Cond
	items []media.Entry
	ended bool
	// drained is set when the consumer has popped the sentinel.
	drained bool
}

// New returns an empty Queue.
func New() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends e and wakes a waiting consumer. Pushing after EndOfStream
// is a programming error and panics.
func (q *Queue) Push(e media.Entry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ended {
		panic("queue: push after end of stream")
	}
	if media.IsEnd(e) {
		q.ended = true
	}
	q.items = append(q.items, e)
	q.cond.Broadcast()
}

// Pop removes and returns the head entry, blocking while the queue is empty.
func (q *Queue) Pop() media.Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	e := q.waitHead()
	if media.IsEnd(e) {
		q.drained = true
	}
	if len(q.items) > 0 {
		q.items[0] = nil
		q.items = q.items[1:]
	}
	return e
}

// Peek returns the head entry without removing it, blocking while the
// queue is empty.
func (q *Queue) Peek() media.Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.waitHead()
}

// waitHead must be called with mu held.
func (q *Queue) waitHead() media.Entry {
	for len(q.items) == 0 {
		if q.drained {
			return media.EndOfStream{}
		}
		q.cond.Wait()
	}
	return q.items[0]
}

// Len returns the number of queued entries, the sentinel included.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Ended reports whether the producer has pushed EndOfStream.
func (q *Queue) Ended() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ended
}
