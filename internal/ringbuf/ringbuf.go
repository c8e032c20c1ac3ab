// Package ringbuf implements the fixed-size byte ring that decouples a live
// socket receiver from the demuxer reading it.
//
// The buffer keeps three cursors. Write and Read move forward
// destructively; Peek reads ahead of Read without consuming, so stream
// discovery can inspect live data that the steady-state reader will later
// consume from the start. Each cursor carries a wrap counter, which makes
// the unread byte count exact even when all cursors sit at the same offset.
package ringbuf

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// PacketSize is the transport stream packet size the capacity is aligned to.
const PacketSize = 188

var (
	// ErrDisabled is returned once the buffer has been disabled and holds
	// nothing more for the caller.
	ErrDisabled = errors.New("ring buffer disabled")
	// ErrNoSpace is returned by Write when the data does not fit.
	ErrNoSpace = errors.New("ring buffer full")
	// ErrTimeout is returned by PeekTimeout when no data arrived in time.
	ErrTimeout = errors.New("ring buffer peek timeout")
)

// Buffer is a single-producer byte ring with one destructive reader and one
// peeking reader. All methods are safe for concurrent use.
type Buffer struct {
	mu   sync.Mutex
	cond *sync.Cond
	data []byte

	write, read, peek                int
	writeWraps, readWraps, peekWraps uint64

	disabled bool
}

// New returns a buffer whose capacity is capacity rounded down to a whole
// number of transport packets.
func New(capacity int) (*Buffer, error) {
	size := capacity - capacity%PacketSize
	if size <= 0 {
		return nil, fmt.Errorf("ringbuf: capacity %d is below one packet", capacity)
	}
	b := &Buffer{data: make([]byte, size)}
	b.cond = sync.NewCond(&b.mu)
	return b, nil
}

// Cap returns the capacity in bytes.
func (b *Buffer) Cap() int { return len(b.data) }

func (b *Buffer) unread() int {
	return int(b.writeWraps-b.readWraps)*len(b.data) + b.write - b.read
}

func (b *Buffer) unpeeked() int {
	return int(b.writeWraps-b.peekWraps)*len(b.data) + b.write - b.peek
}

// Unread returns the number of bytes written but not yet read.
func (b *Buffer) Unread() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.unread()
}

// Free returns the number of bytes a Write can currently accept.
func (b *Buffer) Free() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data) - b.unread()
}

// Disabled reports whether Disable has been called.
func (b *Buffer) Disabled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.disabled
}

// Disable permanently rejects further writes and wakes every waiter.
// Bytes already written stay readable.
func (b *Buffer) Disable() {
	b.mu.Lock()
	b.disabled = true
	b.mu.Unlock()
	b.cond.Broadcast()
}

// Write copies p into the buffer. It never blocks: it fails with ErrNoSpace
// when p is larger than the free space, and with ErrDisabled after Disable.
func (b *Buffer) Write(p []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.disabled {
		return ErrDisabled
	}
	if len(p) > len(b.data)-b.unread() {
		return ErrNoSpace
	}
	if len(p) == 0 {
		return nil
	}

	n := copy(b.data[b.write:], p)
	b.write += n
	if b.write == len(b.data) {
		b.write = 0
		b.writeWraps++
	}
	if n < len(p) {
		b.write = copy(b.data, p[n:])
	}
	b.cond.Broadcast()
	return nil
}

// copyOut copies up to avail bytes starting at *pos into p, advancing the
// cursor and its wrap counter.
func (b *Buffer) copyOut(p []byte, avail int, pos *int, wraps *uint64) int {
	want := len(p)
	if want > avail {
		want = avail
	}
	n := 0
	for n < want {
		chunk := len(b.data) - *pos
		if chunk > want-n {
			chunk = want - n
		}
		copy(p[n:n+chunk], b.data[*pos:*pos+chunk])
		n += chunk
		*pos += chunk
		if *pos == len(b.data) {
			*pos = 0
			*wraps++
		}
	}
	return n
}

// Read consumes up to len(p) bytes, blocking while nothing is unread. It
// returns ErrDisabled instead of blocking once the buffer is disabled and
// drained. Read moves the peek cursor to the new read position.
func (b *Buffer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for b.unread() == 0 {
		if b.disabled {
			return 0, ErrDisabled
		}
		b.cond.Wait()
	}
	n := b.copyOut(p, b.unread(), &b.read, &b.readWraps)
	b.peek, b.peekWraps = b.read, b.readWraps
	return n, nil
}

// Peek copies up to len(p) bytes past the peek cursor without consuming
// them, blocking while everything written has already been peeked.
func (b *Buffer) Peek(p []byte) (int, error) {
	return b.peekUntil(p, time.Time{})
}

// PeekTimeout is Peek bounded by d. It returns ErrTimeout when no new data
// arrives in time.
func (b *Buffer) PeekTimeout(p []byte, d time.Duration) (int, error) {
	return b.peekUntil(p, time.Now().Add(d))
}

func (b *Buffer) peekUntil(p []byte, deadline time.Time) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if !deadline.IsZero() {
		t := time.AfterFunc(time.Until(deadline), func() {
			b.mu.Lock()
			b.cond.Broadcast()
			b.mu.Unlock()
		})
		defer t.Stop()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for b.unpeeked() == 0 {
		if b.disabled {
			return 0, ErrDisabled
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return 0, ErrTimeout
		}
		b.cond.Wait()
	}
	return b.copyOut(p, b.unpeeked(), &b.peek, &b.peekWraps), nil
}

// Reader returns an io.Reader that consumes the buffer. ErrDisabled is
// reported as io.EOF.
func (b *Buffer) Reader() io.Reader {
	return readerFunc(func(p []byte) (int, error) {
		n, err := b.Read(p)
		if errors.Is(err, ErrDisabled) {
			return n, io.EOF
		}
		return n, err
	})
}

// PeekReader returns an io.Reader over the peek cursor that reports io.EOF
// once budget has elapsed or the buffer is disabled. It never consumes.
func (b *Buffer) PeekReader(budget time.Duration) io.Reader {
	deadline := time.Now().Add(budget)
	return readerFunc(func(p []byte) (int, error) {
		n, err := b.peekUntil(p, deadline)
		if errors.Is(err, ErrDisabled) || errors.Is(err, ErrTimeout) {
			return n, io.EOF
		}
		return n, err
	})
}

type readerFunc func([]byte) (int, error)

func (f readerFunc) Read(p []byte) (int, error) { return f(p) }
