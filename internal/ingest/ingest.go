// Package ingest receives live transport streams over UDP (unicast,
// any-source and source-specific multicast) and SRT into ring buffers,
// and tracks the active feeds for monitoring.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stfn345/ats-ebp-validator/internal/ringbuf"
)

// ErrPartialPacket is returned when a read does not hold a whole number
// of transport packets. The stream cannot be resynchronized.
var ErrPartialPacket = errors.New("ingest: read is not a whole number of TS packets")

// minFree is the free ring space below which the SRT receiver leaves data
// in the connection: one SRT payload of seven packets.
const minFree = 7 * ringbuf.PacketSize

// Stats captures connection-level counters for a live feed.
type Stats struct {
	BytesReceived int64  `json:"bytesReceived"`
	ReadCount     int64  `json:"readCount"`
	Dropped       int64  `json:"dropped"`
	ConnectedAt   int64  `json:"connectedAt"`
	UptimeMs      int64  `json:"uptimeMs"`
	RemoteAddr    string `json:"remoteAddr"`
}

// Feed is one live input: the ring buffer its receiver fills and the
// counters the receiver keeps.
type Feed struct {
	Key       string
	URL       string
	StartedAt time.Time
	Buffer    *ringbuf.Buffer

	bytesReceived atomic.Int64
	readCount     atomic.Int64
	dropped       atomic.Int64
	remoteAddr    atomic.Value
}

// RecordRead counts one successful socket read of n bytes.
func (f *Feed) RecordRead(n int) {
	f.bytesReceived.Add(int64(n))
	f.readCount.Add(1)
}

// RecordDrop counts a read discarded because the ring buffer was full.
func (f *Feed) RecordDrop() { f.dropped.Add(1) }

// SetRemoteAddr stores the peer address for diagnostics.
func (f *Feed) SetRemoteAddr(addr string) {
	f.remoteAddr.Store(addr)
}

// Stats returns a snapshot of the feed's counters.
func (f *Feed) Stats() Stats {
	addr, _ := f.remoteAddr.Load().(string)
	return Stats{
		BytesReceived: f.bytesReceived.Load(),
		ReadCount:     f.readCount.Load(),
		Dropped:       f.dropped.Load(),
		ConnectedAt:   f.StartedAt.UnixMilli(),
		UptimeMs:      time.Since(f.StartedAt).Milliseconds(),
		RemoteAddr:    addr,
	}
}

// Registry tracks the live feeds of a run by key.
type Registry struct {
	mu    sync.RWMutex
	feeds map[string]*Feed
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{feeds: make(map[string]*Feed)}
}

// Register creates the feed for key, backed by buf.
func (r *Registry) Register(key, url string, buf *ringbuf.Buffer) *Feed {
	f := &Feed{Key: key, URL: url, StartedAt: time.Now(), Buffer: buf}
	r.mu.Lock()
	r.feeds[key] = f
	r.mu.Unlock()
	return f
}

// Unregister removes the feed for key and disables its buffer, so the
// reader drains what is left and then sees the end of the stream.
func (r *Registry) Unregister(key string) {
	r.mu.Lock()
	f, ok := r.feeds[key]
	if ok {
		delete(r.feeds, key)
	}
	r.mu.Unlock()

	if ok && f.Buffer != nil {
		f.Buffer.Disable()
	}
}

// Get returns the feed for key.
func (r *Registry) Get(key string) (*Feed, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.feeds[key]
	return f, ok
}

// Feeds returns the registered feeds ordered by key.
func (r *Registry) Feeds() []*Feed {
	r.mu.RLock()
	out := make([]*Feed, 0, len(r.feeds))
	for _, f := range r.feeds {
		out = append(out, f)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// DisableAll disables every feed's buffer. Receivers notice on their next
// read timeout and exit.
func (r *Registry) DisableAll() {
	for _, f := range r.Feeds() {
		if f.Buffer != nil {
			f.Buffer.Disable()
		}
	}
}

// sink is the write side shared by the receivers: packet alignment check,
// ring write, dump mirroring and counters.
type sink struct {
	log  *slog.Logger
	feed *Feed
	dump io.Writer
}

// write stores one read. It returns ringbuf.ErrDisabled once the buffer
// is disabled and ErrPartialPacket for a misaligned read.
func (s *sink) write(p []byte) error {
	if len(p)%ringbuf.PacketSize != 0 {
		s.feed.Buffer.Disable()
		return ErrPartialPacket
	}
	s.feed.RecordRead(len(p))
	if err := s.feed.Buffer.Write(p); err != nil {
		if errors.Is(err, ringbuf.ErrNoSpace) {
			s.feed.RecordDrop()
			return nil
		}
		return err
	}
	if s.dump != nil {
		if _, err := s.dump.Write(p); err != nil {
			s.log.Warn("dump write failed, mirroring stopped", "error", err)
			s.dump = nil
		}
	}
	return nil
}

// full reports whether the ring has less room than one payload.
func (s *sink) full() bool { return s.feed.Buffer.Free() < minFree }

// Receiver fills a feed's ring buffer from the network.
type Receiver interface {
	Run(ctx context.Context) error
}

// NewReceiver returns the receiver for a live endpoint.
func NewReceiver(ep Endpoint, feed *Feed, dump io.Writer, log *slog.Logger) (Receiver, error) {
	switch ep.Scheme {
	case SchemeUDP:
		return NewUDPReceiver(ep, feed, dump, log), nil
	case SchemeSRT:
		return NewSRTReceiver(ep, feed, dump, log), nil
	default:
		return nil, fmt.Errorf("ingest: %q is not a live scheme", ep.Scheme)
	}
}
