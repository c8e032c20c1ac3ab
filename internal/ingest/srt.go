package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	srtgo "github.com/zsiec/srtgo"
)

// srtReadBufferSize is the read buffer for SRT socket reads: ten payloads
// of seven transport packets.
const srtReadBufferSize = 1316 * 10

// srtLatency is the SRT TSBPD latency for both modes.
const srtLatency = 120 * time.Millisecond

const srtDialTimeout = 10 * time.Second

// SRTReceiver reads an SRT feed into its ring buffer, either dialing a
// remote listener (caller mode) or accepting one publisher (listener mode).
type SRTReceiver struct {
	log  *slog.Logger
	ep   Endpoint
	sink *sink
}

// NewSRTReceiver creates a receiver for ep writing into feed. If log is
// nil, slog.Default() is used.
func NewSRTReceiver(ep Endpoint, feed *Feed, dump io.Writer, log *slog.Logger) *SRTReceiver {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "srt-receiver", "addr", ep.Addr())
	return &SRTReceiver{log: log, ep: ep, sink: &sink{log: log, feed: feed, dump: dump}}
}

// Run connects and receives until ctx is cancelled, the peer closes, the
// buffer is disabled, or the feed delivers a partial packet. It disables
// the buffer on return.
func (r *SRTReceiver) Run(ctx context.Context) error {
	defer r.sink.feed.Buffer.Disable()

	var (
		conn *srtgo.Conn
		err  error
	)
	if r.ep.Listen {
		conn, err = r.accept(ctx)
	} else {
		conn, err = r.dial(ctx)
	}
	if err != nil || conn == nil {
		return err
	}
	defer conn.Close()
	r.sink.feed.SetRemoteAddr(conn.RemoteAddr().String())
	r.log.Info("connected", "remote", conn.RemoteAddr(), "stream_id", conn.StreamID())

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	buf := make([]byte, srtReadBufferSize)
	for {
		if ctx.Err() != nil || r.sink.feed.Buffer.Disabled() {
			return nil
		}
		n, err := conn.Read(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("ingest: srt %s: %w", r.ep.Addr(), err)
		}
		for r.sink.full() && !r.sink.feed.Buffer.Disabled() && ctx.Err() == nil {
			time.Sleep(defaultPollInterval / 10)
		}
		if err := r.sink.write(buf[:n]); err != nil {
			if errors.Is(err, ErrPartialPacket) {
				return fmt.Errorf("ingest: srt %s: %d bytes: %w", r.ep.Addr(), n, err)
			}
			return nil
		}
	}
}

// dial connects to the remote listener with a timeout. A connection that
// completes after the timeout is closed in the background.
func (r *SRTReceiver) dial(ctx context.Context) (*srtgo.Conn, error) {
	r.log.Info("dialing", "stream_id", r.ep.StreamID)
	type dialResult struct {
		conn *srtgo.Conn
		err  error
	}
	ch := make(chan dialResult, 1)
	cfg := srtgo.DefaultConfig()
	cfg.Latency = srtLatency
	cfg.StreamID = r.ep.StreamID

	go func() {
		conn, err := srtgo.Dial(r.ep.Addr(), cfg)
		ch <- dialResult{conn, err}
	}()

	timer := time.NewTimer(srtDialTimeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, fmt.Errorf("ingest: srt dial %s: %w", r.ep.Addr(), res.err)
		}
		return res.conn, nil
	case <-timer.C:
		go func() {
			if res := <-ch; res.conn != nil {
				res.conn.Close()
			}
		}()
		return nil, fmt.Errorf("ingest: srt dial %s timed out after %s", r.ep.Addr(), srtDialTimeout)
	case <-ctx.Done():
		go func() {
			if res := <-ch; res.conn != nil {
				res.conn.Close()
			}
		}()
		return nil, nil
	}
}

// accept listens on the endpoint and returns the first publisher whose
// stream id matches. A cancelled context returns a nil connection.
func (r *SRTReceiver) accept(ctx context.Context) (*srtgo.Conn, error) {
	cfg := srtgo.DefaultConfig()
	cfg.Latency = srtLatency

	l, err := srtgo.Listen(r.ep.Addr(), cfg)
	if err != nil {
		return nil, fmt.Errorf("ingest: srt listen on %s: %w", r.ep.Addr(), err)
	}
	defer l.Close()
	r.log.Info("listening")

	want := streamKey(r.ep.StreamID)
	l.SetAcceptRejectFunc(func(req srtgo.ConnRequest) srtgo.RejectReason {
		if r.ep.StreamID != "" && streamKey(req.StreamID) != want {
			return srtgo.RejPeer
		}
		return 0
	})

	stop := context.AfterFunc(ctx, func() { l.Close() })
	defer stop()

	conn, err := l.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil
		}
		return nil, fmt.Errorf("ingest: srt accept on %s: %w", r.ep.Addr(), err)
	}
	return conn, nil
}

// streamKey normalizes an SRT stream id: a leading slash and a "live/"
// prefix are not significant.
func streamKey(streamID string) string {
	streamID = strings.TrimPrefix(streamID, "/")
	streamID = strings.TrimPrefix(streamID, "live/")
	if streamID == "" {
		return "default"
	}
	return streamID
}
