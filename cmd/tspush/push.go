package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	srtgo "github.com/zsiec/srtgo"

	"github.com/stfn345/ats-ebp-validator/internal/ingest"
)

// chunkSize is seven packets, one SRT or UDP payload.
const chunkSize = 7 * packetSize

// dial opens a sender for ep.
func dial(ep ingest.Endpoint) (io.WriteCloser, error) {
	switch ep.Scheme {
	case ingest.SchemeUDP:
		conn, err := net.Dial("udp4", ep.Addr())
		if err != nil {
			return nil, fmt.Errorf("tspush: dial %s: %w", ep.Addr(), err)
		}
		return conn, nil
	case ingest.SchemeSRT:
		if ep.Listen {
			return nil, errors.New("tspush: SRT listener mode is not supported, the pusher always calls")
		}
		cfg := srtgo.DefaultConfig()
		cfg.Latency = 120 * time.Millisecond
		cfg.StreamID = ep.StreamID
		conn, err := srtgo.Dial(ep.Addr(), cfg)
		if err != nil {
			return nil, fmt.Errorf("tspush: SRT connect %s: %w", ep.Addr(), err)
		}
		return srtSender{conn}, nil
	default:
		return nil, fmt.Errorf("tspush: %q is not a live endpoint", ep.Scheme)
	}
}

type srtSender struct{ conn *srtgo.Conn }

func (s srtSender) Write(p []byte) (int, error) { return s.conn.Write(p) }

func (s srtSender) Close() error {
	s.conn.Close()
	return nil
}

type pushOptions struct {
	// Rate is the send rate in bytes per second. Zero derives it from the
	// file's video timeline.
	Rate  float64
	Loops int // passes over the file; zero means until ctx ends
}

// pusher sends a TS file in real time, shifting timestamps on every pass
// so the receiver sees one continuous stream.
type pusher struct {
	log  *slog.Logger
	data []byte
	tl   timeline
	rate float64
	now  func() time.Time
}

func newPusher(data []byte, opts pushOptions, log *slog.Logger) (*pusher, error) {
	if len(data) < packetSize || len(data)%packetSize != 0 {
		return nil, fmt.Errorf("tspush: input is %d bytes, not a whole number of packets", len(data))
	}
	p := &pusher{log: log, data: append([]byte(nil), data...), tl: scan(data), rate: opts.Rate, now: time.Now}
	if p.rate <= 0 {
		span := p.tl.span()
		if span <= 0 {
			return nil, errors.New("tspush: no video timestamps, set --rate")
		}
		p.rate = float64(len(data)) * 90000 / float64(span)
	}
	return p, nil
}

// run writes the file to w loops times, or until ctx ends when loops is
// zero. It paces against a single clock so pass seams carry no burst.
func (p *pusher) run(ctx context.Context, w io.Writer, loops int) (int64, error) {
	start := p.now()
	var sent int64
	for pass := 1; loops == 0 || pass <= loops; pass++ {
		if pass > 1 {
			p.tl.shift(p.data, p.tl.span())
			p.log.Info("pass complete", "pass", pass-1, "sent", sent)
		}
		for off := 0; off < len(p.data); off += chunkSize {
			if err := ctx.Err(); err != nil {
				return sent, nil
			}
			end := min(off+chunkSize, len(p.data))
			if _, err := w.Write(p.data[off:end]); err != nil {
				return sent, fmt.Errorf("tspush: write: %w", err)
			}
			sent += int64(end - off)

			due := start.Add(time.Duration(float64(sent) / p.rate * float64(time.Second)))
			if wait := due.Sub(p.now()); wait > 0 {
				select {
				case <-ctx.Done():
					return sent, nil
				case <-time.After(wait):
				}
			}
		}
	}
	return sent, nil
}
