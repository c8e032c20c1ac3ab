package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/stfn345/ats-ebp-validator/internal/ingest"
	"github.com/stfn345/ats-ebp-validator/internal/pipeline"
	"github.com/stfn345/ats-ebp-validator/internal/ringbuf"
	"github.com/stfn345/ats-ebp-validator/internal/stream"
)

// Input names one source of a run.
type Input struct {
	Name string
	URL  string
}

// source is the runtime side of one input: where its bytes come from.
type source struct {
	index int
	in    Input
	ep    ingest.Endpoint

	feed *ingest.Feed
	recv ingest.Receiver
	dump *os.File

	// err is a setup failure; the source is kept without slots.
	err error
}

func (s *source) key() string { return fmt.Sprintf("source-%d", s.index) }

// open parses the endpoint and, for a live input, creates its ring buffer
// and receiver.
func (s *source) open(opts Options, reg *ingest.Registry, log *slog.Logger) {
	ep, err := ingest.ParseEndpoint(s.in.URL)
	if err != nil {
		s.err = err
		return
	}
	s.ep = ep
	if !ep.Live() {
		return
	}

	buf, err := ringbuf.New(opts.RingBufferBytes)
	if err != nil {
		s.err = fmt.Errorf("session: source %d: %w", s.index, err)
		return
	}
	s.feed = reg.Register(s.key(), s.in.URL, buf)

	var dump io.Writer
	if opts.DumpDir != "" {
		if err := os.MkdirAll(opts.DumpDir, 0o755); err != nil {
			s.err = fmt.Errorf("session: create dump directory: %w", err)
			return
		}
		f, err := os.Create(filepath.Join(opts.DumpDir, s.key()+".ts"))
		if err != nil {
			s.err = fmt.Errorf("session: create dump file: %w", err)
			return
		}
		s.dump = f
		dump = f
	}

	recv, err := ingest.NewReceiver(ep, s.feed, dump, log)
	if err != nil {
		s.err = err
		return
	}
	if u, ok := recv.(*ingest.UDPReceiver); ok && opts.PollInterval > 0 {
		u.PollInterval = opts.PollInterval
	}
	s.recv = recv
}

// discover runs the discovery pass. Files are read from the start up to
// the byte budget; live inputs are peeked for up to the time budget so the
// worker later consumes the same bytes.
func (s *source) discover(ctx context.Context, opts Options, log *slog.Logger) (stream.Discovery, error) {
	if s.feed != nil {
		return pipeline.Discover(ctx, s.feed.Buffer.PeekReader(opts.DiscoveryTimeout), log)
	}
	f, err := os.Open(s.ep.Path)
	if err != nil {
		return stream.Discovery{}, fmt.Errorf("session: open %s: %w", s.ep.Path, err)
	}
	defer f.Close()
	return pipeline.Discover(ctx, io.LimitReader(f, opts.DiscoveryBytes), log)
}

// reader returns the steady-state input and a function releasing it.
func (s *source) reader() (io.Reader, func(), error) {
	if s.feed != nil {
		return s.feed.Buffer.Reader(), func() {}, nil
	}
	f, err := os.Open(s.ep.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("session: open %s: %w", s.ep.Path, err)
	}
	return f, func() { f.Close() }, nil
}

// stop disables the live buffer so the receiver exits and the reader
// drains. It is a no-op for files.
func (s *source) stop(reg *ingest.Registry) {
	if s.feed != nil {
		reg.Unregister(s.key())
	}
}

func (s *source) closeDump(log *slog.Logger) {
	if s.dump == nil {
		return
	}
	if err := s.dump.Close(); err != nil {
		log.Warn("close dump file", "source", s.index, "error", err)
	}
}

func discoveryTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return 5 * time.Second
	}
	return d
}
