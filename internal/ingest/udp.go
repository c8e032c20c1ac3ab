package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	"golang.org/x/net/ipv4"
)

const (
	// maxDatagram is the largest UDP payload read in one call.
	maxDatagram = 65536

	defaultPollInterval = 100 * time.Millisecond
	udpReadBuffer       = 4 << 20
)

// UDPReceiver reads a UDP feed into its ring buffer.
type UDPReceiver struct {
	log  *slog.Logger
	ep   Endpoint
	sink *sink

	// PollInterval bounds each socket wait so the receiver notices a stop
	// request or a disabled buffer.
	PollInterval time.Duration
	// Ready is closed once the socket is bound and joined.
	Ready chan struct{}

	localAddr net.Addr
}

// NewUDPReceiver creates a receiver for ep writing into feed. dump, when
// non-nil, receives a copy of every packet written. If log is nil,
// slog.Default() is used.
func NewUDPReceiver(ep Endpoint, feed *Feed, dump io.Writer, log *slog.Logger) *UDPReceiver {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "udp-receiver", "addr", ep.Addr())
	return &UDPReceiver{
		log:          log,
		ep:           ep,
		sink:         &sink{log: log, feed: feed, dump: dump},
		PollInterval: defaultPollInterval,
		Ready:        make(chan struct{}),
	}
}

// LocalAddr returns the bound address once Ready is closed.
func (r *UDPReceiver) LocalAddr() net.Addr { return r.localAddr }

// Run receives until ctx is cancelled, the buffer is disabled, or the feed
// delivers a partial packet. It disables the buffer on return.
func (r *UDPReceiver) Run(ctx context.Context) error {
	buf := r.sink.feed.Buffer
	defer buf.Disable()

	conn, err := r.listen(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	r.localAddr = conn.LocalAddr()
	close(r.Ready)
	r.log.Info("receiving", "local", conn.LocalAddr(), "multicast", r.ep.Multicast(), "source", r.ep.Source)

	p := make([]byte, maxDatagram)
	for {
		if ctx.Err() != nil || buf.Disabled() {
			return nil
		}
		if err := conn.SetReadDeadline(time.Now().Add(r.PollInterval)); err != nil {
			return fmt.Errorf("ingest: udp %s: %w", r.ep.Addr(), err)
		}
		n, from, err := conn.ReadFrom(p)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("ingest: udp %s: %w", r.ep.Addr(), err)
		}
		if r.sink.feed.readCount.Load() == 0 {
			r.sink.feed.SetRemoteAddr(from.String())
		}
		if err := r.sink.write(p[:n]); err != nil {
			if errors.Is(err, ErrPartialPacket) {
				r.log.Error("partial packet", "bytes", n)
				return fmt.Errorf("ingest: udp %s: %d bytes: %w", r.ep.Addr(), n, err)
			}
			return nil
		}
	}
}

func (r *UDPReceiver) listen(ctx context.Context) (net.PacketConn, error) {
	bind := r.ep.Addr()
	if r.ep.Multicast() {
		bind = net.JoinHostPort("0.0.0.0", fmt.Sprint(r.ep.Port))
	}
	lc := net.ListenConfig{Control: reuseAddr}
	conn, err := lc.ListenPacket(ctx, "udp4", bind)
	if err != nil {
		return nil, fmt.Errorf("ingest: listen %s: %w", bind, err)
	}
	if uc, ok := conn.(*net.UDPConn); ok {
		if err := uc.SetReadBuffer(udpReadBuffer); err != nil {
			r.log.Debug("socket read buffer not raised", "error", err)
		}
	}
	if !r.ep.Multicast() {
		return conn, nil
	}

	if err := r.join(ipv4.NewPacketConn(conn)); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func (r *UDPReceiver) join(pc *ipv4.PacketConn) error {
	var ifi *net.Interface
	if r.ep.Interface != "" {
		var err error
		if ifi, err = net.InterfaceByName(r.ep.Interface); err != nil {
			return fmt.Errorf("ingest: interface %q: %w", r.ep.Interface, err)
		}
	}
	group := &net.UDPAddr{IP: net.ParseIP(r.ep.Host)}
	if r.ep.Source != nil {
		if err := pc.JoinSourceSpecificGroup(ifi, group, &net.UDPAddr{IP: r.ep.Source}); err != nil {
			return fmt.Errorf("ingest: join %s from %s: %w", r.ep.Host, r.ep.Source, err)
		}
		return nil
	}
	if err := pc.JoinGroup(ifi, group); err != nil {
		return fmt.Errorf("ingest: join %s: %w", r.ep.Host, err)
	}
	return nil
}
