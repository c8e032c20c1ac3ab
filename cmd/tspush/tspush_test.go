package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	srtgo "github.com/zsiec/srtgo"

	"github.com/stfn345/ats-ebp-validator/internal/ingest"
	"github.com/stfn345/ats-ebp-validator/internal/testsupport/tsgen"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPTSRoundTrip(t *testing.T) {
	t.Parallel()
	for _, want := range []int64{0, 90000, 133500, 10929750, 1<<33 - 1} {
		b := tsgen.EncodeTimestamp(0x02, 0)
		encodePTS(b, want)
		if got := decodePTS(b); got != want {
			t.Errorf("PTS %d: got %d", want, got)
		}
		if b[0]&0xF0 != 0x20 {
			t.Errorf("prefix changed to 0x%02X", b[0]&0xF0)
		}
	}
}

func TestPCRRoundTrip(t *testing.T) {
	t.Parallel()
	for _, want := range []int64{0, 45000, 90000, 1<<33 - 1} {
		b := []byte{0, 0, 0, 0, 0x7F, 0xFF}
		encodePCR(b, want)
		if got := decodePCR(b); got != want {
			t.Errorf("PCR %d: got %d", want, got)
		}
		if ext := uint16(b[4]&0x01)<<8 | uint16(b[5]); ext != 0x1FF {
			t.Errorf("PCR extension = %d, want 511", ext)
		}
	}
}

func TestScan(t *testing.T) {
	t.Parallel()
	data := tsgen.Scenario{Frames: 30}.Build()
	tl := scan(data)
	if !tl.hasVideo {
		t.Fatal("no video timestamps found")
	}
	if tl.first != 900000 || tl.last != 900000+29*3000 {
		t.Errorf("video PTS range = %d..%d", tl.first, tl.last)
	}
	if tl.frame != 3000 {
		t.Errorf("frame = %d, want 3000", tl.frame)
	}
	if tl.span() != 90000 {
		t.Errorf("span = %d, want 90000", tl.span())
	}
}

func TestShift(t *testing.T) {
	t.Parallel()
	data := tsgen.Scenario{Frames: 30}.Build()
	tl := scan(data)
	tl.shift(data, tl.span())

	got := scan(data)
	if got.first != 990000 || got.last != 990000+29*3000 {
		t.Errorf("shifted range = %d..%d", got.first, got.last)
	}
	if len(got.stamps) != len(tl.stamps) {
		t.Errorf("stamps = %d, want %d", len(got.stamps), len(tl.stamps))
	}
}

func TestNewPusherRejectsPartialPackets(t *testing.T) {
	t.Parallel()
	if _, err := newPusher(make([]byte, 200), pushOptions{}, quietLogger()); err == nil {
		t.Fatal("expected error")
	}
}

func TestPusherRate(t *testing.T) {
	t.Parallel()
	data := tsgen.Scenario{Frames: 30}.Build()
	p, err := newPusher(data, pushOptions{}, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	// One second of video.
	if int(p.rate) != len(data) {
		t.Errorf("rate = %v, want %d", p.rate, len(data))
	}
}

func TestPusherLoops(t *testing.T) {
	t.Parallel()
	data := tsgen.Scenario{Frames: 30}.Build()
	p, err := newPusher(data, pushOptions{Rate: 1e12}, quietLogger())
	if err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	sent, err := p.run(context.Background(), &out, 2)
	if err != nil {
		t.Fatal(err)
	}
	if sent != int64(2*len(data)) || out.Len() != 2*len(data) {
		t.Fatalf("sent %d, buffered %d, want %d", sent, out.Len(), 2*len(data))
	}
	if !bytes.Equal(out.Bytes()[:len(data)], data) {
		t.Error("first pass differs from the input")
	}
	second := scan(out.Bytes()[len(data):])
	if second.first != 990000 {
		t.Errorf("second pass starts at %d, want 990000", second.first)
	}
}

func TestPusherStopsOnCancel(t *testing.T) {
	t.Parallel()
	data := tsgen.Scenario{Frames: 30}.Build()
	p, err := newPusher(data, pushOptions{Rate: 1}, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	sent, err := p.run(ctx, io.Discard, 0)
	if err != nil {
		t.Fatal(err)
	}
	if sent != chunkSize {
		t.Errorf("sent = %d, want one chunk before the pacing wait", sent)
	}
}

func TestDialUDP(t *testing.T) {
	t.Parallel()
	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer pc.Close()
	port := pc.LocalAddr().(*net.UDPAddr).Port

	ep, err := ingest.ParseEndpoint("udp://127.0.0.1:" + strconv.Itoa(port))
	if err != nil {
		t.Fatal(err)
	}
	w, err := dial(ep)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	payload := bytes.Repeat([]byte{0x47}, chunkSize)
	if _, err := w.Write(payload); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 2*chunkSize)
	pc.SetReadDeadline(time.Now().Add(5 * time.Second))
	n, _, err := pc.ReadFrom(buf)
	if err != nil {
		t.Fatal(err)
	}
	if n != chunkSize {
		t.Errorf("read %d bytes, want %d", n, chunkSize)
	}
}

func TestDialSRT(t *testing.T) {
	if testing.Short() {
		t.Skip("srt loopback")
	}
	t.Parallel()

	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := pc.LocalAddr().(*net.UDPAddr).Port
	pc.Close()

	ep, err := ingest.ParseEndpoint("srt://127.0.0.1:" + strconv.Itoa(port) + "?streamid=live/push")
	if err != nil {
		t.Fatal(err)
	}
	l, err := srtgo.Listen(ep.Addr(), srtgo.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close() })

	accepted := make(chan *srtgo.Conn, 1)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			close(accepted)
			return
		}
		accepted <- conn
	}()

	w, err := dial(ep)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	var conn *srtgo.Conn
	select {
	case c, ok := <-accepted:
		if !ok {
			t.Fatal("accept failed")
		}
		conn = c
	case <-time.After(5 * time.Second):
		t.Fatal("no connection accepted")
	}
	defer func() { conn.Close() }()
	if got := conn.StreamID(); got != "live/push" {
		t.Errorf("stream id = %q, want live/push", got)
	}

	payload := bytes.Repeat([]byte{0x47}, chunkSize)
	if _, err := w.Write(payload); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 2*chunkSize)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatal(err)
	}
	if n != chunkSize {
		t.Errorf("read %d bytes, want %d", n, chunkSize)
	}
}

func TestDialRejectsFile(t *testing.T) {
	t.Parallel()
	if _, err := dial(ingest.Endpoint{Scheme: ingest.SchemeFile, Path: "x.ts"}); err == nil {
		t.Fatal("expected error for file endpoint")
	}
	if _, err := dial(ingest.Endpoint{Scheme: ingest.SchemeSRT, Host: "127.0.0.1", Port: 9000, Listen: true}); err == nil {
		t.Fatal("expected error for listener mode")
	}
}
