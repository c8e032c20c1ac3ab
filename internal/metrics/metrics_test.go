package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stfn345/ats-ebp-validator/internal/report"
)

func TestObserver(t *testing.T) {
	t.Parallel()
	m := New()
	agg := report.NewAggregator(nil, m)

	agg.Boundary(report.BoundaryEvent{Source: 0, PID: 0x100, Partition: 1, Video: true})
	agg.Boundary(report.BoundaryEvent{Source: 0, PID: 0x100, Partition: 2, Video: true})
	agg.Boundary(report.BoundaryEvent{Source: 1, PID: 0x101, Partition: 1, Implicit: true})
	agg.Failure(report.Finding{Kind: report.KindConformance, Source: 1, Partition: 1, Message: "x"})

	body := scrape(t, m)
	for _, want := range []string{
		`ebpv_boundaries_total{implicit="false",kind="video",source="0"} 2`,
		`ebpv_boundaries_total{implicit="true",kind="audio",source="1"} 1`,
		`ebpv_findings_total{kind="conformance",source="1"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q\n%s", want, body)
		}
	}
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d", rec.Code)
	}
	return rec.Body.String()
}

func TestRouter(t *testing.T) {
	t.Parallel()
	m := New()
	refreshed := 0
	r := m.Router(func() {
		refreshed++
		m.SetFeed("udp://239.0.0.1:5000", 1316, 2)
		m.SetQueueDepth("0/0x0100", 4)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d", rec.Code)
	}
	if refreshed != 1 {
		t.Errorf("refresh called %d times, want 1", refreshed)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`ebpv_ingest_received_bytes{feed="udp://239.0.0.1:5000"} 1316`,
		`ebpv_ingest_dropped_reads{feed="udp://239.0.0.1:5000"} 2`,
		`ebpv_queue_depth{slot="0/0x0100"} 4`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok\n" {
		t.Errorf("/healthz = %d %q", rec.Code, rec.Body.String())
	}
}

func TestServe(t *testing.T) {
	t.Parallel()
	m := New()
	ctx, cancel := context.WithCancel(context.Background())
	addrCh := make(chan net.Addr, 1)
	done := make(chan error, 1)
	go func() {
		done <- m.Serve(ctx, "127.0.0.1:0", nil, func(a net.Addr) { addrCh <- a }, nil)
	}()

	var addr net.Addr
	select {
	case addr = <-addrCh:
	case err := <-done:
		t.Fatalf("Serve returned early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for listener")
	}

	resp, err := http.Get("http://" + addr.String() + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "ok\n" {
		t.Errorf("body = %q", body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not stop")
	}
}

func TestServeListenError(t *testing.T) {
	t.Parallel()
	if err := New().Serve(context.Background(), "256.0.0.1:bad", nil, nil, nil); err == nil {
		t.Fatal("expected listen error")
	}
}
