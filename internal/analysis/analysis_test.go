package analysis

import (
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stfn345/ats-ebp-validator/internal/demux"
	"github.com/stfn345/ats-ebp-validator/internal/media"
	"github.com/stfn345/ats-ebp-validator/internal/report"
	"github.com/stfn345/ats-ebp-validator/internal/stream"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func videoSet(n int) *stream.Set {
	inputs := make([]stream.Input, n)
	for i := range inputs {
		inputs[i] = stream.Input{
			Name: "src",
			Discovery: stream.Discovery{Streams: []stream.Probe{
				{PID: 0x100, StreamType: 0x1B, Kind: media.KindVideo, Codec: demux.CodecAVC},
			}},
		}
	}
	return stream.Build(inputs, quietLogger())
}

func feed(sl *stream.Slot, pts ...int64) {
	for _, p := range pts {
		sl.Queue.Push(&media.Segment{PTS: p, PartitionID: 1, Ingest: sl.Key.Ingest, PID: sl.Key.PID})
	}
	sl.Queue.Push(media.EndOfStream{})
}

func runColumn(t *testing.T, set *stream.Set, tol int64) (*Worker, *report.Aggregator) {
	t.Helper()
	agg := report.NewAggregator(quietLogger(), nil)
	w := NewWorker(set, 0, agg, tol, quietLogger())
	done := make(chan struct{})
	go func() {
		w.Run()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not finish")
	}
	return w, agg
}

func TestWorker(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		tol            int64
		feeds          [][]int64
		wantStart      int64
		wantRounds     int64
		wantMismatches int64
		wantFailed     []bool
	}{
		{
			name:       "aligned",
			feeds:      [][]int64{{100, 200, 300}, {100, 200, 300}},
			wantStart:  100,
			wantRounds: 3,
			wantFailed: []bool{false, false},
		},
		{
			name:       "late joiner is synchronized",
			feeds:      [][]int64{{100, 200, 300}, {200, 300}},
			wantStart:  200,
			wantRounds: 2,
			wantFailed: []bool{false, false},
		},
		{
			name:           "drift fails the second member",
			feeds:          [][]int64{{100, 200, 300}, {100, 201, 301}},
			wantStart:      100,
			wantRounds:     3,
			wantMismatches: 2,
			wantFailed:     []bool{false, true},
		},
		{
			name:       "drift within tolerance",
			tol:        1,
			feeds:      [][]int64{{100, 200, 300}, {100, 201, 301}},
			wantStart:  100,
			wantRounds: 3,
			wantFailed: []bool{false, false},
		},
		{
			name:       "shorter member ends early",
			feeds:      [][]int64{{100, 200, 300}, {100}, {100, 200, 300}},
			wantStart:  100,
			wantRounds: 3,
			wantFailed: []bool{false, false, false},
		},
		{
			name:       "empty member is inactive",
			feeds:      [][]int64{{100, 200}, {}},
			wantStart:  100,
			wantRounds: 2,
			wantFailed: []bool{false, false},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			set := videoSet(len(tt.feeds))
			for i, pts := range tt.feeds {
				feed(set.Sources[i].Video(), pts...)
			}

			w, agg := runColumn(t, set, tt.tol)
			st := w.Stats()
			if st.StartPTS != tt.wantStart {
				t.Errorf("StartPTS = %d, want %d", st.StartPTS, tt.wantStart)
			}
			if st.Rounds != tt.wantRounds {
				t.Errorf("Rounds = %d, want %d", st.Rounds, tt.wantRounds)
			}
			if st.Mismatches != tt.wantMismatches {
				t.Errorf("Mismatches = %d, want %d", st.Mismatches, tt.wantMismatches)
			}
			for i, want := range tt.wantFailed {
				if got := set.Sources[i].Video().Failed(); got != want {
					t.Errorf("source %d failed = %v, want %v", i, got, want)
				}
			}
			if n := int64(len(agg.Findings())); n != tt.wantMismatches {
				t.Errorf("findings = %d, want %d", n, tt.wantMismatches)
			}
		})
	}
}

func TestWorkerMismatchMessage(t *testing.T) {
	t.Parallel()
	set := videoSet(2)
	feed(set.Sources[0].Video(), 900000, 990000)
	feed(set.Sources[1].Video(), 900000, 990090)

	_, agg := runColumn(t, set, 0)
	findings := agg.Findings()
	if len(findings) != 1 {
		t.Fatalf("findings = %+v", findings)
	}
	f := findings[0]
	if f.Source != 1 || f.PTS == nil || *f.PTS != 990090 {
		t.Errorf("finding = %+v", f)
	}
	if !strings.Contains(f.Message, "cross-stream timing mismatch") || !strings.Contains(f.Message, "0.001s") {
		t.Errorf("message = %q", f.Message)
	}
}

func TestWorkerWaitsForProducers(t *testing.T) {
	t.Parallel()
	set := videoSet(2)
	a, b := set.Sources[0].Video(), set.Sources[1].Video()

	agg := report.NewAggregator(quietLogger(), nil)
	w := NewWorker(set, 0, agg, 0, quietLogger())
	done := make(chan struct{})
	go func() {
		w.Run()
		close(done)
	}()

	feed(a, 100, 200)
	select {
	case <-done:
		t.Fatal("worker finished before every producer ended")
	case <-time.After(20 * time.Millisecond):
	}
	feed(b, 100, 200)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not finish")
	}
	if w.Stats().Rounds != 2 {
		t.Errorf("Rounds = %d, want 2", w.Stats().Rounds)
	}
}
