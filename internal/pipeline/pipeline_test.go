package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stfn345/ats-ebp-validator/internal/analysis"
	"github.com/stfn345/ats-ebp-validator/internal/boundary"
	"github.com/stfn345/ats-ebp-validator/internal/demux"
	"github.com/stfn345/ats-ebp-validator/internal/ebp"
	"github.com/stfn345/ats-ebp-validator/internal/media"
	"github.com/stfn345/ats-ebp-validator/internal/report"
	"github.com/stfn345/ats-ebp-validator/internal/stream"
	"github.com/stfn345/ats-ebp-validator/internal/testsupport/tsgen"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDiscover(t *testing.T) {
	t.Parallel()

	sc := tsgen.Scenario{
		Frames:            60,
		AudioComponentTag: 7,
		Language:          "spa",
		Splices:           []tsgen.Splice{{PTS: 990000, Program: true}},
	}
	disc, err := Discover(context.Background(), bytes.NewReader(sc.Build()), quietLogger())
	if err != nil {
		t.Fatal(err)
	}

	if len(disc.Streams) != 2 {
		t.Fatalf("streams = %d, want 2", len(disc.Streams))
	}
	video, ok := disc.Video()
	if !ok || video.PID != 0x100 || video.Codec != demux.CodecAVC {
		t.Fatalf("video = %+v", video)
	}
	if video.FirstEBP == nil || !video.FirstEBP.SegmentFlag || !video.FirstEBP.FragmentFlag {
		t.Errorf("video first EBP = %+v", video.FirstEBP)
	}

	audio := disc.Audio()
	if len(audio) != 1 {
		t.Fatalf("audio = %+v", audio)
	}
	a := audio[0]
	if a.Kind != media.KindAudio || a.Language != "spa" || !a.HasComponentTag || a.ComponentTag != 7 {
		t.Errorf("audio probe = %+v", a)
	}
	if a.FirstEBP != nil {
		t.Errorf("audio first EBP = %+v, want none", a.FirstEBP)
	}
	if len(disc.SCTE35PIDs) != 1 || disc.SCTE35PIDs[0] != 0x1F0 {
		t.Errorf("SCTE35PIDs = %v", disc.SCTE35PIDs)
	}
}

func TestDiscoverDescriptor(t *testing.T) {
	t.Parallel()

	sc := tsgen.Scenario{
		Frames: 30,
		VideoDescriptor: &ebp.Descriptor{Partitions: []ebp.DescriptorPartition{
			{ID: 2, Explicit: true, BoundaryFlag: true, SAPTypeMax: 2},
		}},
	}
	disc, err := Discover(context.Background(), bytes.NewReader(sc.Build()), nil)
	if err != nil {
		t.Fatal(err)
	}
	video, _ := disc.Video()
	if video.Descriptor == nil || len(video.Descriptor.Partitions) != 1 || video.Descriptor.Partitions[0].SAPTypeMax != 2 {
		t.Errorf("descriptor = %+v", video.Descriptor)
	}
}

type countingReader struct {
	r io.Reader
	n int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += n
	return n, err
}

func TestDiscoverStopsEarly(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		sc        tsgen.Scenario
		audioEBP  bool
		videoDesc bool
	}{
		{name: "implicit audio", sc: tsgen.Scenario{Frames: 600}},
		{name: "explicit audio", sc: tsgen.Scenario{Frames: 600, AudioEBP: true}, audioEBP: true},
		{
			name: "video descriptor",
			sc: tsgen.Scenario{Frames: 600, NoVideoEBP: true, VideoDescriptor: &ebp.Descriptor{
				Partitions: []ebp.DescriptorPartition{{ID: 2, Explicit: true, BoundaryFlag: true}},
			}},
			videoDesc: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			data := tt.sc.Build()
			cr := &countingReader{r: bytes.NewReader(data)}
			disc, err := Discover(context.Background(), cr, quietLogger())
			if err != nil {
				t.Fatal(err)
			}
			if cr.n > len(data)/4 {
				t.Errorf("consumed %d of %d bytes", cr.n, len(data))
			}

			video, _ := disc.Video()
			if tt.videoDesc {
				if video.Descriptor == nil {
					t.Error("video descriptor missing")
				}
			} else if video.FirstEBP == nil {
				t.Error("video first EBP missing")
			}
			audio := disc.Audio()
			if len(audio) != 1 {
				t.Fatalf("audio = %+v", audio)
			}
			if got := audio[0].FirstEBP != nil; got != tt.audioEBP {
				t.Errorf("audio first EBP = %v, want %v", got, tt.audioEBP)
			}
		})
	}
}

func TestDiscoverNoPMT(t *testing.T) {
	t.Parallel()

	m := tsgen.NewMuxer()
	m.Section(0, tsgen.PATSection(1, tsgen.Program{Number: 1, PMTPID: 0x1000}))
	_, err := Discover(context.Background(), bytes.NewReader(m.Bytes()), quietLogger())
	if !errors.Is(err, ErrNoPMT) {
		t.Errorf("err = %v, want ErrNoPMT", err)
	}
}

func TestComponentName(t *testing.T) {
	t.Parallel()

	desc := tsgen.ComponentNameDescriptor("Main")
	if got := componentName(desc[2:]); got != "Main" {
		t.Errorf("componentName = %q, want Main", got)
	}
	for _, b := range [][]byte{nil, {0x00}, {0x01, 'e', 'n', 'g', 0x01, 0x00, 0x00, 0x09, 'x'}} {
		if got := componentName(b); got != "" {
			t.Errorf("componentName(%x) = %q, want empty", b, got)
		}
	}
}

// run validates the scenarios the way a session does, with every worker
// running concurrently.
func run(t *testing.T, opts boundary.Options, scenarios ...tsgen.Scenario) *report.Report {
	t.Helper()
	ctx := context.Background()

	streams := make([][]byte, len(scenarios))
	inputs := make([]stream.Input, len(scenarios))
	for i, sc := range scenarios {
		streams[i] = sc.Build()
		disc, err := Discover(ctx, io.LimitReader(bytes.NewReader(streams[i]), 1<<20), quietLogger())
		inputs[i] = stream.Input{Name: "src", Discovery: disc, Err: err}
	}
	set := stream.Build(inputs, quietLogger())
	for _, src := range set.Sources {
		for _, sl := range src.Slots {
			if _, err := stream.Configure(src, sl, opts.ForceAudioImplicit); err != nil {
				t.Fatalf("Configure: %v", err)
			}
		}
	}
	set.Index()

	agg := report.NewAggregator(quietLogger(), nil)
	var wg sync.WaitGroup
	workers := make([]*Worker, len(set.Sources))
	for i, src := range set.Sources {
		workers[i] = New(src, boundary.New(set, src, agg, opts, quietLogger()), agg, quietLogger())
	}
	for i, w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.Run(ctx, bytes.NewReader(streams[i])); err != nil {
				t.Errorf("Run: %v", err)
			}
		}()
	}
	for col := range set.Columns() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			analysis.NewWorker(set, col, agg, 0, quietLogger()).Run()
		}()
	}
	wg.Wait()

	counters := make([]report.Counters, len(workers))
	for i, w := range workers {
		counters[i] = w.Counters()
	}
	return report.Build(set, agg, counters)
}

func TestRunIdenticalSourcesPass(t *testing.T) {
	t.Parallel()

	sc := tsgen.Scenario{Frames: 120}
	r := run(t, boundary.DefaultOptions(), sc, sc)
	if !r.Pass || r.ExitCode(2) != 0 {
		t.Fatalf("report failed: %+v", r.Findings)
	}
	for _, src := range r.Sources {
		if len(src.Streams) != 2 {
			t.Fatalf("streams = %+v", src.Streams)
		}
		// Segment and fragment at frames 0 and 60, fragment at 30 and 90.
		if got := src.Streams[0].Boundaries; got != 6 {
			t.Errorf("video boundaries = %d, want 6", got)
		}
		if got := src.Streams[1].Boundaries; got != 6 {
			t.Errorf("audio boundaries = %d, want 6", got)
		}
		if src.Streams[1].Config != "inherited" {
			t.Errorf("audio config = %q", src.Streams[1].Config)
		}
		if src.Packets == 0 || src.Bytes != src.Packets*188 {
			t.Errorf("counters = %d/%d", src.Packets, src.Bytes)
		}
	}
}

func TestRunAudioShiftFails(t *testing.T) {
	t.Parallel()

	r := run(t, boundary.DefaultOptions(), tsgen.Scenario{Frames: 120}, tsgen.Scenario{Frames: 120, AudioShift: 90000})
	if r.Pass {
		t.Fatal("shifted audio should fail")
	}
	if r.Fatal || r.ExitCode(2) != 2 {
		t.Errorf("exit code = %d, want 2", r.ExitCode(2))
	}
	if !r.Sources[0].Streams[0].Pass || !r.Sources[1].Streams[0].Pass {
		t.Error("video should pass")
	}
	if r.Sources[1].Streams[1].Pass {
		t.Error("shifted audio should fail")
	}

	var mismatch bool
	for _, f := range r.Findings {
		if strings.Contains(f.Message, "cross-stream timing mismatch") {
			mismatch = true
		}
		if strings.Contains(f.Message, "trails video") {
			t.Errorf("unexpected lag finding: %s", f.Message)
		}
	}
	if !mismatch {
		t.Errorf("findings = %+v, want a timing mismatch", r.Findings)
	}
}

func TestRunSpliceMatched(t *testing.T) {
	t.Parallel()

	opts := boundary.DefaultOptions()
	opts.SCTE35Tolerance = 9000
	sc := tsgen.Scenario{Frames: 120, Splices: []tsgen.Splice{{PTS: 1080000, Program: true}}}
	r := run(t, opts, sc, sc)
	if !r.Pass {
		t.Fatalf("findings = %+v", r.Findings)
	}
	matched := 0
	for _, n := range r.Notes {
		if strings.Contains(n.Message, "splice point 1080000 matched") {
			matched++
		}
	}
	// Two partitions on two slots in two sources.
	if matched != 8 {
		t.Errorf("matched notes = %d, want 8", matched)
	}
}

func TestRunSpliceMissed(t *testing.T) {
	t.Parallel()

	sc := tsgen.Scenario{Frames: 120, Splices: []tsgen.Splice{{PTS: 1000000, Program: true}}}
	r := run(t, boundary.DefaultOptions(), sc)
	if r.Pass {
		t.Fatal("missed splice should fail")
	}
	var missed bool
	for _, f := range r.Findings {
		if strings.Contains(f.Message, "splice point 1000000 not matched") {
			missed = true
		}
	}
	if !missed {
		t.Errorf("findings = %+v", r.Findings)
	}
}

func TestWorkerEndsQueuesOnce(t *testing.T) {
	t.Parallel()

	sc := tsgen.Scenario{Frames: 30}
	disc, err := Discover(context.Background(), bytes.NewReader(sc.Build()), quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	set := stream.Build([]stream.Input{{Name: "a", Discovery: disc}}, quietLogger())
	src := set.Sources[0]
	agg := report.NewAggregator(quietLogger(), nil)
	w := New(src, boundary.New(set, src, agg, boundary.DefaultOptions(), quietLogger()), agg, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Run(ctx, bytes.NewReader(sc.Build())); err != nil {
		t.Fatalf("Run after cancel: %v", err)
	}
	w.End()
	for _, sl := range src.Slots {
		if !sl.Queue.Ended() || sl.Queue.Len() != 1 {
			t.Errorf("%s queue len = %d, ended = %v", sl.Label(), sl.Queue.Len(), sl.Queue.Ended())
		}
	}
}
