// Package session runs one validation: it opens every input, discovers its
// streams, configures boundary partitions, then runs receivers, ingest
// workers and analysis workers concurrently and builds the report.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/stfn345/ats-ebp-validator/internal/analysis"
	"github.com/stfn345/ats-ebp-validator/internal/boundary"
	"github.com/stfn345/ats-ebp-validator/internal/config"
	"github.com/stfn345/ats-ebp-validator/internal/ingest"
	"github.com/stfn345/ats-ebp-validator/internal/metrics"
	"github.com/stfn345/ats-ebp-validator/internal/pipeline"
	"github.com/stfn345/ats-ebp-validator/internal/report"
	"github.com/stfn345/ats-ebp-validator/internal/stream"
)

// ErrNoInputs is returned by Run when no input is given.
var ErrNoInputs = errors.New("session: no inputs")

// Options configures a run.
type Options struct {
	Inputs []Input

	Boundary          boundary.Options
	AnalysisTolerance int64

	RingBufferBytes  int
	DiscoveryBytes   int64
	DiscoveryTimeout time.Duration
	PollInterval     time.Duration
	DumpDir          string

	// Duration stops the run after this long; zero runs until every
	// input ends.
	Duration time.Duration

	// Metrics, if non-nil, observes the run. MetricsAddr, if set, serves
	// it over HTTP for the length of the run.
	Metrics     *metrics.Metrics
	MetricsAddr string
	// MetricsReady is called with the bound metrics address.
	MetricsReady func(net.Addr)
}

// OptionsFromConfig maps the loaded configuration onto run options.
// Inputs come from the configuration's sources.
func OptionsFromConfig(cfg *config.Config) Options {
	opts := Options{
		Boundary: boundary.Options{
			SCTE35Tolerance:    cfg.Validation.SCTE35Tolerance(),
			AudioLag:           cfg.Validation.AudioLag(),
			TriggerOnEqual:     cfg.Validation.TriggerOnEqual,
			ForceAudioImplicit: cfg.Validation.ForceAudioImplicit,
			VerifySAP:          cfg.Validation.VerifySAP,
		},
		AnalysisTolerance: cfg.Validation.AnalysisTolerance(),
		RingBufferBytes:   cfg.Ingest.RingBufferBytes,
		DiscoveryBytes:    cfg.Ingest.DiscoveryBytes,
		DiscoveryTimeout:  cfg.Ingest.DiscoveryTimeout(),
		PollInterval:      cfg.Ingest.PollInterval(),
		DumpDir:           cfg.Ingest.DumpDir,
		Duration:          cfg.Run.Duration(),
		MetricsAddr:       cfg.Metrics.Addr,
	}
	for _, s := range cfg.Sources {
		opts.Inputs = append(opts.Inputs, Input{Name: s.Name, URL: s.URL})
	}
	return opts
}

// Run validates the inputs and returns the report. A cancelled ctx ends
// the run early; the report then covers what was received. The returned
// error is set only when the run itself could not proceed; per-source
// problems are findings in the report.
func Run(ctx context.Context, opts Options, log *slog.Logger) (*report.Report, error) {
	if len(opts.Inputs) == 0 {
		return nil, ErrNoInputs
	}
	if log == nil {
		log = slog.Default()
	}
	runID := uuid.NewString()
	log = log.With("run_id", runID)
	started := time.Now()
	opts.DiscoveryTimeout = discoveryTimeout(opts.DiscoveryTimeout)

	if opts.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	var obs report.Observer
	if opts.Metrics != nil {
		obs = opts.Metrics
	}
	agg := report.NewAggregator(log, obs)
	reg := ingest.NewRegistry()
	stopLive := context.AfterFunc(ctx, reg.DisableAll)
	defer stopLive()

	var current atomic.Pointer[stream.Set]
	stopMetrics, metricsDone := serveMetrics(ctx, opts, reg, &current, log)
	defer func() {
		stopMetrics()
		<-metricsDone
	}()

	g, gctx := errgroup.WithContext(ctx)
	sources := make([]*source, len(opts.Inputs))
	recvErrs := make([]error, len(opts.Inputs))
	for i, in := range opts.Inputs {
		if in.Name == "" {
			in.Name = in.URL
		}
		s := &source{index: i, in: in}
		s.open(opts, reg, log)
		sources[i] = s
		if s.recv == nil {
			continue
		}
		g.Go(func() error {
			defer s.closeDump(log)
			if err := s.recv.Run(gctx); err != nil {
				log.Warn("receiver stopped", "source", i, "error", err)
				recvErrs[i] = err
			}
			return nil
		})
	}

	inputs := discoverAll(gctx, sources, opts, log)
	set := stream.Build(inputs, log)
	configureAll(set, agg, opts.Boundary.ForceAudioImplicit)
	set.Index()
	current.Store(set)

	workers := make([]*pipeline.Worker, len(set.Sources))
	workErrs := make([]error, len(set.Sources))
	for i, src := range set.Sources {
		s := sources[i]
		eng := boundary.New(set, src, agg, opts.Boundary, log)
		w := pipeline.New(src, eng, agg, log)
		workers[i] = w
		if src.Fatal != nil {
			agg.Failure(report.Finding{Kind: report.KindSetup, Source: i, Partition: report.NoPartition, Message: src.Fatal.Error()})
			w.End()
			s.stop(reg)
			continue
		}
		g.Go(func() error {
			defer s.stop(reg)
			r, release, err := s.reader()
			if err != nil {
				w.End()
				workErrs[i] = err
				return nil
			}
			defer release()
			workErrs[i] = w.Run(gctx, r)
			return nil
		})
	}

	for col := range set.Columns() {
		aw := analysis.NewWorker(set, col, agg, opts.AnalysisTolerance, log)
		g.Go(func() error {
			aw.Run()
			st := aw.Stats()
			log.Debug("analysis finished", "column", st.Column, "rounds", st.Rounds, "mismatches", st.Mismatches)
			return nil
		})
	}

	err := g.Wait()

	for i, src := range set.Sources {
		for _, e := range []error{recvErrs[i], workErrs[i]} {
			if e == nil {
				continue
			}
			agg.Failure(report.Finding{Kind: report.KindStructural, Source: i, Partition: report.NoPartition, Message: e.Error()})
			for _, sl := range src.Slots {
				sl.Fail()
			}
		}
	}

	counters := make([]report.Counters, len(workers))
	for i, w := range workers {
		counters[i] = w.Counters()
	}
	r := report.Build(set, agg, counters)
	r.RunID = runID
	r.StartedAt = started
	r.Elapsed = time.Since(started)
	log.Info("run finished", "pass", r.Pass, "findings", len(r.Findings), "elapsed", r.Elapsed)
	return r, err
}

// discoverAll runs discovery on every source concurrently.
func discoverAll(ctx context.Context, sources []*source, opts Options, log *slog.Logger) []stream.Input {
	inputs := make([]stream.Input, len(sources))
	var wg sync.WaitGroup
	for i, s := range sources {
		inputs[i] = stream.Input{Name: s.in.Name, URL: s.in.URL, Err: s.err}
		if s.err != nil {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := s.discover(ctx, opts, log.With("source", i))
			if err != nil {
				err = fmt.Errorf("session: discover %s: %w", s.in.URL, err)
			}
			inputs[i].Discovery = d
			inputs[i].Err = err
		}()
	}
	wg.Wait()
	return inputs
}

// configureAll builds every slot's partition table, video first. A slot
// that cannot be configured stops its source.
func configureAll(set *stream.Set, agg *report.Aggregator, forceAudioImplicit bool) {
	for _, src := range set.Sources {
		for _, sl := range src.Slots {
			c, err := stream.Configure(src, sl, forceAudioImplicit)
			if err != nil {
				src.Fatal = fmt.Errorf("session: configure %s of %q: %w", sl.Label(), src.Name, err)
				break
			}
			agg.Info(src.Index, "%s partitions configured from %s", sl.Label(), c)
		}
	}
}

// serveMetrics starts the metrics endpoint when configured. The returned
// stop function ends it; done is closed once it has shut down.
func serveMetrics(ctx context.Context, opts Options, reg *ingest.Registry, set *atomic.Pointer[stream.Set], log *slog.Logger) (func(), <-chan struct{}) {
	done := make(chan struct{})
	if opts.Metrics == nil || opts.MetricsAddr == "" {
		close(done)
		return func() {}, done
	}
	m := opts.Metrics
	refresh := func() {
		for _, f := range reg.Feeds() {
			st := f.Stats()
			m.SetFeed(f.URL, st.BytesReceived, st.Dropped)
		}
		if s := set.Load(); s != nil {
			for _, sl := range s.Slots() {
				m.SetQueueDepth(sl.Key.String(), sl.Queue.Len())
			}
		}
	}
	mctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	go func() {
		defer close(done)
		if err := m.Serve(mctx, opts.MetricsAddr, refresh, opts.MetricsReady, log); err != nil {
			log.Warn("metrics endpoint failed", "error", err)
		}
	}()
	return cancel, done
}
