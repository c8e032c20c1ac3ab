// Package boundary implements per-payload boundary detection: implicit
// trigger consumption, explicit EBP checks, segment emission, implicit
// propagation to dependent streams, and SCTE-35 expectation matching.
package boundary

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/stfn345/ats-ebp-validator/internal/ebp"
	"github.com/stfn345/ats-ebp-validator/internal/media"
	"github.com/stfn345/ats-ebp-validator/internal/report"
	"github.com/stfn345/ats-ebp-validator/internal/scte35"
	"github.com/stfn345/ats-ebp-validator/internal/stream"
)

// DefaultAudioLag is how far an audio boundary may trail the latest video
// boundary of its source: 3 s at 90 kHz.
const DefaultAudioLag = 3 * media.ClockRate

// Options tunes the engine.
type Options struct {
	// SCTE35Tolerance is the window, in 90 kHz ticks, around a splice
	// point within which a boundary matches it.
	SCTE35Tolerance int64
	// AudioLag is the largest allowed distance from the latest video
	// boundary to an audio boundary.
	AudioLag int64
	// TriggerOnEqual lets a payload whose PTS equals a pending implicit
	// trigger take it. By default only a strictly later PTS does.
	TriggerOnEqual bool
	// ForceAudioImplicit makes audio derive every boundary from video and
	// ignore EBP structures carried on audio.
	ForceAudioImplicit bool
	// VerifySAP checks the EBP SAP type and the descriptor's maximum SAP
	// type against the access point found in the payload.
	VerifySAP bool
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{AudioLag: DefaultAudioLag, VerifySAP: true}
}

// Payload is one elementary stream payload unit as seen by the engine.
type Payload struct {
	PTS     int64
	SAPType uint8
	EBP     *ebp.EBP
}

// Engine runs boundary detection for the slots of one source. It is called
// only from that source's ingest worker.
type Engine struct {
	log  *slog.Logger
	set  *stream.Set
	src  *stream.Source
	agg  *report.Aggregator
	opts Options
}

// New creates an engine for src. If log is nil, slog.Default() is used.
func New(set *stream.Set, src *stream.Source, agg *report.Aggregator, opts Options, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	if opts.AudioLag <= 0 {
		opts.AudioLag = DefaultAudioLag
	}
	return &Engine{
		log:  log.With("component", "boundary", "source", src.Index),
		set:  set,
		src:  src,
		agg:  agg,
		opts: opts,
	}
}

type trigger struct {
	id       int
	implicit bool
}

// Process runs detection for one payload of sl and returns the ids of the
// partitions that placed a boundary.
func (e *Engine) Process(sl *stream.Slot, pl Payload) []int {
	var triggered []trigger
	hit := [ebp.MaxPartitions]bool{}

	for id := 1; id < ebp.MaxPartitions; id++ {
		p := sl.Partitions[id]
		if !p.Boundary || !p.Implicit {
			continue
		}
		if _, ok := p.TakeTrigger(pl.PTS, e.opts.TriggerOnEqual); ok {
			hit[id] = true
			triggered = append(triggered, trigger{id: id, implicit: true})
		}
	}

	signal := pl.EBP
	if sl.Kind == media.KindAudio && e.opts.ForceAudioImplicit {
		signal = nil
	}
	if signal != nil {
		for _, id := range signal.Partitions() {
			if !sl.HasExplicit(id) {
				e.fail(sl, id, pl.PTS, report.KindConformance,
					"EBP signals partition %d, which is not configured as an explicit boundary", id)
				continue
			}
			if !hit[id] {
				hit[id] = true
				triggered = append(triggered, trigger{id: id})
			}
		}
		if e.opts.VerifySAP {
			e.verifySAP(sl, pl, signal)
		}
	}

	slices.SortFunc(triggered, func(a, b trigger) int { return a.id - b.id })

	videoMarked := false
	audioChecked := false
	for _, tr := range triggered {
		p := sl.Partitions[tr.id]
		if want, ok := p.MatchExpectation(pl.PTS, e.opts.SCTE35Tolerance); ok {
			e.agg.Info(e.src.Index, "splice point %d matched by %s partition %d boundary at %d", want, sl.Label(), tr.id, pl.PTS)
		}

		sl.Queue.Push(&media.Segment{
			PTS:         pl.PTS,
			SAPType:     pl.SAPType,
			PartitionID: tr.id,
			Ingest:      sl.Key.Ingest,
			PID:         sl.Key.PID,
			EBP:         pl.EBP.Clone(),
			Descriptor:  sl.Descriptor.Clone(),
		})
		sl.CountBoundary()
		e.agg.Boundary(report.BoundaryEvent{
			Source:    sl.Key.Ingest,
			PID:       sl.Key.PID,
			Partition: tr.id,
			PTS:       pl.PTS,
			SAPType:   pl.SAPType,
			Implicit:  tr.implicit,
			Video:     sl.Kind == media.KindVideo,
		})

		switch {
		case sl.Kind == media.KindVideo && !videoMarked:
			videoMarked = true
			for _, other := range e.src.Slots {
				if other != sl {
					other.SetLastVideoChunk(pl.PTS)
				}
			}
		case sl.Kind == media.KindAudio && !audioChecked:
			audioChecked = true
			if last, ok := sl.LastVideoChunk(); ok {
				if lag := media.PTSDiff(pl.PTS, last); lag > e.opts.AudioLag {
					e.fail(sl, tr.id, pl.PTS, report.KindConformance,
						"audio boundary trails video boundary at %d by %.3fs", last, media.Seconds(lag))
				}
			}
		}

		for _, dep := range e.set.Dependents(sl.Key, tr.id) {
			if dep != sl {
				dep.Partitions[tr.id].PushTrigger(pl.PTS)
			}
		}
	}

	for _, p := range sl.Partitions {
		if !p.Boundary {
			continue
		}
		for _, missed := range p.Advance(pl.PTS, e.opts.SCTE35Tolerance) {
			e.fail(sl, p.ID, missed, report.KindConformance,
				"splice point %d not matched by a boundary (payload at %d)", missed, pl.PTS)
		}
	}

	ids := make([]int, 0, len(triggered))
	for _, tr := range triggered {
		ids = append(ids, tr.id)
	}
	return ids
}

func (e *Engine) verifySAP(sl *stream.Slot, pl Payload, signal *ebp.EBP) {
	if sl.Kind == media.KindVideo && len(signal.Partitions()) > 0 && pl.SAPType == 0 {
		e.fail(sl, report.NoPartition, pl.PTS, report.KindConformance, "video boundary is not at a stream access point")
		return
	}
	if signal.SAPFlag && pl.SAPType != 0 && signal.SAPType != pl.SAPType {
		e.fail(sl, report.NoPartition, pl.PTS, report.KindConformance,
			"EBP SAP type %d but access unit is SAP type %d", signal.SAPType, pl.SAPType)
	}
	for _, id := range signal.Partitions() {
		if limit := sl.Partitions[id].SAPTypeMax; limit != 0 && pl.SAPType > limit {
			e.fail(sl, id, pl.PTS, report.KindConformance,
				"SAP type %d exceeds descriptor maximum %d", pl.SAPType, limit)
		}
	}
}

// Expect routes a splice point to the partitions that must place a
// boundary at it: every boundary partition of every source for a program
// splice, or the boundary partitions of the component's slot in this
// source for a component splice.
func (e *Engine) Expect(sp scte35.SplicePoint) {
	var targets []*stream.Slot
	if sp.Program {
		targets = e.set.Slots()
	} else {
		sl := e.src.SlotByComponentTag(sp.ComponentTag)
		if sl == nil {
			e.agg.Failure(report.Finding{
				Kind:      report.KindStructural,
				Source:    e.src.Index,
				Partition: report.NoPartition,
				PTS:       report.PTS(sp.PTS),
				Message:   fmt.Sprintf("splice component tag %d matches no stream", sp.ComponentTag),
			})
			return
		}
		targets = []*stream.Slot{sl}
	}

	added := 0
	for _, sl := range targets {
		for _, p := range sl.Partitions {
			if p.Boundary && p.AddExpectation(sp.PTS, e.opts.SCTE35Tolerance) {
				added++
			}
		}
	}
	if added > 0 {
		e.log.Debug("splice expectation", "pts", sp.PTS, "program", sp.Program, "event", sp.EventID, "partitions", added)
	}
}

func (e *Engine) fail(sl *stream.Slot, partition int, pts int64, kind report.Kind, format string, args ...any) {
	sl.Fail()
	e.agg.Failure(report.Finding{
		Kind:      kind,
		Source:    sl.Key.Ingest,
		PID:       sl.Key.PID,
		Partition: partition,
		PTS:       report.PTS(pts),
		Message:   fmt.Sprintf(format, args...),
	})
}
