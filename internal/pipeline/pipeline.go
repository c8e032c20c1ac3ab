// Package pipeline runs the ingest side of validation for one source: a
// discovery pass that learns the elementary streams and their EBP
// signaling, and the steady-state demux loop that classifies access
// points, extracts EBP structures and splice points, and drives the
// boundary engine.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stfn345/ats-ebp-validator/internal/boundary"
	"github.com/stfn345/ats-ebp-validator/internal/demux"
	"github.com/stfn345/ats-ebp-validator/internal/ebp"
	"github.com/stfn345/ats-ebp-validator/internal/media"
	"github.com/stfn345/ats-ebp-validator/internal/mpegts"
	"github.com/stfn345/ats-ebp-validator/internal/report"
	"github.com/stfn345/ats-ebp-validator/internal/scte35"
	"github.com/stfn345/ats-ebp-validator/internal/stream"
)

// Worker is the ingest worker of one source. It is the only producer of
// its source's slot queues.
type Worker struct {
	log    *slog.Logger
	src    *stream.Source
	engine *boundary.Engine
	agg    *report.Aggregator

	startTime time.Time
	endOnce   sync.Once

	packets     atomic.Int64
	pesUnits    atomic.Int64
	ebpSeen     atomic.Int64
	splices     atomic.Int64
	noPTS       atomic.Int64
	lastVideoPT atomic.Int64
}

// Snapshot is a point-in-time view of a worker's counters.
type Snapshot struct {
	Source       int
	UptimeMs     int64
	Packets      int64
	PES          int64
	EBP          int64
	Splices      int64
	MissingPTS   int64
	LastVideoPTS int64
}

// New creates the worker for src. The slots of src must already be
// configured. If log is nil, slog.Default() is used.
func New(src *stream.Source, engine *boundary.Engine, agg *report.Aggregator, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	return &Worker{
		log:    log.With("component", "ingest-worker", "source", src.Index, "name", src.Name),
		src:    src,
		engine: engine,
		agg:    agg,

		startTime: time.Now(),
	}
}

// Run demuxes r until it ends or ctx is cancelled. On every exit path it
// pushes EndOfStream to each of the source's queues exactly once. A
// cancelled context is not an error.
func (w *Worker) Run(ctx context.Context, r io.Reader) error {
	defer w.End()

	dmx := mpegts.NewDemuxer(ctx, r,
		mpegts.DemuxerOptPacketsParser(w.parseSplices),
		mpegts.DemuxerOptDescriptorDecoder(ebp.DescriptorTag, ebp.DecodeDescriptorValue))
	defer func() { w.packets.Store(dmx.Packets()) }()

	pmtVersion := -1
	for {
		d, err := dmx.NextData()
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				w.log.Info("input finished", "packets", dmx.Packets())
				return nil
			case ctx.Err() != nil:
				w.log.Info("stopped", "packets", dmx.Packets())
				return nil
			default:
				return fmt.Errorf("pipeline: source %d: %w", w.src.Index, err)
			}
		}
		w.packets.Store(dmx.Packets())

		switch {
		case d.PMT != nil:
			if v := int(d.PMT.Version); v != pmtVersion {
				if pmtVersion >= 0 {
					w.agg.Info(w.src.Index, "PMT version changed from %d to %d; stream set stays as discovered", pmtVersion, v)
				}
				pmtVersion = v
			}
		case d.PES != nil:
			w.handlePES(d)
		}
	}
}

func (w *Worker) handlePES(d *mpegts.DemuxerData) {
	sl := w.src.Slot(d.FirstPacket.Header.PID)
	if sl == nil {
		return
	}
	w.pesUnits.Add(1)

	pts, ok := d.PES.PTS()
	if !ok {
		w.noPTS.Add(1)
		return
	}

	af := d.FirstPacket.AdaptationField
	random := af != nil && af.RandomAccessIndicator
	pl := boundary.Payload{PTS: pts, SAPType: demux.SAPType(sl.Codec, d.PES.Data, random)}

	if af != nil && len(af.PrivateData) > 0 {
		e, err := ebp.FromPrivateData(af.PrivateData)
		switch {
		case err == nil:
			pl.EBP = e
			w.ebpSeen.Add(1)
		case !errors.Is(err, ebp.ErrNotEBP):
			sl.Fail()
			w.agg.Failure(report.Finding{
				Kind:      report.KindStructural,
				Source:    w.src.Index,
				PID:       sl.Key.PID,
				Partition: report.NoPartition,
				PTS:       report.PTS(pts),
				Message:   fmt.Sprintf("malformed EBP structure: %v", err),
			})
		}
	}

	if sl.Kind == media.KindVideo {
		w.lastVideoPT.Store(pts)
	}
	w.engine.Process(sl, pl)
}

// parseSplices intercepts the SCTE-35 PIDs of the source and turns each
// splice_info_section into expectations.
func (w *Worker) parseSplices(ps []*mpegts.Packet) ([]*mpegts.DemuxerData, bool, error) {
	if len(ps) == 0 || !slices.Contains(w.src.SCTE35PIDs, ps[0].Header.PID) {
		return nil, false, nil
	}
	var payload []byte
	for _, p := range ps {
		payload = append(payload, p.Payload...)
	}
	if len(payload) < 1 || 1+int(payload[0]) >= len(payload) {
		return nil, true, nil
	}

	sis, err := scte35.DecodeBytes(payload[1+int(payload[0]):])
	if err != nil {
		w.agg.Failure(report.Finding{
			Kind:      report.KindStructural,
			Source:    w.src.Index,
			PID:       ps[0].Header.PID,
			Partition: report.NoPartition,
			Message:   fmt.Sprintf("undecodable splice_info_section: %v", err),
		})
		return nil, true, nil
	}
	for _, sp := range sis.SplicePoints() {
		w.splices.Add(1)
		w.engine.Expect(sp)
	}
	return nil, true, nil
}

// End pushes EndOfStream to every queue of the source unless Run already
// did. Call it for a source whose worker never runs.
func (w *Worker) End() {
	w.endOnce.Do(func() {
		for _, sl := range w.src.Slots {
			sl.Queue.Push(media.EndOfStream{})
		}
	})
}

// Snapshot returns the worker's counters. It is safe to call while Run is
// in progress.
func (w *Worker) Snapshot() Snapshot {
	return Snapshot{
		Source:       w.src.Index,
		UptimeMs:     time.Since(w.startTime).Milliseconds(),
		Packets:      w.packets.Load(),
		PES:          w.pesUnits.Load(),
		EBP:          w.ebpSeen.Load(),
		Splices:      w.splices.Load(),
		MissingPTS:   w.noPTS.Load(),
		LastVideoPTS: w.lastVideoPT.Load(),
	}
}

// Counters returns the transfer counts reported for the source.
func (w *Worker) Counters() report.Counters {
	n := w.packets.Load()
	return report.Counters{Packets: n, Bytes: n * mpegts.PacketSize}
}
