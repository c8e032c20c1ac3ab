// Package analysis compares the boundary records of one column across all
// sources that carry it, round by round, and reports cross-stream timing
// mismatches.
package analysis

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/stfn345/ats-ebp-validator/internal/media"
	"github.com/stfn345/ats-ebp-validator/internal/report"
	"github.com/stfn345/ats-ebp-validator/internal/stream"
)

// Worker consumes the queues of one analysis column. It is the only
// consumer of those queues.
type Worker struct {
	log       *slog.Logger
	name      string
	slots     []*stream.Slot
	agg       *report.Aggregator
	tolerance int64

	startPTS   atomic.Int64
	rounds     atomic.Int64
	compared   atomic.Int64
	mismatches atomic.Int64
}

// Stats is a snapshot of a worker's counters.
type Stats struct {
	Column     string
	StartPTS   int64
	Rounds     int64
	Compared   int64
	Mismatches int64
}

// NewWorker creates a worker for column of set. tolerance is the largest
// allowed PTS difference in 90 kHz ticks. If log is nil, slog.Default() is
// used.
func NewWorker(set *stream.Set, column int, agg *report.Aggregator, tolerance int64, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	name := set.ColumnName(column)
	return &Worker{
		log:       log.With("component", "analysis", "column", name),
		name:      name,
		slots:     set.Columns()[column],
		agg:       agg,
		tolerance: tolerance,
	}
}

// Run aligns the column's queues and compares them until every producer
// has ended. It blocks on the queues and returns once a round pops nothing.
func (w *Worker) Run() {
	active := w.sync()
	w.log.Debug("synchronized", "start_pts", w.startPTS.Load(), "active", countActive(active))

	for {
		var (
			ref     *media.Segment
			refSlot *stream.Slot
			popped  int
		)
		for i, sl := range w.slots {
			if !active[i] {
				continue
			}
			seg, ok := sl.Queue.Pop().(*media.Segment)
			if !ok {
				active[i] = false
				continue
			}
			popped++
			if ref == nil {
				ref, refSlot = seg, sl
				continue
			}
			w.compared.Add(1)
			w.compare(refSlot, ref, sl, seg)
		}
		if popped == 0 {
			break
		}
		w.rounds.Add(1)
	}
	w.log.Info("column finished", "rounds", w.rounds.Load(), "mismatches", w.mismatches.Load())
}

// sync finds the latest first PTS across the column and drops every entry
// before it, so that all members start comparing at the same boundary.
func (w *Worker) sync() []bool {
	active := make([]bool, len(w.slots))
	var (
		start int64
		found bool
	)
	for i, sl := range w.slots {
		seg, ok := sl.Queue.Peek().(*media.Segment)
		if !ok {
			continue
		}
		active[i] = true
		if !found || media.PTSAfter(seg.PTS, start) {
			start, found = seg.PTS, true
		}
	}
	w.startPTS.Store(start)

	for i, sl := range w.slots {
		if !active[i] {
			continue
		}
		for {
			seg, ok := sl.Queue.Peek().(*media.Segment)
			if !ok {
				active[i] = false
				break
			}
			if media.PTSDiff(seg.PTS, start) >= 0 {
				break
			}
			sl.Queue.Pop()
		}
	}
	return active
}

func (w *Worker) compare(refSlot *stream.Slot, ref *media.Segment, sl *stream.Slot, seg *media.Segment) {
	diff := media.PTSDiff(seg.PTS, ref.PTS)
	if diff < 0 {
		diff = -diff
	}
	if diff <= w.tolerance {
		return
	}
	w.mismatches.Add(1)
	sl.Fail()
	w.agg.Failure(report.Finding{
		Kind:      report.KindConformance,
		Source:    sl.Key.Ingest,
		PID:       sl.Key.PID,
		Partition: seg.PartitionID,
		PTS:       report.PTS(seg.PTS),
		Message: fmt.Sprintf("cross-stream timing mismatch: %s boundary at %d, %s at %d (%.3fs apart)",
			sl.Key, seg.PTS, refSlot.Key, ref.PTS, media.Seconds(diff)),
	})
}

// Stats returns the worker's counters. It is safe to call while Run is
// in progress.
func (w *Worker) Stats() Stats {
	return Stats{
		Column:     w.name,
		StartPTS:   w.startPTS.Load(),
		Rounds:     w.rounds.Load(),
		Compared:   w.compared.Load(),
		Mismatches: w.mismatches.Load(),
	}
}

func countActive(active []bool) int {
	n := 0
	for _, a := range active {
		if a {
			n++
		}
	}
	return n
}
