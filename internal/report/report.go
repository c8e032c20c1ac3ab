package report

import (
	"time"

	"github.com/stfn345/ats-ebp-validator/internal/stream"
)

// Report is the final verdict of a run.
type Report struct {
	RunID      string          `json:"runId"`
	StartedAt  time.Time       `json:"startedAt"`
	Elapsed    time.Duration   `json:"elapsedNs"`
	Pass       bool            `json:"pass"`
	Fatal      bool            `json:"fatal"`
	Sources    []SourceReport  `json:"sources"`
	Findings   []Finding       `json:"findings"`
	Boundaries []BoundaryEvent `json:"boundaries"`
	Notes      []Note          `json:"notes,omitempty"`
}

// SourceReport summarizes one ingest source.
type SourceReport struct {
	Index   int            `json:"index"`
	Name    string         `json:"name"`
	URL     string         `json:"url"`
	Pass    bool           `json:"pass"`
	Fatal   string         `json:"fatal,omitempty"`
	Bytes   int64          `json:"bytes"`
	Packets int64          `json:"packets"`
	Streams []StreamReport `json:"streams"`
}

// StreamReport summarizes one elementary stream slot.
type StreamReport struct {
	PID        uint16            `json:"pid"`
	Kind       string            `json:"kind"`
	Codec      string            `json:"codec"`
	Column     string            `json:"column"`
	Config     string            `json:"config"`
	Pass       bool              `json:"pass"`
	Boundaries int64             `json:"boundaries"`
	Partitions []PartitionReport `json:"partitions"`
}

// PartitionReport is one configured boundary partition.
type PartitionReport struct {
	ID       int    `json:"id"`
	Implicit bool   `json:"implicit"`
	Source   string `json:"source,omitempty"`
}

// Counters carries per-source transfer counts gathered by the ingest layer.
type Counters struct {
	Bytes   int64
	Packets int64
}

// Build assembles the report from the run topology and the aggregated
// events. counters is indexed by source and may be shorter than the
// source list.
func Build(set *stream.Set, agg *Aggregator, counters []Counters) *Report {
	r := &Report{
		Pass:       true,
		Findings:   agg.Findings(),
		Boundaries: agg.Boundaries(),
		Notes:      agg.Notes(),
	}

	for _, src := range set.Sources {
		sr := SourceReport{Index: src.Index, Name: src.Name, URL: src.URL, Pass: src.Fatal == nil}
		if src.Fatal != nil {
			sr.Fatal = src.Fatal.Error()
			r.Fatal = true
		}
		if src.Index < len(counters) {
			sr.Bytes = counters[src.Index].Bytes
			sr.Packets = counters[src.Index].Packets
		}
		for _, sl := range src.Slots {
			st := StreamReport{
				PID:        sl.Key.PID,
				Kind:       sl.Kind.String(),
				Codec:      sl.Codec.String(),
				Column:     set.ColumnName(sl.Column),
				Config:     sl.Config.String(),
				Pass:       !sl.Failed(),
				Boundaries: sl.Boundaries(),
			}
			for _, p := range sl.Partitions {
				if !p.Boundary {
					continue
				}
				pr := PartitionReport{ID: p.ID, Implicit: p.Implicit}
				if p.Implicit {
					pr.Source = p.Source.String()
				}
				st.Partitions = append(st.Partitions, pr)
			}
			if !st.Pass {
				sr.Pass = false
			}
			sr.Streams = append(sr.Streams, st)
		}
		if !sr.Pass {
			r.Pass = false
		}
		r.Sources = append(r.Sources, sr)
	}
	return r
}

// ExitCode maps the report to a process status: 1 when a source failed
// setup, failCode when any stream failed, else 0.
func (r *Report) ExitCode(failCode int) int {
	switch {
	case r.Fatal:
		return 1
	case !r.Pass:
		return failCode
	default:
		return 0
	}
}
