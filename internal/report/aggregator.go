// Package report collects boundary events and findings from every worker
// of a run and renders the final per-source, per-stream verdict.
package report

import (
	"fmt"
	"log/slog"
	"sync"
)

// Kind classifies a finding.
type Kind int

const (
	// KindConformance is an expected-versus-observed mismatch in boundary,
	// splice or timing signaling.
	KindConformance Kind = iota
	// KindStructural is malformed data that could not be interpreted.
	KindStructural
	// KindSetup is a failure to open, discover or configure a source.
	KindSetup
)

// Kinds lists every finding kind.
var Kinds = []Kind{KindConformance, KindStructural, KindSetup}

func (k Kind) String() string {
	switch k {
	case KindConformance:
		return "conformance"
	case KindStructural:
		return "structural"
	case KindSetup:
		return "setup"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText decodes a kind name.
func (k *Kind) UnmarshalText(b []byte) error {
	for _, c := range Kinds {
		if c.String() == string(b) {
			*k = c
			return nil
		}
	}
	return fmt.Errorf("report: unknown finding kind %q", b)
}

// NoPartition marks a finding that is not tied to a partition.
const NoPartition = -1

// Finding is one recorded failure.
type Finding struct {
	Kind      Kind   `json:"kind"`
	Source    int    `json:"source"`
	PID       uint16 `json:"pid,omitempty"`
	Partition int    `json:"partition"`
	PTS       *int64 `json:"pts,omitempty"`
	Message   string `json:"message"`
}

// BoundaryEvent is one detected boundary.
type BoundaryEvent struct {
	Source    int    `json:"source"`
	PID       uint16 `json:"pid"`
	Partition int    `json:"partition"`
	PTS       int64  `json:"pts"`
	SAPType   uint8  `json:"sapType"`
	Implicit  bool   `json:"implicit"`
	Video     bool   `json:"video"`
}

// Note is an informational log entry.
type Note struct {
	Source  int    `json:"source"`
	Message string `json:"message"`
}

// Observer is told about every event as it is recorded.
type Observer interface {
	ObserveBoundary(ev BoundaryEvent)
	ObserveFinding(f Finding)
}

// Aggregator is the append-only sink shared by all workers.
type Aggregator struct {
	log *slog.Logger
	obs Observer

	mu         sync.Mutex
	boundaries []BoundaryEvent
	findings   []Finding
	notes      []Note
}

// NewAggregator creates an empty aggregator. obs may be nil. If log is nil,
// slog.Default() is used.
func NewAggregator(log *slog.Logger, obs Observer) *Aggregator {
	if log == nil {
		log = slog.Default()
	}
	return &Aggregator{log: log.With("component", "report"), obs: obs}
}

// Boundary records a boundary event.
func (a *Aggregator) Boundary(ev BoundaryEvent) {
	a.mu.Lock()
	a.boundaries = append(a.boundaries, ev)
	a.mu.Unlock()

	a.log.Debug("boundary", "source", ev.Source, "pid", ev.PID, "partition", ev.Partition,
		"pts", ev.PTS, "sap", ev.SAPType, "implicit", ev.Implicit)
	if a.obs != nil {
		a.obs.ObserveBoundary(ev)
	}
}

// Failure records a finding.
func (a *Aggregator) Failure(f Finding) {
	a.mu.Lock()
	a.findings = append(a.findings, f)
	a.mu.Unlock()

	attrs := []any{"kind", f.Kind, "source", f.Source, "pid", f.PID}
	if f.Partition != NoPartition {
		attrs = append(attrs, "partition", f.Partition)
	}
	if f.PTS != nil {
		attrs = append(attrs, "pts", *f.PTS)
	}
	a.log.Warn(f.Message, attrs...)
	if a.obs != nil {
		a.obs.ObserveFinding(f)
	}
}

// Info records an informational note.
func (a *Aggregator) Info(source int, format string, args ...any) {
	n := Note{Source: source, Message: fmt.Sprintf(format, args...)}
	a.mu.Lock()
	a.notes = append(a.notes, n)
	a.mu.Unlock()
	a.log.Info(n.Message, "source", source)
}

// Boundaries returns a copy of the boundary events in arrival order.
func (a *Aggregator) Boundaries() []BoundaryEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]BoundaryEvent(nil), a.boundaries...)
}

// Findings returns a copy of the findings in arrival order.
func (a *Aggregator) Findings() []Finding {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Finding(nil), a.findings...)
}

// Notes returns a copy of the informational notes.
func (a *Aggregator) Notes() []Note {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Note(nil), a.notes...)
}

// Count returns the number of findings of kind k.
func (a *Aggregator) Count(k Kind) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, f := range a.findings {
		if f.Kind == k {
			n++
		}
	}
	return n
}

// PTS returns a pointer to v for Finding.PTS.
func PTS(v int64) *int64 { return &v }
