package stream

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/stfn345/ats-ebp-validator/internal/media"
)

// ErrNoVideo is returned for a source whose discovery found no video stream.
var ErrNoVideo = errors.New("no video stream")

// Input names one source and what discovery found in it. Err is set when
// discovery failed; the source is then kept without slots.
type Input struct {
	Name      string
	URL       string
	Discovery Discovery
	Err       error
}

// Set is the complete, immutable topology of a run: every source and
// slot, the analysis columns, and the index of implicit dependents.
type Set struct {
	Sources []*Source

	byKey      map[Key]*Slot
	columns    [][]*Slot
	audioCols  []string
	dependents map[depKey][]*Slot
}

type depKey struct {
	source    Key
	partition int
}

// Build creates the sources and slots for inputs and assigns analysis
// columns. Video always forms column 0. Audio columns follow the first-seen
// order of audio identities; when any source carries two audio streams
// with the same identity, audio is keyed by PID instead. If log is nil,
// slog.Default() is used.
func Build(inputs []Input, log *slog.Logger) *Set {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "stream-set")

	byPID := !identitiesUnique(inputs)
	if byPID {
		log.Info("audio identities are not unique, matching audio by PID")
	}

	set := &Set{byKey: make(map[Key]*Slot), dependents: make(map[depKey][]*Slot)}
	colIndex := make(map[string]int)
	for i, in := range inputs {
		src := &Source{Index: i, Name: in.Name, URL: in.URL, SCTE35PIDs: in.Discovery.SCTE35PIDs, Fatal: in.Err}
		set.Sources = append(set.Sources, src)
		if in.Err != nil {
			continue
		}

		video, ok := in.Discovery.Video()
		if !ok {
			src.Fatal = fmt.Errorf("stream: source %q: %w", in.Name, ErrNoVideo)
			continue
		}
		src.Slots = append(src.Slots, newSlotFromProbe(i, video, 0))

		for _, a := range in.Discovery.Audio() {
			id := a.Identity()
			if byPID {
				id = fmt.Sprintf("pid:0x%04X", a.PID)
			}
			col, ok := colIndex[id]
			if !ok {
				set.audioCols = append(set.audioCols, id)
				col = len(set.audioCols)
				colIndex[id] = col
			}
			sl := newSlotFromProbe(i, a, col)
			sl.Identity = id
			src.Slots = append(src.Slots, sl)
		}
	}

	set.columns = make([][]*Slot, 1+len(set.audioCols))
	for _, src := range set.Sources {
		for _, sl := range src.Slots {
			set.byKey[sl.Key] = sl
			set.columns[sl.Column] = append(set.columns[sl.Column], sl)
		}
	}
	return set
}

func newSlotFromProbe(ingest int, p Probe, column int) *Slot {
	sl := NewSlot(Key{Ingest: ingest, PID: p.PID}, p.Kind)
	sl.StreamType = p.StreamType
	sl.Codec = p.Codec
	sl.Column = column
	sl.Language = p.Language
	sl.ComponentName = p.ComponentName
	sl.ComponentTag, sl.HasComponentTag = p.ComponentTag, p.HasComponentTag
	sl.Descriptor = p.Descriptor.Clone()
	sl.FirstEBP = p.FirstEBP.Clone()
	return sl
}

func identitiesUnique(inputs []Input) bool {
	for _, in := range inputs {
		seen := make(map[string]bool)
		for _, a := range in.Discovery.Audio() {
			id := a.Identity()
			if seen[id] {
				return false
			}
			seen[id] = true
		}
	}
	return true
}

// Lookup resolves a slot handle.
func (s *Set) Lookup(k Key) (*Slot, bool) {
	sl, ok := s.byKey[k]
	return sl, ok
}

// Columns returns the analysis columns. Column 0 is video.
func (s *Set) Columns() [][]*Slot { return s.columns }

// ColumnName describes column i.
func (s *Set) ColumnName(i int) string {
	if i == 0 {
		return media.KindVideo.String()
	}
	if i-1 < len(s.audioCols) {
		return "audio " + s.audioCols[i-1]
	}
	return fmt.Sprintf("column %d", i)
}

// Slots returns every slot of every source.
func (s *Set) Slots() []*Slot {
	var out []*Slot
	for _, src := range s.Sources {
		out = append(out, src.Slots...)
	}
	return out
}

// Index records, for every implicit partition, the slot it mirrors. Call
// it once after all slots are configured.
func (s *Set) Index() {
	s.dependents = make(map[depKey][]*Slot)
	for _, sl := range s.Slots() {
		for _, p := range sl.Partitions {
			if p.Boundary && p.Implicit {
				k := depKey{source: p.Source, partition: p.ID}
				s.dependents[k] = append(s.dependents[k], sl)
			}
		}
	}
}

// Dependents returns the slots whose partition id mirrors the boundaries
// of the slot at k.
func (s *Set) Dependents(k Key, partition int) []*Slot {
	return s.dependents[depKey{source: k, partition: partition}]
}
