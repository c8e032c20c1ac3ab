// Package stream holds the validation data model: ingest sources, their
// elementary stream slots, per-slot partition tables, and the set that
// resolves cross-source references and analysis columns.
package stream

import (
	"fmt"
	"sync/atomic"

	"github.com/stfn345/ats-ebp-validator/internal/demux"
	"github.com/stfn345/ats-ebp-validator/internal/ebp"
	"github.com/stfn345/ats-ebp-validator/internal/media"
	"github.com/stfn345/ats-ebp-validator/internal/queue"
)

// Key identifies a slot by ingest index and PID. Partitions refer to other
// slots by Key and resolve them through Set.Lookup.
type Key struct {
	Ingest int
	PID    uint16
}

func (k Key) String() string {
	return fmt.Sprintf("%d/0x%04X", k.Ingest, k.PID)
}

// Slot is one elementary stream of one ingest source.
type Slot struct {
	Key        Key
	Kind       media.Kind
	StreamType uint8
	Codec      demux.Codec
	// Column is the analysis column the slot belongs to; 0 is video.
	Column   int
	Identity string

	Language        string
	ComponentName   string
	ComponentTag    uint8
	HasComponentTag bool

	Descriptor *ebp.Descriptor
	FirstEBP   *ebp.EBP

	Queue      *queue.Queue
	Partitions [ebp.MaxPartitions]*Partition
	Config     ConfigSource

	boundaries atomic.Int64
	failed     atomic.Bool

	// Owned by the ingest worker of the slot's source.
	lastVideoChunkPTS int64
	hasLastVideoChunk bool
}

// NewSlot returns a slot with an empty queue and a partition table in
// which no partition is a boundary.
func NewSlot(key Key, kind media.Kind) *Slot {
	s := &Slot{Key: key, Kind: kind, Queue: queue.New()}
	for i := range s.Partitions {
		s.Partitions[i] = &Partition{ID: i}
	}
	return s
}

// Fail marks the slot failed. It reports whether this call changed the
// state; a failed slot never passes again.
func (s *Slot) Fail() bool { return s.failed.CompareAndSwap(false, true) }

// Failed reports whether the slot has failed.
func (s *Slot) Failed() bool { return s.failed.Load() }

// CountBoundary increments the boundary counter and returns the new value.
func (s *Slot) CountBoundary() int64 { return s.boundaries.Add(1) }

// Boundaries returns the number of boundaries detected on the slot.
func (s *Slot) Boundaries() int64 { return s.boundaries.Load() }

// SetLastVideoChunk records the PTS of the latest video boundary of the
// slot's source.
func (s *Slot) SetLastVideoChunk(pts int64) {
	s.lastVideoChunkPTS, s.hasLastVideoChunk = pts, true
}

// LastVideoChunk returns the PTS recorded by SetLastVideoChunk.
func (s *Slot) LastVideoChunk() (int64, bool) {
	return s.lastVideoChunkPTS, s.hasLastVideoChunk
}

// BoundaryPartitions returns the ids of partitions configured as boundaries.
func (s *Slot) BoundaryPartitions() []int {
	var ids []int
	for _, p := range s.Partitions {
		if p.Boundary {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

// Label names the slot for logs and reports.
func (s *Slot) Label() string {
	return fmt.Sprintf("%s %s 0x%04X", s.Kind, s.Codec, s.Key.PID)
}

// Source is one ingest input and the slots discovered in it.
type Source struct {
	Index int
	Name  string
	URL   string
	// Slots lists the video slot first.
	Slots      []*Slot
	SCTE35PIDs []uint16
	// Fatal records the setup error that stopped the source, if any.
	Fatal error
}

// Video returns the source's video slot.
func (s *Source) Video() *Slot {
	if len(s.Slots) > 0 && s.Slots[0].Kind == media.KindVideo {
		return s.Slots[0]
	}
	return nil
}

// Slot returns the slot carried on pid.
func (s *Source) Slot(pid uint16) *Slot {
	for _, sl := range s.Slots {
		if sl.Key.PID == pid {
			return sl
		}
	}
	return nil
}

// SlotByComponentTag returns the slot whose stream identifier descriptor
// carries tag.
func (s *Source) SlotByComponentTag(tag uint8) *Slot {
	for _, sl := range s.Slots {
		if sl.HasComponentTag && sl.ComponentTag == tag {
			return sl
		}
	}
	return nil
}
