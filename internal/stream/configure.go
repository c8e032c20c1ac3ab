package stream

import (
	"errors"
	"fmt"

	"github.com/stfn345/ats-ebp-validator/internal/ebp"
	"github.com/stfn345/ats-ebp-validator/internal/media"
)

var (
	// ErrNoBoundaryConfig is returned when a slot has neither an EBP
	// descriptor, an EBP structure, nor a video stream to inherit from.
	ErrNoBoundaryConfig = errors.New("no EBP descriptor or EBP structure")
	// ErrImplicitSource is returned when a descriptor names an implicit
	// source PID that is not a stream of the same source.
	ErrImplicitSource = errors.New("implicit partition source not found")
)

// ConfigSource says which signaling a slot's partition table came from.
type ConfigSource int

// Partition configuration origins, in priority order.
const (
	ConfigNone ConfigSource = iota
	ConfigDescriptor
	ConfigFirstEBP
	ConfigInherited
)

func (c ConfigSource) String() string {
	switch c {
	case ConfigDescriptor:
		return "descriptor"
	case ConfigFirstEBP:
		return "ebp"
	case ConfigInherited:
		return "inherited"
	default:
		return "none"
	}
}

// Configure fills the partition table of sl from, in order: its EBP
// descriptor, its first EBP structure, or, for audio, the boundary
// partitions of the source's video slot (implicit, sourced from video).
// With forceAudioImplicit audio always inherits from video.
//
// Configure must run once per slot before ingest starts, video first.
func Configure(src *Source, sl *Slot, forceAudioImplicit bool) (ConfigSource, error) {
	c, err := configure(src, sl, forceAudioImplicit)
	sl.Config = c
	return c, err
}

func configure(src *Source, sl *Slot, forceAudioImplicit bool) (ConfigSource, error) {
	audio := sl.Kind == media.KindAudio
	inherit := audio && forceAudioImplicit

	switch {
	case sl.Descriptor != nil && !inherit:
		for _, dp := range sl.Descriptor.Partitions {
			if !dp.Explicit && src.Slot(dp.EBPPID) == nil {
				return ConfigNone, fmt.Errorf("stream: %s partition %d names PID 0x%04X: %w",
					sl.Label(), dp.ID, dp.EBPPID, ErrImplicitSource)
			}
		}
		for _, dp := range sl.Descriptor.Partitions {
			p := sl.Partitions[dp.ID]
			p.Boundary = true
			p.SAPTypeMax = dp.SAPTypeMax
			if !dp.Explicit {
				p.Implicit = true
				p.Source = Key{Ingest: src.Index, PID: dp.EBPPID}
			}
		}
		return ConfigDescriptor, nil

	case sl.FirstEBP != nil && !inherit:
		for _, id := range sl.FirstEBP.Partitions() {
			sl.Partitions[id].Boundary = true
		}
		return ConfigFirstEBP, nil

	case audio:
		video := src.Video()
		if video == nil || len(video.BoundaryPartitions()) == 0 {
			return ConfigNone, fmt.Errorf("stream: %s: %w", sl.Label(), ErrNoBoundaryConfig)
		}
		for _, id := range video.BoundaryPartitions() {
			p := sl.Partitions[id]
			p.Boundary = true
			p.Implicit = true
			p.Source = video.Key
		}
		return ConfigInherited, nil
	}
	return ConfigNone, fmt.Errorf("stream: %s: %w", sl.Label(), ErrNoBoundaryConfig)
}

// HasExplicit reports whether partition id is configured as an explicit
// boundary, which is what an EBP flag on the slot requires.
func (s *Slot) HasExplicit(id int) bool {
	if id < 0 || id >= ebp.MaxPartitions {
		return false
	}
	p := s.Partitions[id]
	return p.Boundary && !p.Implicit
}
