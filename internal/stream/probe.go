package stream

import (
	"encoding/hex"
	"strings"

	"github.com/stfn345/ats-ebp-validator/internal/demux"
	"github.com/stfn345/ats-ebp-validator/internal/ebp"
	"github.com/stfn345/ats-ebp-validator/internal/media"
)

// Probe describes one elementary stream found while discovering a source.
type Probe struct {
	PID        uint16
	StreamType uint8
	Kind       media.Kind
	Codec      demux.Codec

	Language      string
	ComponentName string
	// CodecDescriptor holds the raw codec-specific descriptors (AC-3,
	// E-AC-3, AAC) distinguishing otherwise identical audio streams.
	CodecDescriptor []byte

	ComponentTag    uint8
	HasComponentTag bool

	Descriptor *ebp.Descriptor
	FirstEBP   *ebp.EBP
}

// Identity is the audio identity used to line audio streams up across
// sources: language, component name and codec descriptor bytes.
func (p Probe) Identity() string {
	return strings.Join([]string{p.Language, p.ComponentName, hex.EncodeToString(p.CodecDescriptor)}, "/")
}

// Discovery is what a discovery pass learned about one source.
type Discovery struct {
	Streams    []Probe
	SCTE35PIDs []uint16
}

// Video returns the first video probe.
func (d Discovery) Video() (Probe, bool) {
	for _, p := range d.Streams {
		if p.Kind == media.KindVideo {
			return p, true
		}
	}
	return Probe{}, false
}

// Audio returns the audio probes in PMT order.
func (d Discovery) Audio() []Probe {
	var out []Probe
	for _, p := range d.Streams {
		if p.Kind == media.KindAudio {
			out = append(out, p)
		}
	}
	return out
}
