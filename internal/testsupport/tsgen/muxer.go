package tsgen

import (
	"bytes"

	"github.com/stfn345/ats-ebp-validator/internal/ebp"
	"github.com/stfn345/ats-ebp-validator/internal/scte35"
)

// Muxer appends packets to an in-memory transport stream, keeping one
// continuity counter per PID.
type Muxer struct {
	buf bytes.Buffer
	cc  map[uint16]uint8
}

// NewMuxer returns an empty Muxer.
func NewMuxer() *Muxer {
	return &Muxer{cc: make(map[uint16]uint8)}
}

// Section writes a PSI or splice_info section on pid.
func (m *Muxer) Section(pid uint16, section []byte) {
	cc := m.cc[pid]
	m.buf.Write(Packetize(pid, &cc, nil, PSIPayload(section)))
	m.cc[pid] = cc
}

// PES writes a PES packet on pid. af applies to its first packet.
func (m *Muxer) PES(pid uint16, streamID byte, pts int64, data []byte, af *AF) {
	cc := m.cc[pid]
	m.buf.Write(Packetize(pid, &cc, af, PES(streamID, pts, data)))
	m.cc[pid] = cc
}

// Raw writes pre-built packets.
func (m *Muxer) Raw(pkts []byte) { m.buf.Write(pkts) }

// Bytes returns the stream built so far.
func (m *Muxer) Bytes() []byte { return m.buf.Bytes() }

// Splice schedules a splice_insert carried on the scenario's splice PID.
type Splice struct {
	PTS int64
	// Program selects a program splice; otherwise ComponentTag names the
	// component.
	Program      bool
	ComponentTag uint8
	// EmitBefore is how long before PTS the section is sent. Default 2 s.
	EmitBefore int64
}

// Scenario describes a single-program stream with one H.264 video PID, an
// optional AAC audio PID and EBP boundaries on a fixed frame cadence.
type Scenario struct {
	PMTPID, VideoPID, AudioPID, SCTE35PID uint16

	Frames        int   // video frames
	FrameTicks    int64 // 90 kHz ticks per video frame, default 3000
	AudioTicks    int64 // ticks per audio frame, default 1920
	StartPTS      int64 // default 900000
	FragmentEvery int   // frames between fragment boundaries, default 30
	SegmentEvery  int   // frames between segment boundaries, default 60
	PSIEvery      int   // frames between PAT/PMT repeats, default 30

	NoAudio  bool
	AudioEBP bool // audio carries explicit EBP after each video boundary
	// AudioShift is added to every audio PTS.
	AudioShift int64
	Language   string

	VideoComponentTag, AudioComponentTag uint8
	VideoDescriptor, AudioDescriptor     *ebp.Descriptor

	// NoVideoEBP drops the EBP structures from video boundaries.
	NoVideoEBP bool

	Splices []Splice
}

func (s *Scenario) defaults() {
	if s.PMTPID == 0 {
		s.PMTPID = 0x1000
	}
	if s.VideoPID == 0 {
		s.VideoPID = 0x100
	}
	if s.AudioPID == 0 {
		s.AudioPID = 0x101
	}
	if s.SCTE35PID == 0 {
		s.SCTE35PID = 0x1F0
	}
	if s.FrameTicks == 0 {
		s.FrameTicks = 3000
	}
	if s.AudioTicks == 0 {
		s.AudioTicks = 1920
	}
	if s.StartPTS == 0 {
		s.StartPTS = 900000
	}
	if s.FragmentEvery == 0 {
		s.FragmentEvery = 30
	}
	if s.SegmentEvery == 0 {
		s.SegmentEvery = 60
	}
	if s.PSIEvery == 0 {
		s.PSIEvery = 30
	}
	if s.Language == "" {
		s.Language = "eng"
	}
}

// PMT returns the program map the scenario announces.
func (s Scenario) PMT() PMT {
	s.defaults()
	video := Stream{Type: 0x1B, PID: s.VideoPID}
	if s.VideoComponentTag != 0 {
		video.Descriptors = append(video.Descriptors, StreamIdentifierDescriptor(s.VideoComponentTag))
	}
	if s.VideoDescriptor != nil {
		video.Descriptors = append(video.Descriptors, s.VideoDescriptor.Encode())
	}
	p := PMT{Program: 1, PCRPID: s.VideoPID, Streams: []Stream{video}}

	if !s.NoAudio {
		audio := Stream{Type: 0x0F, PID: s.AudioPID, Descriptors: [][]byte{LanguageDescriptor(s.Language)}}
		if s.AudioComponentTag != 0 {
			audio.Descriptors = append(audio.Descriptors, StreamIdentifierDescriptor(s.AudioComponentTag))
		}
		if s.AudioDescriptor != nil {
			audio.Descriptors = append(audio.Descriptors, s.AudioDescriptor.Encode())
		}
		p.Streams = append(p.Streams, audio)
	}
	if len(s.Splices) > 0 {
		p.Streams = append(p.Streams, Stream{Type: scte35.StreamType, PID: s.SCTE35PID})
	}
	return p
}

// VideoBoundaryPTS returns the PTS of every video frame that carries a
// fragment boundary.
func (s Scenario) VideoBoundaryPTS() []int64 {
	s.defaults()
	var out []int64
	for i := 0; i < s.Frames; i += s.FragmentEvery {
		out = append(out, s.StartPTS+int64(i)*s.FrameTicks)
	}
	return out
}

// Build muxes the scenario in PTS order, video before audio on ties.
func (s Scenario) Build() []byte {
	s.defaults()
	m := NewMuxer()
	pmt := s.PMT().Section()
	pat := PATSection(1, Program{Number: 1, PMTPID: s.PMTPID})

	audioFrames := 0
	if !s.NoAudio {
		audioFrames = int(int64(s.Frames) * s.FrameTicks / s.AudioTicks)
	}
	splices := append([]Splice(nil), s.Splices...)

	var pendingAudio *ebp.EBP
	v, a := 0, 0
	for v < s.Frames || a < audioFrames {
		vPTS := s.StartPTS + int64(v)*s.FrameTicks
		aPTS := s.StartPTS + s.AudioShift + int64(a)*s.AudioTicks

		if v < s.Frames && (a >= audioFrames || vPTS <= aPTS) {
			if v%s.PSIEvery == 0 {
				m.Section(0x0000, pat)
				m.Section(s.PMTPID, pmt)
			}
			splices = s.emitSplices(m, splices, vPTS)

			boundary := v%s.FragmentEvery == 0
			var af *AF
			if boundary {
				e := &ebp.EBP{FragmentFlag: true, SegmentFlag: v%s.SegmentEvery == 0, SAPFlag: true, SAPType: 1}
				af = &AF{RandomAccess: true}
				if !s.NoVideoEBP {
					af.PrivateData = e.EncodePrivateData()
				}
				if s.AudioEBP {
					pendingAudio = e
				}
			}
			m.PES(s.VideoPID, 0xE0, vPTS, AVCAccessUnit(boundary), af)
			v++
			continue
		}

		var af *AF
		if pendingAudio != nil {
			ae := &ebp.EBP{FragmentFlag: pendingAudio.FragmentFlag, SegmentFlag: pendingAudio.SegmentFlag}
			af = &AF{RandomAccess: true, PrivateData: ae.EncodePrivateData()}
			pendingAudio = nil
		}
		m.PES(s.AudioPID, 0xC0, aPTS, ADTSFrame(), af)
		a++
	}
	return m.Bytes()
}

// emitSplices writes every pending splice whose emit time has been reached
// and returns the rest.
func (s Scenario) emitSplices(m *Muxer, pending []Splice, now int64) []Splice {
	rest := pending[:0]
	for _, sp := range pending {
		before := sp.EmitBefore
		if before == 0 {
			before = 2 * 90000
		}
		if now < sp.PTS-before {
			rest = append(rest, sp)
			continue
		}
		m.Section(s.SCTE35PID, SpliceSection(sp))
	}
	return rest
}

// SpliceSection encodes sp as a splice_insert section.
func SpliceSection(sp Splice) []byte {
	pts := uint64(sp.PTS)
	cmd := &scte35.SpliceInsert{SpliceEventID: 1, OutOfNetworkIndicator: true, UniqueProgramID: 1}
	if sp.Program {
		cmd.ProgramSpliceFlag = true
		cmd.SpliceTime = scte35.SpliceTime{PTSTime: &pts}
	} else {
		cmd.Components = []scte35.SpliceComponent{{Tag: sp.ComponentTag, SpliceTime: scte35.SpliceTime{PTSTime: &pts}}}
	}
	sis := scte35.SpliceInfoSection{Tier: 0xFFF, SpliceCommand: cmd}
	raw, err := sis.Encode()
	if err != nil {
		panic(err)
	}
	return raw
}
