// Package mpegts demuxes MPEG-2 transport streams. It discovers programs
// through PAT/PMT sections (with their descriptors), reassembles PES packets
// with PTS/DTS, and exposes the first raw packet of each unit including its
// adaptation field, so callers can inspect random access flags and private
// data. A PacketsParser hook intercepts raw packets before standard parsing.
package mpegts

// Packet is a parsed 188-byte MPEG-TS transport stream packet.
type Packet struct {
	Header          PacketHeader
	AdaptationField *AdaptationField
	Payload         []byte
}

// PacketHeader contains the parsed header fields of a transport stream packet.
type PacketHeader struct {
	PID                       uint16
	ContinuityCounter         uint8
	HasAdaptationField        bool
	HasPayload                bool
	PayloadUnitStartIndicator bool
	TransportErrorIndicator   bool
	DiscontinuityIndicator    bool
}

// AdaptationField holds the adaptation field flags and the transport
// private data bytes, when present.
type AdaptationField struct {
	DiscontinuityIndicator bool
	RandomAccessIndicator  bool
	ESPriorityIndicator    bool
	HasPCR                 bool
	PCR                    int64 // 27 MHz
	SpliceCountdown        *int8
	PrivateData            []byte
}

// DemuxerData is the output of the demuxer for each logical unit (PAT, PMT,
// or PES packet). Exactly one of PAT, PMT, or PES will be non-nil.
type DemuxerData struct {
	FirstPacket *Packet
	PAT         *PATData
	PMT         *PMTData
	PES         *PESData
}

// PATData contains the parsed Program Association Table.
type PATData struct {
	TransportStreamID uint16
	Programs          []*PATProgram
}

// PATProgram maps a program number to its PMT PID.
type PATProgram struct {
	ProgramMapID  uint16
	ProgramNumber uint16
}

// PMTData contains the parsed Program Map Table.
type PMTData struct {
	PID                uint16
	ProgramNumber      uint16
	Version            uint8
	PCRPID             uint16
	ProgramDescriptors []*Descriptor
	ElementaryStreams  []*PMTElementaryStream
}

// PMTElementaryStream describes a single elementary stream in a PMT.
type PMTElementaryStream struct {
	ElementaryPID uint16
	StreamType    uint8
	Descriptors   []*Descriptor
}

// Descriptor is one tag-length-value descriptor from a PMT loop. Value is
// set when a decoder is registered for Tag; Err records its failure.
type Descriptor struct {
	Tag   uint8
	Data  []byte
	Value any
	Err   error
}

// DescriptorDecoder turns a descriptor body into a typed value.
type DescriptorDecoder func(data []byte) (any, error)

// Find returns the first descriptor with tag, or nil.
func (es *PMTElementaryStream) Find(tag uint8) *Descriptor {
	return findDescriptor(es.Descriptors, tag)
}

// Find returns the first program-level descriptor with tag, or nil.
func (pmt *PMTData) Find(tag uint8) *Descriptor {
	return findDescriptor(pmt.ProgramDescriptors, tag)
}

func findDescriptor(ds []*Descriptor, tag uint8) *Descriptor {
	for _, d := range ds {
		if d.Tag == tag {
			return d
		}
	}
	return nil
}

// PESData contains a reassembled Packetized Elementary Stream.
type PESData struct {
	Data   []byte
	Header *PESHeader
}

// PESHeader contains the parsed PES packet header.
type PESHeader struct {
	OptionalHeader *PESOptionalHeader
	StreamID       uint8
}

// PESOptionalHeader carries optional PES fields including timestamps.
type PESOptionalHeader struct {
	DataAlignmentIndicator bool
	PTS                    *ClockReference
	DTS                    *ClockReference
}

// PTS returns the presentation timestamp and whether one is present.
func (p *PESData) PTS() (int64, bool) {
	if p == nil || p.Header == nil || p.Header.OptionalHeader == nil || p.Header.OptionalHeader.PTS == nil {
		return 0, false
	}
	return p.Header.OptionalHeader.PTS.Base, true
}

// ClockReference holds a 33-bit MPEG-TS timestamp base value (90 kHz clock).
type ClockReference struct {
	Base int64
}

// PacketsParser is a callback invoked with accumulated packets for a PID
// before standard parsing. If skip is true, the demuxer skips its own
// parsing for those packets.
type PacketsParser func(ps []*Packet) (ds []*DemuxerData, skip bool, err error)
