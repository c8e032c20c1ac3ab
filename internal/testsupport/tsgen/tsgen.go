// Package tsgen builds synthetic MPEG-TS streams for tests: packets with
// adaptation field flags and private data, PAT/PMT sections with
// descriptors, PES packets with PTS, and whole multi-stream programs
// carrying EBP and SCTE-35 signaling.
package tsgen

import (
	"bytes"

	"github.com/stfn345/ats-ebp-validator/internal/bitio"
)

// PacketSize is the fixed size of an MPEG-TS packet.
const PacketSize = 188

// AF describes the adaptation field of the first packet of a unit.
type AF struct {
	Discontinuity bool
	RandomAccess  bool
	PrivateData   []byte
}

// afBytes returns adaptation_field_length and body for af, padded with
// stuffing to total bytes when total exceeds the minimum.
func afBytes(af *AF, total int) []byte {
	flags := byte(0)
	if af != nil {
		if af.Discontinuity {
			flags |= 0x80
		}
		if af.RandomAccess {
			flags |= 0x40
		}
		if len(af.PrivateData) > 0 {
			flags |= 0x02
		}
	}
	body := []byte{flags}
	if af != nil && len(af.PrivateData) > 0 {
		body = append(body, byte(len(af.PrivateData)))
		body = append(body, af.PrivateData...)
	}
	for 1+len(body) < total {
		body = append(body, 0xFF)
	}
	return append([]byte{byte(len(body))}, body...)
}

// minAFSize is the smallest adaptation field (length byte included) that
// can carry af.
func minAFSize(af *AF) int {
	if af == nil {
		return 0
	}
	n := 2
	if len(af.PrivateData) > 0 {
		n += 1 + len(af.PrivateData)
	}
	return n
}

// Packetize splits unit into packets on pid. The first packet carries PUSI
// and af; the last is padded with adaptation field stuffing. cc is advanced
// once per packet.
func Packetize(pid uint16, cc *uint8, af *AF, unit []byte) []byte {
	var out []byte
	first := true
	for offset := 0; offset < len(unit) || first; {
		var hdrAF *AF
		if first {
			hdrAF = af
		}
		afSize := minAFSize(hdrAF)
		room := PacketSize - 4 - afSize
		n := len(unit) - offset
		if n > room {
			n = room
		}
		if n < room {
			// Stuff the remainder. A one-byte AF is the length byte alone.
			afSize = PacketSize - 4 - n
		}

		pkt := make([]byte, 0, PacketSize)
		pkt = append(pkt, 0x47, byte(pid>>8)&0x1F, byte(pid), 0x10|(*cc&0x0F))
		if first {
			pkt[1] |= 0x40
		}
		switch {
		case afSize == 1 && hdrAF == nil:
			pkt[3] |= 0x20
			pkt = append(pkt, 0x00)
		case afSize > 0:
			pkt[3] |= 0x20
			pkt = append(pkt, afBytes(hdrAF, afSize)...)
		}
		pkt = append(pkt, unit[offset:offset+n]...)
		out = append(out, pkt...)

		*cc = (*cc + 1) & 0x0F
		offset += n
		first = false
	}
	return out
}

// EncodeTimestamp encodes a 33-bit PTS or DTS with its 4-bit prefix.
func EncodeTimestamp(prefix byte, v int64) []byte {
	return []byte{
		prefix<<4 | byte(v>>29)&0x0E | 0x01,
		byte(v >> 22),
		byte(v>>14)&0xFE | 0x01,
		byte(v >> 7),
		byte(v<<1)&0xFE | 0x01,
	}
}

// PES builds a PES packet with a PTS. Video stream ids (0xE0..0xEF) use
// an unbounded packet length.
func PES(streamID byte, pts int64, data []byte) []byte {
	hdr := EncodeTimestamp(0x02, pts)
	length := 3 + len(hdr) + len(data)
	if streamID&0xF0 == 0xE0 || length > 0xFFFF {
		length = 0
	}
	buf := make([]byte, 0, 9+len(hdr)+len(data))
	buf = append(buf, 0x00, 0x00, 0x01, streamID, byte(length>>8), byte(length))
	buf = append(buf, 0x80, 0x80, byte(len(hdr)))
	buf = append(buf, hdr...)
	return append(buf, data...)
}

// Program is one PAT entry.
type Program struct {
	Number uint16
	PMTPID uint16
}

// PATSection builds a PAT section including CRC32.
func PATSection(tsID uint16, programs ...Program) []byte {
	var body []byte
	for _, p := range programs {
		body = append(body, byte(p.Number>>8), byte(p.Number), 0xE0|byte(p.PMTPID>>8)&0x1F, byte(p.PMTPID))
	}
	return section(0x00, tsID, body)
}

// Stream is one PMT elementary stream entry. Descriptors are complete
// tag-length-value descriptors.
type Stream struct {
	Type        uint8
	PID         uint16
	Descriptors [][]byte
}

// PMT describes a program map section.
type PMT struct {
	Program     uint16
	PCRPID      uint16
	Descriptors [][]byte
	Streams     []Stream
}

// Section builds the PMT section including CRC32.
func (p PMT) Section() []byte {
	progInfo := bytes.Join(p.Descriptors, nil)
	body := []byte{0xE0 | byte(p.PCRPID>>8)&0x1F, byte(p.PCRPID), 0xF0 | byte(len(progInfo)>>8)&0x0F, byte(len(progInfo))}
	body = append(body, progInfo...)
	for _, s := range p.Streams {
		info := bytes.Join(s.Descriptors, nil)
		body = append(body, s.Type, 0xE0|byte(s.PID>>8)&0x1F, byte(s.PID), 0xF0|byte(len(info)>>8)&0x0F, byte(len(info)))
		body = append(body, info...)
	}
	return section(0x02, p.Program, body)
}

// section wraps body in a long-form PSI section header with CRC32.
func section(tableID byte, idExt uint16, body []byte) []byte {
	length := 5 + len(body) + 4
	s := []byte{tableID, 0xB0 | byte(length>>8)&0x0F, byte(length), byte(idExt >> 8), byte(idExt), 0xC1, 0x00, 0x00}
	s = append(s, body...)
	return bitio.AppendCRC32(s)
}

// PSIPayload prefixes a section with a zero pointer_field.
func PSIPayload(section []byte) []byte {
	return append([]byte{0x00}, section...)
}

// Descriptor builds a tag-length-value descriptor.
func Descriptor(tag byte, body []byte) []byte {
	return append([]byte{tag, byte(len(body))}, body...)
}

// LanguageDescriptor builds an ISO 639 language descriptor (0x0A).
func LanguageDescriptor(lang string) []byte {
	body := append([]byte(lang), 0x00) // audio_type undefined
	return Descriptor(0x0A, body)
}

// StreamIdentifierDescriptor builds a stream identifier descriptor (0x52).
func StreamIdentifierDescriptor(componentTag byte) []byte {
	return Descriptor(0x52, []byte{componentTag})
}

// ComponentNameDescriptor builds an ATSC component name descriptor (0xA3)
// with one English string segment.
func ComponentNameDescriptor(name string) []byte {
	body := []byte{0x01, 'e', 'n', 'g', 0x01, 0x00, 0x00, byte(len(name))}
	return Descriptor(0xA3, append(body, name...))
}
