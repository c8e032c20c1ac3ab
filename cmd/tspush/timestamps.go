package main

import (
	"github.com/stfn345/ats-ebp-validator/internal/media"
)

const packetSize = 188

// stamp is the byte offset of a PTS, DTS or PCR field in a TS buffer.
type stamp struct {
	offset int
	pcr    bool
}

// timeline lists every timestamp field of a file and the span of its
// video PTS values.
type timeline struct {
	stamps []stamp
	// first and last video PTS, and the smallest positive gap between
	// consecutive video PTS values.
	first, last, frame int64
	hasVideo           bool
}

// span returns the presentation length of one pass over the file in
// 90 kHz ticks.
func (tl timeline) span() int64 {
	if !tl.hasVideo {
		return 0
	}
	return media.PTSDiff(tl.last, tl.first) + tl.frame
}

// scan walks data packet by packet and records every timestamp field.
func scan(data []byte) timeline {
	var tl timeline
	prev := int64(-1)
	for off := 0; off+packetSize <= len(data); off += packetSize {
		pkt := data[off : off+packetSize]
		if pkt[0] != 0x47 {
			continue
		}
		payload := 4
		if pkt[3]&0x20 != 0 {
			afLen := int(pkt[4])
			if afLen >= 7 && pkt[5]&0x10 != 0 {
				tl.stamps = append(tl.stamps, stamp{offset: off + 6, pcr: true})
			}
			payload += 1 + afLen
		}
		if pkt[1]&0x40 == 0 || pkt[3]&0x10 == 0 || payload+14 > packetSize {
			continue
		}
		pes := pkt[payload:]
		if pes[0] != 0 || pes[1] != 0 || pes[2] != 1 {
			continue
		}
		sid := pes[3]
		video := sid >= 0xE0 && sid <= 0xEF
		if !video && (sid < 0xC0 || sid > 0xDF) && sid != 0xBD {
			continue
		}
		flags := pes[7]
		if flags&0x80 == 0 {
			continue
		}
		ptsOff := off + payload + 9
		tl.stamps = append(tl.stamps, stamp{offset: ptsOff})
		if flags&0x40 != 0 && payload+19 <= packetSize {
			tl.stamps = append(tl.stamps, stamp{offset: ptsOff + 5})
		}
		if !video {
			continue
		}
		pts := decodePTS(data[ptsOff:])
		if !tl.hasVideo {
			tl.first, tl.last, tl.hasVideo = pts, pts, true
		} else if media.PTSAfter(pts, tl.last) {
			tl.last = pts
		}
		if prev >= 0 {
			if gap := media.PTSDiff(pts, prev); gap > 0 && (tl.frame == 0 || gap < tl.frame) {
				tl.frame = gap
			}
		}
		prev = pts
	}
	return tl
}

// shift adds delta ticks to every recorded timestamp of data in place.
func (tl timeline) shift(data []byte, delta int64) {
	for _, s := range tl.stamps {
		b := data[s.offset:]
		if s.pcr {
			encodePCR(b, media.PTSAdd(decodePCR(b), delta))
		} else {
			encodePTS(b, media.PTSAdd(decodePTS(b), delta))
		}
	}
}

func decodePTS(b []byte) int64 {
	return int64(b[0]>>1&0x07)<<30 |
		int64(b[1])<<22 |
		int64(b[2]>>1)<<15 |
		int64(b[3])<<7 |
		int64(b[4]>>1)
}

// encodePTS keeps the 4-bit prefix of b[0].
func encodePTS(b []byte, pts int64) {
	b[0] = b[0]&0xF0 | byte(pts>>29)&0x0E | 0x01
	b[1] = byte(pts >> 22)
	b[2] = byte(pts>>14)&0xFE | 0x01
	b[3] = byte(pts >> 7)
	b[4] = byte(pts<<1)&0xFE | 0x01
}

// decodePCR returns the 90 kHz base of a PCR field.
func decodePCR(b []byte) int64 {
	return int64(b[0])<<25 | int64(b[1])<<17 | int64(b[2])<<9 | int64(b[3])<<1 | int64(b[4]>>7)
}

// encodePCR keeps the 9-bit extension.
func encodePCR(b []byte, base int64) {
	b[0] = byte(base >> 25)
	b[1] = byte(base >> 17)
	b[2] = byte(base >> 9)
	b[3] = byte(base >> 1)
	b[4] = byte(base&1)<<7 | 0x7E | b[4]&0x01
}
