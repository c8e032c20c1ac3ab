package mpegts

import "fmt"

const (
	packetSize = 188
	syncByte   = 0x47
)

func parsePacket(buf []byte) (*Packet, error) {
	if len(buf) != packetSize {
		return nil, fmt.Errorf("mpegts: packet size %d, expected %d", len(buf), packetSize)
	}
	if buf[0] != syncByte {
		return nil, fmt.Errorf("mpegts: invalid sync byte 0x%02X", buf[0])
	}

	p := &Packet{}
	p.Header.TransportErrorIndicator = buf[1]&0x80 != 0
	p.Header.PayloadUnitStartIndicator = buf[1]&0x40 != 0
	p.Header.PID = uint16(buf[1]&0x1F)<<8 | uint16(buf[2])
	p.Header.HasAdaptationField = buf[3]&0x20 != 0
	p.Header.HasPayload = buf[3]&0x10 != 0
	p.Header.ContinuityCounter = buf[3] & 0x0F

	offset := 4
	if p.Header.HasAdaptationField {
		afLen := int(buf[offset])
		end := offset + 1 + afLen
		if end > packetSize {
			return nil, fmt.Errorf("mpegts: adaptation field length %d overruns packet", afLen)
		}
		if afLen > 0 {
			p.AdaptationField = parseAdaptationField(buf[offset+1 : end])
			p.Header.DiscontinuityIndicator = p.AdaptationField.DiscontinuityIndicator
		}
		offset = end
	}

	if p.Header.HasPayload && offset < packetSize {
		p.Payload = make([]byte, packetSize-offset)
		copy(p.Payload, buf[offset:])
	}

	return p, nil
}

// parseAdaptationField decodes the adaptation field body (after its length
// byte). Optional fields that run past the body are ignored.
func parseAdaptationField(b []byte) *AdaptationField {
	af := &AdaptationField{}
	flags := b[0]
	af.DiscontinuityIndicator = flags&0x80 != 0
	af.RandomAccessIndicator = flags&0x40 != 0
	af.ESPriorityIndicator = flags&0x20 != 0

	offset := 1
	if flags&0x10 != 0 { // PCR
		if offset+6 > len(b) {
			return af
		}
		base := int64(b[offset])<<25 | int64(b[offset+1])<<17 | int64(b[offset+2])<<9 |
			int64(b[offset+3])<<1 | int64(b[offset+4])>>7
		ext := int64(b[offset+4]&0x01)<<8 | int64(b[offset+5])
		af.HasPCR = true
		af.PCR = base*300 + ext
		offset += 6
	}
	if flags&0x08 != 0 { // OPCR
		offset += 6
	}
	if flags&0x04 != 0 { // splice_countdown
		if offset+1 > len(b) {
			return af
		}
		c := int8(b[offset])
		af.SpliceCountdown = &c
		offset++
	}
	if flags&0x02 != 0 { // transport_private_data
		if offset+1 > len(b) {
			return af
		}
		n := int(b[offset])
		offset++
		if offset+n > len(b) {
			return af
		}
		af.PrivateData = make([]byte, n)
		copy(af.PrivateData, b[offset:offset+n])
	}
	return af
}
