package tsgen

// AVCAccessUnit returns an H.264 Annex B access unit: an AUD followed by
// SPS, PPS and an IDR slice when idr is set, else a non-IDR slice.
func AVCAccessUnit(idr bool) []byte {
	au := []byte{0x00, 0x00, 0x00, 0x01, 0x09, 0xF0}
	if idr {
		au = append(au, 0x00, 0x00, 0x00, 0x01, 0x67, 0x64, 0x00, 0x1F, 0xAC)
		au = append(au, 0x00, 0x00, 0x00, 0x01, 0x68, 0xEE, 0x3C, 0x80)
		return append(au, 0x00, 0x00, 0x01, 0x65, 0x88, 0x84, 0x00, 0x10)
	}
	return append(au, 0x00, 0x00, 0x01, 0x41, 0x9A, 0x02, 0x04)
}

// HEVCAccessUnit returns an H.265 access unit with one slice of nalType.
func HEVCAccessUnit(nalType byte) []byte {
	au := []byte{0x00, 0x00, 0x00, 0x01, 0x46, 0x01, 0x50}
	return append(au, 0x00, 0x00, 0x01, nalType<<1, 0x01, 0xAF, 0x10)
}

// ADTSFrame returns one AAC-LC 48 kHz stereo ADTS frame with a small payload.
func ADTSFrame() []byte {
	payload := []byte{0x21, 0x10, 0x05, 0x00}
	n := 7 + len(payload)
	hdr := []byte{
		0xFF, 0xF1,
		0x40 | 3<<2, // AAC-LC, 48 kHz
		2<<6 | byte(n>>11)&0x03,
		byte(n >> 3),
		byte(n&0x07)<<5 | 0x1F,
		0xFC,
	}
	return append(hdr, payload...)
}

// AC3Frame returns the start of an AC-3 syncframe.
func AC3Frame() []byte {
	return []byte{0x0B, 0x77, 0x4E, 0x1D, 0x14, 0x40, 0x2F, 0x84}
}
