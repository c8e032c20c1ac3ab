package demux

// H.264 NAL unit types (ITU-T H.264 Table 7-1).
const (
	NALTypeSlice = 1
	NALTypeIDR   = 5
	NALTypeSEI   = 6
	NALTypeSPS   = 7
	NALTypePPS   = 8
	NALTypeAUD   = 9
)

// H.265 NAL unit types (ITU-T H.265 Table 7-1).
const (
	HEVCNALBlaWLP   = 16
	HEVCNALBlaNLP   = 18
	HEVCNALIDRWRadl = 19
	HEVCNALIDRNlp   = 20
	HEVCNALCraNut   = 21
	HEVCNALVPS      = 32
	HEVCNALSPS      = 33
	HEVCNALPPS      = 34
	HEVCNALAUD      = 35
)

// NALUnit is one NAL unit found in an Annex B byte stream.
type NALUnit struct {
	Type byte   // 5-bit for H.264, 6-bit for H.265
	Data []byte // NAL header and payload, without start code
}

// HEVCNALType extracts the type from the first byte of a 2-byte HEVC NAL
// header: forbidden(1) type(6) layer_id_high(1).
func HEVCNALType(firstByte byte) byte {
	return (firstByte >> 1) & 0x3F
}

// ParseAnnexB splits an H.264 Annex B byte stream into NAL units.
func ParseAnnexB(data []byte) []NALUnit {
	return scanAnnexB(data, 1, func(d []byte) byte { return d[0] & 0x1F })
}

// ParseAnnexBHEVC splits an H.265 Annex B byte stream into NAL units.
func ParseAnnexBHEVC(data []byte) []NALUnit {
	return scanAnnexB(data, 2, func(d []byte) byte { return HEVCNALType(d[0]) })
}

// scanAnnexB finds 3- and 4-byte start codes and returns the units between
// them. Units shorter than minLen bytes are dropped.
func scanAnnexB(data []byte, minLen int, nalType func([]byte) byte) []NALUnit {
	n := len(data)
	if n < 4 {
		return nil
	}

	type span struct{ start, body int }
	var spans []span
	for i := 0; i < n-2; {
		if data[i] == 0 && data[i+1] == 0 {
			if i < n-3 && data[i+2] == 0 && data[i+3] == 1 {
				spans = append(spans, span{i, i + 4})
				i += 4
				continue
			}
			if data[i+2] == 1 {
				spans = append(spans, span{i, i + 3})
				i += 3
				continue
			}
		}
		i++
	}

	var units []NALUnit
	for idx, s := range spans {
		end := n
		if idx+1 < len(spans) {
			end = spans[idx+1].start
		}
		if end-s.body < minLen {
			continue
		}
		body := data[s.body:end]
		units = append(units, NALUnit{Type: nalType(body), Data: body})
	}
	return units
}
