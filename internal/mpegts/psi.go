package mpegts

import (
	"fmt"

	"github.com/stfn345/ats-ebp-validator/internal/bitio"
)

const (
	tableIDPAT = 0x00
	tableIDPMT = 0x02

	// StreamTypeSCTE35 marks a PID carrying SCTE-35 splice_info_sections.
	// The demuxer treats such PIDs as section PIDs.
	StreamTypeSCTE35 = 0x86
)

func isPSIPayload(pid uint16, pm *programMap) bool {
	return pid == pidPAT || pm.isSectionPID(pid)
}

func parsePSI(payload []byte, pid uint16, firstPacket *Packet, decoders map[uint8]DescriptorDecoder) ([]*DemuxerData, error) {
	if len(payload) < 1 {
		return nil, fmt.Errorf("mpegts: PSI payload too short")
	}

	pointerField := int(payload[0])
	offset := 1 + pointerField
	if offset >= len(payload) {
		return nil, fmt.Errorf("mpegts: PSI pointer field out of range")
	}

	var results []*DemuxerData
	for offset+3 <= len(payload) {
		tableID := payload[offset]
		if tableID == 0xFF {
			break // stuffing
		}
		// PAT and PMT are long-form sections. Padding has the bit clear.
		if payload[offset+1]&0x80 == 0 {
			break
		}

		sectionLength := int(payload[offset+1]&0x0F)<<8 | int(payload[offset+2])
		sectionEnd := offset + 3 + sectionLength
		if sectionEnd > len(payload) {
			break
		}
		section := payload[offset:sectionEnd]

		switch tableID {
		case tableIDPAT:
			pat, err := parsePATSection(section)
			if err != nil {
				return results, err
			}
			results = append(results, &DemuxerData{FirstPacket: firstPacket, PAT: pat})

		case tableIDPMT:
			pmt, err := parsePMTSection(section, decoders)
			if err != nil {
				return results, err
			}
			pmt.PID = pid
			results = append(results, &DemuxerData{FirstPacket: firstPacket, PMT: pmt})
		}

		offset = sectionEnd
	}

	return results, nil
}

func parsePATSection(data []byte) (*PATData, error) {
	if err := bitio.VerifyCRC32(data); err != nil {
		return nil, fmt.Errorf("mpegts: PAT %w", err)
	}

	// [0] table_id, [1-2] flags + section_length, [3-4] transport_stream_id,
	// [5] version, [6-7] section numbers, [8..N-4] programs, [N-4..N] CRC32.
	if len(data) < 12 {
		return nil, fmt.Errorf("mpegts: PAT too short")
	}

	pat := &PATData{TransportStreamID: uint16(data[3])<<8 | uint16(data[4])}
	for i := 8; i+4 <= len(data)-4; i += 4 {
		programNumber := uint16(data[i])<<8 | uint16(data[i+1])
		pmtPID := uint16(data[i+2]&0x1F)<<8 | uint16(data[i+3])
		if programNumber == 0 {
			continue // network PID
		}
		pat.Programs = append(pat.Programs, &PATProgram{
			ProgramNumber: programNumber,
			ProgramMapID:  pmtPID,
		})
	}
	return pat, nil
}

func parsePMTSection(data []byte, decoders map[uint8]DescriptorDecoder) (*PMTData, error) {
	if err := bitio.VerifyCRC32(data); err != nil {
		return nil, fmt.Errorf("mpegts: PMT %w", err)
	}

	// [0] table_id, [1-2] flags + section_length, [3-4] program_number,
	// [5] version, [6-7] section numbers, [8-9] PCR_PID,
	// [10-11] program_info_length, program descriptors, ES loop, CRC32.
	if len(data) < 16 {
		return nil, fmt.Errorf("mpegts: PMT too short")
	}

	end := len(data) - 4
	pmt := &PMTData{
		ProgramNumber: uint16(data[3])<<8 | uint16(data[4]),
		Version:       (data[5] >> 1) & 0x1F,
		PCRPID:        uint16(data[8]&0x1F)<<8 | uint16(data[9]),
	}

	programInfoLength := int(data[10]&0x0F)<<8 | int(data[11])
	offset := 12 + programInfoLength
	if offset > end {
		return nil, fmt.Errorf("mpegts: PMT program_info_length %d overruns section", programInfoLength)
	}
	pmt.ProgramDescriptors = parseDescriptors(data[12:offset], decoders)

	for offset+5 <= end {
		es := &PMTElementaryStream{
			StreamType:    data[offset],
			ElementaryPID: uint16(data[offset+1]&0x1F)<<8 | uint16(data[offset+2]),
		}
		esInfoLength := int(data[offset+3]&0x0F)<<8 | int(data[offset+4])
		infoEnd := offset + 5 + esInfoLength
		if infoEnd > end {
			return nil, fmt.Errorf("mpegts: PMT ES_info_length %d for PID 0x%X overruns section", esInfoLength, es.ElementaryPID)
		}
		es.Descriptors = parseDescriptors(data[offset+5:infoEnd], decoders)
		pmt.ElementaryStreams = append(pmt.ElementaryStreams, es)
		offset = infoEnd
	}

	return pmt, nil
}

// parseDescriptors splits a descriptor loop and runs registered decoders.
// A truncated trailing descriptor is dropped.
func parseDescriptors(loop []byte, decoders map[uint8]DescriptorDecoder) []*Descriptor {
	var out []*Descriptor
	for offset := 0; offset+2 <= len(loop); {
		tag := loop[offset]
		end := offset + 2 + int(loop[offset+1])
		if end > len(loop) {
			break
		}
		d := &Descriptor{Tag: tag, Data: loop[offset+2 : end]}
		if dec, ok := decoders[tag]; ok {
			d.Value, d.Err = dec(d.Data)
		}
		out = append(out, d)
		offset = end
	}
	return out
}
