// Package scte35 decodes and encodes SCTE-35 splice_info_sections. Supported
// commands are splice_null, splice_insert (program and component mode) and
// time_signal; segmentation_descriptor is the only decoded descriptor.
package scte35

import (
	"errors"
	"fmt"

	"github.com/stfn345/ats-ebp-validator/internal/bitio"
)

const (
	// TableID is the table_id of a splice_info_section.
	TableID = 0xFC

	// StreamType is the PMT stream_type of a PID carrying splice sections.
	StreamType = 0x86

	SpliceNullType   uint32 = 0x00
	SpliceInsertType uint32 = 0x05
	TimeSignalType   uint32 = 0x06
)

// ErrNotSpliceInfo is returned for sections with a table_id other than 0xFC.
var ErrNotSpliceInfo = errors.New("scte35: not a splice_info_section")

// SpliceCommand is the interface for splice command types.
type SpliceCommand interface {
	Type() uint32
	decode([]byte) error
	encode() ([]byte, error)
	commandLength() int
}

// SpliceDescriptor is the interface for splice descriptor types.
type SpliceDescriptor interface {
	Tag() uint32
	decode([]byte) error
	encode() ([]byte, error)
	descriptorLength() int
}

// SpliceDescriptors is a slice of SpliceDescriptor.
type SpliceDescriptors []SpliceDescriptor

// SpliceTime carries an optional 33-bit PTS time.
type SpliceTime struct {
	PTSTime *uint64
}

func (st *SpliceTime) decode(r *bitio.Reader) {
	if r.ReadBit() {
		r.Skip(6) // reserved
		pts := r.ReadUint64(33)
		st.PTSTime = &pts
		return
	}
	r.Skip(7) // reserved
}

func (st SpliceTime) encode(w *bitio.Writer) {
	if st.PTSTime != nil {
		w.PutBit(true)
		w.PutUint32(6, 0x3F)
		w.PutUint64(33, *st.PTSTime)
		return
	}
	w.PutBit(false)
	w.PutUint32(7, 0x7F)
}

// BreakDuration specifies the duration of a commercial break.
type BreakDuration struct {
	AutoReturn bool
	Duration   uint64
}

// SpliceInfoSection is the top-level SCTE-35 structure.
type SpliceInfoSection struct {
	SAPType           uint32
	PTSAdjustment     uint64
	Tier              uint32
	SpliceCommand     SpliceCommand
	SpliceDescriptors SpliceDescriptors
}

// DecodeBytes decodes a binary splice_info_section including its CRC32.
func DecodeBytes(data []byte) (*SpliceInfoSection, error) {
	sis := &SpliceInfoSection{}
	if err := sis.decode(data); err != nil {
		return sis, err
	}
	return sis, nil
}

func (sis *SpliceInfoSection) decode(data []byte) error {
	if len(data) > 0 && data[0] != TableID {
		return fmt.Errorf("%w: table_id 0x%02X", ErrNotSpliceInfo, data[0])
	}
	if err := bitio.VerifyCRC32(data); err != nil {
		return fmt.Errorf("scte35: %w", err)
	}

	r := bitio.NewReader(data)
	r.Skip(8) // table_id
	r.Skip(1) // section_syntax_indicator
	r.Skip(1) // private_indicator
	sis.SAPType = r.ReadUint32(2)
	sectionLength := int(r.ReadUint32(12))

	r.Skip(8) // protocol_version
	if r.ReadBit() {
		return fmt.Errorf("scte35: encrypted sections are not supported")
	}
	r.Skip(6) // encryption_algorithm
	sis.PTSAdjustment = r.ReadUint64(33)
	r.Skip(8) // cw_index
	sis.Tier = r.ReadUint32(12)

	spliceCommandLength := int(r.ReadUint32(12))
	spliceCommandType := r.ReadUint32(8)

	if spliceCommandLength == 0xFFF {
		// Legacy length: decode the command to learn its size, then the
		// descriptor loop follows it.
		remaining := sectionLength - 11 - 4
		if remaining < 0 {
			return fmt.Errorf("scte35: section_length %d too short", sectionLength)
		}
		rest := r.ReadBytes(remaining)
		cmd, err := decodeSpliceCommand(spliceCommandType, rest)
		if err != nil {
			return fmt.Errorf("scte35: decoding command type 0x%02X: %w", spliceCommandType, err)
		}
		sis.SpliceCommand = cmd
		n := cmd.commandLength()
		if n+2 <= len(rest) {
			loop := int(rest[n])<<8 | int(rest[n+1])
			if loop > 0 && n+2+loop <= len(rest) {
				descs, derr := decodeSpliceDescriptors(rest[n+2 : n+2+loop])
				if derr != nil {
					return derr
				}
				sis.SpliceDescriptors = descs
			}
		}
		return nil
	}

	cmdData := r.ReadBytes(spliceCommandLength)
	cmd, err := decodeSpliceCommand(spliceCommandType, cmdData)
	if err != nil {
		return fmt.Errorf("scte35: decoding command type 0x%02X: %w", spliceCommandType, err)
	}
	sis.SpliceCommand = cmd

	descriptorLoopLength := int(r.ReadUint32(16))
	if descriptorLoopLength > 0 {
		descs, derr := decodeSpliceDescriptors(r.ReadBytes(descriptorLoopLength))
		if derr != nil {
			return derr
		}
		sis.SpliceDescriptors = descs
	}
	if r.Overflow() {
		return fmt.Errorf("scte35: section truncated")
	}
	return nil
}

// Encode serializes the SpliceInfoSection to binary, CRC32 included.
func (sis *SpliceInfoSection) Encode() ([]byte, error) {
	var cmdBytes []byte
	cmdType := SpliceNullType
	if sis.SpliceCommand != nil {
		b, err := sis.SpliceCommand.encode()
		if err != nil {
			return nil, err
		}
		cmdBytes = b
		cmdType = sis.SpliceCommand.Type()
	}

	var descBytes []byte
	for _, desc := range sis.SpliceDescriptors {
		b, err := desc.encode()
		if err != nil {
			return nil, err
		}
		descBytes = append(descBytes, b...)
	}

	// protocol..tier(11) + command(len) + loop length(2) + loop + CRC(4)
	sectionLen := 11 + len(cmdBytes) + 2 + len(descBytes) + 4

	w := bitio.NewWriter(3 + sectionLen)
	w.PutUint32(8, TableID)
	w.PutBit(false) // section_syntax_indicator
	w.PutBit(false) // private_indicator
	w.PutUint32(2, sis.SAPType)
	w.PutUint32(12, uint32(sectionLen))

	w.PutUint32(8, 0) // protocol_version
	w.PutBit(false)   // encrypted_packet
	w.PutUint32(6, 0) // encryption_algorithm
	w.PutUint64(33, sis.PTSAdjustment)
	w.PutUint32(8, 0) // cw_index
	w.PutUint32(12, sis.Tier)
	w.PutUint32(12, uint32(len(cmdBytes)))
	w.PutUint32(8, cmdType)
	w.PutBytes(cmdBytes)

	w.PutUint32(16, uint32(len(descBytes)))
	w.PutBytes(descBytes)

	return bitio.AppendCRC32(w.Bytes()), nil
}

// Segmentations returns the decoded segmentation descriptors.
func (sis *SpliceInfoSection) Segmentations() []*SegmentationDescriptor {
	var out []*SegmentationDescriptor
	for _, d := range sis.SpliceDescriptors {
		if sd, ok := d.(*SegmentationDescriptor); ok {
			out = append(out, sd)
		}
	}
	return out
}

func decodeSpliceCommand(cmdType uint32, data []byte) (SpliceCommand, error) {
	var cmd SpliceCommand
	switch cmdType {
	case SpliceInsertType:
		cmd = &SpliceInsert{}
	case TimeSignalType:
		cmd = &TimeSignal{}
	default:
		// splice_null and commands without splice times.
		return &SpliceNull{}, nil
	}
	if err := cmd.decode(data); err != nil {
		return cmd, err
	}
	return cmd, nil
}

func decodeSpliceDescriptors(data []byte) ([]SpliceDescriptor, error) {
	var descs []SpliceDescriptor
	for offset := 0; offset+2 <= len(data); {
		tag := uint32(data[offset])
		length := int(data[offset+1])
		end := offset + 2 + length
		if end > len(data) {
			break
		}
		if tag == SegmentationDescriptorTag && length >= 4 {
			identifier := uint32(data[offset+2])<<24 | uint32(data[offset+3])<<16 |
				uint32(data[offset+4])<<8 | uint32(data[offset+5])
			if identifier == CUEIdentifier {
				sd := &SegmentationDescriptor{}
				if err := sd.decode(data[offset:end]); err != nil {
					return descs, err
				}
				descs = append(descs, sd)
			}
		}
		offset = end
	}
	return descs, nil
}

// SpliceNull is a heartbeat command. Unsupported command types decode to it.
type SpliceNull struct{}

func (cmd *SpliceNull) Type() uint32            { return SpliceNullType }
func (cmd *SpliceNull) decode([]byte) error     { return nil }
func (cmd *SpliceNull) encode() ([]byte, error) { return nil, nil }
func (cmd *SpliceNull) commandLength() int      { return 0 }
