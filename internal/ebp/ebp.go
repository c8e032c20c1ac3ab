// Package ebp decodes Encoder Boundary Point signaling: the EBP structure
// carried in a transport packet's adaptation field private data, and the EBP
// descriptor carried in the PMT that states per partition whether boundaries
// are signaled explicitly or inherited from another PID.
package ebp

import (
	"errors"
	"fmt"

	"github.com/stfn345/ats-ebp-validator/internal/bitio"
)

const (
	// PrivateDataTag is the adaptation field private data tag that wraps an
	// EBP structure.
	PrivateDataTag = 0xDF

	// FormatIdentifier is the ASCII "EBP0" format identifier following the tag.
	FormatIdentifier uint32 = 0x45425030
)

// Partition ids with a fixed meaning. Ids 3..9 are extension partitions.
const (
	PartitionSegment  = 1
	PartitionFragment = 2
	MaxPartitions     = 10
)

var (
	// ErrNotEBP is returned when private data carries no EBP structure.
	ErrNotEBP = errors.New("ebp: no EBP structure in private data")

	// ErrTruncated is returned when a structure ends before its flags say it should.
	ErrTruncated = errors.New("ebp: truncated structure")
)

// EBP is a decoded Encoder Boundary Point structure.
type EBP struct {
	FragmentFlag     bool
	SegmentFlag      bool
	SAPFlag          bool
	GroupingFlag     bool
	TimeFlag         bool
	ConcealmentFlag  bool
	ExtensionFlag    bool
	ExtPartitionFlag bool

	SAPType         uint8
	GroupingIDs     []uint8
	AcquisitionTime uint64
	ExtPartitions   uint8
}

// Parse decodes an EBP structure body (the bytes after the format identifier).
func Parse(data []byte) (*EBP, error) {
	if len(data) < 1 {
		return nil, ErrTruncated
	}

	r := bitio.NewReader(data)
	e := &EBP{}
	e.FragmentFlag = r.ReadBit()
	e.SegmentFlag = r.ReadBit()
	e.SAPFlag = r.ReadBit()
	e.GroupingFlag = r.ReadBit()
	e.TimeFlag = r.ReadBit()
	e.ConcealmentFlag = r.ReadBit()
	r.Skip(1) // reserved
	e.ExtensionFlag = r.ReadBit()

	if e.ExtensionFlag {
		e.ExtPartitionFlag = r.ReadBit()
		r.Skip(7) // reserved
	}
	if e.SAPFlag {
		e.SAPType = uint8(r.ReadUint32(3))
		r.Skip(5) // reserved
	}
	if e.GroupingFlag {
		for {
			more := r.ReadBit()
			e.GroupingIDs = append(e.GroupingIDs, uint8(r.ReadUint32(7)))
			if !more || r.Overflow() {
				break
			}
		}
	}
	if e.TimeFlag {
		e.AcquisitionTime = r.ReadUint64(64)
	}
	if e.ExtPartitionFlag {
		e.ExtPartitions = uint8(r.ReadUint32(8))
	}

	if r.Overflow() {
		return nil, ErrTruncated
	}
	return e, nil
}

// FromPrivateData scans adaptation field private data for an EBP
// tag-length-value entry and decodes it. Returns ErrNotEBP when none is present.
func FromPrivateData(data []byte) (*EBP, error) {
	offset := 0
	for offset+2 <= len(data) {
		tag := data[offset]
		length := int(data[offset+1])
		end := offset + 2 + length
		if end > len(data) {
			return nil, fmt.Errorf("ebp: private data entry 0x%02X overruns %d bytes: %w", tag, len(data), ErrTruncated)
		}
		if tag == PrivateDataTag && length >= 4 {
			body := data[offset+2 : end]
			id := uint32(body[0])<<24 | uint32(body[1])<<16 | uint32(body[2])<<8 | uint32(body[3])
			if id == FormatIdentifier {
				return Parse(body[4:])
			}
		}
		offset = end
	}
	return nil, ErrNotEBP
}

// extBit returns the ExtPartitions bit for partition id 3..9. Bit 7 is
// reserved; partition 3 maps to bit 6 and partition 9 to bit 0.
func extBit(id int) uint8 {
	return 1 << uint(9-id)
}

// HasPartition reports whether this EBP signals a boundary on partition id.
func (e *EBP) HasPartition(id int) bool {
	switch {
	case id == PartitionSegment:
		return e.SegmentFlag
	case id == PartitionFragment:
		return e.FragmentFlag
	case id >= 3 && id < MaxPartitions:
		return e.ExtPartitionFlag && e.ExtPartitions&extBit(id) != 0
	default:
		return false
	}
}

// Partitions returns the signaled partition ids in ascending order.
func (e *EBP) Partitions() []int {
	var ids []int
	for id := 1; id < MaxPartitions; id++ {
		if e.HasPartition(id) {
			ids = append(ids, id)
		}
	}
	return ids
}

// SetPartition sets or clears the flag for partition id.
func (e *EBP) SetPartition(id int, on bool) {
	switch {
	case id == PartitionSegment:
		e.SegmentFlag = on
	case id == PartitionFragment:
		e.FragmentFlag = on
	case id >= 3 && id < MaxPartitions:
		if on {
			e.ExtPartitions |= extBit(id)
		} else {
			e.ExtPartitions &^= extBit(id)
		}
		e.ExtPartitionFlag = e.ExtPartitions != 0
		e.ExtensionFlag = e.ExtensionFlag || e.ExtPartitionFlag
	}
}

// Clone returns a deep copy.
func (e *EBP) Clone() *EBP {
	if e == nil {
		return nil
	}
	c := *e
	if e.GroupingIDs != nil {
		c.GroupingIDs = append([]uint8(nil), e.GroupingIDs...)
	}
	return &c
}

// Encode serializes the structure body.
func (e *EBP) Encode() []byte {
	w := bitio.NewWriter(16)
	w.PutBit(e.FragmentFlag)
	w.PutBit(e.SegmentFlag)
	w.PutBit(e.SAPFlag)
	w.PutBit(e.GroupingFlag && len(e.GroupingIDs) > 0)
	w.PutBit(e.TimeFlag)
	w.PutBit(e.ConcealmentFlag)
	w.PutBit(true) // reserved
	w.PutBit(e.ExtensionFlag || e.ExtPartitionFlag)

	if e.ExtensionFlag || e.ExtPartitionFlag {
		w.PutBit(e.ExtPartitionFlag)
		w.PutUint64(7, 0x7F)
	}
	if e.SAPFlag {
		w.PutUint64(3, uint64(e.SAPType))
		w.PutUint64(5, 0x1F)
	}
	if e.GroupingFlag {
		for i, id := range e.GroupingIDs {
			w.PutBit(i < len(e.GroupingIDs)-1)
			w.PutUint64(7, uint64(id))
		}
	}
	if e.TimeFlag {
		w.PutUint64(64, e.AcquisitionTime)
	}
	if e.ExtPartitionFlag {
		w.PutUint64(8, uint64(e.ExtPartitions))
	}
	return w.Bytes()
}

// EncodePrivateData wraps the structure in its private data tag and format
// identifier, ready to be placed in an adaptation field.
func (e *EBP) EncodePrivateData() []byte {
	body := e.Encode()
	out := make([]byte, 0, 6+len(body))
	out = append(out, PrivateDataTag, byte(4+len(body)))
	out = append(out, byte(FormatIdentifier>>24&0xFF), byte(FormatIdentifier>>16&0xFF), byte(FormatIdentifier>>8&0xFF), byte(FormatIdentifier&0xFF))
	return append(out, body...)
}
