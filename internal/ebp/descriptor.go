package ebp

import (
	"fmt"

	"github.com/stfn345/ats-ebp-validator/internal/bitio"
)

// DescriptorTag is the PMT elementary stream descriptor tag of the EBP descriptor.
const DescriptorTag = 0xE9

// Descriptor is a decoded EBP descriptor. It lists, for each partition the
// encoder uses, whether boundaries on that partition are marked in-band
// (explicit) or must be inferred from the boundaries of another PID.
type Descriptor struct {
	TimescaleFlag  bool
	TicksPerSecond uint32
	DistanceWidth  int
	Partitions     []DescriptorPartition
}

// DescriptorPartition is one partition entry of an EBP descriptor.
type DescriptorPartition struct {
	ID                   int
	Explicit             bool
	RepresentationIDFlag bool
	// EBPPID is the PID whose boundaries an implicit partition mirrors.
	EBPPID              uint16
	BoundaryFlag        bool
	SAPTypeMax          uint8
	AcquisitionTimeFlag bool
	Distance            uint64
	RepresentationID    uint64
}

// DecodeDescriptor decodes the descriptor body (the bytes after tag and length).
//
// Layout:
//
//	num_partitions(5) timescale_flag(1) reserved(2)
//	if timescale_flag: ticks_per_second(21) distance_width_minus_1(3)
//	per partition:
//	  explicit(1) representation_id_flag(1) partition_id(5) reserved(1)
//	  if !explicit: ebp_pid(13) reserved(3)
//	  boundary_flag(1) sap_type_max(3) acquisition_time_flag(1) reserved(3)
//	  ebp_distance(8 * distance width bytes)
//	  if representation_id_flag: representation_id(64)
func DecodeDescriptor(data []byte) (*Descriptor, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("ebp: descriptor: %w", ErrTruncated)
	}

	r := bitio.NewReader(data)
	d := &Descriptor{DistanceWidth: 1}
	count := int(r.ReadUint32(5))
	d.TimescaleFlag = r.ReadBit()
	r.Skip(2) // reserved
	if d.TimescaleFlag {
		d.TicksPerSecond = r.ReadUint32(21)
		d.DistanceWidth = int(r.ReadUint32(3)) + 1
	}

	seen := make(map[int]bool, count)
	for i := 0; i < count; i++ {
		p := DescriptorPartition{}
		p.Explicit = r.ReadBit()
		p.RepresentationIDFlag = r.ReadBit()
		p.ID = int(r.ReadUint32(5))
		r.Skip(1) // reserved
		if !p.Explicit {
			p.EBPPID = uint16(r.ReadUint32(13))
			r.Skip(3) // reserved
		}
		p.BoundaryFlag = r.ReadBit()
		p.SAPTypeMax = uint8(r.ReadUint32(3))
		p.AcquisitionTimeFlag = r.ReadBit()
		r.Skip(3) // reserved
		p.Distance = r.ReadUint64(8 * d.DistanceWidth)
		if p.RepresentationIDFlag {
			p.RepresentationID = r.ReadUint64(64)
		}

		if r.Overflow() {
			return nil, fmt.Errorf("ebp: descriptor partition %d of %d: %w", i+1, count, ErrTruncated)
		}
		if p.ID >= MaxPartitions {
			return nil, fmt.Errorf("ebp: descriptor partition id %d out of range", p.ID)
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("ebp: descriptor lists partition %d twice", p.ID)
		}
		seen[p.ID] = true
		d.Partitions = append(d.Partitions, p)
	}
	return d, nil
}

// Partition returns the entry for partition id, if the descriptor lists it.
func (d *Descriptor) Partition(id int) (DescriptorPartition, bool) {
	for _, p := range d.Partitions {
		if p.ID == id {
			return p, true
		}
	}
	return DescriptorPartition{}, false
}

// Clone returns a deep copy.
func (d *Descriptor) Clone() *Descriptor {
	if d == nil {
		return nil
	}
	c := *d
	c.Partitions = append([]DescriptorPartition(nil), d.Partitions...)
	return &c
}

// Encode serializes the descriptor including its tag and length bytes.
func (d *Descriptor) Encode() []byte {
	width := 1
	if d.TimescaleFlag {
		width = d.DistanceWidth
		if width < 1 || width > 8 {
			width = 1
		}
	}

	w := bitio.NewWriter(16)
	w.PutUint64(5, uint64(len(d.Partitions)))
	w.PutBit(d.TimescaleFlag)
	w.PutUint64(2, 0x3)
	if d.TimescaleFlag {
		w.PutUint64(21, uint64(d.TicksPerSecond))
		w.PutUint64(3, uint64(width-1))
	}
	for _, p := range d.Partitions {
		w.PutBit(p.Explicit)
		w.PutBit(p.RepresentationIDFlag)
		w.PutUint64(5, uint64(p.ID))
		w.PutBit(true)
		if !p.Explicit {
			w.PutUint64(13, uint64(p.EBPPID))
			w.PutUint64(3, 0x7)
		}
		w.PutBit(p.BoundaryFlag)
		w.PutUint64(3, uint64(p.SAPTypeMax))
		w.PutBit(p.AcquisitionTimeFlag)
		w.PutUint64(3, 0x7)
		w.PutUint64(8*width, p.Distance)
		if p.RepresentationIDFlag {
			w.PutUint64(64, p.RepresentationID)
		}
	}

	body := w.Bytes()
	return append([]byte{DescriptorTag, byte(len(body))}, body...)
}

// DecodeDescriptorValue adapts DecodeDescriptor to the mpegts descriptor
// decoder signature.
func DecodeDescriptorValue(data []byte) (any, error) {
	return DecodeDescriptor(data)
}
