package scte35

import (
	"fmt"

	"github.com/stfn345/ats-ebp-validator/internal/bitio"
)

const (
	// SegmentationDescriptorTag is the splice_descriptor_tag for segmentation_descriptor.
	SegmentationDescriptorTag uint32 = 0x02

	// CUEIdentifier is the CUEI ASCII identifier (0x43554549).
	CUEIdentifier uint32 = 0x43554549
)

// Segmentation types that commonly line up with segment boundaries.
const (
	SegmentationTypeNotIndicated          uint32 = 0x00
	SegmentationTypeProgramStart          uint32 = 0x10
	SegmentationTypeProgramEnd            uint32 = 0x11
	SegmentationTypeChapterStart          uint32 = 0x20
	SegmentationTypeChapterEnd            uint32 = 0x21
	SegmentationTypeBreakStart            uint32 = 0x22
	SegmentationTypeBreakEnd              uint32 = 0x23
	SegmentationTypeProviderAdStart       uint32 = 0x30
	SegmentationTypeProviderAdEnd         uint32 = 0x31
	SegmentationTypeDistributorAdStart    uint32 = 0x32
	SegmentationTypeDistributorAdEnd      uint32 = 0x33
	SegmentationTypeProviderPOStart       uint32 = 0x34
	SegmentationTypeProviderPOEnd         uint32 = 0x35
	SegmentationTypeDistributorPOStart    uint32 = 0x36
	SegmentationTypeDistributorPOEnd      uint32 = 0x37
	SegmentationTypeUnscheduledEventStart uint32 = 0x40
	SegmentationTypeUnscheduledEventEnd   uint32 = 0x41
	SegmentationTypeNetworkStart          uint32 = 0x50
	SegmentationTypeNetworkEnd            uint32 = 0x51
)

var segmentationTypeNames = map[uint32]string{
	SegmentationTypeNotIndicated:          "Not Indicated",
	SegmentationTypeProgramStart:          "Program Start",
	SegmentationTypeProgramEnd:            "Program End",
	SegmentationTypeChapterStart:          "Chapter Start",
	SegmentationTypeChapterEnd:            "Chapter End",
	SegmentationTypeBreakStart:            "Break Start",
	SegmentationTypeBreakEnd:              "Break End",
	SegmentationTypeProviderAdStart:       "Provider Advertisement Start",
	SegmentationTypeProviderAdEnd:         "Provider Advertisement End",
	SegmentationTypeDistributorAdStart:    "Distributor Advertisement Start",
	SegmentationTypeDistributorAdEnd:      "Distributor Advertisement End",
	SegmentationTypeProviderPOStart:       "Provider Placement Opportunity Start",
	SegmentationTypeProviderPOEnd:         "Provider Placement Opportunity End",
	SegmentationTypeDistributorPOStart:    "Distributor Placement Opportunity Start",
	SegmentationTypeDistributorPOEnd:      "Distributor Placement Opportunity End",
	SegmentationTypeUnscheduledEventStart: "Unscheduled Event Start",
	SegmentationTypeUnscheduledEventEnd:   "Unscheduled Event End",
	SegmentationTypeNetworkStart:          "Network Start",
	SegmentationTypeNetworkEnd:            "Network End",
}

// SegmentationDescriptor carries segmentation information per SCTE-35 10.3.3.
type SegmentationDescriptor struct {
	SegmentationEventID  uint32
	SegmentationTypeID   uint32
	SegmentationDuration *uint64
	SegmentNum           uint32
	SegmentsExpected     uint32
}

// Tag returns the splice_descriptor_tag.
func (sd *SegmentationDescriptor) Tag() uint32 {
	return SegmentationDescriptorTag
}

// Name returns a human-readable name for the segmentation type.
func (sd *SegmentationDescriptor) Name() string {
	if name, ok := segmentationTypeNames[sd.SegmentationTypeID]; ok {
		return name
	}
	return fmt.Sprintf("Type 0x%02X", sd.SegmentationTypeID)
}

func (sd *SegmentationDescriptor) decode(data []byte) error {
	r := bitio.NewReader(data)
	r.Skip(8)  // splice_descriptor_tag
	r.Skip(8)  // descriptor_length
	r.Skip(32) // identifier (CUEI)
	sd.SegmentationEventID = r.ReadUint32(32)
	cancelIndicator := r.ReadBit()
	r.Skip(7) // compliance indicator + reserved
	if cancelIndicator {
		return nil
	}

	programSegmentationFlag := r.ReadBit()
	durationFlag := r.ReadBit()
	r.Skip(6) // delivery_not_restricted + restriction flags or reserved

	if !programSegmentationFlag {
		count := int(r.ReadUint32(8))
		r.Skip(count * 48) // component_tag(8) reserved(7) pts_offset(33)
	}
	if durationFlag {
		dur := r.ReadUint64(40)
		sd.SegmentationDuration = &dur
	}

	r.Skip(8) // segmentation_upid_type
	upidLen := int(r.ReadUint32(8))
	r.Skip(upidLen * 8)
	sd.SegmentationTypeID = r.ReadUint32(8)
	sd.SegmentNum = r.ReadUint32(8)
	sd.SegmentsExpected = r.ReadUint32(8)

	if r.Overflow() {
		return fmt.Errorf("scte35: segmentation_descriptor truncated")
	}
	return nil
}

func (sd *SegmentationDescriptor) encode() ([]byte, error) {
	length := sd.descriptorLength()
	w := bitio.NewWriter(length + 2)

	w.PutUint32(8, SegmentationDescriptorTag)
	w.PutUint32(8, uint32(length))
	w.PutUint32(32, CUEIdentifier)
	w.PutUint32(32, sd.SegmentationEventID)
	w.PutBit(false)      // segmentation_event_cancel_indicator
	w.PutBit(true)       // segmentation_event_id_compliance_indicator
	w.PutUint32(6, 0x3F) // reserved

	w.PutBit(true)                           // program_segmentation_flag
	w.PutBit(sd.SegmentationDuration != nil) // segmentation_duration_flag
	w.PutBit(true)                           // delivery_not_restricted_flag
	w.PutUint32(5, 0x1F)                     // reserved

	if sd.SegmentationDuration != nil {
		w.PutUint64(40, *sd.SegmentationDuration)
	}

	w.PutUint32(8, 0x00) // segmentation_upid_type: not used
	w.PutUint32(8, 0x00) // segmentation_upid_length
	w.PutUint32(8, sd.SegmentationTypeID)
	w.PutUint32(8, sd.SegmentNum)
	w.PutUint32(8, sd.SegmentsExpected)
	return w.Bytes(), nil
}

// descriptorLength is the descriptor body length after tag and length.
func (sd *SegmentationDescriptor) descriptorLength() int {
	n := 4 + 4 + 1 + 1 // identifier, event id, cancel byte, flags byte
	if sd.SegmentationDuration != nil {
		n += 5
	}
	return n + 5 // upid type, upid length, type id, segment num, expected
}
