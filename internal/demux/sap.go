package demux

// Codec identifies how an elementary stream payload is inspected.
type Codec int

const (
	CodecUnknown Codec = iota
	CodecAVC
	CodecHEVC
	CodecAAC
	CodecAC3
	CodecMPEGAudio
)

func (c Codec) String() string {
	switch c {
	case CodecAVC:
		return "h264"
	case CodecHEVC:
		return "h265"
	case CodecAAC:
		return "aac"
	case CodecAC3:
		return "ac3"
	case CodecMPEGAudio:
		return "mpeg-audio"
	default:
		return "unknown"
	}
}

// IsVideo reports whether c is a video codec.
func (c Codec) IsVideo() bool { return c == CodecAVC || c == CodecHEVC }

// IsAudio reports whether c is an audio codec.
func (c Codec) IsAudio() bool { return c == CodecAAC || c == CodecAC3 || c == CodecMPEGAudio }

// PMT descriptor tags that mark AC-3 / E-AC-3 in private PES (stream type 0x06).
const (
	DescriptorAC3      = 0x6A
	DescriptorEAC3     = 0x7A
	DescriptorATSCAC3  = 0x81
	DescriptorATSCEAC3 = 0xCC
)

// CodecForStreamType maps a PMT stream_type to a codec. Stream type 0x06
// (private PES) is AC-3 when one of the AC-3 descriptor tags is present.
func CodecForStreamType(streamType uint8, descriptorTags ...uint8) Codec {
	switch streamType {
	case 0x1B:
		return CodecAVC
	case 0x24:
		return CodecHEVC
	case 0x0F, 0x11:
		return CodecAAC
	case 0x81, 0x87:
		return CodecAC3
	case 0x03, 0x04:
		return CodecMPEGAudio
	case 0x06:
		for _, tag := range descriptorTags {
			switch tag {
			case DescriptorAC3, DescriptorEAC3, DescriptorATSCAC3, DescriptorATSCEAC3:
				return CodecAC3
			}
		}
	}
	return CodecUnknown
}

// SAPType classifies the access unit starting the PES payload es. It
// returns 0 when the payload does not begin at a stream access point.
//
// H.264: IDR is type 1; a non-IDR picture flagged random access by the
// adaptation field is type 2. H.265: IDR_N_LP is type 1, IDR_W_RADL type 2,
// CRA and BLA type 3. Audio frames that start with a sync word are type 1.
func SAPType(c Codec, es []byte, randomAccess bool) uint8 {
	switch c {
	case CodecAVC:
		for _, nal := range ParseAnnexB(es) {
			if nal.Type == NALTypeIDR {
				return 1
			}
		}
		if randomAccess {
			return 2
		}
		return 0

	case CodecHEVC:
		for _, nal := range ParseAnnexBHEVC(es) {
			switch {
			case nal.Type == HEVCNALIDRNlp:
				return 1
			case nal.Type == HEVCNALIDRWRadl:
				return 2
			case nal.Type == HEVCNALCraNut, nal.Type >= HEVCNALBlaWLP && nal.Type <= HEVCNALBlaNLP:
				return 3
			}
		}
		return 0

	case CodecAAC:
		return syncSAP(isADTSSync(es))
	case CodecAC3:
		return syncSAP(isAC3Sync(es))
	case CodecMPEGAudio:
		return syncSAP(isMPEGAudioSync(es))
	}
	return 0
}

func syncSAP(ok bool) uint8 {
	if ok {
		return 1
	}
	return 0
}
