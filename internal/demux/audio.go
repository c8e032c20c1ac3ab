package demux

import "errors"

// ErrInvalidADTS is returned when an ADTS header is malformed.
var ErrInvalidADTS = errors.New("invalid ADTS header")

// AAC sample rate index table (ISO 14496-3).
var aacSampleRates = [...]int{
	96000, 88200, 64000, 48000, 44100, 32000, 24000, 22050,
	16000, 12000, 11025, 8000, 7350,
}

// AACFrame is a single ADTS frame.
type AACFrame struct {
	Data       []byte // header and payload
	SampleRate int
	Channels   int
}

// ParseADTS splits an ADTS byte stream into frames, skipping bytes until
// the first sync word. A truncated trailing frame is dropped.
func ParseADTS(data []byte) ([]AACFrame, error) {
	var frames []AACFrame
	for offset := 0; len(data)-offset >= 7; {
		if !isADTSSync(data[offset:]) {
			offset++
			continue
		}

		headerSize := 7
		if data[offset+1]&0x01 == 0 {
			headerSize = 9 // CRC present
		}
		rateIdx := (data[offset+2] >> 2) & 0x0F
		if int(rateIdx) >= len(aacSampleRates) {
			return frames, ErrInvalidADTS
		}
		channels := (data[offset+2]&0x01)<<2 | (data[offset+3]>>6)&0x03
		frameLen := int(data[offset+3]&0x03)<<11 | int(data[offset+4])<<3 | int(data[offset+5]>>5)
		if frameLen < headerSize || offset+frameLen > len(data) {
			break
		}

		frames = append(frames, AACFrame{
			Data:       data[offset : offset+frameLen],
			SampleRate: aacSampleRates[rateIdx],
			Channels:   int(channels),
		})
		offset += frameLen
	}
	return frames, nil
}

// isADTSSync checks the 12-bit 0xFFF sync word with layer bits 00.
func isADTSSync(b []byte) bool {
	return len(b) >= 2 && b[0] == 0xFF && b[1]&0xF6 == 0xF0
}

// isAC3Sync checks the AC-3 / E-AC-3 sync word 0x0B77.
func isAC3Sync(b []byte) bool {
	return len(b) >= 2 && b[0] == 0x0B && b[1] == 0x77
}

// isMPEGAudioSync checks the 11-bit MPEG-1/2 audio frame sync with a valid
// layer field.
func isMPEGAudioSync(b []byte) bool {
	return len(b) >= 2 && b[0] == 0xFF && b[1]&0xE0 == 0xE0 && b[1]&0x06 != 0
}
