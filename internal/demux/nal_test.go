package demux

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stfn345/ats-ebp-validator/internal/testsupport/tsgen"
)

func TestParseAnnexB(t *testing.T) {
	t.Parallel()

	units := ParseAnnexB(tsgen.AVCAccessUnit(true))
	want := []byte{NALTypeAUD, NALTypeSPS, NALTypePPS, NALTypeIDR}
	if len(units) != len(want) {
		t.Fatalf("units = %d, want %d", len(units), len(want))
	}
	for i, u := range units {
		if u.Type != want[i] {
			t.Errorf("unit %d type = %d, want %d", i, u.Type, want[i])
		}
	}
	if !bytes.Equal(units[3].Data, []byte{0x65, 0x88, 0x84, 0x00, 0x10}) {
		t.Errorf("IDR data = % X", units[3].Data)
	}
}

func TestParseAnnexBHEVC(t *testing.T) {
	t.Parallel()

	units := ParseAnnexBHEVC(tsgen.HEVCAccessUnit(HEVCNALCraNut))
	if len(units) != 2 {
		t.Fatalf("units = %d, want 2", len(units))
	}
	if units[0].Type != HEVCNALAUD || units[1].Type != HEVCNALCraNut {
		t.Errorf("types = %d, %d", units[0].Type, units[1].Type)
	}
}

func TestParseAnnexB_Short(t *testing.T) {
	t.Parallel()

	if units := ParseAnnexB([]byte{0x00, 0x01}); units != nil {
		t.Errorf("short input gave %d units", len(units))
	}
	// A start code at the very end carries no unit.
	if units := ParseAnnexB([]byte{0x09, 0xF0, 0x00, 0x00, 0x01}); len(units) != 0 {
		t.Errorf("trailing start code gave %d units", len(units))
	}
}

func TestParseADTS(t *testing.T) {
	t.Parallel()

	frame := tsgen.ADTSFrame()
	stream := append([]byte{0x00, 0x12}, frame...)
	stream = append(stream, frame...)
	stream = append(stream, frame[:5]...) // truncated

	frames, err := ParseADTS(stream)
	if err != nil {
		t.Fatal(err)
	}
	if len(frames) != 2 {
		t.Fatalf("frames = %d, want 2", len(frames))
	}
	if frames[0].SampleRate != 48000 || frames[0].Channels != 2 {
		t.Errorf("frame = %d Hz %d ch, want 48000 Hz 2 ch", frames[0].SampleRate, frames[0].Channels)
	}
	if len(frames[1].Data) != len(frame) {
		t.Errorf("frame length = %d, want %d", len(frames[1].Data), len(frame))
	}
}

func TestParseADTS_BadRate(t *testing.T) {
	t.Parallel()

	frame := tsgen.ADTSFrame()
	frame[2] = frame[2]&^0x3C | 0x0F<<2
	if _, err := ParseADTS(frame); !errors.Is(err, ErrInvalidADTS) {
		t.Errorf("err = %v, want ErrInvalidADTS", err)
	}
}
