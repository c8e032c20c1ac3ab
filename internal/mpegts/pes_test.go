package mpegts

import (
	"bytes"
	"testing"

	"github.com/stfn345/ats-ebp-validator/internal/testsupport/tsgen"
)

func TestParsePES_PTS(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		streamID byte
		pts      int64
	}{
		{name: "video", streamID: 0xE0, pts: 900000},
		{name: "audio", streamID: 0xC0, pts: 123456789},
		{name: "max 33 bit", streamID: 0xC0, pts: 1<<33 - 1},
		{name: "zero", streamID: 0xE0, pts: 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			data := []byte{0x01, 0x02, 0x03}
			pes, err := parsePES(tsgen.PES(tc.streamID, tc.pts, data))
			if err != nil {
				t.Fatal(err)
			}
			got, ok := pes.PTS()
			if !ok || got != tc.pts {
				t.Errorf("PTS = %d (%v), want %d", got, ok, tc.pts)
			}
			if pes.Header.StreamID != tc.streamID {
				t.Errorf("stream id = 0x%02X", pes.Header.StreamID)
			}
			if !bytes.Equal(pes.Data, data) {
				t.Errorf("data = % X, want % X", pes.Data, data)
			}
		})
	}
}

func TestParsePES_PTSAndDTS(t *testing.T) {
	t.Parallel()

	raw := []byte{0x00, 0x00, 0x01, 0xE0, 0x00, 0x00, 0x84, 0xC0, 10}
	raw = append(raw, tsgen.EncodeTimestamp(0x03, 183000)...)
	raw = append(raw, tsgen.EncodeTimestamp(0x01, 180000)...)
	raw = append(raw, 0x09)

	pes, err := parsePES(raw)
	if err != nil {
		t.Fatal(err)
	}
	opt := pes.Header.OptionalHeader
	if opt.PTS.Base != 183000 || opt.DTS.Base != 180000 {
		t.Errorf("PTS/DTS = %d/%d, want 183000/180000", opt.PTS.Base, opt.DTS.Base)
	}
	if !opt.DataAlignmentIndicator {
		t.Error("data_alignment_indicator not set")
	}
	if !bytes.Equal(pes.Data, []byte{0x09}) {
		t.Errorf("data = % X", pes.Data)
	}
}

func TestParsePES_NoPTS(t *testing.T) {
	t.Parallel()

	raw := []byte{0x00, 0x00, 0x01, 0xC0, 0x00, 0x04, 0x80, 0x00, 0x00, 0x7A}
	pes, err := parsePES(raw)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := pes.PTS(); ok {
		t.Error("PTS reported for header without timestamps")
	}
	if !bytes.Equal(pes.Data, []byte{0x7A}) {
		t.Errorf("data = % X", pes.Data)
	}
}

func TestParsePES_NoOptionalHeader(t *testing.T) {
	t.Parallel()

	raw := []byte{0x00, 0x00, 0x01, 0xBE, 0x00, 0x03, 0xFF, 0xFF, 0xFF, 0x00}
	pes, err := parsePES(raw)
	if err != nil {
		t.Fatal(err)
	}
	if pes.Header.OptionalHeader != nil {
		t.Error("padding stream should have no optional header")
	}
	if len(pes.Data) != 3 {
		t.Errorf("data = %d bytes, want 3", len(pes.Data))
	}
}

func TestParsePES_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  []byte
	}{
		{name: "short", raw: []byte{0x00, 0x00, 0x01}},
		{name: "start code", raw: []byte{0x00, 0x01, 0x01, 0xE0, 0x00, 0x00}},
		{name: "marker", raw: []byte{0x00, 0x00, 0x01, 0xE0, 0x00, 0x00, 0x40, 0x00, 0x00}},
		{name: "optional header short", raw: []byte{0x00, 0x00, 0x01, 0xE0, 0x00, 0x00, 0x80}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := parsePES(tc.raw); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestPESDataPTSNil(t *testing.T) {
	t.Parallel()

	var p *PESData
	if _, ok := p.PTS(); ok {
		t.Error("nil PES should have no PTS")
	}
}
