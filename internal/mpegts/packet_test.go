package mpegts

import (
	"bytes"
	"testing"

	"github.com/stfn345/ats-ebp-validator/internal/testsupport/tsgen"
)

func TestParsePacket_Header(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		b1   byte
		b2   byte
		b3   byte
		pid  uint16
		pusi bool
		tei  bool
		cc   uint8
	}{
		{name: "pat", b1: 0x40, b2: 0x00, b3: 0x10, pid: 0, pusi: true},
		{name: "continuation", b1: 0x01, b2: 0x00, b3: 0x17, pid: 0x100, cc: 7},
		{name: "transport error", b1: 0x81, b2: 0x01, b3: 0x1F, pid: 0x101, tei: true, cc: 15},
		{name: "max pid", b1: 0x1F, b2: 0xFF, b3: 0x10, pid: 0x1FFF},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			buf := make([]byte, 188)
			buf[0], buf[1], buf[2], buf[3] = 0x47, tc.b1, tc.b2, tc.b3
			p, err := parsePacket(buf)
			if err != nil {
				t.Fatal(err)
			}
			if p.Header.PID != tc.pid {
				t.Errorf("PID = 0x%X, want 0x%X", p.Header.PID, tc.pid)
			}
			if p.Header.PayloadUnitStartIndicator != tc.pusi {
				t.Errorf("PUSI = %v, want %v", p.Header.PayloadUnitStartIndicator, tc.pusi)
			}
			if p.Header.TransportErrorIndicator != tc.tei {
				t.Errorf("TEI = %v, want %v", p.Header.TransportErrorIndicator, tc.tei)
			}
			if p.Header.ContinuityCounter != tc.cc {
				t.Errorf("CC = %d, want %d", p.Header.ContinuityCounter, tc.cc)
			}
			if len(p.Payload) != 184 {
				t.Errorf("payload = %d bytes, want 184", len(p.Payload))
			}
		})
	}
}

func TestParsePacket_PrivateData(t *testing.T) {
	t.Parallel()

	var cc uint8
	private := []byte{0xDF, 0x06, 'E', 'B', 'P', '0', 0xC0, 0x00}
	raw := tsgen.Packetize(0x100, &cc, &tsgen.AF{RandomAccess: true, PrivateData: private}, []byte{0xAA, 0xBB})

	p, err := parsePacket(raw[:188])
	if err != nil {
		t.Fatal(err)
	}
	af := p.AdaptationField
	if af == nil {
		t.Fatal("adaptation field missing")
	}
	if !af.RandomAccessIndicator {
		t.Error("random_access_indicator not set")
	}
	if af.DiscontinuityIndicator || af.HasPCR {
		t.Errorf("unexpected flags: %+v", af)
	}
	if !bytes.Equal(af.PrivateData, private) {
		t.Errorf("private data = % X, want % X", af.PrivateData, private)
	}
	if !bytes.Equal(p.Payload, []byte{0xAA, 0xBB}) {
		t.Errorf("payload = % X", p.Payload)
	}
}

func TestParsePacket_PCRAndCountdown(t *testing.T) {
	t.Parallel()

	buf := bytes.Repeat([]byte{0xFF}, 188)
	copy(buf, []byte{0x47, 0x01, 0x00, 0x30, 9, 0x94})
	// PCR base 2, extension 5
	copy(buf[6:], []byte{0x00, 0x00, 0x00, 0x01, 0x7E, 0x05})
	buf[12] = 0xFE // splice_countdown -2

	p, err := parsePacket(buf)
	if err != nil {
		t.Fatal(err)
	}
	af := p.AdaptationField
	if !af.HasPCR || af.PCR != 2*300+5 {
		t.Errorf("PCR = %d (has %v), want %d", af.PCR, af.HasPCR, 605)
	}
	if !af.DiscontinuityIndicator || !p.Header.DiscontinuityIndicator {
		t.Error("discontinuity not propagated to header")
	}
	if af.SpliceCountdown == nil || *af.SpliceCountdown != -2 {
		t.Errorf("splice countdown = %v, want -2", af.SpliceCountdown)
	}
	if len(p.Payload) != 188-14 {
		t.Errorf("payload = %d bytes, want %d", len(p.Payload), 188-14)
	}
}

func TestParsePacket_Errors(t *testing.T) {
	t.Parallel()

	badSync := make([]byte, 188)
	overrun := make([]byte, 188)
	copy(overrun, []byte{0x47, 0x00, 0x00, 0x30, 0xC0})

	tests := []struct {
		name string
		buf  []byte
	}{
		{name: "bad sync", buf: badSync},
		{name: "short", buf: []byte{0x47, 0x00}},
		{name: "adaptation overrun", buf: overrun},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := parsePacket(tc.buf); err == nil {
				t.Error("expected error")
			}
		})
	}
}
