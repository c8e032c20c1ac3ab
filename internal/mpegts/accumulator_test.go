package mpegts

import (
	"testing"

	"github.com/stfn345/ats-ebp-validator/internal/scte35"
	"github.com/stfn345/ats-ebp-validator/internal/testsupport/tsgen"
)

func tsPacket(cc uint8, pusi bool, payload ...byte) *Packet {
	return &Packet{
		Header:  PacketHeader{PID: 0x100, HasPayload: true, PayloadUnitStartIndicator: pusi, ContinuityCounter: cc},
		Payload: payload,
	}
}

func TestAccumulator(t *testing.T) {
	t.Parallel()

	disc := tsPacket(9, false, 0x03)
	disc.Header.DiscontinuityIndicator = true
	tei := tsPacket(2, false, 0x03)
	tei.Header.TransportErrorIndicator = true
	afOnly := tsPacket(1, false)
	afOnly.Header.HasPayload = false

	tests := []struct {
		name    string
		packets []*Packet
		// want is the number of packets flushed by a final PUSI packet.
		want int
	}{
		{name: "pusi flush", packets: []*Packet{tsPacket(0, true, 1), tsPacket(1, false, 2)}, want: 2},
		{name: "cc gap drops unit", packets: []*Packet{tsPacket(0, true, 1), tsPacket(1, false, 2), tsPacket(5, false, 3)}, want: 1},
		{name: "duplicate dropped", packets: []*Packet{tsPacket(3, true, 1), tsPacket(3, false, 1)}, want: 1},
		{name: "cc wraps", packets: []*Packet{tsPacket(14, true, 1), tsPacket(15, false, 2), tsPacket(0, false, 3)}, want: 3},
		{name: "signaled discontinuity", packets: []*Packet{tsPacket(0, true, 1), tsPacket(1, false, 2), disc}, want: 3},
		{name: "transport error resets", packets: []*Packet{tsPacket(0, true, 1), tsPacket(1, false, 2), tei}, want: 0},
		{name: "adaptation only ignored", packets: []*Packet{tsPacket(0, true, 1), tsPacket(1, false, 2), afOnly}, want: 2},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			acc := newPacketAccumulator(0x100, newProgramMap())
			for i, p := range tc.packets {
				if got := acc.add(p); got != nil {
					t.Fatalf("packet %d flushed %d packets early", i, len(got))
				}
			}
			last := tc.packets[len(tc.packets)-1].Header.ContinuityCounter
			flushed := acc.add(tsPacket((last+1)&0x0F, true, 0xEE))
			if len(flushed) != tc.want {
				t.Errorf("flushed %d packets, want %d", len(flushed), tc.want)
			}
		})
	}
}

func TestAccumulator_SectionCompletes(t *testing.T) {
	t.Parallel()

	pm := newProgramMap()
	pm.addSectionPID(0x1F0)

	pts := uint64(900000)
	sec, err := (&scte35.SpliceInfoSection{Tier: 0xFFF, SpliceCommand: &scte35.TimeSignal{SpliceTime: scte35.SpliceTime{PTSTime: &pts}}}).Encode()
	if err != nil {
		t.Fatal(err)
	}
	var cc uint8
	p, err := parsePacket(tsgen.Packetize(0x1F0, &cc, nil, tsgen.PSIPayload(sec)))
	if err != nil {
		t.Fatal(err)
	}

	acc := newPacketAccumulator(0x1F0, pm)
	if flushed := acc.add(p); len(flushed) != 1 {
		t.Errorf("splice section flushed %d packets, want 1", len(flushed))
	}
}

func TestProgramMapLearn(t *testing.T) {
	t.Parallel()

	pm := newProgramMap()
	pm.learn([]*DemuxerData{
		{PAT: &PATData{Programs: []*PATProgram{{ProgramNumber: 1, ProgramMapID: 0x1000}}}},
		{PMT: &PMTData{ElementaryStreams: []*PMTElementaryStream{
			{StreamType: 0x1B, ElementaryPID: 0x100},
			{StreamType: StreamTypeSCTE35, ElementaryPID: 0x1F0},
		}}},
	})

	for pid, want := range map[uint16]bool{0x1000: true, 0x1F0: true, 0x100: false} {
		if got := pm.isSectionPID(pid); got != want {
			t.Errorf("isSectionPID(0x%X) = %v, want %v", pid, got, want)
		}
	}
}

func TestIsPSIComplete(t *testing.T) {
	t.Parallel()

	sec := tsgen.PATSection(1, tsgen.Program{Number: 1, PMTPID: 0x1000})
	full := tsgen.PSIPayload(sec)

	tests := []struct {
		name    string
		payload []byte
		want    bool
	}{
		{name: "single section", payload: full, want: true},
		{name: "truncated", payload: full[:8], want: false},
		{name: "stuffing", payload: append(append([]byte(nil), full...), 0xFF, 0xFF), want: true},
		{name: "pointer out of range", payload: []byte{0x04, 0x00}, want: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := isPSIComplete([]*Packet{{Payload: tc.payload}})
			if got != tc.want {
				t.Errorf("isPSIComplete = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestPacketPoolDumpOrder(t *testing.T) {
	t.Parallel()

	pp := newPacketPool(newProgramMap())
	pp.add(&Packet{Header: PacketHeader{PID: 0x200, HasPayload: true, PayloadUnitStartIndicator: true}, Payload: []byte{1}})
	pp.add(&Packet{Header: PacketHeader{PID: 0x000, HasPayload: true, PayloadUnitStartIndicator: true}, Payload: []byte{0x00, 0x00}})

	all := pp.dump()
	if len(all) != 2 {
		t.Fatalf("dump = %d units, want 2", len(all))
	}
	if all[0][0].Header.PID != 0 {
		t.Errorf("first dumped PID = 0x%X, want PAT", all[0][0].Header.PID)
	}
	if len(pp.dump()) != 0 {
		t.Error("second dump should be empty")
	}
}
