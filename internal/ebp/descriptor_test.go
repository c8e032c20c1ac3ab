package ebp

import "testing"

func TestDescriptorRoundTrip(t *testing.T) {
	t.Parallel()

	in := &Descriptor{
		TimescaleFlag:  true,
		TicksPerSecond: 90000,
		DistanceWidth:  2,
		Partitions: []DescriptorPartition{
			{ID: 1, Explicit: true, BoundaryFlag: true, SAPTypeMax: 1, Distance: 180000 >> 4},
			{ID: 2, Explicit: false, EBPPID: 0x100, BoundaryFlag: true, SAPTypeMax: 2,
				RepresentationIDFlag: true, RepresentationID: 42},
		},
	}

	raw := in.Encode()
	if raw[0] != DescriptorTag {
		t.Fatalf("tag = 0x%02X, want 0x%02X", raw[0], DescriptorTag)
	}
	if int(raw[1]) != len(raw)-2 {
		t.Fatalf("length = %d, want %d", raw[1], len(raw)-2)
	}

	out, err := DecodeDescriptor(raw[2:])
	if err != nil {
		t.Fatal(err)
	}
	if out.TicksPerSecond != 90000 || out.DistanceWidth != 2 {
		t.Errorf("timescale = %d/%d, want 90000/2", out.TicksPerSecond, out.DistanceWidth)
	}
	if len(out.Partitions) != 2 {
		t.Fatalf("partitions = %d, want 2", len(out.Partitions))
	}

	p1, ok := out.Partition(1)
	if !ok || !p1.Explicit || !p1.BoundaryFlag || p1.Distance != 180000>>4 {
		t.Errorf("partition 1 = %+v", p1)
	}
	p2, ok := out.Partition(2)
	if !ok || p2.Explicit || p2.EBPPID != 0x100 || p2.RepresentationID != 42 {
		t.Errorf("partition 2 = %+v", p2)
	}
	if _, ok := out.Partition(5); ok {
		t.Error("partition 5 should be absent")
	}
}

func TestDecodeDescriptorErrors(t *testing.T) {
	t.Parallel()

	dup := (&Descriptor{Partitions: []DescriptorPartition{
		{ID: 1, Explicit: true}, {ID: 1, Explicit: true},
	}}).Encode()

	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "missing partitions", data: []byte{0x10}},
		{name: "duplicate partition", data: dup[2:]},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := DecodeDescriptor(tc.data); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func FuzzDecodeDescriptor(f *testing.F) {
	f.Add((&Descriptor{Partitions: []DescriptorPartition{{ID: 1, Explicit: true}}}).Encode()[2:])
	f.Add([]byte{0xFF, 0xFF, 0xFF})

	f.Fuzz(func(t *testing.T, data []byte) {
		DecodeDescriptor(data) // must not panic
	})
}

func FuzzParse(f *testing.F) {
	f.Add([]byte{0xE2, 0x3F})
	f.Add([]byte{0xFF})

	f.Fuzz(func(t *testing.T, data []byte) {
		Parse(data) // must not panic
	})
}
