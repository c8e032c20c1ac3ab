package scte35

import (
	"fmt"

	"github.com/stfn345/ats-ebp-validator/internal/bitio"
)

// SpliceInsert signals a splice point for the whole program or for a list
// of components identified by stream_identifier component tags.
type SpliceInsert struct {
	SpliceEventID              uint32
	SpliceEventCancelIndicator bool
	OutOfNetworkIndicator      bool
	ProgramSpliceFlag          bool
	SpliceImmediateFlag        bool
	SpliceTime                 SpliceTime
	Components                 []SpliceComponent
	BreakDuration              *BreakDuration
	UniqueProgramID            uint32
	AvailNum                   uint32
	AvailsExpected             uint32
}

// SpliceComponent is one component entry of a component-mode splice_insert.
type SpliceComponent struct {
	Tag        uint8
	SpliceTime SpliceTime
}

func (cmd *SpliceInsert) Type() uint32 { return SpliceInsertType }

func (cmd *SpliceInsert) decode(data []byte) error {
	r := bitio.NewReader(data)
	cmd.SpliceEventID = r.ReadUint32(32)
	cmd.SpliceEventCancelIndicator = r.ReadBit()
	r.Skip(7) // reserved
	if cmd.SpliceEventCancelIndicator {
		if r.Overflow() {
			return fmt.Errorf("splice_insert truncated")
		}
		return nil
	}

	cmd.OutOfNetworkIndicator = r.ReadBit()
	cmd.ProgramSpliceFlag = r.ReadBit()
	durationFlag := r.ReadBit()
	cmd.SpliceImmediateFlag = r.ReadBit()
	r.Skip(4) // reserved

	if cmd.ProgramSpliceFlag {
		if !cmd.SpliceImmediateFlag {
			cmd.SpliceTime.decode(r)
		}
	} else {
		count := int(r.ReadUint32(8))
		for i := 0; i < count && !r.Overflow(); i++ {
			c := SpliceComponent{Tag: uint8(r.ReadUint32(8))}
			if !cmd.SpliceImmediateFlag {
				c.SpliceTime.decode(r)
			}
			cmd.Components = append(cmd.Components, c)
		}
	}

	if durationFlag {
		cmd.BreakDuration = &BreakDuration{}
		cmd.BreakDuration.AutoReturn = r.ReadBit()
		r.Skip(6) // reserved
		cmd.BreakDuration.Duration = r.ReadUint64(33)
	}
	cmd.UniqueProgramID = r.ReadUint32(16)
	cmd.AvailNum = r.ReadUint32(8)
	cmd.AvailsExpected = r.ReadUint32(8)

	if r.Overflow() {
		return fmt.Errorf("splice_insert truncated")
	}
	return nil
}

func (cmd *SpliceInsert) encode() ([]byte, error) {
	if len(cmd.Components) > 0xFF {
		return nil, fmt.Errorf("scte35: splice_insert with %d components", len(cmd.Components))
	}

	w := bitio.NewWriter(20)
	w.PutUint32(32, cmd.SpliceEventID)
	w.PutBit(cmd.SpliceEventCancelIndicator)
	w.PutUint32(7, 0x7F) // reserved
	if cmd.SpliceEventCancelIndicator {
		return w.Bytes(), nil
	}

	w.PutBit(cmd.OutOfNetworkIndicator)
	w.PutBit(cmd.ProgramSpliceFlag)
	w.PutBit(cmd.BreakDuration != nil)
	w.PutBit(cmd.SpliceImmediateFlag)
	w.PutUint32(4, 0x0F) // reserved

	if cmd.ProgramSpliceFlag {
		if !cmd.SpliceImmediateFlag {
			cmd.SpliceTime.encode(w)
		}
	} else {
		w.PutUint32(8, uint32(len(cmd.Components)))
		for _, c := range cmd.Components {
			w.PutUint32(8, uint32(c.Tag))
			if !cmd.SpliceImmediateFlag {
				c.SpliceTime.encode(w)
			}
		}
	}

	if cmd.BreakDuration != nil {
		w.PutBit(cmd.BreakDuration.AutoReturn)
		w.PutUint32(6, 0x3F) // reserved
		w.PutUint64(33, cmd.BreakDuration.Duration)
	}
	w.PutUint32(16, cmd.UniqueProgramID)
	w.PutUint32(8, cmd.AvailNum)
	w.PutUint32(8, cmd.AvailsExpected)
	return w.Bytes(), nil
}

func (cmd *SpliceInsert) commandLength() int {
	b, err := cmd.encode()
	if err != nil {
		return 0
	}
	return len(b)
}
