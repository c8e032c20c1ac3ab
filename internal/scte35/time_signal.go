package scte35

import (
	"fmt"

	"github.com/stfn345/ats-ebp-validator/internal/bitio"
)

// TimeSignal carries a splice time for the descriptors in its section.
type TimeSignal struct {
	SpliceTime SpliceTime
}

func (cmd *TimeSignal) Type() uint32 { return TimeSignalType }

func (cmd *TimeSignal) decode(data []byte) error {
	r := bitio.NewReader(data)
	cmd.SpliceTime.decode(r)
	if r.Overflow() {
		return fmt.Errorf("time_signal truncated")
	}
	return nil
}

func (cmd *TimeSignal) encode() ([]byte, error) {
	w := bitio.NewWriter(5)
	cmd.SpliceTime.encode(w)
	return w.Bytes(), nil
}

func (cmd *TimeSignal) commandLength() int {
	if cmd.SpliceTime.PTSTime != nil {
		return 5
	}
	return 1
}
