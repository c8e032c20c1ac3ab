package scte35

const ptsModulo = 1 << 33

// SplicePoint is one presentation time at which a splice is signaled.
type SplicePoint struct {
	// PTS is pts_time plus pts_adjustment, modulo 2^33.
	PTS int64

	// Program is true for program-level splices. Otherwise ComponentTag
	// names the stream_identifier component the splice applies to.
	Program      bool
	ComponentTag uint8

	Command uint32
	EventID uint32
}

// SplicePoints returns the timed splice points carried by the section.
// Cancelled and immediate splice_inserts and time_signals without a time
// carry none.
func (sis *SpliceInfoSection) SplicePoints() []SplicePoint {
	adjust := func(pts uint64) int64 {
		return int64((pts + sis.PTSAdjustment) % ptsModulo)
	}

	switch cmd := sis.SpliceCommand.(type) {
	case *TimeSignal:
		if cmd.SpliceTime.PTSTime == nil {
			return nil
		}
		return []SplicePoint{{
			PTS:     adjust(*cmd.SpliceTime.PTSTime),
			Program: true,
			Command: TimeSignalType,
		}}

	case *SpliceInsert:
		if cmd.SpliceEventCancelIndicator || cmd.SpliceImmediateFlag {
			return nil
		}
		if cmd.ProgramSpliceFlag {
			if cmd.SpliceTime.PTSTime == nil {
				return nil
			}
			return []SplicePoint{{
				PTS:     adjust(*cmd.SpliceTime.PTSTime),
				Program: true,
				Command: SpliceInsertType,
				EventID: cmd.SpliceEventID,
			}}
		}
		var points []SplicePoint
		for _, c := range cmd.Components {
			if c.SpliceTime.PTSTime == nil {
				continue
			}
			points = append(points, SplicePoint{
				PTS:          adjust(*c.SpliceTime.PTSTime),
				ComponentTag: c.Tag,
				Command:      SpliceInsertType,
				EventID:      cmd.SpliceEventID,
			})
		}
		return points
	}
	return nil
}
