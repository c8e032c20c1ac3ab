// Package media defines the records that flow from the ingest workers to the
// analysis workers, and the 90 kHz timestamp arithmetic shared by every stage.
package media

import "github.com/stfn345/ats-ebp-validator/internal/ebp"

// Kind classifies an elementary stream.
type Kind int

// Elementary stream kinds relevant to boundary validation.
const (
	KindVideo Kind = iota
	KindAudio
)

func (k Kind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// Entry is a value carried by a segment queue. It is either a *Segment or
// EndOfStream; consumers switch on the concrete type.
type Entry interface {
	isEntry()
}

// Segment represents one detected boundary on one elementary stream: the
// presentation time of the payload that started it, how cleanly decoding can
// start there, and the EBP signaling that was in force.
type Segment struct {
	PTS         int64
	SAPType     uint8
	PartitionID int
	Ingest      int
	PID         uint16
	EBP         *ebp.EBP
	Descriptor  *ebp.Descriptor
}

func (*Segment) isEntry() {}

// EndOfStream marks that the producer of a queue has finished. It is always
// the last entry a queue yields.
type EndOfStream struct{}

func (EndOfStream) isEntry() {}

// IsEnd reports whether e marks the end of a queue.
func IsEnd(e Entry) bool {
	_, ok := e.(EndOfStream)
	return ok
}
