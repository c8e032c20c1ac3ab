package stream

import (
	"sync"

	"github.com/stfn345/ats-ebp-validator/internal/media"
)

// TriggerQueue is the FIFO of PTS values at which an implicit partition is
// due to place a boundary.
type TriggerQueue struct {
	pts []int64
}

// Push appends pts at the tail.
func (q *TriggerQueue) Push(pts int64) { q.pts = append(q.pts, pts) }

// Head returns the oldest pending trigger.
func (q *TriggerQueue) Head() (int64, bool) {
	if len(q.pts) == 0 {
		return 0, false
	}
	return q.pts[0], true
}

// Pop removes the head.
func (q *TriggerQueue) Pop() {
	if len(q.pts) > 0 {
		q.pts = q.pts[1:]
	}
}

// Len returns the number of pending triggers.
func (q *TriggerQueue) Len() int { return len(q.pts) }

// Partition is one entry of a slot's partition table.
//
// Boundary, Implicit, Source and SAPTypeMax are set once by Configure before
// ingest starts and are read-only afterwards. The trigger queue, the
// expectations and the last PTS are reached from other ingest workers and
// are guarded by the partition's mutex.
type Partition struct {
	ID       int
	Boundary bool
	Implicit bool
	// Source is the slot whose boundaries an implicit partition mirrors.
	Source     Key
	SAPTypeMax uint8

	mu       sync.Mutex
	triggers TriggerQueue
	expect   Expectations
	lastPTS  int64
	hasLast  bool
}

// PushTrigger schedules an implicit boundary after pts.
func (p *Partition) PushTrigger(pts int64) {
	p.mu.Lock()
	p.triggers.Push(pts)
	p.mu.Unlock()
}

// TakeTrigger pops the trigger head when pts has passed it. With orEqual
// a payload at exactly the head PTS also takes it.
func (p *Partition) TakeTrigger(pts int64, orEqual bool) (int64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	head, ok := p.triggers.Head()
	if !ok {
		return 0, false
	}
	d := media.PTSDiff(pts, head)
	if d > 0 || (orEqual && d == 0) {
		p.triggers.Pop()
		return head, true
	}
	return 0, false
}

// PendingTriggers returns the number of queued implicit triggers.
func (p *Partition) PendingTriggers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.triggers.Len()
}

// AddExpectation registers a splice point. It is ignored when the
// partition has already moved more than tol past pts, or when the same
// point was seen before.
func (p *Partition) AddExpectation(pts, tol int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.hasLast && media.PTSDiff(p.lastPTS, pts) > tol {
		return false
	}
	return p.expect.Add(pts)
}

// MatchExpectation removes the first expectation within tol of pts.
func (p *Partition) MatchExpectation(pts, tol int64) (int64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.expect.Match(pts, tol)
}

// Advance records pts as the latest payload time and prunes the
// expectations it has passed by more than tol.
func (p *Partition) Advance(pts, tol int64) []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastPTS, p.hasLast = pts, true
	return p.expect.Prune(pts, tol)
}

// Expectations returns the pending splice points.
func (p *Partition) Expectations() []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.expect.Pending()
}

// LastPTS returns the last payload PTS seen by the partition.
func (p *Partition) LastPTS() (int64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastPTS, p.hasLast
}
