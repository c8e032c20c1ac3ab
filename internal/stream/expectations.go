package stream

import (
	"sort"

	"github.com/stfn345/ats-ebp-validator/internal/media"
)

// Expectations is a PTS-ascending list of SCTE-35 splice times a partition
// is expected to place a boundary at. It also remembers resolved
// expectations so a splice announced again after it was matched or pruned
// is not re-armed. Not safe for concurrent use; Partition guards it.
type Expectations struct {
	pending  []int64
	resolved map[int64]struct{}
}

// Add inserts pts in ascending order. It reports false when pts is already
// pending or was resolved earlier.
func (e *Expectations) Add(pts int64) bool {
	if _, ok := e.resolved[pts]; ok {
		return false
	}
	i := sort.Search(len(e.pending), func(i int) bool {
		return media.PTSDiff(e.pending[i], pts) >= 0
	})
	if i < len(e.pending) && e.pending[i] == pts {
		return false
	}
	e.pending = append(e.pending, 0)
	copy(e.pending[i+1:], e.pending[i:])
	e.pending[i] = pts
	return true
}

// Match removes and returns the first expectation within tol of pts.
func (e *Expectations) Match(pts, tol int64) (int64, bool) {
	for i, want := range e.pending {
		d := media.PTSDiff(pts, want)
		if d >= -tol && d <= tol {
			e.remove(i)
			return want, true
		}
	}
	return 0, false
}

// Prune removes and returns every expectation that pts has passed by more
// than tol. Each one is a splice point no boundary matched.
func (e *Expectations) Prune(pts, tol int64) []int64 {
	var stale []int64
	for len(e.pending) > 0 && media.PTSDiff(pts, e.pending[0]) > tol {
		stale = append(stale, e.pending[0])
		e.remove(0)
	}
	return stale
}

// Pending returns a copy of the outstanding expectations.
func (e *Expectations) Pending() []int64 {
	return append([]int64(nil), e.pending...)
}

// Len returns the number of outstanding expectations.
func (e *Expectations) Len() int { return len(e.pending) }

func (e *Expectations) remove(i int) {
	if e.resolved == nil {
		e.resolved = make(map[int64]struct{})
	}
	e.resolved[e.pending[i]] = struct{}{}
	e.pending = append(e.pending[:i], e.pending[i+1:]...)
}
