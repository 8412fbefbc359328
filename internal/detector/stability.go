package detector

import "github.com/ayusman/doccapture/internal/geometry"

// Tracker counts consecutive frames with a detection and records the latest
// quad once the count passes the threshold. It is not safe for concurrent use.
type Tracker struct {
	threshold  int
	clearAfter int

	counter int
	misses  int
	stable  *geometry.Quad
}

// NewTracker creates a Tracker. A quad is promoted once the counter exceeds
// threshold; clearAfter > 0 drops the stable quad after that many misses.
func NewTracker(threshold, clearAfter int) *Tracker {
	return &Tracker{threshold: threshold, clearAfter: clearAfter}
}

// Observe records one frame's result and reports whether the stable quad was
// updated. A nil quad resets the counter.
func (t *Tracker) Observe(q *geometry.Quad) bool {
	if q == nil {
		t.counter = 0
		t.misses++
		if t.clearAfter > 0 && t.misses >= t.clearAfter {
			t.stable = nil
		}
		return false
	}

	t.misses = 0
	t.counter++
	if t.counter > t.threshold {
		stable := *q
		t.stable = &stable
		return true
	}
	return false
}

// Counter returns the current consecutive-detection count.
func (t *Tracker) Counter() int {
	return t.counter
}

// Stable returns a copy of the stable quad, or nil.
func (t *Tracker) Stable() *geometry.Quad {
	if t.stable == nil {
		return nil
	}
	q := *t.stable
	return &q
}

// Reset clears the counter and the stable quad.
func (t *Tracker) Reset() {
	t.counter = 0
	t.misses = 0
	t.stable = nil
}
