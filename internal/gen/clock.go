package gen

import (
	"fmt"
	"time"
)

// creationBlock spaces facilities apart within one service day's creation
// timestamps. Facility i's cases are stamped starting at UTC midnight plus
// i*creationBlock, one millisecond per case, so creation order is strictly
// increasing across (day, facility, case) without consulting a wall clock.
// This keeps CreatedAt stable across re-runs with the same seed and
// independent of which partition subset is being generated.
const creationBlock = 30 * time.Minute

// maxFacilities bounds facility count so that facility blocks cannot spill
// into the next day's timestamps.
const maxFacilities = int(24 * time.Hour / creationBlock)

// stampClock issues creation timestamps and asserts strict monotonicity
// within a run. A violation is a generator defect, never user input.
type stampClock struct {
	last time.Time
}

// stamp returns the creation timestamp for the caseIdx-th case of the
// facIdx-th facility (full catalog order) on the given UTC day.
func (c *stampClock) stamp(dayUTC time.Time, facIdx, caseIdx int) (time.Time, error) {
	t := dayUTC.Add(time.Duration(facIdx)*creationBlock + time.Duration(caseIdx)*time.Millisecond)
	if !t.After(c.last) {
		return time.Time{}, fmt.Errorf("creation timestamp %s not after previous %s (day=%s facility=%d case=%d)",
			t.Format(time.RFC3339Nano), c.last.Format(time.RFC3339Nano), dayUTC.Format("2006-01-02"), facIdx, caseIdx)
	}
	c.last = t
	return t, nil
}
