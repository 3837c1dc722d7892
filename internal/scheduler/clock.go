package scheduler

import "time"

// TagClock tracks the last execution time per tag index and decides, each
// tick, whether a tag is due. It is not safe for concurrent use; the owning
// scheduler serializes access.
type TagClock struct {
	lastRun      map[int]time.Time
	lastInterval map[int]time.Duration
}

// NewTagClock creates an empty clock; every tag starts out due.
func NewTagClock() *TagClock {
	return &TagClock{
		lastRun:      make(map[int]time.Time),
		lastInterval: make(map[int]time.Duration),
	}
}

// IsDue reports whether the tag at index should run now. A tag is due the
// first time it is observed and thereafter whenever the interval has fully
// elapsed. A changed interval clears the tag's last run, so configuration
// edits take effect on the next tick.
func (c *TagClock) IsDue(index int, interval time.Duration, now time.Time) bool {
	if prev, ok := c.lastInterval[index]; ok && prev != interval {
		delete(c.lastRun, index)
	}
	c.lastInterval[index] = interval

	last, ok := c.lastRun[index]
	if !ok {
		return true
	}
	return now.Sub(last) >= interval
}

// MarkRun records that the tag at index ran at now.
func (c *TagClock) MarkRun(index int, now time.Time) {
	c.lastRun[index] = now
}

// Forget drops all state for the tag at index, used when tags are removed
// or reindexed.
func (c *TagClock) Forget(index int) {
	delete(c.lastRun, index)
	delete(c.lastInterval, index)
}

// Reset drops all per-tag state.
func (c *TagClock) Reset() {
	c.lastRun = make(map[int]time.Time)
	c.lastInterval = make(map[int]time.Duration)
}
