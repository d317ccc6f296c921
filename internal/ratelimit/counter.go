// Package ratelimit throttles repetitive log lines from hot callback paths.
package ratelimit

import (
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Counter tracks how often a condition occurred and when it was last logged.
// It is safe for concurrent use.
type Counter struct {
	interval   time.Duration
	lastLog    atomic.Int64
	total      atomic.Uint64
	suppressed atomic.Uint64
}

// NewCounter allows a log at most once per interval. A zero or negative
// interval disables throttling.
func NewCounter(interval time.Duration) *Counter {
	return &Counter{interval: interval}
}

// Inc records one occurrence and reports whether it may be logged, along
// with how many occurrences were suppressed since the last allowed one.
func (c *Counter) Inc() (allowed bool, suppressed uint64) {
	if c == nil {
		return false, 0
	}
	c.total.Add(1)
	if c.interval > 0 {
		now := time.Now().UnixNano()
		last := c.lastLog.Load()
		if now-last < c.interval.Nanoseconds() || !c.lastLog.CompareAndSwap(last, now) {
			c.suppressed.Add(1)
			return false, 0
		}
	}
	return true, c.suppressed.Swap(0)
}

// Total returns the number of recorded occurrences.
func (c *Counter) Total() uint64 {
	if c == nil {
		return 0
	}
	return c.total.Load()
}

// Warnf logs through entry when the counter allows it, annotating the line
// with the number of suppressed repeats.
func (c *Counter) Warnf(entry *logrus.Entry, format string, args ...interface{}) {
	allowed, suppressed := c.Inc()
	if !allowed {
		return
	}
	if suppressed > 0 {
		entry = entry.WithField("suppressed", suppressed)
	}
	entry.Warnf(format, args...)
}
