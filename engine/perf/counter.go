// Package perf provides rolling performance counters for timings and per-frame counts.
package perf

import (
	"time"
)

// Clock returns the current time. Counters take one so tests can drive time explicitly.
type Clock func() time.Time

const lastSecondWindow = time.Second

// Counter tracks the current value of a metric plus its lifetime min, max and average and an
// average over roughly the last second. Durations are measured in microseconds.
//
// A counter is fed in one of two disciplines: durations through BeginMonitoring/EndMonitoring,
// or counts through FetchNewFrame/AddCount. Values are folded into the aggregates only when
// fetched.
type Counter struct {
	clock   Clock
	enabled bool

	current        float64
	min            float64
	max            float64
	average        float64
	lastSecAverage float64

	totalAccumulated   float64
	totalValueCount    int
	lastSecAccumulated float64
	lastSecValueCount  int
	lastSecTime        time.Time
	startMonitoring    time.Time
	hasSample          bool
	framePending       bool
}

// NewCounter creates an enabled counter.
//
// Parameters:
//   - clock: the time source; nil uses time.Now
//
// Returns:
//   - *Counter: the counter
func NewCounter(clock Clock) *Counter {
	if clock == nil {
		clock = time.Now
	}
	return &Counter{
		clock:       clock,
		enabled:     true,
		lastSecTime: clock(),
	}
}

// Enabled reports whether the counter records values.
func (c *Counter) Enabled() bool { return c.enabled }

// SetEnabled turns recording on or off.
func (c *Counter) SetEnabled(enabled bool) { c.enabled = enabled }

// Current returns the value of the current frame.
func (c *Counter) Current() float64 { return c.current }

// Min returns the smallest folded value.
func (c *Counter) Min() float64 { return c.min }

// Max returns the largest folded value.
func (c *Counter) Max() float64 { return c.max }

// Average returns the lifetime average of folded values.
func (c *Counter) Average() float64 { return c.average }

// LastSecAverage returns the average over the last completed one-second window.
func (c *Counter) LastSecAverage() float64 { return c.lastSecAverage }

// Total returns the sum of all folded values.
func (c *Counter) Total() float64 { return c.totalAccumulated }

// Count returns the number of frames started.
func (c *Counter) Count() int { return c.totalValueCount }

// FetchNewFrame starts a new frame: the sample counters advance and current resets to zero.
// Starting a frame while the previous one has not been folded yet reuses that frame slot.
func (c *Counter) FetchNewFrame() {
	if !c.enabled {
		return
	}
	c.current = 0
	if c.framePending {
		return
	}
	c.totalValueCount++
	c.lastSecValueCount++
	c.framePending = true
}

// AddCount adds n to the current frame.
//
// Parameters:
//   - n: the amount to add
//   - fetchResult: whether to fold the current value into the aggregates immediately
func (c *Counter) AddCount(n float64, fetchResult bool) {
	if !c.enabled {
		return
	}
	c.current += n
	if fetchResult {
		c.fetchResult()
	}
}

// BeginMonitoring starts a duration measurement.
func (c *Counter) BeginMonitoring() {
	if !c.enabled {
		return
	}
	c.startMonitoring = c.clock()
}

// EndMonitoring ends a duration measurement and stores the elapsed microseconds as the current value.
//
// Parameters:
//   - newFrame: whether to start a new frame and fold the measurement into the aggregates
func (c *Counter) EndMonitoring(newFrame bool) {
	if !c.enabled {
		return
	}
	if newFrame {
		c.FetchNewFrame()
	}
	c.current = float64(c.clock().Sub(c.startMonitoring).Microseconds())
	if newFrame {
		c.fetchResult()
	}
}

func (c *Counter) fetchResult() {
	if c.totalValueCount == 0 {
		c.totalValueCount = 1
		c.lastSecValueCount = 1
	}
	c.framePending = false

	c.totalAccumulated += c.current
	c.lastSecAccumulated += c.current

	if !c.hasSample {
		c.min, c.max = c.current, c.current
		c.hasSample = true
	} else {
		c.min = min(c.min, c.current)
		c.max = max(c.max, c.current)
	}
	c.average = c.totalAccumulated / float64(c.totalValueCount)

	now := c.clock()
	if now.Sub(c.lastSecTime) >= lastSecondWindow {
		if c.lastSecValueCount > 0 {
			c.lastSecAverage = c.lastSecAccumulated / float64(c.lastSecValueCount)
		}
		c.lastSecTime = now
		c.lastSecAccumulated = 0
		c.lastSecValueCount = 0
	}
}
