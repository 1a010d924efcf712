package profiler

import (
	"time"

	"github.com/Carmen-Shannon/prism/engine/perf"
)

// ProfilerBuilderOption is a functional option for configuring a Profiler.
type ProfilerBuilderOption func(*Profiler)

// WithInterval sets how often a report is produced.
//
// Parameters:
//   - d: the report interval; values <= 0 keep the default of one second
//
// Returns:
//   - ProfilerBuilderOption: option function to apply
func WithInterval(d time.Duration) ProfilerBuilderOption {
	return func(p *Profiler) {
		if d > 0 {
			p.updateInterval = d
		}
	}
}

// WithClock sets the time source used to measure the interval.
func WithClock(clock perf.Clock) ProfilerBuilderOption {
	return func(p *Profiler) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// WithQuiet suppresses the log line; reports are still available through Last.
func WithQuiet() ProfilerBuilderOption {
	return func(p *Profiler) {
		p.quiet = true
	}
}
