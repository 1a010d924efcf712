package profiler

import (
	"fmt"
	"log"
	"runtime"
	"strings"
	"time"

	"github.com/Carmen-Shannon/prism/engine/perf"
)

// Report is the summary produced each time the update interval elapses.
type Report struct {
	FPS         float64
	HeapMB      float64
	AllocRateMB float64
	SysMB       float64
	GCCount     uint32
	LastPauseUs uint64
	MaxPauseUs  uint64

	// Counters holds the last-second average of every tracked counter, keyed by name.
	Counters map[string]float64
}

type tracked struct {
	name    string
	counter *perf.Counter
}

// Profiler tracks frame rate, memory statistics and engine perf counters.
// Outputs stats to the log at a configurable interval.
type Profiler struct {
	frameCount     int
	lastTime       time.Time
	updateInterval time.Duration
	clock          perf.Clock
	quiet          bool
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64

	tracked []tracked
	last    Report
}

// NewProfiler creates a new Profiler.
// Update interval defaults to 1 second.
//
// Parameters:
//   - options: variadic ProfilerBuilderOption functions
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(options ...ProfilerBuilderOption) *Profiler {
	p := &Profiler{
		updateInterval: time.Second,
		clock:          time.Now,
	}
	for _, opt := range options {
		opt(p)
	}
	p.lastTime = p.clock()
	return p
}

// Track adds a counter to the periodic report. Tracking a name twice replaces the counter.
//
// Parameters:
//   - name: the label used in the log line and Report.Counters
//   - c: the counter to sample
func (p *Profiler) Track(name string, c *perf.Counter) {
	for i := range p.tracked {
		if p.tracked[i].name == name {
			p.tracked[i].counter = c
			return
		}
	}
	p.tracked = append(p.tracked, tracked{name: name, counter: c})
}

// Untrack removes every counter whose name starts with prefix.
//
// Parameters:
//   - prefix: the name prefix, e.g. "main." for one scene's counters
func (p *Profiler) Untrack(prefix string) {
	kept := p.tracked[:0]
	for _, t := range p.tracked {
		if !strings.HasPrefix(t.name, prefix) {
			kept = append(kept, t)
		}
	}
	p.tracked = kept
}

// Last returns the most recent report.
func (p *Profiler) Last() Report { return p.last }

// Tick should be called once per frame to track frame timing.
// Logs performance statistics when the update interval has elapsed.
// Statistics include: FPS, heap usage, allocation rate, GC count/pause times, total memory and
// the last-second average of each tracked counter.
//
// Returns:
//   - bool: true if stats were reported this tick, false otherwise
func (p *Profiler) Tick() bool {
	p.frameCount++
	currentTime := p.clock()
	elapsed := currentTime.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return false
	}

	runtime.ReadMemStats(&p.memStats)
	// Alloc: live heap. TotalAlloc: cumulative, tracks churn. Sys: process footprint.
	r := Report{
		FPS:      float64(p.frameCount) / elapsed.Seconds(),
		HeapMB:   float64(p.memStats.Alloc) / 1024 / 1024,
		SysMB:    float64(p.memStats.Sys) / 1024 / 1024,
		GCCount:  p.memStats.NumGC,
		Counters: make(map[string]float64, len(p.tracked)),
	}
	allocDelta := p.memStats.TotalAlloc - p.lastTotalAlloc
	r.AllocRateMB = float64(allocDelta) / 1024 / 1024 / elapsed.Seconds()

	if r.GCCount > 0 {
		// PauseNs is a circular buffer of the last 256 pauses
		r.LastPauseUs = p.memStats.PauseNs[(r.GCCount-1)%256] / 1000

		startIdx := p.lastGCCount
		if r.GCCount-startIdx > 256 {
			startIdx = r.GCCount - 256
		}
		for i := startIdx; i < r.GCCount; i++ {
			if pause := p.memStats.PauseNs[i%256] / 1000; pause > r.MaxPauseUs {
				r.MaxPauseUs = pause
			}
		}
	}

	var counters strings.Builder
	for _, t := range p.tracked {
		avg := t.counter.LastSecAverage()
		r.Counters[t.name] = avg
		fmt.Fprintf(&counters, " | %s: %.2f", t.name, avg)
	}

	if !p.quiet {
		log.Printf("[Profiler] FPS: %.2f | Heap: %.2f MB | Alloc Rate: %.2f MB/s | GC: %d (last: %d µs, max: %d µs) | Sys: %.2f MB%s",
			r.FPS, r.HeapMB, r.AllocRateMB, r.GCCount, r.LastPauseUs, r.MaxPauseUs, r.SysMB, counters.String())
	}

	p.last = r
	p.frameCount = 0
	p.lastTime = currentTime
	p.lastGCCount = r.GCCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
	return true
}
