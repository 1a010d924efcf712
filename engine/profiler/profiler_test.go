package profiler

import (
	"testing"
	"time"

	"github.com/Carmen-Shannon/prism/engine/perf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestTickReportsOncePerInterval(t *testing.T) {
	clock := &fakeClock{now: time.Unix(100, 0)}
	p := NewProfiler(WithClock(clock.Now), WithQuiet())

	for range 9 {
		clock.Advance(100 * time.Millisecond)
		assert.False(t, p.Tick())
	}
	clock.Advance(100 * time.Millisecond)
	require.True(t, p.Tick())
	assert.InDelta(t, 10, p.Last().FPS, 1e-9)

	clock.Advance(100 * time.Millisecond)
	assert.False(t, p.Tick(), "the interval restarts after a report")
}

func TestTrackedCountersAreReported(t *testing.T) {
	clock := &fakeClock{now: time.Unix(100, 0)}
	draws := perf.NewCounter(clock.Now)
	p := NewProfiler(WithClock(clock.Now), WithInterval(2*time.Second), WithQuiet())
	p.Track("main.drawCalls", draws)
	p.Track("main.activeMeshes", perf.NewCounter(clock.Now))
	p.Track("hud.drawCalls", perf.NewCounter(clock.Now))

	for range 4 {
		draws.FetchNewFrame()
		draws.AddCount(12, false)
		draws.AddCount(0, true)
		clock.Advance(600 * time.Millisecond)
	}
	require.True(t, p.Tick())
	assert.Equal(t, draws.LastSecAverage(), p.Last().Counters["main.drawCalls"])
	assert.Len(t, p.Last().Counters, 3)

	p.Untrack("main.")
	clock.Advance(2 * time.Second)
	require.True(t, p.Tick())
	assert.Equal(t, []string{"hud.drawCalls"}, keys(p.Last().Counters))
}

func TestTrackReplacesByName(t *testing.T) {
	p := NewProfiler(WithQuiet())
	a, b := perf.NewCounter(nil), perf.NewCounter(nil)
	p.Track("frameTime", a)
	p.Track("frameTime", b)
	require.Len(t, p.tracked, 1)
	assert.Same(t, b, p.tracked[0].counter)
}

func keys(m map[string]float64) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
