package effect

import (
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Carmen-Shannon/prism/engine/backend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	basicVertex   = "@vertex fn vs_main() -> @builtin(position) vec4<f32> { return vec4<f32>(0.0); }"
	basicFragment = "#ifdef FOG\n#include<fog>\n#endif\n@fragment fn fs_main() -> @location(0) vec4<f32> { return vec4<f32>(1.0); }"
	fogSource     = "fn fog(c: vec4<f32>) -> vec4<f32> { return c; }"
)

func newTestStore() ShaderStore {
	s := NewShaderStore()
	s.Register("basic.vertex", basicVertex)
	s.Register("basic.fragment", basicFragment)
	s.Register("fog", fogSource)
	return s
}

type countingCompiler struct {
	calls atomic.Int32
	err   error
}

func (c *countingCompiler) Compile(name, source string) ([]byte, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return []byte(name), nil
}

func basicOptions() Options {
	return Options{
		Vertex:     "basic.vertex",
		Fragment:   "basic.fragment",
		Attributes: []string{"position"},
		Uniforms:   []string{"scale"},
		Samplers:   []string{"textureSampler"},
		Defines:    JoinDefines("FOG"),
	}
}

// drain polls until no compilation is in flight.
func drain(t *testing.T, c Cache) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.Poll()
		if c.Pending() == 0 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("compilations still pending after timeout: %d", c.Pending())
}

func TestOptionsKey(t *testing.T) {
	a := basicOptions()
	b := basicOptions()
	assert.Equal(t, a.Key(), b.Key())

	b.Defines = JoinDefines("FOG", "SHADOWS")
	assert.NotEqual(t, a.Key(), b.Key())

	a.IndexParameters = map[string]int{"b": 2, "a": 1}
	c := basicOptions()
	c.IndexParameters = map[string]int{"a": 1, "b": 2}
	assert.Equal(t, a.Key(), c.Key())
}

func TestIdenticalRequestsCompileOnce(t *testing.T) {
	hb := backend.NewHeadless()
	compiler := &countingCompiler{}
	c := NewCache(hb, WithStore(newTestStore()), WithCompiler(compiler), WithWorkers(2))

	var compiled atomic.Int32
	opts := basicOptions()
	opts.OnCompiled = func(*Effect) { compiled.Add(1) }

	first := c.GetOrCreate(opts)
	second := c.GetOrCreate(opts)
	assert.Same(t, first, second)
	assert.Equal(t, 1, c.Len())

	drain(t, c)
	assert.True(t, first.IsReady())
	assert.Equal(t, int32(2), compiler.calls.Load(), "vertex and fragment compiled once each")
	assert.Equal(t, int32(2), compiled.Load())
	assert.Equal(t, 1, hb.Count(backend.OpCreateEffect))

	// a late subscriber on a ready effect is called immediately
	third := c.GetOrCreate(opts)
	assert.Same(t, first, third)
	assert.Equal(t, int32(3), compiled.Load())
	assert.Equal(t, int32(2), compiler.calls.Load())
}

func TestDifferentDefinesCompileSeparately(t *testing.T) {
	hb := backend.NewHeadless()
	c := NewCache(hb, WithStore(newTestStore()), WithCompiler(&countingCompiler{}), WithSynchronousCompile())

	a := c.GetOrCreate(basicOptions())
	opts := basicOptions()
	opts.Defines = ""
	b := c.GetOrCreate(opts)
	assert.NotSame(t, a, b)
	assert.True(t, a.IsReady())
	assert.True(t, b.IsReady())
	assert.NotEqual(t, a.Program(), b.Program())
}

func TestFailureInvokesCallbackOnceWithoutRetry(t *testing.T) {
	hb := backend.NewHeadless()
	compiler := &countingCompiler{err: fmt.Errorf("%w: bad token", ErrCompileFailed)}
	c := NewCache(hb, WithStore(newTestStore()), WithCompiler(compiler))

	var failures atomic.Int32
	opts := basicOptions()
	opts.OnError = func(e *Effect, err error) {
		failures.Add(1)
		assert.ErrorIs(t, err, ErrCompileFailed)
	}
	e := c.GetOrCreate(opts)
	drain(t, c)

	assert.True(t, e.Failed())
	assert.False(t, e.IsReady())
	assert.ErrorIs(t, e.CompilationError(), ErrCompileFailed)
	assert.Equal(t, int32(1), failures.Load())

	for i := 0; i < 3; i++ {
		c.Poll()
	}
	assert.Equal(t, int32(1), compiler.calls.Load())
	assert.Equal(t, int32(1), failures.Load())
	assert.Equal(t, 0, hb.LivePrograms())

	// requesting the failed tuple again reports the stored error without recompiling
	again := c.GetOrCreate(opts)
	assert.Same(t, e, again)
	assert.Equal(t, int32(2), failures.Load())
	assert.Equal(t, int32(1), compiler.calls.Load())
}

func TestMissingSourceFails(t *testing.T) {
	c := NewCache(backend.NewHeadless(), WithCompiler(&countingCompiler{}), WithSynchronousCompile())
	e := c.GetOrCreate(Options{Vertex: "nope", Fragment: "nope"})
	assert.True(t, e.Failed())
	assert.ErrorIs(t, e.CompilationError(), ErrUnknownSource)
}

func TestBackendProgramFailure(t *testing.T) {
	hb := backend.NewHeadless(backend.WithEffectFailure(func(backend.ProgramDescriptor) error {
		return errors.New("pipeline rejected")
	}))
	c := NewCache(hb, WithStore(newTestStore()), WithCompiler(&countingCompiler{}), WithSynchronousCompile())
	e := c.GetOrCreate(basicOptions())
	assert.True(t, e.Failed())
	assert.ErrorIs(t, e.CompilationError(), ErrCompileFailed)
}

func TestLateCompletionAfterReleaseIsDropped(t *testing.T) {
	hb := backend.NewHeadless()
	gate := make(chan struct{})
	compiler := CompilerFunc(func(name, source string) ([]byte, error) {
		<-gate
		return nil, nil
	})
	c := NewCache(hb, WithStore(newTestStore()), WithCompiler(compiler))

	var compiled atomic.Int32
	opts := basicOptions()
	opts.OnCompiled = func(*Effect) { compiled.Add(1) }
	e := c.GetOrCreate(opts)
	assert.Equal(t, 1, c.Pending())

	c.Release(e)
	assert.False(t, e.Alive())
	assert.Equal(t, 0, c.Len())

	close(gate)
	drain(t, c)
	assert.False(t, e.IsReady())
	assert.Equal(t, int32(0), compiled.Load())
	assert.Equal(t, 0, hb.Count(backend.OpCreateEffect))
	assert.Equal(t, 0, hb.LivePrograms())
}

func TestReleaseIsRefCounted(t *testing.T) {
	hb := backend.NewHeadless()
	c := NewCache(hb, WithStore(newTestStore()), WithCompiler(&countingCompiler{}), WithSynchronousCompile())

	e := c.GetOrCreate(basicOptions())
	c.GetOrCreate(basicOptions())
	assert.Equal(t, 1, hb.LivePrograms())

	c.Release(e)
	assert.True(t, e.IsReady())
	assert.Equal(t, 1, hb.LivePrograms())

	c.Release(e)
	assert.False(t, e.IsReady())
	assert.Equal(t, 0, hb.LivePrograms())
	assert.Equal(t, 1, hb.Count(backend.OpReleaseEffect))

	c.Release(e)
	assert.Equal(t, 1, hb.Count(backend.OpReleaseEffect))
}

func TestSourceEditInvalidatesDependents(t *testing.T) {
	hb := backend.NewHeadless()
	store := newTestStore()
	compiler := &countingCompiler{}
	c := NewCache(hb, WithStore(store), WithCompiler(compiler), WithSynchronousCompile())

	withFog := c.GetOrCreate(basicOptions())
	other := c.GetOrCreate(Options{Vertex: "basic.vertex", Fragment: "basic.vertex"})
	require.True(t, withFog.IsReady())
	calls := compiler.calls.Load()

	store.Register("fog", "fn fog(c: vec4<f32>) -> vec4<f32> { return c * 0.5; }")
	c.Poll()

	assert.True(t, withFog.IsStale())
	assert.False(t, other.IsStale())
	assert.Equal(t, 1, c.Len())

	fresh := c.GetOrCreate(basicOptions())
	assert.NotSame(t, withFog, fresh)
	assert.True(t, fresh.IsReady())
	assert.Greater(t, compiler.calls.Load(), calls)

	// the stale holder still owns its program until it releases it
	assert.Equal(t, 3, hb.LivePrograms())
	c.Release(withFog)
	assert.Equal(t, 2, hb.LivePrograms())
}

func TestDisposeReleasesPrograms(t *testing.T) {
	hb := backend.NewHeadless()
	store := newTestStore()
	c := NewCache(hb, WithStore(store), WithCompiler(&countingCompiler{}), WithSynchronousCompile())
	c.GetOrCreate(basicOptions())
	c.GetOrCreate(Options{Vertex: "basic.vertex", Fragment: "basic.vertex"})
	c.Invalidate("basic.vertex")
	c.GetOrCreate(basicOptions())
	assert.Equal(t, 3, hb.LivePrograms())

	c.Dispose()
	assert.Equal(t, 0, hb.LivePrograms())
	assert.Equal(t, 0, c.Len())
}

func TestRequestsBeyondQueueSizeDoNotBlock(t *testing.T) {
	hb := backend.NewHeadless()
	gate := make(chan struct{})
	compiler := CompilerFunc(func(name, source string) ([]byte, error) {
		<-gate
		return nil, nil
	})
	c := NewCache(hb, WithStore(newTestStore()), WithCompiler(compiler), WithWorkers(2), WithQueueSize(4))
	defer c.Dispose()

	const requests = 50
	effects := make([]*Effect, 0, requests)
	submitted := make(chan struct{})
	go func() {
		defer close(submitted)
		for i := range requests {
			opts := basicOptions()
			opts.Defines = JoinDefines(fmt.Sprintf("VARIANT%d", i))
			effects = append(effects, c.GetOrCreate(opts))
		}
	}()
	select {
	case <-submitted:
	case <-time.After(2 * time.Second):
		close(gate)
		t.Fatal("GetOrCreate blocked while the workers were busy")
	}
	assert.Equal(t, requests, c.Pending())
	assert.Zero(t, c.Poll(), "nothing has finished yet")

	close(gate)
	drain(t, c)
	for _, e := range effects {
		assert.True(t, e.IsReady())
	}
	assert.Equal(t, requests, hb.Count(backend.OpCreateEffect))
}

func TestDisposeStopsWorkers(t *testing.T) {
	baseline := runtime.NumGoroutine()
	for range 10 {
		c := NewCache(backend.NewHeadless(), WithStore(newTestStore()), WithCompiler(&countingCompiler{}), WithWorkers(3))
		e := c.GetOrCreate(basicOptions())
		drain(t, c)
		require.True(t, e.IsReady())
		c.Dispose()
		c.Dispose()
	}
	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= baseline
	}, 2*time.Second, 10*time.Millisecond, "compile workers outlived Dispose")
}
