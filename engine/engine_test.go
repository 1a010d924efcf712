package engine

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Carmen-Shannon/prism/engine/backend"
	"github.com/Carmen-Shannon/prism/engine/camera"
	"github.com/Carmen-Shannon/prism/engine/effect"
	"github.com/Carmen-Shannon/prism/engine/material"
	"github.com/Carmen-Shannon/prism/engine/mesh"
	"github.com/Carmen-Shannon/prism/engine/postprocess"
	"github.com/Carmen-Shannon/prism/engine/profiler"
	"github.com/Carmen-Shannon/prism/engine/scene"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, options ...EngineBuilderOption) (Engine, *backend.Headless) {
	t.Helper()
	b := backend.NewHeadless(backend.WithSize(800, 400))
	options = append([]EngineBuilderOption{WithEffectCacheOptions(
		effect.WithSynchronousCompile(),
		effect.WithCompiler(effect.CompilerFunc(func(string, string) ([]byte, error) { return nil, nil })),
	)}, options...)
	e, err := NewEngine(b, options...)
	require.NoError(t, err)
	return e, b
}

func boxScene(t *testing.T, e Engine, name string) (scene.Scene, mesh.Mesh) {
	t.Helper()
	box := mesh.NewMesh(name+"-box", mesh.Box(1), mesh.WithMaterial(material.NewStandardMaterial(e, name)))
	s := scene.NewScene(name, e, scene.WithCameras(camera.NewCamera(name)), scene.WithMeshes(box))
	return s, box
}

func TestRenderFrameOrdersScenes(t *testing.T) {
	e, b := newTestEngine(t)
	hud, hudBox := boxScene(t, e, "hud")
	world, worldBox := boxScene(t, e, "world")
	hidden, _ := boxScene(t, e, "hidden")
	hidden.SetActive(false)
	e.AddScene(10, hud)
	e.AddScene(0, world)
	e.AddScene(5, hidden)

	var order []string
	e.SetRenderCallback(func(float32) { order = append(order, "callback") })
	b.ResetCalls()
	require.NoError(t, e.RenderFrame(0.016))

	calls := b.Calls()
	require.NotEmpty(t, calls)
	assert.Equal(t, backend.OpBeginFrame, calls[0].Op)
	assert.Equal(t, backend.OpEndFrame, calls[len(calls)-1].Op)

	var drawn []backend.GeometryID
	for _, c := range calls {
		if c.Op == backend.OpDraw {
			drawn = append(drawn, c.Geometry)
		}
	}
	assert.Equal(t, []backend.GeometryID{worldBox.GeometryID(), hudBox.GeometryID()}, drawn)
	assert.Equal(t, []string{"callback"}, order)
	assert.Equal(t, 1, b.Frames())
}

func TestSceneRegistry(t *testing.T) {
	e, _ := newTestEngine(t)
	s, _ := boxScene(t, e, "main")
	e.AddScene(1, s)
	assert.Same(t, s, e.Scene(1))
	assert.Nil(t, e.Scene(2))

	scenes := e.Scenes()
	delete(scenes, 1)
	assert.Len(t, e.Scenes(), 1, "Scenes returns a copy")

	assert.Same(t, s, e.RemoveScene(1))
	assert.Nil(t, e.RemoveScene(1))
	assert.Empty(t, e.Scenes())
}

func TestResizeUpdatesCameras(t *testing.T) {
	e, b := newTestEngine(t)
	s, _ := boxScene(t, e, "main")
	cam := s.Cameras()[0]
	pass, err := postprocess.NewPassPostProcess(s, "copy", 1, cam)
	require.NoError(t, err)
	e.AddScene(0, s)
	require.NoError(t, e.RenderFrame(0))
	before := e.Textures().Allocations()

	e.Resize(1000, 500)
	assert.Equal(t, 1, b.Count(backend.OpResize))
	assert.Equal(t, 1000, b.RenderWidth())
	assert.Equal(t, float32(2), cam.Aspect())

	require.NoError(t, e.RenderFrame(0))
	assert.Greater(t, e.Textures().Allocations(), before, "the first pass reallocates at the new size")
	rt, err := e.Textures().Get(pass.OutputTexture())
	require.NoError(t, err)
	assert.Equal(t, 1024, rt.Width)

	e.Resize(0, 10)
	assert.Equal(t, 1, b.Count(backend.OpResize), "a minimized canvas is ignored")
}

func TestRunStopsOnQuit(t *testing.T) {
	e, b := newTestEngine(t)
	frames := 0
	e.SetRenderCallback(func(float32) {
		frames++
		if frames == 3 {
			e.Quit()
		}
	})

	done := make(chan struct{})
	go func() {
		e.Run()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Quit")
	}
	assert.Equal(t, 3, b.Frames())
	e.Quit()
}

func TestRunRecoversFromPanic(t *testing.T) {
	e, b := newTestEngine(t)
	e.SetRenderCallback(func(float32) { panic("boom") })

	done := make(chan struct{})
	go func() {
		e.Run()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after a panic")
	}
	assert.Zero(t, b.Frames())
}

func TestTickCallbackRuns(t *testing.T) {
	e, _ := newTestEngine(t, WithTickRate(200))
	ticks := make(chan float32, 1)
	e.SetTickCallback(func(dt float32) {
		select {
		case ticks <- dt:
		default:
		}
	})
	e.SetRenderFrameLimit(500)

	go e.Run()
	select {
	case dt := <-ticks:
		assert.Greater(t, dt, float32(0))
	case <-time.After(5 * time.Second):
		t.Fatal("tick callback never ran")
	}
	e.Quit()
}

func TestShaderDirOverridesBuiltins(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "custom.fragment.wgsl"), []byte("// custom"), 0o644))
	e, _ := newTestEngine(t, WithShaderDir(dir, false))

	src, err := e.Effects().Store().Source("custom.fragment")
	require.NoError(t, err)
	assert.Equal(t, "// custom", src)
	_, err = e.Effects().Store().Source(material.StandardFragment)
	assert.NoError(t, err, "built-in shaders stay registered")
}

func TestMissingShaderDirFails(t *testing.T) {
	b := backend.NewHeadless()
	_, err := NewEngine(b, WithShaderDir(filepath.Join(t.TempDir(), "missing"), false))
	assert.Error(t, err)
}

func TestProfilerTracksSceneCounters(t *testing.T) {
	now := time.Unix(0, 0)
	p := profiler.NewProfiler(profiler.WithClock(func() time.Time { return now }), profiler.WithQuiet())
	e, _ := newTestEngine(t, WithProfiler(p), WithProfiling(true))
	s, _ := boxScene(t, e, "main")
	e.AddScene(0, s)

	require.NoError(t, e.RenderFrame(0))
	now = now.Add(time.Second)
	require.NoError(t, e.RenderFrame(0))

	counters := p.Last().Counters
	assert.Contains(t, counters, "main.drawCalls")
	assert.Contains(t, counters, "main.frameTime")

	e.RemoveScene(0)
	now = now.Add(time.Second)
	require.NoError(t, e.RenderFrame(0))
	assert.Empty(t, p.Last().Counters)
}

func TestDisposeReleasesEverything(t *testing.T) {
	e, b := newTestEngine(t)
	s, _ := boxScene(t, e, "main")
	_, err := postprocess.NewPassPostProcess(s, "copy", 1, s.Cameras()[0])
	require.NoError(t, err)
	e.AddScene(0, s)
	require.NoError(t, e.RenderFrame(0))
	require.NotZero(t, b.LivePrograms())

	e.Dispose()
	assert.Zero(t, b.LivePrograms())
	assert.Zero(t, b.LiveTextures())
	assert.Zero(t, e.Textures().Live())
	assert.Zero(t, e.Effects().Len())
	assert.Empty(t, e.Scenes())
	e.Dispose()
}
