package postprocess

import (
	"testing"

	"github.com/Carmen-Shannon/prism/engine/backend"
	"github.com/Carmen-Shannon/prism/engine/camera"
	"github.com/Carmen-Shannon/prism/engine/material"
	"github.com/Carmen-Shannon/prism/engine/mesh"
	"github.com/Carmen-Shannon/prism/engine/resource"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scatteringFixture struct {
	h     *testHost
	cam   camera.Camera
	sun   mesh.Mesh
	wall  mesh.Mesh
	glass mesh.Mesh
	vls   *VolumetricLightScatteringPostProcess
}

func newScatteringFixture(t *testing.T) *scatteringFixture {
	t.Helper()
	h := newTestHost(t)
	require.NoError(t, material.RegisterShaders(h.fx.Store()))
	f := &scatteringFixture{
		h:     h,
		cam:   camera.NewCamera("main"),
		sun:   mesh.NewMesh("sun", mesh.Box(1), mesh.WithMaterial(material.NewStandardMaterial(h, "sun"))),
		wall:  mesh.NewMesh("wall", mesh.Box(1), mesh.WithPosition(0, 0, -5), mesh.WithMaterial(material.NewStandardMaterial(h, "stone"))),
		glass: mesh.NewMesh("glass", mesh.Box(1), mesh.WithPosition(1, 0, -3), mesh.WithMaterial(material.NewStandardMaterial(h, "glass", material.WithAlpha(0.5)))),
	}
	for _, m := range []mesh.Mesh{f.sun, f.wall, f.glass} {
		require.NoError(t, m.Upload(h.b))
	}
	vls, err := NewVolumetricLightScatteringPostProcess(h, "shafts", 1, f.cam, f.sun, 0)
	require.NoError(t, err)
	f.vls = vls
	return f
}

func (f *scatteringFixture) buckets() Buckets {
	return Buckets{
		Opaque:      append(f.sun.SubMeshes(), f.wall.SubMeshes()...),
		Transparent: f.glass.SubMeshes(),
	}
}

func (f *scatteringFixture) context() material.BindContext {
	f.cam.Update()
	return material.BindContext{ViewProjection: f.cam.ViewProjectionMatrix(), CameraPosition: f.cam.Position()}
}

func TestLightScatteringAttachesItself(t *testing.T) {
	f := newScatteringFixture(t)
	assert.Equal(t, 0, f.cam.IndexOf(f.vls))
	assert.Len(t, f.cam.PostProcesses(), 1)
	assert.Panics(t, func() { _, _ = NewVolumetricLightScatteringPostProcess(f.h, "none", 1, nil, nil, 0) })

	// the first pass receives the scene, so its own target needs depth
	f.vls.Activate(f.cam, resource.Handle{})
	desc, ok := f.h.b.Texture(f.h.tex.BackendID(f.vls.OutputTexture()))
	require.True(t, ok)
	assert.True(t, desc.GenerateDepthBuffer)
}

func TestLightScatteringRendersOcclusionMap(t *testing.T) {
	f := newScatteringFixture(t)
	f.h.b.ResetCalls()

	n := f.vls.RenderScene(1, f.buckets(), f.context())
	assert.Equal(t, 3, n)

	occ := f.h.tex.BackendID(f.vls.OcclusionTexture())
	require.NotZero(t, occ)
	desc, ok := f.h.b.Texture(occ)
	require.True(t, ok)
	assert.Equal(t, 1024, desc.Width)
	assert.Equal(t, 1024, desc.Height)
	assert.True(t, desc.GenerateDepthBuffer)

	calls := f.h.b.Calls()
	assert.Equal(t, backend.Call{Op: backend.OpBindFramebuffer, Texture: occ}, lastCall(f.h.b, backend.OpBindFramebuffer))
	assert.Equal(t, backend.Color{A: 1}, lastCall(f.h.b, backend.OpClear).Color, "occluders draw over black")
	assert.Equal(t, backend.Call{Op: backend.OpUnBindFramebuffer, Texture: occ}, calls[len(calls)-1])

	var d []backend.Call
	for _, c := range calls {
		if c.Op == backend.OpDraw {
			d = append(d, c)
		}
	}
	require.Len(t, d, 3)
	for _, c := range d {
		assert.Equal(t, occ, c.Texture)
	}
	sunProgram := f.sun.Material().Effect().Program()
	assert.Equal(t, sunProgram, d[0].Program, "the source keeps its own material")
	assert.NotEqual(t, sunProgram, d[1].Program)
	assert.Equal(t, d[1].Program, d[2].Program, "every other mesh shares the occlusion effect")
	assert.Equal(t, backend.AlphaCombine, d[2].Mode)

	world := f.wall.WorldMatrix()
	assert.Equal(t, world[:], f.h.b.Uniform(d[1].Program, "world")[:16])

	// a second frame at the same size reuses the map
	f.vls.RenderScene(2, f.buckets(), f.context())
	assert.Equal(t, 1, f.h.b.Count(backend.OpCreateRenderTarget))
}

func TestLightScatteringExcludedMeshes(t *testing.T) {
	f := newScatteringFixture(t)
	f.vls.Exclude(f.wall)
	assert.Equal(t, 2, f.vls.RenderScene(1, f.buckets(), f.context()))
	f.vls.Include(f.wall)
	assert.Equal(t, 3, f.vls.RenderScene(2, f.buckets(), f.context()))
}

func TestLightScatteringApplyBindsOcclusionAndPosition(t *testing.T) {
	f := newScatteringFixture(t)
	f.vls.RenderScene(1, f.buckets(), f.context())
	f.vls.Activate(f.cam, resource.Handle{})
	require.True(t, f.vls.Apply())

	prog := f.vls.Effect().Program()
	assert.Equal(t, f.h.tex.BackendID(f.vls.OcclusionTexture()), f.h.b.BoundTexture(prog, lightScatteringSampler))
	assert.Equal(t, []float32{0.96815}, f.h.b.Uniform(prog, "decay")[:1])
	assert.Equal(t, []float32{0.3}, f.h.b.Uniform(prog, "exposure")[:1])

	// the camera looks at the source, so it sits in the middle of the screen
	pos := f.h.b.Uniform(prog, "meshPositionOnScreen")
	assert.InDelta(t, 0.5, pos[0], 1e-5)
	assert.InDelta(t, 0.5, pos[1], 1e-5)

	// above the target is towards the top of the texture
	f.vls.SetCustomPosition(mgl32.Vec3{0, 2, 0})
	require.True(t, f.vls.Apply())
	assert.InDelta(t, 0.5, f.vls.ScreenPosition().X(), 1e-5)
	assert.Less(t, f.vls.ScreenPosition().Y(), float32(0.5))

	f.vls.Invert = false
	require.True(t, f.vls.Apply())
	assert.Greater(t, f.vls.ScreenPosition().Y(), float32(0.5))

	f.vls.ClearCustomPosition()
	f.vls.Invert = true
	require.True(t, f.vls.Apply())
	assert.InDelta(t, 0.5, f.vls.ScreenPosition().Y(), 1e-5)
}

func TestLightScatteringDispose(t *testing.T) {
	f := newScatteringFixture(t)
	f.vls.RenderScene(1, f.buckets(), f.context())
	f.vls.Activate(f.cam, resource.Handle{})
	require.Equal(t, 2, f.h.b.LiveTextures())

	f.vls.Dispose(f.cam)
	assert.Equal(t, 0, f.h.b.LiveTextures())
	assert.Equal(t, -1, f.cam.IndexOf(f.vls))
	assert.Empty(t, f.cam.PostProcesses())
	assert.Equal(t, 1, f.h.b.LivePrograms(), "only the source material keeps its effect")
}

func TestManagerRendersSceneTargets(t *testing.T) {
	f := newScatteringFixture(t)
	copyPass, err := New(f.h, Options{Name: "copy", Fragment: PassFragment}, f.cam)
	require.NoError(t, err)
	require.Equal(t, 1, f.cam.IndexOf(copyPass))

	m := NewManager(f.h)
	assert.Equal(t, 3, m.RenderSceneTargets(f.cam, 1, f.buckets(), f.context()))

	m.SetEnabled(false)
	assert.Zero(t, m.RenderSceneTargets(f.cam, 2, f.buckets(), f.context()))
}
