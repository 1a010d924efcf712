package camera

import (
	"testing"

	"github.com/Carmen-Shannon/prism/common"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPass struct {
	name  string
	dirty int
}

func (s *stubPass) Name() string      { return s.name }
func (s *stubPass) MarkTextureDirty() { s.dirty++ }

func TestAttachDetachOrdering(t *testing.T) {
	c := NewCamera("main")
	a, b, d := &stubPass{name: "a"}, &stubPass{name: "b"}, &stubPass{name: "d"}

	assert.Equal(t, 0, c.AttachPostProcess(a, -1))
	assert.Equal(t, 1, c.AttachPostProcess(b, -1))
	assert.Equal(t, 0, c.AttachPostProcess(d, 0))
	assert.Equal(t, 1, c.AttachPostProcess(a, -1), "re-attaching keeps the existing slot")

	assert.Equal(t, []PostProcess{d, a, b}, c.PostProcesses())
	assert.Equal(t, 2, c.IndexOf(b))

	assert.True(t, c.DetachPostProcess(d))
	assert.False(t, c.DetachPostProcess(d))
	assert.Equal(t, []PostProcess{a, b}, c.PostProcesses())
	assert.Equal(t, -1, c.IndexOf(d))
	assert.Equal(t, -1, c.AttachPostProcess(nil, 0))
}

func TestPostProcessesReturnsCopy(t *testing.T) {
	c := NewCamera("main")
	c.AttachPostProcess(&stubPass{name: "a"}, -1)
	list := c.PostProcesses()
	list[0] = nil
	assert.NotNil(t, c.PostProcesses()[0])
}

func TestMatricesFollowSetters(t *testing.T) {
	c := NewCamera("main", WithPosition(mgl32.Vec3{0, 0, 10}), WithClipPlanes(0.5, 50))
	proj := c.ProjectionMatrix()
	assert.Equal(t, mgl32.Perspective(0.8, 1, 0.5, 50), proj)

	c.SetAspect(2)
	assert.NotEqual(t, proj, c.ProjectionMatrix())
	c.SetAspect(0)
	assert.Equal(t, float32(2), c.Aspect())

	// the origin projects to the centre of clip space
	clip := c.ViewProjectionMatrix().Mul4x1(mgl32.Vec4{0, 0, 0, 1})
	assert.InDelta(t, 0, clip.X()/clip.W(), 1e-5)
	assert.InDelta(t, 0, clip.Y()/clip.W(), 1e-5)
}

func TestControllerDrivesUpdate(t *testing.T) {
	oc := NewOrbitController(mgl32.Vec3{1, 0, 0}, 10)
	c := NewCamera("orbit", WithController(oc))
	assert.Equal(t, oc.Position(), c.Position())

	oc.Orbit(10, 0)
	oc.Zoom(4)
	c.Update()
	assert.Equal(t, oc.Position(), c.Position())
	assert.InDelta(t, 6, c.Position().Sub(c.Target()).Len(), 1e-4)

	oc.Zoom(1000)
	assert.Equal(t, float32(1), oc.Radius())
	oc.Orbit(0, 1000)
	assert.Less(t, oc.Elevation(), float32(1.6))
}

func TestSerializeRoundTrip(t *testing.T) {
	c := NewCamera("main",
		WithPosition(mgl32.Vec3{1, 2, 3}),
		WithTarget(mgl32.Vec3{0, 1, 0}),
		WithFov(1.2),
		WithAspect(1.5),
		WithClipPlanes(0.1, 500),
		WithViewport(Viewport{0, 0, 0.5, 1}),
	)
	data, err := common.EncodeDocument(c.Serialize())
	require.NoError(t, err)
	doc, err := common.DecodeDocument(data)
	require.NoError(t, err)

	got := ParseCamera(doc)
	assert.Equal(t, c.Name(), got.Name())
	assert.Equal(t, c.Position(), got.Position())
	assert.Equal(t, c.Target(), got.Target())
	assert.Equal(t, c.Fov(), got.Fov())
	assert.Equal(t, c.Aspect(), got.Aspect())
	assert.Equal(t, c.MinZ(), got.MinZ())
	assert.Equal(t, c.MaxZ(), got.MaxZ())
	assert.Equal(t, c.Viewport(), got.Viewport())
	assert.Equal(t, c.ViewProjectionMatrix(), got.ViewProjectionMatrix())
}
