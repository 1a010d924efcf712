package postprocess

import (
	"errors"
	"testing"

	"github.com/Carmen-Shannon/prism/engine/backend"
	"github.com/Carmen-Shannon/prism/engine/camera"
	"github.com/Carmen-Shannon/prism/engine/effect"
	"github.com/Carmen-Shannon/prism/engine/resource"
	"github.com/Carmen-Shannon/prism/engine/texture"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrepareFrameWithoutChain(t *testing.T) {
	h := newTestHost(t)
	m := NewManager(h)
	assert.False(t, m.PrepareFrame(camera.NewCamera("main"), resource.Handle{}))
	assert.False(t, m.PrepareFrame(nil, resource.Handle{}))
	assert.Empty(t, h.b.Ops())
}

func TestChainRunsInAttachOrder(t *testing.T) {
	h := newTestHost(t)
	cam := camera.NewCamera("main")
	a, err := NewPassPostProcess(h, "a", 1, cam)
	require.NoError(t, err)
	bw, err := NewBlackAndWhitePostProcess(h, "bw", 1, cam)
	require.NoError(t, err)

	var order []string
	a.SetOnBeforeRender(func(*effect.Effect) { order = append(order, "a:before") })
	a.SetOnAfterRender(func(*effect.Effect) { order = append(order, "a:after") })
	bw.SetOnBeforeRender(func(*effect.Effect) { order = append(order, "bw:before") })
	bw.SetOnAfterRender(func(*effect.Effect) { order = append(order, "bw:after") })

	m := NewManager(h)
	h.b.ResetCalls()
	require.True(t, m.PrepareFrame(cam, resource.Handle{}))
	m.FinalizeFrame(cam, resource.Handle{})

	assert.Equal(t, []string{
		backend.OpBindFramebuffer,
		backend.OpBindFramebuffer,
		backend.OpDraw,
		backend.OpUnBindFramebuffer,
		backend.OpDraw,
	}, h.b.Ops(backend.OpBindFramebuffer, backend.OpUnBindFramebuffer, backend.OpDraw))
	assert.Equal(t, []string{"a:before", "a:after", "bw:before", "bw:after"}, order)

	// a samples its own texture (the scene) while drawing into bw's texture
	assert.Equal(t, h.tex.BackendID(a.OutputTexture()), h.b.BoundTexture(a.Effect().Program(), "textureSampler"))
	assert.Equal(t, h.tex.BackendID(bw.OutputTexture()), h.b.BoundTexture(bw.Effect().Program(), "textureSampler"))

	calls := h.b.Calls()
	last := calls[len(calls)-3:]
	assert.Equal(t, backend.Call{Op: backend.OpSetDepthBuffer, Flag: true}, last[0])
	assert.Equal(t, backend.Call{Op: backend.OpSetDepthWrite, Flag: true}, last[1])
	assert.Equal(t, backend.OpSetAlphaMode, last[2].Op)
	assert.Equal(t, backend.AlphaDisable, last[2].Mode)
}

func TestFinalizeFrameBindsFinalTarget(t *testing.T) {
	h := newTestHost(t)
	cam := camera.NewCamera("main")
	_, err := NewPassPostProcess(h, "copy", 1, cam)
	require.NoError(t, err)
	target, err := h.tex.CreateRenderTarget(texture.Size{Width: 64, Height: 64}, texture.Options{})
	require.NoError(t, err)

	m := NewManager(h)
	require.True(t, m.PrepareFrame(cam, resource.Handle{}))
	h.b.ResetCalls()
	m.FinalizeFrame(cam, target)

	binds := h.b.Ops(backend.OpBindFramebuffer, backend.OpUnBindFramebuffer)
	assert.Equal(t, []string{backend.OpBindFramebuffer}, binds)
	assert.Equal(t, h.tex.BackendID(target), lastCall(h.b, backend.OpBindFramebuffer).Texture)
}

func TestNotReadyPassIsSkipped(t *testing.T) {
	h := newTestHost(t, backend.WithEffectFailure(func(desc backend.ProgramDescriptor) error {
		if desc.Name == DefaultVertex+"+"+BlackAndWhiteFragment {
			return errors.New("rejected")
		}
		return nil
	}))
	cam := camera.NewCamera("main")
	_, err := NewPassPostProcess(h, "copy", 1, cam)
	require.NoError(t, err)
	bw, err := NewBlackAndWhitePostProcess(h, "bw", 1, cam)
	require.NoError(t, err)
	require.False(t, bw.IsReady())

	m := NewManager(h)
	h.b.ResetCalls()
	m.PrepareFrame(cam, resource.Handle{})
	m.FinalizeFrame(cam, resource.Handle{})
	assert.Equal(t, 1, h.b.Count(backend.OpDraw))
	assert.Equal(t, 1, h.b.Count(backend.OpUnBindFramebuffer))
}

func TestDisabledManagerDoesNothing(t *testing.T) {
	h := newTestHost(t)
	cam := camera.NewCamera("main")
	_, err := NewPassPostProcess(h, "copy", 1, cam)
	require.NoError(t, err)

	m := NewManager(h)
	m.SetEnabled(false)
	h.b.ResetCalls()
	assert.False(t, m.PrepareFrame(cam, resource.Handle{}))
	m.FinalizeFrame(cam, resource.Handle{})
	assert.Empty(t, h.b.Ops())
	assert.False(t, m.Enabled())
}
