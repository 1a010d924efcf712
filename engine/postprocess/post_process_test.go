package postprocess

import (
	"errors"
	"testing"

	"github.com/Carmen-Shannon/prism/common"
	"github.com/Carmen-Shannon/prism/engine/backend"
	"github.com/Carmen-Shannon/prism/engine/camera"
	"github.com/Carmen-Shannon/prism/engine/effect"
	"github.com/Carmen-Shannon/prism/engine/resource"
	"github.com/Carmen-Shannon/prism/engine/texture"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testHost struct {
	b   *backend.Headless
	tex texture.Manager
	fx  effect.Cache
}

func (h *testHost) Backend() backend.Backend { return h.b }
func (h *testHost) Textures() texture.Manager { return h.tex }
func (h *testHost) Effects() effect.Cache { return h.fx }
func (h *testHost) ClearColor() backend.Color { return backend.Color{R: 0.2, G: 0.2, B: 0.3, A: 1} }
func (h *testHost) AutoClear() bool { return true }

func newTestHost(t *testing.T, opts ...backend.BackendBuilderOption) *testHost {
	t.Helper()
	b := backend.NewHeadless(append([]backend.BackendBuilderOption{backend.WithSize(1000, 700)}, opts...)...)
	fx := effect.NewCache(b,
		effect.WithSynchronousCompile(),
		effect.WithCompiler(effect.CompilerFunc(func(string, string) ([]byte, error) { return nil, nil })),
	)
	require.NoError(t, RegisterShaders(fx.Store()))
	return &testHost{b: b, tex: texture.NewManager(b), fx: fx}
}

func lastCall(h *backend.Headless, op string) backend.Call {
	calls := h.Calls()
	for i := len(calls) - 1; i >= 0; i-- {
		if calls[i].Op == op {
			return calls[i]
		}
	}
	return backend.Call{}
}

func TestNewRequiresFragment(t *testing.T) {
	h := newTestHost(t)
	_, err := New(h, Options{Name: "empty"}, nil)
	assert.ErrorIs(t, err, ErrMissingFragment)
	assert.Panics(t, func() { _, _ = New(nil, Options{Fragment: PassFragment}, nil) })
}

func TestPixelPerfectScaleRatio(t *testing.T) {
	h := newTestHost(t)
	cam := camera.NewCamera("main")
	pp, err := New(h, Options{Name: "copy", Fragment: PassFragment, PixelPerfect: true}, cam)
	require.NoError(t, err)

	pp.Activate(cam, resource.Handle{})

	w, hgt := pp.Size()
	assert.Equal(t, 1024, w)
	assert.Equal(t, 1024, hgt)
	assert.Equal(t, mgl32.Vec2{1000.0 / 1024, 700.0 / 1024}, pp.ScaleRatio())

	bind := lastCall(h.b, backend.OpBindFramebuffer)
	require.NotNil(t, bind.Viewport)
	assert.Equal(t, backend.Viewport{Width: 1000, Height: 700}, *bind.Viewport)
	assert.Equal(t, h.tex.BackendID(pp.OutputTexture()), bind.Texture)

	desc, ok := h.b.Texture(bind.Texture)
	require.True(t, ok)
	assert.True(t, desc.GenerateDepthBuffer, "the first pass receives the scene and needs depth")
	assert.False(t, desc.GenerateMipMaps)

	require.True(t, pp.Apply())
	assert.Equal(t, []float32{1000.0 / 1024, 700.0 / 1024}, h.b.Uniform(pp.Effect().Program(), "scale"))
	assert.False(t, pp.Clamped())
}

func TestDefaultSamplingRoundsToPowerOfTwo(t *testing.T) {
	assert.Equal(t, backend.SamplingBilinear, Options{}.withDefaults().SamplingMode)

	h := newTestHost(t)
	pp, err := New(h, Options{Fragment: PassFragment}, nil)
	require.NoError(t, err)
	pp.Activate(nil, resource.Handle{})
	w, hgt := pp.Size()
	assert.Equal(t, 1024, w)
	assert.Equal(t, 1024, hgt)
	assert.Equal(t, mgl32.Vec2{1, 1}, pp.ScaleRatio())
}

func TestOversizedPassIsClamped(t *testing.T) {
	h := newTestHost(t, backend.WithCaps(backend.Caps{MaxTextureSize: 512}))
	var resized int
	pp, err := New(h, Options{Fragment: PassFragment}, nil)
	require.NoError(t, err)
	pp.OnSizeChanged().Add(func(PostProcess) { resized++ })

	pp.Activate(nil, resource.Handle{})
	w, hgt := pp.Size()
	assert.Equal(t, 512, w)
	assert.Equal(t, 512, hgt)
	assert.True(t, pp.Clamped())
	assert.Equal(t, 1, resized)

	// a second activation at the same clamped size is not a resize
	pp.Activate(nil, resource.Handle{})
	assert.True(t, pp.Clamped())
	assert.Equal(t, 1, resized)
}

func TestNearestSamplingKeepsExactSize(t *testing.T) {
	h := newTestHost(t)
	pp, err := New(h, Options{Fragment: PassFragment, SamplingMode: backend.SamplingNearest, RenderRatio: 0.5}, nil)
	require.NoError(t, err)
	pp.Activate(nil, resource.Handle{})
	w, hgt := pp.Size()
	assert.Equal(t, 500, w)
	assert.Equal(t, 350, hgt)
	assert.Equal(t, mgl32.Vec2{1, 1}, pp.ScaleRatio())
	assert.Nil(t, lastCall(h.b, backend.OpBindFramebuffer).Viewport)
}

func TestReusableAlternatesTwoTextures(t *testing.T) {
	h := newTestHost(t)
	pp, err := New(h, Options{Fragment: PassFragment, Reusable: true}, nil)
	require.NoError(t, err)

	pp.Activate(nil, resource.Handle{})
	assert.Equal(t, 1, pp.CurrentRenderTextureInd())
	pp.Activate(nil, resource.Handle{})
	assert.Equal(t, 0, pp.CurrentRenderTextureInd())
	pp.Activate(nil, resource.Handle{})
	assert.Equal(t, 1, pp.CurrentRenderTextureInd())

	assert.Equal(t, 2, h.tex.Allocations())
	assert.Len(t, pp.Textures(), 2)
	assert.True(t, pp.IsReusable())
}

func TestSizeChangeReallocates(t *testing.T) {
	h := newTestHost(t)
	pp, err := New(h, Options{Fragment: PassFragment}, nil)
	require.NoError(t, err)
	changes := 0
	pp.SetOnSizeChanged(func(PostProcess) { changes++ })

	pp.Activate(nil, resource.Handle{})
	pp.Activate(nil, resource.Handle{})
	assert.Equal(t, 1, changes)
	assert.Equal(t, 1, h.tex.Allocations())

	pp.MarkTextureDirty()
	w, _ := pp.Size()
	assert.Equal(t, -1, w)
	pp.Activate(nil, resource.Handle{})
	assert.Equal(t, 2, changes)
	assert.Equal(t, 2, h.tex.Allocations())
	assert.Equal(t, 1, h.tex.Live(), "the previous texture is released before reallocating")
}

func TestSourceTextureDrivesSize(t *testing.T) {
	h := newTestHost(t)
	src, err := h.tex.CreateRenderTarget(texture.Size{Width: 256, Height: 128}, texture.Options{})
	require.NoError(t, err)
	pp, err := New(h, Options{Fragment: PassFragment, RenderRatio: 0.5}, nil)
	require.NoError(t, err)

	pp.Activate(nil, src)
	w, hgt := pp.Size()
	assert.Equal(t, 128, w)
	assert.Equal(t, 64, hgt)
}

func TestSharedOutputOwnsNoTextures(t *testing.T) {
	h := newTestHost(t)
	cam := camera.NewCamera("main")
	a, err := New(h, Options{Name: "a", Fragment: PassFragment}, cam)
	require.NoError(t, err)
	b, err := New(h, Options{Name: "b", Fragment: PassFragment}, cam)
	require.NoError(t, err)
	b.ShareOutputWith(a)

	a.Activate(cam, resource.Handle{})
	b.Activate(cam, a.OutputTexture())
	assert.Equal(t, 1, h.tex.Allocations())
	assert.Equal(t, a.OutputTexture(), b.OutputTexture())
	assert.Equal(t, h.tex.BackendID(a.OutputTexture()), lastCall(h.b, backend.OpBindFramebuffer).Texture)

	b.Dispose(cam)
	assert.Equal(t, 0, h.b.Count(backend.OpReleaseTexture))
	assert.Equal(t, 1, h.tex.Live())

	a.Dispose(cam)
	assert.Equal(t, 1, h.b.Count(backend.OpReleaseTexture))
	assert.Equal(t, 0, h.tex.Live())
	assert.Empty(t, cam.PostProcesses())
}

func TestDisposeFirstPassMarksNextDirty(t *testing.T) {
	h := newTestHost(t)
	cam := camera.NewCamera("main")
	a, err := New(h, Options{Name: "a", Fragment: PassFragment}, cam)
	require.NoError(t, err)
	b, err := New(h, Options{Name: "b", Fragment: PassFragment}, cam)
	require.NoError(t, err)

	a.Activate(cam, resource.Handle{})
	b.Activate(cam, a.OutputTexture())
	desc, _ := h.b.Texture(h.tex.BackendID(b.OutputTexture()))
	assert.False(t, desc.GenerateDepthBuffer)

	calls := 0
	a.SetOnActivate(func(camera.Camera) { calls++ })
	a.Dispose(cam)
	assert.False(t, a.OnActivate().HasObservers())
	assert.Nil(t, a.Effect())

	w, _ := b.Size()
	assert.Equal(t, -1, w)
	b.Activate(cam, resource.Handle{})
	desc, _ = h.b.Texture(h.tex.BackendID(b.OutputTexture()))
	assert.True(t, desc.GenerateDepthBuffer, "the new first pass reallocates with depth")
	assert.Equal(t, 0, calls)
}

func TestSetOnReplacesPreviousCallback(t *testing.T) {
	h := newTestHost(t)
	pp, err := New(h, Options{Fragment: PassFragment}, nil)
	require.NoError(t, err)

	first, second, extra := 0, 0, 0
	pp.SetOnActivate(func(camera.Camera) { first++ })
	pp.SetOnActivate(func(camera.Camera) { second++ })
	pp.OnActivate().Add(func(camera.Camera) { extra++ })

	pp.Activate(nil, resource.Handle{})
	assert.Equal(t, 0, first)
	assert.Equal(t, 1, second)
	assert.Equal(t, 1, extra)
	assert.Equal(t, 2, pp.OnActivate().Len())
}

func TestApplyBindsInputAndState(t *testing.T) {
	h := newTestHost(t)
	pp, err := New(h, Options{Fragment: PassFragment, AlphaMode: backend.AlphaAdd, ClearColor: &backend.Color{A: 1}}, nil)
	require.NoError(t, err)
	applied := 0
	pp.SetOnApply(func(*effect.Effect) { applied++ })

	pp.Activate(nil, resource.Handle{})
	clearCall := lastCall(h.b, backend.OpClear)
	assert.Equal(t, backend.Color{A: 1}, clearCall.Color)
	assert.Equal(t, backend.AlphaAdd, lastCall(h.b, backend.OpSetAlphaMode).Mode)

	h.b.ResetCalls()
	require.True(t, pp.Apply())
	assert.Equal(t, []string{
		backend.OpEnableEffect,
		backend.OpSetState,
		backend.OpSetDepthBuffer,
		backend.OpSetDepthWrite,
		backend.OpBindTexture,
		backend.OpSetUniform,
	}, h.b.Ops())
	prog := pp.Effect().Program()
	assert.Equal(t, h.tex.BackendID(pp.OutputTexture()), h.b.BoundTexture(prog, "textureSampler"))
	assert.Equal(t, 1, applied)
}

func TestApplySkipsFailedEffect(t *testing.T) {
	h := newTestHost(t, backend.WithEffectFailure(func(backend.ProgramDescriptor) error {
		return errors.New("rejected")
	}))
	pp, err := New(h, Options{Fragment: PassFragment}, nil)
	require.NoError(t, err)
	assert.False(t, pp.IsReady())

	h.b.ResetCalls()
	assert.False(t, pp.Apply())
	assert.Empty(t, h.b.Ops())
}

func TestBlockCompilationDefersEffect(t *testing.T) {
	h := newTestHost(t)
	pp, err := New(h, Options{Fragment: PassFragment, BlockCompilation: true}, nil)
	require.NoError(t, err)
	assert.Nil(t, pp.Effect())
	assert.False(t, pp.Apply())

	pp.UpdateEffect("", nil, nil, nil)
	assert.True(t, pp.IsReady())
	assert.Equal(t, []string{"scale"}, pp.Effect().Uniforms())
	assert.Equal(t, []string{"textureSampler"}, pp.Effect().Samplers())
}

func TestEditedSourceRecompilesOnApply(t *testing.T) {
	h := newTestHost(t)
	pp, err := New(h, Options{Fragment: PassFragment}, nil)
	require.NoError(t, err)
	pp.Activate(nil, resource.Handle{})
	before := pp.Effect()

	h.fx.Store().Register(PassFragment, "// edited\n@fragment fn fs_main() {}")
	h.fx.Poll()
	assert.True(t, before.IsStale())

	require.True(t, pp.Apply())
	assert.NotSame(t, before, pp.Effect())
	assert.Equal(t, 1, h.b.LivePrograms())
}

func TestBlackAndWhiteDegreeSwitchesDefines(t *testing.T) {
	h := newTestHost(t)
	bw, err := NewBlackAndWhitePostProcess(h, "bw", 1, nil)
	require.NoError(t, err)
	assert.Equal(t, "", bw.Effect().Options().Defines)

	bw.SetDegree(0.4)
	assert.Equal(t, "#define PARTIAL", bw.Effect().Options().Defines)
	bw.SetDegree(0.6)
	assert.Equal(t, "#define PARTIAL", bw.Effect().Options().Defines)
	bw.SetDegree(3)
	assert.Equal(t, float32(1), bw.Degree())
	assert.Equal(t, "", bw.Effect().Options().Defines)

	bw.Activate(nil, resource.Handle{})
	require.True(t, bw.Apply())
	assert.Equal(t, []float32{1}, h.b.Uniform(bw.Effect().Program(), "degree"))
}

func TestBlendSamplesOtherPass(t *testing.T) {
	h := newTestHost(t)
	left, err := NewPassPostProcess(h, "left", 1, nil)
	require.NoError(t, err)
	left.Activate(nil, resource.Handle{})

	blend, err := NewBlendPostProcess(h, "blend", left, 0.25, nil)
	require.NoError(t, err)
	blend.Activate(nil, resource.Handle{})
	require.True(t, blend.Apply())

	prog := blend.Effect().Program()
	assert.Equal(t, h.tex.BackendID(left.OutputTexture()), h.b.BoundTexture(prog, "otherSampler"))
	assert.Equal(t, []float32{0.25}, h.b.Uniform(prog, "blendFactor"))

	ana, err := NewAnaglyphPostProcess(h, "anaglyph", left, nil)
	require.NoError(t, err)
	assert.Equal(t, "#define ANAGLYPH", ana.Effect().Options().Defines)
}

func TestOptionsRoundTrip(t *testing.T) {
	opts := Options{
		Name:            "bloom",
		Vertex:          DefaultVertex,
		Fragment:        BlendFragment,
		Uniforms:        []string{"blendFactor"},
		Samplers:        []string{"otherSampler"},
		Defines:         "#define ANAGLYPH",
		IndexParameters: map[string]int{"taps": 4},
		RenderRatio:     0.5,
		Width:           640,
		Height:          360,
		SamplingMode:    backend.SamplingTrilinear,
		TextureType:     backend.TextureTypeHalfFloat,
		Reusable:        true,
		Samples:         4,
		AlphaMode:       backend.AlphaCombine,
		AlphaConstants:  &backend.Color{R: 0.5, G: 0.25, B: 1, A: 1},
		ClearColor:      &backend.Color{A: 1},
		PixelPerfect:    true,
	}
	data, err := common.EncodeDocument(opts.Serialize())
	require.NoError(t, err)
	doc, err := common.DecodeDocument(data)
	require.NoError(t, err)
	assert.Equal(t, opts, ParseOptions(doc))
}
