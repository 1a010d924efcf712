package procedural

import (
	"errors"
	"testing"

	"github.com/Carmen-Shannon/prism/engine/backend"
	"github.com/Carmen-Shannon/prism/engine/effect"
	"github.com/Carmen-Shannon/prism/engine/texture"
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
func (h *testHost) ClearColor() backend.Color { return backend.Color{A: 1} }

func newTestHost(t *testing.T, opts ...backend.BackendBuilderOption) *testHost {
	t.Helper()
	b := backend.NewHeadless(opts...)
	fx := effect.NewCache(b,
		effect.WithSynchronousCompile(),
		effect.WithCompiler(effect.CompilerFunc(func(string, string) ([]byte, error) { return nil, nil })),
	)
	require.NoError(t, RegisterShaders(fx.Store()))
	return &testHost{b: b, tex: texture.NewManager(b), fx: fx}
}

func checker(t *testing.T, h *testHost, options ...TextureBuilderOption) *Texture {
	t.Helper()
	tex, err := NewChecker(h, "checker", 256, 8, [4]float32{1, 1, 1, 1}, [4]float32{0, 0, 0, 1}, options...)
	require.NoError(t, err)
	return tex
}

func renders(tex *Texture, frames int) []bool {
	out := make([]bool, frames)
	for i := range out {
		out[i] = tex.ShouldRender()
	}
	return out
}

func TestRefreshRate(t *testing.T) {
	tests := []struct {
		name string
		rate int
		want []bool
	}{
		{name: "once", rate: 0, want: []bool{true, false, false, false, false}},
		{name: "every frame", rate: 1, want: []bool{true, true, true, true, true}},
		{name: "every second frame", rate: 2, want: []bool{true, false, true, false, true}},
		{name: "every third frame", rate: 3, want: []bool{true, false, false, true, false}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHost(t)
			tex := checker(t, h, WithRefreshRate(tt.rate))
			assert.Equal(t, tt.want, renders(tex, len(tt.want)))
		})
	}
}

func TestSetRefreshRateRendersAgain(t *testing.T) {
	h := newTestHost(t)
	tex := checker(t, h)
	assert.Equal(t, []bool{true, false}, renders(tex, 2))
	tex.SetRefreshRate(0)
	assert.True(t, tex.ShouldRender())
	assert.False(t, tex.ShouldRender())
}

func TestDisabledTextureNeverRenders(t *testing.T) {
	h := newTestHost(t)
	tex := checker(t, h, WithRefreshRate(1))
	tex.SetEnabled(false)
	assert.False(t, tex.ShouldRender())
}

func TestRenderDrawsIntoTarget(t *testing.T) {
	h := newTestHost(t)
	tex := checker(t, h)
	require.True(t, tex.IsReady())

	generated := 0
	tex.SetOnGenerated(func() { generated++ })
	h.b.ResetCalls()
	tex.Render()

	target := h.tex.BackendID(tex.Handle())
	assert.Equal(t, []string{
		backend.OpEnableEffect,
		backend.OpSetState,
		backend.OpSetUniform,
		backend.OpSetUniform,
		backend.OpSetUniform,
		backend.OpBindFramebuffer,
		backend.OpClear,
		backend.OpDraw,
		backend.OpUnBindFramebuffer,
	}, h.b.Ops())
	calls := h.b.Calls()
	assert.Equal(t, target, calls[5].Texture)
	assert.Equal(t, target, calls[7].Texture)
	assert.Equal(t, 1, generated)

	prog := tex.effect.Program()
	assert.Equal(t, []float32{8, 8, 0, 0}, h.b.Uniform(prog, "tiles"))
	assert.Equal(t, []float32{0, 0, 0, 1}, h.b.Uniform(prog, "oddColor"))
}

func TestCompileFailureUsesFallback(t *testing.T) {
	h := newTestHost(t, backend.WithEffectFailure(func(desc backend.ProgramDescriptor) error {
		if desc.Name == Vertex+"+"+CheckerFragment {
			return errors.New("rejected")
		}
		return nil
	}))
	fallback, err := h.tex.CreateRenderTarget(texture.Size{Width: 4, Height: 4}, texture.Options{})
	require.NoError(t, err)

	tex := checker(t, h, WithFallback(fallback))
	assert.Equal(t, 2, h.tex.Live())
	assert.Equal(t, 1, h.tex.RefCount(fallback))

	assert.False(t, tex.ShouldRender())
	assert.True(t, tex.FallbackUsed())
	assert.Equal(t, fallback, tex.Handle())
	assert.Equal(t, 2, h.tex.RefCount(fallback), "the fallback is shared, not copied")
	assert.Equal(t, 1, h.tex.Live(), "the generated target is released")

	assert.True(t, tex.IsReady())
	assert.False(t, tex.ShouldRender())
	require.NoError(t, tex.Resize(512))

	tex.Dispose()
	assert.Equal(t, 1, h.tex.RefCount(fallback))
}

func TestCompileFailureWithoutFallback(t *testing.T) {
	h := newTestHost(t, backend.WithEffectFailure(func(backend.ProgramDescriptor) error {
		return errors.New("rejected")
	}))
	tex := checker(t, h)
	assert.False(t, tex.ShouldRender())
	assert.True(t, tex.Handle().IsZero())
	assert.Equal(t, 0, h.tex.Live())
	tex.Dispose()
}

func TestSetTextureRetainsInput(t *testing.T) {
	h := newTestHost(t)
	input, err := h.tex.CreateRenderTarget(texture.Size{Width: 4, Height: 4}, texture.Options{})
	require.NoError(t, err)

	tex, err := New(h, "copy", 64, CheckerFragment)
	require.NoError(t, err)
	tex.SetTexture("inputSampler", input)
	assert.Equal(t, 2, h.tex.RefCount(input))
	require.True(t, tex.IsReady())
	assert.Equal(t, []string{"inputSampler"}, tex.effect.Samplers())

	tex.Dispose()
	assert.Equal(t, 1, h.tex.RefCount(input))
	assert.Equal(t, 0, h.fx.Len())
}

func TestNewRequiresFragment(t *testing.T) {
	h := newTestHost(t)
	_, err := New(h, "empty", 64, "")
	assert.ErrorIs(t, err, ErrMissingFragment)
}
