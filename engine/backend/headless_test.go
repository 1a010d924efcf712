package backend

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBackendHeadless(t *testing.T) {
	b, err := NewBackend(BackendTypeHeadless, WithSize(800, 600), WithCaps(Caps{MaxTextureSize: 2048}))
	require.NoError(t, err)
	assert.Equal(t, BackendTypeHeadless, b.Type())
	assert.Equal(t, 800, b.RenderWidth())
	assert.Equal(t, 600, b.RenderHeight())
	assert.Equal(t, 2048, b.Caps().MaxTextureSize)
	assert.Equal(t, defaultHeadlessMaxSize, b.Caps().MaxCubeTextureSize)
}

func TestNewBackendWGPURequiresSurface(t *testing.T) {
	_, err := NewBackend(BackendTypeWGPU)
	assert.Error(t, err)
}

func TestHeadlessTextureLifecycle(t *testing.T) {
	h := NewHeadless()
	id, err := h.CreateRenderTargetTexture(TextureDescriptor{Label: "rt", Width: 64, Height: 32})
	require.NoError(t, err)
	assert.Equal(t, 1, h.LiveTextures())

	desc, ok := h.Texture(id)
	require.True(t, ok)
	assert.Equal(t, 64, desc.Width)

	h.ReleaseTexture(id)
	h.ReleaseTexture(id)
	assert.Equal(t, 0, h.LiveTextures())
	assert.Equal(t, 1, h.TextureAllocations())
	assert.Equal(t, 1, h.Count(OpReleaseTexture))

	_, err = h.CreateRenderTargetTexture(TextureDescriptor{Width: 0, Height: 4})
	assert.Error(t, err)
}

func TestHeadlessCubeTextureIsSquare(t *testing.T) {
	h := NewHeadless()
	id, err := h.CreateRenderTargetCubeTexture(TextureDescriptor{Width: 128, Height: 7})
	require.NoError(t, err)
	desc, _ := h.Texture(id)
	assert.True(t, desc.IsCube)
	assert.Equal(t, 128, desc.Height)
}

func TestHeadlessSampleCountClamped(t *testing.T) {
	h := NewHeadless(WithCaps(Caps{MaxSamples: 4}))
	id, err := h.CreateRenderTargetTexture(TextureDescriptor{Width: 4, Height: 4})
	require.NoError(t, err)
	assert.Equal(t, 4, h.UpdateRenderTargetTextureSampleCount(id, 16))
	assert.Equal(t, 1, h.UpdateRenderTargetTextureSampleCount(id, 0))
	assert.Equal(t, 1, h.UpdateRenderTargetTextureSampleCount(TextureID(999), 4))
}

func TestHeadlessEffectFailureInjection(t *testing.T) {
	boom := errors.New("boom")
	h := NewHeadless(WithEffectFailure(func(desc ProgramDescriptor) error {
		if desc.Name == "bad" {
			return boom
		}
		return nil
	}))

	_, err := h.CreateEffect(ProgramDescriptor{Name: "bad"})
	assert.ErrorIs(t, err, boom)

	id, err := h.CreateEffect(ProgramDescriptor{Name: "good"})
	require.NoError(t, err)
	assert.Equal(t, 1, h.LivePrograms())

	h.SetUniform(id, "scale", 0.5, 0.25)
	assert.Equal(t, []float32{0.5, 0.25}, h.Uniform(id, "scale"))

	h.BindTexture(id, "textureSampler", TextureID(7))
	assert.Equal(t, TextureID(7), h.BoundTexture(id, "textureSampler"))

	h.ReleaseEffect(id)
	assert.Equal(t, 0, h.LivePrograms())
}

func TestHeadlessDrawRecordsState(t *testing.T) {
	h := NewHeadless()
	rt, err := h.CreateRenderTargetTexture(TextureDescriptor{Width: 4, Height: 4})
	require.NoError(t, err)

	h.BindFramebuffer(rt, &Viewport{Width: 3, Height: 2})
	h.SetAlphaMode(AlphaCombine)
	h.SetAlphaTesting(true)
	h.Draw(FullScreenQuad(ProgramID(1)))
	h.UnBindFramebuffer(rt)

	calls := h.Calls()
	require.Len(t, calls, 6)
	bind := calls[1]
	assert.Equal(t, OpBindFramebuffer, bind.Op)
	require.NotNil(t, bind.Viewport)
	assert.Equal(t, 3, bind.Viewport.Width)

	draw := calls[4]
	assert.Equal(t, OpDraw, draw.Op)
	assert.Equal(t, rt, draw.Texture)
	assert.Equal(t, AlphaCombine, draw.Mode)
	assert.True(t, draw.Flag)
	assert.Equal(t, 6, draw.Draw.VertexCount)

	assert.Equal(t, []string{OpBindFramebuffer, OpUnBindFramebuffer}, h.Ops(OpBindFramebuffer, OpUnBindFramebuffer))
	h.ResetCalls()
	assert.Empty(t, h.Calls())
}

func TestParseEnums(t *testing.T) {
	bt, err := ParseBackendType("headless")
	require.NoError(t, err)
	assert.Equal(t, BackendTypeHeadless, bt)
	_, err = ParseBackendType("vulkan")
	assert.Error(t, err)

	for _, m := range []SamplingMode{SamplingNearest, SamplingBilinear, SamplingTrilinear} {
		assert.Equal(t, m, ParseSamplingMode(m.String()))
	}
	for _, tt := range []TextureType{TextureTypeUnsignedInt, TextureTypeHalfFloat, TextureTypeFloat} {
		assert.Equal(t, tt, ParseTextureType(tt.String()))
	}
}
