package material

import (
	"errors"
	"testing"

	"github.com/Carmen-Shannon/prism/common"
	"github.com/Carmen-Shannon/prism/engine/backend"
	"github.com/Carmen-Shannon/prism/engine/effect"
	"github.com/Carmen-Shannon/prism/engine/light"
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

type mesh struct{ attrs []string }

func (m mesh) Attributes() []string { return m.attrs }

var plain = mesh{attrs: []string{"position", "normal"}}

func TestReadinessCachedPerRenderID(t *testing.T) {
	h := newTestHost(t)
	m := NewStandardMaterial(h, "ground")

	assert.True(t, m.IsReady(plain, 1))
	assert.True(t, m.IsReady(plain, 1))
	assert.True(t, m.IsReady(plain, 1))
	assert.Equal(t, 1, m.Evaluations())

	assert.True(t, m.IsReady(plain, 2))
	assert.Equal(t, 2, m.Evaluations())
	assert.Equal(t, 1, h.b.Count(backend.OpCreateEffect), "unchanged defines reuse the effect")
}

func TestCheckReadyOnEveryCallBypassesCache(t *testing.T) {
	h := newTestHost(t)
	m := NewStandardMaterial(h, "ground", WithCheckReadyOnEveryCall())
	m.IsReady(plain, 1)
	m.IsReady(plain, 1)
	assert.Equal(t, 2, m.Evaluations())
	assert.True(t, m.CheckReadyOnEveryCall())
}

func TestFailedEffectIsNeverReady(t *testing.T) {
	h := newTestHost(t, backend.WithEffectFailure(func(backend.ProgramDescriptor) error {
		return errors.New("rejected")
	}))
	m := NewStandardMaterial(h, "broken")
	assert.False(t, m.IsReady(plain, 1))
	assert.False(t, m.IsReady(plain, 1))
	assert.Equal(t, 2, m.Evaluations(), "not-ready results are not cached")
	assert.Equal(t, 1, h.fx.Len(), "the failed effect is not re-requested while defines are unchanged")
}

func TestFrozenMaterialSkipsEvaluation(t *testing.T) {
	h := newTestHost(t)
	m := NewStandardMaterial(h, "rock")
	require.True(t, m.IsReady(plain, 1))
	m.Freeze()

	m.SetDefine("FOG", true)
	assert.True(t, m.IsReady(plain, 7))
	assert.Equal(t, 1, m.Evaluations())
	assert.NotContains(t, m.Defines(), "FOG")

	m.Unfreeze()
	assert.True(t, m.IsReady(plain, 8))
	assert.Contains(t, m.Defines(), "#define FOG")
	assert.False(t, m.IsFrozen())
}

func TestDefinesFollowMeshAttributes(t *testing.T) {
	h := newTestHost(t)
	m := NewStandardMaterial(h, "painted", WithAlphaTest(true, 0.5))

	colored := mesh{attrs: []string{"position", "normal", "uv", "color"}}
	require.True(t, m.IsReady(colored, 1))
	opts := m.Effect().Options()
	assert.Equal(t, "#define ALPHATEST\n#define UV\n#define VERTEXCOLOR", opts.Defines)
	assert.Equal(t, []string{"position", "normal", "uv", "color"}, opts.Attributes)
	assert.Equal(t, map[string]int{"colorLocation": 3}, opts.IndexParameters)
	assert.Equal(t, []string{"world", "viewProjection", "baseColor", "pbrFactors", "cameraPosition", "mainLight"}, opts.Uniforms)

	first := m.Effect()
	require.True(t, m.IsReady(plain, 2))
	assert.NotSame(t, first, m.Effect())
	assert.Equal(t, "#define ALPHATEST", m.Defines())
	assert.Equal(t, 2, h.fx.Len(), "each layout keeps its own effect")

	// a define change moves both layouts to new effects and releases the old ones
	m.SetDefine("FOG", true)
	require.True(t, m.IsReady(colored, 3))
	require.True(t, m.IsReady(plain, 3))
	assert.Equal(t, 2, h.fx.Len())
	assert.Equal(t, 2, h.b.Count(backend.OpReleaseEffect))
	assert.Equal(t, 2, h.b.LivePrograms())
}

func TestSharedMaterialKeepsEffectPerLayout(t *testing.T) {
	h := newTestHost(t)
	m := NewStandardMaterial(h, "shared")
	colored := mesh{attrs: []string{"position", "normal", "color"}}

	for frame := 1; frame <= 3; frame++ {
		require.True(t, m.IsReady(colored, frame))
		assert.Equal(t, []string{"position", "normal", "color"}, m.Effect().Options().Attributes)
		assert.Equal(t, "#define VERTEXCOLOR", m.Defines())

		require.True(t, m.IsReady(plain, frame))
		assert.Equal(t, []string{"position", "normal"}, m.Effect().Options().Attributes)
		assert.Empty(t, m.Defines())

		// cached answers still select the layout's own effect
		require.True(t, m.IsReady(colored, frame))
		assert.Equal(t, "#define VERTEXCOLOR", m.Defines())
	}
	assert.Equal(t, 6, m.Evaluations(), "one evaluation per layout per frame")
	assert.Equal(t, 2, h.b.Count(backend.OpCreateEffect))

	m.Dispose()
	assert.Zero(t, h.b.LivePrograms())
	assert.Nil(t, m.Effect())
}

func TestBindUploadsParameters(t *testing.T) {
	h := newTestHost(t)
	rt, err := h.tex.CreateRenderTarget(texture.Size{Width: 4, Height: 4}, texture.Options{})
	require.NoError(t, err)

	m := NewStandardMaterial(h, "crate",
		WithBaseColor([4]float32{1, 0.5, 0.25, 1}),
		WithMetallic(0.3),
		WithRoughness(0.6),
		WithDiffuseTexture(rt),
	)
	m.SetFloat("time", 2)
	assert.Equal(t, 2, h.tex.RefCount(rt))

	require.True(t, m.IsReady(mesh{attrs: []string{"position", "normal", "uv"}}, 1))
	assert.Contains(t, m.Defines(), "#define DIFFUSE")

	sun := light.NewLight("sun", light.LightTypeDirectional, light.WithIntensity(2))
	world := mgl32.Translate3D(1, 2, 3)
	m.Bind(BindContext{
		World:          world,
		ViewProjection: mgl32.Ident4(),
		CameraPosition: mgl32.Vec3{0, 0, -5},
		Lights:         []light.GPULight{light.ToGPULight(sun)},
	})

	prog := m.Effect().Program()
	assert.Equal(t, world[:], h.b.Uniform(prog, "world"))
	assert.Equal(t, []float32{1, 0.5, 0.25, 1}, h.b.Uniform(prog, "baseColor"))
	assert.Equal(t, []float32{0.3, 0.6, 0.4, 0}, h.b.Uniform(prog, "pbrFactors"))
	assert.Equal(t, []float32{0, 0, -5, 1}, h.b.Uniform(prog, "cameraPosition"))
	assert.Equal(t, light.ToGPULight(sun).Floats(), h.b.Uniform(prog, "mainLight"))
	assert.Equal(t, []float32{2}, h.b.Uniform(prog, "time"))
	assert.Equal(t, h.tex.BackendID(rt), h.b.BoundTexture(prog, DiffuseSampler))

	m.Dispose()
	assert.Equal(t, 1, h.tex.RefCount(rt))
	assert.Nil(t, m.Effect())
	assert.Equal(t, 0, h.b.LivePrograms())
}

func TestAlphaSelectsBucket(t *testing.T) {
	h := newTestHost(t)
	m := NewStandardMaterial(h, "glass")
	assert.False(t, m.NeedAlphaBlending())
	m.SetAlpha(0.5)
	assert.True(t, m.NeedAlphaBlending())
	assert.False(t, m.NeedAlphaTesting())
}

func TestSerializeRoundTrip(t *testing.T) {
	h := newTestHost(t)
	m := NewStandardMaterial(h, "leaves",
		WithAlpha(0.8),
		WithAlphaTest(true, 0.3),
		WithBackFaceCulling(false),
		WithRoughness(0.2),
		WithDefines("FOG"),
	)
	m.SetFloat("time", 1.5)

	data, err := common.EncodeDocument(m.Serialize())
	require.NoError(t, err)
	doc, err := common.DecodeDocument(data)
	require.NoError(t, err)

	got := ParseShaderMaterial(h, doc)
	assert.Equal(t, m.Name(), got.Name())
	assert.Equal(t, m.Alpha(), got.Alpha())
	assert.Equal(t, m.alphaCutoff, got.alphaCutoff)
	assert.True(t, got.NeedAlphaTesting())
	assert.False(t, got.BackFaceCulling())
	assert.Equal(t, m.uniforms, got.uniforms)
	assert.Equal(t, m.defines, got.defines)
	assert.Equal(t, m.floats, got.floats)
	assert.Equal(t, m.vectors, got.vectors)
}
