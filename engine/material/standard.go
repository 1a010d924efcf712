package material

import (
	"embed"
	"fmt"
	"path"
	"strings"

	"github.com/Carmen-Shannon/prism/engine/effect"
	"github.com/Carmen-Shannon/prism/engine/light"
	"github.com/Carmen-Shannon/prism/engine/resource"
)

//go:embed assets/*.wgsl
var assets embed.FS

// Shader sources registered by RegisterShaders.
const (
	StandardVertex   = "standard.vertex"
	StandardFragment = "standard.fragment"
)

// DiffuseSampler is the sampler name of the standard material's albedo texture.
const DiffuseSampler = "diffuseSampler"

// RegisterShaders adds the standard material sources and the light include to store.
//
// Parameters:
//   - store: the shader store backing the effect cache
//
// Returns:
//   - error: an error if an embedded asset could not be read
func RegisterShaders(store effect.ShaderStore) error {
	store.Register(light.GPULightInclude, light.GPULightSource)
	entries, err := assets.ReadDir("assets")
	if err != nil {
		return fmt.Errorf("failed to list material shaders: %w", err)
	}
	for _, entry := range entries {
		data, err := assets.ReadFile(path.Join("assets", entry.Name()))
		if err != nil {
			return fmt.Errorf("failed to read material shader %s: %w", entry.Name(), err)
		}
		store.Register(strings.TrimSuffix(entry.Name(), effect.SourceExtension), string(data))
	}
	return nil
}

// NewStandardMaterial creates a lit material with a base color, metallic and roughness factors
// and an optional diffuse texture. It is lit by the first light of the bind context.
//
// Parameters:
//   - host: the engine services
//   - name: the material name
//   - options: variadic MaterialBuilderOption functions
//
// Returns:
//   - *ShaderMaterial: the material
func NewStandardMaterial(host Host, name string, options ...MaterialBuilderOption) *ShaderMaterial {
	base := []MaterialBuilderOption{
		WithUniforms("baseColor", "pbrFactors", "cameraPosition", "mainLight"),
		WithBaseColor([4]float32{1, 1, 1, 1}),
	}
	m := NewShaderMaterial(host, name, StandardVertex, StandardFragment, append(base, options...)...)
	pbrFactors(m)[2] = m.alphaCutoff
	return m
}

// pbrFactors returns the (metallic, roughness, alphaCutoff, 0) vector, creating it with a fully
// rough dielectric default.
func pbrFactors(m *ShaderMaterial) []float32 {
	v, ok := m.vectors["pbrFactors"]
	if !ok || len(v) != 4 {
		v = []float32{0, 1, m.alphaCutoff, 0}
		m.declareUniform("pbrFactors")
		m.vectors["pbrFactors"] = v
	}
	return v
}

// WithBaseColor is an option builder that sets the albedo/diffuse RGBA color of the material.
//
// Parameters:
//   - color: the base color as RGBA float32 values
//
// Returns:
//   - MaterialBuilderOption: a function that applies the base color option to a material
func WithBaseColor(color [4]float32) MaterialBuilderOption {
	return func(m *ShaderMaterial) {
		m.SetColor4("baseColor", color)
	}
}

// WithMetallic is an option builder that sets the metallic factor of the material.
//
// Parameters:
//   - metallic: the metallic factor (0.0 = dielectric, 1.0 = metal)
//
// Returns:
//   - MaterialBuilderOption: a function that applies the metallic option to a material
func WithMetallic(metallic float32) MaterialBuilderOption {
	return func(m *ShaderMaterial) {
		pbrFactors(m)[0] = metallic
	}
}

// WithRoughness is an option builder that sets the roughness factor of the material.
//
// Parameters:
//   - roughness: the roughness factor (0.0 = smooth, 1.0 = rough)
//
// Returns:
//   - MaterialBuilderOption: a function that applies the roughness option to a material
func WithRoughness(roughness float32) MaterialBuilderOption {
	return func(m *ShaderMaterial) {
		pbrFactors(m)[1] = roughness
	}
}

// WithDiffuseTexture is an option builder that samples a render target as the albedo texture.
//
// Parameters:
//   - h: the render target
//
// Returns:
//   - MaterialBuilderOption: a function that applies the texture option to a material
func WithDiffuseTexture(h resource.Handle) MaterialBuilderOption {
	return func(m *ShaderMaterial) {
		m.SetTexture(DiffuseSampler, h)
	}
}
