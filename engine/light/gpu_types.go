package light

import (
	_ "embed"
)

// GPULightSource is the WGSL definition of PackedLight plus its lighting helpers. Register it as
// an include so material shaders can #include it.
//
//go:embed assets/light.wgsl
var GPULightSource string

// GPULightInclude is the include name materials use for GPULightSource.
const GPULightInclude = "lightFunctions"

// GPULight is the uniform representation of a single light source: four vec4 slots matching the
// WGSL PackedLight struct (see GPULightSource).
type GPULight struct {
	Position     [3]float32 // slot 0 xyz: world-space position (point/spot)
	LightType    float32    // slot 0 w: 0 = directional, 1 = point, 2 = spot
	Color        [3]float32 // slot 1 xyz: RGB color
	Intensity    float32    // slot 1 w: scalar multiplier
	Direction    [3]float32 // slot 2 xyz: normalized direction (directional/spot)
	LightRange   float32    // slot 2 w: attenuation cutoff distance
	InnerCone    float32    // slot 3 x: cos(inner half-angle) for spot
	OuterCone    float32    // slot 3 y: cos(outer half-angle) for spot
	CastsShadows float32    // slot 3 z: 1 = casts shadows
}

// Floats flattens the light into the 16 floats of a PackedLight uniform.
//
// Returns:
//   - []float32: four vec4 slots
func (g GPULight) Floats() []float32 {
	return []float32{
		g.Position[0], g.Position[1], g.Position[2], g.LightType,
		g.Color[0], g.Color[1], g.Color[2], g.Intensity,
		g.Direction[0], g.Direction[1], g.Direction[2], g.LightRange,
		g.InnerCone, g.OuterCone, g.CastsShadows, 0,
	}
}

// ToGPULight converts a Light into its uniform representation.
//
// Parameters:
//   - l: the Light to convert
//
// Returns:
//   - GPULight: the packed representation
func ToGPULight(l Light) GPULight {
	shadowVal := float32(0)
	if l.CastsShadows() {
		shadowVal = 1
	}
	return GPULight{
		Position:     l.Position(),
		LightType:    float32(l.Type()),
		Color:        l.Color(),
		Intensity:    l.Intensity(),
		Direction:    l.Direction(),
		LightRange:   l.Range(),
		InnerCone:    l.InnerCone(),
		OuterCone:    l.OuterCone(),
		CastsShadows: shadowVal,
	}
}

// GPUShadowData is the shadow sampling data of one light: the light view-projection plus the
// parameters used for PCF and bias.
type GPUShadowData struct {
	LightVP    [16]float32 // projection * view from the light
	TexelSize  [2]float32  // 1.0 / shadow map resolution
	Bias       float32     // depth comparison bias to reduce shadow acne
	NormalBias float32     // world-space normal-offset distance for shadow lookup
}

// ToGPUShadowData packs the last computed shadow transform of l.
//
// Parameters:
//   - l: the light
//   - resolution: the shadow map resolution in texels
//
// Returns:
//   - GPUShadowData: the packed shadow data
func ToGPUShadowData(l Light, resolution int) GPUShadowData {
	if resolution <= 0 {
		resolution = ShadowMapResolution
	}
	d := GPUShadowData{
		LightVP:   l.ShadowMatrix(),
		TexelSize: [2]float32{1 / float32(resolution), 1 / float32(resolution)},
		Bias:      DefaultShadowBias,
	}
	d.ComputeNormalBias(l, resolution)
	return d
}

// ComputeNormalBias derives the world-space normal-offset bias from the width of the light's
// orthographic frustum. Perspective shadows use the default half-extent.
//
// Parameters:
//   - l: the light
//   - resolution: shadow map resolution in texels
func (s *GPUShadowData) ComputeNormalBias(l Light, resolution int) {
	halfExtent := DefaultShadowHalfExtent
	if l.Type() == LightTypeDirectional && l.ShadowSettings().FrustumSize <= 0 {
		if left, right, _, _ := l.OrthoExtents(); left < right {
			halfExtent = (right - left) * (1 + 2*l.ShadowSettings().OrthoScale) / 2
		}
	}
	texelWorldSize := 2.0 * halfExtent / float32(resolution)
	s.NormalBias = texelWorldSize * DefaultShadowNormalBiasScale
}

// Params returns TexelSize, Bias and NormalBias as one vec4 uniform.
func (s GPUShadowData) Params() []float32 {
	return []float32{s.TexelSize[0], s.TexelSize[1], s.Bias, s.NormalBias}
}
