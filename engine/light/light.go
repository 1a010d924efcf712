// Package light models scene lights as a closed set of tagged variants and computes their shadow
// view/projection transforms, cached per scene render id.
package light

import (
	"math"

	"github.com/Carmen-Shannon/prism/common"
	"github.com/go-gl/mathgl/mgl32"
)

// LightType identifies the kind of light source.
type LightType int

const (
	// LightTypeDirectional represents a light with no position, only direction.
	// Used for large distant sources like the sun or moon. Its shadow projection is orthographic.
	LightTypeDirectional LightType = iota

	// LightTypePoint represents a light that emits in all directions from a position.
	// Attenuates with distance up to a configurable range.
	LightTypePoint

	// LightTypeSpot represents a light that emits in a cone from a position along a direction.
	// Attenuates with both distance and angle from the cone axis.
	LightTypeSpot
)

// String returns the persisted name of the type.
func (t LightType) String() string {
	switch t {
	case LightTypePoint:
		return "point"
	case LightTypeSpot:
		return "spot"
	default:
		return "directional"
	}
}

// ParseLightType is the inverse of LightType.String. Unknown names yield LightTypeDirectional.
func ParseLightType(s string) LightType {
	switch s {
	case "point":
		return LightTypePoint
	case "spot":
		return LightTypeSpot
	default:
		return LightTypeDirectional
	}
}

// DepthRange supplies the fallback shadow clip planes, normally the active camera.
type DepthRange interface {
	MinZ() float32
	MaxZ() float32
}

// Bounded is a shadow caster whose world bounding box feeds the auto-extend frustum.
type Bounded interface {
	BoundingBox() *common.BoundingBox
}

// lightImpl is the implementation of the Light interface.
type lightImpl struct {
	name         string
	lightType    LightType
	position     mgl32.Vec3
	direction    mgl32.Vec3
	color        mgl32.Vec3
	intensity    float32
	lightRange   float32
	innerAngle   float32 // half-angle, radians
	outerAngle   float32 // half-angle, radians
	enabled      bool
	castsShadows bool

	shadow shadowState
}

// Light defines the interface for a light source in the scene.
//
// All light types share this interface; type-specific properties (cone angles for spot lights,
// ortho extents for directional lights) are ignored by the other variants.
type Light interface {
	// Name returns the light name.
	Name() string

	// Type returns the kind of light source.
	//
	// Returns:
	//   - LightType: the light type (directional, point, or spot)
	Type() LightType

	// Position returns the world-space position of the light. Directional lights use it as the
	// shadow eye.
	Position() mgl32.Vec3

	// Direction returns the normalized direction of the light.
	Direction() mgl32.Vec3

	// Color returns the RGB color of the light.
	Color() mgl32.Vec3

	// Intensity returns the scalar intensity multiplier for the light.
	Intensity() float32

	// Range returns the maximum attenuation distance for point and spot lights.
	Range() float32

	// InnerCone returns the cosine of the inner cone half-angle for spot lights.
	InnerCone() float32

	// OuterCone returns the cosine of the outer cone half-angle for spot lights.
	OuterCone() float32

	// Enabled returns whether this light is active for rendering.
	Enabled() bool

	// CastsShadows returns whether the scene computes a shadow transform for this light.
	CastsShadows() bool

	// SetPosition sets the world-space position of the light.
	SetPosition(p mgl32.Vec3)

	// SetDirection sets the direction of the light and normalizes it.
	SetDirection(d mgl32.Vec3)

	// SetColor sets the RGB color of the light.
	SetColor(c mgl32.Vec3)

	// SetIntensity sets the scalar intensity multiplier.
	SetIntensity(intensity float32)

	// SetRange sets the maximum attenuation distance.
	SetRange(lightRange float32)

	// SetSpotCone sets the inner and outer cone half-angles for spot lights.
	//
	// Parameters:
	//   - innerDeg: inner cone half-angle in degrees
	//   - outerDeg: outer cone half-angle in degrees
	SetSpotCone(innerDeg, outerDeg float32)

	// SetEnabled enables or disables the light for rendering.
	SetEnabled(enabled bool)

	// SetCastsShadows sets whether the light is eligible for shadow transforms.
	SetCastsShadows(castsShadows bool)

	// ShadowSettings returns the shadow projection settings.
	ShadowSettings() ShadowSettings

	// SetShadowFrustumSize switches a directional light to the fixed-frustum policy when size > 0
	// (auto-extend otherwise) and forces the projection to be recomputed.
	//
	// Parameters:
	//   - size: the fixed frustum size, or 0 for auto-extend
	SetShadowFrustumSize(size float32)

	// SetShadowOrthoScale sets the auto-extend margin and forces the projection to be recomputed.
	//
	// Parameters:
	//   - scale: the fraction of the extent added on each side
	SetShadowOrthoScale(scale float32)

	// SetAutoUpdateExtends makes the auto-extend policy re-derive its extents every frame.
	SetAutoUpdateExtends(auto bool)

	// SetShadowDepthRange overrides the camera clip planes used by the shadow projection.
	//
	// Parameters:
	//   - minZ: near plane
	//   - maxZ: far plane
	SetShadowDepthRange(minZ, maxZ float32)

	// ClearShadowDepthRange drops the override so the camera clip planes apply again.
	ClearShadowDepthRange()

	// ComputeShadowTransform recomputes the shadow view and projection for renderID. It is a no-op
	// returning false when the transform was already computed for renderID.
	//
	// Parameters:
	//   - renderID: the scene render id
	//   - depth: the fallback clip planes, normally the active camera
	//   - renderList: the shadow casters
	//
	// Returns:
	//   - bool: true if the transform was recomputed
	ComputeShadowTransform(renderID int, depth DepthRange, renderList []Bounded) bool

	// ForceProjectionMatrixCompute discards the cached transform and directional extents.
	ForceProjectionMatrixCompute()

	// ViewMatrix returns the shadow view matrix.
	ViewMatrix() mgl32.Mat4

	// ProjectionMatrix returns the shadow projection matrix.
	ProjectionMatrix() mgl32.Mat4

	// ShadowMatrix returns projection * view.
	ShadowMatrix() mgl32.Mat4

	// OrthoExtents returns the cached directional extents (left, right, bottom, top).
	OrthoExtents() (left, right, bottom, top float32)

	// LastComputedRenderID returns the render id of the last shadow computation, or -1.
	LastComputedRenderID() int

	// Serialize returns the persisted light fields.
	Serialize() common.Document
}

var _ Light = &lightImpl{}

// NewLight creates a new Light of the specified type with sensible defaults and
// any provided options applied.
//
// Parameters:
//   - name: the light name
//   - lightType: the kind of light to create (directional, point, or spot)
//   - opts: variadic list of LightBuilderOption functions to configure the light
//
// Returns:
//   - Light: a new Light instance
func NewLight(name string, lightType LightType, opts ...LightBuilderOption) Light {
	l := &lightImpl{
		name:       name,
		lightType:  lightType,
		direction:  mgl32.Vec3{0, -1, 0},
		color:      mgl32.Vec3{1, 1, 1},
		intensity:  1.0,
		lightRange: 10.0,
		innerAngle: mgl32.DegToRad(25),
		outerAngle: mgl32.DegToRad(35),
		enabled:    true,
		shadow:     newShadowState(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *lightImpl) Name() string                   { return l.name }
func (l *lightImpl) Type() LightType                { return l.lightType }
func (l *lightImpl) Position() mgl32.Vec3           { return l.position }
func (l *lightImpl) Direction() mgl32.Vec3          { return l.direction }
func (l *lightImpl) Color() mgl32.Vec3              { return l.color }
func (l *lightImpl) Intensity() float32             { return l.intensity }
func (l *lightImpl) Range() float32                 { return l.lightRange }
func (l *lightImpl) InnerCone() float32             { return cos32(l.innerAngle) }
func (l *lightImpl) OuterCone() float32             { return cos32(l.outerAngle) }
func (l *lightImpl) Enabled() bool                  { return l.enabled }
func (l *lightImpl) CastsShadows() bool             { return l.castsShadows }
func (l *lightImpl) ShadowSettings() ShadowSettings { return l.shadow.settings }

func (l *lightImpl) SetPosition(p mgl32.Vec3) {
	l.position = p
}

func (l *lightImpl) SetDirection(d mgl32.Vec3) {
	l.direction = normalize(d)
}

func (l *lightImpl) SetColor(c mgl32.Vec3) {
	l.color = c
}

func (l *lightImpl) SetIntensity(intensity float32) {
	l.intensity = intensity
}

func (l *lightImpl) SetRange(lightRange float32) {
	l.lightRange = lightRange
}

func (l *lightImpl) SetSpotCone(innerDeg, outerDeg float32) {
	l.innerAngle = mgl32.DegToRad(innerDeg)
	l.outerAngle = mgl32.DegToRad(outerDeg)
	if l.lightType == LightTypeSpot {
		l.ForceProjectionMatrixCompute()
	}
}

func (l *lightImpl) SetEnabled(enabled bool) {
	l.enabled = enabled
}

func (l *lightImpl) SetCastsShadows(castsShadows bool) {
	l.castsShadows = castsShadows
}

func (l *lightImpl) SetShadowFrustumSize(size float32) {
	l.shadow.settings.FrustumSize = size
	l.ForceProjectionMatrixCompute()
}

func (l *lightImpl) SetShadowOrthoScale(scale float32) {
	l.shadow.settings.OrthoScale = scale
	l.ForceProjectionMatrixCompute()
}

func (l *lightImpl) SetAutoUpdateExtends(auto bool) {
	l.shadow.settings.AutoUpdateExtends = auto
}

func (l *lightImpl) SetShadowDepthRange(minZ, maxZ float32) {
	l.shadow.settings.MinZ = Depth(minZ)
	l.shadow.settings.MaxZ = Depth(maxZ)
	l.ForceProjectionMatrixCompute()
}

func (l *lightImpl) ClearShadowDepthRange() {
	l.shadow.settings.MinZ = nil
	l.shadow.settings.MaxZ = nil
	l.ForceProjectionMatrixCompute()
}

func (l *lightImpl) ViewMatrix() mgl32.Mat4       { return l.shadow.view }
func (l *lightImpl) ProjectionMatrix() mgl32.Mat4 { return l.shadow.projection }
func (l *lightImpl) ShadowMatrix() mgl32.Mat4     { return l.shadow.projection.Mul4(l.shadow.view) }
func (l *lightImpl) LastComputedRenderID() int    { return l.shadow.renderID }

func (l *lightImpl) OrthoExtents() (left, right, bottom, top float32) {
	s := l.shadow
	return s.orthoLeft, s.orthoRight, s.orthoBottom, s.orthoTop
}

func (l *lightImpl) Serialize() common.Document {
	s := l.shadow.settings
	shadow := common.Document{
		"frustumSize":       float64(s.FrustumSize),
		"orthoScale":        float64(s.OrthoScale),
		"autoUpdateExtends": s.AutoUpdateExtends,
	}
	if s.MinZ != nil {
		shadow["minZ"] = float64(*s.MinZ)
	}
	if s.MaxZ != nil {
		shadow["maxZ"] = float64(*s.MaxZ)
	}
	return common.Document{
		"name":         l.name,
		"type":         l.lightType.String(),
		"position":     vec3Floats(l.position),
		"direction":    vec3Floats(l.direction),
		"color":        vec3Floats(l.color),
		"intensity":    float64(l.intensity),
		"range":        float64(l.lightRange),
		"innerAngle":   float64(l.innerAngle),
		"outerAngle":   float64(l.outerAngle),
		"enabled":      l.enabled,
		"castsShadows": l.castsShadows,
		"shadow":       shadow,
	}
}

// ParseLight restores a light from a document produced by Serialize.
//
// Parameters:
//   - doc: the serialized light
//
// Returns:
//   - Light: the restored light
func ParseLight(doc common.Document) Light {
	l := NewLight(doc.StringOr("name", "light"), ParseLightType(doc.StringOr("type", ""))).(*lightImpl)
	if v, err := doc.Floats("position"); err == nil && len(v) == 3 {
		l.position = mgl32.Vec3{v[0], v[1], v[2]}
	}
	if v, err := doc.Floats("direction"); err == nil && len(v) == 3 {
		l.direction = mgl32.Vec3{v[0], v[1], v[2]}
	}
	if v, err := doc.Floats("color"); err == nil && len(v) == 3 {
		l.color = mgl32.Vec3{v[0], v[1], v[2]}
	}
	l.intensity = float32(doc.FloatOr("intensity", float64(l.intensity)))
	l.lightRange = float32(doc.FloatOr("range", float64(l.lightRange)))
	l.innerAngle = float32(doc.FloatOr("innerAngle", float64(l.innerAngle)))
	l.outerAngle = float32(doc.FloatOr("outerAngle", float64(l.outerAngle)))
	l.enabled = doc.BoolOr("enabled", true)
	l.castsShadows = doc.BoolOr("castsShadows", false)
	if s := doc.Sub("shadow"); s != nil {
		l.shadow.settings = ShadowSettings{
			FrustumSize:       float32(s.FloatOr("frustumSize", 0)),
			OrthoScale:        float32(s.FloatOr("orthoScale", float64(DefaultShadowOrthoScale))),
			AutoUpdateExtends: s.BoolOr("autoUpdateExtends", false),
		}
		if z, err := s.Float("minZ"); err == nil {
			l.shadow.settings.MinZ = Depth(float32(z))
		}
		if z, err := s.Float("maxZ"); err == nil {
			l.shadow.settings.MaxZ = Depth(float32(z))
		}
	}
	return l
}

func vec3Floats(v mgl32.Vec3) []float64 {
	return []float64{float64(v[0]), float64(v[1]), float64(v[2])}
}

// normalize returns v scaled to unit length, or the zero vector.
func normalize(v mgl32.Vec3) mgl32.Vec3 {
	n := common.Normalize3(v[0], v[1], v[2])
	return mgl32.Vec3{n[0], n[1], n[2]}
}

func cos32(rad float32) float32 {
	return float32(math.Cos(float64(rad)))
}
