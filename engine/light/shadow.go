package light

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// ShadowMapResolution is the default width and height in texels of the shadow
// depth texture.
const ShadowMapResolution = 2048

// DefaultShadowHalfExtent is the orthographic half-extent (in world units) used for a directional
// light while it has no shadow casters to derive its extents from.
const DefaultShadowHalfExtent float32 = 40.0

// DefaultShadowNear is the near plane used when neither the light nor a camera supplies one.
const DefaultShadowNear float32 = 0.1

// DefaultShadowFar is the far plane used when neither the light nor a camera supplies one.
const DefaultShadowFar float32 = 200.0

// DefaultShadowBias is the constant depth bias applied to shadow comparisons
// to reduce shadow acne artifacts.
const DefaultShadowBias float32 = 0.001

// DefaultShadowNormalBiasScale is the multiplier applied to the shadow map
// texel world-size to compute the normal-offset bias.
const DefaultShadowNormalBiasScale float32 = 3.0

// DefaultShadowOrthoScale is the auto-extend margin: the fraction of the measured extent added on
// each side of the directional shadow rectangle.
const DefaultShadowOrthoScale float32 = 0.5

// ShadowSettings configures how a light derives its shadow projection.
type ShadowSettings struct {
	// FrustumSize > 0 selects the fixed-frustum policy for directional lights.
	FrustumSize float32

	// OrthoScale expands the auto-extend rectangle by OrthoScale * extent on each side.
	OrthoScale float32

	// AutoUpdateExtends re-derives the auto-extend rectangle every frame instead of once.
	AutoUpdateExtends bool

	// MinZ and MaxZ override the camera clip planes when set. Zero is a valid override.
	MinZ *float32
	MaxZ *float32
}

// Depth returns a pointer to z for use in ShadowSettings.MinZ and MaxZ.
func Depth(z float32) *float32 { return &z }

type shadowState struct {
	settings ShadowSettings

	view       mgl32.Mat4
	projection mgl32.Mat4
	renderID   int

	orthoLeft   float32
	orthoRight  float32
	orthoBottom float32
	orthoTop    float32
}

func newShadowState() shadowState {
	s := shadowState{
		settings:   ShadowSettings{OrthoScale: DefaultShadowOrthoScale},
		view:       mgl32.Ident4(),
		projection: mgl32.Ident4(),
		renderID:   -1,
	}
	s.resetExtents()
	return s
}

// resetExtents puts the cached ortho rectangle back to its unset sentinel values.
func (s *shadowState) resetExtents() {
	s.orthoLeft = math.MaxFloat32
	s.orthoRight = -math.MaxFloat32
	s.orthoBottom = math.MaxFloat32
	s.orthoTop = -math.MaxFloat32
}

func (s *shadowState) extentsUnset() bool {
	return s.orthoLeft == math.MaxFloat32
}

func (l *lightImpl) ForceProjectionMatrixCompute() {
	l.shadow.renderID = -1
	l.shadow.resetExtents()
}

func (l *lightImpl) ComputeShadowTransform(renderID int, depth DepthRange, renderList []Bounded) bool {
	s := &l.shadow
	if s.renderID == renderID {
		return false
	}
	s.renderID = renderID

	near, far := l.depthRange(depth)
	s.view = l.shadowView()

	switch l.lightType {
	case LightTypeDirectional:
		if s.settings.FrustumSize > 0 {
			size := s.settings.FrustumSize
			s.projection = perspectiveZO(size, size, near, far)
			return true
		}
		if s.settings.AutoUpdateExtends || s.extentsUnset() {
			s.updateExtents(renderList)
		}
		s.projection = s.autoExtendProjection(near, far)
	case LightTypePoint:
		s.projection = perspectiveZO(math.Pi/2, 1, near, far)
	case LightTypeSpot:
		s.projection = perspectiveZO(l.outerAngle*2, 1, near, far)
	}
	return true
}

// depthRange resolves the shadow clip planes: light override, then camera, then defaults.
func (l *lightImpl) depthRange(depth DepthRange) (float32, float32) {
	near, far := DefaultShadowNear, DefaultShadowFar
	if depth != nil {
		near, far = depth.MinZ(), depth.MaxZ()
	}
	if z := l.shadow.settings.MinZ; z != nil {
		near = *z
	}
	if z := l.shadow.settings.MaxZ; z != nil {
		far = *z
	}
	return near, far
}

// shadowView looks from the light position along its direction.
func (l *lightImpl) shadowView() mgl32.Mat4 {
	dir := l.direction
	if dir.Len() == 0 {
		dir = mgl32.Vec3{0, -1, 0}
	}
	up := mgl32.Vec3{0, 1, 0}
	if absF32(dir.Normalize().Dot(up)) > 0.99 {
		up = mgl32.Vec3{0, 0, 1}
	}
	return mgl32.LookAtV(l.position, l.position.Add(dir), up)
}

// updateExtents measures the light-view rectangle covering every caster's world corners.
func (s *shadowState) updateExtents(renderList []Bounded) {
	s.resetExtents()
	for _, m := range renderList {
		box := m.BoundingBox()
		if box == nil {
			continue
		}
		for _, corner := range box.VectorsWorld {
			v := mgl32.TransformCoordinate(corner, s.view)
			s.orthoLeft = min(s.orthoLeft, v.X())
			s.orthoRight = max(s.orthoRight, v.X())
			s.orthoBottom = min(s.orthoBottom, v.Y())
			s.orthoTop = max(s.orthoTop, v.Y())
		}
	}
}

func (s *shadowState) autoExtendProjection(near, far float32) mgl32.Mat4 {
	if s.extentsUnset() {
		h := DefaultShadowHalfExtent
		return orthoZO(-h, h, -h, h, near, far)
	}
	xOffset := s.orthoRight - s.orthoLeft
	yOffset := s.orthoTop - s.orthoBottom
	scale := s.settings.OrthoScale
	return orthoZO(
		s.orthoLeft-xOffset*scale,
		s.orthoRight+xOffset*scale,
		s.orthoBottom-yOffset*scale,
		s.orthoTop+yOffset*scale,
		near, far,
	)
}

// orthoZO builds an orthographic projection matrix compatible with WebGPU's
// clip-space convention: X/Y in [-1, 1], Z in [0, 1].
func orthoZO(left, right, bottom, top, near, far float32) mgl32.Mat4 {
	m := mgl32.Ident4()
	rl := right - left
	tb := top - bottom
	fn := far - near

	m[0] = 2.0 / rl
	m[5] = 2.0 / tb
	m[10] = -1.0 / fn
	m[12] = -(right + left) / rl
	m[13] = -(top + bottom) / tb
	m[14] = -near / fn
	return m
}

// perspectiveZO builds a right-handed perspective projection with Z in [0, 1].
func perspectiveZO(fovy, aspect, near, far float32) mgl32.Mat4 {
	f := float32(1 / math.Tan(float64(fovy)/2))
	var m mgl32.Mat4
	m[0] = f / aspect
	m[5] = f
	m[10] = far / (near - far)
	m[11] = -1
	m[14] = near * far / (near - far)
	return m
}

// absF32 returns the absolute value of a float32.
func absF32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
