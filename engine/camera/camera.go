// Package camera holds the view state a scene renders from: placement, projection, viewport and
// the ordered list of post-process passes attached to the camera.
package camera

import (
	"math"
	"slices"

	"github.com/Carmen-Shannon/prism/common"
	"github.com/go-gl/mathgl/mgl32"
)

// PostProcess is the camera-facing view of a post-process pass. The camera only sequences passes;
// the postprocess package drives them.
type PostProcess interface {
	// Name returns the pass name.
	Name() string

	// MarkTextureDirty forces the pass to recreate its textures on the next activation.
	MarkTextureDirty()
}

// Viewport is a normalized camera viewport; (0,0,1,1) covers the whole target.
type Viewport struct {
	X, Y, Width, Height float32
}

type cameraImpl struct {
	name string

	position mgl32.Vec3
	target   mgl32.Vec3
	up       mgl32.Vec3

	fov    float32
	aspect float32
	minZ   float32
	maxZ   float32

	viewport Viewport

	viewMatrix           mgl32.Mat4
	projectionMatrix     mgl32.Mat4
	viewProjectionMatrix mgl32.Mat4

	controller    Controller
	postProcesses []PostProcess
}

// Camera defines the interface for a scene camera.
// Matrices are recomputed whenever a placement or projection setter runs and on Update.
type Camera interface {
	// Name returns the camera name.
	Name() string

	// Position returns the world-space eye position.
	Position() mgl32.Vec3

	// Target returns the look-at point.
	Target() mgl32.Vec3

	// Up returns the up vector.
	Up() mgl32.Vec3

	// Fov returns the vertical field of view in radians.
	Fov() float32

	// Aspect returns the aspect ratio (width / height).
	Aspect() float32

	// MinZ returns the near clipping plane distance.
	MinZ() float32

	// MaxZ returns the far clipping plane distance.
	MaxZ() float32

	// Viewport returns the normalized viewport.
	Viewport() Viewport

	// ViewMatrix returns the current view matrix.
	ViewMatrix() mgl32.Mat4

	// ProjectionMatrix returns the current projection matrix.
	ProjectionMatrix() mgl32.Mat4

	// ViewProjectionMatrix returns projection * view.
	ViewProjectionMatrix() mgl32.Mat4

	// SetPosition moves the eye.
	//
	// Parameters:
	//   - p: the world-space position
	SetPosition(p mgl32.Vec3)

	// SetTarget sets the look-at point.
	//
	// Parameters:
	//   - t: the world-space target
	SetTarget(t mgl32.Vec3)

	// SetUp sets the up vector.
	//
	// Parameters:
	//   - up: the up vector
	SetUp(up mgl32.Vec3)

	// SetFov sets the vertical field of view.
	//
	// Parameters:
	//   - fov: field of view in radians
	SetFov(fov float32)

	// SetAspect sets the aspect ratio.
	//
	// Parameters:
	//   - aspect: width / height
	SetAspect(aspect float32)

	// SetMinZ sets the near clipping plane.
	//
	// Parameters:
	//   - z: near plane distance
	SetMinZ(z float32)

	// SetMaxZ sets the far clipping plane.
	//
	// Parameters:
	//   - z: far plane distance
	SetMaxZ(z float32)

	// SetViewport sets the normalized viewport.
	//
	// Parameters:
	//   - v: the viewport
	SetViewport(v Viewport)

	// Controller returns the attached controller, or nil.
	Controller() Controller

	// SetController attaches a controller that drives position and target on Update.
	//
	// Parameters:
	//   - ctrl: the controller, or nil to detach
	SetController(ctrl Controller)

	// Update pulls placement from the controller (if any) and recomputes matrices.
	Update()

	// AttachPostProcess inserts a pass into the camera's chain.
	//
	// Parameters:
	//   - pp: the pass
	//   - insertAt: the chain index, or a negative value to append
	//
	// Returns:
	//   - int: the index the pass was placed at
	AttachPostProcess(pp PostProcess, insertAt int) int

	// DetachPostProcess removes a pass from the chain.
	//
	// Parameters:
	//   - pp: the pass
	//
	// Returns:
	//   - bool: true if the pass was attached
	DetachPostProcess(pp PostProcess) bool

	// PostProcesses returns the chain in render order.
	PostProcesses() []PostProcess

	// IndexOf returns the chain index of pp, or -1.
	//
	// Parameters:
	//   - pp: the pass
	//
	// Returns:
	//   - int: the index or -1
	IndexOf(pp PostProcess) int

	// Serialize returns the persisted camera fields.
	Serialize() common.Document
}

var _ Camera = &cameraImpl{}

// NewCamera creates a camera at (0,0,-10) looking at the origin.
//
// Parameters:
//   - name: the camera name
//   - options: functional options to configure the camera
//
// Returns:
//   - Camera: the newly created camera
func NewCamera(name string, options ...CameraBuilderOption) Camera {
	c := &cameraImpl{
		name:     name,
		position: mgl32.Vec3{0, 0, -10},
		up:       mgl32.Vec3{0, 1, 0},
		fov:      0.8,
		aspect:   1,
		minZ:     1,
		maxZ:     10000,
		viewport: Viewport{0, 0, 1, 1},
	}
	for _, option := range options {
		option(c)
	}
	c.updateMatrices()
	return c
}

// ParseCamera restores a camera from a document produced by Serialize.
//
// Parameters:
//   - doc: the serialized camera
//
// Returns:
//   - Camera: the restored camera
func ParseCamera(doc common.Document) Camera {
	c := NewCamera(doc.StringOr("name", "camera")).(*cameraImpl)
	if v, err := doc.Floats("position"); err == nil && len(v) == 3 {
		c.position = mgl32.Vec3{v[0], v[1], v[2]}
	}
	if v, err := doc.Floats("target"); err == nil && len(v) == 3 {
		c.target = mgl32.Vec3{v[0], v[1], v[2]}
	}
	if v, err := doc.Floats("up"); err == nil && len(v) == 3 {
		c.up = mgl32.Vec3{v[0], v[1], v[2]}
	}
	if v, err := doc.Floats("viewport"); err == nil && len(v) == 4 {
		c.viewport = Viewport{v[0], v[1], v[2], v[3]}
	}
	c.fov = float32(doc.FloatOr("fov", float64(c.fov)))
	c.aspect = float32(doc.FloatOr("aspect", float64(c.aspect)))
	c.minZ = float32(doc.FloatOr("minZ", float64(c.minZ)))
	c.maxZ = float32(doc.FloatOr("maxZ", float64(c.maxZ)))
	c.updateMatrices()
	return c
}

func (c *cameraImpl) Name() string                     { return c.name }
func (c *cameraImpl) Position() mgl32.Vec3             { return c.position }
func (c *cameraImpl) Target() mgl32.Vec3               { return c.target }
func (c *cameraImpl) Up() mgl32.Vec3                   { return c.up }
func (c *cameraImpl) Fov() float32                     { return c.fov }
func (c *cameraImpl) Aspect() float32                  { return c.aspect }
func (c *cameraImpl) MinZ() float32                    { return c.minZ }
func (c *cameraImpl) MaxZ() float32                    { return c.maxZ }
func (c *cameraImpl) Viewport() Viewport               { return c.viewport }
func (c *cameraImpl) ViewMatrix() mgl32.Mat4           { return c.viewMatrix }
func (c *cameraImpl) ProjectionMatrix() mgl32.Mat4     { return c.projectionMatrix }
func (c *cameraImpl) ViewProjectionMatrix() mgl32.Mat4 { return c.viewProjectionMatrix }
func (c *cameraImpl) Controller() Controller           { return c.controller }

func (c *cameraImpl) SetPosition(p mgl32.Vec3) {
	c.position = p
	c.updateMatrices()
}

func (c *cameraImpl) SetTarget(t mgl32.Vec3) {
	c.target = t
	c.updateMatrices()
}

func (c *cameraImpl) SetUp(up mgl32.Vec3) {
	c.up = up
	c.updateMatrices()
}

func (c *cameraImpl) SetFov(fov float32) {
	c.fov = fov
	c.updateMatrices()
}

func (c *cameraImpl) SetAspect(aspect float32) {
	if aspect <= 0 {
		return
	}
	c.aspect = aspect
	c.updateMatrices()
}

func (c *cameraImpl) SetMinZ(z float32) {
	c.minZ = z
	c.updateMatrices()
}

func (c *cameraImpl) SetMaxZ(z float32) {
	c.maxZ = z
	c.updateMatrices()
}

func (c *cameraImpl) SetViewport(v Viewport) { c.viewport = v }

func (c *cameraImpl) SetController(ctrl Controller) { c.controller = ctrl }

func (c *cameraImpl) Update() {
	if c.controller != nil {
		c.position = c.controller.Position()
		c.target = c.controller.Target()
	}
	c.updateMatrices()
}

func (c *cameraImpl) AttachPostProcess(pp PostProcess, insertAt int) int {
	if pp == nil {
		return -1
	}
	if i := c.IndexOf(pp); i >= 0 {
		return i
	}
	if insertAt < 0 || insertAt >= len(c.postProcesses) {
		c.postProcesses = append(c.postProcesses, pp)
		return len(c.postProcesses) - 1
	}
	c.postProcesses = slices.Insert(c.postProcesses, insertAt, pp)
	return insertAt
}

func (c *cameraImpl) DetachPostProcess(pp PostProcess) bool {
	i := c.IndexOf(pp)
	if i < 0 {
		return false
	}
	c.postProcesses = slices.Delete(c.postProcesses, i, i+1)
	return true
}

func (c *cameraImpl) PostProcesses() []PostProcess {
	return slices.Clone(c.postProcesses)
}

func (c *cameraImpl) IndexOf(pp PostProcess) int {
	for i, p := range c.postProcesses {
		if p == pp {
			return i
		}
	}
	return -1
}

func (c *cameraImpl) Serialize() common.Document {
	return common.Document{
		"name":     c.name,
		"position": vec3Floats(c.position),
		"target":   vec3Floats(c.target),
		"up":       vec3Floats(c.up),
		"viewport": []float64{float64(c.viewport.X), float64(c.viewport.Y), float64(c.viewport.Width), float64(c.viewport.Height)},
		"fov":      float64(c.fov),
		"aspect":   float64(c.aspect),
		"minZ":     float64(c.minZ),
		"maxZ":     float64(c.maxZ),
	}
}

func vec3Floats(v mgl32.Vec3) []float64 {
	return []float64{float64(v[0]), float64(v[1]), float64(v[2])}
}

// updateMatrices recalculates the view, projection and view-projection matrices.
func (c *cameraImpl) updateMatrices() {
	eye := c.position
	if eye.Sub(c.target).Len() < 1e-6 {
		// LookAt is undefined when eye == target; nudge along -Z.
		eye = c.target.Sub(mgl32.Vec3{0, 0, 1e-3})
	}
	c.viewMatrix = mgl32.LookAtV(eye, c.target, c.up)
	fov := c.fov
	if fov <= 0 || fov >= math.Pi {
		fov = 0.8
	}
	c.projectionMatrix = mgl32.Perspective(fov, c.aspect, c.minZ, c.maxZ)
	c.viewProjectionMatrix = c.projectionMatrix.Mul4(c.viewMatrix)
}
