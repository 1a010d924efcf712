package camera

import (
	"math"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
)

// Controller supplies camera placement. The camera reads it on every Update.
type Controller interface {
	// Position returns the world-space eye position.
	Position() mgl32.Vec3

	// Target returns the look-at point.
	Target() mgl32.Vec3
}

// OrbitController places the eye on a sphere around a target using radius, azimuth and
// elevation. Input callbacks may call it from the window thread while the render loop reads it.
type OrbitController struct {
	mu *sync.Mutex

	target    mgl32.Vec3
	radius    float32
	azimuth   float32
	elevation float32

	minRadius, maxRadius       float32
	minElevation, maxElevation float32

	orbitSpeed float32
	zoomSpeed  float32
}

var _ Controller = &OrbitController{}

// NewOrbitController creates an orbit controller around target.
//
// Parameters:
//   - target: the pivot point
//   - radius: the initial distance from the pivot
//
// Returns:
//   - *OrbitController: the controller
func NewOrbitController(target mgl32.Vec3, radius float32) *OrbitController {
	oc := &OrbitController{
		mu:           &sync.Mutex{},
		target:       target,
		elevation:    float32(math.Pi / 6),
		minRadius:    1,
		maxRadius:    2000,
		minElevation: -float32(math.Pi/2 - 0.05),
		maxElevation: float32(math.Pi/2 - 0.05),
		orbitSpeed:   0.03,
		zoomSpeed:    1,
	}
	oc.radius = clamp(radius, oc.minRadius, oc.maxRadius)
	return oc
}

func (oc *OrbitController) Position() mgl32.Vec3 {
	oc.mu.Lock()
	defer oc.mu.Unlock()
	cosElev := float32(math.Cos(float64(oc.elevation)))
	return oc.target.Add(mgl32.Vec3{
		oc.radius * cosElev * float32(math.Sin(float64(oc.azimuth))),
		oc.radius * float32(math.Sin(float64(oc.elevation))),
		oc.radius * cosElev * float32(math.Cos(float64(oc.azimuth))),
	})
}

func (oc *OrbitController) Target() mgl32.Vec3 {
	oc.mu.Lock()
	defer oc.mu.Unlock()
	return oc.target
}

// SetTarget moves the pivot point.
func (oc *OrbitController) SetTarget(t mgl32.Vec3) {
	oc.mu.Lock()
	defer oc.mu.Unlock()
	oc.target = t
}

// Orbit rotates by the given number of orbit steps horizontally and vertically.
//
// Parameters:
//   - dAzimuth: horizontal steps, positive rotates right
//   - dElevation: vertical steps, positive tilts up
func (oc *OrbitController) Orbit(dAzimuth, dElevation float32) {
	oc.mu.Lock()
	defer oc.mu.Unlock()
	oc.azimuth += dAzimuth * oc.orbitSpeed
	oc.elevation = clamp(oc.elevation+dElevation*oc.orbitSpeed, oc.minElevation, oc.maxElevation)
}

// Zoom moves toward (positive delta) or away from the target, clamped to the radius bounds.
func (oc *OrbitController) Zoom(delta float32) {
	oc.mu.Lock()
	defer oc.mu.Unlock()
	oc.radius = clamp(oc.radius-delta*oc.zoomSpeed, oc.minRadius, oc.maxRadius)
}

// Radius returns the current distance from the target.
func (oc *OrbitController) Radius() float32 {
	oc.mu.Lock()
	defer oc.mu.Unlock()
	return oc.radius
}

// Elevation returns the vertical angle in radians.
func (oc *OrbitController) Elevation() float32 {
	oc.mu.Lock()
	defer oc.mu.Unlock()
	return oc.elevation
}

func clamp(v, lo, hi float32) float32 {
	return float32(math.Max(float64(lo), math.Min(float64(hi), float64(v))))
}
