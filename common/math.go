package common

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// BoundingBox is an axis-aligned box in local space together with its eight world-space corners.
// The world corners are refreshed by Update whenever the owning mesh's world matrix changes.
type BoundingBox struct {
	Min mgl32.Vec3
	Max mgl32.Vec3

	// VectorsWorld holds the eight corners of the box transformed by the last world matrix.
	VectorsWorld [8]mgl32.Vec3

	// CenterWorld is the box center transformed by the last world matrix.
	CenterWorld mgl32.Vec3
}

// NewBoundingBox creates a BoundingBox from local-space min/max and initializes the world
// corners with the identity transform.
//
// Parameters:
//   - min: the local-space minimum corner
//   - max: the local-space maximum corner
//
// Returns:
//   - BoundingBox: the initialized box
func NewBoundingBox(min, max mgl32.Vec3) BoundingBox {
	b := BoundingBox{Min: min, Max: max}
	b.Update(mgl32.Ident4())
	return b
}

// Update recomputes VectorsWorld and CenterWorld from the given world matrix.
//
// Parameters:
//   - world: the world matrix of the owning mesh
func (b *BoundingBox) Update(world mgl32.Mat4) {
	corners := [8]mgl32.Vec3{
		{b.Min[0], b.Min[1], b.Min[2]},
		{b.Max[0], b.Max[1], b.Max[2]},
		{b.Max[0], b.Min[1], b.Min[2]},
		{b.Min[0], b.Max[1], b.Min[2]},
		{b.Min[0], b.Min[1], b.Max[2]},
		{b.Max[0], b.Max[1], b.Min[2]},
		{b.Min[0], b.Max[1], b.Max[2]},
		{b.Max[0], b.Min[1], b.Max[2]},
	}
	for i, c := range corners {
		b.VectorsWorld[i] = mgl32.TransformCoordinate(c, world)
	}
	center := b.Min.Add(b.Max).Mul(0.5)
	b.CenterWorld = mgl32.TransformCoordinate(center, world)
}

// WorldMinMax returns the axis-aligned world-space extents of the transformed corners.
//
// Returns:
//   - mgl32.Vec3: the minimum world-space corner
//   - mgl32.Vec3: the maximum world-space corner
func (b *BoundingBox) WorldMinMax() (mgl32.Vec3, mgl32.Vec3) {
	lo := mgl32.Vec3{math.MaxFloat32, math.MaxFloat32, math.MaxFloat32}
	hi := mgl32.Vec3{-math.MaxFloat32, -math.MaxFloat32, -math.MaxFloat32}
	for _, v := range b.VectorsWorld {
		for i := 0; i < 3; i++ {
			lo[i] = min(lo[i], v[i])
			hi[i] = max(hi[i], v[i])
		}
	}
	return lo, hi
}

// Vec3 converts a [3]float32 into an mgl32.Vec3.
func Vec3(v [3]float32) mgl32.Vec3 {
	return mgl32.Vec3{v[0], v[1], v[2]}
}

// Normalize3 normalizes a 3-component vector. Returns a zero vector if the input has zero length.
//
// Parameters:
//   - x, y, z: vector components
//
// Returns:
//   - [3]float32: the normalized vector
func Normalize3(x, y, z float32) [3]float32 {
	length := float32(math.Sqrt(float64(x*x + y*y + z*z)))
	if length == 0 {
		return [3]float32{0, 0, 0}
	}
	inv := 1.0 / length
	return [3]float32{x * inv, y * inv, z * inv}
}
