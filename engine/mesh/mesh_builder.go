package mesh

import (
	"github.com/Carmen-Shannon/prism/engine/material"
	"github.com/go-gl/mathgl/mgl32"
)

// MeshBuilderOption is a functional option for configuring a Mesh during construction.
type MeshBuilderOption func(*mesh)

// WithEnabled sets whether the Mesh takes part in rendering.
//
// Parameters:
//   - enabled: true to render the mesh, false to skip it
//
// Returns:
//   - MeshBuilderOption: functional option to set the Enabled state
func WithEnabled(enabled bool) MeshBuilderOption {
	return func(m *mesh) {
		m.enabled.Store(enabled)
	}
}

// WithVisible sets whether the Mesh is drawn.
//
// Parameters:
//   - visible: false to keep the mesh out of camera buckets
//
// Returns:
//   - MeshBuilderOption: functional option to set the visibility
func WithVisible(visible bool) MeshBuilderOption {
	return func(m *mesh) {
		m.visible = visible
	}
}

// WithPosition sets the initial position of the Mesh.
//
// Parameters:
//   - x: the x position
//   - y: the y position
//   - z: the z position
//
// Returns:
//   - MeshBuilderOption: functional option to set the position
func WithPosition(x, y, z float32) MeshBuilderOption {
	return func(m *mesh) {
		m.position = mgl32.Vec3{x, y, z}
	}
}

// WithRotation sets the initial Euler rotation of the Mesh in radians.
//
// Parameters:
//   - rx: the x rotation angle
//   - ry: the y rotation angle
//   - rz: the z rotation angle
//
// Returns:
//   - MeshBuilderOption: functional option to set the rotation
func WithRotation(rx, ry, rz float32) MeshBuilderOption {
	return func(m *mesh) {
		m.rotation = mgl32.Vec3{rx, ry, rz}
	}
}

// WithScale sets the initial scale of the Mesh.
//
// Parameters:
//   - sx: the x scale factor
//   - sy: the y scale factor
//   - sz: the z scale factor
//
// Returns:
//   - MeshBuilderOption: functional option to set the scale
func WithScale(sx, sy, sz float32) MeshBuilderOption {
	return func(m *mesh) {
		m.scale = mgl32.Vec3{sx, sy, sz}
	}
}

// WithMaterial sets the default material of the Mesh.
//
// Parameters:
//   - mat: the material
//
// Returns:
//   - MeshBuilderOption: functional option to set the material
func WithMaterial(mat material.Material) MeshBuilderOption {
	return func(m *mesh) {
		m.material = mat
	}
}

// WithAlphaIndex sets the primary transparent sort key of the Mesh.
//
// Parameters:
//   - index: the alpha index
//
// Returns:
//   - MeshBuilderOption: functional option to set the alpha index
func WithAlphaIndex(index int) MeshBuilderOption {
	return func(m *mesh) {
		m.alphaIndex = index
	}
}

// WithCastsShadows adds the Mesh to the shadow render lists of the scene's lights.
//
// Parameters:
//   - casts: true to cast shadows
//
// Returns:
//   - MeshBuilderOption: functional option to set the shadow flag
func WithCastsShadows(casts bool) MeshBuilderOption {
	return func(m *mesh) {
		m.castsShadows = casts
	}
}
