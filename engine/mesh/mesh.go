// Package mesh holds renderable scene entities: a transform, uploaded geometry, a material and
// the sub-ranges of the index buffer the render loop draws.
package mesh

import (
	"fmt"
	"sync/atomic"

	"github.com/Carmen-Shannon/prism/common"
	"github.com/Carmen-Shannon/prism/engine/backend"
	"github.com/Carmen-Shannon/prism/engine/material"
	"github.com/go-gl/mathgl/mgl32"
)

var nextID atomic.Uint64

// SubMesh is a contiguous index range of a mesh drawn with one material.
type SubMesh struct {
	owner    *mesh
	material material.Material

	// IndexStart is the first index of the range.
	IndexStart int

	// IndexCount is the number of indices in the range.
	IndexCount int
}

// Mesh returns the mesh owning the range.
func (s *SubMesh) Mesh() Mesh { return s.owner }

// Material returns the range's material, falling back to the mesh material.
func (s *SubMesh) Material() material.Material {
	if s.material != nil {
		return s.material
	}
	return s.owner.material
}

// DrawCall returns the draw submission for the range with the given program.
//
// Parameters:
//   - program: the program of the material's effect
//
// Returns:
//   - backend.DrawCall: the draw call
func (s *SubMesh) DrawCall(program backend.ProgramID) backend.DrawCall {
	call := backend.DrawCall{
		Program:       program,
		Geometry:      s.owner.geometryID,
		InstanceCount: 1,
	}
	if len(s.owner.geometry.Indices) > 0 {
		call.IndexCount = s.IndexCount
	} else {
		call.VertexCount = s.IndexCount
	}
	return call
}

// DistanceTo returns the distance from the world bounding-sphere centre of the mesh to p.
func (s *SubMesh) DistanceTo(p mgl32.Vec3) float32 {
	return s.owner.BoundingSphereCenter().Sub(p).Len()
}

type mesh struct {
	id           uint64
	name         string
	enabled      atomic.Bool
	visible      bool
	castsShadows bool
	alphaIndex   int

	position mgl32.Vec3
	rotation mgl32.Vec3
	scale    mgl32.Vec3
	world    mgl32.Mat4
	dirty    bool

	geometry   Geometry
	geometryID backend.GeometryID
	bounds     common.BoundingBox
	material   material.Material
	subMeshes  []*SubMesh
}

// Mesh defines the interface for a renderable scene entity.
type Mesh interface {
	// ID returns the mesh's unique identifier.
	//
	// Returns:
	//   - uint64: the mesh ID
	ID() uint64

	// Name returns the mesh name.
	Name() string

	// Enabled returns whether the mesh takes part in rendering.
	//
	// Returns:
	//   - bool: true if enabled
	Enabled() bool

	// SetEnabled sets whether the mesh takes part in rendering.
	//
	// Parameters:
	//   - enabled: true to enable
	SetEnabled(enabled bool)

	// Visible returns whether the mesh is drawn. Invisible meshes still cast shadows.
	Visible() bool

	// SetVisible sets whether the mesh is drawn.
	SetVisible(visible bool)

	// CastsShadows returns whether the mesh is part of shadow render lists.
	CastsShadows() bool

	// SetCastsShadows sets whether the mesh is part of shadow render lists.
	SetCastsShadows(casts bool)

	// AlphaIndex returns the primary sort key of the mesh in the transparent bucket.
	AlphaIndex() int

	// SetAlphaIndex sets the primary transparent sort key.
	SetAlphaIndex(index int)

	// Position returns the world position.
	Position() mgl32.Vec3

	// SetPosition moves the mesh.
	SetPosition(p mgl32.Vec3)

	// Rotation returns the Euler rotation in radians.
	Rotation() mgl32.Vec3

	// SetRotation sets the Euler rotation in radians, applied X then Y then Z.
	SetRotation(r mgl32.Vec3)

	// Scale returns the per-axis scale.
	Scale() mgl32.Vec3

	// SetScale sets the per-axis scale.
	SetScale(s mgl32.Vec3)

	// WorldMatrix returns the world transform, refreshing it and the bounding box when the
	// transform changed.
	//
	// Returns:
	//   - mgl32.Mat4: translation * rotation * scale
	WorldMatrix() mgl32.Mat4

	// BoundingBox returns the bounding box with up to date world corners.
	BoundingBox() *common.BoundingBox

	// BoundingSphereCenter returns the world-space centre of the bounds.
	BoundingSphereCenter() mgl32.Vec3

	// Geometry returns the vertex and index data.
	Geometry() Geometry

	// Attributes returns the vertex attribute names of the geometry.
	Attributes() []string

	// Material returns the default material of the sub-meshes.
	Material() material.Material

	// SetMaterial replaces the default material.
	SetMaterial(m material.Material)

	// SubMeshes returns the index ranges drawn by the render loop.
	SubMeshes() []*SubMesh

	// AddSubMesh adds an index range with its own material. The first call replaces the default
	// range covering the whole mesh.
	//
	// Parameters:
	//   - start: the first index
	//   - count: the number of indices
	//   - m: the material, or nil to use the mesh material
	//
	// Returns:
	//   - *SubMesh: the new range
	AddSubMesh(start, count int, m material.Material) *SubMesh

	// Upload creates the backend geometry once. Later calls are no-ops.
	//
	// Parameters:
	//   - b: the backend
	//
	// Returns:
	//   - error: an error if the backend rejected the buffers
	Upload(b backend.Backend) error

	// GeometryID returns the uploaded geometry, or zero before Upload.
	GeometryID() backend.GeometryID

	// Dispose frees the backend geometry. The material is left to its owner.
	Dispose(b backend.Backend)

	// Serialize returns the transform and render flags of the mesh.
	Serialize() common.Document
}

var _ Mesh = &mesh{}
var _ material.Renderable = &mesh{}

// NewMesh creates a mesh from geometry configured with the given options.
//
// Parameters:
//   - name: the mesh name
//   - geometry: the vertex and index data
//   - options: functional options to configure the mesh
//
// Returns:
//   - Mesh: the newly created mesh
func NewMesh(name string, geometry Geometry, options ...MeshBuilderOption) Mesh {
	m := &mesh{
		id:       nextID.Add(1),
		name:     name,
		visible:  true,
		scale:    mgl32.Vec3{1, 1, 1},
		dirty:    true,
		geometry: geometry,
	}
	m.enabled.Store(true)
	m.bounds = common.NewBoundingBox(geometry.Extents())
	m.subMeshes = []*SubMesh{{owner: m, IndexCount: m.elementCount()}}
	for _, option := range options {
		option(m)
	}
	return m
}

func (m *mesh) elementCount() int {
	if len(m.geometry.Indices) > 0 {
		return len(m.geometry.Indices)
	}
	return len(m.geometry.Vertices)
}

func (m *mesh) ID() uint64 {
	return m.id
}

func (m *mesh) Name() string {
	return m.name
}

func (m *mesh) Enabled() bool {
	return m.enabled.Load()
}

func (m *mesh) SetEnabled(enabled bool) {
	m.enabled.Store(enabled)
}

func (m *mesh) Visible() bool {
	return m.visible
}

func (m *mesh) SetVisible(visible bool) {
	m.visible = visible
}

func (m *mesh) CastsShadows() bool {
	return m.castsShadows
}

func (m *mesh) SetCastsShadows(casts bool) {
	m.castsShadows = casts
}

func (m *mesh) AlphaIndex() int {
	return m.alphaIndex
}

func (m *mesh) SetAlphaIndex(index int) {
	m.alphaIndex = index
}

func (m *mesh) Position() mgl32.Vec3 {
	return m.position
}

func (m *mesh) SetPosition(p mgl32.Vec3) {
	m.position = p
	m.dirty = true
}

func (m *mesh) Rotation() mgl32.Vec3 {
	return m.rotation
}

func (m *mesh) SetRotation(r mgl32.Vec3) {
	m.rotation = r
	m.dirty = true
}

func (m *mesh) Scale() mgl32.Vec3 {
	return m.scale
}

func (m *mesh) SetScale(s mgl32.Vec3) {
	m.scale = s
	m.dirty = true
}

func (m *mesh) WorldMatrix() mgl32.Mat4 {
	if !m.dirty {
		return m.world
	}
	rot := mgl32.HomogRotate3DZ(m.rotation[2]).
		Mul4(mgl32.HomogRotate3DY(m.rotation[1])).
		Mul4(mgl32.HomogRotate3DX(m.rotation[0]))
	m.world = mgl32.Translate3D(m.position[0], m.position[1], m.position[2]).
		Mul4(rot).
		Mul4(mgl32.Scale3D(m.scale[0], m.scale[1], m.scale[2]))
	m.bounds.Update(m.world)
	m.dirty = false
	return m.world
}

func (m *mesh) BoundingBox() *common.BoundingBox {
	m.WorldMatrix()
	return &m.bounds
}

func (m *mesh) BoundingSphereCenter() mgl32.Vec3 {
	return m.BoundingBox().CenterWorld
}

func (m *mesh) Geometry() Geometry {
	return m.geometry
}

func (m *mesh) Attributes() []string {
	return m.geometry.Attributes()
}

func (m *mesh) Material() material.Material {
	return m.material
}

func (m *mesh) SetMaterial(mat material.Material) {
	m.material = mat
}

func (m *mesh) SubMeshes() []*SubMesh {
	return m.subMeshes
}

func (m *mesh) AddSubMesh(start, count int, mat material.Material) *SubMesh {
	sm := &SubMesh{owner: m, material: mat, IndexStart: start, IndexCount: count}
	if len(m.subMeshes) == 1 && m.subMeshes[0].material == nil && m.subMeshes[0].IndexStart == 0 && m.subMeshes[0].IndexCount == m.elementCount() {
		m.subMeshes[0] = sm
		return sm
	}
	m.subMeshes = append(m.subMeshes, sm)
	return sm
}

func (m *mesh) Upload(b backend.Backend) error {
	if m.geometryID != 0 {
		return nil
	}
	id, err := b.CreateGeometry(backend.GeometryDescriptor{
		Label:      m.name,
		Vertices:   m.geometry.Interleaved(),
		Indices:    m.geometry.Indices,
		Attributes: m.geometry.Attributes(),
	})
	if err != nil {
		return fmt.Errorf("failed to upload mesh %s: %w", m.name, err)
	}
	m.geometryID = id
	return nil
}

func (m *mesh) GeometryID() backend.GeometryID {
	return m.geometryID
}

func (m *mesh) Dispose(b backend.Backend) {
	if m.geometryID == 0 {
		return
	}
	b.ReleaseGeometry(m.geometryID)
	m.geometryID = 0
}

func (m *mesh) Serialize() common.Document {
	doc := common.Document{
		"name":         m.name,
		"position":     vec3Floats(m.position),
		"rotation":     vec3Floats(m.rotation),
		"scale":        vec3Floats(m.scale),
		"alphaIndex":   int64(m.alphaIndex),
		"visible":      m.visible,
		"enabled":      m.Enabled(),
		"castsShadows": m.castsShadows,
	}
	if m.material != nil {
		doc["material"] = m.material.Name()
	}
	return doc
}

// ApplyDocument restores the transform and render flags written by Serialize onto a mesh.
// Geometry and material are not part of the document.
//
// Parameters:
//   - m: the mesh to update
//   - doc: the serialized mesh
func ApplyDocument(m Mesh, doc common.Document) {
	if v, err := doc.Floats("position"); err == nil && len(v) == 3 {
		m.SetPosition(mgl32.Vec3{v[0], v[1], v[2]})
	}
	if v, err := doc.Floats("rotation"); err == nil && len(v) == 3 {
		m.SetRotation(mgl32.Vec3{v[0], v[1], v[2]})
	}
	if v, err := doc.Floats("scale"); err == nil && len(v) == 3 {
		m.SetScale(mgl32.Vec3{v[0], v[1], v[2]})
	}
	m.SetAlphaIndex(doc.IntOr("alphaIndex", m.AlphaIndex()))
	m.SetVisible(doc.BoolOr("visible", m.Visible()))
	m.SetEnabled(doc.BoolOr("enabled", m.Enabled()))
	m.SetCastsShadows(doc.BoolOr("castsShadows", m.CastsShadows()))
}

func vec3Floats(v mgl32.Vec3) []float64 {
	return []float64{float64(v[0]), float64(v[1]), float64(v[2])}
}
