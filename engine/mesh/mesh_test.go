package mesh

import (
	"testing"

	"github.com/Carmen-Shannon/prism/common"
	"github.com/Carmen-Shannon/prism/engine/backend"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoxGeometry(t *testing.T) {
	g := Box(2)
	assert.Len(t, g.Vertices, 24)
	assert.Len(t, g.Indices, 36)
	assert.Equal(t, []string{"position", "normal", "uv"}, g.Attributes())
	assert.Len(t, g.Interleaved(), 24*8)

	lo, hi := g.Extents()
	assert.Equal(t, mgl32.Vec3{-1, -1, -1}, lo)
	assert.Equal(t, mgl32.Vec3{1, 1, 1}, hi)
}

func TestColoredBoxInterleavesColor(t *testing.T) {
	g := ColoredBox(1)
	assert.Equal(t, []string{"position", "normal", "uv", "color"}, g.Attributes())
	assert.Equal(t, 12, g.Stride())

	data := g.Interleaved()
	// the first vertex of the +X face is red
	assert.Equal(t, []float32{1, 0, 0, 1}, data[8:12])
}

func TestWorldMatrixMovesBounds(t *testing.T) {
	m := NewMesh("crate", Box(2), WithPosition(10, 0, 0), WithScale(2, 2, 2))
	world := m.WorldMatrix()
	assert.Equal(t, mgl32.Vec3{10, 0, 0}, mgl32.TransformCoordinate(mgl32.Vec3{}, world))

	lo, hi := m.BoundingBox().WorldMinMax()
	assert.InDelta(t, 8, lo[0], 1e-5)
	assert.InDelta(t, 12, hi[0], 1e-5)
	assert.InDelta(t, -2, lo[1], 1e-5)
	assert.Equal(t, mgl32.Vec3{10, 0, 0}, m.BoundingSphereCenter())

	m.SetPosition(mgl32.Vec3{0, 5, 0})
	assert.Equal(t, mgl32.Vec3{0, 5, 0}, m.BoundingSphereCenter())
}

func TestDefaultSubMeshCoversMesh(t *testing.T) {
	m := NewMesh("ground", Ground(10, 10))
	require.Len(t, m.SubMeshes(), 1)
	sm := m.SubMeshes()[0]
	assert.Equal(t, 0, sm.IndexStart)
	assert.Equal(t, 6, sm.IndexCount)
	assert.Same(t, m, sm.Mesh())
	assert.Nil(t, sm.Material())

	first := m.AddSubMesh(0, 3, nil)
	m.AddSubMesh(3, 3, nil)
	assert.Len(t, m.SubMeshes(), 2)
	assert.Same(t, first, m.SubMeshes()[0])
}

func TestUploadCreatesGeometryOnce(t *testing.T) {
	b := backend.NewHeadless()
	m := NewMesh("crate", Box(1))
	require.NoError(t, m.Upload(b))
	require.NoError(t, m.Upload(b))
	assert.Equal(t, 1, b.Count(backend.OpCreateGeometry))
	assert.NotZero(t, m.GeometryID())

	call := m.SubMeshes()[0].DrawCall(7)
	assert.Equal(t, backend.DrawCall{Program: 7, Geometry: m.GeometryID(), IndexCount: 36, InstanceCount: 1}, call)

	m.Dispose(b)
	assert.Zero(t, m.GeometryID())
	assert.Equal(t, 1, b.Count(backend.OpReleaseGeometry))
}

func TestDistanceToCamera(t *testing.T) {
	m := NewMesh("far", Box(1), WithPosition(0, 0, -10))
	assert.InDelta(t, 10, m.SubMeshes()[0].DistanceTo(mgl32.Vec3{}), 1e-5)
}

func TestSerializeRestoresTransform(t *testing.T) {
	src := NewMesh("crate", Box(1),
		WithPosition(1, 2, 3),
		WithRotation(0, 1.5, 0),
		WithAlphaIndex(4),
		WithCastsShadows(true),
		WithVisible(false),
	)
	data, err := common.EncodeDocument(src.Serialize())
	require.NoError(t, err)
	doc, err := common.DecodeDocument(data)
	require.NoError(t, err)

	dst := NewMesh("crate", Box(1))
	ApplyDocument(dst, doc)
	assert.Equal(t, src.Position(), dst.Position())
	assert.Equal(t, src.Rotation(), dst.Rotation())
	assert.Equal(t, 4, dst.AlphaIndex())
	assert.True(t, dst.CastsShadows())
	assert.False(t, dst.Visible())
	assert.True(t, dst.Enabled())
}
