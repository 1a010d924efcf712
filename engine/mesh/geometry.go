package mesh

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Vertex is one mesh vertex in model space. Which fields reach the GPU depends on the attributes
// the owning Geometry declares.
type Vertex struct {
	Position [3]float32
	Normal   [3]float32
	TexCoord [2]float32
	Color    [4]float32
}

// Geometry holds the vertices and 32-bit indices of a mesh before upload.
type Geometry struct {
	Vertices []Vertex
	Indices  []uint32

	// UV uploads TexCoord as the "uv" attribute.
	UV bool

	// Color uploads Color as the "color" attribute.
	Color bool
}

// Attributes returns the vertex attribute names in upload order. Position and normal are always
// present.
//
// Returns:
//   - []string: the attribute names
func (g Geometry) Attributes() []string {
	attrs := []string{"position", "normal"}
	if g.UV {
		attrs = append(attrs, "uv")
	}
	if g.Color {
		attrs = append(attrs, "color")
	}
	return attrs
}

// Stride returns the number of floats per interleaved vertex.
func (g Geometry) Stride() int {
	stride := 6
	if g.UV {
		stride += 2
	}
	if g.Color {
		stride += 4
	}
	return stride
}

// Interleaved packs the vertices into one float slice following Attributes.
//
// Returns:
//   - []float32: the interleaved vertex data
func (g Geometry) Interleaved() []float32 {
	out := make([]float32, 0, len(g.Vertices)*g.Stride())
	for _, v := range g.Vertices {
		out = append(out, v.Position[:]...)
		out = append(out, v.Normal[:]...)
		if g.UV {
			out = append(out, v.TexCoord[:]...)
		}
		if g.Color {
			out = append(out, v.Color[:]...)
		}
	}
	return out
}

// Extents returns the model-space bounds of the vertex positions. Empty geometry yields a
// degenerate box at the origin.
//
// Returns:
//   - mgl32.Vec3: the minimum corner
//   - mgl32.Vec3: the maximum corner
func (g Geometry) Extents() (mgl32.Vec3, mgl32.Vec3) {
	if len(g.Vertices) == 0 {
		return mgl32.Vec3{}, mgl32.Vec3{}
	}
	lo := mgl32.Vec3{math.MaxFloat32, math.MaxFloat32, math.MaxFloat32}
	hi := mgl32.Vec3{-math.MaxFloat32, -math.MaxFloat32, -math.MaxFloat32}
	for _, v := range g.Vertices {
		for i := range 3 {
			lo[i] = min(lo[i], v.Position[i])
			hi[i] = max(hi[i], v.Position[i])
		}
	}
	return lo, hi
}

// Box creates an axis-aligned box centred on the origin with per-face normals and uvs.
//
// Parameters:
//   - size: the edge length
//
// Returns:
//   - Geometry: 24 vertices and 36 indices
func Box(size float32) Geometry {
	h := size / 2
	type face struct {
		positions [4][3]float32
		normal    [3]float32
	}
	faces := []face{
		// +X
		{positions: [4][3]float32{{h, -h, -h}, {h, h, -h}, {h, h, h}, {h, -h, h}}, normal: [3]float32{1, 0, 0}},
		// -X
		{positions: [4][3]float32{{-h, -h, h}, {-h, h, h}, {-h, h, -h}, {-h, -h, -h}}, normal: [3]float32{-1, 0, 0}},
		// +Y
		{positions: [4][3]float32{{-h, h, -h}, {-h, h, h}, {h, h, h}, {h, h, -h}}, normal: [3]float32{0, 1, 0}},
		// -Y
		{positions: [4][3]float32{{-h, -h, h}, {-h, -h, -h}, {h, -h, -h}, {h, -h, h}}, normal: [3]float32{0, -1, 0}},
		// +Z
		{positions: [4][3]float32{{-h, -h, h}, {h, -h, h}, {h, h, h}, {-h, h, h}}, normal: [3]float32{0, 0, 1}},
		// -Z
		{positions: [4][3]float32{{h, -h, -h}, {-h, -h, -h}, {-h, h, -h}, {h, h, -h}}, normal: [3]float32{0, 0, -1}},
	}
	uvs := [4][2]float32{{0, 1}, {0, 0}, {1, 0}, {1, 1}}

	g := Geometry{
		Vertices: make([]Vertex, 0, 24),
		Indices:  make([]uint32, 0, 36),
		UV:       true,
	}
	for fi, f := range faces {
		for vi, p := range f.positions {
			g.Vertices = append(g.Vertices, Vertex{Position: p, Normal: f.normal, TexCoord: uvs[vi], Color: [4]float32{1, 1, 1, 1}})
		}
		base := uint32(fi * 4)
		g.Indices = append(g.Indices, base, base+1, base+2, base, base+2, base+3)
	}
	return g
}

// ColoredBox is Box with a distinct vertex color per face.
//
// Parameters:
//   - size: the edge length
//
// Returns:
//   - Geometry: the box with the color attribute enabled
func ColoredBox(size float32) Geometry {
	faceColors := [6][4]float32{
		{1, 0, 0, 1}, // +X red
		{0, 1, 0, 1}, // -X green
		{0, 0, 1, 1}, // +Y blue
		{1, 1, 0, 1}, // -Y yellow
		{1, 0, 1, 1}, // +Z magenta
		{0, 1, 1, 1}, // -Z cyan
	}
	g := Box(size)
	g.Color = true
	for i := range g.Vertices {
		g.Vertices[i].Color = faceColors[i/4]
	}
	return g
}

// Ground creates a horizontal plane on y = 0 facing up.
//
// Parameters:
//   - width: the extent along X
//   - depth: the extent along Z
//
// Returns:
//   - Geometry: 4 vertices and 6 indices
func Ground(width, depth float32) Geometry {
	w, d := width/2, depth/2
	up := [3]float32{0, 1, 0}
	white := [4]float32{1, 1, 1, 1}
	return Geometry{
		Vertices: []Vertex{
			{Position: [3]float32{-w, 0, -d}, Normal: up, TexCoord: [2]float32{0, 0}, Color: white},
			{Position: [3]float32{-w, 0, d}, Normal: up, TexCoord: [2]float32{0, 1}, Color: white},
			{Position: [3]float32{w, 0, d}, Normal: up, TexCoord: [2]float32{1, 1}, Color: white},
			{Position: [3]float32{w, 0, -d}, Normal: up, TexCoord: [2]float32{1, 0}, Color: white},
		},
		Indices: []uint32{0, 1, 2, 0, 2, 3},
		UV:      true,
	}
}
