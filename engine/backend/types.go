package backend

import "strings"

// TextureID identifies a texture owned by a Backend. Zero denotes the default framebuffer (the screen).
type TextureID uint64

// ProgramID identifies a compiled shader program owned by a Backend. Zero is never a valid program.
type ProgramID uint64

// GeometryID identifies vertex/index buffers owned by a Backend. Zero means "no geometry"
// and is used for full-screen passes whose vertex shader synthesizes positions.
type GeometryID uint64

// SamplingMode controls texture filtering when a render target is sampled. The zero value is
// bilinear.
type SamplingMode int

const (
	// SamplingBilinear samples linearly within the nearest mip level.
	SamplingBilinear SamplingMode = iota

	// SamplingNearest samples the nearest texel with no mipmapping. Render targets using this
	// mode keep their exact requested size.
	SamplingNearest

	// SamplingTrilinear samples linearly within and between mip levels.
	SamplingTrilinear
)

// String returns the persisted name of the sampling mode.
func (m SamplingMode) String() string {
	switch m {
	case SamplingNearest:
		return "nearest"
	case SamplingTrilinear:
		return "trilinear"
	default:
		return "bilinear"
	}
}

// ParseSamplingMode converts a persisted name back into a SamplingMode. Unknown names yield bilinear.
func ParseSamplingMode(s string) SamplingMode {
	switch s {
	case "nearest":
		return SamplingNearest
	case "trilinear":
		return SamplingTrilinear
	default:
		return SamplingBilinear
	}
}

// TextureType is the per-channel storage type of a render target.
type TextureType int

const (
	// TextureTypeUnsignedInt stores 8-bit normalized channels.
	TextureTypeUnsignedInt TextureType = iota

	// TextureTypeHalfFloat stores 16-bit float channels.
	TextureTypeHalfFloat

	// TextureTypeFloat stores 32-bit float channels.
	TextureTypeFloat
)

// String returns the persisted name of the texture type.
func (t TextureType) String() string {
	switch t {
	case TextureTypeHalfFloat:
		return "half_float"
	case TextureTypeFloat:
		return "float"
	default:
		return "unsigned_int"
	}
}

// ParseTextureType converts a persisted name back into a TextureType. Unknown names yield unsigned int.
func ParseTextureType(s string) TextureType {
	switch s {
	case "half_float":
		return TextureTypeHalfFloat
	case "float":
		return TextureTypeFloat
	default:
		return TextureTypeUnsignedInt
	}
}

// AlphaMode selects the blend equation applied to subsequent draws.
type AlphaMode int

const (
	// AlphaDisable turns blending off.
	AlphaDisable AlphaMode = iota
	// AlphaAdd blends src*srcAlpha + dst.
	AlphaAdd
	// AlphaCombine blends src*srcAlpha + dst*(1-srcAlpha).
	AlphaCombine
	// AlphaSubtract blends dst - src*srcAlpha.
	AlphaSubtract
	// AlphaMultiply blends src*dst.
	AlphaMultiply
	// AlphaMaximized blends src*srcAlpha + dst*(1-src).
	AlphaMaximized
	// AlphaOneOne blends src + dst.
	AlphaOneOne
	// AlphaPremultiplied blends src + dst*(1-srcAlpha).
	AlphaPremultiplied
	// AlphaInterpolate blends with the constant color set through SetAlphaConstants.
	AlphaInterpolate
)

// Color is a linear RGBA color.
type Color struct {
	R, G, B, A float32
}

// Viewport restricts rendering to a sub-rectangle of the bound framebuffer.
type Viewport struct {
	X, Y          int
	Width, Height int
}

// Caps describes limits reported by the backend.
type Caps struct {
	// MaxTextureSize is the largest width or height of a 2D texture.
	MaxTextureSize int

	// MaxCubeTextureSize is the largest face size of a cube texture.
	MaxCubeTextureSize int

	// MaxSamples is the largest supported MSAA sample count for render targets.
	MaxSamples int
}

// TextureDescriptor describes a render target texture to allocate.
type TextureDescriptor struct {
	Label                 string
	Width, Height         int
	GenerateMipMaps       bool
	GenerateDepthBuffer   bool
	GenerateStencilBuffer bool
	SamplingMode          SamplingMode
	Type                  TextureType
	IsCube                bool
	Samples               int
}

// ProgramDescriptor describes a shader program to create. Sources are already preprocessed.
type ProgramDescriptor struct {
	Name           string
	VertexSource   string
	FragmentSource string
	VertexEntry    string
	FragmentEntry  string
	Attributes     []string
	Uniforms       []string
	Samplers       []string

	// Bytecode is an optional pre-validated intermediate form (SPIR-V) produced by the compiler.
	Bytecode []byte
}

// GeometryDescriptor describes interleaved vertex data and optional 32-bit indices.
type GeometryDescriptor struct {
	Label      string
	Vertices   []float32
	Indices    []uint32
	Attributes []string
}

// DrawCall describes one draw submission against the currently bound framebuffer.
type DrawCall struct {
	Program       ProgramID
	Geometry      GeometryID
	VertexCount   int
	IndexCount    int
	InstanceCount int
}

// FullScreenQuad returns the draw call used by post-process passes: six synthesized vertices
// covering the viewport.
func FullScreenQuad(program ProgramID) DrawCall {
	return DrawCall{Program: program, VertexCount: 6, InstanceCount: 1}
}

// AttributeSize returns the float count of a well-known vertex attribute name.
// Unknown attributes are assumed to be vec4.
func AttributeSize(name string) int {
	switch name {
	case "position", "normal", "tangent":
		return 3
	case "uv", "uv2":
		return 2
	case "matricesIndices", "matricesWeights", "color":
		return 4
	default:
		return 4
	}
}

// UniformSlots returns how many vec4 slots a uniform occupies. Names ending in "Matrix" and the
// well-known transform names are mat4x4, names ending in "Light" hold a packed light; both take
// four slots. Everything else is a single vec4.
func UniformSlots(name string) int {
	switch name {
	case "world", "view", "projection", "viewProjection":
		return 4
	}
	if strings.HasSuffix(name, "Matrix") || strings.HasSuffix(name, "Light") {
		return 4
	}
	return 1
}
