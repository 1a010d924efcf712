// Package backend defines the graphics API boundary the engine core talks to, plus the concrete
// implementations: a WebGPU backend and a headless recorder used for tooling and tests.
package backend

import "fmt"

// BackendType identifies the GPU backend implementation.
type BackendType int

const (
	// BackendTypeWGPU selects the WebGPU-based rendering backend.
	BackendTypeWGPU BackendType = iota

	// BackendTypeHeadless selects the recording backend that allocates ids without a device.
	BackendTypeHeadless
)

// String returns the configuration name of the backend type.
func (t BackendType) String() string {
	switch t {
	case BackendTypeHeadless:
		return "headless"
	default:
		return "wgpu"
	}
}

// ParseBackendType converts a configuration name into a BackendType.
//
// Parameters:
//   - s: "wgpu" or "headless"
//
// Returns:
//   - BackendType: the parsed type
//   - error: an error if the name is unknown
func ParseBackendType(s string) (BackendType, error) {
	switch s {
	case "wgpu", "":
		return BackendTypeWGPU, nil
	case "headless":
		return BackendTypeHeadless, nil
	default:
		return 0, fmt.Errorf("unknown backend type %q", s)
	}
}

// PresentMode controls how rendered frames are presented to the display surface.
type PresentMode int

const (
	// PresentModeVSync waits for the next vertical blank before presenting, capping frame rate
	// to the monitor's refresh rate. Eliminates tearing.
	PresentModeVSync PresentMode = iota

	// PresentModeUncapped presents frames immediately without waiting for vertical blank.
	// May cause screen tearing but provides the lowest latency.
	PresentModeUncapped
)

// MSAASampleCount controls the number of samples used for multisample anti-aliasing (MSAA).
// WebGPU guarantees support for 1 (off) and 4; higher values are adapter-dependent.
type MSAASampleCount uint32

const (
	// MSAAOff disables multisample anti-aliasing (sample count 1).
	MSAAOff MSAASampleCount = 1

	// MSAA4x enables 4x multisample anti-aliasing.
	MSAA4x MSAASampleCount = 4
)

// Backend is the synchronous graphics API boundary. All methods are called from the render thread.
// Texture creation succeeds immediately; effect creation may fail.
type Backend interface {
	// Type returns the implementation kind.
	Type() BackendType

	// Caps returns the limits of the underlying device.
	Caps() Caps

	// RenderWidth returns the width of the default framebuffer in pixels.
	RenderWidth() int

	// RenderHeight returns the height of the default framebuffer in pixels.
	RenderHeight() int

	// IsStencilEnabled reports whether the default framebuffer carries a stencil buffer.
	IsStencilEnabled() bool

	// Resize reconfigures the default framebuffer.
	//
	// Parameters:
	//   - width: the new width in pixels
	//   - height: the new height in pixels
	Resize(width, height int)

	// BeginFrame acquires the next presentable image and starts command recording.
	//
	// Returns:
	//   - error: an error if the frame could not be started
	BeginFrame() error

	// EndFrame submits recorded commands and presents the frame.
	EndFrame()

	// CreateRenderTargetTexture allocates a 2D render target.
	//
	// Parameters:
	//   - desc: the texture to allocate
	//
	// Returns:
	//   - TextureID: the new texture
	//   - error: an error if allocation failed
	CreateRenderTargetTexture(desc TextureDescriptor) (TextureID, error)

	// CreateRenderTargetCubeTexture allocates a six-face cube render target.
	//
	// Parameters:
	//   - desc: the texture to allocate; Width is the face size
	//
	// Returns:
	//   - TextureID: the new texture
	//   - error: an error if allocation failed
	CreateRenderTargetCubeTexture(desc TextureDescriptor) (TextureID, error)

	// ReleaseTexture frees a texture. Unknown ids are ignored.
	ReleaseTexture(id TextureID)

	// UpdateRenderTargetTextureSampleCount changes the MSAA sample count of a render target.
	//
	// Parameters:
	//   - id: the render target
	//   - samples: the requested sample count
	//
	// Returns:
	//   - int: the sample count actually applied
	UpdateRenderTargetTextureSampleCount(id TextureID, samples int) int

	// GenerateMipMapsForCubemap fills the mip chain of a cube render target.
	GenerateMipMapsForCubemap(id TextureID)

	// CreateGeometry uploads interleaved vertices and optional indices.
	//
	// Parameters:
	//   - desc: the geometry to upload
	//
	// Returns:
	//   - GeometryID: the new geometry
	//   - error: an error if buffer creation failed
	CreateGeometry(desc GeometryDescriptor) (GeometryID, error)

	// ReleaseGeometry frees uploaded geometry. Unknown ids are ignored.
	ReleaseGeometry(id GeometryID)

	// CreateEffect builds a shader program from preprocessed sources.
	//
	// Parameters:
	//   - desc: the program to create
	//
	// Returns:
	//   - ProgramID: the new program
	//   - error: an error if the backend rejected the program
	CreateEffect(desc ProgramDescriptor) (ProgramID, error)

	// ReleaseEffect frees a program. Unknown ids are ignored.
	ReleaseEffect(id ProgramID)

	// BindFramebuffer redirects subsequent clears and draws to a render target.
	//
	// Parameters:
	//   - id: the render target to bind
	//   - viewport: an optional viewport restricting rendering; nil covers the whole target
	BindFramebuffer(id TextureID, viewport *Viewport)

	// UnBindFramebuffer finishes rendering to a render target and restores the default framebuffer.
	UnBindFramebuffer(id TextureID)

	// EnableEffect makes a program current for subsequent uniform, texture and draw calls.
	EnableEffect(id ProgramID)

	// BindTexture binds a texture to a named sampler of a program.
	BindTexture(program ProgramID, sampler string, tex TextureID)

	// SetUniform writes a float uniform (scalar or vector) of a program.
	SetUniform(program ProgramID, name string, values ...float32)

	// Clear clears the bound framebuffer.
	//
	// Parameters:
	//   - color: the clear color
	//   - backBuffer: whether to clear color
	//   - depth: whether to clear depth
	//   - stencil: whether to clear stencil
	Clear(color Color, backBuffer, depth, stencil bool)

	// SetAlphaMode selects the blend equation for subsequent draws.
	SetAlphaMode(mode AlphaMode)

	// SetAlphaConstants sets the constant blend color used by AlphaInterpolate.
	SetAlphaConstants(c Color)

	// SetAlphaTesting toggles alpha-tested (discard) rendering.
	SetAlphaTesting(enabled bool)

	// SetState sets rasterizer state for subsequent draws.
	SetState(culling bool)

	// SetDepthBuffer toggles depth testing.
	SetDepthBuffer(enabled bool)

	// SetDepthWrite toggles depth writes.
	SetDepthWrite(enabled bool)

	// Draw submits a draw call against the bound framebuffer.
	Draw(call DrawCall)

	// Release frees every resource the backend still owns.
	Release()
}

// NewBackend creates a backend of the given type.
// A WGPU backend requires WithSurfaceDescriptor; a headless backend ignores surface options.
//
// Parameters:
//   - t: the backend type
//   - options: variadic BackendBuilderOption functions
//
// Returns:
//   - Backend: the created backend
//   - error: an error if the backend could not be initialized
func NewBackend(t BackendType, options ...BackendBuilderOption) (Backend, error) {
	cfg := &backendConfig{
		width:       1,
		height:      1,
		sampleCount: MSAAOff,
		presentMode: PresentModeVSync,
	}
	for _, opt := range options {
		opt(cfg)
	}

	switch t {
	case BackendTypeHeadless:
		return newHeadless(cfg), nil
	case BackendTypeWGPU:
		return newWGPUBackend(cfg)
	default:
		return nil, fmt.Errorf("unsupported backend type %d", t)
	}
}
