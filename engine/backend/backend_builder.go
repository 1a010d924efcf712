package backend

import "github.com/cogentcore/webgpu/wgpu"

type backendConfig struct {
	width, height        int
	caps                 Caps
	stencil              bool
	sampleCount          MSAASampleCount
	presentMode          PresentMode
	surfaceDescriptor    *wgpu.SurfaceDescriptor
	forceFallbackAdapter bool
	effectFailure        func(desc ProgramDescriptor) error
}

// BackendBuilderOption is a functional option for configuring a Backend.
type BackendBuilderOption func(*backendConfig)

// WithSize sets the initial size of the default framebuffer.
//
// Parameters:
//   - width: the width in pixels
//   - height: the height in pixels
//
// Returns:
//   - BackendBuilderOption: a function that applies the size
func WithSize(width, height int) BackendBuilderOption {
	return func(c *backendConfig) {
		c.width = width
		c.height = height
	}
}

// WithCaps overrides the capabilities reported by the backend. Zero fields keep the device value.
//
// Parameters:
//   - caps: the limits to report
//
// Returns:
//   - BackendBuilderOption: a function that applies the caps
func WithCaps(caps Caps) BackendBuilderOption {
	return func(c *backendConfig) {
		c.caps = caps
	}
}

// WithStencil enables a stencil buffer on the default framebuffer.
func WithStencil(enabled bool) BackendBuilderOption {
	return func(c *backendConfig) {
		c.stencil = enabled
	}
}

// WithMSAA sets the sample count of the default framebuffer.
func WithMSAA(count MSAASampleCount) BackendBuilderOption {
	return func(c *backendConfig) {
		c.sampleCount = count
	}
}

// WithPresentMode sets the surface present mode.
func WithPresentMode(mode PresentMode) BackendBuilderOption {
	return func(c *backendConfig) {
		c.presentMode = mode
	}
}

// WithSurfaceDescriptor sets the platform surface the WGPU backend renders to.
//
// Parameters:
//   - desc: the surface descriptor, typically from the window
//
// Returns:
//   - BackendBuilderOption: a function that applies the surface
func WithSurfaceDescriptor(desc *wgpu.SurfaceDescriptor) BackendBuilderOption {
	return func(c *backendConfig) {
		c.surfaceDescriptor = desc
	}
}

// WithForceFallbackAdapter requests the software adapter from the WGPU instance.
func WithForceFallbackAdapter(force bool) BackendBuilderOption {
	return func(c *backendConfig) {
		c.forceFallbackAdapter = force
	}
}

// WithEffectFailure installs a hook consulted by the headless backend on every CreateEffect.
// A non-nil return fails the creation.
//
// Parameters:
//   - fn: the failure hook
//
// Returns:
//   - BackendBuilderOption: a function that applies the hook
func WithEffectFailure(fn func(desc ProgramDescriptor) error) BackendBuilderOption {
	return func(c *backendConfig) {
		c.effectFailure = fn
	}
}
