package engine

import (
	"time"

	"github.com/Carmen-Shannon/prism/engine/effect"
	"github.com/Carmen-Shannon/prism/engine/profiler"
	"github.com/Carmen-Shannon/prism/engine/window"
)

// EngineBuilderOption is a functional option for configuring an Engine.
// Use the With* functions to create options that are applied directly to the engine instance.
type EngineBuilderOption func(*engine)

// WithProfiling enables or disables performance profiling output.
//
// Parameters:
//   - enabled: if true, enables performance profiling
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithProfiling(enabled bool) EngineBuilderOption {
	return func(e *engine) {
		e.profilingEnabled = enabled
	}
}

// WithProfiler replaces the default profiler, e.g. to change its interval or clock.
//
// Parameters:
//   - p: the profiler RenderFrame ticks
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithProfiler(p *profiler.Profiler) EngineBuilderOption {
	return func(e *engine) {
		e.profiler = p
	}
}

// WithTickRate sets the engine tick rate in frames per second.
// Values <= 0 will be treated as the default (60Hz).
//
// Parameters:
//   - fps: target ticks per second (default 60)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithTickRate(fps float64) EngineBuilderOption {
	return func(e *engine) {
		if fps <= 0 {
			fps = 60.0
		}
		e.engineTickRate = time.Duration(float64(time.Second) / fps)
	}
}

// WithWindow sets the window the engine presents to. Its resize events drive Resize and its
// message loop drives Run.
//
// Parameters:
//   - w: an opened Window instance
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithWindow(w window.Window) EngineBuilderOption {
	return func(e *engine) {
		e.window = w
	}
}

// WithRenderFrameLimit sets an optional render frame rate cap in frames per second.
// Pass 0 to uncap the render loop (default).
//
// Parameters:
//   - fps: maximum render frames per second (0 = uncapped)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithRenderFrameLimit(fps float64) EngineBuilderOption {
	return func(e *engine) {
		e.renderFrameLimit = frameDuration(fps)
	}
}

// WithEffectCacheOptions passes options to the effect cache the engine creates.
//
// Parameters:
//   - options: effect cache builder options such as worker count or compiler
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithEffectCacheOptions(options ...effect.CacheBuilderOption) EngineBuilderOption {
	return func(e *engine) {
		e.cacheOptions = append(e.cacheOptions, options...)
	}
}

// WithShaderDir loads every shader source in dir on top of the built-in ones. With hotReload,
// edits to the directory are picked up while the engine runs.
//
// Parameters:
//   - dir: the shader directory
//   - hotReload: whether to watch the directory
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithShaderDir(dir string, hotReload bool) EngineBuilderOption {
	return func(e *engine) {
		e.shaderDir = dir
		e.hotReload = hotReload
	}
}
