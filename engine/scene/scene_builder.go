package scene

import (
	"github.com/Carmen-Shannon/prism/engine/backend"
	"github.com/Carmen-Shannon/prism/engine/camera"
	"github.com/Carmen-Shannon/prism/engine/light"
	"github.com/Carmen-Shannon/prism/engine/mesh"
	"github.com/Carmen-Shannon/prism/engine/perf"
	"github.com/Carmen-Shannon/prism/engine/resource"
)

// SceneBuilderOption is a functional option for configuring a Scene.
// Use the With* functions to create options.
type SceneBuilderOption func(s *scene)

// WithActive sets whether the scene is active for rendering.
//
// Parameters:
//   - active: whether the scene is active
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithActive(active bool) SceneBuilderOption {
	return func(s *scene) {
		s.active = active
	}
}

// WithCameras adds initial cameras to the scene, rendered in the given order.
//
// Parameters:
//   - cameras: the cameras to add
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithCameras(cameras ...camera.Camera) SceneBuilderOption {
	return func(s *scene) {
		s.cameras = append(s.cameras, cameras...)
	}
}

// WithLights adds initial lights to the scene.
//
// Parameters:
//   - lights: the lights to add
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithLights(lights ...light.Light) SceneBuilderOption {
	return func(s *scene) {
		s.lights = append(s.lights, lights...)
	}
}

// WithMeshes adds initial meshes to the scene. Their geometry is uploaded once the scene is
// built; meshes that fail to upload are logged and left out.
//
// Parameters:
//   - meshes: the meshes to add
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithMeshes(meshes ...mesh.Mesh) SceneBuilderOption {
	return func(s *scene) {
		s.pendingMeshes = append(s.pendingMeshes, meshes...)
	}
}

// WithClearColor sets the color the scene clears to.
//
// Parameters:
//   - c: the clear color
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithClearColor(c backend.Color) SceneBuilderOption {
	return func(s *scene) {
		s.clearColor = c
	}
}

// WithAutoClear sets whether the color buffer is cleared before rendering. Depth and stencil are
// always cleared.
//
// Parameters:
//   - auto: true to clear the color buffer (default)
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithAutoClear(auto bool) SceneBuilderOption {
	return func(s *scene) {
		s.autoClear = auto
	}
}

// WithTransparentSort selects the ordering of the transparent bucket.
// By default lower alpha indices render first.
//
// Parameters:
//   - mode: the sort mode
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithTransparentSort(mode SortMode) SceneBuilderOption {
	return func(s *scene) {
		s.transparentSort = mode
	}
}

// WithCullingDisabled disables frustum culling for the scene. When set to true every enabled,
// visible mesh is drawn regardless of the camera frustum.
// By default culling is enabled (disabled = false).
//
// Parameters:
//   - disabled: true to disable frustum culling, false to enable it (default)
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithCullingDisabled(disabled bool) SceneBuilderOption {
	return func(s *scene) {
		s.cullingDisabled = disabled
	}
}

// WithRenderTarget renders the scene into a render target instead of the screen.
//
// Parameters:
//   - h: the render target
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithRenderTarget(h resource.Handle) SceneBuilderOption {
	return func(s *scene) {
		s.target = h
	}
}

// WithClock sets the time source of the scene's performance counters.
//
// Parameters:
//   - clock: the time source
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithClock(clock perf.Clock) SceneBuilderOption {
	return func(s *scene) {
		s.clock = clock
	}
}
