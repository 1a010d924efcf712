package postprocess

import (
	"github.com/Carmen-Shannon/prism/engine/backend"
	"github.com/Carmen-Shannon/prism/engine/camera"
	"github.com/Carmen-Shannon/prism/engine/material"
	"github.com/Carmen-Shannon/prism/engine/mesh"
	"github.com/Carmen-Shannon/prism/engine/resource"
)

// Buckets are the sub-meshes a camera draws this frame, transparent ones already sorted.
type Buckets struct {
	Opaque      []*mesh.SubMesh
	AlphaTest   []*mesh.SubMesh
	Transparent []*mesh.SubMesh
}

// SceneTarget is implemented by passes that draw the scene into a texture of their own before
// the camera renders, like the occlusion map of the light scattering pass.
type SceneTarget interface {
	// RenderScene draws buckets into the pass's own target.
	//
	// Parameters:
	//   - renderID: the scene's current render id
	//   - buckets: the camera's render lists
	//   - ctx: the camera bind context; World is set per draw
	//
	// Returns:
	//   - int: the number of draws submitted
	RenderScene(renderID int, buckets Buckets, ctx material.BindContext) int
}

// Manager drives the pass chain attached to a camera for one scene.
type Manager interface {
	// PrepareFrame activates the first pass so the scene renders into its texture.
	//
	// Parameters:
	//   - cam: the camera whose chain runs
	//   - source: the render target whose size drives the first pass; zero uses the canvas
	//
	// Returns:
	//   - bool: true if the scene must render into the first pass
	PrepareFrame(cam camera.Camera, source resource.Handle) bool

	// FinalizeFrame runs the chain. Each pass activates the next one (or binds target, or the
	// screen for the last pass), applies its effect and draws a full-screen quad.
	//
	// Parameters:
	//   - cam: the camera whose chain runs
	//   - target: the final render target; zero renders to the screen
	FinalizeFrame(cam camera.Camera, target resource.Handle)

	// RenderSceneTargets lets every pass of the chain implementing SceneTarget draw the scene
	// into its own texture. It runs before PrepareFrame binds the first pass.
	//
	// Parameters:
	//   - cam: the camera whose chain runs
	//   - renderID: the scene's current render id
	//   - buckets: the camera's render lists
	//   - ctx: the camera bind context
	//
	// Returns:
	//   - int: the number of draws submitted
	RenderSceneTargets(cam camera.Camera, renderID int, buckets Buckets, ctx material.BindContext) int

	// Enabled reports whether chains run.
	Enabled() bool

	// SetEnabled turns chain execution on or off.
	SetEnabled(enabled bool)
}

type manager struct {
	host    Host
	enabled bool
}

var _ Manager = &manager{}

// NewManager creates a chain driver over host.
//
// Parameters:
//   - host: the engine services
//
// Returns:
//   - Manager: the manager, enabled
func NewManager(host Host) Manager {
	if host == nil {
		panic("postprocess: NewManager requires a non-nil host")
	}
	return &manager{host: host, enabled: true}
}

func (m *manager) Enabled() bool { return m.enabled }

func (m *manager) SetEnabled(enabled bool) { m.enabled = enabled }

// chain returns the camera passes that belong to this package.
func chain(cam camera.Camera) []PostProcess {
	if cam == nil {
		return nil
	}
	var out []PostProcess
	for _, pp := range cam.PostProcesses() {
		if p, ok := pp.(PostProcess); ok {
			out = append(out, p)
		}
	}
	return out
}

func (m *manager) RenderSceneTargets(cam camera.Camera, renderID int, buckets Buckets, ctx material.BindContext) int {
	if !m.enabled {
		return 0
	}
	count := 0
	for _, p := range chain(cam) {
		if t, ok := p.(SceneTarget); ok {
			count += t.RenderScene(renderID, buckets, ctx)
		}
	}
	return count
}

func (m *manager) PrepareFrame(cam camera.Camera, source resource.Handle) bool {
	passes := chain(cam)
	if !m.enabled || len(passes) == 0 {
		return false
	}
	passes[0].Activate(cam, source)
	return true
}

func (m *manager) FinalizeFrame(cam camera.Camera, target resource.Handle) {
	passes := chain(cam)
	if !m.enabled || len(passes) == 0 {
		return
	}
	b := m.host.Backend()

	for i, p := range passes {
		if i < len(passes)-1 {
			passes[i+1].Activate(cam, p.OutputTexture())
		} else if !target.IsZero() {
			b.BindFramebuffer(m.host.Textures().BackendID(target), nil)
		} else {
			b.UnBindFramebuffer(0)
		}

		if !p.Apply() {
			continue
		}
		e := p.Effect()
		p.OnBeforeRender().Notify(e)
		b.Draw(backend.FullScreenQuad(e.Program()))
		p.OnAfterRender().Notify(e)
	}

	b.SetDepthBuffer(true)
	b.SetDepthWrite(true)
	b.SetAlphaMode(backend.AlphaDisable)
}
