// Package scene owns the entities of one rendered world and runs its per-frame render loop.
package scene

import (
	"cmp"
	"log"
	"slices"
	"sync"

	"github.com/Carmen-Shannon/prism/common"
	"github.com/Carmen-Shannon/prism/engine/backend"
	"github.com/Carmen-Shannon/prism/engine/camera"
	"github.com/Carmen-Shannon/prism/engine/effect"
	"github.com/Carmen-Shannon/prism/engine/light"
	"github.com/Carmen-Shannon/prism/engine/material"
	"github.com/Carmen-Shannon/prism/engine/mesh"
	"github.com/Carmen-Shannon/prism/engine/perf"
	"github.com/Carmen-Shannon/prism/engine/postprocess"
	"github.com/Carmen-Shannon/prism/engine/procedural"
	"github.com/Carmen-Shannon/prism/engine/resource"
	"github.com/Carmen-Shannon/prism/engine/texture"
	"github.com/go-gl/mathgl/mgl32"
)

// Host supplies the engine services shared by every scene.
type Host interface {
	Backend() backend.Backend
	Textures() texture.Manager
	Effects() effect.Cache
}

// SortMode selects the ordering of the transparent bucket.
type SortMode int

const (
	// SortAlphaIndexAscending draws lower alpha indices first and, on ties, farther meshes first.
	SortAlphaIndexAscending SortMode = iota

	// SortAlphaIndexDescending is the exact inverse: higher alpha indices first and, on ties,
	// nearer meshes first.
	SortAlphaIndexDescending
)

// String returns the configuration name of the sort mode.
func (m SortMode) String() string {
	if m == SortAlphaIndexDescending {
		return "descending"
	}
	return "ascending"
}

// ParseSortMode converts a configuration name into a SortMode. Unknown names yield ascending.
func ParseSortMode(s string) SortMode {
	if s == "descending" {
		return SortAlphaIndexDescending
	}
	return SortAlphaIndexAscending
}

// Counters groups the performance counters a scene updates every Render.
type Counters struct {
	// FrameTime measures Render in microseconds.
	FrameTime *perf.Counter

	// DrawCalls counts mesh draw submissions.
	DrawCalls *perf.Counter

	// ActiveMeshes counts meshes that passed the enabled, visibility and frustum checks.
	ActiveMeshes *perf.Counter

	// NotReady counts sub-meshes skipped because their material was not ready.
	NotReady *perf.Counter
}

// Scene manages cameras, lights, meshes and procedural textures and renders them through the
// cameras' post-process chains. Membership changes are guarded by a lock so loaders may add
// entities from other goroutines; Render itself runs on the render thread only.
type Scene interface {
	// Name returns the scene's identifier.
	Name() string

	// SetName sets the scene's identifier.
	SetName(name string)

	// Active returns whether this scene is currently active for rendering.
	Active() bool

	// SetActive sets whether this scene is active for rendering.
	SetActive(active bool)

	// RenderID returns the id of the last Render. Values cached by materials and lights are
	// stamped with it.
	RenderID() int

	// Backend returns the backend the scene draws with.
	Backend() backend.Backend

	// Textures returns the render target manager.
	Textures() texture.Manager

	// Effects returns the effect cache.
	Effects() effect.Cache

	// ClearColor returns the color the scene clears to.
	ClearColor() backend.Color

	// SetClearColor sets the color the scene clears to.
	SetClearColor(c backend.Color)

	// AutoClear reports whether the color buffer is cleared before rendering.
	AutoClear() bool

	// SetAutoClear sets whether the color buffer is cleared before rendering.
	SetAutoClear(auto bool)

	// AddCamera appends a camera. Cameras render in insertion order.
	AddCamera(cam camera.Camera)

	// RemoveCamera removes a camera without disposing its post-processes.
	//
	// Returns:
	//   - bool: true if the camera was part of the scene
	RemoveCamera(cam camera.Camera) bool

	// Cameras returns a snapshot of the cameras.
	Cameras() []camera.Camera

	// ActiveCamera returns the first camera, or nil.
	ActiveCamera() camera.Camera

	// AddLight adds a light to the scene.
	AddLight(l light.Light)

	// RemoveLight removes a light from the scene.
	RemoveLight(l light.Light)

	// Lights returns a snapshot of the lights.
	Lights() []light.Light

	// AddMesh uploads the mesh geometry and adds the mesh to the render list.
	//
	// Parameters:
	//   - m: the mesh
	//
	// Returns:
	//   - error: an error if the geometry upload failed
	AddMesh(m mesh.Mesh) error

	// RemoveMesh removes a mesh and frees its geometry. Its material is left to the caller.
	//
	// Returns:
	//   - bool: true if the mesh was part of the scene
	RemoveMesh(m mesh.Mesh) bool

	// Meshes returns a snapshot of the meshes.
	Meshes() []mesh.Mesh

	// AddProceduralTexture registers a texture the scene refreshes before rendering cameras.
	AddProceduralTexture(t *procedural.Texture)

	// ProceduralTextures returns a snapshot of the procedural textures.
	ProceduralTextures() []*procedural.Texture

	// PostProcessManager returns the manager running the cameras' chains.
	PostProcessManager() postprocess.Manager

	// TransparentSort returns the ordering of the transparent bucket.
	TransparentSort() SortMode

	// SetTransparentSort selects the ordering of the transparent bucket.
	SetTransparentSort(mode SortMode)

	// CullingDisabled reports whether frustum culling is skipped.
	CullingDisabled() bool

	// SetCullingDisabled toggles frustum culling.
	SetCullingDisabled(disabled bool)

	// RenderTarget returns the render target the scene presents into; the zero handle is the
	// screen.
	RenderTarget() resource.Handle

	// SetRenderTarget redirects the scene output.
	SetRenderTarget(h resource.Handle)

	// Counters returns the scene's performance counters.
	Counters() Counters

	// IsReady reports whether every enabled mesh can be drawn at the current render id.
	IsReady() bool

	// Render draws one frame of the scene.
	Render()

	// Dispose releases the post-processes of every camera, every mesh, material and procedural
	// texture.
	Dispose()
}

type scene struct {
	mu   sync.RWMutex
	host Host

	name            string
	active          bool
	renderID        int
	clearColor      backend.Color
	autoClear       bool
	transparentSort SortMode
	cullingDisabled bool
	target          resource.Handle

	cameras     []camera.Camera
	lights      []light.Light
	meshes      []mesh.Mesh
	procedurals []*procedural.Texture

	pendingMeshes []mesh.Mesh
	postProcesses postprocess.Manager
	clock         perf.Clock
	counters      Counters

	// Buckets reused across frames.
	opaque      []*mesh.SubMesh
	alphaTest   []*mesh.SubMesh
	transparent []*mesh.SubMesh
	gpuLights   []light.GPULight
}

var _ Scene = &scene{}
var _ postprocess.Host = &scene{}
var _ material.Host = &scene{}
var _ procedural.Host = &scene{}

// NewScene creates a scene drawing through the host's backend. The host is required and NewScene
// panics if it is nil.
//
// Parameters:
//   - name: the name of the scene
//   - host: the engine services (must not be nil)
//   - options: functional options to further configure the scene
//
// Returns:
//   - Scene: the newly created scene
func NewScene(name string, host Host, options ...SceneBuilderOption) Scene {
	if host == nil {
		panic("scene: NewScene requires a non-nil Host")
	}
	s := &scene{
		host:       host,
		name:       name,
		active:     true,
		autoClear:  true,
		clearColor: backend.Color{R: 0.2, G: 0.2, B: 0.3, A: 1},
	}
	for _, option := range options {
		option(s)
	}
	s.counters = Counters{
		FrameTime:    perf.NewCounter(s.clock),
		DrawCalls:    perf.NewCounter(s.clock),
		ActiveMeshes: perf.NewCounter(s.clock),
		NotReady:     perf.NewCounter(s.clock),
	}
	s.postProcesses = postprocess.NewManager(s)

	pending := s.pendingMeshes
	s.pendingMeshes = nil
	for _, m := range pending {
		if err := s.AddMesh(m); err != nil {
			log.Printf("[Scene] %s: %v", name, err)
		}
	}
	return s
}

func (s *scene) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

func (s *scene) SetName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.name = name
}

func (s *scene) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

func (s *scene) SetActive(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = active
}

func (s *scene) RenderID() int { return s.renderID }

func (s *scene) Backend() backend.Backend { return s.host.Backend() }

func (s *scene) Textures() texture.Manager { return s.host.Textures() }

func (s *scene) Effects() effect.Cache { return s.host.Effects() }

func (s *scene) ClearColor() backend.Color { return s.clearColor }

func (s *scene) SetClearColor(c backend.Color) { s.clearColor = c }

func (s *scene) AutoClear() bool { return s.autoClear }

func (s *scene) SetAutoClear(auto bool) { s.autoClear = auto }

func (s *scene) AddCamera(cam camera.Camera) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cameras = append(s.cameras, cam)
}

func (s *scene) RemoveCamera(cam camera.Camera) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.Index(s.cameras, cam)
	if i < 0 {
		return false
	}
	s.cameras = slices.Delete(s.cameras, i, i+1)
	return true
}

func (s *scene) Cameras() []camera.Camera {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.cameras)
}

func (s *scene) ActiveCamera() camera.Camera {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.cameras) == 0 {
		return nil
	}
	return s.cameras[0]
}

func (s *scene) AddLight(l light.Light) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lights = append(s.lights, l)
}

func (s *scene) RemoveLight(l light.Light) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lights = slices.DeleteFunc(s.lights, func(x light.Light) bool { return x == l })
}

func (s *scene) Lights() []light.Light {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.lights)
}

func (s *scene) AddMesh(m mesh.Mesh) error {
	if err := m.Upload(s.host.Backend()); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meshes = append(s.meshes, m)
	return nil
}

func (s *scene) RemoveMesh(m mesh.Mesh) bool {
	s.mu.Lock()
	i := slices.Index(s.meshes, m)
	if i >= 0 {
		s.meshes = slices.Delete(s.meshes, i, i+1)
	}
	s.mu.Unlock()
	if i < 0 {
		return false
	}
	m.Dispose(s.host.Backend())
	return true
}

func (s *scene) Meshes() []mesh.Mesh {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.meshes)
}

func (s *scene) AddProceduralTexture(t *procedural.Texture) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.procedurals = append(s.procedurals, t)
}

func (s *scene) ProceduralTextures() []*procedural.Texture {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.procedurals)
}

func (s *scene) PostProcessManager() postprocess.Manager { return s.postProcesses }

func (s *scene) TransparentSort() SortMode { return s.transparentSort }

func (s *scene) SetTransparentSort(mode SortMode) { s.transparentSort = mode }

func (s *scene) CullingDisabled() bool { return s.cullingDisabled }

func (s *scene) SetCullingDisabled(disabled bool) { s.cullingDisabled = disabled }

func (s *scene) RenderTarget() resource.Handle { return s.target }

func (s *scene) SetRenderTarget(h resource.Handle) { s.target = h }

func (s *scene) Counters() Counters { return s.counters }

func (s *scene) IsReady() bool {
	ready := true
	for _, m := range s.Meshes() {
		if !m.Enabled() {
			continue
		}
		for _, sm := range m.SubMeshes() {
			if mat := sm.Material(); mat == nil || !mat.IsReady(m, s.renderID) {
				ready = false
			}
		}
	}
	return ready
}

func (s *scene) Render() {
	s.mu.RLock()
	cameras := slices.Clone(s.cameras)
	lights := slices.Clone(s.lights)
	meshes := slices.Clone(s.meshes)
	procedurals := slices.Clone(s.procedurals)
	s.mu.RUnlock()

	c := s.counters
	c.FrameTime.BeginMonitoring()
	c.DrawCalls.FetchNewFrame()
	c.ActiveMeshes.FetchNewFrame()
	c.NotReady.FetchNewFrame()

	s.renderID++
	s.host.Effects().Poll()

	for _, t := range procedurals {
		if t.ShouldRender() {
			t.Render()
		}
	}

	var depth light.DepthRange
	if len(cameras) > 0 {
		depth = cameras[0]
	}
	var casters []light.Bounded
	s.gpuLights = s.gpuLights[:0]
	for _, l := range lights {
		if !l.Enabled() {
			continue
		}
		if l.CastsShadows() {
			if casters == nil {
				casters = shadowCasters(meshes)
			}
			l.ComputeShadowTransform(s.renderID, depth, casters)
		}
		s.gpuLights = append(s.gpuLights, light.ToGPULight(l))
	}

	for i, cam := range cameras {
		s.renderCamera(cam, meshes, i == 0)
	}

	c.DrawCalls.AddCount(0, true)
	c.ActiveMeshes.AddCount(0, true)
	c.NotReady.AddCount(0, true)
	c.FrameTime.EndMonitoring(true)
}

func shadowCasters(meshes []mesh.Mesh) []light.Bounded {
	casters := make([]light.Bounded, 0, len(meshes))
	for _, m := range meshes {
		if m.Enabled() && m.CastsShadows() {
			casters = append(casters, m)
		}
	}
	return casters
}

// renderCamera draws the meshes seen by cam, through its post-process chain when it has one.
func (s *scene) renderCamera(cam camera.Camera, meshes []mesh.Mesh, first bool) {
	b := s.host.Backend()
	cam.Update()

	s.evaluate(cam, meshes)
	if len(s.transparent) > 0 {
		s.sortTransparent(cam.Position())
	}
	ctx := material.BindContext{
		ViewProjection: cam.ViewProjectionMatrix(),
		CameraPosition: cam.Position(),
		Lights:         s.gpuLights,
	}

	// passes with their own scene targets draw before the chain binds its first texture
	buckets := postprocess.Buckets{Opaque: s.opaque, AlphaTest: s.alphaTest, Transparent: s.transparent}
	if n := s.postProcesses.RenderSceneTargets(cam, s.renderID, buckets, ctx); n > 0 {
		s.counters.DrawCalls.AddCount(float64(n), false)
	}

	usePostProcess := s.postProcesses.PrepareFrame(cam, resource.Handle{})
	if !usePostProcess {
		if !s.target.IsZero() {
			b.BindFramebuffer(s.host.Textures().BackendID(s.target), nil)
		}
		if first {
			b.Clear(s.clearColor, s.autoClear, true, true)
		}
	}

	for _, sm := range s.opaque {
		s.renderSubMesh(sm, ctx)
	}

	b.SetAlphaTesting(true)
	for _, sm := range s.alphaTest {
		s.renderSubMesh(sm, ctx)
	}
	b.SetAlphaTesting(false)

	if len(s.transparent) > 0 {
		b.SetAlphaMode(backend.AlphaCombine)
		for _, sm := range s.transparent {
			s.renderSubMesh(sm, ctx)
		}
		b.SetAlphaMode(backend.AlphaDisable)
	}

	if usePostProcess {
		s.postProcesses.FinalizeFrame(cam, s.target)
	} else if !s.target.IsZero() {
		b.UnBindFramebuffer(s.host.Textures().BackendID(s.target))
	}
}

// evaluate fills the three buckets with the sub-meshes of the active meshes.
func (s *scene) evaluate(cam camera.Camera, meshes []mesh.Mesh) {
	s.opaque = s.opaque[:0]
	s.alphaTest = s.alphaTest[:0]
	s.transparent = s.transparent[:0]

	frustum := common.ExtractFrustumFromMatrix(cam.ViewProjectionMatrix())
	for _, m := range meshes {
		if !m.Enabled() || !m.Visible() {
			continue
		}
		if !s.cullingDisabled && !frustum.IntersectsBox(m.BoundingBox()) {
			continue
		}
		s.counters.ActiveMeshes.AddCount(1, false)

		for _, sm := range m.SubMeshes() {
			mat := sm.Material()
			switch {
			case mat == nil:
				continue
			case mat.NeedAlphaBlending():
				s.transparent = append(s.transparent, sm)
			case mat.NeedAlphaTesting():
				s.alphaTest = append(s.alphaTest, sm)
			default:
				s.opaque = append(s.opaque, sm)
			}
		}
	}
}

// sortTransparent orders the transparent bucket by alpha index, then by distance to the eye.
func (s *scene) sortTransparent(eye mgl32.Vec3) {
	type keyed struct {
		sm       *mesh.SubMesh
		index    int
		distance float32
	}
	keys := make([]keyed, len(s.transparent))
	for i, sm := range s.transparent {
		keys[i] = keyed{sm: sm, index: sm.Mesh().AlphaIndex(), distance: sm.DistanceTo(eye)}
	}
	sign := 1
	if s.transparentSort == SortAlphaIndexDescending {
		sign = -1
	}
	slices.SortStableFunc(keys, func(a, b keyed) int {
		if c := cmp.Compare(a.index, b.index); c != 0 {
			return sign * c
		}
		return sign * cmp.Compare(b.distance, a.distance)
	})
	for i, k := range keys {
		s.transparent[i] = k.sm
	}
}

func (s *scene) renderSubMesh(sm *mesh.SubMesh, ctx material.BindContext) {
	m := sm.Mesh()
	mat := sm.Material()
	if !mat.IsReady(m, s.renderID) {
		s.counters.NotReady.AddCount(1, false)
		return
	}
	ctx.World = m.WorldMatrix()
	mat.Bind(ctx)
	s.host.Backend().Draw(sm.DrawCall(mat.Effect().Program()))
	s.counters.DrawCalls.AddCount(1, false)
}

func (s *scene) Dispose() {
	s.mu.Lock()
	cameras := s.cameras
	meshes := s.meshes
	procedurals := s.procedurals
	s.cameras, s.meshes, s.procedurals, s.lights = nil, nil, nil, nil
	s.mu.Unlock()

	for _, cam := range cameras {
		for _, pp := range cam.PostProcesses() {
			if p, ok := pp.(postprocess.PostProcess); ok {
				p.Dispose(cam)
			}
		}
	}

	disposed := make(map[material.Material]bool)
	for _, m := range meshes {
		for _, sm := range m.SubMeshes() {
			if mat := sm.Material(); mat != nil && !disposed[mat] {
				mat.Dispose()
				disposed[mat] = true
			}
		}
		m.Dispose(s.host.Backend())
	}
	for _, t := range procedurals {
		t.Dispose()
	}
}
