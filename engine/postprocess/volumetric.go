package postprocess

import (
	"log"

	"github.com/Carmen-Shannon/prism/engine/backend"
	"github.com/Carmen-Shannon/prism/engine/camera"
	"github.com/Carmen-Shannon/prism/engine/effect"
	"github.com/Carmen-Shannon/prism/engine/material"
	"github.com/Carmen-Shannon/prism/engine/mesh"
	"github.com/Carmen-Shannon/prism/engine/resource"
	"github.com/Carmen-Shannon/prism/engine/texture"
	"github.com/go-gl/mathgl/mgl32"
)

// Sources used by the light scattering pass.
const (
	VolumetricLightScatteringFragment = "volumetricLightScattering.fragment"
	OcclusionVertex                   = "occlusion.vertex"
	OcclusionFragment                 = "occlusion.fragment"
)

// DefaultScatteringSamples is the number of taps marched towards the light.
const DefaultScatteringSamples = 100

const lightScatteringSampler = "lightScatteringSampler"

// VolumetricLightScatteringPostProcess adds light shafts radiating from a source mesh. Every frame
// it renders the camera's buckets into an occlusion map where the source keeps its own material
// and every other mesh is black, then marches from each pixel towards the source's screen
// position accumulating the map.
type VolumetricLightScatteringPostProcess struct {
	PostProcess

	Exposure float32
	Decay    float32
	Weight   float32
	Density  float32

	// Invert flips the projected source position into texture space, where y grows downwards.
	Invert bool

	host      Host
	source    mesh.Mesh
	ratio     float32
	occluder  *effect.Effect
	occlusion resource.Handle
	occW      int
	occH      int
	excluded  map[mesh.Mesh]struct{}
	custom    *mgl32.Vec3
	viewProj  mgl32.Mat4
	screen    mgl32.Vec2
}

var _ PostProcess = &VolumetricLightScatteringPostProcess{}
var _ SceneTarget = &VolumetricLightScatteringPostProcess{}

// NewVolumetricLightScatteringPostProcess creates a light scattering pass. The source mesh must
// be part of the scene so it lands in the camera's buckets; it is drawn with its own material in
// the occlusion map, so a bright unlit material gives the strongest shafts.
//
// Parameters:
//   - host: the engine services
//   - name: the pass name
//   - ratio: the render ratio of both the pass and its occlusion map
//   - cam: the camera to attach to; may be nil
//   - source: the mesh the shafts radiate from
//   - samples: the taps per pixel; values below 1 use DefaultScatteringSamples
//
// Returns:
//   - *VolumetricLightScatteringPostProcess: the pass
//   - error: an error if the pass could not be created
func NewVolumetricLightScatteringPostProcess(host Host, name string, ratio float32, cam camera.Camera, source mesh.Mesh, samples int) (*VolumetricLightScatteringPostProcess, error) {
	if source == nil {
		panic("postprocess: light scattering requires a non-nil source mesh")
	}
	if samples < 1 {
		samples = DefaultScatteringSamples
	}
	pp, err := New(host, Options{
		Name:            name,
		Fragment:        VolumetricLightScatteringFragment,
		Uniforms:        []string{"decay", "exposure", "weight", "density", "meshPositionOnScreen"},
		Samplers:        []string{lightScatteringSampler},
		IndexParameters: map[string]int{"samples": samples},
		RenderRatio:     ratio,
	}, nil)
	if err != nil {
		return nil, err
	}
	v := &VolumetricLightScatteringPostProcess{
		PostProcess: pp,
		Exposure:    0.3,
		Decay:       0.96815,
		Weight:      0.58767,
		Density:     0.926,
		Invert:      true,
		host:        host,
		source:      source,
		ratio:       pp.Options().RenderRatio,
		excluded:    make(map[mesh.Mesh]struct{}),
		screen:      mgl32.Vec2{0.5, 0.5},
	}
	pp.(*postProcess).self = v
	v.requestOccluder()

	pp.OnApply().Add(func(e *effect.Effect) {
		v.updateScreenPosition()
		b := host.Backend()
		prog := e.Program()
		b.BindTexture(prog, lightScatteringSampler, host.Textures().BackendID(v.occlusion))
		b.SetUniform(prog, "exposure", v.Exposure)
		b.SetUniform(prog, "decay", v.Decay)
		b.SetUniform(prog, "weight", v.Weight)
		b.SetUniform(prog, "density", v.Density)
		b.SetUniform(prog, "meshPositionOnScreen", v.screen.X(), v.screen.Y())
	})

	if cam != nil {
		cam.AttachPostProcess(v, -1)
	}
	return v, nil
}

func (v *VolumetricLightScatteringPostProcess) requestOccluder() {
	name := v.Name()
	next := v.host.Effects().GetOrCreate(effect.Options{
		Vertex:     OcclusionVertex,
		Fragment:   OcclusionFragment,
		Attributes: []string{"position"},
		Uniforms:   []string{"world", "viewProjection"},
		OnError: func(_ *effect.Effect, err error) {
			log.Printf("[PostProcess] %s: occlusion effect unavailable: %v", name, err)
		},
	})
	if v.occluder != nil {
		v.host.Effects().Release(v.occluder)
	}
	v.occluder = next
}

// Source returns the mesh the shafts radiate from.
func (v *VolumetricLightScatteringPostProcess) Source() mesh.Mesh { return v.source }

// OcclusionTexture returns the occlusion map, zero until the first RenderScene.
func (v *VolumetricLightScatteringPostProcess) OcclusionTexture() resource.Handle { return v.occlusion }

// ScreenPosition returns the source position in texture space computed by the last Apply.
func (v *VolumetricLightScatteringPostProcess) ScreenPosition() mgl32.Vec2 { return v.screen }

// SetCustomPosition makes the shafts radiate from a fixed world position instead of the source
// mesh. The source is still drawn into the occlusion map.
//
// Parameters:
//   - p: the world position
func (v *VolumetricLightScatteringPostProcess) SetCustomPosition(p mgl32.Vec3) { v.custom = &p }

// ClearCustomPosition goes back to following the source mesh.
func (v *VolumetricLightScatteringPostProcess) ClearCustomPosition() { v.custom = nil }

// Exclude keeps m out of the occlusion map, so it neither blocks nor emits light.
//
// Parameters:
//   - m: the mesh to exclude
func (v *VolumetricLightScatteringPostProcess) Exclude(m mesh.Mesh) { v.excluded[m] = struct{}{} }

// Include reverts Exclude.
//
// Parameters:
//   - m: the mesh to include again
func (v *VolumetricLightScatteringPostProcess) Include(m mesh.Mesh) { delete(v.excluded, m) }

// RenderScene draws the occlusion map. Nothing is drawn until the occlusion effect compiled.
func (v *VolumetricLightScatteringPostProcess) RenderScene(renderID int, buckets Buckets, ctx material.BindContext) int {
	v.viewProj = ctx.ViewProjection
	if v.occluder != nil && v.occluder.IsStale() {
		v.requestOccluder()
	}
	if v.occluder == nil || !v.occluder.IsReady() {
		return 0
	}
	if err := v.ensureOcclusion(); err != nil {
		log.Printf("[PostProcess] %s: %v", v.Name(), err)
		return 0
	}

	b := v.host.Backend()
	target := v.host.Textures().BackendID(v.occlusion)
	b.BindFramebuffer(target, nil)
	b.Clear(backend.Color{A: 1}, true, true, true)
	b.SetDepthBuffer(true)
	b.SetDepthWrite(true)

	draws := 0
	for _, sm := range buckets.Opaque {
		draws += v.drawOccluder(sm, renderID, ctx)
	}
	b.SetAlphaTesting(true)
	for _, sm := range buckets.AlphaTest {
		draws += v.drawOccluder(sm, renderID, ctx)
	}
	b.SetAlphaTesting(false)
	if len(buckets.Transparent) > 0 {
		b.SetAlphaMode(backend.AlphaCombine)
		for _, sm := range buckets.Transparent {
			draws += v.drawOccluder(sm, renderID, ctx)
		}
		b.SetAlphaMode(backend.AlphaDisable)
	}
	b.UnBindFramebuffer(target)
	return draws
}

// ensureOcclusion (re)allocates the occlusion map at the render size times the pass ratio.
func (v *VolumetricLightScatteringPostProcess) ensureOcclusion() error {
	b := v.host.Backend()
	textures := v.host.Textures()
	w, _ := texture.SizeFor(int(float32(b.RenderWidth())*v.ratio), false, backend.SamplingBilinear, textures.MaxTextureSize())
	h, _ := texture.SizeFor(int(float32(b.RenderHeight())*v.ratio), false, backend.SamplingBilinear, textures.MaxTextureSize())
	if !v.occlusion.IsZero() && w == v.occW && h == v.occH {
		return nil
	}
	v.releaseOcclusion()
	handle, err := textures.CreateRenderTarget(texture.Size{Width: w, Height: h}, texture.Options{
		Label:               v.Name() + " Occlusion",
		GenerateDepthBuffer: true,
		SamplingMode:        backend.SamplingBilinear,
	})
	if err != nil {
		return err
	}
	v.occlusion, v.occW, v.occH = handle, w, h
	return nil
}

func (v *VolumetricLightScatteringPostProcess) releaseOcclusion() {
	if v.occlusion.IsZero() {
		return
	}
	if _, err := v.host.Textures().Release(v.occlusion); err != nil {
		log.Printf("[PostProcess] %s: failed to release occlusion map: %v", v.Name(), err)
	}
	v.occlusion = resource.Handle{}
}

func (v *VolumetricLightScatteringPostProcess) drawOccluder(sm *mesh.SubMesh, renderID int, ctx material.BindContext) int {
	m := sm.Mesh()
	if _, ok := v.excluded[m]; ok {
		return 0
	}
	mat := sm.Material()
	b := v.host.Backend()
	culling := true
	if c, ok := mat.(interface{ BackFaceCulling() bool }); ok {
		culling = c.BackFaceCulling()
	}

	if m == v.source {
		if mat == nil || !mat.IsReady(m, renderID) {
			return 0
		}
		ctx.World = m.WorldMatrix()
		mat.Bind(ctx)
		b.Draw(sm.DrawCall(mat.Effect().Program()))
		return 1
	}

	prog := v.occluder.Program()
	world := m.WorldMatrix()
	b.EnableEffect(prog)
	b.SetState(culling)
	b.SetUniform(prog, "world", world[:]...)
	b.SetUniform(prog, "viewProjection", ctx.ViewProjection[:]...)
	b.Draw(sm.DrawCall(prog))
	return 1
}

// updateScreenPosition projects the light position with the view-projection of the last
// RenderScene. A position on the camera plane keeps the previous value.
func (v *VolumetricLightScatteringPostProcess) updateScreenPosition() {
	pos := v.source.Position()
	if v.custom != nil {
		pos = *v.custom
	}
	if p, ok := projectToScreen(v.viewProj, pos, v.Invert); ok {
		v.screen = p
	}
}

func projectToScreen(viewProj mgl32.Mat4, pos mgl32.Vec3, invert bool) (mgl32.Vec2, bool) {
	clip := viewProj.Mul4x1(pos.Vec4(1))
	if clip.W() == 0 {
		return mgl32.Vec2{}, false
	}
	x := clip.X()/clip.W()*0.5 + 0.5
	y := clip.Y()/clip.W()*0.5 + 0.5
	if invert {
		y = 1 - y
	}
	return mgl32.Vec2{x, y}, true
}

// Dispose releases the occlusion map and effect, then the pass itself.
func (v *VolumetricLightScatteringPostProcess) Dispose(cam camera.Camera) {
	v.releaseOcclusion()
	if v.occluder != nil {
		v.host.Effects().Release(v.occluder)
		v.occluder = nil
	}
	v.PostProcess.Dispose(cam)
}
