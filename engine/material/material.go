// Package material binds surface parameters to effects and decides, once per frame, whether a
// mesh using the material can be drawn.
package material

import (
	"log"
	"maps"
	"slices"
	"strings"

	"github.com/Carmen-Shannon/prism/common"
	"github.com/Carmen-Shannon/prism/engine/backend"
	"github.com/Carmen-Shannon/prism/engine/effect"
	"github.com/Carmen-Shannon/prism/engine/light"
	"github.com/Carmen-Shannon/prism/engine/resource"
	"github.com/Carmen-Shannon/prism/engine/texture"
	"github.com/go-gl/mathgl/mgl32"
)

// Host supplies the engine services a material allocates through.
type Host interface {
	Backend() backend.Backend
	Textures() texture.Manager
	Effects() effect.Cache
}

// Renderable is the part of a mesh a material inspects to pick its defines.
type Renderable interface {
	// Attributes returns the vertex attribute names the mesh provides.
	Attributes() []string
}

// BindContext carries the per-draw values a material uploads.
type BindContext struct {
	World          mgl32.Mat4
	ViewProjection mgl32.Mat4
	CameraPosition mgl32.Vec3
	Lights         []light.GPULight
}

// Material is a drawable surface description.
type Material interface {
	// Name retrieves the material identifier.
	//
	// Returns:
	//   - string: the name of the material
	Name() string

	// Alpha returns the material opacity.
	Alpha() float32

	// SetAlpha changes the material opacity. Values below one move the material to the
	// transparent bucket.
	SetAlpha(alpha float32)

	// NeedAlphaBlending reports whether meshes using the material render in the transparent bucket.
	NeedAlphaBlending() bool

	// NeedAlphaTesting reports whether meshes using the material render in the alpha-test bucket.
	NeedAlphaTesting() bool

	// IsReady reports whether mesh can be drawn with this material and selects the effect Bind
	// uses. The answer is cached per vertex layout for renderID unless CheckReadyOnEveryCall is
	// set; a frozen material that was ready once for a layout stays ready for it.
	//
	// Parameters:
	//   - mesh: the mesh to draw
	//   - renderID: the current scene render id
	//
	// Returns:
	//   - bool: true if the effect is compiled for the mesh's defines
	IsReady(mesh Renderable, renderID int) bool

	// Bind enables the effect and uploads the material parameters.
	//
	// Parameters:
	//   - ctx: the per-draw values
	Bind(ctx BindContext)

	// Effect returns the effect selected by the last successful IsReady, or nil before it.
	Effect() *effect.Effect

	// Freeze stops readiness re-evaluation once the material has been ready.
	Freeze()

	// Unfreeze resumes readiness re-evaluation.
	Unfreeze()

	// IsFrozen reports whether the material is frozen.
	IsFrozen() bool

	// CheckReadyOnEveryCall reports whether the render id cache is bypassed.
	CheckReadyOnEveryCall() bool

	// SetCheckReadyOnEveryCall toggles bypassing the render id cache.
	SetCheckReadyOnEveryCall(check bool)

	// Dispose releases the effect and every retained texture.
	Dispose()

	// Serialize returns the persisted material fields.
	Serialize() common.Document
}

// ShaderMaterial draws with named shader sources and a user-supplied parameter set.
type ShaderMaterial struct {
	host Host
	name string

	vertex   string
	fragment string
	uniforms []string
	samplers []string
	defines  []string

	alpha           float32
	alphaTest       bool
	alphaCutoff     float32
	backFaceCulling bool

	floats   map[string]float32
	vectors  map[string][]float32
	matrices map[string]mgl32.Mat4
	textures map[string]resource.Handle

	// variants holds one effect per defines string; layouts stamps each vertex layout with the
	// variant it was last found ready with.
	variants map[string]*variant
	layouts  map[string]*layoutStamp
	current  *variant

	frozen         bool
	checkEveryCall bool
	evaluations    int
}

type variant struct {
	defines string
	effect  *effect.Effect
	users   int
}

type layoutStamp struct {
	renderID int
	variant  *variant
}

var _ Material = &ShaderMaterial{}

// NewShaderMaterial creates a material drawing vertex and fragment from the host's shader store.
//
// Parameters:
//   - host: the engine services
//   - name: the material name
//   - vertex: the vertex source name
//   - fragment: the fragment source name
//   - options: variadic MaterialBuilderOption functions
//
// Returns:
//   - *ShaderMaterial: the material
func NewShaderMaterial(host Host, name, vertex, fragment string, options ...MaterialBuilderOption) *ShaderMaterial {
	if host == nil {
		panic("material: NewShaderMaterial requires a non-nil host")
	}
	m := &ShaderMaterial{
		host:            host,
		name:            name,
		vertex:          vertex,
		fragment:        fragment,
		uniforms:        []string{"world", "viewProjection"},
		alpha:           1,
		alphaCutoff:     0.4,
		backFaceCulling: true,
		floats:          make(map[string]float32),
		vectors:         make(map[string][]float32),
		matrices:        make(map[string]mgl32.Mat4),
		textures:        make(map[string]resource.Handle),
		variants:        make(map[string]*variant),
		layouts:         make(map[string]*layoutStamp),
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

func (m *ShaderMaterial) Name() string { return m.name }

func (m *ShaderMaterial) Alpha() float32 { return m.alpha }

func (m *ShaderMaterial) SetAlpha(alpha float32) { m.alpha = alpha }

func (m *ShaderMaterial) NeedAlphaBlending() bool { return m.alpha < 1 }

func (m *ShaderMaterial) NeedAlphaTesting() bool { return m.alphaTest }

func (m *ShaderMaterial) BackFaceCulling() bool { return m.backFaceCulling }

func (m *ShaderMaterial) Effect() *effect.Effect {
	if m.current == nil {
		return nil
	}
	return m.current.effect
}

func (m *ShaderMaterial) Freeze() { m.frozen = true }

func (m *ShaderMaterial) Unfreeze() { m.frozen = false }

func (m *ShaderMaterial) IsFrozen() bool { return m.frozen }

func (m *ShaderMaterial) CheckReadyOnEveryCall() bool { return m.checkEveryCall }

func (m *ShaderMaterial) SetCheckReadyOnEveryCall(check bool) { m.checkEveryCall = check }

// Evaluations returns how many times readiness was fully evaluated rather than served from cache.
func (m *ShaderMaterial) Evaluations() int { return m.evaluations }

// Defines returns the defines string of the effect selected by the last successful IsReady.
func (m *ShaderMaterial) Defines() string {
	if m.current == nil {
		return ""
	}
	return m.current.defines
}

// SetFloat sets a scalar parameter, declaring the uniform if needed.
func (m *ShaderMaterial) SetFloat(name string, v float32) *ShaderMaterial {
	m.declareUniform(name)
	m.floats[name] = v
	return m
}

// SetVector3 sets a vec3 parameter, declaring the uniform if needed.
func (m *ShaderMaterial) SetVector3(name string, v mgl32.Vec3) *ShaderMaterial {
	m.declareUniform(name)
	m.vectors[name] = []float32{v[0], v[1], v[2]}
	return m
}

// SetColor4 sets an RGBA parameter, declaring the uniform if needed.
func (m *ShaderMaterial) SetColor4(name string, c [4]float32) *ShaderMaterial {
	m.declareUniform(name)
	m.vectors[name] = []float32{c[0], c[1], c[2], c[3]}
	return m
}

// SetMatrix sets a mat4 parameter, declaring the uniform if needed.
func (m *ShaderMaterial) SetMatrix(name string, v mgl32.Mat4) *ShaderMaterial {
	m.declareUniform(name)
	m.matrices[name] = v
	return m
}

// SetTexture binds a render target to a sampler. The material takes a reference on h and drops
// the reference of the texture it replaces.
//
// Parameters:
//   - name: the sampler name
//   - h: the render target
//
// Returns:
//   - *ShaderMaterial: the material for chaining
func (m *ShaderMaterial) SetTexture(name string, h resource.Handle) *ShaderMaterial {
	if err := m.host.Textures().Retain(h); err != nil {
		log.Printf("[Material] %s: cannot use texture %s for %s: %v", m.name, h, name, err)
		return m
	}
	if prev, ok := m.textures[name]; ok {
		m.releaseTexture(prev)
	}
	if !slices.Contains(m.samplers, name) {
		m.samplers = append(m.samplers, name)
	}
	m.textures[name] = h
	return m
}

// SetDefine adds or removes a feature define. The effect is re-requested on the next IsReady.
func (m *ShaderMaterial) SetDefine(name string, enabled bool) *ShaderMaterial {
	i := slices.Index(m.defines, name)
	switch {
	case enabled && i < 0:
		m.defines = append(m.defines, name)
	case !enabled && i >= 0:
		m.defines = slices.Delete(m.defines, i, i+1)
	}
	return m
}

func (m *ShaderMaterial) declareUniform(name string) {
	if !slices.Contains(m.uniforms, name) {
		m.uniforms = append(m.uniforms, name)
	}
}

// prepare returns the defines, attributes and index parameters mesh requires.
func (m *ShaderMaterial) prepare(mesh Renderable) (string, []string, map[string]int) {
	names := slices.Clone(m.defines)
	attrs := []string{"position", "normal"}
	var meshAttrs []string
	if mesh != nil {
		meshAttrs = mesh.Attributes()
	}
	if slices.Contains(meshAttrs, "uv") {
		names = append(names, "UV")
		attrs = append(attrs, "uv")
	}
	params := map[string]int{}
	if slices.Contains(meshAttrs, "color") {
		names = append(names, "VERTEXCOLOR")
		params["colorLocation"] = len(attrs)
		attrs = append(attrs, "color")
	}
	if m.alphaTest {
		names = append(names, "ALPHATEST")
	}
	if _, ok := m.textures["diffuseSampler"]; ok {
		names = append(names, "DIFFUSE")
	}
	return effect.JoinDefines(names...), attrs, params
}

func (m *ShaderMaterial) IsReady(mesh Renderable, renderID int) bool {
	layout := layoutKey(mesh)
	stamp := m.layouts[layout]
	if stamp != nil && (m.frozen || (!m.checkEveryCall && stamp.renderID == renderID)) {
		m.current = stamp.variant
		return true
	}
	m.evaluations++

	defines, attrs, params := m.prepare(mesh)
	v := m.variants[defines]
	if v == nil {
		v = &variant{defines: defines}
		m.variants[defines] = v
	}
	if v.effect == nil || v.effect.IsStale() {
		m.request(v, attrs, params)
	}
	if !v.effect.IsReady() {
		return false
	}

	if stamp == nil {
		stamp = &layoutStamp{}
		m.layouts[layout] = stamp
	}
	if stamp.variant != v {
		if prev := stamp.variant; prev != nil {
			prev.users--
			if prev.users == 0 {
				m.dropVariant(prev)
			}
		}
		v.users++
		stamp.variant = v
	}
	stamp.renderID = renderID
	m.current = v
	return true
}

// layoutKey identifies the vertex layout of mesh, the only mesh input to the defines.
func layoutKey(mesh Renderable) string {
	if mesh == nil {
		return ""
	}
	return strings.Join(mesh.Attributes(), ",")
}

func (m *ShaderMaterial) request(v *variant, attrs []string, params map[string]int) {
	name := m.name
	next := m.host.Effects().GetOrCreate(effect.Options{
		Vertex:          m.vertex,
		Fragment:        m.fragment,
		Attributes:      attrs,
		Uniforms:        slices.Clone(m.uniforms),
		Samplers:        slices.Clone(m.samplers),
		Defines:         v.defines,
		IndexParameters: params,
		OnError: func(_ *effect.Effect, err error) {
			log.Printf("[Material] %s: effect unavailable: %v", name, err)
		},
	})
	if v.effect != nil {
		m.host.Effects().Release(v.effect)
	}
	v.effect = next
}

// dropVariant releases a variant no layout uses any more.
func (m *ShaderMaterial) dropVariant(v *variant) {
	if v.effect != nil {
		m.host.Effects().Release(v.effect)
		v.effect = nil
	}
	delete(m.variants, v.defines)
	if m.current == v {
		m.current = nil
	}
}

func (m *ShaderMaterial) Bind(ctx BindContext) {
	e := m.Effect()
	if e == nil || !e.IsReady() {
		return
	}
	b := m.host.Backend()
	prog := e.Program()

	b.EnableEffect(prog)
	b.SetState(m.backFaceCulling)
	b.SetUniform(prog, "world", ctx.World[:]...)
	b.SetUniform(prog, "viewProjection", ctx.ViewProjection[:]...)
	if slices.Contains(m.uniforms, "cameraPosition") {
		b.SetUniform(prog, "cameraPosition", ctx.CameraPosition[0], ctx.CameraPosition[1], ctx.CameraPosition[2], 1)
	}
	if slices.Contains(m.uniforms, "mainLight") && len(ctx.Lights) > 0 {
		b.SetUniform(prog, "mainLight", ctx.Lights[0].Floats()...)
	}

	for _, name := range slices.Sorted(maps.Keys(m.floats)) {
		b.SetUniform(prog, name, m.floats[name])
	}
	for _, name := range slices.Sorted(maps.Keys(m.vectors)) {
		b.SetUniform(prog, name, m.vectors[name]...)
	}
	for _, name := range slices.Sorted(maps.Keys(m.matrices)) {
		mat := m.matrices[name]
		b.SetUniform(prog, name, mat[:]...)
	}
	for _, name := range slices.Sorted(maps.Keys(m.textures)) {
		b.BindTexture(prog, name, m.host.Textures().BackendID(m.textures[name]))
	}
}

func (m *ShaderMaterial) releaseTexture(h resource.Handle) {
	if _, err := m.host.Textures().Release(h); err != nil {
		log.Printf("[Material] %s: failed to release texture %s: %v", m.name, h, err)
	}
}

func (m *ShaderMaterial) Dispose() {
	for _, v := range m.variants {
		if v.effect != nil {
			m.host.Effects().Release(v.effect)
		}
	}
	clear(m.variants)
	clear(m.layouts)
	m.current = nil
	for name, h := range m.textures {
		m.releaseTexture(h)
		delete(m.textures, name)
	}
}

func (m *ShaderMaterial) Serialize() common.Document {
	floats := make(common.Document, len(m.floats))
	for k, v := range m.floats {
		floats[k] = float64(v)
	}
	vectors := make(common.Document, len(m.vectors))
	for k, v := range m.vectors {
		out := make([]float64, len(v))
		for i, f := range v {
			out[i] = float64(f)
		}
		vectors[k] = out
	}
	return common.Document{
		"name":            m.name,
		"vertex":          m.vertex,
		"fragment":        m.fragment,
		"alpha":           float64(m.alpha),
		"alphaTest":       m.alphaTest,
		"alphaCutoff":     float64(m.alphaCutoff),
		"backFaceCulling": m.backFaceCulling,
		"defines":         append([]string{}, m.defines...),
		"uniforms":        append([]string{}, m.uniforms...),
		"floats":          floats,
		"vectors":         vectors,
	}
}

// ParseShaderMaterial restores a material from a document produced by Serialize. Textures and
// matrices are runtime state and are not restored.
//
// Parameters:
//   - host: the engine services
//   - doc: the serialized material
//
// Returns:
//   - *ShaderMaterial: the restored material
func ParseShaderMaterial(host Host, doc common.Document) *ShaderMaterial {
	m := NewShaderMaterial(host,
		doc.StringOr("name", ""),
		doc.StringOr("vertex", StandardVertex),
		doc.StringOr("fragment", StandardFragment),
		WithAlpha(float32(doc.FloatOr("alpha", 1))),
		WithAlphaTest(doc.BoolOr("alphaTest", false), float32(doc.FloatOr("alphaCutoff", 0.4))),
		WithBackFaceCulling(doc.BoolOr("backFaceCulling", true)),
	)
	if uniforms, err := doc.Strings("uniforms"); err == nil {
		for _, u := range uniforms {
			m.declareUniform(u)
		}
	}
	if defines, err := doc.Strings("defines"); err == nil {
		for _, d := range defines {
			m.SetDefine(d, true)
		}
	}
	floats := doc.Sub("floats")
	for _, k := range slices.Sorted(maps.Keys(floats)) {
		m.SetFloat(k, float32(floats.FloatOr(k, 0)))
	}
	vectors := doc.Sub("vectors")
	for _, k := range slices.Sorted(maps.Keys(vectors)) {
		v, err := vectors.Floats(k)
		if err != nil {
			continue
		}
		m.declareUniform(k)
		m.vectors[k] = v
	}
	return m
}
