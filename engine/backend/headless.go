package backend

import (
	"fmt"
	"sync"
)

// Operation names recorded by the headless backend.
const (
	OpBeginFrame           = "beginFrame"
	OpEndFrame             = "endFrame"
	OpCreateRenderTarget   = "createRenderTargetTexture"
	OpCreateCubeTarget     = "createRenderTargetCubeTexture"
	OpReleaseTexture       = "releaseTexture"
	OpUpdateSampleCount    = "updateRenderTargetTextureSampleCount"
	OpGenerateCubeMipMaps  = "generateMipMapsForCubemap"
	OpCreateGeometry       = "createGeometry"
	OpReleaseGeometry      = "releaseGeometry"
	OpCreateEffect         = "createEffect"
	OpReleaseEffect        = "releaseEffect"
	OpBindFramebuffer      = "bindFramebuffer"
	OpUnBindFramebuffer    = "unBindFramebuffer"
	OpEnableEffect         = "enableEffect"
	OpBindTexture          = "bindTexture"
	OpSetUniform           = "setUniform"
	OpClear                = "clear"
	OpSetAlphaMode         = "setAlphaMode"
	OpSetAlphaConstants    = "setAlphaConstants"
	OpSetAlphaTesting      = "setAlphaTesting"
	OpSetState             = "setState"
	OpSetDepthBuffer       = "setDepthBuffer"
	OpSetDepthWrite        = "setDepthWrite"
	OpDraw                 = "draw"
	OpResize               = "resize"
	defaultHeadlessMaxSize = 16384
)

// Call is one recorded backend invocation. Only the fields relevant to Op are set.
type Call struct {
	Op       string
	Texture  TextureID
	Program  ProgramID
	Geometry GeometryID
	Name     string
	Viewport *Viewport
	Flag     bool
	Mode     AlphaMode
	Color    Color
	Values   []float32
	Desc     TextureDescriptor
	Draw     DrawCall
}

// Headless is a Backend that allocates ids and records every call without touching a device.
// It is used by tools that run the engine offscreen and by tests that assert call ordering.
type Headless struct {
	mu sync.Mutex

	cfg    *backendConfig
	caps   Caps
	width  int
	height int

	nextID     uint64
	textures   map[TextureID]TextureDescriptor
	geometries map[GeometryID]GeometryDescriptor
	programs   map[ProgramID]ProgramDescriptor
	uniforms   map[ProgramID]map[string][]float32
	bindings   map[ProgramID]map[string]TextureID

	allocations  int
	frames       int
	alphaMode    AlphaMode
	alphaTesting bool
	bound        TextureID
	calls        []Call
}

var _ Backend = &Headless{}

// NewHeadless creates a headless recording backend.
//
// Parameters:
//   - options: variadic BackendBuilderOption functions (WithSize, WithCaps, WithStencil, WithEffectFailure)
//
// Returns:
//   - *Headless: the recorder
func NewHeadless(options ...BackendBuilderOption) *Headless {
	cfg := &backendConfig{width: 1, height: 1, sampleCount: MSAAOff}
	for _, opt := range options {
		opt(cfg)
	}
	return newHeadless(cfg)
}

func newHeadless(cfg *backendConfig) *Headless {
	caps := Caps{
		MaxTextureSize:     defaultHeadlessMaxSize,
		MaxCubeTextureSize: defaultHeadlessMaxSize,
		MaxSamples:         4,
	}
	if cfg.caps.MaxTextureSize > 0 {
		caps.MaxTextureSize = cfg.caps.MaxTextureSize
	}
	if cfg.caps.MaxCubeTextureSize > 0 {
		caps.MaxCubeTextureSize = cfg.caps.MaxCubeTextureSize
	}
	if cfg.caps.MaxSamples > 0 {
		caps.MaxSamples = cfg.caps.MaxSamples
	}
	return &Headless{
		cfg:        cfg,
		caps:       caps,
		width:      cfg.width,
		height:     cfg.height,
		textures:   make(map[TextureID]TextureDescriptor),
		geometries: make(map[GeometryID]GeometryDescriptor),
		programs:   make(map[ProgramID]ProgramDescriptor),
		uniforms:   make(map[ProgramID]map[string][]float32),
		bindings:   make(map[ProgramID]map[string]TextureID),
	}
}

func (h *Headless) record(c Call) {
	h.calls = append(h.calls, c)
}

func (h *Headless) allocID() uint64 {
	h.nextID++
	return h.nextID
}

// Type returns BackendTypeHeadless.
func (h *Headless) Type() BackendType {
	return BackendTypeHeadless
}

// Caps returns the configured limits.
func (h *Headless) Caps() Caps {
	return h.caps
}

// RenderWidth returns the width of the simulated default framebuffer.
func (h *Headless) RenderWidth() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.width
}

// RenderHeight returns the height of the simulated default framebuffer.
func (h *Headless) RenderHeight() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.height
}

// IsStencilEnabled reports the configured stencil flag.
func (h *Headless) IsStencilEnabled() bool {
	return h.cfg.stencil
}

// Resize records the new default framebuffer size.
func (h *Headless) Resize(width, height int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.width = width
	h.height = height
	h.record(Call{Op: OpResize, Values: []float32{float32(width), float32(height)}})
}

// BeginFrame records the start of a frame.
func (h *Headless) BeginFrame() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record(Call{Op: OpBeginFrame})
	return nil
}

// EndFrame records the end of a frame.
func (h *Headless) EndFrame() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frames++
	h.record(Call{Op: OpEndFrame})
}

// CreateRenderTargetTexture allocates a texture id for desc.
func (h *Headless) CreateRenderTargetTexture(desc TextureDescriptor) (TextureID, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if desc.Width <= 0 || desc.Height <= 0 {
		return 0, fmt.Errorf("invalid render target size %dx%d", desc.Width, desc.Height)
	}
	id := TextureID(h.allocID())
	h.textures[id] = desc
	h.allocations++
	h.record(Call{Op: OpCreateRenderTarget, Texture: id, Desc: desc})
	return id, nil
}

// CreateRenderTargetCubeTexture allocates a cube texture id for desc.
func (h *Headless) CreateRenderTargetCubeTexture(desc TextureDescriptor) (TextureID, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if desc.Width <= 0 {
		return 0, fmt.Errorf("invalid cube render target size %d", desc.Width)
	}
	desc.IsCube = true
	desc.Height = desc.Width
	id := TextureID(h.allocID())
	h.textures[id] = desc
	h.allocations++
	h.record(Call{Op: OpCreateCubeTarget, Texture: id, Desc: desc})
	return id, nil
}

// ReleaseTexture forgets a texture id.
func (h *Headless) ReleaseTexture(id TextureID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.textures[id]; !ok {
		return
	}
	delete(h.textures, id)
	h.record(Call{Op: OpReleaseTexture, Texture: id})
}

// UpdateRenderTargetTextureSampleCount clamps samples to Caps.MaxSamples and stores it.
func (h *Headless) UpdateRenderTargetTextureSampleCount(id TextureID, samples int) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	desc, ok := h.textures[id]
	if !ok {
		return 1
	}
	applied := max(1, min(samples, h.caps.MaxSamples))
	desc.Samples = applied
	h.textures[id] = desc
	h.record(Call{Op: OpUpdateSampleCount, Texture: id, Values: []float32{float32(applied)}})
	return applied
}

// GenerateMipMapsForCubemap records the request.
func (h *Headless) GenerateMipMapsForCubemap(id TextureID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record(Call{Op: OpGenerateCubeMipMaps, Texture: id})
}

// CreateGeometry allocates a geometry id.
func (h *Headless) CreateGeometry(desc GeometryDescriptor) (GeometryID, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := GeometryID(h.allocID())
	h.geometries[id] = desc
	h.record(Call{Op: OpCreateGeometry, Geometry: id, Name: desc.Label})
	return id, nil
}

// ReleaseGeometry forgets a geometry id.
func (h *Headless) ReleaseGeometry(id GeometryID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.geometries[id]; !ok {
		return
	}
	delete(h.geometries, id)
	h.record(Call{Op: OpReleaseGeometry, Geometry: id})
}

// CreateEffect allocates a program id, or fails through the WithEffectFailure hook.
func (h *Headless) CreateEffect(desc ProgramDescriptor) (ProgramID, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cfg.effectFailure != nil {
		if err := h.cfg.effectFailure(desc); err != nil {
			return 0, err
		}
	}
	id := ProgramID(h.allocID())
	h.programs[id] = desc
	h.uniforms[id] = make(map[string][]float32)
	h.bindings[id] = make(map[string]TextureID)
	h.record(Call{Op: OpCreateEffect, Program: id, Name: desc.Name})
	return id, nil
}

// ReleaseEffect forgets a program id.
func (h *Headless) ReleaseEffect(id ProgramID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.programs[id]; !ok {
		return
	}
	delete(h.programs, id)
	delete(h.uniforms, id)
	delete(h.bindings, id)
	h.record(Call{Op: OpReleaseEffect, Program: id})
}

// BindFramebuffer records the bound target and viewport.
func (h *Headless) BindFramebuffer(id TextureID, viewport *Viewport) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bound = id
	var vp *Viewport
	if viewport != nil {
		v := *viewport
		vp = &v
	}
	h.record(Call{Op: OpBindFramebuffer, Texture: id, Viewport: vp})
}

// UnBindFramebuffer records the unbind and restores the default framebuffer.
func (h *Headless) UnBindFramebuffer(id TextureID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bound = 0
	h.record(Call{Op: OpUnBindFramebuffer, Texture: id})
}

// EnableEffect records the current program.
func (h *Headless) EnableEffect(id ProgramID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record(Call{Op: OpEnableEffect, Program: id})
}

// BindTexture records a sampler binding.
func (h *Headless) BindTexture(program ProgramID, sampler string, tex TextureID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if b, ok := h.bindings[program]; ok {
		b[sampler] = tex
	}
	h.record(Call{Op: OpBindTexture, Program: program, Name: sampler, Texture: tex})
}

// SetUniform records a uniform write.
func (h *Headless) SetUniform(program ProgramID, name string, values ...float32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v := append([]float32(nil), values...)
	if u, ok := h.uniforms[program]; ok {
		u[name] = v
	}
	h.record(Call{Op: OpSetUniform, Program: program, Name: name, Values: v})
}

// Clear records a clear of the bound framebuffer.
func (h *Headless) Clear(color Color, backBuffer, depth, stencil bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record(Call{Op: OpClear, Texture: h.bound, Color: color, Flag: backBuffer, Values: []float32{b2f(depth), b2f(stencil)}})
}

// SetAlphaMode records the blend mode.
func (h *Headless) SetAlphaMode(mode AlphaMode) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.alphaMode = mode
	h.record(Call{Op: OpSetAlphaMode, Mode: mode})
}

// SetAlphaConstants records the blend constant.
func (h *Headless) SetAlphaConstants(c Color) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record(Call{Op: OpSetAlphaConstants, Color: c})
}

// SetAlphaTesting records the alpha test flag.
func (h *Headless) SetAlphaTesting(enabled bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.alphaTesting = enabled
	h.record(Call{Op: OpSetAlphaTesting, Flag: enabled})
}

// SetState records the culling flag.
func (h *Headless) SetState(culling bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record(Call{Op: OpSetState, Flag: culling})
}

// SetDepthBuffer records the depth test flag.
func (h *Headless) SetDepthBuffer(enabled bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record(Call{Op: OpSetDepthBuffer, Flag: enabled})
}

// SetDepthWrite records the depth write flag.
func (h *Headless) SetDepthWrite(enabled bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record(Call{Op: OpSetDepthWrite, Flag: enabled})
}

// Draw records a draw call together with the bound target and the current alpha state.
func (h *Headless) Draw(call DrawCall) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record(Call{Op: OpDraw, Program: call.Program, Geometry: call.Geometry, Texture: h.bound, Mode: h.alphaMode, Flag: h.alphaTesting, Draw: call})
}

// Release forgets every live object.
func (h *Headless) Release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	clear(h.textures)
	clear(h.geometries)
	clear(h.programs)
	clear(h.uniforms)
	clear(h.bindings)
}

// Calls returns a copy of the recorded call log.
func (h *Headless) Calls() []Call {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Call(nil), h.calls...)
}

// Ops returns the recorded operation names in order, optionally filtered to the given set.
//
// Parameters:
//   - filter: operation names to keep; empty keeps all
//
// Returns:
//   - []string: the operation names
func (h *Headless) Ops(filter ...string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	keep := make(map[string]bool, len(filter))
	for _, f := range filter {
		keep[f] = true
	}
	var out []string
	for _, c := range h.calls {
		if len(keep) == 0 || keep[c.Op] {
			out = append(out, c.Op)
		}
	}
	return out
}

// Count returns how many times op was recorded.
func (h *Headless) Count(op string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, c := range h.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// ResetCalls clears the call log without forgetting live objects.
func (h *Headless) ResetCalls() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = nil
}

// LiveTextures returns the number of textures not yet released.
func (h *Headless) LiveTextures() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.textures)
}

// TextureAllocations returns the total number of textures ever created.
func (h *Headless) TextureAllocations() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.allocations
}

// Texture returns the descriptor a live texture was created with.
func (h *Headless) Texture(id TextureID) (TextureDescriptor, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	d, ok := h.textures[id]
	return d, ok
}

// LivePrograms returns the number of programs not yet released.
func (h *Headless) LivePrograms() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.programs)
}

// Uniform returns the last value written to a program uniform.
func (h *Headless) Uniform(program ProgramID, name string) []float32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.uniforms[program][name]
}

// BoundTexture returns the texture last bound to a program sampler.
func (h *Headless) BoundTexture(program ProgramID, sampler string) TextureID {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.bindings[program][sampler]
}

// Frames returns the number of completed frames.
func (h *Headless) Frames() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.frames
}

func b2f(b bool) float32 {
	if b {
		return 1
	}
	return 0
}
