// Package postprocess implements full-screen passes chained on a camera. Each pass owns the
// render target the previous stage draws into, then samples it while drawing a full-screen quad
// into the next pass (or the final target).
package postprocess

import (
	"errors"
	"fmt"
	"log"

	"github.com/Carmen-Shannon/prism/engine/backend"
	"github.com/Carmen-Shannon/prism/engine/camera"
	"github.com/Carmen-Shannon/prism/engine/effect"
	"github.com/Carmen-Shannon/prism/engine/event"
	"github.com/Carmen-Shannon/prism/engine/resource"
	"github.com/Carmen-Shannon/prism/engine/texture"
	"github.com/go-gl/mathgl/mgl32"
)

// ErrMissingFragment is returned when a pass is created without a fragment source.
var ErrMissingFragment = errors.New("postprocess: fragment source is required")

// Host supplies the engine services a pass allocates through.
type Host interface {
	// Backend returns the graphics backend.
	Backend() backend.Backend

	// Textures returns the render target manager.
	Textures() texture.Manager

	// Effects returns the effect cache.
	Effects() effect.Cache

	// ClearColor returns the scene clear color used when a pass has none of its own.
	ClearColor() backend.Color

	// AutoClear reports whether the scene clears color between frames.
	AutoClear() bool
}

// PostProcess is one full-screen pass.
type PostProcess interface {
	camera.PostProcess

	// Options returns the configuration of the pass.
	Options() Options

	// Activate prepares the pass's render target as the destination of the previous stage:
	// it (re)allocates textures when the desired size changed, binds the target, clears it and
	// sets the pass alpha mode.
	//
	// Parameters:
	//   - cam: the camera the pass is attached to
	//   - source: the render target whose size drives the pass; zero uses the canvas size
	Activate(cam camera.Camera, source resource.Handle)

	// Apply binds the pass effect, its input texture and its parameters for the quad draw.
	//
	// Returns:
	//   - bool: false if the effect is not ready and the pass must be skipped this frame
	Apply() bool

	// Dispose releases the pass's textures and effect and detaches it from cam. When the pass
	// was first in the chain, the new first pass is marked dirty so it reallocates with depth.
	//
	// Parameters:
	//   - cam: the camera to detach from; may be nil
	Dispose(cam camera.Camera)

	// ShareOutputWith disposes the pass's own textures and renders into other's output instead.
	//
	// Parameters:
	//   - other: the pass whose output is shared; nil stops sharing
	ShareOutputWith(other PostProcess)

	// UpdateEffect requests a new effect with the given parameters. Empty lists keep the
	// configured ones.
	UpdateEffect(defines string, uniforms, samplers []string, indexParameters map[string]int)

	// Effect returns the current effect, or nil while compilation is blocked.
	Effect() *effect.Effect

	// IsReady reports whether the current effect compiled.
	IsReady() bool

	// IsReusable reports whether the pass alternates between two textures.
	IsReusable() bool

	// OutputTexture returns the texture the pass samples, following a shared output.
	OutputTexture() resource.Handle

	// ScaleRatio returns the texture coordinate scale applied in pixel-perfect mode.
	ScaleRatio() mgl32.Vec2

	// CurrentRenderTextureInd returns the index of the texture currently used as output.
	CurrentRenderTextureInd() int

	// Size returns the allocated texture size; width is -1 while the texture is dirty.
	Size() (int, int)

	// Clamped reports whether the last activation had to shrink the texture to the backend's
	// maximum texture size.
	Clamped() bool

	// Textures returns the handles allocated by the pass.
	Textures() []resource.Handle

	// SetOnActivate replaces the single activate callback.
	SetOnActivate(fn func(camera.Camera))

	// SetOnApply replaces the single apply callback. It runs after the default parameters are
	// bound, so passes use it to set their own uniforms and samplers.
	SetOnApply(fn func(*effect.Effect))

	// SetOnBeforeRender replaces the single before-render callback.
	SetOnBeforeRender(fn func(*effect.Effect))

	// SetOnAfterRender replaces the single after-render callback.
	SetOnAfterRender(fn func(*effect.Effect))

	// SetOnSizeChanged replaces the single size-changed callback.
	SetOnSizeChanged(fn func(PostProcess))

	OnActivate() *event.Observable[camera.Camera]
	OnApply() *event.Observable[*effect.Effect]
	OnBeforeRender() *event.Observable[*effect.Effect]
	OnAfterRender() *event.Observable[*effect.Effect]
	OnSizeChanged() *event.Observable[PostProcess]
}

type postProcess struct {
	host Host
	opts Options

	effect   *effect.Effect
	textures []resource.Handle
	ind      int
	width    int
	height   int
	samples  int
	scale    mgl32.Vec2
	clamped  bool
	share    PostProcess

	// self is the value attached to the camera when a wrapping pass embeds this one.
	self PostProcess

	onActivate     event.Observable[camera.Camera]
	onApply        event.Observable[*effect.Effect]
	onBeforeRender event.Observable[*effect.Effect]
	onAfterRender  event.Observable[*effect.Effect]
	onSizeChanged  event.Observable[PostProcess]

	activateToken     event.Token
	applyToken        event.Token
	beforeRenderToken event.Token
	afterRenderToken  event.Token
	sizeChangedToken  event.Token
}

var _ PostProcess = &postProcess{}

// New creates a pass and attaches it to the end of cam's chain when cam is non-nil.
//
// Parameters:
//   - host: the engine services
//   - opts: the pass configuration
//   - cam: the camera to attach to; may be nil
//
// Returns:
//   - PostProcess: the pass
//   - error: ErrMissingFragment if opts has no fragment source
func New(host Host, opts Options, cam camera.Camera) (PostProcess, error) {
	if host == nil {
		panic("postprocess: New requires a non-nil host")
	}
	if opts.Fragment == "" {
		return nil, ErrMissingFragment
	}
	opts = opts.withDefaults()
	if opts.Name == "" {
		opts.Name = opts.Fragment
	}
	p := &postProcess{
		host:    host,
		opts:    opts,
		width:   -1,
		height:  -1,
		samples: 1,
		scale:   mgl32.Vec2{1, 1},
	}
	if cam != nil {
		cam.AttachPostProcess(p, -1)
	}
	if !opts.BlockCompilation {
		p.UpdateEffect(opts.Defines, nil, nil, nil)
	}
	return p, nil
}

// attached returns the value the camera chain holds for this pass.
func (p *postProcess) attached() PostProcess {
	if p.self != nil {
		return p.self
	}
	return p
}

func (p *postProcess) Name() string { return p.opts.Name }

func (p *postProcess) Options() Options { return p.opts }

func (p *postProcess) MarkTextureDirty() { p.width = -1 }

func (p *postProcess) Effect() *effect.Effect { return p.effect }

func (p *postProcess) IsReady() bool { return p.effect != nil && p.effect.IsReady() }

func (p *postProcess) IsReusable() bool { return p.opts.Reusable }

func (p *postProcess) ScaleRatio() mgl32.Vec2 { return p.scale }

func (p *postProcess) Clamped() bool { return p.clamped }

func (p *postProcess) CurrentRenderTextureInd() int { return p.ind }

func (p *postProcess) Size() (int, int) { return p.width, p.height }

func (p *postProcess) Textures() []resource.Handle {
	return append([]resource.Handle(nil), p.textures...)
}

func (p *postProcess) OutputTexture() resource.Handle {
	if p.share != nil {
		return p.share.OutputTexture()
	}
	if len(p.textures) == 0 {
		return resource.Handle{}
	}
	return p.textures[p.ind%len(p.textures)]
}

func (p *postProcess) UpdateEffect(defines string, uniforms, samplers []string, indexParameters map[string]int) {
	if len(uniforms) == 0 {
		uniforms = p.opts.Uniforms
	}
	if len(samplers) == 0 {
		samplers = p.opts.Samplers
	}
	if len(indexParameters) == 0 {
		indexParameters = p.opts.IndexParameters
	}
	name := p.opts.Name
	next := p.host.Effects().GetOrCreate(effect.Options{
		Vertex:          p.opts.Vertex,
		Fragment:        p.opts.Fragment,
		Attributes:      []string{"position"},
		Uniforms:        uniformNames(uniforms),
		Samplers:        samplerNames(samplers),
		Defines:         defines,
		IndexParameters: indexParameters,
		OnError: func(_ *effect.Effect, err error) {
			log.Printf("[PostProcess] %s: effect unavailable: %v", name, err)
		},
	})
	if p.effect != nil {
		p.host.Effects().Release(p.effect)
	}
	p.effect = next
	p.opts.Defines = defines
}

func (p *postProcess) Activate(cam camera.Camera, source resource.Handle) {
	b := p.host.Backend()
	textures := p.host.Textures()

	reqW, reqH := b.RenderWidth(), b.RenderHeight()
	if !source.IsZero() {
		if rt, err := textures.Get(source); err == nil {
			reqW, reqH = rt.Width, rt.Height
		}
	}
	reqW = int(float32(reqW) * p.opts.RenderRatio)
	reqH = int(float32(reqH) * p.opts.RenderRatio)

	maxSize := textures.MaxTextureSize()
	desiredW, desiredH := p.opts.Width, p.opts.Height
	var clampedW, clampedH bool
	if desiredW <= 0 {
		desiredW, clampedW = texture.SizeFor(reqW, false, p.opts.SamplingMode, maxSize)
	}
	if desiredH <= 0 {
		desiredH, clampedH = texture.SizeFor(reqH, false, p.opts.SamplingMode, maxSize)
	}
	clamped := clampedW || clampedH
	if clamped && !p.clamped {
		log.Printf("[PostProcess] %s: %dx%d exceeds the max texture size %d, clamping", p.opts.Name, reqW, reqH, maxSize)
	}
	p.clamped = clamped

	if p.share == nil {
		if p.width != desiredW || p.height != desiredH {
			if err := p.allocate(cam, desiredW, desiredH); err != nil {
				log.Printf("[PostProcess] %s: %v", p.opts.Name, err)
				return
			}
			p.onSizeChanged.Notify(p.attached())
		}
		if p.samples != p.opts.Samples {
			for _, h := range p.textures {
				applied, err := textures.UpdateSampleCount(h, p.opts.Samples)
				if err == nil {
					p.samples = applied
				}
			}
		}
	}

	target := textures.BackendID(p.OutputTexture())
	if p.opts.PixelPerfect {
		p.scale = mgl32.Vec2{float32(reqW) / float32(desiredW), float32(reqH) / float32(desiredH)}
		b.BindFramebuffer(target, &backend.Viewport{Width: reqW, Height: reqH})
	} else {
		p.scale = mgl32.Vec2{1, 1}
		b.BindFramebuffer(target, nil)
	}

	p.onActivate.Notify(cam)

	if p.opts.ClearColor != nil {
		b.Clear(*p.opts.ClearColor, true, true, true)
	} else {
		b.Clear(p.host.ClearColor(), p.host.AutoClear(), true, true)
	}

	if p.opts.Reusable {
		p.ind = (p.ind + 1) % 2
	}

	b.SetAlphaMode(p.opts.AlphaMode)
	if p.opts.AlphaConstants != nil {
		b.SetAlphaConstants(*p.opts.AlphaConstants)
	}
}

// allocate replaces the pass textures with one (or two when reusable) targets of the given size.
// Only the first pass of a chain gets depth and stencil since the scene renders into it.
func (p *postProcess) allocate(cam camera.Camera, width, height int) error {
	p.releaseTextures()

	first := cam != nil && cam.IndexOf(p.attached()) == 0
	opts := texture.Options{
		Label:                 p.opts.Name,
		GenerateMipMaps:       false,
		GenerateDepthBuffer:   first,
		GenerateStencilBuffer: first && p.host.Backend().IsStencilEnabled(),
		SamplingMode:          p.opts.SamplingMode,
		Type:                  p.opts.TextureType,
	}
	count := 1
	if p.opts.Reusable {
		count = 2
	}
	for range count {
		h, err := p.host.Textures().CreateRenderTarget(texture.Size{Width: width, Height: height}, opts)
		if err != nil {
			p.releaseTextures()
			return fmt.Errorf("failed to allocate %dx%d render target: %w", width, height, err)
		}
		p.textures = append(p.textures, h)
	}
	p.width, p.height = width, height
	p.samples = 1
	return nil
}

func (p *postProcess) releaseTextures() {
	for _, h := range p.textures {
		if _, err := p.host.Textures().Release(h); err != nil {
			log.Printf("[PostProcess] %s: failed to release render target %s: %v", p.opts.Name, h, err)
		}
	}
	p.textures = nil
	p.width, p.height = -1, -1
}

// disposeTextures frees owned textures. A pass sharing another's output owns none.
func (p *postProcess) disposeTextures() {
	if p.share != nil {
		return
	}
	p.releaseTextures()
}

func (p *postProcess) Apply() bool {
	if p.effect != nil && p.effect.IsStale() {
		p.UpdateEffect(p.opts.Defines, nil, nil, nil)
	}
	if !p.IsReady() {
		return false
	}
	b := p.host.Backend()
	prog := p.effect.Program()

	b.EnableEffect(prog)
	b.SetState(false)
	b.SetDepthBuffer(false)
	b.SetDepthWrite(false)

	b.BindTexture(prog, textureSampler, p.host.Textures().BackendID(p.OutputTexture()))
	b.SetUniform(prog, scaleUniform, p.scale.X(), p.scale.Y())

	p.onApply.Notify(p.effect)
	return true
}

func (p *postProcess) ShareOutputWith(other PostProcess) {
	p.disposeTextures()
	p.share = other
}

func (p *postProcess) Dispose(cam camera.Camera) {
	p.disposeTextures()
	if p.effect != nil {
		p.host.Effects().Release(p.effect)
		p.effect = nil
	}

	if cam != nil {
		index := cam.IndexOf(p.attached())
		cam.DetachPostProcess(p.attached())
		if chain := cam.PostProcesses(); index == 0 && len(chain) > 0 {
			chain[0].MarkTextureDirty()
		}
	}

	p.onActivate.Clear()
	p.onApply.Clear()
	p.onBeforeRender.Clear()
	p.onAfterRender.Clear()
	p.onSizeChanged.Clear()
}

func (p *postProcess) SetOnActivate(fn func(camera.Camera)) {
	p.onActivate.Remove(p.activateToken)
	p.activateToken = p.onActivate.Add(fn)
}

func (p *postProcess) SetOnApply(fn func(*effect.Effect)) {
	p.onApply.Remove(p.applyToken)
	p.applyToken = p.onApply.Add(fn)
}

func (p *postProcess) SetOnBeforeRender(fn func(*effect.Effect)) {
	p.onBeforeRender.Remove(p.beforeRenderToken)
	p.beforeRenderToken = p.onBeforeRender.Add(fn)
}

func (p *postProcess) SetOnAfterRender(fn func(*effect.Effect)) {
	p.onAfterRender.Remove(p.afterRenderToken)
	p.afterRenderToken = p.onAfterRender.Add(fn)
}

func (p *postProcess) SetOnSizeChanged(fn func(PostProcess)) {
	p.onSizeChanged.Remove(p.sizeChangedToken)
	p.sizeChangedToken = p.onSizeChanged.Add(fn)
}

func (p *postProcess) OnActivate() *event.Observable[camera.Camera] { return &p.onActivate }

func (p *postProcess) OnApply() *event.Observable[*effect.Effect] { return &p.onApply }

func (p *postProcess) OnBeforeRender() *event.Observable[*effect.Effect] { return &p.onBeforeRender }

func (p *postProcess) OnAfterRender() *event.Observable[*effect.Effect] { return &p.onAfterRender }

func (p *postProcess) OnSizeChanged() *event.Observable[PostProcess] { return &p.onSizeChanged }
