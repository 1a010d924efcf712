package backend

import (
	"errors"
	"fmt"
	"log"
	"runtime"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
)

// Shader binding convention for programs created by the WGPU backend:
//   - @group(0) @binding(0): a uniform buffer holding one vec4<f32> slot per declared uniform, in order
//     (four slots for matrices, see UniformSlots)
//   - @group(0) @binding(1+2i): texture_2d<f32> for the i-th declared sampler
//   - @group(0) @binding(2+2i): sampler for the i-th declared sampler
//   - vertex inputs at @location(i) follow the order of the geometry's attributes
const uniformSlotFloats = 4

type wgpuTarget struct {
	desc       TextureDescriptor
	format     wgpu.TextureFormat
	samples    uint32
	texture    *wgpu.Texture
	view       *wgpu.TextureView
	attachView *wgpu.TextureView
	msaa       *wgpu.Texture
	msaaView   *wgpu.TextureView
	depth      *wgpu.Texture
	depthView  *wgpu.TextureView
	sampler    *wgpu.Sampler
}

func (t *wgpuTarget) release() {
	for _, v := range []*wgpu.TextureView{t.view, t.attachView, t.msaaView, t.depthView} {
		if v != nil {
			v.Release()
		}
	}
	for _, tex := range []*wgpu.Texture{t.texture, t.msaa, t.depth} {
		if tex != nil {
			tex.Release()
		}
	}
	if t.sampler != nil {
		t.sampler.Release()
	}
}

type wgpuGeometry struct {
	vertex      *wgpu.Buffer
	index       *wgpu.Buffer
	vertexCount int
	indexCount  int
	stride      uint64
	attributes  []string
}

type pipelineKey struct {
	format     wgpu.TextureFormat
	samples    uint32
	depth      bool
	stencil    bool
	alpha      AlphaMode
	culling    bool
	depthTest  bool
	depthWrite bool
	geometry   string
}

type wgpuProgram struct {
	desc         ProgramDescriptor
	vs           *wgpu.ShaderModule
	fs           *wgpu.ShaderModule
	bindLayout   *wgpu.BindGroupLayout
	layout       *wgpu.PipelineLayout
	uniformBuf   *wgpu.Buffer
	uniformData  []float32
	uniformIndex map[string]int
	textures     map[string]TextureID
	bindGroup    *wgpu.BindGroup
	bindDirty    bool
	pipelines    map[pipelineKey]*wgpu.RenderPipeline
}

func (p *wgpuProgram) release() {
	for _, rp := range p.pipelines {
		rp.Release()
	}
	if p.bindGroup != nil {
		p.bindGroup.Release()
	}
	if p.uniformBuf != nil {
		p.uniformBuf.Release()
	}
	if p.layout != nil {
		p.layout.Release()
	}
	if p.bindLayout != nil {
		p.bindLayout.Release()
	}
	p.vs.Release()
	if p.fs != p.vs {
		p.fs.Release()
	}
}

type wgpuBackendImpl struct {
	mu *sync.Mutex

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	surface  *wgpu.Surface

	surfaceFormat wgpu.TextureFormat
	presentMode   wgpu.PresentMode
	sampleCount   MSAASampleCount
	stencil       bool
	caps          Caps
	width         int
	height        int

	screenMSAA      *wgpu.Texture
	screenMSAAView  *wgpu.TextureView
	screenDepth     *wgpu.Texture
	screenDepthView *wgpu.TextureView

	nextID     uint64
	targets    map[TextureID]*wgpuTarget
	geometries map[GeometryID]*wgpuGeometry
	programs   map[ProgramID]*wgpuProgram

	// Frame state. Render passes are opened lazily by Clear or Draw against the bound target.
	frameEncoder *wgpu.CommandEncoder
	frameSurface *wgpu.Texture
	frameView    *wgpu.TextureView
	pass         *wgpu.RenderPassEncoder
	bound        TextureID
	viewport     *Viewport

	current       ProgramID
	alphaMode     AlphaMode
	alphaConstant Color
	alphaTesting  bool
	culling       bool
	depthTest     bool
	depthWrite    bool

	warnedMipMaps bool
}

var _ Backend = &wgpuBackendImpl{}

func newWGPUBackend(cfg *backendConfig) (Backend, error) {
	if cfg.surfaceDescriptor == nil {
		return nil, errors.New("wgpu backend requires a surface descriptor")
	}
	runtime.LockOSThread()

	b := &wgpuBackendImpl{
		mu:          &sync.Mutex{},
		instance:    wgpu.CreateInstance(nil),
		presentMode: wgpu.PresentModeFifo,
		sampleCount: cfg.sampleCount,
		stencil:     cfg.stencil,
		targets:     make(map[TextureID]*wgpuTarget),
		geometries:  make(map[GeometryID]*wgpuGeometry),
		programs:    make(map[ProgramID]*wgpuProgram),
		culling:     true,
		depthTest:   true,
		depthWrite:  true,
	}
	if cfg.presentMode == PresentModeUncapped {
		b.presentMode = wgpu.PresentModeImmediate
	}
	b.surface = b.instance.CreateSurface(cfg.surfaceDescriptor)

	a, err := b.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: cfg.forceFallbackAdapter,
		CompatibleSurface:    b.surface,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to request adapter: %w", err)
	}
	b.adapter = a

	limits := wgpu.DefaultLimits()
	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Main Device",
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: limits,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to request device: %w", err)
	}
	b.device = d
	b.queue = d.GetQueue()

	b.caps = Caps{
		MaxTextureSize:     int(limits.MaxTextureDimension2D),
		MaxCubeTextureSize: int(limits.MaxTextureDimension2D),
		MaxSamples:         int(MSAA4x),
	}
	if cfg.caps.MaxTextureSize > 0 {
		b.caps.MaxTextureSize = min(b.caps.MaxTextureSize, cfg.caps.MaxTextureSize)
	}
	if cfg.caps.MaxCubeTextureSize > 0 {
		b.caps.MaxCubeTextureSize = min(b.caps.MaxCubeTextureSize, cfg.caps.MaxCubeTextureSize)
	}
	if cfg.caps.MaxSamples > 0 {
		b.caps.MaxSamples = min(b.caps.MaxSamples, cfg.caps.MaxSamples)
	}

	if err := b.configureSurface(cfg.width, cfg.height); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *wgpuBackendImpl) allocID() uint64 {
	b.nextID++
	return b.nextID
}

// configureSurface reconfigures the swapchain and recreates the screen MSAA and depth attachments.
func (b *wgpuBackendImpl) configureSurface(width, height int) error {
	width, height = max(1, width), max(1, height)
	capabilities := b.surface.GetCapabilities(b.adapter)
	b.surfaceFormat = capabilities.Formats[0]

	b.surface.Configure(b.adapter, b.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      b.surfaceFormat,
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: b.presentMode,
		AlphaMode:   capabilities.AlphaModes[0],
	})
	b.width, b.height = width, height

	if b.screenMSAAView != nil {
		b.screenMSAAView.Release()
		b.screenMSAA.Release()
		b.screenMSAAView, b.screenMSAA = nil, nil
	}
	if b.screenDepthView != nil {
		b.screenDepthView.Release()
		b.screenDepth.Release()
	}

	count := uint32(b.sampleCount)
	var err error
	if count > 1 {
		b.screenMSAA, b.screenMSAAView, err = b.createAttachment("Screen MSAA Texture", width, height, count, b.surfaceFormat)
		if err != nil {
			return err
		}
	}
	b.screenDepth, b.screenDepthView, err = b.createAttachment("Screen Depth Texture", width, height, count, b.depthFormat(b.stencil))
	return err
}

func (b *wgpuBackendImpl) depthFormat(stencil bool) wgpu.TextureFormat {
	if stencil {
		return wgpu.TextureFormatDepth24PlusStencil8
	}
	return wgpu.TextureFormatDepth24Plus
}

func (b *wgpuBackendImpl) createAttachment(label string, width, height int, samples uint32, format wgpu.TextureFormat) (*wgpu.Texture, *wgpu.TextureView, error) {
	tex, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
		Label: label,
		Size: wgpu.Extent3D{
			Width:              uint32(width),
			Height:             uint32(height),
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   samples,
		Dimension:     wgpu.TextureDimension2D,
		Format:        format,
		Usage:         wgpu.TextureUsageRenderAttachment,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create %s: %w", label, err)
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return nil, nil, fmt.Errorf("failed to create %s view: %w", label, err)
	}
	return tex, view, nil
}

func (b *wgpuBackendImpl) Type() BackendType {
	return BackendTypeWGPU
}

func (b *wgpuBackendImpl) Caps() Caps {
	return b.caps
}

func (b *wgpuBackendImpl) RenderWidth() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.width
}

func (b *wgpuBackendImpl) RenderHeight() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.height
}

func (b *wgpuBackendImpl) IsStencilEnabled() bool {
	return b.stencil
}

func (b *wgpuBackendImpl) Resize(width, height int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.configureSurface(width, height); err != nil {
		log.Printf("[Backend] resize to %dx%d failed: %v", width, height, err)
	}
}

func (b *wgpuBackendImpl) BeginFrame() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	// A surface texture still held means the previous frame was never presented; acquiring another
	// one would fail validation.
	if b.frameSurface != nil {
		return fmt.Errorf("previous frame surface not yet presented")
	}

	surfaceTexture, err := b.surface.GetCurrentTexture()
	if err != nil {
		return err
	}
	view, err := surfaceTexture.CreateView(nil)
	if err != nil {
		surfaceTexture.Release()
		return err
	}
	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		view.Release()
		surfaceTexture.Release()
		return err
	}

	b.frameEncoder = encoder
	b.frameSurface = surfaceTexture
	b.frameView = view
	b.bound = 0
	b.viewport = nil
	return nil
}

func (b *wgpuBackendImpl) EndFrame() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frameEncoder == nil {
		return
	}
	b.endPass()

	commandBuffer, err := b.frameEncoder.Finish(nil)
	if err == nil {
		b.queue.Submit(commandBuffer)
		commandBuffer.Release()
		b.surface.Present()
	}
	b.frameEncoder.Release()
	b.frameView.Release()
	b.frameSurface.Release()
	b.frameEncoder = nil
	b.frameView = nil
	b.frameSurface = nil
}

func (b *wgpuBackendImpl) colorFormat(t TextureType) wgpu.TextureFormat {
	switch t {
	case TextureTypeHalfFloat:
		return wgpu.TextureFormatRGBA16Float
	case TextureTypeFloat:
		return wgpu.TextureFormatRGBA32Float
	default:
		return wgpu.TextureFormatRGBA8Unorm
	}
}

func mipLevels(size int) uint32 {
	levels := uint32(1)
	for size > 1 {
		size >>= 1
		levels++
	}
	return levels
}

func (b *wgpuBackendImpl) createTarget(desc TextureDescriptor, layers uint32) (*wgpuTarget, error) {
	t := &wgpuTarget{desc: desc, format: b.colorFormat(desc.Type), samples: 1}
	mips := uint32(1)
	if desc.GenerateMipMaps {
		mips = mipLevels(max(desc.Width, desc.Height))
	}

	tex, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
		Label: desc.Label,
		Size: wgpu.Extent3D{
			Width:              uint32(desc.Width),
			Height:             uint32(desc.Height),
			DepthOrArrayLayers: layers,
		},
		MipLevelCount: mips,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        t.format,
		Usage:         wgpu.TextureUsageRenderAttachment | wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create render target %q: %w", desc.Label, err)
	}
	t.texture = tex

	viewDimension := wgpu.TextureViewDimension2D
	if layers == 6 {
		viewDimension = wgpu.TextureViewDimensionCube
	}
	if t.view, err = tex.CreateView(&wgpu.TextureViewDescriptor{
		Label:           desc.Label + " View",
		Format:          t.format,
		Dimension:       viewDimension,
		BaseMipLevel:    0,
		MipLevelCount:   mips,
		BaseArrayLayer:  0,
		ArrayLayerCount: layers,
		Aspect:          wgpu.TextureAspectAll,
	}); err != nil {
		t.release()
		return nil, fmt.Errorf("failed to create render target view %q: %w", desc.Label, err)
	}
	if t.attachView, err = tex.CreateView(&wgpu.TextureViewDescriptor{
		Label:           desc.Label + " Attachment",
		Format:          t.format,
		Dimension:       wgpu.TextureViewDimension2D,
		BaseMipLevel:    0,
		MipLevelCount:   1,
		BaseArrayLayer:  0,
		ArrayLayerCount: 1,
		Aspect:          wgpu.TextureAspectAll,
	}); err != nil {
		t.release()
		return nil, fmt.Errorf("failed to create render target attachment %q: %w", desc.Label, err)
	}

	if desc.GenerateDepthBuffer || desc.GenerateStencilBuffer {
		if t.depth, t.depthView, err = b.createAttachment(desc.Label+" Depth", desc.Width, desc.Height, 1, b.depthFormat(desc.GenerateStencilBuffer)); err != nil {
			t.release()
			return nil, err
		}
	}

	filter, mipFilter := wgpu.FilterModeLinear, wgpu.MipmapFilterModeNearest
	switch desc.SamplingMode {
	case SamplingNearest:
		filter = wgpu.FilterModeNearest
	case SamplingTrilinear:
		mipFilter = wgpu.MipmapFilterModeLinear
	}
	lodMax := float32(32)
	if layers == 6 {
		// cube levels above 0 are never written, see GenerateMipMapsForCubemap
		lodMax = 0
	}
	if t.sampler, err = b.device.CreateSampler(&wgpu.SamplerDescriptor{
		Label:         desc.Label + " Sampler",
		AddressModeU:  wgpu.AddressModeClampToEdge,
		AddressModeV:  wgpu.AddressModeClampToEdge,
		AddressModeW:  wgpu.AddressModeClampToEdge,
		MagFilter:     filter,
		MinFilter:     filter,
		MipmapFilter:  mipFilter,
		LodMinClamp:   0,
		LodMaxClamp:   lodMax,
		MaxAnisotropy: 1,
	}); err != nil {
		t.release()
		return nil, fmt.Errorf("failed to create sampler %q: %w", desc.Label, err)
	}

	if desc.Samples > 1 {
		t.samples = uint32(min(desc.Samples, b.caps.MaxSamples))
		if t.msaa, t.msaaView, err = b.createAttachment(desc.Label+" MSAA", desc.Width, desc.Height, t.samples, t.format); err != nil {
			t.release()
			return nil, err
		}
	}
	return t, nil
}

func (b *wgpuBackendImpl) CreateRenderTargetTexture(desc TextureDescriptor) (TextureID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, err := b.createTarget(desc, 1)
	if err != nil {
		return 0, err
	}
	id := TextureID(b.allocID())
	b.targets[id] = t
	return id, nil
}

func (b *wgpuBackendImpl) CreateRenderTargetCubeTexture(desc TextureDescriptor) (TextureID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	desc.IsCube = true
	desc.Height = desc.Width
	t, err := b.createTarget(desc, 6)
	if err != nil {
		return 0, err
	}
	id := TextureID(b.allocID())
	b.targets[id] = t
	return id, nil
}

func (b *wgpuBackendImpl) ReleaseTexture(id TextureID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.targets[id]
	if !ok {
		return
	}
	if b.bound == id {
		b.endPass()
		b.bound = 0
	}
	t.release()
	delete(b.targets, id)
	for _, p := range b.programs {
		for name, tex := range p.textures {
			if tex == id {
				delete(p.textures, name)
				p.bindDirty = true
			}
		}
	}
}

func (b *wgpuBackendImpl) UpdateRenderTargetTextureSampleCount(id TextureID, samples int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.targets[id]
	if !ok {
		return 1
	}
	applied := uint32(max(1, min(samples, b.caps.MaxSamples)))
	// WebGPU only guarantees 1 and 4.
	if applied > 1 {
		applied = uint32(MSAA4x)
	}
	if applied == t.samples {
		return int(applied)
	}
	if t.msaaView != nil {
		t.msaaView.Release()
		t.msaa.Release()
		t.msaa, t.msaaView = nil, nil
	}
	t.samples = applied
	if applied > 1 {
		var err error
		t.msaa, t.msaaView, err = b.createAttachment(t.desc.Label+" MSAA", t.desc.Width, t.desc.Height, applied, t.format)
		if err != nil {
			log.Printf("[Backend] failed to update sample count of %q: %v", t.desc.Label, err)
			t.samples = 1
		}
	}
	return int(t.samples)
}

// GenerateMipMapsForCubemap is a no-op on wgpu apart from a one-time warning. WebGPU has no
// built-in mip generation and the backend carries no downsample pipeline, so cube targets
// created with GenerateMipMaps keep undefined levels above 0. Samplers on cube targets clamp
// to level 0.
func (b *wgpuBackendImpl) GenerateMipMapsForCubemap(id TextureID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.targets[id]; ok && !b.warnedMipMaps {
		log.Printf("[Backend] cube mip generation is not supported by the wgpu backend; sampling level 0 only")
		b.warnedMipMaps = true
	}
}

func (b *wgpuBackendImpl) CreateGeometry(desc GeometryDescriptor) (GeometryID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	stride := 0
	for _, a := range desc.Attributes {
		stride += AttributeSize(a)
	}
	if stride == 0 {
		return 0, fmt.Errorf("geometry %q declares no attributes", desc.Label)
	}
	g := &wgpuGeometry{
		stride:      uint64(stride * 4),
		vertexCount: len(desc.Vertices) / stride,
		indexCount:  len(desc.Indices),
		attributes:  append([]string(nil), desc.Attributes...),
	}
	var err error
	g.vertex, err = b.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    desc.Label + " Vertex Buffer",
		Contents: wgpu.ToBytes(desc.Vertices),
		Usage:    wgpu.BufferUsageVertex | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create vertex buffer %q: %w", desc.Label, err)
	}
	if len(desc.Indices) > 0 {
		g.index, err = b.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
			Label:    desc.Label + " Index Buffer",
			Contents: wgpu.ToBytes(desc.Indices),
			Usage:    wgpu.BufferUsageIndex | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			g.vertex.Release()
			return 0, fmt.Errorf("failed to create index buffer %q: %w", desc.Label, err)
		}
	}
	id := GeometryID(b.allocID())
	b.geometries[id] = g
	return id, nil
}

func (b *wgpuBackendImpl) ReleaseGeometry(id GeometryID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	g, ok := b.geometries[id]
	if !ok {
		return
	}
	g.vertex.Release()
	if g.index != nil {
		g.index.Release()
	}
	delete(b.geometries, id)
}

func (b *wgpuBackendImpl) CreateEffect(desc ProgramDescriptor) (ProgramID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p := &wgpuProgram{
		desc:         desc,
		uniformIndex: make(map[string]int, len(desc.Uniforms)),
		textures:     make(map[string]TextureID, len(desc.Samplers)),
		pipelines:    make(map[pipelineKey]*wgpu.RenderPipeline),
		bindDirty:    true,
	}
	slots := 0
	for _, u := range desc.Uniforms {
		p.uniformIndex[u] = slots
		slots += UniformSlots(u)
	}
	p.uniformData = make([]float32, max(1, slots)*uniformSlotFloats)

	var err error
	p.vs, err = b.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: desc.Name + " Vertex",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: desc.VertexSource,
		},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create vertex module %q: %w", desc.Name, err)
	}
	p.fs = p.vs
	if desc.FragmentSource != desc.VertexSource {
		p.fs, err = b.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
			Label: desc.Name + " Fragment",
			WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
				Code: desc.FragmentSource,
			},
		})
		if err != nil {
			p.vs.Release()
			return 0, fmt.Errorf("failed to create fragment module %q: %w", desc.Name, err)
		}
	}

	entries := []wgpu.BindGroupLayoutEntry{{
		Binding:    0,
		Visibility: wgpu.ShaderStageVertex | wgpu.ShaderStageFragment,
		Buffer: wgpu.BufferBindingLayout{
			Type:           wgpu.BufferBindingTypeUniform,
			MinBindingSize: uint64(len(p.uniformData) * 4),
		},
	}}
	for i := range desc.Samplers {
		entries = append(entries,
			wgpu.BindGroupLayoutEntry{
				Binding:    uint32(1 + 2*i),
				Visibility: wgpu.ShaderStageFragment,
				Texture: wgpu.TextureBindingLayout{
					SampleType:    wgpu.TextureSampleTypeFloat,
					ViewDimension: wgpu.TextureViewDimension2D,
				},
			},
			wgpu.BindGroupLayoutEntry{
				Binding:    uint32(2 + 2*i),
				Visibility: wgpu.ShaderStageFragment,
				Sampler: wgpu.SamplerBindingLayout{
					Type: wgpu.SamplerBindingTypeFiltering,
				},
			},
		)
	}
	if p.bindLayout, err = b.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label:   desc.Name + " Bind Group Layout",
		Entries: entries,
	}); err != nil {
		p.release()
		return 0, fmt.Errorf("failed to create bind group layout %q: %w", desc.Name, err)
	}
	if p.layout, err = b.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            desc.Name,
		BindGroupLayouts: []*wgpu.BindGroupLayout{p.bindLayout},
	}); err != nil {
		p.release()
		return 0, fmt.Errorf("failed to create pipeline layout %q: %w", desc.Name, err)
	}
	if p.uniformBuf, err = b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: desc.Name + " Uniforms",
		Size:  uint64(len(p.uniformData) * 4),
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	}); err != nil {
		p.release()
		return 0, fmt.Errorf("failed to create uniform buffer %q: %w", desc.Name, err)
	}

	id := ProgramID(b.allocID())
	b.programs[id] = p
	return id, nil
}

func (b *wgpuBackendImpl) ReleaseEffect(id ProgramID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.programs[id]
	if !ok {
		return
	}
	p.release()
	delete(b.programs, id)
	if b.current == id {
		b.current = 0
	}
}

func (b *wgpuBackendImpl) BindFramebuffer(id TextureID, viewport *Viewport) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.endPass()
	b.bound = id
	b.viewport = nil
	if viewport != nil {
		v := *viewport
		b.viewport = &v
	}
}

func (b *wgpuBackendImpl) UnBindFramebuffer(id TextureID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.endPass()
	b.bound = 0
	b.viewport = nil
}

func (b *wgpuBackendImpl) EnableEffect(id ProgramID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = id
}

func (b *wgpuBackendImpl) BindTexture(program ProgramID, sampler string, tex TextureID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.programs[program]
	if !ok {
		return
	}
	if p.textures[sampler] != tex {
		p.textures[sampler] = tex
		p.bindDirty = true
	}
}

func (b *wgpuBackendImpl) SetUniform(program ProgramID, name string, values ...float32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.programs[program]
	if !ok {
		return
	}
	slot, ok := p.uniformIndex[name]
	if !ok {
		return
	}
	start := slot * uniformSlotFloats
	copy(p.uniformData[start:start+UniformSlots(name)*uniformSlotFloats], values)
}

func (b *wgpuBackendImpl) Clear(color Color, backBuffer, depth, stencil bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.endPass()
	b.beginPass(&color, backBuffer, depth, stencil)
}

func (b *wgpuBackendImpl) SetAlphaMode(mode AlphaMode) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.alphaMode = mode
}

func (b *wgpuBackendImpl) SetAlphaConstants(c Color) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.alphaConstant = c
	if b.pass != nil {
		b.pass.SetBlendConstant(&wgpu.Color{R: float64(c.R), G: float64(c.G), B: float64(c.B), A: float64(c.A)})
	}
}

func (b *wgpuBackendImpl) SetAlphaTesting(enabled bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.alphaTesting = enabled
}

func (b *wgpuBackendImpl) SetState(culling bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.culling = culling
}

func (b *wgpuBackendImpl) SetDepthBuffer(enabled bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.depthTest = enabled
}

func (b *wgpuBackendImpl) SetDepthWrite(enabled bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.depthWrite = enabled
}

func (b *wgpuBackendImpl) Draw(call DrawCall) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frameEncoder == nil {
		return
	}
	p, ok := b.programs[call.Program]
	if !ok {
		return
	}
	var g *wgpuGeometry
	if call.Geometry != 0 {
		if g, ok = b.geometries[call.Geometry]; !ok {
			return
		}
	}
	if b.pass == nil {
		b.beginPass(nil, false, false, false)
	}
	if b.pass == nil {
		return
	}

	if slot, ok := p.uniformIndex["alphaTest"]; ok {
		p.uniformData[slot*uniformSlotFloats] = b2f(b.alphaTesting)
	}
	if err := b.queue.WriteBuffer(p.uniformBuf, 0, wgpu.ToBytes(p.uniformData)); err != nil {
		log.Printf("[Backend] failed to write uniforms of %q: %v", p.desc.Name, err)
		return
	}
	if err := b.refreshBindGroup(p); err != nil {
		log.Printf("[Backend] %v", err)
		return
	}
	rp, err := b.pipelineFor(p, g)
	if err != nil {
		log.Printf("[Backend] %v", err)
		return
	}

	instances := uint32(max(1, call.InstanceCount))
	b.pass.SetPipeline(rp)
	b.pass.SetBindGroup(0, p.bindGroup, nil)
	switch {
	case g != nil && g.index != nil:
		b.pass.SetVertexBuffer(0, g.vertex, 0, wgpu.WholeSize)
		b.pass.SetIndexBuffer(g.index, wgpu.IndexFormatUint32, 0, wgpu.WholeSize)
		count := call.IndexCount
		if count == 0 {
			count = g.indexCount
		}
		b.pass.DrawIndexed(uint32(count), instances, 0, 0, 0)
	case g != nil:
		b.pass.SetVertexBuffer(0, g.vertex, 0, wgpu.WholeSize)
		count := call.VertexCount
		if count == 0 {
			count = g.vertexCount
		}
		b.pass.Draw(uint32(count), instances, 0, 0)
	default:
		b.pass.Draw(uint32(call.VertexCount), instances, 0, 0)
	}
}

func (b *wgpuBackendImpl) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.endPass()
	for id, p := range b.programs {
		p.release()
		delete(b.programs, id)
	}
	for id, t := range b.targets {
		t.release()
		delete(b.targets, id)
	}
	for id, g := range b.geometries {
		g.vertex.Release()
		if g.index != nil {
			g.index.Release()
		}
		delete(b.geometries, id)
	}
	if b.screenMSAAView != nil {
		b.screenMSAAView.Release()
		b.screenMSAA.Release()
	}
	if b.screenDepthView != nil {
		b.screenDepthView.Release()
		b.screenDepth.Release()
	}
	b.device.Release()
	b.adapter.Release()
	b.surface.Release()
	b.instance.Release()
}

// beginPass opens a render pass on the bound target. A nil clear color loads existing contents.
func (b *wgpuBackendImpl) beginPass(clearColor *Color, backBuffer, depth, stencil bool) {
	if b.frameEncoder == nil {
		return
	}

	var (
		view, resolve, depthView *wgpu.TextureView
		width, height            int
	)
	if b.bound == 0 {
		view, depthView = b.frameView, b.screenDepthView
		if b.screenMSAAView != nil {
			view, resolve = b.screenMSAAView, b.frameView
		}
		width, height = b.width, b.height
	} else {
		t, ok := b.targets[b.bound]
		if !ok {
			return
		}
		view, depthView = t.attachView, t.depthView
		if t.msaaView != nil {
			view, resolve = t.msaaView, t.attachView
		}
		width, height = t.desc.Width, t.desc.Height
	}

	colorLoad := wgpu.LoadOpLoad
	clearValue := wgpu.Color{}
	if clearColor != nil && backBuffer {
		colorLoad = wgpu.LoadOpClear
		clearValue = wgpu.Color{R: float64(clearColor.R), G: float64(clearColor.G), B: float64(clearColor.B), A: float64(clearColor.A)}
	}
	storeOp := wgpu.StoreOpStore
	if resolve != nil {
		// MSAA contents only matter through the resolve target.
		storeOp = wgpu.StoreOpDiscard
	}
	desc := &wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:          view,
			ResolveTarget: resolve,
			LoadOp:        colorLoad,
			StoreOp:       storeOp,
			ClearValue:    clearValue,
		}},
	}
	if depthView != nil {
		depthLoad, stencilLoad := wgpu.LoadOpLoad, wgpu.LoadOpLoad
		if clearColor != nil && depth {
			depthLoad = wgpu.LoadOpClear
		}
		if clearColor != nil && stencil {
			stencilLoad = wgpu.LoadOpClear
		}
		desc.DepthStencilAttachment = &wgpu.RenderPassDepthStencilAttachment{
			View:              depthView,
			DepthLoadOp:       depthLoad,
			DepthStoreOp:      wgpu.StoreOpStore,
			DepthClearValue:   1.0,
			StencilLoadOp:     stencilLoad,
			StencilStoreOp:    wgpu.StoreOpStore,
			StencilClearValue: 0,
		}
	}

	b.pass = b.frameEncoder.BeginRenderPass(desc)
	if b.viewport != nil {
		b.pass.SetViewport(float32(b.viewport.X), float32(b.viewport.Y), float32(b.viewport.Width), float32(b.viewport.Height), 0, 1)
	} else {
		b.pass.SetViewport(0, 0, float32(width), float32(height), 0, 1)
	}
	c := b.alphaConstant
	b.pass.SetBlendConstant(&wgpu.Color{R: float64(c.R), G: float64(c.G), B: float64(c.B), A: float64(c.A)})
}

func (b *wgpuBackendImpl) endPass() {
	if b.pass == nil {
		return
	}
	b.pass.End()
	b.pass.Release()
	b.pass = nil
}

func (b *wgpuBackendImpl) refreshBindGroup(p *wgpuProgram) error {
	if !p.bindDirty && p.bindGroup != nil {
		return nil
	}
	entries := []wgpu.BindGroupEntry{{
		Binding: 0,
		Buffer:  p.uniformBuf,
		Offset:  0,
		Size:    wgpu.WholeSize,
	}}
	for i, name := range p.desc.Samplers {
		t, ok := b.targets[p.textures[name]]
		if !ok {
			return fmt.Errorf("program %q has no texture bound to sampler %q", p.desc.Name, name)
		}
		entries = append(entries,
			wgpu.BindGroupEntry{Binding: uint32(1 + 2*i), TextureView: t.view},
			wgpu.BindGroupEntry{Binding: uint32(2 + 2*i), Sampler: t.sampler},
		)
	}
	bg, err := b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   p.desc.Name + " Bind Group",
		Layout:  p.bindLayout,
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("failed to create bind group for %q: %w", p.desc.Name, err)
	}
	if p.bindGroup != nil {
		p.bindGroup.Release()
	}
	p.bindGroup = bg
	p.bindDirty = false
	return nil
}

func (b *wgpuBackendImpl) currentTargetState() (wgpu.TextureFormat, uint32, bool, bool) {
	if b.bound == 0 {
		return b.surfaceFormat, uint32(b.sampleCount), true, b.stencil
	}
	t := b.targets[b.bound]
	return t.format, t.samples, t.depthView != nil, t.desc.GenerateStencilBuffer
}

func (b *wgpuBackendImpl) pipelineFor(p *wgpuProgram, g *wgpuGeometry) (*wgpu.RenderPipeline, error) {
	format, samples, hasDepth, hasStencil := b.currentTargetState()
	key := pipelineKey{
		format:     format,
		samples:    samples,
		depth:      hasDepth,
		stencil:    hasStencil,
		alpha:      b.alphaMode,
		culling:    b.culling,
		depthTest:  b.depthTest,
		depthWrite: b.depthWrite,
	}
	var buffers []wgpu.VertexBufferLayout
	if g != nil {
		attrs := make([]wgpu.VertexAttribute, 0, len(g.attributes))
		offset := uint64(0)
		for i, a := range g.attributes {
			n := AttributeSize(a)
			attrs = append(attrs, wgpu.VertexAttribute{
				Format:         vertexFormat(n),
				Offset:         offset,
				ShaderLocation: uint32(i),
			})
			offset += uint64(n * 4)
			key.geometry += a + ","
		}
		buffers = []wgpu.VertexBufferLayout{{
			ArrayStride: g.stride,
			StepMode:    wgpu.VertexStepModeVertex,
			Attributes:  attrs,
		}}
	}
	if rp, ok := p.pipelines[key]; ok {
		return rp, nil
	}

	cull := wgpu.CullModeNone
	if key.culling {
		cull = wgpu.CullModeBack
	}
	var depthStencil *wgpu.DepthStencilState
	if hasDepth {
		compare := wgpu.CompareFunctionLess
		if !key.depthTest {
			compare = wgpu.CompareFunctionAlways
		}
		depthStencil = &wgpu.DepthStencilState{
			Format:            b.depthFormat(hasStencil),
			DepthWriteEnabled: key.depthWrite,
			DepthCompare:      compare,
			StencilFront: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
			StencilBack: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
		}
	}

	vertexEntry := p.desc.VertexEntry
	if vertexEntry == "" {
		vertexEntry = "vs_main"
	}
	fragmentEntry := p.desc.FragmentEntry
	if fragmentEntry == "" {
		fragmentEntry = "fs_main"
	}
	rp, err := b.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  p.desc.Name + " Render Pipeline",
		Layout: p.layout,
		Vertex: wgpu.VertexState{
			Module:     p.vs,
			EntryPoint: vertexEntry,
			Buffers:    buffers,
		},
		Fragment: &wgpu.FragmentState{
			Module:     p.fs,
			EntryPoint: fragmentEntry,
			Targets: []wgpu.ColorTargetState{{
				Format:    format,
				Blend:     blendState(key.alpha),
				WriteMask: wgpu.ColorWriteMaskAll,
			}},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  cull,
		},
		Multisample: wgpu.MultisampleState{
			Count: samples,
			Mask:  0xFFFFFFFF,
		},
		DepthStencil: depthStencil,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create render pipeline for %q: %w", p.desc.Name, err)
	}
	p.pipelines[key] = rp
	return rp, nil
}

func vertexFormat(floats int) wgpu.VertexFormat {
	switch floats {
	case 1:
		return wgpu.VertexFormatFloat32
	case 2:
		return wgpu.VertexFormatFloat32x2
	case 3:
		return wgpu.VertexFormatFloat32x3
	default:
		return wgpu.VertexFormatFloat32x4
	}
}

func blendState(mode AlphaMode) *wgpu.BlendState {
	component := func(op wgpu.BlendOperation, src, dst wgpu.BlendFactor) *wgpu.BlendState {
		c := wgpu.BlendComponent{Operation: op, SrcFactor: src, DstFactor: dst}
		return &wgpu.BlendState{Color: c, Alpha: wgpu.BlendComponent{
			Operation: wgpu.BlendOperationAdd,
			SrcFactor: wgpu.BlendFactorOne,
			DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
		}}
	}
	switch mode {
	case AlphaAdd:
		return component(wgpu.BlendOperationAdd, wgpu.BlendFactorSrcAlpha, wgpu.BlendFactorOne)
	case AlphaCombine:
		return component(wgpu.BlendOperationAdd, wgpu.BlendFactorSrcAlpha, wgpu.BlendFactorOneMinusSrcAlpha)
	case AlphaSubtract:
		return component(wgpu.BlendOperationReverseSubtract, wgpu.BlendFactorSrcAlpha, wgpu.BlendFactorOne)
	case AlphaMultiply:
		return component(wgpu.BlendOperationAdd, wgpu.BlendFactorDst, wgpu.BlendFactorZero)
	case AlphaMaximized:
		return component(wgpu.BlendOperationAdd, wgpu.BlendFactorSrcAlpha, wgpu.BlendFactorOneMinusSrc)
	case AlphaOneOne:
		return component(wgpu.BlendOperationAdd, wgpu.BlendFactorOne, wgpu.BlendFactorOne)
	case AlphaPremultiplied:
		return component(wgpu.BlendOperationAdd, wgpu.BlendFactorOne, wgpu.BlendFactorOneMinusSrcAlpha)
	case AlphaInterpolate:
		return component(wgpu.BlendOperationAdd, wgpu.BlendFactorConstant, wgpu.BlendFactorOneMinusConstant)
	default:
		return nil
	}
}
