// Package texture owns the engine's off-screen render targets. Every render target lives in a
// reference-counted registry slot; consumers hold handles and the Manager alone decides when the
// backend texture is freed.
package texture

import (
	"errors"
	"fmt"
	"log"

	"github.com/Carmen-Shannon/prism/common"
	"github.com/Carmen-Shannon/prism/engine/backend"
	"github.com/Carmen-Shannon/prism/engine/resource"
)

// ErrInvalidSize is returned when a render target is requested with a non-positive dimension.
var ErrInvalidSize = errors.New("texture: invalid size")

// Size is a render target size in pixels.
type Size struct {
	Width  int
	Height int
}

// Options enumerates the allocation flags of a render target.
type Options struct {
	Label                 string
	GenerateMipMaps       bool
	GenerateDepthBuffer   bool
	GenerateStencilBuffer bool
	SamplingMode          backend.SamplingMode
	Type                  backend.TextureType
	IsCube                bool
	Samples               int
}

// Serialize returns the persisted fields of the options.
func (o Options) Serialize() common.Document {
	return common.Document{
		"label":                 o.Label,
		"generateMipMaps":       o.GenerateMipMaps,
		"generateDepthBuffer":   o.GenerateDepthBuffer,
		"generateStencilBuffer": o.GenerateStencilBuffer,
		"samplingMode":          o.SamplingMode.String(),
		"textureType":           o.Type.String(),
		"isCube":                o.IsCube,
		"samples":               int64(o.Samples),
	}
}

// ParseOptions restores Options from a document produced by Serialize.
//
// Parameters:
//   - doc: the serialized options
//
// Returns:
//   - Options: the restored options
func ParseOptions(doc common.Document) Options {
	return Options{
		Label:                 doc.StringOr("label", ""),
		GenerateMipMaps:       doc.BoolOr("generateMipMaps", false),
		GenerateDepthBuffer:   doc.BoolOr("generateDepthBuffer", false),
		GenerateStencilBuffer: doc.BoolOr("generateStencilBuffer", false),
		SamplingMode:          backend.ParseSamplingMode(doc.StringOr("samplingMode", "")),
		Type:                  backend.ParseTextureType(doc.StringOr("textureType", "")),
		IsCube:                doc.BoolOr("isCube", false),
		Samples:               doc.IntOr("samples", 0),
	}
}

// RenderTarget is the manager's record of one allocated render target.
type RenderTarget struct {
	Options
	ID     backend.TextureID
	Width  int
	Height int
}

// SizeFor applies the sizing policy to one requested dimension. When sampling is not nearest and
// the dimension was not given explicitly, it is rounded up to a power of two. The result is
// always clamped to maxSize.
//
// Parameters:
//   - requested: the requested dimension in pixels
//   - explicit: whether the caller fixed this dimension
//   - sampling: the sampling mode of the target
//   - maxSize: the backend's maximum texture size; <= 0 disables clamping
//
// Returns:
//   - int: the dimension to allocate
//   - bool: true if the value was clamped to maxSize
func SizeFor(requested int, explicit bool, sampling backend.SamplingMode, maxSize int) (int, bool) {
	size := requested
	if sampling != backend.SamplingNearest && !explicit {
		size = common.GetExponentOfTwo(requested, 0)
	}
	if maxSize > 0 && size > maxSize {
		return maxSize, true
	}
	return size, false
}

// Manager creates, resizes and releases render targets through the backend.
type Manager interface {
	// CreateRenderTarget allocates a 2D render target with exactly the given size.
	//
	// Parameters:
	//   - size: the size in pixels; clamped to the backend's max texture size
	//   - opts: the allocation flags
	//
	// Returns:
	//   - resource.Handle: the handle with a reference count of one
	//   - error: ErrInvalidSize or a backend error
	CreateRenderTarget(size Size, opts Options) (resource.Handle, error)

	// CreateRenderTargetCube allocates a six-face cube render target.
	//
	// Parameters:
	//   - size: the face size in pixels
	//   - opts: the allocation flags; IsCube is forced on
	//
	// Returns:
	//   - resource.Handle: the handle with a reference count of one
	//   - error: ErrInvalidSize or a backend error
	CreateRenderTargetCube(size int, opts Options) (resource.Handle, error)

	// Resize reallocates a render target at a new size. Identical sizes are a no-op; otherwise the
	// previous backend texture is released before the new one is allocated.
	//
	// Parameters:
	//   - h: the render target
	//   - size: the new size
	//
	// Returns:
	//   - error: an error if the handle is stale or allocation failed
	Resize(h resource.Handle, size Size) error

	// Retain adds a reference to a render target shared by another consumer.
	Retain(h resource.Handle) error

	// Release drops a reference; the backend texture is freed when the count reaches zero.
	//
	// Parameters:
	//   - h: the render target
	//
	// Returns:
	//   - bool: true if this call freed the backend texture
	//   - error: an error if the handle is stale
	Release(h resource.Handle) (bool, error)

	// Get returns the record of a live render target.
	Get(h resource.Handle) (RenderTarget, error)

	// BackendID returns the backend texture of a live render target, or zero.
	BackendID(h resource.Handle) backend.TextureID

	// RefCount returns the reference count of a render target.
	RefCount(h resource.Handle) int

	// UpdateSampleCount changes the MSAA sample count of a render target.
	//
	// Parameters:
	//   - h: the render target
	//   - samples: the requested sample count
	//
	// Returns:
	//   - int: the applied sample count
	//   - error: an error if the handle is stale
	UpdateSampleCount(h resource.Handle, samples int) (int, error)

	// GenerateCubeMipMaps fills the mip chain of a cube render target.
	GenerateCubeMipMaps(h resource.Handle) error

	// MaxTextureSize returns the effective size limit.
	MaxTextureSize() int

	// Allocations returns the total number of backend textures created.
	Allocations() int

	// Live returns the number of live render targets.
	Live() int

	// Dispose frees every live render target regardless of reference counts.
	Dispose()
}

type managerImpl struct {
	backend     backend.Backend
	targets     *resource.Registry[RenderTarget]
	maxSize     int
	allocations int
}

var _ Manager = &managerImpl{}

// NewManager creates a Manager allocating through b.
//
// Parameters:
//   - b: the graphics backend
//   - options: variadic ManagerBuilderOption functions
//
// Returns:
//   - Manager: the manager
func NewManager(b backend.Backend, options ...ManagerBuilderOption) Manager {
	if b == nil {
		panic("texture: NewManager requires a non-nil Backend")
	}
	m := &managerImpl{
		backend: b,
		targets: resource.NewRegistry[RenderTarget](),
		maxSize: b.Caps().MaxTextureSize,
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

func (m *managerImpl) clamp(size Size, label string) Size {
	if m.maxSize <= 0 {
		return size
	}
	clamped := Size{Width: min(size.Width, m.maxSize), Height: min(size.Height, m.maxSize)}
	if clamped != size {
		log.Printf("[Textures] %q clamped from %dx%d to %dx%d", label, size.Width, size.Height, clamped.Width, clamped.Height)
	}
	return clamped
}

func (m *managerImpl) allocate(size Size, opts Options) (backend.TextureID, error) {
	desc := backend.TextureDescriptor{
		Label:                 opts.Label,
		Width:                 size.Width,
		Height:                size.Height,
		GenerateMipMaps:       opts.GenerateMipMaps,
		GenerateDepthBuffer:   opts.GenerateDepthBuffer,
		GenerateStencilBuffer: opts.GenerateStencilBuffer,
		SamplingMode:          opts.SamplingMode,
		Type:                  opts.Type,
		IsCube:                opts.IsCube,
		Samples:               opts.Samples,
	}
	var (
		id  backend.TextureID
		err error
	)
	if opts.IsCube {
		id, err = m.backend.CreateRenderTargetCubeTexture(desc)
	} else {
		id, err = m.backend.CreateRenderTargetTexture(desc)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to allocate render target %q: %w", opts.Label, err)
	}
	m.allocations++
	return id, nil
}

func (m *managerImpl) CreateRenderTarget(size Size, opts Options) (resource.Handle, error) {
	if size.Width <= 0 || size.Height <= 0 {
		return resource.Handle{}, fmt.Errorf("%w: %dx%d", ErrInvalidSize, size.Width, size.Height)
	}
	opts.IsCube = false
	size = m.clamp(size, opts.Label)
	id, err := m.allocate(size, opts)
	if err != nil {
		return resource.Handle{}, err
	}
	return m.targets.Insert(RenderTarget{Options: opts, ID: id, Width: size.Width, Height: size.Height}), nil
}

func (m *managerImpl) CreateRenderTargetCube(size int, opts Options) (resource.Handle, error) {
	if size <= 0 {
		return resource.Handle{}, fmt.Errorf("%w: cube %d", ErrInvalidSize, size)
	}
	opts.IsCube = true
	if limit := m.backend.Caps().MaxCubeTextureSize; limit > 0 && size > limit {
		log.Printf("[Textures] cube %q clamped from %d to %d", opts.Label, size, limit)
		size = limit
	}
	id, err := m.allocate(Size{Width: size, Height: size}, opts)
	if err != nil {
		return resource.Handle{}, err
	}
	return m.targets.Insert(RenderTarget{Options: opts, ID: id, Width: size, Height: size}), nil
}

func (m *managerImpl) Resize(h resource.Handle, size Size) error {
	rt, err := m.targets.Get(h)
	if err != nil {
		return err
	}
	if size.Width <= 0 || size.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidSize, size.Width, size.Height)
	}
	if rt.IsCube {
		size.Height = size.Width
	} else {
		size = m.clamp(size, rt.Label)
	}
	if size.Width == rt.Width && size.Height == rt.Height {
		return nil
	}

	m.backend.ReleaseTexture(rt.ID)
	rt.ID = 0
	id, err := m.allocate(size, rt.Options)
	if err != nil {
		_ = m.targets.Set(h, rt)
		return err
	}
	rt.ID, rt.Width, rt.Height = id, size.Width, size.Height
	return m.targets.Set(h, rt)
}

func (m *managerImpl) Retain(h resource.Handle) error {
	return m.targets.Retain(h)
}

func (m *managerImpl) Release(h resource.Handle) (bool, error) {
	rt, removed, err := m.targets.Release(h)
	if err != nil || !removed {
		return false, err
	}
	if rt.ID != 0 {
		m.backend.ReleaseTexture(rt.ID)
	}
	return true, nil
}

func (m *managerImpl) Get(h resource.Handle) (RenderTarget, error) {
	return m.targets.Get(h)
}

func (m *managerImpl) BackendID(h resource.Handle) backend.TextureID {
	rt, err := m.targets.Get(h)
	if err != nil {
		return 0
	}
	return rt.ID
}

func (m *managerImpl) RefCount(h resource.Handle) int {
	return m.targets.RefCount(h)
}

func (m *managerImpl) UpdateSampleCount(h resource.Handle, samples int) (int, error) {
	rt, err := m.targets.Get(h)
	if err != nil {
		return 0, err
	}
	if rt.Samples == samples {
		return samples, nil
	}
	applied := m.backend.UpdateRenderTargetTextureSampleCount(rt.ID, samples)
	rt.Samples = applied
	return applied, m.targets.Set(h, rt)
}

func (m *managerImpl) GenerateCubeMipMaps(h resource.Handle) error {
	rt, err := m.targets.Get(h)
	if err != nil {
		return err
	}
	if !rt.IsCube {
		return fmt.Errorf("texture: %q is not a cube render target", rt.Label)
	}
	m.backend.GenerateMipMapsForCubemap(rt.ID)
	return nil
}

func (m *managerImpl) MaxTextureSize() int {
	return m.maxSize
}

func (m *managerImpl) Allocations() int {
	return m.allocations
}

func (m *managerImpl) Live() int {
	return m.targets.Len()
}

func (m *managerImpl) Dispose() {
	var handles []resource.Handle
	m.targets.Each(func(h resource.Handle, rt RenderTarget) {
		handles = append(handles, h)
	})
	for _, h := range handles {
		for {
			removed, err := m.Release(h)
			if err != nil || removed {
				break
			}
		}
	}
}
