// Package procedural renders fragment shaders into render targets that materials can sample.
package procedural

import (
	"embed"
	"errors"
	"fmt"
	"log"
	"maps"
	"path"
	"slices"
	"strings"

	"github.com/Carmen-Shannon/prism/engine/backend"
	"github.com/Carmen-Shannon/prism/engine/effect"
	"github.com/Carmen-Shannon/prism/engine/resource"
	"github.com/Carmen-Shannon/prism/engine/texture"
)

//go:embed assets/*.wgsl
var assets embed.FS

// Shader sources registered by RegisterShaders.
const (
	Vertex          = "procedural.vertex"
	CheckerFragment = "checker.fragment"
)

// ErrMissingFragment is returned when a procedural texture is created without a fragment source.
var ErrMissingFragment = errors.New("procedural: fragment source is required")

// Host supplies the engine services a procedural texture renders through.
type Host interface {
	Backend() backend.Backend
	Textures() texture.Manager
	Effects() effect.Cache
	ClearColor() backend.Color
}

// Texture is a render target regenerated from a fragment shader at a configurable rate.
type Texture struct {
	host     Host
	name     string
	fragment string
	size     int
	mipmaps  bool
	enabled  bool
	disposed bool

	target resource.Handle
	effect *effect.Effect

	uniforms []string
	samplers []string
	floats   map[string]float32
	vectors  map[string][]float32
	textures map[string]resource.Handle

	refreshRate      int
	currentRefreshID int

	fallback     resource.Handle
	hasFallback  bool
	fallbackUsed bool

	onGenerated func()
}

// RegisterShaders adds the procedural vertex stage and the built-in generators to store.
//
// Parameters:
//   - store: the shader store backing the effect cache
//
// Returns:
//   - error: an error if an embedded asset could not be read
func RegisterShaders(store effect.ShaderStore) error {
	entries, err := assets.ReadDir("assets")
	if err != nil {
		return fmt.Errorf("failed to list procedural shaders: %w", err)
	}
	for _, entry := range entries {
		data, err := assets.ReadFile(path.Join("assets", entry.Name()))
		if err != nil {
			return fmt.Errorf("failed to read procedural shader %s: %w", entry.Name(), err)
		}
		store.Register(strings.TrimSuffix(entry.Name(), effect.SourceExtension), string(data))
	}
	return nil
}

// New allocates the render target of a procedural texture. The effect is requested lazily by
// IsReady.
//
// Parameters:
//   - host: the engine services
//   - name: the texture name
//   - size: the width and height in pixels
//   - fragment: the fragment source name
//   - options: variadic TextureBuilderOption functions
//
// Returns:
//   - *Texture: the texture, rendered at least once on its first refresh check
//   - error: ErrMissingFragment or an allocation error
func New(host Host, name string, size int, fragment string, options ...TextureBuilderOption) (*Texture, error) {
	if host == nil {
		panic("procedural: New requires a non-nil host")
	}
	if fragment == "" {
		return nil, ErrMissingFragment
	}
	t := &Texture{
		host:             host,
		name:             name,
		fragment:         fragment,
		size:             size,
		enabled:          true,
		floats:           make(map[string]float32),
		vectors:          make(map[string][]float32),
		textures:         make(map[string]resource.Handle),
		refreshRate:      1,
		currentRefreshID: -1,
	}
	for _, opt := range options {
		opt(t)
	}

	target, err := host.Textures().CreateRenderTarget(texture.Size{Width: size, Height: size}, texture.Options{
		Label:           name,
		GenerateMipMaps: t.mipmaps,
		SamplingMode:    backend.SamplingTrilinear,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to allocate procedural texture %s: %w", name, err)
	}
	t.target = target
	return t, nil
}

// Name returns the texture name.
func (t *Texture) Name() string { return t.name }

// Handle returns the render target materials sample: the generated texture, or the fallback after
// a compile failure.
func (t *Texture) Handle() resource.Handle { return t.target }

// FallbackUsed reports whether a compile failure replaced the generated texture.
func (t *Texture) FallbackUsed() bool { return t.fallbackUsed }

// Enabled reports whether the scene refreshes the texture.
func (t *Texture) Enabled() bool { return t.enabled }

// SetEnabled turns refreshing on or off.
func (t *Texture) SetEnabled(enabled bool) { t.enabled = enabled }

// RefreshRate returns how often the texture is regenerated: 0 renders once, 1 every frame, n
// every n frames.
func (t *Texture) RefreshRate() int { return t.refreshRate }

// SetRefreshRate changes the refresh rate and schedules a render on the next check.
func (t *Texture) SetRefreshRate(rate int) {
	t.refreshRate = rate
	t.ResetRefreshCounter()
}

// ResetRefreshCounter forces a render on the next check.
func (t *Texture) ResetRefreshCounter() { t.currentRefreshID = -1 }

// SetOnGenerated replaces the callback invoked after each render.
func (t *Texture) SetOnGenerated(fn func()) { t.onGenerated = fn }

// SetFloat sets a scalar uniform, declaring it on first use.
func (t *Texture) SetFloat(name string, v float32) *Texture {
	t.checkUniform(name)
	t.floats[name] = v
	return t
}

// SetVector sets a vector uniform (up to four floats), declaring it on first use.
func (t *Texture) SetVector(name string, v ...float32) *Texture {
	t.checkUniform(name)
	t.vectors[name] = slices.Clone(v)
	return t
}

// SetTexture samples a render target under the given sampler name. The texture is retained until
// it is replaced or the procedural texture is disposed.
func (t *Texture) SetTexture(name string, h resource.Handle) *Texture {
	if err := t.host.Textures().Retain(h); err != nil {
		log.Printf("[Procedural] %s: ignoring texture %s: %v", t.name, name, err)
		return t
	}
	if prev, ok := t.textures[name]; ok {
		t.release(prev)
	}
	if !slices.Contains(t.samplers, name) {
		t.samplers = append(t.samplers, name)
		t.invalidate()
	}
	t.textures[name] = h
	return t
}

func (t *Texture) checkUniform(name string) {
	if !slices.Contains(t.uniforms, name) {
		t.uniforms = append(t.uniforms, name)
		t.invalidate()
	}
}

// invalidate drops the current effect so the next readiness check requests one matching the
// declared uniforms and samplers.
func (t *Texture) invalidate() {
	if t.effect != nil {
		t.host.Effects().Release(t.effect)
		t.effect = nil
	}
}

// IsReady requests the effect if needed and reports whether it compiled. A texture that fell back
// is always ready.
//
// Returns:
//   - bool: true if the texture can be rendered or is served by its fallback
func (t *Texture) IsReady() bool {
	if t.fallbackUsed {
		return true
	}
	if t.effect == nil || t.effect.IsStale() {
		t.request()
	}
	return t.effect.IsReady()
}

func (t *Texture) request() {
	next := t.host.Effects().GetOrCreate(effect.Options{
		Vertex:     Vertex,
		Fragment:   t.fragment,
		Attributes: []string{"position"},
		Uniforms:   slices.Clone(t.uniforms),
		Samplers:   slices.Clone(t.samplers),
		OnError: func(_ *effect.Effect, err error) {
			t.useFallback(err)
		},
	})
	if t.effect != nil {
		t.host.Effects().Release(t.effect)
	}
	t.effect = next
}

// useFallback swaps the generated target for the shared fallback texture.
func (t *Texture) useFallback(err error) {
	if t.disposed || t.fallbackUsed {
		return
	}
	log.Printf("[Procedural] %s: effect failed, using fallback: %v", t.name, err)
	t.release(t.target)
	t.target = resource.Handle{}
	if t.hasFallback {
		if rerr := t.host.Textures().Retain(t.fallback); rerr == nil {
			t.target = t.fallback
		}
	}
	t.fallbackUsed = true
}

// ShouldRender advances the refresh counter and reports whether the texture renders this frame.
//
// Returns:
//   - bool: true if Render should run now
func (t *Texture) ShouldRender() bool {
	if !t.enabled || !t.IsReady() || t.target.IsZero() {
		return false
	}
	if t.fallbackUsed {
		return false
	}
	if t.currentRefreshID == -1 {
		t.currentRefreshID = 1
		return true
	}
	if t.refreshRate == t.currentRefreshID {
		t.currentRefreshID = 1
		return true
	}
	t.currentRefreshID++
	return false
}

// Render draws the fragment shader into the render target.
func (t *Texture) Render() {
	if t.effect == nil || !t.effect.IsReady() || t.fallbackUsed {
		return
	}
	b := t.host.Backend()
	prog := t.effect.Program()

	b.EnableEffect(prog)
	b.SetState(false)
	for _, name := range slices.Sorted(maps.Keys(t.textures)) {
		b.BindTexture(prog, name, t.host.Textures().BackendID(t.textures[name]))
	}
	for _, name := range slices.Sorted(maps.Keys(t.floats)) {
		b.SetUniform(prog, name, t.floats[name])
	}
	for _, name := range slices.Sorted(maps.Keys(t.vectors)) {
		b.SetUniform(prog, name, t.vectors[name]...)
	}

	id := t.host.Textures().BackendID(t.target)
	b.BindFramebuffer(id, nil)
	b.Clear(t.host.ClearColor(), true, true, true)
	b.Draw(backend.FullScreenQuad(prog))
	b.UnBindFramebuffer(id)

	if t.onGenerated != nil {
		t.onGenerated()
	}
}

// Resize reallocates the render target. Textures served by their fallback are left alone.
//
// Parameters:
//   - size: the new width and height in pixels
//
// Returns:
//   - error: an error if reallocation failed
func (t *Texture) Resize(size int) error {
	if t.fallbackUsed {
		return nil
	}
	if err := t.host.Textures().Resize(t.target, texture.Size{Width: size, Height: size}); err != nil {
		return fmt.Errorf("failed to resize procedural texture %s: %w", t.name, err)
	}
	t.size = size
	return nil
}

// Dispose releases the effect, the render target or the fallback reference, and every sampled
// texture.
func (t *Texture) Dispose() {
	if t.disposed {
		return
	}
	t.disposed = true
	if t.effect != nil {
		t.host.Effects().Release(t.effect)
		t.effect = nil
	}
	if !t.target.IsZero() {
		t.release(t.target)
		t.target = resource.Handle{}
	}
	for name, h := range t.textures {
		t.release(h)
		delete(t.textures, name)
	}
}

func (t *Texture) release(h resource.Handle) {
	if _, err := t.host.Textures().Release(h); err != nil {
		log.Printf("[Procedural] %s: failed to release texture %s: %v", t.name, h, err)
	}
}

// NewChecker creates a checkerboard generator rendered once.
//
// Parameters:
//   - host: the engine services
//   - name: the texture name
//   - size: the width and height in pixels
//   - tiles: the number of cells per side
//   - even: the color of even cells
//   - odd: the color of odd cells
//   - options: variadic TextureBuilderOption functions
//
// Returns:
//   - *Texture: the texture
//   - error: an allocation error
func NewChecker(host Host, name string, size int, tiles float32, even, odd [4]float32, options ...TextureBuilderOption) (*Texture, error) {
	t, err := New(host, name, size, CheckerFragment, append([]TextureBuilderOption{WithRefreshRate(0)}, options...)...)
	if err != nil {
		return nil, err
	}
	t.SetVector("tiles", tiles, tiles, 0, 0)
	t.SetVector("evenColor", even[:]...)
	t.SetVector("oddColor", odd[:]...)
	return t, nil
}
