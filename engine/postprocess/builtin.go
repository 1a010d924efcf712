package postprocess

import (
	"embed"
	"fmt"
	"path"
	"strings"

	"github.com/Carmen-Shannon/prism/engine/camera"
	"github.com/Carmen-Shannon/prism/engine/effect"
)

//go:embed assets/*.wgsl
var assets embed.FS

// Fragment sources registered by RegisterShaders.
const (
	PassFragment          = "pass.fragment"
	BlackAndWhiteFragment = "blackAndWhite.fragment"
	BlendFragment         = "blend.fragment"
)

// RegisterShaders adds the built-in post-process sources to store.
//
// Parameters:
//   - store: the shader store backing the effect cache
//
// Returns:
//   - error: an error if an embedded asset could not be read
func RegisterShaders(store effect.ShaderStore) error {
	entries, err := assets.ReadDir("assets")
	if err != nil {
		return fmt.Errorf("failed to list post-process shaders: %w", err)
	}
	for _, entry := range entries {
		data, err := assets.ReadFile(path.Join("assets", entry.Name()))
		if err != nil {
			return fmt.Errorf("failed to read post-process shader %s: %w", entry.Name(), err)
		}
		store.Register(strings.TrimSuffix(entry.Name(), effect.SourceExtension), string(data))
	}
	return nil
}

// NewPassPostProcess creates a pass that copies its input unchanged, typically to resample the
// scene at a different render ratio.
//
// Parameters:
//   - host: the engine services
//   - name: the pass name
//   - ratio: the render ratio
//   - cam: the camera to attach to; may be nil
//
// Returns:
//   - PostProcess: the pass
//   - error: an error if the pass could not be created
func NewPassPostProcess(host Host, name string, ratio float32, cam camera.Camera) (PostProcess, error) {
	return New(host, Options{Name: name, Fragment: PassFragment, RenderRatio: ratio}, cam)
}

// BlackAndWhitePostProcess desaturates its input. A degree below one blends with the original
// color, selected through the PARTIAL define.
type BlackAndWhitePostProcess struct {
	PostProcess
	degree float32
}

// NewBlackAndWhitePostProcess creates a full desaturation pass.
//
// Parameters:
//   - host: the engine services
//   - name: the pass name
//   - ratio: the render ratio
//   - cam: the camera to attach to; may be nil
//
// Returns:
//   - *BlackAndWhitePostProcess: the pass
//   - error: an error if the pass could not be created
func NewBlackAndWhitePostProcess(host Host, name string, ratio float32, cam camera.Camera) (*BlackAndWhitePostProcess, error) {
	pp, err := New(host, Options{
		Name:        name,
		Fragment:    BlackAndWhiteFragment,
		Uniforms:    []string{"degree"},
		RenderRatio: ratio,
	}, cam)
	if err != nil {
		return nil, err
	}
	bw := &BlackAndWhitePostProcess{PostProcess: pp, degree: 1}
	pp.SetOnApply(func(e *effect.Effect) {
		host.Backend().SetUniform(e.Program(), "degree", bw.degree)
	})
	return bw, nil
}

// Degree returns the desaturation amount in [0, 1].
func (bw *BlackAndWhitePostProcess) Degree() float32 { return bw.degree }

// SetDegree changes the desaturation amount, requesting a new effect when it crosses between
// full and partial.
//
// Parameters:
//   - degree: the amount, clamped to [0, 1]
func (bw *BlackAndWhitePostProcess) SetDegree(degree float32) {
	degree = min(max(degree, 0), 1)
	wasPartial := bw.degree < 1
	bw.degree = degree
	if partial := degree < 1; partial != wasPartial {
		defines := ""
		if partial {
			defines = "#define PARTIAL"
		}
		bw.UpdateEffect(defines, nil, nil, nil)
	}
}

// NewBlendPostProcess creates a pass mixing its input with the output of other.
//
// Parameters:
//   - host: the engine services
//   - name: the pass name
//   - other: the pass whose output is blended in
//   - factor: the weight of other in [0, 1]
//   - cam: the camera to attach to; may be nil
//
// Returns:
//   - PostProcess: the pass
//   - error: an error if the pass could not be created
func NewBlendPostProcess(host Host, name string, other PostProcess, factor float32, cam camera.Camera) (PostProcess, error) {
	return newBlend(host, name, other, "", func(e *effect.Effect) {
		host.Backend().SetUniform(e.Program(), "blendFactor", factor)
	}, cam)
}

// NewAnaglyphPostProcess creates a pass taking red from left and green and blue from its input.
//
// Parameters:
//   - host: the engine services
//   - name: the pass name
//   - left: the pass rendering the left eye
//   - cam: the camera rendering the right eye; may be nil
//
// Returns:
//   - PostProcess: the pass
//   - error: an error if the pass could not be created
func NewAnaglyphPostProcess(host Host, name string, left PostProcess, cam camera.Camera) (PostProcess, error) {
	return newBlend(host, name, left, "#define ANAGLYPH", nil, cam)
}

func newBlend(host Host, name string, other PostProcess, defines string, params func(*effect.Effect), cam camera.Camera) (PostProcess, error) {
	if other == nil {
		panic("postprocess: blend requires a non-nil source pass")
	}
	pp, err := New(host, Options{
		Name:     name,
		Fragment: BlendFragment,
		Uniforms: []string{"blendFactor"},
		Samplers: []string{"otherSampler"},
		Defines:  defines,
	}, cam)
	if err != nil {
		return nil, err
	}
	pp.SetOnApply(func(e *effect.Effect) {
		host.Backend().BindTexture(e.Program(), "otherSampler", host.Textures().BackendID(other.OutputTexture()))
		if params != nil {
			params(e)
		}
	})
	return pp, nil
}
