package postprocess

import (
	"maps"
	"slices"

	"github.com/Carmen-Shannon/prism/common"
	"github.com/Carmen-Shannon/prism/engine/backend"
)

// DefaultVertex is the shared full-screen vertex source registered by RegisterShaders.
const DefaultVertex = "postprocess.vertex"

const (
	scaleUniform   = "scale"
	textureSampler = "textureSampler"
)

// Options configures a post-process pass.
type Options struct {
	Name string

	// Vertex defaults to DefaultVertex. Fragment is required.
	Vertex   string
	Fragment string

	// Uniforms and Samplers list the extra parameters of the fragment source. The "scale" uniform
	// and "textureSampler" sampler are always present and always first.
	Uniforms        []string
	Samplers        []string
	Defines         string
	IndexParameters map[string]int

	// RenderRatio scales the source (or canvas) size. Ignored when Width is set.
	RenderRatio float32

	// Width and Height fix the texture size in pixels; zero derives it from RenderRatio.
	Width  int
	Height int

	// SamplingMode defaults to bilinear, which rounds derived sizes up to a power of two.
	SamplingMode backend.SamplingMode
	TextureType  backend.TextureType

	// Reusable allocates two textures and alternates between them every activation.
	Reusable bool
	Samples  int

	AlphaMode      backend.AlphaMode
	AlphaConstants *backend.Color
	ClearColor     *backend.Color

	// PixelPerfect renders into the exact required sub-rectangle of a power-of-two texture and
	// compensates in the vertex shader through the scale ratio.
	PixelPerfect bool

	// BlockCompilation defers the effect request until UpdateEffect is called.
	BlockCompilation bool
}

// withDefaults returns a copy of o with empty fields filled in.
func (o Options) withDefaults() Options {
	if o.Vertex == "" {
		o.Vertex = DefaultVertex
	}
	if o.RenderRatio <= 0 {
		o.RenderRatio = 1
	}
	if o.Samples <= 0 {
		o.Samples = 1
	}
	o.Uniforms = slices.Clone(o.Uniforms)
	o.Samplers = slices.Clone(o.Samplers)
	o.IndexParameters = maps.Clone(o.IndexParameters)
	return o
}

// uniformNames returns "scale" followed by the pass uniforms without duplicates.
func uniformNames(extra []string) []string {
	return prepend(scaleUniform, extra)
}

// samplerNames returns "textureSampler" followed by the pass samplers without duplicates.
func samplerNames(extra []string) []string {
	return prepend(textureSampler, extra)
}

func prepend(first string, rest []string) []string {
	out := []string{first}
	for _, n := range rest {
		if n != first && !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	return out
}

// Serialize returns the persisted fields of the options.
func (o Options) Serialize() common.Document {
	doc := common.Document{
		"name":             o.Name,
		"vertex":           o.Vertex,
		"fragment":         o.Fragment,
		"uniforms":         stringsOrEmpty(o.Uniforms),
		"samplers":         stringsOrEmpty(o.Samplers),
		"defines":          o.Defines,
		"renderRatio":      float64(o.RenderRatio),
		"width":            int64(o.Width),
		"height":           int64(o.Height),
		"samplingMode":     o.SamplingMode.String(),
		"textureType":      o.TextureType.String(),
		"reusable":         o.Reusable,
		"samples":          int64(o.Samples),
		"alphaMode":        int64(o.AlphaMode),
		"pixelPerfect":     o.PixelPerfect,
		"blockCompilation": o.BlockCompilation,
	}
	if len(o.IndexParameters) > 0 {
		params := make(common.Document, len(o.IndexParameters))
		for k, v := range o.IndexParameters {
			params[k] = int64(v)
		}
		doc["indexParameters"] = params
	}
	if o.AlphaConstants != nil {
		doc["alphaConstants"] = colorFloats(*o.AlphaConstants)
	}
	if o.ClearColor != nil {
		doc["clearColor"] = colorFloats(*o.ClearColor)
	}
	return doc
}

// ParseOptions restores Options from a document produced by Serialize. Malformed fields keep
// their zero value.
//
// Parameters:
//   - doc: the serialized options
//
// Returns:
//   - Options: the restored options
func ParseOptions(doc common.Document) Options {
	o := Options{
		Name:             doc.StringOr("name", ""),
		Vertex:           doc.StringOr("vertex", DefaultVertex),
		Fragment:         doc.StringOr("fragment", ""),
		Defines:          doc.StringOr("defines", ""),
		RenderRatio:      float32(doc.FloatOr("renderRatio", 1)),
		Width:            doc.IntOr("width", 0),
		Height:           doc.IntOr("height", 0),
		SamplingMode:     backend.ParseSamplingMode(doc.StringOr("samplingMode", "")),
		TextureType:      backend.ParseTextureType(doc.StringOr("textureType", "")),
		Reusable:         doc.BoolOr("reusable", false),
		Samples:          doc.IntOr("samples", 1),
		AlphaMode:        backend.AlphaMode(doc.IntOr("alphaMode", 0)),
		PixelPerfect:     doc.BoolOr("pixelPerfect", false),
		BlockCompilation: doc.BoolOr("blockCompilation", false),
	}
	if v, err := doc.Strings("uniforms"); err == nil && len(v) > 0 {
		o.Uniforms = v
	}
	if v, err := doc.Strings("samplers"); err == nil && len(v) > 0 {
		o.Samplers = v
	}
	if params := doc.Sub("indexParameters"); len(params) > 0 {
		o.IndexParameters = make(map[string]int, len(params))
		for k := range params {
			o.IndexParameters[k] = params.IntOr(k, 0)
		}
	}
	if c, ok := parseColor(doc, "alphaConstants"); ok {
		o.AlphaConstants = &c
	}
	if c, ok := parseColor(doc, "clearColor"); ok {
		o.ClearColor = &c
	}
	return o
}

func stringsOrEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func colorFloats(c backend.Color) []float64 {
	return []float64{float64(c.R), float64(c.G), float64(c.B), float64(c.A)}
}

func parseColor(doc common.Document, key string) (backend.Color, bool) {
	v, err := doc.Floats(key)
	if err != nil || len(v) != 4 {
		return backend.Color{}, false
	}
	return backend.Color{R: v[0], G: v[1], B: v[2], A: v[3]}, true
}
