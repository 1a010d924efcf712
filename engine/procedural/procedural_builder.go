package procedural

import "github.com/Carmen-Shannon/prism/engine/resource"

// TextureBuilderOption is a function that configures a procedural Texture during construction.
type TextureBuilderOption func(*Texture)

// WithRefreshRate is an option builder that sets how often the texture is regenerated.
//
// Parameters:
//   - rate: 0 renders once, 1 every frame, n every n frames
//
// Returns:
//   - TextureBuilderOption: a function that applies the refresh rate to a texture
func WithRefreshRate(rate int) TextureBuilderOption {
	return func(t *Texture) {
		t.refreshRate = rate
	}
}

// WithFallback is an option builder that names the texture served when the effect fails to
// compile. The fallback gains a reference only once it is in use.
//
// Parameters:
//   - h: a live render target
//
// Returns:
//   - TextureBuilderOption: a function that applies the fallback to a texture
func WithFallback(h resource.Handle) TextureBuilderOption {
	return func(t *Texture) {
		t.fallback = h
		t.hasFallback = true
	}
}

// WithMipMaps is an option builder that allocates the render target with a mip chain.
//
// Returns:
//   - TextureBuilderOption: a function that enables mipmaps on a texture
func WithMipMaps() TextureBuilderOption {
	return func(t *Texture) {
		t.mipmaps = true
	}
}
