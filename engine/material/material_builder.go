package material

// MaterialBuilderOption is a function that configures a ShaderMaterial during construction.
type MaterialBuilderOption func(*ShaderMaterial)

// WithAlpha is an option builder that sets the opacity of the material.
//
// Parameters:
//   - alpha: the opacity; below one the material is alpha blended
//
// Returns:
//   - MaterialBuilderOption: a function that applies the alpha option to a material
func WithAlpha(alpha float32) MaterialBuilderOption {
	return func(m *ShaderMaterial) {
		m.alpha = alpha
	}
}

// WithAlphaTest is an option builder that enables alpha-tested rendering.
//
// Parameters:
//   - enabled: true to discard fragments below the cutoff
//   - cutoff: the alpha threshold
//
// Returns:
//   - MaterialBuilderOption: a function that applies the alpha test option to a material
func WithAlphaTest(enabled bool, cutoff float32) MaterialBuilderOption {
	return func(m *ShaderMaterial) {
		m.alphaTest = enabled
		m.alphaCutoff = cutoff
	}
}

// WithBackFaceCulling is an option builder that sets whether back faces are culled.
//
// Parameters:
//   - cull: true to cull back faces
//
// Returns:
//   - MaterialBuilderOption: a function that applies the culling option to a material
func WithBackFaceCulling(cull bool) MaterialBuilderOption {
	return func(m *ShaderMaterial) {
		m.backFaceCulling = cull
	}
}

// WithUniforms is an option builder that declares uniforms in order after world and viewProjection.
//
// Parameters:
//   - names: the uniform names
//
// Returns:
//   - MaterialBuilderOption: a function that declares the uniforms on a material
func WithUniforms(names ...string) MaterialBuilderOption {
	return func(m *ShaderMaterial) {
		for _, n := range names {
			m.declareUniform(n)
		}
	}
}

// WithDefines is an option builder that enables feature defines.
//
// Parameters:
//   - names: the define names
//
// Returns:
//   - MaterialBuilderOption: a function that applies the defines to a material
func WithDefines(names ...string) MaterialBuilderOption {
	return func(m *ShaderMaterial) {
		for _, n := range names {
			m.SetDefine(n, true)
		}
	}
}

// WithFrozen is an option builder that freezes the material from construction.
//
// Returns:
//   - MaterialBuilderOption: a function that freezes a material
func WithFrozen() MaterialBuilderOption {
	return func(m *ShaderMaterial) {
		m.frozen = true
	}
}

// WithCheckReadyOnEveryCall is an option builder that bypasses the render id readiness cache.
//
// Returns:
//   - MaterialBuilderOption: a function that applies the option to a material
func WithCheckReadyOnEveryCall() MaterialBuilderOption {
	return func(m *ShaderMaterial) {
		m.checkEveryCall = true
	}
}
