// Package config loads the engine configuration from TOML.
package config

import (
	"fmt"
	"log"
	"os"

	"github.com/Carmen-Shannon/prism/engine/backend"
	"github.com/Carmen-Shannon/prism/engine/effect"
	"github.com/Carmen-Shannon/prism/engine/scene"
	"github.com/pelletier/go-toml/v2"
)

// Config is the engine-wide configuration.
type Config struct {
	Window  WindowConfig `toml:"window"`
	Render  RenderConfig `toml:"render"`
	Shaders ShaderConfig `toml:"shaders"`
	Engine  EngineConfig `toml:"engine"`
}

// WindowConfig describes the main window.
type WindowConfig struct {
	Title  string `toml:"title"`
	Width  int    `toml:"width"`
	Height int    `toml:"height"`
}

// RenderConfig selects the backend and its framebuffer settings.
type RenderConfig struct {
	// Backend is "wgpu" or "headless".
	Backend string `toml:"backend"`
	VSync   bool   `toml:"vsync"`

	// MSAA is the sample count of the default framebuffer: 1 or 4.
	MSAA    int  `toml:"msaa"`
	Stencil bool `toml:"stencil"`

	// MaxTextureSize lowers the device texture limit when positive.
	MaxTextureSize int `toml:"max_texture_size"`

	// TransparentSort is "ascending" or "descending".
	TransparentSort string `toml:"transparent_sort"`

	// FrameLimit caps the render loop in frames per second; 0 is uncapped.
	FrameLimit float64 `toml:"frame_limit"`
}

// ShaderConfig controls where shader sources come from and how they compile.
type ShaderConfig struct {
	// Dir is loaded on top of the embedded shaders when set.
	Dir       string `toml:"dir"`
	HotReload bool   `toml:"hot_reload"`
	Workers   int    `toml:"workers"`
}

// EngineConfig controls the engine loops.
type EngineConfig struct {
	TickRate  float64 `toml:"tick_rate"`
	Profiling bool    `toml:"profiling"`
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return "config: invalid " + e.Field + ": " + e.Reason
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Window: WindowConfig{
			Title:  "prism",
			Width:  1280,
			Height: 720,
		},
		Render: RenderConfig{
			Backend:         backend.BackendTypeWGPU.String(),
			VSync:           true,
			MSAA:            int(backend.MSAAOff),
			TransparentSort: scene.SortAlphaIndexAscending.String(),
		},
		Shaders: ShaderConfig{
			Workers: 2,
		},
		Engine: EngineConfig{
			TickRate: 60,
		},
	}
}

// Load reads and validates the TOML file at path. Missing keys keep their default values.
//
// Parameters:
//   - path: the config file
//
// Returns:
//   - Config: the validated configuration
//   - error: an error if the file could not be read, decoded or validated
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and validates TOML. Missing keys keep their default values.
//
// Parameters:
//   - data: the TOML text
//
// Returns:
//   - Config: the validated configuration
//   - error: a decode or validation error
func Parse(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Encode writes the configuration as TOML.
func (c Config) Encode() ([]byte, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return data, nil
}

// Validate rejects values the engine cannot start with and clamps the ones it can adjust.
//
// Returns:
//   - error: a *ConfigError for the first invalid field
func (c *Config) Validate() error {
	if c.Window.Width <= 0 {
		return &ConfigError{Field: "window.width", Reason: "must be positive"}
	}
	if c.Window.Height <= 0 {
		return &ConfigError{Field: "window.height", Reason: "must be positive"}
	}
	if _, err := backend.ParseBackendType(c.Render.Backend); err != nil {
		return &ConfigError{Field: "render.backend", Reason: err.Error()}
	}
	switch c.Render.TransparentSort {
	case "", "ascending", "descending":
	default:
		return &ConfigError{Field: "render.transparent_sort", Reason: fmt.Sprintf("unknown mode %q", c.Render.TransparentSort)}
	}

	switch {
	case c.Render.MSAA >= int(backend.MSAA4x):
		if c.Render.MSAA != int(backend.MSAA4x) {
			log.Printf("[Config] msaa %d not supported, using %d", c.Render.MSAA, backend.MSAA4x)
		}
		c.Render.MSAA = int(backend.MSAA4x)
	default:
		if c.Render.MSAA != int(backend.MSAAOff) {
			log.Printf("[Config] msaa %d not supported, using %d", c.Render.MSAA, backend.MSAAOff)
		}
		c.Render.MSAA = int(backend.MSAAOff)
	}
	if c.Render.MaxTextureSize < 0 {
		c.Render.MaxTextureSize = 0
	}
	if c.Render.FrameLimit < 0 {
		c.Render.FrameLimit = 0
	}
	if c.Shaders.Workers < 1 {
		c.Shaders.Workers = 1
	}
	if c.Engine.TickRate <= 0 {
		c.Engine.TickRate = 60
	}
	if c.Shaders.HotReload && c.Shaders.Dir == "" {
		log.Printf("[Config] hot_reload needs shaders.dir, disabling")
		c.Shaders.HotReload = false
	}
	return nil
}

// BackendType returns the parsed backend type. Call after Validate.
func (c Config) BackendType() backend.BackendType {
	t, _ := backend.ParseBackendType(c.Render.Backend)
	return t
}

// SortMode returns the transparent sort mode.
func (c Config) SortMode() scene.SortMode {
	return scene.ParseSortMode(c.Render.TransparentSort)
}

// BackendOptions converts the render settings into backend builder options.
//
// Returns:
//   - []backend.BackendBuilderOption: size, present mode, MSAA, stencil and texture limits
func (c Config) BackendOptions() []backend.BackendBuilderOption {
	present := backend.PresentModeVSync
	if !c.Render.VSync {
		present = backend.PresentModeUncapped
	}
	opts := []backend.BackendBuilderOption{
		backend.WithSize(c.Window.Width, c.Window.Height),
		backend.WithPresentMode(present),
		backend.WithMSAA(backend.MSAASampleCount(c.Render.MSAA)),
		backend.WithStencil(c.Render.Stencil),
	}
	if c.Render.MaxTextureSize > 0 {
		opts = append(opts, backend.WithCaps(backend.Caps{
			MaxTextureSize:     c.Render.MaxTextureSize,
			MaxCubeTextureSize: c.Render.MaxTextureSize,
		}))
	}
	return opts
}

// CacheOptions converts the shader settings into effect cache builder options.
func (c Config) CacheOptions() []effect.CacheBuilderOption {
	return []effect.CacheBuilderOption{effect.WithWorkers(c.Shaders.Workers)}
}
