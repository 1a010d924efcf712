package engine

import (
	"context"
	"fmt"
	"log"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/Carmen-Shannon/prism/engine/backend"
	"github.com/Carmen-Shannon/prism/engine/effect"
	"github.com/Carmen-Shannon/prism/engine/material"
	"github.com/Carmen-Shannon/prism/engine/postprocess"
	"github.com/Carmen-Shannon/prism/engine/procedural"
	"github.com/Carmen-Shannon/prism/engine/profiler"
	"github.com/Carmen-Shannon/prism/engine/scene"
	"github.com/Carmen-Shannon/prism/engine/texture"
	"github.com/Carmen-Shannon/prism/engine/window"
)

// engine implements the Engine interface.
// Rendering runs on the goroutine that called Run; the tick callback runs on its own goroutine.
type engine struct {
	tickRateChannel chan time.Duration // Channel for dynamic tick rate updates

	running bool
	wg      sync.WaitGroup

	quitChannel chan struct{}
	quitOnce    sync.Once // Ensures quitChannel is only closed once

	window   window.Window
	backend  backend.Backend
	textures texture.Manager
	effects  effect.Cache

	cacheOptions []effect.CacheBuilderOption
	shaderDir    string
	hotReload    bool
	stopWatch    context.CancelFunc

	profiler         *profiler.Profiler
	profilingEnabled bool

	engineTickRate time.Duration
	tickCallback   func(deltaTime float32)
	renderCallback func(deltaTime float32)

	mu     sync.RWMutex
	scenes map[int]scene.Scene

	renderFrameLimit time.Duration // minimum frame duration; 0 = uncapped
	lastRender       time.Time
	disposed         bool
}

// Engine owns the GPU services shared by every scene and drives the frame loop.
// It satisfies scene.Host, so scenes are created with scene.NewScene(name, engine).
type Engine interface {
	// Backend returns the graphics backend.
	Backend() backend.Backend

	// Textures returns the render target manager shared by all scenes.
	Textures() texture.Manager

	// Effects returns the effect cache shared by all scenes.
	Effects() effect.Cache

	// Window returns the window the engine presents to, or nil when running offscreen.
	Window() window.Window

	// Profiler returns the profiler fed by RenderFrame.
	Profiler() *profiler.Profiler

	// EnableProfiler enables performance profiling output to the log.
	EnableProfiler()

	// DisableProfiler disables performance profiling output.
	DisableProfiler()

	// SetTickRate sets the engine tick rate in frames per second.
	// The tick callback will be called at this rate for game logic updates.
	//
	// Parameters:
	//   - fps: target frames per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers the function called each engine tick.
	//
	// Parameters:
	//   - callback: function to call at the configured tick rate, receiving the delta time in seconds
	SetTickCallback(callback func(deltaTime float32))

	// SetRenderCallback registers the function called each frame before the scenes render.
	//
	// Parameters:
	//   - callback: function to call each render frame, receiving the delta time in seconds
	SetRenderCallback(callback func(deltaTime float32))

	// SetRenderFrameLimit sets an optional render frame rate cap in frames per second.
	// Pass 0 to uncap the render loop (default).
	//
	// Parameters:
	//   - fps: maximum render frames per second (0 = uncapped)
	SetRenderFrameLimit(fps float64)

	// AddScene registers a scene at the given z-index key, replacing any scene already there.
	// Scenes are rendered in ascending key order.
	//
	// Parameters:
	//   - key: the z-index determining render order (lower renders first)
	//   - s: the Scene to register
	AddScene(key int, s scene.Scene)

	// RemoveScene unregisters the scene at the given z-index key without disposing it.
	//
	// Parameters:
	//   - key: the z-index of the scene to remove
	//
	// Returns:
	//   - scene.Scene: the removed scene, or nil
	RemoveScene(key int) scene.Scene

	// Scene retrieves the scene registered at the given z-index key.
	// Returns nil if no scene exists at that key.
	Scene(key int) scene.Scene

	// Scenes returns a copy of all registered scenes keyed by z-index.
	Scenes() map[int]scene.Scene

	// RenderFrame renders one frame: BeginFrame, the render callback, every active scene in
	// key order, EndFrame.
	//
	// Parameters:
	//   - deltaTime: seconds since the previous frame
	//
	// Returns:
	//   - error: an error if the backend could not start the frame
	RenderFrame(deltaTime float32) error

	// Resize resizes the default framebuffer, updates camera aspect ratios and marks the first
	// post-process of every camera dirty.
	//
	// Parameters:
	//   - width: the new width in pixels
	//   - height: the new height in pixels
	Resize(width, height int)

	// Run renders until the window closes or Quit is called. With a window, the message loop
	// runs on the calling goroutine.
	Run()

	// Quit signals the engine loops to stop.
	// Safe to call multiple times; subsequent calls are no-ops.
	Quit()

	// Dispose stops the loops and releases every scene, effect, texture and the backend.
	Dispose()
}

var _ Engine = &engine{}
var _ scene.Host = &engine{}

// NewEngine creates an engine on backend b. The built-in material, post-process and procedural
// shaders are registered, then the shader directory is loaded on top when configured.
//
// Parameters:
//   - b: the graphics backend
//   - options: functional options for engine configuration
//
// Returns:
//   - Engine: the newly created engine
//   - error: an error if shaders could not be registered, loaded or watched
func NewEngine(b backend.Backend, options ...EngineBuilderOption) (Engine, error) {
	if b == nil {
		panic("engine: NewEngine requires a non-nil backend")
	}
	e := &engine{
		tickRateChannel: make(chan time.Duration, 1),
		quitChannel:     make(chan struct{}),
		scenes:          make(map[int]scene.Scene),
		backend:         b,
		engineTickRate:  time.Second / 60,
	}
	for _, opt := range options {
		opt(e)
	}
	if e.profiler == nil {
		e.profiler = profiler.NewProfiler()
	}

	e.textures = texture.NewManager(b)
	e.effects = effect.NewCache(b, e.cacheOptions...)
	if err := e.registerShaders(); err != nil {
		e.effects.Dispose()
		return nil, err
	}

	if e.window != nil {
		e.window.SetResizeCallback(e.Resize)
	}
	return e, nil
}

func (e *engine) registerShaders() error {
	store := e.effects.Store()
	for _, register := range []func(effect.ShaderStore) error{
		material.RegisterShaders,
		postprocess.RegisterShaders,
		procedural.RegisterShaders,
	} {
		if err := register(store); err != nil {
			return err
		}
	}
	if e.shaderDir == "" {
		return nil
	}
	if err := store.LoadDir(e.shaderDir); err != nil {
		return fmt.Errorf("failed to load shaders: %w", err)
	}
	if e.hotReload {
		ctx, cancel := context.WithCancel(context.Background())
		if err := store.Watch(ctx, e.shaderDir); err != nil {
			cancel()
			return err
		}
		e.stopWatch = cancel
		log.Printf("[Engine] watching %s for shader edits", e.shaderDir)
	}
	return nil
}

func (e *engine) Backend() backend.Backend { return e.backend }

func (e *engine) Textures() texture.Manager { return e.textures }

func (e *engine) Effects() effect.Cache { return e.effects }

func (e *engine) Window() window.Window { return e.window }

func (e *engine) Profiler() *profiler.Profiler { return e.profiler }

func (e *engine) RenderFrame(deltaTime float32) error {
	if err := e.backend.BeginFrame(); err != nil {
		return fmt.Errorf("failed to begin frame: %w", err)
	}
	if e.renderCallback != nil {
		e.renderCallback(deltaTime)
	}
	for _, s := range e.activeScenes() {
		s.Render()
	}
	e.backend.EndFrame()

	if e.profilingEnabled {
		e.profiler.Tick()
	}
	return nil
}

// activeScenes returns the active scenes in ascending key order.
func (e *engine) activeScenes() []scene.Scene {
	e.mu.RLock()
	defer e.mu.RUnlock()
	active := make([]scene.Scene, 0, len(e.scenes))
	for _, k := range slices.Sorted(maps.Keys(e.scenes)) {
		if s := e.scenes[k]; s.Active() {
			active = append(active, s)
		}
	}
	return active
}

func (e *engine) Resize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	e.backend.Resize(width, height)
	aspect := float32(width) / float32(height)
	for _, s := range e.Scenes() {
		for _, cam := range s.Cameras() {
			cam.SetAspect(aspect)
			if chain := cam.PostProcesses(); len(chain) > 0 {
				chain[0].MarkTextureDirty()
			}
		}
	}
}

func (e *engine) Run() {
	e.running = true
	e.lastRender = time.Now()
	e.wg.Add(2)
	go e.handleEngine()
	go e.handleQuit()

	if e.window != nil {
		e.window.SetUpdateCallback(func() {
			if !e.renderOnce() {
				e.window.Close()
			}
		})
		e.window.ProcessMessages()
		e.signalQuit()
	} else {
		for e.renderOnce() {
		}
	}
	e.wg.Wait()
}

// renderOnce renders one frame unless quit was signalled, then applies the frame limit.
// A panic inside the frame is logged and stops the engine.
func (e *engine) renderOnce() (ok bool) {
	select {
	case <-e.quitChannel:
		return false
	default:
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Engine] render recovered from panic: %v", r)
			e.signalQuit()
			ok = false
		}
	}()

	now := time.Now()
	dt := float32(now.Sub(e.lastRender).Seconds())
	e.lastRender = now

	if err := e.RenderFrame(dt); err != nil {
		log.Printf("[Engine] %v", err)
	}

	if e.renderFrameLimit > 0 {
		if remaining := e.renderFrameLimit - time.Since(now); remaining > 0 {
			time.Sleep(remaining)
		}
	}
	return true
}

// Quit signals all engine goroutines to stop.
// Safe to call multiple times; subsequent calls are no-ops due to sync.Once.
func (e *engine) Quit() {
	e.signalQuit()
}

// signalQuit closes the quit channel to signal all goroutines to exit.
func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		e.running = false
		close(e.quitChannel)
	})
}

// handleEngine runs the fixed-rate engine tick loop in its own goroutine.
// Fires the tick callback at the configured tick rate and listens for dynamic rate changes
// via tickRateChannel. Exits when the quit channel is closed.
func (e *engine) handleEngine() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.engineTickRate)
	defer ticker.Stop()

	lastTick := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now

			if e.tickCallback != nil {
				e.tickCallback(dt)
			}
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
			e.engineTickRate = newRate
		}
	}
}

// handleQuit blocks until the quit channel is closed, then decrements the WaitGroup.
func (e *engine) handleQuit() {
	defer e.wg.Done()
	<-e.quitChannel
}

func (e *engine) Dispose() {
	if e.disposed {
		return
	}
	e.disposed = true
	e.signalQuit()
	if e.stopWatch != nil {
		e.stopWatch()
	}

	e.mu.Lock()
	scenes := e.scenes
	e.scenes = make(map[int]scene.Scene)
	e.mu.Unlock()
	for _, k := range slices.Sorted(maps.Keys(scenes)) {
		scenes[k].Dispose()
	}

	e.effects.Dispose()
	e.textures.Dispose()
	e.backend.Release()
	if e.window != nil {
		if err := e.window.Close(); err != nil {
			log.Printf("[Engine] %v", err)
		}
	}
}

// EnableProfiler enables performance profiling output to the log.
func (e *engine) EnableProfiler() {
	e.profilingEnabled = true
}

// DisableProfiler disables performance profiling output.
func (e *engine) DisableProfiler() {
	e.profilingEnabled = false
}

// SetTickRate sets the engine tick rate in frames per second.
// If the engine is running, the change takes effect immediately.
func (e *engine) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60
	}
	newRate := time.Duration(float64(time.Second) / fps)

	if !e.running {
		e.engineTickRate = newRate
		return
	}
	// Replace a pending update rather than block.
	select {
	case e.tickRateChannel <- newRate:
	default:
		select {
		case <-e.tickRateChannel:
		default:
		}
		e.tickRateChannel <- newRate
	}
}

func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.tickCallback = callback
}

func (e *engine) SetRenderCallback(callback func(deltaTime float32)) {
	e.renderCallback = callback
}

func (e *engine) SetRenderFrameLimit(fps float64) {
	e.renderFrameLimit = frameDuration(fps)
}

func (e *engine) AddScene(key int, s scene.Scene) {
	e.mu.Lock()
	if prev, ok := e.scenes[key]; ok {
		e.profiler.Untrack(prev.Name() + ".")
	}
	e.scenes[key] = s
	e.mu.Unlock()
	e.track(s)
}

// track registers the scene's counters with the profiler under "<name>.".
func (e *engine) track(s scene.Scene) {
	c := s.Counters()
	prefix := s.Name() + "."
	e.profiler.Track(prefix+"frameTime", c.FrameTime)
	e.profiler.Track(prefix+"drawCalls", c.DrawCalls)
	e.profiler.Track(prefix+"activeMeshes", c.ActiveMeshes)
	e.profiler.Track(prefix+"notReady", c.NotReady)
}

func (e *engine) RemoveScene(key int) scene.Scene {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.scenes[key]
	if !ok {
		return nil
	}
	delete(e.scenes, key)
	e.profiler.Untrack(s.Name() + ".")
	return s
}

func (e *engine) Scene(key int) scene.Scene {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.scenes[key]
}

func (e *engine) Scenes() map[int]scene.Scene {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return maps.Clone(e.scenes)
}

func frameDuration(fps float64) time.Duration {
	if fps <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / fps)
}
