// Command prism opens a window and renders a demo scene: lit boxes, a glass pane, a procedural
// checker ground and a post-process chain.
package main

import (
	"flag"
	"log"
	"math"

	"github.com/Carmen-Shannon/prism/engine"
	"github.com/Carmen-Shannon/prism/engine/backend"
	"github.com/Carmen-Shannon/prism/engine/camera"
	"github.com/Carmen-Shannon/prism/engine/config"
	"github.com/Carmen-Shannon/prism/engine/light"
	"github.com/Carmen-Shannon/prism/engine/material"
	"github.com/Carmen-Shannon/prism/engine/mesh"
	"github.com/Carmen-Shannon/prism/engine/postprocess"
	"github.com/Carmen-Shannon/prism/engine/procedural"
	"github.com/Carmen-Shannon/prism/engine/scene"
	"github.com/Carmen-Shannon/prism/engine/window"
	"github.com/go-gl/mathgl/mgl32"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	frames := flag.Int("frames", 0, "headless backend only: number of frames to render before exiting")
	flag.Parse()

	cfg := config.DefaultConfig()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("[Prism] %v", err)
		}
		cfg = loaded
	}

	// ── Window + Backend ────────────────────────────────────────────────
	var win window.Window
	backendOpts := cfg.BackendOptions()
	if cfg.BackendType() == backend.BackendTypeWGPU {
		w, err := window.NewWindow(
			window.WithTitle(cfg.Window.Title),
			window.WithSize(cfg.Window.Width, cfg.Window.Height),
		)
		if err != nil {
			log.Fatalf("[Prism] %v", err)
		}
		win = w
		backendOpts = append(backendOpts,
			backend.WithSize(w.Width(), w.Height()),
			backend.WithSurfaceDescriptor(w.SurfaceDescriptor()),
		)
	}
	b, err := backend.NewBackend(cfg.BackendType(), backendOpts...)
	if err != nil {
		log.Fatalf("[Prism] %v", err)
	}

	// ── Engine ──────────────────────────────────────────────────────────
	engineOpts := []engine.EngineBuilderOption{
		engine.WithProfiling(cfg.Engine.Profiling),
		engine.WithTickRate(cfg.Engine.TickRate),
		engine.WithRenderFrameLimit(cfg.Render.FrameLimit),
		engine.WithEffectCacheOptions(cfg.CacheOptions()...),
	}
	if win != nil {
		engineOpts = append(engineOpts, engine.WithWindow(win))
	}
	if cfg.Shaders.Dir != "" {
		engineOpts = append(engineOpts, engine.WithShaderDir(cfg.Shaders.Dir, cfg.Shaders.HotReload))
	}
	eng, err := engine.NewEngine(b, engineOpts...)
	if err != nil {
		log.Fatalf("[Prism] %v", err)
	}
	defer eng.Dispose()

	// ── Scene ───────────────────────────────────────────────────────────
	orbit := camera.NewOrbitController(mgl32.Vec3{0, 1, 0}, 14)
	cam := camera.NewCamera("main",
		camera.WithFov(float32(45.0*math.Pi/180.0)),
		camera.WithAspect(float32(b.RenderWidth())/float32(b.RenderHeight())),
		camera.WithClipPlanes(0.1, 500),
		camera.WithController(orbit),
	)
	if win != nil {
		window.NewOrbitInput(orbit, 4).Attach(win)
	}

	sun := light.NewLight("sun", light.LightTypeDirectional,
		light.WithDirection(mgl32.Vec3{-0.4, -1, -0.3}),
		light.WithIntensity(2.5),
		light.WithCastsShadows(true),
		light.WithShadowSettings(light.ShadowSettings{OrthoScale: 0.1, AutoUpdateExtends: true}),
	)

	s := scene.NewScene("main", eng,
		scene.WithCameras(cam),
		scene.WithLights(sun),
		scene.WithTransparentSort(cfg.SortMode()),
	)

	checker, err := procedural.NewChecker(s, "ground-checker", 512, 16,
		[4]float32{0.85, 0.85, 0.85, 1}, [4]float32{0.25, 0.25, 0.3, 1})
	if err != nil {
		log.Fatalf("[Prism] %v", err)
	}
	s.AddProceduralTexture(checker)

	meshes := []mesh.Mesh{
		mesh.NewMesh("ground", mesh.Ground(40, 40),
			mesh.WithMaterial(material.NewStandardMaterial(s, "ground", material.WithDiffuseTexture(checker.Handle())))),
		mesh.NewMesh("crate", mesh.Box(2),
			mesh.WithPosition(-3, 1, 0),
			mesh.WithCastsShadows(true),
			mesh.WithMaterial(material.NewStandardMaterial(s, "crate", material.WithBaseColor([4]float32{0.8, 0.5, 0.2, 1})))),
		mesh.NewMesh("rainbow", mesh.ColoredBox(2),
			mesh.WithPosition(3, 1, 0),
			mesh.WithRotation(0, 0.6, 0),
			mesh.WithCastsShadows(true),
			mesh.WithMaterial(material.NewStandardMaterial(s, "rainbow", material.WithMetallic(0.2), material.WithRoughness(0.4)))),
		mesh.NewMesh("glass", mesh.Box(1),
			mesh.WithPosition(0, 1.5, 3),
			mesh.WithScale(4, 3, 0.1),
			mesh.WithMaterial(material.NewStandardMaterial(s, "glass", material.WithAlpha(0.35)))),
	}
	// the bright marker the light shafts radiate from, placed against the sun direction
	sunMarker := mesh.NewMesh("sun-marker", mesh.Box(1.5),
		mesh.WithPosition(8, 20, 6),
		mesh.WithMaterial(material.NewStandardMaterial(s, "sun-marker", material.WithBaseColor([4]float32{1, 0.95, 0.8, 1}))))
	meshes = append(meshes, sunMarker)
	for _, m := range meshes {
		if err := s.AddMesh(m); err != nil {
			log.Fatalf("[Prism] %v", err)
		}
	}

	// ── Post-process chain: scene -> pass -> black & white -> blend back over the pass -> light shafts ──
	pass, err := postprocess.NewPassPostProcess(s, "pass", 1, cam)
	if err != nil {
		log.Fatalf("[Prism] %v", err)
	}
	bw, err := postprocess.NewBlackAndWhitePostProcess(s, "bw", 1, cam)
	if err != nil {
		log.Fatalf("[Prism] %v", err)
	}
	bw.SetDegree(0.6)
	if _, err := postprocess.NewBlendPostProcess(s, "blend", pass, 0.5, cam); err != nil {
		log.Fatalf("[Prism] %v", err)
	}
	if _, err := postprocess.NewVolumetricLightScatteringPostProcess(s, "shafts", 0.5, cam, sunMarker, 0); err != nil {
		log.Fatalf("[Prism] %v", err)
	}

	eng.AddScene(0, s)

	// ── Loop ────────────────────────────────────────────────────────────
	limit := *frames
	if win == nil && limit <= 0 {
		limit = 60
	}
	rendered := 0
	eng.SetRenderCallback(func(float32) {
		rendered++
		if win == nil && rendered >= limit {
			eng.Quit()
		}
	})
	eng.SetTickCallback(func(dt float32) {
		orbit.Orbit(dt*2, 0)
	})
	eng.Run()
	log.Printf("[Prism] rendered %d frames", rendered)
}
