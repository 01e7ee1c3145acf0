// Command neon is a small viewer: it renders a mesh into an offscreen framebuffer, shows
// that image on the swapchain with a fullscreen quad and draws a frame-time overlay.
//
// Shaders are read as SPIR-V from the -shaders directory; the GLSL sources live in
// cmd/neon/shaders.
//
//go:generate glslc shaders/mesh.vert -o shaders/mesh.vert.spv
//go:generate glslc shaders/mesh.frag -o shaders/mesh.frag.spv
//go:generate glslc shaders/quad.vert -o shaders/quad.vert.spv
//go:generate glslc shaders/quad.frag -o shaders/quad.frag.spv
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"log"
	"os"
	"runtime"
	"time"

	"github.com/FilipHusnjak/Neon-sub000/gui"
	"github.com/FilipHusnjak/Neon-sub000/pass"
	"github.com/FilipHusnjak/Neon-sub000/platform/sdlwindow"
	"github.com/FilipHusnjak/Neon-sub000/renderer"
	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/loov/hrtime"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core/v3/core1_0"
	"golang.org/x/exp/slog"
)

type options struct {
	width      int
	height     int
	vsync      bool
	validation bool
	frames     int
	mesh       string
	shaders    string
	cache      string
	verbose    bool
}

func parseFlags() options {
	var o options
	flag.IntVar(&o.width, "width", 1280, "initial window width")
	flag.IntVar(&o.height, "height", 720, "initial window height")
	flag.BoolVar(&o.vsync, "vsync", true, "present with vertical sync")
	flag.BoolVar(&o.validation, "validation", false, "enable the Vulkan validation layer")
	flag.IntVar(&o.frames, "frames", 3, "frames in flight")
	flag.StringVar(&o.mesh, "mesh", "", "Wavefront OBJ file to show instead of the cube")
	flag.StringVar(&o.shaders, "shaders", "cmd/neon/shaders", "directory holding the compiled SPIR-V shaders")
	flag.StringVar(&o.cache, "cache", "", "directory for the pipeline cache and shader mirror")
	flag.BoolVar(&o.verbose, "v", false, "debug logging")
	flag.Parse()
	return o
}

func (o options) config(logger *slog.Logger) renderer.Config {
	cfg := renderer.DefaultConfig()
	cfg.MaxFramesInFlight = o.frames
	cfg.VSync = o.vsync
	cfg.Validation = o.validation
	cfg.Logger = logger
	if o.cache != "" {
		cfg.PipelineCachePath = o.cache + "/pipeline.cache"
		cfg.ShaderCacheDir = o.cache + "/shaders"
	}
	return cfg
}

type viewer struct {
	ctx     *renderer.Context
	window  *sdlwindow.Window
	overlay *gui.Overlay

	offscreen    *pass.RenderPass
	target       *pass.Framebuffer
	meshPipeline *renderer.Pipeline
	quadPipeline *renderer.Pipeline

	meshPath string
	showCube bool
	mesh     *renderer.Mesh

	start time.Duration
}

func main() {
	runtime.LockOSThread()
	opts := parseFlags()

	err := run(opts)
	if err != nil {
		log.Fatalf("%+v\n", err)
	}
}

func run(opts options) error {
	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if opts.cache != "" {
		if err := os.MkdirAll(opts.cache, 0o755); err != nil {
			return err
		}
	}

	window, err := sdlwindow.Open("Neon", opts.width, opts.height)
	if err != nil {
		return err
	}
	defer window.Close()

	cfg := opts.config(logger)
	ctx, err := renderer.New(cfg, window)
	if err != nil {
		return err
	}
	defer ctx.Close()

	v := &viewer{
		ctx:      ctx,
		window:   window,
		overlay:  gui.New(),
		meshPath: opts.mesh,
		showCube: opts.mesh == "",
		start:    hrtime.Now(),
	}
	defer v.destroy()

	shaders := renderer.NewShaderCache(os.DirFS(opts.shaders), cfg.ShaderCacheDir, logger)
	if err := v.init(shaders); err != nil {
		return err
	}
	return v.loop()
}

func (v *viewer) init(shaders *renderer.ShaderCache) error {
	meshStages, err := shaders.LoadStages(context.Background(),
		renderer.StageSource{Stage: core1_0.StageVertex, Path: "mesh.vert.spv"},
		renderer.StageSource{Stage: core1_0.StageFragment, Path: "mesh.frag.spv"},
	)
	if err != nil {
		return err
	}
	quadStages, err := shaders.LoadStages(context.Background(),
		renderer.StageSource{Stage: core1_0.StageVertex, Path: "quad.vert.spv"},
		renderer.StageSource{Stage: core1_0.StageFragment, Path: "quad.frag.spv"},
	)
	if err != nil {
		return err
	}

	v.offscreen, err = pass.NewRenderPass(v.ctx.Device(), pass.RenderPassDesc{
		HasColor:    true,
		ColorFormat: core1_0.FormatR8G8B8A8UnsignedNormalized,
		HasDepth:    true,
		DepthFormat: v.ctx.Swapchain().DepthFormat(),
	})
	if err != nil {
		return err
	}

	v.target, err = v.ctx.CreateFramebuffer(v.offscreen)
	if err != nil {
		return err
	}

	v.meshPipeline, err = v.ctx.CreatePipeline(v.offscreen, renderer.PipelineDesc{
		Stages:             meshStages,
		VertexInput:        true,
		DepthTest:          true,
		PushConstantSize:   renderer.MeshPushConstantSize,
		PushConstantStages: core1_0.StageVertex,
	})
	if err != nil {
		return err
	}

	v.quadPipeline, err = v.ctx.CreatePipeline(v.ctx.Swapchain().RenderPass(), renderer.PipelineDesc{
		Stages:             quadStages,
		SampledImage:       true,
		PushConstantSize:   renderer.QuadPushConstantSize,
		PushConstantStages: core1_0.StageVertex,
	})
	if err != nil {
		return err
	}
	v.ctx.SetOverlay(v.overlay, v.quadPipeline)

	v.mesh, err = v.loadMesh()
	return err
}

func (v *viewer) loadMesh() (*renderer.Mesh, error) {
	if v.showCube {
		vertices, indices := cube()
		return v.ctx.CreateMesh(vertices, indices)
	}
	vertices, indices, err := loadOBJ(v.meshPath)
	if err != nil {
		return nil, err
	}
	return v.ctx.CreateMesh(vertices, indices)
}

// toggleMesh swaps between the cube and the OBJ file. The old mesh lives on until the
// frames that drew it have completed.
func (v *viewer) toggleMesh() error {
	if v.meshPath == "" {
		return nil
	}
	v.showCube = !v.showCube
	mesh, err := v.loadMesh()
	if err != nil {
		return err
	}
	v.ctx.ReplaceMesh(v.mesh)
	v.mesh = mesh
	return nil
}

func (v *viewer) loop() error {
	vsync := true
	for {
		for _, event := range v.window.Poll() {
			switch event.Kind {
			case sdlwindow.Quit:
				return nil
			case sdlwindow.Resized:
				if err := v.ctx.OnResize(event.Width, event.Height); err != nil {
					return err
				}
			case sdlwindow.KeyPressed:
				switch event.Key {
				case sdl.K_ESCAPE:
					return nil
				case sdl.K_v:
					vsync = !vsync
					if err := v.ctx.SetVSync(vsync); err != nil {
						return err
					}
				case sdl.K_m:
					if err := v.toggleMesh(); err != nil {
						return err
					}
				}
			}
		}

		ok, err := v.ctx.BeginFrame()
		if err != nil {
			return err
		}
		if !ok {
			sdl.Delay(10)
			continue
		}
		if err := v.drawFrame(); err != nil {
			return err
		}
	}
}

func (v *viewer) transform() mgl32.Mat4 {
	width, height := v.ctx.Swapchain().Width(), v.ctx.Swapchain().Height()
	aspect := float32(width) / float32(height)

	proj := mgl32.Perspective(mgl32.DegToRad(45), aspect, 0.1, 100)
	// Vulkan clip space points Y down.
	proj[5] *= -1
	view := mgl32.LookAtV(mgl32.Vec3{2, 2, 2}, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 1, 0})

	seconds := (hrtime.Now() - v.start).Seconds()
	model := mgl32.HomogRotate3DY(float32(seconds) * mgl32.DegToRad(45))

	return proj.Mul4(view).Mul4(model)
}

func (v *viewer) drawFrame() error {
	if err := v.ctx.BeginRenderPass(v.target); err != nil {
		return err
	}
	if err := v.ctx.SubmitMesh(v.meshPipeline, v.mesh, v.transform()); err != nil {
		return err
	}
	if err := v.ctx.EndRenderPass(); err != nil {
		return err
	}

	set, ok := v.target.DescriptorSet()
	if !ok {
		return errors.New("offscreen target has no sampled color attachment")
	}
	if err := v.ctx.BeginRenderPass(nil); err != nil {
		return err
	}
	if err := v.ctx.SubmitFullscreenQuad(v.quadPipeline, set); err != nil {
		return err
	}

	v.layoutOverlay(set)
	return v.ctx.SwapBuffers()
}

func (v *viewer) layoutOverlay(set core1_0.DescriptorSet) {
	width, height := v.ctx.Swapchain().Width(), v.ctx.Swapchain().Height()
	stats := v.ctx.Stats()

	v.overlay.NewFrame(width, height)
	v.overlay.TextScale = 2
	label := v.overlay.Text(12, 12, fmt.Sprintf("cpu %5.2fms  wait %5.2fms", ms(stats.CPUFrame), ms(stats.FenceWait)), gui.White)
	v.overlay.Text(12, label.Max.Y+4, fmt.Sprintf("%v  %d images  %d in flight",
		v.ctx.Swapchain().PresentMode(), v.ctx.Swapchain().ImageCount(), v.ctx.Swapchain().FramesInFlight()), gui.White)

	graph := image.Rect(12, height-92, 12+240, height-12)
	v.overlay.FrameGraph(graph, stats.History, 16667*time.Microsecond)

	thumb := image.Rect(width-12-width/5, 12, width-12, 12+height/5)
	v.overlay.Rect(thumb.Inset(-2), gui.Black)
	v.overlay.Image(set, thumb)
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func (v *viewer) destroy() {
	if err := v.ctx.Device().WaitIdle(); err != nil {
		log.Printf("wait idle: %v", err)
	}
	if v.mesh != nil {
		v.mesh.Release()
	}
	if v.quadPipeline != nil {
		v.quadPipeline.Destroy()
	}
	if v.meshPipeline != nil {
		v.meshPipeline.Destroy()
	}
	if v.target != nil {
		v.ctx.DestroyFramebuffer(v.target)
	}
	if v.offscreen != nil {
		v.offscreen.Destroy()
	}
}
