// Package renderer drives frames: it owns the device, the swapchain and the framebuffer
// pool, and records draws between BeginFrame and SwapBuffers.
package renderer

import (
	"unsafe"

	"github.com/FilipHusnjak/Neon-sub000/gpu"
	"github.com/FilipHusnjak/Neon-sub000/internal/logging"
	"github.com/FilipHusnjak/Neon-sub000/pass"
	"github.com/FilipHusnjak/Neon-sub000/present"
	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/vkngwrapper/core/v3"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"
	"golang.org/x/exp/slog"
)

// Window is the platform window a Context presents to.
type Window interface {
	present.Window
	// RequiredExtensions lists the instance extensions surface creation needs.
	RequiredExtensions() []string
	// InstanceProcAddr returns the loader's vkGetInstanceProcAddr.
	InstanceProcAddr() unsafe.Pointer
	// DrawableSize is the framebuffer size in pixels; zero while minimised.
	DrawableSize() (width, height int)
}

// Context is the rendering context of one window.
type Context struct {
	cfg    Config
	logger *slog.Logger
	window Window

	instance     core1_0.CoreInstanceDriver
	debugExt     ext_debug_utils.ExtensionDriver
	messenger    ext_debug_utils.DebugUtilsMessenger
	hasMessenger bool

	device        *gpu.Device
	swapchain     *present.Swapchain
	framebuffers  *pass.FramebufferPool
	pipelineCache *PipelineCache

	overlay         Overlay
	overlayPipeline *Pipeline

	timer frameTimer

	frameStarted bool
	// target is the framebuffer of the open render pass; nil with passOpen means the
	// swapchain.
	target   *pass.Framebuffer
	passOpen bool
	// swapchainPass records whether the swapchain pass ran this frame.
	swapchainPass bool
}

// New creates the rendering context for cfg.API.
func New(cfg Config, window Window) (*Context, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.API {
	case Vulkan:
		return newVulkanContext(cfg, window)
	}
	return nil, errors.Wrapf(ErrUnsupportedAPI, "%s", cfg.API)
}

func newVulkanContext(cfg Config, window Window) (ctx *Context, err error) {
	ctx = &Context{
		cfg:          cfg,
		logger:       logging.OrDiscard(cfg.Logger),
		window:       window,
		framebuffers: pass.NewFramebufferPool(cfg.Logger),
	}
	defer func() {
		if err != nil {
			ctx.Close()
			ctx = nil
		}
	}()

	global, err := core.CreateDriverFromProcAddr(window.InstanceProcAddr())
	if err != nil {
		return ctx, errors.Wrap(err, "load vulkan")
	}

	ctx.instance, err = createInstance(global, cfg, window.RequiredExtensions(), ctx.logger)
	if err != nil {
		return ctx, err
	}

	if cfg.Validation {
		ctx.debugExt = ext_debug_utils.CreateExtensionDriverFromCoreDriver(ctx.instance)
		ctx.messenger, _, err = ctx.debugExt.CreateDebugUtilsMessenger(nil, debugMessengerOptions(ctx.logger))
		if err != nil {
			return ctx, errors.Wrap(err, "create debug messenger")
		}
		ctx.hasMessenger = true
	}

	physical, err := gpu.SelectPhysicalDevice(ctx.instance)
	if err != nil {
		return ctx, err
	}
	ctx.logger.Info("selected adapter",
		slog.String("Name", physical.Name),
		slog.String("Type", physical.Type.String()))

	ctx.device, err = gpu.NewDevice(physical, gpu.DeviceOptions{
		Presentation: true,
		FenceTimeout: cfg.FenceTimeout,
		Logger:       ctx.logger,
	})
	if err != nil {
		return ctx, err
	}

	ctx.pipelineCache, err = LoadPipelineCache(ctx.device, cfg.PipelineCachePath, ctx.logger)
	if err != nil {
		return ctx, err
	}

	ctx.swapchain, err = present.New(ctx.device, present.Options{
		FramesInFlight: cfg.MaxFramesInFlight,
		Logger:         ctx.logger,
	})
	if err != nil {
		return ctx, err
	}
	if err := ctx.swapchain.InitSurface(window); err != nil {
		return ctx, err
	}

	width, height := window.DrawableSize()
	if err := ctx.swapchain.Create(width, height, cfg.VSync); err != nil {
		return ctx, err
	}
	return ctx, nil
}

func (c *Context) Device() *gpu.Device {
	return c.device
}

func (c *Context) Swapchain() *present.Swapchain {
	return c.swapchain
}

func (c *Context) Framebuffers() *pass.FramebufferPool {
	return c.framebuffers
}

func (c *Context) PipelineCache() *PipelineCache {
	return c.pipelineCache
}

// SetOverlay installs the overlay drawn by SwapBuffers. imagePipeline draws overlay
// images and may be nil when the overlay draws none.
func (c *Context) SetOverlay(overlay Overlay, imagePipeline *Pipeline) {
	c.overlay = overlay
	c.overlayPipeline = imagePipeline
}

// CreatePipeline builds a pipeline through the context's pipeline cache.
func (c *Context) CreatePipeline(renderPass *pass.RenderPass, desc PipelineDesc) (*Pipeline, error) {
	return NewPipeline(c.device, c.pipelineCache, renderPass, desc)
}

// CreateMesh uploads a mesh. The caller owns the returned reference.
func (c *Context) CreateMesh(vertices []Vertex, indices []uint32) (*Mesh, error) {
	return NewMesh(c.device, vertices, indices)
}

// BeginFrame waits for the next frame slot and starts recording. It returns false when
// there is nothing to render into: the window is minimised or the swapchain had to be
// recreated.
func (c *Context) BeginFrame() (bool, error) {
	if c.frameStarted {
		return false, errors.AssertionFailedf("BeginFrame called twice without SwapBuffers")
	}

	width, height := c.window.DrawableSize()
	if width == 0 || height == 0 {
		return false, nil
	}

	c.timer.begin()
	var ok bool
	err := c.timer.measure(func() error {
		var err error
		ok, err = c.swapchain.BeginFrame()
		return err
	})
	if err != nil || !ok {
		c.resizePool()
		return false, err
	}

	c.frameStarted = true
	c.swapchainPass = false
	return true, nil
}

// BeginRenderPass starts fb's render pass, or the swapchain's when fb is nil. Viewport
// and scissor cover the whole target.
func (c *Context) BeginRenderPass(fb *pass.Framebuffer) error {
	if !c.frameStarted {
		return ErrFrameNotStarted
	}
	if c.passOpen {
		return errors.AssertionFailedf("render pass already open")
	}

	var (
		renderPass    *pass.RenderPass
		framebuffer   core1_0.Framebuffer
		width, height int
	)
	if fb == nil {
		renderPass = c.swapchain.RenderPass()
		framebuffer = c.swapchain.CurrentFramebuffer()
		width, height = c.swapchain.Width(), c.swapchain.Height()
		c.swapchainPass = true
	} else {
		renderPass = fb.RenderPass()
		framebuffer = fb.Handle()
		width, height = fb.Width(), fb.Height()
	}

	driver := c.device.Driver()
	cmd := c.swapchain.CommandBuffer().Handle()
	extent := core1_0.Extent2D{Width: width, Height: height}

	err := driver.CmdBeginRenderPass(cmd, core1_0.SubpassContentsInline,
		core1_0.RenderPassBeginInfo{
			RenderPass:  renderPass.Handle(),
			Framebuffer: framebuffer,
			RenderArea: core1_0.Rect2D{
				Offset: core1_0.Offset2D{X: 0, Y: 0},
				Extent: extent,
			},
			ClearValues: renderPass.ClearValues(),
		})
	if err != nil {
		return errors.Wrap(err, "begin render pass")
	}

	driver.CmdSetViewport(cmd, core1_0.Viewport{
		Width:    float32(width),
		Height:   float32(height),
		MinDepth: 0,
		MaxDepth: 1,
	})
	driver.CmdSetScissor(cmd, core1_0.Rect2D{Extent: extent})

	c.target = fb
	c.passOpen = true
	return nil
}

// EndRenderPass ends the open render pass.
func (c *Context) EndRenderPass() error {
	if !c.frameStarted {
		return ErrFrameNotStarted
	}
	if !c.passOpen {
		return errors.AssertionFailedf("no render pass open")
	}
	c.device.Driver().CmdEndRenderPass(c.swapchain.CommandBuffer().Handle())
	c.target = nil
	c.passOpen = false
	return nil
}

// SubmitMesh draws mesh with transform pushed as vertex-stage constants. The mesh stays
// alive until this frame slot is reused.
func (c *Context) SubmitMesh(pipeline *Pipeline, mesh *Mesh, transform mgl32.Mat4) error {
	if !c.frameStarted {
		return ErrFrameNotStarted
	}

	cmd := c.swapchain.CommandBuffer()
	if err := pipeline.bind(cmd.Handle(), [16]float32(transform)); err != nil {
		return err
	}
	mesh.record(c.device.Driver(), cmd.Handle())
	cmd.SafeDestroyResource(gpu.NewStaleResource(mesh))
	return nil
}

// SubmitFullscreenQuad draws a quad covering the target, sampling the image in set.
func (c *Context) SubmitFullscreenQuad(pipeline *Pipeline, set core1_0.DescriptorSet) error {
	if !c.frameStarted {
		return ErrFrameNotStarted
	}
	return c.drawQuad(pipeline, set, fullscreenQuad)
}

func (c *Context) drawQuad(pipeline *Pipeline, set core1_0.DescriptorSet, quad quadConstants) error {
	driver := c.device.Driver()
	cmd := c.swapchain.CommandBuffer().Handle()

	if err := pipeline.bind(cmd, quad); err != nil {
		return err
	}
	driver.CmdBindDescriptorSets(cmd, core1_0.PipelineBindPointGraphics, pipeline.Layout(), 0,
		[]core1_0.DescriptorSet{set}, nil)
	driver.CmdDraw(cmd, 6, 1, 0, 0)
	return nil
}

// SwapBuffers draws the overlay into the swapchain pass, closes any open pass and
// presents the frame.
func (c *Context) SwapBuffers() error {
	if !c.frameStarted {
		return ErrFrameNotStarted
	}

	if c.passOpen && c.target != nil {
		if err := c.EndRenderPass(); err != nil {
			return err
		}
	}
	if !c.passOpen && !c.swapchainPass {
		if err := c.BeginRenderPass(nil); err != nil {
			return err
		}
	}
	if c.passOpen {
		if c.overlay != nil {
			if err := c.overlay.Render(overlayTarget{ctx: c}); err != nil {
				return errors.Wrap(err, "render overlay")
			}
		}
		if err := c.EndRenderPass(); err != nil {
			return err
		}
	}

	c.frameStarted = false
	c.timer.end()
	if err := c.swapchain.Present(); err != nil {
		return err
	}
	c.resizePool()
	return nil
}

// resizePool brings pooled framebuffers to the swapchain size after the swapchain
// recreated itself. ResizeAll is a no-op for framebuffers already at that size.
func (c *Context) resizePool() {
	if err := c.framebuffers.ResizeAll(c.swapchain.Width(), c.swapchain.Height()); err != nil {
		c.logger.Error("resize framebuffers after swapchain recreation", slog.Any("error", err))
	}
}

// OnResize recreates the swapchain and resizes every pooled framebuffer.
func (c *Context) OnResize(width, height int) error {
	if width <= 0 || height <= 0 {
		return nil
	}
	if err := c.swapchain.OnResize(width, height); err != nil {
		return err
	}
	return c.framebuffers.ResizeAll(c.swapchain.Width(), c.swapchain.Height())
}

// SetVSync switches the presentation mode.
func (c *Context) SetVSync(vsync bool) error {
	c.cfg.VSync = vsync
	return c.swapchain.SetVSync(vsync)
}

// CreateFramebuffer creates a framebuffer at the swapchain size and registers it for
// resizing.
func (c *Context) CreateFramebuffer(renderPass *pass.RenderPass) (*pass.Framebuffer, error) {
	fb, err := pass.NewFramebuffer(c.device, renderPass, c.swapchain.Width(), c.swapchain.Height())
	if err != nil {
		return nil, err
	}
	c.framebuffers.Add(fb)
	return fb, nil
}

// DestroyFramebuffer unregisters fb and destroys it once every frame slot has finished
// the work it recorded, since any of them may sample fb through its descriptor set.
func (c *Context) DestroyFramebuffer(fb *pass.Framebuffer) {
	c.framebuffers.Remove(fb)
	c.swapchain.ReleaseAfterFrames(gpu.ReleaseFunc(fb.Destroy))
}

// ReplaceMesh drops the caller's reference to old. Frames still using it keep it alive.
func (c *Context) ReplaceMesh(old *Mesh) {
	c.release(old)
}

// release defers r onto the current frame slot, or releases it after the device is idle
// outside a frame.
func (c *Context) release(r gpu.Releasable) {
	if c.frameStarted {
		c.swapchain.CommandBuffer().SafeDestroyResource(r)
		return
	}
	if err := c.device.WaitIdle(); err != nil {
		c.logger.Error("wait idle before release", slog.Any("error", err))
	}
	r.Release()
}

func (c *Context) Stats() FrameStats {
	return c.timer.snapshot()
}

// Close waits for the device and destroys everything the context created. Framebuffers
// still registered in the pool are destroyed as well.
func (c *Context) Close() {
	if c.device != nil {
		if err := c.device.WaitIdle(); err != nil {
			c.logger.Error("wait idle before shutdown", slog.Any("error", err))
		}
	}

	if c.framebuffers.Len() > 0 {
		c.logger.Warn("framebuffers still registered at shutdown", slog.Int("Count", c.framebuffers.Len()))
		for _, fb := range c.framebuffers.All() {
			c.framebuffers.Remove(fb)
			fb.Destroy()
		}
	}

	if c.swapchain != nil {
		c.swapchain.Destroy()
		c.swapchain = nil
	}
	if c.pipelineCache != nil {
		if err := c.pipelineCache.Save(); err != nil {
			c.logger.Warn("could not save pipeline cache", slog.Any("error", err))
		}
		c.pipelineCache.Destroy()
		c.pipelineCache = nil
	}
	if c.device != nil {
		live := c.device.Allocator().LiveImages() + c.device.Allocator().LiveBuffers()
		if live > 0 {
			c.logger.Warn("allocations alive at shutdown", slog.Int("Count", live))
		}
		c.device.Release()
		c.device = nil
	}
	if c.hasMessenger {
		c.debugExt.DestroyDebugUtilsMessenger(c.messenger, nil)
		c.hasMessenger = false
	}
	if c.instance != nil {
		c.instance.DestroyInstance(nil)
		c.instance = nil
	}
}
