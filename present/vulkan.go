package present

import (
	"github.com/FilipHusnjak/Neon-sub000/gpu"
	"github.com/FilipHusnjak/Neon-sub000/pass"
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
	"golang.org/x/exp/slog"
)

// vulkanDriver runs the frame loop on a gpu.Device presenting through khr_swapchain.
type vulkanDriver struct {
	device   *gpu.Device
	instance core1_0.CoreInstanceDriver
	logger   *slog.Logger

	slots int
	pairs int

	surfaceExt    khr_surface.ExtensionDriver
	surface       khr_surface.Surface
	surfaceFormat khr_surface.SurfaceFormat
	presentQueue  core1_0.Queue
	queueFamilies []int

	swapchainExt khr_swapchain.ExtensionDriver
	handle       khr_swapchain.Swapchain
	old          khr_swapchain.Swapchain
	width        int
	height       int

	images       []core1_0.Image
	views        []core1_0.ImageView
	depthFormat  core1_0.Format
	depth        *gpu.Image
	renderPass   *pass.RenderPass
	framebuffers []core1_0.Framebuffer

	acquired       []core1_0.Semaphore
	rendered       []core1_0.Semaphore
	fences         []core1_0.Fence
	commandPool    *gpu.CommandPool
	commandBuffers []*gpu.CommandBuffer
}

var _ frameDriver = (*vulkanDriver)(nil)

func newVulkanDriver(device *gpu.Device, slots, pairs int, logger *slog.Logger) (*vulkanDriver, error) {
	d := &vulkanDriver{
		device:       device,
		instance:     device.Physical().Instance(),
		logger:       logger,
		slots:        slots,
		pairs:        pairs,
		swapchainExt: khr_swapchain.CreateExtensionDriverFromCoreDriver(device.Driver()),
	}

	var err error
	d.depthFormat, err = device.DepthFormat()
	if err != nil {
		return nil, err
	}

	if err := d.createSyncObjects(); err != nil {
		d.destroy()
		return nil, err
	}

	d.commandPool, err = gpu.NewCommandPool(device, gpu.Graphics)
	if err != nil {
		d.destroy()
		return nil, err
	}
	d.commandBuffers, err = d.commandPool.Allocate(slots)
	if err != nil {
		d.destroy()
		return nil, err
	}
	return d, nil
}

func (d *vulkanDriver) createSyncObjects() error {
	for i := 0; i < d.pairs; i++ {
		acquired, err := d.device.CreateSemaphore()
		if err != nil {
			return err
		}
		d.acquired = append(d.acquired, acquired)

		rendered, err := d.device.CreateSemaphore()
		if err != nil {
			return err
		}
		d.rendered = append(d.rendered, rendered)
	}

	for i := 0; i < d.slots; i++ {
		// Signalled so the first wait on every slot returns immediately.
		fence, err := d.device.CreateFence(true)
		if err != nil {
			return err
		}
		d.fences = append(d.fences, fence)
	}
	return nil
}

func (d *vulkanDriver) destroySyncObjects() {
	for _, fence := range d.fences {
		d.device.DestroyFence(fence)
	}
	d.fences = nil
	for _, semaphore := range d.acquired {
		d.device.DestroySemaphore(semaphore)
	}
	for _, semaphore := range d.rendered {
		d.device.DestroySemaphore(semaphore)
	}
	d.acquired, d.rendered = nil, nil
}

func (d *vulkanDriver) initSurface(window Window) error {
	d.surfaceExt = khr_surface.CreateExtensionDriverFromCoreDriver(d.instance)
	surface, err := window.CreateSurface(d.instance.Instance(), d.surfaceExt)
	if err != nil {
		return errors.Wrap(err, "create window surface")
	}
	d.surface = surface

	pd := d.device.Physical()
	var supported []int
	for _, family := range pd.QueueIndices.Unique() {
		ok, _, err := d.surfaceExt.GetPhysicalDeviceSurfaceSupport(surface, pd.Handle(), family)
		if err != nil {
			return errors.Wrapf(err, "query present support of family %d", family)
		}
		if ok {
			supported = append(supported, family)
		}
	}

	graphics := pd.QueueIndices.Graphics
	presentFamily, err := choosePresentFamily(graphics, supported)
	if err != nil {
		return err
	}
	d.presentQueue = d.device.Driver().GetQueue(presentFamily, 0)
	d.queueFamilies = nil
	if presentFamily != graphics {
		d.queueFamilies = []int{graphics, presentFamily}
	}

	formats, _, err := d.surfaceExt.GetPhysicalDeviceSurfaceFormats(surface, pd.Handle())
	if err != nil {
		return errors.Wrap(err, "query surface formats")
	}
	d.surfaceFormat = chooseSurfaceFormat(formats)

	d.logger.Debug("initialised surface",
		slog.Int("PresentFamily", presentFamily),
		slog.String("Format", d.surfaceFormat.Format.String()),
		slog.String("ColorSpace", d.surfaceFormat.ColorSpace.String()))
	return nil
}

func (d *vulkanDriver) waitIdle() error {
	return d.device.WaitIdle()
}

func (d *vulkanDriver) createSwapchain(width, height int, vsync bool) (swapchainState, error) {
	pd := d.device.Physical()
	caps, _, err := d.surfaceExt.GetPhysicalDeviceSurfaceCapabilities(d.surface, pd.Handle())
	if err != nil {
		return swapchainState{}, errors.Wrap(err, "query surface capabilities")
	}
	modes, _, err := d.surfaceExt.GetPhysicalDeviceSurfacePresentModes(d.surface, pd.Handle())
	if err != nil {
		return swapchainState{}, errors.Wrap(err, "query present modes")
	}

	extent := chooseExtent(caps, width, height)
	if extent.Width <= 0 || extent.Height <= 0 {
		return swapchainState{}, errors.Newf("surface extent %dx%d cannot back a swapchain", extent.Width, extent.Height)
	}

	presentMode := choosePresentMode(modes, vsync)
	imageCount := chooseImageCount(caps.MinImageCount, caps.MaxImageCount)

	sharingMode := core1_0.SharingModeExclusive
	if len(d.queueFamilies) > 0 {
		sharingMode = core1_0.SharingModeConcurrent
	}

	handle, _, err := d.swapchainExt.CreateSwapchain(nil, khr_swapchain.SwapchainCreateInfo{
		Surface: d.surface,

		MinImageCount:    imageCount,
		ImageFormat:      d.surfaceFormat.Format,
		ImageColorSpace:  d.surfaceFormat.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       core1_0.ImageUsageColorAttachment,

		ImageSharingMode:   sharingMode,
		QueueFamilyIndices: d.queueFamilies,

		PreTransform:   caps.CurrentTransform,
		CompositeAlpha: khr_surface.CompositeAlphaOpaque,
		PresentMode:    presentMode,
		Clipped:        true,
		OldSwapchain:   d.handle,
	})
	if err != nil {
		return swapchainState{}, errors.Wrapf(err, "create %dx%d swapchain", extent.Width, extent.Height)
	}

	d.old, d.handle = d.handle, handle
	d.width, d.height = extent.Width, extent.Height
	return swapchainState{width: extent.Width, height: extent.Height, presentMode: presentMode}, nil
}

func (d *vulkanDriver) retireSwapchain() {
	d.destroyImageResources()
	if d.old.Initialized() {
		d.swapchainExt.DestroySwapchain(d.old, nil)
		d.old = khr_swapchain.Swapchain{}
	}
}

func (d *vulkanDriver) createImageResources() (int, error) {
	images, _, err := d.swapchainExt.GetSwapchainImages(d.handle)
	if err != nil {
		return 0, errors.Wrap(err, "get swapchain images")
	}
	d.images = images

	for _, image := range images {
		view, err := d.device.CreateImageView(image, d.surfaceFormat.Format, core1_0.ImageAspectColor)
		if err != nil {
			return 0, err
		}
		d.views = append(d.views, view)
	}

	aspect := core1_0.ImageAspectDepth
	if gpu.HasStencil(d.depthFormat) {
		aspect |= core1_0.ImageAspectStencil
	}
	d.depth, err = d.device.CreateImage(gpu.ImageInfo{
		Width:  d.width,
		Height: d.height,
		Format: d.depthFormat,
		Usage:  core1_0.ImageUsageDepthStencilAttachment,
		Aspect: aspect,
	})
	if err != nil {
		return 0, errors.Wrap(err, "swapchain depth attachment")
	}

	d.renderPass, err = pass.NewRenderPass(d.device, pass.RenderPassDesc{
		HasColor:    true,
		ColorFormat: d.surfaceFormat.Format,
		Present:     true,
		HasDepth:    true,
		DepthFormat: d.depthFormat,
	})
	if err != nil {
		return 0, err
	}

	for _, view := range d.views {
		framebuffer, err := d.device.CreateFramebuffer(d.renderPass.Handle(), []core1_0.ImageView{view, d.depth.View}, d.width, d.height)
		if err != nil {
			return 0, err
		}
		d.framebuffers = append(d.framebuffers, framebuffer)
	}
	return len(images), nil
}

func (d *vulkanDriver) destroyImageResources() {
	for _, framebuffer := range d.framebuffers {
		d.device.DestroyFramebuffer(framebuffer)
	}
	d.framebuffers = nil

	if d.renderPass != nil {
		d.renderPass.Destroy()
		d.renderPass = nil
	}
	if d.depth != nil {
		d.device.DestroyImage(d.depth)
		d.depth = nil
	}

	for _, view := range d.views {
		d.device.DestroyImageView(view)
	}
	d.views = nil
	d.images = nil
}

// resetSlots recreates the semaphores because a binary semaphore left signalled by an
// acquire nobody waited on cannot be reset.
func (d *vulkanDriver) resetSlots() error {
	for _, cmd := range d.commandBuffers {
		cmd.Flush()
		if err := cmd.Reset(); err != nil {
			return err
		}
	}
	d.destroySyncObjects()
	return d.createSyncObjects()
}

func (d *vulkanDriver) acquire(pair int) (int, common.VkResult, error) {
	return d.swapchainExt.AcquireNextImage(d.handle, common.NoTimeout, &d.acquired[pair], nil)
}

func (d *vulkanDriver) waitFence(slot int) error {
	return d.device.WaitFences(d.fences[slot])
}

func (d *vulkanDriver) resetFence(slot int) error {
	return d.device.ResetFences(d.fences[slot])
}

func (d *vulkanDriver) flush(slot int) {
	d.commandBuffers[slot].Flush()
}

func (d *vulkanDriver) begin(slot int) error {
	cmd := d.commandBuffers[slot]
	if err := cmd.Reset(); err != nil {
		return err
	}
	return cmd.Begin()
}

func (d *vulkanDriver) submit(slot, pair int) error {
	cmd := d.commandBuffers[slot]
	if err := cmd.End(); err != nil {
		return err
	}
	cmd.AddWaitSemaphore(d.acquired[pair], core1_0.PipelineStageColorAttachmentOutput)
	cmd.AddSignalSemaphore(d.rendered[pair])
	cmd.SetFence(d.fences[slot])
	return cmd.Submit()
}

func (d *vulkanDriver) present(pair, image int) (common.VkResult, error) {
	return d.swapchainExt.QueuePresent(d.presentQueue, khr_swapchain.PresentInfo{
		WaitSemaphores: []core1_0.Semaphore{d.rendered[pair]},
		Swapchains:     []khr_swapchain.Swapchain{d.handle},
		ImageIndices:   []int{image},
	})
}

func (d *vulkanDriver) deferRelease(slot int, r gpu.Releasable) {
	d.commandBuffers[slot].SafeDestroyResource(r)
}

func (d *vulkanDriver) destroy() {
	if err := d.device.WaitIdle(); err != nil {
		d.logger.Error("wait idle before swapchain destruction", slog.Any("error", err))
	}

	d.destroyImageResources()
	if d.old.Initialized() {
		d.swapchainExt.DestroySwapchain(d.old, nil)
		d.old = khr_swapchain.Swapchain{}
	}
	if d.handle.Initialized() {
		d.swapchainExt.DestroySwapchain(d.handle, nil)
		d.handle = khr_swapchain.Swapchain{}
	}

	if d.commandPool != nil {
		d.commandPool.Free(d.commandBuffers...)
		d.commandPool.Destroy()
		d.commandPool = nil
		d.commandBuffers = nil
	}
	d.destroySyncObjects()

	if d.surface.Initialized() {
		d.surfaceExt.DestroySurface(d.surface, nil)
		d.surface = khr_surface.Surface{}
	}
}
